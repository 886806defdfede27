package model

import "time"

type DraftStatus string

const DRAFT_DRAFT DraftStatus = "draft"
const DRAFT_READY DraftStatus = "ready"
const DRAFT_EXECUTING DraftStatus = "executing"
const DRAFT_COMPLETED DraftStatus = "completed"
const DRAFT_FAILED DraftStatus = "failed"

// Executable reports whether a draft may still be fanned out into jobs.
func (s DraftStatus) Executable() bool {
	return s == DRAFT_DRAFT || s == DRAFT_READY
}

type WorkflowStep struct {
	Module string         `json:"module"`
	Action string         `json:"action"`
	Params map[string]any `json:"params"`
}

type WorkflowDraft struct {
	Id        string         `json:"id"`
	IdeaId    string         `json:"idea_id"`
	ProjectId string         `json:"project_id,omitempty"`
	Steps     []WorkflowStep `json:"steps"`
	Status    DraftStatus    `json:"status"`
	Metadata  map[string]any `json:"metadata"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

type CreateDraftRequest struct {
	IdeaId   string         `json:"idea_id"`
	Steps    []WorkflowStep `json:"steps"`
	Metadata map[string]any `json:"metadata"`
}

type GenerateDraftRequest struct {
	IdeaId       string `json:"idea_id"`
	IdeaType     string `json:"idea_type"`
	Prompt       string `json:"prompt"`
	VersionIndex int    `json:"version_index"`
}

type ExecuteRequest struct {
	ProjectId string `json:"project_id"`
}

type ExecuteResult struct {
	DraftId   string      `json:"draft_id"`
	ProjectId string      `json:"project_id"`
	JobIds    []string    `json:"job_ids"`
	Status    DraftStatus `json:"status"`
}

type WorkflowStatus struct {
	DraftId         string      `json:"workflow_draft_id"`
	Status          DraftStatus `json:"status"`
	TotalJobs       int         `json:"total_jobs"`
	CompletedJobs   int         `json:"completed_jobs"`
	FailedJobs      int         `json:"failed_jobs"`
	PendingJobs     int         `json:"pending_jobs"`
	CanceledJobs    int         `json:"canceled_jobs"`
	ProgressPercent float64     `json:"progress_percent"`
}
