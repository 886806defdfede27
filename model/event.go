package model

import "time"

type EventType string

const JOB_CREATED EventType = "JOB_CREATED"
const JOB_STARTED EventType = "JOB_STARTED"
const JOB_COMPLETED EventType = "JOB_COMPLETED"
const JOB_RETRYING EventType = "JOB_RETRYING"
const JOB_FAILED EventType = "JOB_FAILED"
const JOB_CANCELLED EventType = "JOB_CANCELLED"
const WORKFLOW_STARTED EventType = "WORKFLOW_STARTED"
const WORKFLOW_COMPLETED EventType = "WORKFLOW_COMPLETED"
const WORKFLOW_FAILED EventType = "WORKFLOW_FAILED"
const MODULE_REGISTERED EventType = "MODULE_REGISTERED"

const ALL_EVENTS EventType = "*"

const DEFAULT_EVENT_SOURCE = "media_creator_core"

type Event struct {
	Type      EventType      `json:"event_type"`
	Timestamp time.Time      `json:"timestamp"`
	Source    string         `json:"source"`
	Payload   map[string]any `json:"payload"`
}

// JobEventPayload is the payload shape shared by all JOB_* events.
func JobEventPayload(job *Job) map[string]any {
	return map[string]any{
		"job_id":        job.Id,
		"project_id":    job.ProjectId,
		"draft_id":      job.DraftId,
		"module_id":     job.ModuleId,
		"operation":     string(job.Operation),
		"status":        string(job.Status),
		"retry_count":   job.RetryCount,
		"error_message": job.ErrorMessage,
		"sequence":      job.Version,
		"timestamp":     time.Now().UTC(),
	}
}
