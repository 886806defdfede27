package model

import "time"

type JobStatus string

const JOB_STATUS_QUEUED JobStatus = "queued"
const JOB_STATUS_RUNNING JobStatus = "running"
const JOB_STATUS_SUCCESS JobStatus = "success"
const JOB_STATUS_FAILED JobStatus = "failed"
const JOB_STATUS_CANCELED JobStatus = "canceled"

func (s JobStatus) IsTerminal() bool {
	return s == JOB_STATUS_SUCCESS || s == JOB_STATUS_FAILED || s == JOB_STATUS_CANCELED
}

const DEFAULT_PRIORITY = 5
const MIN_PRIORITY = 0
const MAX_PRIORITY = 9
const DEFAULT_MAX_RETRIES = 3

// MAX_POLL_BATCH bounds how many messages one worker poll may take.
const MAX_POLL_BATCH = 100

type Job struct {
	Id            string         `json:"id"`
	ProjectId     string         `json:"project_id"`
	DraftId       string         `json:"draft_id,omitempty"`
	ModuleId      string         `json:"module_id"`
	Operation     Operation      `json:"type"`
	Status        JobStatus      `json:"status"`
	Priority      int            `json:"priority"`
	InputPayload  map[string]any `json:"input_payload"`
	OutputPayload map[string]any `json:"output_payload"`
	ErrorMessage  string         `json:"error_message,omitempty"`
	RetryCount    int            `json:"retry_count"`
	MaxRetries    int            `json:"max_retries"`
	Version       int64          `json:"version"`
	QueuedAt      time.Time      `json:"queued_at"`
	StartedAt     *time.Time     `json:"started_at"`
	FinishedAt    *time.Time     `json:"finished_at"`
}

// Clone returns a copy that can be mutated without touching the stored job.
// Payload maps are shared; they are replaced wholesale, never edited in place.
func (j *Job) Clone() *Job {
	c := *j
	if j.StartedAt != nil {
		t := *j.StartedAt
		c.StartedAt = &t
	}
	if j.FinishedAt != nil {
		t := *j.FinishedAt
		c.FinishedAt = &t
	}
	return &c
}

type CreateJobRequest struct {
	ProjectId    string         `json:"project_id"`
	DraftId      string         `json:"draft_id,omitempty"`
	ModuleId     string         `json:"module_id"`
	Operation    Operation      `json:"type"`
	InputPayload map[string]any `json:"input_payload"`
	Priority     *int           `json:"priority,omitempty"`
	MaxRetries   *int           `json:"max_retries,omitempty"`
}

type JobReport struct {
	Output map[string]any `json:"output_payload"`
	Error  string         `json:"error_message"`
}

// DispatchMessage is what a worker receives from an execution queue.
type DispatchMessage struct {
	JobId        string         `json:"job_id"`
	ProjectId    string         `json:"project_id"`
	ModuleId     string         `json:"module_id"`
	Operation    Operation      `json:"type"`
	Priority     int            `json:"priority"`
	Attempt      int            `json:"attempt"`
	Endpoint     string         `json:"endpoint,omitempty"`
	EndpointType EndpointType   `json:"endpoint_type"`
	InputPayload map[string]any `json:"input_payload"`
}

// TimerEntry is scheduled on a delay queue for retries and running-job timeouts.
type TimerEntry struct {
	JobId   string `json:"job_id"`
	Version int64  `json:"version"`
}
