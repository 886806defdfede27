package postgres

const schema = `
CREATE TABLE IF NOT EXISTS projects (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	owner_id TEXT NOT NULL,
	metadata JSONB,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS workflow_drafts (
	id TEXT PRIMARY KEY,
	idea_id TEXT NOT NULL,
	project_id TEXT NOT NULL DEFAULT '',
	steps JSONB NOT NULL DEFAULT '[]',
	status TEXT NOT NULL,
	metadata JSONB,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS jobs (
	id TEXT PRIMARY KEY,
	project_id TEXT NOT NULL,
	draft_id TEXT NOT NULL DEFAULT '',
	module_id TEXT NOT NULL,
	operation TEXT NOT NULL,
	status TEXT NOT NULL,
	priority INT NOT NULL,
	input_payload JSONB,
	output_payload JSONB,
	error_message TEXT NOT NULL DEFAULT '',
	retry_count INT NOT NULL DEFAULT 0,
	max_retries INT NOT NULL,
	version BIGINT NOT NULL DEFAULT 0,
	queued_at TIMESTAMPTZ NOT NULL,
	started_at TIMESTAMPTZ,
	finished_at TIMESTAMPTZ
);

ALTER TABLE jobs ADD COLUMN IF NOT EXISTS seq BIGSERIAL;

CREATE INDEX IF NOT EXISTS jobs_project_seq_idx ON jobs (project_id, seq);
CREATE INDEX IF NOT EXISTS jobs_draft_seq_idx ON jobs (draft_id, seq);

CREATE TABLE IF NOT EXISTS modules (
	id TEXT PRIMARY KEY,
	category TEXT NOT NULL,
	active BOOLEAN NOT NULL,
	capability JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);
`
