package store

const schema = `
CREATE TABLE IF NOT EXISTS tasks (
	id           TEXT PRIMARY KEY,
	title        TEXT NOT NULL,
	description  TEXT NOT NULL DEFAULT '',
	status       TEXT NOT NULL,
	priority     TEXT NOT NULL DEFAULT 'normal',
	assigned_to  TEXT NOT NULL DEFAULT '',
	output_path  TEXT NOT NULL DEFAULT '',
	retries      INTEGER NOT NULL DEFAULT 0,
	notify       TEXT NOT NULL DEFAULT '',
	created_at   DATETIME NOT NULL,
	updated_at   DATETIME NOT NULL,
	started_at   DATETIME,
	completed_at DATETIME
);

CREATE TABLE IF NOT EXISTS agents (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL,
	role       TEXT NOT NULL DEFAULT '',
	status     TEXT NOT NULL DEFAULT 'standby',
	approver   INTEGER NOT NULL DEFAULT 0,
	model      TEXT NOT NULL DEFAULT '',
	session_id TEXT NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS task_dependencies (
	dependent_id    TEXT NOT NULL REFERENCES tasks(id) ON DELETE CASCADE,
	prerequisite_id TEXT NOT NULL REFERENCES tasks(id) ON DELETE CASCADE,
	created_at      DATETIME NOT NULL,
	PRIMARY KEY (dependent_id, prerequisite_id)
);

CREATE TABLE IF NOT EXISTS task_events (
	id         TEXT PRIMARY KEY,
	task_id    TEXT NOT NULL,
	type       TEXT NOT NULL,
	actor      TEXT NOT NULL DEFAULT '',
	detail     TEXT NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS activity_log (
	id         TEXT PRIMARY KEY,
	task_id    TEXT NOT NULL,
	message    TEXT NOT NULL,
	created_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_tasks_status ON tasks(status);
CREATE INDEX IF NOT EXISTS idx_tasks_assigned ON tasks(assigned_to);
CREATE INDEX IF NOT EXISTS idx_deps_prerequisite ON task_dependencies(prerequisite_id);
CREATE INDEX IF NOT EXISTS idx_events_task ON task_events(task_id);
CREATE INDEX IF NOT EXISTS idx_activity_task ON activity_log(task_id);
`
