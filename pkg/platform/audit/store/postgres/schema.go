package postgres

// Schema creates the audit entries table and its query indexes. Deployments
// apply it through their migration tooling; the integration test containers
// apply it directly.
//
// seq is the insertion-order tiebreak for entries sharing a timestamp. The
// three indexes back the supported query shapes: tenant timelines, resource
// histories, and per-actor action reviews.
const Schema = `
CREATE TABLE IF NOT EXISTS audit_entries (
	seq                 BIGSERIAL    PRIMARY KEY,
	id                  UUID         NOT NULL UNIQUE,
	actor_id            TEXT         NOT NULL,
	actor_type          TEXT         NOT NULL DEFAULT 'user',
	actor_ip            TEXT         NOT NULL DEFAULT '',
	action              TEXT         NOT NULL,
	action_detail       TEXT         NOT NULL DEFAULT '',
	resource_type       TEXT         NOT NULL,
	resource_id         TEXT         NOT NULL DEFAULT '',
	tenant_id           TEXT         NOT NULL,
	request_id          TEXT         NOT NULL DEFAULT '',
	session_id          TEXT         NOT NULL DEFAULT '',
	timestamp           TIMESTAMPTZ  NOT NULL,
	success             BOOLEAN      NOT NULL DEFAULT TRUE,
	error_message       TEXT         NOT NULL DEFAULT '',
	old_values          JSONB,
	new_values          JSONB,
	data_classification TEXT         NOT NULL DEFAULT 'internal'
);

CREATE INDEX IF NOT EXISTS idx_audit_entries_tenant_time
	ON audit_entries (tenant_id, timestamp DESC);

CREATE INDEX IF NOT EXISTS idx_audit_entries_resource
	ON audit_entries (resource_type, resource_id);

CREATE INDEX IF NOT EXISTS idx_audit_entries_actor_action
	ON audit_entries (actor_id, action);
`
