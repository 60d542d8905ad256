package store

// Schema creates the users table. Email uniqueness is enforced per tenant by
// ix_users_tenant_email; the store surfaces violations as ErrAlreadyUsed
// before they reach the index under normal operation.
const Schema = `
CREATE TABLE IF NOT EXISTS users (
	id            UUID         PRIMARY KEY,
	tenant_id     TEXT         NOT NULL,
	email         TEXT         NOT NULL,
	full_name     TEXT         NOT NULL DEFAULT '',
	roles         TEXT[]       NOT NULL DEFAULT '{}',
	password_hash TEXT         NOT NULL,
	active        BOOLEAN      NOT NULL DEFAULT TRUE,
	verified      BOOLEAN      NOT NULL DEFAULT FALSE,
	created_at    TIMESTAMPTZ  NOT NULL,
	updated_at    TIMESTAMPTZ  NOT NULL,
	last_login_at TIMESTAMPTZ
);

CREATE UNIQUE INDEX IF NOT EXISTS ix_users_tenant_email
	ON users (tenant_id, email);
`
