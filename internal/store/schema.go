package store

const schema = `
CREATE TABLE IF NOT EXISTS events (
	id                TEXT PRIMARY KEY,
	method            TEXT NOT NULL,
	request_path      TEXT NOT NULL,
	correlation_token TEXT,
	created_at        TIMESTAMP NOT NULL,
	ip_address        TEXT,
	forwarded_for     TEXT,
	geo_location      TEXT,
	agent             TEXT,
	referer           TEXT,
	origin            TEXT,
	language          TEXT,
	email             TEXT,
	data              TEXT NOT NULL DEFAULT '{}',
	data_present      BOOLEAN NOT NULL DEFAULT 0,
	field_count       INTEGER NOT NULL DEFAULT 0,
	target_fields     TEXT NOT NULL DEFAULT '[]',
	attack_attempted  BOOLEAN NOT NULL DEFAULT 0,
	event_category    TEXT NOT NULL CHECK (event_category IN ('scan', 'spam', 'attack'))
);

CREATE INDEX IF NOT EXISTS idx_events_created_at ON events (created_at);
CREATE INDEX IF NOT EXISTS idx_events_token ON events (correlation_token);
CREATE INDEX IF NOT EXISTS idx_events_ip ON events (ip_address);
CREATE INDEX IF NOT EXISTS idx_events_category ON events (event_category);

CREATE TABLE IF NOT EXISTS findings (
	id           TEXT PRIMARY KEY,
	event_id     TEXT NOT NULL REFERENCES events (id) ON DELETE CASCADE,
	target_field TEXT NOT NULL,
	pattern      TEXT NOT NULL,
	category     TEXT NOT NULL,
	raw_value    TEXT NOT NULL,
	decoded      BOOLEAN NOT NULL DEFAULT 0,
	created_at   TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_findings_event ON findings (event_id);
CREATE INDEX IF NOT EXISTS idx_findings_category ON findings (category);
CREATE INDEX IF NOT EXISTS idx_findings_pattern ON findings (pattern);
`

const eventColumns = `id, method, request_path, correlation_token, created_at,
	ip_address, forwarded_for, geo_location, agent, referer, origin, language, email,
	data, data_present, field_count, target_fields, attack_attempted, event_category`

const findingColumns = `id, event_id, target_field, pattern, category, raw_value, decoded, created_at`

const insertEvent = `INSERT INTO events (` + eventColumns + `) VALUES (
	:id, :method, :request_path, :correlation_token, :created_at,
	:ip_address, :forwarded_for, :geo_location, :agent, :referer, :origin, :language, :email,
	:data, :data_present, :field_count, :target_fields, :attack_attempted, :event_category)`

const insertFinding = `INSERT INTO findings (` + findingColumns + `) VALUES (
	:id, :event_id, :target_field, :pattern, :category, :raw_value, :decoded, :created_at)`
