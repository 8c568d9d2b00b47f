package db

import "time"

// Database connection constants
const (
	// ConnectionRetrySleep is the sleep duration between connection retries
	ConnectionRetrySleep = 2 * time.Second
	// maxConnectionRetries is the number of retries for initial connection
	maxConnectionRetries = 10
)

// Database pool default constants
const (
	defaultMaxConns          int32         = 25
	defaultMinConns          int32         = 5
	defaultMaxConnIdleTime   time.Duration = 30 * time.Minute
	defaultMaxConnLifetime   time.Duration = time.Hour
	defaultHealthCheckPeriod time.Duration = time.Minute
)

// Advisory lock ids.
const (
	migrationLockID = 1000
	// runAdmissionLockID serializes run admission across instances.
	runAdmissionLockID = 2000
)

// pgUniqueViolation is the SQLSTATE of a unique constraint violation.
const pgUniqueViolation = "23505"

// Column lists.
const (
	messageColumns = `id, source, chat_id, sender_id, ts, kind, text, media_ref, processed, assigned_group_id, created_at`
	runColumns     = `id, status, started_at, completed_at, triggered_by, source, exclusion_key, reason, source_id,
		messages_read, groups_formed, products_created, products_deleted, messages_skipped, error`
)
