package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/lueurxax/supplier-catalog/internal/core/domain"
	apperrors "github.com/lueurxax/supplier-catalog/internal/core/errors"
	"github.com/lueurxax/supplier-catalog/internal/core/ports"
)

// ReclaimStuckRuns fails running runs started before olderThan.
func (db *DB) ReclaimStuckRuns(ctx context.Context, olderThan time.Time, reason string) ([]domain.RunRecord, error) {
	rows, err := db.Pool.Query(ctx, `
		UPDATE pipeline_runs
		SET status = 'failed',
			completed_at = now(),
			error = $2
		WHERE status = 'running'
		  AND started_at < $1
		RETURNING `+runColumns,
		olderThan, reason)
	if err != nil {
		return nil, fmt.Errorf("reclaim stuck runs: %w", err)
	}

	return collectRuns(rows)
}

// StartRunExclusive serializes admission with a transaction-scoped advisory
// lock, lets admit inspect the running runs and inserts rec. The partial
// unique index on exclusion_key backs the check.
func (db *DB) StartRunExclusive(ctx context.Context, rec domain.RunRecord, admit ports.AdmitFunc) error {
	return db.inTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, runAdmissionLockID); err != nil {
			return fmt.Errorf("acquire admission lock: %w", err)
		}

		rows, err := tx.Query(ctx, `
			SELECT `+runColumns+`
			FROM pipeline_runs
			WHERE status = 'running'
			ORDER BY started_at
		`)
		if err != nil {
			return fmt.Errorf("list running runs: %w", err)
		}

		running, err := collectRuns(rows)
		if err != nil {
			return err
		}

		if admit != nil {
			if err := admit(running); err != nil {
				return err
			}
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO pipeline_runs (id, status, started_at, triggered_by, source, exclusion_key, reason, source_id)
			VALUES ($1, 'running', $2, $3, $4, $5, $6, $7)
		`, toUUID(rec.ID), rec.StartedAt, string(rec.TriggeredBy), sourceFilter(rec.Source),
			rec.ExclusionKey, SanitizeUTF8(rec.Reason), toText(rec.SourceID))
		if err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("exclusion key %s is held: %w", rec.ExclusionKey, apperrors.ErrRunRejected)
			}

			return fmt.Errorf("insert run: %w", err)
		}

		return nil
	})
}

// UpdateRunCounters stores progress counters.
func (db *DB) UpdateRunCounters(ctx context.Context, id string, c domain.RunCounters) error {
	_, err := db.Pool.Exec(ctx, `
		UPDATE pipeline_runs
		SET messages_read = $2,
			groups_formed = $3,
			products_created = $4,
			products_deleted = $5,
			messages_skipped = $6
		WHERE id = $1
	`, toUUID(id), c.MessagesRead, c.GroupsFormed, c.ProductsCreated, c.ProductsDeleted, c.MessagesSkipped)
	if err != nil {
		return fmt.Errorf("update run counters: %w", err)
	}

	return nil
}

// FinishRun finalizes a run that is still running.
func (db *DB) FinishRun(ctx context.Context, id string, status domain.RunStatus, c domain.RunCounters, errMsg string) error {
	tag, err := db.Pool.Exec(ctx, `
		UPDATE pipeline_runs
		SET status = $2,
			completed_at = now(),
			messages_read = $3,
			groups_formed = $4,
			products_created = $5,
			products_deleted = $6,
			messages_skipped = $7,
			error = $8
		WHERE id = $1
		  AND status = 'running'
	`, toUUID(id), string(status), c.MessagesRead, c.GroupsFormed, c.ProductsCreated, c.ProductsDeleted,
		c.MessagesSkipped, SanitizeUTF8(errMsg))
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return fmt.Errorf("finish run %s: %w", id, apperrors.ErrRunNotRunning)
	}

	return nil
}

// ListRunningRuns returns running runs, oldest first.
func (db *DB) ListRunningRuns(ctx context.Context) ([]domain.RunRecord, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT `+runColumns+`
		FROM pipeline_runs
		WHERE status = 'running'
		ORDER BY started_at
	`)
	if err != nil {
		return nil, fmt.Errorf("list running runs: %w", err)
	}

	return collectRuns(rows)
}

// ListRecentRuns returns the latest runs, newest first.
func (db *DB) ListRecentRuns(ctx context.Context, limit int) ([]domain.RunRecord, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT `+runColumns+`
		FROM pipeline_runs
		ORDER BY started_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list recent runs: %w", err)
	}

	return collectRuns(rows)
}

func scanRun(row pgx.Row) (domain.RunRecord, error) {
	var (
		r                       domain.RunRecord
		id                      pgtype.UUID
		status, trigger, source string
		startedAt, completedAt  pgtype.Timestamptz
		sourceID                pgtype.Text
		read, groups, created   int32
		deleted, skipped        int32
	)

	err := row.Scan(&id, &status, &startedAt, &completedAt, &trigger, &source, &r.ExclusionKey, &r.Reason,
		&sourceID, &read, &groups, &created, &deleted, &skipped, &r.Error)
	if err != nil {
		return domain.RunRecord{}, err //nolint:wrapcheck // callers wrap with context
	}

	r.ID = fromUUID(id)
	r.Status = domain.RunStatus(status)
	r.TriggeredBy = domain.Trigger(trigger)
	r.Source = domain.SourceFamily(source)
	r.StartedAt = fromTimestamptz(startedAt)
	r.CompletedAt = fromTimestamptzPtr(completedAt)
	r.SourceID = fromText(sourceID)
	r.Counters = domain.RunCounters{
		MessagesRead:    int(read),
		GroupsFormed:    int(groups),
		ProductsCreated: int(created),
		ProductsDeleted: int(deleted),
		MessagesSkipped: int(skipped),
	}

	return r, nil
}

func collectRuns(rows pgx.Rows) ([]domain.RunRecord, error) {
	defer rows.Close()

	var out []domain.RunRecord

	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}

		out = append(out, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}

	return out, nil
}
