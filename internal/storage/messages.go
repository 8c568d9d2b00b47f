package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/lueurxax/supplier-catalog/internal/core/domain"
	"github.com/lueurxax/supplier-catalog/internal/core/ports"
)

// SaveMessage inserts a chat message; duplicates by id are ignored.
func (db *DB) SaveMessage(ctx context.Context, msg domain.ChatMessage) (bool, error) {
	tag, err := db.Pool.Exec(ctx, `
		INSERT INTO chat_messages (id, source, chat_id, sender_id, ts, kind, text, media_ref)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO NOTHING
	`, msg.ID, string(msg.Source), msg.ChatID, msg.SenderID, msg.Timestamp,
		string(msg.Kind), toText(msg.Text), toText(msg.MediaRef))
	if err != nil {
		return false, fmt.Errorf("save message: %w", err)
	}

	return tag.RowsAffected() == 1, nil
}

// FetchPage returns one offset page of the run's pool: unprocessed messages
// plus the ones this run already consumed.
func (db *DB) FetchPage(ctx context.Context, q ports.PageQuery) ([]domain.ChatMessage, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT `+messageColumns+`
		FROM chat_messages
		WHERE (processed = FALSE OR processed_run_id = $1)
		  AND ($2 = 'all' OR source = $2)
		  AND ($3 = '' OR chat_id = $3)
		  AND created_at >= $4
		ORDER BY ts, id
		OFFSET $5
		LIMIT $6
	`, toUUID(q.RunID), sourceFilter(q.Source), q.ChatID, q.Since, q.Offset, q.Limit)
	if err != nil {
		return nil, fmt.Errorf("fetch page: %w", err)
	}

	return collectMessages(rows)
}

// FetchContinuation returns unprocessed messages of one sender after a position.
func (db *DB) FetchContinuation(ctx context.Context, q ports.ContinuationQuery) ([]domain.ChatMessage, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT `+messageColumns+`
		FROM chat_messages
		WHERE processed = FALSE
		  AND chat_id = $1
		  AND sender_id = $2
		  AND ($3 = 'all' OR source = $3)
		  AND (ts, id) > ($4, $5)
		  AND created_at >= $6
		ORDER BY ts, id
		LIMIT $7
	`, q.ChatID, q.SenderID, sourceFilter(q.Source), q.After, q.AfterID, q.Since, q.Limit)
	if err != nil {
		return nil, fmt.Errorf("fetch continuation: %w", err)
	}

	return collectMessages(rows)
}

// MarkSkipped consumes ids without a group.
func (db *DB) MarkSkipped(ctx context.Context, runID string, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	tag, err := db.Pool.Exec(ctx, `
		UPDATE chat_messages
		SET processed = TRUE,
			assigned_group_id = NULL,
			processed_run_id = $2
		WHERE id = ANY($1)
		  AND processed = FALSE
	`, ids, toUUID(runID))
	if err != nil {
		return 0, fmt.Errorf("mark skipped: %w", err)
	}

	return tag.RowsAffected(), nil
}

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func releaseMessages(ctx context.Context, ex execer, ids []string) error {
	_, err := ex.Exec(ctx, `
		UPDATE chat_messages
		SET processed = FALSE,
			assigned_group_id = NULL,
			processed_run_id = NULL
		WHERE id = ANY($1)
	`, ids)
	if err != nil {
		return fmt.Errorf("release messages: %w", err)
	}

	return nil
}

// AnyProcessed reports whether any of ids is already processed.
func (db *DB) AnyProcessed(ctx context.Context, ids []string) (bool, error) {
	var exists bool

	err := db.Pool.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM chat_messages WHERE id = ANY($1) AND processed = TRUE)
	`, ids).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check processed: %w", err)
	}

	return exists, nil
}

// CountBacklog counts unprocessed messages of a source family created since.
func (db *DB) CountBacklog(ctx context.Context, source domain.SourceFamily, since time.Time) (int, error) {
	var count int

	err := db.Pool.QueryRow(ctx, `
		SELECT COUNT(*)
		FROM chat_messages
		WHERE processed = FALSE
		  AND ($1 = 'all' OR source = $1)
		  AND created_at >= $2
	`, sourceFilter(source), since).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count backlog: %w", err)
	}

	return count, nil
}

func sourceFilter(s domain.SourceFamily) string {
	if s == "" {
		return string(domain.SourceAll)
	}

	return string(s)
}

func collectMessages(rows pgx.Rows) ([]domain.ChatMessage, error) {
	defer rows.Close()

	var out []domain.ChatMessage

	for rows.Next() {
		var (
			m             domain.ChatMessage
			source, kind  string
			text, media   pgtype.Text
			assignedGroup pgtype.Text
			ts, createdAt pgtype.Timestamptz
		)

		if err := rows.Scan(&m.ID, &source, &m.ChatID, &m.SenderID, &ts, &kind, &text, &media,
			&m.Processed, &assignedGroup, &createdAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}

		m.Source = domain.SourceFamily(source)
		m.Kind = domain.MessageKind(kind)
		m.Text = fromText(text)
		m.MediaRef = fromText(media)
		m.AssignedGroupID = fromText(assignedGroup)
		m.Timestamp = fromTimestamptz(ts)
		m.CreatedAt = fromTimestamptz(createdAt)
		out = append(out, m)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}

	return out, nil
}
