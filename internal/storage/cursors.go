package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// GetCursor returns the last ingested provider message id of a chat, or 0.
func (db *DB) GetCursor(ctx context.Context, source, chatID string) (int64, error) {
	var last int64

	err := db.Pool.QueryRow(ctx, `
		SELECT last_message_id FROM source_cursors WHERE source = $1 AND chat_id = $2
	`, source, chatID).Scan(&last)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil
		}

		return 0, fmt.Errorf("get cursor: %w", err)
	}

	return last, nil
}

// SaveCursor advances the cursor of a chat; it never moves backwards.
func (db *DB) SaveCursor(ctx context.Context, source, chatID string, lastMessageID int64) error {
	_, err := db.Pool.Exec(ctx, `
		INSERT INTO source_cursors (source, chat_id, last_message_id, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (source, chat_id) DO UPDATE
		SET last_message_id = GREATEST(source_cursors.last_message_id, EXCLUDED.last_message_id),
			updated_at = now()
	`, source, chatID, lastMessageID)
	if err != nil {
		return fmt.Errorf("save cursor: %w", err)
	}

	return nil
}
