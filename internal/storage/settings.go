package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	apperrors "github.com/lueurxax/supplier-catalog/internal/core/errors"
)

// GetSetting decodes the JSON value of key into target.
func (db *DB) GetSetting(ctx context.Context, key string, target interface{}) error {
	var raw []byte

	err := db.Pool.QueryRow(ctx, `SELECT value FROM settings WHERE key = $1`, key).Scan(&raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("setting %s: %w", key, apperrors.ErrNotFound)
		}

		return fmt.Errorf("get setting: %w", err)
	}

	if err := json.Unmarshal(raw, target); err != nil {
		return fmt.Errorf("decode setting %s: %w", key, err)
	}

	return nil
}

// SaveSetting upserts the JSON encoding of value under key.
func (db *DB) SaveSetting(ctx context.Context, key string, value interface{}) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode setting %s: %w", key, err)
	}

	_, err = db.Pool.Exec(ctx, `
		INSERT INTO settings (key, value, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = now()
	`, key, raw)
	if err != nil {
		return fmt.Errorf("save setting: %w", err)
	}

	return nil
}

// DeleteSetting removes key.
func (db *DB) DeleteSetting(ctx context.Context, key string) error {
	if _, err := db.Pool.Exec(ctx, `DELETE FROM settings WHERE key = $1`, key); err != nil {
		return fmt.Errorf("delete setting: %w", err)
	}

	return nil
}
