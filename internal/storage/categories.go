package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgtype"

	"github.com/lueurxax/supplier-catalog/internal/core/domain"
)

// ListActiveCategories returns the active categories ordered by slug.
func (db *DB) ListActiveCategories(ctx context.Context) ([]domain.Category, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT id, slug, name, is_active
		FROM categories
		WHERE is_active
		ORDER BY slug
	`)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()

	var out []domain.Category

	for rows.Next() {
		var (
			c  domain.Category
			id pgtype.UUID
		)

		if err := rows.Scan(&id, &c.Slug, &c.Name, &c.IsActive); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}

		c.ID = fromUUID(id)
		out = append(out, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate categories: %w", err)
	}

	return out, nil
}
