package db

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/lueurxax/supplier-catalog/internal/core/domain"
	apperrors "github.com/lueurxax/supplier-catalog/internal/core/errors"
)

// CreateDraft claims the source messages and inserts an inactive product in
// one transaction. A claim that does not cover every id rolls back.
func (db *DB) CreateDraft(ctx context.Context, p domain.Product, runID string) error {
	return db.inTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE chat_messages
			SET processed = TRUE,
				assigned_group_id = $2,
				processed_run_id = $3
			WHERE id = ANY($1)
			  AND processed = FALSE
		`, p.SourceMessageIDs, p.GroupID, toUUID(runID))
		if err != nil {
			return fmt.Errorf("claim messages: %w", err)
		}

		if tag.RowsAffected() != int64(len(p.SourceMessageIDs)) {
			return fmt.Errorf("claimed %d of %d messages: %w",
				tag.RowsAffected(), len(p.SourceMessageIDs), apperrors.ErrAlreadyConsumed)
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO products (id, group_id, source, chat_id, sender_id, source_message_ids, fingerprint, is_active)
			VALUES ($1, $2, $3, $4, $5, $6, $7, FALSE)
		`, toUUID(p.ID), p.GroupID, string(p.Source), p.ChatID, p.SenderID, p.SourceMessageIDs, p.Fingerprint)
		if err != nil {
			return fmt.Errorf("insert draft: %w", err)
		}

		return nil
	})
}

// patchBuilder collects SET clauses of a partial update.
type patchBuilder struct {
	sets []string
	args []any
}

func (b *patchBuilder) add(column string, value any) {
	b.args = append(b.args, value)
	b.sets = append(b.sets, fmt.Sprintf("%s = $%d", column, len(b.args)))
}

func addField[T any](b *patchBuilder, column string, f domain.Field[T], null any, conv func(T) any) {
	if f.IsNull() {
		b.add(column, null)

		return
	}

	if v, ok := f.Value(); ok {
		b.add(column, conv(v))
	}
}

func asIs[T any](v T) any { return v }

func sanitized(v string) any { return SanitizeUTF8(v) }

// UpdateProduct applies the provided fields of patch. Null resets a column to its default.
func (db *DB) UpdateProduct(ctx context.Context, id string, patch domain.ProductPatch) error {
	if patch.IsEmpty() {
		return nil
	}

	query, args := buildProductUpdate(id, patch)

	tag, err := db.Pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update product: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update product %s: %w", id, apperrors.ErrProductNotFound)
	}

	return nil
}

func buildProductUpdate(id string, patch domain.ProductPatch) (string, []any) {
	b := &patchBuilder{}
	addField(b, "name", patch.Name, "", sanitized)
	addField(b, "description", patch.Description, "", sanitized)
	addField(b, "price", patch.Price, 0.0, asIs[float64])
	addField(b, "currency", patch.Currency, "", sanitized)
	addField(b, "sizes", patch.Sizes, []string{}, func(v []string) any {
		if v == nil {
			return []string{}
		}

		return v
	})
	addField(b, "material", patch.Material, "", sanitized)
	addField(b, "gender", patch.Gender, "", func(v domain.Gender) any { return string(v) })
	addField(b, "season", patch.Season, "", func(v domain.Season) any { return string(v) })
	addField(b, "category_id", patch.CategoryID, pgtype.UUID{}, func(v string) any { return toUUID(v) })

	b.args = append(b.args, toUUID(id))

	return fmt.Sprintf(`UPDATE products SET %s, updated_at = now() WHERE id = $%d`,
		strings.Join(b.sets, ", "), len(b.args)), b.args
}

// AddImage stores a product image.
func (db *DB) AddImage(ctx context.Context, img domain.ProductImage) (domain.ProductImage, error) {
	if img.ID == "" {
		img.ID = uuid.NewString()
	}

	_, err := db.Pool.Exec(ctx, `
		INSERT INTO product_images (id, product_id, source_message_id, url, color, position)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, toUUID(img.ID), toUUID(img.ProductID), img.SourceMessageID, img.URL, img.Color, img.Position)
	if err != nil {
		return domain.ProductImage{}, fmt.Errorf("add product image: %w", err)
	}

	return img, nil
}

// UpdateImageColor sets the color of an image.
func (db *DB) UpdateImageColor(ctx context.Context, imageID, color string) error {
	_, err := db.Pool.Exec(ctx, `UPDATE product_images SET color = $2 WHERE id = $1`, toUUID(imageID), SanitizeUTF8(color))
	if err != nil {
		return fmt.Errorf("update image color: %w", err)
	}

	return nil
}

// ActivateProduct activates a draft unless an active product shares its fingerprint.
func (db *DB) ActivateProduct(ctx context.Context, id string) error {
	tag, err := db.Pool.Exec(ctx, `
		UPDATE products p
		SET is_active = TRUE,
			updated_at = now()
		WHERE p.id = $1
		  AND NOT EXISTS (
			SELECT 1 FROM products o
			WHERE o.fingerprint = p.fingerprint
			  AND o.is_active
			  AND o.id <> p.id
		  )
	`, toUUID(id))
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("activate product %s: %w", id, apperrors.ErrDuplicateProduct)
		}

		return fmt.Errorf("activate product: %w", err)
	}

	if tag.RowsAffected() == 1 {
		return nil
	}

	var exists bool
	if err := db.Pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM products WHERE id = $1)`, toUUID(id)).Scan(&exists); err != nil {
		return fmt.Errorf("check product: %w", err)
	}

	if !exists {
		return fmt.Errorf("activate product %s: %w", id, apperrors.ErrProductNotFound)
	}

	return fmt.Errorf("activate product %s: %w", id, apperrors.ErrDuplicateProduct)
}

// DeleteDraft deletes a product and returns its messages to the pool in one transaction.
func (db *DB) DeleteDraft(ctx context.Context, id string, messageIDs []string) error {
	return db.inTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM products WHERE id = $1`, toUUID(id)); err != nil {
			return fmt.Errorf("delete product: %w", err)
		}

		if len(messageIDs) == 0 {
			return nil
		}

		return releaseMessages(ctx, tx, messageIDs)
	})
}

// FingerprintExists reports whether any product has the fingerprint.
func (db *DB) FingerprintExists(ctx context.Context, fingerprint string) (bool, error) {
	var exists bool

	err := db.Pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM products WHERE fingerprint = $1)`, fingerprint).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check fingerprint: %w", err)
	}

	return exists, nil
}

// DeleteDuplicateProducts keeps the earliest product per fingerprint.
func (db *DB) DeleteDuplicateProducts(ctx context.Context) ([]string, error) {
	rows, err := db.Pool.Query(ctx, `
		WITH ranked AS (
			SELECT id, ROW_NUMBER() OVER (PARTITION BY fingerprint ORDER BY created_at, id) AS rn
			FROM products
		)
		DELETE FROM products p
		USING ranked r
		WHERE p.id = r.id
		  AND r.rn > 1
		RETURNING p.id
	`)
	if err != nil {
		return nil, fmt.Errorf("delete duplicate products: %w", err)
	}
	defer rows.Close()

	var ids []string

	for rows.Next() {
		var id pgtype.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan deleted product: %w", err)
		}

		ids = append(ids, fromUUID(id))
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate deleted products: %w", err)
	}

	return ids, nil
}
