package repository

import (
	"context"
	"fmt"

	"github.com/helixir/item-service/internal/database"
	"github.com/helixir/item-service/internal/domain"
)

// Compile-time interface verification.
var _ ItemRepository = (*SQLItemRepository)(nil)

const itemColumns = `id, name, description`

// SQLItemRepository implements ItemRepository with SQL understood by both the
// PostgreSQL and SQLite engines.
type SQLItemRepository struct {
	maxLimit int
}

// NewSQLItemRepository creates an item repository that caps list pages at
// maxLimit. A non-positive maxLimit selects MaxListLimit.
func NewSQLItemRepository(maxLimit int) *SQLItemRepository {
	if maxLimit <= 0 {
		maxLimit = MaxListLimit
	}
	return &SQLItemRepository{maxLimit: maxLimit}
}

// Create inserts a new item.
func (r *SQLItemRepository) Create(ctx context.Context, sess database.Session, in domain.ItemInput) (domain.Item, error) {
	query := `
		INSERT INTO items (name, description)
		VALUES ($1, $2)
		RETURNING ` + itemColumns

	item, err := scanItem(sess.QueryRow(ctx, query, in.Name, nullableText(in.Description)))
	if err != nil {
		return domain.Item{}, fmt.Errorf("failed to create item: %w", err)
	}

	return item, nil
}

// Get retrieves an item by ID.
func (r *SQLItemRepository) Get(ctx context.Context, sess database.Session, id int64) (domain.Item, bool, error) {
	query := `
		SELECT ` + itemColumns + `
		FROM items
		WHERE id = $1`

	item, err := scanItem(sess.QueryRow(ctx, query, id))
	if err != nil {
		if database.IsNoRows(err) {
			return domain.Item{}, false, nil
		}
		return domain.Item{}, false, fmt.Errorf("failed to get item %d: %w", id, err)
	}

	return item, true, nil
}

// List returns a page of items ordered by ID.
func (r *SQLItemRepository) List(ctx context.Context, sess database.Session, skip, limit int) ([]domain.Item, error) {
	limit, err := validatePagination(skip, limit, r.maxLimit)
	if err != nil {
		return nil, err
	}

	items := make([]domain.Item, 0, limit)
	if limit == 0 {
		return items, nil
	}

	query := `
		SELECT ` + itemColumns + `
		FROM items
		ORDER BY id
		LIMIT $1 OFFSET $2`

	rows, err := sess.Query(ctx, query, limit, skip)
	if err != nil {
		return nil, fmt.Errorf("failed to list items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate items: %w", err)
	}

	return items, nil
}

// Update overwrites both mutable fields of an item.
func (r *SQLItemRepository) Update(ctx context.Context, sess database.Session, id int64, in domain.ItemInput) (domain.Item, bool, error) {
	query := `
		UPDATE items
		SET name = $1, description = $2
		WHERE id = $3
		RETURNING ` + itemColumns

	item, err := scanItem(sess.QueryRow(ctx, query, in.Name, nullableText(in.Description), id))
	if err != nil {
		if database.IsNoRows(err) {
			return domain.Item{}, false, nil
		}
		return domain.Item{}, false, fmt.Errorf("failed to update item %d: %w", id, err)
	}

	return item, true, nil
}

// Delete removes an item and returns its state before removal.
func (r *SQLItemRepository) Delete(ctx context.Context, sess database.Session, id int64) (domain.Item, bool, error) {
	query := `
		DELETE FROM items
		WHERE id = $1
		RETURNING ` + itemColumns

	item, err := scanItem(sess.QueryRow(ctx, query, id))
	if err != nil {
		if database.IsNoRows(err) {
			return domain.Item{}, false, nil
		}
		return domain.Item{}, false, fmt.Errorf("failed to delete item %d: %w", id, err)
	}

	return item, true, nil
}

// scanItem scans a single item from a row.
func scanItem(row database.Row) (domain.Item, error) {
	var item domain.Item
	err := row.Scan(&item.ID, &item.Name, &item.Description)
	return item, err
}
