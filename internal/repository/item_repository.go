package repository

import (
	"context"

	"github.com/helixir/item-service/internal/database"
	"github.com/helixir/item-service/internal/domain"
)

// ItemRepository handles item persistence.
type ItemRepository interface {
	// Create inserts a new item and returns it with its assigned ID.
	Create(ctx context.Context, sess database.Session, in domain.ItemInput) (domain.Item, error)

	// Get retrieves an item by ID. found is false when no such item exists.
	Get(ctx context.Context, sess database.Session, id int64) (item domain.Item, found bool, err error)

	// List returns up to limit items ordered by ID, skipping the first skip.
	// The result is never nil. limit is capped to the repository maximum and
	// negative values return an error matching domain.ErrInvalidInput.
	List(ctx context.Context, sess database.Session, skip, limit int) ([]domain.Item, error)

	// Update overwrites the name and description of an item. A nil
	// description stores NULL. found is false when no such item exists.
	Update(ctx context.Context, sess database.Session, id int64, in domain.ItemInput) (item domain.Item, found bool, err error)

	// Delete removes an item and returns its last state. found is false when
	// no such item exists.
	Delete(ctx context.Context, sess database.Session, id int64) (item domain.Item, found bool, err error)
}
