// Package repository provides data access for the item service.
//
// # Overview
//
// Repositories are stateless. Every method takes the database.Session of the
// unit of work it belongs to, so one request can combine several calls in a
// single transaction. Repositories never commit or close a session; the
// caller (normally database.Factory.WithSession) owns its lifecycle.
//
// # Error Handling
//
// Absence is not an error: lookups by id report it with a found flag.
// Database errors are wrapped with context using fmt.Errorf with %w.
// Invalid arguments return errors matching domain.ErrInvalidInput.
//
// # Usage Pattern
//
//	repo := repository.NewSQLItemRepository(cfg.API.MaxLimit)
//	err := factory.WithSession(ctx, func(sess database.Session) error {
//	    item, err = repo.Create(ctx, sess, input)
//	    return err
//	})
//
// # Thread Safety
//
// Repository values are safe for concurrent use. Sessions are not; each
// goroutine must use its own.
package repository

import (
	"github.com/helixir/item-service/internal/domain"
)

// Pagination defaults and limits.
const (
	// DefaultListLimit is the page size used by callers that have none.
	DefaultListLimit = 100
	// MaxListLimit caps the page size when no other maximum is configured.
	MaxListLimit = 100
)

// validatePagination rejects negative values and clamps limit to maxLimit.
func validatePagination(skip, limit, maxLimit int) (int, error) {
	if skip < 0 {
		return 0, domain.NewValidationError("skip", "must be greater than or equal to 0")
	}
	if limit < 0 {
		return 0, domain.NewValidationError("limit", "must be greater than or equal to 0")
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	return limit, nil
}

// nullableText converts an optional string into a driver argument, nil for
// SQL NULL.
func nullableText(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}
