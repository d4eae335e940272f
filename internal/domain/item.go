// Package domain provides the domain model of the item service.
package domain

import "strconv"

// Item is a stored item. ID is assigned by the database on insert and never
// changes afterwards.
type Item struct {
	ID          int64   `json:"id"`
	Name        string  `json:"name"`
	Description *string `json:"description"`
}

// ItemInput carries the client-supplied fields of an item for create and
// update. A nil Description stores NULL.
type ItemInput struct {
	Name        string
	Description *string
}

// ItemNotFound returns the not found error for the item with the given id.
func ItemNotFound(id int64) *NotFoundError {
	return NewNotFoundError("item", strconv.FormatInt(id, 10))
}

// StringPtr returns a pointer to s.
func StringPtr(s string) *string {
	return &s
}
