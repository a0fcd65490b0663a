// Package store defines the item store interface and its backends.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Item is a stored item. It always carries "id" and "lastUpdate"; any other
// field is caller data.
type Item map[string]any

// ID returns the item's id: an int64 for sequential backends, a string for
// document backends.
func (it Item) ID() any {
	return it["id"]
}

// LastUpdate returns the time of the item's most recent create or update.
func (it Item) LastUpdate() time.Time {
	switch v := it["lastUpdate"].(type) {
	case time.Time:
		return v
	case string:
		t, _ := time.Parse(time.RFC3339Nano, v)
		return t
	}
	return time.Time{}
}

// IsActive returns the isActive flag. ok is false when the field is absent or
// not a boolean.
func (it Item) IsActive() (active, ok bool) {
	active, ok = it["isActive"].(bool)
	return active, ok
}

// Store is the interface that all item backends implement.
type Store interface {
	// Create assigns an id, stamps lastUpdate and persists a new item built
	// from data.
	Create(ctx context.Context, data map[string]any) (Item, error)

	// List returns every item in storage order.
	List(ctx context.Context) ([]Item, error)

	// FindByID returns the item with the given id, or nil if none exists.
	// Backends with structured ids return an *InvalidIDError for ids that
	// cannot exist.
	FindByID(ctx context.Context, id string) (Item, error)

	// Update merges data over the stored item and stamps lastUpdate.
	// Returns ErrNotFound if the item does not exist.
	Update(ctx context.Context, id string, data map[string]any) (Item, error)

	// Delete removes the item. Deleting a missing id is not an error.
	Delete(ctx context.Context, id string) error

	// Close releases the backend.
	Close() error
}

var (
	// ErrNotFound is returned by Update when the item does not exist.
	ErrNotFound = errors.New("store: item not found")

	// ErrInvalidID matches every *InvalidIDError.
	ErrInvalidID = errors.New("store: invalid item id")
)

// InvalidIDError is returned for an id that is not syntactically valid for
// the backend, before any lookup is attempted.
type InvalidIDError struct {
	ID   string
	Kind string // ObjectId, UUID
}

func (e *InvalidIDError) Error() string {
	return fmt.Sprintf("store: %q is not a valid %s", e.ID, e.Kind)
}

func (e *InvalidIDError) Unwrap() error {
	return ErrInvalidID
}
