package port

import (
	"context"

	"whatstock/internal/core/domain"
)

type InventoryRepository interface {
	// Get returns the current quantity, 0 when the item has no entry.
	Get(ctx context.Context, item string) (int, error)

	// Set stores an absolute quantity. A qty <= 0 deletes the entry.
	Set(ctx context.Context, item string, qty int) error

	// Increment atomically adjusts an item's quantity and returns the new
	// value. A positive delta on a missing item creates it. A delta that
	// would take the quantity below zero fails with
	// *domain.InsufficientStockError and mutates nothing; a decrement that
	// lands exactly on zero deletes the entry.
	Increment(ctx context.Context, item string, delta int) (int, error)

	// Delete removes the entry. Deleting a missing item is a no-op.
	Delete(ctx context.Context, item string) error

	// List returns all entries sorted lexicographically by item name.
	List(ctx context.Context) ([]domain.InventoryEntry, error)

	// Reset removes every entry.
	Reset(ctx context.Context) error
}
