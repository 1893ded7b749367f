package domain

import "fmt"

// ItemNotFoundError is returned when a command references an item that has
// no inventory entry.
type ItemNotFoundError struct {
	Item string
}

func (e *ItemNotFoundError) Error() string {
	return fmt.Sprintf("item %q not found", e.Item)
}

// InsufficientStockError is returned when a decrement would take an item's
// quantity below zero. Available carries the quantity at the time of the
// check so replies can report it.
type InsufficientStockError struct {
	Item      string
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for %q: available %d", e.Item, e.Available)
}
