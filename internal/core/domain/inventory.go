package domain

// InventoryEntry is one tracked item. Item names are stored lower-cased;
// quantities never go below zero, and an entry that reaches zero is deleted
// rather than kept as an empty row.
type InventoryEntry struct {
	Item     string
	Quantity int
}
