package storage

import (
	"context"
	"sort"
	"sync"

	"whatstock/internal/core/domain"
)

// MemoryInventory is a mutex-guarded map. It is the default backend and the
// one unit tests run against. The lock makes Increment's read-modify-write
// atomic per table, which covers the per-item requirement.
type MemoryInventory struct {
	mu    sync.Mutex
	items map[string]int
}

func NewMemoryInventory() *MemoryInventory {
	return &MemoryInventory{items: make(map[string]int)}
}

func (m *MemoryInventory) Get(ctx context.Context, item string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.items[item], nil
}

func (m *MemoryInventory) Set(ctx context.Context, item string, qty int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if qty <= 0 {
		delete(m.items, item)
		return nil
	}
	m.items[item] = qty
	return nil
}

func (m *MemoryInventory) Increment(ctx context.Context, item string, delta int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	current := m.items[item]
	next := current + delta
	if next < 0 {
		return 0, &domain.InsufficientStockError{Item: item, Available: current}
	}
	if next == 0 {
		delete(m.items, item)
		return 0, nil
	}
	m.items[item] = next
	return next, nil
}

func (m *MemoryInventory) Delete(ctx context.Context, item string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, item)
	return nil
}

func (m *MemoryInventory) List(ctx context.Context) ([]domain.InventoryEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entries := make([]domain.InventoryEntry, 0, len(m.items))
	for item, qty := range m.items {
		entries = append(entries, domain.InventoryEntry{Item: item, Quantity: qty})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Item < entries[j].Item })
	return entries, nil
}

func (m *MemoryInventory) Reset(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items = make(map[string]int)
	return nil
}

// MemoryMembers is the in-memory membership table.
type MemoryMembers struct {
	mu      sync.Mutex
	members map[string]domain.Member
}

func NewMemoryMembers() *MemoryMembers {
	return &MemoryMembers{members: make(map[string]domain.Member)}
}

func (m *MemoryMembers) Get(ctx context.Context, phoneID string) (*domain.Member, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	member, ok := m.members[phoneID]
	if !ok {
		return nil, nil
	}
	return &member, nil
}

func (m *MemoryMembers) Put(ctx context.Context, member domain.Member) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.members[member.PhoneID] = member
	return nil
}

func (m *MemoryMembers) Remove(ctx context.Context, phoneID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.members, phoneID)
	return nil
}

func (m *MemoryMembers) List(ctx context.Context) ([]domain.Member, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	members := make([]domain.Member, 0, len(m.members))
	for _, member := range m.members {
		members = append(members, member)
	}
	sort.Slice(members, func(i, j int) bool { return members[i].PhoneID < members[j].PhoneID })
	return members, nil
}

func (m *MemoryMembers) IncrementMessageCount(ctx context.Context, phoneID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	member, ok := m.members[phoneID]
	if !ok {
		return nil
	}
	member.MessageCount++
	m.members[phoneID] = member
	return nil
}

// MemoryAudit is the in-memory append-only log.
type MemoryAudit struct {
	mu      sync.Mutex
	records []domain.AuditRecord
}

func NewMemoryAudit() *MemoryAudit {
	return &MemoryAudit{}
}

func (m *MemoryAudit) Append(ctx context.Context, rec domain.AuditRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, rec)
	return nil
}

func (m *MemoryAudit) Recent(ctx context.Context, limit int) ([]domain.AuditRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if limit > len(m.records) {
		limit = len(m.records)
	}
	if limit < 0 {
		limit = 0
	}
	recent := make([]domain.AuditRecord, 0, limit)
	for i := len(m.records) - 1; i >= len(m.records)-limit; i-- {
		recent = append(recent, m.records[i])
	}
	return recent, nil
}
