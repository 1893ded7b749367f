package storage

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"whatstock/internal/core/domain"
)

func TestMemoryInventory_SetGetDelete(t *testing.T) {
	ctx := context.Background()
	inv := NewMemoryInventory()

	if err := inv.Set(ctx, "apple", 5); err != nil {
		t.Fatal(err)
	}
	if qty, _ := inv.Get(ctx, "apple"); qty != 5 {
		t.Errorf("apple = %d, want 5", qty)
	}
	if qty, _ := inv.Get(ctx, "missing"); qty != 0 {
		t.Errorf("missing = %d, want 0", qty)
	}

	// Set to zero or below deletes the entry.
	inv.Set(ctx, "apple", 0)
	if entries, _ := inv.List(ctx); len(entries) != 0 {
		t.Errorf("entries = %v, want empty", entries)
	}

	inv.Set(ctx, "apple", 3)
	inv.Delete(ctx, "apple")
	if qty, _ := inv.Get(ctx, "apple"); qty != 0 {
		t.Errorf("apple after delete = %d", qty)
	}
}

func TestMemoryInventory_Increment(t *testing.T) {
	ctx := context.Background()
	inv := NewMemoryInventory()

	// Positive delta on a missing item creates it.
	if qty, err := inv.Increment(ctx, "apple", 4); err != nil || qty != 4 {
		t.Fatalf("qty = %d, err = %v", qty, err)
	}
	if qty, err := inv.Increment(ctx, "apple", -1); err != nil || qty != 3 {
		t.Fatalf("qty = %d, err = %v", qty, err)
	}

	// Decrement below zero fails and mutates nothing.
	_, err := inv.Increment(ctx, "apple", -10)
	var insufficient *domain.InsufficientStockError
	if !errors.As(err, &insufficient) {
		t.Fatalf("err = %v, want InsufficientStockError", err)
	}
	if insufficient.Available != 3 {
		t.Errorf("available = %d, want 3", insufficient.Available)
	}
	if qty, _ := inv.Get(ctx, "apple"); qty != 3 {
		t.Errorf("apple = %d, want 3", qty)
	}

	// Decrement to exactly zero deletes the entry.
	if qty, err := inv.Increment(ctx, "apple", -3); err != nil || qty != 0 {
		t.Fatalf("qty = %d, err = %v", qty, err)
	}
	if entries, _ := inv.List(ctx); len(entries) != 0 {
		t.Errorf("entries = %v, want empty", entries)
	}
}

func TestMemoryInventory_ConcurrentIncrements(t *testing.T) {
	ctx := context.Background()
	inv := NewMemoryInventory()

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := inv.Increment(ctx, "apple", 1); err != nil {
				t.Error(err)
			}
		}()
	}
	wg.Wait()

	if qty, _ := inv.Get(ctx, "apple"); qty != 100 {
		t.Errorf("apple = %d, want 100", qty)
	}
}

func TestMemoryInventory_ListSortedAndReset(t *testing.T) {
	ctx := context.Background()
	inv := NewMemoryInventory()

	inv.Set(ctx, "cherry", 1)
	inv.Set(ctx, "apple", 2)
	inv.Set(ctx, "banana", 3)

	entries, _ := inv.List(ctx)
	if len(entries) != 3 || entries[0].Item != "apple" ||
		entries[1].Item != "banana" || entries[2].Item != "cherry" {
		t.Errorf("entries = %v", entries)
	}

	inv.Reset(ctx)
	if entries, _ := inv.List(ctx); len(entries) != 0 {
		t.Errorf("entries after reset = %v", entries)
	}
}

func TestMemoryMembers(t *testing.T) {
	ctx := context.Background()
	members := NewMemoryMembers()

	if m, _ := members.Get(ctx, "1555"); m != nil {
		t.Error("unknown member should be nil")
	}

	alice := domain.Member{PhoneID: "1555", DisplayName: "Alice", JoinedAt: time.Now()}
	members.Put(ctx, alice)
	members.Put(ctx, domain.Member{PhoneID: "1444", DisplayName: "Bob"})

	m, _ := members.Get(ctx, "1555")
	if m == nil || m.DisplayName != "Alice" {
		t.Fatalf("m = %+v", m)
	}

	members.IncrementMessageCount(ctx, "1555")
	members.IncrementMessageCount(ctx, "1555")
	members.IncrementMessageCount(ctx, "nobody") // no-op
	m, _ = members.Get(ctx, "1555")
	if m.MessageCount != 2 {
		t.Errorf("count = %d, want 2", m.MessageCount)
	}

	list, _ := members.List(ctx)
	if len(list) != 2 || list[0].PhoneID != "1444" || list[1].PhoneID != "1555" {
		t.Errorf("list = %v", list)
	}

	members.Remove(ctx, "1555")
	if m, _ := members.Get(ctx, "1555"); m != nil {
		t.Error("member should be removed")
	}
}

func TestMemoryAudit_RecentNewestFirst(t *testing.T) {
	ctx := context.Background()
	audit := NewMemoryAudit()

	for i, action := range []domain.Action{domain.ActionInitialize, domain.ActionAdd, domain.ActionSell} {
		audit.Append(ctx, domain.AuditRecord{
			ID:        string(rune('a' + i)),
			Action:    action,
			Timestamp: time.Now(),
		})
	}

	records, _ := audit.Recent(ctx, 2)
	if len(records) != 2 {
		t.Fatalf("records = %d, want 2", len(records))
	}
	if records[0].Action != domain.ActionSell || records[1].Action != domain.ActionAdd {
		t.Errorf("records = %v", records)
	}

	all, _ := audit.Recent(ctx, 100)
	if len(all) != 3 {
		t.Errorf("all = %d, want 3", len(all))
	}
}
