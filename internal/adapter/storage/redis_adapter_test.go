package storage

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"whatstock/internal/core/domain"
)

func getRedis(t *testing.T) *redis.Client {
	t.Helper()
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}

	client := redis.NewClient(&redis.Options{Addr: addr, DB: 15})
	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("Redis not available: %v", err)
	}
	t.Cleanup(func() { client.Close() })

	if err := client.Del(ctx, inventoryKey, membersKey, messageCountKey, auditKey).Err(); err != nil {
		t.Fatalf("clean keys: %v", err)
	}
	return client
}

func TestRedisInventory_Roundtrip(t *testing.T) {
	ctx := context.Background()
	inv := NewRedisInventory(getRedis(t))

	if err := inv.Set(ctx, "apple", 10); err != nil {
		t.Fatal(err)
	}
	if qty, err := inv.Get(ctx, "apple"); err != nil || qty != 10 {
		t.Fatalf("apple = %d, err = %v", qty, err)
	}
	if qty, err := inv.Get(ctx, "missing"); err != nil || qty != 0 {
		t.Fatalf("missing = %d, err = %v", qty, err)
	}

	inv.Set(ctx, "apple", 0)
	if entries, _ := inv.List(ctx); len(entries) != 0 {
		t.Errorf("entries = %v", entries)
	}
}

func TestRedisInventory_IncrementScript(t *testing.T) {
	ctx := context.Background()
	inv := NewRedisInventory(getRedis(t))

	if qty, err := inv.Increment(ctx, "apple", 5); err != nil || qty != 5 {
		t.Fatalf("qty = %d, err = %v", qty, err)
	}
	if qty, err := inv.Increment(ctx, "apple", -2); err != nil || qty != 3 {
		t.Fatalf("qty = %d, err = %v", qty, err)
	}

	// The script refuses to cross zero and reports what is available.
	_, err := inv.Increment(ctx, "apple", -100)
	var insufficient *domain.InsufficientStockError
	if !errors.As(err, &insufficient) {
		t.Fatalf("err = %v, want InsufficientStockError", err)
	}
	if insufficient.Available != 3 {
		t.Errorf("available = %d, want 3", insufficient.Available)
	}

	// Landing exactly on zero deletes the field.
	if qty, err := inv.Increment(ctx, "apple", -3); err != nil || qty != 0 {
		t.Fatalf("qty = %d, err = %v", qty, err)
	}
	if entries, _ := inv.List(ctx); len(entries) != 0 {
		t.Errorf("entries = %v", entries)
	}
}

func TestRedisInventory_ListSortedAndReset(t *testing.T) {
	ctx := context.Background()
	inv := NewRedisInventory(getRedis(t))

	inv.Set(ctx, "cherry", 1)
	inv.Set(ctx, "apple", 2)

	entries, err := inv.List(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 || entries[0].Item != "apple" || entries[1].Item != "cherry" {
		t.Errorf("entries = %v", entries)
	}

	if err := inv.Reset(ctx); err != nil {
		t.Fatal(err)
	}
	if entries, _ := inv.List(ctx); len(entries) != 0 {
		t.Errorf("entries after reset = %v", entries)
	}
}

func TestRedisMembers_Roundtrip(t *testing.T) {
	ctx := context.Background()
	members := NewRedisMembers(getRedis(t))

	if m, err := members.Get(ctx, "1555"); err != nil || m != nil {
		t.Fatalf("m = %v, err = %v", m, err)
	}

	joined := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	err := members.Put(ctx, domain.Member{
		PhoneID: "1555", DisplayName: "Alice", IsAdmin: true, JoinedAt: joined,
	})
	if err != nil {
		t.Fatal(err)
	}

	m, err := members.Get(ctx, "1555")
	if err != nil || m == nil {
		t.Fatalf("m = %v, err = %v", m, err)
	}
	if m.DisplayName != "Alice" || !m.IsAdmin || !m.JoinedAt.Equal(joined) {
		t.Errorf("m = %+v", m)
	}

	members.IncrementMessageCount(ctx, "1555")
	members.IncrementMessageCount(ctx, "1555")
	members.IncrementMessageCount(ctx, "nobody") // unknown id is a no-op
	m, _ = members.Get(ctx, "1555")
	if m.MessageCount != 2 {
		t.Errorf("count = %d, want 2", m.MessageCount)
	}

	members.Put(ctx, domain.Member{PhoneID: "1444", DisplayName: "Bob", JoinedAt: joined})
	list, err := members.List(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 || list[0].PhoneID != "1444" || list[1].PhoneID != "1555" {
		t.Errorf("list = %v", list)
	}

	members.Remove(ctx, "1555")
	if m, _ := members.Get(ctx, "1555"); m != nil {
		t.Error("member should be removed")
	}
}

func TestRedisAudit_RecentNewestFirst(t *testing.T) {
	ctx := context.Background()
	audit := NewRedisAudit(getRedis(t))

	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	for i, action := range []domain.Action{domain.ActionInitialize, domain.ActionAdd, domain.ActionSell} {
		err := audit.Append(ctx, domain.AuditRecord{
			ID:        string(rune('a' + i)),
			ActorID:   "1555",
			Action:    action,
			Item:      "apple",
			Quantity:  i + 1,
			Timestamp: base.Add(time.Duration(i) * time.Minute),
		})
		if err != nil {
			t.Fatal(err)
		}
	}

	records, err := audit.Recent(ctx, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 2 {
		t.Fatalf("records = %d, want 2", len(records))
	}
	if records[0].Action != domain.ActionSell || records[1].Action != domain.ActionAdd {
		t.Errorf("records = %v", records)
	}
}
