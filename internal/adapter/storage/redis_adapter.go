package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"whatstock/internal/core/domain"
)

const (
	inventoryKey    = "whatstock:inventory"
	membersKey      = "whatstock:members"
	messageCountKey = "whatstock:msgcount"
	auditKey        = "whatstock:audit"

	// Keep the audit list bounded; Recent only ever reads a small window.
	auditMaxLen = 1000
)

// incrementScript adjusts one hash field atomically. It refuses to go below
// zero (returns {0, current}) and deletes the field when the new quantity
// lands exactly on zero. Returns {1, new quantity} on success.
var incrementScript = redis.NewScript(`
local current = tonumber(redis.call('HGET', KEYS[1], ARGV[1])) or 0
local delta = tonumber(ARGV[2])
local next = current + delta

if next < 0 then
	return {0, current}
end

if next == 0 then
	redis.call('HDEL', KEYS[1], ARGV[1])
else
	redis.call('HSET', KEYS[1], ARGV[1], next)
end

return {1, next}
`)

// RedisInventory keeps quantities in a single hash; all mutations that need
// atomicity run as Lua scripts server-side.
type RedisInventory struct {
	client *redis.Client
}

func NewRedisInventory(client *redis.Client) *RedisInventory {
	return &RedisInventory{client: client}
}

func (r *RedisInventory) Get(ctx context.Context, item string) (int, error) {
	qty, err := r.client.HGet(ctx, inventoryKey, item).Int()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("hget inventory: %w", err)
	}
	return qty, nil
}

func (r *RedisInventory) Set(ctx context.Context, item string, qty int) error {
	if qty <= 0 {
		return r.Delete(ctx, item)
	}
	if err := r.client.HSet(ctx, inventoryKey, item, qty).Err(); err != nil {
		return fmt.Errorf("hset inventory: %w", err)
	}
	return nil
}

func (r *RedisInventory) Increment(ctx context.Context, item string, delta int) (int, error) {
	res, err := incrementScript.Run(ctx, r.client,
		[]string{inventoryKey}, item, delta).Int64Slice()
	if err != nil {
		return 0, fmt.Errorf("increment script: %w", err)
	}
	if len(res) != 2 {
		return 0, fmt.Errorf("increment script: unexpected reply %v", res)
	}
	if res[0] == 0 {
		return 0, &domain.InsufficientStockError{Item: item, Available: int(res[1])}
	}
	return int(res[1]), nil
}

func (r *RedisInventory) Delete(ctx context.Context, item string) error {
	if err := r.client.HDel(ctx, inventoryKey, item).Err(); err != nil {
		return fmt.Errorf("hdel inventory: %w", err)
	}
	return nil
}

func (r *RedisInventory) List(ctx context.Context) ([]domain.InventoryEntry, error) {
	fields, err := r.client.HGetAll(ctx, inventoryKey).Result()
	if err != nil {
		return nil, fmt.Errorf("hgetall inventory: %w", err)
	}

	entries := make([]domain.InventoryEntry, 0, len(fields))
	for item, raw := range fields {
		qty, err := strconv.Atoi(raw)
		if err != nil {
			return nil, fmt.Errorf("corrupt quantity for %q: %w", item, err)
		}
		entries = append(entries, domain.InventoryEntry{Item: item, Quantity: qty})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Item < entries[j].Item })
	return entries, nil
}

func (r *RedisInventory) Reset(ctx context.Context) error {
	if err := r.client.Del(ctx, inventoryKey).Err(); err != nil {
		return fmt.Errorf("del inventory: %w", err)
	}
	return nil
}

// redisMember is the stored JSON shape. The message counter lives in a
// separate hash so it can be bumped with HINCRBY instead of a read-modify-
// write on the JSON blob.
type redisMember struct {
	PhoneID     string    `json:"phone_id"`
	DisplayName string    `json:"display_name"`
	IsAdmin     bool      `json:"is_admin"`
	JoinedAt    time.Time `json:"joined_at"`
}

type RedisMembers struct {
	client *redis.Client
}

func NewRedisMembers(client *redis.Client) *RedisMembers {
	return &RedisMembers{client: client}
}

func (r *RedisMembers) Get(ctx context.Context, phoneID string) (*domain.Member, error) {
	raw, err := r.client.HGet(ctx, membersKey, phoneID).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("hget member: %w", err)
	}

	var stored redisMember
	if err := json.Unmarshal([]byte(raw), &stored); err != nil {
		return nil, fmt.Errorf("decode member: %w", err)
	}

	count, err := r.client.HGet(ctx, messageCountKey, phoneID).Int()
	if err != nil && err != redis.Nil {
		return nil, fmt.Errorf("hget message count: %w", err)
	}

	return &domain.Member{
		PhoneID:      stored.PhoneID,
		DisplayName:  stored.DisplayName,
		IsAdmin:      stored.IsAdmin,
		JoinedAt:     stored.JoinedAt,
		MessageCount: count,
	}, nil
}

func (r *RedisMembers) Put(ctx context.Context, member domain.Member) error {
	data, err := json.Marshal(redisMember{
		PhoneID:     member.PhoneID,
		DisplayName: member.DisplayName,
		IsAdmin:     member.IsAdmin,
		JoinedAt:    member.JoinedAt,
	})
	if err != nil {
		return fmt.Errorf("encode member: %w", err)
	}
	pipe := r.client.TxPipeline()
	pipe.HSet(ctx, membersKey, member.PhoneID, data)
	pipe.HSet(ctx, messageCountKey, member.PhoneID, member.MessageCount)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("hset member: %w", err)
	}
	return nil
}

func (r *RedisMembers) Remove(ctx context.Context, phoneID string) error {
	pipe := r.client.TxPipeline()
	pipe.HDel(ctx, membersKey, phoneID)
	pipe.HDel(ctx, messageCountKey, phoneID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("hdel member: %w", err)
	}
	return nil
}

func (r *RedisMembers) List(ctx context.Context) ([]domain.Member, error) {
	fields, err := r.client.HGetAll(ctx, membersKey).Result()
	if err != nil {
		return nil, fmt.Errorf("hgetall members: %w", err)
	}
	counts, err := r.client.HGetAll(ctx, messageCountKey).Result()
	if err != nil {
		return nil, fmt.Errorf("hgetall message counts: %w", err)
	}

	members := make([]domain.Member, 0, len(fields))
	for phoneID, raw := range fields {
		var stored redisMember
		if err := json.Unmarshal([]byte(raw), &stored); err != nil {
			return nil, fmt.Errorf("decode member %q: %w", phoneID, err)
		}
		count, _ := strconv.Atoi(counts[phoneID])
		members = append(members, domain.Member{
			PhoneID:      stored.PhoneID,
			DisplayName:  stored.DisplayName,
			IsAdmin:      stored.IsAdmin,
			JoinedAt:     stored.JoinedAt,
			MessageCount: count,
		})
	}
	sort.Slice(members, func(i, j int) bool { return members[i].PhoneID < members[j].PhoneID })
	return members, nil
}

func (r *RedisMembers) IncrementMessageCount(ctx context.Context, phoneID string) error {
	exists, err := r.client.HExists(ctx, membersKey, phoneID).Result()
	if err != nil {
		return fmt.Errorf("hexists member: %w", err)
	}
	if !exists {
		return nil
	}
	if err := r.client.HIncrBy(ctx, messageCountKey, phoneID, 1).Err(); err != nil {
		return fmt.Errorf("hincrby message count: %w", err)
	}
	return nil
}

// RedisAudit keeps the log in a capped list, newest first.
type RedisAudit struct {
	client *redis.Client
}

func NewRedisAudit(client *redis.Client) *RedisAudit {
	return &RedisAudit{client: client}
}

func (r *RedisAudit) Append(ctx context.Context, rec domain.AuditRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode audit record: %w", err)
	}
	pipe := r.client.TxPipeline()
	pipe.LPush(ctx, auditKey, data)
	pipe.LTrim(ctx, auditKey, 0, auditMaxLen-1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("lpush audit record: %w", err)
	}
	return nil
}

func (r *RedisAudit) Recent(ctx context.Context, limit int) ([]domain.AuditRecord, error) {
	if limit <= 0 {
		return nil, nil
	}
	raws, err := r.client.LRange(ctx, auditKey, 0, int64(limit)-1).Result()
	if err != nil {
		return nil, fmt.Errorf("lrange audit log: %w", err)
	}

	records := make([]domain.AuditRecord, 0, len(raws))
	for _, raw := range raws {
		var rec domain.AuditRecord
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			return nil, fmt.Errorf("decode audit record: %w", err)
		}
		records = append(records, rec)
	}
	return records, nil
}
