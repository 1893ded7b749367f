package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"whatstock/internal/core/domain"
)

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS inventory (
		item     TEXT NOT NULL PRIMARY KEY,
		quantity INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS members (
		phone_id      TEXT NOT NULL PRIMARY KEY,
		display_name  TEXT NOT NULL,
		is_admin      INTEGER NOT NULL DEFAULT 0,
		joined_at     TEXT NOT NULL,
		message_count INTEGER NOT NULL DEFAULT 0
	)`,
	`CREATE TABLE IF NOT EXISTS audit_log (
		id         TEXT NOT NULL PRIMARY KEY,
		actor_id   TEXT NOT NULL,
		action     TEXT NOT NULL,
		item       TEXT NOT NULL DEFAULT '',
		quantity   INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_audit_created ON audit_log (created_at)`,
}

// MigrateSQLite creates the bot's tables when missing.
func MigrateSQLite(ctx context.Context, db *sql.DB) error {
	for _, stmt := range sqliteSchema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}

// Timestamps are stored as RFC 3339 text so the schema stays portable across
// sqlite drivers.
func formatSQLiteTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseSQLiteTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// SQLiteInventory is the single-file relational backend. Same guarded
// decrement as the MySQL adapter, in sqlite dialect.
type SQLiteInventory struct {
	db *sql.DB
}

func NewSQLiteInventory(db *sql.DB) *SQLiteInventory {
	return &SQLiteInventory{db: db}
}

func (s *SQLiteInventory) Get(ctx context.Context, item string) (int, error) {
	var qty int
	err := s.db.QueryRowContext(ctx,
		`SELECT quantity FROM inventory WHERE item = ?`, item).Scan(&qty)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("query inventory: %w", err)
	}
	return qty, nil
}

func (s *SQLiteInventory) Set(ctx context.Context, item string, qty int) error {
	if qty <= 0 {
		return s.Delete(ctx, item)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO inventory (item, quantity) VALUES (?, ?)
		ON CONFLICT(item) DO UPDATE SET quantity = excluded.quantity`,
		item, qty)
	if err != nil {
		return fmt.Errorf("upsert inventory: %w", err)
	}
	return nil
}

func (s *SQLiteInventory) Increment(ctx context.Context, item string, delta int) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if delta >= 0 {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO inventory (item, quantity) VALUES (?, ?)
			ON CONFLICT(item) DO UPDATE SET quantity = quantity + excluded.quantity`,
			item, delta)
		if err != nil {
			return 0, fmt.Errorf("increment inventory: %w", err)
		}
	} else {
		result, err := tx.ExecContext(ctx, `
			UPDATE inventory
			SET quantity = quantity + ?
			WHERE item = ? AND quantity >= ?`,
			delta, item, -delta)
		if err != nil {
			return 0, fmt.Errorf("decrement inventory: %w", err)
		}
		rows, _ := result.RowsAffected()
		if rows == 0 {
			var available int
			err := tx.QueryRowContext(ctx,
				`SELECT quantity FROM inventory WHERE item = ?`, item).Scan(&available)
			if err != nil && !errors.Is(err, sql.ErrNoRows) {
				return 0, fmt.Errorf("query inventory: %w", err)
			}
			return 0, &domain.InsufficientStockError{Item: item, Available: available}
		}
	}

	var newQty int
	if err := tx.QueryRowContext(ctx,
		`SELECT quantity FROM inventory WHERE item = ?`, item).Scan(&newQty); err != nil {
		return 0, fmt.Errorf("query inventory: %w", err)
	}

	if newQty == 0 {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM inventory WHERE item = ? AND quantity = 0`, item); err != nil {
			return 0, fmt.Errorf("delete empty entry: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return newQty, nil
}

func (s *SQLiteInventory) Delete(ctx context.Context, item string) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM inventory WHERE item = ?`, item); err != nil {
		return fmt.Errorf("delete inventory: %w", err)
	}
	return nil
}

func (s *SQLiteInventory) List(ctx context.Context) ([]domain.InventoryEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT item, quantity FROM inventory ORDER BY item`)
	if err != nil {
		return nil, fmt.Errorf("list inventory: %w", err)
	}
	defer rows.Close()

	var entries []domain.InventoryEntry
	for rows.Next() {
		var e domain.InventoryEntry
		if err := rows.Scan(&e.Item, &e.Quantity); err != nil {
			return nil, fmt.Errorf("scan inventory: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (s *SQLiteInventory) Reset(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM inventory`); err != nil {
		return fmt.Errorf("reset inventory: %w", err)
	}
	return nil
}

// SQLiteMembers persists the membership table.
type SQLiteMembers struct {
	db *sql.DB
}

func NewSQLiteMembers(db *sql.DB) *SQLiteMembers {
	return &SQLiteMembers{db: db}
}

func (s *SQLiteMembers) Get(ctx context.Context, phoneID string) (*domain.Member, error) {
	var member domain.Member
	var joinedAt string
	err := s.db.QueryRowContext(ctx, `
		SELECT phone_id, display_name, is_admin, joined_at, message_count
		FROM members WHERE phone_id = ?`, phoneID).
		Scan(&member.PhoneID, &member.DisplayName, &member.IsAdmin,
			&joinedAt, &member.MessageCount)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query member: %w", err)
	}
	member.JoinedAt = parseSQLiteTime(joinedAt)
	return &member, nil
}

func (s *SQLiteMembers) Put(ctx context.Context, member domain.Member) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO members (phone_id, display_name, is_admin, joined_at, message_count)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(phone_id) DO UPDATE SET
			display_name = excluded.display_name,
			is_admin = excluded.is_admin,
			joined_at = excluded.joined_at,
			message_count = excluded.message_count`,
		member.PhoneID, member.DisplayName, member.IsAdmin,
		formatSQLiteTime(member.JoinedAt), member.MessageCount)
	if err != nil {
		return fmt.Errorf("upsert member: %w", err)
	}
	return nil
}

func (s *SQLiteMembers) Remove(ctx context.Context, phoneID string) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM members WHERE phone_id = ?`, phoneID); err != nil {
		return fmt.Errorf("delete member: %w", err)
	}
	return nil
}

func (s *SQLiteMembers) List(ctx context.Context) ([]domain.Member, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT phone_id, display_name, is_admin, joined_at, message_count
		FROM members ORDER BY phone_id`)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	defer rows.Close()

	var members []domain.Member
	for rows.Next() {
		var member domain.Member
		var joinedAt string
		if err := rows.Scan(&member.PhoneID, &member.DisplayName, &member.IsAdmin,
			&joinedAt, &member.MessageCount); err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		member.JoinedAt = parseSQLiteTime(joinedAt)
		members = append(members, member)
	}
	return members, rows.Err()
}

func (s *SQLiteMembers) IncrementMessageCount(ctx context.Context, phoneID string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE members SET message_count = message_count + 1
		WHERE phone_id = ?`, phoneID)
	if err != nil {
		return fmt.Errorf("bump message count: %w", err)
	}
	return nil
}

// SQLiteAudit persists the append-only action log.
type SQLiteAudit struct {
	db *sql.DB
}

func NewSQLiteAudit(db *sql.DB) *SQLiteAudit {
	return &SQLiteAudit{db: db}
}

func (s *SQLiteAudit) Append(ctx context.Context, rec domain.AuditRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_log (id, actor_id, action, item, quantity, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.ActorID, string(rec.Action), rec.Item, rec.Quantity,
		formatSQLiteTime(rec.Timestamp))
	if err != nil {
		return fmt.Errorf("insert audit record: %w", err)
	}
	return nil
}

func (s *SQLiteAudit) Recent(ctx context.Context, limit int) ([]domain.AuditRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, actor_id, action, item, quantity, created_at
		FROM audit_log ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query audit log: %w", err)
	}
	defer rows.Close()

	var records []domain.AuditRecord
	for rows.Next() {
		var rec domain.AuditRecord
		var action, createdAt string
		if err := rows.Scan(&rec.ID, &rec.ActorID, &action, &rec.Item,
			&rec.Quantity, &createdAt); err != nil {
			return nil, fmt.Errorf("scan audit record: %w", err)
		}
		rec.Action = domain.Action(action)
		rec.Timestamp = parseSQLiteTime(createdAt)
		records = append(records, rec)
	}
	return records, rows.Err()
}
