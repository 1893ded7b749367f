package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"whatstock/internal/core/domain"
)

var mysqlSchema = []string{
	`CREATE TABLE IF NOT EXISTS inventory (
		item     VARCHAR(128) NOT NULL PRIMARY KEY,
		quantity INT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS members (
		phone_id      VARCHAR(32) NOT NULL PRIMARY KEY,
		display_name  VARCHAR(255) NOT NULL,
		is_admin      BOOLEAN NOT NULL DEFAULT FALSE,
		joined_at     DATETIME NOT NULL,
		message_count INT NOT NULL DEFAULT 0
	)`,
	`CREATE TABLE IF NOT EXISTS audit_log (
		id         CHAR(36) NOT NULL PRIMARY KEY,
		actor_id   VARCHAR(32) NOT NULL,
		action     VARCHAR(16) NOT NULL,
		item       VARCHAR(128) NOT NULL DEFAULT '',
		quantity   INT NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL,
		INDEX idx_audit_created (created_at)
	)`,
}

// MigrateMySQL creates the bot's tables when missing.
func MigrateMySQL(ctx context.Context, db *sql.DB) error {
	for _, stmt := range mysqlSchema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}

// MySQLInventory persists quantities in a relational table. Decrements are
// guarded at the SQL layer (WHERE quantity >= ?) so concurrent sells on the
// same item serialize in the database rather than racing in the app.
type MySQLInventory struct {
	db *sql.DB
}

func NewMySQLInventory(db *sql.DB) *MySQLInventory {
	return &MySQLInventory{db: db}
}

func (m *MySQLInventory) Get(ctx context.Context, item string) (int, error) {
	var qty int
	err := m.db.QueryRowContext(ctx,
		`SELECT quantity FROM inventory WHERE item = ?`, item).Scan(&qty)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("query inventory: %w", err)
	}
	return qty, nil
}

func (m *MySQLInventory) Set(ctx context.Context, item string, qty int) error {
	if qty <= 0 {
		return m.Delete(ctx, item)
	}
	_, err := m.db.ExecContext(ctx, `
		INSERT INTO inventory (item, quantity) VALUES (?, ?)
		ON DUPLICATE KEY UPDATE quantity = ?`,
		item, qty, qty)
	if err != nil {
		return fmt.Errorf("upsert inventory: %w", err)
	}
	return nil
}

func (m *MySQLInventory) Increment(ctx context.Context, item string, delta int) (int, error) {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if delta >= 0 {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO inventory (item, quantity) VALUES (?, ?)
			ON DUPLICATE KEY UPDATE quantity = quantity + ?`,
			item, delta, delta)
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

func (m *MySQLInventory) Delete(ctx context.Context, item string) error {
	if _, err := m.db.ExecContext(ctx,
		`DELETE FROM inventory WHERE item = ?`, item); err != nil {
		return fmt.Errorf("delete inventory: %w", err)
	}
	return nil
}

func (m *MySQLInventory) List(ctx context.Context) ([]domain.InventoryEntry, error) {
	rows, err := m.db.QueryContext(ctx,
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

func (m *MySQLInventory) Reset(ctx context.Context) error {
	if _, err := m.db.ExecContext(ctx, `DELETE FROM inventory`); err != nil {
		return fmt.Errorf("reset inventory: %w", err)
	}
	return nil
}

// MySQLMembers persists the membership table.
type MySQLMembers struct {
	db *sql.DB
}

func NewMySQLMembers(db *sql.DB) *MySQLMembers {
	return &MySQLMembers{db: db}
}

func (m *MySQLMembers) Get(ctx context.Context, phoneID string) (*domain.Member, error) {
	var member domain.Member
	err := m.db.QueryRowContext(ctx, `
		SELECT phone_id, display_name, is_admin, joined_at, message_count
		FROM members WHERE phone_id = ?`, phoneID).
		Scan(&member.PhoneID, &member.DisplayName, &member.IsAdmin,
			&member.JoinedAt, &member.MessageCount)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query member: %w", err)
	}
	return &member, nil
}

func (m *MySQLMembers) Put(ctx context.Context, member domain.Member) error {
	_, err := m.db.ExecContext(ctx, `
		INSERT INTO members (phone_id, display_name, is_admin, joined_at, message_count)
		VALUES (?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			display_name = ?, is_admin = ?, joined_at = ?, message_count = ?`,
		member.PhoneID, member.DisplayName, member.IsAdmin, member.JoinedAt, member.MessageCount,
		member.DisplayName, member.IsAdmin, member.JoinedAt, member.MessageCount)
	if err != nil {
		return fmt.Errorf("upsert member: %w", err)
	}
	return nil
}

func (m *MySQLMembers) Remove(ctx context.Context, phoneID string) error {
	if _, err := m.db.ExecContext(ctx,
		`DELETE FROM members WHERE phone_id = ?`, phoneID); err != nil {
		return fmt.Errorf("delete member: %w", err)
	}
	return nil
}

func (m *MySQLMembers) List(ctx context.Context) ([]domain.Member, error) {
	rows, err := m.db.QueryContext(ctx, `
		SELECT phone_id, display_name, is_admin, joined_at, message_count
		FROM members ORDER BY phone_id`)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	defer rows.Close()

	var members []domain.Member
	for rows.Next() {
		var member domain.Member
		if err := rows.Scan(&member.PhoneID, &member.DisplayName, &member.IsAdmin,
			&member.JoinedAt, &member.MessageCount); err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		members = append(members, member)
	}
	return members, rows.Err()
}

func (m *MySQLMembers) IncrementMessageCount(ctx context.Context, phoneID string) error {
	_, err := m.db.ExecContext(ctx, `
		UPDATE members SET message_count = message_count + 1
		WHERE phone_id = ?`, phoneID)
	if err != nil {
		return fmt.Errorf("bump message count: %w", err)
	}
	return nil
}

// MySQLAudit persists the append-only action log.
type MySQLAudit struct {
	db *sql.DB
}

func NewMySQLAudit(db *sql.DB) *MySQLAudit {
	return &MySQLAudit{db: db}
}

func (m *MySQLAudit) Append(ctx context.Context, rec domain.AuditRecord) error {
	_, err := m.db.ExecContext(ctx, `
		INSERT INTO audit_log (id, actor_id, action, item, quantity, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.ActorID, string(rec.Action), rec.Item, rec.Quantity, rec.Timestamp)
	if err != nil {
		return fmt.Errorf("insert audit record: %w", err)
	}
	return nil
}

func (m *MySQLAudit) Recent(ctx context.Context, limit int) ([]domain.AuditRecord, error) {
	rows, err := m.db.QueryContext(ctx, `
		SELECT id, actor_id, action, item, quantity, created_at
		FROM audit_log ORDER BY created_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query audit log: %w", err)
	}
	defer rows.Close()

	var records []domain.AuditRecord
	for rows.Next() {
		var rec domain.AuditRecord
		var action string
		if err := rows.Scan(&rec.ID, &rec.ActorID, &action, &rec.Item,
			&rec.Quantity, &rec.Timestamp); err != nil {
			return nil, fmt.Errorf("scan audit record: %w", err)
		}
		rec.Action = domain.Action(action)
		records = append(records, rec)
	}
	return records, rows.Err()
}
