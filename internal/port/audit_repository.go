package port

import (
	"context"

	"whatstock/internal/core/domain"
)

type AuditRepository interface {
	// Append stores one record. The log is append-only.
	Append(ctx context.Context, rec domain.AuditRecord) error

	// Recent returns up to limit records, newest first.
	Recent(ctx context.Context, limit int) ([]domain.AuditRecord, error)
}
