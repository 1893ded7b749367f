package port

import (
	"context"

	"whatstock/internal/core/domain"
)

type MemberRepository interface {
	// Get returns the member with the given phone id, nil when unknown.
	Get(ctx context.Context, phoneID string) (*domain.Member, error)

	// Put inserts or replaces a member record.
	Put(ctx context.Context, m domain.Member) error

	// Remove deletes a member. Removing an unknown id is a no-op.
	Remove(ctx context.Context, phoneID string) error

	// List returns all members sorted by phone id.
	List(ctx context.Context) ([]domain.Member, error)

	// IncrementMessageCount bumps a member's inbound message counter.
	// Unknown ids are ignored.
	IncrementMessageCount(ctx context.Context, phoneID string) error
}
