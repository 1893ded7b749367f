package port

import "context"

type Notifier interface {
	// Send delivers one text message to a recipient. Delivery is
	// best-effort: callers invoke it only after state changes are
	// committed, and a failure never rolls anything back.
	Send(ctx context.Context, recipientID, text string) error
}
