package domain

import "time"

type Action string

const (
	ActionAdd        Action = "add"
	ActionSell       Action = "sell"
	ActionInitialize Action = "initialize"
	ActionJoin       Action = "join"
	ActionLeave      Action = "leave"
	ActionBroadcast  Action = "broadcast"
	ActionReset      Action = "reset"
	ActionRemove     Action = "remove"
)

// AuditRecord describes one state-mutating action. Records are append-only
// and read back newest-first. Item and Quantity are zero-valued for actions
// that are not item-scoped (join, leave, broadcast, reset).
type AuditRecord struct {
	ID        string
	ActorID   string
	Action    Action
	Item      string
	Quantity  int
	Timestamp time.Time
}
