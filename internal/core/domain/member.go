package domain

import "time"

// Member is a participant who has joined the tracked group. PhoneID is the
// stable identifier assigned by the messaging platform.
type Member struct {
	PhoneID      string
	DisplayName  string
	IsAdmin      bool
	JoinedAt     time.Time
	MessageCount int
}
