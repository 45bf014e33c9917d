package entity

import "time"

type ChatUser struct {
	UserID   int64
	Username *string

	// LastKnownSubscribed is advisory. Gating always asks the chat platform.
	LastKnownSubscribed bool

	CreatedAt time.Time
	UpdatedAt time.Time
}
