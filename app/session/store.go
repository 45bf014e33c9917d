package session

import (
	"context"
	"strings"
)

type State string

const (
	StateIdle                  State = "idle"
	StateAwaitingPlanSelection State = "awaiting_plan_selection"
	StateAwaitingPhoneNumber   State = "awaiting_phone_number"
	StateAwaitingPaymentResult State = "awaiting_payment_result"
)

// Session is the per-user conversation state of the bot.
type Session struct {
	State     State  `json:"state"`
	PlanCode  string `json:"plan_code,omitempty"`
	Amount    string `json:"amount,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

func Idle() Session {
	return Session{State: StateIdle}
}

type Store interface {
	// Get returns Idle when nothing is stored for the user.
	Get(ctx context.Context, userID int64) (Session, error)
	Save(ctx context.Context, userID int64, s Session) error
	Reset(ctx context.Context, userID int64) error
	// ResetIfRequest clears the session only while it still tracks requestID,
	// and reports whether it did.
	ResetIfRequest(ctx context.Context, userID int64, requestID string) (bool, error)
}

func normalize(s Session) Session {
	if strings.TrimSpace(string(s.State)) == "" {
		s.State = StateIdle
	}
	return s
}
