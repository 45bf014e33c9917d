package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	PaymentStateCreated          int32 = 0
	PaymentStateAwaitingCallback int32 = 1
	PaymentStateConfirmed        int32 = 10
	PaymentStateFailed           int32 = 20
)

type PaymentRequest struct {
	ID uint64

	// RequestID is the gateway CheckoutRequestID.
	RequestID         string
	MerchantRequestID string
	CallbackHash      string

	UserID      int64
	PhoneNumber string
	Amount      decimal.Decimal
	PlanCode    *string

	State int32

	ResultCode      *int32
	ResultDesc      *string
	ConfirmedAmount *decimal.Decimal
	ConfirmedPhone  *string
	ReceiptNumber   *string

	CreatedAt  time.Time
	ResolvedAt *time.Time
	UpdatedAt  time.Time
}

// Resolution is the single terminal write applied to an awaiting request.
type Resolution struct {
	State           int32
	ResultCode      int32
	ResultDesc      string
	ConfirmedAmount *decimal.Decimal
	ConfirmedPhone  *string
	ReceiptNumber   *string
	ResolvedAt      time.Time
}

func (p *PaymentRequest) Resolved() bool {
	return IsTerminalState(p.State)
}

func IsTerminalState(state int32) bool {
	return state == PaymentStateConfirmed || state == PaymentStateFailed
}

func PaymentStateName(state int32) string {
	switch state {
	case PaymentStateCreated:
		return "created"
	case PaymentStateAwaitingCallback:
		return "awaiting_callback"
	case PaymentStateConfirmed:
		return "confirmed"
	case PaymentStateFailed:
		return "failed"
	default:
		return "unknown"
	}
}
