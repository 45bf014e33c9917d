package entity

import "time"

// Event types written to the payment_events trail.
const (
	EventPaymentCreated    = "payment_created"
	EventProviderCallback  = "provider_callback"
	EventPaymentReconciled = "payment_reconciled"
	EventPaymentExpired    = "payment_expired"
)

const (
	CallbackStatusProcessed int32 = 10
	CallbackStatusDuplicate int32 = 11
	CallbackStatusRejected  int32 = 20
)

// PaymentEvent records one state change of a payment request.
type PaymentEvent struct {
	ID          uint64
	RequestID   string
	EventType   string
	OldState    *int32
	NewState    int32
	PayloadJSON *string
	CreatedAt   time.Time
}

// PaymentCallback stores every gateway notification as received, including
// rejected ones that never matched a request.
type PaymentCallback struct {
	ID           uint64
	RequestID    *string
	Provider     string
	CallbackHash string
	PayloadJSON  string
	Status       int32
	Error        *string
	CreatedAt    time.Time
}
