package provider

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

type PushInput struct {
	UserID       int64
	PhoneNumber  string
	Amount       decimal.Decimal
	CallbackHash string
	Reference    string
}

type PushOutput struct {
	RequestID           string
	MerchantRequestID   string
	CustomerMessage     string
	ProviderCallbackURL string
}

// CallbackResult is the gateway-neutral view of a payment outcome.
type CallbackResult struct {
	RequestID         string
	MerchantRequestID string
	ResultCode        int32
	ResultDesc        string

	Amount          *decimal.Decimal
	PhoneNumber     *string
	ReceiptNumber   *string
	TransactionDate *time.Time
}

func (r *CallbackResult) Succeeded() bool {
	return r.ResultCode == 0
}

// QueryResult is returned by QueryStatus. Pending is true while the customer has
// not yet answered the prompt.
type QueryResult struct {
	Pending    bool
	ResultCode int32
	ResultDesc string
}

type Gateway interface {
	Name() string
	InitiatePush(ctx context.Context, input *PushInput) (*PushOutput, error)
	ParseCallback(payload []byte) (*CallbackResult, error)
	QueryStatus(ctx context.Context, requestID string) (*QueryResult, error)
}

// AuthError is returned when the gateway refuses to issue or accept credentials.
type AuthError struct {
	StatusCode int
	Body       string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("gateway authentication failed: status=%d body=%s", e.StatusCode, e.Body)
}

// GatewayError is a rejected or unusable gateway response.
type GatewayError struct {
	StatusCode   int
	ResponseCode string
	Message      string
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("gateway request failed: status=%d code=%s message=%s", e.StatusCode, e.ResponseCode, e.Message)
}

// MalformedCallbackError marks a callback body that cannot be interpreted.
type MalformedCallbackError struct {
	Reason string
}

func (e *MalformedCallbackError) Error() string {
	return "malformed callback: " + e.Reason
}
