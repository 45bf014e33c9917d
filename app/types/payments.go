package types

import (
	"errors"
	"io"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
)

const (
	DefaultListLimit = int32(20)
	MaxListLimit     = int32(100)
)

type Payment struct {
	RequestId         string  `json:"request_id"`
	MerchantRequestId string  `json:"merchant_request_id,omitempty"`
	UserId            int64   `json:"user_id"`
	PhoneNumber       string  `json:"phone_number"`
	Amount            string  `json:"amount"`
	PlanCode          string  `json:"plan_code,omitempty"`
	State             int32   `json:"state"`
	StateName         string  `json:"state_name"`
	ResultCode        *int32  `json:"result_code,omitempty"`
	ResultDesc        string  `json:"result_desc,omitempty"`
	ConfirmedAmount   string  `json:"confirmed_amount,omitempty"`
	ConfirmedPhone    string  `json:"confirmed_phone,omitempty"`
	ReceiptNumber     string  `json:"receipt_number,omitempty"`
	CreatedAt         string  `json:"created_at"`
	ResolvedAt        *string `json:"resolved_at,omitempty"`
	UpdatedAt         string  `json:"updated_at"`
}

type PaymentEnvelopeResponse struct {
	Payment *Payment `json:"payment"`
}

type ListPaymentsResponse struct {
	Payments []*Payment `json:"payments"`
}

type HealthResponse struct {
	Status string `json:"status"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

// ProviderCallbackAck is the acknowledgement body the gateway expects.
type ProviderCallbackAck struct {
	ResultCode int    `json:"ResultCode"`
	ResultDesc string `json:"ResultDesc"`
}

func AcceptedAck() *ProviderCallbackAck {
	return &ProviderCallbackAck{ResultCode: 0, ResultDesc: "Accepted"}
}

type GetPaymentRequest struct {
	RequestId string
}

func NewGetPaymentRequestFromContext(ctx echo.Context) (*GetPaymentRequest, error) {
	return &GetPaymentRequest{RequestId: strings.TrimSpace(ctx.Param("requestId"))}, nil
}

func (r *GetPaymentRequest) Validate() error {
	if r.RequestId == "" {
		return errors.New("request id is required")
	}
	return nil
}

type ListPaymentsRequest struct {
	UserId int64
	Limit  int32
}

func NewListPaymentsRequestFromContext(ctx echo.Context) (*ListPaymentsRequest, error) {
	req := &ListPaymentsRequest{Limit: DefaultListLimit}

	if userRaw := strings.TrimSpace(ctx.QueryParam("user_id")); userRaw != "" {
		userID, err := strconv.ParseInt(userRaw, 10, 64)
		if err != nil {
			return nil, errors.New("user_id must be a number")
		}
		req.UserId = userID
	}

	if limitRaw := strings.TrimSpace(ctx.QueryParam("limit")); limitRaw != "" {
		limit, err := strconv.ParseInt(limitRaw, 10, 32)
		if err != nil {
			return nil, errors.New("limit must be a number")
		}
		req.Limit = int32(limit)
	}

	return req, nil
}

func (r *ListPaymentsRequest) Validate() error {
	if r.UserId == 0 {
		return errors.New("user_id is required")
	}
	if r.Limit == 0 {
		r.Limit = DefaultListLimit
	}
	if r.Limit < 0 || r.Limit > MaxListLimit {
		return errors.New("limit must be between 1 and 100")
	}
	return nil
}

type HandleProviderCallbackRequest struct {
	RequestId    string
	Provider     string
	CallbackHash string
	Payload      []byte
}

func NewHandleProviderCallbackRequestFromContext(ctx echo.Context) (*HandleProviderCallbackRequest, error) {
	rawBody, err := io.ReadAll(ctx.Request().Body)
	if err != nil {
		return nil, err
	}

	return &HandleProviderCallbackRequest{
		RequestId:    strings.TrimSpace(ctx.Request().Header.Get(echo.HeaderXRequestID)),
		Provider:     strings.TrimSpace(strings.ToLower(ctx.Param("provider"))),
		CallbackHash: strings.TrimSpace(ctx.Param("hash")),
		Payload:      rawBody,
	}, nil
}

func (r *HandleProviderCallbackRequest) Validate() error {
	if r.Provider == "" {
		return errors.New("provider is required")
	}
	if r.CallbackHash == "" {
		return errors.New("callback hash is required")
	}
	if len(strings.TrimSpace(string(r.Payload))) == 0 {
		return errors.New("payload is required")
	}
	return nil
}
