package types

import (
	"bytes"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func TestNewListPaymentsRequestFromContextAndValidate(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest("GET", "/payments?user_id=42&limit=5", nil)
	rec := httptest.NewRecorder()
	ctx := e.NewContext(req, rec)

	parsed, err := NewListPaymentsRequestFromContext(ctx)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if parsed.UserId != 42 || parsed.Limit != 5 {
		t.Fatalf("unexpected parse: %+v", parsed)
	}
	if err := parsed.Validate(); err != nil {
		t.Fatalf("expected valid list request, got %v", err)
	}
}

func TestListPaymentsValidateDefaultsAndBounds(t *testing.T) {
	req := &ListPaymentsRequest{UserId: 42}
	if err := req.Validate(); err != nil {
		t.Fatalf("expected valid request, got %v", err)
	}
	if req.Limit != DefaultListLimit {
		t.Fatalf("expected default limit, got %d", req.Limit)
	}

	req = &ListPaymentsRequest{UserId: 42, Limit: 101}
	if err := req.Validate(); err == nil {
		t.Fatal("expected limit validation error")
	}

	req = &ListPaymentsRequest{Limit: 10}
	if err := req.Validate(); err == nil {
		t.Fatal("expected user_id validation error")
	}
}

func TestNewListPaymentsRequestRejectsBadUserID(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest("GET", "/payments?user_id=abc", nil)
	ctx := e.NewContext(req, httptest.NewRecorder())

	if _, err := NewListPaymentsRequestFromContext(ctx); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestGetPaymentRequestFromContext(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest("GET", "/payments/ws_CO_1", nil)
	ctx := e.NewContext(req, httptest.NewRecorder())
	ctx.SetParamNames("requestId")
	ctx.SetParamValues(" ws_CO_1 ")

	parsed, err := NewGetPaymentRequestFromContext(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if parsed.RequestId != "ws_CO_1" {
		t.Fatalf("expected trimmed request id, got %q", parsed.RequestId)
	}
	if err := (&GetPaymentRequest{}).Validate(); err == nil {
		t.Fatal("expected request id validation error")
	}
}

func TestNewHandleProviderCallbackRequestFromContext(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest("POST", "/webhooks/providers/MPESA/hash-1", bytes.NewBufferString(`{"Body":{}}`))
	req.Header.Set(echo.HeaderXRequestID, "req-callback-1")
	ctx := e.NewContext(req, httptest.NewRecorder())
	ctx.SetParamNames("provider", "hash")
	ctx.SetParamValues("MPESA", "hash-1")

	parsed, err := NewHandleProviderCallbackRequestFromContext(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if parsed.Provider != "mpesa" || parsed.CallbackHash != "hash-1" || parsed.RequestId != "req-callback-1" {
		t.Fatalf("unexpected parse: %+v", parsed)
	}
	if string(parsed.Payload) != `{"Body":{}}` {
		t.Fatalf("unexpected payload %q", parsed.Payload)
	}
	if err := parsed.Validate(); err != nil {
		t.Fatalf("expected valid request, got %v", err)
	}

	parsed.Payload = []byte("  ")
	if err := parsed.Validate(); err == nil {
		t.Fatal("expected payload validation error")
	}
}
