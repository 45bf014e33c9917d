package provider

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	MpesaName = "mpesa"

	stkPushPath  = "/mpesa/stkpush/v1/processrequest"
	stkQueryPath = "/mpesa/stkpushquery/v1/query"

	mpesaTimestampLayout = "20060102150405"
	// Returned by the query endpoint while the customer has not answered.
	mpesaStillProcessingCode = "500.001.1001"
)

var eastAfricaTime = time.FixedZone("EAT", 3*60*60)

type MpesaConfig struct {
	BaseURL                 string
	ShortCode               string
	PassKey                 string
	TransactionType         string
	AccountReference        string
	TransactionDesc         string
	ProviderCallbackBaseURL string
	HTTPTimeout             time.Duration
}

type tokenSource interface {
	Token(ctx context.Context) (string, error)
	Invalidate()
}

type MpesaProvider struct {
	cfg    MpesaConfig
	tokens tokenSource
	client *http.Client
	now    func() time.Time
}

func NewMpesaProvider(cfg MpesaConfig, tokens tokenSource) *MpesaProvider {
	timeout := cfg.HTTPTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	if strings.TrimSpace(cfg.TransactionType) == "" {
		cfg.TransactionType = "CustomerPayBillOnline"
	}
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")

	return &MpesaProvider{
		cfg:    cfg,
		tokens: tokens,
		client: &http.Client{Timeout: timeout},
		now:    time.Now,
	}
}

func (p *MpesaProvider) Name() string {
	return MpesaName
}

func (p *MpesaProvider) InitiatePush(ctx context.Context, input *PushInput) (*PushOutput, error) {
	callbackURL := joinCallbackURL(p.cfg.ProviderCallbackBaseURL, input.CallbackHash)
	if callbackURL == "" {
		return nil, errors.New("provider callback base url is not configured")
	}

	timestamp := p.timestamp()
	reference := strings.TrimSpace(input.Reference)
	if reference == "" {
		reference = p.cfg.AccountReference
	}

	body := map[string]interface{}{
		"BusinessShortCode": p.cfg.ShortCode,
		"Password":          p.password(timestamp),
		"Timestamp":         timestamp,
		"TransactionType":   p.cfg.TransactionType,
		"Amount":            input.Amount.IntPart(),
		"PartyA":            input.PhoneNumber,
		"PartyB":            p.cfg.ShortCode,
		"PhoneNumber":       input.PhoneNumber,
		"CallBackURL":       callbackURL,
		"AccountReference":  reference,
		"TransactionDesc":   p.cfg.TransactionDesc,
	}

	status, respBody, err := p.postJSON(ctx, stkPushPath, body)
	if err != nil {
		return nil, err
	}

	var payload struct {
		MerchantRequestID   string `json:"MerchantRequestID"`
		CheckoutRequestID   string `json:"CheckoutRequestID"`
		ResponseCode        string `json:"ResponseCode"`
		ResponseDescription string `json:"ResponseDescription"`
		CustomerMessage     string `json:"CustomerMessage"`
		ErrorCode           string `json:"errorCode"`
		ErrorMessage        string `json:"errorMessage"`
	}
	if err := json.Unmarshal(respBody, &payload); err != nil {
		return nil, &GatewayError{StatusCode: status, Message: "unreadable response: " + truncate(string(respBody))}
	}

	if status < 200 || status >= 300 || payload.ResponseCode != "0" || strings.TrimSpace(payload.CheckoutRequestID) == "" {
		code := payload.ResponseCode
		message := payload.ResponseDescription
		if payload.ErrorCode != "" {
			code = payload.ErrorCode
			message = payload.ErrorMessage
		}
		return nil, &GatewayError{StatusCode: status, ResponseCode: code, Message: message}
	}

	return &PushOutput{
		RequestID:           strings.TrimSpace(payload.CheckoutRequestID),
		MerchantRequestID:   strings.TrimSpace(payload.MerchantRequestID),
		CustomerMessage:     payload.CustomerMessage,
		ProviderCallbackURL: callbackURL,
	}, nil
}

func (p *MpesaProvider) QueryStatus(ctx context.Context, requestID string) (*QueryResult, error) {
	timestamp := p.timestamp()
	body := map[string]interface{}{
		"BusinessShortCode": p.cfg.ShortCode,
		"Password":          p.password(timestamp),
		"Timestamp":         timestamp,
		"CheckoutRequestID": requestID,
	}

	status, respBody, err := p.postJSON(ctx, stkQueryPath, body)
	if err != nil {
		return nil, err
	}

	var payload struct {
		ResponseCode string          `json:"ResponseCode"`
		ResultCode   json.RawMessage `json:"ResultCode"`
		ResultDesc   string          `json:"ResultDesc"`
		ErrorCode    string          `json:"errorCode"`
		ErrorMessage string          `json:"errorMessage"`
	}
	if err := json.Unmarshal(respBody, &payload); err != nil {
		return nil, &GatewayError{StatusCode: status, Message: "unreadable response: " + truncate(string(respBody))}
	}

	if payload.ErrorCode == mpesaStillProcessingCode {
		return &QueryResult{Pending: true, ResultDesc: payload.ErrorMessage}, nil
	}
	if status < 200 || status >= 300 || payload.ResponseCode != "0" {
		code := payload.ResponseCode
		message := payload.ResultDesc
		if payload.ErrorCode != "" {
			code = payload.ErrorCode
			message = payload.ErrorMessage
		}
		return nil, &GatewayError{StatusCode: status, ResponseCode: code, Message: message}
	}

	resultCode, err := parseResultCode(payload.ResultCode)
	if err != nil {
		return nil, &GatewayError{StatusCode: status, ResponseCode: payload.ResponseCode, Message: err.Error()}
	}

	return &QueryResult{ResultCode: resultCode, ResultDesc: payload.ResultDesc}, nil
}

type mpesaCallbackItem struct {
	Name  string          `json:"Name"`
	Value json.RawMessage `json:"Value"`
}

type mpesaCallbackEnvelope struct {
	Body *struct {
		StkCallback *struct {
			MerchantRequestID string          `json:"MerchantRequestID"`
			CheckoutRequestID string          `json:"CheckoutRequestID"`
			ResultCode        json.RawMessage `json:"ResultCode"`
			ResultDesc        string          `json:"ResultDesc"`
			CallbackMetadata  *struct {
				Item []mpesaCallbackItem `json:"Item"`
			} `json:"CallbackMetadata"`
		} `json:"stkCallback"`
	} `json:"Body"`
}

func (p *MpesaProvider) ParseCallback(payload []byte) (*CallbackResult, error) {
	var envelope mpesaCallbackEnvelope
	if err := json.Unmarshal(payload, &envelope); err != nil {
		return nil, &MalformedCallbackError{Reason: "invalid json"}
	}
	if envelope.Body == nil || envelope.Body.StkCallback == nil {
		return nil, &MalformedCallbackError{Reason: "missing Body.stkCallback"}
	}

	cb := envelope.Body.StkCallback
	requestID := strings.TrimSpace(cb.CheckoutRequestID)
	if requestID == "" {
		return nil, &MalformedCallbackError{Reason: "missing CheckoutRequestID"}
	}
	resultCode, err := parseResultCode(cb.ResultCode)
	if err != nil {
		return nil, &MalformedCallbackError{Reason: err.Error()}
	}

	result := &CallbackResult{
		RequestID:         requestID,
		MerchantRequestID: strings.TrimSpace(cb.MerchantRequestID),
		ResultCode:        resultCode,
		ResultDesc:        cb.ResultDesc,
	}
	if !result.Succeeded() {
		return result, nil
	}

	if cb.CallbackMetadata == nil {
		return nil, &MalformedCallbackError{Reason: "missing CallbackMetadata"}
	}
	items := make(map[string]json.RawMessage, len(cb.CallbackMetadata.Item))
	for _, item := range cb.CallbackMetadata.Item {
		items[item.Name] = item.Value
	}

	amountRaw, ok := items["Amount"]
	if !ok {
		return nil, &MalformedCallbackError{Reason: "missing Amount"}
	}
	amount, err := decimal.NewFromString(rawScalar(amountRaw))
	if err != nil {
		return nil, &MalformedCallbackError{Reason: "invalid Amount"}
	}
	result.Amount = &amount

	phoneRaw, ok := items["PhoneNumber"]
	if !ok || rawScalar(phoneRaw) == "" {
		return nil, &MalformedCallbackError{Reason: "missing PhoneNumber"}
	}
	phone := rawScalar(phoneRaw)
	result.PhoneNumber = &phone

	if receiptRaw, ok := items["MpesaReceiptNumber"]; ok {
		if receipt := rawScalar(receiptRaw); receipt != "" {
			result.ReceiptNumber = &receipt
		}
	}
	if dateRaw, ok := items["TransactionDate"]; ok {
		if ts, err := time.ParseInLocation(mpesaTimestampLayout, rawScalar(dateRaw), eastAfricaTime); err == nil {
			result.TransactionDate = &ts
		}
	}

	return result, nil
}

func (p *MpesaProvider) timestamp() string {
	return p.now().In(eastAfricaTime).Format(mpesaTimestampLayout)
}

func (p *MpesaProvider) password(timestamp string) string {
	return base64.StdEncoding.EncodeToString([]byte(p.cfg.ShortCode + p.cfg.PassKey + timestamp))
}

func (p *MpesaProvider) postJSON(ctx context.Context, path string, body interface{}) (int, []byte, error) {
	encoded, err := json.Marshal(body)
	if err != nil {
		return 0, nil, err
	}

	token, err := p.tokens.Token(ctx)
	if err != nil {
		return 0, nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.BaseURL+path, bytes.NewReader(encoded))
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, err
	}
	if resp.StatusCode == http.StatusUnauthorized {
		p.tokens.Invalidate()
		return 0, nil, &AuthError{StatusCode: resp.StatusCode, Body: truncate(string(respBody))}
	}

	return resp.StatusCode, respBody, nil
}

func joinCallbackURL(baseURL, callbackHash string) string {
	baseURL = strings.TrimSpace(strings.TrimRight(baseURL, "/"))
	callbackHash = strings.TrimSpace(callbackHash)
	if baseURL == "" || callbackHash == "" {
		return ""
	}
	return baseURL + "/" + callbackHash
}

// rawScalar renders a JSON number or string without quotes.
func rawScalar(raw json.RawMessage) string {
	value := strings.TrimSpace(string(raw))
	if value == "" || value == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	return value
}

func parseResultCode(raw json.RawMessage) (int32, error) {
	value := rawScalar(raw)
	if value == "" {
		return 0, errors.New("missing ResultCode")
	}
	code, err := strconv.ParseInt(value, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid ResultCode %q", value)
	}
	return int32(code), nil
}

func truncate(s string) string {
	if len(s) > 512 {
		return s[:512]
	}
	return s
}
