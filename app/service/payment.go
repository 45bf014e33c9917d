package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/KipkuruiYegon/MPESA-Telegram-Bot/app/entity"
	"github.com/KipkuruiYegon/MPESA-Telegram-Bot/app/factory"
	"github.com/KipkuruiYegon/MPESA-Telegram-Bot/app/metrics"
	"github.com/KipkuruiYegon/MPESA-Telegram-Bot/app/provider"
	"github.com/KipkuruiYegon/MPESA-Telegram-Bot/app/repository"
	"github.com/KipkuruiYegon/MPESA-Telegram-Bot/config"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

const (
	defaultListLimit = int32(20)
	maxListLimit     = int32(100)
	defaultBatchSize = int32(100)
)

type paymentRepository interface {
	Create(ctx context.Context, payment *entity.PaymentRequest) error
	FindByRequestID(ctx context.Context, requestID string) (*entity.PaymentRequest, error)
	ListByUser(ctx context.Context, userID int64, limit int32) ([]*entity.PaymentRequest, error)
	Resolve(ctx context.Context, requestID string, res entity.Resolution) (bool, error)
	ListAwaitingOlderThan(ctx context.Context, cutoff time.Time, limit int32) ([]*entity.PaymentRequest, error)
	HasConfirmedForUser(ctx context.Context, userID int64) (bool, error)
}

type chatUserRepository interface {
	Upsert(ctx context.Context, user *entity.ChatUser) error
	FindByID(ctx context.Context, userID int64) (*entity.ChatUser, error)
	SetLastKnownSubscribed(ctx context.Context, userID int64, subscribed bool, now time.Time) error
}

type paymentEventRepository interface {
	Create(ctx context.Context, event *entity.PaymentEvent) error
}

type paymentCallbackRepository interface {
	Create(ctx context.Context, callback *entity.PaymentCallback) error
}

type Notifier interface {
	Notify(ctx context.Context, userID int64, text string) error
}

type AccessGranter interface {
	GrantAccess(ctx context.Context, userID int64) error
}

// SessionResetter returns the payer to idle, but only while the conversation
// is still waiting on the resolved request.
type SessionResetter interface {
	ResetIfRequest(ctx context.Context, userID int64, requestID string) (bool, error)
}

type EventPublisher interface {
	PublishPaymentResolved(ctx context.Context, payment *entity.PaymentRequest) error
}

// ResolutionHooks run once, after a request has been moved to a terminal state.
// Granter, Sessions and Publisher are optional.
type ResolutionHooks struct {
	Notifier  Notifier
	Granter   AccessGranter
	Sessions  SessionResetter
	Publisher EventPublisher
}

type InitiateInput struct {
	UserID      int64
	Username    string
	PhoneNumber string
	Amount      decimal.Decimal
	PlanCode    string
}

type PaymentService struct {
	paymentRepo  paymentRepository
	userRepo     chatUserRepository
	eventRepo    paymentEventRepository
	callbackRepo paymentCallbackRepository
	providerReg  *provider.Registry
	paymentsCfg  config.PaymentsConfig
	hooks        ResolutionHooks
	logger       logrus.FieldLogger
	now          func() time.Time
}

func NewPaymentService(
	paymentRepo paymentRepository,
	userRepo chatUserRepository,
	eventRepo paymentEventRepository,
	callbackRepo paymentCallbackRepository,
	providerReg *provider.Registry,
	paymentsCfg config.PaymentsConfig,
	hooks ResolutionHooks,
) *PaymentService {
	return &PaymentService{
		paymentRepo:  paymentRepo,
		userRepo:     userRepo,
		eventRepo:    eventRepo,
		callbackRepo: callbackRepo,
		providerReg:  providerReg,
		paymentsCfg:  paymentsCfg,
		hooks:        hooks,
		logger:       factory.NewModuleLogger("payment-service"),
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// Initiate validates the input, records the payer, asks the gateway to prompt
// them and stores the request once the gateway has assigned it a correlation
// id. No ledger row is written when any step before that fails.
func (s *PaymentService) Initiate(ctx context.Context, input InitiateInput) (*entity.PaymentRequest, error) {
	start := time.Now()
	defer metrics.ObserveSince(metrics.InitiateDurationHistogram, start)

	if input.UserID == 0 {
		metrics.InitiateValidationErrorCounter.Inc()
		return nil, fmt.Errorf("%w: user id is required", ErrValidation)
	}
	phone, err := NormalizePhoneNumber(input.PhoneNumber)
	if err != nil {
		metrics.InitiateValidationErrorCounter.Inc()
		return nil, err
	}
	if err := ValidateAmount(input.Amount); err != nil {
		metrics.InitiateValidationErrorCounter.Inc()
		return nil, err
	}

	gateway, err := s.providerReg.Get(provider.MpesaName)
	if err != nil {
		return nil, ErrProviderUnsupported
	}

	now := s.now()
	if err := s.userRepo.Upsert(ctx, &entity.ChatUser{
		UserID:    input.UserID,
		Username:  normalizeOptionalString(input.Username),
		CreatedAt: now,
		UpdatedAt: now,
	}); err != nil {
		metrics.InitiateStorageErrorCounter.Inc()
		return nil, err
	}

	callbackHash := uuid.NewString()
	output, err := gateway.InitiatePush(ctx, &provider.PushInput{
		UserID:       input.UserID,
		PhoneNumber:  phone,
		Amount:       input.Amount,
		CallbackHash: callbackHash,
	})
	if err != nil {
		return nil, classifyGatewayError(err)
	}

	payment := &entity.PaymentRequest{
		RequestID:         output.RequestID,
		MerchantRequestID: output.MerchantRequestID,
		CallbackHash:      callbackHash,
		UserID:            input.UserID,
		PhoneNumber:       phone,
		Amount:            input.Amount,
		PlanCode:          normalizeOptionalString(input.PlanCode),
		State:             entity.PaymentStateAwaitingCallback,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := s.paymentRepo.Create(ctx, payment); err != nil {
		metrics.InitiateStorageErrorCounter.Inc()
		if errors.Is(err, repository.ErrPaymentAlreadyExists) {
			return nil, fmt.Errorf("%w: duplicate correlation id %s", ErrGateway, output.RequestID)
		}
		return nil, err
	}

	created := entity.PaymentStateCreated
	s.recordEvent(ctx, &entity.PaymentEvent{
		RequestID: payment.RequestID,
		EventType: entity.EventPaymentCreated,
		OldState:  &created,
		NewState:  payment.State,
		CreatedAt: now,
	})

	metrics.InitiateSuccessCounter.Inc()
	s.logger.WithFields(logrus.Fields{
		"request_id": payment.RequestID,
		"user_id":    payment.UserID,
	}).Info("payment_initiated")

	return payment, nil
}

func (s *PaymentService) GetPayment(ctx context.Context, requestID string) (*entity.PaymentRequest, error) {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return nil, fmt.Errorf("%w: request id is required", ErrValidation)
	}

	payment, err := s.paymentRepo.FindByRequestID(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if payment == nil {
		return nil, ErrPaymentNotFound
	}
	return payment, nil
}

// GetPaymentForUser is GetPayment restricted to the owning user.
func (s *PaymentService) GetPaymentForUser(ctx context.Context, userID int64, requestID string) (*entity.PaymentRequest, error) {
	payment, err := s.GetPayment(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if payment.UserID != userID {
		return nil, ErrForbidden
	}
	return payment, nil
}

func (s *PaymentService) ListUserPayments(ctx context.Context, userID int64, limit int32) ([]*entity.PaymentRequest, error) {
	if userID == 0 {
		return nil, fmt.Errorf("%w: user id is required", ErrValidation)
	}
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	return s.paymentRepo.ListByUser(ctx, userID, limit)
}

func (s *PaymentService) HasConfirmedPayment(ctx context.Context, userID int64) (bool, error) {
	return s.paymentRepo.HasConfirmedForUser(ctx, userID)
}

func (s *PaymentService) TouchUser(ctx context.Context, userID int64, username string) error {
	now := s.now()
	return s.userRepo.Upsert(ctx, &entity.ChatUser{
		UserID:    userID,
		Username:  normalizeOptionalString(username),
		CreatedAt: now,
		UpdatedAt: now,
	})
}

// NormalizePhoneNumber accepts 07XXXXXXXX, 7XXXXXXXX, +2547XXXXXXXX and
// 2547XXXXXXXX and returns the gateway form 2547XXXXXXXX.
func NormalizePhoneNumber(raw string) (string, error) {
	phone := strings.TrimSpace(raw)
	phone = strings.NewReplacer(" ", "", "-", "").Replace(phone)
	phone = strings.TrimPrefix(phone, "+")
	if phone == "" {
		return "", fmt.Errorf("%w: phone number is required", ErrValidation)
	}
	for _, r := range phone {
		if r < '0' || r > '9' {
			return "", fmt.Errorf("%w: phone number must contain digits only", ErrValidation)
		}
	}

	switch {
	case len(phone) == 10 && strings.HasPrefix(phone, "0"):
		phone = "254" + phone[1:]
	case len(phone) == 9 && (strings.HasPrefix(phone, "7") || strings.HasPrefix(phone, "1")):
		phone = "254" + phone
	}

	if len(phone) < 10 || len(phone) > 15 {
		return "", fmt.Errorf("%w: phone number has an invalid length", ErrValidation)
	}
	return phone, nil
}

// ValidateAmount rejects non-positive and fractional amounts.
func ValidateAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return fmt.Errorf("%w: amount must be greater than zero", ErrValidation)
	}
	if !amount.Equal(amount.Truncate(0)) {
		return fmt.Errorf("%w: amount must be a whole number", ErrValidation)
	}
	return nil
}

func ParseAmount(raw string) (decimal.Decimal, error) {
	amount, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: amount must be a number", ErrValidation)
	}
	if err := ValidateAmount(amount); err != nil {
		return decimal.Zero, err
	}
	return amount, nil
}

func classifyGatewayError(err error) error {
	var authErr *provider.AuthError
	if errors.As(err, &authErr) {
		metrics.InitiateAuthErrorCounter.Inc()
		return fmt.Errorf("%w: %w", ErrAuth, err)
	}
	metrics.InitiateGatewayErrorCounter.Inc()
	return fmt.Errorf("%w: %w", ErrGateway, err)
}

func (s *PaymentService) recordEvent(ctx context.Context, event *entity.PaymentEvent) {
	if err := s.eventRepo.Create(ctx, event); err != nil {
		s.logger.WithError(err).WithField("request_id", event.RequestID).Warn("Failed to record payment event")
	}
}

func (s *PaymentService) batchSize() int32 {
	if s.paymentsCfg.JobBatchSize > 0 {
		return s.paymentsCfg.JobBatchSize
	}
	return defaultBatchSize
}

func normalizeOptionalString(v string) *string {
	trimmed := strings.TrimSpace(v)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

// maxResultDescLength matches the result_desc and error_message column widths.
const maxResultDescLength = 1024

func truncate(value string, max int) string {
	if len(value) <= max {
		return value
	}
	return value[:max]
}
