package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/KipkuruiYegon/MPESA-Telegram-Bot/app/entity"
	"github.com/KipkuruiYegon/MPESA-Telegram-Bot/app/metrics"
	"github.com/KipkuruiYegon/MPESA-Telegram-Bot/app/provider"
	"github.com/KipkuruiYegon/MPESA-Telegram-Bot/app/repository"
	"github.com/sirupsen/logrus"
)

const (
	CallbackOutcomeProcessed = "processed"
	CallbackOutcomeDuplicate = "duplicate"
)

type CallbackInput struct {
	Provider     string
	CallbackHash string
	Payload      []byte
}

type CallbackOutcome struct {
	Outcome string
	Payment *entity.PaymentRequest
}

// HandleCallback applies a gateway result notification. Each call is
// independent: redeliveries and racing deliveries for the same request resolve
// it at most once, and only the delivery that resolved it notifies the user.
func (s *PaymentService) HandleCallback(ctx context.Context, input CallbackInput) (*CallbackOutcome, error) {
	start := time.Now()
	defer metrics.ObserveSince(metrics.CallbackDurationHistogram, start)

	gateway, err := s.providerReg.Get(input.Provider)
	if err != nil {
		if errors.Is(err, provider.ErrProviderNotSupported) {
			return nil, ErrProviderUnsupported
		}
		return nil, err
	}

	callbackHash := strings.TrimSpace(input.CallbackHash)
	result, err := gateway.ParseCallback(input.Payload)
	if err != nil {
		metrics.CallbackMalformedCounter.Inc()
		s.persistCallback(ctx, input, nil, entity.CallbackStatusRejected, err.Error())
		return nil, fmt.Errorf("%w: %v", ErrMalformedCallback, err)
	}

	logger := s.logger.WithFields(logrus.Fields{
		"request_id":  result.RequestID,
		"result_code": result.ResultCode,
	})

	payment, err := s.paymentRepo.FindByRequestID(ctx, result.RequestID)
	if err != nil {
		return nil, err
	}
	if payment == nil || payment.CallbackHash != callbackHash {
		metrics.CallbackUnknownCounter.Inc()
		logger.Warn("Callback for unknown transaction")
		s.persistCallback(ctx, input, nil, entity.CallbackStatusRejected, "unknown transaction")
		return nil, ErrUnknownTransaction
	}

	requestID := payment.RequestID
	if payment.Resolved() {
		return s.duplicate(ctx, input, payment, logger), nil
	}

	resolution := resolutionFromCallback(result, s.now())
	resolved, applied, err := s.resolve(ctx, payment, resolution, entity.EventProviderCallback, string(input.Payload))
	if err != nil {
		return nil, err
	}
	if !applied {
		return s.duplicate(ctx, input, resolved, logger), nil
	}

	metrics.CallbackProcessedCounter.Inc()
	s.persistCallback(ctx, input, &requestID, entity.CallbackStatusProcessed, "")
	logger.WithField("state", entity.PaymentStateName(resolved.State)).Info("callback_processed")

	return &CallbackOutcome{Outcome: CallbackOutcomeProcessed, Payment: resolved}, nil
}

func (s *PaymentService) duplicate(ctx context.Context, input CallbackInput, payment *entity.PaymentRequest, logger logrus.FieldLogger) *CallbackOutcome {
	metrics.CallbackDuplicateCounter.Inc()
	requestID := payment.RequestID
	s.persistCallback(ctx, input, &requestID, entity.CallbackStatusDuplicate, "")
	logger.Info("Duplicate callback ignored")
	return &CallbackOutcome{Outcome: CallbackOutcomeDuplicate, Payment: payment}
}

func resolutionFromCallback(result *provider.CallbackResult, now time.Time) entity.Resolution {
	resolution := entity.Resolution{
		State:      entity.PaymentStateFailed,
		ResultCode: result.ResultCode,
		ResultDesc: truncate(result.ResultDesc, maxResultDescLength),
		ResolvedAt: now,
	}
	if result.Succeeded() {
		resolution.State = entity.PaymentStateConfirmed
		resolution.ConfirmedAmount = result.Amount
		resolution.ConfirmedPhone = result.PhoneNumber
		resolution.ReceiptNumber = result.ReceiptNumber
	}
	return resolution
}

// resolve performs the single conditional write. When it wins, the hooks run
// after the write has returned; when it loses, the current row is returned.
func (s *PaymentService) resolve(
	ctx context.Context,
	payment *entity.PaymentRequest,
	resolution entity.Resolution,
	eventType string,
	payload string,
) (*entity.PaymentRequest, bool, error) {
	applied, err := s.paymentRepo.Resolve(ctx, payment.RequestID, resolution)
	if err != nil {
		if errors.Is(err, repository.ErrPaymentNotFound) {
			return nil, false, ErrUnknownTransaction
		}
		return nil, false, err
	}
	if !applied {
		current, err := s.paymentRepo.FindByRequestID(ctx, payment.RequestID)
		if err != nil {
			return nil, false, err
		}
		if current == nil {
			return nil, false, ErrUnknownTransaction
		}
		return current, false, nil
	}

	oldState := payment.State
	resolved := applyResolution(payment, resolution)

	var payloadPtr *string
	if payload != "" {
		payloadPtr = &payload
	}
	s.recordEvent(ctx, &entity.PaymentEvent{
		RequestID:   resolved.RequestID,
		EventType:   eventType,
		OldState:    &oldState,
		NewState:    resolved.State,
		PayloadJSON: payloadPtr,
		CreatedAt:   resolution.ResolvedAt,
	})

	if resolved.State == entity.PaymentStateConfirmed {
		metrics.ResolvedConfirmedCounter.Inc()
	} else {
		metrics.ResolvedFailedCounter.Inc()
	}

	s.afterResolve(ctx, resolved)
	return resolved, true, nil
}

func applyResolution(payment *entity.PaymentRequest, res entity.Resolution) *entity.PaymentRequest {
	resolved := *payment
	resolved.State = res.State
	resultCode := res.ResultCode
	resultDesc := res.ResultDesc
	resolvedAt := res.ResolvedAt
	resolved.ResultCode = &resultCode
	resolved.ResultDesc = &resultDesc
	resolved.ConfirmedAmount = res.ConfirmedAmount
	resolved.ConfirmedPhone = res.ConfirmedPhone
	resolved.ReceiptNumber = res.ReceiptNumber
	resolved.ResolvedAt = &resolvedAt
	resolved.UpdatedAt = resolvedAt
	return &resolved
}

// afterResolve never fails: the ledger write is authoritative whatever happens here.
func (s *PaymentService) afterResolve(ctx context.Context, payment *entity.PaymentRequest) {
	logger := s.logger.WithFields(logrus.Fields{
		"request_id": payment.RequestID,
		"user_id":    payment.UserID,
	})

	if s.hooks.Notifier != nil {
		if err := s.hooks.Notifier.Notify(ctx, payment.UserID, ResolutionMessage(payment)); err != nil {
			metrics.NotifyFailedCounter.Inc()
			logger.WithError(err).Warn("Failed to notify user about payment result")
		} else {
			metrics.NotifySuccessCounter.Inc()
		}
	}

	if payment.State == entity.PaymentStateConfirmed && s.hooks.Granter != nil {
		if err := s.hooks.Granter.GrantAccess(ctx, payment.UserID); err != nil {
			metrics.GrantFailedCounter.Inc()
			logger.WithError(err).Warn("Failed to grant channel access")
		} else {
			metrics.GrantSuccessCounter.Inc()
		}
	}

	if s.hooks.Sessions != nil {
		if _, err := s.hooks.Sessions.ResetIfRequest(ctx, payment.UserID, payment.RequestID); err != nil {
			logger.WithError(err).Warn("Failed to reset conversation state")
		}
	}

	if s.hooks.Publisher != nil {
		if err := s.hooks.Publisher.PublishPaymentResolved(ctx, payment); err != nil {
			metrics.EventPublishFailedCounter.Inc()
			logger.WithError(err).Warn("Failed to publish payment_resolved event")
		}
	}
}

// ResolutionMessage is the text sent to the payer once a request is resolved.
func ResolutionMessage(payment *entity.PaymentRequest) string {
	if payment.State == entity.PaymentStateConfirmed {
		amount := payment.Amount
		if payment.ConfirmedAmount != nil {
			amount = *payment.ConfirmedAmount
		}
		phone := payment.PhoneNumber
		if payment.ConfirmedPhone != nil {
			phone = *payment.ConfirmedPhone
		}
		msg := fmt.Sprintf("Payment of KES %s from %s confirmed.", amount.String(), phone)
		if payment.ReceiptNumber != nil {
			msg += " Receipt: " + *payment.ReceiptNumber + "."
		}
		return msg + " Thank you!"
	}

	reason := "unknown error"
	if payment.ResultDesc != nil && strings.TrimSpace(*payment.ResultDesc) != "" {
		reason = *payment.ResultDesc
	}
	return fmt.Sprintf("Payment of KES %s failed: %s", payment.Amount.String(), reason)
}

func (s *PaymentService) persistCallback(ctx context.Context, input CallbackInput, requestID *string, status int32, reason string) {
	record := &entity.PaymentCallback{
		RequestID:    requestID,
		Provider:     strings.ToLower(strings.TrimSpace(input.Provider)),
		CallbackHash: strings.TrimSpace(input.CallbackHash),
		PayloadJSON:  truncate(string(input.Payload), 65535),
		Status:       status,
		CreatedAt:    s.now(),
	}
	if reason = strings.TrimSpace(reason); reason != "" {
		trimmed := truncate(reason, maxResultDescLength)
		record.Error = &trimmed
	}
	if err := s.callbackRepo.Create(ctx, record); err != nil {
		s.logger.WithError(err).Warn("Failed to store provider callback")
	}
}
