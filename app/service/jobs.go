package service

import (
	"context"

	"github.com/KipkuruiYegon/MPESA-Telegram-Bot/app/entity"
	"github.com/KipkuruiYegon/MPESA-Telegram-Bot/app/provider"
	"github.com/sirupsen/logrus"
)

const expiredResultCode int32 = -1

// RunReconcileBatch asks the gateway about requests that have waited longer
// than ReconcileStaleAfter and applies any definite answer the same way a
// callback would.
func (s *PaymentService) RunReconcileBatch(ctx context.Context) error {
	now := s.now()
	cutoff := now.Add(-s.paymentsCfg.ReconcileStaleAfter)
	items, err := s.paymentRepo.ListAwaitingOlderThan(ctx, cutoff, s.batchSize())
	if err != nil {
		return err
	}

	gateway, err := s.providerReg.Get(provider.MpesaName)
	if err != nil {
		return ErrProviderUnsupported
	}

	var firstErr error
	for _, payment := range items {
		if payment == nil || payment.Resolved() {
			continue
		}

		status, err := gateway.QueryStatus(ctx, payment.RequestID)
		if err != nil {
			firstErr = keepFirstErr(firstErr, err)
			continue
		}
		if status.Pending {
			continue
		}

		resolution := entity.Resolution{
			State:      entity.PaymentStateFailed,
			ResultCode: status.ResultCode,
			ResultDesc: truncate(status.ResultDesc, maxResultDescLength),
			ResolvedAt: s.now(),
		}
		if status.ResultCode == 0 {
			resolution.State = entity.PaymentStateConfirmed
		}

		if _, applied, err := s.resolve(ctx, payment, resolution, entity.EventPaymentReconciled, ""); err != nil {
			firstErr = keepFirstErr(firstErr, err)
		} else if applied {
			s.logger.WithFields(logrus.Fields{
				"request_id": payment.RequestID,
				"state":      entity.PaymentStateName(resolution.State),
			}).Info("payment_reconciled")
		}
	}

	return firstErr
}

// RunExpirePendingBatch fails requests that are still awaiting a result after
// PendingTimeout. The payer is told, and the conversation returns to idle.
func (s *PaymentService) RunExpirePendingBatch(ctx context.Context) error {
	now := s.now()
	cutoff := now.Add(-s.paymentsCfg.PendingTimeout)
	items, err := s.paymentRepo.ListAwaitingOlderThan(ctx, cutoff, s.batchSize())
	if err != nil {
		return err
	}

	var firstErr error
	for _, payment := range items {
		if payment == nil || payment.Resolved() {
			continue
		}

		resolution := entity.Resolution{
			State:      entity.PaymentStateFailed,
			ResultCode: expiredResultCode,
			ResultDesc: "payment request timed out",
			ResolvedAt: s.now(),
		}
		if _, _, err := s.resolve(ctx, payment, resolution, entity.EventPaymentExpired, ""); err != nil {
			firstErr = keepFirstErr(firstErr, err)
		}
	}

	return firstErr
}

func keepFirstErr(current error, candidate error) error {
	if current != nil {
		return current
	}
	return candidate
}
