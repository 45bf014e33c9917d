package repository

import (
	"context"

	"github.com/KipkuruiYegon/MPESA-Telegram-Bot/app/entity"
)

type PaymentEventRepository struct {
	db DBTX
}

func NewPaymentEventRepository(db DBTX) *PaymentEventRepository {
	return &PaymentEventRepository{db: db}
}

func (r *PaymentEventRepository) Create(ctx context.Context, event *entity.PaymentEvent) error {
	id, err := insertReturningID(ctx, r.db, `
		INSERT INTO payment_events (checkout_request_id, event_type, old_state, new_state, payload_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		event.RequestID,
		event.EventType,
		nullableInt32Value(event.OldState),
		event.NewState,
		nullableStringValue(event.PayloadJSON),
		event.CreatedAt,
	)
	if err != nil {
		return err
	}
	event.ID = id
	return nil
}

type PaymentCallbackRepository struct {
	db DBTX
}

func NewPaymentCallbackRepository(db DBTX) *PaymentCallbackRepository {
	return &PaymentCallbackRepository{db: db}
}

func (r *PaymentCallbackRepository) Create(ctx context.Context, callback *entity.PaymentCallback) error {
	id, err := insertReturningID(ctx, r.db, `
		INSERT INTO payment_callbacks (checkout_request_id, provider, callback_hash, payload_json, status, error, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		nullableStringValue(callback.RequestID),
		callback.Provider,
		callback.CallbackHash,
		callback.PayloadJSON,
		callback.Status,
		nullableStringValue(callback.Error),
		callback.CreatedAt,
	)
	if err != nil {
		return err
	}
	callback.ID = id
	return nil
}

func insertReturningID(ctx context.Context, db DBTX, query string, args ...interface{}) (uint64, error) {
	result, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, err
	}
	return uint64(id), nil
}
