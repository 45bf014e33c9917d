package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/KipkuruiYegon/MPESA-Telegram-Bot/app/entity"
	"github.com/shopspring/decimal"
)

var (
	ErrPaymentNotFound      = errors.New("payment request not found")
	ErrPaymentAlreadyExists = errors.New("payment request already exists")
)

const paymentRequestColumns = `
	id, checkout_request_id, merchant_request_id, callback_hash,
	user_id, phone_number, amount, plan_code, state,
	result_code, result_desc, confirmed_amount, confirmed_phone, receipt_number,
	created_at, resolved_at, updated_at
`

type PaymentRequestRepository struct {
	db DBTX
}

func NewPaymentRequestRepository(db DBTX) *PaymentRequestRepository {
	return &PaymentRequestRepository{db: db}
}

func (r *PaymentRequestRepository) Create(ctx context.Context, payment *entity.PaymentRequest) error {
	query := `
		INSERT INTO payment_requests (
			checkout_request_id, merchant_request_id, callback_hash,
			user_id, phone_number, amount, plan_code, state,
			created_at, updated_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := r.db.ExecContext(ctx, query,
		payment.RequestID,
		payment.MerchantRequestID,
		payment.CallbackHash,
		payment.UserID,
		payment.PhoneNumber,
		payment.Amount.StringFixed(2),
		nullableStringValue(payment.PlanCode),
		payment.State,
		payment.CreatedAt,
		payment.UpdatedAt,
	)
	if err != nil {
		if isDuplicateEntryError(err) {
			return ErrPaymentAlreadyExists
		}
		return err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	payment.ID = uint64(id)
	return nil
}

// Resolve moves an awaiting request into a terminal state. It reports false when
// the row exists but was already resolved by someone else.
func (r *PaymentRequestRepository) Resolve(ctx context.Context, requestID string, res entity.Resolution) (bool, error) {
	query := `
		UPDATE payment_requests SET
			state = ?,
			result_code = ?,
			result_desc = ?,
			confirmed_amount = ?,
			confirmed_phone = ?,
			receipt_number = ?,
			resolved_at = ?,
			updated_at = ?
		WHERE checkout_request_id = ? AND state = ?
	`

	result, err := r.db.ExecContext(ctx, query,
		res.State,
		res.ResultCode,
		res.ResultDesc,
		nullableDecimalValue(res.ConfirmedAmount),
		nullableStringValue(res.ConfirmedPhone),
		nullableStringValue(res.ReceiptNumber),
		res.ResolvedAt,
		res.ResolvedAt,
		requestID,
		entity.PaymentStateAwaitingCallback,
	)
	if err != nil {
		return false, err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	if affected == 1 {
		return true, nil
	}

	existing, err := r.FindByRequestID(ctx, requestID)
	if err != nil {
		return false, err
	}
	if existing == nil {
		return false, ErrPaymentNotFound
	}
	return false, nil
}

func (r *PaymentRequestRepository) FindByRequestID(ctx context.Context, requestID string) (*entity.PaymentRequest, error) {
	query := `SELECT ` + paymentRequestColumns + ` FROM payment_requests WHERE checkout_request_id = ? LIMIT 1`

	payment := &entity.PaymentRequest{}
	if err := scanPaymentRequest(r.db.QueryRowContext(ctx, query, requestID), payment); err == sql.ErrNoRows {
		return nil, nil
	} else if err != nil {
		return nil, err
	}

	return payment, nil
}

func (r *PaymentRequestRepository) ListByUser(ctx context.Context, userID int64, limit int32) ([]*entity.PaymentRequest, error) {
	query := `SELECT ` + paymentRequestColumns + ` FROM payment_requests WHERE user_id = ? ORDER BY id DESC LIMIT ?`
	return r.queryList(ctx, query, userID, limit)
}

// ListAwaitingOlderThan feeds the reconciliation and expiry sweeps.
func (r *PaymentRequestRepository) ListAwaitingOlderThan(ctx context.Context, cutoff time.Time, limit int32) ([]*entity.PaymentRequest, error) {
	query := `
		SELECT ` + paymentRequestColumns + `
		FROM payment_requests
		WHERE state = ?
		  AND created_at <= ?
		ORDER BY created_at ASC
		LIMIT ?
	`
	return r.queryList(ctx, query, entity.PaymentStateAwaitingCallback, cutoff, limit)
}

func (r *PaymentRequestRepository) HasConfirmedForUser(ctx context.Context, userID int64) (bool, error) {
	query := `SELECT COUNT(1) FROM payment_requests WHERE user_id = ? AND state = ?`

	var count int64
	if err := r.db.QueryRowContext(ctx, query, userID, entity.PaymentStateConfirmed).Scan(&count); err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *PaymentRequestRepository) queryList(ctx context.Context, query string, args ...interface{}) ([]*entity.PaymentRequest, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	payments := make([]*entity.PaymentRequest, 0)
	for rows.Next() {
		item := &entity.PaymentRequest{}
		if err := scanPaymentRequest(rows, item); err != nil {
			return nil, err
		}
		payments = append(payments, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return payments, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanPaymentRequest(scan rowScanner, payment *entity.PaymentRequest) error {
	var planCode sql.NullString
	var resultCode sql.NullInt32
	var resultDesc sql.NullString
	var confirmedAmount decimal.NullDecimal
	var confirmedPhone sql.NullString
	var receiptNumber sql.NullString
	var resolvedAt sql.NullTime

	err := scan.Scan(
		&payment.ID,
		&payment.RequestID,
		&payment.MerchantRequestID,
		&payment.CallbackHash,
		&payment.UserID,
		&payment.PhoneNumber,
		&payment.Amount,
		&planCode,
		&payment.State,
		&resultCode,
		&resultDesc,
		&confirmedAmount,
		&confirmedPhone,
		&receiptNumber,
		&payment.CreatedAt,
		&resolvedAt,
		&payment.UpdatedAt,
	)
	if err != nil {
		return err
	}

	payment.PlanCode = stringPtrFromNull(planCode)
	payment.ResultCode = int32PtrFromNull(resultCode)
	payment.ResultDesc = stringPtrFromNull(resultDesc)
	payment.ConfirmedAmount = decimalPtrFromNull(confirmedAmount)
	payment.ConfirmedPhone = stringPtrFromNull(confirmedPhone)
	payment.ReceiptNumber = stringPtrFromNull(receiptNumber)
	payment.ResolvedAt = timePtrFromNull(resolvedAt)

	return nil
}
