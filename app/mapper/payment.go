package mapper

import (
	"time"

	"github.com/KipkuruiYegon/MPESA-Telegram-Bot/app/entity"
	"github.com/KipkuruiYegon/MPESA-Telegram-Bot/app/types"
	"github.com/shopspring/decimal"
	"google.golang.org/protobuf/types/known/structpb"
)

func PaymentToResponse(item *entity.PaymentRequest) *types.Payment {
	if item == nil {
		return nil
	}

	payment := &types.Payment{
		RequestId:         item.RequestID,
		MerchantRequestId: item.MerchantRequestID,
		UserId:            item.UserID,
		PhoneNumber:       item.PhoneNumber,
		Amount:            item.Amount.String(),
		PlanCode:          derefString(item.PlanCode),
		State:             item.State,
		StateName:         entity.PaymentStateName(item.State),
		ResultDesc:        derefString(item.ResultDesc),
		ConfirmedAmount:   derefDecimal(item.ConfirmedAmount),
		ConfirmedPhone:    derefString(item.ConfirmedPhone),
		ReceiptNumber:     derefString(item.ReceiptNumber),
		CreatedAt:         formatTime(item.CreatedAt),
		UpdatedAt:         formatTime(item.UpdatedAt),
	}
	if item.ResultCode != nil {
		code := *item.ResultCode
		payment.ResultCode = &code
	}
	if item.ResolvedAt != nil {
		resolvedAt := formatTime(*item.ResolvedAt)
		payment.ResolvedAt = &resolvedAt
	}
	return payment
}

func PaymentsToResponse(items []*entity.PaymentRequest) []*types.Payment {
	result := make([]*types.Payment, 0, len(items))
	for _, item := range items {
		result = append(result, PaymentToResponse(item))
	}
	return result
}

// PaymentToProto renders a ledger row as a protobuf Struct for the gRPC API.
func PaymentToProto(item *entity.PaymentRequest) (*structpb.Struct, error) {
	payment := PaymentToResponse(item)
	if payment == nil {
		return &structpb.Struct{Fields: map[string]*structpb.Value{}}, nil
	}

	fields := map[string]interface{}{
		"request_id":          payment.RequestId,
		"merchant_request_id": payment.MerchantRequestId,
		"user_id":             payment.UserId,
		"phone_number":        payment.PhoneNumber,
		"amount":              payment.Amount,
		"plan_code":           payment.PlanCode,
		"state":               payment.State,
		"state_name":          payment.StateName,
		"result_desc":         payment.ResultDesc,
		"confirmed_amount":    payment.ConfirmedAmount,
		"confirmed_phone":     payment.ConfirmedPhone,
		"receipt_number":      payment.ReceiptNumber,
		"created_at":          payment.CreatedAt,
		"updated_at":          payment.UpdatedAt,
	}
	if payment.ResultCode != nil {
		fields["result_code"] = *payment.ResultCode
	}
	if payment.ResolvedAt != nil {
		fields["resolved_at"] = *payment.ResolvedAt
	}
	return structpb.NewStruct(fields)
}

func PaymentsToProto(items []*entity.PaymentRequest) (*structpb.ListValue, error) {
	values := make([]*structpb.Value, 0, len(items))
	for _, item := range items {
		payment, err := PaymentToProto(item)
		if err != nil {
			return nil, err
		}
		values = append(values, structpb.NewStructValue(payment))
	}
	return &structpb.ListValue{Values: values}, nil
}

func derefString(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}

func derefDecimal(v *decimal.Decimal) string {
	if v == nil {
		return ""
	}
	return v.String()
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
