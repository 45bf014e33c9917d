package events

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/KipkuruiYegon/MPESA-Telegram-Bot/app/entity"
	"github.com/segmentio/kafka-go"
)

const (
	EventTypePaymentResolved = "payment_resolved"

	defaultBatchTimeout = 50 * time.Millisecond
)

type PaymentResolved struct {
	EventType     string     `json:"event_type"`
	RequestID     string     `json:"request_id"`
	UserID        int64      `json:"user_id"`
	State         string     `json:"state"`
	Amount        string     `json:"amount"`
	PhoneNumber   string     `json:"phone_number"`
	ResultCode    *int32     `json:"result_code,omitempty"`
	ResultDesc    *string    `json:"result_desc,omitempty"`
	ReceiptNumber *string    `json:"receipt_number,omitempty"`
	ResolvedAt    *time.Time `json:"resolved_at,omitempty"`
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type KafkaPublisher struct {
	writer messageWriter
}

func NewKafkaWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.ReferenceHash{},
		RequiredAcks:           kafka.RequireAll,
		BatchTimeout:           defaultBatchTimeout,
		Async:                  false,
		AllowAutoTopicCreation: false,
	}
}

func NewKafkaPublisher(writer messageWriter) *KafkaPublisher {
	return &KafkaPublisher{writer: writer}
}

// PublishPaymentResolved keys the message by user so one user's events stay ordered.
func (p *KafkaPublisher) PublishPaymentResolved(ctx context.Context, payment *entity.PaymentRequest) error {
	value, err := json.Marshal(NewPaymentResolved(payment))
	if err != nil {
		return err
	}

	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(strconv.FormatInt(payment.UserID, 10)),
		Value: value,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(EventTypePaymentResolved)},
		},
	})
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

func NewPaymentResolved(payment *entity.PaymentRequest) PaymentResolved {
	return PaymentResolved{
		EventType:     EventTypePaymentResolved,
		RequestID:     payment.RequestID,
		UserID:        payment.UserID,
		State:         entity.PaymentStateName(payment.State),
		Amount:        payment.Amount.String(),
		PhoneNumber:   payment.PhoneNumber,
		ResultCode:    payment.ResultCode,
		ResultDesc:    payment.ResultDesc,
		ReceiptNumber: payment.ReceiptNumber,
		ResolvedAt:    payment.ResolvedAt,
	}
}

// NoopPublisher is used when no brokers are configured.
type NoopPublisher struct{}

func (NoopPublisher) PublishPaymentResolved(context.Context, *entity.PaymentRequest) error {
	return nil
}

func (NoopPublisher) Close() error {
	return nil
}
