package grpc

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/KipkuruiYegon/MPESA-Telegram-Bot/app/entity"
	"github.com/KipkuruiYegon/MPESA-Telegram-Bot/app/provider"
	"github.com/KipkuruiYegon/MPESA-Telegram-Bot/app/service"
	"github.com/KipkuruiYegon/MPESA-Telegram-Bot/config"
	"github.com/shopspring/decimal"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

type grpcPaymentRepo struct {
	findByRequestIDFn func(ctx context.Context, requestID string) (*entity.PaymentRequest, error)
	listByUserFn      func(ctx context.Context, userID int64, limit int32) ([]*entity.PaymentRequest, error)
}

func (r *grpcPaymentRepo) Create(context.Context, *entity.PaymentRequest) error {
	return nil
}

func (r *grpcPaymentRepo) FindByRequestID(ctx context.Context, requestID string) (*entity.PaymentRequest, error) {
	if r.findByRequestIDFn != nil {
		return r.findByRequestIDFn(ctx, requestID)
	}
	return nil, nil
}

func (r *grpcPaymentRepo) ListByUser(ctx context.Context, userID int64, limit int32) ([]*entity.PaymentRequest, error) {
	if r.listByUserFn != nil {
		return r.listByUserFn(ctx, userID, limit)
	}
	return []*entity.PaymentRequest{}, nil
}

func (r *grpcPaymentRepo) Resolve(context.Context, string, entity.Resolution) (bool, error) {
	return false, nil
}

func (r *grpcPaymentRepo) ListAwaitingOlderThan(context.Context, time.Time, int32) ([]*entity.PaymentRequest, error) {
	return []*entity.PaymentRequest{}, nil
}

func (r *grpcPaymentRepo) HasConfirmedForUser(context.Context, int64) (bool, error) {
	return false, nil
}

type grpcUserRepo struct{}

func (r *grpcUserRepo) Upsert(context.Context, *entity.ChatUser) error {
	return nil
}

func (r *grpcUserRepo) FindByID(context.Context, int64) (*entity.ChatUser, error) {
	return nil, nil
}

func (r *grpcUserRepo) SetLastKnownSubscribed(context.Context, int64, bool, time.Time) error {
	return nil
}

type grpcEventRepo struct{}

func (r *grpcEventRepo) Create(context.Context, *entity.PaymentEvent) error {
	return nil
}

type grpcCallbackRepo struct{}

func (r *grpcCallbackRepo) Create(context.Context, *entity.PaymentCallback) error {
	return nil
}

func newGRPCServerForTest(repo *grpcPaymentRepo) *Server {
	paymentService := service.NewPaymentService(
		repo,
		&grpcUserRepo{},
		&grpcEventRepo{},
		&grpcCallbackRepo{},
		provider.NewRegistry(provider.NewMpesaProvider(provider.MpesaConfig{}, nil)),
		config.PaymentsConfig{PendingTimeout: time.Hour, ReconcileStaleAfter: time.Minute, JobBatchSize: 100},
		service.ResolutionHooks{},
	)
	return NewServer(paymentService)
}

func grpcTestPayment(requestID string) *entity.PaymentRequest {
	now := time.Now().UTC()
	return &entity.PaymentRequest{
		RequestID:   requestID,
		UserID:      42,
		PhoneNumber: "254712345678",
		Amount:      decimal.NewFromInt(500),
		State:       entity.PaymentStateAwaitingCallback,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func TestGetPaymentValidation(t *testing.T) {
	srv := newGRPCServerForTest(&grpcPaymentRepo{})

	_, err := srv.GetPayment(context.Background(), wrapperspb.String(" "))
	if status.Code(err) != codes.InvalidArgument {
		t.Fatalf("expected InvalidArgument, got %v", err)
	}
}

func TestGetPaymentNotFound(t *testing.T) {
	srv := newGRPCServerForTest(&grpcPaymentRepo{})

	_, err := srv.GetPayment(context.Background(), wrapperspb.String("ws_CO_9"))
	if status.Code(err) != codes.NotFound {
		t.Fatalf("expected NotFound, got %v", err)
	}
}

func TestGetPaymentInternalError(t *testing.T) {
	srv := newGRPCServerForTest(&grpcPaymentRepo{findByRequestIDFn: func(context.Context, string) (*entity.PaymentRequest, error) {
		return nil, errors.New("db down")
	}})

	_, err := srv.GetPayment(context.Background(), wrapperspb.String("ws_CO_1"))
	if status.Code(err) != codes.Internal {
		t.Fatalf("expected Internal, got %v", err)
	}
}

func TestListUserPaymentsValidation(t *testing.T) {
	srv := newGRPCServerForTest(&grpcPaymentRepo{})

	req, _ := structpb.NewStruct(map[string]interface{}{"limit": 10})
	_, err := srv.ListUserPayments(context.Background(), req)
	if status.Code(err) != codes.InvalidArgument {
		t.Fatalf("expected InvalidArgument, got %v", err)
	}
}

func TestLedgerServiceOverBufconn(t *testing.T) {
	var gotUser int64
	repo := &grpcPaymentRepo{
		findByRequestIDFn: func(_ context.Context, requestID string) (*entity.PaymentRequest, error) {
			return grpcTestPayment(requestID), nil
		},
		listByUserFn: func(_ context.Context, userID int64, _ int32) ([]*entity.PaymentRequest, error) {
			gotUser = userID
			return []*entity.PaymentRequest{grpcTestPayment("ws_CO_1"), grpcTestPayment("ws_CO_2")}, nil
		},
	}

	lis := bufconn.Listen(1024 * 1024)
	grpcSrv := grpc.NewServer(grpc.ChainUnaryInterceptor(RecoveryInterceptor(), RequestIDInterceptor(), LoggingInterceptor()))
	RegisterLedgerServer(grpcSrv, newGRPCServerForTest(repo))
	go func() {
		_ = grpcSrv.Serve(lis)
	}()
	defer grpcSrv.Stop()

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	ctx = metadata.AppendToOutgoingContext(ctx, requestIDHeader, "grpc-test-1")

	payment := new(structpb.Struct)
	if err := conn.Invoke(ctx, "/"+LedgerServiceName+"/GetPayment", wrapperspb.String("ws_CO_7"), payment); err != nil {
		t.Fatalf("GetPayment failed: %v", err)
	}
	if payment.GetFields()["request_id"].GetStringValue() != "ws_CO_7" {
		t.Fatalf("unexpected payment: %v", payment)
	}

	listReq, _ := structpb.NewStruct(map[string]interface{}{"user_id": 42, "limit": 5})
	payments := new(structpb.ListValue)
	if err := conn.Invoke(ctx, "/"+LedgerServiceName+"/ListUserPayments", listReq, payments); err != nil {
		t.Fatalf("ListUserPayments failed: %v", err)
	}
	if len(payments.GetValues()) != 2 || gotUser != 42 {
		t.Fatalf("unexpected list result: %d items for user %d", len(payments.GetValues()), gotUser)
	}
}
