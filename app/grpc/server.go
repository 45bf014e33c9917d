package grpc

import (
	"context"
	"errors"

	"github.com/KipkuruiYegon/MPESA-Telegram-Bot/app/mapper"
	"github.com/KipkuruiYegon/MPESA-Telegram-Bot/app/service"
	"github.com/KipkuruiYegon/MPESA-Telegram-Bot/app/types"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

const LedgerServiceName = "paymentsbot.Ledger"

// LedgerServer is the read-only ledger API. Messages are protobuf well-known
// types so no generated code is needed.
type LedgerServer interface {
	GetPayment(ctx context.Context, req *wrapperspb.StringValue) (*structpb.Struct, error)
	ListUserPayments(ctx context.Context, req *structpb.Struct) (*structpb.ListValue, error)
}

var LedgerServiceDesc = grpc.ServiceDesc{
	ServiceName: LedgerServiceName,
	HandlerType: (*LedgerServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "GetPayment", Handler: getPaymentHandler},
		{MethodName: "ListUserPayments", Handler: listUserPaymentsHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "paymentsbot/ledger.proto",
}

func RegisterLedgerServer(registrar grpc.ServiceRegistrar, srv LedgerServer) {
	registrar.RegisterService(&LedgerServiceDesc, srv)
}

func getPaymentHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(wrapperspb.StringValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(LedgerServer).GetPayment(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + LedgerServiceName + "/GetPayment"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(LedgerServer).GetPayment(ctx, req.(*wrapperspb.StringValue))
	}
	return interceptor(ctx, in, info, handler)
}

func listUserPaymentsHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(LedgerServer).ListUserPayments(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + LedgerServiceName + "/ListUserPayments"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(LedgerServer).ListUserPayments(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

type Server struct {
	paymentService *service.PaymentService
}

func NewServer(paymentService *service.PaymentService) *Server {
	return &Server{paymentService: paymentService}
}

func (s *Server) GetPayment(ctx context.Context, req *wrapperspb.StringValue) (*structpb.Struct, error) {
	getReq := &types.GetPaymentRequest{RequestId: req.GetValue()}
	if err := getReq.Validate(); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	item, err := s.paymentService.GetPayment(ctx, getReq.RequestId)
	if err != nil {
		if errors.Is(err, service.ErrPaymentNotFound) {
			return nil, status.Error(codes.NotFound, "payment not found")
		}
		loggerWithContext(ctx).WithError(err).Error("Get payment failed")
		return nil, status.Error(codes.Internal, "internal server error")
	}

	payment, err := mapper.PaymentToProto(item)
	if err != nil {
		loggerWithContext(ctx).WithError(err).Error("Failed to encode payment")
		return nil, status.Error(codes.Internal, "internal server error")
	}
	return payment, nil
}

// ListUserPayments expects {"user_id": <number>, "limit": <number>}.
func (s *Server) ListUserPayments(ctx context.Context, req *structpb.Struct) (*structpb.ListValue, error) {
	fields := req.GetFields()
	listReq := &types.ListPaymentsRequest{
		UserId: int64(fields["user_id"].GetNumberValue()),
		Limit:  int32(fields["limit"].GetNumberValue()),
	}
	if err := listReq.Validate(); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	items, err := s.paymentService.ListUserPayments(ctx, listReq.UserId, listReq.Limit)
	if err != nil {
		loggerWithContext(ctx).WithError(err).Error("List payments failed")
		return nil, status.Error(codes.Internal, "internal server error")
	}

	payments, err := mapper.PaymentsToProto(items)
	if err != nil {
		loggerWithContext(ctx).WithError(err).Error("Failed to encode payments")
		return nil, status.Error(codes.Internal, "internal server error")
	}
	return payments, nil
}
