package controller

import (
	"errors"
	"net/http"

	"github.com/KipkuruiYegon/MPESA-Telegram-Bot/app/factory"
	"github.com/KipkuruiYegon/MPESA-Telegram-Bot/app/mapper"
	"github.com/KipkuruiYegon/MPESA-Telegram-Bot/app/service"
	"github.com/KipkuruiYegon/MPESA-Telegram-Bot/app/types"
	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
)

type PaymentController struct {
	paymentService *service.PaymentService
	logger         logrus.FieldLogger
}

func NewPaymentController(paymentService *service.PaymentService) *PaymentController {
	return &PaymentController{
		paymentService: paymentService,
		logger:         factory.NewModuleLogger("payments-controller"),
	}
}

func (c *PaymentController) Health(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, &types.HealthResponse{Status: "ok"})
}

func (c *PaymentController) GetPayment(ctx echo.Context) error {
	req, err := types.NewGetPaymentRequestFromContext(ctx)
	if err != nil {
		return c.writeError(ctx, http.StatusBadRequest, "invalid request")
	}
	if err := req.Validate(); err != nil {
		return c.writeError(ctx, http.StatusBadRequest, err.Error())
	}

	item, err := c.paymentService.GetPayment(ctx.Request().Context(), req.RequestId)
	if err != nil {
		if errors.Is(err, service.ErrPaymentNotFound) {
			return c.writeError(ctx, http.StatusNotFound, "payment not found")
		}
		factory.LoggerWithContext(c.logger, ctx).WithError(err).Error("Get payment failed")
		return c.writeError(ctx, http.StatusInternalServerError, "internal server error")
	}

	return ctx.JSON(http.StatusOK, &types.PaymentEnvelopeResponse{Payment: mapper.PaymentToResponse(item)})
}

func (c *PaymentController) ListPayments(ctx echo.Context) error {
	req, err := types.NewListPaymentsRequestFromContext(ctx)
	if err != nil {
		return c.writeError(ctx, http.StatusBadRequest, err.Error())
	}
	if err := req.Validate(); err != nil {
		return c.writeError(ctx, http.StatusBadRequest, err.Error())
	}

	items, err := c.paymentService.ListUserPayments(ctx.Request().Context(), req.UserId, req.Limit)
	if err != nil {
		factory.LoggerWithContext(c.logger, ctx).WithError(err).Error("List payments failed")
		return c.writeError(ctx, http.StatusInternalServerError, "internal server error")
	}

	return ctx.JSON(http.StatusOK, &types.ListPaymentsResponse{Payments: mapper.PaymentsToResponse(items)})
}

// HandleProviderCallback answers the gateway with its acknowledgement body for
// processed and duplicate deliveries, and with an error status otherwise.
func (c *PaymentController) HandleProviderCallback(ctx echo.Context) error {
	req, err := types.NewHandleProviderCallbackRequestFromContext(ctx)
	if err != nil {
		return c.writeError(ctx, http.StatusBadRequest, "invalid request body")
	}
	if err := req.Validate(); err != nil {
		return c.writeError(ctx, http.StatusBadRequest, err.Error())
	}

	outcome, err := c.paymentService.HandleCallback(ctx.Request().Context(), service.CallbackInput{
		Provider:     req.Provider,
		CallbackHash: req.CallbackHash,
		Payload:      req.Payload,
	})
	if err != nil {
		logger := factory.LoggerWithContext(c.logger, ctx).WithField("provider", req.Provider)
		switch {
		case errors.Is(err, service.ErrProviderUnsupported), errors.Is(err, service.ErrMalformedCallback):
			logger.WithError(err).Warn("Provider callback rejected")
			return c.writeError(ctx, http.StatusBadRequest, err.Error())
		case errors.Is(err, service.ErrUnknownTransaction):
			logger.WithError(err).Warn("Provider callback for unknown transaction")
			return c.writeError(ctx, http.StatusNotFound, "unknown transaction")
		default:
			logger.WithError(err).Error("Handle provider callback failed")
			return c.writeError(ctx, http.StatusInternalServerError, "internal server error")
		}
	}

	factory.LoggerWithContext(c.logger, ctx).WithFields(logrus.Fields{
		"checkout_request_id": outcome.Payment.RequestID,
		"outcome":             outcome.Outcome,
	}).Debug("Provider callback acknowledged")

	return ctx.JSON(http.StatusOK, types.AcceptedAck())
}

func (c *PaymentController) writeError(ctx echo.Context, statusCode int, message string) error {
	return ctx.JSON(statusCode, &types.ErrorResponse{Error: message})
}
