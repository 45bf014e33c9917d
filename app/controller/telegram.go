package controller

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/KipkuruiYegon/MPESA-Telegram-Bot/app/factory"
	"github.com/KipkuruiYegon/MPESA-Telegram-Bot/app/metrics"
	"github.com/KipkuruiYegon/MPESA-Telegram-Bot/app/types"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
)

type updateHandler interface {
	HandleUpdate(ctx context.Context, update tgbotapi.Update)
}

type TelegramController struct {
	handler updateHandler
	secret  string
	logger  logrus.FieldLogger
}

func NewTelegramController(handler updateHandler, secret string) *TelegramController {
	return &TelegramController{
		handler: handler,
		secret:  strings.TrimSpace(secret),
		logger:  factory.NewModuleLogger("telegram-controller"),
	}
}

// HandleWebhook processes one chat update synchronously. Once the path secret
// matches, the platform always gets 200 so it does not redeliver.
func (c *TelegramController) HandleWebhook(ctx echo.Context) error {
	if !c.authorized(ctx.Param("secret")) {
		metrics.BotUpdateRejectedCounter.Inc()
		return ctx.JSON(http.StatusNotFound, &types.ErrorResponse{Error: "not found"})
	}

	var update tgbotapi.Update
	if err := json.NewDecoder(ctx.Request().Body).Decode(&update); err != nil {
		factory.LoggerWithContext(c.logger, ctx).WithError(err).Warn("Failed to decode chat update")
		return ctx.NoContent(http.StatusOK)
	}

	c.handler.HandleUpdate(ctx.Request().Context(), update)
	metrics.BotUpdateHandledCounter.Inc()

	return ctx.NoContent(http.StatusOK)
}

func (c *TelegramController) authorized(candidate string) bool {
	if c.secret == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(candidate), []byte(c.secret)) == 1
}
