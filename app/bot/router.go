package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/KipkuruiYegon/MPESA-Telegram-Bot/app/entity"
	"github.com/KipkuruiYegon/MPESA-Telegram-Bot/app/factory"
	"github.com/KipkuruiYegon/MPESA-Telegram-Bot/app/service"
	"github.com/KipkuruiYegon/MPESA-Telegram-Bot/app/session"
	"github.com/KipkuruiYegon/MPESA-Telegram-Bot/config"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

const historySize = int32(5)

type paymentService interface {
	Initiate(ctx context.Context, input service.InitiateInput) (*entity.PaymentRequest, error)
	GetPaymentForUser(ctx context.Context, userID int64, requestID string) (*entity.PaymentRequest, error)
	ListUserPayments(ctx context.Context, userID int64, limit int32) ([]*entity.PaymentRequest, error)
	HasConfirmedPayment(ctx context.Context, userID int64) (bool, error)
	TouchUser(ctx context.Context, userID int64, username string) error
}

type eligibilityChecker interface {
	IsEligible(ctx context.Context, userID int64) bool
}

type replier interface {
	Notify(ctx context.Context, chatID int64, text string) error
}

// Message is an inbound private chat message reduced to what handlers need.
type Message struct {
	UserID   int64
	ChatID   int64
	Username string
	Text     string
	Args     string
}

type CommandHandler func(ctx context.Context, r *Router, msg Message)

// CommandTable maps a command name, without the leading slash, to its handler.
type CommandTable map[string]CommandHandler

type Router struct {
	commands CommandTable
	payments paymentService
	gate     eligibilityChecker
	sessions session.Store
	replies  replier
	plans    []config.Plan
	logger   logrus.FieldLogger
}

func NewRouter(
	commands CommandTable,
	payments paymentService,
	gate eligibilityChecker,
	sessions session.Store,
	replies replier,
	plans []config.Plan,
) *Router {
	return &Router{
		commands: commands,
		payments: payments,
		gate:     gate,
		sessions: sessions,
		replies:  replies,
		plans:    plans,
		logger:   factory.NewModuleLogger("bot-router"),
	}
}

// HandleUpdate processes one update synchronously. Updates other than private
// text messages are ignored.
func (r *Router) HandleUpdate(ctx context.Context, update tgbotapi.Update) {
	m := update.Message
	if m == nil || m.From == nil || m.Chat == nil || !m.Chat.IsPrivate() {
		return
	}

	msg := Message{
		UserID:   m.From.ID,
		ChatID:   m.Chat.ID,
		Username: m.From.UserName,
		Text:     strings.TrimSpace(m.Text),
	}
	if msg.Text == "" {
		return
	}

	if m.IsCommand() {
		msg.Args = strings.TrimSpace(m.CommandArguments())
		name := strings.ToLower(m.Command())
		handler, ok := r.commands[name]
		if !ok {
			r.reply(ctx, msg.ChatID, "Unknown command. Send /help to see what I can do.")
			return
		}
		handler(ctx, r, msg)
		return
	}

	r.handleText(ctx, msg)
}

func (r *Router) handleText(ctx context.Context, msg Message) {
	current, err := r.sessions.Get(ctx, msg.UserID)
	if err != nil {
		r.logger.WithError(err).WithField("user_id", msg.UserID).Warn("Failed to load conversation state")
		r.reply(ctx, msg.ChatID, serviceUnavailableText)
		return
	}

	switch current.State {
	case session.StateAwaitingPhoneNumber:
		r.submitPhoneNumber(ctx, msg, current)
	case session.StateAwaitingPaymentResult:
		r.reply(ctx, msg.ChatID, "Still waiting for the M-Pesa confirmation. Approve the prompt on your phone; I will message you once it completes.")
	case session.StateAwaitingPlanSelection:
		r.selectPlan(ctx, msg, false)
	default:
		if _, ok := r.findPlan(msg.Text); ok {
			r.selectPlan(ctx, msg, true)
			return
		}
		r.reply(ctx, msg.ChatID, "Send /start to choose a plan or /help for the list of commands.")
	}
}

func (r *Router) selectPlan(ctx context.Context, msg Message, checkGate bool) {
	plan, ok := r.findPlan(msg.Text)
	if !ok {
		r.reply(ctx, msg.ChatID, "Please choose a valid plan:\n"+r.planMenu())
		return
	}
	if checkGate && !r.gate.IsEligible(ctx, msg.UserID) {
		r.reply(ctx, msg.ChatID, notSubscribedText)
		return
	}

	paid, err := r.payments.HasConfirmedPayment(ctx, msg.UserID)
	if err != nil {
		r.logger.WithError(err).WithField("user_id", msg.UserID).Warn("Failed to check previous payments")
		r.reply(ctx, msg.ChatID, serviceUnavailableText)
		return
	}
	if paid {
		r.reply(ctx, msg.ChatID, "You have already paid. Send /history to see your payments.")
		return
	}

	next := session.Session{
		State:    session.StateAwaitingPhoneNumber,
		PlanCode: plan.Code,
		Amount:   plan.Price.String(),
	}
	if !r.save(ctx, msg, next) {
		return
	}
	r.reply(ctx, msg.ChatID, fmt.Sprintf("You selected %s (KES %s). Send the M-Pesa phone number to charge, e.g. 0712345678.", plan.Name, plan.Price.String()))
}

func (r *Router) submitPhoneNumber(ctx context.Context, msg Message, current session.Session) {
	amount, err := decimal.NewFromString(current.Amount)
	if err != nil {
		r.logger.WithError(err).WithField("user_id", msg.UserID).Warn("Stored plan amount is invalid")
		r.resetSession(ctx, msg.UserID)
		r.reply(ctx, msg.ChatID, "Something went wrong with your plan selection. Send /start to begin again.")
		return
	}

	r.initiate(ctx, msg, service.InitiateInput{
		UserID:      msg.UserID,
		Username:    msg.Username,
		PhoneNumber: msg.Text,
		Amount:      amount,
		PlanCode:    current.PlanCode,
	})
}

// initiate starts a payment and moves the user to AwaitingPaymentResult. The
// reply only confirms the request was accepted; the outcome arrives later.
func (r *Router) initiate(ctx context.Context, msg Message, input service.InitiateInput) {
	payment, err := r.payments.Initiate(ctx, input)
	if err != nil {
		r.replyError(ctx, msg, err)
		return
	}

	if r.save(ctx, msg, session.Session{
		State:     session.StateAwaitingPaymentResult,
		PlanCode:  input.PlanCode,
		Amount:    input.Amount.String(),
		RequestID: payment.RequestID,
	}) {
		r.releaseIfResolved(ctx, msg.UserID, payment.RequestID)
	}
	r.reply(ctx, msg.ChatID, fmt.Sprintf(
		"Payment request of KES %s sent to %s. Approve the prompt on your phone.\nRequest ID: %s",
		payment.Amount.String(), payment.PhoneNumber, payment.RequestID,
	))
}

// releaseIfResolved covers a callback that resolved the request before the
// waiting state was stored.
func (r *Router) releaseIfResolved(ctx context.Context, userID int64, requestID string) {
	current, err := r.payments.GetPaymentForUser(ctx, userID, requestID)
	if err != nil || current == nil || !current.Resolved() {
		return
	}
	if _, err := r.sessions.ResetIfRequest(ctx, userID, requestID); err != nil {
		r.logger.WithError(err).WithField("user_id", userID).Warn("Failed to reset conversation state")
	}
}

func (r *Router) replyError(ctx context.Context, msg Message, err error) {
	switch {
	case errors.Is(err, service.ErrValidation):
		r.reply(ctx, msg.ChatID, "Invalid input: "+validationReason(err))
	case errors.Is(err, service.ErrAuth), errors.Is(err, service.ErrGateway), errors.Is(err, service.ErrProviderUnsupported):
		r.logger.WithError(err).WithField("user_id", msg.UserID).Warn("Payment initiation failed")
		r.reply(ctx, msg.ChatID, serviceUnavailableText)
	default:
		r.logger.WithError(err).WithField("user_id", msg.UserID).Error("Payment initiation failed")
		r.reply(ctx, msg.ChatID, serviceUnavailableText)
	}
}

func (r *Router) findPlan(text string) (config.Plan, bool) {
	code := strings.TrimSpace(text)
	for _, plan := range r.plans {
		if plan.Code == code {
			return plan, true
		}
	}
	return config.Plan{}, false
}

func (r *Router) planMenu() string {
	var b strings.Builder
	for _, plan := range r.plans {
		b.WriteString(fmt.Sprintf("%s. %s - KES %s\n", plan.Code, plan.Name, plan.Price.String()))
	}
	return strings.TrimRight(b.String(), "\n")
}

func (r *Router) save(ctx context.Context, msg Message, next session.Session) bool {
	if err := r.sessions.Save(ctx, msg.UserID, next); err != nil {
		r.logger.WithError(err).WithField("user_id", msg.UserID).Warn("Failed to store conversation state")
		r.reply(ctx, msg.ChatID, serviceUnavailableText)
		return false
	}
	return true
}

func (r *Router) resetSession(ctx context.Context, userID int64) {
	if err := r.sessions.Reset(ctx, userID); err != nil {
		r.logger.WithError(err).WithField("user_id", userID).Warn("Failed to reset conversation state")
	}
}

func (r *Router) reply(ctx context.Context, chatID int64, text string) {
	if err := r.replies.Notify(ctx, chatID, text); err != nil {
		r.logger.WithError(err).WithField("chat_id", chatID).Warn("Failed to send reply")
	}
}

// validationReason strips the sentinel prefix from a wrapped validation error.
func validationReason(err error) string {
	reason := strings.TrimPrefix(err.Error(), service.ErrValidation.Error()+": ")
	if reason == "" {
		return service.ErrValidation.Error()
	}
	return reason
}
