package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/KipkuruiYegon/MPESA-Telegram-Bot/app/entity"
	"github.com/KipkuruiYegon/MPESA-Telegram-Bot/app/service"
	"github.com/KipkuruiYegon/MPESA-Telegram-Bot/app/session"
)

const (
	serviceUnavailableText = "The payment service is temporarily unavailable. Please try again later."
	notSubscribedText      = "You must join our channel before making a payment. Join it and send /start again."
	payUsageText           = "Usage: /pay <phone_number> <amount>"
	statusUsageText        = "Usage: /status <request_id>"
	timeLayout             = "2006-01-02 15:04"
)

// DefaultCommands is the command table the bot serves.
func DefaultCommands() CommandTable {
	return CommandTable{
		"start":   handleStart,
		"pay":     handlePay,
		"status":  handleStatus,
		"history": handleHistory,
		"plans":   handlePlans,
		"help":    handleHelp,
	}
}

func handleStart(ctx context.Context, r *Router, msg Message) {
	r.resetSession(ctx, msg.UserID)

	if err := r.payments.TouchUser(ctx, msg.UserID, msg.Username); err != nil {
		r.logger.WithError(err).WithField("user_id", msg.UserID).Warn("Failed to store chat user")
	}

	if !r.gate.IsEligible(ctx, msg.UserID) {
		r.reply(ctx, msg.ChatID, notSubscribedText)
		return
	}

	if !r.save(ctx, msg, session.Session{State: session.StateAwaitingPlanSelection}) {
		return
	}
	r.reply(ctx, msg.ChatID, "Welcome! Choose a plan by sending its number:\n"+r.planMenu()+
		"\n\nOr pay any amount with /pay <phone_number> <amount>.")
}

func handlePay(ctx context.Context, r *Router, msg Message) {
	fields := strings.Fields(msg.Args)
	if len(fields) != 2 {
		r.reply(ctx, msg.ChatID, payUsageText)
		return
	}

	current, err := r.sessions.Get(ctx, msg.UserID)
	if err != nil {
		r.logger.WithError(err).WithField("user_id", msg.UserID).Warn("Failed to load conversation state")
		r.reply(ctx, msg.ChatID, serviceUnavailableText)
		return
	}
	if current.State == session.StateAwaitingPaymentResult {
		r.reply(ctx, msg.ChatID, "You already have a payment in progress (request "+current.RequestID+"). Wait for it to complete or send /start to begin again.")
		return
	}

	if !r.gate.IsEligible(ctx, msg.UserID) {
		r.reply(ctx, msg.ChatID, notSubscribedText)
		return
	}

	amount, err := service.ParseAmount(fields[1])
	if err != nil {
		r.replyError(ctx, msg, err)
		return
	}

	r.initiate(ctx, msg, service.InitiateInput{
		UserID:      msg.UserID,
		Username:    msg.Username,
		PhoneNumber: fields[0],
		Amount:      amount,
	})
}

func handleStatus(ctx context.Context, r *Router, msg Message) {
	requestID := strings.TrimSpace(msg.Args)
	if requestID == "" {
		current, err := r.sessions.Get(ctx, msg.UserID)
		if err == nil {
			requestID = current.RequestID
		}
	}
	if requestID == "" {
		r.reply(ctx, msg.ChatID, statusUsageText)
		return
	}

	payment, err := r.payments.GetPaymentForUser(ctx, msg.UserID, requestID)
	switch {
	case errors.Is(err, service.ErrPaymentNotFound), errors.Is(err, service.ErrForbidden):
		r.reply(ctx, msg.ChatID, "No payment found with ID "+requestID+".")
		return
	case errors.Is(err, service.ErrValidation):
		r.reply(ctx, msg.ChatID, statusUsageText)
		return
	case err != nil:
		r.logger.WithError(err).WithField("request_id", requestID).Warn("Failed to load payment status")
		r.reply(ctx, msg.ChatID, serviceUnavailableText)
		return
	}

	r.reply(ctx, msg.ChatID, formatPayment(payment))
}

func handleHistory(ctx context.Context, r *Router, msg Message) {
	payments, err := r.payments.ListUserPayments(ctx, msg.UserID, historySize)
	if err != nil {
		r.logger.WithError(err).WithField("user_id", msg.UserID).Warn("Failed to list payments")
		r.reply(ctx, msg.ChatID, serviceUnavailableText)
		return
	}
	if len(payments) == 0 {
		r.reply(ctx, msg.ChatID, "You have no payments yet. Send /start to choose a plan.")
		return
	}

	var b strings.Builder
	b.WriteString("Your recent payments:\n")
	for _, payment := range payments {
		b.WriteString(fmt.Sprintf("\n%s  KES %s  %s  %s",
			payment.CreatedAt.Format(timeLayout),
			payment.Amount.String(),
			stateLabel(payment.State),
			payment.RequestID,
		))
	}
	r.reply(ctx, msg.ChatID, b.String())
}

func handlePlans(ctx context.Context, r *Router, msg Message) {
	if len(r.plans) == 0 {
		r.reply(ctx, msg.ChatID, "No plans are available right now.")
		return
	}
	r.reply(ctx, msg.ChatID, "Available plans:\n"+r.planMenu())
}

func handleHelp(ctx context.Context, r *Router, msg Message) {
	r.reply(ctx, msg.ChatID, strings.Join([]string{
		"/start - check access and choose a plan",
		"/plans - list the available plans",
		"/pay <phone_number> <amount> - pay any amount with M-Pesa",
		"/status <request_id> - show the state of a payment",
		"/history - show your last payments",
		"/help - show this message",
	}, "\n"))
}

func formatPayment(payment *entity.PaymentRequest) string {
	lines := []string{
		"Request ID: " + payment.RequestID,
		"Amount: KES " + payment.Amount.String(),
		"Phone: " + payment.PhoneNumber,
		"Status: " + stateLabel(payment.State),
		"Created: " + payment.CreatedAt.Format(timeLayout),
	}
	if payment.ReceiptNumber != nil {
		lines = append(lines, "Receipt: "+*payment.ReceiptNumber)
	}
	if payment.State == entity.PaymentStateFailed && payment.ResultDesc != nil {
		lines = append(lines, "Reason: "+*payment.ResultDesc)
	}
	if payment.ResolvedAt != nil {
		lines = append(lines, "Completed: "+payment.ResolvedAt.Format(timeLayout))
	}
	return strings.Join(lines, "\n")
}

func stateLabel(state int32) string {
	switch state {
	case entity.PaymentStateConfirmed:
		return "confirmed"
	case entity.PaymentStateFailed:
		return "failed"
	default:
		return "pending"
	}
}
