package service

import (
	"context"
	"strings"
	"time"

	"github.com/KipkuruiYegon/MPESA-Telegram-Bot/app/factory"
	"github.com/KipkuruiYegon/MPESA-Telegram-Bot/app/metrics"
	"github.com/sirupsen/logrus"
)

const defaultMembershipTimeout = 5 * time.Second

type membershipChecker interface {
	IsMember(ctx context.Context, channelID string, userID int64) (bool, error)
}

type subscriptionRecorder interface {
	SetLastKnownSubscribed(ctx context.Context, userID int64, subscribed bool, now time.Time) error
}

// AccessGate asks the chat platform, every time, whether a user belongs to the
// configured channel. Errors and timeouts count as not eligible.
type AccessGate struct {
	checker   membershipChecker
	users     subscriptionRecorder
	channelID string
	timeout   time.Duration
	logger    logrus.FieldLogger
}

func NewAccessGate(checker membershipChecker, users subscriptionRecorder, channelID string, timeout time.Duration) *AccessGate {
	if timeout <= 0 {
		timeout = defaultMembershipTimeout
	}
	return &AccessGate{
		checker:   checker,
		users:     users,
		channelID: strings.TrimSpace(channelID),
		timeout:   timeout,
		logger:    factory.NewModuleLogger("access-gate"),
	}
}

// Enabled is false when no channel is configured; every user is then eligible.
func (g *AccessGate) Enabled() bool {
	return g.channelID != ""
}

func (g *AccessGate) IsEligible(ctx context.Context, userID int64) bool {
	if !g.Enabled() {
		return true
	}

	checkCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	eligible, err := g.checker.IsMember(checkCtx, g.channelID, userID)
	if err != nil {
		metrics.AccessGateErrorCounter.Inc()
		g.logger.WithError(err).WithField("user_id", userID).Warn("Membership check failed")
		eligible = false
	} else if eligible {
		metrics.AccessGateEligibleCounter.Inc()
	} else {
		metrics.AccessGateIneligibleCounter.Inc()
	}

	if g.users != nil {
		if err := g.users.SetLastKnownSubscribed(ctx, userID, eligible, time.Now().UTC()); err != nil {
			g.logger.WithError(err).WithField("user_id", userID).Debug("Failed to record last known subscription")
		}
	}

	return eligible
}
