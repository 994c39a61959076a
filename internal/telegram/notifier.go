package telegram

import (
	"context"
	"sync"
	"time"

	"github.com/melisync/melisync/internal/logging"
	"github.com/melisync/melisync/internal/metrics"
	"github.com/melisync/melisync/internal/models"
)

// DefaultRemindAfter is how long an account may stay rejected before the alert repeats.
const DefaultRemindAfter = 6 * time.Hour

// NotifierConfig configures a Notifier.
type NotifierConfig struct {
	ChatID int64
	// RemindAfter repeats the alert while an account stays in token_error.
	// Negative disables reminders.
	RemindAfter time.Duration
}

type accountState struct {
	status    models.SyncStatus
	alertedAt time.Time
}

// Notifier turns cycle results into Telegram alerts. It sends one alert when
// an account enters token_error and one when it leaves it.
type Notifier struct {
	sender      Sender
	chatID      int64
	remindAfter time.Duration
	logger      *logging.Logger
	metrics     *metrics.Metrics
	now         func() time.Time

	mu     sync.Mutex
	states map[string]accountState
}

// NewNotifier creates a notifier.
func NewNotifier(sender Sender, cfg NotifierConfig, logger *logging.Logger, m *metrics.Metrics) *Notifier {
	remind := cfg.RemindAfter
	if remind == 0 {
		remind = DefaultRemindAfter
	}
	if logger == nil {
		logger = logging.Nop()
	}
	return &Notifier{
		sender:      sender,
		chatID:      cfg.ChatID,
		remindAfter: remind,
		logger:      logger,
		metrics:     m,
		now:         time.Now,
		states:      make(map[string]accountState),
	}
}

// HandleCycle inspects one cycle's results. It matches the coordinator's
// result hook signature.
func (n *Notifier) HandleCycle(ctx context.Context, results []models.SyncResult) {
	for _, r := range results {
		text, prev, seen := n.transition(r)
		if text == "" {
			continue
		}
		if err := n.sender.SendMessage(n.chatID, text); err != nil {
			n.logger.WarnWithContext(ctx, "telegram alert failed", "account", r.Account, "error", err.Error())
			if n.metrics != nil {
				n.metrics.RecordError("telegram_send", "telegram")
			}
			n.restore(r.Account, prev, seen)
			continue
		}
		n.logger.InfoWithContext(ctx, "telegram alert sent", "account", r.Account, "status", string(r.Status))
	}
}

// transition records r and returns the message to send, if any, along with
// the state it replaced.
func (n *Notifier) transition(r models.SyncResult) (string, accountState, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()

	now := n.now()
	prev, seen := n.states[r.Account]
	next := accountState{status: r.Status, alertedAt: prev.alertedAt}

	var text string
	switch {
	case r.Status == models.StatusTokenError && (!seen || prev.status != models.StatusTokenError):
		text = formatTokenAlert(r.Account, r, false)
		next.alertedAt = now
	case r.Status == models.StatusTokenError && n.remindAfter > 0 && now.Sub(prev.alertedAt) >= n.remindAfter:
		text = formatTokenAlert(r.Account, r, true)
		next.alertedAt = now
	case seen && prev.status == models.StatusTokenError && r.Status != models.StatusTokenError:
		text = formatRecovery(r.Account, r)
		next.alertedAt = time.Time{}
	}

	n.states[r.Account] = next
	return text, prev, seen
}

// restore puts back the state replaced by a transition whose message was not
// delivered, so the next cycle sees the same transition again.
func (n *Notifier) restore(account string, prev accountState, seen bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if !seen {
		delete(n.states, account)
		return
	}
	n.states[account] = prev
}
