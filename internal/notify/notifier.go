// Package notify delivers alerts to operators over one or more channels
// (Telegram, Discord, etc.). The Notifier adapts the channel senders to the
// alert engine's handler shape and applies a minimum-severity filter so
// operators receive only the alerts they care about.
package notify

import (
	"context"
	"log/slog"
	"time"

	"github.com/alanyoungcy/tradesentry/internal/domain"
)

// sendTimeout bounds one delivery attempt per sender.
const sendTimeout = 15 * time.Second

// Sender is the interface each notification channel implements.
type Sender interface {
	// Send delivers one alert.
	Send(ctx context.Context, alert domain.Alert) error
	// Name returns a human-readable channel identifier (e.g. "telegram").
	Name() string
}

// Notifier fans one alert out to all senders. A single sender's failure never
// prevents delivery to the remaining senders.
type Notifier struct {
	senders  []Sender
	minLevel domain.AlertLevel
	logger   *slog.Logger
}

// NewNotifier creates a Notifier delivering to the given senders. Alerts
// below minLevel are filtered out.
func NewNotifier(senders []Sender, minLevel domain.AlertLevel, logger *slog.Logger) *Notifier {
	if minLevel == "" {
		minLevel = domain.AlertInfo
	}
	return &Notifier{
		senders:  senders,
		minLevel: minLevel,
		logger:   logger.With(slog.String("component", "notifier")),
	}
}

// Notify delivers the alert to every sender if it meets the minimum level.
func (n *Notifier) Notify(ctx context.Context, alert domain.Alert) {
	if !alert.Level.AtLeast(n.minLevel) {
		n.logger.DebugContext(ctx, "alert below notify level",
			slog.String("level", string(alert.Level)),
		)
		return
	}

	for _, s := range n.senders {
		sendCtx, cancel := context.WithTimeout(ctx, sendTimeout)
		err := s.Send(sendCtx, alert)
		cancel()
		if err != nil {
			n.logger.ErrorContext(ctx, "sender failed",
				slog.String("sender", s.Name()),
				slog.String("alert_id", alert.ID),
				slog.String("error", err.Error()),
			)
			continue
		}
		n.logger.DebugContext(ctx, "alert delivered",
			slog.String("sender", s.Name()),
			slog.String("alert_id", alert.ID),
		)
	}
}

// Handler adapts the notifier to the engine's handler shape.
func (n *Notifier) Handler() domain.AlertHandler {
	return func(alert domain.Alert) {
		n.Notify(context.Background(), alert)
	}
}
