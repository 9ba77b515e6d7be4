// Package notify fans monitor alerts out to operator notification channels
// (Telegram, Discord). Delivery is best effort: a failed channel never blocks
// the monitor, and channels can be filtered by alert type.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/fundingfarm/fundingbot/internal/domain"
)

// Sender is one notification channel.
type Sender interface {
	// Send delivers a notification with the given title and message body.
	Send(ctx context.Context, title, message string) error
	// Name returns a human-readable channel identifier, e.g. "telegram".
	Name() string
}

// Notifier dispatches alerts to all registered senders, filtered by alert
// type. An empty filter set forwards everything.
type Notifier struct {
	senders []Sender
	allowed map[domain.AlertType]bool
	logger  *slog.Logger
}

// NewNotifier creates a Notifier. Only alerts whose type appears in types are
// forwarded; an empty list allows all types.
func NewNotifier(senders []Sender, types []string, logger *slog.Logger) *Notifier {
	allowed := make(map[domain.AlertType]bool, len(types))
	for _, t := range types {
		allowed[domain.AlertType(strings.TrimSpace(t))] = true
	}
	return &Notifier{
		senders: senders,
		allowed: allowed,
		logger:  logger.With(slog.String("component", "notifier")),
	}
}

// NotifyAlert delivers one monitor alert to every configured channel. Errors
// from individual senders are collected; one channel's failure does not stop
// delivery to the rest.
func (n *Notifier) NotifyAlert(ctx context.Context, alert domain.Alert) error {
	if len(n.allowed) > 0 && !n.allowed[alert.Type] {
		n.logger.Debug("alert filtered out", slog.String("type", string(alert.Type)))
		return nil
	}

	title := fmt.Sprintf("[%s] strategy %s", strings.ToUpper(string(alert.Type)), alert.StrategyID)
	return n.dispatch(ctx, title, alert.Message)
}

func (n *Notifier) dispatch(ctx context.Context, title, message string) error {
	if len(n.senders) == 0 {
		return nil
	}

	var errs []string
	for _, s := range n.senders {
		if err := s.Send(ctx, title, message); err != nil {
			n.logger.Error("sender failed",
				slog.String("sender", s.Name()),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Sprintf("%s: %v", s.Name(), err))
			continue
		}
		n.logger.Debug("notification sent",
			slog.String("sender", s.Name()),
			slog.String("title", title),
		)
	}

	if len(errs) > 0 {
		return fmt.Errorf("notify: %d sender(s) failed: %s", len(errs), strings.Join(errs, "; "))
	}
	return nil
}
