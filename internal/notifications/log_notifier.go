package notifications

import (
	"context"
	"log/slog"
)

// LogNotifier is the delivery stub: it records that an alert would have been
// sent and nothing more.
type LogNotifier struct {
	log *slog.Logger
}

func NewLogNotifier(log *slog.Logger) *LogNotifier {
	return &LogNotifier{log: log}
}

func (n *LogNotifier) SendLoginAlert(ctx context.Context, in LoginAlertInput) error {
	// TODO: route through a real provider once the dispatch service exists
	n.log.InfoContext(ctx, "notification.login_alert", "email", in.Email, "name", in.Name)
	return nil
}
