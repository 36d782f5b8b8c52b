package notifications

import "context"

type LoginAlertInput struct {
	Email string
	Name  string
}

// Notifier abstracts outbound user notifications. Actual delivery (email,
// push) lives outside this service; the default implementation just logs.
type Notifier interface {
	SendLoginAlert(ctx context.Context, input LoginAlertInput) error
}
