package songbook

import (
	"context"
	"time"
)

// Notifier delivers account mail to the user: verification links, deletion
// confirmation links, and deletion receipts. Delivery is best effort; the
// lifecycle never rolls back a committed state change because mail failed.
type Notifier interface {
	SendEmailVerification(ctx context.Context, email, token string) error
	SendPasswordReset(ctx context.Context, email, token string) error
	SendDeletionConfirmation(ctx context.Context, email, token string) error
	SendDeletionScheduled(ctx context.Context, email string, at time.Time) error
	SendDeletionCanceled(ctx context.Context, email string) error
}

type noopNotifier struct{}

func (noopNotifier) SendEmailVerification(context.Context, string, string) error { return nil }
func (noopNotifier) SendPasswordReset(context.Context, string, string) error     { return nil }
func (noopNotifier) SendDeletionConfirmation(context.Context, string, string) error {
	return nil
}
func (noopNotifier) SendDeletionScheduled(context.Context, string, time.Time) error { return nil }
func (noopNotifier) SendDeletionCanceled(context.Context, string) error             { return nil }

// loggerNotifier writes notifications to the logger. Useful in development
// and as the default until a mail transport is wired in.
type loggerNotifier struct {
	logger Logger
}

func NewLoggerNotifier(logger Logger) Notifier {
	if logger == nil {
		logger = defLogger{}
	}
	return &loggerNotifier{logger: logger}
}

func (n *loggerNotifier) SendEmailVerification(_ context.Context, email, token string) error {
	n.logger.Info("notify email verification: to=%s token=%s", email, token)
	return nil
}

func (n *loggerNotifier) SendPasswordReset(_ context.Context, email, token string) error {
	n.logger.Info("notify password reset: to=%s token=%s", email, token)
	return nil
}

func (n *loggerNotifier) SendDeletionConfirmation(_ context.Context, email, token string) error {
	n.logger.Info("notify deletion confirmation: to=%s token=%s", email, token)
	return nil
}

func (n *loggerNotifier) SendDeletionScheduled(_ context.Context, email string, at time.Time) error {
	n.logger.Info("notify deletion scheduled: to=%s at=%s", email, at.Format(time.RFC3339))
	return nil
}

func (n *loggerNotifier) SendDeletionCanceled(_ context.Context, email string) error {
	n.logger.Info("notify deletion canceled: to=%s", email)
	return nil
}

func normalizeNotifier(n Notifier) Notifier {
	if n == nil {
		return noopNotifier{}
	}
	return n
}
