package notifier

import (
	"context"
	"errors"
	"fmt"

	"github.com/amishk599/noticewatch/internal/model"
)

// NopNotifier drops every alert. Used when a notifier is configured without
// credentials: delivery is silently skipped rather than failing.
type NopNotifier struct{}

func (NopNotifier) Notify(context.Context, model.Alert) error { return nil }
func (NopNotifier) Send(context.Context, string) error        { return nil }

// Multi fans an alert out to several notifiers. Every notifier is tried;
// the joined errors are returned.
type Multi []model.Notifier

func (m Multi) Notify(ctx context.Context, a model.Alert) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, a); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m Multi) Send(ctx context.Context, text string) error {
	var errs []error
	for _, n := range m {
		if err := n.Send(ctx, text); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// SendTestMessage sends a synthetic alert to verify the integration works.
func SendTestMessage(ctx context.Context, n model.Notifier) error {
	alert := model.Alert{
		Org:      "noticewatch test",
		URL:      "https://example.com/recruitment_notification.pdf",
		Category: model.CategoryNewPDF,
	}
	if err := n.Notify(ctx, alert); err != nil {
		return fmt.Errorf("sending test alert: %w", err)
	}
	return nil
}
