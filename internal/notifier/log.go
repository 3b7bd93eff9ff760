package notifier

import (
	"context"
	"log/slog"

	"github.com/amishk599/noticewatch/internal/model"
)

// Ensure LogNotifier implements model.Notifier.
var _ model.Notifier = (*LogNotifier)(nil)

// LogNotifier writes alerts to the given logger as structured messages.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier returns a notifier that logs each alert via slog.
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

// Notify logs the alert. Returns nil (stdout logging does not fail).
func (n *LogNotifier) Notify(_ context.Context, a model.Alert) error {
	args := []any{"org", a.Org, "category", a.Category, "url", a.URL}
	if a.LinkedPDF != "" {
		args = append(args, "linked_pdf", a.LinkedPDF)
	}
	n.logger.Info(a.Category.Headline(), args...)
	return nil
}

func (n *LogNotifier) Send(_ context.Context, text string) error {
	n.logger.Warn(text)
	return nil
}
