package notifier

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amishk599/noticewatch/internal/model"
)

func TestLogNotifier_Notify_logsFields(t *testing.T) {
	var buf bytes.Buffer
	n := NewLogNotifier(slog.New(slog.NewTextHandler(&buf, nil)))

	err := n.Notify(context.Background(), model.Alert{
		Org:       "XYZ Board",
		URL:       "https://xyz.example/careers/walkin",
		Category:  model.CategoryNewPage,
		LinkedPDF: "https://xyz.example/walkin.pdf",
	})
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, `org="XYZ Board"`)
	assert.Contains(t, out, "url=https://xyz.example/careers/walkin")
	assert.Contains(t, out, "category=new_page")
	assert.Contains(t, out, "linked_pdf=")
}

func TestLogNotifier_Send(t *testing.T) {
	var buf bytes.Buffer
	n := NewLogNotifier(slog.New(slog.NewTextHandler(&buf, nil)))
	require.NoError(t, n.Send(context.Background(), "❌ Sources file empty or invalid"))
	assert.Contains(t, buf.String(), "level=WARN")
}
