package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/amishk599/noticewatch/internal/model"
)

// DefaultTelegramAPI is the Bot API base URL.
const DefaultTelegramAPI = "https://api.telegram.org"

// Ensure TelegramNotifier implements model.Notifier.
var _ model.Notifier = (*TelegramNotifier)(nil)

// TelegramNotifier sends alerts to one chat through a bot.
type TelegramNotifier struct {
	apiBase    string
	token      string
	chatID     string
	prefix     string // prepended to every message, e.g. "[PSC JOB]"
	httpClient *http.Client
	logger     *slog.Logger
}

// NewTelegramNotifier returns a Telegram notifier. apiBase may be empty for
// the public Bot API.
func NewTelegramNotifier(apiBase, token, chatID, prefix string, httpClient *http.Client, logger *slog.Logger) *TelegramNotifier {
	if apiBase == "" {
		apiBase = DefaultTelegramAPI
	}
	return &TelegramNotifier{
		apiBase:    strings.TrimRight(apiBase, "/"),
		token:      token,
		chatID:     chatID,
		prefix:     prefix,
		httpClient: httpClient,
		logger:     logger,
	}
}

func (t *TelegramNotifier) Notify(ctx context.Context, a model.Alert) error {
	if err := t.Send(ctx, a.Message()); err != nil {
		return fmt.Errorf("telegram alert for %s: %w", a.URL, err)
	}
	t.logger.Info("telegram message sent", "org", a.Org, "url", a.URL)
	return nil
}

// Send posts text to the chat with link previews disabled.
func (t *TelegramNotifier) Send(ctx context.Context, text string) error {
	if t.prefix != "" {
		text = t.prefix + "\n" + text
	}
	body, err := json.Marshal(telegramMessage{
		ChatID:                t.chatID,
		Text:                  text,
		DisableWebPagePreview: true,
	})
	if err != nil {
		return fmt.Errorf("marshal telegram message: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", t.apiBase, t.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build telegram request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.httpClient.Do(req)
	if err != nil {
		// The URL carries the bot token; keep it out of logs.
		return fmt.Errorf("post to telegram: %w", redact(err, t.token))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("telegram returned %d: %s", resp.StatusCode, strings.TrimSpace(string(detail)))
	}
	return nil
}

type telegramMessage struct {
	ChatID                string `json:"chat_id"`
	Text                  string `json:"text"`
	DisableWebPagePreview bool   `json:"disable_web_page_preview"`
}

func redact(err error, secret string) error {
	if secret == "" {
		return err
	}
	return fmt.Errorf("%s", strings.ReplaceAll(err.Error(), secret, "***"))
}
