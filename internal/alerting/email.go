package alerting

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"

	"github.com/sg-transit-watch/monitor/internal/store"
)

// EmailChannel sends alert notifications through SendGrid. With an
// incomplete configuration the channel is disabled and Send returns
// ErrChannelDisabled, so the pipeline runs without email in
// development and alerts stay unnotified.
type EmailChannel struct {
	apiKey string
	from   string
	to     string
	logger zerolog.Logger
}

// NewEmailChannel creates the channel. It logs once when disabled.
func NewEmailChannel(apiKey, from, to string, logger zerolog.Logger) *EmailChannel {
	c := &EmailChannel{apiKey: apiKey, from: from, to: to, logger: logger}
	if !c.enabled() {
		logger.Warn().Msg("email alerts disabled (sendgrid api key or recipient not configured)")
	}
	return c
}

func (c *EmailChannel) enabled() bool {
	return c.apiKey != "" && c.from != "" && c.to != ""
}

// Send delivers one alert as a plain-text email. An unconfigured
// channel returns ErrChannelDisabled so the caller does not record the
// alert as notified.
func (c *EmailChannel) Send(ctx context.Context, alert store.Alert) error {
	if !c.enabled() {
		return ErrChannelDisabled
	}

	subject := fmt.Sprintf("[%s] Transit Watch Alert", alert.Severity)
	body := fmt.Sprintf(`Transit Watch Alert

Alert Type: %s
Severity: %s
Time: %s

Message:
%s

Details:
%s

---
This is an automated alert from Transit Watch.
`,
		alert.Kind,
		alert.Severity,
		alert.CreatedAt.Format(time.RFC3339),
		alert.Message,
		formatDetails(alert.Details),
	)

	from := mail.NewEmail("Transit Watch", c.from)
	to := mail.NewEmail("Operations", c.to)
	message := mail.NewSingleEmail(from, subject, to, body, body)

	client := sendgrid.NewSendClient(c.apiKey)
	response, err := client.SendWithContext(ctx, message)
	if err != nil {
		return fmt.Errorf("failed to send alert email: %w", err)
	}
	if response.StatusCode >= 400 {
		return fmt.Errorf("alert email rejected with status %d", response.StatusCode)
	}

	c.logger.Info().Str("alert_id", alert.ID).Str("to", c.to).Msg("alert email sent")
	return nil
}

// formatDetails renders the detail payload one humanized key per line,
// in stable order.
func formatDetails(details map[string]float64) string {
	if len(details) == 0 {
		return "  (none)"
	}

	keys := make([]string, 0, len(details))
	for k := range details {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	lines := make([]string, 0, len(keys))
	for _, k := range keys {
		lines = append(lines, fmt.Sprintf("  - %s: %g", humanizeKey(k), details[k]))
	}
	return strings.Join(lines, "\n")
}

// humanizeKey turns a snake_case metric name into a title-cased label,
// e.g. "avg_delay" -> "Avg Delay".
func humanizeKey(key string) string {
	words := strings.Split(key, "_")
	for i, w := range words {
		if w == "" {
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
