package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
	"unicode/utf8"
)

// Discord payload limits.
const (
	maxContentLen    = 2000
	maxFieldValueLen = 1024
	maxFields        = 25
)

// Webhook posts Discord-compatible JSON to a URL.
type Webhook struct {
	url    string
	client *http.Client
}

// NewWebhook returns a webhook notifier. A zero timeout means 10s.
func NewWebhook(url string, timeout time.Duration) *Webhook {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Webhook{url: url, client: &http.Client{Timeout: timeout}}
}

type webhookPayload struct {
	Content string         `json:"content"`
	Embeds  []webhookEmbed `json:"embeds,omitempty"`
}

type webhookEmbed struct {
	Title  string         `json:"title"`
	Fields []webhookField `json:"fields,omitempty"`
}

type webhookField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

func (w *Webhook) Send(ctx context.Context, msg Message) error {
	body, err := json.Marshal(buildPayload(msg))
	if err != nil {
		return fmt.Errorf("failed to marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("webhook returned status %d: %s", resp.StatusCode, bytes.TrimSpace(snippet))
	}
	return nil
}

func buildPayload(msg Message) webhookPayload {
	embed := webhookEmbed{Title: truncate(msg.Title, 256)}
	for i, f := range msg.Fields {
		if i == maxFields {
			break
		}
		value := f.Value
		if value == "" {
			value = "-"
		}
		embed.Fields = append(embed.Fields, webhookField{
			Name:  truncate(f.Name, 256),
			Value: truncate(value, maxFieldValueLen),
		})
	}
	return webhookPayload{
		Content: truncate(msg.Title, maxContentLen),
		Embeds:  []webhookEmbed{embed},
	}
}

// truncate cuts s to at most n runes, marking the cut with an ellipsis.
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n-1]) + "…"
}
