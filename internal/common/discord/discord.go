package discord

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"
)

// Limits enforced by the Discord webhook API.
const (
	maxEmbedFields      = 25
	maxFieldValue       = 1024
	maxEmbedDescription = 4096
)

const username = "metropath"

var levelColors = map[string]int{
	"FATAL": 0x8B0000,
	"ERROR": 0xFF0000,
	"WARN":  0xFFA500,
}

type WebhookMessage struct {
	Username string  `json:"username,omitempty"`
	Content  string  `json:"content,omitempty"`
	Embeds   []Embed `json:"embeds,omitempty"`
}

type Embed struct {
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Color       int       `json:"color"`
	Timestamp   time.Time `json:"timestamp"`
	Fields      []Field   `json:"fields,omitempty"`
}

type Field struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

// Alert is one log event worth a notification.
type Alert struct {
	Level   string
	Message string
	Fields  map[string]interface{}
	At      time.Time
}

func (a Alert) embed() Embed {
	color, ok := levelColors[a.Level]
	if !ok {
		color = 0x808080
	}
	at := a.At
	if at.IsZero() {
		at = time.Now()
	}
	e := Embed{
		Title:       username + " " + a.Level,
		Description: truncate(a.Message, maxEmbedDescription),
		Color:       color,
		Timestamp:   at.UTC(),
	}

	keys := make([]string, 0, len(a.Fields))
	for k := range a.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	if len(keys) > maxEmbedFields {
		keys = keys[:maxEmbedFields]
	}
	for _, k := range keys {
		e.Fields = append(e.Fields, Field{
			Name:   k,
			Value:  truncate(fmt.Sprint(a.Fields[k]), maxFieldValue),
			Inline: true,
		})
	}
	return e
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-len("…")] + "…"
}

// Client posts to a single webhook. A client without a URL drops everything.
type Client struct {
	webhookURL string
	httpClient *http.Client
}

func NewClient(webhookURL string) *Client {
	return &Client{
		webhookURL: strings.TrimSpace(webhookURL),
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *Client) Enabled() bool {
	return c != nil && c.webhookURL != ""
}

func (c *Client) Post(ctx context.Context, msg WebhookMessage) error {
	if !c.Enabled() {
		return nil
	}
	if msg.Username == "" {
		msg.Username = username
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encoding webhook message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.webhookURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("creating webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("posting webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return fmt.Errorf("webhook returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}

// SendAlert posts the alert as a single embed with fields sorted by name.
func (c *Client) SendAlert(ctx context.Context, a Alert) error {
	return c.Post(ctx, WebhookMessage{Embeds: []Embed{a.embed()}})
}
