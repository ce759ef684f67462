// Package webhook delivers outbox events to an HTTP endpoint.
package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"stockalloc/internal/domain/notify"
	"stockalloc/internal/infrastructure/storage/postgres"
)

// SignatureHeader carries the hex HMAC-SHA256 of the request body.
const SignatureHeader = "X-Webhook-Signature"

// Config configures a Handler.
type Config struct {
	URL     string
	Secret  string
	Timeout time.Duration
}

// Payload is the body POSTed for every event.
type Payload struct {
	Event     string    `json:"event"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data"`
}

var _ postgres.OutboxHandler = (*Handler)(nil)

// Handler is an outbox handler that POSTs events as JSON.
type Handler struct {
	url    string
	secret []byte
	client *http.Client
}

// New creates a handler. A zero timeout means ten seconds.
func New(cfg Config) *Handler {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	var secret []byte
	if cfg.Secret != "" {
		secret = []byte(cfg.Secret)
	}
	return &Handler{
		url:    cfg.URL,
		secret: secret,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

// Handle delivers one outbox message. Any non-2xx answer is an error so the
// relay schedules a retry.
func (h *Handler) Handle(ctx context.Context, msg *postgres.OutboxMessage) error {
	var evt notify.Event
	if err := json.Unmarshal(msg.Payload, &evt); err != nil {
		return fmt.Errorf("decode outbox payload: %w", err)
	}
	return h.Send(ctx, Payload{Event: evt.Type, Timestamp: msg.CreatedAt.UTC(), Data: evt.Data})
}

// Send POSTs p to the configured URL.
func (h *Handler) Send(ctx context.Context, p Payload) error {
	body, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if h.secret != nil {
		req.Header.Set(SignatureHeader, Sign(h.secret, body))
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("webhook returned %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// Sign returns the hex HMAC-SHA256 of body under secret.
func Sign(secret, body []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
