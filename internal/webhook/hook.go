// SPDX-License-Identifier: Apache-2.0

// Package webhook forwards logged events to an HTTP endpoint as a post
// event hook.
package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/adiadia/tracker/internal/domain"
	"github.com/google/uuid"
)

const (
	DefaultAttempts = 1
	retryBase       = 300 * time.Millisecond

	HeaderSignature = "X-Signature"
	HeaderDelivery  = "X-Delivery-ID"
)

type Config struct {
	URL      string
	Secret   string
	Attempts int
	Client   *http.Client
	Logger   *slog.Logger
}

// Hook posts every event as JSON, signed with HMAC-SHA256 when a secret
// is configured. It implements tracking.EventHook.
type Hook struct {
	url      string
	secret   string
	attempts int
	client   *http.Client
	logger   *slog.Logger
}

type payload struct {
	DeliveryID uuid.UUID `json:"delivery_id"`
	domain.Event
}

func New(cfg Config) (*Hook, error) {
	url := strings.TrimSpace(cfg.URL)
	if url == "" {
		return nil, errors.New("webhook url is required")
	}

	h := &Hook{
		url:      url,
		secret:   cfg.Secret,
		attempts: cfg.Attempts,
		client:   cfg.Client,
		logger:   cfg.Logger,
	}
	if h.attempts <= 0 {
		h.attempts = DefaultAttempts
	}
	if h.client == nil {
		h.client = &http.Client{Timeout: 10 * time.Second}
	}
	if h.logger == nil {
		h.logger = slog.Default()
	}
	return h, nil
}

// AfterLogEvent delivers ev and returns the last delivery error once all
// attempts have failed.
func (h *Hook) AfterLogEvent(ctx context.Context, ev domain.Event) error {
	deliveryID := uuid.New()
	body, err := json.Marshal(payload{DeliveryID: deliveryID, Event: ev})
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}

	signature := Sign(h.secret, body)

	var lastErr error
	for attempt := 1; attempt <= h.attempts; attempt++ {
		lastErr = h.deliver(ctx, body, signature, deliveryID)
		if lastErr == nil {
			h.logger.Debug("webhook success",
				"delivery_id", deliveryID,
				"event_type", ev.EventType,
				"attempt", attempt,
			)
			return nil
		}

		h.logger.Warn("webhook failure",
			"delivery_id", deliveryID,
			"event_type", ev.EventType,
			"attempt", attempt,
			"error", lastErr,
		)

		if attempt < h.attempts {
			wait := retryBase * time.Duration(1<<(attempt-1))
			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}
	}

	return lastErr
}

func (h *Hook) deliver(ctx context.Context, body []byte, signature string, deliveryID uuid.UUID) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderDelivery, deliveryID.String())
	if signature != "" {
		req.Header.Set(HeaderSignature, signature)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return err
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("non-2xx response: %d", resp.StatusCode)
	}
	return nil
}

// Sign returns the hex HMAC-SHA256 of body, or "" for an empty secret.
func Sign(secret string, body []byte) string {
	if strings.TrimSpace(secret) == "" {
		return ""
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
