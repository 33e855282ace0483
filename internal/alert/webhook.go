package alert

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/triutilizer/backend/internal/config"
)

// Client posts solver alerts (repeated divergence, aborted solves) to an
// operator webhook. Identical alert kinds are rate limited through Redis so
// a stuck simulation does not flood the channel.
type Client struct {
	webhookURL      string
	rdb             *redis.Client
	httpClient      *http.Client
	minIntervalSecs int
	rateKeyPrefix   string
}

// Default package-level client (set from main on startup)
var Default *Client

// SetDefault sets the package Default client.
func SetDefault(c *Client) {
	Default = c
}

// NewClient constructs a webhook client. Returns nil if not configured.
func NewClient(cfg *config.Config, rdb *redis.Client) *Client {
	if cfg == nil || cfg.AlertWebhookURL == "" {
		return nil
	}

	return &Client{
		webhookURL:      strings.TrimSpace(cfg.AlertWebhookURL),
		rdb:             rdb,
		httpClient:      &http.Client{Timeout: 15 * time.Second},
		minIntervalSecs: cfg.AlertMinIntervalSecs,
		rateKeyPrefix:   "alert_rate:",
	}
}

// Notify posts one alert. kind is a stable identifier used for rate limiting
// ("divergence", "solve_abort"); fields carry the alert payload.
func (c *Client) Notify(ctx context.Context, kind, message string, fields map[string]interface{}) error {
	if c == nil {
		return errors.New("alert client not configured")
	}

	// Rate limit per kind
	if c.rdb != nil && c.minIntervalSecs > 0 {
		key := c.rateKeyPrefix + kind
		ok, err := c.rdb.SetNX(ctx, key, "1", time.Duration(c.minIntervalSecs)*time.Second).Result()
		if err == nil && !ok {
			return fmt.Errorf("rate limited: %s", kind)
		}
		// ignore Redis errors and proceed
	}

	payload := map[string]interface{}{
		"kind":    kind,
		"message": message,
		"fields":  fields,
		"sent_at": time.Now().UTC().Format(time.RFC3339),
	}
	b, _ := json.Marshal(payload)

	// Retry loop for transient errors
	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		req, err := http.NewRequestWithContext(ctx, "POST", c.webhookURL, strings.NewReader(string(b)))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
			if attempt < 2 {
				time.Sleep(time.Duration(100+attempt*200) * time.Millisecond)
				continue
			}
			break
		}

		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return nil
		}

		if resp.StatusCode >= 500 && attempt < 2 {
			lastErr = fmt.Errorf("webhook error %d: %s", resp.StatusCode, string(body))
			time.Sleep(time.Duration(100+attempt*200) * time.Millisecond)
			continue
		}

		return fmt.Errorf("alert post failed: %d %s", resp.StatusCode, string(body))
	}

	if lastErr != nil {
		return lastErr
	}
	return errors.New("alert post failed")
}

// Notify posts an alert using the package Default client (if set). Callers
// on the step path fire it from a goroutine and only log failures.
func Notify(ctx context.Context, kind, message string, fields map[string]interface{}) {
	if Default == nil {
		return
	}
	if err := Default.Notify(ctx, kind, message, fields); err != nil {
		log.Printf("[ALERT] %s not delivered: %v", kind, err)
	}
}
