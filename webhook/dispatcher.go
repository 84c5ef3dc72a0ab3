// Copyright 2024-2025, Felipe Barte de Oliveira
// For license information, see https://github.com/felipebarte/cnab/blob/master/LICENSE

// Package webhook posts structured ingest results to caller-configured
// URLs, retrying with progressive linear backoff. Delivery failures never
// affect the ingest outcome; the caller only logs and reports them.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/ethereum/go-ethereum/log"
	"github.com/pkg/errors"
	"github.com/spf13/pflag"
)

const (
	headerSource    = "X-Webhook-Source"
	headerVersion   = "X-Webhook-Version"
	headerAttempt   = "X-Tentativa"
	headerOperation = "X-Operation-Id"
)

// Config controls delivery behavior. Disabled dispatchers return without
// any I/O.
type Config struct {
	Enabled       bool          `koanf:"enabled"`
	URL           string        `koanf:"url"`
	Timeout       time.Duration `koanf:"timeout"`
	RetryAttempts int           `koanf:"retry-attempts"`
	RetryDelay    time.Duration `koanf:"retry-delay"`
	Source        string        `koanf:"source"`
	Version       string        `koanf:"version"`
}

var DefaultConfig = Config{
	Enabled:       false,
	Timeout:       30 * time.Second,
	RetryAttempts: 3,
	RetryDelay:    time.Second,
	Source:        "cnab-ingest",
	Version:       "1.0",
}

func ConfigAddOptions(prefix string, f *pflag.FlagSet) {
	f.Bool(prefix+".enabled", DefaultConfig.Enabled, "enable webhook delivery")
	f.String(prefix+".url", DefaultConfig.URL, "default webhook destination")
	f.Duration(prefix+".timeout", DefaultConfig.Timeout, "per-attempt timeout")
	f.Int(prefix+".retry-attempts", DefaultConfig.RetryAttempts, "delivery attempts before giving up")
	f.Duration(prefix+".retry-delay", DefaultConfig.RetryDelay, "base retry delay; attempt k waits k times this")
	f.String(prefix+".source", DefaultConfig.Source, "X-Webhook-Source header value")
	f.String(prefix+".version", DefaultConfig.Version, "X-Webhook-Version header value")
}

// Delivery is the outcome of one Send: how many attempts ran, whether any
// succeeded, and the final classification when none did.
type Delivery struct {
	Delivered  bool          `json:"enviado"`
	Attempts   int           `json:"tentativas"`
	StatusCode int           `json:"statusCode,omitempty"`
	Reason     string        `json:"reason,omitempty"`
	Error      string        `json:"erro,omitempty"`
	Elapsed    time.Duration `json:"-"`
}

// Attemptable payloads learn which delivery attempt is carrying them, so
// the receiver can dedup replays.
type Attemptable interface {
	SetAttempt(attempt int, at time.Time)
}

// Dispatcher delivers payloads. One instance is shared across ingests; it
// holds no per-delivery state.
type Dispatcher struct {
	config     Config
	httpClient *http.Client
}

func NewDispatcher(config Config) *Dispatcher {
	if config.RetryAttempts <= 0 {
		config.RetryAttempts = DefaultConfig.RetryAttempts
	}
	return &Dispatcher{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
	}
}

// linearBackOff waits RetryDelay·k before attempt k+1, the progressive
// policy the receiver contract promises.
type linearBackOff struct {
	delay   time.Duration
	attempt int
}

func (l *linearBackOff) NextBackOff() time.Duration {
	l.attempt++
	return l.delay * time.Duration(l.attempt)
}

func (l *linearBackOff) Reset() { l.attempt = 0 }

// Send posts the payload as JSON to url (the configured default when url
// is empty). Retryable failures (timeout, network, 5xx, 408, 429) drive
// the retry loop; other client errors fail immediately.
func (d *Dispatcher) Send(ctx context.Context, payload interface{}, url, operationID string) Delivery {
	start := time.Now()
	if !d.config.Enabled {
		return Delivery{Delivered: false, Reason: "disabled"}
	}
	if url == "" {
		url = d.config.URL
	}
	if url == "" {
		return Delivery{Delivered: false, Reason: "no-url"}
	}

	var delivery Delivery
	attempt := 0

	operation := func() error {
		attempt++
		delivery.Attempts = attempt

		if a, ok := payload.(Attemptable); ok {
			a.SetAttempt(attempt, time.Now().UTC())
		}
		body, err := json.Marshal(payload)
		if err != nil {
			return backoff.Permanent(errors.Wrap(err, "encoding webhook payload"))
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(errors.Wrap(err, "building webhook request"))
		}
		req.Header.Set("Content-Type", "application/json; charset=utf-8")
		req.Header.Set("User-Agent", d.config.Source+"/"+d.config.Version)
		req.Header.Set(headerSource, d.config.Source)
		req.Header.Set(headerVersion, d.config.Version)
		req.Header.Set(headerAttempt, strconv.Itoa(attempt))
		req.Header.Set(headerOperation, operationID)

		resp, err := d.httpClient.Do(req)
		if err != nil {
			delivery.Reason = classifyTransport(err)
			return err
		}
		defer resp.Body.Close()
		delivery.StatusCode = resp.StatusCode

		switch {
		case resp.StatusCode < 300:
			delivery.Delivered = true
			delivery.Reason = ""
			return nil
		case resp.StatusCode == http.StatusUnauthorized:
			delivery.Reason = "auth"
			return backoff.Permanent(errors.Errorf("webhook endpoint returned 401"))
		case resp.StatusCode >= 500:
			delivery.Reason = "upstream"
			return errors.Errorf("webhook endpoint returned %d", resp.StatusCode)
		case resp.StatusCode == http.StatusRequestTimeout || resp.StatusCode == http.StatusTooManyRequests:
			delivery.Reason = "timeout"
			return errors.Errorf("webhook endpoint returned %d", resp.StatusCode)
		default:
			delivery.Reason = "client"
			return backoff.Permanent(errors.Errorf("webhook endpoint returned %d", resp.StatusCode))
		}
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(&linearBackOff{delay: d.config.RetryDelay}, uint64(d.config.RetryAttempts-1)),
		ctx)

	err := backoff.Retry(operation, policy)
	delivery.Elapsed = time.Since(start)
	if err != nil {
		delivery.Delivered = false
		delivery.Error = err.Error()
		log.Warn("webhook delivery failed", "url", url, "attempts", delivery.Attempts,
			"reason", delivery.Reason, "elapsed", delivery.Elapsed, "err", err)
		return delivery
	}
	log.Info("webhook delivered", "url", url, "attempts", delivery.Attempts, "elapsed", delivery.Elapsed)
	return delivery
}

func classifyTransport(err error) string {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "timeout"
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	return "network"
}
