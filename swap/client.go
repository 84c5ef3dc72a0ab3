// Copyright 2024-2025, Felipe Barte de Oliveira
// For license information, see https://github.com/felipebarte/cnab/blob/master/LICENSE

package swap

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"

	"github.com/felipebarte/cnab/cnab"
	"github.com/felipebarte/cnab/util/circuit"
)

// Error kinds the caller can branch on with errors.Is.
var (
	ErrInvalidFormat = errors.New("INVALID_FORMAT: barcode must be 47 or 48 digits")
	ErrEmptyResponse = errors.New("EMPTY_RESPONSE: settlement API returned no body")
	ErrTimeout       = errors.New("TIMEOUT: settlement API request timed out")
	ErrNetwork       = errors.New("NETWORK: settlement API unreachable")
	ErrAuth          = errors.New("AUTH: settlement API rejected credentials")
	ErrUpstream      = errors.New("UPSTREAM: settlement API internal error")
)

// Client talks to the settlement API. Token cache and breaker state are
// per-instance: the entry point owns the lifecycle and hands the client to
// whoever needs it, there is no process-global state.
type Client struct {
	config     Config
	baseURL    string
	httpClient *http.Client
	breaker    *circuit.Breaker

	tokenMu     sync.Mutex
	token       *token
	tokenFlight singleflight.Group

	now func() time.Time
}

func NewClient(config Config) (*Client, error) {
	base, err := config.baseURL()
	if err != nil {
		return nil, err
	}
	if config.TokenSkew <= 0 {
		config.TokenSkew = DefaultConfig.TokenSkew
	}
	return &Client{
		config:     config,
		baseURL:    base,
		httpClient: &http.Client{Timeout: config.Timeout},
		breaker:    circuit.New(config.CircuitThreshold, config.CircuitCooldown),
		now:        time.Now,
	}, nil
}

// Boleto is the settlement API's view of a payable, enriched with the
// client-side payability flags.
type Boleto struct {
	ID      string          `json:"id"`
	Barcode string          `json:"barcode"`
	Amount  int64           `json:"amount"` // integer cents
	DueDate string          `json:"due_date"`
	Status  string          `json:"status"`

	// CanPayToday is true when the due date is today or later.
	CanPayToday bool `json:"canPayToday"`
	// InPaymentWindow is true inside the configured HH:MM local window.
	InPaymentWindow bool `json:"isInPaymentWindow"`
}

// Value is the exact decimal form of the integer-cents amount.
func (b *Boleto) Value() decimal.Decimal {
	return decimal.New(b.Amount, -2)
}

// ValidateBarcode enforces the settlement API's input shape before any
// network call: digits only, 47 (título linha digitável) or 48 (tributo).
func ValidateBarcode(barcode string) error {
	if !cnab.AllDigits(barcode) {
		return errors.Wrapf(ErrInvalidFormat, "barcode %q carries non-digits", barcode)
	}
	if len(barcode) != 47 && len(barcode) != 48 {
		return errors.Wrapf(ErrInvalidFormat, "barcode has %d digits", len(barcode))
	}
	return nil
}

// CheckBoleto verifies a boleto with the settlement API and enriches the
// result with payability flags.
func (c *Client) CheckBoleto(ctx context.Context, barcode string) (*Boleto, error) {
	if err := ValidateBarcode(barcode); err != nil {
		return nil, err
	}

	raw, err := c.authenticatedRequest(ctx, http.MethodPost, "/ledger/payments/boletos",
		map[string]string{"barcode": barcode})
	if err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, ErrEmptyResponse
	}

	var b Boleto
	if err := json.Unmarshal(raw, &b); err != nil {
		return nil, errors.Wrap(err, "decoding boleto response")
	}

	now := c.now()
	b.CanPayToday = canPayToday(b.DueDate, now)
	b.InPaymentWindow = inWindow(c.config.WindowStart, c.config.WindowEnd, now)
	return &b, nil
}

// PayBoleto checks the boleto first and then settles it. The document
// falls back to the company CNPJ when the caller has none.
func (c *Client) PayBoleto(ctx context.Context, barcode, document string) (*Boleto, error) {
	b, err := c.CheckBoleto(ctx, barcode)
	if err != nil {
		return nil, err
	}
	if b.ID == "" {
		return nil, errors.New("settlement API returned a boleto without an id")
	}

	if document == "" {
		document = c.config.CompanyCNPJ
	}
	payload := map[string]interface{}{
		"amount":     b.Amount,
		"document":   document,
		"account_id": c.config.AccountID,
	}
	raw, err := c.authenticatedRequest(ctx, http.MethodPost,
		fmt.Sprintf("/ledger/payments/boletos/%s/pay", b.ID), payload)
	if err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(raw)) > 0 {
		// The pay response mirrors the boleto with its settled status.
		var paid Boleto
		if err := json.Unmarshal(raw, &paid); err == nil && paid.ID != "" {
			paid.CanPayToday = b.CanPayToday
			paid.InPaymentWindow = b.InPaymentWindow
			return &paid, nil
		}
	}
	return b, nil
}

// authenticatedRequest attaches the bearer token and api key, fails fast
// when the circuit is open, and retries exactly once on a 401 after
// invalidating the token cache.
func (c *Client) authenticatedRequest(ctx context.Context, method, path string, body interface{}) ([]byte, error) {
	if err := c.breaker.Allow(); err != nil {
		return nil, err
	}

	raw, status, err := c.doOnce(ctx, method, path, body)
	if err != nil {
		if errors.Is(err, ErrTimeout) || errors.Is(err, ErrNetwork) || errors.Is(err, ErrUpstream) {
			c.breaker.Failure()
		}
		return nil, err
	}

	if status == http.StatusUnauthorized {
		log.Warn("settlement API returned 401, re-authenticating", "path", path)
		c.invalidateToken()
		raw, status, err = c.doOnce(ctx, method, path, body)
		if err != nil {
			if errors.Is(err, ErrTimeout) || errors.Is(err, ErrNetwork) || errors.Is(err, ErrUpstream) {
				c.breaker.Failure()
			}
			return nil, err
		}
		if status == http.StatusUnauthorized {
			c.breaker.Success()
			return nil, errors.Wrap(ErrAuth, "still unauthorized after re-authentication")
		}
	}

	if status >= 500 {
		c.breaker.Failure()
		return nil, errors.Wrapf(ErrUpstream, "settlement API returned %d", status)
	}
	c.breaker.Success()
	if status >= 400 {
		return nil, errors.Errorf("settlement API returned %d: %s", status, raw)
	}
	return raw, nil
}

func (c *Client) doOnce(ctx context.Context, method, path string, body interface{}) ([]byte, int, error) {
	tok, err := c.getAccessToken(ctx)
	if err != nil {
		return nil, 0, err
	}

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, 0, errors.Wrap(err, "encoding request body")
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, 0, errors.Wrap(err, "building request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+tok)
	req.Header.Set("x-api-key", c.config.APIKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, classifyTransport(err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, errors.Wrap(err, "reading response body")
	}
	return raw, resp.StatusCode, nil
}

// classifyTransport maps a transport failure onto the retryable kinds.
func classifyTransport(err error) error {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return errors.Wrap(ErrTimeout, err.Error())
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return errors.Wrap(ErrTimeout, err.Error())
	}
	return errors.Wrap(ErrNetwork, err.Error())
}

// canPayToday is true when the ISO due date is today or in the future.
// A missing or malformed due date reads as payable; the upstream remains
// the authority on actual acceptance.
func canPayToday(dueDate string, now time.Time) bool {
	if dueDate == "" {
		return true
	}
	due, err := time.ParseInLocation("2006-01-02", dueDate, now.Location())
	if err != nil {
		return true
	}
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	return !due.Before(today)
}

// inWindow checks the local wall clock against an HH:MM window.
func inWindow(start, end string, now time.Time) bool {
	parse := func(s string) (int, bool) {
		var h, m int
		if _, err := fmt.Sscanf(s, "%d:%d", &h, &m); err != nil {
			return 0, false
		}
		return h*60 + m, true
	}
	s, okS := parse(start)
	e, okE := parse(end)
	if !okS || !okE {
		return true
	}
	cur := now.Hour()*60 + now.Minute()
	return cur >= s && cur <= e
}
