// Copyright 2024-2025, Felipe Barte de Oliveira
// For license information, see https://github.com/felipebarte/cnab/blob/master/LICENSE

// Package swap is the client for the boleto settlement API: OAuth token
// caching with single-flight refresh, a per-instance circuit breaker, and
// the check/pay domain operations.
package swap

import (
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/pflag"
)

const (
	stagingURL    = "https://api-stag.contaswap.io"
	productionURL = "https://api-prod.contaswap.io"
)

// Config selects the environment and credentials. Every knob except BaseURL
// has a flag so the entry point can wire it from the command line or
// environment.
type Config struct {
	Environment  string        `koanf:"environment"`
	ClientID     string        `koanf:"client-id"`
	ClientSecret string        `koanf:"client-secret"`
	APIKey       string        `koanf:"api-key"`
	AccountID    string        `koanf:"account-id"`
	CompanyCNPJ  string        `koanf:"company-cnpj"`
	Timeout      time.Duration `koanf:"timeout"`

	CircuitThreshold int           `koanf:"circuit-threshold"`
	CircuitCooldown  time.Duration `koanf:"circuit-cooldown"`

	// Payment window, local wall clock, HH:MM.
	WindowStart string `koanf:"window-start"`
	WindowEnd   string `koanf:"window-end"`

	// TokenSkew is subtracted from the upstream expiry so a token is
	// refreshed before it actually lapses.
	TokenSkew time.Duration `koanf:"token-skew"`

	// BaseURL overrides the environment mapping, for tests.
	BaseURL string `koanf:"base-url"`
}

var DefaultConfig = Config{
	Environment:      "staging",
	Timeout:          30 * time.Second,
	CircuitThreshold: 5,
	CircuitCooldown:  60 * time.Second,
	WindowStart:      "07:00",
	WindowEnd:        "23:00",
	TokenSkew:        30 * time.Second,
}

func ConfigAddOptions(prefix string, f *pflag.FlagSet) {
	f.String(prefix+".environment", DefaultConfig.Environment, "settlement API environment (staging or production)")
	f.String(prefix+".client-id", "", "OAuth client id")
	f.String(prefix+".client-secret", "", "OAuth client secret")
	f.String(prefix+".api-key", "", "x-api-key header value")
	f.String(prefix+".account-id", "", "ledger account paying the boletos")
	f.String(prefix+".company-cnpj", "", "fallback document on boleto payment")
	f.Duration(prefix+".timeout", DefaultConfig.Timeout, "per-request timeout")
	f.Int(prefix+".circuit-threshold", DefaultConfig.CircuitThreshold, "consecutive failures before the circuit opens")
	f.Duration(prefix+".circuit-cooldown", DefaultConfig.CircuitCooldown, "open-circuit recovery window")
	f.String(prefix+".window-start", DefaultConfig.WindowStart, "payment window start, HH:MM local")
	f.String(prefix+".window-end", DefaultConfig.WindowEnd, "payment window end, HH:MM local")
	f.Duration(prefix+".token-skew", DefaultConfig.TokenSkew, "token expiry safety margin")
}

func (c Config) baseURL() (string, error) {
	if c.BaseURL != "" {
		return c.BaseURL, nil
	}
	switch c.Environment {
	case "staging":
		return stagingURL, nil
	case "production":
		return productionURL, nil
	default:
		return "", errors.Errorf("unknown settlement environment %q", c.Environment)
	}
}
