// Copyright 2024-2025, Felipe Barte de Oliveira
// For license information, see https://github.com/felipebarte/cnab/blob/master/LICENSE

package main

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/felipebarte/cnab/util/testhelpers"
)

func TestCNABdConfig(t *testing.T) {
	args := strings.Split("--db.dsn postgres://cnab@localhost/cnab --webhook.enabled --webhook.retry-attempts 5 --swap.environment production retorno.ret", " ")
	config, paths, err := ParseCNABd(context.Background(), args)
	testhelpers.RequireImpl(t, err)

	if config.DB.DSN != "postgres://cnab@localhost/cnab" {
		t.Fatalf("dsn = %q", config.DB.DSN)
	}
	if !config.Webhook.Enabled || config.Webhook.RetryAttempts != 5 {
		t.Fatalf("webhook config = %+v", config.Webhook)
	}
	if config.Swap.Environment != "production" {
		t.Fatalf("swap environment = %q", config.Swap.Environment)
	}
	if len(paths) != 1 || paths[0] != "retorno.ret" {
		t.Fatalf("paths = %v", paths)
	}
}

func TestCNABdConfigDefaults(t *testing.T) {
	config, _, err := ParseCNABd(context.Background(), nil)
	testhelpers.RequireImpl(t, err)

	if config.LogLevel != "info" {
		t.Fatalf("log level = %q", config.LogLevel)
	}
	if config.Webhook.RetryAttempts != 3 || config.Webhook.RetryDelay != time.Second {
		t.Fatalf("webhook defaults = %+v", config.Webhook)
	}
	if config.Swap.CircuitThreshold != 5 {
		t.Fatalf("swap defaults = %+v", config.Swap)
	}
	if config.Ingest.Workers != 4 {
		t.Fatalf("ingest defaults = %+v", config.Ingest)
	}
}

func TestEnvTransform(t *testing.T) {
	for in, want := range map[string]string{
		"WEBHOOK_ENABLED":        "webhook.enabled",
		"WEBHOOK_RETRY_ATTEMPTS": "webhook.retry-attempts",
		"SWAP_CLIENT_ID":         "swap.client-id",
		"SWAP_ENVIRONMENT":       "swap.environment",
		"COMPANY_CNPJ":           "swap.company-cnpj",
		"WEBHOOK_CNAB_URL":       "webhook.url",
		"DATABASE_DSN":           "db.dsn",
	} {
		if got := envTransform(in); got != want {
			t.Fatalf("envTransform(%q) = %q, want %q", in, got, want)
		}
	}
}
