// Copyright 2024-2025, Felipe Barte de Oliveira
// For license information, see https://github.com/felipebarte/cnab/blob/master/LICENSE

// Package ingest coordinates one end-to-end file ingest: detect, parse,
// validate, extract, persist, and optionally deliver the result to a
// webhook. A Service runs many ingests concurrently over a worker pool.
package ingest

import (
	"time"

	"github.com/spf13/pflag"

	"github.com/felipebarte/cnab/cnab"
)

// Options is the per-ingest configuration record. The zero value means:
// auto-detect, deduplicate, no webhook override, validation included.
type Options struct {
	// ForceReprocess bypasses content-hash dedup.
	ForceReprocess bool
	// SkipDetection disables auto-detection; Format must then be set.
	SkipDetection bool
	// Format is the dialect parsed when SkipDetection is set. With
	// detection on, the detector's result is used and Format is ignored.
	Format cnab.Dialect
	// WebhookURL overrides the dispatcher's default destination.
	WebhookURL string
	// SkipValidation omits the validation report from the result.
	SkipValidation bool
	// FileName is the caller-supplied name recorded on the file row.
	FileName string
}

// Config tunes the processor and its worker service.
type Config struct {
	// Deadline bounds one whole ingest; past it the transaction rolls
	// back and the operation is marked TIMEOUT.
	Deadline time.Duration `koanf:"deadline"`

	// VerifyBarcodes checks each extracted barcode against the
	// settlement API, through the TTL cache.
	VerifyBarcodes bool          `koanf:"verify-barcodes"`
	CacheSize      int           `koanf:"cache-size"`
	CacheTTL       time.Duration `koanf:"cache-ttl"`

	Workers   int `koanf:"workers"`
	QueueSize int `koanf:"queue-size"`
}

var DefaultConfig = Config{
	Deadline:  2 * time.Minute,
	CacheSize: 1024,
	CacheTTL:  5 * time.Minute,
	Workers:   4,
	QueueSize: 64,
}

func ConfigAddOptions(prefix string, f *pflag.FlagSet) {
	f.Duration(prefix+".deadline", DefaultConfig.Deadline, "per-ingest deadline")
	f.Bool(prefix+".verify-barcodes", DefaultConfig.VerifyBarcodes, "verify extracted barcodes against the settlement API")
	f.Int(prefix+".cache-size", DefaultConfig.CacheSize, "barcode verification cache entries")
	f.Duration(prefix+".cache-ttl", DefaultConfig.CacheTTL, "barcode verification cache entry lifetime")
	f.Int(prefix+".workers", DefaultConfig.Workers, "concurrent ingest workers")
	f.Int(prefix+".queue-size", DefaultConfig.QueueSize, "pending ingest queue length")
}
