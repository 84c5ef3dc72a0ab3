// Copyright 2024-2025, Felipe Barte de Oliveira
// For license information, see https://github.com/felipebarte/cnab/blob/master/LICENSE

package ingest

import (
	"context"
	"time"

	lru "github.com/hashicorp/golang-lru"
	"golang.org/x/sync/singleflight"

	"github.com/felipebarte/cnab/swap"
)

// BoletoChecker is the slice of the settlement client the cache needs.
type BoletoChecker interface {
	CheckBoleto(ctx context.Context, barcode string) (*swap.Boleto, error)
}

type cacheEntry struct {
	boleto  *swap.Boleto
	expires time.Time
}

// verifyCache memoizes settlement-API barcode checks. Lookups are
// concurrent-safe; a miss triggers a single upstream call per barcode no
// matter how many ingests race on it.
type verifyCache struct {
	entries *lru.Cache
	ttl     time.Duration
	flight  singleflight.Group
	checker BoletoChecker
	now     func() time.Time
}

func newVerifyCache(size int, ttl time.Duration, checker BoletoChecker) (*verifyCache, error) {
	entries, err := lru.New(size)
	if err != nil {
		return nil, err
	}
	return &verifyCache{
		entries: entries,
		ttl:     ttl,
		checker: checker,
		now:     time.Now,
	}, nil
}

// Check returns the cached verification while it is fresh, otherwise it
// coalesces concurrent misses into one upstream CheckBoleto.
func (c *verifyCache) Check(ctx context.Context, barcode string) (*swap.Boleto, error) {
	if v, ok := c.entries.Get(barcode); ok {
		entry := v.(cacheEntry)
		if c.now().Before(entry.expires) {
			return entry.boleto, nil
		}
		c.entries.Remove(barcode)
	}

	v, err, _ := c.flight.Do(barcode, func() (interface{}, error) {
		// A waiter queued behind the winner finds the entry populated.
		if v, ok := c.entries.Get(barcode); ok {
			entry := v.(cacheEntry)
			if c.now().Before(entry.expires) {
				return entry.boleto, nil
			}
		}
		b, err := c.checker.CheckBoleto(ctx, barcode)
		if err != nil {
			return nil, err
		}
		c.entries.Add(barcode, cacheEntry{boleto: b, expires: c.now().Add(c.ttl)})
		return b, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*swap.Boleto), nil
}
