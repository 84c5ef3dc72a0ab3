// Copyright 2024-2025, Felipe Barte de Oliveira
// For license information, see https://github.com/felipebarte/cnab/blob/master/LICENSE

// Package persist is the content-addressed persistence layer: operation
// audit rows, file rows deduplicated by SHA-256, and the hierarchical CNAB
// data written transactionally. It stores pre-validated data only; no
// business rule runs here.
package persist

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
	"github.com/spf13/pflag"
)

// Config selects the database and the preview size stored per file.
type Config struct {
	DSN          string `koanf:"dsn"`
	PreviewLines int    `koanf:"preview-lines"`
}

var DefaultConfig = Config{
	PreviewLines: 5,
}

func ConfigAddOptions(prefix string, f *pflag.FlagSet) {
	f.String(prefix+".dsn", DefaultConfig.DSN, "postgres connection string")
	f.Int(prefix+".preview-lines", DefaultConfig.PreviewLines, "lines of file content kept as preview")
}

// Store wraps a pgx connection pool. One Store is shared by every
// concurrent ingest; each transactional write borrows a connection for the
// lifetime of its transaction.
type Store struct {
	pool   *pgxpool.Pool
	config Config
}

func New(ctx context.Context, config Config) (*Store, error) {
	pool, err := pgxpool.New(ctx, config.DSN)
	if err != nil {
		return nil, errors.Wrap(err, "opening postgres pool")
	}
	if config.PreviewLines <= 0 {
		config.PreviewLines = DefaultConfig.PreviewLines
	}
	return &Store{pool: pool, config: config}, nil
}

// NewWithPool wires an existing pool, for callers that manage their own.
func NewWithPool(pool *pgxpool.Pool, config Config) *Store {
	if config.PreviewLines <= 0 {
		config.PreviewLines = DefaultConfig.PreviewLines
	}
	return &Store{pool: pool, config: config}
}

func (s *Store) Close() {
	s.pool.Close()
}

// Hash is the content-addressed identity of a file: lowercase hex SHA-256
// over the raw bytes.
func Hash(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

// Preview returns the first n normalized lines, newline-joined.
func Preview(content []byte, n int) string {
	lines := strings.Split(strings.ReplaceAll(string(content), "\r\n", "\n"), "\n")
	if len(lines) > n {
		lines = lines[:n]
	}
	return strings.Join(lines, "\n")
}

// isUniqueViolation recognizes the unique-index loser of a concurrent
// duplicate ingest; the caller translates it into a DUPLICATE result.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

// Migrate applies the schema. Statements are idempotent; running against
// an up-to-date database is a no-op.
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, schema)
	return errors.Wrap(err, "applying schema")
}

func (s *Store) begin(ctx context.Context) (pgx.Tx, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "beginning transaction")
	}
	return tx, nil
}
