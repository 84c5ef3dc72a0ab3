// Copyright 2024-2025, Felipe Barte de Oliveira
// For license information, see https://github.com/felipebarte/cnab/blob/master/LICENSE

// Package cnab holds the pieces shared by every CNAB dialect: the fixed-width
// field codec, the diagnostics collected while reading a file, and the
// registry of per-bank layout quirks.
//
// CNAB (Centro Nacional de Automação Bancária) files are plain ASCII with
// fixed-width lines of 240 or 400 characters. Positions in FEBRABAN's
// documentation are 1-based and inclusive; the codec in this package keeps
// that convention so layout tables can be checked against the published
// manuals field by field.
package cnab

import (
	"github.com/pkg/errors"
)

// Dialect identifies which member of the CNAB family a file belongs to,
// named for its fixed line width.
type Dialect int

const (
	DialectUnknown Dialect = iota
	Dialect240
	Dialect400
)

// LineWidth returns the fixed record width of the dialect, or 0 for unknown.
func (d Dialect) LineWidth() int {
	switch d {
	case Dialect240:
		return 240
	case Dialect400:
		return 400
	default:
		return 0
	}
}

func (d Dialect) String() string {
	switch d {
	case Dialect240:
		return "CNAB_240"
	case Dialect400:
		return "CNAB_400"
	default:
		return "UNKNOWN"
	}
}

// ParseDialect maps the wire names used by callers ("CNAB_240", "CNAB_400")
// back to a Dialect.
func ParseDialect(s string) (Dialect, error) {
	switch s {
	case "CNAB_240", "cnab240":
		return Dialect240, nil
	case "CNAB_400", "cnab400":
		return Dialect400, nil
	default:
		return DialectUnknown, errors.Errorf("invalid dialect: %s", s)
	}
}
