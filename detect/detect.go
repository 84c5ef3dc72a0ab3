// Copyright 2024-2025, Felipe Barte de Oliveira
// For license information, see https://github.com/felipebarte/cnab/blob/master/LICENSE

// Package detect classifies raw file content as CNAB 240 or CNAB 400 from
// the distribution of line widths, with a confidence score callers can use
// to reject ambiguous uploads.
package detect

import (
	"github.com/pkg/errors"

	"github.com/felipebarte/cnab/cnab"
)

var (
	ErrEmptyContent  = errors.New("EMPTY_CONTENT: no usable lines in content")
	ErrUnknownFormat = errors.New("UNKNOWN_FORMAT: dominant line width matches no CNAB dialect")
)

// LowConfidenceThreshold is the score under which a detection is reported
// as low-confidence; callers may reject such files.
const LowConfidenceThreshold = 80

// Result is the outcome of a format detection pass.
type Result struct {
	Format     cnab.Dialect
	Confidence int
	Lines      int
	// Histogram maps observed line width to occurrence count.
	Histogram map[int]int
	// Consistent is true when every line has the dominant width.
	Consistent bool
}

// LowConfidence reports whether the score fell under the acceptance bar.
func (r Result) LowConfidence() bool {
	return r.Confidence < LowConfidenceThreshold
}

// Detect splits the content on newlines (CR stripped, blank lines dropped),
// histograms line widths and picks the mode. A mode of 240 or 400 selects
// the dialect; anything else fails with ErrUnknownFormat. Confidence is the
// share of lines at the dominant width, reduced by 5 points for each
// distinct width beyond the first two, floored at 0.
func Detect(content []byte) (Result, error) {
	lines := cnab.SplitLines(content)
	if len(lines) == 0 {
		return Result{}, ErrEmptyContent
	}

	hist := make(map[int]int)
	for _, line := range lines {
		hist[len(line)]++
	}

	mode, modeCount := pickMode(hist)

	confidence := 100 * modeCount / len(lines)
	if extra := len(hist) - 2; extra > 0 {
		confidence -= 5 * extra
	}
	if confidence < 0 {
		confidence = 0
	}

	res := Result{
		Confidence: confidence,
		Lines:      len(lines),
		Histogram:  hist,
		Consistent: modeCount == len(lines),
	}

	switch mode {
	case 240:
		res.Format = cnab.Dialect240
	case 400:
		res.Format = cnab.Dialect400
	default:
		res.Format = cnab.DialectUnknown
		return res, errors.Wrapf(ErrUnknownFormat, "dominant width %d over %d lines", mode, len(lines))
	}
	return res, nil
}

// pickMode returns the most frequent width. Ties prefer a width matching a
// supported dialect; when both tied widths are dialects, 240 wins (it is
// the modern standard).
func pickMode(hist map[int]int) (int, int) {
	mode, modeCount := 0, 0
	for width, count := range hist {
		switch {
		case count > modeCount:
			mode, modeCount = width, count
		case count == modeCount && betterTie(width, mode):
			mode = width
		}
	}
	return mode, modeCount
}

func betterTie(candidate, current int) bool {
	rank := func(w int) int {
		switch w {
		case 240:
			return 2
		case 400:
			return 1
		default:
			return 0
		}
	}
	return rank(candidate) > rank(current)
}
