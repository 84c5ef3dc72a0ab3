// Copyright 2024-2025, Felipe Barte de Oliveira
// For license information, see https://github.com/felipebarte/cnab/blob/master/LICENSE

package cnab

import (
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// The codec functions below take 1-based inclusive positions, matching the
// FEBRABAN layout manuals. A position past the end of the line reads as
// spaces, so short lines decode with empty/zero fields instead of panicking;
// the parsers flag short lines separately.

// slice returns the raw field content, space-padded to the declared width.
func slice(line string, start, end int) string {
	if start < 1 || end < start {
		return ""
	}
	width := end - start + 1
	if start > len(line) {
		return strings.Repeat(" ", width)
	}
	if end > len(line) {
		return line[start-1:] + strings.Repeat(" ", end-len(line))
	}
	return line[start-1 : end]
}

// Alpha reads an alphanumeric field with trailing spaces stripped.
func Alpha(line string, start, end int) string {
	return strings.TrimRight(slice(line, start, end), " ")
}

// Int reads a zero-padded numeric field. An empty or all-space field reads
// as 0; any non-digit content is an error.
func Int(line string, start, end int) (int64, error) {
	raw := strings.TrimSpace(slice(line, start, end))
	if raw == "" {
		return 0, nil
	}
	var n int64
	for _, c := range raw {
		if c < '0' || c > '9' {
			return 0, errors.Errorf("non-numeric field content %q at %d..%d", raw, start, end)
		}
		n = n*10 + int64(c-'0')
	}
	return n, nil
}

// Money reads a numeric field with an implied decimal scale. The value is
// carried as an exact decimal (integer divided by 10^scale); it is never
// float-parsed.
func Money(line string, start, end, scale int) (decimal.Decimal, error) {
	cents, err := Int(line, start, end)
	if err != nil {
		return decimal.Zero, err
	}
	return decimal.New(cents, int32(-scale)), nil
}

// Cents reads a monetary field as raw integer cents, for arithmetic that
// must stay in integers.
func Cents(line string, start, end int) (int64, error) {
	return Int(line, start, end)
}

// Date6 reads a DDMMYY date. Years at or below pivot map to 2000+YY, the
// rest to 1900+YY. An all-zero or blank field means "unset" and returns
// ok=false with no error; unparseable content returns ok=false with an
// error for the caller to downgrade into a diagnostic.
func Date6(line string, start, end, pivot int) (time.Time, bool, error) {
	raw := strings.TrimSpace(slice(line, start, end))
	if raw == "" || raw == "000000" {
		return time.Time{}, false, nil
	}
	if len(raw) != 6 {
		return time.Time{}, false, errors.Errorf("malformed DDMMYY date %q", raw)
	}
	day, errD := Int(raw, 1, 2)
	month, errM := Int(raw, 3, 4)
	year, errY := Int(raw, 5, 6)
	if errD != nil || errM != nil || errY != nil {
		return time.Time{}, false, errors.Errorf("malformed DDMMYY date %q", raw)
	}
	if year <= int64(pivot) {
		year += 2000
	} else {
		year += 1900
	}
	return ymd(year, month, day, raw)
}

// Date8 reads a DDMMYYYY date. All-zero or blank means "unset".
func Date8(line string, start, end int) (time.Time, bool, error) {
	raw := strings.TrimSpace(slice(line, start, end))
	if raw == "" || raw == "00000000" {
		return time.Time{}, false, nil
	}
	if len(raw) != 8 {
		return time.Time{}, false, errors.Errorf("malformed DDMMYYYY date %q", raw)
	}
	day, errD := Int(raw, 1, 2)
	month, errM := Int(raw, 3, 4)
	year, errY := Int(raw, 5, 8)
	if errD != nil || errM != nil || errY != nil {
		return time.Time{}, false, errors.Errorf("malformed DDMMYYYY date %q", raw)
	}
	return ymd(year, month, day, raw)
}

func ymd(year, month, day int64, raw string) (time.Time, bool, error) {
	if month < 1 || month > 12 || day < 1 || day > 31 {
		return time.Time{}, false, errors.Errorf("date %q out of range", raw)
	}
	t := time.Date(int(year), time.Month(month), int(day), 0, 0, 0, 0, time.UTC)
	// time.Date normalizes Feb 30 into March; reject anything that moved.
	if t.Day() != int(day) || t.Month() != time.Month(month) {
		return time.Time{}, false, errors.Errorf("date %q out of range", raw)
	}
	return t, true, nil
}

// Digits strips everything but ASCII digits from s.
func Digits(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, c := range s {
		if c >= '0' && c <= '9' {
			b.WriteRune(c)
		}
	}
	return b.String()
}

// AllDigits reports whether s is non-empty and made only of ASCII digits.
func AllDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

// SplitLines normalizes newlines and drops empty lines: CR is stripped
// before emptiness is tested, then blank lines are filtered out. Both
// parsers and the detector share this so the two dialects cannot diverge
// on normalization order.
func SplitLines(content []byte) []string {
	raw := strings.Split(string(content), "\n")
	lines := make([]string, 0, len(raw))
	for _, line := range raw {
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		lines = append(lines, line)
	}
	return lines
}
