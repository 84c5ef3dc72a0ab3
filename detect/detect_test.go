// Copyright 2024-2025, Felipe Barte de Oliveira
// For license information, see https://github.com/felipebarte/cnab/blob/master/LICENSE

package detect

import (
	"strings"
	"testing"

	"github.com/pkg/errors"

	"github.com/felipebarte/cnab/cnab"
)

func repeatLines(width, n int) string {
	line := strings.Repeat("0", width)
	lines := make([]string, n)
	for i := range lines {
		lines[i] = line
	}
	return strings.Join(lines, "\n")
}

func TestDetect240(t *testing.T) {
	res, err := Detect([]byte(repeatLines(240, 4)))
	if err != nil {
		t.Fatal(err)
	}
	if res.Format != cnab.Dialect240 {
		t.Fatalf("format = %v, want CNAB_240", res.Format)
	}
	if res.Confidence != 100 {
		t.Fatalf("confidence = %d, want 100", res.Confidence)
	}
	if !res.Consistent {
		t.Fatal("expected consistent widths")
	}
}

func TestDetect400WithCRLF(t *testing.T) {
	content := strings.ReplaceAll(repeatLines(400, 3), "\n", "\r\n") + "\r\n\r\n"
	res, err := Detect([]byte(content))
	if err != nil {
		t.Fatal(err)
	}
	if res.Format != cnab.Dialect400 {
		t.Fatalf("format = %v, want CNAB_400", res.Format)
	}
	if res.Lines != 3 {
		t.Fatalf("lines = %d, want 3 (trailing blanks dropped)", res.Lines)
	}
}

func TestDetectEmpty(t *testing.T) {
	for _, content := range []string{"", "\n\n", "\r\n  \r\n"} {
		if _, err := Detect([]byte(content)); !errors.Is(err, ErrEmptyContent) {
			t.Fatalf("Detect(%q) err = %v, want ErrEmptyContent", content, err)
		}
	}
}

func TestDetectUnknownWidth(t *testing.T) {
	_, err := Detect([]byte(repeatLines(239, 5)))
	if !errors.Is(err, ErrUnknownFormat) {
		t.Fatalf("err = %v, want ErrUnknownFormat", err)
	}
}

func TestDetectConfidencePenalty(t *testing.T) {
	// 8 lines at 240, one each at 100, 120, 140: mode share 8/11 = 72%,
	// minus 5 for each of the two extra distinct widths beyond the first two.
	content := repeatLines(240, 8) + "\n" +
		strings.Repeat("0", 100) + "\n" +
		strings.Repeat("0", 120) + "\n" +
		strings.Repeat("0", 140)
	res, err := Detect([]byte(content))
	if err != nil {
		t.Fatal(err)
	}
	want := 100*8/11 - 5*2
	if res.Confidence != want {
		t.Fatalf("confidence = %d, want %d", res.Confidence, want)
	}
	if !res.LowConfidence() {
		t.Fatal("expected low-confidence result")
	}
	if res.Consistent {
		t.Fatal("mixed widths must not report consistent")
	}
}

func TestDetectTieBreakPrefers240(t *testing.T) {
	content := repeatLines(240, 3) + "\n" + repeatLines(400, 3)
	res, err := Detect([]byte(content))
	if err != nil {
		t.Fatal(err)
	}
	if res.Format != cnab.Dialect240 {
		t.Fatalf("tie-break format = %v, want CNAB_240", res.Format)
	}
}

func TestDetectTiePrefersSupportedWidth(t *testing.T) {
	content := repeatLines(100, 3) + "\n" + repeatLines(400, 3)
	res, err := Detect([]byte(content))
	if err != nil {
		t.Fatal(err)
	}
	if res.Format != cnab.Dialect400 {
		t.Fatalf("tie-break format = %v, want CNAB_400", res.Format)
	}
}
