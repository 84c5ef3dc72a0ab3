// Copyright 2024-2025, Felipe Barte de Oliveira
// For license information, see https://github.com/felipebarte/cnab/blob/master/LICENSE

// Package validate checks parsed CNAB trees for structural, arithmetic and
// field-level consistency. It produces a report; it never raises. All
// monetary comparisons are exact to the cent — rounding drift is never
// tolerated.
package validate

import (
	"time"

	"github.com/shopspring/decimal"
)

// Category classifies an issue, mirroring how callers group findings.
type Category string

const (
	CategoryStructural Category = "structural"
	CategoryField      Category = "field"
	CategoryIntegrity  Category = "integrity"
	CategoryBusiness   Category = "business"
)

// Issue is one validation finding.
type Issue struct {
	Category Category `json:"category"`
	Code     string   `json:"code"`
	Message  string   `json:"message"`
	Line     int      `json:"line,omitempty"`
}

// Statistics summarizes the validated tree for reporting UIs.
type Statistics struct {
	TotalLotes      int             `json:"totalLotes,omitempty"`
	TotalRegistros  int             `json:"totalRegistros"`
	ValorTotal      decimal.Decimal `json:"valorTotal"`
	ComCodigoBarras int             `json:"comCodigoBarras"`
}

// Report is the validator's outcome. Valid is false when any error-level
// issue was found; warnings alone do not fail a file.
type Report struct {
	Valid      bool       `json:"valido"`
	Errors     []Issue    `json:"erros"`
	Warnings   []Issue    `json:"avisos"`
	Statistics Statistics `json:"estatisticas"`
	// Score is 100 − 100·errors/max(1, totalRecords), floored at 0.
	Score int `json:"score"`
}

func (r *Report) addError(cat Category, code string, line int, msg string) {
	r.Errors = append(r.Errors, Issue{Category: cat, Code: code, Message: msg, Line: line})
}

func (r *Report) addWarning(cat Category, code string, line int, msg string) {
	r.Warnings = append(r.Warnings, Issue{Category: cat, Code: code, Message: msg, Line: line})
}

func (r *Report) finish(totalRecords int) {
	r.Valid = len(r.Errors) == 0
	denom := totalRecords
	if denom < 1 {
		denom = 1
	}
	r.Score = 100 - 100*len(r.Errors)/denom
	if r.Score < 0 {
		r.Score = 0
	}
}

var (
	dateMin = time.Date(1970, 1, 1, 0, 0, 0, 0, time.UTC)
	dateMax = time.Date(2099, 12, 31, 0, 0, 0, 0, time.UTC)
)

func dateInRange(t time.Time) bool {
	return !t.Before(dateMin) && !t.After(dateMax)
}

func validDocument(doc string) bool {
	return len(doc) == 11 || len(doc) == 14
}

func validBarcodeLen(n int) bool {
	return n == 44 || n == 48
}
