// Copyright 2024-2025, Felipe Barte de Oliveira
// For license information, see https://github.com/felipebarte/cnab/blob/master/LICENSE

package validate

import (
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/felipebarte/cnab/cnab"
	"github.com/felipebarte/cnab/cnab240"
	"github.com/felipebarte/cnab/cnab400"
)

const barcode44 = "34191790010104351004791020150008291070026000"

func money(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func segJ(cents int64) *cnab240.SegmentJ {
	return &cnab240.SegmentJ{
		CodigoBarras:   barcode44,
		ValorTitulo:    decimal.New(cents, -2),
		ValorPagamento: decimal.New(cents, -2),
		Vencimento:     time.Date(2024, 3, 20, 0, 0, 0, 0, time.UTC),
		TemVencimento:  true,
	}
}

// tree240 builds one batch with two J segments (120.00, 150.00) and
// trailers declaring the given totals.
func tree240(declaredSum string, trailerRegistros int64) *cnab240.File {
	batch := &cnab240.Batch{
		Header: cnab240.BatchHeader{Lote: 1, Present: true},
		Details: []cnab240.Detail{
			segJ(12000),
			segJ(15000),
		},
		Trailer: cnab240.BatchTrailer{
			Lote:                1,
			QuantidadeRegistros: 4,
			SomaValores:         money(declaredSum),
			Present:             true,
		},
	}
	return &cnab240.File{
		Header:  cnab240.FileHeader{BancoCodigo: "341"},
		Batches: []*cnab240.Batch{batch},
		Trailer: cnab240.FileTrailer{
			TotalLotes:     1,
			TotalRegistros: trailerRegistros,
			ValorTotal:     money(declaredSum),
			Present:        true,
		},
		Bank:  cnab.Bank{Code: "341", TrailerCountsAllLines: true},
		Lines: 6,
	}
}

func TestValidate240Valid(t *testing.T) {
	rep := Validate240(tree240("270.00", 6))
	if !rep.Valid {
		t.Fatalf("expected valid, errors: %+v", rep.Errors)
	}
	if !rep.Statistics.ValorTotal.Equal(money("270.00")) {
		t.Fatalf("valorTotal = %s", rep.Statistics.ValorTotal)
	}
	if rep.Statistics.TotalRegistros != 2 || rep.Statistics.ComCodigoBarras != 2 {
		t.Fatalf("statistics = %+v", rep.Statistics)
	}
	if rep.Score != 100 {
		t.Fatalf("score = %d", rep.Score)
	}
}

func TestValidate240SumMismatch(t *testing.T) {
	// Batch declares 271.00 over details worth 270.00: a single integrity
	// error naming both values, to the cent.
	file := tree240("271.00", 6)
	file.Trailer.ValorTotal = money("270.00")
	rep := Validate240(file)
	if rep.Valid {
		t.Fatal("expected invalid")
	}
	var integrity []Issue
	for _, e := range rep.Errors {
		if e.Category == CategoryIntegrity {
			integrity = append(integrity, e)
		}
	}
	if len(integrity) != 1 {
		t.Fatalf("integrity errors = %+v, want exactly 1", integrity)
	}
	if !strings.Contains(integrity[0].Message, "expected=270.00") ||
		!strings.Contains(integrity[0].Message, "actual=271.00") {
		t.Fatalf("message = %q", integrity[0].Message)
	}
}

func TestValidate240CountConventions(t *testing.T) {
	// Base convention: total_registros counts every line.
	file := tree240("270.00", 6)
	if rep := Validate240(file); !rep.Valid {
		t.Fatalf("all-lines convention: %+v", rep.Errors)
	}

	// Details-only convention, selected by the bank supplement.
	file = tree240("270.00", 2)
	file.Bank.TrailerCountsAllLines = false
	if rep := Validate240(file); !rep.Valid {
		t.Fatalf("details-only convention: %+v", rep.Errors)
	}

	// The wrong convention for the bank is an integrity error.
	file = tree240("270.00", 2)
	rep := Validate240(file)
	if rep.Valid {
		t.Fatal("expected invalid under all-lines convention")
	}
}

func TestValidate240StructuralIssues(t *testing.T) {
	file := tree240("270.00", 6)
	file.Batches[0].Trailer.Present = false
	rep := Validate240(file)
	if rep.Valid {
		t.Fatal("expected invalid")
	}
	found := false
	for _, e := range rep.Errors {
		if e.Code == "LOTE_SEM_TRAILER" {
			found = true
		}
	}
	if !found {
		t.Fatalf("errors = %+v", rep.Errors)
	}
}

func TestValidate240BarcodeLengthWarning(t *testing.T) {
	file := tree240("270.00", 6)
	j := file.Batches[0].Details[0].(*cnab240.SegmentJ)
	j.CodigoBarras = barcode44[:42] // 42 digits
	rep := Validate240(file)
	if !rep.Valid {
		t.Fatalf("length issue must be a warning, errors: %+v", rep.Errors)
	}
	if len(rep.Warnings) == 0 {
		t.Fatal("expected a barcode length warning")
	}
}

func TestValidate240DateRange(t *testing.T) {
	file := tree240("270.00", 6)
	j := file.Batches[0].Details[0].(*cnab240.SegmentJ)
	j.Vencimento = time.Date(1965, 1, 1, 0, 0, 0, 0, time.UTC)
	rep := Validate240(file)
	if rep.Valid {
		t.Fatal("expected invalid for out-of-range date")
	}
}

func tree400(records int, centsEach int64, declaredTotal int64, declaredSum string) *cnab400.File {
	f := &cnab400.File{
		Header: cnab400.Header{BancoCodigo: "341", Present: true},
		Trailer: cnab400.Trailer{
			TotalRegistros: declaredTotal,
			ValorTotal:     money(declaredSum),
			Present:        true,
		},
		Bank: cnab.Bank{Code: "341"},
	}
	for i := 0; i < records; i++ {
		f.Records = append(f.Records, cnab400.Record{
			CodigoBarras:     barcode44,
			ValorTitulo:      decimal.New(centsEach, -2),
			ValorPago:        decimal.New(centsEach, -2),
			PagadorDocumento: "12345678000190",
			LineNumber:       i + 2,
		})
	}
	f.Lines = records + 2
	return f
}

func TestValidate400Valid(t *testing.T) {
	rep := Validate400(tree400(2, 10050, 2, "201.00"))
	if !rep.Valid {
		t.Fatalf("errors: %+v", rep.Errors)
	}
	if !rep.Statistics.ValorTotal.Equal(money("201.00")) {
		t.Fatalf("valorTotal = %s", rep.Statistics.ValorTotal)
	}
}

func TestValidate400CountMismatch(t *testing.T) {
	rep := Validate400(tree400(2, 10050, 3, "201.00"))
	if rep.Valid {
		t.Fatal("expected invalid")
	}
}

func TestValidate400BadDocumentWarns(t *testing.T) {
	f := tree400(1, 10050, 1, "100.50")
	f.Records[0].PagadorDocumento = "12345"
	rep := Validate400(f)
	if !rep.Valid {
		t.Fatalf("document issue must be a warning, errors: %+v", rep.Errors)
	}
	if len(rep.Warnings) == 0 {
		t.Fatal("expected a document warning")
	}
}

func TestValidateNilFiles(t *testing.T) {
	if rep := Validate240(nil); rep.Valid {
		t.Fatal("nil 240 file must be invalid")
	}
	if rep := Validate400(nil); rep.Valid {
		t.Fatal("nil 400 file must be invalid")
	}
}
