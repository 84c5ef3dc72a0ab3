// Copyright 2024-2025, Felipe Barte de Oliveira
// For license information, see https://github.com/felipebarte/cnab/blob/master/LICENSE

package cnab240

import (
	"strconv"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/felipebarte/cnab/cnab"
)

// put writes s at the 1-based position start, the same convention the
// layout tables use, so fixtures stay aligned with the decoder.
func put(line []byte, start int, s string) {
	copy(line[start-1:], s)
}

func padNum(n string, width int) string {
	return strings.Repeat("0", width-len(n)) + n
}

func blank240() []byte {
	return []byte(strings.Repeat(" ", 240))
}

func fileHeaderLine(bank string) string {
	line := blank240()
	put(line, 1, bank)
	put(line, 4, "0000")
	put(line, 8, "0")
	put(line, 19, "12345678000190")
	put(line, 73, "EMPRESA TESTE LTDA")
	put(line, 103, "BANCO ITAU SA")
	put(line, 144, "15032024")
	put(line, 152, "101530")
	put(line, 158, "000001")
	put(line, 164, "103")
	return string(line)
}

func batchHeaderLine(bank string, lote int) string {
	line := blank240()
	put(line, 1, bank)
	put(line, 4, padNum(strconv.Itoa(lote), 4))
	put(line, 8, "1")
	put(line, 9, "C")
	put(line, 10, "20")
	put(line, 12, "31")
	put(line, 14, "040")
	put(line, 19, "12345678000190")
	put(line, 73, "EMPRESA TESTE LTDA")
	return string(line)
}

func segmentJLine(bank string, lote, seq int, barcode string, cents int64) string {
	line := blank240()
	put(line, 1, bank)
	put(line, 4, padNum(strconv.Itoa(lote), 4))
	put(line, 8, "3")
	put(line, 9, padNum(strconv.Itoa(seq), 5))
	put(line, 14, "J")
	put(line, 15, "000")
	put(line, 18, barcode)
	put(line, 62, "FORNECEDOR EXEMPLO SA")
	put(line, 92, "20032024")
	put(line, 100, padNum(strconv.FormatInt(cents, 10), 15))
	put(line, 145, "18032024")
	put(line, 153, padNum(strconv.FormatInt(cents, 10), 15))
	put(line, 183, "DOC0001")
	put(line, 203, "NN0001")
	return string(line)
}

func segmentBLine(bank string, lote, seq int) string {
	line := blank240()
	put(line, 1, bank)
	put(line, 4, padNum(strconv.Itoa(lote), 4))
	put(line, 8, "3")
	put(line, 9, padNum(strconv.Itoa(seq), 5))
	put(line, 14, "B")
	put(line, 18, "2")
	put(line, 19, "12345678000190")
	put(line, 33, "RUA DAS FLORES")
	put(line, 63, "00123")
	put(line, 98, "SAO PAULO")
	put(line, 118, "01310100")
	put(line, 126, "SP")
	return string(line)
}

func batchTrailerLine(bank string, lote, count int, sumCents int64) string {
	line := blank240()
	put(line, 1, bank)
	put(line, 4, padNum(strconv.Itoa(lote), 4))
	put(line, 8, "5")
	put(line, 18, padNum(strconv.Itoa(count), 6))
	put(line, 24, padNum(strconv.FormatInt(sumCents, 10), 18))
	return string(line)
}

func fileTrailerLine(bank string, lotes, registros int) string {
	line := blank240()
	put(line, 1, bank)
	put(line, 4, "9999")
	put(line, 8, "9")
	put(line, 18, padNum(strconv.Itoa(lotes), 6))
	put(line, 24, padNum(strconv.Itoa(registros), 6))
	return string(line)
}

const testBarcode = "34191790010104351004791020150008291070026000"

// wellFormedFile returns one batch with two J segments valued 120.00 and
// 150.00 and a trailer declaring the matching 270.00.
func wellFormedFile() []byte {
	lines := []string{
		fileHeaderLine("341"),
		batchHeaderLine("341", 1),
		segmentJLine("341", 1, 1, testBarcode, 12000),
		segmentJLine("341", 1, 2, testBarcode, 15000),
		batchTrailerLine("341", 1, 4, 27000),
		fileTrailerLine("341", 1, 6),
	}
	return []byte(strings.Join(lines, "\n") + "\n")
}

func TestParseWellFormed(t *testing.T) {
	file, diags := Parse(wellFormedFile())
	if file == nil {
		t.Fatal("nil file")
	}
	if len(diags) != 0 {
		t.Fatalf("unexpected diagnostics: %v", diags)
	}

	if file.Header.BancoCodigo != "341" {
		t.Fatalf("banco = %q", file.Header.BancoCodigo)
	}
	if file.Header.EmpresaNome != "EMPRESA TESTE LTDA" {
		t.Fatalf("empresa = %q", file.Header.EmpresaNome)
	}
	if !file.Header.TemDataGeracao || file.Header.DataGeracao.Year() != 2024 {
		t.Fatalf("data_geracao = %v", file.Header.DataGeracao)
	}

	if len(file.Batches) != 1 {
		t.Fatalf("batches = %d, want 1", len(file.Batches))
	}
	b := file.Batches[0]
	if b.Header.Lote != 1 || !b.Header.Present {
		t.Fatalf("batch header = %+v", b.Header)
	}
	if len(b.Details) != 2 {
		t.Fatalf("details = %d, want 2", len(b.Details))
	}

	j, ok := b.Details[0].(*SegmentJ)
	if !ok {
		t.Fatalf("detail 0 is %T, want *SegmentJ", b.Details[0])
	}
	if j.CodigoBarras != testBarcode {
		t.Fatalf("codigo_barras = %q", j.CodigoBarras)
	}
	if !j.ValorPagamento.Equal(decimal.RequireFromString("120.00")) {
		t.Fatalf("valor_pagamento = %s", j.ValorPagamento)
	}
	if !j.TemVencimento {
		t.Fatal("vencimento missing")
	}

	if !b.Trailer.SomaValores.Equal(decimal.RequireFromString("270.00")) {
		t.Fatalf("soma = %s", b.Trailer.SomaValores)
	}
	if file.Trailer.TotalLotes != 1 || file.Trailer.TotalRegistros != 6 {
		t.Fatalf("file trailer = %+v", file.Trailer)
	}
}

func TestParseSegmentBAttachment(t *testing.T) {
	lines := []string{
		fileHeaderLine("341"),
		batchHeaderLine("341", 1),
		segmentJLine("341", 1, 1, testBarcode, 10000),
		segmentBLine("341", 1, 2),
		batchTrailerLine("341", 1, 4, 10000),
		fileTrailerLine("341", 1, 6),
	}
	file, diags := Parse([]byte(strings.Join(lines, "\n")))
	if len(diags) != 0 {
		t.Fatalf("diagnostics: %v", diags)
	}
	j := file.Batches[0].Details[0].(*SegmentJ)
	if j.Endereco == nil {
		t.Fatal("segment B not attached to preceding J")
	}
	if j.Endereco.Cidade != "SAO PAULO" || j.Endereco.UF != "SP" {
		t.Fatalf("endereco = %+v", j.Endereco)
	}
}

func TestParseBatchNested(t *testing.T) {
	lines := []string{
		fileHeaderLine("341"),
		batchHeaderLine("341", 1),
		segmentJLine("341", 1, 1, testBarcode, 10000),
		batchHeaderLine("341", 2), // no trailer for batch 1
		segmentJLine("341", 2, 1, testBarcode, 20000),
		batchTrailerLine("341", 2, 3, 20000),
		fileTrailerLine("341", 2, 7),
	}
	file, diags := Parse([]byte(strings.Join(lines, "\n")))
	if !diags.Has(cnab.CodeBatchNested) {
		t.Fatalf("expected BATCH_NESTED, got %v", diags)
	}
	if len(file.Batches) != 2 {
		t.Fatalf("batches = %d, want 2", len(file.Batches))
	}
	if file.Batches[0].Trailer.Present {
		t.Fatal("batch 1 should have no trailer")
	}
}

func TestParseDetailOrphan(t *testing.T) {
	lines := []string{
		fileHeaderLine("341"),
		segmentJLine("341", 1, 1, testBarcode, 10000),
		fileTrailerLine("341", 0, 3),
	}
	file, diags := Parse([]byte(strings.Join(lines, "\n")))
	if !diags.Has(cnab.CodeDetailOrphan) {
		t.Fatalf("expected DETAIL_ORPHAN, got %v", diags)
	}
	// Data is preserved in an implicit batch.
	if len(file.Batches) != 1 || !file.Batches[0].Implicit {
		t.Fatalf("batches = %+v", file.Batches)
	}
	if len(file.Batches[0].Details) != 1 {
		t.Fatal("orphan detail was dropped")
	}
}

func TestParseHeaderOutOfPlace(t *testing.T) {
	lines := []string{
		batchHeaderLine("341", 1),
		batchTrailerLine("341", 1, 2, 0),
		fileTrailerLine("341", 1, 4),
	}
	_, diags := Parse([]byte(strings.Join(lines, "\n")))
	if !diags.Has(cnab.CodeHeaderOutOfPlace) {
		t.Fatalf("expected HEADER_OUT_OF_PLACE, got %v", diags)
	}
}

func TestParseMissingTrailer(t *testing.T) {
	lines := []string{
		fileHeaderLine("341"),
		batchHeaderLine("341", 1),
		segmentJLine("341", 1, 1, testBarcode, 10000),
	}
	_, diags := Parse([]byte(strings.Join(lines, "\n")))
	if !diags.Has(cnab.CodeTrailerMissing) {
		t.Fatalf("expected TRAILER_MISSING, got %v", diags)
	}
}

func TestParseUnknownBankUsesBaseLayout(t *testing.T) {
	file, diags := Parse([]byte(strings.Join([]string{
		fileHeaderLine("999"),
		batchHeaderLine("999", 1),
		segmentJLine("999", 1, 1, testBarcode, 10000),
		batchTrailerLine("999", 1, 3, 10000),
		fileTrailerLine("999", 1, 5),
	}, "\n")))
	if !diags.Has(cnab.CodeBankUnknown) {
		t.Fatalf("expected BANK_UNKNOWN, got %v", diags)
	}
	if file.Bank.Code != "999" {
		t.Fatalf("bank = %+v", file.Bank)
	}
	j := file.Batches[0].Details[0].(*SegmentJ)
	if j.CodigoBarras != testBarcode {
		t.Fatal("base layout did not decode the J segment")
	}
}

func TestParseUnknownSegmentKeepsFallbackBarcode(t *testing.T) {
	line := blank240()
	put(line, 1, "341")
	put(line, 4, "0001")
	put(line, 8, "3")
	put(line, 9, "00001")
	put(line, 14, "N")
	put(line, 18, testBarcode)
	lines := []string{
		fileHeaderLine("341"),
		batchHeaderLine("341", 1),
		string(line),
		batchTrailerLine("341", 1, 3, 0),
		fileTrailerLine("341", 1, 5),
	}
	file, _ := Parse([]byte(strings.Join(lines, "\n")))
	raw, ok := file.Batches[0].Details[0].(*SegmentRaw)
	if !ok {
		t.Fatalf("detail is %T, want *SegmentRaw", file.Batches[0].Details[0])
	}
	if raw.Letter != "N" || raw.FallbackBarcode != testBarcode {
		t.Fatalf("raw = %+v", raw)
	}
}

func TestParseShortLineDiagnosed(t *testing.T) {
	lines := []string{
		fileHeaderLine("341"),
		string(blank240())[:100] + "3",
		fileTrailerLine("341", 0, 3),
	}
	// Crude short line; only the length diagnostic matters here.
	_, diags := Parse([]byte(strings.Join(lines, "\n")))
	if !diags.Has(cnab.CodeLineLength) {
		t.Fatalf("expected LINE_LENGTH, got %v", diags)
	}
}
