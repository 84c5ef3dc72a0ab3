// Copyright 2024-2025, Felipe Barte de Oliveira
// For license information, see https://github.com/felipebarte/cnab/blob/master/LICENSE

package cnab400

import (
	"strconv"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/felipebarte/cnab/cnab"
)

func put(line []byte, start int, s string) {
	copy(line[start-1:], s)
}

func padNum(n string, width int) string {
	return strings.Repeat("0", width-len(n)) + n
}

func blank400() []byte {
	return []byte(strings.Repeat(" ", 400))
}

func headerLine() string {
	line := blank400()
	put(line, 1, "0")
	put(line, 2, "2")
	put(line, 27, "1234")
	put(line, 33, "56789")
	put(line, 47, "EMPRESA TESTE LTDA")
	put(line, 77, "341")
	put(line, 80, "BANCO ITAU SA")
	put(line, 95, "150324")
	put(line, 101, "00004321")
	put(line, 109, "00001")
	put(line, 114, "001")
	put(line, 395, "000001")
	return string(line)
}

const testBarcode = "34191790010104351004791020150008291070026000"

func detailLine(seq int, cents int64) string {
	line := blank400()
	put(line, 1, "1")
	put(line, 2, "02")
	put(line, 4, "12345678000190")
	put(line, 18, "1234")
	put(line, 24, "56789")
	put(line, 38, "SEU"+padNum(strconv.Itoa(seq), 5))
	put(line, 63, padNum(strconv.Itoa(seq), 8))
	put(line, 109, "06")
	put(line, 111, "180324")
	put(line, 147, "200324")
	put(line, 153, padNum(strconv.FormatInt(cents, 10), 13))
	put(line, 166, testBarcode)
	put(line, 257, padNum(strconv.FormatInt(cents, 10), 13))
	put(line, 270, "PAGADOR EXEMPLO SA")
	put(line, 395, padNum(strconv.Itoa(seq+1), 6))
	return string(line)
}

func trailerLine(total int, sumCents int64, seq int) string {
	line := blank400()
	put(line, 1, "9")
	put(line, 18, padNum(strconv.Itoa(total), 8))
	put(line, 26, padNum(strconv.FormatInt(sumCents, 10), 13))
	put(line, 395, padNum(strconv.Itoa(seq), 6))
	return string(line)
}

// scenarioFile mirrors the canonical round-trip scenario: a header, two
// details of 100.50 each, a trailer declaring 2 records summing 201.00.
func scenarioFile() []byte {
	lines := []string{
		headerLine(),
		detailLine(1, 10050),
		detailLine(2, 10050),
		trailerLine(2, 20100, 4),
	}
	return []byte(strings.Join(lines, "\n") + "\n")
}

func TestParseScenario(t *testing.T) {
	file, diags := Parse(scenarioFile(), Options{})
	if file == nil {
		t.Fatal("nil file")
	}
	if len(diags) != 0 {
		t.Fatalf("unexpected diagnostics: %v", diags)
	}

	if file.Header.BancoCodigo != "341" || file.Header.EmpresaNome != "EMPRESA TESTE LTDA" {
		t.Fatalf("header = %+v", file.Header)
	}
	if !file.Header.TemDataArquivo || file.Header.DataArquivo.Year() != 2024 {
		t.Fatalf("data_arquivo = %v", file.Header.DataArquivo)
	}

	if len(file.Records) != 2 {
		t.Fatalf("records = %d, want 2", len(file.Records))
	}
	r := file.Records[0]
	if r.CodigoBarras != testBarcode {
		t.Fatalf("codigo_barras = %q", r.CodigoBarras)
	}
	if !r.ValorTitulo.Equal(decimal.RequireFromString("100.50")) {
		t.Fatalf("valor_titulo = %s", r.ValorTitulo)
	}
	if !r.ValorPago.Equal(decimal.RequireFromString("100.50")) {
		t.Fatalf("valor_pago = %s", r.ValorPago)
	}
	if r.PagadorNome != "PAGADOR EXEMPLO SA" || r.PagadorDocumento != "12345678000190" {
		t.Fatalf("pagador = %q / %q", r.PagadorNome, r.PagadorDocumento)
	}
	if r.CodigoBanco != "341" {
		t.Fatalf("codigo_banco = %q", r.CodigoBanco)
	}
	if r.DadosCompletos == "" || len(r.DadosCompletos) != 400 {
		t.Fatal("dados_completos must keep the raw line")
	}

	if file.Trailer.TotalRegistros != 2 {
		t.Fatalf("total_registros = %d", file.Trailer.TotalRegistros)
	}
	if !file.Trailer.ValorTotal.Equal(decimal.RequireFromString("201.00")) {
		t.Fatalf("valor_total = %s", file.Trailer.ValorTotal)
	}
}

func TestParseShortLinePadded(t *testing.T) {
	lines := []string{
		headerLine(),
		detailLine(1, 10050)[:380], // truncated detail
		trailerLine(1, 10050, 3),
	}
	file, diags := Parse([]byte(strings.Join(lines, "\n")), Options{Tolerance: TolerancePad})
	if !diags.Has(cnab.CodeLineLength) {
		t.Fatalf("expected LINE_LENGTH, got %v", diags)
	}
	if len(file.Records) != 1 {
		t.Fatalf("padded record was dropped: %d records", len(file.Records))
	}
}

func TestParseShortLineRejected(t *testing.T) {
	lines := []string{
		headerLine(),
		detailLine(1, 10050)[:380],
		trailerLine(1, 10050, 3),
	}
	file, diags := Parse([]byte(strings.Join(lines, "\n")), Options{Tolerance: ToleranceReject})
	if !diags.Has(cnab.CodeLineLength) {
		t.Fatalf("expected LINE_LENGTH, got %v", diags)
	}
	if len(file.Records) != 0 {
		t.Fatalf("rejected record was kept: %d records", len(file.Records))
	}
}

func TestParseMissingHeader(t *testing.T) {
	lines := []string{
		detailLine(1, 10050),
		trailerLine(1, 10050, 3),
	}
	_, diags := Parse([]byte(strings.Join(lines, "\n")), Options{})
	if !diags.Has(cnab.CodeHeaderOutOfPlace) {
		t.Fatalf("expected HEADER_OUT_OF_PLACE, got %v", diags)
	}
	if !diags.Has(cnab.CodeDetailOrphan) {
		t.Fatalf("expected DETAIL_ORPHAN, got %v", diags)
	}
}

func TestParseMissingTrailer(t *testing.T) {
	lines := []string{
		headerLine(),
		detailLine(1, 10050),
	}
	_, diags := Parse([]byte(strings.Join(lines, "\n")), Options{})
	if !diags.Has(cnab.CodeTrailerMissing) {
		t.Fatalf("expected TRAILER_MISSING, got %v", diags)
	}
}

func TestParseUnsetDatesAreNull(t *testing.T) {
	line := []byte(detailLine(1, 10050))
	put(line, 111, "000000") // unpaid: no payment date
	lines := []string{
		headerLine(),
		string(line),
		trailerLine(1, 10050, 3),
	}
	file, diags := Parse([]byte(strings.Join(lines, "\n")), Options{})
	for _, d := range diags {
		if d.Code == cnab.CodeFieldInvalid {
			t.Fatalf("all-zero date must not warn: %v", d)
		}
	}
	if file.Records[0].TemPagamento {
		t.Fatal("all-zero payment date must read as unset")
	}
}
