// Copyright 2024-2025, Felipe Barte de Oliveira
// For license information, see https://github.com/felipebarte/cnab/blob/master/LICENSE

package validate

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/felipebarte/cnab/cnab"
	"github.com/felipebarte/cnab/cnab240"
)

// detailValue picks the effective monetary value of a detail: the paid
// amount when filled, the document/título value otherwise.
func detailValue(d cnab240.Detail) decimal.Decimal {
	switch s := d.(type) {
	case *cnab240.SegmentJ:
		if s.ValorPagamento.IsPositive() {
			return s.ValorPagamento
		}
		return s.ValorTitulo
	case *cnab240.SegmentO:
		if s.ValorPagamento.IsPositive() {
			return s.ValorPagamento
		}
		return s.ValorDocumento
	case *cnab240.SegmentA:
		if s.ValorEfetivado.IsPositive() {
			return s.ValorEfetivado
		}
		return s.ValorPagamento
	default:
		return decimal.Zero
	}
}

// payable reports whether a detail contributes to monetary totals.
// Segment B rides along with its owner and never counts on its own.
func payable(d cnab240.Detail) bool {
	switch d.(type) {
	case *cnab240.SegmentJ, *cnab240.SegmentO, *cnab240.SegmentA:
		return true
	default:
		return false
	}
}

// Validate240 checks a parsed 240-column tree. The trailer count
// convention comes from the file's bank (TrailerCountsAllLines).
func Validate240(file *cnab240.File) *Report {
	r := &Report{}
	if file == nil {
		r.addError(CategoryStructural, "ARQUIVO_VAZIO", 0, "no parsed file to validate")
		r.finish(0)
		return r
	}

	if file.Header.BancoCodigo == "" {
		r.addError(CategoryStructural, "CABECALHO_AUSENTE", 0, "file header missing")
	}
	if !file.Trailer.Present {
		r.addError(CategoryStructural, "TRAILER_AUSENTE", 0, "file trailer missing")
	}
	if len(file.Batches) == 0 {
		r.addError(CategoryStructural, "LOTE_AUSENTE", 0, "file has no batches")
	}

	totalDetails := 0
	fileSum := decimal.Zero

	for i, batch := range file.Batches {
		loteLabel := batch.Header.Lote
		if loteLabel == 0 {
			loteLabel = int64(i + 1)
		}

		if batch.Implicit || !batch.Header.Present {
			r.addError(CategoryStructural, "LOTE_SEM_CABECALHO", 0,
				fmt.Sprintf("batch %d has no header record", loteLabel))
		}
		if !batch.Trailer.Present {
			r.addError(CategoryStructural, "LOTE_SEM_TRAILER", 0,
				fmt.Sprintf("batch %d has no trailer record", loteLabel))
		}

		batchSum := decimal.Zero
		for _, d := range batch.Details {
			totalDetails++
			if payable(d) {
				batchSum = batchSum.Add(detailValue(d))
			}
			validateDetailFields(r, d)
		}
		fileSum = fileSum.Add(batchSum)

		if batch.Trailer.Present {
			// Declared record count covers the batch header, details and the
			// trailer itself.
			expectCount := int64(len(batch.Details) + 2)
			if batch.Trailer.QuantidadeRegistros != expectCount {
				r.addError(CategoryIntegrity, "QUANTIDADE_LOTE", 0, fmt.Sprintf(
					"batch %d record count: expected=%d, actual=%d",
					loteLabel, expectCount, batch.Trailer.QuantidadeRegistros))
			}
			if !batch.Trailer.SomaValores.Equal(batchSum) {
				r.addError(CategoryIntegrity, "SOMA_LOTE", 0, fmt.Sprintf(
					"batch %d monetary sum: expected=%s, actual=%s",
					loteLabel, batchSum.StringFixed(2), batch.Trailer.SomaValores.StringFixed(2)))
			}
		}
	}

	if file.Trailer.Present {
		if file.Trailer.TotalLotes != int64(len(file.Batches)) {
			r.addError(CategoryIntegrity, "TOTAL_LOTES", 0, fmt.Sprintf(
				"file trailer lot count: expected=%d, actual=%d",
				len(file.Batches), file.Trailer.TotalLotes))
		}

		expectRegistros := int64(file.Lines)
		if !file.Bank.TrailerCountsAllLines {
			expectRegistros = int64(totalDetails)
		}
		if file.Trailer.TotalRegistros != expectRegistros {
			r.addError(CategoryIntegrity, "TOTAL_REGISTROS", 0, fmt.Sprintf(
				"file trailer record count: expected=%d, actual=%d",
				expectRegistros, file.Trailer.TotalRegistros))
		}

		if !file.Trailer.ValorTotal.IsZero() && !file.Trailer.ValorTotal.Equal(fileSum) {
			r.addError(CategoryIntegrity, "VALOR_TOTAL", 0, fmt.Sprintf(
				"file trailer monetary total: expected=%s, actual=%s",
				fileSum.StringFixed(2), file.Trailer.ValorTotal.StringFixed(2)))
		}
	}

	r.Statistics = Statistics{
		TotalLotes:      len(file.Batches),
		TotalRegistros:  totalDetails,
		ValorTotal:      fileSum,
		ComCodigoBarras: countBarcodes240(file),
	}
	r.finish(totalDetails)
	return r
}

func validateDetailFields(r *Report, d cnab240.Detail) {
	line := d.LineNumber()
	switch s := d.(type) {
	case *cnab240.SegmentJ:
		checkBarcode(r, line, s.CodigoBarras)
		checkDates(r, line, s.TemVencimento, s.Vencimento, s.TemPagamento, s.DataPagamento)
		checkNonNegative(r, line, "valor_titulo", s.ValorTitulo)
		checkNonNegative(r, line, "valor_pagamento", s.ValorPagamento)
	case *cnab240.SegmentO:
		checkBarcode(r, line, s.CodigoBarras)
		checkDates(r, line, s.TemVencimento, s.Vencimento, s.TemPagamento, s.DataPagamento)
		checkNonNegative(r, line, "valor_documento", s.ValorDocumento)
		checkNonNegative(r, line, "valor_pagamento", s.ValorPagamento)
	case *cnab240.SegmentA:
		checkDates(r, line, s.TemPagamento, s.DataPagamento, s.TemEfetivacao, s.DataEfetivacao)
		checkNonNegative(r, line, "valor_pagamento", s.ValorPagamento)
	case *cnab240.SegmentB:
		if s.Documento != "" && !validDocument(s.Documento) {
			r.addWarning(CategoryField, "DOCUMENTO_INVALIDO", line,
				fmt.Sprintf("document %q is neither CPF (11) nor CNPJ (14) digits", s.Documento))
		}
	}
}

func checkBarcode(r *Report, line int, raw string) {
	if raw == "" {
		return
	}
	digits := cnab.Digits(raw)
	if digits != raw {
		r.addWarning(CategoryField, "CODIGO_BARRAS_CARACTERES", line,
			"barcode carries non-digit characters")
	}
	if !validBarcodeLen(len(digits)) {
		r.addWarning(CategoryField, "CODIGO_BARRAS_TAMANHO", line,
			fmt.Sprintf("barcode digit length %d, want 44 or 48", len(digits)))
	}
}

func checkDates(r *Report, line int, ok1 bool, d1 time.Time, ok2 bool, d2 time.Time) {
	if ok1 && !dateInRange(d1) {
		r.addError(CategoryField, "DATA_FORA_INTERVALO", line,
			fmt.Sprintf("date %s outside [1970-01-01, 2099-12-31]", d1.Format("2006-01-02")))
	}
	if ok2 && !dateInRange(d2) {
		r.addError(CategoryField, "DATA_FORA_INTERVALO", line,
			fmt.Sprintf("date %s outside [1970-01-01, 2099-12-31]", d2.Format("2006-01-02")))
	}
}

func checkNonNegative(r *Report, line int, fieldName string, v decimal.Decimal) {
	if v.IsNegative() {
		r.addError(CategoryField, "VALOR_NEGATIVO", line,
			fmt.Sprintf("%s is negative: %s", fieldName, v.StringFixed(2)))
	}
}

func countBarcodes240(file *cnab240.File) int {
	n := 0
	for _, b := range file.Batches {
		for _, d := range b.Details {
			switch s := d.(type) {
			case *cnab240.SegmentJ:
				if s.CodigoBarras != "" {
					n++
				}
			case *cnab240.SegmentO:
				if s.CodigoBarras != "" {
					n++
				}
			case *cnab240.SegmentRaw:
				if s.FallbackBarcode != "" {
					n++
				}
			}
		}
	}
	return n
}
