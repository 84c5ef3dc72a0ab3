// Copyright 2024-2025, Felipe Barte de Oliveira
// For license information, see https://github.com/felipebarte/cnab/blob/master/LICENSE

package validate

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/felipebarte/cnab/cnab"
	"github.com/felipebarte/cnab/cnab400"
)

// Validate400 checks a parsed 400-column flat tree. In this dialect the
// trailer's total_registros counts detail records only.
func Validate400(file *cnab400.File) *Report {
	r := &Report{}
	if file == nil {
		r.addError(CategoryStructural, "ARQUIVO_VAZIO", 0, "no parsed file to validate")
		r.finish(0)
		return r
	}

	if !file.Header.Present {
		r.addError(CategoryStructural, "CABECALHO_AUSENTE", 0, "header record missing")
	}
	if !file.Trailer.Present {
		r.addError(CategoryStructural, "TRAILER_AUSENTE", 0, "trailer record missing")
	}

	sum := decimal.Zero
	withBarcode := 0
	for i := range file.Records {
		rec := &file.Records[i]
		v := rec.ValorPago
		if !v.IsPositive() {
			v = rec.ValorTitulo
		}
		sum = sum.Add(v)

		if rec.CodigoBarras != "" {
			withBarcode++
			digits := cnab.Digits(rec.CodigoBarras)
			if !validBarcodeLen(len(digits)) {
				r.addWarning(CategoryField, "CODIGO_BARRAS_TAMANHO", rec.LineNumber,
					fmt.Sprintf("barcode digit length %d, want 44 or 48", len(digits)))
			}
		}
		if rec.PagadorDocumento != "" && !validDocument(rec.PagadorDocumento) {
			r.addWarning(CategoryField, "DOCUMENTO_INVALIDO", rec.LineNumber,
				fmt.Sprintf("document %q is neither CPF (11) nor CNPJ (14) digits", rec.PagadorDocumento))
		}
		if rec.TemVencimento && !dateInRange(rec.DataVencimento) {
			r.addError(CategoryField, "DATA_FORA_INTERVALO", rec.LineNumber,
				fmt.Sprintf("due date %s outside [1970-01-01, 2099-12-31]", rec.DataVencimento.Format("2006-01-02")))
		}
		if rec.TemPagamento && !dateInRange(rec.DataPagamento) {
			r.addError(CategoryField, "DATA_FORA_INTERVALO", rec.LineNumber,
				fmt.Sprintf("payment date %s outside [1970-01-01, 2099-12-31]", rec.DataPagamento.Format("2006-01-02")))
		}
		if rec.ValorTitulo.IsNegative() || rec.ValorPago.IsNegative() {
			r.addError(CategoryField, "VALOR_NEGATIVO", rec.LineNumber, "monetary value is negative")
		}
	}

	if file.Trailer.Present {
		if file.Trailer.TotalRegistros != int64(len(file.Records)) {
			r.addError(CategoryIntegrity, "TOTAL_REGISTROS", 0, fmt.Sprintf(
				"trailer record count: expected=%d, actual=%d",
				len(file.Records), file.Trailer.TotalRegistros))
		}
		if !file.Trailer.ValorTotal.IsZero() && !file.Trailer.ValorTotal.Equal(sum) {
			r.addError(CategoryIntegrity, "VALOR_TOTAL", 0, fmt.Sprintf(
				"trailer monetary total: expected=%s, actual=%s",
				sum.StringFixed(2), file.Trailer.ValorTotal.StringFixed(2)))
		}
	}

	r.Statistics = Statistics{
		TotalRegistros:  len(file.Records),
		ValorTotal:      sum,
		ComCodigoBarras: withBarcode,
	}
	r.finish(len(file.Records))
	return r
}
