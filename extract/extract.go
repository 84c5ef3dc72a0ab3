// Copyright 2024-2025, Felipe Barte de Oliveira
// For license information, see https://github.com/felipebarte/cnab/blob/master/LICENSE

// Package extract enumerates payable items (barcodes) from parsed CNAB
// trees. Extraction is a pure function over the tree: running it twice
// yields identical lists, order and content.
package extract

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/felipebarte/cnab/cnab"
	"github.com/felipebarte/cnab/cnab240"
	"github.com/felipebarte/cnab/cnab400"
)

// Tipo classifies a payable.
type Tipo string

const (
	TipoTitulo  Tipo = "titulo"
	TipoTributo Tipo = "tributo"
	TipoOutro   Tipo = "outro"
)

// Status is the lifecycle mark carried into persistence.
type Status string

const (
	StatusExtracted Status = "extracted"
	StatusValidated Status = "validated"
	StatusProcessed Status = "processed"
	StatusSent      Status = "sent"
	StatusError     Status = "error"
)

// Barcode is one payable item lifted from the tree.
type Barcode struct {
	Codigo        string
	Tipo          Tipo
	Segmento      string
	Favorecido    string
	Pagador       string
	Valor         decimal.Decimal
	Vencimento    time.Time
	TemVencimento bool
	Pagamento     time.Time
	TemPagamento  bool
	Status        Status
	// Valido is false when the digit-only form is not 44 or 48 long;
	// such items downgrade the file's validation status to warning.
	Valido     bool
	Observacao string
	Line       int
}

// effective picks paid-over-due value: valor pago when positive, the
// document value otherwise.
func effective(pago, titulo decimal.Decimal) decimal.Decimal {
	if pago.IsPositive() {
		return pago
	}
	return titulo
}

func classifyDigits(code string) (string, bool) {
	digits := cnab.Digits(code)
	return digits, len(digits) == 44 || len(digits) == 48
}

// FromCNAB240 walks the batches in tree order applying the rules in
// sequence, first match wins: J with a barcode, O with a barcode, then the
// fallback slot of unrecognized segments.
func FromCNAB240(file *cnab240.File) []Barcode {
	if file == nil {
		return nil
	}
	var out []Barcode
	for _, batch := range file.Batches {
		for _, d := range batch.Details {
			switch s := d.(type) {
			case *cnab240.SegmentJ:
				if s.CodigoBarras == "" {
					continue
				}
				digits, ok := classifyDigits(s.CodigoBarras)
				out = append(out, Barcode{
					Codigo:        digits,
					Tipo:          TipoTitulo,
					Segmento:      "J",
					Favorecido:    s.Favorecido,
					Valor:         effective(s.ValorPagamento, s.ValorTitulo),
					Vencimento:    s.Vencimento,
					TemVencimento: s.TemVencimento,
					Pagamento:     s.DataPagamento,
					TemPagamento:  s.TemPagamento,
					Status:        StatusExtracted,
					Valido:        ok,
					Line:          s.LineNumber(),
				})
			case *cnab240.SegmentO:
				if s.CodigoBarras == "" {
					continue
				}
				digits, ok := classifyDigits(s.CodigoBarras)
				out = append(out, Barcode{
					Codigo:        digits,
					Tipo:          TipoTributo,
					Segmento:      "O",
					Favorecido:    s.Concessionaria,
					Valor:         effective(s.ValorPagamento, s.ValorDocumento),
					Vencimento:    s.Vencimento,
					TemVencimento: s.TemVencimento,
					Pagamento:     s.DataPagamento,
					TemPagamento:  s.TemPagamento,
					Status:        StatusExtracted,
					Valido:        ok,
					Line:          s.LineNumber(),
				})
			case *cnab240.SegmentRaw:
				if s.FallbackBarcode == "" {
					continue
				}
				digits, ok := classifyDigits(s.FallbackBarcode)
				out = append(out, Barcode{
					Codigo:     digits,
					Tipo:       TipoOutro,
					Segmento:   s.Letter,
					Status:     StatusExtracted,
					Valido:     ok,
					Observacao: "fallback",
					Line:       s.LineNumber(),
				})
			}
		}
	}
	return out
}

// FromCNAB400 lifts one barcode per detail record. A 47-digit linha
// digitável is normalized into its 44-digit barcode when the check digits
// hold; the classification follows the digit shape (48 and '8'-prefixed 44
// are tributos, the rest títulos).
func FromCNAB400(file *cnab400.File) []Barcode {
	if file == nil {
		return nil
	}
	var out []Barcode
	for i := range file.Records {
		rec := &file.Records[i]
		code := rec.CodigoBarras
		if code == "" {
			code = rec.LinhaDigitavel
		}
		if code == "" {
			continue
		}
		digits := cnab.Digits(code)
		if len(digits) == 47 {
			if converted, err := DigitableToBarcode(digits); err == nil {
				digits = converted
			}
		}
		tipo := TipoTitulo
		if len(digits) == 48 || (len(digits) == 44 && digits[0] == '8') {
			tipo = TipoTributo
		}
		_, ok := classifyDigits(digits)
		out = append(out, Barcode{
			Codigo:        digits,
			Tipo:          tipo,
			Segmento:      "",
			Pagador:       rec.PagadorNome,
			Valor:         effective(rec.ValorPago, rec.ValorTitulo),
			Vencimento:    rec.DataVencimento,
			TemVencimento: rec.TemVencimento,
			Pagamento:     rec.DataPagamento,
			TemPagamento:  rec.TemPagamento,
			Status:        StatusExtracted,
			Valido:        ok,
			Line:          rec.LineNumber,
		})
	}
	return out
}
