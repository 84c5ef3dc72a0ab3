// Copyright 2024-2025, Felipe Barte de Oliveira
// For license information, see https://github.com/felipebarte/cnab/blob/master/LICENSE

// Package cnab400 parses the flat 400-column CNAB dialect: a header line,
// zero or more detail records and a trailer. Field positions follow the
// Itaú reference layout.
package cnab400

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/felipebarte/cnab/cnab"
)

const centuryPivot = 50

// Tolerance selects what to do with lines that are not exactly 400 columns.
type Tolerance int

const (
	// TolerancePad decodes short lines as space-padded and flags a warning.
	TolerancePad Tolerance = iota
	// ToleranceReject skips non-conforming lines entirely.
	ToleranceReject
)

// Options tunes the parse.
type Options struct {
	Tolerance Tolerance
}

// File is the parsed flat tree for one CNAB 400 file.
type File struct {
	Header  Header
	Records []Record
	Trailer Trailer
	Bank    cnab.Bank
	Lines   int
}

// Header is the single type-0 record.
type Header struct {
	BancoCodigo      string
	BancoNome        string
	EmpresaCodigo    string
	EmpresaNome      string
	Agencia          string
	Conta            string
	ArquivoSequencia int64
	DataArquivo      time.Time
	TemDataArquivo   bool
	VersaoLayout     string
	Present          bool
}

// Record is one type-1 detail: a boleto occurrence.
type Record struct {
	NossoNumero      string
	SeuNumero        string
	CodigoBarras     string
	LinhaDigitavel   string
	ValorTitulo      decimal.Decimal
	ValorPago        decimal.Decimal
	DataVencimento   time.Time
	TemVencimento    bool
	DataPagamento    time.Time
	TemPagamento     bool
	PagadorNome      string
	PagadorDocumento string
	CodigoOcorrencia string
	CodigoBanco      string
	Agencia          string
	Conta            string
	// DadosCompletos keeps the raw 400-column line for downstream
	// consumers that need fields this model does not lift.
	DadosCompletos string
	LineNumber     int
}

// Trailer is the single type-9 record.
type Trailer struct {
	TotalRegistros int64
	ValorTotal     decimal.Decimal
	Sequencial     int64
	Present        bool
}

// Field positions, 1-based inclusive, Itaú reference layout.
var (
	fldRecordType = [2]int{1, 1}

	hdrAgencia   = [2]int{27, 30}
	hdrConta     = [2]int{33, 37}
	hdrEmpresa   = [2]int{47, 76}
	hdrBanco     = [2]int{77, 79}
	hdrBancoNome = [2]int{80, 94}
	hdrData      = [2]int{95, 100}
	hdrEmpresaID = [2]int{101, 108}
	hdrSequencia = [2]int{109, 113}
	hdrVersao    = [2]int{114, 116}

	detDocumento  = [2]int{4, 17}
	detAgencia    = [2]int{18, 21}
	detConta      = [2]int{24, 28}
	detSeuNumero  = [2]int{38, 62}
	detNossoNum   = [2]int{63, 70}
	detOcorrencia = [2]int{109, 110}
	detDataPagto  = [2]int{111, 116}
	detVencimento = [2]int{147, 152}
	detValorTit   = [2]int{153, 165}
	detBarras     = [2]int{166, 209}
	detLinhaDig   = [2]int{210, 256}
	detValorPago  = [2]int{257, 269}
	detPagador    = [2]int{270, 299}

	trlRegistros  = [2]int{18, 25}
	trlValorTotal = [2]int{26, 38}
	trlSequencial = [2]int{395, 400}
)

// Parse assembles the flat tree: line 1 is the header, the last line the
// trailer, everything between a detail. Field-level problems become
// diagnostics, never aborts.
func Parse(content []byte, opts Options) (*File, cnab.Diagnostics) {
	var diags cnab.Diagnostics

	lines := cnab.SplitLines(content)
	if len(lines) == 0 {
		diags.Add(cnab.CodeTrailerMissing, 0, "no usable lines in content")
		return nil, diags
	}

	file := &File{Lines: len(lines)}

	kept := make([]string, 0, len(lines))
	keptNo := make([]int, 0, len(lines))
	for i, line := range lines {
		lineNo := i + 1
		if len(line) != 400 {
			if opts.Tolerance == ToleranceReject {
				diags.Add(cnab.CodeLineLength, lineNo, "line is %d columns, want 400; rejected", len(line))
				continue
			}
			diags.Add(cnab.CodeLineLength, lineNo, "line is %d columns, want 400; padded", len(line))
		}
		kept = append(kept, line)
		keptNo = append(keptNo, lineNo)
	}
	if len(kept) == 0 {
		diags.Add(cnab.CodeTrailerMissing, 0, "no conforming lines in content")
		return file, diags
	}

	for i, line := range kept {
		lineNo := keptNo[i]
		recordType := cnab.Alpha(line, fldRecordType[0], fldRecordType[1])
		switch recordType {
		case "0":
			if file.Header.Present {
				diags.Add(cnab.CodeHeaderOutOfPlace, lineNo, "second header record")
				continue
			}
			if i != 0 {
				diags.Add(cnab.CodeHeaderOutOfPlace, lineNo, "header record after line 1")
			}
			file.Header = decodeHeader(line, lineNo, &diags)
		case "1":
			if !file.Header.Present {
				diags.Add(cnab.CodeDetailOrphan, lineNo, "detail record before header")
			}
			if file.Trailer.Present {
				diags.Add(cnab.CodeDetailOrphan, lineNo, "detail record after trailer")
			}
			file.Records = append(file.Records, decodeRecord(line, lineNo, &diags))
		case "9":
			if file.Trailer.Present {
				diags.Add(cnab.CodeTrailerDuplicate, lineNo, "second trailer record")
				continue
			}
			file.Trailer = decodeTrailer(line, lineNo, &diags)
		default:
			diags.Add(cnab.CodeRecordUnknown, lineNo, "unknown record type %q", recordType)
		}
	}

	if !file.Header.Present {
		diags.Add(cnab.CodeHeaderOutOfPlace, 0, "file has no header record")
	}
	if !file.Trailer.Present {
		diags.Add(cnab.CodeTrailerMissing, len(lines), "file ended without a trailer record")
	}

	bank, known := cnab.LookupBank(file.Header.BancoCodigo)
	if !known {
		bank = cnab.BaseBank(file.Header.BancoCodigo)
		if file.Header.Present {
			diags.Add(cnab.CodeBankUnknown, 1, "bank %q has no shipped supplement, using base layout", file.Header.BancoCodigo)
		}
	}
	file.Bank = bank

	// The detail layout has no bank field of its own; every record belongs
	// to the header's institution.
	for i := range file.Records {
		file.Records[i].CodigoBanco = file.Header.BancoCodigo
	}

	return file, diags
}

func decodeHeader(line string, lineNo int, diags *cnab.Diagnostics) Header {
	h := Header{
		BancoCodigo:   cnab.Alpha(line, hdrBanco[0], hdrBanco[1]),
		BancoNome:     cnab.Alpha(line, hdrBancoNome[0], hdrBancoNome[1]),
		EmpresaCodigo: cnab.Alpha(line, hdrEmpresaID[0], hdrEmpresaID[1]),
		EmpresaNome:   cnab.Alpha(line, hdrEmpresa[0], hdrEmpresa[1]),
		Agencia:       cnab.Alpha(line, hdrAgencia[0], hdrAgencia[1]),
		Conta:         cnab.Alpha(line, hdrConta[0], hdrConta[1]),
		VersaoLayout:  cnab.Alpha(line, hdrVersao[0], hdrVersao[1]),
		Present:       true,
	}
	var err error
	if h.DataArquivo, h.TemDataArquivo, err = cnab.Date6(line, hdrData[0], hdrData[1], centuryPivot); err != nil {
		diags.AddField(cnab.CodeFieldInvalid, lineNo, "data_arquivo", "%v", err)
	}
	if h.ArquivoSequencia, err = cnab.Int(line, hdrSequencia[0], hdrSequencia[1]); err != nil {
		diags.AddField(cnab.CodeFieldInvalid, lineNo, "arquivo_sequencia", "%v", err)
	}
	return h
}

func decodeRecord(line string, lineNo int, diags *cnab.Diagnostics) Record {
	r := Record{
		NossoNumero:      cnab.Alpha(line, detNossoNum[0], detNossoNum[1]),
		SeuNumero:        cnab.Alpha(line, detSeuNumero[0], detSeuNumero[1]),
		CodigoBarras:     cnab.Digits(cnab.Alpha(line, detBarras[0], detBarras[1])),
		LinhaDigitavel:   cnab.Digits(cnab.Alpha(line, detLinhaDig[0], detLinhaDig[1])),
		PagadorNome:      cnab.Alpha(line, detPagador[0], detPagador[1]),
		PagadorDocumento: cnab.Digits(cnab.Alpha(line, detDocumento[0], detDocumento[1])),
		CodigoOcorrencia: cnab.Alpha(line, detOcorrencia[0], detOcorrencia[1]),
		Agencia:          cnab.Alpha(line, detAgencia[0], detAgencia[1]),
		Conta:            cnab.Alpha(line, detConta[0], detConta[1]),
		DadosCompletos:   line,
		LineNumber:       lineNo,
	}
	var err error
	if r.ValorTitulo, err = cnab.Money(line, detValorTit[0], detValorTit[1], 2); err != nil {
		diags.AddField(cnab.CodeFieldInvalid, lineNo, "valor_titulo", "%v", err)
	}
	if r.ValorPago, err = cnab.Money(line, detValorPago[0], detValorPago[1], 2); err != nil {
		diags.AddField(cnab.CodeFieldInvalid, lineNo, "valor_pago", "%v", err)
	}
	if r.DataVencimento, r.TemVencimento, err = cnab.Date6(line, detVencimento[0], detVencimento[1], centuryPivot); err != nil {
		diags.AddField(cnab.CodeFieldInvalid, lineNo, "data_vencimento", "%v", err)
	}
	if r.DataPagamento, r.TemPagamento, err = cnab.Date6(line, detDataPagto[0], detDataPagto[1], centuryPivot); err != nil {
		diags.AddField(cnab.CodeFieldInvalid, lineNo, "data_pagamento", "%v", err)
	}
	return r
}

func decodeTrailer(line string, lineNo int, diags *cnab.Diagnostics) Trailer {
	t := Trailer{Present: true}
	var err error
	if t.TotalRegistros, err = cnab.Int(line, trlRegistros[0], trlRegistros[1]); err != nil {
		diags.AddField(cnab.CodeFieldInvalid, lineNo, "total_registros", "%v", err)
	}
	if t.ValorTotal, err = cnab.Money(line, trlValorTotal[0], trlValorTotal[1], 2); err != nil {
		diags.AddField(cnab.CodeFieldInvalid, lineNo, "valor_total", "%v", err)
	}
	if t.Sequencial, err = cnab.Int(line, trlSequencial[0], trlSequencial[1]); err != nil {
		diags.AddField(cnab.CodeFieldInvalid, lineNo, "sequencial", "%v", err)
	}
	return t
}
