// Copyright 2024-2025, Felipe Barte de Oliveira
// For license information, see https://github.com/felipebarte/cnab/blob/master/LICENSE

package cnab240

import (
	"github.com/felipebarte/cnab/cnab"
)

type parserState int

const (
	expectFileHeader parserState = iota
	expectBatchOrTrailer
	inBatch
	done
)

// Parse assembles the hierarchical tree for a 240-column file. Field-level
// problems never abort the parse; they accumulate as diagnostics and the
// parse continues on the next line. Only a structurally unusable input
// (no lines at all) yields a nil file.
func Parse(content []byte) (*File, cnab.Diagnostics) {
	var diags cnab.Diagnostics

	lines := cnab.SplitLines(content)
	if len(lines) == 0 {
		diags.Add(cnab.CodeTrailerMissing, 0, "no usable lines in content")
		return nil, diags
	}

	file := &File{Lines: len(lines)}
	state := expectFileHeader
	var open *Batch

	// Bank layout is resolved from the first line's bank code; every
	// record repeats it, so the header is enough.
	bankCode := cnab.Alpha(lines[0], baseLayout.banco.start, baseLayout.banco.end)
	bank, known := cnab.LookupBank(bankCode)
	if !known {
		bank = cnab.BaseBank(bankCode)
		diags.Add(cnab.CodeBankUnknown, 1, "bank %q has no shipped supplement, using base FEBRABAN layout", bankCode)
	}
	file.Bank = bank
	l := layoutFor(bank)

	closeBatch := func() {
		open = nil
	}

	for i, line := range lines {
		lineNo := i + 1
		if len(line) != 240 {
			diags.Add(cnab.CodeLineLength, lineNo, "line is %d columns, want 240", len(line))
		}

		recordType := cnab.Alpha(line, l.recordType.start, l.recordType.end)

		switch recordType {
		case "0":
			if state != expectFileHeader {
				diags.Add(cnab.CodeHeaderOutOfPlace, lineNo, "file header after line 1")
				continue
			}
			file.Header = decodeFileHeader(line, lineNo, l, &diags)
			state = expectBatchOrTrailer

		case "1":
			if state == expectFileHeader {
				diags.Add(cnab.CodeHeaderOutOfPlace, lineNo, "batch header before file header")
				state = expectBatchOrTrailer
			}
			if state == inBatch {
				// An open batch must see its type-5 trailer first. Close it
				// implicitly so the rest of the file still parses.
				diags.Add(cnab.CodeBatchNested, lineNo, "batch header while batch %d is still open", open.Header.Lote)
				closeBatch()
			}
			if state == done {
				diags.Add(cnab.CodeHeaderOutOfPlace, lineNo, "batch header after file trailer")
				continue
			}
			b := &Batch{Header: decodeBatchHeader(line, lineNo, l, &diags)}
			file.Batches = append(file.Batches, b)
			open = b
			state = inBatch

		case "3":
			if state != inBatch {
				diags.Add(cnab.CodeDetailOrphan, lineNo, "detail record outside an open batch")
				if state == done {
					continue
				}
				// Keep the data: open an implicit batch the validator will flag.
				b := &Batch{Implicit: true}
				file.Batches = append(file.Batches, b)
				open = b
				state = inBatch
			}
			open.Details = append(open.Details, decodeDetail(line, lineNo, l, open, &diags))

		case "5":
			if state != inBatch {
				diags.Add(cnab.CodeDetailOrphan, lineNo, "batch trailer without an open batch")
				continue
			}
			open.Trailer = decodeBatchTrailer(line, lineNo, l, &diags)
			closeBatch()
			state = expectBatchOrTrailer

		case "9":
			if state == inBatch {
				diags.Add(cnab.CodeTrailerMissing, lineNo, "file trailer while batch %d is still open", open.Header.Lote)
				closeBatch()
			}
			if state == done {
				diags.Add(cnab.CodeTrailerDuplicate, lineNo, "second file trailer")
				continue
			}
			file.Trailer = decodeFileTrailer(line, lineNo, l, &diags)
			state = done

		default:
			diags.Add(cnab.CodeRecordUnknown, lineNo, "unknown record type %q", recordType)
		}
	}

	if state != done {
		diags.Add(cnab.CodeTrailerMissing, len(lines), "file ended without a file trailer")
	}
	if state == expectFileHeader {
		diags.Add(cnab.CodeHeaderOutOfPlace, 0, "file has no file header")
	}

	return file, diags
}

func decodeFileHeader(line string, lineNo int, l layout, diags *cnab.Diagnostics) FileHeader {
	h := FileHeader{
		BancoCodigo:      cnab.Alpha(line, l.banco.start, l.banco.end),
		BancoNome:        cnab.Alpha(line, l.hdrBancoNome.start, l.hdrBancoNome.end),
		EmpresaInscricao: cnab.Digits(cnab.Alpha(line, l.hdrInscricao.start, l.hdrInscricao.end)),
		EmpresaNome:      cnab.Alpha(line, l.hdrEmpresaNome.start, l.hdrEmpresaNome.end),
		Convenio:         cnab.Alpha(line, l.hdrConvenio.start, l.hdrConvenio.end),
		Agencia:          cnab.Alpha(line, l.hdrAgencia.start, l.hdrAgencia.end),
		Conta:            cnab.Alpha(line, l.hdrConta.start, l.hdrConta.end),
		HoraGeracao:      cnab.Alpha(line, l.hdrHoraGeracao.start, l.hdrHoraGeracao.end),
		VersaoLayout:     cnab.Alpha(line, l.hdrVersao.start, l.hdrVersao.end),
	}
	var err error
	h.DataGeracao, h.TemDataGeracao, err = cnab.Date8(line, l.hdrDataGeracao.start, l.hdrDataGeracao.end)
	if err != nil {
		diags.AddField(cnab.CodeFieldInvalid, lineNo, "data_geracao", "%v", err)
	}
	h.ArquivoSequencia, err = cnab.Int(line, l.hdrSequencia.start, l.hdrSequencia.end)
	if err != nil {
		diags.AddField(cnab.CodeFieldInvalid, lineNo, "arquivo_sequencia", "%v", err)
	}
	return h
}

func decodeBatchHeader(line string, lineNo int, l layout, diags *cnab.Diagnostics) BatchHeader {
	h := BatchHeader{
		TipoOperacao:     cnab.Alpha(line, l.lotTipoOperacao.start, l.lotTipoOperacao.end),
		TipoServico:      cnab.Alpha(line, l.lotTipoServico.start, l.lotTipoServico.end),
		FormaPagamento:   cnab.Alpha(line, l.lotForma.start, l.lotForma.end),
		VersaoLayout:     cnab.Alpha(line, l.lotVersao.start, l.lotVersao.end),
		EmpresaInscricao: cnab.Digits(cnab.Alpha(line, l.lotInscricao.start, l.lotInscricao.end)),
		EmpresaNome:      cnab.Alpha(line, l.lotEmpresaNome.start, l.lotEmpresaNome.end),
		Present:          true,
	}
	var err error
	h.Lote, err = cnab.Int(line, l.lote.start, l.lote.end)
	if err != nil {
		diags.AddField(cnab.CodeFieldInvalid, lineNo, "lote", "%v", err)
	}
	return h
}

func decodeBatchTrailer(line string, lineNo int, l layout, diags *cnab.Diagnostics) BatchTrailer {
	t := BatchTrailer{Present: true}
	var err error
	t.Lote, err = cnab.Int(line, l.lote.start, l.lote.end)
	if err != nil {
		diags.AddField(cnab.CodeFieldInvalid, lineNo, "lote", "%v", err)
	}
	t.QuantidadeRegistros, err = cnab.Int(line, l.trlQuantidade.start, l.trlQuantidade.end)
	if err != nil {
		diags.AddField(cnab.CodeFieldInvalid, lineNo, "quantidade_registros", "%v", err)
	}
	t.SomaValores, err = cnab.Money(line, l.trlSoma.start, l.trlSoma.end, 2)
	if err != nil {
		diags.AddField(cnab.CodeFieldInvalid, lineNo, "soma_valores", "%v", err)
	}
	return t
}

func decodeFileTrailer(line string, lineNo int, l layout, diags *cnab.Diagnostics) FileTrailer {
	t := FileTrailer{Present: true}
	var err error
	t.TotalLotes, err = cnab.Int(line, l.fimLotes.start, l.fimLotes.end)
	if err != nil {
		diags.AddField(cnab.CodeFieldInvalid, lineNo, "total_lotes", "%v", err)
	}
	t.TotalRegistros, err = cnab.Int(line, l.fimRegistros.start, l.fimRegistros.end)
	if err != nil {
		diags.AddField(cnab.CodeFieldInvalid, lineNo, "total_registros", "%v", err)
	}
	t.ValorTotal, err = cnab.Money(line, l.fimValor.start, l.fimValor.end, 2)
	if err != nil {
		diags.AddField(cnab.CodeFieldInvalid, lineNo, "valor_total", "%v", err)
	}
	return t
}

func decodeDetail(line string, lineNo int, l layout, batch *Batch, diags *cnab.Diagnostics) Detail {
	base := detailBase{Line: lineNo, Raw: line}
	var err error
	base.Seq, err = cnab.Int(line, l.detSequencia.start, l.detSequencia.end)
	if err != nil {
		diags.AddField(cnab.CodeFieldInvalid, lineNo, "sequencia", "%v", err)
	}
	letter := cnab.Alpha(line, l.detSegmento.start, l.detSegmento.end)

	switch letter {
	case "J":
		return decodeSegmentJ(line, lineNo, l, base, diags)
	case "O":
		return decodeSegmentO(line, lineNo, l, base, diags)
	case "A":
		return decodeSegmentA(line, lineNo, l, base, diags)
	case "B":
		b := decodeSegmentB(line, l, base)
		if owner := lastBeneficiary(batch); owner != nil {
			owner.attachAddress(b)
		} else {
			diags.Add(cnab.CodeSegmentUnknown, lineNo, "segment B with no preceding A/J/O segment")
		}
		return b
	default:
		if letter == "" {
			diags.Add(cnab.CodeSegmentUnknown, lineNo, "detail record with blank segment letter")
		}
		raw := &SegmentRaw{detailBase: base, Letter: letter}
		if code := cnab.Digits(cnab.Alpha(line, l.rawBarras.start, l.rawBarras.end)); len(code) == 44 || len(code) == 48 {
			raw.FallbackBarcode = code
		}
		return raw
	}
}

// lastBeneficiary finds the nearest preceding A/J/O detail in the batch.
func lastBeneficiary(batch *Batch) beneficiary {
	for i := len(batch.Details) - 1; i >= 0; i-- {
		if b, ok := batch.Details[i].(beneficiary); ok {
			return b
		}
	}
	return nil
}

func decodeSegmentJ(line string, lineNo int, l layout, base detailBase, diags *cnab.Diagnostics) *SegmentJ {
	s := &SegmentJ{
		detailBase:   base,
		Movimento:    cnab.Alpha(line, l.detMovimento.start, l.detMovimento.end),
		CodigoBarras: cnab.Alpha(line, l.jBarras.start, l.jBarras.end),
		Favorecido:   cnab.Alpha(line, l.jFavorecido.start, l.jFavorecido.end),
		SeuNumero:    cnab.Alpha(line, l.jSeuNumero.start, l.jSeuNumero.end),
		NossoNumero:  cnab.Alpha(line, l.jNossoNum.start, l.jNossoNum.end),
		Ocorrencias:  cnab.Alpha(line, l.jOcorrencia.start, l.jOcorrencia.end),
	}
	var err error
	if s.Vencimento, s.TemVencimento, err = cnab.Date8(line, l.jVencimento.start, l.jVencimento.end); err != nil {
		diags.AddField(cnab.CodeFieldInvalid, lineNo, "data_vencimento", "%v", err)
	}
	if s.ValorTitulo, err = cnab.Money(line, l.jValorTit.start, l.jValorTit.end, 2); err != nil {
		diags.AddField(cnab.CodeFieldInvalid, lineNo, "valor_titulo", "%v", err)
	}
	if s.Descontos, err = cnab.Money(line, l.jDescontos.start, l.jDescontos.end, 2); err != nil {
		diags.AddField(cnab.CodeFieldInvalid, lineNo, "descontos", "%v", err)
	}
	if s.Acrescimos, err = cnab.Money(line, l.jAcrescimos.start, l.jAcrescimos.end, 2); err != nil {
		diags.AddField(cnab.CodeFieldInvalid, lineNo, "acrescimos", "%v", err)
	}
	if s.DataPagamento, s.TemPagamento, err = cnab.Date8(line, l.jDataPagto.start, l.jDataPagto.end); err != nil {
		diags.AddField(cnab.CodeFieldInvalid, lineNo, "data_pagamento", "%v", err)
	}
	if s.ValorPagamento, err = cnab.Money(line, l.jValorPagto.start, l.jValorPagto.end, 2); err != nil {
		diags.AddField(cnab.CodeFieldInvalid, lineNo, "valor_pagamento", "%v", err)
	}
	return s
}

func decodeSegmentO(line string, lineNo int, l layout, base detailBase, diags *cnab.Diagnostics) *SegmentO {
	s := &SegmentO{
		detailBase:     base,
		Movimento:      cnab.Alpha(line, l.detMovimento.start, l.detMovimento.end),
		CodigoBarras:   cnab.Alpha(line, l.oBarras.start, l.oBarras.end),
		Concessionaria: cnab.Alpha(line, l.oNome.start, l.oNome.end),
		SeuNumero:      cnab.Alpha(line, l.oSeuNumero.start, l.oSeuNumero.end),
		NossoNumero:    cnab.Alpha(line, l.oNossoNum.start, l.oNossoNum.end),
		Ocorrencias:    cnab.Alpha(line, l.oOcorrencia.start, l.oOcorrencia.end),
	}
	var err error
	if s.Vencimento, s.TemVencimento, err = cnab.Date8(line, l.oVencimento.start, l.oVencimento.end); err != nil {
		diags.AddField(cnab.CodeFieldInvalid, lineNo, "data_vencimento", "%v", err)
	}
	if s.DataPagamento, s.TemPagamento, err = cnab.Date8(line, l.oDataPagto.start, l.oDataPagto.end); err != nil {
		diags.AddField(cnab.CodeFieldInvalid, lineNo, "data_pagamento", "%v", err)
	}
	if s.ValorDocumento, err = cnab.Money(line, l.oValorDoc.start, l.oValorDoc.end, 2); err != nil {
		diags.AddField(cnab.CodeFieldInvalid, lineNo, "valor_documento", "%v", err)
	}
	if s.ValorPagamento, err = cnab.Money(line, l.oValorPagto.start, l.oValorPagto.end, 2); err != nil {
		diags.AddField(cnab.CodeFieldInvalid, lineNo, "valor_pagamento", "%v", err)
	}
	return s
}

func decodeSegmentA(line string, lineNo int, l layout, base detailBase, diags *cnab.Diagnostics) *SegmentA {
	s := &SegmentA{
		detailBase:      base,
		Movimento:       cnab.Alpha(line, l.detMovimento.start, l.detMovimento.end),
		Camara:          cnab.Alpha(line, l.aCamara.start, l.aCamara.end),
		BancoFavorecido: cnab.Alpha(line, l.aBancoFav.start, l.aBancoFav.end),
		AgenciaConta:    cnab.Alpha(line, l.aAgConta.start, l.aAgConta.end),
		Favorecido:      cnab.Alpha(line, l.aFavorecido.start, l.aFavorecido.end),
		SeuNumero:       cnab.Alpha(line, l.aSeuNumero.start, l.aSeuNumero.end),
		NossoNumero:     cnab.Alpha(line, l.aNossoNum.start, l.aNossoNum.end),
		Ocorrencias:     cnab.Alpha(line, l.aOcorrencia.start, l.aOcorrencia.end),
	}
	var err error
	if s.DataPagamento, s.TemPagamento, err = cnab.Date8(line, l.aDataPagto.start, l.aDataPagto.end); err != nil {
		diags.AddField(cnab.CodeFieldInvalid, lineNo, "data_pagamento", "%v", err)
	}
	if s.ValorPagamento, err = cnab.Money(line, l.aValorPagto.start, l.aValorPagto.end, 2); err != nil {
		diags.AddField(cnab.CodeFieldInvalid, lineNo, "valor_pagamento", "%v", err)
	}
	if s.DataEfetivacao, s.TemEfetivacao, err = cnab.Date8(line, l.aDataEfet.start, l.aDataEfet.end); err != nil {
		diags.AddField(cnab.CodeFieldInvalid, lineNo, "data_efetivacao", "%v", err)
	}
	if s.ValorEfetivado, err = cnab.Money(line, l.aValorEfet.start, l.aValorEfet.end, 2); err != nil {
		diags.AddField(cnab.CodeFieldInvalid, lineNo, "valor_efetivado", "%v", err)
	}
	return s
}

func decodeSegmentB(line string, l layout, base detailBase) *SegmentB {
	return &SegmentB{
		detailBase:    base,
		TipoInscricao: cnab.Alpha(line, l.bTipoInscricao.start, l.bTipoInscricao.end),
		Documento:     cnab.Digits(cnab.Alpha(line, l.bDocumento.start, l.bDocumento.end)),
		Logradouro:    cnab.Alpha(line, l.bLogradouro.start, l.bLogradouro.end),
		Numero:        cnab.Alpha(line, l.bNumero.start, l.bNumero.end),
		Complemento:   cnab.Alpha(line, l.bComplemento.start, l.bComplemento.end),
		Bairro:        cnab.Alpha(line, l.bBairro.start, l.bBairro.end),
		Cidade:        cnab.Alpha(line, l.bCidade.start, l.bCidade.end),
		CEP:           cnab.Alpha(line, l.bCEP.start, l.bCEP.end),
		UF:            cnab.Alpha(line, l.bUF.start, l.bUF.end),
		ChavePix:      cnab.Alpha(line, l.bChavePix.start, l.bChavePix.end),
	}
}
