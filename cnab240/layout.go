// Copyright 2024-2025, Felipe Barte de Oliveira
// For license information, see https://github.com/felipebarte/cnab/blob/master/LICENSE

package cnab240

import "github.com/felipebarte/cnab/cnab"

// field is one fixed-width extraction: 1-based inclusive positions into the
// 240-column line, as printed in the FEBRABAN manuals.
type field struct {
	start, end int
}

// layout holds the positions a bank supplement is allowed to move. The base
// values are the FEBRABAN standard; bank overrides patch individual fields.
type layout struct {
	// Common prefix of every record.
	banco      field // bank code
	lote       field // batch number
	recordType field // record type digit

	// File header (type 0).
	hdrTipoInscricao field
	hdrInscricao     field
	hdrConvenio      field
	hdrAgencia       field
	hdrConta         field
	hdrEmpresaNome   field
	hdrBancoNome     field
	hdrDataGeracao   field
	hdrHoraGeracao   field
	hdrSequencia     field
	hdrVersao        field

	// Batch header (type 1).
	lotTipoOperacao field
	lotTipoServico  field
	lotForma        field
	lotVersao       field
	lotInscricao    field
	lotEmpresaNome  field

	// Detail (type 3) common prefix.
	detSequencia field
	detSegmento  field
	detMovimento field

	// Segment J.
	jBarras     field
	jFavorecido field
	jVencimento field
	jValorTit   field
	jDescontos  field
	jAcrescimos field
	jDataPagto  field
	jValorPagto field
	jSeuNumero  field
	jNossoNum   field
	jOcorrencia field

	// Segment O.
	oBarras     field
	oNome       field
	oVencimento field
	oDataPagto  field
	oValorDoc   field
	oValorPagto field
	oSeuNumero  field
	oNossoNum   field
	oOcorrencia field

	// Segment A.
	aCamara     field
	aBancoFav   field
	aAgConta    field
	aFavorecido field
	aSeuNumero  field
	aDataPagto  field
	aValorPagto field
	aNossoNum   field
	aDataEfet   field
	aValorEfet  field
	aOcorrencia field

	// Segment B.
	bTipoInscricao field
	bDocumento     field
	bLogradouro    field
	bNumero        field
	bComplemento   field
	bBairro        field
	bCidade        field
	bCEP           field
	bUF            field
	bChavePix      field

	// Unrecognized segments: the slot the base layout reserves for a
	// barcode, read only by the extractor's fallback rule.
	rawBarras field

	// Batch trailer (type 5).
	trlQuantidade field
	trlSoma       field

	// File trailer (type 9).
	fimLotes     field
	fimRegistros field
	fimValor     field
}

var baseLayout = layout{
	banco:      field{1, 3},
	lote:       field{4, 7},
	recordType: field{8, 8},

	hdrTipoInscricao: field{18, 18},
	hdrInscricao:     field{19, 32},
	hdrConvenio:      field{33, 52},
	hdrAgencia:       field{53, 58},
	hdrConta:         field{59, 72},
	hdrEmpresaNome:   field{73, 102},
	hdrBancoNome:     field{103, 132},
	hdrDataGeracao:   field{144, 151},
	hdrHoraGeracao:   field{152, 157},
	hdrSequencia:     field{158, 163},
	hdrVersao:        field{164, 166},

	lotTipoOperacao: field{9, 9},
	lotTipoServico:  field{10, 11},
	lotForma:        field{12, 13},
	lotVersao:       field{14, 16},
	lotInscricao:    field{19, 32},
	lotEmpresaNome:  field{73, 102},

	detSequencia: field{9, 13},
	detSegmento:  field{14, 14},
	detMovimento: field{15, 17},

	jBarras:     field{18, 61},
	jFavorecido: field{62, 91},
	jVencimento: field{92, 99},
	jValorTit:   field{100, 114},
	jDescontos:  field{115, 129},
	jAcrescimos: field{130, 144},
	jDataPagto:  field{145, 152},
	jValorPagto: field{153, 167},
	jSeuNumero:  field{183, 202},
	jNossoNum:   field{203, 222},
	jOcorrencia: field{231, 240},

	oBarras:     field{18, 61},
	oNome:       field{62, 91},
	oVencimento: field{92, 99},
	oDataPagto:  field{100, 107},
	oValorDoc:   field{108, 122},
	oValorPagto: field{123, 137},
	oSeuNumero:  field{178, 197},
	oNossoNum:   field{203, 222},
	oOcorrencia: field{231, 240},

	aCamara:     field{18, 20},
	aBancoFav:   field{21, 23},
	aAgConta:    field{24, 43},
	aFavorecido: field{44, 73},
	aSeuNumero:  field{74, 93},
	aDataPagto:  field{94, 101},
	aValorPagto: field{120, 134},
	aNossoNum:   field{135, 154},
	aDataEfet:   field{155, 162},
	aValorEfet:  field{163, 177},
	aOcorrencia: field{231, 240},

	bTipoInscricao: field{18, 18},
	bDocumento:     field{19, 32},
	bLogradouro:    field{33, 62},
	bNumero:        field{63, 67},
	bComplemento:   field{68, 82},
	bBairro:        field{83, 97},
	bCidade:        field{98, 117},
	bCEP:           field{118, 125},
	bUF:            field{126, 127},
	bChavePix:      field{128, 226},

	rawBarras: field{18, 61},

	trlQuantidade: field{18, 23},
	trlSoma:       field{24, 41},

	fimLotes:     field{18, 23},
	fimRegistros: field{24, 29},
	fimValor:     field{30, 47},
}

// bankOverrides patches base positions for banks whose supplements diverge.
// The supported supplements all follow the base payment layout today; the
// hook is where a divergence lands when one ships.
var bankOverrides = map[string]func(*layout){}

func layoutFor(bank cnab.Bank) layout {
	l := baseLayout
	if patch, ok := bankOverrides[bank.Code]; ok {
		patch(&l)
	}
	return l
}
