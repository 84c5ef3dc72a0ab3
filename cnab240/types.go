// Copyright 2024-2025, Felipe Barte de Oliveira
// For license information, see https://github.com/felipebarte/cnab/blob/master/LICENSE

// Package cnab240 parses the hierarchical 240-column CNAB dialect: one file
// header, one or more batches of detail segments, one file trailer. Detail
// lines are tagged variants keyed on the segment letter; each variant
// carries its own typed payload.
package cnab240

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/felipebarte/cnab/cnab"
)

// File is the parsed tree for one CNAB 240 file.
type File struct {
	Header  FileHeader
	Batches []*Batch
	Trailer FileTrailer
	Bank    cnab.Bank
	// Lines is the count of normalized non-empty lines.
	Lines int
}

// FileHeader is the single type-0 record opening the file.
type FileHeader struct {
	BancoCodigo      string
	BancoNome        string
	EmpresaInscricao string // CNPJ/CPF, digits
	EmpresaNome      string
	Convenio         string
	Agencia          string
	Conta            string
	DataGeracao      time.Time
	TemDataGeracao   bool
	HoraGeracao      string
	ArquivoSequencia int64
	VersaoLayout     string
}

// FileTrailer is the single type-9 record closing the file.
type FileTrailer struct {
	TotalLotes     int64
	TotalRegistros int64
	// ValorTotal is the declared sum over every batch. Not all bank
	// supplements fill it; zero reads as absent.
	ValorTotal decimal.Decimal
	Present    bool
}

// Batch is one service batch: header, ordered details, trailer.
type Batch struct {
	Header  BatchHeader
	Details []Detail
	Trailer BatchTrailer
	// Implicit marks a batch the parser had to open for orphan details
	// (no type-1 header was seen). The validator flags these.
	Implicit bool
}

// BatchHeader is the type-1 record opening a batch.
type BatchHeader struct {
	Lote             int64
	TipoOperacao     string
	TipoServico      string
	FormaPagamento   string
	VersaoLayout     string
	EmpresaInscricao string
	EmpresaNome      string
	Present          bool
}

// BatchTrailer is the type-5 record closing a batch, carrying the declared
// totals the validator checks against computed values.
type BatchTrailer struct {
	Lote                int64
	QuantidadeRegistros int64
	SomaValores         decimal.Decimal
	Present             bool
}

// Detail is one type-3 record. The concrete type is decided by the segment
// letter at position 14.
type Detail interface {
	// SegmentLetter is the single uppercase letter tagging the variant.
	SegmentLetter() string
	// Sequence is the record's sequential number within its batch.
	Sequence() int64
	// LineNumber is 1-based over the normalized lines.
	LineNumber() int
	// RawLine is the full 240-column line as read.
	RawLine() string
}

// beneficiary is implemented by the segments a type-B record can attach to.
type beneficiary interface {
	Detail
	attachAddress(*SegmentB)
}

type detailBase struct {
	Seq  int64
	Line int
	Raw  string
}

func (d detailBase) Sequence() int64 { return d.Seq }
func (d detailBase) LineNumber() int { return d.Line }
func (d detailBase) RawLine() string { return d.Raw }

// SegmentJ is the payment of a título (boleto) by barcode.
type SegmentJ struct {
	detailBase
	Movimento       string
	CodigoBarras    string
	Favorecido      string
	Vencimento      time.Time
	TemVencimento   bool
	ValorTitulo     decimal.Decimal
	Descontos       decimal.Decimal
	Acrescimos      decimal.Decimal
	DataPagamento   time.Time
	TemPagamento    bool
	ValorPagamento  decimal.Decimal
	SeuNumero       string
	NossoNumero     string
	Ocorrencias     string
	Endereco        *SegmentB
}

func (s *SegmentJ) SegmentLetter() string { return "J" }
func (s *SegmentJ) attachAddress(b *SegmentB) { s.Endereco = b }

// SegmentO is the payment of a tributo or concessionária document.
type SegmentO struct {
	detailBase
	Movimento      string
	CodigoBarras   string
	Concessionaria string
	Vencimento     time.Time
	TemVencimento  bool
	DataPagamento  time.Time
	TemPagamento   bool
	ValorDocumento decimal.Decimal
	ValorPagamento decimal.Decimal
	SeuNumero      string
	NossoNumero    string
	Ocorrencias    string
	Endereco       *SegmentB
}

func (s *SegmentO) SegmentLetter() string { return "O" }
func (s *SegmentO) attachAddress(b *SegmentB) { s.Endereco = b }

// SegmentA is a credit/transfer detail.
type SegmentA struct {
	detailBase
	Movimento       string
	Camara          string
	BancoFavorecido string
	AgenciaConta    string
	Favorecido      string
	SeuNumero       string
	DataPagamento   time.Time
	TemPagamento    bool
	ValorPagamento  decimal.Decimal
	NossoNumero     string
	DataEfetivacao  time.Time
	TemEfetivacao   bool
	ValorEfetivado  decimal.Decimal
	Ocorrencias     string
	Endereco        *SegmentB
}

func (s *SegmentA) SegmentLetter() string { return "A" }
func (s *SegmentA) attachAddress(b *SegmentB) { s.Endereco = b }

// SegmentB carries addressee/PIX data for the nearest preceding A/J/O
// segment in the same batch.
type SegmentB struct {
	detailBase
	TipoInscricao string
	Documento     string
	Logradouro    string
	Numero        string
	Complemento   string
	Bairro        string
	Cidade        string
	CEP           string
	UF            string
	ChavePix      string
}

func (s *SegmentB) SegmentLetter() string { return "B" }

// SegmentRaw is any detail whose segment letter has no dedicated decoder.
// The payload stays opaque except for the fallback barcode slot.
type SegmentRaw struct {
	detailBase
	Letter string
	// FallbackBarcode is the digit content of the base layout's barcode
	// slot, kept only when it scans as a plausible barcode.
	FallbackBarcode string
}

func (s *SegmentRaw) SegmentLetter() string { return s.Letter }
