// Copyright 2024-2025, Felipe Barte de Oliveira
// For license information, see https://github.com/felipebarte/cnab/blob/master/LICENSE

package ingest

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/felipebarte/cnab/extract"
	"github.com/felipebarte/cnab/validate"
	"github.com/felipebarte/cnab/webhook"
)

// Somatorias aggregates the monetary view of one ingest.
type Somatorias struct {
	TotalRegistros       int             `json:"totalRegistros"`
	ValorTotal           decimal.Decimal `json:"valorTotal"`
	TotalComCodigoBarras int             `json:"totalComCodigoBarras"`
	TotalPagos           int             `json:"totalPagos"`
	TotalPendentes       int             `json:"totalPendentes"`
}

// CodigosBarras is the extracted payable list as the caller sees it.
type CodigosBarras struct {
	Total int               `json:"total"`
	Itens []extract.Barcode `json:"itens"`
}

// Result is the structured outcome of one ingest, success or duplicate.
type Result struct {
	OperationID      uuid.UUID         `json:"operationId"`
	Sucesso          bool              `json:"sucesso"`
	Duplicado        bool              `json:"duplicado"`
	ArquivoID        int64             `json:"arquivoId"`
	FileHash         string            `json:"fileHash"`
	FormatoDetectado string            `json:"formatoDetectado"`
	Confianca        int               `json:"confianca,omitempty"`
	Validacao        *validate.Report  `json:"validacao,omitempty"`
	Somatorias       Somatorias        `json:"somatorias"`
	CodigosBarras    CodigosBarras     `json:"codigosBarras"`
	Webhook          *webhook.Delivery `json:"webhook,omitempty"`
	ProcessingTime   time.Duration     `json:"-"`
}

// Payload is the webhook request body: file identity, parsed header,
// records, and the monetary summary. The dispatcher stamps the attempt
// number before each POST.
type Payload struct {
	Metadados PayloadMetadados       `json:"metadados"`
	Arquivo   PayloadArquivo         `json:"arquivo"`
	Cabecalho map[string]interface{} `json:"cabecalho"`
	Registros []extract.Barcode      `json:"registros"`
	Resumo    Somatorias             `json:"resumo"`
}

type PayloadMetadados struct {
	Fonte             string         `json:"fonte"`
	Versao            string         `json:"versao"`
	DataProcessamento time.Time      `json:"dataProcessamento"`
	Webhook           PayloadAttempt `json:"webhook"`
}

type PayloadAttempt struct {
	TentativaEnvio int       `json:"tentativaEnvio"`
	Timestamp      time.Time `json:"timestamp"`
}

type PayloadArquivo struct {
	Nome    string `json:"nome"`
	Hash    string `json:"hash"`
	Formato string `json:"formato"`
	Tamanho int    `json:"tamanho"`
}

// SetAttempt implements webhook.Attemptable.
func (p *Payload) SetAttempt(attempt int, at time.Time) {
	p.Metadados.Webhook.TentativaEnvio = attempt
	p.Metadados.Webhook.Timestamp = at
}

var _ webhook.Attemptable = (*Payload)(nil)
