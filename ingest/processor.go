// Copyright 2024-2025, Felipe Barte de Oliveira
// For license information, see https://github.com/felipebarte/cnab/blob/master/LICENSE

package ingest

import (
	"context"
	"encoding/json"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/felipebarte/cnab/cnab"
	"github.com/felipebarte/cnab/cnab240"
	"github.com/felipebarte/cnab/cnab400"
	"github.com/felipebarte/cnab/detect"
	"github.com/felipebarte/cnab/extract"
	"github.com/felipebarte/cnab/persist"
	"github.com/felipebarte/cnab/validate"
	"github.com/felipebarte/cnab/webhook"
)

// Storage is the slice of the persistence layer the processor drives.
// *persist.Store satisfies it; tests substitute an in-memory fake.
type Storage interface {
	CreateOperation(ctx context.Context, meta persist.OperationMeta) (uuid.UUID, error)
	MarkProcessing(ctx context.Context, id uuid.UUID) error
	MarkSuccess(ctx context.Context, id uuid.UUID, response json.RawMessage, elapsed time.Duration) error
	MarkError(ctx context.Context, id uuid.UUID, details json.RawMessage, elapsed time.Duration) error
	RecordFile(ctx context.Context, params persist.RecordFileParams) (persist.RecordFileResult, error)
}

// Dispatcher is the outbound webhook surface.
type Dispatcher interface {
	Send(ctx context.Context, payload interface{}, url, operationID string) webhook.Delivery
}

// Processor runs one ingest end to end. Collaborators are handed in by the
// process entry point; the processor holds no global state.
type Processor struct {
	config     Config
	storage    Storage
	dispatcher Dispatcher
	cache      *verifyCache
}

// NewProcessor wires the collaborators. checker may be nil when barcode
// verification is disabled.
func NewProcessor(config Config, storage Storage, dispatcher Dispatcher, checker BoletoChecker) (*Processor, error) {
	if config.Deadline <= 0 {
		config.Deadline = DefaultConfig.Deadline
	}
	p := &Processor{
		config:     config,
		storage:    storage,
		dispatcher: dispatcher,
	}
	if config.VerifyBarcodes && checker != nil {
		size := config.CacheSize
		if size <= 0 {
			size = DefaultConfig.CacheSize
		}
		ttl := config.CacheTTL
		if ttl <= 0 {
			ttl = DefaultConfig.CacheTTL
		}
		cache, err := newVerifyCache(size, ttl, checker)
		if err != nil {
			return nil, errors.Wrap(err, "building verification cache")
		}
		p.cache = cache
	}
	return p, nil
}

// Process ingests one file. Parse and validation issues do not fail the
// ingest; persistence failures do, after marking the operation. Webhook
// delivery happens after the data is durable and never affects the
// outcome.
func (p *Processor) Process(ctx context.Context, content []byte, opts Options) (*Result, error) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, p.config.Deadline)
	defer cancel()

	requestData, _ := json.Marshal(map[string]interface{}{
		"fileName":       opts.FileName,
		"fileSize":       len(content),
		"forceReprocess": opts.ForceReprocess,
	})
	opID, err := p.storage.CreateOperation(ctx, persist.OperationMeta{
		Type:        operationType(opts),
		RequestData: requestData,
	})
	if err != nil {
		return nil, errors.Wrap(err, "creating operation")
	}
	res := &Result{OperationID: opID}

	if err := p.storage.MarkProcessing(ctx, opID); err != nil {
		return nil, p.fail(ctx, opID, start, err)
	}

	// Format resolution: explicit dialect or detector.
	dialect := opts.Format
	if !opts.SkipDetection {
		detected, err := detect.Detect(content)
		if err != nil {
			return nil, p.fail(ctx, opID, start, err)
		}
		res.Confianca = detected.Confidence
		if detected.LowConfidence() {
			log.Warn("low-confidence format detection", "operation", opID,
				"format", detected.Format, "confidence", detected.Confidence)
		}
		dialect = detected.Format
	}
	if dialect == cnab.DialectUnknown {
		return nil, p.fail(ctx, opID, start, errors.New("FORMATO_NAO_DETECTADO: no dialect given and detection disabled"))
	}
	res.FormatoDetectado = dialect.String()

	// Parse and validate. Diagnostics ride along; they never abort.
	var (
		file240 *cnab240.File
		file400 *cnab400.File
		report  *validate.Report
	)
	switch dialect {
	case cnab.Dialect240:
		file240, _ = cnab240.Parse(content)
		report = validate.Validate240(file240)
	case cnab.Dialect400:
		file400, _ = cnab400.Parse(content, cnab400.Options{})
		report = validate.Validate400(file400)
	}

	var barcodes []extract.Barcode
	if file240 != nil {
		barcodes = extract.FromCNAB240(file240)
	} else if file400 != nil {
		barcodes = extract.FromCNAB400(file400)
	}
	p.verifyBarcodes(ctx, barcodes)

	validationStatus := "valid"
	switch {
	case !report.Valid:
		validationStatus = "invalid"
	case len(report.Warnings) > 0 || anyInvalid(barcodes):
		validationStatus = "warning"
	}
	validationDetails, _ := json.Marshal(report)

	record, err := p.storage.RecordFile(ctx, persist.RecordFileParams{
		OperationID:       opID,
		FileName:          opts.FileName,
		Content:           content,
		FileType:          fileType(dialect),
		ValidationStatus:  validationStatus,
		ValidationDetails: validationDetails,
		File240:           file240,
		File400:           file400,
		Barcodes:          barcodes,
		ForceReprocess:    opts.ForceReprocess,
	})
	if err != nil {
		return nil, p.fail(ctx, opID, start, err)
	}
	res.FileHash = record.FileHash

	if record.Duplicate {
		res.Duplicado = true
		res.ArquivoID = record.ExistingFileID
		response, _ := json.Marshal(map[string]interface{}{
			"duplicado": true,
			"arquivoId": record.ExistingFileID,
		})
		if err := p.storage.MarkSuccess(ctx, opID, response, time.Since(start)); err != nil {
			return nil, p.fail(ctx, opID, start, err)
		}
		res.Sucesso = true
		res.ProcessingTime = time.Since(start)
		log.Info("duplicate ingest short-circuited", "operation", opID, "file", record.ExistingFileID)
		return res, nil
	}
	res.ArquivoID = record.FileID

	if !opts.SkipValidation {
		res.Validacao = report
	}
	res.Somatorias = summarize(report, barcodes)
	res.CodigosBarras = CodigosBarras{Total: len(barcodes), Itens: barcodes}

	response, _ := json.Marshal(map[string]interface{}{
		"arquivoId":      record.FileID,
		"formato":        res.FormatoDetectado,
		"totalRegistros": res.Somatorias.TotalRegistros,
		"valorTotal":     res.Somatorias.ValorTotal,
		"codigosBarras":  len(barcodes),
	})
	if err := p.storage.MarkSuccess(ctx, opID, response, time.Since(start)); err != nil {
		return nil, p.fail(ctx, opID, start, err)
	}
	res.Sucesso = true
	res.ProcessingTime = time.Since(start)

	// Outside the persisted state: webhook failures only log and report.
	if p.dispatcher != nil {
		payload := p.buildPayload(opts, res, len(content), file240, file400, barcodes)
		delivery := p.dispatcher.Send(ctx, payload, opts.WebhookURL, opID.String())
		res.Webhook = &delivery
	}

	log.Info("ingest complete", "operation", opID, "file", res.ArquivoID,
		"format", res.FormatoDetectado, "records", res.Somatorias.TotalRegistros,
		"barcodes", len(barcodes), "elapsed", res.ProcessingTime)
	return res, nil
}

// fail marks the operation as errored and passes the original cause up.
func (p *Processor) fail(ctx context.Context, opID uuid.UUID, start time.Time, cause error) error {
	code := "ERRO_PROCESSAMENTO"
	if errors.Is(cause, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		code = "TIMEOUT"
	}
	details, _ := json.Marshal(map[string]string{
		"codigo":   code,
		"mensagem": cause.Error(),
	})
	// Marking runs on a fresh context: the ingest deadline may be the
	// reason we are here.
	markCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := p.storage.MarkError(markCtx, opID, details, time.Since(start)); err != nil {
		log.Error("failed to mark operation error", "operation", opID, "err", err)
	}
	log.Error("ingest failed", "operation", opID, "code", code, "err", cause)
	return errors.Wrap(cause, code)
}

func (p *Processor) verifyBarcodes(ctx context.Context, barcodes []extract.Barcode) {
	if p.cache == nil {
		return
	}
	for i := range barcodes {
		b := &barcodes[i]
		if !b.Valido {
			continue
		}
		code := b.Codigo
		if len(code) == 44 && b.Tipo == extract.TipoTitulo {
			if ld, err := extract.BarcodeToDigitable(code); err == nil {
				code = ld
			}
		}
		if _, err := p.cache.Check(ctx, code); err != nil {
			log.Warn("barcode verification failed", "barcode", code, "err", err)
			continue
		}
		b.Status = extract.StatusValidated
	}
}

func summarize(report *validate.Report, barcodes []extract.Barcode) Somatorias {
	s := Somatorias{
		TotalRegistros:       report.Statistics.TotalRegistros,
		ValorTotal:           report.Statistics.ValorTotal,
		TotalComCodigoBarras: len(barcodes),
	}
	for i := range barcodes {
		if barcodes[i].TemPagamento {
			s.TotalPagos++
		} else {
			s.TotalPendentes++
		}
	}
	return s
}

func anyInvalid(barcodes []extract.Barcode) bool {
	for i := range barcodes {
		if !barcodes[i].Valido {
			return true
		}
	}
	return false
}

func (p *Processor) buildPayload(opts Options, res *Result, size int, file240 *cnab240.File, file400 *cnab400.File, barcodes []extract.Barcode) *Payload {
	cabecalho := map[string]interface{}{}
	switch {
	case file240 != nil:
		cabecalho["bancoCodigo"] = file240.Header.BancoCodigo
		cabecalho["bancoNome"] = file240.Header.BancoNome
		cabecalho["empresaNome"] = file240.Header.EmpresaNome
		cabecalho["arquivoSequencia"] = file240.Header.ArquivoSequencia
	case file400 != nil:
		cabecalho["bancoCodigo"] = file400.Header.BancoCodigo
		cabecalho["bancoNome"] = file400.Header.BancoNome
		cabecalho["empresaNome"] = file400.Header.EmpresaNome
		cabecalho["arquivoSequencia"] = file400.Header.ArquivoSequencia
	}
	return &Payload{
		Metadados: PayloadMetadados{
			Fonte:             "cnab-ingest",
			Versao:            "1.0",
			DataProcessamento: time.Now().UTC(),
		},
		Arquivo: PayloadArquivo{
			Nome:    opts.FileName,
			Hash:    res.FileHash,
			Formato: res.FormatoDetectado,
			Tamanho: size,
		},
		Cabecalho: cabecalho,
		Registros: barcodes,
		Resumo:    res.Somatorias,
	}
}

func operationType(opts Options) string {
	if opts.SkipDetection {
		switch opts.Format {
		case cnab.Dialect240:
			return "cnab240"
		case cnab.Dialect400:
			return "cnab400"
		}
	}
	return "auto"
}

func fileType(d cnab.Dialect) string {
	switch d {
	case cnab.Dialect240:
		return "cnab240"
	case cnab.Dialect400:
		return "cnab400"
	default:
		return "unknown"
	}
}
