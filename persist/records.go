// Copyright 2024-2025, Felipe Barte de Oliveira
// For license information, see https://github.com/felipebarte/cnab/blob/master/LICENSE

package persist

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"

	"github.com/felipebarte/cnab/cnab240"
	"github.com/felipebarte/cnab/cnab400"
	"github.com/felipebarte/cnab/extract"
)

// OperationMeta describes one ingest for the audit trail.
type OperationMeta struct {
	Type        string
	RequestData json.RawMessage
}

// CreateOperation opens the audit row in status "started". Operation rows
// live outside the file transaction on purpose: a failed ingest still
// marks its operation as errored after the rollback.
func (s *Store) CreateOperation(ctx context.Context, meta OperationMeta) (uuid.UUID, error) {
	id := uuid.New()
	_, err := s.pool.Exec(ctx, `
		INSERT INTO operations (operation_id, type, status, request_data)
		VALUES ($1, $2, 'started', $3)`,
		id, meta.Type, meta.RequestData)
	if err != nil {
		return uuid.Nil, errors.Wrap(err, "creating operation")
	}
	return id, nil
}

func (s *Store) MarkProcessing(ctx context.Context, id uuid.UUID) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE operations SET status = 'processing', updated_at = now()
		WHERE operation_id = $1`, id)
	return errors.Wrap(err, "marking operation processing")
}

func (s *Store) MarkSuccess(ctx context.Context, id uuid.UUID, response json.RawMessage, elapsed time.Duration) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE operations
		SET status = 'success', response_data = $2, processing_time_ms = $3, updated_at = now()
		WHERE operation_id = $1`,
		id, response, elapsed.Milliseconds())
	return errors.Wrap(err, "marking operation success")
}

func (s *Store) MarkError(ctx context.Context, id uuid.UUID, details json.RawMessage, elapsed time.Duration) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE operations
		SET status = 'error', error_details = $2, processing_time_ms = $3, updated_at = now()
		WHERE operation_id = $1`,
		id, details, elapsed.Milliseconds())
	return errors.Wrap(err, "marking operation error")
}

// RecordFileParams carries everything one transactional write needs.
// Exactly one of File240/File400 is set for a parsed file; both nil stores
// the file row alone (undetected format).
type RecordFileParams struct {
	OperationID       uuid.UUID
	FileName          string
	Content           []byte
	FileType          string
	ValidationStatus  string
	ValidationDetails json.RawMessage
	File240           *cnab240.File
	File400           *cnab400.File
	Barcodes          []extract.Barcode
	// ForceReprocess bypasses dedup: an existing file with the same hash
	// is replaced, children included.
	ForceReprocess bool
}

// RecordFileResult reports either the new file id or the winner of the
// dedup race. Duplicate is a value, not an error.
type RecordFileResult struct {
	FileID         int64
	Duplicate      bool
	ExistingFileID int64
	FileHash       string
}

// RecordFile writes the file row, the parsed tree and the barcodes in one
// transaction, in dependency order: file, header, per-batch (batch,
// records), barcodes. Any failure rolls the whole write back.
//
// Two concurrent calls for the same hash cannot both succeed: the unique
// index on file_hash decides the winner and the loser's violation is
// translated into a Duplicate result.
func (s *Store) RecordFile(ctx context.Context, params RecordFileParams) (RecordFileResult, error) {
	hash := Hash(params.Content)
	res := RecordFileResult{FileHash: hash}

	// Cheap short-circuit before opening a transaction. The unique index
	// still backstops the race window.
	if !params.ForceReprocess {
		var existing int64
		err := s.pool.QueryRow(ctx, `SELECT id FROM files WHERE file_hash = $1`, hash).Scan(&existing)
		switch {
		case err == nil:
			res.Duplicate = true
			res.ExistingFileID = existing
			return res, nil
		case errors.Is(err, pgx.ErrNoRows):
			// proceed
		default:
			return res, errors.Wrap(err, "checking for duplicate hash")
		}
	}

	tx, err := s.begin(ctx)
	if err != nil {
		return res, err
	}
	defer tx.Rollback(ctx)

	if params.ForceReprocess {
		if _, err := tx.Exec(ctx, `DELETE FROM files WHERE file_hash = $1`, hash); err != nil {
			return res, errors.Wrap(err, "removing prior file for reprocess")
		}
	}

	err = tx.QueryRow(ctx, `
		INSERT INTO files (operation_id, file_hash, file_name, file_size, file_type,
		                   content_preview, validation_status, validation_details)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id`,
		params.OperationID, hash, params.FileName, len(params.Content), params.FileType,
		Preview(params.Content, s.config.PreviewLines), params.ValidationStatus, params.ValidationDetails,
	).Scan(&res.FileID)
	if err != nil {
		if isUniqueViolation(err) {
			return s.loserResult(ctx, hash)
		}
		return res, errors.Wrap(err, "inserting file row")
	}

	switch {
	case params.File240 != nil:
		if err := s.insertTree240(ctx, tx, res.FileID, params.OperationID, params.File240); err != nil {
			return res, err
		}
	case params.File400 != nil:
		if err := s.insertTree400(ctx, tx, res.FileID, params.OperationID, params.File400); err != nil {
			return res, err
		}
	}

	for i := range params.Barcodes {
		if err := s.insertBarcode(ctx, tx, res.FileID, params.OperationID, &params.Barcodes[i]); err != nil {
			return res, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		if isUniqueViolation(err) {
			return s.loserResult(ctx, hash)
		}
		return res, errors.Wrap(err, "committing file transaction")
	}
	return res, nil
}

// loserResult resolves the winner's file id after losing the dedup race.
func (s *Store) loserResult(ctx context.Context, hash string) (RecordFileResult, error) {
	res := RecordFileResult{Duplicate: true, FileHash: hash}
	err := s.pool.QueryRow(ctx, `SELECT id FROM files WHERE file_hash = $1`, hash).Scan(&res.ExistingFileID)
	if err != nil {
		return res, errors.Wrap(err, "resolving duplicate winner")
	}
	return res, nil
}

func nullDate(t time.Time, ok bool) interface{} {
	if !ok {
		return nil
	}
	return t
}

func (s *Store) insertTree240(ctx context.Context, tx pgx.Tx, fileID int64, opID uuid.UUID, file *cnab240.File) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO cnab240_files (file_id, banco_codigo, banco_nome, empresa_documento,
		                           empresa_nome, data_geracao, hora_geracao, arquivo_sequencia,
		                           versao_layout, total_lotes, total_registros, valor_total)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		fileID, file.Header.BancoCodigo, file.Header.BancoNome, file.Header.EmpresaInscricao,
		file.Header.EmpresaNome, nullDate(file.Header.DataGeracao, file.Header.TemDataGeracao),
		file.Header.HoraGeracao, file.Header.ArquivoSequencia, file.Header.VersaoLayout,
		file.Trailer.TotalLotes, file.Trailer.TotalRegistros, file.Trailer.ValorTotal)
	if err != nil {
		return errors.Wrap(err, "inserting cnab240 file summary")
	}

	for _, batch := range file.Batches {
		var batchID int64
		err := tx.QueryRow(ctx, `
			INSERT INTO cnab240_batches (file_id, lote, tipo_servico, forma_pagamento,
			                             qtd_registros, soma_valores)
			VALUES ($1, $2, $3, $4, $5, $6)
			RETURNING id`,
			fileID, batch.Header.Lote, batch.Header.TipoServico, batch.Header.FormaPagamento,
			batch.Trailer.QuantidadeRegistros, batch.Trailer.SomaValores,
		).Scan(&batchID)
		if err != nil {
			return errors.Wrap(err, "inserting cnab240 batch")
		}

		for _, d := range batch.Details {
			if err := s.insertDetail240(ctx, tx, fileID, batchID, opID, d); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *Store) insertDetail240(ctx context.Context, tx pgx.Tx, fileID, batchID int64, opID uuid.UUID, d cnab240.Detail) error {
	const q = `
		INSERT INTO cnab_records (file_id, batch_id, operation_id, sequencia, tipo, segmento,
		                          nosso_numero, seu_numero, codigo_barras, valor_titulo,
		                          valor_pago, data_vencimento, data_pagamento, favorecido_nome,
		                          pagador_documento, dados_completos)
		VALUES ($1, $2, $3, $4, '3', $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`

	switch seg := d.(type) {
	case *cnab240.SegmentJ:
		_, err := tx.Exec(ctx, q,
			fileID, batchID, opID, seg.Sequence(), "J",
			seg.NossoNumero, seg.SeuNumero, seg.CodigoBarras, seg.ValorTitulo,
			seg.ValorPagamento, nullDate(seg.Vencimento, seg.TemVencimento),
			nullDate(seg.DataPagamento, seg.TemPagamento), seg.Favorecido, nil, seg.RawLine())
		return errors.Wrap(err, "inserting segment J")
	case *cnab240.SegmentO:
		_, err := tx.Exec(ctx, q,
			fileID, batchID, opID, seg.Sequence(), "O",
			seg.NossoNumero, seg.SeuNumero, seg.CodigoBarras, seg.ValorDocumento,
			seg.ValorPagamento, nullDate(seg.Vencimento, seg.TemVencimento),
			nullDate(seg.DataPagamento, seg.TemPagamento), seg.Concessionaria, nil, seg.RawLine())
		return errors.Wrap(err, "inserting segment O")
	case *cnab240.SegmentA:
		_, err := tx.Exec(ctx, q,
			fileID, batchID, opID, seg.Sequence(), "A",
			seg.NossoNumero, seg.SeuNumero, nil, nil,
			seg.ValorPagamento, nil, nullDate(seg.DataPagamento, seg.TemPagamento),
			seg.Favorecido, nil, seg.RawLine())
		return errors.Wrap(err, "inserting segment A")
	case *cnab240.SegmentB:
		_, err := tx.Exec(ctx, q,
			fileID, batchID, opID, seg.Sequence(), "B",
			nil, nil, nil, nil, nil, nil, nil, nil, seg.Documento, seg.RawLine())
		return errors.Wrap(err, "inserting segment B")
	default:
		_, err := tx.Exec(ctx, q,
			fileID, batchID, opID, d.Sequence(), d.SegmentLetter(),
			nil, nil, nil, nil, nil, nil, nil, nil, nil, d.RawLine())
		return errors.Wrap(err, "inserting raw segment")
	}
}

func (s *Store) insertTree400(ctx context.Context, tx pgx.Tx, fileID int64, opID uuid.UUID, file *cnab400.File) error {
	var headerID int64
	err := tx.QueryRow(ctx, `
		INSERT INTO cnab_headers (file_id, banco_codigo, banco_nome, empresa_codigo,
		                          empresa_nome, agencia, conta, arquivo_sequencia,
		                          data_arquivo, versao_layout)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id`,
		fileID, file.Header.BancoCodigo, file.Header.BancoNome, file.Header.EmpresaCodigo,
		file.Header.EmpresaNome, file.Header.Agencia, file.Header.Conta,
		file.Header.ArquivoSequencia, nullDate(file.Header.DataArquivo, file.Header.TemDataArquivo),
		file.Header.VersaoLayout,
	).Scan(&headerID)
	if err != nil {
		return errors.Wrap(err, "inserting cnab400 header")
	}

	for i := range file.Records {
		rec := &file.Records[i]
		_, err := tx.Exec(ctx, `
			INSERT INTO cnab_records (file_id, header_id, operation_id, sequencia, tipo,
			                          nosso_numero, seu_numero, codigo_barras, linha_digitavel,
			                          valor_titulo, valor_pago, data_vencimento, data_pagamento,
			                          pagador_nome, pagador_documento, codigo_ocorrencia,
			                          codigo_banco, agencia, conta, dados_completos)
			VALUES ($1, $2, $3, $4, '1', $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)`,
			fileID, headerID, opID, rec.LineNumber,
			rec.NossoNumero, rec.SeuNumero, rec.CodigoBarras, rec.LinhaDigitavel,
			rec.ValorTitulo, rec.ValorPago,
			nullDate(rec.DataVencimento, rec.TemVencimento),
			nullDate(rec.DataPagamento, rec.TemPagamento),
			rec.PagadorNome, rec.PagadorDocumento, rec.CodigoOcorrencia,
			rec.CodigoBanco, rec.Agencia, rec.Conta, rec.DadosCompletos)
		if err != nil {
			return errors.Wrap(err, "inserting cnab400 record")
		}
	}
	return nil
}

func (s *Store) insertBarcode(ctx context.Context, tx pgx.Tx, fileID int64, opID uuid.UUID, b *extract.Barcode) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO barcodes (file_id, operation_id, codigo_barras, tipo, segmento,
		                      favorecido, pagador, valor, data_vencimento, data_pagamento,
		                      status_pagamento)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		fileID, opID, b.Codigo, string(b.Tipo), b.Segmento,
		b.Favorecido, b.Pagador, b.Valor,
		nullDate(b.Vencimento, b.TemVencimento),
		nullDate(b.Pagamento, b.TemPagamento),
		string(b.Status))
	return errors.Wrap(err, "inserting barcode")
}
