// Copyright 2024-2025, Felipe Barte de Oliveira
// For license information, see https://github.com/felipebarte/cnab/blob/master/LICENSE

package persist

// Monetary columns are exact NUMERIC(15,2); timestamps are UTC. files is
// the dedup anchor: file_hash carries the unique index concurrent ingests
// race on.
const schema = `
CREATE TABLE IF NOT EXISTS operations (
    operation_id        UUID PRIMARY KEY,
    type                TEXT NOT NULL,
    status              TEXT NOT NULL,
    request_data        JSONB,
    response_data       JSONB,
    error_details       JSONB,
    processing_time_ms  BIGINT,
    created_at          TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at          TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS files (
    id                 BIGSERIAL PRIMARY KEY,
    operation_id       UUID NOT NULL REFERENCES operations(operation_id),
    file_hash          TEXT NOT NULL,
    file_name          TEXT NOT NULL,
    file_size          BIGINT NOT NULL,
    file_type          TEXT NOT NULL,
    content_preview    TEXT,
    validation_status  TEXT NOT NULL DEFAULT 'pending',
    validation_details JSONB,
    created_at         TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE UNIQUE INDEX IF NOT EXISTS files_file_hash_key ON files (file_hash);

CREATE TABLE IF NOT EXISTS cnab_headers (
    id                 BIGSERIAL PRIMARY KEY,
    file_id            BIGINT NOT NULL REFERENCES files(id) ON DELETE CASCADE,
    banco_codigo       TEXT,
    banco_nome         TEXT,
    empresa_codigo     TEXT,
    empresa_nome       TEXT,
    agencia            TEXT,
    conta              TEXT,
    arquivo_sequencia  BIGINT,
    data_arquivo       DATE,
    versao_layout      TEXT
);

CREATE TABLE IF NOT EXISTS cnab240_files (
    id                 BIGSERIAL PRIMARY KEY,
    file_id            BIGINT NOT NULL REFERENCES files(id) ON DELETE CASCADE,
    banco_codigo       TEXT,
    banco_nome         TEXT,
    empresa_documento  TEXT,
    empresa_nome       TEXT,
    data_geracao       DATE,
    hora_geracao       TEXT,
    arquivo_sequencia  BIGINT,
    versao_layout      TEXT,
    total_lotes        BIGINT,
    total_registros    BIGINT,
    valor_total        NUMERIC(15,2)
);

CREATE TABLE IF NOT EXISTS cnab240_batches (
    id              BIGSERIAL PRIMARY KEY,
    file_id         BIGINT NOT NULL REFERENCES files(id) ON DELETE CASCADE,
    lote            BIGINT NOT NULL,
    tipo_servico    TEXT,
    forma_pagamento TEXT,
    qtd_registros   BIGINT,
    soma_valores    NUMERIC(15,2)
);

CREATE TABLE IF NOT EXISTS cnab_records (
    id                BIGSERIAL PRIMARY KEY,
    file_id           BIGINT NOT NULL REFERENCES files(id) ON DELETE CASCADE,
    operation_id      UUID NOT NULL,
    header_id         BIGINT REFERENCES cnab_headers(id) ON DELETE CASCADE,
    batch_id          BIGINT REFERENCES cnab240_batches(id) ON DELETE CASCADE,
    sequencia         BIGINT,
    tipo              TEXT NOT NULL,
    segmento          TEXT,
    nosso_numero      TEXT,
    seu_numero        TEXT,
    codigo_barras     TEXT,
    linha_digitavel   TEXT,
    valor_titulo      NUMERIC(15,2),
    valor_pago        NUMERIC(15,2),
    data_vencimento   DATE,
    data_pagamento    DATE,
    pagador_nome      TEXT,
    pagador_documento TEXT,
    favorecido_nome   TEXT,
    codigo_ocorrencia TEXT,
    codigo_banco      TEXT,
    agencia           TEXT,
    conta             TEXT,
    dados_completos   TEXT
);
CREATE INDEX IF NOT EXISTS cnab_records_file_id_idx ON cnab_records (file_id);

CREATE TABLE IF NOT EXISTS barcodes (
    id               BIGSERIAL PRIMARY KEY,
    file_id          BIGINT NOT NULL REFERENCES files(id) ON DELETE CASCADE,
    operation_id     UUID NOT NULL,
    codigo_barras    TEXT NOT NULL,
    tipo             TEXT NOT NULL,
    segmento         TEXT,
    favorecido       TEXT,
    pagador          TEXT,
    valor            NUMERIC(15,2),
    data_vencimento  DATE,
    data_pagamento   DATE,
    status_pagamento TEXT NOT NULL DEFAULT 'extracted'
);
CREATE INDEX IF NOT EXISTS barcodes_file_id_idx ON barcodes (file_id);
`
