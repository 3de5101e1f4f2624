// Copyright 2025 AxonFlow
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/bharat-parihar/ARC-Hawk/shared/logger"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS masking_audit_log (
	id UUID PRIMARY KEY,
	run_id UUID NOT NULL,
	asset_id TEXT NOT NULL,
	adapter VARCHAR(255) NOT NULL,
	location TEXT NOT NULL,
	masked_by VARCHAR(255) NOT NULL DEFAULT '',
	masking_strategy VARCHAR(50) NOT NULL,
	pii_types TEXT[] NOT NULL DEFAULT '{}',
	findings_count INTEGER NOT NULL,
	masked_count INTEGER NOT NULL,
	failed_count INTEGER NOT NULL,
	status VARCHAR(20) NOT NULL,
	verified BOOLEAN NOT NULL DEFAULT FALSE,
	backup_location TEXT NOT NULL DEFAULT '',
	error_message TEXT NOT NULL DEFAULT '',
	masked_at TIMESTAMPTZ NOT NULL,
	metadata JSONB NOT NULL DEFAULT '{}'::jsonb,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_masking_audit_asset ON masking_audit_log(asset_id, masked_at DESC);
CREATE INDEX IF NOT EXISTS idx_masking_audit_run ON masking_audit_log(run_id)`

const selectColumns = `
	SELECT id, run_id, asset_id, adapter, location, masked_by, masking_strategy, pii_types,
		findings_count, masked_count, failed_count, status, verified, backup_location,
		error_message, masked_at, metadata, created_at
	FROM masking_audit_log`

// PostgresRepository stores entries in masking_audit_log.
type PostgresRepository struct {
	db     *sql.DB
	logger *log.Logger
}

// NewPostgresRepository wraps db and creates the table if needed.
func NewPostgresRepository(ctx context.Context, db *sql.DB) (*PostgresRepository, error) {
	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		return nil, fmt.Errorf("failed to create audit tables: %w", err)
	}
	return &PostgresRepository{
		db:     db,
		logger: log.New(os.Stdout, "[MASK_AUDIT] ", log.LstdFlags),
	}, nil
}

// Create inserts entry. Error messages are scrubbed of PII-shaped text
// before they are written.
func (r *PostgresRepository) Create(ctx context.Context, entry *MaskingAudit) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	metadata := entry.Metadata
	if metadata == nil {
		metadata = map[string]interface{}{}
	}
	metadataJSON, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}
	types := entry.PIITypes
	if types == nil {
		types = []string{}
	}

	query := `
		INSERT INTO masking_audit_log (
			id, run_id, asset_id, adapter, location, masked_by, masking_strategy, pii_types,
			findings_count, masked_count, failed_count, status, verified, backup_location,
			error_message, masked_at, metadata
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`
	_, err = r.db.ExecContext(ctx, query,
		entry.ID, entry.RunID, entry.AssetID, entry.Adapter, entry.Location, entry.MaskedBy,
		entry.MaskingStrategy, pq.Array(types),
		entry.FindingsCount, entry.MaskedCount, entry.FailedCount, entry.Status, entry.Verified,
		entry.BackupLocation, logger.Scrub(entry.ErrorMessage), entry.MaskedAt.UTC(), metadataJSON,
	)
	if err != nil {
		return fmt.Errorf("failed to insert audit entry: %w", err)
	}
	return nil
}

// ListByAsset returns the entries for assetID, newest first.
func (r *PostgresRepository) ListByAsset(ctx context.Context, assetID string) ([]MaskingAudit, error) {
	return r.list(ctx, selectColumns+` WHERE asset_id = $1 ORDER BY masked_at DESC`, assetID)
}

// ListByRun returns the entries written by one run.
func (r *PostgresRepository) ListByRun(ctx context.Context, runID uuid.UUID) ([]MaskingAudit, error) {
	return r.list(ctx, selectColumns+` WHERE run_id = $1 ORDER BY masked_at DESC`, runID)
}

// Latest returns the newest entry for assetID or ErrNotFound.
func (r *PostgresRepository) Latest(ctx context.Context, assetID string) (*MaskingAudit, error) {
	row := r.db.QueryRowContext(ctx, selectColumns+` WHERE asset_id = $1 ORDER BY masked_at DESC LIMIT 1`, assetID)
	entry, err := scanEntry(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest audit entry: %w", err)
	}
	return entry, nil
}

func (r *PostgresRepository) list(ctx context.Context, query string, arg interface{}) ([]MaskingAudit, error) {
	rows, err := r.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit log: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var entries []MaskingAudit
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			r.logger.Printf("Error scanning audit entry: %v", err)
			continue
		}
		entries = append(entries, *entry)
	}
	return entries, rows.Err()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanEntry(s scanner) (*MaskingAudit, error) {
	var e MaskingAudit
	var metadataJSON []byte
	err := s.Scan(
		&e.ID, &e.RunID, &e.AssetID, &e.Adapter, &e.Location, &e.MaskedBy, &e.MaskingStrategy,
		pq.Array(&e.PIITypes), &e.FindingsCount, &e.MaskedCount, &e.FailedCount, &e.Status,
		&e.Verified, &e.BackupLocation, &e.ErrorMessage, &e.MaskedAt, &metadataJSON, &e.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(metadataJSON) > 0 {
		if err := json.Unmarshal(metadataJSON, &e.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
	}
	e.MaskedAt = e.MaskedAt.In(time.UTC)
	return &e, nil
}
