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

package registry

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/bharat-parihar/ARC-Hawk/connectors/base"
)

// ErrLiteralCredential is returned when a configuration with a plaintext
// credential is saved. Only secret references are persisted.
var ErrLiteralCredential = errors.New("credentials must be secret references")

// Storage persists adapter configurations.
type Storage interface {
	SaveAdapter(ctx context.Context, cfg *base.AdapterConfig) error
	GetAdapter(ctx context.Context, name string) (*base.AdapterConfig, error)
	DeleteAdapter(ctx context.Context, name string) error
	ListAdapters(ctx context.Context) ([]string, error)
}

// PostgresStorage stores configurations in the masking_adapters table.
type PostgresStorage struct {
	db     *sql.DB
	logger *log.Logger
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS masking_adapters (
	name VARCHAR(255) PRIMARY KEY,
	type VARCHAR(50) NOT NULL,
	connection_url TEXT NOT NULL DEFAULT '',
	options JSONB NOT NULL DEFAULT '{}'::jsonb,
	credentials JSONB NOT NULL DEFAULT '{}'::jsonb,
	timeout_seconds INTEGER NOT NULL DEFAULT 30,
	backup_enabled BOOLEAN NOT NULL DEFAULT TRUE,
	dry_run BOOLEAN NOT NULL DEFAULT FALSE,
	created_at TIMESTAMP NOT NULL DEFAULT NOW()
)`

// NewPostgresStorage wraps db and creates the table if needed.
func NewPostgresStorage(ctx context.Context, db *sql.DB) (*PostgresStorage, error) {
	s := &PostgresStorage{
		db:     db,
		logger: log.New(os.Stdout, "[MASK_REGISTRY_STORAGE] ", log.LstdFlags),
	}
	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}
	return s, nil
}

// SaveAdapter upserts cfg.
func (s *PostgresStorage) SaveAdapter(ctx context.Context, cfg *base.AdapterConfig) error {
	for k, v := range cfg.Credentials {
		if !IsSecretRef(v) {
			return fmt.Errorf("%w: %s", ErrLiteralCredential, k)
		}
	}
	optionsJSON, err := json.Marshal(nonNilOptions(cfg.Options))
	if err != nil {
		return fmt.Errorf("failed to marshal options: %w", err)
	}
	credentials := cfg.Credentials
	if credentials == nil {
		credentials = map[string]string{}
	}
	credentialsJSON, err := json.Marshal(credentials)
	if err != nil {
		return fmt.Errorf("failed to marshal credentials: %w", err)
	}
	timeout := int(cfg.Timeout / time.Second)
	if timeout <= 0 {
		timeout = int(base.DefaultTimeout / time.Second)
	}

	query := `
		INSERT INTO masking_adapters (name, type, connection_url, options, credentials, timeout_seconds, backup_enabled, dry_run)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (name) DO UPDATE SET
			type = EXCLUDED.type,
			connection_url = EXCLUDED.connection_url,
			options = EXCLUDED.options,
			credentials = EXCLUDED.credentials,
			timeout_seconds = EXCLUDED.timeout_seconds,
			backup_enabled = EXCLUDED.backup_enabled,
			dry_run = EXCLUDED.dry_run`
	if _, err := s.db.ExecContext(ctx, query,
		cfg.Name, cfg.Type, cfg.ConnectionURL, optionsJSON, credentialsJSON,
		timeout, cfg.BackupEnabled, cfg.DryRun,
	); err != nil {
		return fmt.Errorf("failed to save adapter: %w", err)
	}
	s.logger.Printf("Saved adapter: %s", cfg.Name)
	return nil
}

// GetAdapter loads one configuration.
func (s *PostgresStorage) GetAdapter(ctx context.Context, name string) (*base.AdapterConfig, error) {
	query := `
		SELECT type, connection_url, options, credentials, timeout_seconds, backup_enabled, dry_run
		FROM masking_adapters
		WHERE name = $1`

	cfg := &base.AdapterConfig{Name: name}
	var optionsJSON, credentialsJSON []byte
	var timeout int
	err := s.db.QueryRowContext(ctx, query, name).Scan(
		&cfg.Type, &cfg.ConnectionURL, &optionsJSON, &credentialsJSON,
		&timeout, &cfg.BackupEnabled, &cfg.DryRun,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("adapter not found: %s", name)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get adapter: %w", err)
	}
	if err := json.Unmarshal(optionsJSON, &cfg.Options); err != nil {
		return nil, fmt.Errorf("failed to unmarshal options: %w", err)
	}
	if err := json.Unmarshal(credentialsJSON, &cfg.Credentials); err != nil {
		return nil, fmt.Errorf("failed to unmarshal credentials: %w", err)
	}
	cfg.Timeout = time.Duration(timeout) * time.Second
	return cfg, nil
}

// DeleteAdapter removes a configuration.
func (s *PostgresStorage) DeleteAdapter(ctx context.Context, name string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM masking_adapters WHERE name = $1`, name)
	if err != nil {
		return fmt.Errorf("failed to delete adapter: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("adapter not found: %s", name)
	}
	s.logger.Printf("Deleted adapter: %s", name)
	return nil
}

// ListAdapters returns all stored adapter names, oldest first.
func (s *PostgresStorage) ListAdapters(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name FROM masking_adapters ORDER BY created_at, name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list adapters: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return names, nil
}

func nonNilOptions(opts map[string]interface{}) map[string]interface{} {
	if opts == nil {
		return map[string]interface{}{}
	}
	return opts
}
