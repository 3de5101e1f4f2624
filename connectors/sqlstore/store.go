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

// Package sqlstore is the masking core shared by the relational adapters.
// Findings are grouped into distinct (table, column, value) keys and every
// key becomes one parameterised UPDATE inside a single transaction, so a
// location is either fully rewritten or untouched.
package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/bharat-parihar/ARC-Hawk/connectors/base"
	"github.com/bharat-parihar/ARC-Hawk/masking"
)

// Store runs backup, mask, verify and restore statements for one database.
type Store struct {
	dialect Dialect
	db      *sql.DB
	config  *base.AdapterConfig
	logger  *log.Logger
	now     func() time.Time
}

// NewStore creates a store that is not attached to a database yet.
func NewStore(d Dialect, logger *log.Logger) *Store {
	return &Store{
		dialect: d,
		config:  &base.AdapterConfig{Type: d.Name},
		logger:  logger,
		now:     time.Now,
	}
}

// Attach binds an open pool and the adapter configuration.
func (s *Store) Attach(db *sql.DB, config *base.AdapterConfig) {
	s.db = db
	s.config = config
}

// DB returns the attached pool, or nil.
func (s *Store) DB() *sql.DB { return s.db }

// Close closes the attached pool.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// Dialect returns the SQL dialect of the store.
func (s *Store) Dialect() Dialect { return s.dialect }

// Name returns the adapter name
func (s *Store) Name() string {
	if s.config == nil || s.config.Name == "" {
		return s.dialect.Name
	}
	return s.config.Name
}

// Type returns the adapter type
func (s *Store) Type() string { return s.dialect.Name }

type columnKey struct {
	table  string
	column string
	value  string
}

// group collapses findings into distinct keys in first-seen order. idx maps
// every key to the findings it covers.
func group(findings []base.MaskingFinding, defaultTable string) ([]columnKey, map[columnKey][]int) {
	var keys []columnKey
	idx := make(map[columnKey][]int)
	for i, f := range findings {
		table, column := base.SplitColumn(f.Location, defaultTable)
		k := columnKey{table: table, column: column, value: f.Value}
		if _, seen := idx[k]; !seen {
			keys = append(keys, k)
		}
		idx[k] = append(idx[k], i)
	}
	return keys, idx
}

func pick(findings []base.MaskingFinding, idx []int) []base.MaskingFinding {
	out := make([]base.MaskingFinding, len(idx))
	for i, j := range idx {
		out[i] = findings[j]
	}
	return out
}

func tablesOf(keys []columnKey) []string {
	set := make(map[string]struct{})
	for _, k := range keys {
		if k.table != "" {
			set[k.table] = struct{}{}
		}
	}
	tables := make([]string, 0, len(set))
	for t := range set {
		tables = append(tables, t)
	}
	sort.Strings(tables)
	return tables
}

// BackupName returns the backup table name for table at t. The name carries
// microseconds so two backups of one table in the same second do not collide.
func BackupName(table string, t time.Time) string {
	return fmt.Sprintf("%s_backup_%s_%06d", table, base.BackupSuffix(t), t.Nanosecond()/int(time.Microsecond))
}

// CreateBackup snapshots the table named by location.
func (s *Store) CreateBackup(ctx context.Context, location string) (string, error) {
	if !s.config.BackupEnabled {
		s.logger.Printf("Backup disabled, skipping: %s", location)
		return "", nil
	}
	if s.config.DryRun {
		s.logger.Printf("[DRY RUN] Would create backup of table %s", location)
		return "dry_run_backup", nil
	}
	if s.db == nil {
		return "", base.NewAdapterError(s.Name(), "CreateBackup", "database not connected", nil)
	}

	table, err := s.dialect.QuoteIdent(location)
	if err != nil {
		return "", base.NewAdapterError(s.Name(), "CreateBackup", "invalid table name", err)
	}
	name := BackupName(location, s.now())
	backup, err := s.dialect.QuoteIdent(name)
	if err != nil {
		return "", base.NewAdapterError(s.Name(), "CreateBackup", "invalid backup name", err)
	}

	opCtx, cancel := s.config.WithTimeout(ctx)
	defer cancel()
	if _, err := s.db.ExecContext(opCtx, s.dialect.BackupSQL(backup, table)); err != nil {
		return "", base.NewAdapterError(s.Name(), "CreateBackup", "failed to create backup table", err)
	}
	s.logger.Printf("Created backup table: %s", name)
	return name, nil
}

// MaskFindings masks findings whose Location is "column", "table.column" or
// "schema.table.column". A bare column belongs to the table named by
// location.
func (s *Store) MaskFindings(ctx context.Context, findings []base.MaskingFinding, masker masking.Masker, location string) *base.MaskingResult {
	start := time.Now()
	if s.db == nil {
		return base.FailedResult(len(findings), "", base.NewAdapterError(s.Name(), "MaskFindings", "database not connected", nil)).Finish(start)
	}

	keys, idx := group(findings, location)
	tables := tablesOf(keys)

	var backups []string
	if s.config.BackupEnabled {
		for _, t := range tables {
			b, err := s.CreateBackup(ctx, t)
			if err != nil {
				s.logger.Printf("Backup failed for %s, not masking: %v", t, err)
				return base.FailedResult(len(findings), strings.Join(backups, ","), fmt.Errorf("failed to create backup: %w", err)).Finish(start)
			}
			backups = append(backups, b)
		}
	}
	backup := strings.Join(backups, ",")

	result := base.NewResult(base.StatusCompleted, len(findings))
	result.BackupLocation = backup
	result.Details["tables"] = tables
	result.Details["dry_run"] = s.config.DryRun

	opCtx, cancel := s.config.WithTimeout(ctx)
	defer cancel()

	if s.config.DryRun {
		for _, k := range keys {
			if count, err := s.remaining(opCtx, k); err != nil || count == 0 {
				result.MarkFailed(pick(findings, idx[k])...)
			} else {
				result.MaskedCount += len(idx[k])
			}
		}
		s.logger.Printf("[DRY RUN] Would mask %d/%d findings in %s", result.MaskedCount, len(findings), location)
		return result.Finish(start)
	}

	tx, err := s.db.BeginTx(opCtx, nil)
	if err != nil {
		return base.FailedResult(len(findings), backup, fmt.Errorf("failed to begin transaction: %w", err)).Finish(start)
	}

	masked := 0
	var unmasked []base.MaskingFinding
	for _, k := range keys {
		n := len(idx[k])
		table, errT := s.dialect.QuoteIdent(k.table)
		column, errC := s.dialect.QuoteIdent(k.column)
		if k.table == "" || errT != nil || errC != nil || k.value == "" {
			unmasked = append(unmasked, pick(findings, idx[k])...)
			continue
		}

		replacement := masker.Mask(k.value, findings[idx[k][0]].PIIType)
		res, err := tx.ExecContext(opCtx, s.dialect.UpdateSQL(table, column), replacement, k.value)
		if err != nil {
			_ = tx.Rollback()
			s.logger.Printf("Masking failed on %s.%s, transaction rolled back: %v", k.table, k.column, err)
			return base.FailedResult(len(findings), backup, fmt.Errorf("update %s.%s: %w", k.table, k.column, err)).Finish(start)
		}
		rows, err := res.RowsAffected()
		if err != nil || rows == 0 {
			unmasked = append(unmasked, pick(findings, idx[k])...)
			continue
		}
		masked += n
	}

	if err := tx.Commit(); err != nil {
		return base.FailedResult(len(findings), backup, fmt.Errorf("failed to commit: %w", err)).Finish(start)
	}

	result.MaskedCount = masked
	result.MarkFailed(unmasked...)
	s.logger.Printf("Masked %d/%d findings in %s", masked, len(findings), location)
	return result.Finish(start)
}

// Rollback replaces the contents of target with the backup table inside one
// transaction.
func (s *Store) Rollback(ctx context.Context, backupID, target string) error {
	if s.config.DryRun {
		s.logger.Printf("[DRY RUN] Would rollback %s from %s", target, backupID)
		return nil
	}
	if s.db == nil {
		return base.NewAdapterError(s.Name(), "Rollback", "database not connected", nil)
	}
	backup, err := s.dialect.QuoteIdent(backupID)
	if err != nil {
		return base.NewAdapterError(s.Name(), "Rollback", "invalid backup name", err)
	}
	table, err := s.dialect.QuoteIdent(target)
	if err != nil {
		return base.NewAdapterError(s.Name(), "Rollback", "invalid table name", err)
	}

	opCtx, cancel := s.config.WithTimeout(ctx)
	defer cancel()

	tx, err := s.db.BeginTx(opCtx, nil)
	if err != nil {
		return base.NewAdapterError(s.Name(), "Rollback", "failed to begin transaction", err)
	}
	if _, err := tx.ExecContext(opCtx, "DELETE FROM "+table); err != nil {
		_ = tx.Rollback()
		return base.NewAdapterError(s.Name(), "Rollback", "failed to clear table", err)
	}
	if _, err := tx.ExecContext(opCtx, fmt.Sprintf("INSERT INTO %s SELECT * FROM %s", table, backup)); err != nil {
		_ = tx.Rollback()
		return base.NewAdapterError(s.Name(), "Rollback", "failed to restore rows", err)
	}
	if err := tx.Commit(); err != nil {
		return base.NewAdapterError(s.Name(), "Rollback", "failed to commit", err)
	}
	s.logger.Printf("Rolled back %s from backup %s", target, backupID)
	return nil
}

// VerifyMasking counts rows that still hold an original value.
func (s *Store) VerifyMasking(ctx context.Context, location string, findings []base.MaskingFinding) (bool, error) {
	if s.db == nil {
		return false, base.NewAdapterError(s.Name(), "VerifyMasking", "database not connected", nil)
	}
	opCtx, cancel := s.config.WithTimeout(ctx)
	defer cancel()

	keys, _ := group(findings, location)
	for _, k := range keys {
		if k.value == "" {
			continue
		}
		count, err := s.remaining(opCtx, k)
		if err != nil {
			return false, base.NewAdapterError(s.Name(), "VerifyMasking", "count query failed", err)
		}
		if count > 0 {
			s.logger.Printf("Verification failed: %d rows in %s.%s still hold an original value", count, k.table, k.column)
			return false, nil
		}
	}
	s.logger.Printf("Verification passed: %s", location)
	return true, nil
}

// remaining counts rows in k.table whose k.column equals k.value.
func (s *Store) remaining(ctx context.Context, k columnKey) (int, error) {
	table, err := s.dialect.QuoteIdent(k.table)
	if err != nil {
		return 0, err
	}
	column, err := s.dialect.QuoteIdent(k.column)
	if err != nil {
		return 0, err
	}
	var count int
	err = s.db.QueryRowContext(ctx, s.dialect.CountSQL(table, column), k.value).Scan(&count)
	return count, err
}
