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

// Package filesystem masks PII in local files. CSV, JSON and text formats
// are rewritten through masking/content; unknown extensions are treated as
// text.
package filesystem

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/bharat-parihar/ARC-Hawk/connectors/base"
	"github.com/bharat-parihar/ARC-Hawk/masking"
	"github.com/bharat-parihar/ARC-Hawk/masking/content"
)

const (
	defaultBackupDir = "./backups"
	backupExt        = ".backup"
)

// Adapter implements base.Adapter for files.
type Adapter struct {
	config    *base.AdapterConfig
	backupDir string
	logger    *log.Logger
	now       func() time.Time

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewAdapter creates a filesystem adapter. Connect configures it.
func NewAdapter() *Adapter {
	return &Adapter{
		config:    &base.AdapterConfig{Type: "filesystem", BackupEnabled: true},
		backupDir: defaultBackupDir,
		logger:    log.New(os.Stdout, "[MASK_FILESYSTEM] ", log.LstdFlags),
		now:       time.Now,
		locks:     make(map[string]*sync.Mutex),
	}
}

// Connect reads the backup_dir option and creates the directory when
// backups will be written.
func (a *Adapter) Connect(ctx context.Context, config *base.AdapterConfig) error {
	a.config = config
	a.backupDir = config.OptionString("backup_dir", defaultBackupDir)
	if config.BackupEnabled && !config.DryRun {
		if err := os.MkdirAll(a.backupDir, 0o700); err != nil {
			return base.NewAdapterError(a.Name(), "Connect", "failed to create backup directory", err)
		}
	}
	a.logger.Printf("Configured filesystem adapter: %s (backups=%v, dry_run=%v)", a.Name(), config.BackupEnabled, config.DryRun)
	return nil
}

// Disconnect is a no-op for files.
func (a *Adapter) Disconnect(ctx context.Context) error { return nil }

// Name returns the adapter name
func (a *Adapter) Name() string {
	if a.config == nil || a.config.Name == "" {
		return "filesystem"
	}
	return a.config.Name
}

// Type returns the adapter type
func (a *Adapter) Type() string { return "filesystem" }

// BackupDir returns the directory backups are written to.
func (a *Adapter) BackupDir() string { return a.backupDir }

func (a *Adapter) pathLock(path string) *sync.Mutex {
	key := filepath.Clean(path)
	a.mu.Lock()
	defer a.mu.Unlock()
	l, ok := a.locks[key]
	if !ok {
		l = &sync.Mutex{}
		a.locks[key] = l
	}
	return l
}

// CreateBackup copies location into the backup directory as
// <name>.<timestamp>.backup and returns the copy's path.
func (a *Adapter) CreateBackup(ctx context.Context, location string) (string, error) {
	if !a.config.BackupEnabled {
		a.logger.Printf("Backup disabled, skipping: %s", location)
		return "", nil
	}
	if a.config.DryRun {
		a.logger.Printf("[DRY RUN] Would create backup of %s", location)
		return filepath.Join(a.backupDir, "dry_run_backup"), nil
	}
	if err := ctx.Err(); err != nil {
		return "", base.NewAdapterError(a.Name(), "CreateBackup", "cancelled", err)
	}

	stem := filepath.Join(a.backupDir, filepath.Base(location)+"."+base.BackupSuffix(a.now()))
	backupPath := stem + backupExt
	for i := 1; fileExists(backupPath); i++ {
		backupPath = fmt.Sprintf("%s.%d%s", stem, i, backupExt)
	}

	if err := copyFile(location, backupPath); err != nil {
		return "", base.NewAdapterError(a.Name(), "CreateBackup", "failed to copy file", err)
	}
	// Retention is measured from when the backup was taken.
	created := a.now()
	if err := os.Chtimes(backupPath, created, created); err != nil {
		return "", base.NewAdapterError(a.Name(), "CreateBackup", "failed to stamp backup", err)
	}
	a.logger.Printf("Created backup: %s", backupPath)
	return backupPath, nil
}

// MaskFindings masks findings in the file at location. The file is held
// exclusively for the whole backup, rewrite and write sequence.
func (a *Adapter) MaskFindings(ctx context.Context, findings []base.MaskingFinding, masker masking.Masker, location string) *base.MaskingResult {
	start := time.Now()
	lock := a.pathLock(location)
	lock.Lock()
	defer lock.Unlock()

	if err := ctx.Err(); err != nil {
		return base.FailedResult(len(findings), "", err).Finish(start)
	}

	backup := ""
	if a.config.BackupEnabled {
		var err error
		backup, err = a.CreateBackup(ctx, location)
		if err != nil {
			a.logger.Printf("Backup failed for %s, not masking: %v", location, err)
			return base.FailedResult(len(findings), "", fmt.Errorf("failed to create backup: %w", err)).Finish(start)
		}
	}

	data, err := os.ReadFile(location)
	if err != nil {
		return base.FailedResult(len(findings), backup, fmt.Errorf("failed to read file: %w", err)).Finish(start)
	}

	kind, known := content.KindForPath(location)
	if !known {
		a.logger.Printf("Unknown file type %s, using text-based masking", filepath.Ext(location))
	}

	out, err := content.Apply(kind, data, findings, masker)
	if err != nil {
		a.logger.Printf("Masking failed for %s: %v", location, err)
		return base.FailedResult(len(findings), backup, err).Finish(start)
	}

	if a.config.DryRun {
		a.logger.Printf("[DRY RUN] Would mask %d findings in %s: %s", out.Masked, kind, location)
	} else if err := writeFileAtomic(location, out.Data); err != nil {
		return base.FailedResult(len(findings), backup, fmt.Errorf("failed to write file: %w", err)).Finish(start)
	} else {
		a.logger.Printf("Masked %d/%d findings in %s", out.Masked, len(findings), location)
	}

	result := base.NewResult(base.StatusCompleted, len(findings))
	result.MaskedCount = out.Masked
	result.MarkFailed(out.Unmasked...)
	result.BackupLocation = backup
	result.Details["format"] = string(kind)
	result.Details["dry_run"] = a.config.DryRun
	return result.Finish(start)
}

// Rollback overwrites target with the backup copy.
func (a *Adapter) Rollback(ctx context.Context, backupID, target string) error {
	if a.config.DryRun {
		a.logger.Printf("[DRY RUN] Would rollback from %s to %s", backupID, target)
		return nil
	}
	if backupID == "" {
		return base.NewAdapterError(a.Name(), "Rollback", "no backup to restore", nil)
	}
	lock := a.pathLock(target)
	lock.Lock()
	defer lock.Unlock()

	if err := copyFile(backupID, target); err != nil {
		return base.NewAdapterError(a.Name(), "Rollback", "failed to restore backup", err)
	}
	a.logger.Printf("Rolled back from backup: %s", backupID)
	return nil
}

// VerifyMasking reads location and reports whether every original value is
// gone.
func (a *Adapter) VerifyMasking(ctx context.Context, location string, findings []base.MaskingFinding) (bool, error) {
	data, err := os.ReadFile(location)
	if err != nil {
		return false, base.NewAdapterError(a.Name(), "VerifyMasking", "failed to read file", err)
	}
	if hits := content.Residual(data, findings); len(hits) > 0 {
		a.logger.Printf("Verification failed: %d unmasked values remain in %s", len(hits), location)
		return false, nil
	}
	a.logger.Printf("Verification passed: %s", location)
	return true, nil
}

// PruneBackups deletes backups older than retentionDays and returns how
// many were removed. A retention of zero keeps everything.
func (a *Adapter) PruneBackups(retentionDays int) (int, error) {
	if retentionDays <= 0 {
		return 0, nil
	}
	entries, err := os.ReadDir(a.backupDir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, base.NewAdapterError(a.Name(), "PruneBackups", "failed to list backups", err)
	}

	cutoff := a.now().Add(-time.Duration(retentionDays) * 24 * time.Hour)
	removed := 0
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), backupExt) {
			continue
		}
		info, err := e.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(a.backupDir, e.Name())); err != nil {
			return removed, base.NewAdapterError(a.Name(), "PruneBackups", "failed to remove backup", err)
		}
		removed++
	}
	if removed > 0 {
		a.logger.Printf("Pruned %d backups older than %d days", removed, retentionDays)
	}
	return removed, nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// copyFile copies src to dst keeping the permission bits and the
// modification time.
func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()

	info, err := in.Stat()
	if err != nil {
		return err
	}
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Chtimes(dst, info.ModTime(), info.ModTime())
}

// writeFileAtomic replaces path through a temporary file in the same
// directory, keeping the original permission bits.
func writeFileAtomic(path string, data []byte) error {
	mode := os.FileMode(0o600)
	if info, err := os.Stat(path); err == nil {
		mode = info.Mode().Perm()
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".masking-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, mode); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
