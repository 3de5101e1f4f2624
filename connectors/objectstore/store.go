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

// Package objectstore is the masking core shared by the blob storage
// adapters. An object is downloaded whole, rewritten by masking/content
// according to its extension and uploaded again; backups are server-side
// copies under a backup prefix in the same bucket.
package objectstore

import (
	"context"
	"errors"
	"fmt"
	"log"
	"path"
	"sync"
	"time"

	"github.com/bharat-parihar/ARC-Hawk/connectors/base"
	"github.com/bharat-parihar/ARC-Hawk/masking"
	"github.com/bharat-parihar/ARC-Hawk/masking/content"
)

// DefaultBackupPrefix is where backups are written unless the
// backup_prefix option says otherwise.
const DefaultBackupPrefix = ".hawk-backups/"

// ErrNotFound is returned by Blobs when an object does not exist.
var ErrNotFound = errors.New("object not found")

// Blobs reads and writes whole objects in one bucket or container.
type Blobs interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, data []byte) error
	Copy(ctx context.Context, src, dst string) error
}

// Store implements the masking operations over Blobs.
type Store struct {
	kind   string
	blobs  Blobs
	config *base.AdapterConfig
	logger *log.Logger
	now    func() time.Time

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewStore creates a store for the given adapter type.
func NewStore(kind string, logger *log.Logger) *Store {
	return &Store{
		kind:   kind,
		config: &base.AdapterConfig{Type: kind},
		logger: logger,
		now:    time.Now,
		locks:  make(map[string]*sync.Mutex),
	}
}

// Attach binds the object client and configuration.
func (s *Store) Attach(b Blobs, config *base.AdapterConfig) {
	s.blobs = b
	s.config = config
}

// Detach drops the object client.
func (s *Store) Detach() { s.blobs = nil }

// Connected reports whether a client is attached.
func (s *Store) Connected() bool { return s.blobs != nil }

// Name returns the adapter name
func (s *Store) Name() string {
	if s.config == nil || s.config.Name == "" {
		return s.kind
	}
	return s.config.Name
}

// Type returns the adapter type
func (s *Store) Type() string { return s.kind }

func (s *Store) keyLock(key string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[key]
	if !ok {
		l = &sync.Mutex{}
		s.locks[key] = l
	}
	return l
}

// BackupPrefix is the common prefix of every backup of key.
func (s *Store) BackupPrefix(key string) string {
	return s.config.OptionString("backup_prefix", DefaultBackupPrefix) + key + "."
}

// BackupKey returns the backup object key for key at t.
func (s *Store) BackupKey(key string, t time.Time) string {
	return s.BackupPrefix(key) + base.BackupSuffix(t) + ".backup"
}

// CreateBackup copies the object to the backup prefix.
func (s *Store) CreateBackup(ctx context.Context, location string) (string, error) {
	if !s.config.BackupEnabled {
		s.logger.Printf("Backup disabled, skipping: %s", location)
		return "", nil
	}
	if s.config.DryRun {
		s.logger.Printf("[DRY RUN] Would create backup of %s", location)
		return "dry_run_backup", nil
	}
	if s.blobs == nil {
		return "", base.NewAdapterError(s.Name(), "CreateBackup", "client not connected", nil)
	}

	backup := s.BackupKey(location, s.now())
	opCtx, cancel := s.config.WithTimeout(ctx)
	defer cancel()
	if err := s.blobs.Copy(opCtx, location, backup); err != nil {
		return "", base.NewAdapterError(s.Name(), "CreateBackup", "failed to copy object", err)
	}
	s.logger.Printf("Created backup: %s", backup)
	return backup, nil
}

// MaskFindings downloads the object at location, masks it and uploads the
// result. Sub-locations inside the object follow masking/content.
func (s *Store) MaskFindings(ctx context.Context, findings []base.MaskingFinding, masker masking.Masker, location string) *base.MaskingResult {
	start := time.Now()
	if s.blobs == nil {
		return base.FailedResult(len(findings), "", base.NewAdapterError(s.Name(), "MaskFindings", "client not connected", nil)).Finish(start)
	}
	lock := s.keyLock(location)
	lock.Lock()
	defer lock.Unlock()

	backup := ""
	if s.config.BackupEnabled {
		var err error
		if backup, err = s.CreateBackup(ctx, location); err != nil {
			return base.FailedResult(len(findings), "", fmt.Errorf("failed to create backup: %w", err)).Finish(start)
		}
	}

	opCtx, cancel := s.config.WithTimeout(ctx)
	defer cancel()

	data, err := s.blobs.Get(opCtx, location)
	if err != nil {
		return base.FailedResult(len(findings), backup, fmt.Errorf("failed to download object: %w", err)).Finish(start)
	}

	kind, known := content.KindForPath(location)
	if !known {
		s.logger.Printf("Unknown object type %s, using text-based masking", path.Ext(location))
	}
	out, err := content.Apply(kind, data, findings, masker)
	if err != nil {
		return base.FailedResult(len(findings), backup, err).Finish(start)
	}

	if s.config.DryRun {
		s.logger.Printf("[DRY RUN] Would mask %d findings in %s", out.Masked, location)
	} else if out.Masked > 0 {
		if err := s.blobs.Put(opCtx, location, out.Data); err != nil {
			return base.FailedResult(len(findings), backup, fmt.Errorf("failed to upload object: %w", err)).Finish(start)
		}
		s.logger.Printf("Masked %d/%d findings in %s", out.Masked, len(findings), location)
	}

	result := base.NewResult(base.StatusCompleted, len(findings))
	result.MaskedCount = out.Masked
	result.MarkFailed(out.Unmasked...)
	result.BackupLocation = backup
	result.Details["format"] = string(kind)
	result.Details["dry_run"] = s.config.DryRun
	return result.Finish(start)
}

// Rollback copies the backup object over target.
func (s *Store) Rollback(ctx context.Context, backupID, target string) error {
	if s.config.DryRun {
		s.logger.Printf("[DRY RUN] Would rollback %s from %s", target, backupID)
		return nil
	}
	if s.blobs == nil {
		return base.NewAdapterError(s.Name(), "Rollback", "client not connected", nil)
	}
	if backupID == "" {
		return base.NewAdapterError(s.Name(), "Rollback", "no backup to restore", nil)
	}
	lock := s.keyLock(target)
	lock.Lock()
	defer lock.Unlock()

	opCtx, cancel := s.config.WithTimeout(ctx)
	defer cancel()
	if err := s.blobs.Copy(opCtx, backupID, target); err != nil {
		return base.NewAdapterError(s.Name(), "Rollback", "failed to restore object", err)
	}
	s.logger.Printf("Rolled back %s from backup %s", target, backupID)
	return nil
}

// VerifyMasking downloads the object and checks that no original value
// remains.
func (s *Store) VerifyMasking(ctx context.Context, location string, findings []base.MaskingFinding) (bool, error) {
	if s.blobs == nil {
		return false, base.NewAdapterError(s.Name(), "VerifyMasking", "client not connected", nil)
	}
	opCtx, cancel := s.config.WithTimeout(ctx)
	defer cancel()
	data, err := s.blobs.Get(opCtx, location)
	if err != nil {
		return false, base.NewAdapterError(s.Name(), "VerifyMasking", "failed to download object", err)
	}
	if hits := content.Residual(data, findings); len(hits) > 0 {
		s.logger.Printf("Verification failed: %d unmasked values remain in %s", len(hits), location)
		return false, nil
	}
	return true, nil
}

// MemoryBlobs is an in-process Blobs, used for dry runs against captured
// objects and in tests.
type MemoryBlobs struct {
	mu      sync.Mutex
	Objects map[string][]byte
}

// NewMemoryBlobs creates an empty MemoryBlobs.
func NewMemoryBlobs() *MemoryBlobs {
	return &MemoryBlobs{Objects: make(map[string][]byte)}
}

// Get implements Blobs.
func (m *MemoryBlobs) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.Objects[key]
	if !ok {
		return nil, fmt.Errorf("%s: %w", key, ErrNotFound)
	}
	return append([]byte(nil), data...), nil
}

// Put implements Blobs.
func (m *MemoryBlobs) Put(_ context.Context, key string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Objects[key] = append([]byte(nil), data...)
	return nil
}

// Copy implements Blobs.
func (m *MemoryBlobs) Copy(ctx context.Context, src, dst string) error {
	data, err := m.Get(ctx, src)
	if err != nil {
		return err
	}
	return m.Put(ctx, dst, data)
}
