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

// Package audit records what each masking run did to each location. Rows
// carry counts, types, strategy and status; never the masked values.
package audit

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned by Latest when an asset has no entries.
var ErrNotFound = errors.New("audit entry not found")

// MaskingAudit is one masked location in one run.
type MaskingAudit struct {
	ID              uuid.UUID              `json:"id"`
	RunID           uuid.UUID              `json:"run_id"`
	AssetID         string                 `json:"asset_id"`
	Adapter         string                 `json:"adapter"`
	Location        string                 `json:"location"`
	MaskedBy        string                 `json:"masked_by,omitempty"`
	MaskingStrategy string                 `json:"masking_strategy"`
	PIITypes        []string               `json:"pii_types"`
	FindingsCount   int                    `json:"findings_count"`
	MaskedCount     int                    `json:"masked_count"`
	FailedCount     int                    `json:"failed_count"`
	Status          string                 `json:"status"`
	Verified        bool                   `json:"verified"`
	BackupLocation  string                 `json:"backup_location,omitempty"`
	ErrorMessage    string                 `json:"error_message,omitempty"`
	MaskedAt        time.Time              `json:"masked_at"`
	Metadata        map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt       time.Time              `json:"created_at"`
}

// AssetKey identifies a location across runs.
func AssetKey(adapter, location string) string {
	return adapter + ":" + location
}

// Repository persists audit entries.
type Repository interface {
	Create(ctx context.Context, entry *MaskingAudit) error
	ListByAsset(ctx context.Context, assetID string) ([]MaskingAudit, error)
	ListByRun(ctx context.Context, runID uuid.UUID) ([]MaskingAudit, error)
	Latest(ctx context.Context, assetID string) (*MaskingAudit, error)
}

// MemoryRepository keeps entries in process. Used when no database is
// configured.
type MemoryRepository struct {
	mu      sync.RWMutex
	entries []MaskingAudit
}

// NewMemoryRepository creates an empty repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{}
}

// Create stores a copy of entry, assigning an ID and CreatedAt when unset.
func (m *MemoryRepository) Create(_ context.Context, entry *MaskingAudit) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, *entry)
	return nil
}

// ListByAsset returns entries newest first.
func (m *MemoryRepository) ListByAsset(_ context.Context, assetID string) ([]MaskingAudit, error) {
	return m.filter(func(e MaskingAudit) bool { return e.AssetID == assetID }), nil
}

// ListByRun returns the entries of one run, newest first.
func (m *MemoryRepository) ListByRun(_ context.Context, runID uuid.UUID) ([]MaskingAudit, error) {
	return m.filter(func(e MaskingAudit) bool { return e.RunID == runID }), nil
}

// Latest returns the newest entry for assetID.
func (m *MemoryRepository) Latest(ctx context.Context, assetID string) (*MaskingAudit, error) {
	entries, _ := m.ListByAsset(ctx, assetID)
	if len(entries) == 0 {
		return nil, ErrNotFound
	}
	return &entries[0], nil
}

func (m *MemoryRepository) filter(keep func(MaskingAudit) bool) []MaskingAudit {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []MaskingAudit
	for _, e := range m.entries {
		if keep(e) {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].MaskedAt.After(out[j].MaskedAt) })
	return out
}
