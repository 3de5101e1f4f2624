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

package base

import (
	"context"
	"time"

	"github.com/bharat-parihar/ARC-Hawk/masking"
)

// Adapter masks confirmed PII in one kind of store. A masking operation on
// one location moves Pending -> InProgress -> Completed|Failed, and an
// explicit Rollback moves it to RolledBack.
type Adapter interface {
	// Lifecycle Management
	Connect(ctx context.Context, config *AdapterConfig) error
	Disconnect(ctx context.Context) error

	// CreateBackup copies location and returns an identifier for Rollback.
	// It returns "" without error when backups are disabled.
	CreateBackup(ctx context.Context, location string) (string, error)

	// MaskFindings backs up location when backups are enabled, then masks
	// every finding. Failures are reported in the result, never as panics.
	MaskFindings(ctx context.Context, findings []MaskingFinding, masker masking.Masker, location string) *MaskingResult

	// Rollback restores target from a backup made by CreateBackup.
	Rollback(ctx context.Context, backupID, target string) error

	// VerifyMasking reports false when any original value is still present
	// in location. The error is reserved for failures to perform the check.
	VerifyMasking(ctx context.Context, location string, findings []MaskingFinding) (bool, error)

	// Metadata
	Name() string // Unique adapter instance name
	Type() string // Adapter type (filesystem, postgres, s3, ...)
}

// AdapterConfig holds the configuration for an adapter instance
type AdapterConfig struct {
	Name          string                 `json:"name"`           // Unique name for this adapter
	Type          string                 `json:"type"`           // Type: filesystem, postgres, mysql, ...
	ConnectionURL string                 `json:"connection_url"` // DSN, URI or bucket URL
	Credentials   map[string]string      `json:"credentials"`    // Username, password, keys
	Options       map[string]interface{} `json:"options"`        // Adapter-specific options
	Timeout       time.Duration          `json:"timeout"`        // Per-operation timeout (default: 30s)
	BackupEnabled bool                   `json:"backup_enabled"`
	DryRun        bool                   `json:"dry_run"`
}

// DefaultTimeout applies when AdapterConfig.Timeout is zero.
const DefaultTimeout = 30 * time.Second

// OptionString returns a string option or def.
func (c *AdapterConfig) OptionString(key, def string) string {
	if c == nil {
		return def
	}
	if v, ok := c.Options[key].(string); ok && v != "" {
		return v
	}
	return def
}

// OptionInt returns an int option or def. JSON numbers are accepted.
func (c *AdapterConfig) OptionInt(key string, def int) int {
	if c == nil {
		return def
	}
	switch v := c.Options[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return def
}

// OptionBool returns a bool option or def. "true"/"false" strings are
// accepted for env-sourced options.
func (c *AdapterConfig) OptionBool(key string, def bool) bool {
	if c == nil {
		return def
	}
	switch v := c.Options[key].(type) {
	case bool:
		return v
	case string:
		switch v {
		case "true", "1", "yes":
			return true
		case "false", "0", "no":
			return false
		}
	}
	return def
}

// WithTimeout derives the per-operation context.
func (c *AdapterConfig) WithTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	timeout := DefaultTimeout
	if c != nil && c.Timeout > 0 {
		timeout = c.Timeout
	}
	return context.WithTimeout(ctx, timeout)
}

// AdapterError represents errors specific to adapter operations
type AdapterError struct {
	AdapterName string
	Operation   string
	Message     string
	Cause       error
}

func (e *AdapterError) Error() string {
	if e.Cause != nil {
		return e.AdapterName + "." + e.Operation + ": " + e.Message + " (cause: " + e.Cause.Error() + ")"
	}
	return e.AdapterName + "." + e.Operation + ": " + e.Message
}

func (e *AdapterError) Unwrap() error {
	return e.Cause
}

// NewAdapterError creates a new AdapterError
func NewAdapterError(adapterName, operation, message string, cause error) *AdapterError {
	return &AdapterError{
		AdapterName: adapterName,
		Operation:   operation,
		Message:     message,
		Cause:       cause,
	}
}
