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

// Package redis masks PII held in Redis string values and hash fields.
//
// A finding's Location is either "key" for a string value or "key#field"
// for a hash field; an empty Location means the key named by the masking
// location. Values are rewritten in place under WATCH, keeping the key's
// TTL. Originals of changed entries are saved into a backup hash first.
package redis

import (
	"context"
	"fmt"
	"log"
	"os"
	"path"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/bharat-parihar/ARC-Hawk/connectors/base"
	"github.com/bharat-parihar/ARC-Hawk/masking"
)

const (
	backupPrefix        = "hawk:backup:"
	defaultBackupTTLDay = 30
	watchRetries        = 3
)

// Adapter implements base.Adapter for Redis.
type Adapter struct {
	config *base.AdapterConfig
	client *redis.Client
	logger *log.Logger
	now    func() time.Time
}

// NewAdapter creates a new Redis adapter instance
func NewAdapter() *Adapter {
	return &Adapter{
		config: &base.AdapterConfig{Type: "redis"},
		logger: log.New(os.Stdout, "[MASK_REDIS] ", log.LstdFlags),
		now:    time.Now,
	}
}

// Connect creates the client from a redis:// URL or from host, port and db
// options, and pings it.
func (a *Adapter) Connect(ctx context.Context, config *base.AdapterConfig) error {
	opts, err := clientOptions(config)
	if err != nil {
		return base.NewAdapterError(config.Name, "Connect", "invalid connection options", err)
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return base.NewAdapterError(config.Name, "Connect", "failed to ping Redis", err)
	}

	a.config = config
	a.client = client
	a.logger.Printf("Connected to Redis: %s (db=%d)", a.Name(), opts.DB)
	return nil
}

func clientOptions(config *base.AdapterConfig) (*redis.Options, error) {
	var opts *redis.Options
	if config.ConnectionURL != "" {
		parsed, err := redis.ParseURL(config.ConnectionURL)
		if err != nil {
			return nil, err
		}
		opts = parsed
	} else {
		opts = &redis.Options{
			Addr: fmt.Sprintf("%s:%d", config.OptionString("host", "localhost"), config.OptionInt("port", 6379)),
			DB:   config.OptionInt("db", 0),
		}
	}
	if pw := config.Credentials["password"]; pw != "" && opts.Password == "" {
		opts.Password = pw
	}
	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second
	opts.PoolSize = config.OptionInt("pool_size", 10)
	return opts, nil
}

// Disconnect closes the Redis client
func (a *Adapter) Disconnect(ctx context.Context) error {
	if a.client == nil {
		return nil
	}
	if err := a.client.Close(); err != nil {
		return base.NewAdapterError(a.Name(), "Disconnect", "failed to close client", err)
	}
	a.client = nil
	a.logger.Printf("Disconnected from Redis: %s", a.Name())
	return nil
}

// Name returns the adapter name
func (a *Adapter) Name() string {
	if a.config == nil || a.config.Name == "" {
		return "redis"
	}
	return a.config.Name
}

// Type returns the adapter type
func (a *Adapter) Type() string { return "redis" }

// CreateBackup returns the name of the backup hash for location. Entries
// are added to it as MaskFindings changes them.
func (a *Adapter) CreateBackup(ctx context.Context, location string) (string, error) {
	if !a.config.BackupEnabled {
		a.logger.Printf("Backup disabled, skipping: %s", location)
		return "", nil
	}
	if a.config.DryRun {
		a.logger.Printf("[DRY RUN] Would create backup of %s", location)
		return "dry_run_backup", nil
	}
	if a.client == nil {
		return "", base.NewAdapterError(a.Name(), "CreateBackup", "client not connected", nil)
	}
	id := backupPrefix + location + ":" + base.BackupSuffix(a.now())
	a.logger.Printf("Created backup: %s", id)
	return id, nil
}

// entry is one string value or hash field.
type entry struct {
	key   string
	field string
}

func (e entry) backupField() string {
	if e.field == "" {
		return "s:" + e.key
	}
	return "h:" + e.key + "#" + e.field
}

func parseEntry(location, defaultKey string) entry {
	if location == "" {
		location = defaultKey
	}
	if i := strings.LastIndex(location, "#"); i > 0 {
		return entry{key: location[:i], field: location[i+1:]}
	}
	return entry{key: location}
}

func parseBackupField(f string) (entry, bool) {
	switch {
	case strings.HasPrefix(f, "s:"):
		return entry{key: f[2:]}, true
	case strings.HasPrefix(f, "h:"):
		e := parseEntry(f[2:], "")
		return e, e.field != ""
	}
	return entry{}, false
}

// MaskFindings rewrites every entry that contains a finding's value.
func (a *Adapter) MaskFindings(ctx context.Context, findings []base.MaskingFinding, masker masking.Masker, location string) *base.MaskingResult {
	start := time.Now()
	if a.client == nil {
		return base.FailedResult(len(findings), "", base.NewAdapterError(a.Name(), "MaskFindings", "client not connected", nil)).Finish(start)
	}

	backup := ""
	if a.config.BackupEnabled {
		var err error
		if backup, err = a.CreateBackup(ctx, location); err != nil {
			return base.FailedResult(len(findings), "", fmt.Errorf("failed to create backup: %w", err)).Finish(start)
		}
	}

	// group findings by key, preserving first-seen order
	var keys []string
	byKey := make(map[string][]int)
	for i, f := range findings {
		e := parseEntry(f.Location, location)
		if _, ok := byKey[e.key]; !ok {
			keys = append(keys, e.key)
		}
		byKey[e.key] = append(byKey[e.key], i)
	}

	opCtx, cancel := a.config.WithTimeout(ctx)
	defer cancel()

	result := base.NewResult(base.StatusCompleted, len(findings))
	result.BackupLocation = backup
	result.Details["dry_run"] = a.config.DryRun

	for _, key := range keys {
		var masked int
		var skipped []int
		var err error
		for attempt := 0; attempt < watchRetries; attempt++ {
			masked, skipped, err = a.maskKey(opCtx, key, findings, byKey[key], masker, backup)
			if err != redis.TxFailedErr {
				break
			}
		}
		if err != nil {
			a.logger.Printf("Masking stopped on key %s: %v", key, err)
			result.Status = base.StatusFailed
			result.FailedCount = result.TotalFindings - result.MaskedCount
			result.ErrorMessage = err.Error()
			return result.Finish(start)
		}
		result.MaskedCount += masked
		for _, i := range skipped {
			result.MarkFailed(findings[i])
		}
	}

	if backup != "" && !a.config.DryRun && result.MaskedCount > 0 {
		ttl := time.Duration(a.config.OptionInt("backup_ttl_days", defaultBackupTTLDay)) * 24 * time.Hour
		if err := a.client.Expire(opCtx, backup, ttl).Err(); err != nil {
			a.logger.Printf("Warning: could not set backup expiry on %s: %v", backup, err)
		}
	}

	a.logger.Printf("Masked %d/%d findings in %s", result.MaskedCount, len(findings), location)
	return result.Finish(start)
}

// maskKey masks the findings at idx, which all live under key. It returns
// how many were masked and the indexes of the findings it skipped.
func (a *Adapter) maskKey(ctx context.Context, key string, findings []base.MaskingFinding, idx []int, masker masking.Masker, backup string) (int, []int, error) {
	masked := 0
	var skipped []int
	err := a.client.Watch(ctx, func(tx *redis.Tx) error {
		masked, skipped = 0, nil
		kind, err := tx.Type(ctx, key).Result()
		if err != nil {
			return err
		}

		current := make(map[entry]string)
		original := make(map[entry]string)
		read := func(e entry) (string, bool, error) {
			if v, ok := current[e]; ok {
				return v, true, nil
			}
			var v string
			var err error
			switch {
			case kind == "string" && e.field == "":
				v, err = tx.Get(ctx, key).Result()
			case kind == "hash" && e.field != "":
				v, err = tx.HGet(ctx, key, e.field).Result()
			default:
				return "", false, nil
			}
			if err == redis.Nil {
				return "", false, nil
			}
			if err != nil {
				return "", false, err
			}
			current[e], original[e] = v, v
			return v, true, nil
		}

		for _, i := range idx {
			f := findings[i]
			e := parseEntry(f.Location, key)
			v, ok, err := read(e)
			if err != nil {
				return err
			}
			if !ok || f.Value == "" || !strings.Contains(original[e], f.Value) {
				skipped = append(skipped, i)
				continue
			}
			current[e] = strings.ReplaceAll(v, f.Value, masker.Mask(f.Value, f.PIIType))
			masked++
		}
		if a.config.DryRun || masked == 0 {
			return nil
		}

		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			for e, v := range current {
				if v == original[e] {
					continue
				}
				if backup != "" {
					p.HSetNX(ctx, backup, e.backupField(), original[e])
				}
				if e.field == "" {
					p.Set(ctx, key, v, redis.KeepTTL)
				} else {
					p.HSet(ctx, key, e.field, v)
				}
			}
			return nil
		})
		return err
	}, key)
	return masked, skipped, err
}

// Rollback restores every entry saved in backupID whose key matches the
// target glob. An empty target restores all of them.
func (a *Adapter) Rollback(ctx context.Context, backupID, target string) error {
	if a.config.DryRun {
		a.logger.Printf("[DRY RUN] Would rollback %s from %s", target, backupID)
		return nil
	}
	if a.client == nil {
		return base.NewAdapterError(a.Name(), "Rollback", "client not connected", nil)
	}
	opCtx, cancel := a.config.WithTimeout(ctx)
	defer cancel()

	saved, err := a.client.HGetAll(opCtx, backupID).Result()
	if err != nil {
		return base.NewAdapterError(a.Name(), "Rollback", "failed to read backup", err)
	}
	if len(saved) == 0 {
		return base.NewAdapterError(a.Name(), "Rollback", "backup is empty or expired", nil)
	}

	pipe := a.client.TxPipeline()
	restored := 0
	for field, value := range saved {
		e, ok := parseBackupField(field)
		if !ok {
			continue
		}
		if target != "" {
			if match, _ := path.Match(target, e.key); !match {
				continue
			}
		}
		if e.field == "" {
			pipe.Set(opCtx, e.key, value, redis.KeepTTL)
		} else {
			pipe.HSet(opCtx, e.key, e.field, value)
		}
		restored++
	}
	if _, err := pipe.Exec(opCtx); err != nil && restored > 0 {
		return base.NewAdapterError(a.Name(), "Rollback", "failed to restore values", err)
	}
	a.logger.Printf("Rolled back %d entries from backup %s", restored, backupID)
	return nil
}

// VerifyMasking reports false if any finding's value is still present in
// its entry.
func (a *Adapter) VerifyMasking(ctx context.Context, location string, findings []base.MaskingFinding) (bool, error) {
	if a.client == nil {
		return false, base.NewAdapterError(a.Name(), "VerifyMasking", "client not connected", nil)
	}
	opCtx, cancel := a.config.WithTimeout(ctx)
	defer cancel()

	for _, f := range findings {
		if f.Value == "" {
			continue
		}
		e := parseEntry(f.Location, location)
		var v string
		var err error
		if e.field == "" {
			v, err = a.client.Get(opCtx, e.key).Result()
		} else {
			v, err = a.client.HGet(opCtx, e.key, e.field).Result()
		}
		if err == redis.Nil {
			continue
		}
		if err != nil {
			if strings.HasPrefix(err.Error(), "WRONGTYPE") {
				continue
			}
			return false, base.NewAdapterError(a.Name(), "VerifyMasking", "read failed", err)
		}
		if strings.Contains(v, f.Value) {
			a.logger.Printf("Verification failed: key %s still holds an original value", e.key)
			return false, nil
		}
	}
	return true, nil
}
