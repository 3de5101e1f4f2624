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

// Package mongodb masks PII stored in MongoDB collections.
//
// The location is a collection and every finding's Location is a dotted
// field path inside it ("email", "profile.phone"). Matching is by exact
// field value; each distinct (field, value) becomes one UpdateMany.
package mongodb

import (
	"context"
	"fmt"
	"log"
	"net/url"
	"os"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/bharat-parihar/ARC-Hawk/connectors/base"
	"github.com/bharat-parihar/ARC-Hawk/masking"
)

const (
	// DefaultConnectTimeout is the default connection timeout
	DefaultConnectTimeout = 10 * time.Second
	// DefaultMaxPoolSize is the default maximum connection pool size
	DefaultMaxPoolSize = 20
)

// collections is the subset of database operations the adapter needs.
type collections interface {
	UpdateMany(ctx context.Context, coll string, filter, update bson.D) (int64, error)
	CountDocuments(ctx context.Context, coll string, filter bson.D) (int64, error)
	// CopyCollection replaces dst with the documents of src.
	CopyCollection(ctx context.Context, src, dst string) error
	Close(ctx context.Context) error
}

type mongoDatabase struct {
	client *mongo.Client
	db     *mongo.Database
}

func (m mongoDatabase) UpdateMany(ctx context.Context, coll string, filter, update bson.D) (int64, error) {
	res, err := m.db.Collection(coll).UpdateMany(ctx, filter, update)
	if err != nil {
		return 0, err
	}
	return res.ModifiedCount, nil
}

func (m mongoDatabase) CountDocuments(ctx context.Context, coll string, filter bson.D) (int64, error) {
	return m.db.Collection(coll).CountDocuments(ctx, filter)
}

func (m mongoDatabase) CopyCollection(ctx context.Context, src, dst string) error {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.D{}}},
		{{Key: "$out", Value: dst}},
	}
	cursor, err := m.db.Collection(src).Aggregate(ctx, pipeline)
	if err != nil {
		return err
	}
	return cursor.Close(ctx)
}

func (m mongoDatabase) Close(ctx context.Context) error {
	return m.client.Disconnect(ctx)
}

// Adapter implements base.Adapter for MongoDB.
type Adapter struct {
	config *base.AdapterConfig
	db     collections
	logger *log.Logger
	now    func() time.Time
}

// NewAdapter creates a new MongoDB adapter instance
func NewAdapter() *Adapter {
	return &Adapter{
		config: &base.AdapterConfig{Type: "mongodb"},
		logger: log.New(os.Stdout, "[MASK_MONGODB] ", log.LstdFlags),
		now:    time.Now,
	}
}

// Connect creates the client, pings the primary and selects the database
// named by the database option.
func (a *Adapter) Connect(ctx context.Context, config *base.AdapterConfig) error {
	dbName := config.OptionString("database", "")
	if dbName == "" {
		return base.NewAdapterError(config.Name, "Connect", "database name is required", nil)
	}
	uri, err := BuildURI(config)
	if err != nil {
		return base.NewAdapterError(config.Name, "Connect", "failed to build URI", err)
	}

	connectTimeout := DefaultConnectTimeout
	if d, err := time.ParseDuration(config.OptionString("connect_timeout", "")); err == nil {
		connectTimeout = d
	}
	clientOpts := options.Client().
		ApplyURI(uri).
		SetMaxPoolSize(uint64(config.OptionInt("max_pool_size", DefaultMaxPoolSize))).
		SetConnectTimeout(connectTimeout).
		SetAppName(config.OptionString("app_name", "ARC-Hawk-Masking")).
		SetRetryWrites(true).
		SetRetryReads(true)

	connectCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	client, err := mongo.Connect(connectCtx, clientOpts)
	if err != nil {
		return base.NewAdapterError(config.Name, "Connect", "failed to connect to MongoDB", err)
	}
	if err := client.Ping(connectCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(ctx)
		return base.NewAdapterError(config.Name, "Connect", "failed to ping MongoDB", err)
	}

	a.attach(mongoDatabase{client: client, db: client.Database(dbName)}, config)
	a.logger.Printf("Connected to MongoDB: %s (database=%s)", a.Name(), dbName)
	return nil
}

func (a *Adapter) attach(db collections, config *base.AdapterConfig) {
	a.db = db
	a.config = config
}

// Disconnect closes the MongoDB client
func (a *Adapter) Disconnect(ctx context.Context) error {
	if a.db == nil {
		return nil
	}
	if err := a.db.Close(ctx); err != nil {
		return base.NewAdapterError(a.Name(), "Disconnect", "failed to disconnect", err)
	}
	a.db = nil
	a.logger.Printf("Disconnected from MongoDB: %s", a.Name())
	return nil
}

// Name returns the adapter name
func (a *Adapter) Name() string {
	if a.config == nil || a.config.Name == "" {
		return "mongodb"
	}
	return a.config.Name
}

// Type returns the adapter type
func (a *Adapter) Type() string { return "mongodb" }

// CreateBackup copies the collection with an aggregation $out stage.
func (a *Adapter) CreateBackup(ctx context.Context, location string) (string, error) {
	if !a.config.BackupEnabled {
		a.logger.Printf("Backup disabled, skipping: %s", location)
		return "", nil
	}
	if a.config.DryRun {
		a.logger.Printf("[DRY RUN] Would create backup of collection %s", location)
		return "dry_run_backup", nil
	}
	if a.db == nil {
		return "", base.NewAdapterError(a.Name(), "CreateBackup", "database not connected", nil)
	}
	if location == "" {
		return "", base.NewAdapterError(a.Name(), "CreateBackup", "collection name is required", nil)
	}

	backup := location + "_backup_" + base.BackupSuffix(a.now())
	opCtx, cancel := a.config.WithTimeout(ctx)
	defer cancel()
	if err := a.db.CopyCollection(opCtx, location, backup); err != nil {
		return "", base.NewAdapterError(a.Name(), "CreateBackup", "failed to copy collection", err)
	}
	a.logger.Printf("Created backup collection: %s", backup)
	return backup, nil
}

// MaskFindings masks every distinct (field, value) with one UpdateMany.
func (a *Adapter) MaskFindings(ctx context.Context, findings []base.MaskingFinding, masker masking.Masker, location string) *base.MaskingResult {
	start := time.Now()
	if a.db == nil {
		return base.FailedResult(len(findings), "", base.NewAdapterError(a.Name(), "MaskFindings", "database not connected", nil)).Finish(start)
	}

	backup := ""
	if a.config.BackupEnabled {
		var err error
		if backup, err = a.CreateBackup(ctx, location); err != nil {
			return base.FailedResult(len(findings), "", fmt.Errorf("failed to create backup: %w", err)).Finish(start)
		}
	}

	opCtx, cancel := a.config.WithTimeout(ctx)
	defer cancel()

	result := base.NewResult(base.StatusCompleted, len(findings))
	result.BackupLocation = backup
	result.Details["dry_run"] = a.config.DryRun

	type fieldKey struct{ field, value string }
	done := make(map[fieldKey]bool)
	for _, f := range findings {
		k := fieldKey{field: f.Location, value: f.Value}
		if ok, seen := done[k]; seen {
			if ok {
				result.MaskedCount++
			} else {
				result.MarkFailed(f)
			}
			continue
		}
		if !validField(f.Location) || f.Value == "" {
			done[k] = false
			result.MarkFailed(f)
			continue
		}

		filter := bson.D{{Key: f.Location, Value: f.Value}}
		var n int64
		var err error
		if a.config.DryRun {
			n, err = a.db.CountDocuments(opCtx, location, filter)
		} else {
			update := bson.D{{Key: "$set", Value: bson.D{{Key: f.Location, Value: masker.Mask(f.Value, f.PIIType)}}}}
			n, err = a.db.UpdateMany(opCtx, location, filter, update)
		}
		if err != nil {
			a.logger.Printf("Masking stopped on %s.%s: %v", location, f.Location, err)
			result.Status = base.StatusFailed
			result.FailedCount = result.TotalFindings - result.MaskedCount
			result.ErrorMessage = err.Error()
			return result.Finish(start)
		}
		done[k] = n > 0
		if n > 0 {
			result.MaskedCount++
		} else {
			result.MarkFailed(f)
		}
	}

	a.logger.Printf("Masked %d/%d findings in %s", result.MaskedCount, len(findings), location)
	return result.Finish(start)
}

// Rollback replaces target with the backup collection.
func (a *Adapter) Rollback(ctx context.Context, backupID, target string) error {
	if a.config.DryRun {
		a.logger.Printf("[DRY RUN] Would rollback %s from %s", target, backupID)
		return nil
	}
	if a.db == nil {
		return base.NewAdapterError(a.Name(), "Rollback", "database not connected", nil)
	}
	if backupID == "" || target == "" {
		return base.NewAdapterError(a.Name(), "Rollback", "backup and target are required", nil)
	}
	opCtx, cancel := a.config.WithTimeout(ctx)
	defer cancel()
	if err := a.db.CopyCollection(opCtx, backupID, target); err != nil {
		return base.NewAdapterError(a.Name(), "Rollback", "failed to restore collection", err)
	}
	a.logger.Printf("Rolled back %s from backup %s", target, backupID)
	return nil
}

// VerifyMasking counts documents that still hold an original value.
func (a *Adapter) VerifyMasking(ctx context.Context, location string, findings []base.MaskingFinding) (bool, error) {
	if a.db == nil {
		return false, base.NewAdapterError(a.Name(), "VerifyMasking", "database not connected", nil)
	}
	opCtx, cancel := a.config.WithTimeout(ctx)
	defer cancel()
	for _, f := range findings {
		if f.Value == "" || !validField(f.Location) {
			continue
		}
		n, err := a.db.CountDocuments(opCtx, location, bson.D{{Key: f.Location, Value: f.Value}})
		if err != nil {
			return false, base.NewAdapterError(a.Name(), "VerifyMasking", "count failed", err)
		}
		if n > 0 {
			a.logger.Printf("Verification failed: %d documents in %s still hold an original value", n, location)
			return false, nil
		}
	}
	return true, nil
}

// validField rejects empty paths and operator keys.
func validField(path string) bool {
	if path == "" || strings.HasPrefix(path, "$") {
		return false
	}
	for _, part := range strings.Split(path, ".") {
		if part == "" || strings.HasPrefix(part, "$") {
			return false
		}
	}
	return true
}

// BuildURI returns ConnectionURL, or a mongodb:// URI assembled from the
// host, port, hosts, auth_database, replica_set and tls options.
func BuildURI(config *base.AdapterConfig) (string, error) {
	if config.ConnectionURL != "" {
		return config.ConnectionURL, nil
	}

	hosts := config.OptionString("hosts", "")
	if hosts == "" {
		hosts = fmt.Sprintf("%s:%d", config.OptionString("host", "localhost"), config.OptionInt("port", 27017))
	}
	u := url.URL{Scheme: "mongodb", Host: hosts, Path: "/"}
	if user := config.Credentials["username"]; user != "" {
		u.User = url.UserPassword(user, config.Credentials["password"])
	}

	q := url.Values{}
	if v := config.OptionString("auth_database", ""); v != "" {
		q.Set("authSource", v)
	}
	if v := config.OptionString("replica_set", ""); v != "" {
		q.Set("replicaSet", v)
	}
	if tls, ok := config.Options["tls"].(bool); ok && tls {
		q.Set("tls", "true")
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}
