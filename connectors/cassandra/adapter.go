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

// Package cassandra masks PII stored in Apache Cassandra / ScyllaDB text
// columns.
//
// Cassandra has no multi-row transactions and cannot update by a regular
// column, so masking selects the primary key of every matching row and
// updates rows one at a time. The original values of touched rows are
// copied into a backup table first; Rollback writes them back.
package cassandra

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/gocql/gocql" // Cassandra/Scylla driver

	"github.com/bharat-parihar/ARC-Hawk/connectors/base"
	"github.com/bharat-parihar/ARC-Hawk/connectors/sqlstore"
	"github.com/bharat-parihar/ARC-Hawk/masking"
)

// BackupTable holds original values of rows changed by masking.
const BackupTable = "hawk_masking_backups"

const createBackupTable = `CREATE TABLE IF NOT EXISTS ` + BackupTable + ` (
	backup_id text,
	table_name text,
	row_key text,
	column_name text,
	original text,
	PRIMARY KEY (backup_id, table_name, row_key, column_name))`

// session is the subset of gocql used by the adapter.
type session interface {
	Exec(ctx context.Context, stmt string, args ...interface{}) error
	Rows(ctx context.Context, stmt string, args ...interface{}) ([]map[string]interface{}, error)
	Close()
}

type gocqlSession struct {
	s *gocql.Session
}

func (g gocqlSession) Exec(ctx context.Context, stmt string, args ...interface{}) error {
	return g.s.Query(stmt, args...).WithContext(ctx).Exec()
}

func (g gocqlSession) Rows(ctx context.Context, stmt string, args ...interface{}) ([]map[string]interface{}, error) {
	return g.s.Query(stmt, args...).WithContext(ctx).Iter().SliceMap()
}

func (g gocqlSession) Close() { g.s.Close() }

// Adapter implements base.Adapter for Cassandra.
type Adapter struct {
	config   *base.AdapterConfig
	session  session
	keyspace string
	logger   *log.Logger
	now      func() time.Time
}

// NewAdapter creates a new Cassandra adapter instance
func NewAdapter() *Adapter {
	return &Adapter{
		config: &base.AdapterConfig{Type: "cassandra"},
		logger: log.New(os.Stdout, "[MASK_CASSANDRA] ", log.LstdFlags),
		now:    time.Now,
	}
}

// Connect establishes a session. ConnectionURL has the form
// cassandra://host1,host2:port/keyspace.
func (a *Adapter) Connect(ctx context.Context, config *base.AdapterConfig) error {
	hosts, keyspace, err := parseConnectionURL(config.ConnectionURL)
	if err != nil {
		return base.NewAdapterError(config.Name, "Connect", "invalid connection URL", err)
	}

	cluster := gocql.NewCluster(hosts...)
	cluster.Keyspace = keyspace
	cluster.Consistency = parseConsistency(config.OptionString("consistency", "QUORUM"))
	cluster.Timeout = 5 * time.Second
	if config.Timeout > 0 {
		cluster.Timeout = config.Timeout
	}
	if username, ok := config.Credentials["username"]; ok {
		cluster.Authenticator = gocql.PasswordAuthenticator{
			Username: username,
			Password: config.Credentials["password"],
		}
	}
	cluster.NumConns = config.OptionInt("num_conns", 2)

	s, err := cluster.CreateSession()
	if err != nil {
		return base.NewAdapterError(config.Name, "Connect", "failed to create session", err)
	}

	a.attach(gocqlSession{s: s}, keyspace, config)
	a.logger.Printf("Connected to Cassandra: %s (keyspace=%s)", a.Name(), keyspace)
	return nil
}

func (a *Adapter) attach(s session, keyspace string, config *base.AdapterConfig) {
	a.session = s
	a.keyspace = keyspace
	a.config = config
}

// Disconnect closes the Cassandra session
func (a *Adapter) Disconnect(ctx context.Context) error {
	if a.session == nil {
		return nil
	}
	a.session.Close()
	a.session = nil
	a.logger.Printf("Disconnected from Cassandra: %s", a.Name())
	return nil
}

// Name returns the adapter name
func (a *Adapter) Name() string {
	if a.config == nil || a.config.Name == "" {
		return "cassandra"
	}
	return a.config.Name
}

// Type returns the adapter type
func (a *Adapter) Type() string { return "cassandra" }

// CreateBackup ensures the backup table exists and returns a new backup
// id for location. Rows are copied into it as MaskFindings touches them.
func (a *Adapter) CreateBackup(ctx context.Context, location string) (string, error) {
	if !a.config.BackupEnabled {
		a.logger.Printf("Backup disabled, skipping: %s", location)
		return "", nil
	}
	if a.config.DryRun {
		a.logger.Printf("[DRY RUN] Would create backup of table %s", location)
		return "dry_run_backup", nil
	}
	if a.session == nil {
		return "", base.NewAdapterError(a.Name(), "CreateBackup", "session not connected", nil)
	}
	opCtx, cancel := a.config.WithTimeout(ctx)
	defer cancel()
	if err := a.session.Exec(opCtx, createBackupTable); err != nil {
		return "", base.NewAdapterError(a.Name(), "CreateBackup", "failed to create backup table", err)
	}
	id := location + "_backup_" + base.BackupSuffix(a.now())
	a.logger.Printf("Created backup: %s", id)
	return id, nil
}

type columnKey struct {
	table  string
	column string
	value  string
}

// MaskFindings masks findings whose Location is "column" or "table.column";
// a bare column belongs to the table named by location.
func (a *Adapter) MaskFindings(ctx context.Context, findings []base.MaskingFinding, masker masking.Masker, location string) *base.MaskingResult {
	start := time.Now()
	if a.session == nil {
		return base.FailedResult(len(findings), "", base.NewAdapterError(a.Name(), "MaskFindings", "session not connected", nil)).Finish(start)
	}

	var keys []columnKey
	idx := make(map[columnKey][]int)
	for i, f := range findings {
		table, column := base.SplitColumn(f.Location, location)
		k := columnKey{table: table, column: column, value: f.Value}
		if _, seen := idx[k]; !seen {
			keys = append(keys, k)
		}
		idx[k] = append(idx[k], i)
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
	pkCache := make(map[string][]string)

	for _, k := range keys {
		n := len(idx[k])
		if err := opCtx.Err(); err != nil {
			return a.partialFailure(result, start, err)
		}
		table, errT := sqlstore.CQL.QuoteIdent(k.table)
		column, errC := sqlstore.CQL.QuoteIdent(k.column)
		if k.table == "" || k.value == "" || errT != nil || errC != nil {
			for _, i := range idx[k] {
				result.MarkFailed(findings[i])
			}
			continue
		}

		pk, ok := pkCache[k.table]
		if !ok {
			var err error
			if pk, err = a.primaryKey(opCtx, k.table); err != nil {
				return a.partialFailure(result, start, fmt.Errorf("primary key of %s: %w", k.table, err))
			}
			pkCache[k.table] = pk
		}

		rows, err := a.session.Rows(opCtx, selectByValue(table, column, pk), k.value)
		if err != nil {
			return a.partialFailure(result, start, fmt.Errorf("select %s.%s: %w", k.table, k.column, err))
		}
		if len(rows) == 0 {
			for _, i := range idx[k] {
				result.MarkFailed(findings[i])
			}
			continue
		}
		if a.config.DryRun {
			result.MaskedCount += n
			continue
		}

		replacement := masker.Mask(k.value, findings[idx[k][0]].PIIType)
		for _, row := range rows {
			rowKey, args, err := keyArgs(row, pk)
			if err != nil {
				return a.partialFailure(result, start, err)
			}
			if backup != "" {
				if err := a.session.Exec(opCtx,
					"INSERT INTO "+BackupTable+" (backup_id, table_name, row_key, column_name, original) VALUES (?, ?, ?, ?, ?)",
					backup, k.table, rowKey, k.column, k.value); err != nil {
					return a.partialFailure(result, start, fmt.Errorf("backup row: %w", err))
				}
			}
			if err := a.session.Exec(opCtx, updateByKey(table, column, pk), append([]interface{}{replacement}, args...)...); err != nil {
				return a.partialFailure(result, start, fmt.Errorf("update %s.%s: %w", k.table, k.column, err))
			}
		}
		result.MaskedCount += n
	}

	a.logger.Printf("Masked %d/%d findings in %s", result.MaskedCount, len(findings), location)
	return result.Finish(start)
}

// partialFailure fails the location. Rows already updated stay updated and
// are restorable from the backup.
func (a *Adapter) partialFailure(result *base.MaskingResult, start time.Time, err error) *base.MaskingResult {
	a.logger.Printf("Masking stopped after %d findings: %v", result.MaskedCount, err)
	result.Status = base.StatusFailed
	result.FailedCount = result.TotalFindings - result.MaskedCount
	result.ErrorMessage = err.Error()
	return result.Finish(start)
}

// Rollback writes original values recorded under backupID back into
// target. An empty target restores every table in the backup.
func (a *Adapter) Rollback(ctx context.Context, backupID, target string) error {
	if a.config.DryRun {
		a.logger.Printf("[DRY RUN] Would rollback %s from %s", target, backupID)
		return nil
	}
	if a.session == nil {
		return base.NewAdapterError(a.Name(), "Rollback", "session not connected", nil)
	}
	opCtx, cancel := a.config.WithTimeout(ctx)
	defer cancel()

	rows, err := a.session.Rows(opCtx,
		"SELECT table_name, row_key, column_name, original FROM "+BackupTable+" WHERE backup_id = ?", backupID)
	if err != nil {
		return base.NewAdapterError(a.Name(), "Rollback", "failed to read backup", err)
	}

	restored := 0
	for _, row := range rows {
		tableName, _ := row["table_name"].(string)
		if target != "" && tableName != target {
			continue
		}
		columnName, _ := row["column_name"].(string)
		rowKey, _ := row["row_key"].(string)

		table, errT := sqlstore.CQL.QuoteIdent(tableName)
		column, errC := sqlstore.CQL.QuoteIdent(columnName)
		if errT != nil || errC != nil {
			return base.NewAdapterError(a.Name(), "Rollback", "invalid identifier in backup", nil)
		}
		pk, args, err := decodeRowKey(rowKey)
		if err != nil {
			return base.NewAdapterError(a.Name(), "Rollback", "invalid row key in backup", err)
		}
		if err := a.session.Exec(opCtx, updateByKey(table, column, pk), append([]interface{}{row["original"]}, args...)...); err != nil {
			return base.NewAdapterError(a.Name(), "Rollback", "failed to restore row", err)
		}
		restored++
	}
	a.logger.Printf("Rolled back %d values from backup %s", restored, backupID)
	return nil
}

// VerifyMasking counts rows that still hold an original value.
func (a *Adapter) VerifyMasking(ctx context.Context, location string, findings []base.MaskingFinding) (bool, error) {
	if a.session == nil {
		return false, base.NewAdapterError(a.Name(), "VerifyMasking", "session not connected", nil)
	}
	opCtx, cancel := a.config.WithTimeout(ctx)
	defer cancel()

	for _, f := range findings {
		if f.Value == "" {
			continue
		}
		t, c := base.SplitColumn(f.Location, location)
		table, err := sqlstore.CQL.QuoteIdent(t)
		if err != nil {
			return false, base.NewAdapterError(a.Name(), "VerifyMasking", "invalid table name", err)
		}
		column, err := sqlstore.CQL.QuoteIdent(c)
		if err != nil {
			return false, base.NewAdapterError(a.Name(), "VerifyMasking", "invalid column name", err)
		}
		rows, err := a.session.Rows(opCtx,
			fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s = ? ALLOW FILTERING", table, column), f.Value)
		if err != nil {
			return false, base.NewAdapterError(a.Name(), "VerifyMasking", "count query failed", err)
		}
		if len(rows) > 0 && toInt64(rows[0]["count"]) > 0 {
			a.logger.Printf("Verification failed: %s.%s still holds an original value", t, c)
			return false, nil
		}
	}
	return true, nil
}

// primaryKey returns the partition and clustering columns of table, or the
// primary_key option when set.
func (a *Adapter) primaryKey(ctx context.Context, table string) ([]string, error) {
	if opt := a.config.OptionString("primary_key", ""); opt != "" {
		var pk []string
		for _, c := range strings.Split(opt, ",") {
			pk = append(pk, strings.TrimSpace(c))
		}
		return pk, nil
	}

	keyspace, name := a.keyspace, table
	if i := strings.LastIndex(table, "."); i >= 0 {
		keyspace, name = table[:i], table[i+1:]
	}
	rows, err := a.session.Rows(ctx,
		"SELECT column_name, kind, position FROM system_schema.columns WHERE keyspace_name = ? AND table_name = ?",
		keyspace, name)
	if err != nil {
		return nil, err
	}

	type keyCol struct {
		name      string
		partition bool
		position  int64
	}
	var cols []keyCol
	for _, r := range rows {
		kind, _ := r["kind"].(string)
		if kind != "partition_key" && kind != "clustering" {
			continue
		}
		colName, _ := r["column_name"].(string)
		cols = append(cols, keyCol{name: colName, partition: kind == "partition_key", position: toInt64(r["position"])})
	}
	if len(cols) == 0 {
		return nil, fmt.Errorf("no primary key found")
	}
	sort.Slice(cols, func(i, j int) bool {
		if cols[i].partition != cols[j].partition {
			return cols[i].partition
		}
		return cols[i].position < cols[j].position
	})
	pk := make([]string, len(cols))
	for i, c := range cols {
		pk[i] = c.name
	}
	return pk, nil
}

func selectByValue(table, column string, pk []string) string {
	cols := make([]string, len(pk))
	for i, c := range pk {
		cols[i] = quote(c)
	}
	return fmt.Sprintf("SELECT %s FROM %s WHERE %s = ? ALLOW FILTERING", strings.Join(cols, ", "), table, column)
}

func updateByKey(table, column string, pk []string) string {
	conds := make([]string, len(pk))
	for i, c := range pk {
		conds[i] = quote(c) + " = ?"
	}
	return fmt.Sprintf("UPDATE %s SET %s = ? WHERE %s", table, column, strings.Join(conds, " AND "))
}

func quote(ident string) string {
	q, err := sqlstore.CQL.QuoteIdent(ident)
	if err != nil {
		return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
	}
	return q
}

// keyArgs extracts the primary key values of row in pk order and encodes
// them as the backup row key.
func keyArgs(row map[string]interface{}, pk []string) (string, []interface{}, error) {
	args := make([]interface{}, len(pk))
	pairs := make([][2]interface{}, len(pk))
	for i, c := range pk {
		v, ok := row[c]
		if !ok {
			return "", nil, fmt.Errorf("row is missing key column %s", c)
		}
		if u, isUUID := v.(gocql.UUID); isUUID {
			v = u.String()
		}
		args[i] = v
		pairs[i] = [2]interface{}{c, v}
	}
	b, err := json.Marshal(pairs)
	if err != nil {
		return "", nil, err
	}
	return string(b), args, nil
}

func decodeRowKey(rowKey string) ([]string, []interface{}, error) {
	dec := json.NewDecoder(strings.NewReader(rowKey))
	dec.UseNumber()
	var pairs [][2]interface{}
	if err := dec.Decode(&pairs); err != nil {
		return nil, nil, err
	}
	pk := make([]string, len(pairs))
	args := make([]interface{}, len(pairs))
	for i, p := range pairs {
		name, ok := p[0].(string)
		if !ok {
			return nil, nil, fmt.Errorf("invalid key column")
		}
		pk[i] = name
		args[i] = p[1]
		if n, ok := p[1].(json.Number); ok {
			if iv, err := n.Int64(); err == nil {
				args[i] = iv
			} else if fv, err := n.Float64(); err == nil {
				args[i] = fv
			}
		}
	}
	return pk, args, nil
}

func toInt64(v interface{}) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case int32:
		return int64(n)
	}
	return 0
}

// parseConnectionURL splits cassandra://host1,host2:port/keyspace.
func parseConnectionURL(url string) ([]string, string, error) {
	url = strings.TrimPrefix(url, "cassandra://")
	parts := strings.Split(url, "/")
	if len(parts) != 2 {
		return nil, "", fmt.Errorf("invalid connection URL format (expected: cassandra://host:port/keyspace)")
	}
	hosts := strings.Split(parts[0], ",")
	keyspace := parts[1]
	if parts[0] == "" || keyspace == "" {
		return nil, "", fmt.Errorf("invalid connection URL: missing hosts or keyspace")
	}
	return hosts, keyspace, nil
}

// parseConsistency converts string to gocql.Consistency
func parseConsistency(level string) gocql.Consistency {
	switch strings.ToUpper(level) {
	case "ANY":
		return gocql.Any
	case "ONE":
		return gocql.One
	case "TWO":
		return gocql.Two
	case "THREE":
		return gocql.Three
	case "ALL":
		return gocql.All
	case "LOCAL_QUORUM":
		return gocql.LocalQuorum
	case "EACH_QUORUM":
		return gocql.EachQuorum
	case "LOCAL_ONE":
		return gocql.LocalOne
	default:
		return gocql.Quorum
	}
}
