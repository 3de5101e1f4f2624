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

package cassandra

import (
	"context"
	"errors"
	"io"
	"log"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/gocql/gocql"

	"github.com/bharat-parihar/ARC-Hawk/connectors/base"
	"github.com/bharat-parihar/ARC-Hawk/masking"
)

var _ base.Adapter = (*Adapter)(nil)

type execCall struct {
	stmt string
	args []interface{}
}

type fakeSession struct {
	execs   []execCall
	rows    func(stmt string, args []interface{}) ([]map[string]interface{}, error)
	execErr func(stmt string) error
	closed  bool
}

func (f *fakeSession) Exec(_ context.Context, stmt string, args ...interface{}) error {
	if f.execErr != nil {
		if err := f.execErr(stmt); err != nil {
			return err
		}
	}
	f.execs = append(f.execs, execCall{stmt: stmt, args: args})
	return nil
}

func (f *fakeSession) Rows(_ context.Context, stmt string, args ...interface{}) ([]map[string]interface{}, error) {
	if f.rows == nil {
		return nil, nil
	}
	return f.rows(stmt, args)
}

func (f *fakeSession) Close() { f.closed = true }

func (f *fakeSession) execsWithPrefix(prefix string) []execCall {
	var out []execCall
	for _, e := range f.execs {
		if strings.HasPrefix(e.stmt, prefix) {
			out = append(out, e)
		}
	}
	return out
}

func newTestAdapter(s session, cfg *base.AdapterConfig) *Adapter {
	a := NewAdapter()
	a.logger = log.New(io.Discard, "", 0)
	a.now = func() time.Time { return time.Date(2025, 3, 1, 10, 30, 0, 0, time.UTC) }
	a.attach(s, "crm", cfg)
	return a
}

// customerRows serves the schema lookup and the value scan for the
// customers table.
func customerRows(stmt string, args []interface{}) ([]map[string]interface{}, error) {
	switch {
	case strings.HasPrefix(stmt, "SELECT column_name, kind, position FROM system_schema.columns"):
		return []map[string]interface{}{
			{"column_name": "email", "kind": "regular", "position": -1},
			{"column_name": "created", "kind": "clustering", "position": 0},
			{"column_name": "id", "kind": "partition_key", "position": 0},
		}, nil
	case strings.HasPrefix(stmt, `SELECT "id", "created" FROM "customers" WHERE "email" = ?`):
		if args[0] == "john@example.com" {
			return []map[string]interface{}{
				{"id": int64(1), "created": "2024-01-01"},
				{"id": int64(7), "created": "2024-02-01"},
			}, nil
		}
		return nil, nil
	}
	return nil, errors.New("unexpected query: " + stmt)
}

func TestAdapter_NameType(t *testing.T) {
	a := NewAdapter()
	if a.logger == nil {
		t.Error("expected logger to be initialized")
	}
	if got := a.Name(); got != "cassandra" {
		t.Errorf("Name() = %q, want %q", got, "cassandra")
	}
	if got := a.Type(); got != "cassandra" {
		t.Errorf("Type() = %q, want %q", got, "cassandra")
	}
	a.config = &base.AdapterConfig{Name: "events"}
	if got := a.Name(); got != "events" {
		t.Errorf("Name() = %q, want %q", got, "events")
	}
}

func TestParseConnectionURL(t *testing.T) {
	tests := []struct {
		url      string
		hosts    []string
		keyspace string
		wantErr  bool
	}{
		{"cassandra://10.0.0.1,10.0.0.2:9042/crm", []string{"10.0.0.1", "10.0.0.2:9042"}, "crm", false},
		{"localhost/ks", []string{"localhost"}, "ks", false},
		{"cassandra://host", nil, "", true},
		{"cassandra://host/", nil, "", true},
		{"cassandra:///ks", nil, "", true},
	}
	for _, tt := range tests {
		hosts, ks, err := parseConnectionURL(tt.url)
		if (err != nil) != tt.wantErr {
			t.Errorf("parseConnectionURL(%q) error = %v", tt.url, err)
			continue
		}
		if !reflect.DeepEqual(hosts, tt.hosts) || ks != tt.keyspace {
			t.Errorf("parseConnectionURL(%q) = %v, %q", tt.url, hosts, ks)
		}
	}
}

func TestParseConsistency(t *testing.T) {
	tests := map[string]gocql.Consistency{
		"one":          gocql.One,
		"LOCAL_QUORUM": gocql.LocalQuorum,
		"all":          gocql.All,
		"bogus":        gocql.Quorum,
	}
	for in, want := range tests {
		if got := parseConsistency(in); got != want {
			t.Errorf("parseConsistency(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestAdapter_MaskFindings(t *testing.T) {
	fs := &fakeSession{rows: customerRows}
	a := newTestAdapter(fs, &base.AdapterConfig{Name: "crm", BackupEnabled: true})

	findings := []base.MaskingFinding{
		{Value: "john@example.com", PIIType: "EMAIL_ADDRESS", Location: "email"},
		{Value: "gone@corp.in", PIIType: "EMAIL_ADDRESS", Location: "customers.email"},
		{Value: "x", PIIType: "EMAIL_ADDRESS", Location: "customers.e-mail"},
	}
	result := a.MaskFindings(context.Background(), findings, masking.PartialStrategy{}, "customers")
	if result.Status != base.StatusCompleted {
		t.Fatalf("Status = %s (%s)", result.Status, result.ErrorMessage)
	}
	if result.MaskedCount != 1 || result.FailedCount != 2 {
		t.Errorf("Masked/Failed = %d/%d, want 1/2", result.MaskedCount, result.FailedCount)
	}
	if result.BackupLocation != "customers_backup_20250301_103000" {
		t.Errorf("BackupLocation = %q", result.BackupLocation)
	}

	if n := len(fs.execsWithPrefix("CREATE TABLE IF NOT EXISTS " + BackupTable)); n != 1 {
		t.Errorf("backup table created %d times", n)
	}
	backups := fs.execsWithPrefix("INSERT INTO " + BackupTable)
	if len(backups) != 2 {
		t.Fatalf("backup rows = %d, want 2", len(backups))
	}
	if backups[0].args[2] != `[["id",1],["created","2024-01-01"]]` || backups[0].args[4] != "john@example.com" {
		t.Errorf("backup args = %v", backups[0].args)
	}

	updates := fs.execsWithPrefix(`UPDATE "customers" SET "email" = ? WHERE "id" = ? AND "created" = ?`)
	if len(updates) != 2 {
		t.Fatalf("updates = %d, want 2", len(updates))
	}
	want := []interface{}{"jo****@example.com", int64(7), "2024-02-01"}
	if !reflect.DeepEqual(updates[1].args, want) {
		t.Errorf("update args = %v, want %v", updates[1].args, want)
	}
}

func TestAdapter_MaskFindings_DryRun(t *testing.T) {
	fs := &fakeSession{rows: customerRows}
	a := newTestAdapter(fs, &base.AdapterConfig{BackupEnabled: true, DryRun: true})

	findings := []base.MaskingFinding{{Value: "john@example.com", PIIType: "EMAIL_ADDRESS", Location: "email"}}
	result := a.MaskFindings(context.Background(), findings, masking.RedactStrategy{}, "customers")
	if result.MaskedCount != 1 || result.BackupLocation != "dry_run_backup" {
		t.Errorf("result = %+v", result)
	}
	if len(fs.execs) != 0 {
		t.Errorf("dry run executed %d statements", len(fs.execs))
	}
}

func TestAdapter_MaskFindings_UpdateFailure(t *testing.T) {
	fs := &fakeSession{
		rows: customerRows,
		execErr: func(stmt string) error {
			if strings.HasPrefix(stmt, "UPDATE") {
				return errors.New("write timeout")
			}
			return nil
		},
	}
	a := newTestAdapter(fs, &base.AdapterConfig{Options: map[string]interface{}{"primary_key": "id, created"}})

	findings := []base.MaskingFinding{{Value: "john@example.com", PIIType: "EMAIL_ADDRESS", Location: "email"}}
	result := a.MaskFindings(context.Background(), findings, masking.RedactStrategy{}, "customers")
	if result.Status != base.StatusFailed || result.FailedCount != 1 {
		t.Errorf("result = %+v", result)
	}
	if !strings.Contains(result.ErrorMessage, "write timeout") {
		t.Errorf("ErrorMessage = %q", result.ErrorMessage)
	}
}

func TestAdapter_Rollback(t *testing.T) {
	fs := &fakeSession{rows: func(stmt string, args []interface{}) ([]map[string]interface{}, error) {
		if !strings.HasPrefix(stmt, "SELECT table_name, row_key, column_name, original FROM "+BackupTable) {
			return nil, errors.New("unexpected query")
		}
		return []map[string]interface{}{
			{"table_name": "customers", "row_key": `[["id",7],["created","2024-02-01"]]`, "column_name": "email", "original": "john@example.com"},
			{"table_name": "orders", "row_key": `[["id",3]]`, "column_name": "card", "original": "4532015112830366"},
		}, nil
	}}
	a := newTestAdapter(fs, &base.AdapterConfig{})

	if err := a.Rollback(context.Background(), "customers_backup_20250301_103000", "customers"); err != nil {
		t.Fatalf("Rollback() error = %v", err)
	}
	if len(fs.execs) != 1 {
		t.Fatalf("restored %d rows, want 1", len(fs.execs))
	}
	e := fs.execs[0]
	if e.stmt != `UPDATE "customers" SET "email" = ? WHERE "id" = ? AND "created" = ?` {
		t.Errorf("stmt = %q", e.stmt)
	}
	if !reflect.DeepEqual(e.args, []interface{}{"john@example.com", int64(7), "2024-02-01"}) {
		t.Errorf("args = %v", e.args)
	}

	fs.execs = nil
	if err := a.Rollback(context.Background(), "customers_backup_20250301_103000", ""); err != nil {
		t.Fatal(err)
	}
	if len(fs.execs) != 2 {
		t.Errorf("restored %d rows for all tables, want 2", len(fs.execs))
	}
}

func TestAdapter_VerifyMasking(t *testing.T) {
	remaining := int64(0)
	fs := &fakeSession{rows: func(stmt string, args []interface{}) ([]map[string]interface{}, error) {
		if stmt != `SELECT COUNT(*) FROM "customers" WHERE "email" = ? ALLOW FILTERING` {
			return nil, errors.New("unexpected query: " + stmt)
		}
		return []map[string]interface{}{{"count": remaining}}, nil
	}}
	a := newTestAdapter(fs, &base.AdapterConfig{})
	findings := []base.MaskingFinding{{Value: "john@example.com", Location: "email"}}

	if ok, err := a.VerifyMasking(context.Background(), "customers", findings); !ok || err != nil {
		t.Errorf("VerifyMasking() = %v, %v, want true", ok, err)
	}
	remaining = 1
	if ok, err := a.VerifyMasking(context.Background(), "customers", findings); ok || err != nil {
		t.Errorf("VerifyMasking() = %v, %v, want false", ok, err)
	}
}

func TestAdapter_NotConnected(t *testing.T) {
	a := NewAdapter()
	if r := a.MaskFindings(context.Background(), []base.MaskingFinding{{Value: "x"}}, masking.RedactStrategy{}, "t"); r.Status != base.StatusFailed {
		t.Errorf("Status = %s, want failed", r.Status)
	}
	if _, err := a.VerifyMasking(context.Background(), "t", nil); err == nil {
		t.Error("VerifyMasking() expected error")
	}
	if err := a.Rollback(context.Background(), "b", "t"); err == nil {
		t.Error("Rollback() expected error")
	}
	if err := a.Disconnect(context.Background()); err != nil {
		t.Errorf("Disconnect() error = %v", err)
	}
}

func TestAdapter_Disconnect(t *testing.T) {
	fs := &fakeSession{}
	a := newTestAdapter(fs, &base.AdapterConfig{})
	if err := a.Disconnect(context.Background()); err != nil || !fs.closed {
		t.Errorf("Disconnect() = %v, closed = %v", err, fs.closed)
	}
}
