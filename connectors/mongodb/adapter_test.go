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

package mongodb

import (
	"context"
	"errors"
	"io"
	"log"
	"reflect"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/bharat-parihar/ARC-Hawk/connectors/base"
	"github.com/bharat-parihar/ARC-Hawk/masking"
)

var _ base.Adapter = (*Adapter)(nil)

type updateCall struct {
	coll           string
	filter, update bson.D
}

// fakeDB keeps collections as field->value->count maps.
type fakeDB struct {
	docs      map[string]map[string]map[string]int64
	updates   []updateCall
	copies    [][2]string
	updateErr error
	closed    bool
}

func newFakeDB() *fakeDB {
	return &fakeDB{docs: map[string]map[string]map[string]int64{
		"customers": {
			"email":         {"john@example.com": 2},
			"profile.phone": {"9876543210": 1},
		},
	}}
}

func (f *fakeDB) UpdateMany(_ context.Context, coll string, filter, update bson.D) (int64, error) {
	if f.updateErr != nil {
		return 0, f.updateErr
	}
	f.updates = append(f.updates, updateCall{coll, filter, update})
	field, value := filter[0].Key, filter[0].Value.(string)
	n := f.docs[coll][field][value]
	if n > 0 {
		masked := update[0].Value.(bson.D)[0].Value.(string)
		delete(f.docs[coll][field], value)
		f.docs[coll][field][masked] += n
	}
	return n, nil
}

func (f *fakeDB) CountDocuments(_ context.Context, coll string, filter bson.D) (int64, error) {
	return f.docs[coll][filter[0].Key][filter[0].Value.(string)], nil
}

func (f *fakeDB) CopyCollection(_ context.Context, src, dst string) error {
	f.copies = append(f.copies, [2]string{src, dst})
	return nil
}

func (f *fakeDB) Close(context.Context) error {
	f.closed = true
	return nil
}

func newTestAdapter(db collections, cfg *base.AdapterConfig) *Adapter {
	a := NewAdapter()
	a.logger = log.New(io.Discard, "", 0)
	a.now = func() time.Time { return time.Date(2025, 3, 1, 10, 30, 0, 0, time.UTC) }
	a.attach(db, cfg)
	return a
}

func testFindings() []base.MaskingFinding {
	return []base.MaskingFinding{
		{Value: "john@example.com", PIIType: "EMAIL_ADDRESS", Location: "email"},
		{Value: "john@example.com", PIIType: "EMAIL_ADDRESS", Location: "email"},
		{Value: "9876543210", PIIType: "IN_PHONE", Location: "profile.phone"},
		{Value: "gone@corp.in", PIIType: "EMAIL_ADDRESS", Location: "email"},
		{Value: "x", PIIType: "EMAIL_ADDRESS", Location: "$where"},
	}
}

func TestAdapter_NameType(t *testing.T) {
	a := NewAdapter()
	if got := a.Name(); got != "mongodb" {
		t.Errorf("Name() = %q, want %q", got, "mongodb")
	}
	if got := a.Type(); got != "mongodb" {
		t.Errorf("Type() = %q, want %q", got, "mongodb")
	}
}

func TestBuildURI(t *testing.T) {
	tests := []struct {
		name   string
		config *base.AdapterConfig
		want   string
	}{
		{"explicit", &base.AdapterConfig{ConnectionURL: "mongodb+srv://c.example.net/app"}, "mongodb+srv://c.example.net/app"},
		{"defaults", &base.AdapterConfig{}, "mongodb://localhost:27017/"},
		{
			"options",
			&base.AdapterConfig{
				Options:     map[string]interface{}{"hosts": "a:27017,b:27017", "auth_database": "admin", "replica_set": "rs0", "tls": true},
				Credentials: map[string]string{"username": "hawk", "password": "p@ss"},
			},
			"mongodb://hawk:p%40ss@a:27017,b:27017/?authSource=admin&replicaSet=rs0&tls=true",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := BuildURI(tt.config)
			if err != nil || got != tt.want {
				t.Errorf("BuildURI() = %q, %v, want %q", got, err, tt.want)
			}
		})
	}
}

func TestValidField(t *testing.T) {
	for path, want := range map[string]bool{
		"email": true, "profile.phone": true, "": false, "$where": false, "a.$b": false, "a..b": false,
	} {
		if got := validField(path); got != want {
			t.Errorf("validField(%q) = %v, want %v", path, got, want)
		}
	}
}

func TestAdapter_MaskVerifyRollback(t *testing.T) {
	db := newFakeDB()
	a := newTestAdapter(db, &base.AdapterConfig{Name: "crm", BackupEnabled: true})
	ctx := context.Background()

	result := a.MaskFindings(ctx, testFindings(), masking.PartialStrategy{}, "customers")
	if result.Status != base.StatusCompleted {
		t.Fatalf("Status = %s (%s)", result.Status, result.ErrorMessage)
	}
	if result.MaskedCount != 3 || result.FailedCount != 2 {
		t.Errorf("Masked/Failed = %d/%d, want 3/2", result.MaskedCount, result.FailedCount)
	}
	if result.BackupLocation != "customers_backup_20250301_103000" {
		t.Errorf("BackupLocation = %q", result.BackupLocation)
	}
	if len(db.updates) != 3 {
		t.Errorf("UpdateMany calls = %d, want 3 (duplicates collapsed, operator field skipped)", len(db.updates))
	}
	wantUpdate := bson.D{{Key: "$set", Value: bson.D{{Key: "profile.phone", Value: "******3210"}}}}
	if !reflect.DeepEqual(db.updates[1].update, wantUpdate) {
		t.Errorf("update = %v, want %v", db.updates[1].update, wantUpdate)
	}

	ok, err := a.VerifyMasking(ctx, "customers", testFindings()[:3])
	if err != nil || !ok {
		t.Errorf("VerifyMasking() = %v, %v, want true", ok, err)
	}
	db.docs["customers"]["email"]["john@example.com"] = 1
	if ok, _ := a.VerifyMasking(ctx, "customers", testFindings()[:3]); ok {
		t.Error("VerifyMasking() should fail once a value reappears")
	}

	if err := a.Rollback(ctx, result.BackupLocation, "customers"); err != nil {
		t.Fatalf("Rollback() error = %v", err)
	}
	want := [][2]string{
		{"customers", "customers_backup_20250301_103000"},
		{"customers_backup_20250301_103000", "customers"},
	}
	if !reflect.DeepEqual(db.copies, want) {
		t.Errorf("copies = %v, want %v", db.copies, want)
	}
}

func TestAdapter_DryRun(t *testing.T) {
	db := newFakeDB()
	a := newTestAdapter(db, &base.AdapterConfig{BackupEnabled: true, DryRun: true})
	result := a.MaskFindings(context.Background(), testFindings(), masking.RedactStrategy{}, "customers")
	if result.MaskedCount != 3 || result.FailedCount != 2 || result.BackupLocation != "dry_run_backup" {
		t.Errorf("result = %+v", result)
	}
	if len(db.updates) != 0 || len(db.copies) != 0 {
		t.Error("dry run wrote to the database")
	}
	if err := a.Rollback(context.Background(), "dry_run_backup", "customers"); err != nil {
		t.Errorf("dry-run Rollback() error = %v", err)
	}
}

func TestAdapter_UpdateError(t *testing.T) {
	db := newFakeDB()
	db.updateErr = errors.New("not primary")
	a := newTestAdapter(db, &base.AdapterConfig{})
	result := a.MaskFindings(context.Background(), testFindings(), masking.RedactStrategy{}, "customers")
	if result.Status != base.StatusFailed || result.FailedCount != 5 || result.ErrorMessage != "not primary" {
		t.Errorf("result = %+v", result)
	}
}

func TestAdapter_NotConnected(t *testing.T) {
	a := NewAdapter()
	if r := a.MaskFindings(context.Background(), testFindings(), masking.RedactStrategy{}, "c"); r.Status != base.StatusFailed {
		t.Errorf("Status = %s, want failed", r.Status)
	}
	if err := a.Rollback(context.Background(), "b", "c"); err == nil {
		t.Error("Rollback() expected error")
	}
	if _, err := a.VerifyMasking(context.Background(), "c", nil); err == nil {
		t.Error("VerifyMasking() expected error")
	}
	if err := a.Disconnect(context.Background()); err != nil {
		t.Errorf("Disconnect() error = %v", err)
	}
}

func TestAdapter_Disconnect(t *testing.T) {
	db := newFakeDB()
	a := newTestAdapter(db, &base.AdapterConfig{})
	if err := a.Disconnect(context.Background()); err != nil || !db.closed {
		t.Errorf("Disconnect() = %v, closed = %v", err, db.closed)
	}
}
