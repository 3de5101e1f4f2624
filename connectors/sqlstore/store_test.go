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

package sqlstore

import (
	"context"
	"errors"
	"io"
	"log"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/bharat-parihar/ARC-Hawk/connectors/base"
	"github.com/bharat-parihar/ARC-Hawk/masking"
)

var fixedNow = time.Date(2025, 3, 1, 10, 30, 0, 0, time.UTC)

func newMockStore(t *testing.T, d Dialect, cfg *base.AdapterConfig) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	s := NewStore(d, log.New(io.Discard, "", 0))
	s.now = func() time.Time { return fixedNow }
	s.Attach(db, cfg)
	return s, mock
}

func TestDialect_QuoteIdent(t *testing.T) {
	tests := []struct {
		d       Dialect
		in      string
		want    string
		wantErr bool
	}{
		{Postgres, "users", `"users"`, false},
		{Postgres, "crm.users", `"crm"."users"`, false},
		{MySQL, "users", "`users`", false},
		{MySQL, "shop.orders_2024", "`shop`.`orders_2024`", false},
		{Postgres, `users"; DROP TABLE x; --`, "", true},
		{Postgres, "", "", true},
		{MySQL, "a..b", "", true},
		{Postgres, "1users", "", true},
	}
	for _, tt := range tests {
		got, err := tt.d.QuoteIdent(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("%s.QuoteIdent(%q) = %q, %v", tt.d.Name, tt.in, got, err)
		}
	}
}

func TestDialect_Statements(t *testing.T) {
	if got := Postgres.UpdateSQL(`"t"`, `"c"`); got != `UPDATE "t" SET "c" = $1 WHERE "c" = $2` {
		t.Errorf("UpdateSQL() = %q", got)
	}
	if got := MySQL.UpdateSQL("`t`", "`c`"); got != "UPDATE `t` SET `c` = ? WHERE `c` = ?" {
		t.Errorf("UpdateSQL() = %q", got)
	}
	if got := MySQL.CountSQL("`t`", "`c`"); got != "SELECT COUNT(*) FROM `t` WHERE `c` = ?" {
		t.Errorf("CountSQL() = %q", got)
	}
	if got := BackupName("users", fixedNow); got != "users_backup_20250301_103000_000000" {
		t.Errorf("BackupName() = %q", got)
	}
}

func TestBackupName_SameSecond(t *testing.T) {
	a := BackupName("users", fixedNow.Add(120*time.Millisecond))
	b := BackupName("users", fixedNow.Add(340*time.Millisecond))
	if a == b {
		t.Fatalf("backups within one second share the name %q", a)
	}
	if a != "users_backup_20250301_103000_120000" {
		t.Errorf("BackupName() = %q", a)
	}
}

func maskingFindings() []base.MaskingFinding {
	return []base.MaskingFinding{
		{Value: "john@example.com", PIIType: "EMAIL_ADDRESS", Location: "email"},
		{Value: "john@example.com", PIIType: "EMAIL_ADDRESS", Location: "users.email"},
		{Value: "9876543210", PIIType: "IN_PHONE", Location: "users.phone"},
		{Value: "gone@corp.in", PIIType: "EMAIL_ADDRESS", Location: "users.email"},
	}
}

func TestStore_MaskFindings(t *testing.T) {
	s, mock := newMockStore(t, Postgres, &base.AdapterConfig{Name: "pg-main", BackupEnabled: true})

	mock.ExpectExec(`CREATE TABLE "users_backup_20250301_103000_000000" AS SELECT * FROM "users"`).
		WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE "users" SET "email" = $1 WHERE "email" = $2`).
		WithArgs("[REDACTED]", "john@example.com").
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec(`UPDATE "users" SET "phone" = $1 WHERE "phone" = $2`).
		WithArgs("[REDACTED]", "9876543210").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE "users" SET "email" = $1 WHERE "email" = $2`).
		WithArgs("[REDACTED]", "gone@corp.in").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	result := s.MaskFindings(context.Background(), maskingFindings(), masking.RedactStrategy{}, "users")
	if result.Status != base.StatusCompleted {
		t.Fatalf("Status = %s (%s)", result.Status, result.ErrorMessage)
	}
	if result.MaskedCount != 3 || result.FailedCount != 1 {
		t.Errorf("Masked/Failed = %d/%d, want 3/1", result.MaskedCount, result.FailedCount)
	}
	if result.BackupLocation != "users_backup_20250301_103000_000000" {
		t.Errorf("BackupLocation = %q", result.BackupLocation)
	}
	if result.ApplyMode(true).Status != base.StatusFailed {
		t.Error("strict mode should fail a location with unmasked findings")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestStore_MaskFindings_MySQL(t *testing.T) {
	s, mock := newMockStore(t, MySQL, &base.AdapterConfig{Name: "shop"})

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE `shop`.`customers` SET `pan` = ? WHERE `pan` = ?").
		WithArgs("ABC****234F", "ABCDE1234F").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	findings := []base.MaskingFinding{{Value: "ABCDE1234F", PIIType: "IN_PAN", Location: "shop.customers.pan"}}
	result := s.MaskFindings(context.Background(), findings, masking.PartialStrategy{}, "customers")
	if result.Status != base.StatusCompleted || result.MaskedCount != 1 || result.BackupLocation != "" {
		t.Errorf("result = %+v", result)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestStore_MaskFindings_UpdateErrorRollsBack(t *testing.T) {
	s, mock := newMockStore(t, Postgres, &base.AdapterConfig{})

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE "users" SET "email" = $1 WHERE "email" = $2`).
		WithArgs("[REDACTED]", "john@example.com").
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec(`UPDATE "users" SET "phone" = $1 WHERE "phone" = $2`).
		WillReturnError(errors.New("lock timeout"))
	mock.ExpectRollback()

	result := s.MaskFindings(context.Background(), maskingFindings(), masking.RedactStrategy{}, "users")
	if result.Status != base.StatusFailed || result.FailedCount != 4 || result.MaskedCount != 0 {
		t.Errorf("result = %+v", result)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestStore_MaskFindings_BackupFailure(t *testing.T) {
	s, mock := newMockStore(t, Postgres, &base.AdapterConfig{BackupEnabled: true})
	mock.ExpectExec(`CREATE TABLE "users_backup_20250301_103000_000000" AS SELECT * FROM "users"`).
		WillReturnError(errors.New("permission denied"))

	result := s.MaskFindings(context.Background(), maskingFindings(), masking.RedactStrategy{}, "users")
	if result.Status != base.StatusFailed || result.FailedCount != 4 {
		t.Errorf("result = %+v", result)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestStore_MaskFindings_InvalidIdentifier(t *testing.T) {
	s, mock := newMockStore(t, Postgres, &base.AdapterConfig{})
	mock.ExpectBegin()
	mock.ExpectCommit()

	findings := []base.MaskingFinding{
		{Value: "john@example.com", PIIType: "EMAIL_ADDRESS", Location: `users.e-mail`},
		{Value: "9876543210", PIIType: "IN_PHONE", Location: "phone"},
	}
	result := s.MaskFindings(context.Background(), findings, masking.RedactStrategy{}, "")
	if result.Status != base.StatusCompleted || result.FailedCount != 2 || result.MaskedCount != 0 {
		t.Errorf("result = %+v", result)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestStore_MaskFindings_DryRun(t *testing.T) {
	s, mock := newMockStore(t, Postgres, &base.AdapterConfig{BackupEnabled: true, DryRun: true})
	mock.ExpectQuery(`SELECT COUNT(*) FROM "users" WHERE "email" = $1`).
		WithArgs("john@example.com").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))
	mock.ExpectQuery(`SELECT COUNT(*) FROM "users" WHERE "phone" = $1`).
		WithArgs("9876543210").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectQuery(`SELECT COUNT(*) FROM "users" WHERE "email" = $1`).
		WithArgs("gone@corp.in").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))

	result := s.MaskFindings(context.Background(), maskingFindings(), masking.RedactStrategy{}, "users")
	if result.Status != base.StatusCompleted || result.MaskedCount != 3 || result.FailedCount != 1 {
		t.Errorf("result = %+v", result)
	}
	if result.BackupLocation != "dry_run_backup" {
		t.Errorf("BackupLocation = %q", result.BackupLocation)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestStore_Rollback(t *testing.T) {
	s, mock := newMockStore(t, Postgres, &base.AdapterConfig{})
	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM "users"`).WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectExec(`INSERT INTO "users" SELECT * FROM "users_backup_20250301_103000"`).WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectCommit()

	if err := s.Rollback(context.Background(), "users_backup_20250301_103000", "users"); err != nil {
		t.Fatalf("Rollback() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestStore_RollbackFailure(t *testing.T) {
	s, mock := newMockStore(t, Postgres, &base.AdapterConfig{Name: "pg"})
	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM "users"`).WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectExec(`INSERT INTO "users" SELECT * FROM "users_backup_x"`).WillReturnError(errors.New("relation does not exist"))
	mock.ExpectRollback()

	err := s.Rollback(context.Background(), "users_backup_x", "users")
	var adapterErr *base.AdapterError
	if !errors.As(err, &adapterErr) || adapterErr.Operation != "Rollback" {
		t.Fatalf("Rollback() error = %v, want AdapterError", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}

	if err := s.Rollback(context.Background(), "x; DROP", "users"); err == nil {
		t.Error("Rollback() accepted an invalid backup name")
	}
}

func TestStore_VerifyMasking(t *testing.T) {
	s, mock := newMockStore(t, Postgres, &base.AdapterConfig{})
	mock.ExpectQuery(`SELECT COUNT(*) FROM "users" WHERE "email" = $1`).
		WithArgs("john@example.com").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectQuery(`SELECT COUNT(*) FROM "users" WHERE "phone" = $1`).
		WithArgs("9876543210").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	ok, err := s.VerifyMasking(context.Background(), "users", maskingFindings()[:3])
	if err != nil || ok {
		t.Errorf("VerifyMasking() = %v, %v, want false", ok, err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestStore_NotConnected(t *testing.T) {
	s := NewStore(Postgres, log.New(io.Discard, "", 0))
	if s.Name() != "postgres" || s.Type() != "postgres" {
		t.Errorf("Name/Type = %q/%q", s.Name(), s.Type())
	}
	s.config.BackupEnabled = true
	if _, err := s.CreateBackup(context.Background(), "users"); err == nil {
		t.Error("CreateBackup() expected error without a database")
	}
	if r := s.MaskFindings(context.Background(), maskingFindings(), masking.RedactStrategy{}, "users"); r.Status != base.StatusFailed {
		t.Errorf("Status = %s, want failed", r.Status)
	}
	if err := s.Rollback(context.Background(), "b", "users"); err == nil {
		t.Error("Rollback() expected error without a database")
	}
	if _, err := s.VerifyMasking(context.Background(), "users", nil); err == nil {
		t.Error("VerifyMasking() expected error without a database")
	}
	if err := s.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}
