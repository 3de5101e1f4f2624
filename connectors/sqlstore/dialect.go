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
	"fmt"
	"regexp"
	"strings"
)

// Dialect captures the SQL differences between supported databases.
type Dialect struct {
	Name        string
	quote       byte
	placeholder func(n int) string
}

// Postgres uses $n placeholders and double-quoted identifiers.
var Postgres = Dialect{
	Name:        "postgres",
	quote:       '"',
	placeholder: func(n int) string { return fmt.Sprintf("$%d", n) },
}

// MySQL uses ? placeholders and backtick-quoted identifiers.
var MySQL = Dialect{
	Name:        "mysql",
	quote:       '`',
	placeholder: func(int) string { return "?" },
}

// CQL is the Cassandra query language: ? placeholders and double-quoted,
// case-sensitive identifiers.
var CQL = Dialect{
	Name:        "cassandra",
	quote:       '"',
	placeholder: func(int) string { return "?" },
}

var identPart = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_$]*$`)

// Placeholder returns the n-th (1-based) bind parameter.
func (d Dialect) Placeholder(n int) string {
	return d.placeholder(n)
}

// QuoteIdent quotes a possibly schema-qualified identifier. Only plain
// identifier characters are accepted in each part.
func (d Dialect) QuoteIdent(name string) (string, error) {
	parts := strings.Split(name, ".")
	quoted := make([]string, len(parts))
	for i, p := range parts {
		if !identPart.MatchString(p) {
			return "", fmt.Errorf("invalid identifier %q", name)
		}
		quoted[i] = string(d.quote) + p + string(d.quote)
	}
	return strings.Join(quoted, "."), nil
}

// UpdateSQL sets column to the masked value wherever it equals the original.
func (d Dialect) UpdateSQL(table, column string) string {
	return fmt.Sprintf("UPDATE %s SET %s = %s WHERE %s = %s", table, column, d.Placeholder(1), column, d.Placeholder(2))
}

// CountSQL counts rows whose column still equals a value.
func (d Dialect) CountSQL(table, column string) string {
	return fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s = %s", table, column, d.Placeholder(1))
}

// BackupSQL snapshots table into backup.
func (d Dialect) BackupSQL(backup, table string) string {
	return fmt.Sprintf("CREATE TABLE %s AS SELECT * FROM %s", backup, table)
}
