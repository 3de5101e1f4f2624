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

// Package postgres masks PII stored in PostgreSQL tables.
package postgres

import (
	"context"
	"fmt"
	"log"
	"net/url"
	"os"
	"strings"

	"github.com/lib/pq" // PostgreSQL driver

	"github.com/bharat-parihar/ARC-Hawk/connectors/base"
	"github.com/bharat-parihar/ARC-Hawk/connectors/sqlstore"
)

// Adapter implements base.Adapter for PostgreSQL.
type Adapter struct {
	*sqlstore.Store
	logger *log.Logger
}

// NewAdapter creates a new PostgreSQL adapter instance
func NewAdapter() *Adapter {
	logger := log.New(os.Stdout, "[MASK_POSTGRES] ", log.LstdFlags)
	return &Adapter{
		Store:  sqlstore.NewStore(sqlstore.Postgres, logger),
		logger: logger,
	}
}

// Connect opens and pings the connection pool.
func (a *Adapter) Connect(ctx context.Context, config *base.AdapterConfig) error {
	dsn, err := BuildDSN(config)
	if err != nil {
		return base.NewAdapterError(config.Name, "Connect", "failed to build DSN", err)
	}
	db, err := sqlstore.Open(ctx, "postgres", dsn, config)
	if err != nil {
		return base.NewAdapterError(config.Name, "Connect", "failed to connect", err)
	}
	a.Attach(db, config)
	a.logger.Printf("Connected to PostgreSQL: %s", a.Name())
	return nil
}

// Disconnect closes the connection pool
func (a *Adapter) Disconnect(ctx context.Context) error {
	if a.DB() == nil {
		return nil
	}
	if err := a.Close(); err != nil {
		return base.NewAdapterError(a.Name(), "Disconnect", "failed to close connection", err)
	}
	a.logger.Printf("Disconnected from PostgreSQL: %s", a.Name())
	return nil
}

// BuildDSN returns a lib/pq key/value connection string. A postgres:// URL
// in ConnectionURL is converted with pq.ParseURL; otherwise host, port,
// database and sslmode options are combined with the credentials.
func BuildDSN(config *base.AdapterConfig) (string, error) {
	if config.ConnectionURL != "" {
		if !strings.HasPrefix(config.ConnectionURL, "postgres://") && !strings.HasPrefix(config.ConnectionURL, "postgresql://") {
			return config.ConnectionURL, nil
		}
		u, err := url.Parse(config.ConnectionURL)
		if err != nil {
			return "", err
		}
		if u.User == nil && config.Credentials["username"] != "" {
			u.User = url.UserPassword(config.Credentials["username"], config.Credentials["password"])
		}
		return pq.ParseURL(u.String())
	}

	database := config.OptionString("database", "")
	if database == "" {
		return "", fmt.Errorf("database name is required")
	}
	parts := []string{
		kv("host", config.OptionString("host", "localhost")),
		kv("port", fmt.Sprint(config.OptionInt("port", 5432))),
		kv("dbname", database),
		kv("sslmode", config.OptionString("sslmode", "require")),
	}
	if user := config.Credentials["username"]; user != "" {
		parts = append(parts, kv("user", user))
	}
	if pw := config.Credentials["password"]; pw != "" {
		parts = append(parts, kv("password", pw))
	}
	return strings.Join(parts, " "), nil
}

// kv quotes a value for a key/value connection string.
func kv(key, value string) string {
	value = strings.ReplaceAll(value, `\`, `\\`)
	value = strings.ReplaceAll(value, `'`, `\'`)
	return key + "='" + value + "'"
}
