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

// Package mysql masks PII stored in MySQL 5.7+ and 8.0+ tables.
package mysql

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/bharat-parihar/ARC-Hawk/connectors/base"
	"github.com/bharat-parihar/ARC-Hawk/connectors/sqlstore"
)

// Adapter implements base.Adapter for MySQL.
type Adapter struct {
	*sqlstore.Store
	logger *log.Logger
}

// NewAdapter creates a new MySQL adapter instance
func NewAdapter() *Adapter {
	logger := log.New(os.Stdout, "[MASK_MYSQL] ", log.LstdFlags)
	return &Adapter{
		Store:  sqlstore.NewStore(sqlstore.MySQL, logger),
		logger: logger,
	}
}

// Connect opens and pings the connection pool.
func (a *Adapter) Connect(ctx context.Context, config *base.AdapterConfig) error {
	dsn, err := BuildDSN(config)
	if err != nil {
		return base.NewAdapterError(config.Name, "Connect", "failed to build DSN", err)
	}
	db, err := sqlstore.Open(ctx, "mysql", dsn, config)
	if err != nil {
		return base.NewAdapterError(config.Name, "Connect", "failed to connect", err)
	}
	a.Attach(db, config)
	a.logger.Printf("Connected to MySQL: %s", a.Name())
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
	a.logger.Printf("Disconnected from MySQL: %s", a.Name())
	return nil
}

// BuildDSN parses ConnectionURL (or assembles host, port and database
// options) and enforces the session settings masking relies on: UTC time
// parsing, utf8mb4, no multi-statements and server-side placeholders.
func BuildDSN(config *base.AdapterConfig) (string, error) {
	var cfg *mysql.Config
	if config.ConnectionURL != "" {
		parsed, err := mysql.ParseDSN(config.ConnectionURL)
		if err != nil {
			return "", err
		}
		cfg = parsed
	} else {
		database := config.OptionString("database", "")
		if database == "" {
			return "", fmt.Errorf("database name is required")
		}
		cfg = mysql.NewConfig()
		cfg.Net = "tcp"
		cfg.Addr = fmt.Sprintf("%s:%d", config.OptionString("host", "localhost"), config.OptionInt("port", 3306))
		cfg.DBName = database
		if tls := config.OptionString("tls", ""); tls != "" {
			cfg.TLSConfig = tls
		}
	}

	if cfg.User == "" {
		cfg.User = config.Credentials["username"]
		cfg.Passwd = config.Credentials["password"]
	}
	cfg.ParseTime = true
	cfg.Loc = time.UTC
	cfg.MultiStatements = false
	cfg.InterpolateParams = false
	if cfg.Collation == "" || cfg.Collation == "utf8mb4_general_ci" {
		cfg.Collation = "utf8mb4_unicode_ci"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	return cfg.FormatDSN(), nil
}
