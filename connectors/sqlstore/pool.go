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
	"database/sql"
	"time"

	"github.com/bharat-parihar/ARC-Hawk/connectors/base"
)

const (
	// DefaultMaxOpenConns is the default maximum number of open connections
	DefaultMaxOpenConns = 10
	// DefaultMaxIdleConns is the default maximum number of idle connections
	DefaultMaxIdleConns = 2
	// DefaultConnMaxLifetime is the default maximum connection lifetime
	DefaultConnMaxLifetime = 5 * time.Minute
	// PingTimeout bounds the connectivity check in Open.
	PingTimeout = 10 * time.Second
)

// Open opens a pool with driverName, applies the pool options from config
// and pings it. The pool is closed again when the ping fails.
func Open(ctx context.Context, driverName, dsn string, config *base.AdapterConfig) (*sql.DB, error) {
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, err
	}
	ConfigurePool(db, config)

	pingCtx, cancel := context.WithTimeout(ctx, PingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// ConfigurePool applies max_open_conns, max_idle_conns and
// conn_max_lifetime options.
func ConfigurePool(db *sql.DB, config *base.AdapterConfig) {
	connMaxLifetime := DefaultConnMaxLifetime
	if d, err := time.ParseDuration(config.OptionString("conn_max_lifetime", "")); err == nil {
		connMaxLifetime = d
	}
	db.SetMaxOpenConns(config.OptionInt("max_open_conns", DefaultMaxOpenConns))
	db.SetMaxIdleConns(config.OptionInt("max_idle_conns", DefaultMaxIdleConns))
	db.SetConnMaxLifetime(connMaxLifetime)
}
