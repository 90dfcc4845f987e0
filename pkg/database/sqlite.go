// Copyright 2025 Arcade Team
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package database

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

// newSQLiteConnection opens an embedded SQLite file. SQLite allows a single
// writer, so the pool is pinned to one connection.
func newSQLiteConnection(sqliteCfg SQLiteConfig, commonCfg Database) (*gorm.DB, error) {
	path := sqliteCfg.Path
	if path == "" {
		path = "gatekeeper.db"
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create sqlite dir: %w", err)
		}
	}

	db, err := gorm.Open(sqlite.Open(path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"), gormConfig(commonCfg))
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}

	commonCfg.MaxOpenConns = 1
	commonCfg.MaxIdleConns = 1
	if err := configurePool(db, commonCfg); err != nil {
		return nil, err
	}
	return db, nil
}

// OpenSQLite opens a SQLite database at path with the package defaults and
// migrates the registered models.
func OpenSQLite(path string) (IDatabase, error) {
	m, err := NewManager(Database{
		Type:        TypeSQLite,
		AutoMigrate: true,
		SQLite:      SQLiteConfig{Path: path},
	})
	if err != nil {
		return nil, err
	}
	return NewDatabaseAdapter(m), nil
}
