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

	"github.com/go-arcade/gatekeeper/pkg/log"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/plugin/dbresolver"
)

// newMySQLConnection opens MySQL and registers DBResolver when primaries or
// replicas are configured.
func newMySQLConnection(mysqlCfg MySQLConfig, commonCfg Database) (*gorm.DB, error) {
	port := mysqlCfg.Port
	if port == "" {
		port = "3306"
	}
	dsn := buildMySQLDSN(mysqlCfg.User, mysqlCfg.Password, mysqlCfg.Host, port, mysqlCfg.DBName)

	db, err := gorm.Open(mysql.Open(dsn), gormConfig(commonCfg))
	if err != nil {
		return nil, fmt.Errorf("failed to open MySQL connection: %w", err)
	}

	hasPrimary := len(mysqlCfg.Primary) > 0
	hasReplicas := len(mysqlCfg.Replicas) > 0

	if hasPrimary || hasReplicas {
		resolverConfig := dbresolver.Config{
			TraceResolverMode: commonCfg.OutPut,
		}
		if hasPrimary {
			resolverConfig.Sources, err = buildDialectors(mysqlCfg.Primary)
			if err != nil {
				return nil, fmt.Errorf("failed to build primary dialectors: %w", err)
			}
		}
		if hasReplicas {
			resolverConfig.Replicas, err = buildDialectors(mysqlCfg.Replicas)
			if err != nil {
				return nil, fmt.Errorf("failed to build replicas dialectors: %w", err)
			}
		}

		err = db.Use(dbresolver.Register(resolverConfig).
			SetConnMaxIdleTime(GetConnMaxIdleTime(commonCfg.MaxIdleTime)).
			SetConnMaxLifetime(GetConnMaxLifetime(commonCfg.MaxLifetime)).
			SetMaxIdleConns(commonCfg.MaxIdleConns).
			SetMaxOpenConns(commonCfg.MaxOpenConns))
		if err != nil {
			return nil, fmt.Errorf("failed to register DBResolver plugin: %w", err)
		}
		log.Infow("MySQL read-write separation enabled",
			"sources", len(mysqlCfg.Primary),
			"replicas", len(mysqlCfg.Replicas),
		)
	}

	if err := configurePool(db, commonCfg); err != nil {
		return nil, err
	}
	return db, nil
}
