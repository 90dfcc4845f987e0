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
	"sync"

	"gorm.io/gorm"
)

var (
	modelsMu         sync.Mutex
	registeredModels []any
)

// RegisterModels registers models for AutoMigrate.
func RegisterModels(models ...any) {
	modelsMu.Lock()
	defer modelsMu.Unlock()
	registeredModels = append(registeredModels, models...)
}

// AutoMigrate creates or updates the tables of every registered model.
func AutoMigrate(db *gorm.DB) error {
	modelsMu.Lock()
	models := append([]any(nil), registeredModels...)
	modelsMu.Unlock()
	if len(models) == 0 {
		return nil
	}
	return db.AutoMigrate(models...)
}
