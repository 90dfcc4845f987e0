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

package repo

import (
	"context"

	"github.com/go-arcade/gatekeeper/pkg/database"
	"gorm.io/gorm"
)

// Repositories groups the gatekeeper stores.
type Repositories struct {
	db          database.IDatabase
	Entitlement IEntitlementRepository
	InviteToken IInviteTokenRepository
	Subscriber  ISubscriberRepository
	Channel     IChannelRepository
}

func NewRepositories(db database.IDatabase) *Repositories {
	return &Repositories{
		db:          db,
		Entitlement: NewEntitlementRepo(db),
		InviteToken: NewInviteTokenRepo(db),
		Subscriber:  NewSubscriberRepo(db),
		Channel:     NewChannelRepo(db),
	}
}

// GetDB returns the underlying database.
func (r *Repositories) GetDB() database.IDatabase {
	return r.db
}

// Transaction runs fn with repositories bound to one database transaction.
// Returning an error from fn rolls every write back.
func (r *Repositories) Transaction(ctx context.Context, fn func(tx *Repositories) error) error {
	return r.db.Database().WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(NewRepositories(database.NewGormDB(tx)))
	})
}
