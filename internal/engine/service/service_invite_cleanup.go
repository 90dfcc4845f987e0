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

package service

import (
	"context"

	"github.com/go-arcade/gatekeeper/internal/engine/repo"
	"github.com/go-arcade/gatekeeper/internal/pkg/telegram"
	"github.com/go-arcade/gatekeeper/pkg/log"
)

// CleanupResult summarizes one invite cleanup pass.
type CleanupResult struct {
	Expired int   `json:"expired"`
	Deleted int64 `json:"deleted"`
}

// InviteCleanup deletes expired, unused tokens and revokes their platform
// links.
type InviteCleanup struct {
	repos    *repo.Repositories
	platform telegram.Platform
	cfg      AccessConfig
	now      Clock
}

func NewInviteCleanup(repos *repo.Repositories, platform telegram.Platform, cfg AccessConfig, now Clock) *InviteCleanup {
	return &InviteCleanup{
		repos:    repos,
		platform: platform,
		cfg:      cfg,
		now:      now,
	}
}

func (c *InviteCleanup) Sweep(ctx context.Context) (CleanupResult, error) {
	var res CleanupResult
	now := c.now()
	tokens, err := c.repos.InviteToken.ListExpiredUnused(ctx, now, c.cfg.CleanupBatch)
	if err != nil {
		return res, err
	}
	res.Expired = len(tokens)
	if len(tokens) == 0 {
		return res, nil
	}

	ids := make([]uint64, 0, len(tokens))
	for _, t := range tokens {
		ids = append(ids, t.ID)
		if t.ChannelID == "" {
			continue
		}
		if err := c.platform.RevokeChatInviteLink(ctx, t.ChannelID, t.Link); err != nil {
			log.Debugw("revoke of expired invite link failed", "linkId", t.LinkID, "error", err)
		}
	}

	res.Deleted, err = c.repos.InviteToken.DeleteExpiredUnused(ctx, ids, now)
	if err != nil {
		return res, err
	}
	log.Infow("expired invite tokens cleaned up", "expired", res.Expired, "deleted", res.Deleted)
	return res, nil
}

// Job adapts Sweep to the cron scheduler.
func (c *InviteCleanup) Job(ctx context.Context) error {
	_, err := c.Sweep(ctx)
	return err
}
