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
	"errors"
	"sort"
	"strconv"
	"sync"

	"github.com/go-arcade/gatekeeper/internal/engine/model"
	"github.com/go-arcade/gatekeeper/internal/engine/repo"
	"github.com/go-arcade/gatekeeper/internal/pkg/telegram"
	"github.com/go-arcade/gatekeeper/pkg/log"
)

// ChannelRegistry caches the chats the bot manages. The database stays the
// source of truth; the registry is reloaded, never written back.
type ChannelRegistry struct {
	mu        sync.RWMutex
	channels  map[string]model.Channel
	defaultID string
	repo      repo.IChannelRepository
}

func NewChannelRegistry(channels repo.IChannelRepository, defaultChannelID string) *ChannelRegistry {
	r := &ChannelRegistry{
		channels:  make(map[string]model.Channel),
		defaultID: defaultChannelID,
		repo:      channels,
	}
	if defaultChannelID != "" {
		r.channels[defaultChannelID] = model.Channel{
			ChatID:    defaultChannelID,
			Status:    model.ChannelStatusActive,
			BotStatus: model.BotStatusNotConnected,
			IsDefault: true,
		}
	}
	return r
}

// Sync records the bot's standing in the default channel, then reloads.
// The bot counts as connected when it administers the chat.
func (r *ChannelRegistry) Sync(ctx context.Context, platform telegram.Platform) error {
	if r.defaultID != "" {
		ch := &model.Channel{
			ChatID:    r.defaultID,
			ChatType:  model.ChatTypeChannel,
			Status:    model.ChannelStatusActive,
			BotStatus: botStatus(ctx, platform, r.defaultID),
			IsDefault: true,
		}
		if err := r.repo.Upsert(ctx, ch); err != nil {
			log.Warnw("failed to persist default channel", "chatId", r.defaultID, "error", err)
		}
	}
	return r.Load(ctx)
}

func botStatus(ctx context.Context, platform telegram.Platform, chatID string) string {
	me, err := platform.GetMe(ctx)
	if err != nil {
		if errors.Is(err, telegram.ErrNotConfigured) {
			return model.BotStatusNotConnected
		}
		log.Warnw("getMe failed", "error", err)
		return model.BotStatusError
	}
	member, err := platform.GetChatMember(ctx, chatID, me.ID)
	if err != nil {
		log.Warnw("bot membership check failed", "chatId", chatID, "error", err)
		return model.BotStatusError
	}
	if !member.IsAdmin() {
		log.Warnw("bot is not an administrator of the channel", "chatId", chatID, "status", member.Status)
		return model.BotStatusError
	}
	log.Infow("bot connected", "chatId", chatID, "bot", me.Username)
	return model.BotStatusConnected
}

// Load replaces the cache with the connected channels plus the default one.
func (r *ChannelRegistry) Load(ctx context.Context) error {
	list, err := r.repo.ListConnected(ctx)
	if err != nil {
		return err
	}
	next := make(map[string]model.Channel, len(list)+1)
	for _, ch := range list {
		next[ch.ChatID] = ch
	}
	if _, ok := next[r.defaultID]; r.defaultID != "" && !ok {
		next[r.defaultID] = model.Channel{
			ChatID:    r.defaultID,
			Status:    model.ChannelStatusActive,
			BotStatus: model.BotStatusNotConnected,
			IsDefault: true,
		}
	}

	r.mu.Lock()
	r.channels = next
	r.mu.Unlock()
	log.Infow("channel registry loaded", "channels", len(next))
	return nil
}

// IsManaged reports whether chatID is a managed channel.
func (r *ChannelRegistry) IsManaged(chatID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.channels[chatID]
	return ok
}

// IsManagedChat is IsManaged for a numeric chat id.
func (r *ChannelRegistry) IsManagedChat(chatID int64) bool {
	return r.IsManaged(strconv.FormatInt(chatID, 10))
}

func (r *ChannelRegistry) Default() string {
	return r.defaultID
}

// Resolve returns chatID, or the default channel when chatID is empty.
func (r *ChannelRegistry) Resolve(chatID string) (string, error) {
	if chatID == "" {
		chatID = r.defaultID
	}
	if chatID == "" || !r.IsManaged(chatID) {
		return "", ErrChannelNotManaged
	}
	return chatID, nil
}

// List returns the managed channels ordered by chat id.
func (r *ChannelRegistry) List() []model.Channel {
	r.mu.RLock()
	out := make([]model.Channel, 0, len(r.channels))
	for _, ch := range r.channels {
		out = append(out, ch)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ChatID < out[j].ChatID })
	return out
}
