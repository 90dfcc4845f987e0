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
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-arcade/gatekeeper/internal/engine/model"
	"github.com/go-arcade/gatekeeper/internal/engine/repo"
	"github.com/go-arcade/gatekeeper/internal/pkg/telegram"
	"github.com/go-arcade/gatekeeper/pkg/duration"
	"github.com/go-arcade/gatekeeper/pkg/log"
	"github.com/go-arcade/gatekeeper/pkg/safe"
	"github.com/go-arcade/gatekeeper/pkg/statemachine"
)

const (
	getLinkUsage = "Usage: /getlink <duration>\nExamples: /getlink 30m, /getlink 1h, /getlink 7d"
	kickUsage    = "Usage: /kick <telegram user id>"
	startText    = "Hello, %s!\n\nI manage access to the channel.\n\nAdmin commands:\n" +
		"/getlink <duration> - generate a single-use invite link, e.g. /getlink 1h\n" +
		"/kick <user id> - remove a member now\n" +
		"/stats - show enforcement counters"
)

// BotService runs the bot's getUpdates loop: join requests go through the
// JoinService, membership changes update JoinStatus and admin commands
// drive issuance, kicks and stats.
type BotService struct {
	platform telegram.Platform
	cfg      telegram.Config
	access   AccessConfig
	repos    *repo.Repositories
	join     *JoinService
	invite   *InviteService
	revoker  *Revoker
	timer    *TimerScheduler
	registry *ChannelRegistry
	stats    *StatsService
	now      Clock
	joinSM   *statemachine.StateMachine[statemachine.JoinStatus]

	offset int64
}

func NewBotService(
	platform telegram.Platform,
	cfg telegram.Config,
	access AccessConfig,
	repos *repo.Repositories,
	join *JoinService,
	invite *InviteService,
	revoker *Revoker,
	timer *TimerScheduler,
	registry *ChannelRegistry,
	stats *StatsService,
	now Clock,
) *BotService {
	return &BotService{
		platform: platform,
		cfg:      cfg,
		access:   access,
		repos:    repos,
		join:     join,
		invite:   invite,
		revoker:  revoker,
		timer:    timer,
		registry: registry,
		stats:    stats,
		now:      now,
		joinSM:   statemachine.NewJoinStateMachine(),
	}
}

// Run long-polls until ctx ends. Poll errors are logged and retried after a
// pause, honoring retry_after when the platform rate limits.
func (b *BotService) Run(ctx context.Context) error {
	log.Infow("telegram update loop started", "pollTimeout", b.cfg.PollTimeoutSeconds())
	for {
		updates, err := b.platform.GetUpdates(ctx, b.offset, b.cfg.PollTimeoutSeconds())
		if ctx.Err() != nil {
			log.Info("telegram update loop stopped")
			return nil
		}
		if err != nil {
			wait := 3 * time.Second
			var apiErr *telegram.APIError
			if errors.As(err, &apiErr) && apiErr.RetryAfter > 0 {
				wait = time.Duration(apiErr.RetryAfter) * time.Second
			}
			log.Warnw("getUpdates failed", "wait", wait, "error", err)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(wait):
			}
			continue
		}
		for _, u := range updates {
			safe.DoNamed("telegram-update", func() { b.HandleUpdate(ctx, u) })
			b.offset = u.UpdateID + 1
		}
	}
}

// HandleUpdate dispatches one update.
func (b *BotService) HandleUpdate(ctx context.Context, u telegram.Update) {
	switch {
	case u.ChatJoinRequest != nil:
		b.handleJoinRequest(ctx, u.ChatJoinRequest)
	case u.ChatMember != nil:
		b.handleMemberUpdate(ctx, u.ChatMember)
	case u.Message != nil:
		msg := u.Message
		switch {
		case len(msg.NewChatMembers) > 0:
			for _, user := range msg.NewChatMembers {
				b.markJoined(ctx, msg.Chat.ID, user)
			}
		case msg.LeftChatMember != nil:
			b.markLeft(ctx, msg.Chat.ID, msg.LeftChatMember.ID)
		case strings.HasPrefix(msg.Text, "/"):
			b.handleCommand(ctx, msg)
		}
	}
}

func (b *BotService) handleJoinRequest(ctx context.Context, req *telegram.ChatJoinRequest) {
	chatID := strconv.FormatInt(req.Chat.ID, 10)
	userID := req.From.ID
	log.Infow("join request received", "userId", userID, "chatId", chatID)

	if req.InviteLink == nil || req.InviteLink.InviteLink == "" {
		b.decline(ctx, chatID, userID, "no invite link")
		return
	}

	dec, err := b.join.Validate(ctx, JoinRequest{
		InviteLink:     req.InviteLink.InviteLink,
		PlatformUserID: userID,
		ChatID:         chatID,
		UserInfo: model.UserInfo{
			FirstName: req.From.FirstName,
			LastName:  req.From.LastName,
			Username:  req.From.Username,
		},
	})
	if err != nil || !dec.Approve {
		b.decline(ctx, chatID, userID, dec.Reason)
		return
	}

	title := req.Chat.Title
	if title == "" {
		title = "the channel"
	}
	if err := b.platform.SendMessage(ctx, strconv.FormatInt(userID, 10), fmt.Sprintf(b.access.WelcomeMessage, title), ""); err != nil {
		log.Warnw("welcome message not delivered", "userId", userID, "error", err)
	}
}

func (b *BotService) decline(ctx context.Context, chatID string, userID int64, reason string) {
	if err := b.platform.DeclineChatJoinRequest(ctx, chatID, userID); err != nil {
		log.Warnw("declineChatJoinRequest failed", "userId", userID, "chatId", chatID, "error", err)
		return
	}
	log.Infow("join request declined", "userId", userID, "chatId", chatID, "reason", reason)
}

func (b *BotService) handleMemberUpdate(ctx context.Context, upd *telegram.ChatMemberUpdated) {
	user := upd.NewChatMember.User
	switch upd.NewChatMember.Status {
	case telegram.MemberMember, telegram.MemberRestricted:
		b.markJoined(ctx, upd.Chat.ID, user)
	case telegram.MemberLeft, telegram.MemberKicked:
		b.markLeft(ctx, upd.Chat.ID, user.ID)
	}
}

func (b *BotService) markJoined(ctx context.Context, chatID int64, user telegram.User) {
	if user.IsBot || !b.registry.IsManagedChat(chatID) {
		return
	}
	sub, err := b.repos.Subscriber.GetByPlatformUser(ctx, user.ID)
	if err != nil {
		return
	}
	if _, err := b.repos.Subscriber.SetJoinStatus(ctx, sub.SubscriberID, b.joinSM.Sources(statemachine.JoinJoined), statemachine.JoinJoined, b.now()); err != nil {
		log.Warnw("join status update failed", "subscriberId", sub.SubscriberID, "error", err)
	}
}

func (b *BotService) markLeft(ctx context.Context, chatID int64, userID int64) {
	if !b.registry.IsManagedChat(chatID) {
		return
	}
	b.timer.Cancel(userID)
	sub, err := b.repos.Subscriber.GetByPlatformUser(ctx, userID)
	if err != nil {
		return
	}
	ok, err := b.repos.Subscriber.SetJoinStatus(ctx, sub.SubscriberID, b.joinSM.Sources(statemachine.JoinLeft), statemachine.JoinLeft, b.now())
	if err != nil {
		log.Warnw("join status update failed", "subscriberId", sub.SubscriberID, "error", err)
		return
	}
	if ok {
		log.Infow("member left", "userId", userID, "subscriberId", sub.SubscriberID)
	}
}

// parseCommand splits "/cmd@bot arg ..." into "cmd" and its arguments.
func parseCommand(text string) (string, []string) {
	fields := strings.Fields(text)
	if len(fields) == 0 || !strings.HasPrefix(fields[0], "/") {
		return "", nil
	}
	cmd, _, _ := strings.Cut(strings.TrimPrefix(fields[0], "/"), "@")
	return strings.ToLower(cmd), fields[1:]
}

func (b *BotService) handleCommand(ctx context.Context, msg *telegram.Message) {
	cmd, args := parseCommand(msg.Text)
	if msg.From == nil {
		return
	}
	switch cmd {
	case "start":
		b.reply(ctx, msg, fmt.Sprintf(startText, msg.From.FirstName))
	case "getlink", "kick", "stats":
		if !b.isAdmin(ctx, msg.From.ID) {
			log.Warnw("unauthorized admin command", "command", cmd, "userId", msg.From.ID)
			b.reply(ctx, msg, "You are not authorized to use this command.")
			return
		}
		switch cmd {
		case "getlink":
			b.getLink(ctx, msg, args)
		case "kick":
			b.kick(ctx, msg, args)
		case "stats":
			b.showStats(ctx, msg)
		}
	}
}

// isAdmin accepts configured admin ids, then administrators of the default
// channel.
func (b *BotService) isAdmin(ctx context.Context, userID int64) bool {
	if b.cfg.IsAdmin(userID) {
		return true
	}
	chatID := b.registry.Default()
	if chatID == "" {
		return false
	}
	member, err := b.platform.GetChatMember(ctx, chatID, userID)
	if err != nil {
		log.Debugw("admin lookup failed", "userId", userID, "error", err)
		return false
	}
	return member.IsAdmin()
}

func (b *BotService) getLink(ctx context.Context, msg *telegram.Message, args []string) {
	if len(args) != 1 {
		b.reply(ctx, msg, getLinkUsage)
		return
	}
	d, err := duration.ParsePositive(args[0])
	if err != nil {
		b.reply(ctx, msg, "Invalid duration.\n\n"+getLinkUsage)
		return
	}
	res, err := b.invite.Issue(ctx, IssueRequest{
		DurationSeconds: int64(d / time.Second),
		Source:          model.TokenSourceAdmin,
	})
	if err != nil {
		log.Errorw("admin invite link failed", "userId", msg.From.ID, "error", err)
		b.reply(ctx, msg, "Could not create the invite link. Make sure the bot is an admin of the channel with the invite users and manage join requests rights.")
		return
	}
	b.reply(ctx, msg, fmt.Sprintf("Invite link (%s):\n%s\n\nThe link expires at %s. A member admitted with it is removed after %s.",
		duration.Humanize(d), res.Link, res.ExpiresAt.UTC().Format(time.RFC3339), duration.Humanize(d)))
	log.Infow("admin invite link issued", "adminId", msg.From.ID, "linkId", res.LinkID, "duration", d)
}

func (b *BotService) kick(ctx context.Context, msg *telegram.Message, args []string) {
	if len(args) != 1 {
		b.reply(ctx, msg, kickUsage)
		return
	}
	userID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil || userID <= 0 {
		b.reply(ctx, msg, kickUsage)
		return
	}
	n, err := b.revoker.Kick(ctx, userID, fmt.Sprintf("admin %d", msg.From.ID))
	if err != nil {
		b.reply(ctx, msg, fmt.Sprintf("Kick of %d failed: %v", userID, err))
		return
	}
	b.reply(ctx, msg, fmt.Sprintf("User %d removed (%d entitlements revoked).", userID, n))
}

func (b *BotService) showStats(ctx context.Context, msg *telegram.Message) {
	s, err := b.stats.Snapshot(ctx)
	if err != nil {
		b.reply(ctx, msg, "Stats are unavailable right now.")
		return
	}
	b.reply(ctx, msg, fmt.Sprintf("Active entitlements: %d\nPending timers: %d\nManaged channels: %d",
		s.ActiveEntitlements, s.PendingTimers, s.ManagedChannels))
}

func (b *BotService) reply(ctx context.Context, msg *telegram.Message, text string) {
	if err := b.platform.SendMessage(ctx, strconv.FormatInt(msg.Chat.ID, 10), text, ""); err != nil {
		log.Warnw("reply not delivered", "chatId", msg.Chat.ID, "error", err)
	}
}
