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

package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bytedance/sonic"
	"github.com/go-arcade/gatekeeper/internal/engine/conf"
	"github.com/go-arcade/gatekeeper/internal/engine/model"
	"github.com/go-arcade/gatekeeper/internal/engine/repo"
	"github.com/go-arcade/gatekeeper/internal/engine/service"
	"github.com/go-arcade/gatekeeper/internal/pkg/telegram"
	"github.com/go-arcade/gatekeeper/pkg/cache"
	"github.com/go-arcade/gatekeeper/pkg/database"
	"github.com/go-arcade/gatekeeper/pkg/duration"
	"github.com/go-arcade/gatekeeper/pkg/http/jwt"
	"github.com/go-arcade/gatekeeper/pkg/log"
	"github.com/go-arcade/gatekeeper/pkg/metrics"
	"github.com/spf13/cobra"
)

var (
	inviteDuration   string
	inviteSubscriber string
	inviteChannel    string
	tokenService     string
	tokenTTL         string
)

func init() {
	inviteCmd.Flags().StringVarP(&inviteDuration, "duration", "d", "", "access granted on join, e.g. 30d")
	inviteCmd.Flags().StringVarP(&inviteSubscriber, "subscriber", "s", "", "issue for the live entitlement of this subscriber")
	inviteCmd.Flags().StringVar(&inviteChannel, "channel", "", "chat id, defaults to the configured channel")

	tokenCmd.Flags().StringVar(&tokenService, "service", "billing", "service name put in the token")
	tokenCmd.Flags().StringVar(&tokenTTL, "ttl", "1y", "token lifetime, e.g. 30d")
}

// withServices opens the configured stores and the platform client, runs fn
// and releases everything.
func withServices(cmd *cobra.Command, fn func(ctx context.Context, svc *service.Services) error) error {
	appConf, err := conf.LoadConfigFile(configFile)
	if err != nil {
		return err
	}
	if err := log.Init(&appConf.Log); err != nil {
		return err
	}

	manager, closeDB, err := database.ProvideManager(appConf.Database)
	if err != nil {
		return err
	}
	defer closeDB()
	c, closeCache, err := cache.ProvideICache(appConf.Redis)
	if err != nil {
		return err
	}
	defer closeCache()

	svc := service.NewServices(
		repo.NewRepositories(database.ProvideIDatabase(manager)),
		telegram.NewClient(appConf.Telegram),
		c,
		metrics.NewNopAccessMetrics(),
		appConf.Telegram,
		appConf.Access,
		nil,
	)
	defer svc.Timer.Stop()

	ctx := cmd.Context()
	if err := svc.Registry.Load(ctx); err != nil {
		return err
	}
	return fn(ctx, svc)
}

func printJSON(cmd *cobra.Command, v any) error {
	out, err := sonic.ConfigStd.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), string(out))
	return err
}

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Revoke every entitlement whose expiry has passed",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withServices(cmd, func(ctx context.Context, svc *service.Services) error {
			res, err := svc.Reconciler.Sweep(ctx)
			if err != nil {
				return err
			}
			return printJSON(cmd, res)
		})
	},
}

var inviteCmd = &cobra.Command{
	Use:   "invite",
	Short: "Issue a single-use invite link",
	RunE: func(cmd *cobra.Command, args []string) error {
		req := service.IssueRequest{ChannelID: inviteChannel, Source: model.TokenSourceAdmin}
		if inviteDuration != "" {
			d, err := duration.ParsePositive(inviteDuration)
			if err != nil {
				return err
			}
			req.DurationSeconds = int64(d / time.Second)
		}
		if inviteSubscriber != "" {
			req.SubscriberID = &inviteSubscriber
			req.Source = model.TokenSourcePayment
		}
		if req.DurationSeconds == 0 && req.SubscriberID == nil {
			return errors.New("one of --duration or --subscriber is required")
		}

		return withServices(cmd, func(ctx context.Context, svc *service.Services) error {
			res, err := svc.Invite.Issue(ctx, req)
			if err != nil {
				return err
			}
			return printJSON(cmd, model.IssueInviteResp{Link: res.Link, ExpiresAt: res.ExpiresAt})
		})
	},
}

var cleanupInvitesCmd = &cobra.Command{
	Use:   "cleanup-invites",
	Short: "Revoke and delete expired unused invite links",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withServices(cmd, func(ctx context.Context, svc *service.Services) error {
			res, err := svc.InviteCleanup.Sweep(ctx)
			if err != nil {
				return err
			}
			return printJSON(cmd, res)
		})
	},
}

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Mint a service token for the internal API",
	RunE: func(cmd *cobra.Command, args []string) error {
		appConf, err := conf.LoadConfigFile(configFile)
		if err != nil {
			return err
		}
		if appConf.Http.Auth.SecretKey == "" {
			return errors.New("http.auth.secretKey is not set")
		}
		ttl, err := duration.ParsePositive(tokenTTL)
		if err != nil {
			return err
		}
		token, err := jwt.GenToken(tokenService, []byte(appConf.Http.Auth.SecretKey), ttl)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(cmd.OutOrStdout(), token)
		return err
	},
}
