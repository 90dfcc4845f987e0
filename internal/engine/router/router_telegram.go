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

package router

import (
	"errors"
	"strconv"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/go-arcade/gatekeeper/internal/engine/model"
	"github.com/go-arcade/gatekeeper/internal/engine/service"
	"github.com/go-arcade/gatekeeper/pkg/http"
	"github.com/go-arcade/gatekeeper/pkg/http/middleware"
	"github.com/go-arcade/gatekeeper/pkg/log"
	"github.com/gofiber/fiber/v2"
)

func (rt *Router) telegramRoutes(r fiber.Router) {
	// called by the bot side, answers with plain JSON. The key check is bound
	// per route: an empty-prefix group would guard the whole /api/telegram tree.
	apiKey := middleware.APIKeyMiddleware(rt.Http.Auth.APIKey)
	r.Post("/validate-join", apiKey, rt.validateJoin)
	r.Get("/check-expiry/:platformUserId", apiKey, rt.checkExpiry)
	r.Post("/notify-kick", apiKey, rt.notifyKick)

	serviceToken := middleware.ServiceTokenMiddleware(rt.Http.Auth.SecretKey)
	unified := middleware.UnifiedResponseMiddleware()
	r.Get("/issue-invite", serviceToken, unified, rt.issueInvite)
	r.Post("/store-test-link", serviceToken, unified, rt.storeTestLink)
	r.Post("/payment-confirmed", serviceToken, unified, rt.paymentConfirmed)
	r.Get("/stats", serviceToken, unified, rt.stats)
	r.Post("/reconcile", serviceToken, unified, rt.reconcile)
}

// platformUserID accepts a Telegram user id as a JSON number or string.
type platformUserID int64

func (p *platformUserID) UnmarshalJSON(data []byte) error {
	raw := strings.Trim(strings.TrimSpace(string(data)), "\"")
	if raw == "" || raw == "null" {
		*p = 0
		return nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return err
	}
	*p = platformUserID(v)
	return nil
}

type validateJoinReq struct {
	InviteLink     string         `json:"invite_link"`
	TelegramUserID platformUserID `json:"telegram_user_id"`
	ChatID         string         `json:"chat_id,omitempty"`
	UserInfo       model.UserInfo `json:"user_info,omitempty"`
}

type notifyKickReq struct {
	TelegramUserID platformUserID `json:"telegram_user_id"`
	Reason         string         `json:"reason"`
}

type notifyKickResp struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

func parseBody(c *fiber.Ctx, v any) error {
	return sonic.Unmarshal(c.Body(), v)
}

// validateJoin POST /validate-join - decide on a join request
func (rt *Router) validateJoin(c *fiber.Ctx) error {
	var req validateJoinReq
	if err := parseBody(c, &req); err != nil {
		return http.WithRepFailure(c, fiber.StatusBadRequest, http.RequestParameterParsingFailed)
	}
	if strings.TrimSpace(req.InviteLink) == "" || req.TelegramUserID <= 0 {
		c.Status(fiber.StatusBadRequest)
		return http.WithRepErr(c, http.BadRequest.Code, "invite_link and telegram_user_id are required", c.Path())
	}

	dec, err := rt.Services.Join.Validate(c.UserContext(), service.JoinRequest{
		InviteLink:     req.InviteLink,
		PlatformUserID: int64(req.TelegramUserID),
		ChatID:         req.ChatID,
		UserInfo:       req.UserInfo,
	})
	if err != nil && errors.Is(err, service.ErrPersistenceError) {
		log.Errorw("validate join failed", "userId", int64(req.TelegramUserID), "error", err)
	}
	return c.JSON(dec)
}

// checkExpiry GET /check-expiry/:platformUserId - should the user be removed
func (rt *Router) checkExpiry(c *fiber.Ctx) error {
	userID, err := strconv.ParseInt(c.Params("platformUserId"), 10, 64)
	if err != nil || userID <= 0 {
		c.Status(fiber.StatusBadRequest)
		return http.WithRepErr(c, http.BadRequest.Code, "invalid platform user id", c.Path())
	}

	verdict, err := rt.Services.CheckExpiry.Check(c.UserContext(), userID)
	if err != nil {
		log.Errorw("check expiry failed", "userId", userID, "error", err)
		c.Status(fiber.StatusServiceUnavailable)
		return c.JSON(service.ExpiryVerdict{ShouldKick: false, Reason: service.ReasonUnavailable})
	}
	return c.JSON(verdict)
}

// notifyKick POST /notify-kick - the bot reports a removal it performed
func (rt *Router) notifyKick(c *fiber.Ctx) error {
	var req notifyKickReq
	if err := parseBody(c, &req); err != nil || req.TelegramUserID <= 0 {
		c.Status(fiber.StatusBadRequest)
		return c.JSON(notifyKickResp{Success: false, Message: "telegram_user_id is required"})
	}
	log.Infow("kick notification received", "userId", int64(req.TelegramUserID), "reason", req.Reason)
	return c.JSON(notifyKickResp{Success: true, Message: "Kick notification received"})
}

// issueInvite GET /issue-invite - mint an invite link
func (rt *Router) issueInvite(c *fiber.Ctx) error {
	req := service.IssueRequest{ChannelID: c.Query("channelId")}
	if sub := strings.TrimSpace(c.Query("subscriberId")); sub != "" {
		req.SubscriberID = &sub
	}
	if raw := c.Query("durationSeconds"); raw != "" {
		d, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || d <= 0 {
			return writeError(c, service.ErrInvalidDuration)
		}
		req.DurationSeconds = d
	}

	res, err := rt.Services.Invite.Issue(c.UserContext(), req)
	if err != nil {
		return writeError(c, err)
	}
	c.Locals(middleware.DetailKey, model.IssueInviteResp{Link: res.Link, ExpiresAt: res.ExpiresAt})
	return nil
}

// storeTestLink POST /store-test-link - register an externally created link
func (rt *Router) storeTestLink(c *fiber.Ctx) error {
	var req model.StoreTestLinkReq
	if err := parseBody(c, &req); err != nil {
		return http.WithRepFailure(c, fiber.StatusBadRequest, http.RequestParameterParsingFailed)
	}
	token, err := rt.Services.Invite.StoreExternal(c.UserContext(), req)
	if err != nil {
		return writeError(c, err)
	}
	c.Locals(middleware.DetailKey, token)
	return nil
}

// paymentConfirmed POST /payment-confirmed - create an entitlement and its link
func (rt *Router) paymentConfirmed(c *fiber.Ctx) error {
	var req model.PaymentConfirmedReq
	if err := parseBody(c, &req); err != nil {
		return http.WithRepFailure(c, fiber.StatusBadRequest, http.RequestParameterParsingFailed)
	}
	resp, err := rt.Services.Payment.Confirm(c.UserContext(), req)
	if err != nil {
		if resp != nil {
			// the entitlement exists, only the link is missing
			status, rep := errorStatus(err)
			c.Status(status)
			return c.JSON(http.Response{Code: rep.Code, Detail: resp, Msg: rep.Msg})
		}
		return writeError(c, err)
	}
	c.Locals(middleware.DetailKey, resp)
	return nil
}

// stats GET /stats - runtime counters
func (rt *Router) stats(c *fiber.Ctx) error {
	s, err := rt.Services.Stats.Snapshot(c.UserContext())
	if err != nil {
		return writeError(c, err)
	}
	c.Locals(middleware.DetailKey, s)
	return nil
}

// reconcile POST /reconcile - run one sweep now
func (rt *Router) reconcile(c *fiber.Ctx) error {
	res, err := rt.Services.Reconciler.Sweep(c.UserContext())
	if err != nil {
		return writeError(c, err)
	}
	c.Locals(middleware.DetailKey, res)
	return nil
}

func errorStatus(err error) (int, *http.Response) {
	switch {
	case errors.Is(err, service.ErrInvalidDuration):
		return fiber.StatusBadRequest, http.InvalidDuration
	case errors.Is(err, service.ErrInvalidOrExpiredToken):
		return fiber.StatusBadRequest, http.BadRequest
	case errors.Is(err, service.ErrEntitlementNotFound):
		return fiber.StatusNotFound, http.EntitlementNotFound
	case errors.Is(err, service.ErrChannelNotManaged):
		return fiber.StatusBadRequest, http.ChannelNotManaged
	case errors.Is(err, service.ErrUpstreamUnavailable):
		return fiber.StatusBadGateway, http.UpstreamUnavailable
	case errors.Is(err, service.ErrPersistenceError):
		return fiber.StatusInternalServerError, http.PersistenceFailed
	default:
		return fiber.StatusInternalServerError, http.InternalError
	}
}

func writeError(c *fiber.Ctx, err error) error {
	status, rep := errorStatus(err)
	if status >= fiber.StatusInternalServerError {
		log.Errorw("request failed", "path", c.Path(), "error", err)
	}
	return http.WithRepFailure(c, status, rep)
}
