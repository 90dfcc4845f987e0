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

package middleware

import (
	"crypto/subtle"
	"errors"
	"strings"

	"github.com/go-arcade/gatekeeper/pkg/http"
	"github.com/go-arcade/gatekeeper/pkg/http/jwt"
	"github.com/go-arcade/gatekeeper/pkg/log"
	"github.com/gofiber/fiber/v2"
)

const (
	APIKeyHeader = "X-Api-Key"
	ClaimsKey    = "claims"
)

// ServiceTokenMiddleware requires a Bearer service token signed with
// secretKey. An empty secretKey lets every request through.
func ServiceTokenMiddleware(secretKey string) fiber.Handler {
	if secretKey == "" {
		return func(c *fiber.Ctx) error { return c.Next() }
	}
	key := []byte(secretKey)

	return func(c *fiber.Ctx) error {
		scheme, token, ok := strings.Cut(c.Get(fiber.HeaderAuthorization), " ")
		if !ok || scheme != "Bearer" || token == "" {
			return http.WithRepFailure(c, fiber.StatusUnauthorized, http.Unauthorized)
		}

		claims, err := jwt.ParseToken(token, key)
		if err != nil {
			if errors.Is(err, jwt.ErrTokenExpired) {
				return http.WithRepFailure(c, fiber.StatusUnauthorized, http.TokenExpired)
			}
			log.Warnw("rejected service token", "path", c.Path(), "error", err)
			return http.WithRepFailure(c, fiber.StatusUnauthorized, http.InvalidToken)
		}

		c.Locals(ClaimsKey, claims)
		return c.Next()
	}
}

// APIKeyMiddleware requires the X-Api-Key header to equal apiKey. An empty
// apiKey lets every request through.
func APIKeyMiddleware(apiKey string) fiber.Handler {
	if apiKey == "" {
		return func(c *fiber.Ctx) error { return c.Next() }
	}
	want := []byte(apiKey)

	return func(c *fiber.Ctx) error {
		got := []byte(c.Get(APIKeyHeader))
		if subtle.ConstantTimeCompare(got, want) != 1 {
			return http.WithRepFailure(c, fiber.StatusUnauthorized, http.Unauthorized)
		}
		return c.Next()
	}
}
