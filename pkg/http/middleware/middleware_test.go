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
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/go-arcade/gatekeeper/pkg/http"
	"github.com/go-arcade/gatekeeper/pkg/http/jwt"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestApp(handlers ...fiber.Handler) *fiber.App {
	app := fiber.New(fiber.Config{ErrorHandler: http.ErrorHandler})
	for _, h := range handlers {
		app.Use(h)
	}
	app.Get("/ok", func(c *fiber.Ctx) error {
		return c.SendString(RequestID(c))
	})
	app.Get("/panic", func(c *fiber.Ctx) error {
		panic("boom")
	})
	return app
}

func decodeErr(t *testing.T, body io.Reader) http.ResponseErr {
	t.Helper()
	raw, err := io.ReadAll(body)
	require.NoError(t, err)
	var rep http.ResponseErr
	require.NoError(t, sonic.Unmarshal(raw, &rep))
	return rep
}

func TestExceptionMiddleware(t *testing.T) {
	app := newTestApp(ExceptionMiddleware)

	resp, err := app.Test(httptest.NewRequest("GET", "/panic", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, http.InternalError.Code, decodeErr(t, resp.Body).ErrCode)
}

func TestRequestMiddleware(t *testing.T) {
	app := newTestApp(RequestMiddleware())

	resp, err := app.Test(httptest.NewRequest("GET", "/ok", nil))
	require.NoError(t, err)
	generated := resp.Header.Get(RequestIDHeader)
	assert.Len(t, generated, 32)
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, generated, string(body))

	req := httptest.NewRequest("GET", "/ok", nil)
	req.Header.Set(RequestIDHeader, "abc")
	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, "abc", resp.Header.Get(RequestIDHeader))
}

func TestServiceTokenMiddleware(t *testing.T) {
	app := newTestApp(ServiceTokenMiddleware("secret"))

	resp, err := app.Test(httptest.NewRequest("GET", "/ok", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, http.Unauthorized.Code, decodeErr(t, resp.Body).ErrCode)

	expired, err := jwt.GenToken("payments", []byte("secret"), -time.Minute)
	require.NoError(t, err)
	req := httptest.NewRequest("GET", "/ok", nil)
	req.Header.Set("Authorization", "Bearer "+expired)
	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.TokenExpired.Code, decodeErr(t, resp.Body).ErrCode)

	forged, err := jwt.GenToken("payments", []byte("other"), time.Minute)
	require.NoError(t, err)
	req = httptest.NewRequest("GET", "/ok", nil)
	req.Header.Set("Authorization", "Bearer "+forged)
	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.InvalidToken.Code, decodeErr(t, resp.Body).ErrCode)

	valid, err := jwt.GenToken("payments", []byte("secret"), time.Minute)
	require.NoError(t, err)
	req = httptest.NewRequest("GET", "/ok", nil)
	req.Header.Set("Authorization", "Bearer "+valid)
	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestServiceTokenMiddleware_Disabled(t *testing.T) {
	app := newTestApp(ServiceTokenMiddleware(""))
	resp, err := app.Test(httptest.NewRequest("GET", "/ok", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestAPIKeyMiddleware(t *testing.T) {
	app := newTestApp(APIKeyMiddleware("k1"))

	resp, err := app.Test(httptest.NewRequest("GET", "/ok", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)

	req := httptest.NewRequest("GET", "/ok", nil)
	req.Header.Set(APIKeyHeader, "k1")
	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestIsExcluded(t *testing.T) {
	assert.True(t, isExcluded("/health"))
	assert.True(t, isExcluded("/metrics"))
	assert.False(t, isExcluded("/api/v1/validate-join"))
}

func TestUnifiedResponseMiddleware(t *testing.T) {
	app := fiber.New()
	app.Use(UnifiedResponseMiddleware())
	app.Get("/detail", func(c *fiber.Ctx) error {
		c.Locals(DetailKey, map[string]int{"n": 1})
		return nil
	})
	app.Get("/raw", func(c *fiber.Ctx) error {
		return c.JSON(map[string]bool{"approve": true})
	})

	resp, err := app.Test(httptest.NewRequest("GET", "/detail", nil))
	require.NoError(t, err)
	raw, _ := io.ReadAll(resp.Body)
	var rep http.Response
	require.NoError(t, sonic.Unmarshal(raw, &rep))
	assert.Equal(t, http.Success.Code, rep.Code)
	assert.Equal(t, map[string]any{"n": float64(1)}, rep.Detail)

	resp, err = app.Test(httptest.NewRequest("GET", "/raw", nil))
	require.NoError(t, err)
	raw, _ = io.ReadAll(resp.Body)
	assert.JSONEq(t, `{"approve":true}`, string(raw))
}
