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


package inject

import (
	"context"
	"errors"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"gorm.io/gorm"
)

func useRecorder(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	return sr
}

func findSpan(spans []sdktrace.ReadOnlySpan, name string) sdktrace.ReadOnlySpan {
	for _, s := range spans {
		if s.Name() == name {
			return s
		}
	}
	return nil
}

func attr(s sdktrace.ReadOnlySpan, key attribute.Key) (attribute.Value, bool) {
	for _, kv := range s.Attributes() {
		if kv.Key == key {
			return kv.Value, true
		}
	}
	return attribute.Value{}, false
}

func TestFiberMiddleware(t *testing.T) {
	sr := useRecorder(t)

	app := fiber.New()
	app.Use(FiberMiddleware(func(*fiber.Ctx) string { return "req-1" }))
	app.Get("/check-expiry/:platformUserId", func(c *fiber.Ctx) error {
		return c.SendString("ok")
	})
	app.Get("/down", func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusServiceUnavailable)
	})

	req := httptest.NewRequest("GET", "/check-expiry/42", nil)
	req.Header.Set("traceparent", "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest("GET", "/down", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusServiceUnavailable, resp.StatusCode)

	spans := sr.Ended()
	require.Len(t, spans, 2)

	ok := spans[0]
	assert.Equal(t, "GET /check-expiry/:platformUserId", ok.Name())
	assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", ok.SpanContext().TraceID().String())
	assert.Equal(t, "00f067aa0ba902b7", ok.Parent().SpanID().String())
	assert.Equal(t, codes.Ok, ok.Status().Code)
	id, found := attr(ok, "http.request.id")
	require.True(t, found)
	assert.Equal(t, "req-1", id.AsString())
	status, found := attr(ok, "http.status_code")
	require.True(t, found)
	assert.Equal(t, int64(200), status.AsInt64())

	down := spans[1]
	assert.Equal(t, "GET /down", down.Name())
	assert.Equal(t, codes.Error, down.Status().Code)
	assert.False(t, down.Parent().IsValid())
}

type gormRow struct {
	ID   uint   `gorm:"primaryKey"`
	Name string `gorm:"size:32"`
}

func TestGormPlugin(t *testing.T) {
	sr := useRecorder(t)

	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "trace.db")), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&gormRow{}))
	require.NoError(t, RegisterGormPlugin(db, true, true))

	ctx, parent := otel.Tracer("test").Start(context.Background(), "request")
	require.NoError(t, db.WithContext(ctx).Create(&gormRow{Name: "alice"}).Error)
	var missing gormRow
	err = db.WithContext(ctx).First(&missing, "name = ?", "bob").Error
	require.ErrorIs(t, err, gorm.ErrRecordNotFound)
	parent.End()

	spans := sr.Ended()
	create := findSpan(spans, "gorm.create")
	require.NotNil(t, create)
	assert.Equal(t, codes.Ok, create.Status().Code)
	assert.Equal(t, parent.SpanContext().SpanID(), create.Parent().SpanID())
	stmt, found := attr(create, "db.statement")
	require.True(t, found)
	assert.Contains(t, stmt.AsString(), "INSERT INTO")
	rows, found := attr(create, "db.rows_affected")
	require.True(t, found)
	assert.Equal(t, int64(1), rows.AsInt64())

	query := findSpan(spans, "gorm.query")
	require.NotNil(t, query)
	assert.Equal(t, codes.Ok, query.Status().Code)
	table, found := attr(query, "db.sql.table")
	require.True(t, found)
	assert.Equal(t, "gorm_rows", table.AsString())
}

func TestRedisHookRecordsFailure(t *testing.T) {
	sr := useRecorder(t)

	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 200 * time.Millisecond,
		MaxRetries:  -1,
	})
	t.Cleanup(func() { _ = client.Close() })
	RegisterRedisHook(client)

	err := client.Get(context.Background(), "gatekeeper:expiry:42").Err()
	require.Error(t, err)
	require.False(t, errors.Is(err, redis.Nil))

	span := findSpan(sr.Ended(), "redis.get")
	require.NotNil(t, span)
	assert.Equal(t, codes.Error, span.Status().Code)
	op, found := attr(span, "db.operation")
	require.True(t, found)
	assert.Equal(t, "get", op.AsString())
}

func TestRedisErrTreatsNilAsSuccess(t *testing.T) {
	assert.NoError(t, redisErr(redis.Nil))
	assert.Error(t, redisErr(errors.New("READONLY")))
	assert.NoError(t, redisErr(nil))
}
