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
	"strings"

	"github.com/go-arcade/gatekeeper/pkg/trace"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/attribute"
	oteltrace "go.opentelemetry.io/otel/trace"
)

// RedisHook opens a client span per command and per pipeline. Arguments are
// never recorded; keys may carry user ids.
type RedisHook struct{}

func (h RedisHook) DialHook(next redis.DialHook) redis.DialHook {
	return next
}

func (h RedisHook) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		ctx, span := trace.StartSpan(ctx, "redis."+cmd.Name(),
			oteltrace.WithSpanKind(oteltrace.SpanKindClient))
		span.SetAttributes(
			attribute.String("db.system", "redis"),
			attribute.String("db.operation", cmd.Name()),
		)
		err := next(ctx, cmd)
		trace.End(span, redisErr(err))
		return err
	}
}

func (h RedisHook) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redis.Cmder) error {
		names := make([]string, 0, len(cmds))
		for _, cmd := range cmds {
			names = append(names, cmd.Name())
		}
		ctx, span := trace.StartSpan(ctx, "redis.pipeline",
			oteltrace.WithSpanKind(oteltrace.SpanKindClient))
		span.SetAttributes(
			attribute.String("db.system", "redis"),
			attribute.String("db.operation", "pipeline"),
			attribute.String("db.redis.commands", strings.Join(names, " ")),
		)
		err := next(ctx, cmds)
		trace.End(span, redisErr(err))
		return err
	}
}

// redisErr treats a cache miss as success.
func redisErr(err error) error {
	if errors.Is(err, redis.Nil) {
		return nil
	}
	return err
}

// RegisterRedisHook installs RedisHook on client.
func RegisterRedisHook(client redis.UniversalClient) {
	client.AddHook(RedisHook{})
}
