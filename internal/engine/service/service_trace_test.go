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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func spanNamed(spans []sdktrace.ReadOnlySpan, name string) sdktrace.ReadOnlySpan {
	for _, s := range spans {
		if s.Name() == name {
			return s
		}
	}
	return nil
}

func spanAttr(s sdktrace.ReadOnlySpan, key attribute.Key) attribute.Value {
	for _, kv := range s.Attributes() {
		if kv.Key == key {
			return kv.Value
		}
	}
	return attribute.Value{}
}

func TestValidateAndSweepAreTraced(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	env := newTestEnv(t)
	ctx := context.Background()

	res, err := env.svc.Invite.Issue(ctx, IssueRequest{DurationSeconds: 3600})
	require.NoError(t, err)
	dec, err := env.svc.Join.Validate(ctx, JoinRequest{InviteLink: res.Link, PlatformUserID: 42, ChatID: testChannel})
	require.NoError(t, err)
	require.True(t, dec.Approve)

	_, err = env.svc.Reconciler.Sweep(ctx)
	require.NoError(t, err)

	spans := sr.Ended()
	validate := spanNamed(spans, "join.validate")
	require.NotNil(t, validate)
	assert.Equal(t, codes.Ok, validate.Status().Code)
	assert.Equal(t, int64(42), spanAttr(validate, "platform.user_id").AsInt64())
	assert.Equal(t, testChannel, spanAttr(validate, "platform.chat_id").AsString())
	assert.True(t, spanAttr(validate, "join.approve").AsBool())

	var queries int
	for _, s := range spans {
		if s.Parent().SpanID() == validate.SpanContext().SpanID() {
			queries++
		}
	}
	assert.Positive(t, queries, "store calls inside Validate should be child spans")

	sweep := spanNamed(spans, "reconcile.sweep")
	require.NotNil(t, sweep)
	assert.Equal(t, codes.Ok, sweep.Status().Code)
	assert.Equal(t, int64(0), spanAttr(sweep, "reconcile.due").AsInt64())
	assert.False(t, validate.SpanContext().TraceID() == sweep.SpanContext().TraceID())
}
