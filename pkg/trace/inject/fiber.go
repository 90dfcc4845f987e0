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
	"fmt"
	nethttp "net/http"

	"github.com/go-arcade/gatekeeper/pkg/trace"
	"github.com/gofiber/fiber/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	oteltrace "go.opentelemetry.io/otel/trace"
)

// FiberMiddleware opens a server span per request, continuing any W3C trace
// context the caller sent, and puts it on the request's UserContext.
// requestID, when non-nil, tags the span with the request id.
func FiberMiddleware(requestID func(*fiber.Ctx) string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx := otel.GetTextMapPropagator().Extract(c.UserContext(),
			propagation.HeaderCarrier(nethttp.Header(c.GetReqHeaders())))

		ctx, span := trace.StartSpan(ctx, c.Method()+" "+c.Path(),
			oteltrace.WithSpanKind(oteltrace.SpanKindServer))
		defer span.End()
		c.SetUserContext(ctx)

		span.SetAttributes(
			attribute.String("http.method", c.Method()),
			attribute.String("http.target", string(c.Request().URI().RequestURI())),
		)
		if ua := c.Get(fiber.HeaderUserAgent); ua != "" {
			span.SetAttributes(attribute.String("http.user_agent", ua))
		}

		err := c.Next()

		if route := c.Route(); route != nil && route.Path != "" {
			span.SetName(c.Method() + " " + route.Path)
			span.SetAttributes(attribute.String("http.route", route.Path))
		}
		if requestID != nil {
			if id := requestID(c); id != "" {
				span.SetAttributes(attribute.String("http.request.id", id))
			}
		}

		status := c.Response().StatusCode()
		span.SetAttributes(attribute.Int("http.status_code", status))
		switch {
		case err != nil:
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		case status >= fiber.StatusInternalServerError:
			span.SetStatus(codes.Error, fmt.Sprintf("HTTP %d", status))
		default:
			span.SetStatus(codes.Ok, "")
		}
		return err
	}
}
