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

	"github.com/go-arcade/gatekeeper/pkg/trace"
	"go.opentelemetry.io/otel/attribute"
	oteltrace "go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"
)

const (
	gormBefore = "tracing:before"
	gormAfter  = "tracing:after"
)

type gormSpanKey struct{}

// GormPlugin opens a client span around every gorm statement.
type GormPlugin struct {
	// WithQuery records the SQL text
	WithQuery bool
	// WithRows records rows affected
	WithRows bool
}

func (p *GormPlugin) Name() string {
	return "gatekeeper:tracing"
}

func (p *GormPlugin) Initialize(db *gorm.DB) error {
	cb := db.Callback()
	return errors.Join(
		cb.Create().Before("gorm:create").Register(gormBefore, p.before("create")),
		cb.Create().After("gorm:create").Register(gormAfter, p.after),
		cb.Query().Before("gorm:query").Register(gormBefore, p.before("query")),
		cb.Query().After("gorm:query").Register(gormAfter, p.after),
		cb.Update().Before("gorm:update").Register(gormBefore, p.before("update")),
		cb.Update().After("gorm:update").Register(gormAfter, p.after),
		cb.Delete().Before("gorm:delete").Register(gormBefore, p.before("delete")),
		cb.Delete().After("gorm:delete").Register(gormAfter, p.after),
		cb.Row().Before("gorm:row").Register(gormBefore, p.before("row")),
		cb.Row().After("gorm:row").Register(gormAfter, p.after),
		cb.Raw().Before("gorm:raw").Register(gormBefore, p.before("raw")),
		cb.Raw().After("gorm:raw").Register(gormAfter, p.after),
	)
}

func (p *GormPlugin) before(operation string) func(*gorm.DB) {
	return func(db *gorm.DB) {
		if db.Statement == nil {
			return
		}
		ctx := db.Statement.Context
		if ctx == nil {
			ctx = context.Background()
		}
		ctx, span := trace.StartSpan(ctx, "gorm."+operation,
			oteltrace.WithSpanKind(oteltrace.SpanKindClient))
		span.SetAttributes(
			attribute.String("db.system", db.Dialector.Name()),
			attribute.String("db.operation", operation),
		)
		if db.Statement.Table != "" {
			span.SetAttributes(attribute.String("db.sql.table", db.Statement.Table))
		}
		db.Statement.Context = context.WithValue(ctx, gormSpanKey{}, span)
	}
}

func (p *GormPlugin) after(db *gorm.DB) {
	if db.Statement == nil || db.Statement.Context == nil {
		return
	}
	span, ok := db.Statement.Context.Value(gormSpanKey{}).(oteltrace.Span)
	if !ok {
		return
	}
	if p.WithQuery {
		if sql := db.Statement.SQL.String(); sql != "" {
			span.SetAttributes(attribute.String("db.statement", sql))
		}
	}
	if p.WithRows {
		span.SetAttributes(attribute.Int64("db.rows_affected", db.Statement.RowsAffected))
	}
	err := db.Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		err = nil
	}
	trace.End(span, err)
}

// RegisterGormPlugin installs GormPlugin on db.
func RegisterGormPlugin(db *gorm.DB, withQuery, withRows bool) error {
	return db.Use(&GormPlugin{WithQuery: withQuery, WithRows: withRows})
}
