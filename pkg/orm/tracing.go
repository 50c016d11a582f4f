package orm

import (
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tokmz/wsrelay/pkg/tracing"
)

// TracingPlugin 为每条语句创建 Client Span
type TracingPlugin struct {
	traceSQL bool
}

// TracingOption 插件选项
type TracingOption func(*TracingPlugin)

// WithSQLTrace 在 Span 中记录 SQL 原文（可能包含敏感数据）
func WithSQLTrace(enable bool) TracingOption {
	return func(p *TracingPlugin) {
		p.traceSQL = enable
	}
}

// NewTracingPlugin 创建追踪插件
func NewTracingPlugin(opts ...TracingOption) *TracingPlugin {
	p := &TracingPlugin{}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Name 插件名称
func (p *TracingPlugin) Name() string {
	return "wsrelay:tracing"
}

// Initialize 注册回调
func (p *TracingPlugin) Initialize(db *gorm.DB) error {
	cb := db.Callback()
	err := errors.Join(
		cb.Create().Before("gorm:create").Register("tracing:before_create", p.before("gorm.create")),
		cb.Create().After("gorm:create").Register("tracing:after_create", p.after),
		cb.Query().Before("gorm:query").Register("tracing:before_query", p.before("gorm.query")),
		cb.Query().After("gorm:query").Register("tracing:after_query", p.after),
		cb.Update().Before("gorm:update").Register("tracing:before_update", p.before("gorm.update")),
		cb.Update().After("gorm:update").Register("tracing:after_update", p.after),
		cb.Delete().Before("gorm:delete").Register("tracing:before_delete", p.before("gorm.delete")),
		cb.Delete().After("gorm:delete").Register("tracing:after_delete", p.after),
		cb.Row().Before("gorm:row").Register("tracing:before_row", p.before("gorm.row")),
		cb.Row().After("gorm:row").Register("tracing:after_row", p.after),
		cb.Raw().Before("gorm:raw").Register("tracing:before_raw", p.before("gorm.raw")),
		cb.Raw().After("gorm:raw").Register("tracing:after_raw", p.after),
	)
	if err != nil {
		return fmt.Errorf("register callbacks: %w", err)
	}
	return nil
}

func (p *TracingPlugin) before(operation string) func(*gorm.DB) {
	return func(db *gorm.DB) {
		ctx, _ := tracing.StartSpan(db.Statement.Context, operation,
			trace.WithSpanKind(trace.SpanKindClient),
			trace.WithAttributes(
				attribute.String("db.system", db.Dialector.Name()),
				attribute.String("db.operation", operation),
			),
		)
		db.Statement.Context = ctx
	}
}

func (p *TracingPlugin) after(db *gorm.DB) {
	span := trace.SpanFromContext(db.Statement.Context)
	if !span.IsRecording() {
		return
	}
	defer span.End()

	if p.traceSQL {
		span.SetAttributes(attribute.String("db.statement", db.Statement.SQL.String()))
	}
	if db.Statement.Table != "" {
		span.SetAttributes(attribute.String("db.table", db.Statement.Table))
	}
	span.SetAttributes(attribute.Int64("db.rows_affected", db.Statement.RowsAffected))

	if db.Error != nil && !errors.Is(db.Error, gorm.ErrRecordNotFound) {
		span.RecordError(db.Error)
		span.SetStatus(codes.Error, db.Error.Error())
	}
}
