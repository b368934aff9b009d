package otel

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
)

// DBSpan 为数据库操作创建 span
func DBSpan(ctx context.Context, operation string, query string) (context.Context, trace.Span) {
	return Tracer().Start(ctx, "db."+operation,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			semconv.DBSystemKey.String("postgresql"),
			semconv.DBOperationKey.String(operation),
			attribute.String("db.statement", query),
		),
	)
}

// WrapDBError 记录数据库错误到 span，ErrNoRows 不算错误
func WrapDBError(span trace.Span, err error) {
	switch {
	case err == nil:
		span.SetStatus(codes.Ok, "")
	case errors.Is(err, pgx.ErrNoRows):
		span.SetStatus(codes.Ok, "no rows")
	default:
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

func traced(ctx context.Context, operation, query string, fn func(context.Context) error) error {
	ctx, span := DBSpan(ctx, operation, query)
	defer span.End()

	err := fn(ctx)
	WrapDBError(span, err)
	return err
}

// QueryRow 包装 pgx QueryRow 操作，自动添加追踪
func QueryRow(ctx context.Context, operation string, query string, fn func(context.Context) error) error {
	return traced(ctx, operation, query, fn)
}

// Exec 包装 pgx Exec 操作，自动添加追踪
func Exec(ctx context.Context, operation string, query string, fn func(context.Context) error) error {
	return traced(ctx, operation, query, fn)
}

// Query 包装 pgx Query 操作，自动添加追踪
func Query(ctx context.Context, operation string, query string, fn func(context.Context) error) error {
	return traced(ctx, operation, query, fn)
}
