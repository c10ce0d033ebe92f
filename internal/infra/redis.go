package infra

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/rayenfassatoui/amen-bank/internal/telemetry"
)

// NewRedisClient connects to the cache used for idempotency, shared rate
// limits and lifecycle events. The connection is registered under name so
// it shows up in CLIENT LIST, and every command is traced.
func NewRedisClient(ctx context.Context, url, name string) (*redis.Client, error) {
	if url == "" {
		return nil, fmt.Errorf("redis url is required")
	}

	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	if opt.ClientName == "" {
		opt.ClientName = clientName(name)
	}

	client := redis.NewClient(opt)
	client.AddHook(newRedisTracer())

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// clientName lower-cases name and drops the whitespace Redis rejects.
func clientName(name string) string {
	return strings.ToLower(strings.Join(strings.Fields(name), "-"))
}

// redisTracer is a go-redis hook that opens one client span per command
// or pipeline.
type redisTracer struct {
	tracer trace.Tracer
}

func newRedisTracer() *redisTracer {
	return &redisTracer{tracer: otel.Tracer(telemetry.TracerName)}
}

func (t *redisTracer) DialHook(next redis.DialHook) redis.DialHook {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		return next(ctx, network, addr)
	}
}

func (t *redisTracer) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		ctx, span := t.start(ctx, "redis "+strings.ToUpper(cmd.Name()), 1)
		err := next(ctx, cmd)
		finishRedisSpan(span, err)
		return err
	}
}

func (t *redisTracer) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redis.Cmder) error {
		ctx, span := t.start(ctx, "redis pipeline", len(cmds))
		err := next(ctx, cmds)
		finishRedisSpan(span, err)
		return err
	}
}

func (t *redisTracer) start(ctx context.Context, name string, n int) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, name,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("db.system", "redis"),
			attribute.Int("db.redis.num_cmd", n),
		))
}

// finishRedisSpan ends span. redis.Nil is a cache miss, not a failure.
func finishRedisSpan(span trace.Span, err error) {
	if err != nil && !errors.Is(err, redis.Nil) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
