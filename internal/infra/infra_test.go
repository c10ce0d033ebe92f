package infra

import (
	"context"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestNewRedisClient(t *testing.T) {
	mr := miniredis.RunT(t)

	client, err := NewRedisClient(context.Background(), "redis://"+mr.Addr(), "FundFlow API")
	require.NoError(t, err)
	defer client.Close()
	assert.Equal(t, "PONG", client.Ping(context.Background()).Val())
	assert.Equal(t, "fundflow-api", client.ClientGetName(context.Background()).Val())

	_, err = NewRedisClient(context.Background(), "", "fundflow")
	assert.Error(t, err)
	_, err = NewRedisClient(context.Background(), "not-a-url", "fundflow")
	assert.Error(t, err)
}

func TestRedisCommandsAreTraced(t *testing.T) {
	mr := miniredis.RunT(t)
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	client.AddHook(&redisTracer{tracer: provider.Tracer("test")})

	ctx := context.Background()
	require.NoError(t, client.Set(ctx, "k", "v", 0).Err())
	require.ErrorIs(t, client.Get(ctx, "missing").Err(), redis.Nil)
	_, err := client.Pipelined(ctx, func(p redis.Pipeliner) error {
		p.Incr(ctx, "n")
		p.Incr(ctx, "n")
		return nil
	})
	require.NoError(t, err)

	byName := map[string]sdktrace.ReadOnlySpan{}
	for _, s := range recorder.Ended() {
		byName[s.Name()] = s
	}
	require.Contains(t, byName, "redis SET")
	require.Contains(t, byName, "redis GET")
	require.Contains(t, byName, "redis pipeline")
	assert.Equal(t, codes.Unset, byName["redis GET"].Status().Code, "cache miss is not an error")
}

func TestNewPostgresPoolRequiresURL(t *testing.T) {
	_, err := NewPostgresPool(context.Background(), "")
	assert.Error(t, err)
}

func TestOperation(t *testing.T) {
	assert.Equal(t, "SELECT", operation("  select id FROM users"))
	assert.Equal(t, "UPDATE", operation("UPDATE fund_requests SET status = $1"))
	assert.Equal(t, "QUERY", operation(""))
}
