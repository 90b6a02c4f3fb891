package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"example.com/abtest/internal/domain"
)

// stubCmdable answers GET/SET from a map; the embedded interface panics on
// anything else.
type stubCmdable struct {
	goredis.Cmdable
	values  map[string]string
	ttls    map[string]time.Duration
	failGet bool
}

func (s *stubCmdable) Get(ctx context.Context, key string) *goredis.StringCmd {
	cmd := goredis.NewStringCmd(ctx, "get", key)
	if s.failGet {
		cmd.SetErr(errors.New("connection reset"))
		return cmd
	}
	v, ok := s.values[key]
	if !ok {
		cmd.SetErr(goredis.Nil)
		return cmd
	}
	cmd.SetVal(v)
	return cmd
}

func (s *stubCmdable) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) *goredis.StatusCmd {
	s.values[key] = value.(string)
	s.ttls[key] = ttl
	cmd := goredis.NewStatusCmd(ctx, "set", key, value)
	cmd.SetVal("OK")
	return cmd
}

func TestAssignmentCacheRoundTrip(t *testing.T) {
	ctx := context.Background()
	stub := &stubCmdable{values: map[string]string{}, ttls: map[string]time.Duration{}}
	c := NewAssignmentCache(stub, time.Hour)

	_, ok, err := c.Get(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Set(ctx, "u1", domain.VariantB))
	assert.Equal(t, "B", stub.values["abtest:assignment:u1"])
	assert.Equal(t, time.Hour, stub.ttls["abtest:assignment:u1"])

	v, ok, err := c.Get(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, domain.VariantB, v)
}

func TestAssignmentCacheGetError(t *testing.T) {
	stub := &stubCmdable{values: map[string]string{}, ttls: map[string]time.Duration{}, failGet: true}
	_, ok, err := NewAssignmentCache(stub, time.Minute).Get(context.Background(), "u1")
	assert.Error(t, err)
	assert.False(t, ok)
}
