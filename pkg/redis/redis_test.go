package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/screener/pkg/config"
)

type testKey string

func (k testKey) CacheKey() string { return "t:" + string(k) }

type payload struct {
	Value int `json:"value"`
}

func TestNew_Disabled(t *testing.T) {
	client, err := New(&config.Config{Redis: config.RedisConfig{Enabled: false}})
	require.NoError(t, err)
	assert.False(t, client.Enabled())

	cache := NewCache(client, "screener")
	var dest payload
	found, err := cache.Get(context.Background(), testKey("a"), &dest)
	assert.NoError(t, err)
	assert.False(t, found)
	assert.NoError(t, cache.Set(context.Background(), testKey("a"), payload{1}, time.Minute))
	assert.NoError(t, cache.Delete(context.Background(), testKey("a")))
}

func TestCache_GetHitMissAndError(t *testing.T) {
	db, mock := redismock.NewClientMock()
	cache := NewCache(NewFromClient(db), "screener")
	ctx := context.Background()

	mock.ExpectGet("screener:cache:t:hit").SetVal(`{"value":7}`)
	var dest payload
	found, err := cache.Get(ctx, testKey("hit"), &dest)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, 7, dest.Value)

	mock.ExpectGet("screener:cache:t:miss").RedisNil()
	found, err = cache.Get(ctx, testKey("miss"), &dest)
	require.NoError(t, err)
	assert.False(t, found)

	mock.ExpectGet("screener:cache:t:down").SetErr(errors.New("connection refused"))
	_, err = cache.Get(ctx, testKey("down"), &dest)
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrCorruptEntry)

	mock.ExpectGet("screener:cache:t:bad").SetVal(`{not json`)
	_, err = cache.Get(ctx, testKey("bad"), &dest)
	assert.ErrorIs(t, err, ErrCorruptEntry)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCache_SetAndDelete(t *testing.T) {
	db, mock := redismock.NewClientMock()
	cache := NewCache(NewFromClient(db), "screener")
	ctx := context.Background()

	mock.ExpectSet("screener:cache:t:k", []byte(`{"value":3}`), time.Hour).SetVal("OK")
	require.NoError(t, cache.Set(ctx, testKey("k"), payload{3}, time.Hour))

	mock.ExpectDel("screener:cache:t:k").SetVal(1)
	require.NoError(t, cache.Delete(ctx, testKey("k")))

	assert.NoError(t, mock.ExpectationsWereMet())
}
