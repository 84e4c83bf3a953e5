package services

import (
	"context"
	"testing"
	"time"

	"github.com/go-redis/redismock/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIdempotencyService_Redis(t *testing.T) {
	ctx := context.Background()

	t.Run("first request reserves the key", func(t *testing.T) {
		client, mock := redismock.NewClientMock()
		svc := NewIdempotencyService(client)
		key := svc.Key("user-1", "req-1")

		mock.ExpectGet(key + ":result").RedisNil()
		mock.Regexp().ExpectSetNX(key+":lock", `.+`, 45*time.Second).SetVal(true)

		res, err := svc.CheckAndReserve(ctx, key)
		require.NoError(t, err)
		assert.True(t, res.IsNew)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("completed duplicate replays the cached result", func(t *testing.T) {
		client, mock := redismock.NewClientMock()
		svc := NewIdempotencyService(client)
		key := svc.Key("user-1", "req-1")

		mock.ExpectGet(key + ":result").SetVal(`{"newBalance":900}`)

		res, err := svc.CheckAndReserve(ctx, key)
		require.NoError(t, err)
		assert.False(t, res.IsNew)
		assert.JSONEq(t, `{"newBalance":900}`, string(res.CachedResult))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("concurrent duplicate is rejected", func(t *testing.T) {
		client, mock := redismock.NewClientMock()
		svc := NewIdempotencyService(client)
		key := svc.Key("user-1", "req-1")

		mock.ExpectGet(key + ":result").RedisNil()
		mock.Regexp().ExpectSetNX(key+":lock", `.+`, 45*time.Second).SetVal(false)
		mock.ExpectGet(key + ":result").RedisNil()

		_, err := svc.CheckAndReserve(ctx, key)
		assert.ErrorIs(t, err, ErrDuplicateInProgress)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("lost race but winner already finished", func(t *testing.T) {
		client, mock := redismock.NewClientMock()
		svc := NewIdempotencyService(client)
		key := svc.Key("user-1", "req-1")

		mock.ExpectGet(key + ":result").RedisNil()
		mock.Regexp().ExpectSetNX(key+":lock", `.+`, 45*time.Second).SetVal(false)
		mock.ExpectGet(key + ":result").SetVal(`{"done":true}`)

		res, err := svc.CheckAndReserve(ctx, key)
		require.NoError(t, err)
		assert.False(t, res.IsNew)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestIdempotencyService_LocalFallback(t *testing.T) {
	ctx := context.Background()

	t.Run("duplicate in flight is rejected", func(t *testing.T) {
		svc := NewIdempotencyService(nil)
		key := svc.Key("user-1", "req-1")

		res, err := svc.CheckAndReserve(ctx, key)
		require.NoError(t, err)
		assert.True(t, res.IsNew)

		_, err = svc.CheckAndReserve(ctx, key)
		assert.ErrorIs(t, err, ErrDuplicateInProgress)
	})

	t.Run("completed request replays its result", func(t *testing.T) {
		svc := NewIdempotencyService(nil)
		key := svc.Key("user-1", "req-2")

		res, err := svc.CheckAndReserve(ctx, key)
		require.NoError(t, err)
		require.True(t, res.IsNew)

		svc.Complete(ctx, key, res, map[string]any{"newBalance": 900})

		replay, err := svc.CheckAndReserve(ctx, key)
		require.NoError(t, err)
		assert.False(t, replay.IsNew)
		assert.JSONEq(t, `{"newBalance":900}`, string(replay.CachedResult))
	})

	t.Run("released reservation can be retried", func(t *testing.T) {
		svc := NewIdempotencyService(nil)
		key := svc.Key("user-1", "req-3")

		res, err := svc.CheckAndReserve(ctx, key)
		require.NoError(t, err)

		svc.Release(ctx, key, res)

		retry, err := svc.CheckAndReserve(ctx, key)
		require.NoError(t, err)
		assert.True(t, retry.IsNew)
	})

	t.Run("keys are scoped per user", func(t *testing.T) {
		svc := NewIdempotencyService(nil)

		resA, err := svc.CheckAndReserve(ctx, svc.Key("user-a", "req-1"))
		require.NoError(t, err)
		assert.True(t, resA.IsNew)

		resB, err := svc.CheckAndReserve(ctx, svc.Key("user-b", "req-1"))
		require.NoError(t, err)
		assert.True(t, resB.IsNew)
	})
}
