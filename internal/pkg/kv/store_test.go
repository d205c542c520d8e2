package kv

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type record struct {
	Count int `json:"count"`
}

func setupStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("Failed to start miniredis: %v", err)
	}
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		client.Close()
		mr.Close()
	})

	return NewStore(client, "test:", time.Hour), mr
}

func TestStore_GetJSON_Missing(t *testing.T) {
	store, _ := setupStore(t)

	var r record
	found, err := store.GetJSON(context.Background(), "missing", &r)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestStore_SetAndGet(t *testing.T) {
	store, mr := setupStore(t)
	ctx := context.Background()

	require.NoError(t, store.SetJSON(ctx, "k", record{Count: 3}))

	var r record
	found, err := store.GetJSON(ctx, "k", &r)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, 3, r.Count)

	// 写入带前缀与 TTL
	assert.True(t, mr.Exists("test:k"))
	assert.Equal(t, time.Hour, mr.TTL("test:k"))
}

func TestStore_GetJSON_Corrupt(t *testing.T) {
	store, mr := setupStore(t)
	require.NoError(t, mr.Set("test:bad", "{not json"))

	var r record
	_, err := store.GetJSON(context.Background(), "bad", &r)
	assert.Error(t, err)
}

func TestStore_Update(t *testing.T) {
	store, _ := setupStore(t)
	ctx := context.Background()

	incr := func(current []byte) ([]byte, error) {
		var r record
		if current != nil {
			if err := json.Unmarshal(current, &r); err != nil {
				return nil, err
			}
		}
		r.Count++
		return json.Marshal(r)
	}

	require.NoError(t, store.Update(ctx, "counter", incr))
	require.NoError(t, store.Update(ctx, "counter", incr))

	var r record
	_, err := store.GetJSON(ctx, "counter", &r)
	require.NoError(t, err)
	assert.Equal(t, 2, r.Count)
}

func TestStore_Update_AbortKeepsValue(t *testing.T) {
	store, _ := setupStore(t)
	ctx := context.Background()
	require.NoError(t, store.SetJSON(ctx, "k", record{Count: 7}))

	errStop := errors.New("stop")
	err := store.Update(ctx, "k", func([]byte) ([]byte, error) { return nil, errStop })
	assert.ErrorIs(t, err, errStop)

	var r record
	_, err = store.GetJSON(ctx, "k", &r)
	require.NoError(t, err)
	assert.Equal(t, 7, r.Count)
}

func TestStore_Unreachable(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	addr := mr.Addr()
	mr.Close()

	client := redis.NewClient(&redis.Options{Addr: addr, MaxRetries: -1})
	defer client.Close()
	store := NewStore(client, "test:", time.Hour)

	var r record
	_, err = store.GetJSON(context.Background(), "k", &r)
	assert.Error(t, err)
}
