package session_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"ms-admission/internal/session"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupStore(t *testing.T) (*session.Store, *miniredis.Miniredis) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("Failed to create miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return session.NewStore(client, 20*time.Second, 2*time.Second), mr
}

func TestCreateAndPeek(t *testing.T) {
	store, _ := setupStore(t)
	ctx := context.Background()

	token, nonce, expiresAt, err := store.Create(ctx, "ticket-1")
	require.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.NotEmpty(t, nonce)
	assert.WithinDuration(t, time.Now().Add(20*time.Second), expiresAt, time.Second)

	sess, ok, err := store.Peek(ctx, token)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "ticket-1", sess.TicketID)
	assert.Equal(t, nonce, sess.Nonce)

	// Peek does not consume
	_, ok, err = store.Peek(ctx, token)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestConsume_DeletesSession(t *testing.T) {
	store, _ := setupStore(t)
	ctx := context.Background()

	token, nonce, _, err := store.Create(ctx, "ticket-1")
	require.NoError(t, err)

	sess, ok, err := store.Consume(ctx, token)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "ticket-1", sess.TicketID)
	assert.Equal(t, nonce, sess.Nonce)

	// Second consume must fail
	_, ok, err = store.Consume(ctx, token)
	require.NoError(t, err)
	assert.False(t, ok, "a session must be consumable exactly once")
}

func TestConsume_UnknownToken(t *testing.T) {
	store, _ := setupStore(t)

	_, ok, err := store.Consume(context.Background(), "no-such-token")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestConsume_Expired(t *testing.T) {
	store, mr := setupStore(t)
	ctx := context.Background()

	token, _, _, err := store.Create(ctx, "ticket-1")
	require.NoError(t, err)

	mr.FastForward(21 * time.Second)

	_, ok, err := store.Consume(ctx, token)
	require.NoError(t, err)
	assert.False(t, ok, "expired sessions must be indistinguishable from absent ones")
}

func TestConsume_RacingCallers(t *testing.T) {
	store, _ := setupStore(t)
	ctx := context.Background()

	token, _, _, err := store.Create(ctx, "ticket-1")
	require.NoError(t, err)

	const callers = 8
	var wg sync.WaitGroup
	var mu sync.Mutex
	winners := 0

	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, ok, err := store.Consume(ctx, token)
			if err == nil && ok {
				mu.Lock()
				winners++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, winners, "exactly one caller may redeem a session")
}
