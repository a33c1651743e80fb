// Package ticketlock serializes confirm scans per ticket. At most one
// confirm may hold a ticket's lock; a losing caller is told to retry
// rather than queued. The TTL is a safety net against crashed holders.
package ticketlock

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

const keyPrefix = "ticket_lock:"

// releaseScript deletes the lock only if the caller still owns it, so a
// slow holder cannot free a lock that already expired and was re-taken.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

type Manager struct {
	Client    *redis.Client
	TTL       time.Duration
	OpTimeout time.Duration
}

func NewManager(client *redis.Client, ttl, opTimeout time.Duration) *Manager {
	return &Manager{Client: client, TTL: ttl, OpTimeout: opTimeout}
}

// Lock is a held per-ticket mutual exclusion. Release it exactly once.
type Lock struct {
	manager  *Manager
	ticketID string
	owner    string
}

func (m *Manager) opCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if m.OpTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, m.OpTimeout)
}

// Acquire takes the ticket's lock in a single attempt. ok=false means
// another confirm currently holds it.
func (m *Manager) Acquire(ctx context.Context, ticketID string) (*Lock, bool, error) {
	opCtx, cancel := m.opCtx(ctx)
	defer cancel()

	owner := uuid.NewString()
	ok, err := m.Client.SetNX(opCtx, keyPrefix+ticketID, owner, m.TTL).Result()
	if err != nil {
		return nil, false, fmt.Errorf("failed to acquire ticket lock: %w", err)
	}
	if !ok {
		return nil, false, nil
	}
	return &Lock{manager: m, ticketID: ticketID, owner: owner}, true, nil
}

// Release frees the lock if this holder still owns it.
func (l *Lock) Release(ctx context.Context) error {
	opCtx, cancel := l.manager.opCtx(ctx)
	defer cancel()

	if err := releaseScript.Run(opCtx, l.manager.Client, []string{keyPrefix + l.ticketID}, l.owner).Err(); err != nil && err != redis.Nil {
		return fmt.Errorf("failed to release ticket lock: %w", err)
	}
	return nil
}
