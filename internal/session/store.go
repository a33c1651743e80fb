// Package session holds the short-lived scan sessions created by a QR
// scan. A session lives at most 20 seconds and is consumed exactly once
// by the confirm call that redeems it; redis expiry garbage-collects
// the rest.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"ms-admission/internal/utils"

	"github.com/go-redis/redis/v8"
)

const keyPrefix = "scan_session:"

// consumeScript deletes the session in the same step that reads it, so
// two confirms racing on one token can never both see it.
var consumeScript = redis.NewScript(`
local v = redis.call("GET", KEYS[1])
if v then
	redis.call("DEL", KEYS[1])
end
return v
`)

type Session struct {
	TicketID  string    `json:"ticket_id"`
	Nonce     string    `json:"nonce"`
	CreatedAt time.Time `json:"created_at"`
}

type Store struct {
	Client    *redis.Client
	TTL       time.Duration
	OpTimeout time.Duration
}

func NewStore(client *redis.Client, ttl, opTimeout time.Duration) *Store {
	return &Store{Client: client, TTL: ttl, OpTimeout: opTimeout}
}

func (s *Store) opCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.OpTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.OpTimeout)
}

// Create stores a fresh session for the ticket and returns its opaque
// token, nonce and expiry.
func (s *Store) Create(ctx context.Context, ticketID string) (token, nonce string, expiresAt time.Time, err error) {
	token, err = utils.NewScanToken()
	if err != nil {
		return "", "", time.Time{}, err
	}
	nonce, err = utils.NewNonce()
	if err != nil {
		return "", "", time.Time{}, err
	}

	sess := Session{
		TicketID:  ticketID,
		Nonce:     nonce,
		CreatedAt: time.Now(),
	}
	payload, err := json.Marshal(sess)
	if err != nil {
		return "", "", time.Time{}, fmt.Errorf("failed to marshal session: %w", err)
	}

	opCtx, cancel := s.opCtx(ctx)
	defer cancel()
	if err := s.Client.Set(opCtx, keyPrefix+token, payload, s.TTL).Err(); err != nil {
		return "", "", time.Time{}, fmt.Errorf("failed to store session: %w", err)
	}
	return token, nonce, sess.CreatedAt.Add(s.TTL), nil
}

// Peek reads a session without consuming it. Expired and absent
// sessions are indistinguishable.
func (s *Store) Peek(ctx context.Context, token string) (*Session, bool, error) {
	opCtx, cancel := s.opCtx(ctx)
	defer cancel()

	raw, err := s.Client.Get(opCtx, keyPrefix+token).Result()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read session: %w", err)
	}
	return decode(raw)
}

// Consume atomically reads and deletes a session. The second of two
// racing callers observes ok=false.
func (s *Store) Consume(ctx context.Context, token string) (*Session, bool, error) {
	opCtx, cancel := s.opCtx(ctx)
	defer cancel()

	res, err := consumeScript.Run(opCtx, s.Client, []string{keyPrefix + token}).Result()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to consume session: %w", err)
	}
	raw, ok := res.(string)
	if !ok {
		return nil, false, nil
	}
	return decode(raw)
}

func decode(raw string) (*Session, bool, error) {
	var sess Session
	if err := json.Unmarshal([]byte(raw), &sess); err != nil {
		return nil, false, fmt.Errorf("corrupt session payload: %w", err)
	}
	return &sess, true, nil
}
