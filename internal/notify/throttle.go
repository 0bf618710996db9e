package notify

import (
	"context"
	"fmt"
	"time"

	"backend-groupridemtb/internal/db"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// DefaultThrottleWindow is the quiet period between repeat notifications of
// the same kind and scope to one recipient.
const DefaultThrottleWindow = 24 * time.Hour

type ThrottleRecord struct {
	RecipientID string
	Kind        Kind
	ScopeKey    string
	SentAt      time.Time
	Metadata    map[string]any
}

// ThrottleStore persists successful sends. Implementations must be safe for
// concurrent use.
type ThrottleStore interface {
	SentSince(ctx context.Context, recipientID string, kind Kind, scopeKey string, since time.Time) (bool, error)
	Record(ctx context.Context, rec ThrottleRecord) error
}

type Throttle struct {
	store ThrottleStore
	now   func() time.Time
}

func NewThrottle(store ThrottleStore) *Throttle {
	return &Throttle{store: store, now: time.Now}
}

// HasRecentSend reports whether recipientID already got a kind/scope
// notification inside window.
func (t *Throttle) HasRecentSend(ctx context.Context, recipientID string, kind Kind, scopeKey string, window time.Duration) (bool, error) {
	if window <= 0 {
		return false, nil
	}
	return t.store.SentSince(ctx, recipientID, kind, scopeKey, t.now().Add(-window))
}

// RecordSend stores a confirmed delivery. Call it only after the gateway
// accepted the message.
func (t *Throttle) RecordSend(ctx context.Context, recipientID string, kind Kind, scopeKey string, metadata map[string]any) error {
	return t.store.Record(ctx, ThrottleRecord{
		RecipientID: recipientID,
		Kind:        kind,
		ScopeKey:    scopeKey,
		SentAt:      t.now(),
		Metadata:    metadata,
	})
}

// PGThrottleStore keeps throttle rows in notification_logs.
type PGThrottleStore struct {
	db db.Querier
}

func NewPGThrottleStore(q db.Querier) *PGThrottleStore {
	return &PGThrottleStore{db: q}
}

func (s *PGThrottleStore) SentSince(ctx context.Context, recipientID string, kind Kind, scopeKey string, since time.Time) (bool, error) {
	var found bool
	err := s.db.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM notification_logs
			WHERE user_id=$1 AND kind=$2 AND scope_key=$3 AND sent_at > $4
		)
	`, recipientID, string(kind), scopeKey, since).Scan(&found)
	if err != nil {
		return false, fmt.Errorf("throttle lookup: %w", err)
	}
	return found, nil
}

func (s *PGThrottleStore) Record(ctx context.Context, rec ThrottleRecord) error {
	meta, err := json.Marshal(rec.Metadata)
	if err != nil {
		return fmt.Errorf("throttle metadata: %w", err)
	}
	_, err = s.db.Exec(ctx, `
		INSERT INTO notification_logs (id, user_id, kind, scope_key, sent_at, metadata)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, uuid.NewString(), rec.RecipientID, string(rec.Kind), rec.ScopeKey, rec.SentAt, meta)
	if err != nil {
		return fmt.Errorf("throttle record: %w", err)
	}
	return nil
}

// RedisThrottleStore keeps only the latest send per key, expiring after ttl.
// ttl must be at least the largest window callers ask about.
type RedisThrottleStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisThrottleStore(client *redis.Client, ttl time.Duration) *RedisThrottleStore {
	if ttl <= 0 {
		ttl = DefaultThrottleWindow
	}
	return &RedisThrottleStore{client: client, ttl: ttl}
}

func throttleKey(recipientID string, kind Kind, scopeKey string) string {
	return "notify:throttle:" + string(kind) + ":" + scopeKey + ":" + recipientID
}

func (s *RedisThrottleStore) SentSince(ctx context.Context, recipientID string, kind Kind, scopeKey string, since time.Time) (bool, error) {
	sentAt, err := s.client.Get(ctx, throttleKey(recipientID, kind, scopeKey)).Int64()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("throttle lookup: %w", err)
	}
	return time.Unix(0, sentAt).After(since), nil
}

func (s *RedisThrottleStore) Record(ctx context.Context, rec ThrottleRecord) error {
	err := s.client.Set(ctx, throttleKey(rec.RecipientID, rec.Kind, rec.ScopeKey), rec.SentAt.UnixNano(), s.ttl).Err()
	if err != nil {
		return fmt.Errorf("throttle record: %w", err)
	}
	return nil
}
