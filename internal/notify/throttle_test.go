package notify

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/redis/go-redis/v9"
)

func TestThrottleWindow(t *testing.T) {
	store := &memoryThrottleStore{}
	clock := &testClock{now: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)}
	th := NewThrottle(store)
	th.now = clock.Now
	ctx := context.Background()

	if recent, _ := th.HasRecentSend(ctx, "ann", KindRideMessage, "ride-1", DefaultThrottleWindow); recent {
		t.Fatalf("nothing sent yet")
	}
	if err := th.RecordSend(ctx, "ann", KindRideMessage, "ride-1", nil); err != nil {
		t.Fatalf("record: %v", err)
	}
	clock.Advance(23 * time.Hour)
	if recent, _ := th.HasRecentSend(ctx, "ann", KindRideMessage, "ride-1", DefaultThrottleWindow); !recent {
		t.Fatalf("expected recent send inside window")
	}
	if recent, _ := th.HasRecentSend(ctx, "ann", KindRideMessage, "ride-2", DefaultThrottleWindow); recent {
		t.Fatalf("scope must narrow the lookup")
	}
	clock.Advance(2 * time.Hour)
	if recent, _ := th.HasRecentSend(ctx, "ann", KindRideMessage, "ride-1", DefaultThrottleWindow); recent {
		t.Fatalf("window elapsed")
	}
	if recent, _ := th.HasRecentSend(ctx, "ann", KindRideMessage, "ride-1", 0); recent {
		t.Fatalf("zero window never throttles")
	}
}

func TestPGThrottleStore(t *testing.T) {
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("mock pool: %v", err)
	}
	defer mock.Close()

	store := NewPGThrottleStore(mock)
	since := time.Now().Add(-time.Hour)

	mock.ExpectQuery(`SELECT EXISTS`).
		WithArgs("ann", "ride_message", "ride-1", since).
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))
	found, err := store.SentSince(context.Background(), "ann", KindRideMessage, "ride-1", since)
	if err != nil || !found {
		t.Fatalf("sent since: %v %v", found, err)
	}

	sentAt := time.Now()
	mock.ExpectExec(`INSERT INTO notification_logs`).
		WithArgs(pgxmock.AnyArg(), "ann", "ride_message", "ride-1", sentAt, []byte(`{"subject":"hi"}`)).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	err = store.Record(context.Background(), ThrottleRecord{
		RecipientID: "ann", Kind: KindRideMessage, ScopeKey: "ride-1", SentAt: sentAt,
		Metadata: map[string]any{"subject": "hi"},
	})
	if err != nil {
		t.Fatalf("record: %v", err)
	}

	mock.ExpectQuery(`SELECT EXISTS`).WillReturnError(errors.New("down"))
	if _, err := store.SentSince(context.Background(), "ann", KindRideMessage, "ride-1", since); err == nil {
		t.Fatalf("expected lookup error")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestRedisThrottleStore(t *testing.T) {
	s := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: s.Addr()})
	defer client.Close()

	store := NewRedisThrottleStore(client, 24*time.Hour)
	ctx := context.Background()
	now := time.Now()

	found, err := store.SentSince(ctx, "ann", KindDirectMessage, "bob", now.Add(-time.Hour))
	if err != nil || found {
		t.Fatalf("empty store: %v %v", found, err)
	}

	if err := store.Record(ctx, ThrottleRecord{RecipientID: "ann", Kind: KindDirectMessage, ScopeKey: "bob", SentAt: now}); err != nil {
		t.Fatalf("record: %v", err)
	}
	if !s.Exists("notify:throttle:direct_message:bob:ann") {
		t.Fatalf("expected throttle key")
	}
	if ttl := s.TTL("notify:throttle:direct_message:bob:ann"); ttl != 24*time.Hour {
		t.Fatalf("ttl = %v", ttl)
	}

	found, err = store.SentSince(ctx, "ann", KindDirectMessage, "bob", now.Add(-time.Hour))
	if err != nil || !found {
		t.Fatalf("recent send: %v %v", found, err)
	}
	found, _ = store.SentSince(ctx, "ann", KindDirectMessage, "bob", now.Add(time.Minute))
	if found {
		t.Fatalf("send older than since must not count")
	}

	s.FastForward(25 * time.Hour)
	found, _ = store.SentSince(ctx, "ann", KindDirectMessage, "bob", now.Add(-48*time.Hour))
	if found {
		t.Fatalf("expired key must not count")
	}
}
