package server

import (
	"context"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"backend-groupridemtb/internal/config"
	"backend-groupridemtb/internal/notify"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func TestHealthRoute(t *testing.T) {
	s := NewServer(config.Config{JWTSecret: "secret", ServerPort: ":0"}, nil, nil, nil)

	req := httptest.NewRequest("GET", "/health", nil)
	resp, err := s.App.Test(req)
	if err != nil {
		t.Fatalf("test request: %v", err)
	}
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200 status")
	}
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), `"email":false`) {
		t.Fatalf("expected email flag in %s", body)
	}
}

func TestMetricsRoute(t *testing.T) {
	s := NewServer(config.Config{JWTSecret: "secret"}, nil, nil, nil)

	// no provider configured, so this is a recorded no-op
	s.Notifier.Process(context.Background(), notify.RideMessage{RideID: "ride-1", SenderID: "ann"})

	resp, err := s.App.Test(httptest.NewRequest("GET", "/metrics", nil))
	if err != nil {
		t.Fatalf("test request: %v", err)
	}
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200 status, got %d", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "groupride_notification_dispatches_inflight") {
		t.Fatalf("expected notification metrics in output")
	}
	if !strings.Contains(string(body), "go_goroutines") {
		t.Fatalf("expected runtime metrics in output")
	}
}

func TestRoutesRequireAuth(t *testing.T) {
	s := NewServer(config.Config{JWTSecret: "secret"}, nil, nil, nil)

	for _, path := range []string{"/riders/me/preferences", "/messages/bob"} {
		resp, err := s.App.Test(httptest.NewRequest("GET", path, nil))
		if err != nil {
			t.Fatalf("test request %s: %v", path, err)
		}
		if resp.StatusCode != 401 {
			t.Fatalf("%s: expected 401, got %d", path, resp.StatusCode)
		}
	}
}

func TestThrottleBackendSelection(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	cfg := config.Config{ThrottleBackend: "redis", ThrottleWindow: time.Hour}
	if _, ok := newThrottleStore(cfg, nil, rdb, nil).(*notify.RedisThrottleStore); !ok {
		t.Fatalf("expected redis throttle store")
	}
	if _, ok := newThrottleStore(cfg, nil, nil, zap.NewNop()).(*notify.PGThrottleStore); !ok {
		t.Fatalf("expected postgres fallback without redis")
	}
	cfg.ThrottleBackend = "postgres"
	if _, ok := newThrottleStore(cfg, nil, rdb, nil).(*notify.PGThrottleStore); !ok {
		t.Fatalf("expected postgres throttle store")
	}
}

func TestDrain(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	s := NewServer(config.Config{JWTSecret: "secret"}, nil, rdb, nil)
	s.Notifier.Dispatch(notify.RideMessage{RideID: "ride-1", SenderID: "ann"})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.Drain(ctx); err != nil {
		t.Fatalf("drain: %v", err)
	}
}
