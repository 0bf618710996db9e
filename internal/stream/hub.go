// Package stream pushes ride chat messages to connected websocket clients.
//
// With Redis configured every instance pattern-subscribes to all ride chat
// channels, so a message posted on one instance reaches clients connected to
// any other. Without Redis, or when a publish fails, delivery is local only.
package stream

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	channelPrefix  = "ride:"
	channelSuffix  = ":messages"
	channelPattern = channelPrefix + "*" + channelSuffix
)

type Hub struct {
	redis      *redis.Client
	pubsub     *redis.PubSub
	subscribed bool
	done       chan struct{}
	log        *zap.Logger

	mu      sync.RWMutex
	clients map[string]map[*Client]struct{}
}

type Client struct {
	RideID string
	Send   chan []byte
}

func NewHub(redisClient *redis.Client, log *zap.Logger) *Hub {
	if log == nil {
		log = zap.NewNop()
	}
	h := &Hub{
		redis:   redisClient,
		done:    make(chan struct{}),
		log:     log.Named("stream"),
		clients: map[string]map[*Client]struct{}{},
	}

	if redisClient == nil {
		close(h.done)
		return h
	}
	h.pubsub = redisClient.PSubscribe(context.Background(), channelPattern)
	// Receive waits for the subscription confirmation so nothing published
	// right after startup is missed.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := h.pubsub.Receive(ctx); err != nil {
		h.log.Warn("ride chat subscription unavailable, delivering locally", zap.Error(err))
		_ = h.pubsub.Close()
		h.pubsub = nil
		close(h.done)
		return h
	}
	h.subscribed = true
	go h.forward()
	return h
}

func (h *Hub) Register(rideID string) *Client {
	client := &Client{
		RideID: rideID,
		Send:   make(chan []byte, 64),
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[rideID] == nil {
		h.clients[rideID] = map[*Client]struct{}{}
	}
	h.clients[rideID][client] = struct{}{}
	return client
}

func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	rideClients, ok := h.clients[client.RideID]
	if !ok {
		return
	}
	if _, ok := rideClients[client]; !ok {
		return
	}
	delete(rideClients, client)
	if len(rideClients) == 0 {
		delete(h.clients, client.RideID)
	}
	close(client.Send)
}

// Publish sends payload to every subscriber of rideID.
func (h *Hub) Publish(rideID string, payload []byte) {
	if !h.subscribed {
		h.deliver(rideID, payload)
		return
	}
	err := h.redis.Publish(context.Background(), rideChannel(rideID), payload).Err()
	if err != nil {
		h.log.Warn("ride chat publish failed, delivering locally", zap.String("ride", rideID), zap.Error(err))
		h.deliver(rideID, payload)
	}
}

// Close stops the Redis subscription. Registered clients stay open.
func (h *Hub) Close() {
	if h.pubsub != nil {
		_ = h.pubsub.Close()
	}
	<-h.done
}

func (h *Hub) forward() {
	defer close(h.done)
	for msg := range h.pubsub.Channel() {
		rideID := rideIDFromChannel(msg.Channel)
		if rideID == "" {
			continue
		}
		h.deliver(rideID, []byte(msg.Payload))
	}
}

// deliver drops the message for clients whose buffer is full rather than
// stalling every other subscriber.
func (h *Hub) deliver(rideID string, payload []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.clients[rideID] {
		select {
		case client.Send <- payload:
		default:
			h.log.Debug("slow chat client, message dropped", zap.String("ride", rideID))
		}
	}
}

func rideChannel(rideID string) string {
	return channelPrefix + rideID + channelSuffix
}

func rideIDFromChannel(ch string) string {
	if !strings.HasPrefix(ch, channelPrefix) || !strings.HasSuffix(ch, channelSuffix) {
		return ""
	}
	return ch[len(channelPrefix) : len(ch)-len(channelSuffix)]
}
