package stream

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// streamChannel is the shared redis channel used to fan events out to
// other instances. Envelopes carry the topic and the publishing
// instance id so each hub can skip its own messages.
const streamChannel = "fitness:events"

type Hub struct {
	id      string
	redis   *redis.Client
	log     *slog.Logger
	clients map[string]map[*Client]struct{}
	mu      sync.RWMutex
}

type Client struct {
	Topic string
	Send  chan []byte
}

type envelope struct {
	Src     string `json:"src"`
	Topic   string `json:"topic"`
	Payload []byte `json:"payload"`
}

func NewHub(redisClient *redis.Client, log *slog.Logger) *Hub {
	if log == nil {
		log = slog.Default()
	}
	h := &Hub{
		id:      uuid.NewString(),
		redis:   redisClient,
		log:     log,
		clients: map[string]map[*Client]struct{}{},
	}

	if redisClient != nil {
		go h.subscribeRedis()
	}
	return h
}

func (h *Hub) Register(topic string) *Client {
	client := &Client{
		Topic: topic,
		Send:  make(chan []byte, 64),
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[topic] == nil {
		h.clients[topic] = map[*Client]struct{}{}
	}
	h.clients[topic][client] = struct{}{}
	return client
}

func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if topicClients, ok := h.clients[client.Topic]; ok {
		delete(topicClients, client)
		if len(topicClients) == 0 {
			delete(h.clients, client.Topic)
		}
	}
	close(client.Send)
}

// Broadcast delivers payload to local subscribers of topic and relays
// it to other instances through redis when one is attached.
func (h *Hub) Broadcast(topic string, payload []byte) {
	h.deliver(topic, payload)

	if h.redis == nil {
		return
	}
	msg, err := json.Marshal(envelope{Src: h.id, Topic: topic, Payload: payload})
	if err != nil {
		h.log.Error("stream envelope marshal", "error", err)
		return
	}
	if err := h.redis.Publish(context.Background(), streamChannel, msg).Err(); err != nil {
		h.log.Error("stream redis publish", "error", err)
	}
}

func (h *Hub) deliver(topic string, payload []byte) {
	h.mu.RLock()
	clients := h.clients[topic]
	h.mu.RUnlock()

	for client := range clients {
		select {
		case client.Send <- payload:
		default:
		}
	}
}

func (h *Hub) subscribeRedis() {
	ctx := context.Background()
	pubsub := h.redis.Subscribe(ctx, streamChannel)
	defer pubsub.Close()

	for msg := range pubsub.Channel() {
		var env envelope
		if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
			h.log.Warn("stream envelope decode", "error", err)
			continue
		}
		if env.Src == h.id {
			continue
		}
		h.deliver(env.Topic, env.Payload)
	}
}
