package ws

import (
	"context"
	"sync"

	"llm-arena/backend/conversation/models"
	"llm-arena/backend/pkg/logger"
	pkgws "llm-arena/backend/pkg/ws"
)

type subscription struct {
	client *Client
	topic  string
}

type delivery struct {
	topic   string
	payload []byte
}

// Hub fans stream events out to websocket clients subscribed to a topic.
// It implements the orchestrator's event sink.
type Hub struct {
	topics      map[string]map[*Client]bool
	subscribe   chan subscription
	unsubscribe chan subscription
	unregister  chan *Client
	broadcast   chan delivery
	log         *logger.Logger

	mu     sync.RWMutex
	counts map[string]int
}

func NewHub(log *logger.Logger) *Hub {
	return &Hub{
		topics:      make(map[string]map[*Client]bool),
		subscribe:   make(chan subscription),
		unsubscribe: make(chan subscription),
		unregister:  make(chan *Client),
		broadcast:   make(chan delivery, 256),
		log:         log.WithComponent("ws_hub"),
		counts:      make(map[string]int),
	}
}

// Run owns the subscription table until ctx is done
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			for _, clients := range h.topics {
				for c := range clients {
					h.drop(c)
				}
			}
			return

		case sub := <-h.subscribe:
			if sub.client.closed {
				continue
			}
			clients, ok := h.topics[sub.topic]
			if !ok {
				clients = make(map[*Client]bool)
				h.topics[sub.topic] = clients
			}
			clients[sub.client] = true
			sub.client.topics[sub.topic] = true
			h.recount(sub.topic)
			h.log.Debug("Client subscribed", "client_id", sub.client.ID, "topic", sub.topic)

		case sub := <-h.unsubscribe:
			delete(h.topics[sub.topic], sub.client)
			delete(sub.client.topics, sub.topic)
			h.recount(sub.topic)

		case c := <-h.unregister:
			h.drop(c)

		case d := <-h.broadcast:
			for c := range h.topics[d.topic] {
				select {
				case c.send <- d.payload:
				default:
					h.log.Warn("Dropping slow websocket client", "client_id", c.ID)
					h.drop(c)
				}
			}
		}
	}
}

// drop must only be called from Run
func (h *Hub) drop(c *Client) {
	if c.closed {
		return
	}
	for topic := range c.topics {
		delete(h.topics[topic], c)
		if len(h.topics[topic]) == 0 {
			delete(h.topics, topic)
		}
		h.recount(topic)
	}
	c.closed = true
	close(c.send)
}

func (h *Hub) recount(topic string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if n := len(h.topics[topic]); n > 0 {
		h.counts[topic] = n
	} else {
		delete(h.counts, topic)
	}
}

// Subscribers returns how many clients currently follow topic
func (h *Hub) Subscribers(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.counts[topic]
}

// Publish queues event for every subscriber of topic
func (h *Hub) Publish(ctx context.Context, topic string, event models.StreamEvent) error {
	if h.Subscribers(topic) == 0 {
		return nil
	}
	payload, err := pkgws.Encode(string(event.Kind), topic, event)
	if err != nil {
		return err
	}
	select {
	case h.broadcast <- delivery{topic: topic, payload: payload}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
