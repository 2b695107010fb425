package stream

import (
	"sync"

	"github.com/bytedance/sonic"
	log "github.com/sirupsen/logrus"
)

const subscriberBuffer = 64

type frame struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

// EncodeFrame marshals a topic-tagged event envelope.
func EncodeFrame(topic string, payload any) ([]byte, error) {
	return sonic.Marshal(frame{Type: topic, Payload: payload})
}

// Hub fans out event frames to every subscribed connection. Sends never
// block: a subscriber that cannot keep up loses frames instead of stalling
// the publisher, and frames are delivered FIFO per connection.
type Hub struct {
	logger *log.Logger

	mu   sync.Mutex
	subs map[string]chan []byte
}

// NewHub creates an empty hub.
func NewHub(logger *log.Logger) *Hub {
	if logger == nil {
		logger = log.New()
	}
	return &Hub{logger: logger, subs: make(map[string]chan []byte)}
}

// Subscribe registers a connection and returns its frame channel. An
// existing subscription under the same id is replaced.
func (h *Hub) Subscribe(connectionID string) <-chan []byte {
	ch := make(chan []byte, subscriberBuffer)
	h.mu.Lock()
	h.subs[connectionID] = ch
	h.mu.Unlock()
	return ch
}

// Unsubscribe removes the connection. The channel is left open so a
// concurrent Deliver never sends on a closed channel.
func (h *Hub) Unsubscribe(connectionID string) {
	h.mu.Lock()
	delete(h.subs, connectionID)
	h.mu.Unlock()
}

// Publish encodes the event and delivers it to every subscriber.
func (h *Hub) Publish(topic string, payload any) {
	data, err := EncodeFrame(topic, payload)
	if err != nil {
		h.logger.WithError(err).WithField("topic", topic).Error("encode event frame")
		return
	}
	h.Deliver(data)
}

// Deliver fans an already encoded frame out to every subscriber.
func (h *Hub) Deliver(data []byte) {
	h.mu.Lock()
	for id, ch := range h.subs {
		select {
		case ch <- data:
		default:
			h.logger.WithField("connection", id).Debug("subscriber buffer full, dropping frame")
		}
	}
	h.mu.Unlock()
}
