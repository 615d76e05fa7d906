// Package push carries live changes between collaborators. In-process
// subscribers receive appointment updates by topic; browser clients receive
// layout snapshots over WebSocket. A topic is a resource ID.
package push

import (
	"encoding/json"
	"sync"
	"time"

	appLog "apptline/internal/log"
	"apptline/internal/model"
)

// Event types sent to WebSocket clients.
const (
	EventLayout = "layout"
	EventUpdate = "update"
)

// Event is a notification sent to WebSocket clients.
type Event struct {
	Type      string          `json:"type"`
	Topic     string          `json:"topic"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// ClientMessage is an inbound message from a WebSocket client.
type ClientMessage struct {
	Action string   `json:"action"`
	Topics []string `json:"topics"`
}

// Client is a single WebSocket connection.
type Client struct {
	ID     string
	Topics []string
	Send   chan []byte
}

// Hub tracks WebSocket clients by topic and the in-process update
// subscribers. It is safe for concurrent use.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]map[*Client]struct{} // topic -> clients
	all     map[*Client]struct{}

	smu     sync.RWMutex
	subs    map[string]map[int]func(model.UpdateMessage)
	nextSub int

	onClients func(int)
}

// Option configures a Hub.
type Option func(*Hub)

// WithClientGauge calls fn with the client count after every connect and
// disconnect.
func WithClientGauge(fn func(int)) Option {
	return func(h *Hub) { h.onClients = fn }
}

func NewHub(opts ...Option) *Hub {
	h := &Hub{
		clients:   make(map[string]map[*Client]struct{}),
		all:       make(map[*Client]struct{}),
		subs:      make(map[string]map[int]func(model.UpdateMessage)),
		onClients: func(int) {},
	}
	for _, o := range opts {
		o(h)
	}
	return h
}

// Subscribe registers fn for updates published on topic. The returned
// func removes it and may be called more than once.
func (h *Hub) Subscribe(topic string, fn func(model.UpdateMessage)) (unsubscribe func()) {
	h.smu.Lock()
	id := h.nextSub
	h.nextSub++
	if h.subs[topic] == nil {
		h.subs[topic] = make(map[int]func(model.UpdateMessage))
	}
	h.subs[topic][id] = fn
	h.smu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			h.smu.Lock()
			delete(h.subs[topic], id)
			if len(h.subs[topic]) == 0 {
				delete(h.subs, topic)
			}
			h.smu.Unlock()
		})
	}
}

// Publish delivers msg to every subscriber of topic, synchronously and in
// no particular order, then forwards it to WebSocket clients on topic. It
// returns the number of in-process subscribers reached.
func (h *Hub) Publish(topic string, msg model.UpdateMessage) int {
	h.smu.RLock()
	fns := make([]func(model.UpdateMessage), 0, len(h.subs[topic]))
	for _, fn := range h.subs[topic] {
		fns = append(fns, fn)
	}
	h.smu.RUnlock()

	for _, fn := range fns {
		fn(msg)
	}

	if err := h.BroadcastJSON(topic, EventUpdate, msg); err != nil {
		appLog.Error("push: forward update failed", err, "topic", topic)
	}
	return len(fns)
}

// Register adds a client and subscribes it to its initial topics.
func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	h.all[client] = struct{}{}
	h.addTopicsLocked(client, client.Topics)
	n := len(h.all)
	h.mu.Unlock()

	h.onClients(n)
}

// Unregister removes a client from all topics and closes its Send channel.
func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	if _, ok := h.all[client]; !ok {
		h.mu.Unlock()
		return
	}
	h.removeTopicsLocked(client, client.Topics)
	delete(h.all, client)
	close(client.Send)
	n := len(h.all)
	h.mu.Unlock()

	h.onClients(n)
}

// SubscribeClient adds topics to a registered client.
func (h *Hub) SubscribeClient(client *Client, topics []string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	var added []string
	seen := make(map[string]bool, len(topics))
	for _, t := range topics {
		if _, ok := h.clients[t][client]; ok || t == "" || seen[t] {
			continue
		}
		seen[t] = true
		added = append(added, t)
	}
	h.addTopicsLocked(client, added)
	client.Topics = append(client.Topics, added...)
}

// UnsubscribeClient removes topics from a registered client.
func (h *Hub) UnsubscribeClient(client *Client, topics []string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.removeTopicsLocked(client, topics)

	drop := make(map[string]struct{}, len(topics))
	for _, t := range topics {
		drop[t] = struct{}{}
	}
	remaining := make([]string, 0, len(client.Topics))
	for _, t := range client.Topics {
		if _, rm := drop[t]; !rm {
			remaining = append(remaining, t)
		}
	}
	client.Topics = remaining
}

func (h *Hub) addTopicsLocked(client *Client, topics []string) {
	for _, t := range topics {
		if h.clients[t] == nil {
			h.clients[t] = make(map[*Client]struct{})
		}
		h.clients[t][client] = struct{}{}
	}
}

func (h *Hub) removeTopicsLocked(client *Client, topics []string) {
	for _, t := range topics {
		if subscribers, ok := h.clients[t]; ok {
			delete(subscribers, client)
			if len(subscribers) == 0 {
				delete(h.clients, t)
			}
		}
	}
}

// ProcessMessage dispatches a client's subscribe or unsubscribe request.
// Unknown actions are ignored.
func (h *Hub) ProcessMessage(client *Client, msg ClientMessage) {
	switch msg.Action {
	case "subscribe":
		h.SubscribeClient(client, msg.Topics)
	case "unsubscribe":
		h.UnsubscribeClient(client, msg.Topics)
	}
}

// BroadcastJSON wraps v in an Event of the given type and sends it to the
// clients of topic.
func (h *Hub) BroadcastJSON(topic, typ string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	h.Broadcast(Event{Type: typ, Topic: topic, Timestamp: time.Now().UTC(), Data: data})
	return nil
}

// Broadcast sends ev to every client subscribed to ev.Topic. A client whose
// buffer is full misses the event.
func (h *Hub) Broadcast(ev Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		appLog.Error("push: marshal event failed", err, "topic", ev.Topic)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.clients[ev.Topic] {
		select {
		case client.Send <- data:
		default:
			appLog.Debug("push: client buffer full, event dropped", "client", client.ID, "topic", ev.Topic)
		}
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.all)
}

// TopicCount returns the number of clients subscribed to topic.
func (h *Hub) TopicCount(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[topic])
}
