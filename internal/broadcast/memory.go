package broadcast

import (
	"context"
	"encoding/json"
	"sync"
)

// Hub is an in-process Broadcaster. Channels opened on the same topic
// see each other's events, so two clients in one test process behave
// like two clients sharing a redis topic.
type Hub struct {
	mu     sync.Mutex
	topics map[string]map[*hubChannel]struct{}
}

func NewHub() *Hub {
	return &Hub{topics: make(map[string]map[*hubChannel]struct{})}
}

func (h *Hub) Open(topic string) (Channel, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	group := h.topics[topic]
	if group == nil {
		group = make(map[*hubChannel]struct{})
		h.topics[topic] = group
	}
	ch := &hubChannel{
		hub:      h,
		topic:    topic,
		handlers: make(map[string]map[int]Handler),
	}
	group[ch] = struct{}{}
	return ch, nil
}

func (h *Hub) broadcast(topic string, env envelope) {
	h.mu.Lock()
	chans := make([]*hubChannel, 0, len(h.topics[topic]))
	for ch := range h.topics[topic] {
		chans = append(chans, ch)
	}
	h.mu.Unlock()
	for _, ch := range chans {
		ch.deliver(env)
	}
}

func (h *Hub) remove(ch *hubChannel) {
	h.mu.Lock()
	defer h.mu.Unlock()
	group := h.topics[ch.topic]
	delete(group, ch)
	if len(group) == 0 {
		delete(h.topics, ch.topic)
	}
}

type hubChannel struct {
	hub   *Hub
	topic string

	mu       sync.Mutex
	handlers map[string]map[int]Handler
	nextID   int
	closed   bool
}

func (c *hubChannel) Send(_ context.Context, event string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	c.hub.broadcast(c.topic, envelope{Event: event, Payload: raw})
	return nil
}

func (c *hubChannel) deliver(env envelope) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	fns := make([]Handler, 0, len(c.handlers[env.Event]))
	for _, fn := range c.handlers[env.Event] {
		fns = append(fns, fn)
	}
	c.mu.Unlock()
	for _, fn := range fns {
		fn(env.Payload)
	}
}

func (c *hubChannel) OnEvent(event string, fn Handler) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	handlers := c.handlers[event]
	if handlers == nil {
		handlers = make(map[int]Handler)
		c.handlers[event] = handlers
	}
	id := c.nextID
	c.nextID++
	handlers[id] = fn
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.handlers[event], id)
	}
}

func (c *hubChannel) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()
	c.hub.remove(c)
	return nil
}
