package broadcast

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
)

// Dial connects to redis, retrying the initial ping with exponential
// backoff so a briefly unavailable broker does not fail startup.
func Dial(ctx context.Context, host, port, password string) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         host + ":" + port,
		Password:     password,
		DB:           0,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	b := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 5)
	err := backoff.Retry(func() error {
		if err := client.Ping(ctx).Err(); err != nil {
			logrus.Warnf("redis connection failed: %v, retrying...", err)
			return err
		}
		return nil
	}, backoff.WithContext(b, ctx))
	if err != nil {
		return nil, fmt.Errorf("connect to redis at %s:%s: %w", host, port, err)
	}
	logrus.Infof("connected to redis at %s:%s", host, port)
	return client, nil
}

// Redis is a Broadcaster over redis pub/sub, one redis channel per
// topic.
type Redis struct {
	client *redis.Client
}

func NewRedis(client *redis.Client) *Redis {
	return &Redis{client: client}
}

func (r *Redis) Open(topic string) (Channel, error) {
	ctx := context.Background()
	sub := r.client.Subscribe(ctx, topic)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("open topic %s: %w", topic, err)
	}
	ch := &redisChannel{
		client:   r.client,
		topic:    topic,
		sub:      sub,
		handlers: make(map[string]map[int]Handler),
	}
	go ch.dispatch()
	return ch, nil
}

type redisChannel struct {
	client *redis.Client
	topic  string
	sub    *redis.PubSub

	mu       sync.Mutex
	handlers map[string]map[int]Handler
	nextID   int
	closed   bool
}

func (c *redisChannel) dispatch() {
	for msg := range c.sub.Channel() {
		var env envelope
		if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
			logrus.Warnf("discarding malformed broadcast topic=%s error=%v", c.topic, err)
			continue
		}
		c.mu.Lock()
		fns := make([]Handler, 0, len(c.handlers[env.Event]))
		for _, fn := range c.handlers[env.Event] {
			fns = append(fns, fn)
		}
		c.mu.Unlock()
		for _, fn := range fns {
			fn(env.Payload)
		}
	}
}

func (c *redisChannel) Send(ctx context.Context, event string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode broadcast payload: %w", err)
	}
	data, err := json.Marshal(envelope{Event: event, Payload: raw})
	if err != nil {
		return fmt.Errorf("encode broadcast envelope: %w", err)
	}
	if err := c.client.Publish(ctx, c.topic, data).Err(); err != nil {
		return fmt.Errorf("publish to %s: %w", c.topic, err)
	}
	return nil
}

func (c *redisChannel) OnEvent(event string, fn Handler) func() {
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

func (c *redisChannel) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()
	return c.sub.Close()
}
