package broadcast

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
)

type testPayload struct {
	Value string `json:"value"`
}

func openRedisPair(t *testing.T, topic string) (Channel, Channel) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	b := NewRedis(client)
	a, err := b.Open(topic)
	if err != nil {
		t.Fatalf("open channel a: %v", err)
	}
	t.Cleanup(func() { _ = a.Close() })
	c, err := b.Open(topic)
	if err != nil {
		t.Fatalf("open channel b: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return a, c
}

func TestRedisChannelDeliversBetweenSubscribers(t *testing.T) {
	a, b := openRedisPair(t, "battle:s1")

	got := make(chan testPayload, 1)
	b.OnEvent("battle_event", func(raw json.RawMessage) {
		var p testPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			t.Errorf("decode payload: %v", err)
			return
		}
		got <- p
	})

	if err := a.Send(context.Background(), "battle_event", testPayload{Value: "hello"}); err != nil {
		t.Fatalf("send failed: %v", err)
	}

	select {
	case p := <-got:
		if p.Value != "hello" {
			t.Fatalf("unexpected payload %#v", p)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestRedisChannelEventNameFilter(t *testing.T) {
	a, b := openRedisPair(t, "battle:s2")

	got := make(chan struct{}, 2)
	b.OnEvent("wanted", func(json.RawMessage) { got <- struct{}{} })

	ctx := context.Background()
	if err := a.Send(ctx, "unwanted", testPayload{Value: "x"}); err != nil {
		t.Fatalf("send failed: %v", err)
	}
	if err := a.Send(ctx, "wanted", testPayload{Value: "y"}); err != nil {
		t.Fatalf("send failed: %v", err)
	}

	select {
	case <-got:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for wanted event")
	}
	select {
	case <-got:
		t.Fatal("received event for unregistered name")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestRedisChannelUnregister(t *testing.T) {
	a, b := openRedisPair(t, "battle:s3")

	got := make(chan struct{}, 1)
	off := b.OnEvent("battle_event", func(json.RawMessage) { got <- struct{}{} })
	off()

	if err := a.Send(context.Background(), "battle_event", testPayload{}); err != nil {
		t.Fatalf("send failed: %v", err)
	}
	select {
	case <-got:
		t.Fatal("received event after unregister")
	case <-time.After(200 * time.Millisecond):
	}
}

func TestRedisChannelCloseIdempotent(t *testing.T) {
	a, _ := openRedisPair(t, "battle:s4")
	if err := a.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}
	if err := a.Close(); err != nil {
		t.Fatalf("second close failed: %v", err)
	}
}

func TestHubDeliversToAllOpenChannels(t *testing.T) {
	hub := NewHub()
	a, err := hub.Open("t")
	if err != nil {
		t.Fatalf("open a: %v", err)
	}
	b, err := hub.Open("t")
	if err != nil {
		t.Fatalf("open b: %v", err)
	}

	var fromA, fromB int
	a.OnEvent("e", func(json.RawMessage) { fromA++ })
	b.OnEvent("e", func(json.RawMessage) { fromB++ })

	if err := a.Send(context.Background(), "e", testPayload{}); err != nil {
		t.Fatalf("send failed: %v", err)
	}
	// Hub delivery is synchronous, the sender hears its own echo.
	if fromA != 1 || fromB != 1 {
		t.Fatalf("expected both channels to receive, got a=%d b=%d", fromA, fromB)
	}

	if err := b.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}
	if err := a.Send(context.Background(), "e", testPayload{}); err != nil {
		t.Fatalf("send failed: %v", err)
	}
	if fromB != 1 {
		t.Fatal("closed channel still receiving")
	}
}
