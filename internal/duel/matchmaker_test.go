package duel

import (
	"context"
	"sync"
	"testing"
	"time"

	"chroma-clash/internal/color"
	"chroma-clash/internal/store"
)

func newTestMatchmaker(sessions store.SessionStore) *Matchmaker {
	m := NewMatchmaker(sessions, color.DefaultPalette())
	m.retryInterval = time.Millisecond
	return m
}

func TestEnterQueueCreatesWhenEmpty(t *testing.T) {
	mem := store.NewMemory()
	m := newTestMatchmaker(mem)

	match, err := m.EnterQueue(context.Background(), "p1")
	if err != nil {
		t.Fatalf("enter queue failed: %v", err)
	}
	if match.Role != RolePlayerOne {
		t.Fatalf("expected creator role, got %s", match.Role)
	}
	if match.Session.Status != store.StatusWaiting {
		t.Fatalf("expected waiting status, got %s", match.Session.Status)
	}
	if match.Session.Target.Hex == "" {
		t.Fatal("expected a target on the new session")
	}

	stored, err := mem.Read(context.Background(), match.Session.ID)
	if err != nil {
		t.Fatalf("session not persisted: %v", err)
	}
	if stored.PlayerOneID != "p1" {
		t.Fatalf("unexpected owner %s", stored.PlayerOneID)
	}
}

func TestEnterQueueJoinsOpenSession(t *testing.T) {
	mem := store.NewMemory()
	m := newTestMatchmaker(mem)
	ctx := context.Background()

	first, err := m.EnterQueue(ctx, "p1")
	if err != nil {
		t.Fatalf("first enter failed: %v", err)
	}
	second, err := m.EnterQueue(ctx, "p2")
	if err != nil {
		t.Fatalf("second enter failed: %v", err)
	}

	if second.Role != RolePlayerTwo {
		t.Fatalf("expected joiner role, got %s", second.Role)
	}
	if second.Session.ID != first.Session.ID {
		t.Fatal("joiner should land in the open session")
	}
	if second.Session.Status != store.StatusInProgress {
		t.Fatalf("expected in_progress, got %s", second.Session.Status)
	}
	if second.Session.PlayerTwoID != "p2" {
		t.Fatalf("unexpected player two %q", second.Session.PlayerTwoID)
	}
}

func TestEnterQueueNeverJoinsOwnSession(t *testing.T) {
	mem := store.NewMemory()
	m := newTestMatchmaker(mem)
	ctx := context.Background()

	first, err := m.EnterQueue(ctx, "p1")
	if err != nil {
		t.Fatalf("first enter failed: %v", err)
	}
	second, err := m.EnterQueue(ctx, "p1")
	if err != nil {
		t.Fatalf("second enter failed: %v", err)
	}
	if second.Session.ID == first.Session.ID {
		t.Fatal("a player must not pair with itself")
	}
	if second.Role != RolePlayerOne {
		t.Fatalf("expected a second created session, got role %s", second.Role)
	}
}

func TestEnterQueueRaceResolvesToOneWinner(t *testing.T) {
	mem := store.NewMemory()
	ctx := context.Background()

	creator := newTestMatchmaker(mem)
	open, err := creator.EnterQueue(ctx, "owner")
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	const racers = 5
	var wg sync.WaitGroup
	matches := make([]*Match, racers)
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			m := newTestMatchmaker(mem)
			match, err := m.EnterQueue(ctx, string(rune('a'+i)))
			if err != nil {
				t.Errorf("racer %d failed: %v", i, err)
				return
			}
			matches[i] = match
		}(i)
	}
	wg.Wait()

	var joined int
	for _, match := range matches {
		if match == nil {
			continue
		}
		if match.Role == RolePlayerTwo && match.Session.ID == open.Session.ID {
			joined++
		}
	}
	if joined != 1 {
		t.Fatalf("expected exactly one racer to join the open session, got %d", joined)
	}
	// The losers either created fresh sessions or joined each other's.
	for i, match := range matches {
		if match == nil {
			t.Fatalf("racer %d got no match", i)
		}
	}
}

func TestEnterQueueRespectsContext(t *testing.T) {
	mem := store.NewMemory()
	m := newTestMatchmaker(mem)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// A cancelled context still lets one synchronous pass through; it
	// must not loop forever when the first join attempt loses.
	if _, err := m.EnterQueue(ctx, "p1"); err != nil {
		t.Fatalf("create path should not hit the backoff sleep: %v", err)
	}
}
