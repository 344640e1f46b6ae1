package store

import (
	"context"
	"sync"
	"testing"

	"chroma-clash/internal/color"
)

func waitingSession(id, owner string) *Session {
	return &Session{
		ID:          id,
		PlayerOneID: owner,
		Status:      StatusWaiting,
		Target:      color.New("Vivid Teal", 0, 128, 128),
	}
}

func TestInsertRejectsDuplicateID(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	if err := m.Insert(ctx, waitingSession("s1", "p1")); err != nil {
		t.Fatalf("insert failed: %v", err)
	}
	if err := m.Insert(ctx, waitingSession("s1", "p2")); err != ErrConflict {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestFindOpenSessionExcludesOwnAndTaken(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	if err := m.Insert(ctx, waitingSession("mine", "p1")); err != nil {
		t.Fatalf("insert failed: %v", err)
	}

	found, err := m.FindOpenSession(ctx, "p1")
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if found != nil {
		t.Fatalf("own session should be excluded, got %s", found.ID)
	}

	found, err = m.FindOpenSession(ctx, "p2")
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if found == nil || found.ID != "mine" {
		t.Fatalf("expected to find session mine, got %#v", found)
	}

	inProgress := StatusInProgress
	p2 := "p2"
	if _, err := m.ConditionalUpdate(ctx, "mine", Fields{PlayerTwoID: &p2, Status: &inProgress}, Guard{}); err != nil {
		t.Fatalf("update failed: %v", err)
	}
	found, err = m.FindOpenSession(ctx, "p3")
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if found != nil {
		t.Fatalf("taken session should be excluded, got %s", found.ID)
	}
}

func TestConditionalUpdateJoinRace(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	if err := m.Insert(ctx, waitingSession("s1", "owner")); err != nil {
		t.Fatalf("insert failed: %v", err)
	}

	inProgress := StatusInProgress
	join := func(playerID string) int64 {
		affected, err := m.ConditionalUpdate(ctx, "s1",
			Fields{PlayerTwoID: &playerID, Status: &inProgress},
			Guard{Status: []Status{StatusWaiting}, PlayerTwoEmpty: true},
		)
		if err != nil {
			t.Errorf("join %s failed: %v", playerID, err)
		}
		return affected
	}

	var wg sync.WaitGroup
	results := make([]int64, 10)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = join(string(rune('a' + i)))
		}(i)
	}
	wg.Wait()

	var winners int64
	for _, r := range results {
		winners += r
	}
	if winners != 1 {
		t.Fatalf("expected exactly one winning join, got %d", winners)
	}

	sess, err := m.Read(ctx, "s1")
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if sess.Status != StatusInProgress || sess.PlayerTwoID == "" {
		t.Fatalf("session not claimed: %#v", sess)
	}
}

func TestConditionalUpdateGuards(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	if err := m.Insert(ctx, waitingSession("s1", "owner")); err != nil {
		t.Fatalf("insert failed: %v", err)
	}

	cancelled := StatusCancelled
	affected, err := m.ConditionalUpdate(ctx, "s1",
		Fields{Status: &cancelled},
		Guard{Status: []Status{StatusWaiting}, PlayerOneID: "stranger"},
	)
	if err != nil || affected != 0 {
		t.Fatalf("owner guard should reject, got affected=%d err=%v", affected, err)
	}

	affected, err = m.ConditionalUpdate(ctx, "missing", Fields{Status: &cancelled}, Guard{})
	if err != nil || affected != 0 {
		t.Fatalf("missing row should affect zero, got affected=%d err=%v", affected, err)
	}

	affected, err = m.ConditionalUpdate(ctx, "s1",
		Fields{Status: &cancelled},
		Guard{Status: []Status{StatusWaiting}, PlayerOneID: "owner"},
	)
	if err != nil || affected != 1 {
		t.Fatalf("valid cancel should apply, got affected=%d err=%v", affected, err)
	}
}

func TestSubscribeToUpdatesDeliversChanges(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	if err := m.Insert(ctx, waitingSession("s1", "owner")); err != nil {
		t.Fatalf("insert failed: %v", err)
	}

	var seen []Status
	cancel, err := m.SubscribeToUpdates(ctx, "s1", func(sess Session) {
		seen = append(seen, sess.Status)
	})
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}

	inProgress := StatusInProgress
	p2 := "p2"
	if _, err := m.ConditionalUpdate(ctx, "s1", Fields{PlayerTwoID: &p2, Status: &inProgress}, Guard{}); err != nil {
		t.Fatalf("update failed: %v", err)
	}
	cancel()
	completed := StatusCompleted
	if _, err := m.ConditionalUpdate(ctx, "s1", Fields{Status: &completed}, Guard{}); err != nil {
		t.Fatalf("update failed: %v", err)
	}

	if len(seen) != 1 || seen[0] != StatusInProgress {
		t.Fatalf("expected one in_progress notification, got %v", seen)
	}
}

func TestInsertRecordWriteOnce(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	rec := &BattleRecord{SessionID: "s1", PlayerOneID: "p1", Winner: "player_one"}
	if err := m.InsertRecord(ctx, rec); err != nil {
		t.Fatalf("first insert failed: %v", err)
	}
	if err := m.InsertRecord(ctx, rec); err != ErrConflict {
		t.Fatalf("expected ErrConflict on duplicate, got %v", err)
	}
	if got := len(m.Records()); got != 1 {
		t.Fatalf("expected one stored record, got %d", got)
	}
}
