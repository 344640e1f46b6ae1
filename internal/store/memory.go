package store

import (
	"context"
	"sync"
	"time"
)

// Memory is an in-process SessionStore with the same conditional
// update and notification semantics as the Postgres implementation.
// Duel tests run against it so they need neither Postgres nor redis.
type Memory struct {
	mu          sync.Mutex
	sessions    map[string]*Session
	records     []BattleRecord
	subscribers map[string]map[int]func(Session)
	nextSubID   int
}

func NewMemory() *Memory {
	return &Memory{
		sessions:    make(map[string]*Session),
		subscribers: make(map[string]map[int]func(Session)),
	}
}

func (m *Memory) Insert(_ context.Context, sess *Session) error {
	m.mu.Lock()
	if _, ok := m.sessions[sess.ID]; ok {
		m.mu.Unlock()
		return ErrConflict
	}
	now := time.Now().UTC()
	sess.CreatedAt = now
	sess.UpdatedAt = now
	stored := *sess
	m.sessions[sess.ID] = &stored
	m.mu.Unlock()
	m.notify(stored)
	return nil
}

func (m *Memory) Read(_ context.Context, id string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *sess
	return &copied, nil
}

func (m *Memory) Delete(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
}

func (m *Memory) FindOpenSession(_ context.Context, excludePlayerID string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var oldest *Session
	for _, sess := range m.sessions {
		if sess.Status != StatusWaiting || sess.PlayerTwoID != "" || sess.PlayerOneID == excludePlayerID {
			continue
		}
		if oldest == nil || sess.CreatedAt.Before(oldest.CreatedAt) {
			oldest = sess
		}
	}
	if oldest == nil {
		return nil, nil
	}
	copied := *oldest
	return &copied, nil
}

func (m *Memory) ConditionalUpdate(_ context.Context, id string, set Fields, guard Guard) (int64, error) {
	m.mu.Lock()
	sess, ok := m.sessions[id]
	if !ok || !guardHolds(sess, guard) {
		m.mu.Unlock()
		return 0, nil
	}
	if set.PlayerTwoID != nil {
		sess.PlayerTwoID = *set.PlayerTwoID
	}
	if set.Status != nil {
		sess.Status = *set.Status
	}
	if set.WinnerID != nil {
		sess.WinnerID = *set.WinnerID
	}
	sess.UpdatedAt = time.Now().UTC()
	updated := *sess
	m.mu.Unlock()
	m.notify(updated)
	return 1, nil
}

func guardHolds(sess *Session, guard Guard) bool {
	if len(guard.Status) > 0 {
		match := false
		for _, status := range guard.Status {
			if sess.Status == status {
				match = true
				break
			}
		}
		if !match {
			return false
		}
	}
	if guard.PlayerTwoEmpty && sess.PlayerTwoID != "" {
		return false
	}
	if guard.PlayerOneID != "" && sess.PlayerOneID != guard.PlayerOneID {
		return false
	}
	return true
}

func (m *Memory) SubscribeToUpdates(_ context.Context, id string, onChange func(Session)) (func(), error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	subs := m.subscribers[id]
	if subs == nil {
		subs = make(map[int]func(Session))
		m.subscribers[id] = subs
	}
	subID := m.nextSubID
	m.nextSubID++
	subs[subID] = onChange
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.subscribers[id], subID)
	}, nil
}

func (m *Memory) notify(sess Session) {
	m.mu.Lock()
	handlers := make([]func(Session), 0, len(m.subscribers[sess.ID]))
	for _, fn := range m.subscribers[sess.ID] {
		handlers = append(handlers, fn)
	}
	m.mu.Unlock()
	for _, fn := range handlers {
		fn(sess)
	}
}

func (m *Memory) InsertRecord(_ context.Context, rec *BattleRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.records {
		if existing.SessionID != "" && existing.SessionID == rec.SessionID {
			return ErrConflict
		}
	}
	m.records = append(m.records, *rec)
	return nil
}

// Records returns a copy of every stored battle record.
func (m *Memory) Records() []BattleRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]BattleRecord, len(m.records))
	copy(out, m.records)
	return out
}
