package duel

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"chroma-clash/internal/store"

	"github.com/sirupsen/logrus"
)

// Watcher observes one session row through two independent mechanisms:
// the store's push subscription and, for the session creator only, a
// fixed-interval poll. Whichever mechanism notices the state change
// first disarms the other, so the joined/cancelled signal fires
// exactly once no matter how many times the change is observed.
//
// Push delivery over a best-effort broker can silently drop; the poll
// bounds worst-case discovery latency to its interval.
type Watcher struct {
	sessions     store.SessionStore
	sessionID    string
	role         Role
	pollInterval time.Duration
	onJoined     func(store.Session)
	onCancelled  func(reason string)

	mu         sync.Mutex
	fired      bool
	stopPush   func()
	pollCancel context.CancelFunc
}

func NewWatcher(sessions store.SessionStore, sessionID string, role Role, pollInterval time.Duration,
	onJoined func(store.Session), onCancelled func(reason string)) *Watcher {
	return &Watcher{
		sessions:     sessions,
		sessionID:    sessionID,
		role:         role,
		pollInterval: pollInterval,
		onJoined:     onJoined,
		onCancelled:  onCancelled,
	}
}

func (w *Watcher) Start(ctx context.Context) error {
	stopPush, err := w.sessions.SubscribeToUpdates(ctx, w.sessionID, func(sess store.Session) {
		w.observe(&sess)
	})
	if err != nil {
		return fmt.Errorf("watch session %s: %w", w.sessionID, err)
	}

	w.mu.Lock()
	if w.fired {
		w.mu.Unlock()
		stopPush()
		return nil
	}
	w.stopPush = stopPush
	if w.role == RolePlayerOne {
		// The joining player learns the outcome synchronously from its
		// own conditional update; only the creator needs the poll net.
		pollCtx, cancel := context.WithCancel(ctx)
		w.pollCancel = cancel
		go w.poll(pollCtx)
	}
	w.mu.Unlock()
	return nil
}

func (w *Watcher) poll(ctx context.Context) {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sess, err := w.sessions.Read(ctx, w.sessionID)
			if errors.Is(err, store.ErrNotFound) {
				if w.disarm() {
					w.onCancelled("session missing")
				}
				return
			}
			if err != nil {
				logrus.Warnf("session poll failed session_id=%s error=%v", w.sessionID, err)
				continue
			}
			w.observe(sess)
		}
	}
}

func (w *Watcher) observe(sess *store.Session) {
	switch {
	case sess.Status == store.StatusInProgress && sess.PlayerTwoID != "":
		if w.disarm() {
			w.onJoined(*sess)
		}
	case sess.Status == store.StatusCancelled:
		if w.disarm() {
			w.onCancelled("session cancelled")
		}
	}
}

// disarm cancels both mechanisms. It returns false when the watcher
// already fired, which makes the signal exactly-once.
func (w *Watcher) disarm() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.fired {
		return false
	}
	w.fired = true
	if w.stopPush != nil {
		w.stopPush()
		w.stopPush = nil
	}
	if w.pollCancel != nil {
		w.pollCancel()
		w.pollCancel = nil
	}
	return true
}

// Stop tears the watcher down without firing either signal.
func (w *Watcher) Stop() {
	w.disarm()
}
