package duel

import (
	"context"
	"fmt"
	"time"

	"chroma-clash/internal/color"
	"chroma-clash/internal/store"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Match is the outcome of entering the queue: the session and which
// seat the caller ended up in.
type Match struct {
	Session store.Session
	Role    Role
}

// Matchmaker finds or creates a session. Concurrent joiners racing for
// the same open session are resolved by the store's conditional
// update: exactly one wins, the rest retry the search.
type Matchmaker struct {
	sessions store.SessionStore
	targets  color.TargetPool

	// retryInterval seeds the backoff between search retries after a
	// lost join race. Tests shorten it.
	retryInterval time.Duration
}

func NewMatchmaker(sessions store.SessionStore, targets color.TargetPool) *Matchmaker {
	return &Matchmaker{
		sessions:      sessions,
		targets:       targets,
		retryInterval: 300 * time.Millisecond,
	}
}

// EnterQueue joins the oldest open session, or creates a new waiting
// one when none is open. Store failures during the search surface as a
// retryable error; a lost join race is not an error and triggers a
// randomized-backoff retry of the search.
func (m *Matchmaker) EnterQueue(ctx context.Context, playerID string) (*Match, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = m.retryInterval
	b.RandomizationFactor = 0.5
	b.MaxInterval = 2 * time.Second
	b.MaxElapsedTime = 0

	for {
		open, err := m.sessions.FindOpenSession(ctx, playerID)
		if err != nil {
			return nil, fmt.Errorf("lobby search: %w", err)
		}
		if open == nil {
			return m.createSession(ctx, playerID)
		}

		inProgress := store.StatusInProgress
		affected, err := m.sessions.ConditionalUpdate(ctx, open.ID,
			store.Fields{PlayerTwoID: &playerID, Status: &inProgress},
			store.Guard{Status: []store.Status{store.StatusWaiting}, PlayerTwoEmpty: true},
		)
		if err != nil {
			// Transient join failure; fall through to the same backoff
			// retry as a lost race.
			logrus.Warnf("join attempt failed session_id=%s error=%v", open.ID, err)
		} else if affected > 0 {
			joined, err := m.sessions.Read(ctx, open.ID)
			if err != nil {
				return nil, fmt.Errorf("read joined session: %w", err)
			}
			logrus.Infof("joined session session_id=%s player_id=%s", joined.ID, playerID)
			return &Match{Session: *joined, Role: RolePlayerTwo}, nil
		} else {
			logrus.Infof("session taken, retrying search session_id=%s player_id=%s", open.ID, playerID)
		}

		if err := sleepCtx(ctx, b.NextBackOff()); err != nil {
			return nil, err
		}
	}
}

func (m *Matchmaker) createSession(ctx context.Context, playerID string) (*Match, error) {
	target, ok := m.targets.RandomTarget()
	if !ok {
		// Target generation must never block matchmaking.
		target = color.FallbackTarget()
		logrus.Warnf("target pool empty, using fallback target hex=%s", target.Hex)
	}
	sess := &store.Session{
		ID:          uuid.NewString(),
		PlayerOneID: playerID,
		Status:      store.StatusWaiting,
		Target:      target,
	}
	if err := m.sessions.Insert(ctx, sess); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	logrus.Infof("created session session_id=%s player_id=%s target=%s", sess.ID, playerID, target.Hex)
	return &Match{Session: *sess, Role: RolePlayerOne}, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
