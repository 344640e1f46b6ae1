package duel

import (
	"context"
	"fmt"
	"sync"
	"time"

	"chroma-clash/internal/broadcast"
	"chroma-clash/internal/color"
	"chroma-clash/internal/store"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Deps are the external collaborators a Client is wired with.
type Deps struct {
	PlayerID  string
	Sessions  store.SessionStore
	Records   store.RecordStore
	Broadcast broadcast.Broadcaster
	Mixer     color.Mixer
	Targets   color.TargetPool
}

// Config tunes the client's timing. Zero values take the defaults.
type Config struct {
	PollInterval   time.Duration
	BattleDuration time.Duration
}

func (c Config) withDefaults() Config {
	if c.PollInterval <= 0 {
		c.PollInterval = 5 * time.Second
	}
	if c.BattleDuration <= 0 {
		c.BattleDuration = 60 * time.Second
	}
	return c
}

// Client is one player's coordinator: it runs matchmaking, watches the
// session row while waiting, and operates the battle state machine
// once a match forms. All UI-facing signals flow out through the
// Callbacks it was built with.
type Client struct {
	deps     Deps
	cfg      Config
	cb       Callbacks
	recorder *Recorder

	mu      sync.Mutex
	battle  *Battle
	watcher *Watcher
}

func NewClient(deps Deps, cfg Config, cb Callbacks) *Client {
	return &Client{
		deps:     deps,
		cfg:      cfg.withDefaults(),
		cb:       cb,
		recorder: NewRecorder(deps.Records, deps.Sessions),
	}
}

// EnterQueue runs matchmaking and returns once the caller holds a seat
// in a session. As player two the battle is live-pending immediately;
// as player one the client keeps watching until an opponent joins or
// the session is cancelled.
func (c *Client) EnterQueue(ctx context.Context) error {
	c.mu.Lock()
	if c.battle != nil || c.watcher != nil {
		c.mu.Unlock()
		return fmt.Errorf("already queued or in a match")
	}
	c.mu.Unlock()

	c.cb.lobbyStatus("searching for an opponent")
	match, err := NewMatchmaker(c.deps.Sessions, c.deps.Targets).EnterQueue(ctx, c.deps.PlayerID)
	if err != nil {
		return err
	}

	if match.Role == RolePlayerTwo {
		if err := c.beginMatch(match.Session, RolePlayerTwo); err != nil {
			return err
		}
		return nil
	}

	c.cb.lobbyStatus("waiting for an opponent")
	watcher := NewWatcher(c.deps.Sessions, match.Session.ID, RolePlayerOne, c.cfg.PollInterval,
		func(sess store.Session) {
			if err := c.beginMatch(sess, RolePlayerOne); err != nil {
				logrus.Errorf("match setup failed session_id=%s error=%v", sess.ID, err)
				c.cb.lobbyStatus("failed to start the match")
			}
		},
		func(reason string) {
			c.clearWatcher()
			c.cb.lobbyStatus("match fell through: " + reason)
		},
	)
	// Registered before Start; the joined callback clears it.
	c.mu.Lock()
	c.watcher = watcher
	c.mu.Unlock()
	if err := watcher.Start(ctx); err != nil {
		c.clearWatcher()
		return err
	}
	return nil
}

// beginMatch opens the broadcast topic and arms the battle state
// machine. Idempotent; a second signal for the same match is dropped.
func (c *Client) beginMatch(sess store.Session, role Role) error {
	c.mu.Lock()
	if c.battle != nil {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	channel, err := c.deps.Broadcast.Open(topicName(sess.ID))
	if err != nil {
		return fmt.Errorf("open battle channel: %w", err)
	}

	battle := newBattle(sess, role, c.deps.PlayerID, c.deps.Mixer, channel,
		c.cfg.BattleDuration, c.recorder, c.deps.Sessions, c.cb, c.clearBattle)
	off := channel.OnEvent(battleEventName, battle.handleEvent)
	battle.mu.Lock()
	battle.offEvent = off
	battle.mu.Unlock()

	c.mu.Lock()
	c.battle = battle
	c.watcher = nil
	c.mu.Unlock()

	logrus.Infof("match formed session_id=%s role=%s", sess.ID, role)
	c.cb.opponentJoined()
	return nil
}

// StartPractice arms a solo battle against a synthetic session. No
// opponent, no broadcast topic, no persisted record.
func (c *Client) StartPractice() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.battle != nil || c.watcher != nil {
		return fmt.Errorf("already queued or in a match")
	}
	target, ok := c.deps.Targets.RandomTarget()
	if !ok {
		target = color.FallbackTarget()
	}
	sess := store.Session{
		ID:          uuid.NewString(),
		PlayerOneID: c.deps.PlayerID,
		Status:      store.StatusInProgress,
		Target:      target,
	}
	c.battle = newBattle(sess, RolePlayerOne, c.deps.PlayerID, c.deps.Mixer, nil,
		c.cfg.BattleDuration, nil, nil, c.cb, c.clearBattle)
	return nil
}

// Target returns the current match target and whether a battle is
// armed at all.
func (c *Client) Target() (color.Color, bool) {
	b := c.currentBattle()
	if b == nil {
		return color.Color{}, false
	}
	return b.Target(), true
}

// Selection returns a copy of the currently selected inputs.
func (c *Client) Selection() []color.Color {
	b := c.currentBattle()
	if b == nil {
		return nil
	}
	return b.Selection()
}

// Best returns the local player's closest attempt so far, or nil.
func (c *Client) Best() *Attempt {
	b := c.currentBattle()
	if b == nil {
		return nil
	}
	return b.Best()
}

// Ready marks the local player ready for the pending battle.
func (c *Client) Ready(ctx context.Context) error {
	b := c.currentBattle()
	if b == nil {
		return ErrNoBattle
	}
	return b.LocalReady(ctx)
}

// SelectInput toggles one input color in the current selection.
func (c *Client) SelectInput(col color.Color) error {
	b := c.currentBattle()
	if b == nil {
		return ErrNoBattle
	}
	return b.SelectInput(col)
}

// AttemptMix combines the selected inputs against the target.
func (c *Client) AttemptMix(ctx context.Context) (*Attempt, error) {
	b := c.currentBattle()
	if b == nil {
		return nil, ErrNoBattle
	}
	return b.AttemptMix(ctx)
}

// Cancel abandons the current queue slot or pre-live match.
func (c *Client) Cancel(ctx context.Context) error {
	c.mu.Lock()
	battle := c.battle
	watcher := c.watcher
	c.mu.Unlock()

	if battle != nil {
		return battle.Cancel(ctx)
	}
	if watcher != nil {
		watcher.Stop()
		c.clearWatcher()
		cancelled := store.StatusCancelled
		affected, err := c.deps.Sessions.ConditionalUpdate(ctx, watcher.sessionID,
			store.Fields{Status: &cancelled},
			store.Guard{Status: []store.Status{store.StatusWaiting}, PlayerOneID: c.deps.PlayerID},
		)
		if err != nil {
			return fmt.Errorf("cancel waiting session: %w", err)
		}
		if affected == 0 {
			// The guard failed, so the row moved under us. If a join
			// landed before the cancel, the match wins over the leave;
			// with the watcher already stopped nobody else would arm it.
			sess, readErr := c.deps.Sessions.Read(ctx, watcher.sessionID)
			if readErr == nil && sess.Status == store.StatusInProgress && sess.PlayerTwoID != "" {
				logrus.Infof("opponent joined during cancel session_id=%s", sess.ID)
				return c.beginMatch(*sess, RolePlayerOne)
			}
		}
		c.cb.lobbyStatus("left the queue")
		return nil
	}
	return ErrNoBattle
}

// Forfeit concedes the live battle to the opponent.
func (c *Client) Forfeit(ctx context.Context) error {
	b := c.currentBattle()
	if b == nil {
		return ErrNoBattle
	}
	return b.Forfeit(ctx)
}

func (c *Client) currentBattle() *Battle {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.battle
}

func (c *Client) clearBattle() {
	c.mu.Lock()
	c.battle = nil
	c.mu.Unlock()
}

func (c *Client) clearWatcher() {
	c.mu.Lock()
	c.watcher = nil
	c.mu.Unlock()
}
