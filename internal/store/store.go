package store

import (
	"context"
	"errors"
	"time"

	"chroma-clash/internal/color"
)

type Status string

const (
	StatusWaiting            Status = "waiting_for_opponent"
	StatusInProgress         Status = "in_progress"
	StatusCancelled          Status = "cancelled"
	StatusCompleted          Status = "completed"
	StatusCompletedByForfeit Status = "completed_by_forfeit"
)

// Terminal reports whether no further status transitions are allowed.
func (s Status) Terminal() bool {
	switch s {
	case StatusCancelled, StatusCompleted, StatusCompletedByForfeit:
		return true
	}
	return false
}

// Session is the durable record pairing at most two players for one
// match. PlayerTwoID is empty until a join succeeds and WinnerID is
// empty until a terminal state with a winner.
type Session struct {
	ID          string      `json:"id"`
	PlayerOneID string      `json:"player_one_id"`
	PlayerTwoID string      `json:"player_two_id,omitempty"`
	Status      Status      `json:"status"`
	Target      color.Color `json:"target"`
	WinnerID    string      `json:"winner_id,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// Fields is the set of columns a conditional update may write. Nil
// members are left untouched.
type Fields struct {
	PlayerTwoID *string
	Status      *Status
	WinnerID    *string
}

// Guard is the predicate a conditional update is scoped by. The update
// only takes effect while every set member still holds.
type Guard struct {
	// Status must be one of these values.
	Status []Status
	// PlayerTwoEmpty requires the second player slot to still be open.
	PlayerTwoEmpty bool
	// PlayerOneID, when non-empty, requires the row to be owned by this
	// player.
	PlayerOneID string
}

var (
	ErrNotFound = errors.New("session not found")
	ErrConflict = errors.New("record already exists")
)

// SessionStore is the durable session table. ConditionalUpdate is the
// compare-and-swap primitive every shared mutation goes through; blind
// overwrites are not part of the interface on purpose.
type SessionStore interface {
	Insert(ctx context.Context, sess *Session) error
	Read(ctx context.Context, id string) (*Session, error)
	// FindOpenSession returns a session waiting for an opponent that was
	// not created by excludePlayerID, or nil when none is open.
	FindOpenSession(ctx context.Context, excludePlayerID string) (*Session, error)
	// ConditionalUpdate applies set iff guard still holds, returning the
	// number of rows affected. Zero with a nil error means the guard
	// failed, the expected outcome of a lost join race.
	ConditionalUpdate(ctx context.Context, id string, set Fields, guard Guard) (int64, error)
	// SubscribeToUpdates delivers every observed change to the session
	// row until the returned cancel func is called.
	SubscribeToUpdates(ctx context.Context, id string, onChange func(Session)) (func(), error)
}

// BestMix is one player's closest attempt. A nil BestMix in a record
// means the player never produced a successful mix.
type BestMix struct {
	Color      color.Color
	Difference float64
}

// BattleRecord is the immutable outcome row written once per concluded
// match.
type BattleRecord struct {
	SessionID       string
	PlayerOneID     string
	PlayerTwoID     string
	PlayerOneBest   *BestMix
	PlayerTwoBest   *BestMix
	Target          color.Color
	Winner          string
	StatusDetail    string
	BattleTimestamp time.Time
}

// RecordStore persists battle outcomes. InsertRecord returns
// ErrConflict when a record for the session already exists.
type RecordStore interface {
	InsertRecord(ctx context.Context, rec *BattleRecord) error
}
