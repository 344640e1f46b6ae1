// Package duel implements the matchmaking coordinator and the
// battle-session synchronization protocol: pairing two independent
// clients into a live head-to-head match and keeping their shared
// state consistent over a durable session row and a best-effort
// broadcast topic.
package duel

import (
	"chroma-clash/internal/color"
)

// Role identifies which seat of the session the local client holds.
type Role int

const (
	RolePlayerOne Role = iota + 1
	RolePlayerTwo
)

func (r Role) String() string {
	switch r {
	case RolePlayerOne:
		return "player_one"
	case RolePlayerTwo:
		return "player_two"
	}
	return "unknown"
}

// Opponent returns the other seat.
func (r Role) Opponent() Role {
	if r == RolePlayerOne {
		return RolePlayerTwo
	}
	return RolePlayerOne
}

// Winner is the recorded outcome of a match.
type Winner string

const (
	WinnerPlayerOne Winner = "player_one"
	WinnerPlayerTwo Winner = "player_two"
	WinnerDraw      Winner = "draw"
	WinnerNone      Winner = "none"
)

// Phase is the local match lifecycle.
type Phase int

const (
	PhaseAwaitingOpponent Phase = iota
	PhaseAwaitingReadiness
	PhaseLive
	PhaseTerminated
)

// EndReason says which termination path ended the battle.
type EndReason string

const (
	EndTimerExpired EndReason = "timer_expired"
	EndForfeit      EndReason = "forfeit"
)

// Attempt is one player's best mix so far: the result color and its
// distance from the target.
type Attempt struct {
	Color      color.Color
	Difference float64
}

// Result is the terminal outcome handed to OnBattleEnded.
type Result struct {
	Winner        Winner
	WinnerID      string
	PlayerOneBest *Attempt
	PlayerTwoBest *Attempt
	Target        color.Color
	Reason        EndReason
}

// Callbacks is the outbound surface consumed by the UI layer. Any nil
// member is skipped. The UI has no write access into the state machine
// except through the public operations on Client.
type Callbacks struct {
	LobbyStatus      func(text string)
	OpponentJoined   func()
	ReadinessChanged func(player Role, ready bool)
	BattleStarted    func()
	OpponentAttempt  func(player Role, mixed color.Color, difference float64)
	BattleEnded      func(result Result)
}

func (cb Callbacks) lobbyStatus(text string) {
	if cb.LobbyStatus != nil {
		cb.LobbyStatus(text)
	}
}

func (cb Callbacks) opponentJoined() {
	if cb.OpponentJoined != nil {
		cb.OpponentJoined()
	}
}

func (cb Callbacks) readinessChanged(player Role, ready bool) {
	if cb.ReadinessChanged != nil {
		cb.ReadinessChanged(player, ready)
	}
}

func (cb Callbacks) battleStarted() {
	if cb.BattleStarted != nil {
		cb.BattleStarted()
	}
}

func (cb Callbacks) opponentAttempt(player Role, mixed color.Color, difference float64) {
	if cb.OpponentAttempt != nil {
		cb.OpponentAttempt(player, mixed, difference)
	}
}

func (cb Callbacks) battleEnded(result Result) {
	if cb.BattleEnded != nil {
		cb.BattleEnded(result)
	}
}
