package duel

import (
	"math"

	"chroma-clash/internal/color"
)

// All match traffic rides a single broadcast event; the payload
// differentiates ready signals, start signals, cancellations,
// forfeitures and mix attempts.
const battleEventName = "battle_event"

const (
	kindCancelled = "cancelled"
	kindForfeited = "forfeited"
)

type battleEvent struct {
	PlayerID       string       `json:"player_id"`
	ReadySignal    bool         `json:"ready_signal,omitempty"`
	BattleStarting bool         `json:"battle_starting,omitempty"`
	Kind           string       `json:"kind,omitempty"`
	Mixed          *color.Color `json:"mixed,omitempty"`
	Difference     float64      `json:"difference,omitempty"`
}

func topicName(sessionID string) string {
	return "battle:" + sessionID
}

// determineWinner compares best differences. The strictly lower
// difference wins; an absent best counts as unbounded, so any real mix
// beats no mix. Equal finite differences are a draw; neither player
// mixing at all is recorded as no winner.
func determineWinner(p1, p2 *Attempt) Winner {
	d1 := math.Inf(1)
	if p1 != nil {
		d1 = p1.Difference
	}
	d2 := math.Inf(1)
	if p2 != nil {
		d2 = p2.Difference
	}
	switch {
	case p1 == nil && p2 == nil:
		return WinnerNone
	case d1 < d2:
		return WinnerPlayerOne
	case d2 < d1:
		return WinnerPlayerTwo
	default:
		return WinnerDraw
	}
}
