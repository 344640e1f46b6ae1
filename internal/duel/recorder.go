package duel

import (
	"context"
	"errors"
	"time"

	"chroma-clash/internal/store"

	"github.com/sirupsen/logrus"
)

// Recorder persists a finished battle. Writes are best-effort; the
// outcome was already shown to the players, so persistence failures
// are logged rather than surfaced.
type Recorder struct {
	records  store.RecordStore
	sessions store.SessionStore
}

func NewRecorder(records store.RecordStore, sessions store.SessionStore) *Recorder {
	return &Recorder{records: records, sessions: sessions}
}

// Record writes the battle record and moves the session to its
// terminal status. On a timer expiry both clients call this; the
// unique index on session id makes the second insert a no-op.
func (r *Recorder) Record(ctx context.Context, sess store.Session, res Result, statusDetail string) {
	rec := store.BattleRecord{
		SessionID:       sess.ID,
		PlayerOneID:     sess.PlayerOneID,
		PlayerTwoID:     sess.PlayerTwoID,
		Target:          res.Target,
		Winner:          string(res.Winner),
		StatusDetail:    statusDetail,
		BattleTimestamp: time.Now(),
	}
	if res.PlayerOneBest != nil {
		rec.PlayerOneBest = &store.BestMix{Color: res.PlayerOneBest.Color, Difference: res.PlayerOneBest.Difference}
	}
	if res.PlayerTwoBest != nil {
		rec.PlayerTwoBest = &store.BestMix{Color: res.PlayerTwoBest.Color, Difference: res.PlayerTwoBest.Difference}
	}

	if r.records != nil {
		err := r.records.InsertRecord(ctx, &rec)
		switch {
		case errors.Is(err, store.ErrConflict):
			logrus.Infof("battle record already stored session_id=%s", sess.ID)
		case err != nil:
			logrus.Errorf("battle record insert failed session_id=%s error=%v", sess.ID, err)
		}
	}

	status := store.StatusCompleted
	if res.Reason == EndForfeit {
		status = store.StatusCompletedByForfeit
	}
	set := store.Fields{Status: &status}
	if res.WinnerID != "" {
		winnerID := res.WinnerID
		set.WinnerID = &winnerID
	}
	guard := store.Guard{Status: []store.Status{store.StatusInProgress}}
	if _, err := r.sessions.ConditionalUpdate(ctx, sess.ID, set, guard); err != nil {
		logrus.Errorf("session finalize failed session_id=%s error=%v", sess.ID, err)
	}
}
