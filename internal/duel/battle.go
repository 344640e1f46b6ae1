package duel

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"chroma-clash/internal/broadcast"
	"chroma-clash/internal/color"
	"chroma-clash/internal/store"

	"github.com/sirupsen/logrus"
)

const (
	minSelection = 2
	maxSelection = 4

	sendTimeout = 3 * time.Second
)

var (
	ErrNotLive       = errors.New("battle is not live")
	ErrTerminated    = errors.New("battle already ended")
	ErrTooFewInputs  = errors.New("mixing needs at least two inputs")
	ErrSelectionFull = errors.New("selection is full")
	ErrMixFailed     = errors.New("selected inputs do not mix")
	ErrNoBattle      = errors.New("no active battle")
)

// Battle is one client's view of a live match. Both clients hold
// their own Battle over the same session and keep each other in sync
// through the broadcast topic; the shared session row is only touched
// on termination.
type Battle struct {
	mu sync.Mutex

	phase    Phase
	role     Role
	playerID string
	session  store.Session
	target   color.Color

	mixer    color.Mixer
	channel  broadcast.Channel // nil in practice mode
	offEvent func()

	duration time.Duration
	clock    *time.Timer

	selection []color.Color
	// bests mirrors both players' closest attempts. The opponent's
	// entry is rebuilt from broadcast traffic and may lag or miss
	// attempts; it is never treated as authoritative until the end.
	bests map[Role]*Attempt

	readyP1        bool
	readyP2        bool
	localReadySent bool

	recorder *Recorder
	sessions store.SessionStore
	cb       Callbacks
	onDone   func()
}

func newBattle(sess store.Session, role Role, playerID string, mixer color.Mixer,
	channel broadcast.Channel, duration time.Duration,
	recorder *Recorder, sessions store.SessionStore, cb Callbacks, onDone func()) *Battle {
	return &Battle{
		phase:    PhaseAwaitingReadiness,
		role:     role,
		playerID: playerID,
		session:  sess,
		target:   sess.Target,
		mixer:    mixer,
		channel:  channel,
		duration: duration,
		bests:    map[Role]*Attempt{},
		recorder: recorder,
		sessions: sessions,
		cb:       cb,
		onDone:   onDone,
	}
}

// Target returns the color both players are mixing toward.
func (b *Battle) Target() color.Color {
	return b.target
}

// Selection returns a copy of the currently selected inputs.
func (b *Battle) Selection() []color.Color {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]color.Color, len(b.selection))
	copy(out, b.selection)
	return out
}

// Best returns the local player's closest attempt so far, or nil.
func (b *Battle) Best() *Attempt {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.bests[b.role]
}

// LocalReady marks this client ready. Readiness is one-way; calling it
// again is a no-op. The battle goes live once both sides are ready.
func (b *Battle) LocalReady(ctx context.Context) error {
	b.mu.Lock()
	if b.phase == PhaseTerminated {
		b.mu.Unlock()
		return ErrTerminated
	}
	if b.phase != PhaseAwaitingReadiness || b.localReadySent {
		b.mu.Unlock()
		return nil
	}
	b.localReadySent = true
	b.setReady(b.role)
	if b.channel == nil {
		// Practice: no opponent to wait for.
		b.setReady(b.role.Opponent())
	}
	bothReady := b.readyP1 && b.readyP2
	b.mu.Unlock()

	b.cb.readinessChanged(b.role, true)

	if err := b.sendEvent(ctx, battleEvent{PlayerID: b.playerID, ReadySignal: true}); err != nil {
		logrus.Warnf("ready signal send failed session_id=%s error=%v", b.session.ID, err)
	}
	if bothReady {
		b.goLive(ctx, true)
	}
	return nil
}

func (b *Battle) setReady(r Role) {
	if r == RolePlayerOne {
		b.readyP1 = true
	} else {
		b.readyP2 = true
	}
}

// goLive transitions to the live phase and arms the match clock. When
// announce is set the transition is also broadcast so a client whose
// ready signal was lost still converges.
func (b *Battle) goLive(ctx context.Context, announce bool) {
	b.mu.Lock()
	if b.phase != PhaseAwaitingReadiness {
		b.mu.Unlock()
		return
	}
	b.phase = PhaseLive
	b.clock = time.AfterFunc(b.duration, b.expire)
	b.mu.Unlock()

	logrus.Infof("battle live session_id=%s role=%s", b.session.ID, b.role)
	if announce {
		if err := b.sendEvent(ctx, battleEvent{PlayerID: b.playerID, BattleStarting: true}); err != nil {
			logrus.Warnf("start signal send failed session_id=%s error=%v", b.session.ID, err)
		}
	}
	b.cb.battleStarted()
}

// handleEvent dispatches one broadcast payload. Own events echo back
// through the topic and are dropped by player id.
func (b *Battle) handleEvent(payload json.RawMessage) {
	var ev battleEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		logrus.Warnf("malformed battle event session_id=%s error=%v", b.session.ID, err)
		return
	}
	if ev.PlayerID == b.playerID {
		return
	}

	switch {
	case ev.ReadySignal:
		b.mu.Lock()
		if b.phase != PhaseAwaitingReadiness {
			b.mu.Unlock()
			return
		}
		b.setReady(b.role.Opponent())
		bothReady := b.readyP1 && b.readyP2
		b.mu.Unlock()
		b.cb.readinessChanged(b.role.Opponent(), true)
		if bothReady {
			b.goLive(context.Background(), true)
		}
	case ev.BattleStarting:
		// The opponent saw both ready signals; converge even if ours
		// never bridged the readiness view locally.
		b.mu.Lock()
		b.setReady(b.role.Opponent())
		b.mu.Unlock()
		b.goLive(context.Background(), false)
	case ev.Kind == kindCancelled:
		b.remoteCancelled()
	case ev.Kind == kindForfeited:
		b.remoteForfeited()
	case ev.Mixed != nil:
		b.opponentAttempt(*ev.Mixed, ev.Difference)
	}
}

func (b *Battle) opponentAttempt(mixed color.Color, difference float64) {
	opp := b.role.Opponent()
	b.mu.Lock()
	if b.phase == PhaseTerminated {
		b.mu.Unlock()
		return
	}
	cur := b.bests[opp]
	if cur == nil || difference < cur.Difference {
		b.bests[opp] = &Attempt{Color: mixed, Difference: difference}
	}
	b.mu.Unlock()
	// Every attempt surfaces to the UI, improvement or not.
	b.cb.opponentAttempt(opp, mixed, difference)
}

// SelectInput toggles one palette color in or out of the mixing
// selection.
func (b *Battle) SelectInput(c color.Color) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.phase == PhaseTerminated {
		return ErrTerminated
	}
	for i, sel := range b.selection {
		if sel.Hex == c.Hex {
			b.selection = append(b.selection[:i], b.selection[i+1:]...)
			return nil
		}
	}
	if len(b.selection) >= maxSelection {
		return ErrSelectionFull
	}
	b.selection = append(b.selection, c)
	return nil
}

// AttemptMix combines the current selection. A successful mix updates
// the local best when strictly closer, clears the selection and is
// broadcast to the opponent. A failed mix clears the selection and
// returns ErrMixFailed.
func (b *Battle) AttemptMix(ctx context.Context) (*Attempt, error) {
	b.mu.Lock()
	if b.phase == PhaseTerminated {
		b.mu.Unlock()
		return nil, ErrTerminated
	}
	if b.phase != PhaseLive {
		b.mu.Unlock()
		return nil, ErrNotLive
	}
	if len(b.selection) < minSelection {
		b.mu.Unlock()
		return nil, ErrTooFewInputs
	}
	inputs := b.selection
	b.selection = nil

	mixed, ok := b.mixer.Mix(inputs)
	if !ok {
		b.mu.Unlock()
		return nil, ErrMixFailed
	}
	diff := color.Distance(mixed, b.target)
	attempt := &Attempt{Color: mixed, Difference: diff}
	if cur := b.bests[b.role]; cur == nil || diff < cur.Difference {
		b.bests[b.role] = attempt
	}
	b.mu.Unlock()

	if err := b.sendEvent(ctx, battleEvent{PlayerID: b.playerID, Mixed: &mixed, Difference: diff}); err != nil {
		// The attempt still counts locally; the opponent's mirror just
		// misses it.
		logrus.Warnf("attempt broadcast failed session_id=%s error=%v", b.session.ID, err)
		b.cb.lobbyStatus("connection unstable")
	}
	return attempt, nil
}

// Cancel abandons a match that never went live. It is a no-op once the
// battle is live or ended.
func (b *Battle) Cancel(ctx context.Context) error {
	b.mu.Lock()
	if b.phase == PhaseLive || b.phase == PhaseTerminated {
		b.mu.Unlock()
		return nil
	}
	b.phase = PhaseTerminated
	b.mu.Unlock()

	if err := b.sendEvent(ctx, battleEvent{PlayerID: b.playerID, Kind: kindCancelled}); err != nil {
		logrus.Warnf("cancel signal send failed session_id=%s error=%v", b.session.ID, err)
	}
	if b.sessions != nil {
		cancelled := store.StatusCancelled
		_, err := b.sessions.ConditionalUpdate(ctx, b.session.ID,
			store.Fields{Status: &cancelled},
			store.Guard{Status: []store.Status{store.StatusWaiting, store.StatusInProgress}},
		)
		if err != nil {
			logrus.Errorf("session cancel failed session_id=%s error=%v", b.session.ID, err)
		}
	}
	b.teardown()
	b.cb.lobbyStatus("match cancelled")
	return nil
}

func (b *Battle) remoteCancelled() {
	b.mu.Lock()
	if b.phase == PhaseTerminated {
		b.mu.Unlock()
		return
	}
	b.phase = PhaseTerminated
	b.mu.Unlock()

	b.teardown()
	b.cb.lobbyStatus("opponent cancelled the match")
}

// Forfeit concedes a live battle. The forfeiting side discards its own
// best, forces the opponent as winner and writes the record; the other
// side only displays the result it receives.
func (b *Battle) Forfeit(ctx context.Context) error {
	b.mu.Lock()
	if b.phase != PhaseLive {
		b.mu.Unlock()
		return ErrNotLive
	}
	b.phase = PhaseTerminated
	b.bests[b.role] = nil
	oppBest := b.bests[b.role.Opponent()]
	b.mu.Unlock()

	if err := b.sendEvent(ctx, battleEvent{PlayerID: b.playerID, Kind: kindForfeited}); err != nil {
		logrus.Warnf("forfeit signal send failed session_id=%s error=%v", b.session.ID, err)
	}

	res := b.forfeitResult(b.role, oppBest)
	if b.recorder != nil {
		b.recorder.Record(ctx, b.session, res, "forfeited_by_"+b.playerID)
	}
	b.teardown()
	b.cb.battleEnded(res)
	return nil
}

func (b *Battle) remoteForfeited() {
	b.mu.Lock()
	if b.phase == PhaseTerminated {
		b.mu.Unlock()
		return
	}
	b.phase = PhaseTerminated
	b.bests[b.role.Opponent()] = nil
	localBest := b.bests[b.role]
	b.mu.Unlock()

	// The forfeiting client wrote the record and the session status;
	// the receiver only presents the outcome.
	res := b.forfeitResult(b.role.Opponent(), localBest)
	b.teardown()
	b.cb.battleEnded(res)
}

// forfeitResult builds the outcome with the non-forfeiting seat forced
// as winner regardless of differences.
func (b *Battle) forfeitResult(forfeiter Role, winnerBest *Attempt) Result {
	winnerRole := forfeiter.Opponent()
	res := Result{
		Target: b.target,
		Reason: EndForfeit,
	}
	if winnerRole == RolePlayerOne {
		res.Winner = WinnerPlayerOne
		res.WinnerID = b.session.PlayerOneID
		res.PlayerOneBest = winnerBest
	} else {
		res.Winner = WinnerPlayerTwo
		res.WinnerID = b.session.PlayerTwoID
		res.PlayerTwoBest = winnerBest
	}
	return res
}

// expire fires when the match clock runs out. Both clients reach this
// independently; the record store dedupes the double write.
func (b *Battle) expire() {
	b.mu.Lock()
	if b.phase != PhaseLive {
		b.mu.Unlock()
		return
	}
	b.phase = PhaseTerminated
	p1 := b.bests[RolePlayerOne]
	p2 := b.bests[RolePlayerTwo]
	b.mu.Unlock()

	res := Result{
		Winner:        determineWinner(p1, p2),
		PlayerOneBest: p1,
		PlayerTwoBest: p2,
		Target:        b.target,
		Reason:        EndTimerExpired,
	}
	switch res.Winner {
	case WinnerPlayerOne:
		res.WinnerID = b.session.PlayerOneID
	case WinnerPlayerTwo:
		res.WinnerID = b.session.PlayerTwoID
	}

	logrus.Infof("battle ended session_id=%s winner=%s", b.session.ID, res.Winner)
	if b.recorder != nil {
		b.recorder.Record(context.Background(), b.session, res, "timer_expired")
	}
	b.teardown()
	b.cb.battleEnded(res)
}

// teardown releases the clock, the event subscription and the channel.
// Safe to call more than once.
func (b *Battle) teardown() {
	b.mu.Lock()
	clock := b.clock
	off := b.offEvent
	ch := b.channel
	b.clock = nil
	b.offEvent = nil
	b.channel = nil
	done := b.onDone
	b.onDone = nil
	b.mu.Unlock()

	if clock != nil {
		clock.Stop()
	}
	if off != nil {
		off()
	}
	if ch != nil {
		if err := ch.Close(); err != nil {
			logrus.Warnf("channel close failed session_id=%s error=%v", b.session.ID, err)
		}
	}
	if done != nil {
		done()
	}
}

// sendEvent snapshots the channel under the lock; teardown may nil
// the field from the timer goroutine at any point. A nil channel
// (practice, or already torn down) sends nothing.
func (b *Battle) sendEvent(ctx context.Context, ev battleEvent) error {
	b.mu.Lock()
	ch := b.channel
	b.mu.Unlock()
	if ch == nil {
		return nil
	}
	sendCtx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()
	return ch.Send(sendCtx, battleEventName, ev)
}
