package backend

import (
	"context"
	"errors"
	"log"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pixeleye/sethpirith/backend/util"
)

var ErrInvalidDuration = errors.New("timer duration out of range")

const (
	DefaultTimerTick = time.Second

	// MaxTimerMillis is the longest duration in milliseconds that fits a time.Duration.
	MaxTimerMillis = int64(math.MaxInt64 / time.Millisecond)
)

// Stopper is what the sleep timer stops on expiry.
type Stopper interface {
	Stop()
}

// SleepTimer is a wall-clock anchored countdown that stops the session
// when it expires. At most one run is active; starting a new run cancels
// the previous one. The deadline is start+duration, so a run recovered
// after a restart keeps its original deadline.
type SleepTimer struct {
	ctx           context.Context
	clock         util.Clock
	tick          time.Duration
	prefs         *Prefs
	bus           *EventBus
	notifications *NotificationSurface
	session       Stopper

	mu       sync.Mutex
	cancel   context.CancelFunc
	runID    uuid.UUID
	start    time.Time
	duration time.Duration
	wg       sync.WaitGroup
}

func NewSleepTimer(ctx context.Context, clock util.Clock, tick time.Duration, prefs *Prefs, bus *EventBus, n *NotificationSurface, session Stopper) *SleepTimer {
	if tick <= 0 {
		tick = DefaultTimerTick
	}
	return &SleepTimer{
		ctx:           ctx,
		clock:         clock,
		tick:          tick,
		prefs:         prefs,
		bus:           bus,
		notifications: n,
		session:       session,
	}
}

// Start begins a run of duration d anchored at start, cancelling any
// active run. The run is persisted before Start returns.
func (t *SleepTimer) Start(d time.Duration, start time.Time) (uuid.UUID, error) {
	// persisted in whole milliseconds
	if d < time.Millisecond {
		return uuid.Nil, ErrInvalidDuration
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cancel != nil {
		t.cancel()
	}
	ctx, cancel := context.WithCancel(t.ctx)
	t.cancel = cancel
	t.runID = uuid.New()
	t.start = start
	t.duration = d
	t.prefs.SaveTimerState(start, d)

	ticker := t.clock.NewTicker(t.tick)
	t.wg.Add(1)
	go t.run(ctx, t.runID, start, d, ticker)
	log.Printf("sleep timer %s started: %v", t.runID, d)
	return t.runID, nil
}

// StartNow is Start anchored at the current time.
func (t *SleepTimer) StartNow(d time.Duration) (uuid.UUID, error) {
	return t.Start(d, t.clock.Now())
}

func (t *SleepTimer) run(ctx context.Context, runID uuid.UUID, start time.Time, d time.Duration, ticker util.Ticker) {
	defer t.wg.Done()
	defer ticker.Stop()
	for {
		remaining := d - t.clock.Now().Sub(start)
		if remaining <= 0 {
			t.expire(runID)
			return
		}
		if !t.progress(runID, remaining) {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
		}
	}
}

// progress reports whether runID is still the active run.
func (t *SleepTimer) progress(runID uuid.UUID, remaining time.Duration) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.runID != runID || t.cancel == nil {
		return false
	}
	t.bus.Publish(TimerProgress{RunID: runID, Remaining: remaining})
	t.notifications.UpdateTimer(remaining)
	return true
}

func (t *SleepTimer) expire(runID uuid.UUID) {
	t.mu.Lock()
	if t.runID != runID || t.cancel == nil {
		t.mu.Unlock()
		return
	}
	t.cancel()
	t.cancel = nil
	t.start = time.Time{}
	t.duration = 0
	t.prefs.ClearTimerState()
	t.bus.Publish(TimerFinished{RunID: runID})
	t.mu.Unlock()

	log.Printf("sleep timer %s expired", runID)
	if t.session != nil {
		t.session.Stop()
	}
}

// Stop cancels the active run, if any, clears the persisted state and
// reports zero remaining time. It does not wait for the run to exit.
func (t *SleepTimer) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cancel != nil {
		t.cancel()
		t.cancel = nil
		log.Printf("sleep timer %s cancelled", t.runID)
	}
	runID := t.runID
	t.start = time.Time{}
	t.duration = 0
	t.prefs.ClearTimerState()
	t.bus.Publish(TimerProgress{RunID: runID, Remaining: 0})
	t.notifications.UpdateTimer(0)
}

// Recover resumes a persisted run whose deadline has not passed,
// and clears the persisted state otherwise. Reports whether a run resumed.
func (t *SleepTimer) Recover() bool {
	st, ok := t.prefs.TimerState()
	if !ok {
		t.prefs.ClearTimerState()
		return false
	}
	if st.Duration-t.clock.Now().Sub(st.Start) <= 0 {
		log.Println("discarding expired sleep timer state")
		t.prefs.ClearTimerState()
		return false
	}
	if _, err := t.Start(st.Duration, st.Start); err != nil {
		log.Printf("error recovering sleep timer: %v", err)
		return false
	}
	return true
}

func (t *SleepTimer) Active() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cancel != nil
}

// Remaining is the time left on the active run, or 0.
func (t *SleepTimer) Remaining() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cancel == nil {
		return 0
	}
	return max(t.duration-t.clock.Now().Sub(t.start), 0)
}

// Wait blocks until every run goroutine has exited.
// Must not be called from the session's Stop.
func (t *SleepTimer) Wait() {
	t.wg.Wait()
}
