package backend

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pixeleye/sethpirith/backend/player/playertest"
	"github.com/pixeleye/sethpirith/backend/util"
)

const testAssetsDir = "/assets"

var testEpoch = time.UnixMilli(1_700_000_000_000)

type recordingNotifier struct {
	mu        sync.Mutex
	refreshes []Notification
	removes   int
}

func (r *recordingNotifier) Refresh(n Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.refreshes = append(r.refreshes, n)
}

func (r *recordingNotifier) Remove() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removes++
}

func (r *recordingNotifier) last() (Notification, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.refreshes) == 0 {
		return Notification{}, false
	}
	return r.refreshes[len(r.refreshes)-1], true
}

func (r *recordingNotifier) removeCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.removes
}

type countingStopper struct {
	mu    sync.Mutex
	stops int
}

func (c *countingStopper) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stops++
}

func (c *countingStopper) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stops
}

type testSession struct {
	sc       *SessionController
	player   *playertest.Player
	prefs    *Prefs
	bus      *EventBus
	notifier *recordingNotifier
	notes    *NotificationSurface
	loc      *Localizer
	clock    *util.FakeClock
	timer    *SleepTimer
}

func newTestSession(t *testing.T, prefs *Prefs) *testSession {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	if prefs == nil {
		prefs = NewPrefs(NewMemoryStore())
	}
	l, err := NewLocalizer()
	if err != nil {
		t.Fatalf("NewLocalizer: %v", err)
	}
	rec := &recordingNotifier{}
	n := NewNotificationSurface(l, rec)
	bus := NewEventBus()
	p := playertest.NewPlayer()
	sc := NewSessionController(ctx, DefaultCatalog(), p, prefs, l, n, bus, testAssetsDir)

	clock := util.NewFakeClock(testEpoch)
	timer := NewSleepTimer(ctx, clock, time.Second, prefs, bus, n, sc)
	sc.SetSleepTimer(timer)
	t.Cleanup(func() {
		timer.Stop()
		timer.Wait()
	})

	return &testSession{sc: sc, player: p, prefs: prefs, bus: bus, notifier: rec, notes: n, loc: l, clock: clock, timer: timer}
}

// play loads track id and completes preparation.
func (ts *testSession) play(t *testing.T, id int) {
	t.Helper()
	if err := ts.sc.PlayTrack(id); err != nil {
		t.Fatalf("PlayTrack(%d): %v", id, err)
	}
	ts.player.FinishPrepare()
}

func trackPath(t *testing.T, id int) string {
	t.Helper()
	tr, err := DefaultCatalog().Track(id)
	if err != nil {
		t.Fatal(err)
	}
	return tr.AudioPath(testAssetsDir)
}

// nextEvent waits for the next event matching keep.
func nextEvent(t *testing.T, sub *Subscription, keep func(Event) bool) Event {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case e, ok := <-sub.C():
			if !ok {
				t.Fatal("subscription closed")
			}
			if keep == nil || keep(e) {
				return e
			}
		case <-deadline:
			t.Fatal("timed out waiting for event")
		}
	}
}

func isTimerProgress(e Event) bool {
	_, ok := e.(TimerProgress)
	return ok
}

func isTimerFinished(e Event) bool {
	_, ok := e.(TimerFinished)
	return ok
}

// eventually polls cond until it holds or the deadline passes.
func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}
