package backend

import (
	"encoding/json"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/pixeleye/sethpirith/backend/ipc"
	"github.com/pixeleye/sethpirith/backend/player/playertest"
	"github.com/pixeleye/sethpirith/backend/util"
)

type testApp struct {
	*App
	player *playertest.Player
	clock  *util.FakeClock
}

func newTestApp(t *testing.T, store KVStore) *testApp {
	t.Helper()
	if store == nil {
		store = NewMemoryStore()
	}
	a := &App{Config: DefaultConfig("v0.0.0-test"), appVersionTag: "v0.0.0-test"}
	a.Config.Application.PreventSystemSleep = false
	p := playertest.NewPlayer()
	clock := util.NewFakeClock(testEpoch)
	if err := a.initSession(store, p, clock, testAssetsDir); err != nil {
		t.Fatalf("initSession: %v", err)
	}
	t.Cleanup(a.Shutdown)
	return &testApp{App: a, player: p, clock: clock}
}

func waitQuit(t *testing.T, a *App) {
	t.Helper()
	select {
	case <-a.QuitRequested():
	case <-time.After(2 * time.Second):
		t.Fatal("quit was not requested")
	}
}

func TestHandleCommand(t *testing.T) {
	a := newTestApp(t, nil)
	if err := a.PlayTrack(0); err != nil {
		t.Fatal(err)
	}
	a.player.FinishPrepare()

	steps := []struct {
		cmd     ipc.Command
		wantID  int
		playing bool
	}{
		{ipc.Command{Action: ipc.ActionPlayPause}, 0, false},
		{ipc.Command{Action: ipc.ActionPlayPause}, 0, true},
		{ipc.Command{Action: ipc.ActionNext}, 1, true},
		{ipc.Command{Action: ipc.ActionPrevious}, 0, true},
		{ipc.Command{Action: ipc.ActionPrevious}, 2, true},
	}
	for _, s := range steps {
		if err := a.HandleCommand(s.cmd); err != nil {
			t.Fatalf("HandleCommand(%s): %v", s.cmd.Action, err)
		}
		a.player.FinishPrepare()
		if got := a.Session.PlayingID(); got != s.wantID {
			t.Errorf("after %s PlayingID() = %d, want %d", s.cmd.Action, got, s.wantID)
		}
		if got := a.Session.IsPlaying(); got != s.playing {
			t.Errorf("after %s IsPlaying() = %t, want %t", s.cmd.Action, got, s.playing)
		}
	}
}

func TestHandleCommand_Errors(t *testing.T) {
	a := newTestApp(t, nil)
	if err := a.HandleCommand(ipc.Command{Action: "REWIND"}); !errors.Is(err, ErrUnknownCommand) {
		t.Errorf("unknown action error = %v, want ErrUnknownCommand", err)
	}
	for _, ms := range []int64{0, -1000, MaxTimerMillis + 1, math.MaxInt64} {
		err := a.HandleCommand(ipc.Command{Action: ipc.ActionStartTimer, DurationMS: ms})
		if !errors.Is(err, ErrInvalidDuration) {
			t.Errorf("START_TIMER %d error = %v, want ErrInvalidDuration", ms, err)
		}
	}
	if a.SleepTimer.Active() {
		t.Error("invalid START_TIMER should not start the timer")
	}
}

func TestTimers(t *testing.T) {
	a := newTestApp(t, nil)
	if err := a.HandleCommand(ipc.Command{Action: ipc.ActionStartTimer, DurationMS: 600000}); err != nil {
		t.Fatal(err)
	}
	if !a.Status().TimerActive {
		t.Error("status should report the running timer")
	}
	if err := a.HandleCommand(ipc.Command{Action: ipc.ActionStopTimer}); err != nil {
		t.Fatal(err)
	}
	st := a.Status()
	if st.TimerActive || st.TimerRemainingMS != 0 {
		t.Errorf("status after STOP_TIMER = %+v", st)
	}
	if _, ok := a.Prefs.TimerState(); ok {
		t.Error("STOP_TIMER should clear the persisted state")
	}
}

func TestClose(t *testing.T) {
	a := newTestApp(t, nil)
	a.PlayTrack(1)
	a.player.FinishPrepare()

	if err := a.HandleCommand(ipc.Command{Action: ipc.ActionClose}); err != nil {
		t.Fatal(err)
	}
	if a.Session.IsPlaying() || a.Prefs.IsPlaying() {
		t.Error("CLOSE should stop playback")
	}
	waitQuit(t, a.App)
}

func TestCloseWithoutExit(t *testing.T) {
	a := newTestApp(t, nil)
	a.Config.Application.ExitOnStop = false
	a.HandleCommand(ipc.Command{Action: ipc.ActionClose})
	select {
	case <-a.QuitRequested():
		t.Error("quit requested with ExitOnStop disabled")
	case <-time.After(50 * time.Millisecond):
	}
}

// Playing a track then letting a 5 minute timer run out stops playback
// and clears the timer.
func TestSleepTimerStopsPlayback(t *testing.T) {
	a := newTestApp(t, nil)
	sub := a.Events.Subscribe(64)
	defer sub.Unsubscribe()

	a.PlayTrack(0)
	a.player.FinishPrepare()
	if a.Prefs.LastAudioID() != 0 || !a.Prefs.IsPlaying() {
		t.Fatalf("persisted (%d, %t), want (0, true)", a.Prefs.LastAudioID(), a.Prefs.IsPlaying())
	}

	if err := a.HandleCommand(ipc.Command{Action: ipc.ActionStartTimer, DurationMS: 300000}); err != nil {
		t.Fatal(err)
	}
	if got := nextEvent(t, sub, isTimerProgress).(TimerProgress).Remaining; got != 5*time.Minute {
		t.Errorf("first progress = %v, want 5m", got)
	}

	a.clock.Advance(301 * time.Second)
	a.clock.Tick()
	nextEvent(t, sub, isTimerFinished)
	waitQuit(t, a.App)

	if a.Prefs.IsPlaying() || a.Session.IsPlaying() {
		t.Error("expected playback stopped after timer expiry")
	}
	if _, ok := a.Prefs.TimerState(); ok {
		t.Error("timer state should be cleared after expiry")
	}
	if got := a.player.LoadedPath(); got == "" {
		t.Error("expiry should pause, not release")
	}
}

func TestRecoverTimerOnStartup(t *testing.T) {
	store := NewMemoryStore()
	NewPrefs(store).SaveTimerState(testEpoch.Add(-2*time.Minute), 5*time.Minute)
	a := newTestApp(t, store)
	if !a.SleepTimer.Recover() {
		t.Fatal("expected the timer to resume")
	}
	if got := a.Status().TimerRemainingMS; got != 180000 {
		t.Errorf("TimerRemainingMS = %d, want 180000", got)
	}
}

func TestApp_SetLocale(t *testing.T) {
	a := newTestApp(t, nil)
	sub := a.Events.Subscribe(16)
	defer sub.Unsubscribe()

	if err := a.SetLocale("si-LK"); err != nil {
		t.Fatal(err)
	}
	e := nextEvent(t, sub, func(e Event) bool { _, ok := e.(LocaleChanged); return ok })
	if got := e.(LocaleChanged).Code; got != "si" {
		t.Errorf("LocaleChanged code = %q, want %q", got, "si")
	}
	if got := a.Prefs.Locale(); got != "si" {
		t.Errorf("persisted locale = %q, want %q", got, "si")
	}
	ly, err := a.Lyrics(0)
	if err != nil {
		t.Fatal(err)
	}
	if ly.Locale != "si" || ly.Title != a.Localizer.TrackTitle(a.Catalog[0]) {
		t.Errorf("Lyrics(0) = %+v", ly)
	}

	if err := a.SetLocale("fr"); !errors.Is(err, ErrUnsupportedLocale) {
		t.Errorf("SetLocale(fr) error = %v, want ErrUnsupportedLocale", err)
	}
	if got := a.Prefs.Locale(); got != "si" {
		t.Errorf("rejected locale changed prefs to %q", got)
	}
}

func TestPersistedLocaleApplied(t *testing.T) {
	store := NewMemoryStore()
	NewPrefs(store).SetLocale("si")
	a := newTestApp(t, store)
	if got := a.Localizer.Locale(); got != "si" {
		t.Errorf("Locale() = %q, want %q", got, "si")
	}

	store = NewMemoryStore()
	NewPrefs(store).SetLocale("xx")
	a = newTestApp(t, store)
	if got := a.Prefs.Locale(); got != DefaultLocale {
		t.Errorf("unsupported persisted locale not replaced: %q", got)
	}
}

func TestReset(t *testing.T) {
	a := newTestApp(t, nil)
	a.PlayTrack(2)
	a.player.FinishPrepare()
	a.ToggleShuffle()
	a.ToggleRepeat()
	a.SetLocale("si")
	a.HandleCommand(ipc.Command{Action: ipc.ActionStartTimer, DurationMS: 600000})

	if err := a.Reset(); err != nil {
		t.Fatal(err)
	}

	want := SessionState{CurrentTrackID: NoTrack, LocaleCode: DefaultLocale}
	if got := a.Prefs.Session(); got != want {
		t.Errorf("prefs after Reset = %+v, want %+v", got, want)
	}
	if _, ok := a.Prefs.TimerState(); ok {
		t.Error("timer state should be absent after Reset")
	}
	if got := a.Prefs.LastTitleKey(); got != "" {
		t.Errorf("cached title %q not discarded", got)
	}
	st := a.Status()
	if st.TrackID != NoTrack || st.IsPlaying || st.Locale != DefaultLocale || st.LoadStatus != Unloaded.String() {
		t.Errorf("status after Reset = %+v", st)
	}
}

func TestLyrics_OutOfRange(t *testing.T) {
	a := newTestApp(t, nil)
	if _, err := a.Lyrics(3); !errors.Is(err, ErrTrackOutOfRange) {
		t.Errorf("Lyrics(3) error = %v, want ErrTrackOutOfRange", err)
	}
}

func TestTimerPresets(t *testing.T) {
	a := newTestApp(t, nil)
	presets := a.TimerPresets()
	if len(presets) != 6 {
		t.Fatalf("got %d presets, want 6", len(presets))
	}
	if presets[0].Label != "5 minutes" || presets[0].DurationMS != 300000 {
		t.Errorf("first preset = %+v", presets[0])
	}
	if presets[4].Label != "1 hour" || presets[4].DurationMS != 3600000 {
		t.Errorf("hour preset = %+v", presets[4])
	}
	if last := presets[5]; last.Label != "Never" || last.DurationMS != 0 {
		t.Errorf("last preset = %+v, want Never/0", last)
	}
}

func TestSubscribeEvents(t *testing.T) {
	a := newTestApp(t, nil)
	events, unsubscribe := a.SubscribeEvents()

	a.SetLocale("si")
	select {
	case e := <-events:
		if e.Name != "locale-changed" {
			t.Errorf("event name = %q, want locale-changed", e.Name)
		}
		var lc LocaleChanged
		if err := json.Unmarshal(e.Data, &lc); err != nil || lc.Code != "si" {
			t.Errorf("event data = %s", e.Data)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
	}

	unsubscribe()
	unsubscribe()
	for range events {
	}
}

func TestVolumeChangeUpdatesConfig(t *testing.T) {
	a := newTestApp(t, nil)
	if err := a.Session.SetVolume(140); err != nil {
		t.Fatal(err)
	}
	if got := a.Config.LocalPlayback.Volume; got != 100 {
		t.Errorf("config volume = %d, want 100", got)
	}
	a.Session.SetVolume(35)
	if got := a.Config.LocalPlayback.Volume; got != 35 {
		t.Errorf("config volume = %d, want 35", got)
	}
}
