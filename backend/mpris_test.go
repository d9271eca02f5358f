package backend

import (
	"testing"
	"time"

	"github.com/godbus/dbus/v5"
	"github.com/quarckster/go-mpris-server/pkg/types"
)

func newTestMPRIS(t *testing.T) (*MPRISHandler, *testSession) {
	t.Helper()
	ts := newTestSession(t, nil)
	m := NewMPRISHandler("Seth Pirith", ts.sc)
	ts.notes.AddNotifier(m)
	return m, ts
}

func TestMPRIS_NothingLoaded(t *testing.T) {
	m, _ := newTestMPRIS(t)
	md, _ := m.Metadata()
	if md.TrackId != dbus.ObjectPath(noTrackObjectPath) {
		t.Errorf("TrackId = %q, want NoTrack", md.TrackId)
	}
	if st, _ := m.PlaybackStatus(); st != types.PlaybackStatusStopped {
		t.Errorf("PlaybackStatus() = %v, want Stopped", st)
	}
}

func TestMPRIS_PlayFromUnloaded(t *testing.T) {
	m, ts := newTestMPRIS(t)
	if err := m.Play(); err != nil {
		t.Fatal(err)
	}
	// preparing: Play must not queue a second load
	m.Play()
	if n := len(ts.player.Loads()); n != 1 {
		t.Errorf("%d loads, want 1", n)
	}
	ts.player.FinishPrepare()
	if got := ts.sc.PlayingID(); got != 0 {
		t.Fatalf("PlayingID() = %d, want 0", got)
	}

	if st, _ := m.PlaybackStatus(); st != types.PlaybackStatusPlaying {
		t.Errorf("PlaybackStatus() = %v, want Playing", st)
	}
	m.Pause()
	if st, _ := m.PlaybackStatus(); st != types.PlaybackStatusPaused {
		t.Errorf("PlaybackStatus() after Pause = %v, want Paused", st)
	}
	m.Play()
	if !ts.sc.IsPlaying() {
		t.Error("Play should resume a paused track")
	}
	m.Stop()
	if st, _ := m.PlaybackStatus(); st != types.PlaybackStatusStopped {
		t.Errorf("PlaybackStatus() after Stop = %v, want Stopped", st)
	}
}

func TestMPRIS_Metadata(t *testing.T) {
	m, ts := newTestMPRIS(t)
	ts.player.SetDuration(3 * time.Minute)
	ts.play(t, 1)

	md, _ := m.Metadata()
	want := ts.loc.TrackTitle(DefaultCatalog()[1])
	if md.TrackId != "/SethPirith/Track/1" || md.Title != want || md.TrackNumber != 2 {
		t.Errorf("Metadata() = %+v, want track 1 %q", md, want)
	}
	if md.Length != types.Microseconds(180_000_000) {
		t.Errorf("Length = %d, want 180000000", md.Length)
	}
	if md.Album != "Seth Pirith" || md.Artist != nil {
		t.Errorf("Album %q Artist %v", md.Album, md.Artist)
	}

	ts.notes.UpdateTimer(5 * time.Minute)
	md, _ = m.Metadata()
	if len(md.Artist) != 1 || md.Artist[0] != "Timer: 00:05:00" {
		t.Errorf("Artist = %v, want the timer line", md.Artist)
	}
}

func TestMPRIS_NextPrevious(t *testing.T) {
	m, ts := newTestMPRIS(t)
	ts.play(t, 0)
	m.Next()
	ts.player.FinishPrepare()
	if got := ts.sc.PlayingID(); got != 1 {
		t.Errorf("after Next PlayingID() = %d, want 1", got)
	}
	m.Previous()
	ts.player.FinishPrepare()
	m.Previous()
	ts.player.FinishPrepare()
	if got := ts.sc.PlayingID(); got != 2 {
		t.Errorf("after two Previous PlayingID() = %d, want 2", got)
	}
}

func TestMPRIS_LoopAndShuffle(t *testing.T) {
	m, ts := newTestMPRIS(t)
	if err := m.SetLoopStatus(types.LoopStatusTrack); err != nil {
		t.Fatal(err)
	}
	if st, _ := m.LoopStatus(); st != types.LoopStatusTrack || !ts.sc.RepeatEnabled() {
		t.Errorf("LoopStatus() = %v, want Track", st)
	}
	m.SetLoopStatus(types.LoopStatusPlaylist)
	if !ts.sc.RepeatEnabled() {
		t.Error("Playlist should leave repeat on")
	}
	m.SetLoopStatus(types.LoopStatusNone)
	if st, _ := m.LoopStatus(); st != types.LoopStatusNone {
		t.Errorf("LoopStatus() = %v, want None", st)
	}
	if err := m.SetLoopStatus("Sometimes"); err == nil {
		t.Error("expected error for unknown loop status")
	}

	m.SetShuffle(true)
	m.SetShuffle(true)
	if on, _ := m.Shuffle(); !on || !ts.prefs.ShuffleEnabled() {
		t.Error("SetShuffle(true) should enable and persist shuffle")
	}
	m.SetShuffle(false)
	if on, _ := m.Shuffle(); on {
		t.Error("SetShuffle(false) should disable shuffle")
	}
}

func TestMPRIS_Seek(t *testing.T) {
	m, ts := newTestMPRIS(t)
	ts.play(t, 0)
	ts.sc.SeekTo(10 * time.Second)

	m.Seek(durationToMicroseconds(5 * time.Second))
	if got := ts.sc.CurrentPosition(); got != 15*time.Second {
		t.Errorf("position after relative seek = %v, want 15s", got)
	}
	if pos, _ := m.Position(); pos != 15_000_000 {
		t.Errorf("Position() = %d, want 15000000", pos)
	}

	m.SetPosition("/SethPirith/Track/2", durationToMicroseconds(time.Minute))
	if got := ts.sc.CurrentPosition(); got != 15*time.Second {
		t.Errorf("SetPosition for another track moved to %v", got)
	}
	m.SetPosition("/SethPirith/Track/0", durationToMicroseconds(time.Minute))
	if got := ts.sc.CurrentPosition(); got != time.Minute {
		t.Errorf("position after SetPosition = %v, want 1m", got)
	}
}

func TestMPRIS_Volume(t *testing.T) {
	m, _ := newTestMPRIS(t)
	if err := m.SetVolume(0.5); err != nil {
		t.Fatal(err)
	}
	if v, _ := m.Volume(); v != 0.5 {
		t.Errorf("Volume() = %v, want 0.5", v)
	}
}

func TestMPRIS_Quit(t *testing.T) {
	m, _ := newTestMPRIS(t)
	if ok, _ := m.CanQuit(); ok {
		t.Error("CanQuit() without a handler")
	}
	if err := m.Quit(); err == nil {
		t.Error("Quit() without a handler should fail")
	}
	var quits int
	m.OnQuit = func() error { quits++; return nil }
	if err := m.Quit(); err != nil || quits != 1 {
		t.Errorf("Quit() = %v, quits %d", err, quits)
	}
}

func TestMicrosecondConversion(t *testing.T) {
	tests := []struct {
		d  time.Duration
		us types.Microseconds
	}{
		{0, 0},
		{time.Millisecond, 1000},
		{90 * time.Second, 90_000_000},
	}
	for _, tt := range tests {
		if got := durationToMicroseconds(tt.d); got != tt.us {
			t.Errorf("durationToMicroseconds(%v) = %d, want %d", tt.d, got, tt.us)
		}
		if got := microsecondsToDuration(tt.us); got != tt.d {
			t.Errorf("microsecondsToDuration(%d) = %v, want %v", tt.us, got, tt.d)
		}
	}
}
