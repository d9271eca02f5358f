package beep

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/pixeleye/sethpirith/backend/player"
)

const testSampleRate = 8000

// writeWAV writes a mono 16-bit PCM file of the given length in frames.
func writeWAV(t *testing.T, path string, frames int) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	buf := &audio.IntBuffer{
		Data:           make([]int, frames),
		Format:         &audio.Format{NumChannels: 1, SampleRate: testSampleRate},
		SourceBitDepth: 16,
	}
	for i := range buf.Data {
		buf.Data[i] = (i % 100) * 100
	}
	enc := wav.NewEncoder(f, testSampleRate, 16, 1, 1)
	if err := enc.Write(buf); err != nil {
		t.Fatal(err)
	}
	if err := enc.Close(); err != nil {
		t.Fatal(err)
	}
}

type callbacks struct {
	prepared  chan string
	errs      chan error
	completed chan string
}

func newTestPlayer(t *testing.T) (*Player, *callbacks) {
	t.Helper()
	p := New()
	cb := &callbacks{
		prepared:  make(chan string, 4),
		errs:      make(chan error, 4),
		completed: make(chan string, 4),
	}
	p.OnPrepared(func(path string) { cb.prepared <- path })
	p.OnError(func(_ string, err error) { cb.errs <- err })
	p.OnCompletion(func(path string) { cb.completed <- path })
	t.Cleanup(p.Destroy)
	return p, cb
}

func waitFor[T any](t *testing.T, c <-chan T, what string) T {
	t.Helper()
	select {
	case v := <-c:
		return v
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for %s", what)
	}
	var zero T
	return zero
}

func TestLoadWAV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chant.wav")
	writeWAV(t, path, testSampleRate)
	p, cb := newTestPlayer(t)

	if err := p.Load(path); err != nil {
		t.Fatal(err)
	}
	if got := waitFor(t, cb.prepared, "prepared"); got != path {
		t.Errorf("prepared %q, want %q", got, path)
	}

	if d, err := p.Duration(); err != nil || d != time.Second {
		t.Errorf("Duration() = %v, %v, want 1s", d, err)
	}
	if playing, _ := p.IsPlaying(); playing {
		t.Error("a prepared file should start paused")
	}
	if err := p.Start(); err != nil {
		t.Fatal(err)
	}
	if playing, _ := p.IsPlaying(); !playing {
		t.Error("expected playing after Start")
	}
	if err := p.SeekTo(500 * time.Millisecond); err != nil {
		t.Fatal(err)
	}
	if pos, err := p.Position(); err != nil || pos != 500*time.Millisecond {
		t.Errorf("Position() = %v, %v, want 500ms", pos, err)
	}
	if err := p.SeekTo(time.Hour); err != nil {
		t.Errorf("seek past the end should clamp, got %v", err)
	}

	p.Release()
	if _, err := p.Position(); !errors.Is(err, player.ErrNotLoaded) {
		t.Errorf("Position() after Release error = %v, want ErrNotLoaded", err)
	}
}

func TestLoadMissingFile(t *testing.T) {
	p, _ := newTestPlayer(t)
	if err := p.Load(filepath.Join(t.TempDir(), "missing.mp3")); err == nil {
		t.Error("expected error loading a missing file")
	}
}

func TestLoadUnsupportedFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chant.ogg")
	os.WriteFile(path, []byte("OggS"), 0644)
	p, cb := newTestPlayer(t)

	if err := p.Load(path); err != nil {
		t.Fatal(err)
	}
	if err := waitFor(t, cb.errs, "error"); !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("error = %v, want ErrUnsupportedFormat", err)
	}
	if _, err := p.Duration(); !errors.Is(err, player.ErrNotLoaded) {
		t.Errorf("Duration() error = %v, want ErrNotLoaded", err)
	}
}

func TestNotPreparedYet(t *testing.T) {
	p, _ := newTestPlayer(t)
	if err := p.Start(); !errors.Is(err, player.ErrNotLoaded) {
		t.Errorf("Start() with nothing loaded = %v, want ErrNotLoaded", err)
	}
}

// drain pulls samples through the output chain the way the speaker would.
func drain(p *Player, seconds int) {
	p.mu.Lock()
	s := p.volume
	p.mu.Unlock()
	buf := make([][2]float64, 4800)
	for i := 0; i < seconds*10; i++ {
		if _, ok := s.Stream(buf); !ok {
			return
		}
	}
}

func TestCompletion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chant.wav")
	writeWAV(t, path, testSampleRate/2)
	p, cb := newTestPlayer(t)
	p.Load(path)
	waitFor(t, cb.prepared, "prepared")
	p.Start()

	drain(p, 2)
	if got := waitFor(t, cb.completed, "completion"); got != path {
		t.Errorf("completed %q, want %q", got, path)
	}
	if playing, _ := p.IsPlaying(); playing {
		t.Error("expected paused after completion")
	}
}

func TestLoopingSuppressesCompletion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chant.wav")
	writeWAV(t, path, testSampleRate/2)
	p, cb := newTestPlayer(t)
	p.SetLooping(true)
	if !p.IsLooping() {
		t.Fatal("IsLooping() = false after SetLooping(true)")
	}
	p.Load(path)
	waitFor(t, cb.prepared, "prepared")
	p.Start()

	drain(p, 2)
	select {
	case <-cb.completed:
		t.Error("completion fired while looping")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestVolume(t *testing.T) {
	p, _ := newTestPlayer(t)
	tests := []struct {
		input int
		want  int
	}{
		{50, 50},
		{-10, 0},
		{250, 100},
	}
	for _, tt := range tests {
		p.SetVolume(tt.input)
		if got := p.GetVolume(); got != tt.want {
			t.Errorf("SetVolume(%d): GetVolume() = %d, want %d", tt.input, got, tt.want)
		}
	}
}
