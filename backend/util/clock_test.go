package util

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestFakeClock_Advance(t *testing.T) {
	start := time.Date(2024, 5, 1, 20, 0, 0, 0, time.UTC)
	c := NewFakeClock(start)
	c.Advance(90 * time.Second)
	if got := c.Now().Sub(start); got != 90*time.Second {
		t.Errorf("Expected 90s elapsed, got %v", got)
	}
}

func TestFakeClock_Tick(t *testing.T) {
	c := NewFakeClock(time.Unix(0, 0))
	a := c.NewTicker(time.Second)
	b := c.NewTicker(time.Minute)

	c.Advance(time.Second)
	c.Tick()
	c.Tick() // dropped: previous tick not received
	for _, tk := range []Ticker{a, b} {
		select {
		case now := <-tk.C():
			if !now.Equal(time.Unix(1, 0)) {
				t.Errorf("Expected tick at 1s, got %v", now)
			}
		default:
			t.Error("Expected a pending tick")
		}
		select {
		case <-tk.C():
			t.Error("Expected the second tick to be dropped")
		default:
		}
	}

	a.Stop()
	if n := c.ActiveTickers(); n != 1 {
		t.Errorf("Expected 1 active ticker, got %d", n)
	}
	c.Tick()
	select {
	case <-a.C():
		t.Error("Stopped ticker should not fire")
	default:
	}
	b.Stop()
	b.Stop()
	if n := c.ActiveTickers(); n != 0 {
		t.Errorf("Expected no active tickers, got %d", n)
	}
}

func TestSystemClock(t *testing.T) {
	tk := SystemClock.NewTicker(time.Millisecond)
	defer tk.Stop()
	select {
	case <-tk.C():
	case <-time.After(time.Second):
		t.Error("Expected system ticker to fire")
	}
}

func TestCopyFile(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "config.toml")
	dst := filepath.Join(dir, "config.toml.bak")
	if err := os.WriteFile(src, []byte("[Application]\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := CopyFile(src, dst); err != nil {
		t.Fatal(err)
	}
	b, err := os.ReadFile(dst)
	if err != nil || string(b) != "[Application]\n" {
		t.Errorf("Expected copied contents, got %q (%v)", b, err)
	}
}
