// Package beep implements player.Player in pure Go on top of faiface/beep,
// for systems where libmpv is not available.
package beep

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/faiface/beep"
	"github.com/faiface/beep/effects"
	"github.com/faiface/beep/mp3"
	"github.com/faiface/beep/speaker"
	"github.com/faiface/beep/wav"
	"github.com/pixeleye/sethpirith/backend/player"
)

const (
	outputSampleRate = beep.SampleRate(48000)
	resampleQuality  = 4
)

var ErrUnsupportedFormat = errors.New("unsupported audio format")

var _ player.Player = (*Player)(nil)

type Player struct {
	player.BasePlayerCallbackImpl

	initialized bool

	// read by the speaker goroutine without taking mu
	gen     atomic.Int64 // incremented on every Load/Release to discard stale decodes
	looping atomic.Bool

	mu    sync.Mutex
	path  string
	state player.State
	vol   int

	stream beep.StreamSeekCloser
	format beep.Format
	ctrl   *beep.Ctrl
	volume *effects.Volume
}

func New() *Player {
	return &Player{vol: 100}
}

// Initializes the speaker. Must be called once before playback.
func (p *Player) Init(bufferDuration time.Duration) error {
	if p.initialized {
		return nil
	}
	if err := speaker.Init(outputSampleRate, outputSampleRate.N(bufferDuration)); err != nil {
		return fmt.Errorf("error initializing speaker: %w", err)
	}
	p.initialized = true
	return nil
}

func (p *Player) Load(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	p.Release()

	p.mu.Lock()
	gen := p.gen.Add(1)
	p.path = path
	p.state = player.Preparing
	p.mu.Unlock()

	go p.prepare(gen, path, f)
	return nil
}

func (p *Player) prepare(gen int64, path string, f *os.File) {
	stream, format, err := decode(path, f)
	if err != nil {
		f.Close()
		p.mu.Lock()
		stale := gen != p.gen.Load()
		if !stale {
			p.path = ""
			p.state = player.Stopped
		}
		p.mu.Unlock()
		if !stale {
			p.InvokeOnError(path, err)
		}
		return
	}

	p.mu.Lock()
	if gen != p.gen.Load() {
		p.mu.Unlock()
		stream.Close()
		return
	}
	p.stream = stream
	p.format = format
	var s beep.Streamer = &loopStreamer{p: p, gen: gen, s: stream}
	if format.SampleRate != outputSampleRate {
		s = beep.Resample(resampleQuality, format.SampleRate, outputSampleRate, s)
	}
	p.ctrl = &beep.Ctrl{Streamer: s, Paused: true}
	p.volume = &effects.Volume{Streamer: p.ctrl, Base: 2}
	p.applyVolume()
	p.state = player.Paused
	p.mu.Unlock()

	if p.initialized {
		speaker.Play(p.volume)
	}
	p.InvokeOnPrepared(path)
}

func decode(path string, f *os.File) (beep.StreamSeekCloser, beep.Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".mp3":
		return mp3.Decode(f)
	case ".wav":
		return wav.Decode(f)
	}
	return nil, beep.Format{}, ErrUnsupportedFormat
}

func (p *Player) Start() error {
	return p.setPaused(false)
}

func (p *Player) Pause() error {
	return p.setPaused(true)
}

func (p *Player) setPaused(paused bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.checkPrepared(); err != nil {
		return err
	}
	p.withSpeakerLock(func() { p.ctrl.Paused = paused })
	if paused {
		p.state = player.Paused
	} else {
		p.state = player.Playing
	}
	return nil
}

func (p *Player) Release() {
	p.mu.Lock()
	p.gen.Add(1)
	stream := p.stream
	p.stream = nil
	p.ctrl = nil
	p.volume = nil
	p.path = ""
	p.state = player.Stopped
	p.mu.Unlock()

	if stream != nil {
		if p.initialized {
			speaker.Clear()
		}
		stream.Close()
	}
}

func (p *Player) IsPlaying() (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state == player.Playing, nil
}

func (p *Player) SetLooping(loop bool) error {
	p.looping.Store(loop)
	return nil
}

func (p *Player) IsLooping() bool {
	return p.looping.Load()
}

func (p *Player) Position() (time.Duration, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.checkPrepared(); err != nil {
		return 0, err
	}
	var pos int
	p.withSpeakerLock(func() { pos = p.stream.Position() })
	return p.format.SampleRate.D(pos), nil
}

func (p *Player) Duration() (time.Duration, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.checkPrepared(); err != nil {
		return 0, err
	}
	return p.format.SampleRate.D(p.stream.Len()), nil
}

func (p *Player) SeekTo(pos time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.checkPrepared(); err != nil {
		return err
	}
	n := p.format.SampleRate.N(pos)
	n = min(max(n, 0), p.stream.Len())
	var err error
	p.withSpeakerLock(func() { err = p.stream.Seek(n) })
	return err
}

func (p *Player) SetVolume(vol int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.vol = min(max(vol, 0), 100)
	p.applyVolume()
	return nil
}

func (p *Player) GetVolume() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.vol
}

func (p *Player) Destroy() {
	p.Release()
	if p.initialized {
		speaker.Close()
		p.initialized = false
	}
}

// must be called with p.mu held
func (p *Player) applyVolume() {
	if p.volume == nil {
		return
	}
	silent := p.vol == 0
	// map 0-100 linear percentage onto beep's base-2 exponent
	level := 0.0
	if !silent {
		level = math.Log2(float64(p.vol) / 100)
	}
	p.withSpeakerLock(func() {
		p.volume.Silent = silent
		p.volume.Volume = level
	})
}

// must be called with p.mu held
func (p *Player) checkPrepared() error {
	switch {
	case p.path == "":
		return player.ErrNotLoaded
	case p.state == player.Preparing || p.stream == nil:
		return player.ErrInvalidState
	}
	return nil
}

func (p *Player) withSpeakerLock(f func()) {
	if p.initialized {
		speaker.Lock()
		defer speaker.Unlock()
	}
	f()
}

// Called from the speaker goroutine (with the speaker locked) when the
// stream drains. Reports whether the stream should rewind and continue.
func (p *Player) handleStreamEnd(gen int64) bool {
	if gen != p.gen.Load() {
		return false
	}
	if p.looping.Load() {
		return true
	}
	go p.finish(gen)
	return false
}

func (p *Player) finish(gen int64) {
	p.mu.Lock()
	if gen != p.gen.Load() {
		p.mu.Unlock()
		return
	}
	path := p.path
	p.state = player.Paused
	p.mu.Unlock()
	p.InvokeOnCompletion(path)
}

// loopStreamer rewinds its source on exhaustion while the player is looping.
type loopStreamer struct {
	p   *Player
	gen int64
	s   beep.StreamSeeker
}

func (l *loopStreamer) Stream(samples [][2]float64) (int, bool) {
	filled := 0
	for filled < len(samples) {
		n, ok := l.s.Stream(samples[filled:])
		filled += n
		if ok && n > 0 {
			continue
		}
		if !l.p.handleStreamEnd(l.gen) {
			return filled, filled > 0
		}
		if err := l.s.Seek(0); err != nil {
			return filled, filled > 0
		}
	}
	return filled, true
}

func (l *loopStreamer) Err() error {
	return l.s.Err()
}
