// Package playertest provides an in-memory player.Player for tests.
package playertest

import (
	"sync"
	"time"

	"github.com/pixeleye/sethpirith/backend/player"
)

var _ player.Player = (*Player)(nil)

// Player is an in-memory player.Player. Preparation never completes on its
// own: call FinishPrepare, FailPrepare or Complete to drive the lifecycle.
type Player struct {
	player.BasePlayerCallbackImpl

	mu        sync.Mutex
	path      string
	state     player.State
	looping   bool
	position  time.Duration
	duration  time.Duration
	vol       int
	broken    bool
	loadErr   error
	loads     []string
	releases  int
	destroyed bool
}

func NewPlayer() *Player {
	return &Player{vol: 100, duration: 5 * time.Minute}
}

func (m *Player) Load(path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loads = append(m.loads, path)
	if m.loadErr != nil {
		m.path = ""
		m.state = player.Stopped
		return m.loadErr
	}
	m.path = path
	m.state = player.Preparing
	m.position = 0
	return nil
}

func (m *Player) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkPrepared(); err != nil {
		return err
	}
	m.state = player.Playing
	return nil
}

func (m *Player) Pause() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkPrepared(); err != nil {
		return err
	}
	m.state = player.Paused
	return nil
}

func (m *Player) Release() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.path != "" {
		m.releases++
	}
	m.path = ""
	m.state = player.Stopped
	m.position = 0
}

func (m *Player) IsPlaying() (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.broken {
		return false, player.ErrInvalidState
	}
	return m.state == player.Playing, nil
}

func (m *Player) SetLooping(loop bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.broken {
		return player.ErrInvalidState
	}
	m.looping = loop
	return nil
}

func (m *Player) IsLooping() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.looping
}

func (m *Player) Position() (time.Duration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkPrepared(); err != nil {
		return 0, err
	}
	return m.position, nil
}

func (m *Player) Duration() (time.Duration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkPrepared(); err != nil {
		return 0, err
	}
	return m.duration, nil
}

func (m *Player) SeekTo(pos time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkPrepared(); err != nil {
		return err
	}
	m.position = min(max(pos, 0), m.duration)
	return nil
}

func (m *Player) SetVolume(vol int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.vol = min(max(vol, 0), 100)
	return nil
}

func (m *Player) GetVolume() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.vol
}

func (m *Player) Destroy() {
	m.Release()
	m.mu.Lock()
	m.destroyed = true
	m.mu.Unlock()
}

// FinishPrepare completes preparation of the loaded file and fires OnPrepared.
func (m *Player) FinishPrepare() {
	m.mu.Lock()
	if m.state != player.Preparing {
		m.mu.Unlock()
		return
	}
	path := m.path
	m.state = player.Paused
	m.mu.Unlock()
	m.InvokeOnPrepared(path)
}

// FailPrepare abandons preparation of the loaded file and fires OnError.
func (m *Player) FailPrepare(err error) {
	m.mu.Lock()
	path := m.path
	m.path = ""
	m.state = player.Stopped
	m.mu.Unlock()
	m.InvokeOnError(path, err)
}

// Complete simulates the loaded file playing to its end.
func (m *Player) Complete() {
	m.mu.Lock()
	path := m.path
	looping := m.looping
	if !looping {
		m.state = player.Paused
		m.position = m.duration
	} else {
		m.position = 0
	}
	m.mu.Unlock()
	if !looping {
		m.InvokeOnCompletion(path)
	}
}

// SetBroken makes state-dependent operations fail with player.ErrInvalidState.
func (m *Player) SetBroken(broken bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.broken = broken
}

// SetLoadError makes subsequent Load calls fail with err.
func (m *Player) SetLoadError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loadErr = err
}

func (m *Player) SetDuration(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.duration = d
}

func (m *Player) State() player.State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *Player) LoadedPath() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.path
}

// Loads returns every path passed to Load, in order.
func (m *Player) Loads() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.loads...)
}

func (m *Player) Releases() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.releases
}

func (m *Player) Destroyed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.destroyed
}

func (m *Player) checkPrepared() error {
	switch {
	case m.broken:
		return player.ErrInvalidState
	case m.path == "":
		return player.ErrNotLoaded
	case m.state == player.Preparing:
		return player.ErrInvalidState
	}
	return nil
}
