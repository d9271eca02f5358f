package player

import (
	"errors"
	"time"
)

var (
	// Returned when an operation is attempted on a resource that is not
	// in the right lifecycle phase (e.g. seeking while still preparing).
	ErrInvalidState = errors.New("player is in an invalid state for this operation")

	// Returned by operations that require a loaded resource when none is loaded.
	ErrNotLoaded = errors.New("no audio resource loaded")
)

// Player is a single-track audio resource: at most one file is
// loaded at a time, and loading a new file releases the previous one.
type Player interface {
	// Load releases any loaded resource and begins preparing the file at path.
	// Preparation completes asynchronously by invoking the OnPrepared
	// or OnError callback. A non-nil return means preparation could not begin.
	Load(path string) error

	// Start begins or resumes playback of a prepared resource.
	Start() error
	// Pause pauses playback, keeping the resource loaded.
	Pause() error
	// Release unloads the current resource, if any.
	Release()

	IsPlaying() (bool, error)
	SetLooping(bool) error
	IsLooping() bool

	Position() (time.Duration, error)
	Duration() (time.Duration, error)
	SeekTo(time.Duration) error

	SetVolume(int) error
	GetVolume() int

	// Destroy releases all player resources. The player may not be used afterwards.
	Destroy()

	// Event API
	OnPrepared(func(path string))
	OnCompletion(func(path string))
	OnError(func(path string, err error))
}

// The playback state (Stopped, Preparing, Paused, or Playing).
type State int

const (
	Stopped State = iota
	Preparing
	Paused
	Playing
)

func (s State) String() string {
	switch s {
	case Preparing:
		return "Preparing"
	case Paused:
		return "Paused"
	case Playing:
		return "Playing"
	default:
		return "Stopped"
	}
}

type BasePlayerCallbackImpl struct {
	onPrepared   func(string)
	onCompletion func(string)
	onError      func(string, error)
}

// Sets a callback which is invoked when a loaded file is ready for playback.
func (p *BasePlayerCallbackImpl) OnPrepared(cb func(string)) {
	p.onPrepared = cb
}

// Sets a callback which is invoked when the loaded file plays to its end.
// Not invoked while looping is enabled.
func (p *BasePlayerCallbackImpl) OnCompletion(cb func(string)) {
	p.onCompletion = cb
}

// Sets a callback which is invoked when a loaded file fails to prepare.
func (p *BasePlayerCallbackImpl) OnError(cb func(string, error)) {
	p.onError = cb
}

func (p *BasePlayerCallbackImpl) InvokeOnPrepared(path string) {
	if p.onPrepared != nil {
		p.onPrepared(path)
	}
}

func (p *BasePlayerCallbackImpl) InvokeOnCompletion(path string) {
	if p.onCompletion != nil {
		p.onCompletion(path)
	}
}

func (p *BasePlayerCallbackImpl) InvokeOnError(path string, err error) {
	if p.onError != nil {
		p.onError(path, err)
	}
}
