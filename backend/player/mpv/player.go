package mpv

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/pixeleye/sethpirith/backend/player"
	"github.com/supersonic-app/go-mpv"
)

// Error returned by many Player functions if called before the player has not been initialized.
var ErrUnitialized error = errors.New("mpv player uninitialized")

// Information about a specific audio device.
// Returned by ListAudioDevices.
type AudioDevice struct {
	// The name of the audio device.
	// This is the string to pass to SetAudioDevice.
	Name string

	// The description of the audio device.
	// This is the friendly string that should be used in UIs.
	Description string
}

var _ player.Player = (*Player)(nil)

// Player encapsulates the mpv instance and provides functions
// to control it and to check its status.
type Player struct {
	player.BasePlayerCallbackImpl

	mpv         *mpv.Mpv
	initialized bool
	clientName  string

	mu      sync.Mutex
	vol     int
	state   player.State
	looping bool
	file    fileTracker

	bgCancel context.CancelFunc
}

// Returns a new player.
// Must call Init on the player before it is ready for playback.
func New() *Player {
	return NewWithClientName("")
}

// Same as New, but sets the application name that mpv
// reports to the system audio API.
func NewWithClientName(c string) *Player {
	return &Player{
		vol:        -1, // use 100 in Init
		clientName: c,
	}
}

// Initializes the Player and makes it ready for playback.
// Most Player functions will return ErrUnitialized if called before Init.
func (p *Player) Init(maxCacheMB int) error {
	if !p.initialized {
		m := mpv.Create()

		m.SetOptionString("idle", "yes")
		m.SetOptionString("video", "no")
		m.SetOptionString("audio-display", "no")
		m.SetOptionString("force-seekable", "yes")
		m.SetOptionString("terminal", "no")

		// limit in-memory cache size
		maxBackMB := maxCacheMB / 3
		maxForwardMB := maxBackMB + maxBackMB
		m.SetOptionString("demuxer-max-bytes", fmt.Sprintf("%dMiB", maxForwardMB))
		m.SetOptionString("demuxer-max-back-bytes", fmt.Sprintf("%dMiB", maxBackMB))

		if p.vol < 0 {
			p.vol = 100
		}
		m.SetOption("volume", mpv.FORMAT_INT64, p.vol)

		if p.clientName != "" {
			m.SetOptionString("audio-client-name", p.clientName)
		}

		if err := m.Initialize(); err != nil {
			return fmt.Errorf("error initializing mpv: %s", err.Error())
		}

		p.mpv = m
	}
	ctx, cancel := context.WithCancel(context.Background())
	go p.eventHandler(ctx)
	p.bgCancel = cancel
	p.initialized = true
	return nil
}

// Loads the specified file paused, replacing the current one, if any.
// OnPrepared is invoked once mpv reports the file loaded.
func (p *Player) Load(path string) error {
	if !p.initialized {
		return ErrUnitialized
	}
	if _, err := os.Stat(path); err != nil {
		return err
	}
	p.mu.Lock()
	p.file.load(path)
	p.state = player.Preparing
	p.mu.Unlock()

	if err := p.mpv.SetProperty("pause", mpv.FORMAT_FLAG, true); err != nil {
		return err
	}
	return p.mpv.Command([]string{"loadfile", path, "replace"})
}

// Starts or resumes playback of the loaded file.
func (p *Player) Start() error {
	if err := p.checkPrepared(); err != nil {
		return err
	}
	if err := p.mpv.SetProperty("pause", mpv.FORMAT_FLAG, false); err != nil {
		return err
	}
	p.setState(player.Playing)
	return nil
}

// Pause playback and update the player state
func (p *Player) Pause() error {
	if err := p.checkPrepared(); err != nil {
		return err
	}
	if err := p.mpv.SetProperty("pause", mpv.FORMAT_FLAG, true); err != nil {
		return err
	}
	p.setState(player.Paused)
	return nil
}

// Stops playback and unloads the current file.
func (p *Player) Release() {
	if !p.initialized {
		return
	}
	p.mu.Lock()
	needStop := p.file.release()
	p.state = player.Stopped
	p.mu.Unlock()
	if needStop {
		p.mpv.Command([]string{"stop"})
	}
}

func (p *Player) IsPlaying() (bool, error) {
	if !p.initialized {
		return false, ErrUnitialized
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state == player.Playing, nil
}

// Sets whether the loaded file repeats indefinitely.
// Unlike most Player functions, SetLooping can be called before Init.
func (p *Player) SetLooping(loop bool) error {
	p.mu.Lock()
	p.looping = loop
	p.mu.Unlock()
	if !p.initialized {
		return nil
	}
	val := "no"
	if loop {
		val = "inf"
	}
	return p.mpv.SetPropertyString("loop-file", val)
}

func (p *Player) IsLooping() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.looping
}

func (p *Player) Position() (time.Duration, error) {
	if err := p.checkPrepared(); err != nil {
		return 0, err
	}
	return p.getDurationProperty("playback-time")
}

func (p *Player) Duration() (time.Duration, error) {
	if err := p.checkPrepared(); err != nil {
		return 0, err
	}
	return p.getDurationProperty("duration")
}

// Seeks within the loaded file.
func (p *Player) SeekTo(pos time.Duration) error {
	if err := p.checkPrepared(); err != nil {
		return err
	}
	target := fmt.Sprintf("%0.1f", pos.Seconds())
	return p.mpv.Command([]string{"seek", target, "absolute"})
}

// Sets the volume of the player (0-100).
// Unlike most Player functions, SetVolume can be called before Init,
// to set the initial volume of the player on startup.
func (p *Player) SetVolume(vol int) error {
	if vol > 100 {
		vol = 100
	} else if vol < 0 {
		vol = 0
	}
	if p.initialized {
		err := p.mpv.SetProperty("volume", mpv.FORMAT_INT64, vol)
		if err == nil {
			p.vol = vol
		}
		return err
	}
	p.vol = vol
	return nil
}

// Gets the current volume of the player.
func (p *Player) GetVolume() int {
	return p.vol
}

// List available audio devices.
func (p *Player) ListAudioDevices() ([]AudioDevice, error) {
	if !p.initialized {
		return nil, ErrUnitialized
	}
	n, err := p.mpv.GetProperty("audio-device-list", mpv.FORMAT_NODE)
	if err != nil {
		return nil, err
	}
	nodeArr := n.(*mpv.Node).Data.([]*mpv.Node)

	devices := make([]AudioDevice, len(nodeArr))
	for i, node := range nodeArr {
		dev := node.Data.(map[string]*mpv.Node)
		name := dev["name"].Data.(string)
		desc := dev["description"].Data.(string)
		devices[i] = AudioDevice{Name: name, Description: desc}
	}
	return devices, nil
}

func (p *Player) SetAudioDevice(deviceName string) error {
	if !p.initialized {
		return ErrUnitialized
	}
	return p.mpv.SetPropertyString("audio-device", deviceName)
}

// Destroy the player.
func (p *Player) Destroy() {
	if p.bgCancel != nil {
		p.bgCancel()
	}
	if p.initialized {
		p.mpv.Command([]string{"stop"})
		p.mpv.TerminateDestroy()
		p.initialized = false
	}
}

func (p *Player) checkPrepared() error {
	if !p.initialized {
		return ErrUnitialized
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.file.path == "" {
		return player.ErrNotLoaded
	}
	if p.file.loading {
		return player.ErrInvalidState
	}
	return nil
}

func (p *Player) getDurationProperty(name string) (time.Duration, error) {
	v, err := p.mpv.GetProperty(name, mpv.FORMAT_DOUBLE)
	if err != nil {
		return 0, err
	}
	secs, ok := v.(float64)
	if !ok {
		return 0, player.ErrInvalidState
	}
	return time.Duration(secs * float64(time.Second)), nil
}

func (p *Player) setState(s player.State) {
	p.mu.Lock()
	p.state = s
	p.mu.Unlock()
}

func (p *Player) eventHandler(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
			e := p.mpv.WaitEvent(1 /*timeout seconds*/)
			switch e.Event_Id {
			case mpv.EVENT_FILE_LOADED:
				p.mu.Lock()
				path := p.file.path
				wasLoading := p.file.fileLoaded()
				if wasLoading {
					p.state = player.Paused
				}
				p.mu.Unlock()
				if wasLoading {
					p.InvokeOnPrepared(path)
				}
			case mpv.EVENT_END_FILE:
				p.handleEndFile()
			}
		}
	}
}

func (p *Player) handleEndFile() {
	p.mu.Lock()
	path := p.file.path
	action := p.file.endFile(p.looping)
	switch action {
	case endFailed:
		p.state = player.Stopped
	case endCompleted:
		p.state = player.Paused
	}
	p.mu.Unlock()

	switch action {
	case endFailed:
		p.InvokeOnError(path, fmt.Errorf("mpv could not load %s", path))
	case endCompleted:
		p.InvokeOnCompletion(path)
	}
}
