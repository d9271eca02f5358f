package backend

import (
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/godbus/dbus/v5"
	"github.com/quarckster/go-mpris-server/pkg/events"
	"github.com/quarckster/go-mpris-server/pkg/server"
	"github.com/quarckster/go-mpris-server/pkg/types"
)

const (
	dbusTrackIDPrefix = "/SethPirith/Track/"
	noTrackObjectPath = "/org/mpris/MediaPlayer2/TrackList/NoTrack"
)

var (
	_ types.OrgMprisMediaPlayer2Adapter                 = (*MPRISHandler)(nil)
	_ types.OrgMprisMediaPlayer2PlayerAdapter           = (*MPRISHandler)(nil)
	_ types.OrgMprisMediaPlayer2PlayerAdapterLoopStatus = (*MPRISHandler)(nil)
	_ Notifier                                          = (*MPRISHandler)(nil)
)

var (
	errNotSupported = errors.New("not supported")
)

// MPRISHandler exposes the session over D-Bus MPRIS and shows the
// playback notification as the MPRIS track metadata.
type MPRISHandler struct {
	// Function called if the player is requested to quit through MPRIS.
	// Should *asynchronously* start shutdown and return immediately true if a shutdown will happen.
	OnQuit func() error

	connErr    error
	playerName string
	sc         *SessionController
	s          *server.Server
	evt        *events.EventHandler

	mu      sync.Mutex
	current Notification
	shown   bool
}

func NewMPRISHandler(playerName string, sc *SessionController) *MPRISHandler {
	m := &MPRISHandler{playerName: playerName, sc: sc, connErr: errors.New("not started")}
	m.s = server.NewServer(playerName, m, m)
	m.evt = events.NewEventHandler(m.s)

	sc.OnSeek(func() {
		if m.connErr == nil {
			m.evt.Player.OnSeek(durationToMicroseconds(sc.CurrentPosition()))
		}
	})
	sc.OnVolumeChange(func(int) {
		if m.connErr == nil {
			m.evt.Player.OnVolume()
		}
	})
	return m
}

// Starts listening for MPRIS events.
func (m *MPRISHandler) Start() {
	m.connErr = nil
	go func() {
		// exits early with err if unable to establish D-Bus connection
		m.connErr = m.s.Listen()
	}()
}

// Stops listening for MPRIS events and releases any D-Bus resources.
func (m *MPRISHandler) Shutdown() {
	if m.connErr == nil {
		m.s.Stop()
		m.connErr = errors.New("stopped")
	}
}

// Notifier implementation

func (m *MPRISHandler) Refresh(n Notification) {
	m.mu.Lock()
	m.current = n
	m.shown = true
	m.mu.Unlock()
	if m.connErr == nil {
		m.evt.Player.OnTitle()
		m.evt.Player.OnPlayPause()
	}
}

func (m *MPRISHandler) Remove() {
	m.mu.Lock()
	m.shown = false
	m.mu.Unlock()
	if m.connErr == nil {
		m.evt.Player.OnTitle()
		m.evt.Player.OnPlayPause()
	}
}

// OrgMprisMediaPlayer2Adapter implementation

func (m *MPRISHandler) Identity() (string, error) {
	return m.playerName, nil
}

func (m *MPRISHandler) CanQuit() (bool, error) {
	return m.OnQuit != nil, nil
}

func (m *MPRISHandler) Quit() error {
	if m.OnQuit != nil {
		return m.OnQuit()
	}
	return errors.New("no quit handler added")
}

func (m *MPRISHandler) CanRaise() (bool, error) {
	return false, nil
}

func (m *MPRISHandler) Raise() error {
	return errNotSupported
}

func (m *MPRISHandler) HasTrackList() (bool, error) {
	return false, nil
}

func (m *MPRISHandler) SupportedUriSchemes() ([]string, error) {
	return nil, nil
}

func (m *MPRISHandler) SupportedMimeTypes() ([]string, error) {
	return nil, nil
}

// OrgMprisMediaPlayer2PlayerAdapter implementation

func (m *MPRISHandler) Next() error {
	return m.sc.PlayNextTrack()
}

func (m *MPRISHandler) Previous() error {
	return m.sc.PlayPreviousTrack()
}

func (m *MPRISHandler) Pause() error {
	if m.sc.IsPlaying() {
		m.sc.TogglePlayPause()
	}
	return nil
}

func (m *MPRISHandler) PlayPause() error {
	m.sc.TogglePlayPause()
	return nil
}

func (m *MPRISHandler) Stop() error {
	m.sc.Stop()
	return nil
}

func (m *MPRISHandler) Play() error {
	switch m.sc.LoadStatus() {
	case Ready:
		if !m.sc.IsPlaying() {
			m.sc.TogglePlayPause()
		}
		return nil
	case Loading:
		return nil
	}
	id := m.sc.PlayingID()
	if id == NoTrack {
		id = 0
	}
	return m.sc.PlayTrack(id)
}

func (m *MPRISHandler) Seek(offset types.Microseconds) error {
	// MPRIS seek command is relative to current position
	m.sc.SeekTo(m.sc.CurrentPosition() + microsecondsToDuration(offset))
	return nil
}

func (m *MPRISHandler) SetPosition(trackId string, position types.Microseconds) error {
	if trackObjectPath(m.sc.PlayingID()) == trackId {
		m.sc.SeekTo(microsecondsToDuration(position))
	}
	return nil
}

func (m *MPRISHandler) OpenUri(uri string) error {
	return errNotSupported
}

func (m *MPRISHandler) PlaybackStatus() (types.PlaybackStatus, error) {
	m.mu.Lock()
	shown := m.shown
	m.mu.Unlock()
	switch {
	case !shown || m.sc.LoadStatus() != Ready:
		return types.PlaybackStatusStopped, nil
	case m.sc.IsPlaying():
		return types.PlaybackStatusPlaying, nil
	default:
		return types.PlaybackStatusPaused, nil
	}
}

func (m *MPRISHandler) LoopStatus() (types.LoopStatus, error) {
	if m.sc.RepeatEnabled() {
		return types.LoopStatusTrack, nil
	}
	return types.LoopStatusNone, nil
}

func (m *MPRISHandler) SetLoopStatus(status types.LoopStatus) error {
	var want bool
	switch status {
	case types.LoopStatusTrack, types.LoopStatusPlaylist:
		want = true
	case types.LoopStatusNone:
		want = false
	default:
		return errors.New("unknown loop status")
	}
	if m.sc.RepeatEnabled() != want {
		m.sc.ToggleRepeat()
	}
	return nil
}

func (m *MPRISHandler) Shuffle() (bool, error) {
	return m.sc.ShuffleEnabled(), nil
}

func (m *MPRISHandler) SetShuffle(shuffle bool) error {
	if m.sc.ShuffleEnabled() != shuffle {
		m.sc.ToggleShuffle()
	}
	return nil
}

func (m *MPRISHandler) Rate() (float64, error) {
	return 1, nil
}

func (m *MPRISHandler) SetRate(float64) error {
	return errNotSupported
}

func (m *MPRISHandler) Metadata() (types.Metadata, error) {
	m.mu.Lock()
	n, shown := m.current, m.shown
	m.mu.Unlock()
	if !shown || n.TrackID == NoTrack {
		return types.Metadata{TrackId: dbus.ObjectPath(noTrackObjectPath)}, nil
	}
	var artist []string
	if n.TimerText != "" {
		artist = []string{n.TimerText}
	}
	return types.Metadata{
		TrackId:     dbus.ObjectPath(trackObjectPath(n.TrackID)),
		Length:      durationToMicroseconds(m.sc.Duration()),
		Title:       n.Title,
		Album:       m.playerName,
		Artist:      artist,
		TrackNumber: n.TrackID + 1,
	}, nil
}

func (m *MPRISHandler) Volume() (float64, error) {
	return float64(m.sc.Volume()) / 100, nil
}

func (m *MPRISHandler) SetVolume(v float64) error {
	return m.sc.SetVolume(int(v * 100))
}

func (m *MPRISHandler) Position() (int64, error) {
	return int64(durationToMicroseconds(m.sc.CurrentPosition())), nil
}

func (m *MPRISHandler) MinimumRate() (float64, error) {
	return 1, nil
}

func (m *MPRISHandler) MaximumRate() (float64, error) {
	return 1, nil
}

func (m *MPRISHandler) CanGoNext() (bool, error) {
	return true, nil
}

func (m *MPRISHandler) CanGoPrevious() (bool, error) {
	return true, nil
}

func (m *MPRISHandler) CanPlay() (bool, error) {
	return true, nil
}

func (m *MPRISHandler) CanPause() (bool, error) {
	return true, nil
}

func (m *MPRISHandler) CanSeek() (bool, error) {
	return true, nil
}

func (m *MPRISHandler) CanControl() (bool, error) {
	return true, nil
}

func microsecondsToDuration(m types.Microseconds) time.Duration {
	return time.Duration(m) * time.Microsecond
}

func durationToMicroseconds(d time.Duration) types.Microseconds {
	return types.Microseconds(d / time.Microsecond)
}

func trackObjectPath(id int) string {
	return dbusTrackIDPrefix + strconv.Itoa(id)
}
