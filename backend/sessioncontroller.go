package backend

import (
	"context"
	"errors"
	"log"
	"math/rand"
	"sync"
	"time"

	"github.com/pixeleye/sethpirith/backend/player"
)

// LoadStatus is the lifecycle phase of the controller's audio resource.
type LoadStatus int

const (
	Unloaded LoadStatus = iota
	Loading
	Ready
	Failed
)

func (l LoadStatus) String() string {
	switch l {
	case Loading:
		return "Loading"
	case Ready:
		return "Ready"
	case Failed:
		return "Failed"
	default:
		return "Unloaded"
	}
}

func (l LoadStatus) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

func (l *LoadStatus) UnmarshalText(b []byte) error {
	switch string(b) {
	case "Loading":
		*l = Loading
	case "Ready":
		*l = Ready
	case "Failed":
		*l = Failed
	default:
		*l = Unloaded
	}
	return nil
}

// Snapshot is a read-only view of the session.
type Snapshot struct {
	TrackID        int        `json:"trackId"`
	Title          string     `json:"title"`
	IsPlaying      bool       `json:"isPlaying"`
	RepeatEnabled  bool       `json:"repeatEnabled"`
	ShuffleEnabled bool       `json:"shuffleEnabled"`
	LoadStatus     LoadStatus `json:"loadStatus"`
	Locale         string     `json:"locale"`
	PositionMS     int64      `json:"positionMs"`
	DurationMS     int64      `json:"durationMs"`
}

// SessionController owns the current track, play state and the repeat and
// shuffle flags, drives the single-track Player and persists the session
// after every mutation.
type SessionController struct {
	ctx           context.Context
	catalog       Catalog
	player        player.Player
	prefs         *Prefs
	localizer     *Localizer
	notifications *NotificationSurface
	bus           *EventBus
	assetsDir     string
	timer         *SleepTimer
	randIntn      func(int) int

	mu              sync.Mutex
	playingID       int
	isPlaying       bool
	repeat          bool
	shuffle         bool
	status          LoadStatus
	pendingPath     string // file awaiting OnPrepared
	pendingID       int    // track of pendingPath; becomes playingID once prepared
	loadedPath      string
	startOnPrepared bool

	callbacksDisabled bool

	// registered callbacks
	onStopped      []func()
	onVolumeChange []func(int)
	onSeek         []func()
}

func NewSessionController(
	ctx context.Context,
	catalog Catalog,
	p player.Player,
	prefs *Prefs,
	l *Localizer,
	n *NotificationSurface,
	bus *EventBus,
	assetsDir string,
) *SessionController {
	s := &SessionController{
		ctx:           ctx,
		catalog:       catalog,
		player:        p,
		prefs:         prefs,
		localizer:     l,
		notifications: n,
		bus:           bus,
		assetsDir:     assetsDir,
		randIntn:      rand.Intn,
		pendingID:     NoTrack,
	}
	s.loadPrefs()

	p.OnPrepared(s.handlePrepared)
	p.OnError(s.handleLoadError)
	p.OnCompletion(s.handleCompletion)

	go s.watchLocale(bus.Subscribe(0))
	return s
}

// SetSleepTimer attaches the timer that Stop and Teardown cancel.
func (s *SessionController) SetSleepTimer(t *SleepTimer) {
	s.timer = t
}

// Registers a callback that is notified after Stop, signalling the host to terminate.
func (s *SessionController) OnStopped(cb func()) {
	s.onStopped = append(s.onStopped, cb)
}

// Registers a callback that is notified whenever the volume changes.
func (s *SessionController) OnVolumeChange(cb func(int)) {
	s.onVolumeChange = append(s.onVolumeChange, cb)
}

// Registers a callback that is notified whenever the player has been seeked.
func (s *SessionController) OnSeek(cb func()) {
	s.onSeek = append(s.onSeek, cb)
}

// Should only be called before quitting.
// Disables auto-advance and stop callbacks.
func (s *SessionController) DisableCallbacks() {
	s.mu.Lock()
	s.callbacksDisabled = true
	s.mu.Unlock()
}

// RestoreSession resumes the persisted track on cold start: playing if the
// last session was playing or autoPlay is set, otherwise loaded and paused.
func (s *SessionController) RestoreSession(autoPlay bool) {
	id := s.PlayingID()
	if id == NoTrack {
		return
	}
	var err error
	if autoPlay || s.prefs.IsPlaying() {
		err = s.PlayTrack(id)
	} else {
		err = s.ShowTrack(id)
	}
	if err != nil {
		log.Printf("error restoring session: %v", err)
	}
}

// PlayTrack releases the loaded resource, loads track id and starts
// playback once it is prepared. Load failures are not returned; they
// surface as IsPlaying false and LoadStatus Failed.
func (s *SessionController) PlayTrack(id int) error {
	return s.loadTrack(id, true)
}

// ShowTrack is PlayTrack without starting playback.
func (s *SessionController) ShowTrack(id int) error {
	return s.loadTrack(id, false)
}

func (s *SessionController) loadTrack(id int, start bool) error {
	tr, err := s.catalog.Track(id)
	if err != nil {
		return err
	}
	path := tr.AudioPath(s.assetsDir)

	s.mu.Lock()
	s.player.Release()
	s.isPlaying = false
	s.loadedPath = ""
	s.pendingPath = path
	s.pendingID = id
	s.startOnPrepared = start
	s.status = Loading
	if err := s.player.Load(path); err != nil {
		// the current track id stays as it was
		log.Printf("error loading %s: %v", path, err)
		s.pendingPath = ""
		s.pendingID = NoTrack
		s.status = Failed
	}
	s.saveLocked()
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.publish(snap)
	return nil
}

func (s *SessionController) handlePrepared(path string) {
	s.mu.Lock()
	if path != s.pendingPath {
		s.mu.Unlock()
		return
	}
	s.pendingPath = ""
	s.playingID = s.pendingID
	s.pendingID = NoTrack
	s.loadedPath = path
	s.status = Ready
	if tr, err := s.catalog.Track(s.playingID); err == nil {
		s.prefs.SetLastTitleKey(tr.TitleKey)
	}
	if err := s.player.SetLooping(s.repeat); err != nil {
		log.Printf("error setting loop flag: %v", err)
	}
	s.isPlaying = false
	if s.startOnPrepared {
		if err := s.player.Start(); err != nil {
			log.Printf("error starting playback: %v", err)
		} else {
			s.isPlaying = true
		}
	}
	s.saveLocked()
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.publish(snap)
}

func (s *SessionController) handleLoadError(path string, err error) {
	s.mu.Lock()
	if path != s.pendingPath {
		s.mu.Unlock()
		return
	}
	log.Printf("error preparing %s: %v", path, err)
	s.pendingPath = ""
	s.pendingID = NoTrack
	s.status = Failed
	s.isPlaying = false
	s.saveLocked()
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.publish(snap)
}

func (s *SessionController) handleCompletion(path string) {
	s.mu.Lock()
	if path != s.loadedPath || s.status != Ready || s.repeat || s.callbacksDisabled {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	if err := s.PlayNextTrack(); err != nil {
		log.Printf("error advancing to next track: %v", err)
	}
}

// TogglePlayPause flips play/pause of the loaded resource.
// With nothing loaded it is a no-op.
func (s *SessionController) TogglePlayPause() {
	s.mu.Lock()
	switch s.status {
	case Loading:
		s.startOnPrepared = !s.startOnPrepared
		s.mu.Unlock()
		return
	case Ready:
	default:
		s.mu.Unlock()
		return
	}

	playing, err := s.player.IsPlaying()
	switch {
	case err != nil:
		log.Printf("error querying play state: %v", err)
		s.isPlaying = false
	case playing:
		if err := s.player.Pause(); err != nil {
			log.Printf("error pausing: %v", err)
		}
		s.isPlaying = false
	default:
		if err := s.player.Start(); err != nil {
			log.Printf("error resuming: %v", err)
			s.isPlaying = false
		} else {
			s.isPlaying = true
		}
	}
	s.saveLocked()
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.publish(snap)
}

func (s *SessionController) PlayPreviousTrack() error {
	s.mu.Lock()
	id := s.playingID - 1
	if id < 0 {
		id = s.catalog.Len() - 1
	}
	s.mu.Unlock()
	return s.PlayTrack(id)
}

// PlayNextTrack plays a random track when shuffle is enabled,
// otherwise the following one, wrapping to the first.
func (s *SessionController) PlayNextTrack() error {
	s.mu.Lock()
	var id int
	if s.shuffle {
		id = s.randIntn(s.catalog.Len())
	} else {
		id = (s.playingID + 1) % s.catalog.Len()
	}
	s.mu.Unlock()
	return s.PlayTrack(id)
}

// ToggleShuffle flips and persists the shuffle flag, returning the new value.
func (s *SessionController) ToggleShuffle() bool {
	s.mu.Lock()
	s.shuffle = !s.shuffle
	shuffle := s.shuffle
	s.prefs.SetShuffleEnabled(shuffle)
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.publish(snap)
	return shuffle
}

// ToggleRepeat flips and persists the repeat flag and applies it as the
// loop flag of the loaded resource, returning the new value.
func (s *SessionController) ToggleRepeat() bool {
	s.mu.Lock()
	s.repeat = !s.repeat
	repeat := s.repeat
	s.prefs.SetRepeatEnabled(repeat)
	if s.status == Ready {
		if err := s.player.SetLooping(repeat); err != nil {
			log.Printf("error setting loop flag: %v", err)
		}
	}
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.publish(snap)
	return repeat
}

func (s *SessionController) RepeatEnabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.repeat
}

func (s *SessionController) ShuffleEnabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.shuffle
}

// CurrentPosition returns 0 unless a resource is ready.
func (s *SessionController) CurrentPosition() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.positionLocked()
}

// Duration returns 0 unless a resource is ready.
func (s *SessionController) Duration() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.durationLocked()
}

// IsPlaying asks the loaded resource, reporting false when it cannot answer.
func (s *SessionController) IsPlaying() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isPlayingLocked()
}

// SeekTo is best-effort: it is ignored unless a resource is ready.
func (s *SessionController) SeekTo(pos time.Duration) {
	s.mu.Lock()
	if s.status != Ready {
		s.mu.Unlock()
		return
	}
	err := s.player.SeekTo(pos)
	s.mu.Unlock()
	if err != nil {
		log.Printf("ignoring seek: %v", err)
		return
	}
	s.invokeNoArgCallbacks(s.onSeek)
}

func (s *SessionController) SetVolume(vol int) error {
	vol = clamp(vol, 0, 100)
	if err := s.player.SetVolume(vol); err != nil {
		return err
	}
	for _, cb := range s.onVolumeChange {
		cb(vol)
	}
	return nil
}

func (s *SessionController) Volume() int {
	return s.player.GetVolume()
}

func (s *SessionController) PlayingID() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.playingID
}

// PlayingTitle is the current track's title in the active locale, or "" if unset.
func (s *SessionController) PlayingTitle() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.titleLocked()
}

func (s *SessionController) LoadStatus() LoadStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

func (s *SessionController) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Stop pauses the resource, keeping it loaded, cancels the sleep timer,
// removes the notification and signals the host to terminate.
func (s *SessionController) Stop() {
	s.mu.Lock()
	if s.status == Ready {
		if err := s.player.Pause(); err != nil {
			log.Printf("error pausing on stop: %v", err)
		}
	}
	s.isPlaying = false
	s.startOnPrepared = false
	s.saveLocked()
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.stopTimer()
	s.bus.Publish(SessionChanged{Snapshot: snap})
	s.notifications.Remove()
	s.invokeNoArgCallbacks(s.onStopped)
}

// Teardown releases the resource unconditionally and cancels the sleep timer.
func (s *SessionController) Teardown() {
	s.mu.Lock()
	s.player.Release()
	s.status = Unloaded
	s.isPlaying = false
	s.pendingPath = ""
	s.pendingID = NoTrack
	s.loadedPath = ""
	s.startOnPrepared = false
	s.saveLocked()
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.stopTimer()
	s.bus.Publish(SessionChanged{Snapshot: snap})
	s.notifications.Remove()
}

// Reset tears the session down and restores every persisted default.
func (s *SessionController) Reset() {
	s.Teardown()
	s.prefs.Reset()
	s.mu.Lock()
	s.loadPrefsLocked()
	snap := s.snapshotLocked()
	s.mu.Unlock()
	s.bus.Publish(SessionChanged{Snapshot: snap})
}

func (s *SessionController) watchLocale(sub *Subscription) {
	defer sub.Unsubscribe()
	for {
		select {
		case <-s.ctx.Done():
			return
		case e, ok := <-sub.C():
			if !ok {
				return
			}
			if _, ok := e.(LocaleChanged); ok {
				s.refreshTitle()
			}
		}
	}
}

// refreshTitle re-resolves the current title after a locale change.
func (s *SessionController) refreshTitle() {
	s.mu.Lock()
	if s.status == Unloaded && s.playingID == NoTrack {
		s.mu.Unlock()
		return
	}
	id, title, playing := s.playingID, s.titleLocked(), s.isPlaying
	s.mu.Unlock()
	s.notifications.UpdateSession(id, title, playing)
}

func (s *SessionController) stopTimer() {
	if s.timer != nil {
		s.timer.Stop()
	}
}

func (s *SessionController) loadPrefs() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loadPrefsLocked()
}

func (s *SessionController) loadPrefsLocked() {
	st := s.prefs.Session()
	s.playingID = st.CurrentTrackID
	if s.playingID != NoTrack && !s.catalog.Valid(s.playingID) {
		log.Printf("ignoring persisted track id %d outside catalog of %d", s.playingID, s.catalog.Len())
		s.playingID = NoTrack
	}
	s.repeat = st.RepeatEnabled
	s.shuffle = st.ShuffleEnabled
	s.isPlaying = false
	s.status = Unloaded
}

// must be called with s.mu held
func (s *SessionController) saveLocked() {
	s.prefs.SaveAudioState(s.playingID, s.isPlaying)
}

func (s *SessionController) titleLocked() string {
	tr, err := s.catalog.Track(s.playingID)
	if err != nil || s.localizer == nil {
		return ""
	}
	return s.localizer.TrackTitle(tr)
}

func (s *SessionController) isPlayingLocked() bool {
	if s.status != Ready {
		return false
	}
	playing, err := s.player.IsPlaying()
	if err != nil {
		if !errors.Is(err, player.ErrInvalidState) {
			log.Printf("error querying play state: %v", err)
		}
		return false
	}
	return playing
}

func (s *SessionController) positionLocked() time.Duration {
	if s.status != Ready {
		return 0
	}
	pos, err := s.player.Position()
	if err != nil {
		return 0
	}
	return pos
}

func (s *SessionController) durationLocked() time.Duration {
	if s.status != Ready {
		return 0
	}
	dur, err := s.player.Duration()
	if err != nil {
		return 0
	}
	return dur
}

func (s *SessionController) snapshotLocked() Snapshot {
	locale := DefaultLocale
	if s.localizer != nil {
		locale = s.localizer.Locale()
	}
	return Snapshot{
		TrackID:        s.playingID,
		Title:          s.titleLocked(),
		IsPlaying:      s.isPlaying,
		RepeatEnabled:  s.repeat,
		ShuffleEnabled: s.shuffle,
		LoadStatus:     s.status,
		Locale:         locale,
		PositionMS:     s.positionLocked().Milliseconds(),
		DurationMS:     s.durationLocked().Milliseconds(),
	}
}

// publish must be called without s.mu held.
func (s *SessionController) publish(snap Snapshot) {
	s.notifications.UpdateSession(snap.TrackID, snap.Title, snap.IsPlaying)
	s.bus.Publish(SessionChanged{Snapshot: snap})
}

func (s *SessionController) invokeNoArgCallbacks(cbs []func()) {
	s.mu.Lock()
	disabled := s.callbacksDisabled
	s.mu.Unlock()
	if disabled {
		return
	}
	for _, cb := range cbs {
		cb()
	}
}

func clamp(i, min, max int) int {
	if i < min {
		i = min
	} else if i > max {
		i = max
	}
	return i
}
