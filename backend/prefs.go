package backend

import (
	"log"
	"strconv"
	"sync"
	"time"
)

const (
	prefLastAudioID      = "last_audio_id"
	prefLastAudioTitle   = "last_audio_title"
	prefIsPlaying        = "is_playing"
	prefRepeatEnabled    = "is_repeat_enabled"
	prefShuffleEnabled   = "is_shuffle_enabled"
	prefSelectedLocale   = "selected_locale"
	prefTimerStartMillis = "timer_start"
	prefTimerDurationMS  = "timer_duration"

	DefaultLocale = "en"
	NoTrack       = -1
)

// KVStore is the flat string key-value store backing Prefs.
type KVStore interface {
	Get(key string) (string, bool)
	// Set writes all entries as one update.
	Set(entries map[string]string) error
	Delete(keys ...string) error
	Close() error
}

// SessionState is the persisted playback session.
type SessionState struct {
	CurrentTrackID int    `json:"currentTrackId"`
	IsPlaying      bool   `json:"isPlaying"`
	RepeatEnabled  bool   `json:"repeatEnabled"`
	ShuffleEnabled bool   `json:"shuffleEnabled"`
	LocaleCode     string `json:"localeCode"`
}

// TimerState is the persisted sleep timer run.
type TimerState struct {
	Start    time.Time
	Duration time.Duration
}

// Prefs reads and writes session and timer state through a KVStore.
// Write failures are logged; the in-memory session carries on.
type Prefs struct {
	mu    sync.Mutex
	store KVStore
}

func NewPrefs(store KVStore) *Prefs {
	return &Prefs{store: store}
}

func (p *Prefs) Session() SessionState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return SessionState{
		CurrentTrackID: p.getInt(prefLastAudioID, NoTrack),
		IsPlaying:      p.getBool(prefIsPlaying),
		RepeatEnabled:  p.getBool(prefRepeatEnabled),
		ShuffleEnabled: p.getBool(prefShuffleEnabled),
		LocaleCode:     p.getString(prefSelectedLocale, DefaultLocale),
	}
}

// SaveAudioState records the current track and play flag together.
func (p *Prefs) SaveAudioState(trackID int, playing bool) {
	p.set(map[string]string{
		prefLastAudioID: strconv.Itoa(trackID),
		prefIsPlaying:   strconv.FormatBool(playing),
	})
}

func (p *Prefs) LastAudioID() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.getInt(prefLastAudioID, NoTrack)
}

func (p *Prefs) IsPlaying() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.getBool(prefIsPlaying)
}

func (p *Prefs) SetLastTitleKey(key string) {
	p.set(map[string]string{prefLastAudioTitle: key})
}

func (p *Prefs) LastTitleKey() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.getString(prefLastAudioTitle, "")
}

func (p *Prefs) RepeatEnabled() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.getBool(prefRepeatEnabled)
}

func (p *Prefs) SetRepeatEnabled(b bool) {
	p.set(map[string]string{prefRepeatEnabled: strconv.FormatBool(b)})
}

func (p *Prefs) ShuffleEnabled() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.getBool(prefShuffleEnabled)
}

func (p *Prefs) SetShuffleEnabled(b bool) {
	p.set(map[string]string{prefShuffleEnabled: strconv.FormatBool(b)})
}

func (p *Prefs) Locale() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.getString(prefSelectedLocale, DefaultLocale)
}

func (p *Prefs) SetLocale(code string) {
	p.set(map[string]string{prefSelectedLocale: code})
}

func (p *Prefs) SaveTimerState(start time.Time, d time.Duration) {
	p.set(map[string]string{
		prefTimerStartMillis: strconv.FormatInt(start.UnixMilli(), 10),
		prefTimerDurationMS:  strconv.FormatInt(d.Milliseconds(), 10),
	})
}

// TimerState returns the persisted timer run. A pair with a missing
// or non-positive field reads back as absent.
func (p *Prefs) TimerState() (TimerState, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	startMS := p.getInt64(prefTimerStartMillis)
	durMS := p.getInt64(prefTimerDurationMS)
	if startMS <= 0 || durMS <= 0 {
		return TimerState{}, false
	}
	return TimerState{
		Start:    time.UnixMilli(startMS),
		Duration: time.Duration(durMS) * time.Millisecond,
	}, true
}

func (p *Prefs) ClearTimerState() {
	p.del(prefTimerStartMillis, prefTimerDurationMS)
}

// Reset restores every session default and drops timer state and the cached title.
func (p *Prefs) Reset() {
	p.del(prefLastAudioTitle, prefTimerStartMillis, prefTimerDurationMS)
	p.set(map[string]string{
		prefLastAudioID:    strconv.Itoa(NoTrack),
		prefIsPlaying:      "false",
		prefRepeatEnabled:  "false",
		prefShuffleEnabled: "false",
		prefSelectedLocale: DefaultLocale,
	})
}

func (p *Prefs) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.store.Close()
}

func (p *Prefs) set(entries map[string]string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.store.Set(entries); err != nil {
		log.Printf("error saving prefs: %v", err)
	}
}

func (p *Prefs) del(keys ...string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.store.Delete(keys...); err != nil {
		log.Printf("error deleting prefs: %v", err)
	}
}

func (p *Prefs) getString(key, def string) string {
	if v, ok := p.store.Get(key); ok {
		return v
	}
	return def
}

func (p *Prefs) getInt(key string, def int) int {
	v, ok := p.store.Get(key)
	if !ok {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("ignoring malformed pref %s=%q", key, v)
		return def
	}
	return i
}

func (p *Prefs) getInt64(key string) int64 {
	v, ok := p.store.Get(key)
	if !ok {
		return 0
	}
	i, _ := strconv.ParseInt(v, 10, 64)
	return i
}

func (p *Prefs) getBool(key string) bool {
	v, ok := p.store.Get(key)
	if !ok {
		return false
	}
	b, _ := strconv.ParseBool(v)
	return b
}
