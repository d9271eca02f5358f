package backend

import (
	"os"
	"sync"

	"github.com/pelletier/go-toml/v2"
)

const (
	PrefsBackendJSON   = "json"
	PrefsBackendSQLite = "sqlite"

	PlayerBackendMPV  = "mpv"
	PlayerBackendBeep = "beep"
)

type AppConfig struct {
	LastLaunchedVersion string
	AutoPlay            bool
	// directory holding the bundled chant recordings;
	// empty means "assets" next to the executable
	AssetsDir          string
	PrefsBackend       string
	EnableMPRIS        bool
	PreventSystemSleep bool
	// terminate the daemon when playback is stopped (CLOSE or timer expiry)
	ExitOnStop         bool
	CheckForUpdates    bool
	LastCheckedVersion string
}

type LocalPlaybackConfig struct {
	Backend             string
	AudioDeviceName     string
	InMemoryCacheSizeMB int
	Volume              int
}

type SleepTimerConfig struct {
	TickIntervalMS int
	PresetsMinutes []int
}

type Config struct {
	Application   AppConfig
	LocalPlayback LocalPlaybackConfig
	SleepTimer    SleepTimerConfig
}

func DefaultConfig(appVersionTag string) *Config {
	return &Config{
		Application: AppConfig{
			LastLaunchedVersion: appVersionTag,
			AutoPlay:            false,
			AssetsDir:           "",
			PrefsBackend:        PrefsBackendJSON,
			EnableMPRIS:         true,
			PreventSystemSleep:  true,
			ExitOnStop:          true,
			CheckForUpdates:     true,
		},
		LocalPlayback: LocalPlaybackConfig{
			Backend: PlayerBackendMPV,
			// "auto" is the name to pass to MPV for autoselecting the output device
			AudioDeviceName:     "auto",
			InMemoryCacheSizeMB: 30,
			Volume:              100,
		},
		SleepTimer: SleepTimerConfig{
			TickIntervalMS: 1000,
			PresetsMinutes: []int{5, 10, 15, 30, 60},
		},
	}
}

func ReadConfigFile(filepath, appVersionTag string) (*Config, error) {
	f, err := os.Open(filepath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	c := DefaultConfig(appVersionTag)
	if err := toml.NewDecoder(f).Decode(c); err != nil {
		return nil, err
	}
	c.normalize()
	return c, nil
}

// normalize replaces out-of-range values with their defaults.
func (c *Config) normalize() {
	switch c.Application.PrefsBackend {
	case PrefsBackendJSON, PrefsBackendSQLite:
	default:
		c.Application.PrefsBackend = PrefsBackendJSON
	}
	switch c.LocalPlayback.Backend {
	case PlayerBackendMPV, PlayerBackendBeep:
	default:
		c.LocalPlayback.Backend = PlayerBackendMPV
	}
	c.LocalPlayback.Volume = clamp(c.LocalPlayback.Volume, 0, 100)
	c.LocalPlayback.InMemoryCacheSizeMB = clamp(c.LocalPlayback.InMemoryCacheSizeMB, 10, 500)
	if c.SleepTimer.TickIntervalMS <= 0 {
		c.SleepTimer.TickIntervalMS = 1000
	}
	presets := c.SleepTimer.PresetsMinutes[:0]
	for _, m := range c.SleepTimer.PresetsMinutes {
		if m > 0 {
			presets = append(presets, m)
		}
	}
	c.SleepTimer.PresetsMinutes = presets
}

var writeLock sync.Mutex

func (c *Config) WriteConfigFile(filepath string) error {
	if !writeLock.TryLock() {
		return nil // another write in progress
	}
	defer writeLock.Unlock()

	b, err := toml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(filepath, b, 0644)
}
