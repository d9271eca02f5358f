package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"reflect"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/pixeleye/sethpirith/backend/ipc"
	"github.com/pixeleye/sethpirith/backend/player"
	"github.com/pixeleye/sethpirith/backend/player/beep"
	"github.com/pixeleye/sethpirith/backend/player/mpv"
	"github.com/pixeleye/sethpirith/backend/util"
	"github.com/pixeleye/sethpirith/res"

	"github.com/20after4/configdir"
)

const (
	configFile      = "config.toml"
	portableDir     = "sethpirith_portable"
	stateDir        = "state"
	assetsDir       = "assets"
	beepBufferSize  = 100 * time.Millisecond
	quitGracePeriod = 10 * time.Millisecond
)

var (
	ErrAnotherInstance = errors.New("another instance is running")
	ErrUnknownCommand  = errors.New("unknown command")
)

var _ ipc.SessionHandler = (*App)(nil)

type App struct {
	Config        *Config
	Catalog       Catalog
	Prefs         *Prefs
	Localizer     *Localizer
	Events        *EventBus
	Notifications *NotificationSurface
	LocalPlayer   player.Player
	Session       *SessionController
	SleepTimer    *SleepTimer
	MPRISHandler  *MPRISHandler
	UpdateChecker *UpdateChecker

	appName       string
	displayName   string
	appVersionTag string
	configDir     string
	portableMode  bool

	isFirstLaunch bool // set by config file reader
	bgrndCtx      context.Context
	cancel        context.CancelFunc

	cfgMu          sync.Mutex
	lastWrittenCfg Config

	ipcServer *http.Server
	quitOnce  sync.Once
	quit      chan struct{}
}

func (a *App) VersionTag() string {
	return a.appVersionTag
}

// StartupApp starts the daemon: config, prefs, player, session, sleep timer,
// IPC server and OS media integration. Returns ErrAnotherInstance if a
// running instance answers on the IPC socket.
func StartupApp(appName, displayAppName, appVersionTag string) (*App, error) {
	var confDir, portableRoot string
	portableMode := false
	if p := checkPortablePath(); p != "" {
		confDir = path.Join(p, "config")
		portableRoot = p
		portableMode = true
	} else {
		confDir = configdir.LocalConfig(appName)
	}
	// ensure config and state dirs exist
	configdir.MakePath(confDir)
	configdir.MakePath(path.Join(confDir, stateDir))

	if _, err := ipc.Connect(); err == nil {
		log.Println("Another instance is running.")
		return nil, ErrAnotherInstance
	}

	log.Printf("Starting %s...", appName)
	log.Printf("Using config dir: %s", confDir)

	a := &App{
		appName:       appName,
		displayName:   displayAppName,
		appVersionTag: appVersionTag,
		configDir:     confDir,
		portableMode:  portableMode,
		quit:          make(chan struct{}),
	}
	a.bgrndCtx, a.cancel = context.WithCancel(context.Background())
	a.readConfig()
	a.lastWrittenCfg = *a.Config
	a.startConfigWriter(a.bgrndCtx)

	store, err := OpenPrefsStore(a.Config.Application.PrefsBackend, path.Join(confDir, stateDir))
	if err != nil {
		a.cancel()
		return nil, fmt.Errorf("failed to open prefs store: %w", err)
	}
	p, err := a.initPlayer()
	if err != nil {
		store.Close()
		a.cancel()
		return nil, err
	}
	if err := a.initSession(store, p, util.SystemClock, resolveAssetsDir(a.Config.Application.AssetsDir, portableRoot)); err != nil {
		p.Destroy()
		store.Close()
		a.cancel()
		return nil, err
	}
	a.startConfigWatcher(a.bgrndCtx)

	if listener, err := ipc.Listen(); err != nil {
		log.Printf("error starting IPC server: %v", err)
	} else {
		a.ipcServer = ipc.NewServer(a, a)
		go a.ipcServer.Serve(listener)
	}

	// OS media center integration
	if a.Config.Application.EnableMPRIS {
		a.setupMPRIS(displayAppName)
	}

	if a.Config.Application.CheckForUpdates {
		a.startUpdateChecker()
	}

	a.SleepTimer.Recover()
	a.Session.RestoreSession(a.Config.Application.AutoPlay)
	return a, nil
}

// initSession wires the playback core around an already initialized player.
func (a *App) initSession(store KVStore, p player.Player, clock util.Clock, assets string) error {
	if a.bgrndCtx == nil {
		a.bgrndCtx, a.cancel = context.WithCancel(context.Background())
	}
	if a.quit == nil {
		a.quit = make(chan struct{})
	}

	l, err := NewLocalizer()
	if err != nil {
		return err
	}
	a.Prefs = NewPrefs(store)
	if norm, err := l.SetLocale(a.Prefs.Locale()); err != nil {
		log.Printf("ignoring persisted locale: %v", err)
		a.Prefs.SetLocale(DefaultLocale)
	} else {
		a.Prefs.SetLocale(norm)
	}
	a.Localizer = l
	a.Catalog = DefaultCatalog()
	a.Events = NewEventBus()
	a.Notifications = NewNotificationSurface(l)
	a.LocalPlayer = p

	a.Session = NewSessionController(a.bgrndCtx, a.Catalog, p, a.Prefs, l, a.Notifications, a.Events, assets)
	tick := time.Duration(a.Config.SleepTimer.TickIntervalMS) * time.Millisecond
	a.SleepTimer = NewSleepTimer(a.bgrndCtx, clock, tick, a.Prefs, a.Events, a.Notifications, a.Session)
	a.Session.SetSleepTimer(a.SleepTimer)
	a.Session.OnStopped(a.handleStopped)
	a.Session.OnVolumeChange(func(vol int) {
		a.cfgMu.Lock()
		a.Config.LocalPlayback.Volume = vol
		a.cfgMu.Unlock()
	})

	if a.Config.Application.PreventSystemSleep {
		go a.watchPlayState(a.Events.Subscribe(0))
	}
	return nil
}

func (a *App) IsFirstLaunch() bool {
	return a.isFirstLaunch
}

func (a *App) IsPortableMode() bool {
	return a.portableMode
}

// QuitRequested is closed once the daemon has been asked to quit.
func (a *App) QuitRequested() <-chan struct{} {
	return a.quit
}

func checkPortablePath() string {
	if p, err := os.Executable(); err == nil {
		pdirPath := path.Join(filepath.Dir(p), portableDir)
		if s, err := os.Stat(pdirPath); err == nil && s.IsDir() {
			return pdirPath
		}
	}
	return ""
}

func resolveAssetsDir(configured, portableRoot string) string {
	if configured != "" {
		return configured
	}
	if portableRoot != "" {
		return path.Join(portableRoot, assetsDir)
	}
	if p, err := os.Executable(); err == nil {
		return filepath.Join(filepath.Dir(p), assetsDir)
	}
	return assetsDir
}

func (a *App) readConfig() {
	cfgPath := a.configFilePath()
	var cfgExists bool
	if _, err := os.Stat(cfgPath); err == nil {
		cfgExists = true
	}
	a.isFirstLaunch = !cfgExists
	cfg, err := ReadConfigFile(cfgPath, a.appVersionTag)
	if err != nil {
		if cfgExists {
			log.Printf("Error reading app config file: %v", err)
		}
		cfg = DefaultConfig(a.appVersionTag)
		if cfgExists {
			backupCfgName := fmt.Sprintf("%s.bak", configFile)
			log.Printf("Config file may be malformed: copying to %s", backupCfgName)
			_ = util.CopyFile(cfgPath, path.Join(a.configDir, backupCfgName))
		}
	}
	cfg.Application.LastLaunchedVersion = a.appVersionTag
	a.Config = cfg
}

// periodically save config file so abnormal exit won't lose settings
func (a *App) startConfigWriter(ctx context.Context) {
	tick := time.NewTicker(2 * time.Minute)
	go func() {
		for {
			select {
			case <-ctx.Done():
				tick.Stop()
				return
			case <-tick.C:
				a.cfgMu.Lock()
				if !reflect.DeepEqual(&a.lastWrittenCfg, a.Config) {
					a.Config.WriteConfigFile(a.configFilePath())
					a.lastWrittenCfg = *a.Config
				}
				a.cfgMu.Unlock()
			}
		}
	}()
}

// watch the config file for external edits and hot-apply the volume
func (a *App) startConfigWatcher(ctx context.Context) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		log.Printf("error creating config watcher: %v", err)
		return
	}
	// watch the dir since editors often replace the file
	if err := watcher.Add(a.configDir); err != nil {
		log.Printf("error watching config dir: %v", err)
		watcher.Close()
		return
	}
	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case e, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Base(e.Name) == configFile && e.Has(fsnotify.Write|fsnotify.Create) {
					a.reloadConfig()
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Printf("config watcher error: %v", err)
			}
		}
	}()
}

func (a *App) reloadConfig() {
	cfg, err := ReadConfigFile(a.configFilePath(), a.appVersionTag)
	if err != nil {
		log.Printf("ignoring config change: %v", err)
		return
	}
	a.cfgMu.Lock()
	changed := cfg.LocalPlayback.Volume != a.Config.LocalPlayback.Volume
	a.cfgMu.Unlock()
	if changed {
		log.Printf("applying volume %d from config", cfg.LocalPlayback.Volume)
		if err := a.Session.SetVolume(cfg.LocalPlayback.Volume); err != nil {
			log.Printf("error setting volume: %v", err)
		}
	}
}

func (a *App) initPlayer() (player.Player, error) {
	if a.Config.LocalPlayback.Backend == PlayerBackendBeep {
		return a.initBeep()
	}
	p, err := a.initMPV()
	if err != nil {
		log.Printf("%v; falling back to the built-in player", err)
		return a.initBeep()
	}
	return p, nil
}

func (a *App) initMPV() (*mpv.Player, error) {
	p := mpv.NewWithClientName(a.appName)
	c := a.Config.LocalPlayback
	if err := p.SetVolume(c.Volume); err != nil {
		return nil, err
	}
	if err := p.Init(c.InMemoryCacheSizeMB); err != nil {
		return nil, fmt.Errorf("failed to initialize mpv player: %s", err.Error())
	}

	devs, err := p.ListAudioDevices()
	if err != nil {
		p.Destroy()
		return nil, err
	}
	desiredDevice := c.AudioDeviceName
	var desiredDeviceAvailable bool
	for _, dev := range devs {
		if dev.Name == desiredDevice {
			desiredDeviceAvailable = true
			break
		}
	}
	if !desiredDeviceAvailable {
		// Use the default (autoselect) device but leave the setting unchanged,
		// in case the device is available on a subsequent run of the app
		desiredDevice = "auto"
	}
	p.SetAudioDevice(desiredDevice)
	return p, nil
}

func (a *App) initBeep() (*beep.Player, error) {
	p := beep.New()
	if err := p.Init(beepBufferSize); err != nil {
		return nil, fmt.Errorf("failed to initialize audio output: %w", err)
	}
	p.SetVolume(a.Config.LocalPlayback.Volume)
	return p, nil
}

func (a *App) startUpdateChecker() {
	a.cfgMu.Lock()
	lastChecked := a.Config.Application.LastCheckedVersion
	a.cfgMu.Unlock()
	a.UpdateChecker = NewUpdateChecker(a.appVersionTag, res.LatestReleaseURL, lastChecked)
	a.UpdateChecker.OnUpdatedVersionFound = func(tag string) {
		log.Printf("%s %s is available: %s", a.displayName, tag, res.LatestReleaseURL)
		a.cfgMu.Lock()
		a.Config.Application.LastCheckedVersion = tag
		a.cfgMu.Unlock()
	}
	a.UpdateChecker.Start(a.bgrndCtx, updateCheckInterval)
}

func (a *App) setupMPRIS(mprisAppName string) {
	a.MPRISHandler = NewMPRISHandler(mprisAppName, a.Session)
	a.MPRISHandler.OnQuit = func() error {
		go func() {
			time.Sleep(quitGracePeriod)
			a.Quit()
		}()
		return nil
	}
	a.Notifications.AddNotifier(a.MPRISHandler)
	a.MPRISHandler.Start()
}

func (a *App) watchPlayState(sub *Subscription) {
	defer sub.Unsubscribe()
	for {
		select {
		case <-a.bgrndCtx.Done():
			return
		case e, ok := <-sub.C():
			if !ok {
				return
			}
			if sc, ok := e.(SessionChanged); ok {
				SetSystemSleepDisabled(sc.Snapshot.IsPlaying)
			}
		}
	}
}

func (a *App) handleStopped() {
	if a.Config.Application.ExitOnStop {
		log.Println("Playback stopped, quitting...")
		go a.Quit()
	}
}

// HandleCommand dispatches one of the literal command actions.
func (a *App) HandleCommand(cmd ipc.Command) error {
	switch cmd.Action {
	case ipc.ActionPlayPause:
		a.Session.TogglePlayPause()
	case ipc.ActionNext:
		return a.Session.PlayNextTrack()
	case ipc.ActionPrevious:
		return a.Session.PlayPreviousTrack()
	case ipc.ActionClose:
		a.Session.Stop()
	case ipc.ActionStartTimer:
		if cmd.DurationMS <= 0 || cmd.DurationMS > MaxTimerMillis {
			return ErrInvalidDuration
		}
		_, err := a.SleepTimer.StartNow(time.Duration(cmd.DurationMS) * time.Millisecond)
		return err
	case ipc.ActionStopTimer:
		a.SleepTimer.Stop()
	default:
		return fmt.Errorf("%w: %q", ErrUnknownCommand, cmd.Action)
	}
	return nil
}

func (a *App) PlayTrack(id int) error {
	return a.Session.PlayTrack(id)
}

func (a *App) SeekTo(pos time.Duration) error {
	a.Session.SeekTo(pos)
	return nil
}

func (a *App) ToggleShuffle() bool {
	return a.Session.ToggleShuffle()
}

func (a *App) ToggleRepeat() bool {
	return a.Session.ToggleRepeat()
}

// SetLocale switches and persists the locale, then announces it on the event bus.
func (a *App) SetLocale(code string) error {
	norm, err := a.Localizer.SetLocale(code)
	if err != nil {
		return err
	}
	a.Prefs.SetLocale(norm)
	a.Events.Publish(LocaleChanged{Code: norm})
	return nil
}

// Reset tears the session down and restores every persisted default.
func (a *App) Reset() error {
	a.Session.Reset()
	return a.SetLocale(DefaultLocale)
}

func (a *App) Status() ipc.Status {
	snap := a.Session.Snapshot()
	return ipc.Status{
		Version:          a.appVersionTag,
		TrackID:          snap.TrackID,
		Title:            snap.Title,
		IsPlaying:        snap.IsPlaying,
		RepeatEnabled:    snap.RepeatEnabled,
		ShuffleEnabled:   snap.ShuffleEnabled,
		LoadStatus:       snap.LoadStatus.String(),
		Locale:           snap.Locale,
		PositionMS:       snap.PositionMS,
		DurationMS:       snap.DurationMS,
		TimerActive:      a.SleepTimer.Active(),
		TimerRemainingMS: a.SleepTimer.Remaining().Milliseconds(),
	}
}

func (a *App) Lyrics(id int) (ipc.Lyrics, error) {
	tr, err := a.Catalog.Track(id)
	if err != nil {
		return ipc.Lyrics{}, err
	}
	return ipc.Lyrics{
		TrackID: id,
		Title:   a.Localizer.TrackTitle(tr),
		Locale:  a.Localizer.Locale(),
		Text:    a.Localizer.TrackLyrics(tr),
	}, nil
}

// TimerPresets lists the configured sleep timer presets followed by "never".
func (a *App) TimerPresets() []ipc.TimerPreset {
	presets := make([]ipc.TimerPreset, 0, len(a.Config.SleepTimer.PresetsMinutes)+1)
	for _, m := range a.Config.SleepTimer.PresetsMinutes {
		d := time.Duration(m) * time.Minute
		presets = append(presets, ipc.TimerPreset{Label: a.Localizer.TimerPresetLabel(d), DurationMS: d.Milliseconds()})
	}
	return append(presets, ipc.TimerPreset{Label: a.Localizer.TimerPresetLabel(0)})
}

func (a *App) SubscribeEvents() (<-chan ipc.Event, func()) {
	sub := a.Events.Subscribe(0)
	out := make(chan ipc.Event)
	done := make(chan struct{})
	go func() {
		defer close(out)
		for {
			select {
			case <-done:
				return
			case e, ok := <-sub.C():
				if !ok {
					return
				}
				data, err := json.Marshal(e)
				if err != nil {
					log.Printf("error encoding event %s: %v", e.Name(), err)
					continue
				}
				select {
				case out <- ipc.Event{Name: e.Name(), Data: data}:
				case <-done:
					return
				}
			}
		}
	}()
	var once sync.Once
	return out, func() {
		once.Do(func() {
			close(done)
			sub.Unsubscribe()
		})
	}
}

// Quit asks the daemon to shut down. Safe to call more than once.
func (a *App) Quit() {
	a.quitOnce.Do(func() { close(a.quit) })
}

func (a *App) Shutdown() {
	if a.MPRISHandler != nil {
		a.MPRISHandler.Shutdown()
	}
	if a.ipcServer != nil {
		a.ipcServer.Close()
		ipc.DestroyConn()
	}
	a.Session.DisableCallbacks()
	a.Session.Teardown()
	a.SleepTimer.Wait()
	a.cfgMu.Lock()
	a.Config.LocalPlayback.Volume = a.LocalPlayer.GetVolume()
	a.cfgMu.Unlock()
	a.cancel()
	a.LocalPlayer.Destroy()
	a.Events.Close()
	if err := a.Prefs.Close(); err != nil {
		log.Printf("error closing prefs store: %v", err)
	}
	SetSystemSleepDisabled(false)
	if a.configDir != "" {
		a.SaveConfigFile()
	}
}

func (a *App) SaveConfigFile() {
	a.cfgMu.Lock()
	defer a.cfgMu.Unlock()
	a.Config.WriteConfigFile(a.configFilePath())
	a.lastWrittenCfg = *a.Config
}

func (a *App) configFilePath() string {
	return path.Join(a.configDir, configFile)
}
