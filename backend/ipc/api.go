package ipc

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"time"
)

const (
	PingPath         = "/ping"
	CommandPath      = "/command" // JSON body: Command
	PlayPausePath    = "/transport/playpause"
	NextPath         = "/transport/next"
	PreviousPath     = "/transport/previous"
	ClosePath        = "/transport/close"
	PlayTrackPath    = "/transport/play-track" // ?id=<track ID>
	SeekPath         = "/transport/seek"       // ?ms=<position>
	StartTimerPath   = "/timer/start"          // ?ms=<duration>
	StopTimerPath    = "/timer/stop"
	TimerPresetsPath = "/timer/presets"
	ShufflePath      = "/mode/shuffle"
	RepeatPath       = "/mode/repeat"
	LocalePath       = "/locale" // ?code=<locale>
	ResetPath        = "/reset"
	StatusPath       = "/status"
	LyricsPath       = "/lyrics" // ?id=<track ID>
	EventsPath       = "/events"
	QuitPath         = "/quit"
)

// Overrides the socket path (named pipe on Windows), e.g. for portable mode.
const SocketEnvVar = "SETHPIRITH_SOCKET"

var ErrAddrInUse = errors.New("another instance is listening on the IPC socket")

// Action is a literal command identifier accepted by the daemon.
type Action string

const (
	ActionPlayPause  Action = "PLAY_PAUSE"
	ActionNext       Action = "NEXT"
	ActionPrevious   Action = "PREVIOUS"
	ActionClose      Action = "CLOSE"
	ActionStartTimer Action = "START_TIMER"
	ActionStopTimer  Action = "STOP_TIMER"
)

type Command struct {
	Action Action `json:"action"`
	// only for ActionStartTimer; must be > 0
	DurationMS int64 `json:"durationMs,omitempty"`
}

type Response struct {
	Error string `json:"error"`
}

// Status is the daemon state reported by StatusPath.
type Status struct {
	Version          string `json:"version"`
	TrackID          int    `json:"trackId"`
	Title            string `json:"title"`
	IsPlaying        bool   `json:"isPlaying"`
	RepeatEnabled    bool   `json:"repeatEnabled"`
	ShuffleEnabled   bool   `json:"shuffleEnabled"`
	LoadStatus       string `json:"loadStatus"`
	Locale           string `json:"locale"`
	PositionMS       int64  `json:"positionMs"`
	DurationMS       int64  `json:"durationMs"`
	TimerActive      bool   `json:"timerActive"`
	TimerRemainingMS int64  `json:"timerRemainingMs"`
}

type Lyrics struct {
	TrackID int    `json:"trackId"`
	Title   string `json:"title"`
	Locale  string `json:"locale"`
	Text    string `json:"text"`
}

type TimerPreset struct {
	Label string `json:"label"`
	// zero for the "never" preset, which stops the timer
	DurationMS int64 `json:"durationMs"`
}

type ModeResponse struct {
	Enabled bool `json:"enabled"`
}

// Event is one server-sent event of the EventsPath stream.
type Event struct {
	Name string          `json:"event"`
	Data json.RawMessage `json:"data"`
}

func BuildPlayTrackPath(id int) string {
	return fmt.Sprintf("%s?id=%d", PlayTrackPath, id)
}

func BuildSeekPath(pos time.Duration) string {
	return fmt.Sprintf("%s?ms=%d", SeekPath, pos.Milliseconds())
}

func BuildStartTimerPath(d time.Duration) string {
	return fmt.Sprintf("%s?ms=%d", StartTimerPath, d.Milliseconds())
}

func BuildLocalePath(code string) string {
	return fmt.Sprintf("%s?code=%s", LocalePath, url.QueryEscape(code))
}

func BuildLyricsPath(id int) string {
	return fmt.Sprintf("%s?id=%d", LyricsPath, id)
}
