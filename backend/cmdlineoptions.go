package backend

import (
	"flag"
	"math"
	"strconv"
	"strings"
	"time"
)

// NeverTimer is the -start-timer value that stops the sleep timer.
const NeverTimer = "never"

var (
	PlayTrackCLIArg  int = -1
	StartTimerCLIArg time.Duration
	StopTimerCLIArg  bool
	LyricsCLIArg     int = -1
	LocaleCLIArg     string

	FlagPlayPause    = flag.Bool("play-pause", false, "toggle play/pause state")
	FlagPrevious     = flag.Bool("previous", false, "play the previous chant")
	FlagNext         = flag.Bool("next", false, "play the next chant (random one with shuffle on)")
	FlagClose        = flag.Bool("close", false, "stop playback and close the running instance")
	FlagShuffle      = flag.Bool("shuffle", false, "toggle shuffle")
	FlagRepeat       = flag.Bool("repeat", false, "toggle repeat of the current chant")
	FlagStatus       = flag.Bool("status", false, "print the playback status of the running instance")
	FlagTimerPresets = flag.Bool("timer-presets", false, "list the sleep timer presets")
	FlagEvents       = flag.Bool("events", false, "stream events from the running instance until interrupted")
	FlagReset        = flag.Bool("reset", false, "stop playback and restore default settings")
	FlagQuit         = flag.Bool("quit", false, "quit the running instance")
	FlagCheckUpdate  = flag.Bool("check-update", false, "check whether a newer release is available and exit")
	FlagVersion      = flag.Bool("version", false, "print app version and exit")
	FlagHelp         = flag.Bool("help", false, "print command line options and exit")
)

func init() {
	flag.Func("play-track", "play the chant with the given id (0-based)", func(s string) error {
		v, err := strconv.Atoi(s)
		PlayTrackCLIArg = v
		return err
	})
	flag.Func("start-timer", `start the sleep timer: a duration ("45m", "1h30m"), minutes ("15") or "never" to stop it`, func(s string) error {
		d, stop, err := ParseTimerArg(s)
		StartTimerCLIArg = d
		StopTimerCLIArg = StopTimerCLIArg || stop
		return err
	})
	flag.BoolFunc("stop-timer", "stop the sleep timer", func(string) error {
		StopTimerCLIArg = true
		return nil
	})
	flag.Func("locale", "switch the locale (en, si)", func(s string) error {
		LocaleCLIArg = s
		return nil
	})
	flag.Func("lyrics", "print the lyrics of the chant with the given id", func(s string) error {
		v, err := strconv.Atoi(s)
		LyricsCLIArg = v
		return err
	})
}

// ParseTimerArg parses a -start-timer value. stop is true for "never".
func ParseTimerArg(s string) (d time.Duration, stop bool, err error) {
	s = strings.TrimSpace(s)
	if strings.EqualFold(s, NeverTimer) {
		return 0, true, nil
	}
	if mins, err := strconv.ParseInt(s, 10, 64); err == nil {
		if mins > int64(math.MaxInt64/time.Minute) {
			return 0, false, ErrInvalidDuration
		}
		d = time.Duration(mins) * time.Minute
	} else if d, err = time.ParseDuration(s); err != nil {
		return 0, false, err
	}
	if d < time.Millisecond {
		return 0, false, ErrInvalidDuration
	}
	return d, false, nil
}

func HaveCommandLineOptions() bool {
	visitedAny := false
	flag.Visit(func(*flag.Flag) {
		visitedAny = true
	})
	return visitedAny
}
