package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pixeleye/sethpirith/backend"
	"github.com/pixeleye/sethpirith/backend/ipc"
	"github.com/pixeleye/sethpirith/res"
	"golang.org/x/term"
)

func main() {
	flag.Parse()
	if *backend.FlagVersion {
		fmt.Println(res.AppVersion)
		fmt.Println(res.Copyright)
		return
	}
	if *backend.FlagHelp {
		flag.Usage()
		return
	}
	if *backend.FlagCheckUpdate {
		checkUpdate()
		return
	}

	if backend.HaveCommandLineOptions() {
		cli, err := ipc.Connect()
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s is not running\n", res.DisplayName)
			os.Exit(1)
		}
		if err := runClient(cli); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	myApp, err := backend.StartupApp(res.AppName, res.DisplayName, res.AppVersionTag)
	if errors.Is(err, backend.ErrAnotherInstance) {
		log.Printf("%s is already running", res.DisplayName)
		return
	} else if err != nil {
		log.Fatalf("fatal startup error: %v", err.Error())
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	select {
	case s := <-sig:
		log.Printf("Received %v", s)
	case <-myApp.QuitRequested():
	}

	log.Println("Running shutdown tasks...")
	myApp.Shutdown()
}

// runClient sends the requested commands to the running instance,
// mutations first and queries last.
func runClient(cli *ipc.Client) error {
	if backend.LocaleCLIArg != "" {
		if err := cli.SetLocale(backend.LocaleCLIArg); err != nil {
			return err
		}
	}
	if *backend.FlagReset {
		if err := cli.Reset(); err != nil {
			return err
		}
	}
	if backend.PlayTrackCLIArg >= 0 {
		if err := cli.PlayTrack(backend.PlayTrackCLIArg); err != nil {
			return err
		}
	}
	if *backend.FlagPrevious {
		if err := cli.Previous(); err != nil {
			return err
		}
	}
	if *backend.FlagNext {
		if err := cli.Next(); err != nil {
			return err
		}
	}
	if *backend.FlagPlayPause {
		if err := cli.PlayPause(); err != nil {
			return err
		}
	}
	if *backend.FlagShuffle {
		on, err := cli.ToggleShuffle()
		if err != nil {
			return err
		}
		fmt.Printf("shuffle: %s\n", onOff(on))
	}
	if *backend.FlagRepeat {
		on, err := cli.ToggleRepeat()
		if err != nil {
			return err
		}
		fmt.Printf("repeat: %s\n", onOff(on))
	}
	if backend.StopTimerCLIArg {
		if err := cli.StopTimer(); err != nil {
			return err
		}
	} else if backend.StartTimerCLIArg > 0 {
		if err := cli.StartTimer(backend.StartTimerCLIArg); err != nil {
			return err
		}
	}
	if *backend.FlagClose {
		if err := cli.Close(); err != nil {
			return err
		}
	}
	if *backend.FlagQuit {
		return cli.Quit()
	}

	if *backend.FlagStatus {
		s, err := cli.Status()
		if err != nil {
			return err
		}
		printStatus(s)
	}
	if backend.LyricsCLIArg >= 0 {
		l, err := cli.Lyrics(backend.LyricsCLIArg)
		if err != nil {
			return err
		}
		if isTerminal() {
			fmt.Printf("%s\n\n%s\n", l.Title, l.Text)
		} else {
			printJSON(l)
		}
	}
	if *backend.FlagTimerPresets {
		presets, err := cli.TimerPresets()
		if err != nil {
			return err
		}
		if isTerminal() {
			for _, p := range presets {
				fmt.Println(p.Label)
			}
		} else {
			printJSON(presets)
		}
	}
	if *backend.FlagEvents {
		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()
		return cli.Events(ctx, func(e ipc.Event) {
			if isTerminal() {
				fmt.Printf("%-16s %s\n", e.Name, e.Data)
			} else {
				printJSON(e)
			}
		})
	}
	return nil
}

func checkUpdate() {
	u := backend.NewUpdateChecker(res.AppVersionTag, res.LatestReleaseURL, "")
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()
	tag, err := u.CheckLatestVersionTag(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error checking for updates: %v\n", err)
		os.Exit(1)
	}
	if tag == res.AppVersionTag {
		fmt.Printf("%s %s is up to date\n", res.DisplayName, res.AppVersionTag)
		return
	}
	fmt.Printf("%s is available (running %s): %s\n", tag, res.AppVersionTag, res.LatestReleaseURL)
}

func printStatus(s *ipc.Status) {
	if !isTerminal() {
		printJSON(s)
		return
	}
	title := s.Title
	if s.TrackID < 0 {
		title = "(none)"
	}
	state := "paused"
	if s.IsPlaying {
		state = "playing"
	}
	fmt.Printf("%s %s\n", res.DisplayName, s.Version)
	fmt.Printf("track:   %s [%s, %s]\n", title, state, s.LoadStatus)
	if s.DurationMS > 0 {
		fmt.Printf("time:    %s / %s\n",
			backend.FormatRemaining(time.Duration(s.PositionMS)*time.Millisecond),
			backend.FormatRemaining(time.Duration(s.DurationMS)*time.Millisecond))
	}
	fmt.Printf("shuffle: %s  repeat: %s  locale: %s\n", onOff(s.ShuffleEnabled), onOff(s.RepeatEnabled), s.Locale)
	if s.TimerActive {
		fmt.Printf("timer:   %s\n", backend.FormatRemaining(time.Duration(s.TimerRemainingMS)*time.Millisecond))
	}
}

func printJSON(v any) {
	b, err := json.Marshal(v)
	if err != nil {
		log.Printf("error encoding output: %v", err)
		return
	}
	fmt.Println(string(b))
}

func isTerminal() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}
