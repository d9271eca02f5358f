package ipc

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"
)

var ErrBadParam = errors.New("invalid parameter")

type SessionHandler interface {
	HandleCommand(Command) error
	PlayTrack(id int) error
	SeekTo(time.Duration) error
	ToggleShuffle() bool
	ToggleRepeat() bool
	SetLocale(code string) error
	Reset() error
	Status() Status
	Lyrics(id int) (Lyrics, error)
	TimerPresets() []TimerPreset
	// SubscribeEvents returns a stream of events, closed after unsubscribe is called.
	SubscribeEvents() (events <-chan Event, unsubscribe func())
}

type LifecycleHandler interface {
	Quit()
}

type serverImpl struct {
	sessHandler SessionHandler
	lcHandler   LifecycleHandler
}

func NewServer(sessHandler SessionHandler, lcHandler LifecycleHandler) *http.Server {
	s := serverImpl{sessHandler: sessHandler, lcHandler: lcHandler}
	return &http.Server{
		Handler: s.createHandler(),
	}
}

func (s *serverImpl) createHandler() http.Handler {
	m := http.NewServeMux()
	m.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte("The given path is not valid"))
	})
	m.HandleFunc(PingPath, s.makeSimpleEndpointHandler(func() error { return nil }))
	m.HandleFunc(QuitPath, s.makeSimpleEndpointHandler(func() error {
		if s.lcHandler == nil {
			return errors.New("no quit handler registered")
		}
		go s.lcHandler.Quit()
		return nil
	}))
	m.HandleFunc(CommandPath, func(w http.ResponseWriter, r *http.Request) {
		var c Command
		if err := json.NewDecoder(r.Body).Decode(&c); err != nil {
			s.writeBadRequest(w, err)
			return
		}
		s.writeSimpleResponse(w, s.sessHandler.HandleCommand(c))
	})
	m.HandleFunc(PlayPausePath, s.makeCommandHandler(ActionPlayPause))
	m.HandleFunc(NextPath, s.makeCommandHandler(ActionNext))
	m.HandleFunc(PreviousPath, s.makeCommandHandler(ActionPrevious))
	m.HandleFunc(ClosePath, s.makeCommandHandler(ActionClose))
	m.HandleFunc(StopTimerPath, s.makeCommandHandler(ActionStopTimer))
	m.HandleFunc(StartTimerPath, func(w http.ResponseWriter, r *http.Request) {
		d, err := durationParam(r, "ms")
		if err != nil {
			s.writeBadRequest(w, err)
			return
		}
		s.writeSimpleResponse(w, s.sessHandler.HandleCommand(Command{Action: ActionStartTimer, DurationMS: d.Milliseconds()}))
	})
	m.HandleFunc(PlayTrackPath, func(w http.ResponseWriter, r *http.Request) {
		id, err := int64Param(r, "id")
		if err != nil {
			s.writeBadRequest(w, err)
			return
		}
		s.writeSimpleResponse(w, s.sessHandler.PlayTrack(int(id)))
	})
	m.HandleFunc(SeekPath, func(w http.ResponseWriter, r *http.Request) {
		d, err := durationParam(r, "ms")
		if err != nil {
			s.writeBadRequest(w, err)
			return
		}
		s.writeSimpleResponse(w, s.sessHandler.SeekTo(d))
	})
	m.HandleFunc(ShufflePath, func(w http.ResponseWriter, r *http.Request) {
		s.writeJSON(w, ModeResponse{Enabled: s.sessHandler.ToggleShuffle()})
	})
	m.HandleFunc(RepeatPath, func(w http.ResponseWriter, r *http.Request) {
		s.writeJSON(w, ModeResponse{Enabled: s.sessHandler.ToggleRepeat()})
	})
	m.HandleFunc(LocalePath, func(w http.ResponseWriter, r *http.Request) {
		code := r.URL.Query().Get("code")
		if code == "" {
			s.writeBadRequest(w, fmt.Errorf("%w: missing code", ErrBadParam))
			return
		}
		s.writeSimpleResponse(w, s.sessHandler.SetLocale(code))
	})
	m.HandleFunc(ResetPath, s.makeSimpleEndpointHandler(s.sessHandler.Reset))
	m.HandleFunc(StatusPath, func(w http.ResponseWriter, r *http.Request) {
		s.writeJSON(w, s.sessHandler.Status())
	})
	m.HandleFunc(TimerPresetsPath, func(w http.ResponseWriter, r *http.Request) {
		s.writeJSON(w, s.sessHandler.TimerPresets())
	})
	m.HandleFunc(LyricsPath, func(w http.ResponseWriter, r *http.Request) {
		id, err := int64Param(r, "id")
		if err != nil {
			s.writeBadRequest(w, err)
			return
		}
		l, err := s.sessHandler.Lyrics(int(id))
		if err != nil {
			s.writeErr(w, err)
			return
		}
		s.writeJSON(w, l)
	})
	m.HandleFunc(EventsPath, s.serveEvents)
	return m
}

func (s *serverImpl) serveEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	events, unsubscribe := s.sessHandler.SubscribeEvents()
	defer unsubscribe()
	for {
		select {
		case e, ok := <-events:
			if !ok {
				return
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", e.Name, e.Data)
			flusher.Flush()
		case <-r.Context().Done():
			return
		}
	}
}

func (s *serverImpl) makeCommandHandler(a Action) func(http.ResponseWriter, *http.Request) {
	return s.makeSimpleEndpointHandler(func() error {
		return s.sessHandler.HandleCommand(Command{Action: a})
	})
}

func (s *serverImpl) makeSimpleEndpointHandler(f func() error) func(http.ResponseWriter, *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		s.writeSimpleResponse(w, f())
	}
}

func (s *serverImpl) writeSimpleResponse(w http.ResponseWriter, err error) {
	if err == nil {
		s.writeOK(w)
	} else {
		s.writeErr(w, err)
	}
}

func (s *serverImpl) writeOK(w http.ResponseWriter) (int, error) {
	var r Response
	b, err := json.Marshal(&r)
	if err != nil {
		return 0, err
	}
	return w.Write(b)
}

func (s *serverImpl) writeJSON(w http.ResponseWriter, v any) (int, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return s.writeErr(w, err)
	}
	w.Header().Set("Content-Type", "application/json")
	return w.Write(b)
}

func (s *serverImpl) writeErr(w http.ResponseWriter, err error) (int, error) {
	return s.writeErrStatus(w, http.StatusInternalServerError, err)
}

func (s *serverImpl) writeBadRequest(w http.ResponseWriter, err error) (int, error) {
	return s.writeErrStatus(w, http.StatusBadRequest, err)
}

func (s *serverImpl) writeErrStatus(w http.ResponseWriter, status int, err error) (int, error) {
	r := Response{Error: err.Error()}
	b, err := json.Marshal(&r)
	if err != nil {
		return 0, err
	}
	w.WriteHeader(status)
	return w.Write(b)
}

func int64Param(r *http.Request, name string) (int64, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return 0, fmt.Errorf("%w: missing %s", ErrBadParam, name)
	}
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s=%q", ErrBadParam, name, v)
	}
	return i, nil
}

// durationParam reads a millisecond count that must fit a time.Duration.
func durationParam(r *http.Request, name string) (time.Duration, error) {
	ms, err := int64Param(r, name)
	if err != nil {
		return 0, err
	}
	if ms > math.MaxInt64/int64(time.Millisecond) || ms < math.MinInt64/int64(time.Millisecond) {
		return 0, fmt.Errorf("%w: %s=%d out of range", ErrBadParam, name, ms)
	}
	return time.Duration(ms) * time.Millisecond, nil
}
