package ipc

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net"
	"net/http"
	"strings"
	"time"
)

var ErrPingFail = errors.New("ping failed")

const baseURL = "http://sethpirith"

type Client struct {
	httpC http.Client
}

// Connect attempts to connect to the IPC socket as client.
func Connect() (*Client, error) {
	return connect(func(context.Context) (net.Conn, error) { return Dial() })
}

func connect(dial func(context.Context) (net.Conn, error)) (*Client, error) {
	client := &Client{httpC: http.Client{
		Transport: &http.Transport{
			DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
				return dial(ctx)
			},
		},
	}}
	if err := client.Ping(); err != nil {
		return nil, err
	}
	return client, nil
}

func (c *Client) Ping() error {
	if c.makeSimpleRequest(http.MethodGet, PingPath) != nil {
		return ErrPingFail
	}
	return nil
}

func (c *Client) SendCommand(cmd Command) error {
	b, err := json.Marshal(cmd)
	if err != nil {
		return err
	}
	return c.makeRequest(http.MethodPost, CommandPath, bytes.NewReader(b), nil)
}

func (c *Client) PlayPause() error {
	return c.makeSimpleRequest(http.MethodPost, PlayPausePath)
}

func (c *Client) Next() error {
	return c.makeSimpleRequest(http.MethodPost, NextPath)
}

func (c *Client) Previous() error {
	return c.makeSimpleRequest(http.MethodPost, PreviousPath)
}

func (c *Client) Close() error {
	return c.makeSimpleRequest(http.MethodPost, ClosePath)
}

func (c *Client) PlayTrack(id int) error {
	return c.makeSimpleRequest(http.MethodPost, BuildPlayTrackPath(id))
}

func (c *Client) SeekTo(pos time.Duration) error {
	return c.makeSimpleRequest(http.MethodPost, BuildSeekPath(pos))
}

func (c *Client) StartTimer(d time.Duration) error {
	return c.makeSimpleRequest(http.MethodPost, BuildStartTimerPath(d))
}

func (c *Client) StopTimer() error {
	return c.makeSimpleRequest(http.MethodPost, StopTimerPath)
}

func (c *Client) ToggleShuffle() (bool, error) {
	var m ModeResponse
	err := c.makeRequest(http.MethodPost, ShufflePath, nil, &m)
	return m.Enabled, err
}

func (c *Client) ToggleRepeat() (bool, error) {
	var m ModeResponse
	err := c.makeRequest(http.MethodPost, RepeatPath, nil, &m)
	return m.Enabled, err
}

func (c *Client) SetLocale(code string) error {
	return c.makeSimpleRequest(http.MethodPost, BuildLocalePath(code))
}

func (c *Client) Reset() error {
	return c.makeSimpleRequest(http.MethodPost, ResetPath)
}

func (c *Client) Status() (*Status, error) {
	var s Status
	if err := c.makeRequest(http.MethodGet, StatusPath, nil, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func (c *Client) Lyrics(id int) (*Lyrics, error) {
	var l Lyrics
	if err := c.makeRequest(http.MethodGet, BuildLyricsPath(id), nil, &l); err != nil {
		return nil, err
	}
	return &l, nil
}

func (c *Client) TimerPresets() ([]TimerPreset, error) {
	var p []TimerPreset
	err := c.makeRequest(http.MethodGet, TimerPresetsPath, nil, &p)
	return p, err
}

func (c *Client) Quit() error {
	return c.makeSimpleRequest(http.MethodPost, QuitPath)
}

// Events streams server-sent events to fn until ctx is cancelled
// or the daemon closes the stream.
func (c *Client) Events(ctx context.Context, fn func(Event)) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+EventsPath, nil)
	if err != nil {
		return err
	}
	resp, err := c.httpC.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return decodeErr(resp)
	}

	var e Event
	sc := bufio.NewScanner(resp.Body)
	for sc.Scan() {
		line := sc.Text()
		switch {
		case strings.HasPrefix(line, "event: "):
			e.Name = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			e.Data = json.RawMessage(strings.TrimPrefix(line, "data: "))
		case line == "":
			if e.Name != "" {
				fn(e)
			}
			e = Event{}
		}
	}
	if ctx.Err() != nil {
		return nil
	}
	return sc.Err()
}

func (c *Client) makeSimpleRequest(method string, path string) error {
	return c.makeRequest(method, path, nil, nil)
}

func (c *Client) makeRequest(method, path string, body io.Reader, out any) error {
	var resp *http.Response
	var err error
	switch method {
	case http.MethodGet:
		resp, err = c.httpC.Get(baseURL + path)
	case http.MethodPost:
		resp, err = c.httpC.Post(baseURL+path, "application/json", body)
	}

	if err != nil {
		log.Printf("http err: %v\n", err)
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return decodeErr(resp)
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func decodeErr(resp *http.Response) error {
	var r Response
	json.NewDecoder(resp.Body).Decode(&r)
	if r.Error == "" {
		return errors.New(resp.Status)
	}
	return errors.New(r.Error)
}
