package backend

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"
)

const updateCheckInterval = 24 * time.Hour

var ErrNoReleaseTag = errors.New("no release tag in redirect URL")

// UpdateChecker polls the latest-release URL, which redirects to the
// page of the newest release tag.
type UpdateChecker struct {
	// called with the new tag; at most once per tag
	OnUpdatedVersionFound func(tag string)

	httpC            *http.Client
	latestReleaseURL string
	appVersionTag    string

	mu              sync.Mutex
	lastCheckedTag  string
	versionTagFound string
}

// lastCheckedTag is the newest tag already reported on a previous run.
func NewUpdateChecker(appVersionTag, latestReleaseURL, lastCheckedTag string) *UpdateChecker {
	return &UpdateChecker{
		httpC:            &http.Client{Timeout: 15 * time.Second},
		appVersionTag:    appVersionTag,
		latestReleaseURL: latestReleaseURL,
		lastCheckedTag:   lastCheckedTag,
	}
}

func (u *UpdateChecker) Start(ctx context.Context, interval time.Duration) {
	go func() {
		u.checkForUpdate(ctx) // check once at startup
		t := time.NewTicker(interval)
		for {
			select {
			case <-ctx.Done():
				t.Stop()
				return
			case <-t.C:
				u.checkForUpdate(ctx)
			}
		}
	}()
}

// VersionTagFound is the newest tag seen this run, or "".
func (u *UpdateChecker) VersionTagFound() string {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.versionTagFound
}

func (u *UpdateChecker) checkForUpdate(ctx context.Context) {
	t, err := u.CheckLatestVersionTag(ctx)
	if err != nil {
		log.Printf("failed to check for newest version: %s", err.Error())
		return
	}
	u.mu.Lock()
	if t == u.appVersionTag || t == u.lastCheckedTag {
		u.mu.Unlock()
		return
	}
	u.versionTagFound = t
	u.lastCheckedTag = t
	u.mu.Unlock()
	if u.OnUpdatedVersionFound != nil {
		u.OnUpdatedVersionFound(t)
	}
}

func (u *UpdateChecker) CheckLatestVersionTag(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, u.latestReleaseURL, nil)
	if err != nil {
		return "", err
	}
	resp, err := u.httpC.Do(req)
	if err != nil {
		return "", err
	}
	resp.Body.Close()
	url := strings.TrimSuffix(resp.Request.URL.String(), "/")
	idx := strings.LastIndex(url, "/")
	if idx < 0 || idx >= len(url)-1 || url == strings.TrimSuffix(u.latestReleaseURL, "/") {
		return "", ErrNoReleaseTag
	}
	return url[idx+1:], nil
}
