package backend

import (
	"fmt"
	"sync"
	"time"
)

// Notification is the content of the OS playback notification.
type Notification struct {
	TrackID   int
	Title     string
	IsPlaying bool
	// empty when no sleep timer is running
	TimerText string
}

// Notifier is an OS surface that displays the playback notification.
type Notifier interface {
	Refresh(Notification)
	Remove()
}

// NotificationSurface merges session and timer updates into the
// single notification shown by a Notifier.
type NotificationSurface struct {
	mu        sync.Mutex
	notifiers []Notifier
	localizer *Localizer
	current   Notification
	remaining time.Duration
	visible   bool
}

func NewNotificationSurface(l *Localizer, notifiers ...Notifier) *NotificationSurface {
	return &NotificationSurface{localizer: l, notifiers: notifiers, current: Notification{TrackID: NoTrack}}
}

func (n *NotificationSurface) AddNotifier(notifier Notifier) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notifiers = append(n.notifiers, notifier)
}

// UpdateSession refreshes the track and play state shown.
func (n *NotificationSurface) UpdateSession(trackID int, title string, playing bool) {
	n.mu.Lock()
	n.current.TrackID = trackID
	n.current.Title = title
	n.current.IsPlaying = playing
	n.refreshLocked()
	n.mu.Unlock()
}

// UpdateTimer refreshes the remaining timer time shown. Zero hides the timer line.
func (n *NotificationSurface) UpdateTimer(remaining time.Duration) {
	n.mu.Lock()
	n.remaining = max(remaining, 0)
	n.refreshLocked()
	n.mu.Unlock()
}

// Refresh re-renders the notification, e.g. after a locale change.
func (n *NotificationSurface) Refresh() {
	n.mu.Lock()
	n.refreshLocked()
	n.mu.Unlock()
}

func (n *NotificationSurface) Remove() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.remaining = 0
	if !n.visible {
		return
	}
	n.visible = false
	for _, nt := range n.notifiers {
		nt.Remove()
	}
}

func (n *NotificationSurface) Current() Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.current
}

func (n *NotificationSurface) refreshLocked() {
	n.current.TimerText = ""
	if n.remaining > 0 && n.localizer != nil {
		n.current.TimerText = n.localizer.TimerText(n.remaining)
	}
	n.visible = true
	for _, nt := range n.notifiers {
		nt.Refresh(n.current)
	}
}

// FormatRemaining renders d as HH:MM:SS, rounding partial seconds up.
func FormatRemaining(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	secs := int64((d + time.Second - 1) / time.Second)
	return fmt.Sprintf("%02d:%02d:%02d", secs/3600, (secs/60)%60, secs%60)
}
