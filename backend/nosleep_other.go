//go:build !windows

package backend

// SetSystemSleepDisabled is a no-op outside Windows; MPRIS players
// in the Playing state already inhibit idle sleep on most Linux desktops.
func SetSystemSleepDisabled(bool) {}
