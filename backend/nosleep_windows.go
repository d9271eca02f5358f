//go:build windows

package backend

import (
	"log"
	"sync/atomic"

	"golang.org/x/sys/windows"
)

const (
	esContinuous     uint32 = 0x80000000
	esSystemRequired uint32 = 0x00000001
)

var (
	sleepDisabled  atomic.Bool
	executionState = windows.NewLazySystemDLL("kernel32.dll").NewProc("SetThreadExecutionState")
)

// SetSystemSleepDisabled keeps the system awake while playback is running.
func SetSystemSleepDisabled(disable bool) {
	if old := sleepDisabled.Swap(disable); old == disable {
		return
	}

	state := esContinuous
	if disable {
		state |= esSystemRequired
	}
	if r, _, err := executionState.Call(uintptr(state)); r == 0 {
		log.Printf("SetThreadExecutionState failed: %v", err)
	}
}
