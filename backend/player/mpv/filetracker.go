package mpv

// endAction is what an mpv end-file event means for the current file.
type endAction int

const (
	endIgnored endAction = iota
	endFailed
	endCompleted
)

// fileTracker tells apart mpv's end-file events. mpv reports end-file
// alike for replaced files, failed loads and natural ends, and with
// idle=yes it emits nothing for a stop issued while already idle.
// Must be used with the player's mutex held.
type fileTracker struct {
	path      string
	loading   bool // between loadfile and file-loaded
	open      bool // mpv has a file open and owes us an end-file for it
	staleEnds int  // end-file events still expected for replaced or stopped files
}

func (f *fileTracker) load(path string) {
	if f.open {
		f.staleEnds++
	}
	f.path = path
	f.loading = true
	f.open = true
}

// release forgets the current file and reports whether mpv needs a stop.
func (f *fileTracker) release() bool {
	wasOpen := f.open
	if wasOpen {
		f.staleEnds++
	}
	f.path = ""
	f.loading = false
	f.open = false
	return wasOpen
}

// fileLoaded reports whether the event completes a pending load.
func (f *fileTracker) fileLoaded() bool {
	wasLoading := f.loading
	f.loading = false
	return wasLoading
}

func (f *fileTracker) endFile(looping bool) endAction {
	if f.staleEnds > 0 {
		f.staleEnds--
		return endIgnored
	}
	f.open = false
	switch {
	case f.loading:
		f.loading = false
		f.path = ""
		return endFailed
	case f.path != "" && !looping:
		return endCompleted
	}
	return endIgnored
}
