package backend

import (
	"errors"
	"fmt"
	"path/filepath"
)

var ErrTrackOutOfRange = errors.New("track id out of range")

// Track is one bundled chant recording.
type Track struct {
	ID int
	// translation message IDs
	TitleKey  string
	LyricsKey string
	// file name relative to the assets dir
	AudioFile string
}

// Catalog is the fixed, ordered list of tracks. Track IDs are their indices.
type Catalog []Track

func DefaultCatalog() Catalog {
	return Catalog{
		{ID: 0, TitleKey: "karaniya_title", LyricsKey: "karaniya_lyrics", AudioFile: "karaniya.mp3"},
		{ID: 1, TitleKey: "rathana_title", LyricsKey: "rathana_lyrics", AudioFile: "rathana.mp3"},
		{ID: 2, TitleKey: "mangala_title", LyricsKey: "mangala_lyrics", AudioFile: "mangala.mp3"},
	}
}

func (c Catalog) Len() int {
	return len(c)
}

func (c Catalog) Valid(id int) bool {
	return id >= 0 && id < len(c)
}

func (c Catalog) Track(id int) (Track, error) {
	if !c.Valid(id) {
		return Track{}, fmt.Errorf("%w: %d (catalog size %d)", ErrTrackOutOfRange, id, len(c))
	}
	return c[id], nil
}

// AudioPath resolves the track's audio file within assetsDir.
func (t Track) AudioPath(assetsDir string) string {
	return filepath.Join(assetsDir, t.AudioFile)
}
