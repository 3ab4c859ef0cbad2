// Package tags probes display metadata from local audio files.
package tags

import (
	"os"
	"path/filepath"

	"github.com/dhowden/tag"
)

// Info holds the display metadata of a local file.
type Info struct {
	Title  string
	Artist string
}

// Probe reads title and artist from a local audio file.
// A file without readable tags falls back to its base name; Probe never
// fails the enqueue path, it only enriches it.
func Probe(path string) Info {
	info := Info{Title: filepath.Base(path)}

	f, err := os.Open(path)
	if err != nil {
		return info
	}
	defer f.Close()

	m, err := tag.ReadFrom(f)
	if err != nil {
		return info
	}

	if t := m.Title(); t != "" {
		info.Title = t
	}
	info.Artist = m.Artist()
	return info
}
