package tags

import (
	"os"
	"path/filepath"
	"testing"
)

func TestProbe_MissingFile(t *testing.T) {
	info := Probe("/nonexistent/song.mp3")
	if info.Title != "song.mp3" {
		t.Errorf("Title = %q, want song.mp3", info.Title)
	}
	if info.Artist != "" {
		t.Errorf("Artist = %q, want empty", info.Artist)
	}
}

func TestProbe_UntaggedFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "noise.mp3")
	if err := os.WriteFile(path, []byte("not audio"), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}

	info := Probe(path)
	if info.Title != "noise.mp3" {
		t.Errorf("Title = %q, want noise.mp3", info.Title)
	}
}
