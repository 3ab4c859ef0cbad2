package playback

import "github.com/lhoume/jukebox/internal/queue"

// PhaseChange is emitted when the orchestrator phase changes.
type PhaseChange struct {
	Previous Phase
	Current  Phase
}

// SongChange is emitted when the current song changes.
//
// Emitted when a selected item becomes the current song and when a song
// ends without a successor. A repeat-one restart of the same file does not
// emit: the current song never changed.
type SongChange struct {
	Previous *queue.Item
	Current  *queue.Item
}

// ModeChange is emitted when repeat or shuffle mode changes.
type ModeChange struct {
	Repeat  RepeatMode
	Shuffle bool
}

// ErrorEvent is emitted when a playback attempt fails.
type ErrorEvent struct {
	Op      string // e.g. "resolve", "play"
	Content string // item content if applicable
	Err     error
}
