package playback

import (
	"time"

	"github.com/lhoume/jukebox/internal/queue"
)

// Song is the item currently bound to playback, plus the wall-clock
// bookkeeping that makes elapsed time survive pauses and seeks.
type Song struct {
	Item queue.Item

	// StartTime is the instant playback began, shifted forward on resume
	// so that elapsed time excludes time spent paused.
	StartTime time.Time

	// PausedAt is the instant of the pause; zero while playing.
	PausedAt time.Time
}

// Elapsed returns how much of the song has played as of now.
func (s *Song) Elapsed(now time.Time) time.Duration {
	if !s.PausedAt.IsZero() {
		return s.PausedAt.Sub(s.StartTime)
	}
	return now.Sub(s.StartTime)
}

// IsPaused reports whether the song is paused.
func (s *Song) IsPaused() bool {
	return !s.PausedAt.IsZero()
}

// pause records the pause instant. No-op if already paused.
func (s *Song) pause(now time.Time) {
	if s.PausedAt.IsZero() {
		s.PausedAt = now
	}
}

// resume shifts StartTime by the pause duration so elapsed time is
// preserved across the pause.
func (s *Song) resume(now time.Time) {
	if s.PausedAt.IsZero() {
		return
	}
	s.StartTime = s.StartTime.Add(now.Sub(s.PausedAt))
	s.PausedAt = time.Time{}
}

// seekTo clamps target to [0, duration], recomputes StartTime so elapsed
// equals the clamped target, and clears PausedAt: seeking always resumes.
// Returns the effective position.
func (s *Song) seekTo(target time.Duration, now time.Time) time.Duration {
	if target < 0 {
		target = 0
	}
	if s.Item.Duration > 0 && target > s.Item.Duration {
		target = s.Item.Duration
	}
	s.StartTime = now.Add(-target)
	s.PausedAt = time.Time{}
	return target
}
