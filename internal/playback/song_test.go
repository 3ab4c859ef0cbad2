package playback

import (
	"testing"
	"time"

	"github.com/lhoume/jukebox/internal/queue"
)

func TestSongElapsedAcrossPause(t *testing.T) {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s := &Song{Item: queue.Item{Duration: time.Minute}, StartTime: start}

	// Play 5s, pause for 3s, play 5s more: elapsed must be 10s.
	s.pause(start.Add(5 * time.Second))
	if got := s.Elapsed(start.Add(7 * time.Second)); got != 5*time.Second {
		t.Errorf("elapsed while paused = %v, want 5s", got)
	}

	s.resume(start.Add(8 * time.Second))
	if got := s.Elapsed(start.Add(13 * time.Second)); got != 10*time.Second {
		t.Errorf("elapsed after resume = %v, want 10s", got)
	}
	if s.IsPaused() {
		t.Error("song still paused after resume")
	}
}

func TestSongPauseIdempotent(t *testing.T) {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s := &Song{StartTime: start}

	s.pause(start.Add(2 * time.Second))
	s.pause(start.Add(9 * time.Second))

	if got := s.Elapsed(start.Add(20 * time.Second)); got != 2*time.Second {
		t.Errorf("elapsed = %v, want 2s (second pause must not move the mark)", got)
	}
}

func TestSongSeekClamps(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s := &Song{Item: queue.Item{Duration: 30 * time.Second}, StartTime: now}

	if got := s.seekTo(-5*time.Second, now); got != 0 {
		t.Errorf("seek below zero = %v, want 0", got)
	}
	if got := s.seekTo(time.Hour, now); got != 30*time.Second {
		t.Errorf("seek past end = %v, want 30s", got)
	}
	if got := s.Elapsed(now); got != 30*time.Second {
		t.Errorf("elapsed after seek = %v, want 30s", got)
	}
}

func TestSongSeekResumesPausedSong(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s := &Song{Item: queue.Item{Duration: time.Minute}, StartTime: now}

	s.pause(now.Add(3 * time.Second))
	s.seekTo(10*time.Second, now.Add(8*time.Second))

	if s.IsPaused() {
		t.Error("song still paused after seek")
	}
	if got := s.Elapsed(now.Add(8 * time.Second)); got != 10*time.Second {
		t.Errorf("elapsed = %v, want 10s", got)
	}
}

func TestSongUnknownDurationSeeksUnclamped(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s := &Song{StartTime: now}

	if got := s.seekTo(90*time.Second, now); got != 90*time.Second {
		t.Errorf("seek with unknown duration = %v, want 90s", got)
	}
}
