package playback

// Phase represents the orchestrator state machine.
//
// The machine has four phases with the following transitions:
//
//	┌──────────┐  queue non-empty   ┌───────────────┐
//	│   Idle   │ ──────────────────▶│ Transitioning │
//	└──────────┘                    └───────────────┘
//	     ▲                               │
//	     │ finish + queue empty          │ selection + resolve
//	     │ (after transition delay)      │ + backend play ok
//	     │                               ▼
//	┌───────────────┐   pause      ┌──────────┐
//	│ Transitioning │◀──────────── │  Playing │
//	└───────────────┘  skip/finish └──────────┘
//	                               ▲        │ pause
//	                        resume │        ▼
//	                              ┌──────────┐
//	                              │  Paused  │
//	                              └──────────┘
//
// Skip requests the backend to stop; the actual phase change happens when
// the resulting Finished event arrives, not synchronously. There is no
// terminal phase: the orchestrator runs until Close.
type Phase int

const (
	PhaseIdle Phase = iota
	PhasePlaying
	PhasePaused
	PhaseTransitioning
)

// String returns the phase name.
func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "Idle"
	case PhasePlaying:
		return "Playing"
	case PhasePaused:
		return "Paused"
	case PhaseTransitioning:
		return "Transitioning"
	default:
		return "Unknown"
	}
}

// IsActive returns true if a song is bound to playback.
func (p Phase) IsActive() bool {
	return p == PhasePlaying || p == PhasePaused
}

// RepeatMode defines queue advance behavior after a song finishes.
type RepeatMode int

const (
	RepeatNone RepeatMode = iota
	RepeatOne
	RepeatAll
)

// String returns the repeat mode name.
func (m RepeatMode) String() string {
	switch m {
	case RepeatNone:
		return "None"
	case RepeatOne:
		return "One"
	case RepeatAll:
		return "All"
	default:
		return "Unknown"
	}
}
