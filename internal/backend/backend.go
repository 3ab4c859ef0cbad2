// Package backend drives one external audio player process at a time.
//
// Two interchangeable variants exist:
//
//   - MPV: live-controlled over a JSON IPC socket (pause/seek/filter updates
//     without interrupting the stream).
//   - Ffplay: restart-based; every control operation that mpv would apply
//     live is expressed by killing the process and relaunching it at the
//     right offset.
//
// From the orchestrator's point of view the two are indistinguishable: both
// emit exactly one terminal event per Play call, and control-induced
// restarts never surface intermediate events.
package backend

import (
	"errors"
	"time"
)

// Gen identifies one play session. It increases monotonically with every
// Play call; completion events carry the generation of the session they
// belong to, so a superseded process's late exit is never misattributed to
// the current session.
type Gen uint64

// Reason explains why a session ended.
type Reason int

const (
	ReasonNatural Reason = iota // played through to end of stream
	ReasonSkipped               // stopped on request
	ReasonError                 // process or decode failure
)

// String returns the reason name.
func (r Reason) String() string {
	switch r {
	case ReasonNatural:
		return "natural"
	case ReasonSkipped:
		return "skipped"
	case ReasonError:
		return "error"
	default:
		return "unknown"
	}
}

// EventKind identifies a backend lifecycle event.
type EventKind int

const (
	EventStarted EventKind = iota
	EventFinished
)

// Event is a backend lifecycle notification.
type Event struct {
	Kind   EventKind
	Gen    Gen
	Reason Reason // EventFinished only
	Err    error  // detail for ReasonError
}

// Package errors.
var (
	// ErrNoBackend means no supported audio player binary was found.
	// Permanent: every Play fails until the host is fixed.
	ErrNoBackend = errors.New("backend: no supported audio player found")

	// ErrNoSession is returned by controls that need an active session.
	ErrNoSession = errors.New("backend: no active play session")
)

// ipcTimeout bounds every mpv IPC round trip.
const ipcTimeout = 5 * time.Second

// Backend plays one local file at a time.
type Backend interface {
	// Name identifies the variant ("mpv" or "ffplay").
	Name() string

	// Play starts a new session at the given offset, implicitly ending any
	// prior session without a terminal event for it. Returns the session
	// generation.
	Play(path string, offset time.Duration) (Gen, error)

	// Pause and Resume are no-ops without an active session.
	Pause() error
	Resume() error

	// Seek jumps to an absolute position. The restart variant implements
	// this as a transparent stop/relaunch.
	Seek(pos time.Duration) error

	// UpdateFilters installs an opaque audio filter chain, with the same
	// dual-path behavior as Seek.
	UpdateFilters(chain string) error

	// Stop forcibly ends the session. Exactly one terminal event
	// (skipped or error) follows, never silence.
	Stop() error

	// Events delivers Started and Finished notifications.
	Events() <-chan Event

	// Close tears down the backend and any running process.
	Close() error
}
