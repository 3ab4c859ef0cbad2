package backend

import (
	"sync"
	"time"
)

// PlayCall records one Play invocation on the mock.
type PlayCall struct {
	Path   string
	Offset time.Duration
}

// Mock is a test double for Backend. Tests drive completion explicitly via
// FinishNatural/FinishError or raw Emit.
type Mock struct {
	mu sync.Mutex

	PlayErr error // scripted Play failure

	gen    Gen
	active bool

	playCalls   []PlayCall
	pauseCalls  int
	resumeCalls int
	seekCalls   []time.Duration
	filterCalls []string
	stopCalls   int

	events chan Event
}

// NewMock creates a mock backend.
func NewMock() *Mock {
	return &Mock{events: make(chan Event, eventBufferSize)}
}

// Name identifies the variant.
func (m *Mock) Name() string { return "mock" }

// Events delivers scripted lifecycle notifications.
func (m *Mock) Events() <-chan Event { return m.events }

// Play records the call and emits Started.
func (m *Mock) Play(path string, offset time.Duration) (Gen, error) {
	m.mu.Lock()
	if m.PlayErr != nil {
		err := m.PlayErr
		m.mu.Unlock()
		return 0, err
	}
	m.gen++
	m.active = true
	gen := m.gen
	m.playCalls = append(m.playCalls, PlayCall{Path: path, Offset: offset})
	m.mu.Unlock()

	m.events <- Event{Kind: EventStarted, Gen: gen}
	return gen, nil
}

// Pause records the call.
func (m *Mock) Pause() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pauseCalls++
	return nil
}

// Resume records the call.
func (m *Mock) Resume() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resumeCalls++
	return nil
}

// Seek records the target position.
func (m *Mock) Seek(pos time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seekCalls = append(m.seekCalls, pos)
	return nil
}

// UpdateFilters records the chain.
func (m *Mock) UpdateFilters(chain string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.filterCalls = append(m.filterCalls, chain)
	return nil
}

// Stop emits Finished{skipped} for the active session, once.
func (m *Mock) Stop() error {
	m.mu.Lock()
	m.stopCalls++
	if !m.active {
		m.mu.Unlock()
		return nil
	}
	m.active = false
	gen := m.gen
	m.mu.Unlock()

	m.events <- Event{Kind: EventFinished, Gen: gen, Reason: ReasonSkipped}
	return nil
}

// Close is a no-op.
func (m *Mock) Close() error { return nil }

// FinishNatural simulates end-of-stream for the active session.
func (m *Mock) FinishNatural() {
	m.mu.Lock()
	if !m.active {
		m.mu.Unlock()
		return
	}
	m.active = false
	gen := m.gen
	m.mu.Unlock()

	m.events <- Event{Kind: EventFinished, Gen: gen, Reason: ReasonNatural}
}

// FinishError simulates a playback failure for the active session.
func (m *Mock) FinishError(err error) {
	m.mu.Lock()
	if !m.active {
		m.mu.Unlock()
		return
	}
	m.active = false
	gen := m.gen
	m.mu.Unlock()

	m.events <- Event{Kind: EventFinished, Gen: gen, Reason: ReasonError, Err: err}
}

// Emit injects a raw event, bypassing session bookkeeping. Used to simulate
// stale or racing completion signals.
func (m *Mock) Emit(e Event) {
	m.events <- e
}

// CurrentGen returns the generation of the most recent Play.
func (m *Mock) CurrentGen() Gen {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.gen
}

// PlayCalls returns every recorded Play invocation.
func (m *Mock) PlayCalls() []PlayCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]PlayCall, len(m.playCalls))
	copy(out, m.playCalls)
	return out
}

// PauseCalls returns the number of Pause invocations.
func (m *Mock) PauseCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pauseCalls
}

// ResumeCalls returns the number of Resume invocations.
func (m *Mock) ResumeCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.resumeCalls
}

// SeekCalls returns every recorded seek target.
func (m *Mock) SeekCalls() []time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]time.Duration, len(m.seekCalls))
	copy(out, m.seekCalls)
	return out
}

// FilterCalls returns every recorded filter chain.
func (m *Mock) FilterCalls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.filterCalls))
	copy(out, m.filterCalls)
	return out
}

// StopCalls returns the number of Stop invocations.
func (m *Mock) StopCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stopCalls
}

// Verify Mock implements Backend at compile time.
var _ Backend = (*Mock)(nil)
