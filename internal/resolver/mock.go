package resolver

import (
	"context"
	"sync"
	"time"
)

// Mock is a test double for Resolver.
type Mock struct {
	mu sync.Mutex

	// Results maps url/query to a scripted outcome.
	Results map[string]*Result
	// Errs maps url/query to a scripted failure.
	Errs map[string]error
	// Delay is applied before every resolution completes.
	Delay time.Duration

	calls    []string
	inFlight int
	maxSeen  int
}

// NewMock creates an empty mock resolver.
func NewMock() *Mock {
	return &Mock{
		Results: map[string]*Result{},
		Errs:    map[string]error{},
	}
}

// Resolve returns the scripted result for urlOrQuery.
func (m *Mock) Resolve(ctx context.Context, urlOrQuery string, onProgress func(Progress)) (*Result, error) {
	m.mu.Lock()
	m.calls = append(m.calls, urlOrQuery)
	m.inFlight++
	if m.inFlight > m.maxSeen {
		m.maxSeen = m.inFlight
	}
	delay := m.Delay
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.inFlight--
		m.mu.Unlock()
	}()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if onProgress != nil {
		onProgress(Progress{Percent: 50, Status: "downloading"})
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if err, ok := m.Errs[urlOrQuery]; ok {
		return nil, err
	}
	if res, ok := m.Results[urlOrQuery]; ok {
		copied := *res
		return &copied, nil
	}
	return &Result{FilePath: "/resolved/" + urlOrQuery, Title: urlOrQuery}, nil
}

// Calls returns every urlOrQuery passed to Resolve, in order.
func (m *Mock) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.calls))
	copy(out, m.calls)
	return out
}

// MaxInFlight returns the highest number of concurrent resolutions observed.
func (m *Mock) MaxInFlight() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.maxSeen
}
