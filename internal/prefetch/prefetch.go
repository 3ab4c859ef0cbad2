// Package prefetch downloads upcoming queue items in the background so
// playback transitions do not wait on the network.
package prefetch

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/lhoume/jukebox/internal/queue"
	"github.com/lhoume/jukebox/internal/resolver"
)

const (
	defaultLookahead   = 3
	defaultConcurrency = 2

	defaultInitialDelay = 2000 * time.Millisecond
	defaultMinDelay     = 1000 * time.Millisecond
	defaultMaxRateDelay = 10000 * time.Millisecond
	defaultMaxErrDelay  = 5000 * time.Millisecond

	successStep = 100 * time.Millisecond
	errorStep   = 500 * time.Millisecond
)

// Options tunes the scheduler. Zero values take defaults.
type Options struct {
	// Lookahead is how many queue positions from the head are eligible.
	Lookahead int
	// Concurrency bounds simultaneous downloads.
	Concurrency int
	// InitialDelay is the starting gap between download launches. The gap
	// adapts: it shrinks on success and grows on failure.
	InitialDelay time.Duration
	MinDelay     time.Duration
	MaxRateDelay time.Duration
	MaxErrDelay  time.Duration
}

func (o Options) withDefaults() Options {
	if o.Lookahead <= 0 {
		o.Lookahead = defaultLookahead
	}
	if o.Concurrency <= 0 {
		o.Concurrency = defaultConcurrency
	}
	if o.InitialDelay <= 0 {
		o.InitialDelay = defaultInitialDelay
	}
	if o.MinDelay <= 0 {
		o.MinDelay = defaultMinDelay
	}
	if o.MaxRateDelay <= 0 {
		o.MaxRateDelay = defaultMaxRateDelay
	}
	if o.MaxErrDelay <= 0 {
		o.MaxErrDelay = defaultMaxErrDelay
	}
	return o
}

// scanRequest describes one pass over the queue. window <= 0 means the
// whole queue; retryFailed lets the pass pick up items whose previous
// download ended in error.
type scanRequest struct {
	window      int
	retryFailed bool
}

// Scheduler watches the queue head and resolves url items ahead of
// playback. It never touches items the orchestrator is already resolving:
// pending items are eligible, plus previously failed ones on an explicit
// prefetch request.
type Scheduler struct {
	queue    *queue.Queue
	resolver resolver.Resolver
	log      *logrus.Entry
	opts     Options

	sem  chan struct{}
	kick chan scanRequest
	done chan struct{}
	wg   sync.WaitGroup

	mu        sync.Mutex
	claimed   map[string]bool
	delay     time.Duration
	nextStart time.Time
}

// New creates a scheduler. Call Start to begin watching.
func New(q *queue.Queue, r resolver.Resolver, opts Options, log *logrus.Entry) *Scheduler {
	opts = opts.withDefaults()
	return &Scheduler{
		queue:    q,
		resolver: r,
		log:      log,
		opts:     opts,
		sem:      make(chan struct{}, opts.Concurrency),
		kick:     make(chan scanRequest, 8),
		done:     make(chan struct{}),
		claimed:  map[string]bool{},
		delay:    opts.InitialDelay,
	}
}

// Start launches the scheduler loop.
func (s *Scheduler) Start() {
	s.wg.Add(1)
	go s.loop()
}

// Close stops the scheduler and waits for in-flight downloads to settle.
func (s *Scheduler) Close() {
	select {
	case <-s.done:
		return
	default:
	}
	close(s.done)
	s.wg.Wait()
}

// Kick requests an explicit prefetch pass. count = 0 warms the entire
// queue; count > 0 limits the pass to the first count positions. Explicit
// passes also pick up items whose previous download failed.
func (s *Scheduler) Kick(count int) {
	s.request(scanRequest{window: count, retryFailed: true})
}

// Poke schedules a routine re-scan of the lookahead window. Called from
// queue listeners and on song changes; safe to call often.
func (s *Scheduler) Poke() {
	s.request(scanRequest{window: s.opts.Lookahead})
}

func (s *Scheduler) request(req scanRequest) {
	select {
	case s.kick <- req:
	case <-s.done:
	default:
		// A scan is already pending; it will see the current queue.
	}
}

func (s *Scheduler) loop() {
	defer s.wg.Done()
	for {
		select {
		case req := <-s.kick:
			s.scan(req)
		case <-s.done:
			return
		}
	}
}

// scan claims eligible items within the window and hands them to workers.
func (s *Scheduler) scan(req scanRequest) {
	items := s.queue.Snapshot()
	if req.window > 0 && len(items) > req.window {
		items = items[:req.window]
	}

	for _, item := range items {
		if item.Kind != queue.KindURL || !eligible(item, req.retryFailed) {
			continue
		}
		if !s.claim(item.ID) {
			continue
		}
		s.wg.Add(1)
		go s.download(item, req.retryFailed)
	}
}

func eligible(item queue.Item, retryFailed bool) bool {
	switch item.DownloadStatus {
	case queue.StatusPending:
		return true
	case queue.StatusError:
		return retryFailed
	default:
		return false
	}
}

func (s *Scheduler) claim(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.claimed[id] {
		return false
	}
	s.claimed[id] = true
	return true
}

func (s *Scheduler) release(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.claimed, id)
}

// reserveStart serializes launch pacing: each download starts no sooner
// than the previous launch plus the current adaptive delay.
func (s *Scheduler) reserveStart() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	if s.nextStart.Before(now) {
		s.nextStart = now
	}
	wait := s.nextStart.Sub(now)
	s.nextStart = s.nextStart.Add(s.delay)
	return wait
}

func (s *Scheduler) download(item queue.Item, retryFailed bool) {
	defer s.wg.Done()
	s.run(item, retryFailed)
	s.release(item.ID)
	s.Poke()
}

func (s *Scheduler) run(item queue.Item, retryFailed bool) {
	if wait := s.reserveStart(); wait > 0 {
		select {
		case <-time.After(wait):
		case <-s.done:
			return
		}
	}

	select {
	case s.sem <- struct{}{}:
	case <-s.done:
		return
	}
	defer func() { <-s.sem }()

	// The item may have been consumed or removed while we waited.
	current, ok := s.queue.Get(item.ID)
	if !ok || !eligible(current, retryFailed) {
		return
	}

	s.queue.Update(item.ID, func(it *queue.Item) {
		it.DownloadStatus = queue.StatusDownloading
		it.DownloadProgress = 0
	})

	res, err := s.resolver.Resolve(context.Background(), item.Content, func(p resolver.Progress) {
		s.queue.Update(item.ID, func(it *queue.Item) {
			it.DownloadProgress = p.Percent
		})
	})

	if err != nil {
		s.handleFailure(item, err)
		return
	}

	s.adjustOnSuccess()

	// If the item left the queue mid-download the result is discarded; the
	// file stays in the download cache for a later request.
	applied := s.queue.Update(item.ID, func(it *queue.Item) {
		if it.SourceURL == "" {
			it.SourceURL = it.Content
		}
		it.Kind = queue.KindFile
		it.Content = res.FilePath
		if res.Title != "" {
			it.Title = res.Title
		}
		if res.Artist != "" {
			it.Artist = res.Artist
		}
		if res.ThumbnailPath != "" {
			it.Thumbnail = res.ThumbnailPath
		}
		if res.Duration > 0 {
			it.Duration = res.Duration
		}
		it.DownloadStatus = queue.StatusReady
		it.DownloadProgress = 100
	})
	if applied {
		s.log.WithFields(logrus.Fields{"title": res.Title, "file": res.FilePath}).Debug("prefetched")
	}
}

// handleFailure marks the item failed. The scheduler never retries in
// place; a failed item waits for an explicit prefetch request. The failure
// class still feeds the adaptive launch gap.
func (s *Scheduler) handleFailure(item queue.Item, err error) {
	if errors.Is(err, resolver.ErrRateLimited) {
		s.adjustOnRateLimit()
		s.log.WithField("content", item.Content).Warn("prefetch rate limited, backing off")
	} else {
		s.adjustOnError()
		s.log.WithError(err).WithField("content", item.Content).Warn("prefetch failed")
	}
	s.queue.Update(item.ID, func(it *queue.Item) {
		it.DownloadStatus = queue.StatusError
		it.DownloadProgress = 0
	})
}

func (s *Scheduler) adjustOnSuccess() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delay -= successStep
	if s.delay < s.opts.MinDelay {
		s.delay = s.opts.MinDelay
	}
}

func (s *Scheduler) adjustOnRateLimit() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delay *= 2
	if s.delay > s.opts.MaxRateDelay {
		s.delay = s.opts.MaxRateDelay
	}
}

func (s *Scheduler) adjustOnError() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delay += errorStep
	if s.delay > s.opts.MaxErrDelay {
		s.delay = s.opts.MaxErrDelay
	}
}

// Delay reports the current adaptive launch gap.
func (s *Scheduler) Delay() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.delay
}
