// Package playback implements the playback orchestrator: a single-writer
// actor that pulls from the queue, drives the audio backend, and applies
// repeat/shuffle policy.
package playback

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/lhoume/jukebox/internal/backend"
	"github.com/lhoume/jukebox/internal/queue"
	"github.com/lhoume/jukebox/internal/resolver"
)

// ErrNothingPlaying is returned by controls that need a current song.
var ErrNothingPlaying = errors.New("playback: nothing playing")

// StateSnapshot is the slice of orchestrator state that survives restarts.
type StateSnapshot struct {
	Repeat      RepeatMode
	Shuffle     bool
	SongsPlayed int
}

// Status is a consistent read of the orchestrator for display surfaces.
type Status struct {
	Phase       Phase
	Repeat      RepeatMode
	Shuffle     bool
	SongsPlayed int
	Current     *Song
	Elapsed     time.Duration
}

// attempt tracks one playback attempt. finished guards the exactly-once
// finish handling: a natural end-of-stream and a forced skip can race to
// signal completion, and only the first may act.
type attempt struct {
	gen      backend.Gen
	item     queue.Item
	finished bool
}

type resolveOutcome struct {
	itemID string
	res    *resolver.Result
	err    error
}

// Orchestrator owns all playback state. One goroutine (the run loop)
// performs every mutation; public methods post messages into its mailbox,
// so readers never observe a half-applied transition.
type Orchestrator struct {
	queue    *queue.Queue
	backend  backend.Backend
	resolver resolver.Resolver
	log      *logrus.Entry

	transitionDelay time.Duration

	cmds      chan func()
	resolveCh chan resolveOutcome
	done      chan struct{}
	stopped   chan struct{}

	// State below is owned by the run loop.
	phase         Phase
	repeat        RepeatMode
	shuffle       bool
	songsPlayed   int
	current       *Song
	attempt       *attempt
	resolving     bool
	resolvingID   string
	skipPending   bool
	pausePending  bool
	replayBuffer  []queue.Item
	transitionSeq int

	subsMu sync.RWMutex
	subs   []*Subscription

	onState func(StateSnapshot)
}

// New creates an orchestrator. Call Run to start it.
func New(q *queue.Queue, b backend.Backend, r resolver.Resolver, transitionDelay time.Duration, log *logrus.Entry) *Orchestrator {
	return &Orchestrator{
		queue:           q,
		backend:         b,
		resolver:        r,
		log:             log,
		transitionDelay: transitionDelay,
		cmds:            make(chan func(), 64),
		resolveCh:       make(chan resolveOutcome, 4),
		done:            make(chan struct{}),
		stopped:         make(chan struct{}),
		phase:           PhaseIdle,
	}
}

// SetStateSink registers a callback invoked from the run loop whenever the
// persisted state slice changes. Must be called before Run.
func (o *Orchestrator) SetStateSink(fn func(StateSnapshot)) {
	o.onState = fn
}

// Restore applies a saved snapshot. Must be called before Run.
func (o *Orchestrator) Restore(s StateSnapshot) {
	o.repeat = s.Repeat
	o.shuffle = s.Shuffle
	o.songsPlayed = s.SongsPlayed
}

// Run starts the actor loop and the initial queue check.
func (o *Orchestrator) Run() {
	go o.loop()
	o.post(func() { o.maybeStartNext() })
}

// Close shuts the orchestrator down, ending any active backend session.
func (o *Orchestrator) Close() error {
	select {
	case <-o.done:
		return nil
	default:
	}
	close(o.done)
	<-o.stopped

	_ = o.backend.Stop()

	o.subsMu.Lock()
	for _, sub := range o.subs {
		sub.close()
	}
	o.subs = nil
	o.subsMu.Unlock()
	return nil
}

// Subscribe creates a new event subscription.
func (o *Orchestrator) Subscribe() *Subscription {
	o.subsMu.Lock()
	defer o.subsMu.Unlock()
	sub := newSubscription()
	o.subs = append(o.subs, sub)
	return sub
}

func (o *Orchestrator) loop() {
	defer close(o.stopped)
	for {
		select {
		case fn := <-o.cmds:
			fn()
		case ev := <-o.backend.Events():
			o.handleBackendEvent(ev)
		case out := <-o.resolveCh:
			o.handleResolved(out)
		case <-o.done:
			return
		}
	}
}

// post delivers fn to the run loop.
func (o *Orchestrator) post(fn func()) {
	select {
	case o.cmds <- fn:
	case <-o.done:
	}
}

// call posts fn and waits for the loop to execute it.
func (o *Orchestrator) call(fn func()) {
	ran := make(chan struct{})
	o.post(func() {
		fn()
		close(ran)
	})
	select {
	case <-ran:
	case <-o.stopped:
	}
}

// ---- public API ----------------------------------------------------------

// Enqueue adds an item and starts playback if idle. Returns the stored item
// and false if the queue rejected it as a duplicate.
func (o *Orchestrator) Enqueue(item queue.Item) (queue.Item, bool) {
	var (
		stored queue.Item
		ok     bool
	)
	o.call(func() {
		stored, ok = o.queue.Add(item)
		if ok {
			o.maybeStartNext()
		}
	})
	return stored, ok
}

// RemoveAt removes the queued item at index.
func (o *Orchestrator) RemoveAt(index int) *queue.Item {
	var removed *queue.Item
	o.call(func() { removed = o.queue.RemoveAt(index) })
	return removed
}

// Move reorders the queue.
func (o *Orchestrator) Move(from, to int) bool {
	var ok bool
	o.call(func() { ok = o.queue.Reorder(from, to) })
	return ok
}

// ClearQueue empties the queue and the repeat-all replay buffer.
func (o *Orchestrator) ClearQueue() {
	o.call(func() {
		o.queue.Clear()
		o.replayBuffer = nil
	})
}

// Pause suspends the current song. A pause arriving while a selection is
// still resolving is remembered and applied once playback starts.
func (o *Orchestrator) Pause() error {
	var err error
	o.call(func() { err = o.pauseLocked() })
	return err
}

func (o *Orchestrator) pauseLocked() error {
	if o.resolving {
		o.pausePending = true
		return nil
	}
	if o.phase != PhasePlaying || o.current == nil || o.current.IsPaused() {
		return ErrNothingPlaying
	}
	if err := o.backend.Pause(); err != nil {
		o.log.WithError(err).Warn("backend pause failed")
		return err
	}
	o.current.pause(time.Now())
	o.setPhase(PhasePaused)
	return nil
}

// Resume continues a paused song.
func (o *Orchestrator) Resume() error {
	var err error
	o.call(func() { err = o.resumeLocked() })
	return err
}

func (o *Orchestrator) resumeLocked() error {
	if o.phase != PhasePaused || o.current == nil {
		return ErrNothingPlaying
	}
	if err := o.backend.Resume(); err != nil {
		o.log.WithError(err).Warn("backend resume failed")
		return err
	}
	o.current.resume(time.Now())
	o.setPhase(PhasePlaying)
	return nil
}

// Skip requests the current song to stop. The phase change happens when the
// backend's terminal event arrives. A skip during resolution is remembered
// and applied once playback starts.
func (o *Orchestrator) Skip() error {
	var err error
	o.call(func() {
		if o.resolving {
			o.skipPending = true
			return
		}
		if o.current == nil {
			err = ErrNothingPlaying
			return
		}
		o.setPhase(PhaseTransitioning)
		if stopErr := o.backend.Stop(); stopErr != nil {
			o.log.WithError(stopErr).Warn("backend stop failed")
		}
	})
	return err
}

// Seek jumps to an absolute position, clamped to the song bounds. Seeking
// always resumes playback.
func (o *Orchestrator) Seek(pos time.Duration) (time.Duration, error) {
	var (
		effective time.Duration
		err       error
	)
	o.call(func() {
		if o.current == nil || !o.phase.IsActive() {
			err = ErrNothingPlaying
			return
		}
		now := time.Now()
		wasPaused := o.current.IsPaused()
		effective = o.current.seekTo(pos, now)
		if seekErr := o.backend.Seek(effective); seekErr != nil {
			err = seekErr
			return
		}
		if wasPaused {
			if resumeErr := o.backend.Resume(); resumeErr != nil {
				o.log.WithError(resumeErr).Warn("backend resume after seek failed")
			}
		}
		o.setPhase(PhasePlaying)
	})
	return effective, err
}

// UpdateFilters forwards an opaque filter chain to the backend.
func (o *Orchestrator) UpdateFilters(chain string) error {
	var err error
	o.call(func() { err = o.backend.UpdateFilters(chain) })
	return err
}

// SetRepeat changes the repeat mode.
func (o *Orchestrator) SetRepeat(mode RepeatMode) {
	o.call(func() {
		if o.repeat == mode {
			return
		}
		o.repeat = mode
		o.emitMode()
		o.notifyState()
	})
}

// SetShuffle toggles weighted random selection.
func (o *Orchestrator) SetShuffle(enabled bool) {
	o.call(func() {
		if o.shuffle == enabled {
			return
		}
		o.shuffle = enabled
		o.emitMode()
		o.notifyState()
	})
}

// Prod asks the orchestrator to re-check the queue. Used after external
// queue mutations (restore, repopulation).
func (o *Orchestrator) Prod() {
	o.post(func() { o.maybeStartNext() })
}

// Status returns a consistent snapshot of the orchestrator state.
func (o *Orchestrator) Status() Status {
	var st Status
	o.call(func() {
		st = Status{
			Phase:       o.phase,
			Repeat:      o.repeat,
			Shuffle:     o.shuffle,
			SongsPlayed: o.songsPlayed,
		}
		if o.current != nil {
			song := *o.current
			st.Current = &song
			st.Elapsed = song.Elapsed(time.Now())
		}
	})
	return st
}

// ---- run-loop internals --------------------------------------------------

func (o *Orchestrator) setPhase(p Phase) {
	if o.phase == p {
		return
	}
	prev := o.phase
	o.phase = p
	o.log.WithFields(logrus.Fields{"from": prev, "to": p}).Debug("phase change")
	o.forEachSub(func(s *Subscription) { s.sendPhase(PhaseChange{Previous: prev, Current: p}) })
}

func (o *Orchestrator) emitMode() {
	o.forEachSub(func(s *Subscription) {
		s.sendMode(ModeChange{Repeat: o.repeat, Shuffle: o.shuffle})
	})
}

func (o *Orchestrator) emitSong(prev, cur *queue.Item) {
	o.forEachSub(func(s *Subscription) { s.sendSong(SongChange{Previous: prev, Current: cur}) })
}

func (o *Orchestrator) emitError(op, content string, err error) {
	o.log.WithError(err).WithFields(logrus.Fields{"op": op, "content": content}).Warn("playback error")
	o.forEachSub(func(s *Subscription) { s.sendError(ErrorEvent{Op: op, Content: content, Err: err}) })
}

func (o *Orchestrator) forEachSub(fn func(*Subscription)) {
	o.subsMu.RLock()
	defer o.subsMu.RUnlock()
	for _, sub := range o.subs {
		fn(sub)
	}
}

func (o *Orchestrator) notifyState() {
	if o.onState == nil {
		return
	}
	o.onState(StateSnapshot{Repeat: o.repeat, Shuffle: o.shuffle, SongsPlayed: o.songsPlayed})
}

// maybeStartNext begins a transition if idle and something is queued.
// With repeat-all, an empty queue refills from the replay buffer first.
func (o *Orchestrator) maybeStartNext() {
	if o.phase != PhaseIdle {
		return
	}

	items := o.queue.Snapshot()
	if len(items) == 0 {
		if o.repeat == RepeatAll && len(o.replayBuffer) > 0 {
			o.repopulateFromReplay()
			items = o.queue.Snapshot()
		}
		if len(items) == 0 {
			return
		}
	}

	o.setPhase(PhaseTransitioning)

	index := 0
	if o.shuffle {
		index = weightedIndex(items)
	}
	item := items[index]

	if item.Kind == queue.KindURL && item.DownloadStatus != queue.StatusReady {
		o.beginResolve(item)
		return
	}
	o.startPlayback(item)
}

// repopulateFromReplay re-enqueues every finished-song snapshot, reshuffled
// with the same weighted draw when shuffle is on. Replayed songs keep their
// original priority flag, so their shuffle weight persists across cycles.
func (o *Orchestrator) repopulateFromReplay() {
	items := o.replayBuffer
	o.replayBuffer = nil
	if o.shuffle {
		items = weightedShuffle(items)
	}
	o.log.WithField("count", len(items)).Info("repeat-all: repopulating queue")
	o.queue.Append(items...)
}

// beginResolve resolves the selected url item on a helper goroutine. The
// run loop keeps draining its mailbox meanwhile, so control inputs arriving
// during resolution are queued, not dropped.
func (o *Orchestrator) beginResolve(item queue.Item) {
	o.resolving = true
	o.resolvingID = item.ID

	o.queue.Update(item.ID, func(it *queue.Item) {
		it.DownloadStatus = queue.StatusPreparing
	})

	content := item.Content
	id := item.ID
	go func() {
		res, err := o.resolver.Resolve(context.Background(), content, func(p resolver.Progress) {
			o.queue.Update(id, func(it *queue.Item) {
				it.DownloadStatus = queue.StatusDownloading
				it.DownloadProgress = p.Percent
			})
		})
		select {
		case o.resolveCh <- resolveOutcome{itemID: id, res: res, err: err}:
		case <-o.done:
		}
	}()
}

func (o *Orchestrator) handleResolved(out resolveOutcome) {
	if !o.resolving || out.itemID != o.resolvingID {
		// Stale outcome from an abandoned attempt.
		return
	}
	o.resolving = false
	o.resolvingID = ""

	item, inQueue := o.queue.Get(out.itemID)
	if !inQueue {
		// Removed while resolving; discard the result and move on.
		o.skipPending = false
		o.pausePending = false
		o.setPhase(PhaseIdle)
		o.maybeStartNext()
		return
	}

	if out.err != nil {
		o.queue.Update(out.itemID, func(it *queue.Item) {
			it.DownloadStatus = queue.StatusError
		})
		o.queue.RemoveByID(out.itemID)
		o.emitError("resolve", item.Content, out.err)
		o.failTransition()
		return
	}

	o.queue.Update(out.itemID, func(it *queue.Item) {
		if it.SourceURL == "" {
			it.SourceURL = it.Content
		}
		it.Kind = queue.KindFile
		it.Content = out.res.FilePath
		if out.res.Title != "" {
			it.Title = out.res.Title
		}
		if out.res.Artist != "" {
			it.Artist = out.res.Artist
		}
		if out.res.ThumbnailPath != "" {
			it.Thumbnail = out.res.ThumbnailPath
		}
		if out.res.Duration > 0 {
			it.Duration = out.res.Duration
		}
		it.DownloadStatus = queue.StatusReady
		it.DownloadProgress = 100
	})

	updated, _ := o.queue.Get(out.itemID)
	o.startPlayback(updated)
}

// startPlayback removes the item from the queue and hands it to the
// backend. The removal happens only after the file is confirmed on disk,
// immediately before Play.
func (o *Orchestrator) startPlayback(item queue.Item) {
	if _, err := os.Stat(item.Content); err != nil {
		o.queue.RemoveByID(item.ID)
		o.emitError("play", item.Content, fmt.Errorf("file missing at play time: %w", err))
		o.failTransition()
		return
	}

	o.queue.RemoveByID(item.ID)

	gen, err := o.backend.Play(item.Content, 0)
	if err != nil {
		o.emitError("play", item.Content, err)
		if errors.Is(err, backend.ErrNoBackend) {
			// Permanent: no player exists. Do not spin on the rest of
			// the queue.
			o.setPhase(PhaseIdle)
			return
		}
		o.failTransition()
		return
	}

	o.attempt = &attempt{gen: gen, item: item}
	prev := o.currentItem()
	o.current = &Song{Item: item, StartTime: time.Now()}
	o.setPhase(PhasePlaying)
	o.emitSong(prev, &item)
	o.log.WithFields(logrus.Fields{"title": item.Title, "content": item.Content}).Info("playing")

	o.applyPendingControls()
}

// applyPendingControls applies pause/skip requests that arrived while the
// selection was still resolving.
func (o *Orchestrator) applyPendingControls() {
	if o.skipPending {
		o.skipPending = false
		o.pausePending = false
		o.setPhase(PhaseTransitioning)
		if err := o.backend.Stop(); err != nil {
			o.log.WithError(err).Warn("backend stop failed")
		}
		return
	}
	if o.pausePending {
		o.pausePending = false
		if err := o.pauseLocked(); err != nil {
			o.log.WithError(err).Debug("pending pause not applicable")
		}
	}
}

func (o *Orchestrator) currentItem() *queue.Item {
	if o.current == nil {
		return nil
	}
	item := o.current.Item
	return &item
}

func (o *Orchestrator) handleBackendEvent(ev backend.Event) {
	switch ev.Kind {
	case backend.EventStarted:
		// Informational; phase moved when Play returned.
	case backend.EventFinished:
		if o.attempt == nil || ev.Gen != o.attempt.gen {
			o.log.WithField("gen", ev.Gen).Debug("discarding stale completion event")
			return
		}
		if o.attempt.finished {
			// Natural end and forced skip raced; first signal won.
			return
		}
		o.attempt.finished = true
		o.handleFinish(ev)
	}
}

// handleFinish runs exactly once per playback attempt.
func (o *Orchestrator) handleFinish(ev backend.Event) {
	finished := o.attempt.item
	prev := o.currentItem()

	if ev.Reason == backend.ReasonError && ev.Err != nil {
		o.emitError("play", finished.Content, ev.Err)
	}

	// Repeat-one restarts the same file on a natural finish: the queue does
	// not advance, songsPlayed does not increment, the file is kept.
	if ev.Reason == backend.ReasonNatural && o.repeat == RepeatOne {
		o.setPhase(PhaseTransitioning)
		o.scheduleRestart(finished)
		return
	}

	if ev.Reason == backend.ReasonNatural {
		o.songsPlayed++
		o.notifyState()
		// Only songs that played through come back in the next repeat-all
		// cycle; a skip is a rejection, not a deferral.
		if o.repeat == RepeatAll {
			o.replayBuffer = append(o.replayBuffer, finished)
		}
	}

	o.current = nil
	o.attempt = nil
	o.emitSong(prev, nil)
	o.setPhase(PhaseTransitioning)
	o.scheduleAdvance()
}

// scheduleAdvance returns to Idle after the transition delay and re-checks
// the queue. The delay both paces song changes and keeps one failing item
// from wedging the orchestrator in a tight loop.
func (o *Orchestrator) scheduleAdvance() {
	o.transitionSeq++
	seq := o.transitionSeq
	time.AfterFunc(o.transitionDelay, func() {
		o.post(func() {
			if o.transitionSeq != seq || o.phase != PhaseTransitioning {
				return
			}
			o.setPhase(PhaseIdle)
			o.maybeStartNext()
		})
	})
}

// scheduleRestart replays the same file at offset 0 after the transition
// delay (repeat-one).
func (o *Orchestrator) scheduleRestart(item queue.Item) {
	o.transitionSeq++
	seq := o.transitionSeq
	time.AfterFunc(o.transitionDelay, func() {
		o.post(func() {
			if o.transitionSeq != seq || o.phase != PhaseTransitioning {
				return
			}
			gen, err := o.backend.Play(item.Content, 0)
			if err != nil {
				o.emitError("play", item.Content, err)
				o.current = nil
				o.attempt = nil
				o.scheduleAdvance()
				return
			}
			o.attempt = &attempt{gen: gen, item: item}
			o.current = &Song{Item: item, StartTime: time.Now()}
			o.setPhase(PhasePlaying)
		})
	})
}

// failTransition leaves the failed attempt behind after the transition
// delay; the system must never wedge because one item failed.
func (o *Orchestrator) failTransition() {
	o.current = nil
	o.attempt = nil
	o.skipPending = false
	o.pausePending = false
	o.scheduleAdvance()
}
