package backend

import (
	"fmt"
	"os/exec"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Ffplay is the restart-based backend variant. ffplay has no control
// channel, so pause, seek and filter updates all work by killing the
// process and relaunching it at the right offset. The session survives
// restarts: callers observe one Started and one terminal event per Play,
// exactly like the mpv variant.
type Ffplay struct {
	binary string
	log    *logrus.Entry
	events chan Event

	mu      sync.Mutex
	gen     Gen
	sess    *ffplaySession
	filters string
}

type ffplaySession struct {
	gen  Gen
	path string
	cmd  *exec.Cmd // nil while paused

	baseOffset time.Duration // offset the current process was launched at
	startedAt  time.Time     // launch instant of the current process

	paused        bool
	pausedElapsed time.Duration // position remembered across the pause kill

	emitted    bool
	stopping   bool
	superseded bool
}

// NewFfplay creates the ffplay backend. No process is spawned until Play.
func NewFfplay(binary string, log *logrus.Entry) *Ffplay {
	return &Ffplay{
		binary: binary,
		log:    log.WithField("backend", "ffplay"),
		events: make(chan Event, eventBufferSize),
	}
}

// Name identifies the variant.
func (f *Ffplay) Name() string { return "ffplay" }

// Events delivers lifecycle notifications.
func (f *Ffplay) Events() <-chan Event { return f.events }

// Play starts a new session for path at the given offset.
func (f *Ffplay) Play(path string, offset time.Duration) (Gen, error) {
	f.mu.Lock()
	f.supersedeLocked()

	f.gen++
	sess := &ffplaySession{gen: f.gen, path: path}
	if err := f.spawnLocked(sess, offset); err != nil {
		f.mu.Unlock()
		return 0, err
	}
	f.sess = sess
	f.mu.Unlock()

	f.log.WithFields(logrus.Fields{"gen": sess.gen, "path": path}).Debug("session started")
	f.events <- Event{Kind: EventStarted, Gen: sess.gen}
	return sess.gen, nil
}

// spawnLocked launches one ffplay process for sess at offset and watches
// its exit. Caller must hold the lock.
func (f *Ffplay) spawnLocked(sess *ffplaySession, offset time.Duration) error {
	args := []string{"-nodisp", "-autoexit", "-hide_banner", "-loglevel", "error"}
	if offset > 0 {
		args = append(args, "-ss", fmt.Sprintf("%.3f", offset.Seconds()))
	}
	if f.filters != "" {
		args = append(args, "-af", f.filters)
	}
	args = append(args, sess.path)

	cmd := exec.Command(f.binary, args...)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start ffplay: %w", err)
	}

	sess.cmd = cmd
	sess.baseOffset = offset
	sess.startedAt = time.Now()

	go f.waitLoop(sess, cmd)
	return nil
}

// waitLoop observes one process exit. The exit code is the only completion
// signal this variant has: zero means the file played through (-autoexit),
// anything else is a kill or a decode failure.
func (f *Ffplay) waitLoop(sess *ffplaySession, cmd *exec.Cmd) {
	err := cmd.Wait()

	f.mu.Lock()
	// killCurrentLocked replaces or nils sess.cmd before the kill, so an
	// exit whose cmd is no longer current is control-induced and the
	// session continues. Only the exit of the current process counts.
	if sess.cmd != cmd {
		f.mu.Unlock()
		return
	}
	if sess.emitted || sess.superseded {
		f.mu.Unlock()
		return
	}
	sess.emitted = true

	reason := ReasonNatural
	switch {
	case sess.stopping:
		reason = ReasonSkipped
		err = nil
	case err != nil:
		reason = ReasonError
	}
	if f.sess == sess {
		f.sess = nil
	}
	f.mu.Unlock()

	f.log.WithFields(logrus.Fields{"gen": sess.gen, "reason": reason}).Debug("session finished")
	f.events <- Event{Kind: EventFinished, Gen: sess.gen, Reason: reason, Err: err}
}

// elapsedLocked returns the session position. Caller must hold the lock.
func (s *ffplaySession) elapsedLocked() time.Duration {
	if s.paused {
		return s.pausedElapsed
	}
	return s.baseOffset + time.Since(s.startedAt)
}

// killCurrentLocked kills the running process as a control action, keeping
// the session alive. Caller must hold the lock.
func (f *Ffplay) killCurrentLocked(sess *ffplaySession) {
	if sess.cmd == nil || sess.cmd.Process == nil {
		return
	}
	_ = sess.cmd.Process.Kill()
	sess.cmd = nil
}

// Pause kills the process and remembers the elapsed position.
func (f *Ffplay) Pause() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	sess := f.sess
	if sess == nil || sess.emitted || sess.paused {
		return nil
	}
	sess.pausedElapsed = sess.elapsedLocked()
	f.killCurrentLocked(sess)
	sess.paused = true
	return nil
}

// Resume relaunches at the remembered position.
func (f *Ffplay) Resume() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	sess := f.sess
	if sess == nil || sess.emitted || !sess.paused {
		return nil
	}
	if err := f.spawnLocked(sess, sess.pausedElapsed); err != nil {
		return err
	}
	sess.paused = false
	return nil
}

// Seek restarts the process at the new offset. No intermediate event is
// surfaced; from the caller's view this is the same as mpv's live seek.
func (f *Ffplay) Seek(pos time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	sess := f.sess
	if sess == nil || sess.emitted {
		return ErrNoSession
	}
	if sess.paused {
		sess.pausedElapsed = pos
		return nil
	}
	f.killCurrentLocked(sess)
	return f.spawnLocked(sess, pos)
}

// UpdateFilters installs the chain, restarting at the current offset when
// playing (audible gap, inherent to this variant).
func (f *Ffplay) UpdateFilters(chain string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.filters = chain
	sess := f.sess
	if sess == nil || sess.emitted || sess.paused {
		return nil
	}
	pos := sess.elapsedLocked()
	f.killCurrentLocked(sess)
	return f.spawnLocked(sess, pos)
}

// Stop forcibly ends the session with exactly one terminal event.
func (f *Ffplay) Stop() error {
	f.mu.Lock()
	sess := f.sess
	if sess == nil || sess.emitted {
		f.mu.Unlock()
		return nil
	}
	sess.stopping = true

	if sess.paused {
		// No process to reap; emit the terminal event directly.
		sess.emitted = true
		f.sess = nil
		gen := sess.gen
		f.mu.Unlock()
		f.events <- Event{Kind: EventFinished, Gen: gen, Reason: ReasonSkipped}
		return nil
	}

	cmd := sess.cmd
	f.mu.Unlock()

	if cmd != nil && cmd.Process != nil {
		_ = cmd.Process.Kill()
	}
	return nil
}

// supersedeLocked silently ends the current session. Caller must hold the
// lock.
func (f *Ffplay) supersedeLocked() {
	if f.sess == nil {
		return
	}
	f.sess.superseded = true
	if f.sess.cmd != nil && f.sess.cmd.Process != nil {
		_ = f.sess.cmd.Process.Kill()
	}
	f.sess = nil
}

// Close tears down any running process.
func (f *Ffplay) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.supersedeLocked()
	return nil
}
