package backend

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	// Socket connect retry: mpv creates the IPC socket shortly after
	// startup, not atomically with it.
	connectAttempts = 20
	connectBackoff  = 250 * time.Millisecond

	eventBufferSize = 32
)

// MPV is the IPC-controlled backend variant: one mpv process per session,
// controlled live over a unix socket speaking newline-delimited JSON.
type MPV struct {
	binary    string
	socketDir string
	log       *logrus.Entry
	events    chan Event

	mu      sync.Mutex
	gen     Gen
	sess    *mpvSession
	filters string
	reqID   int64
	pending map[int64]chan mpvReply
}

type mpvSession struct {
	gen        Gen
	cmd        *exec.Cmd
	conn       net.Conn
	socketPath string
	emitted    bool
	stopping   bool
	superseded bool
}

type mpvReply struct {
	data json.RawMessage
	err  error
}

// mpvMessage covers both solicited replies and unsolicited events.
type mpvMessage struct {
	RequestID *int64          `json:"request_id"`
	Error     string          `json:"error"`
	Data      json.RawMessage `json:"data"`
	Event     string          `json:"event"`
	Reason    string          `json:"reason"`
}

// NewMPV creates the mpv backend. No process is spawned until Play.
func NewMPV(binary, socketDir string, log *logrus.Entry) *MPV {
	return &MPV{
		binary:    binary,
		socketDir: socketDir,
		log:       log.WithField("backend", "mpv"),
		events:    make(chan Event, eventBufferSize),
		pending:   map[int64]chan mpvReply{},
	}
}

// Name identifies the variant.
func (m *MPV) Name() string { return "mpv" }

// Events delivers lifecycle notifications.
func (m *MPV) Events() <-chan Event { return m.events }

// Play starts a new mpv process for path at the given offset.
func (m *MPV) Play(path string, offset time.Duration) (Gen, error) {
	m.mu.Lock()
	m.supersedeLocked()

	m.gen++
	sess := &mpvSession{
		gen:        m.gen,
		socketPath: filepath.Join(m.socketDir, fmt.Sprintf("jukebox-mpv-%d.sock", m.gen)),
	}
	_ = os.Remove(sess.socketPath)

	args := []string{
		"--no-video",
		"--no-terminal",
		"--idle=no",
		"--input-ipc-server=" + sess.socketPath,
	}
	if offset > 0 {
		args = append(args, fmt.Sprintf("--start=%.3f", offset.Seconds()))
	}
	if m.filters != "" {
		args = append(args, "--af="+m.filters)
	}
	args = append(args, path)

	sess.cmd = exec.Command(m.binary, args...)
	if err := sess.cmd.Start(); err != nil {
		m.mu.Unlock()
		return 0, fmt.Errorf("start mpv: %w", err)
	}
	m.sess = sess
	m.mu.Unlock()

	conn, err := connectWithRetry(sess.socketPath)
	if err != nil {
		m.mu.Lock()
		_ = sess.cmd.Process.Kill()
		sess.superseded = true
		if m.sess == sess {
			m.sess = nil
		}
		m.mu.Unlock()
		_, _ = sess.cmd.Process.Wait()
		return 0, fmt.Errorf("connect mpv ipc: %w", err)
	}

	m.mu.Lock()
	if sess.superseded {
		// A newer Play won the race while we were connecting.
		m.mu.Unlock()
		conn.Close()
		return sess.gen, nil
	}
	sess.conn = conn
	m.mu.Unlock()

	go m.readLoop(sess)
	go m.waitLoop(sess)

	m.log.WithFields(logrus.Fields{"gen": sess.gen, "path": path}).Debug("session started")
	m.events <- Event{Kind: EventStarted, Gen: sess.gen}
	return sess.gen, nil
}

// supersedeLocked silently ends the current session, if any. A superseded
// session emits no terminal event; its generation already distinguishes any
// late exit notification from the new session.
func (m *MPV) supersedeLocked() {
	if m.sess == nil {
		return
	}
	m.sess.superseded = true
	if m.sess.conn != nil {
		m.sess.conn.Close()
	}
	if m.sess.cmd != nil && m.sess.cmd.Process != nil {
		_ = m.sess.cmd.Process.Kill()
	}
	m.sess = nil

	// Drop any stranded IPC waiters.
	for id, ch := range m.pending {
		ch <- mpvReply{err: ErrNoSession}
		delete(m.pending, id)
	}
}

func connectWithRetry(socketPath string) (net.Conn, error) {
	var lastErr error
	for i := 0; i < connectAttempts; i++ {
		conn, err := net.Dial("unix", socketPath)
		if err == nil {
			return conn, nil
		}
		lastErr = err
		time.Sleep(connectBackoff)
	}
	return nil, fmt.Errorf("after %d attempts: %w", connectAttempts, lastErr)
}

// readLoop parses IPC messages for one session until its socket closes.
func (m *MPV) readLoop(sess *mpvSession) {
	scanner := bufio.NewScanner(sess.conn)
	for scanner.Scan() {
		var msg mpvMessage
		if err := json.Unmarshal(scanner.Bytes(), &msg); err != nil {
			continue
		}

		if msg.RequestID != nil {
			m.mu.Lock()
			ch, ok := m.pending[*msg.RequestID]
			delete(m.pending, *msg.RequestID)
			m.mu.Unlock()
			if ok {
				reply := mpvReply{data: msg.Data}
				if msg.Error != "" && msg.Error != "success" {
					reply.err = fmt.Errorf("mpv: %s", msg.Error)
				}
				ch <- reply
			}
			continue
		}

		if msg.Event == "end-file" {
			m.finishSession(sess, endFileReason(msg.Reason), nil)
		}
	}
}

// waitLoop reaps the process and acts as the completion fallback when mpv
// dies without sending end-file.
func (m *MPV) waitLoop(sess *mpvSession) {
	err := sess.cmd.Wait()
	_ = os.Remove(sess.socketPath)

	reason := ReasonNatural
	if err != nil {
		reason = ReasonError
	}
	m.finishSession(sess, reason, err)
}

// finishSession emits the terminal event for sess exactly once, and never
// for superseded sessions.
func (m *MPV) finishSession(sess *mpvSession, reason Reason, err error) {
	m.mu.Lock()
	if sess.emitted || sess.superseded {
		m.mu.Unlock()
		return
	}
	sess.emitted = true
	if sess.stopping {
		reason = ReasonSkipped
		err = nil
	}
	if m.sess == sess {
		m.sess = nil
	}
	m.mu.Unlock()

	m.log.WithFields(logrus.Fields{"gen": sess.gen, "reason": reason}).Debug("session finished")
	m.events <- Event{Kind: EventFinished, Gen: sess.gen, Reason: reason, Err: err}
}

func endFileReason(reason string) Reason {
	switch reason {
	case "eof":
		return ReasonNatural
	case "stop", "quit":
		return ReasonSkipped
	default:
		return ReasonError
	}
}

// command performs one IPC round trip with the 5s timeout.
func (m *MPV) command(args ...any) (json.RawMessage, error) {
	m.mu.Lock()
	sess := m.sess
	if sess == nil || sess.conn == nil || sess.emitted {
		m.mu.Unlock()
		return nil, ErrNoSession
	}
	m.reqID++
	id := m.reqID
	ch := make(chan mpvReply, 1)
	m.pending[id] = ch
	conn := sess.conn
	m.mu.Unlock()

	payload, err := json.Marshal(map[string]any{
		"command":    args,
		"request_id": id,
	})
	if err != nil {
		return nil, err
	}
	payload = append(payload, '\n')

	if _, err := conn.Write(payload); err != nil {
		m.mu.Lock()
		delete(m.pending, id)
		m.mu.Unlock()
		return nil, fmt.Errorf("write ipc command: %w", err)
	}

	select {
	case reply := <-ch:
		return reply.data, reply.err
	case <-time.After(ipcTimeout):
		m.mu.Lock()
		delete(m.pending, id)
		m.mu.Unlock()
		return nil, fmt.Errorf("ipc command timed out after %s", ipcTimeout)
	}
}

// Pause suspends playback via a live control message.
func (m *MPV) Pause() error {
	_, err := m.command("set_property", "pause", true)
	return err
}

// Resume continues playback.
func (m *MPV) Resume() error {
	_, err := m.command("set_property", "pause", false)
	return err
}

// Seek jumps to an absolute position without interrupting the stream.
func (m *MPV) Seek(pos time.Duration) error {
	_, err := m.command("seek", pos.Seconds(), "absolute")
	return err
}

// UpdateFilters swaps the audio filter chain live, no audio gap.
func (m *MPV) UpdateFilters(chain string) error {
	m.mu.Lock()
	m.filters = chain
	active := m.sess != nil && m.sess.conn != nil && !m.sess.emitted
	m.mu.Unlock()

	if !active {
		return nil
	}
	_, err := m.command("af", "set", chain)
	return err
}

// Stop forcibly ends the session. The terminal event arrives asynchronously
// from the process watcher.
func (m *MPV) Stop() error {
	m.mu.Lock()
	sess := m.sess
	if sess == nil || sess.emitted {
		m.mu.Unlock()
		return nil
	}
	sess.stopping = true
	cmd := sess.cmd
	m.mu.Unlock()

	// Best effort polite quit, without waiting on a reply the dying
	// process may never send; the kill guarantees termination.
	go func() { _, _ = m.command("quit") }()
	if cmd != nil && cmd.Process != nil {
		_ = cmd.Process.Kill()
	}
	return nil
}

// Close tears down any running process.
func (m *MPV) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.supersedeLocked()
	return nil
}
