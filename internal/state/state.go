// Package state persists queue contents and playback preferences to
// sqlite. Persistence is best-effort: it enables crash recovery but is
// never a correctness dependency, so save failures are logged and
// swallowed.
package state

import (
	"database/sql"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/adrg/xdg"
	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/lhoume/jukebox/internal/queue"
)

const (
	appName      = "jukebox"
	dbFileName   = "jukebox.db"
	saveDebounce = 500 * time.Millisecond
)

// PlaybackState is the persisted slice of orchestrator state.
type PlaybackState struct {
	RepeatMode  int
	Shuffle     bool
	SongsPlayed int
}

// Manager owns the sqlite handle and debounces writes: rapid state-change
// notifications within the debounce window collapse into a single write,
// with an immediate-flush path for shutdown.
type Manager struct {
	db  *sql.DB
	log *logrus.Entry

	saveMu        sync.Mutex
	playbackTimer *time.Timer
	queueTimer    *time.Timer
	pendingState  *PlaybackState
	pendingQueue  []queue.Item
}

// Open opens the database at the default XDG data path.
func Open(log *logrus.Entry) (*Manager, error) {
	dbPath, err := xdg.DataFile(filepath.Join(appName, dbFileName))
	if err != nil {
		return nil, err
	}
	return OpenAt(dbPath, log)
}

// OpenAt opens the database at an explicit path.
func OpenAt(dbPath string, log *logrus.Entry) (*Manager, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}

	if err := initSchema(db); err != nil {
		db.Close()
		return nil, err
	}

	return &Manager{db: db, log: log}, nil
}

// Close flushes pending writes and closes the database.
func (m *Manager) Close() error {
	m.Flush()
	return m.db.Close()
}

// Flush writes any pending debounced state immediately.
func (m *Manager) Flush() {
	m.saveMu.Lock()
	if m.playbackTimer != nil {
		m.playbackTimer.Stop()
	}
	if m.queueTimer != nil {
		m.queueTimer.Stop()
	}
	state := m.pendingState
	items := m.pendingQueue
	m.pendingState = nil
	m.pendingQueue = nil
	m.saveMu.Unlock()

	if state != nil {
		if err := savePlayback(m.db, *state); err != nil {
			m.log.WithError(err).Warn("flush playback state failed")
		}
	}
	if items != nil {
		if err := saveQueue(m.db, items); err != nil {
			m.log.WithError(err).Warn("flush queue failed")
		}
	}
}

// SavePlayback schedules a debounced write of the playback state.
func (m *Manager) SavePlayback(state PlaybackState) {
	m.saveMu.Lock()
	defer m.saveMu.Unlock()

	m.pendingState = &state

	if m.playbackTimer != nil {
		m.playbackTimer.Stop()
	}
	m.playbackTimer = time.AfterFunc(saveDebounce, func() {
		m.saveMu.Lock()
		pending := m.pendingState
		m.pendingState = nil
		m.saveMu.Unlock()

		if pending != nil {
			if err := savePlayback(m.db, *pending); err != nil {
				m.log.WithError(err).Warn("save playback state failed")
			}
		}
	})
}

// SaveQueue schedules a debounced write of the queue contents.
func (m *Manager) SaveQueue(items []queue.Item) {
	m.saveMu.Lock()
	defer m.saveMu.Unlock()

	m.pendingQueue = items

	if m.queueTimer != nil {
		m.queueTimer.Stop()
	}
	m.queueTimer = time.AfterFunc(saveDebounce, func() {
		m.saveMu.Lock()
		pending := m.pendingQueue
		m.pendingQueue = nil
		m.saveMu.Unlock()

		if pending != nil {
			if err := saveQueue(m.db, pending); err != nil {
				m.log.WithError(err).Warn("save queue failed")
			}
		}
	})
}

// LoadPlayback returns the saved playback state, or nil if none was saved.
func (m *Manager) LoadPlayback() (*PlaybackState, error) {
	return getPlayback(m.db)
}

// LoadQueue returns the saved queue items in position order.
func (m *Manager) LoadQueue() ([]queue.Item, error) {
	return getQueue(m.db)
}
