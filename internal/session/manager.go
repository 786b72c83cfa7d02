package session

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/bloktest/session-backend/internal/gateway"
	"github.com/bloktest/session-backend/internal/store"
)

// Manager keeps one Controller per user. Controllers are created lazily on
// first use and torn down together on shutdown.
type Manager struct {
	mu          sync.Mutex
	controllers map[string]*Controller

	gw       gateway.Client
	store    store.SnapshotStore
	queue    ProgressQueue
	outbox   SubmissionOutbox
	recorder AttemptRecorder
	log      zerolog.Logger

	duration      int
	tickInterval  time.Duration
	autosaveEvery int
}

// ManagerOptions configures a Manager and the controllers it creates.
type ManagerOptions struct {
	Gateway  gateway.Client
	Store    store.SnapshotStore
	Queue    ProgressQueue
	Outbox   SubmissionOutbox
	Recorder AttemptRecorder
	Log      zerolog.Logger

	Duration      int
	TickInterval  time.Duration
	AutosaveEvery int
}

// NewManager creates an empty controller registry.
func NewManager(opts ManagerOptions) *Manager {
	return &Manager{
		controllers:   make(map[string]*Controller),
		gw:            opts.Gateway,
		store:         opts.Store,
		queue:         opts.Queue,
		outbox:        opts.Outbox,
		recorder:      opts.Recorder,
		log:           opts.Log,
		duration:      opts.Duration,
		tickInterval:  opts.TickInterval,
		autosaveEvery: opts.AutosaveEvery,
	}
}

// Get returns the user's controller, creating one if needed. The upstream
// token is refreshed on every call so a re-login does not strand the
// session with a stale credential.
func (m *Manager) Get(userID, token string) *Controller {
	m.mu.Lock()
	defer m.mu.Unlock()

	if c, ok := m.controllers[userID]; ok {
		c.mu.Lock()
		c.token = token
		c.mu.Unlock()
		return c
	}

	c := NewController(Options{
		UserID:        userID,
		Token:         token,
		Gateway:       m.gw,
		Store:         m.store,
		Queue:         m.queue,
		Outbox:        m.outbox,
		Recorder:      m.recorder,
		Log:           m.log,
		Duration:      m.duration,
		TickInterval:  m.tickInterval,
		AutosaveEvery: m.autosaveEvery,
	})
	m.controllers[userID] = c
	return c
}

// Lookup returns the user's controller without creating one.
func (m *Manager) Lookup(userID string) (*Controller, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.controllers[userID]
	return c, ok
}

// Remove stops and forgets the user's controller, e.g. on logout. The
// persisted snapshot is untouched so the attempt can still be resumed.
func (m *Manager) Remove(userID string) {
	m.mu.Lock()
	c, ok := m.controllers[userID]
	delete(m.controllers, userID)
	m.mu.Unlock()

	if ok {
		c.Stop()
	}
}

// StopAll tears every controller down. Each active session gets its final
// progress flush, so in-flight attempts survive a deploy via Resume.
func (m *Manager) StopAll() {
	m.mu.Lock()
	all := make([]*Controller, 0, len(m.controllers))
	for _, c := range m.controllers {
		all = append(all, c)
	}
	m.controllers = make(map[string]*Controller)
	m.mu.Unlock()

	for _, c := range all {
		c.Stop()
	}
}
