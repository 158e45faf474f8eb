package form

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/sirupsen/logrus"

	"github.com/symptom-checker-server/internal/domain"
)

// Snapshotter persists session state outside the process so a session survives a
// restart or lands on another instance.
type Snapshotter interface {
	Save(ctx context.Context, id string, s State) error
	Load(ctx context.Context, id string) (*State, error)
	Delete(ctx context.Context, id string) error
	Close() error
}

// ManagerDeps are the collaborators shared by every session.
type ManagerDeps struct {
	Reducer   *Reducer
	Previewer Previewer
	Submitter Submitter
	Logger    *logrus.Logger
	Snapshots Snapshotter
}

// Manager keeps live sessions in an expiring LRU (tier 1) and, when configured, writes
// every state change to a Snapshotter (tier 2).
type Manager struct {
	sessions  *expirable.LRU[string, *Session]
	snapshots Snapshotter
	deps      ManagerDeps
	logger    *logrus.Logger
}

const snapshotTimeout = 2 * time.Second

// NewManager creates a session manager.
func NewManager(cfg domain.FormsConfig, deps ManagerDeps) *Manager {
	size := cfg.MaxSessions
	if size <= 0 {
		size = 1000
	}
	ttl := cfg.SessionTTL
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}

	m := &Manager{
		snapshots: deps.Snapshots,
		deps:      deps,
		logger:    deps.Logger,
	}
	m.sessions = expirable.NewLRU[string, *Session](size, func(id string, s *Session) {
		m.logger.WithField("session_id", id).Debug("Form session evicted from memory")
		go s.Close()
	}, ttl)
	return m
}

// Create starts a new, empty session.
func (m *Manager) Create(ctx context.Context) (*Session, error) {
	id := uuid.New().String()
	sess := m.newSession(id, NewState())
	m.sessions.Add(id, sess)

	if err := m.persist(ctx, id, sess.State()); err != nil {
		m.sessions.Remove(id)
		return nil, fmt.Errorf("saving new form session: %w", err)
	}

	m.logger.WithField("session_id", id).Info("Form session created")
	return sess, nil
}

// Get returns a live session, restoring it from the snapshot tier on a memory miss.
func (m *Manager) Get(ctx context.Context, id string) (*Session, error) {
	if sess, ok := m.sessions.Get(id); ok {
		// Re-adding refreshes the idle TTL.
		m.sessions.Add(id, sess)
		return sess, nil
	}
	if m.snapshots == nil {
		return nil, domain.ErrSessionNotFound
	}

	state, err := m.snapshots.Load(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("loading form session %s: %w", id, err)
	}
	if state == nil {
		return nil, domain.ErrSessionNotFound
	}

	// Effects that were running belong to the old process.
	state.Submitting = false
	restoreImage := state.Image.Accepted
	state.Image.Decoding = false

	sess := m.newSession(id, *state)
	if existing, ok := m.sessions.Get(id); ok {
		sess.Close()
		return existing, nil
	}
	m.sessions.Add(id, sess)

	if restoreImage != nil && restoreImage.File() != nil && state.Image.Preview == "" {
		sess.Dispatch(ImageSelected{File: restoreImage.File()})
	}

	m.logger.WithField("session_id", id).Info("Form session restored from snapshot")
	return sess, nil
}

// Delete closes and forgets a session.
func (m *Manager) Delete(ctx context.Context, id string) error {
	m.sessions.Remove(id)
	if m.snapshots != nil {
		if err := m.snapshots.Delete(ctx, id); err != nil {
			return fmt.Errorf("deleting form session %s: %w", id, err)
		}
	}
	return nil
}

// Len returns the number of sessions held in memory.
func (m *Manager) Len() int {
	return m.sessions.Len()
}

// Close closes every live session and the snapshot tier.
func (m *Manager) Close() error {
	for _, sess := range m.sessions.Values() {
		sess.Close()
	}
	m.sessions.Purge()
	if m.snapshots != nil {
		return m.snapshots.Close()
	}
	return nil
}

func (m *Manager) newSession(id string, initial State) *Session {
	return NewSession(id, initial, SessionDeps{
		Reducer:   m.deps.Reducer,
		Previewer: m.deps.Previewer,
		Submitter: m.deps.Submitter,
		Logger:    m.logger,
		OnChange: func(id string, s State) {
			ctx, cancel := context.WithTimeout(context.Background(), snapshotTimeout)
			defer cancel()
			if err := m.persist(ctx, id, s); err != nil {
				m.logger.WithError(err).WithField("session_id", id).Warn("Failed to save form session snapshot")
			}
		},
	})
}

func (m *Manager) persist(ctx context.Context, id string, s State) error {
	if m.snapshots == nil {
		return nil
	}
	return m.snapshots.Save(ctx, id, s)
}
