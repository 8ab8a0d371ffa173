package session

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/ShayCichocki/pairline/internal/apperr"
	"github.com/ShayCichocki/pairline/internal/coder"
	"github.com/ShayCichocki/pairline/internal/git"
	"github.com/ShayCichocki/pairline/internal/logging"
	"github.com/ShayCichocki/pairline/internal/state"
	"github.com/ShayCichocki/pairline/pkg/models"
)

// CoderFactory builds the coder for a new session. It fails when there is no
// usable workspace.
type CoderFactory func(ctx context.Context) (*coder.Coder, error)

// Store is the registry of live sessions. Each id is initialized at most
// once, even under concurrent first-time callers.
type Store struct {
	newCoder CoderFactory
	db       state.SessionStore
	logger   *slog.Logger
	now      func() time.Time

	mu       sync.RWMutex
	sessions map[string]*Session
	group    singleflight.Group

	// persistMu orders snapshots with the writes that follow them.
	persistMu sync.Mutex
}

// Option configures a Store.
type Option func(*Store)

// WithPersistence writes every session change through to db and restores
// sessions found there.
func WithPersistence(db state.SessionStore) Option {
	return func(s *Store) { s.db = db }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// NewStore creates an empty store.
func NewStore(newCoder CoderFactory, opts ...Option) *Store {
	s := &Store{
		newCoder: newCoder,
		logger:   slog.Default(),
		now:      time.Now,
		sessions: make(map[string]*Session),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = logging.ComponentLogger(s.logger, "session")
	return s
}

// GetOrCreate returns the session for id, creating it on first use.
func (st *Store) GetOrCreate(ctx context.Context, id string) (*Session, error) {
	if strings.TrimSpace(id) == "" {
		return nil, apperr.New(apperr.KindValidation, "session.GetOrCreate", "Session ID is required")
	}
	if s := st.lookup(id); s != nil {
		s.Touch(st.now())
		return s, nil
	}

	v, err, _ := st.group.Do(id, func() (any, error) {
		if s := st.lookup(id); s != nil {
			return s, nil
		}
		s, err := st.create(ctx, id)
		if err != nil {
			return nil, err
		}
		st.mu.Lock()
		st.sessions[id] = s
		st.mu.Unlock()
		return s, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Session), nil
}

// Get returns the session for id without creating a new one. A session that
// only exists in the database is restored.
func (st *Store) Get(ctx context.Context, id string) (*Session, error) {
	if s := st.lookup(id); s != nil {
		return s, nil
	}
	if st.db != nil && id != "" {
		rec, err := st.db.LoadSession(id)
		if err != nil {
			return nil, err
		}
		if rec != nil {
			return st.GetOrCreate(ctx, id)
		}
	}
	return nil, apperr.New(apperr.KindNotFound, "session.Get", "Session not found")
}

// Len returns the number of live sessions.
func (st *Store) Len() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.sessions)
}

// EvictIdle drops sessions with no run, no consumer and no activity within
// ttl. Persisted sessions are restored on next use.
func (st *Store) EvictIdle(ttl time.Duration) int {
	now := st.now()

	st.mu.Lock()
	defer st.mu.Unlock()
	n := 0
	for id, s := range st.sessions {
		if s.idle(now, ttl) {
			delete(st.sessions, id)
			n++
		}
	}
	return n
}

// RunJanitor evicts idle sessions every interval until ctx is done.
func (st *Store) RunJanitor(ctx context.Context, ttl, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := st.EvictIdle(ttl); n > 0 {
				st.logger.Info("evicted idle sessions", "count", n, "remaining", st.Len())
			}
		}
	}
}

func (st *Store) lookup(id string) *Session {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.sessions[id]
}

func (st *Store) create(ctx context.Context, id string) (*Session, error) {
	c, err := st.newCoder(ctx)
	if err != nil {
		return nil, initError(err)
	}
	s := newSession(id, c, st.now)

	var rec *state.SessionRecord
	if st.db != nil {
		rec, err = st.db.LoadSession(id)
		if err != nil {
			st.logger.Warn("load persisted session failed", "session_id", id, "error", err)
			rec = nil
		}
	}

	if rec != nil {
		s.restore(rec)
		// Only commits the coder made are stored, so Undo may target them.
		if rec.CommitHash != "" {
			c.RestoreLastCommit(git.Commit{Hash: rec.CommitHash, Message: rec.CommitMessage})
		}
		st.logger.Info("session restored", "session_id", id, "messages", len(rec.Messages))
	} else {
		s.initialFiles = c.Workspace().InChatFiles()
		s.commitHash = c.LastCommit().Hash
		s.messages = []models.Message{
			{Role: models.RoleInfo, Content: strings.Join(c.Announcements(ctx), "\n")},
			{Role: models.RoleAssistant, Content: greeting},
		}
		st.logger.Info("session created", "session_id", id)
	}

	if st.db != nil {
		s.onChange = st.persist
		st.persist(s)
	}
	return s, nil
}

func (st *Store) persist(s *Session) {
	st.persistMu.Lock()
	defer st.persistMu.Unlock()
	if err := st.db.SaveSession(s.record()); err != nil {
		st.logger.Warn("persist session failed", "session_id", s.ID, "error", err)
	}
}

func initError(err error) error {
	var ae *apperr.Error
	if errors.As(err, &ae) {
		return err
	}
	return apperr.Wrap(apperr.KindInitialization, "session.GetOrCreate", err)
}
