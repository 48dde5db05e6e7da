package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"log/slog"

	"github.com/aretw0/scenaria"
	"github.com/aretw0/scenaria/internal/logging"
	"github.com/aretw0/scenaria/pkg/command"
	"github.com/aretw0/scenaria/pkg/domain"
	"github.com/aretw0/scenaria/pkg/ports"
)

// DefaultLockTTL bounds how long a crashed replica can hold a scenario.
const DefaultLockTTL = 30 * time.Second

// lockEntry holds the mutex and the reference count.
type lockEntry struct {
	mu   sync.Mutex
	refs int
}

// Manager keeps one editor per open scenario and serializes the operations that
// touch the repository. It uses reference counting to garbage collect unused locks.
type Manager struct {
	repo ports.ScenarioRepository

	mu    sync.Mutex            // Global lock for the maps
	locks map[string]*lockEntry // Active locks
	open  map[string]*scenaria.Editor

	locker     ports.DistributedLocker // Optional distributed locker
	lockTTL    time.Duration
	editorOpts []scenaria.Option
	logger     *slog.Logger
}

// Option configures the Manager.
type Option func(*Manager)

// WithLocker enables distributed locking.
func WithLocker(locker ports.DistributedLocker) Option {
	return func(m *Manager) {
		m.locker = locker
	}
}

// WithLockTTL sets the expiry of distributed locks.
func WithLockTTL(ttl time.Duration) Option {
	return func(m *Manager) {
		m.lockTTL = ttl
	}
}

// WithLogger configures a logger for the Manager.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// WithEditorOptions sets the options applied to every editor the manager opens.
func WithEditorOptions(opts ...scenaria.Option) Option {
	return func(m *Manager) {
		m.editorOpts = append(m.editorOpts, opts...)
	}
}

// NewManager creates a manager on top of the given repository.
func NewManager(repo ports.ScenarioRepository, opts ...Option) *Manager {
	m := &Manager{
		repo:    repo,
		locks:   make(map[string]*lockEntry),
		open:    make(map[string]*scenaria.Editor),
		lockTTL: DefaultLockTTL,
		logger:  logging.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// acquire gets or creates a lock entry and increments its reference count.
// The caller MUST Lock the entry.mu, and then call release(id) after unlocking.
func (m *Manager) acquire(id string) *lockEntry {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.locks[id]
	if !exists {
		entry = &lockEntry{}
		m.locks[id] = entry
	}
	entry.refs++
	return entry
}

// release decrements the reference count and deletes the entry if it reaches zero.
func (m *Manager) release(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.locks[id]
	if !exists {
		return
	}
	entry.refs--
	if entry.refs <= 0 {
		delete(m.locks, id)
	}
}

func (m *Manager) cached(id string) (*scenaria.Editor, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ed, ok := m.open[id]
	return ed, ok
}

func (m *Manager) keep(id string, ed *scenaria.Editor) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.open[id] = ed
}

// Open returns the editor of a stored scenario, loading it on first use.
func (m *Manager) Open(ctx context.Context, id string) (*scenaria.Editor, error) {
	var ed *scenaria.Editor
	err := m.WithLock(ctx, id, func(ctx context.Context) error {
		if cached, ok := m.cached(id); ok {
			ed = cached
			return nil
		}
		loaded, err := scenaria.Open(ctx, m.repo, id, m.editorOpts...)
		if err != nil {
			return err
		}
		m.keep(id, loaded)
		ed = loaded
		return nil
	})
	return ed, err
}

// OpenOrCreate opens a scenario, creating and saving an empty one when it does not exist.
func (m *Manager) OpenOrCreate(ctx context.Context, id, name string) (*scenaria.Editor, error) {
	return m.OpenOrCreateWith(ctx, id, command.New(command.ScenarioCreate, id, map[string]any{"name": name}))
}

// OpenOrCreateWith opens a scenario or, when it does not exist, executes create on a
// new editor and saves the result as version 1. create is ignored for stored scenarios.
func (m *Manager) OpenOrCreateWith(ctx context.Context, id string, create command.Command) (*scenaria.Editor, error) {
	var ed *scenaria.Editor
	err := m.WithLock(ctx, id, func(ctx context.Context) error {
		if cached, ok := m.cached(id); ok {
			ed = cached
			return nil
		}
		loaded, err := scenaria.Open(ctx, m.repo, id, m.editorOpts...)
		if err == nil {
			m.keep(id, loaded)
			ed = loaded
			return nil
		}
		if !errors.Is(err, domain.ErrScenarioNotFound) {
			return fmt.Errorf("failed to check scenario existence: %w", err)
		}

		created, err := scenaria.New(id, append([]scenaria.Option{scenaria.WithRepository(m.repo)}, m.editorOpts...)...)
		if err != nil {
			return err
		}
		if err := created.Execute(create); err != nil {
			return err
		}
		// Persist immediately to reserve the id.
		if _, err := created.Save(ctx); err != nil {
			return fmt.Errorf("failed to initialize scenario: %w", err)
		}
		m.keep(id, created)
		ed = created
		return nil
	})
	return ed, err
}

// Save persists the pending operations of an open scenario.
func (m *Manager) Save(ctx context.Context, id string) (int, error) {
	ed, ok := m.cached(id)
	if !ok {
		return 0, fmt.Errorf("scenario %q is not open", id)
	}
	var version int
	err := m.WithLock(ctx, id, func(ctx context.Context) error {
		var err error
		version, err = ed.Save(ctx)
		return err
	})
	return version, err
}

// Close forgets the editor of a scenario. Unsaved edits are dropped.
func (m *Manager) Close(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ed, ok := m.open[id]; ok {
		if n := len(ed.PendingOperations()); n > 0 {
			m.logger.Warn("closing scenario with unsaved operations", "scenario_id", id, "operations", n)
		}
		delete(m.open, id)
	}
}

// Delete removes the scenario from the repository and closes its editor.
func (m *Manager) Delete(ctx context.Context, id string) error {
	return m.WithLock(ctx, id, func(ctx context.Context) error {
		if err := m.repo.Delete(ctx, id); err != nil {
			return err
		}
		m.mu.Lock()
		delete(m.open, id)
		m.mu.Unlock()
		return nil
	})
}

// List delegates to the repository.
func (m *Manager) List(ctx context.Context) ([]string, error) {
	return m.repo.List(ctx)
}

// OpenIDs returns the ids of the scenarios with an editor in memory.
func (m *Manager) OpenIDs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.open))
	for id := range m.open {
		ids = append(ids, id)
	}
	return ids
}

// Repository returns the underlying repository.
func (m *Manager) Repository() ports.ScenarioRepository {
	return m.repo
}

// WithLock executes a function while holding the lock for the scenario.
func (m *Manager) WithLock(ctx context.Context, id string, fn func(context.Context) error) error {
	entry := m.acquire(id)
	entry.mu.Lock()
	defer func() {
		entry.mu.Unlock()
		m.release(id)
	}()

	if m.locker != nil {
		unlock, err := m.locker.Lock(ctx, id, m.lockTTL)
		if err != nil {
			return fmt.Errorf("failed to acquire distributed lock: %w", err)
		}
		defer func() {
			if err := unlock(ctx); err != nil {
				m.logger.Warn("Failed to release distributed lock (will expire via TTL)",
					"scenario_id", id,
					"err", err,
				)
			}
		}()
	}

	return fn(ctx)
}
