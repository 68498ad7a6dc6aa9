// Package session tracks open editing sessions. At most one session exists per
// content hash; a lease keeps other processes sharing the metadata directory
// from opening the same record at the same time.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/dgallion1/pagemark/internal/hash"
	"github.com/dgallion1/pagemark/internal/lease"
	"github.com/dgallion1/pagemark/internal/parser"
	"github.com/dgallion1/pagemark/internal/store"
)

var (
	ErrNotFound        = errors.New("session not found")
	ErrTooManySessions = errors.New("too many open sessions")
	ErrSourceTooLarge  = errors.New("source file too large")
)

// Options controls session lifetime and limits.
type Options struct {
	TTL            time.Duration // Idle time before a session is evicted
	LeaseTTL       time.Duration
	MaxSessions    int
	MaxSourceBytes int64
	Parser         parser.Options
}

// minRenewInterval bounds how often the background loop runs.
const minRenewInterval = 10 * time.Millisecond

// Manager owns the open sessions of this process.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*Session
	opening  map[string]chan struct{} // Closed when the open attempt finishes

	store *store.Store
	lease lease.Locker
	log   *slog.Logger
	opts  Options

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewManager(st *store.Store, locker lease.Locker, log *slog.Logger, opts Options) *Manager {
	if opts.TTL <= 0 {
		opts.TTL = time.Hour
	}
	if opts.LeaseTTL <= 0 {
		opts.LeaseTTL = 10 * time.Minute
	}
	if opts.MaxSessions <= 0 {
		opts.MaxSessions = 32
	}
	if locker == nil {
		locker = lease.NewMemory()
	}
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Manager{
		sessions: make(map[string]*Session),
		opening:  make(map[string]chan struct{}),
		store:    st,
		lease:    locker,
		log:      log,
		opts:     opts,
	}
}

// Store returns the sidecar store for direct use by API handlers.
func (m *Manager) Store() *store.Store {
	return m.store
}

// Open returns the session for the document at sourcePath, creating it if
// needed. The document is identified by content hash, so a renamed copy of an
// open document joins the existing session.
func (m *Manager) Open(ctx context.Context, sourcePath string) (*Session, error) {
	if m.opts.MaxSourceBytes > 0 {
		if fi, err := os.Stat(sourcePath); err == nil && fi.Size() > m.opts.MaxSourceBytes {
			return nil, fmt.Errorf("%w: %d bytes (max %d)", ErrSourceTooLarge, fi.Size(), m.opts.MaxSourceBytes)
		}
	}

	sum, err := hash.File(sourcePath)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", store.ErrHashFailed, err)
	}
	log := m.log.With("hash", sum, "source", sourcePath)

	// The hash is reserved while the lease and parse run, so other requests
	// are not blocked on m.mu and a second open of the same hash waits.
	m.mu.Lock()
	for {
		if s, ok := m.sessions[sum]; ok {
			m.mu.Unlock()
			s.Touch()
			log.Debug("joined open session")
			return s, nil
		}
		done, ok := m.opening[sum]
		if !ok {
			break
		}
		m.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		m.mu.Lock()
	}
	if len(m.sessions)+len(m.opening) >= m.opts.MaxSessions {
		m.mu.Unlock()
		return nil, fmt.Errorf("%w (%d)", ErrTooManySessions, m.opts.MaxSessions)
	}
	done := make(chan struct{})
	m.opening[sum] = done
	m.mu.Unlock()

	s, err := m.acquireAndLoad(ctx, sum, sourcePath, log)

	m.mu.Lock()
	delete(m.opening, sum)
	if err == nil {
		m.sessions[sum] = s
	}
	m.mu.Unlock()
	close(done)
	if err != nil {
		return nil, err
	}

	log.Info("session opened",
		"sidecar", s.SidecarPath,
		"found", s.Found,
		"sections", len(s.record.Sections),
		"pages", len(s.pages),
		"skipped_sidecars", len(s.Skipped),
	)
	return s, nil
}

func (m *Manager) acquireAndLoad(ctx context.Context, sum, sourcePath string, log *slog.Logger) (*Session, error) {
	acquired, err := m.lease.Acquire(ctx, sum, m.opts.LeaseTTL)
	if err != nil {
		return nil, err
	}
	if !acquired {
		return nil, fmt.Errorf("%s: %w", sum[:12], lease.ErrLeaseHeld)
	}

	s, err := m.load(sum, sourcePath)
	if err != nil {
		if relErr := m.lease.Release(ctx, sum); relErr != nil {
			log.Warn("lease release failed", "error", relErr)
		}
		return nil, err
	}
	return s, nil
}

func (m *Manager) load(sum, sourcePath string) (*Session, error) {
	lookup, err := m.store.FindByHash(sum, sourcePath)
	if err != nil {
		return nil, err
	}
	pages, err := parser.PagesFromFile(sourcePath, m.opts.Parser)
	if err != nil {
		return nil, err
	}
	return newSession(lookup, sourcePath, pages), nil
}

// Get returns an open session by hash.
func (m *Manager) Get(sum string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sum]
	if !ok {
		return nil, ErrNotFound
	}
	return s, nil
}

// Close drops a session without saving and releases its lease.
func (m *Manager) Close(ctx context.Context, sum string) error {
	m.mu.Lock()
	s, ok := m.sessions[sum]
	delete(m.sessions, sum)
	m.mu.Unlock()
	if !ok {
		return ErrNotFound
	}
	if s.Dirty() {
		m.log.Warn("closing session with unsaved edits", "hash", sum)
	}
	return m.lease.Release(ctx, sum)
}

// Len returns the number of open sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Start launches the background loop that renews leases and evicts idle
// sessions.
func (m *Manager) Start(ctx context.Context) {
	loopCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel

	interval := m.opts.LeaseTTL / 3
	if interval > time.Minute {
		interval = time.Minute
	}
	if interval < minRenewInterval {
		interval = minRenewInterval
	}

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-loopCtx.Done():
				return
			case <-ticker.C:
				m.Cleanup(loopCtx)
				m.renew(loopCtx)
			}
		}
	}()
}

// Stop ends the background loop and releases every lease.
func (m *Manager) Stop() {
	if m.cancel != nil {
		m.cancel()
	}
	m.wg.Wait()

	m.mu.Lock()
	defer m.mu.Unlock()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for sum, s := range m.sessions {
		if s.Dirty() {
			m.log.Warn("discarding unsaved edits", "hash", sum)
		}
		if err := m.lease.Release(ctx, sum); err != nil {
			m.log.Warn("lease release failed", "hash", sum, "error", err)
		}
		delete(m.sessions, sum)
	}
}

// Cleanup evicts sessions idle for longer than the TTL.
func (m *Manager) Cleanup(ctx context.Context) {
	m.mu.Lock()
	var expired []string
	now := time.Now()
	for sum, s := range m.sessions {
		if now.Sub(s.UpdatedAt()) > m.opts.TTL {
			expired = append(expired, sum)
			if s.Dirty() {
				m.log.Warn("evicting session with unsaved edits", "hash", sum)
			}
			delete(m.sessions, sum)
		}
	}
	m.mu.Unlock()

	for _, sum := range expired {
		if err := m.lease.Release(ctx, sum); err != nil {
			m.log.Warn("lease release failed", "hash", sum, "error", err)
		}
		m.log.Info("session evicted", "hash", sum)
	}
}

// renew extends every lease. A session whose lease cannot be extended is
// dropped and refuses further edits, since another process may now own the
// record.
func (m *Manager) renew(ctx context.Context) {
	m.mu.Lock()
	open := make(map[string]*Session, len(m.sessions))
	for sum, s := range m.sessions {
		open[sum] = s
	}
	m.mu.Unlock()

	for sum, s := range open {
		err := m.lease.Extend(ctx, sum, m.opts.LeaseTTL)
		if err == nil {
			continue
		}
		if ctx.Err() != nil {
			return
		}
		s.markLost()
		m.mu.Lock()
		if m.sessions[sum] == s {
			delete(m.sessions, sum)
		}
		m.mu.Unlock()
		m.log.Error("lease lost, session closed", "hash", sum, "dirty", s.Dirty(), "error", err)
	}
}

// Summary is a short listing entry for an open session.
type Summary struct {
	Hash       string    `json:"hash"`
	SourcePath string    `json:"source_path"`
	Sections   int       `json:"sections"`
	Dirty      bool      `json:"dirty"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// List summarizes open sessions, most recently used first.
func (m *Manager) List() []Summary {
	m.mu.Lock()
	open := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		open = append(open, s)
	}
	m.mu.Unlock()

	out := make([]Summary, 0, len(open))
	for _, s := range open {
		s.mu.Lock()
		out = append(out, Summary{
			Hash:       s.Hash,
			SourcePath: s.SourcePath,
			Sections:   len(s.record.Sections),
			Dirty:      s.dirty,
			UpdatedAt:  s.updatedAt,
		})
		s.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out
}
