// Package session gives every authenticated subject its own roster and
// add-flow composer for as long as the session lasts.
package session

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/vyrodovalexey/doggos/internal/compose"
	"github.com/vyrodovalexey/doggos/internal/roster"
)

// AnonymousSubject owns the shared session when authentication is disabled.
const AnonymousSubject = "anonymous"

var sessionsActive = promauto.NewGauge(
	prometheus.GaugeOpts{
		Name: "doggos_sessions_active",
		Help: "Number of live roster sessions",
	},
)

// Session is one subject's roster together with its open drafts.
type Session struct {
	Subject   string
	StartedAt time.Time
	Roster    *roster.Roster
	Drafts    *compose.Composer
}

// Options configures the sessions created by a Manager.
type Options struct {
	MatchPolicy  roster.MatchPolicy
	FetchTimeout time.Duration
}

// Manager creates sessions on first use and discards them when they end.
type Manager struct {
	fetcher compose.ImageFetcher
	opts    Options
	logger  *zap.Logger

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewManager creates a Manager whose sessions fetch photos through fetcher.
func NewManager(fetcher compose.ImageFetcher, opts Options, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Manager{
		fetcher:  fetcher,
		opts:     opts,
		logger:   logger,
		sessions: make(map[string]*Session),
	}
}

// For returns the session of subject, starting an empty one if none is live.
// An empty subject maps to AnonymousSubject.
func (m *Manager) For(subject string) *Session {
	if subject == "" {
		subject = AnonymousSubject
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if s, ok := m.sessions[subject]; ok {
		return s
	}

	r := roster.New(m.opts.MatchPolicy)
	s := &Session{
		Subject:   subject,
		StartedAt: time.Now().UTC(),
		Roster:    r,
		Drafts:    compose.New(m.fetcher, r, m.opts.FetchTimeout, m.logger.With(zap.String("subject", subject))),
	}
	m.sessions[subject] = s
	sessionsActive.Inc()

	m.logger.Info("session started", zap.String("subject", subject))
	return s
}

// End discards the session of subject: open drafts are abandoned, live view
// subscribers are released and the roster is dropped. It reports whether a
// session was live.
func (m *Manager) End(subject string) bool {
	if subject == "" {
		subject = AnonymousSubject
	}

	m.mu.Lock()
	s, ok := m.sessions[subject]
	delete(m.sessions, subject)
	m.mu.Unlock()

	if !ok {
		return false
	}

	m.close(s)
	m.logger.Info("session ended",
		zap.String("subject", subject),
		zap.Duration("age", time.Since(s.StartedAt)),
	)
	return true
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return len(m.sessions)
}

// Close ends every session.
func (m *Manager) Close() {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	for _, s := range sessions {
		m.close(s)
	}

	m.logger.Info("all sessions closed", zap.Int("count", len(sessions)))
}

func (m *Manager) close(s *Session) {
	s.Drafts.Close()
	s.Roster.Close()
	sessionsActive.Dec()
}
