package core

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultSessionTTL is how long an idle form session is kept.
const DefaultSessionTTL = 2 * time.Hour

// ServiceConfig configures a Service. Zero values take defaults.
type ServiceConfig struct {
	Rules         FileRules
	Timeouts      Timeouts
	SessionTTL    time.Duration
	MaxConcurrent int           // upstream calls in flight across sessions
	MaxWait       time.Duration // wait for a free upstream slot
	Namespace     string        // default portlet namespace
}

// OpenRequest describes the page that opens a session.
type OpenRequest struct {
	Mode        string `json:"mode"`
	InventoryID string `json:"inventoryId"`
	Namespace   string `json:"namespace"`
	Locale      string `json:"locale"`
}

// Service owns every open form session.
type Service struct {
	transport Transport
	limiter   *RequestLimiter
	cfg       ServiceConfig
	log       *slog.Logger

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewService creates a service that reaches the portal through t.
func NewService(t Transport, cfg ServiceConfig, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = DefaultSessionTTL
	}
	if cfg.Rules.MaxSize <= 0 {
		cfg.Rules.MaxSize = DefaultMaxFileSize
	}
	if len(cfg.Rules.Extensions) == 0 {
		cfg.Rules.Extensions = DefaultExtensions
	}
	cfg.Timeouts = cfg.Timeouts.withDefaults()

	return &Service{
		transport: t,
		limiter:   NewRequestLimiter(cfg.MaxConcurrent, cfg.MaxWait),
		cfg:       cfg,
		log:       log,
		sessions:  make(map[string]*Session),
	}
}

// Open starts a session. Review and update sessions fetch their inventory
// before returning; a failed fetch is reported in the session view rather
// than as an error.
func (s *Service) Open(ctx context.Context, req OpenRequest) (*Session, error) {
	if req.Namespace == "" {
		req.Namespace = s.cfg.Namespace
	}

	id := uuid.NewString()
	sess := newSession(id, req, sessionDeps{
		transport: s.transport,
		limiter:   s.limiter,
		rules:     s.cfg.Rules,
		timeouts:  s.cfg.Timeouts,
		log:       s.log,
	})

	s.mu.Lock()
	s.sessions[id] = sess
	s.mu.Unlock()

	sess.log.Info("session opened", "inventory_id", sess.inventoryID)

	if err := sess.load(ctx); err != nil {
		s.Close(id)
		return nil, fmt.Errorf("open session: %w", err)
	}
	return sess, nil
}

// Get returns an open session.
func (s *Service) Get(id string) (*Session, error) {
	s.mu.RLock()
	sess, ok := s.sessions[id]
	s.mu.RUnlock()

	if !ok || sess.Closed() {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return sess, nil
}

// Close closes and forgets a session.
func (s *Service) Close(id string) error {
	s.mu.Lock()
	sess, ok := s.sessions[id]
	delete(s.sessions, id)
	s.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	sess.Close()
	return nil
}

// Count returns the number of open sessions.
func (s *Service) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Limiter exposes the upstream request limiter for monitoring.
func (s *Service) Limiter() *RequestLimiter { return s.limiter }

// Sweep closes sessions idle since before now minus the TTL and returns
// how many were closed.
func (s *Service) Sweep(now time.Time) int {
	cutoff := now.Add(-s.cfg.SessionTTL)

	s.mu.Lock()
	var expired []*Session
	for id, sess := range s.sessions {
		if sess.LastUsed().Before(cutoff) || sess.Closed() {
			expired = append(expired, sess)
			delete(s.sessions, id)
		}
	}
	s.mu.Unlock()

	for _, sess := range expired {
		sess.Close()
	}
	return len(expired)
}

// Shutdown closes every session and waits for upstream calls to drain.
func (s *Service) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	sessions := s.sessions
	s.sessions = make(map[string]*Session)
	s.mu.Unlock()

	for _, sess := range sessions {
		sess.Close()
	}
	return s.limiter.WaitForDrain(ctx)
}
