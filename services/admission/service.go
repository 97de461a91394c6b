package admission

import (
	"context"
	"sync"
	"time"

	"github.com/pollenlabs/nectar-gateway/models"
	"github.com/pollenlabs/nectar-gateway/services"
	"go.uber.org/zap"
)

// Config holds the per-class admission intervals and queue bounds.
// Identified callers paying a cost (secret custody or a registered domain)
// get the shorter intervals.
type Config struct {
	// TokenInterval spaces admissions for TOKEN and ELEVATED verdicts
	TokenInterval time.Duration
	// ReferrerInterval spaces admissions for REFERRER verdicts
	ReferrerInterval time.Duration
	// AnonymousInterval spaces admissions for unauthenticated requests
	AnonymousInterval time.Duration
	// Capacity bounds pending entries per key; zero means unbounded
	Capacity int
	// IdleTTL is how long an inactive key's queue state survives before GC
	IdleTTL time.Duration
}

// keyQueue serializes execution for one queue key. tail is closed when the
// most recently enqueued task finishes, so each newcomer waits on its
// predecessor. All fields are guarded by the service mutex.
type keyQueue struct {
	tail         chan struct{}
	pending      int
	lastAdmitted time.Time
	lastActive   time.Time
}

// Service is the keyed, rate-limited admission controller. Per key it
// guarantees FIFO execution with at most one task running at any instant
// and a minimum spacing between admissions; distinct keys never block each
// other. All state is process-local and rebuilt empty on restart.
type Service struct {
	cfg    Config
	logger *zap.Logger

	mu     sync.Mutex
	queues map[string]*keyQueue
}

// NewService creates a new admission Service
func NewService(cfg Config, logger *zap.Logger) *Service {
	if cfg.IdleTTL == 0 {
		cfg.IdleTTL = 5 * time.Minute
	}
	return &Service{
		cfg:    cfg,
		logger: logger,
		queues: make(map[string]*keyQueue),
	}
}

// ClassFor maps an authentication method to its admission class. Derived
// deterministically, computed once per request.
func (s *Service) ClassFor(method models.AuthMethod) models.AdmissionClass {
	switch method {
	case models.MethodToken, models.MethodElevated, models.MethodElevatedWithIdentity:
		return models.AdmissionClass{Interval: s.cfg.TokenInterval, Capacity: s.cfg.Capacity}
	case models.MethodReferrer:
		return models.AdmissionClass{Interval: s.cfg.ReferrerInterval, Capacity: s.cfg.Capacity}
	default:
		return models.AdmissionClass{Interval: s.cfg.AnonymousInterval, Capacity: s.cfg.Capacity}
	}
}

// Admit maps the verdict to its admission class and runs task through the
// key's queue, returning the task's result.
func (s *Service) Admit(ctx context.Context, key string, verdict *models.AuthVerdict, task func(ctx context.Context) error) error {
	return s.Enqueue(ctx, key, s.ClassFor(verdict.Method), task)
}

// Enqueue runs task behind every previously enqueued task for the same key,
// no earlier than class.Interval after the previous admission for that key.
// When the key's pending count already meets class.Capacity the newest
// request is rejected immediately with services.ErrQueueFull. A caller that
// disconnects while still queued is discarded without being admitted.
func (s *Service) Enqueue(ctx context.Context, key string, class models.AdmissionClass, task func(ctx context.Context) error) error {
	s.mu.Lock()
	q, ok := s.queues[key]
	if !ok {
		q = &keyQueue{tail: closedChan()}
		s.queues[key] = q
	}

	if class.Capacity > 0 && q.pending >= class.Capacity {
		s.mu.Unlock()
		s.logger.Warn("admission queue full",
			zap.String("key", key),
			zap.Int("capacity", class.Capacity))
		return services.ErrQueueFull
	}

	predecessor := q.tail
	done := make(chan struct{})
	q.tail = done
	q.pending++
	q.lastActive = time.Now()
	s.mu.Unlock()

	// Wait for the predecessor to finish: FIFO, one task per key.
	select {
	case <-predecessor:
	case <-ctx.Done():
		// Keep the chain intact for successors before dropping out.
		go func() {
			<-predecessor
			close(done)
		}()
		s.release(q)
		return ctx.Err()
	}

	// Enforce spacing since the previous admission for this key.
	s.mu.Lock()
	wait := class.Interval - time.Since(q.lastAdmitted)
	s.mu.Unlock()
	if wait > 0 {
		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			close(done)
			s.release(q)
			return ctx.Err()
		}
	}

	s.mu.Lock()
	q.lastAdmitted = time.Now()
	s.mu.Unlock()

	defer func() {
		close(done)
		s.release(q)
	}()
	return task(ctx)
}

// release retires one pending entry
func (s *Service) release(q *keyQueue) {
	s.mu.Lock()
	q.pending--
	q.lastActive = time.Now()
	s.mu.Unlock()
}

// closedChan returns an already-closed channel so the first task of a fresh
// queue has no predecessor to wait on
func closedChan() chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

// ActiveKeys returns how many keys currently hold queue state
func (s *Service) ActiveKeys() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queues)
}

// CleanupIdle removes queue state for keys with nothing pending that have
// been inactive past the idle TTL. Returns how many keys were dropped.
func (s *Service) CleanupIdle() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	removed := 0
	for key, q := range s.queues {
		if q.pending == 0 && now.Sub(q.lastActive) > s.cfg.IdleTTL {
			delete(s.queues, key)
			removed++
		}
	}
	return removed
}

// StartCleanupWorker periodically drops idle queue state. Returns when ctx
// is cancelled.
func (s *Service) StartCleanupWorker(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if removed := s.CleanupIdle(); removed > 0 {
				s.logger.Debug("dropped idle admission queues", zap.Int("keys", removed))
			}
		case <-ctx.Done():
			return
		}
	}
}
