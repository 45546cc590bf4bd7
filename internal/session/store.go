// Package session holds the client-side view of who is logged in.
//
// A Store is created once per application root, started with Start and torn
// down with Dispose. It is the only writer of the Snapshot. Everything else
// reads it through Snapshot or Subscribe.
package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"deptportal/portal/internal/client"
	"deptportal/portal/internal/jobs"
	"deptportal/portal/internal/logging"
	"deptportal/portal/internal/model"
)

// Snapshot is the current session state. While Loading is true the user is
// unknown and callers must not decide either way.
type Snapshot struct {
	User    model.User
	Loading bool
}

func (s Snapshot) Authenticated() bool {
	return !s.Loading && s.User != nil
}

type IdentityClient interface {
	ProbeIdentity(ctx context.Context) (model.User, error)
	Refresh(ctx context.Context) error
}

type Option func(*Store)

func WithLogger(logger *zap.Logger) Option {
	return func(s *Store) { s.logger = logging.OrNop(logger) }
}

func WithMetrics(metrics *Metrics) Option {
	return func(s *Store) { s.metrics = metrics }
}

func WithInterval(interval time.Duration) Option {
	return func(s *Store) { s.interval = interval }
}

// WithCycleTimeout bounds one periodic probe/refresh sequence.
func WithCycleTimeout(timeout time.Duration) Option {
	return func(s *Store) { s.cycleTimeout = timeout }
}

type Store struct {
	client       IdentityClient
	logger       *zap.Logger
	metrics      *Metrics
	interval     time.Duration
	cycleTimeout time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	mu         sync.Mutex
	snapshot   Snapshot
	generation uint64
	subs       map[uint64]func(Snapshot)
	nextSub    uint64
	started    bool
	disposed   bool
	job        *jobs.Job
	unlink     func() bool

	cycling atomic.Bool
}

func New(identity IdentityClient, opts ...Option) *Store {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Store{
		client:       identity,
		logger:       zap.NewNop(),
		interval:     jobs.DefaultRevalidateInterval,
		cycleTimeout: time.Minute,
		ctx:          ctx,
		cancel:       cancel,
		done:         make(chan struct{}),
		snapshot:     Snapshot{Loading: true},
		subs:         map[uint64]func(Snapshot){},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start runs the initial probe in the background and schedules periodic
// revalidation. Cancelling parent disposes the store.
func (s *Store) Start(parent context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started || s.disposed {
		return
	}
	s.started = true
	s.unlink = context.AfterFunc(parent, s.Dispose)

	go s.Revalidate(s.ctx)
	s.job = jobs.StartRevalidationJob(s.ctx, s.interval, s.cycleTimeout, s.logger, func(ctx context.Context) {
		s.Revalidate(ctx)
	})
}

// Revalidate runs one probe/refresh sequence and publishes the result. It
// returns false when another sequence is already running, when the store is
// disposed, or when an explicit SetUser/Clear happened meanwhile.
func (s *Store) Revalidate(ctx context.Context) bool {
	if s.isDisposed() {
		return false
	}
	if !s.cycling.CompareAndSwap(false, true) {
		s.metrics.coalesce()
		s.logger.Debug("revalidation already in flight, trigger ignored")
		return false
	}
	defer s.cycling.Store(false)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(s.ctx, cancel)
	defer stop()

	s.mu.Lock()
	generation := s.generation
	s.mu.Unlock()

	user, ok := s.resolve(ctx)
	if !ok {
		return false
	}
	return s.publish(user, generation, false)
}

// resolve is probe, then at most one refresh followed by exactly one more
// probe. The retried probe is final whatever it returns.
func (s *Store) resolve(ctx context.Context) (model.User, bool) {
	user, err := s.client.ProbeIdentity(ctx)
	if err == nil {
		s.metrics.probe("ok")
		return user, true
	}
	s.metrics.probe(probeResult(err))
	if !client.IsUnauthorized(err) {
		s.logger.Debug("identity probe failed", zap.Error(err))
		return nil, !s.isDisposed()
	}

	if s.isDisposed() {
		return nil, false
	}
	if err := s.client.Refresh(ctx); err != nil {
		s.metrics.refresh("failed")
		s.logger.Info("session refresh failed, treating as logged out", zap.Error(err))
		return nil, !s.isDisposed()
	}
	s.metrics.refresh("ok")

	if s.isDisposed() {
		return nil, false
	}
	user, err = s.client.ProbeIdentity(ctx)
	if err != nil {
		s.metrics.probe(probeResult(err))
		s.logger.Info("identity probe failed after refresh", zap.Error(err))
		return nil, !s.isDisposed()
	}
	s.metrics.probe("ok")
	return user, true
}

// SetUser records an authoritative user, typically from a login response.
func (s *Store) SetUser(user model.User) {
	s.publish(user, 0, true)
}

// Clear drops the user, typically after logout.
func (s *Store) Clear() {
	s.publish(nil, 0, true)
}

func (s *Store) publish(user model.User, generation uint64, explicit bool) bool {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return false
	}
	if explicit {
		s.generation++
	} else if generation != s.generation {
		s.mu.Unlock()
		s.logger.Debug("revalidation result superseded by explicit session change")
		return false
	}
	s.snapshot = Snapshot{User: user, Loading: false}
	snap := s.snapshot
	subs := make([]func(Snapshot), 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	s.mu.Unlock()

	s.metrics.setAuthenticated(user != nil)
	for _, fn := range subs {
		fn(snap)
	}
	return true
}

func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot
}

// Subscribe calls fn after every write. The returned func unsubscribes.
func (s *Store) Subscribe(fn func(Snapshot)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disposed {
		return func() {}
	}
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subs, id)
	}
}

// Dispose stops the periodic job and cancels in-flight requests. Results
// that arrive afterwards are dropped. Safe to call more than once.
func (s *Store) Dispose() {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return
	}
	s.disposed = true
	s.subs = map[uint64]func(Snapshot){}
	job, unlink := s.job, s.unlink
	s.mu.Unlock()

	s.cancel()
	if unlink != nil {
		unlink()
	}
	job.Stop()
	go func() {
		if job != nil {
			<-job.Done()
		}
		close(s.done)
	}()
}

// Done is closed once the store is disposed and its job has exited.
func (s *Store) Done() <-chan struct{} {
	return s.done
}

func (s *Store) isDisposed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.disposed
}

func probeResult(err error) string {
	var netErr *client.NetworkError
	switch {
	case client.IsUnauthorized(err):
		return "unauthorized"
	case errors.As(err, &netErr):
		return "network"
	default:
		return "rejected"
	}
}
