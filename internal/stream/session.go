package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/juju/clock"
	"go.uber.org/zap"
)

var (
	// ErrSessionClosed is returned by Run on a session that is not active.
	ErrSessionClosed = errors.New("stream session closed")
	// ErrTooManyFailures ends a session whose snapshots keep failing.
	ErrTooManyFailures = errors.New("too many consecutive snapshot failures")
)

// Subject is the authenticated principal a session is scoped to.
type Subject struct {
	UserID int64
	Admin  bool
}

// Provider computes the current snapshot for a subject.
type Provider[T any] interface {
	Snapshot(ctx context.Context, subject Subject) (T, error)
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc[T any] func(ctx context.Context, subject Subject) (T, error)

func (f ProviderFunc[T]) Snapshot(ctx context.Context, subject Subject) (T, error) {
	return f(ctx, subject)
}

// State is a session's lifecycle position.
type State int32

const (
	StateOpening State = iota
	StateActive
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateOpening:
		return "opening"
	case StateActive:
		return "active"
	case StateClosed:
		return "closed"
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

// Options configures a session.
type Options struct {
	// Stream names the stream in logs and metrics.
	Stream       string
	PollInterval time.Duration
	// HeartbeatInterval of zero disables heartbeats.
	HeartbeatInterval time.Duration
	// MaxConsecutiveFailures of zero never gives up on a failing provider.
	MaxConsecutiveFailures int
	Clock                  clock.Clock
	Logger                 *zap.Logger
	Metrics                *Metrics
}

// Session pushes one subject's snapshots to one transport. Open performs the
// forced first emission; Run then polls until the context is cancelled, Cancel
// is called, or the transport fails. Teardown happens exactly once.
//
// All mutable state besides the lifecycle flags is owned by the goroutine
// calling Open and Run.
type Session[T any] struct {
	id        string
	subject   Subject
	provider  Provider[T]
	detector  Detector[T]
	transport Transport
	opts      Options
	logger    *zap.Logger

	poll      *Task
	heartbeat *Task
	wake      chan struct{}
	failures  int

	ctx       context.Context
	cancel    context.CancelFunc
	state     atomic.Int32
	active    atomic.Bool
	closeOnce sync.Once
	done      chan struct{}
}

// NewSession creates a session bound to ctx; cancelling ctx tears it down.
func NewSession[T any](ctx context.Context, subject Subject, provider Provider[T], detector Detector[T], transport Transport, opts Options) *Session[T] {
	if opts.Clock == nil {
		opts.Clock = clock.WallClock
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	id := uuid.New().String()
	sctx, cancel := context.WithCancel(ctx)
	return &Session[T]{
		id:        id,
		subject:   subject,
		provider:  provider,
		detector:  detector,
		transport: transport,
		opts:      opts,
		logger: opts.Logger.With(
			zap.String("session_id", id),
			zap.String("stream", opts.Stream),
			zap.Int64("user_id", subject.UserID),
		),
		poll:      NewTask(opts.Clock, opts.PollInterval),
		heartbeat: NewTask(opts.Clock, opts.HeartbeatInterval),
		wake:      make(chan struct{}, 1),
		ctx:       sctx,
		cancel:    cancel,
		done:      make(chan struct{}),
	}
}

// ID returns the session's unique identifier.
func (s *Session[T]) ID() string { return s.id }

// State returns the current lifecycle state.
func (s *Session[T]) State() State { return State(s.state.Load()) }

// Done is closed once teardown has completed.
func (s *Session[T]) Done() <-chan struct{} { return s.done }

// Cancel requests teardown. It is safe to call from any goroutine, any
// number of times, before or after the session closes.
func (s *Session[T]) Cancel() { s.cancel() }

// Wake asks for an immediate poll. Change detection still applies, so a wake
// without new data emits nothing. Pending wakes coalesce.
func (s *Session[T]) Wake() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Open computes the first snapshot and emits it unconditionally. When the
// snapshot cannot be computed the session closes without having written
// anything to the transport, so the caller can still answer with an error.
func (s *Session[T]) Open() error {
	if s.State() != StateOpening {
		return ErrSessionClosed
	}
	snap, err := s.provider.Snapshot(s.ctx, s.subject)
	if s.ctx.Err() != nil {
		s.teardown("cancelled while opening")
		return ErrSessionClosed
	}
	if err != nil {
		s.opts.Metrics.failure(s.opts.Stream)
		s.teardown("initial snapshot failed")
		return fmt.Errorf("initial snapshot: %w", err)
	}

	s.active.Store(true)
	s.state.Store(int32(StateActive))
	s.opts.Metrics.sessionOpened(s.opts.Stream)
	s.logger.Debug("stream session opened")

	if err := s.emit(snap, true); err != nil {
		s.teardown("first frame failed")
		return fmt.Errorf("first frame: %w", err)
	}
	return nil
}

// Run drives the poll and heartbeat tasks until the session ends, then tears
// it down. It returns nil when the session was cancelled.
func (s *Session[T]) Run() error {
	if !s.active.Load() {
		return ErrSessionClosed
	}
	reason := "cancelled"
	defer func() { s.teardown(reason) }()

	s.poll.Start()
	s.heartbeat.Start()

	for {
		select {
		case <-s.ctx.Done():
			return nil
		case <-s.poll.C():
			if err := s.tick(); err != nil {
				reason = err.Error()
				return err
			}
			s.poll.Rearm()
		case <-s.wake:
			if err := s.tick(); err != nil {
				reason = err.Error()
				return err
			}
		case <-s.heartbeat.C():
			if err := s.beat(); err != nil {
				reason = "heartbeat failed"
				return fmt.Errorf("heartbeat: %w", err)
			}
			s.heartbeat.Rearm()
		}
	}
}

// tick runs one poll. Provider errors stay inside the tick unless the
// failure policy says to give up.
func (s *Session[T]) tick() error {
	if !s.active.Load() {
		return nil
	}
	snap, err := s.provider.Snapshot(s.ctx, s.subject)
	if err != nil {
		if s.ctx.Err() != nil {
			return nil
		}
		s.failures++
		s.opts.Metrics.failure(s.opts.Stream)
		s.logger.Warn("snapshot failed", zap.Error(err), zap.Int("consecutive_failures", s.failures))
		if limit := s.opts.MaxConsecutiveFailures; limit > 0 && s.failures >= limit {
			return ErrTooManyFailures
		}
		return nil
	}
	s.failures = 0
	if err := s.emit(snap, false); err != nil {
		return fmt.Errorf("send: %w", err)
	}
	return nil
}

func (s *Session[T]) emit(snap T, force bool) error {
	encoded, err := json.Marshal(snap)
	if err != nil {
		s.logger.Error("encode snapshot", zap.Error(err))
		return nil
	}
	if force {
		s.detector.Record(snap, encoded)
	} else if !s.detector.Changed(snap, encoded) {
		return nil
	}
	if !s.active.Load() {
		return nil
	}
	if err := s.transport.Send(encoded); err != nil {
		return err
	}
	s.opts.Metrics.frame(s.opts.Stream, "data")
	return nil
}

func (s *Session[T]) beat() error {
	if !s.active.Load() {
		return nil
	}
	if err := s.transport.Heartbeat(); err != nil {
		return err
	}
	s.opts.Metrics.frame(s.opts.Stream, "heartbeat")
	return nil
}

// teardown stops both tasks and closes the transport, once. It runs on the
// session goroutine; other goroutines reach it through Cancel.
func (s *Session[T]) teardown(reason string) {
	s.closeOnce.Do(func() {
		wasActive := s.active.Swap(false)
		s.state.Store(int32(StateClosed))
		s.cancel()
		s.poll.Stop()
		s.heartbeat.Stop()
		if err := s.transport.Close(); err != nil {
			s.logger.Debug("close transport", zap.Error(err))
		}
		if wasActive {
			s.opts.Metrics.sessionClosed(s.opts.Stream)
		}
		s.logger.Debug("stream session closed", zap.String("reason", reason))
		close(s.done)
	})
}
