// Package mirror runs server-streamed mirror queries with reconnects.
//
// A Subscription is an explicit state machine advanced by Recv. It never
// starts a goroutine of its own: when the caller stops calling Recv the
// stream simply stays parked, and Close releases it.
package mirror

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/hashgraph/hedera-sdk-core/internal/backoff"
	"github.com/hashgraph/hedera-sdk-core/internal/network"
	"github.com/hashgraph/hedera-sdk-core/pkg/types"
	"github.com/rs/zerolog"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// ErrClosed is returned by Recv once the subscription has ended with an
// error that was already reported, or after Close.
var ErrClosed = errors.New("mirror: subscription closed")

// DefaultTimeout bounds reconnection for codes a query allows retrying.
const DefaultTimeout = 15 * time.Minute

// connectionReset is the one Unknown detail treated as a transient abort.
const connectionReset = "error reading a body from connection: connection reset"

// Query describes a subscribable request.
type Query interface {
	Name() string
	Method() string
	Request() []byte
	// ShouldRetry allows extra status codes to be retried under the
	// bounded backoff.
	ShouldRetry(code codes.Code) bool
}

// Directory hands out mirror channels; *network.MirrorNetwork is one.
type Directory interface {
	Next() (network.Channel, error)
}

// Observer receives reconnect and message events.
type Observer interface {
	ObserveReconnect(query string, code codes.Code, bounded bool)
	ObserveMessage(query string)
}

type nopObserver struct{}

func (nopObserver) ObserveReconnect(string, codes.Code, bool) {}
func (nopObserver) ObserveMessage(string)                     {}

// Options tunes a subscription. The zero value is usable.
type Options struct {
	// Timeout is the bounded backoff's max elapsed time.
	Timeout  time.Duration
	Backoff  backoff.Options
	Observer Observer
	Logger   *zerolog.Logger
}

// State is the subscription's position in its lifecycle.
type State int

const (
	StateConnecting State = iota
	StateStreaming
	StateBackoffUnbounded
	StateBackoffBounded
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateStreaming:
		return "streaming"
	case StateBackoffUnbounded:
		return "backoff_unbounded"
	case StateBackoffBounded:
		return "backoff_bounded"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Subscription is one run of a mirror query. It is not restartable: once
// Done or Failed, subscribe again for a fresh one. Recv must not be called
// concurrently; Close may be called from any goroutine.
type Subscription struct {
	id    uuid.UUID
	dir   Directory
	query Query
	obs   Observer
	log   zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	closed atomic.Bool

	state     State
	stream    network.Stream
	started   bool
	bounded   *backoff.Backoff
	unbounded *backoff.Backoff
	lastErr   error
	reported  bool
	began     time.Time
}

// Subscribe prepares a subscription. No connection is made until the
// first Recv. ctx bounds the whole subscription.
func Subscribe(ctx context.Context, dir Directory, q Query, opts Options) *Subscription {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if opts.Observer == nil {
		opts.Observer = nopObserver{}
	}
	log := zerolog.Nop()
	if opts.Logger != nil {
		log = *opts.Logger
	}

	id := uuid.New()
	sctx, cancel := context.WithCancel(ctx)
	return &Subscription{
		id:        id,
		dir:       dir,
		query:     q,
		obs:       opts.Observer,
		log:       log.With().Str("subscription", id.String()).Str("query", q.Name()).Logger(),
		ctx:       sctx,
		cancel:    cancel,
		state:     StateConnecting,
		bounded:   backoff.NewBounded(timeout, opts.Backoff),
		unbounded: backoff.NewUnbounded(opts.Backoff),
		began:     time.Now(),
	}
}

// ID identifies the subscription in logs.
func (s *Subscription) ID() uuid.UUID { return s.id }

// State reports the current state.
func (s *Subscription) State() State { return s.state }

// Recv returns the next message in the order the server sent it. It
// returns io.EOF after the server ends the stream cleanly. Transient
// failures are retried inside Recv and never surface; a terminal error is
// returned exactly once, then ErrClosed. Cancelling ctx ends the
// subscription.
func (s *Subscription) Recv(ctx context.Context) ([]byte, error) {
	stop := context.AfterFunc(ctx, s.cancel)
	defer stop()

	for {
		if s.closed.Load() && s.state != StateDone && s.state != StateFailed {
			s.fail(ErrClosed)
			s.reported = true
		}

		switch s.state {
		case StateConnecting:
			s.connect()

		case StateStreaming:
			msg, err := s.stream.Recv()
			if err == nil {
				if !s.started {
					s.started = true
					s.bounded.Reset()
					s.unbounded.Reset()
				}
				s.obs.ObserveMessage(s.query.Name())
				return msg, nil
			}
			s.stream.Close()
			s.stream = nil
			s.started = false
			if errors.Is(err, io.EOF) {
				s.state = StateDone
				s.cancel()
				continue
			}
			s.classify(err)

		case StateBackoffUnbounded:
			if err := s.unbounded.Sleep(s.ctx); err != nil {
				s.fail(s.stopped(err))
				continue
			}
			s.state = StateConnecting

		case StateBackoffBounded:
			err := s.bounded.Sleep(s.ctx)
			switch {
			case errors.Is(err, backoff.ErrExhausted):
				s.fail(&types.TimedOutError{After: time.Since(s.began), Last: s.lastErr})
			case err != nil:
				s.fail(s.stopped(err))
			default:
				s.state = StateConnecting
			}

		case StateDone:
			return nil, io.EOF

		case StateFailed:
			if s.reported {
				return nil, ErrClosed
			}
			s.reported = true
			return nil, s.lastErr
		}
	}
}

func (s *Subscription) connect() {
	if err := s.ctx.Err(); err != nil {
		s.fail(s.stopped(err))
		return
	}

	ch, err := s.dir.Next()
	if err != nil {
		s.fail(&types.ConfigurationError{Reason: "no mirror node available", Cause: err})
		return
	}

	stream, err := ch.OpenStream(s.ctx, s.query.Method(), s.query.Request())
	if err != nil {
		s.classify(err)
		return
	}
	s.stream = stream
	s.state = StateStreaming
}

// classify picks the next state after a failed open or read.
func (s *Subscription) classify(err error) {
	if s.ctx.Err() != nil {
		s.fail(s.stopped(s.ctx.Err()))
		return
	}

	s.lastErr = err
	st, _ := status.FromError(err)
	code := st.Code()

	switch {
	case code == codes.Unavailable, code == codes.ResourceExhausted,
		code == codes.Unknown && st.Message() == connectionReset:
		s.state = StateBackoffUnbounded
		s.obs.ObserveReconnect(s.query.Name(), code, false)
		s.log.Debug().Err(err).Int("retries", s.unbounded.Retries()).Msg("mirror stream interrupted, reconnecting")

	case s.query.ShouldRetry(code):
		s.state = StateBackoffBounded
		s.obs.ObserveReconnect(s.query.Name(), code, true)
		s.log.Warn().Err(err).Dur("elapsed", s.bounded.Elapsed()).Msg("mirror query not ready, retrying")

	default:
		s.fail(fmt.Errorf("mirror %s: %w", s.query.Name(), err))
	}
}

func (s *Subscription) stopped(err error) error {
	if s.closed.Load() {
		return ErrClosed
	}
	if errors.Is(err, context.DeadlineExceeded) && s.lastErr != nil {
		return &types.TimedOutError{After: time.Since(s.began), Last: s.lastErr}
	}
	return fmt.Errorf("mirror %s: %w", s.query.Name(), err)
}

func (s *Subscription) fail(err error) {
	if s.stream != nil {
		s.stream.Close()
		s.stream = nil
	}
	s.lastErr = err
	s.state = StateFailed
	s.cancel()
}

// Close ends the subscription and releases the stream. It is safe to call
// more than once and concurrently with Recv.
func (s *Subscription) Close() {
	s.closed.Store(true)
	s.cancel()
}

// All adapts the subscription to a range-over-func sequence. The sequence
// ends silently at io.EOF, yields a terminal error once, and closes the
// subscription when the loop exits for any reason.
func (s *Subscription) All(ctx context.Context) iter.Seq2[[]byte, error] {
	return func(yield func([]byte, error) bool) {
		defer s.Close()
		for {
			msg, err := s.Recv(ctx)
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				yield(nil, err)
				return
			}
			if !yield(msg, nil) {
				return
			}
		}
	}
}
