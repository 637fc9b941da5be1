// Package execute drives a single transaction or query to completion
// against a multi-node network: node selection, signing, transmission,
// outcome classification and retry.
package execute

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/hashgraph/hedera-sdk-core/internal/backoff"
	"github.com/hashgraph/hedera-sdk-core/internal/network"
	"github.com/hashgraph/hedera-sdk-core/internal/sign"
	"github.com/hashgraph/hedera-sdk-core/pkg/types"
	"github.com/rs/zerolog"
)

// ============================================================================
// Capability set
// ============================================================================

// Request is the encoded bytes for one (identity, node) pair.
type Request struct {
	Bytes []byte
	// Hash is set for transactions, zero for queries.
	Hash types.TransactionHash
}

// Executable is what the engine needs from a request kind. The engine
// never looks at the concrete type.
type Executable interface {
	// Name labels logs and metrics, e.g. "TransferTransaction".
	Name() string
	// IsQuery distinguishes queries; a rejected query identity belongs to
	// its payment transaction.
	IsQuery() bool
	// RequiresTransactionID reports whether every attempt needs an identity.
	RequiresTransactionID() bool
	// TransactionID returns the caller-pinned identity, or nil.
	TransactionID() *types.TransactionID
	// NodeAccountIDs restricts candidate nodes; empty means all known nodes.
	NodeAccountIDs() []types.AccountID
	// MakeRequest materialises the request for id (nil when no identity is
	// required) targeted at node.
	MakeRequest(ctx context.Context, b *Builder, id *types.TransactionID, node types.AccountID) (Request, error)
	// Method is the gRPC method path.
	Method() string
	// ResponseStatus extracts the pre-check code from a response.
	ResponseStatus(resp []byte) (types.Status, error)
	// ShouldRetryPreCheck allows extra pre-check codes to be retried.
	ShouldRetryPreCheck(code types.Status) bool
	// ShouldRetry inspects an OK response for a soft failure. When retry
	// is true, reason describes what was not final yet.
	ShouldRetry(resp []byte) (retry bool, reason error)
}

// Result is a successful execution.
type Result struct {
	NodeID        types.AccountID
	TransactionID *types.TransactionID
	Hash          types.TransactionHash
	Response      []byte
	Attempts      int
}

// ============================================================================
// Configuration
// ============================================================================

// Observer receives per-attempt outcomes; the metrics collector implements it.
type Observer interface {
	ObserveAttempt(request string, node types.AccountID, class types.RetryClass)
	ObserveRegeneration(request string)
	ObserveExecution(request string, d time.Duration, err error)
}

type nopObserver struct{}

func (nopObserver) ObserveAttempt(string, types.AccountID, types.RetryClass) {}
func (nopObserver) ObserveRegeneration(string)                             {}
func (nopObserver) ObserveExecution(string, time.Duration, error)          {}

// Config is the snapshot of client settings one execution runs with.
type Config struct {
	// Payer is the operator account used to generate identities.
	Payer *types.AccountID
	// DefaultSigners sign every transaction before the request's own signers.
	DefaultSigners []sign.Signer
	// FeeCeiling is the live client-wide max transaction fee in tinybars;
	// values <= 1 mean unset. May be nil.
	FeeCeiling *atomic.Int64

	// MaxAttempts bounds attempts that count against the retry budget.
	MaxAttempts int
	// RequestTimeout is the overall deadline; zero leaves only ctx.
	RequestTimeout time.Duration
	// AttemptTimeout bounds a single RPC.
	AttemptTimeout time.Duration
	// Backoff is the base for both backoff instances. The bounded one gets
	// RequestTimeout as its max elapsed time.
	Backoff backoff.Options

	Pipeline sign.Pipeline
	Observer Observer
	Logger   *zerolog.Logger
}

const (
	DefaultMaxAttempts    = 10
	DefaultRequestTimeout = 2 * time.Minute
	DefaultAttemptTimeout = 10 * time.Second
)

func (c Config) withDefaults() Config {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}
	if c.AttemptTimeout <= 0 {
		c.AttemptTimeout = DefaultAttemptTimeout
	}
	if c.Backoff.InitialInterval == 0 && c.Backoff.MaxInterval == 0 {
		base := backoff.DefaultOptions()
		base.Clock, base.Sleep = c.Backoff.Clock, c.Backoff.Sleep
		c.Backoff = base
	}
	if c.Observer == nil {
		c.Observer = nopObserver{}
	}
	if c.Logger == nil {
		nop := zerolog.Nop()
		c.Logger = &nop
	}
	return c
}

// ============================================================================
// Engine
// ============================================================================

type cacheKey struct {
	id   types.TransactionID
	node types.AccountID
}

// Execute runs exec until it succeeds or fails terminally.
//
// Transport failures rotate to the next node after an unbounded backoff
// and stop only at the deadline. Retryable pre-check codes and soft
// failures use the bounded backoff and the attempt budget. Expired or
// duplicate identities are regenerated unless the caller pinned the id.
func Execute(ctx context.Context, dir network.Directory, exec Executable, cfg Config) (*Result, error) {
	cfg = cfg.withDefaults()
	start := time.Now()
	log := cfg.Logger.With().Str("request", exec.Name()).Logger()

	res, err := run(ctx, dir, exec, cfg, log)
	cfg.Observer.ObserveExecution(exec.Name(), time.Since(start), err)
	if err != nil {
		log.Debug().Err(err).Msg("execution failed")
	}
	return res, err
}

func run(ctx context.Context, dir network.Directory, exec Executable, cfg Config, log zerolog.Logger) (*Result, error) {
	if cfg.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.RequestTimeout)
		defer cancel()
	}
	start := time.Now()

	// 1. identity
	var txID *types.TransactionID
	pinned := false
	if id := exec.TransactionID(); id != nil {
		copied := *id
		txID, pinned = &copied, true
	} else if exec.RequiresTransactionID() {
		if cfg.Payer == nil {
			return nil, &types.ConfigurationError{
				Reason: exec.Name() + " requires a transaction id or an operator",
				Cause:  types.ErrNoPayerAccountOrTransactionID,
			}
		}
		id := types.GenerateTransactionID(*cfg.Payer)
		txID = &id
	}

	// 2. candidates
	nodes := exec.NodeAccountIDs()
	if len(nodes) == 0 {
		nodes = dir.KnownNodeIDs()
	}
	if len(nodes) == 0 {
		return nil, &types.ConfigurationError{Reason: "no nodes available to execute " + exec.Name()}
	}

	maxElapsed := cfg.RequestTimeout
	if maxElapsed <= 0 {
		maxElapsed = DefaultRequestTimeout
	}
	bounded := backoff.NewBounded(maxElapsed, cfg.Backoff)
	unbounded := backoff.NewUnbounded(cfg.Backoff)

	builder := NewBuilder(cfg)
	signed := make(map[cacheKey]Request)

	var (
		lastErr  error
		attempts int
		nodeIdx  int
	)

	stopped := func(err error) error {
		if errors.Is(err, context.DeadlineExceeded) {
			last := lastErr
			if last == nil {
				last = err
			}
			return &types.TimedOutError{After: time.Since(start), Last: last}
		}
		return fmt.Errorf("execute %s: %w", exec.Name(), err)
	}

	for {
		if err := ctx.Err(); err != nil {
			return nil, stopped(err)
		}

		node := nodes[nodeIdx%len(nodes)]
		ch, err := dir.ChannelFor(node)
		if err != nil {
			var unknown *types.UnknownNodeError
			if errors.As(err, &unknown) {
				return nil, err
			}

			// a node that cannot be dialled is skipped like an unreachable one
			lastErr = &types.TransportError{NodeID: node, Cause: err}
			cfg.Observer.ObserveAttempt(exec.Name(), node, types.RetryTransport)
			log.Warn().Err(err).Str("node", node.String()).Msg("cannot open channel, trying next node")

			nodeIdx++
			if err := unbounded.Sleep(ctx); err != nil {
				return nil, stopped(err)
			}
			continue
		}

		// 3. build, sign, hash. Bytes embed the node so they are cached
		// per (identity, node).
		var key cacheKey
		if txID != nil {
			key.id = *txID
		}
		key.node = node
		req, ok := signed[key]
		if !ok {
			req, err = exec.MakeRequest(ctx, builder, txID, node)
			if err != nil {
				if ctx.Err() != nil {
					return nil, stopped(ctx.Err())
				}
				return nil, err
			}
			signed[key] = req
		}

		// 4. transmit
		attempts++
		attemptCtx, cancel := context.WithTimeout(ctx, cfg.AttemptTimeout)
		resp, err := ch.Invoke(attemptCtx, exec.Method(), req.Bytes)
		cancel()

		// 5. classify
		if err != nil {
			class := ClassifyTransport(ctx, err)
			cfg.Observer.ObserveAttempt(exec.Name(), node, class)

			if ctx.Err() != nil {
				lastErr = &types.TransportError{NodeID: node, Cause: err}
				return nil, stopped(ctx.Err())
			}
			if class != types.RetryTransport {
				return nil, &types.TransportError{NodeID: node, Cause: err}
			}

			lastErr = &types.TransportError{NodeID: node, Cause: err}
			log.Warn().Err(err).Str("node", node.String()).Int("attempt", attempts).Msg("node unavailable, trying next node")

			// transport retries do not spend the attempt budget
			attempts--
			nodeIdx++
			if err := unbounded.Sleep(ctx); err != nil {
				return nil, stopped(err)
			}
			continue
		}

		code, err := exec.ResponseStatus(resp)
		if err != nil {
			return nil, err
		}

		class := ClassifyStatus(code, exec, !pinned && txID != nil)
		if class == types.RetrySuccess {
			retry, reason := exec.ShouldRetry(resp)
			if retry {
				class = types.RetryApplication
				lastErr = reason
			}
		} else {
			lastErr = preCheckError(exec, code, txID, node)
		}
		cfg.Observer.ObserveAttempt(exec.Name(), node, class)

		log.Debug().
			Str("node", node.String()).
			Stringer("status", code).
			Stringer("class", class).
			Int("attempt", attempts).
			Msg("attempt finished")

		switch class {
		case types.RetrySuccess:
			// 6. result
			return &Result{
				NodeID:        node,
				TransactionID: txID,
				Hash:          req.Hash,
				Response:      resp,
				Attempts:      attempts,
			}, nil

		case types.RetryApplication:
			if attempts >= cfg.MaxAttempts {
				return nil, &types.MaxAttemptsExceededError{Attempts: attempts, Last: lastErr}
			}
			if err := bounded.Sleep(ctx); err != nil {
				if errors.Is(err, backoff.ErrExhausted) {
					return nil, &types.MaxAttemptsExceededError{Attempts: attempts, Last: lastErr}
				}
				return nil, stopped(err)
			}
			nodeIdx++

		case types.RetryNewIdentity:
			if attempts >= cfg.MaxAttempts {
				return nil, &types.MaxAttemptsExceededError{Attempts: attempts, Last: lastErr}
			}
			id := types.GenerateTransactionID(txID.AccountID)
			log.Warn().Stringer("old", txID).Stringer("new", id).Stringer("status", code).Msg("regenerating transaction id")
			txID = &id
			clear(signed)
			cfg.Observer.ObserveRegeneration(exec.Name())

		default:
			return nil, lastErr
		}
	}
}

func preCheckError(exec Executable, code types.Status, txID *types.TransactionID, node types.AccountID) error {
	e := &types.PreCheckStatusError{
		Status:  code,
		NodeID:  node,
		Payment: exec.IsQuery() && txID != nil,
	}
	if txID != nil {
		e.TransactionID = *txID
	}
	return e
}
