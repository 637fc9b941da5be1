// Package sdk is the public face of the ledger client: a Client bound to a
// consensus network and a mirror network, plus the transactions and
// queries it can execute.
package sdk

import (
	"os"
	"sync/atomic"
	"time"

	"github.com/hashgraph/hedera-sdk-core/internal/backoff"
	"github.com/hashgraph/hedera-sdk-core/internal/config"
	"github.com/hashgraph/hedera-sdk-core/internal/execute"
	"github.com/hashgraph/hedera-sdk-core/internal/mirror"
	"github.com/hashgraph/hedera-sdk-core/internal/network"
	"github.com/hashgraph/hedera-sdk-core/internal/sign"
	"github.com/hashgraph/hedera-sdk-core/pkg/types"
	"github.com/rs/zerolog"
	"google.golang.org/grpc"
)

// Observer receives everything the engines report. The metrics collector
// implements it.
type Observer interface {
	execute.Observer
	mirror.Observer
	ObserveChunk(request string)
}

// Client is safe for concurrent use. Operator and fee settings may be
// changed while requests are in flight; each execution snapshots them.
type Client struct {
	network *network.Network
	mirror  *network.MirrorNetwork

	operator atomic.Pointer[operator]

	// tinybars; <= 1 means unset
	maxTransactionFee atomic.Int64
	maxQueryPayment   atomic.Int64

	maxAttempts    int
	requestTimeout time.Duration
	attemptTimeout time.Duration
	backoff        backoff.Options
	pipeline       sign.Pipeline
	chunkSize      int
	maxChunks      int

	observer Observer
	log      zerolog.Logger
}

type operator struct {
	accountID types.AccountID
	signer    sign.Signer
}

// Option configures a Client.
type Option func(*Client)

// WithOperator sets the account that pays for and signs every transaction.
func WithOperator(account types.AccountID, signer sign.Signer) Option {
	return func(c *Client) { c.SetOperator(account, signer) }
}

func WithMaxTransactionFee(fee types.Hbar) Option {
	return func(c *Client) { c.SetMaxTransactionFee(fee) }
}

func WithMaxQueryPayment(max types.Hbar) Option {
	return func(c *Client) { c.maxQueryPayment.Store(int64(max)) }
}

func WithMaxAttempts(n int) Option {
	return func(c *Client) { c.maxAttempts = n }
}

// WithRequestTimeout bounds a whole execution, retries included.
func WithRequestTimeout(d time.Duration) Option {
	return func(c *Client) { c.requestTimeout = d }
}

func WithAttemptTimeout(d time.Duration) Option {
	return func(c *Client) { c.attemptTimeout = d }
}

func WithBackoff(opts backoff.Options) Option {
	return func(c *Client) { c.backoff = opts }
}

// WithSigningConcurrency caps how many signers run at once per request.
func WithSigningConcurrency(n int) Option {
	return func(c *Client) { c.pipeline.Concurrency = n }
}

func WithChunking(size, maxChunks int) Option {
	return func(c *Client) { c.chunkSize, c.maxChunks = size, maxChunks }
}

func WithObserver(o Observer) Option {
	return func(c *Client) { c.observer = o }
}

func WithLogger(l zerolog.Logger) Option {
	return func(c *Client) { c.log = l }
}

// NewClient builds a client over existing networks. The client owns them
// and closes them in Close.
func NewClient(nodes *network.Network, mirrorNodes *network.MirrorNetwork, opts ...Option) *Client {
	c := &Client{
		network:        nodes,
		mirror:         mirrorNodes,
		requestTimeout: execute.DefaultRequestTimeout,
		backoff:        backoff.DefaultOptions(),
		log:            zerolog.Nop(),
	}
	c.maxQueryPayment.Store(int64(types.HbarFrom(1)))
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewClientFromConfig dials nothing eagerly: connections open on first use.
func NewClientFromConfig(cfg *config.Config, opts ...Option) (*Client, error) {
	addrs, err := cfg.Addresses()
	if err != nil {
		return nil, err
	}
	return NewClientWithAddresses(cfg, addrs, nil, opts...)
}

// NewClientWithAddresses is NewClientFromConfig with an explicit node map
// (for example one seeded from a cached address book) and extra dial
// options.
func NewClientWithAddresses(cfg *config.Config, addrs map[types.AccountID]string, dial []grpc.DialOption, opts ...Option) (*Client, error) {
	netOpts := []network.Option{}
	if len(dial) > 0 {
		netOpts = append(netOpts, network.WithDialOptions(dial...))
	}

	base := []Option{
		WithMaxAttempts(cfg.Execution.MaxAttempts),
		WithRequestTimeout(cfg.Execution.RequestTimeout.Std()),
		WithAttemptTimeout(cfg.Execution.AttemptTimeout.Std()),
		WithMaxTransactionFee(types.Hbar(cfg.Execution.MaxTransactionFee)),
		WithChunking(cfg.Chunk.Size, cfg.Chunk.MaxChunks),
		WithSigningConcurrency(cfg.Execution.SigningLimit),
	}
	if cfg.Execution.MaxQueryPayment > 0 {
		base = append(base, WithMaxQueryPayment(types.Hbar(cfg.Execution.MaxQueryPayment)))
	}
	if cfg.Execution.MinBackoff > 0 || cfg.Execution.MaxBackoff > 0 {
		b := backoff.DefaultOptions()
		if cfg.Execution.MinBackoff > 0 {
			b.InitialInterval = cfg.Execution.MinBackoff.Std()
		}
		if cfg.Execution.MaxBackoff > 0 {
			b.MaxInterval = cfg.Execution.MaxBackoff.Std()
		}
		base = append(base, WithBackoff(b))
	}

	payer, signer, err := cfg.OperatorSigner()
	if err != nil {
		return nil, err
	}
	if payer != nil {
		base = append(base, WithOperator(*payer, signer))
	}

	c := NewClient(
		network.NewNetwork(addrs, netOpts...),
		network.NewMirrorNetwork(cfg.Mirror, netOpts...),
		append(base, opts...)...,
	)
	return c, nil
}

// SetOperator replaces the operator for requests started afterwards.
func (c *Client) SetOperator(account types.AccountID, signer sign.Signer) {
	c.operator.Store(&operator{accountID: account, signer: signer})
}

// OperatorAccountID returns the operator account, or nil.
func (c *Client) OperatorAccountID() *types.AccountID {
	op := c.operator.Load()
	if op == nil {
		return nil
	}
	id := op.accountID
	return &id
}

// SetMaxTransactionFee changes the client-wide fee ceiling. It applies to
// transactions built after the call, including ones already executing
// that have not signed their next attempt yet.
func (c *Client) SetMaxTransactionFee(fee types.Hbar) {
	c.maxTransactionFee.Store(int64(fee))
}

func (c *Client) MaxTransactionFee() types.Hbar { return types.Hbar(c.maxTransactionFee.Load()) }

func (c *Client) MaxQueryPayment() types.Hbar { return types.Hbar(c.maxQueryPayment.Load()) }

// Network is the consensus node directory.
func (c *Client) Network() *network.Network { return c.network }

// Mirror is the mirror node directory.
func (c *Client) Mirror() *network.MirrorNetwork { return c.mirror }

// UpdateNetwork replaces the node list, for example after an address book
// refresh or a config reload.
func (c *Client) UpdateNetwork(addrs map[types.AccountID]string) {
	c.network.Update(addrs)
}

// ApplyConfig pushes the live-updatable parts of a reloaded config.
func (c *Client) ApplyConfig(cfg *config.Config) error {
	c.SetMaxTransactionFee(types.Hbar(cfg.Execution.MaxTransactionFee))
	if cfg.Execution.MaxQueryPayment > 0 {
		c.maxQueryPayment.Store(cfg.Execution.MaxQueryPayment)
	}
	if len(cfg.Network) > 0 {
		addrs, err := cfg.Addresses()
		if err != nil {
			return err
		}
		c.UpdateNetwork(addrs)
	}
	c.log.Info().Int("nodes", len(cfg.Network)).Int64("max_fee", cfg.Execution.MaxTransactionFee).Msg("client config applied")
	return nil
}

func (c *Client) Close() error {
	err := c.network.Close()
	if c.mirror != nil {
		if merr := c.mirror.Close(); err == nil {
			err = merr
		}
	}
	return err
}

// executeConfig snapshots the client for one execution.
func (c *Client) executeConfig() execute.Config {
	cfg := execute.Config{
		FeeCeiling:     &c.maxTransactionFee,
		MaxAttempts:    c.maxAttempts,
		RequestTimeout: c.requestTimeout,
		AttemptTimeout: c.attemptTimeout,
		Backoff:        c.backoff,
		Pipeline:       c.pipeline,
		Logger:         &c.log,
	}
	if c.observer != nil {
		cfg.Observer = c.observer
	}
	if op := c.operator.Load(); op != nil {
		payer := op.accountID
		cfg.Payer = &payer
		cfg.DefaultSigners = []sign.Signer{op.signer}
	}
	return cfg
}

// mirrorOptions builds subscription options; a zero timeout leaves the
// mirror default in place.
func (c *Client) mirrorOptions(timeout time.Duration) mirror.Options {
	opts := mirror.Options{
		Timeout: timeout,
		Backoff: c.backoff,
		Logger:  &c.log,
	}
	if c.observer != nil {
		opts.Observer = c.observer
	}
	return opts
}

func (c *Client) observeChunk(request string) {
	if c.observer != nil {
		c.observer.ObserveChunk(request)
	}
}

// ClientFromEnv loads path and returns a client; it is what the CLI and
// examples use.
func ClientFromEnv(path string, opts ...Option) (*Client, error) {
	if path == "" {
		path = os.Getenv("HEDERA_CONFIG")
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	return NewClientFromConfig(cfg, opts...)
}
