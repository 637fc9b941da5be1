// Package network maps node account ids to gRPC channels. It is the node
// directory consumed by the execution engine and, through MirrorNetwork,
// by the mirror subscription engine.
package network

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/hashgraph/hedera-sdk-core/pkg/types"
	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// gRPC method paths of the services this module talks to.
const (
	MethodCryptoTransfer    = "/proto.CryptoService/cryptoTransfer"
	MethodCryptoGetBalance  = "/proto.CryptoService/cryptoGetBalance"
	MethodGetReceipt        = "/proto.CryptoService/getTransactionReceipts"
	MethodFileAppend        = "/proto.FileService/appendContent"
	MethodFileGetContents   = "/proto.FileService/getFileContent"
	MethodSubmitMessage     = "/proto.ConsensusService/submitMessage"
	MethodMirrorSubscribe   = "/com.hedera.mirror.api.proto.ConsensusService/subscribeTopic"
	MethodMirrorAddressBook = "/com.hedera.mirror.api.proto.NetworkService/getNodes"
)

// Stream is a server-streamed response. Recv returns io.EOF once the
// server ends the stream cleanly. Close releases the stream.
type Stream interface {
	Recv() ([]byte, error)
	Close()
}

// Channel carries encoded requests to one node.
type Channel interface {
	Invoke(ctx context.Context, method string, req []byte) ([]byte, error)
	OpenStream(ctx context.Context, method string, req []byte) (Stream, error)
}

// Directory resolves node ids to channels. Implementations own their own
// synchronisation; callers treat it as read-only.
type Directory interface {
	// ChannelFor returns an error wrapping types.ErrUnknownNode when the
	// node is not in the directory.
	ChannelFor(node types.AccountID) (Channel, error)
	// KnownNodeIDs returns node ids in a stable order.
	KnownNodeIDs() []types.AccountID
}

// Option configures a Network or MirrorNetwork.
type Option func(*pool)

// WithDialOptions replaces the default (insecure) dial options.
func WithDialOptions(opts ...grpc.DialOption) Option {
	return func(p *pool) { p.dialOpts = opts }
}

// WithLogger sets the logger used for connection lifecycle events.
func WithLogger(l zerolog.Logger) Option {
	return func(p *pool) { p.logger = l }
}

// pool caches one ClientConn per address. Channels lease a connection for
// the length of one call or stream, so a dropped connection is closed only
// once its last lease is returned.
type pool struct {
	mu       sync.Mutex
	conns    map[string]*lease
	keep     map[string]bool // nil keeps every address
	closed   bool
	dialOpts []grpc.DialOption
	logger   zerolog.Logger
}

type lease struct {
	addr    string
	conn    *grpc.ClientConn
	refs    int
	retired bool
}

var errPoolClosed = errors.New("network: directory closed")

func newPool(opts []Option) *pool {
	p := &pool{
		conns:    make(map[string]*lease),
		dialOpts: []grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())},
		logger:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// dial must be called with p.mu held.
func (p *pool) dial(addr string) (*lease, error) {
	if p.closed {
		return nil, errPoolClosed
	}
	conn, err := grpc.NewClient(addr, p.dialOpts...)
	if err != nil {
		return nil, fmt.Errorf("network: dial %s: %w", addr, err)
	}
	l := &lease{addr: addr, conn: conn}
	if p.keep == nil || p.keep[addr] {
		p.conns[addr] = l
		p.logger.Debug().Str("addr", addr).Msg("opened channel")
	} else {
		// a channel handed out before the address was removed
		l.retired = true
		p.logger.Debug().Str("addr", addr).Msg("opened channel to removed address")
	}
	return l, nil
}

// channel dials addr eagerly so a bad address fails here, not mid-call.
func (p *pool) channel(addr string) (Channel, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.conns[addr]; !ok {
		l, err := p.dial(addr)
		if err != nil {
			return nil, err
		}
		if l.retired {
			_ = l.conn.Close()
		}
	}
	return &pooledChannel{pool: p, addr: addr}, nil
}

func (p *pool) acquire(addr string) (*lease, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	l, ok := p.conns[addr]
	if !ok {
		var err error
		if l, err = p.dial(addr); err != nil {
			return nil, err
		}
	}
	l.refs++
	return l, nil
}

func (p *pool) release(l *lease) {
	p.mu.Lock()
	defer p.mu.Unlock()

	l.refs--
	if l.retired && l.refs == 0 {
		_ = l.conn.Close()
		p.logger.Debug().Str("addr", l.addr).Msg("closed channel")
	}
}

// drop retires connections whose address is not in keep. Retired
// connections with calls in flight close when the last call returns.
func (p *pool) drop(keep map[string]bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.keep = keep
	for addr, l := range p.conns {
		if keep[addr] {
			continue
		}
		delete(p.conns, addr)
		l.retired = true
		if l.refs == 0 {
			_ = l.conn.Close()
			p.logger.Debug().Str("addr", addr).Msg("closed channel")
		}
	}
}

func (p *pool) close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.closed = true
	var errs []error
	for addr, l := range p.conns {
		if err := l.conn.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", addr, err))
		}
		delete(p.conns, addr)
	}
	return errors.Join(errs...)
}

// ============================================================================
// Consensus network
// ============================================================================

// Network is the consensus-node Directory backed by gRPC.
type Network struct {
	*pool

	mu    sync.RWMutex
	addrs map[types.AccountID]string
	order []types.AccountID
}

var _ Directory = (*Network)(nil)

// NewNetwork creates a directory over node account -> address.
func NewNetwork(addrs map[types.AccountID]string, opts ...Option) *Network {
	n := &Network{pool: newPool(opts)}
	n.setAddresses(addrs)
	return n
}

func (n *Network) setAddresses(addrs map[types.AccountID]string) {
	copied := make(map[types.AccountID]string, len(addrs))
	order := make([]types.AccountID, 0, len(addrs))
	for id, addr := range addrs {
		copied[id] = addr
		order = append(order, id)
	}
	slices.SortFunc(order, types.AccountID.Compare)

	n.mu.Lock()
	n.addrs = copied
	n.order = order
	n.mu.Unlock()
}

func (n *Network) ChannelFor(node types.AccountID) (Channel, error) {
	n.mu.RLock()
	addr, ok := n.addrs[node]
	n.mu.RUnlock()

	if !ok {
		return nil, &types.UnknownNodeError{NodeID: node}
	}
	return n.pool.channel(addr)
}

func (n *Network) KnownNodeIDs() []types.AccountID {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return slices.Clone(n.order)
}

// Address returns the configured address of node.
func (n *Network) Address(node types.AccountID) (string, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	addr, ok := n.addrs[node]
	return addr, ok
}

// Update swaps the node set. Connections to removed addresses close once
// the calls using them return; a channel handed out earlier still reaches
// its node.
func (n *Network) Update(addrs map[types.AccountID]string) {
	n.setAddresses(addrs)

	keep := make(map[string]bool, len(addrs))
	for _, addr := range addrs {
		keep[addr] = true
	}
	n.pool.drop(keep)
	n.logger.Info().Int("nodes", len(addrs)).Msg("network updated")
}

// Close closes every cached connection.
func (n *Network) Close() error { return n.pool.close() }

// ============================================================================
// Mirror network
// ============================================================================

// MirrorNetwork hands out channels to mirror nodes round-robin.
type MirrorNetwork struct {
	*pool

	mu    sync.Mutex
	addrs []string
	next  int
}

// NewMirrorNetwork creates a mirror directory over addrs.
func NewMirrorNetwork(addrs []string, opts ...Option) *MirrorNetwork {
	return &MirrorNetwork{pool: newPool(opts), addrs: slices.Clone(addrs)}
}

// Next returns a channel to the next mirror node.
func (m *MirrorNetwork) Next() (Channel, error) {
	m.mu.Lock()
	if len(m.addrs) == 0 {
		m.mu.Unlock()
		return nil, errors.New("network: no mirror nodes configured")
	}
	addr := m.addrs[m.next%len(m.addrs)]
	m.next++
	m.mu.Unlock()

	return m.pool.channel(addr)
}

// Addresses returns the configured mirror addresses.
func (m *MirrorNetwork) Addresses() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.addrs)
}

func (m *MirrorNetwork) Close() error { return m.pool.close() }
