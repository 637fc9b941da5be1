package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"

	"github.com/hashgraph/hedera-sdk-core/pkg/types"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/test/bufconn"
)

const (
	bufSize     = 1 << 20
	passthrough = "passthrough:///"
)

// InMemory runs a devnet over bufconn listeners. Addresses use the
// passthrough resolver and name listeners only DialOptions can reach.
type InMemory struct {
	Ledger *Ledger

	// Nodes maps node accounts to their in-memory addresses.
	Nodes  map[types.AccountID]string
	Mirror string

	listeners map[string]*bufconn.Listener
	servers   []*grpc.Server
	wg        sync.WaitGroup
}

// StartInMemory serves ledger as every node in nodes plus one mirror.
func StartInMemory(ledger *Ledger, nodes ...types.AccountID) *InMemory {
	m := &InMemory{
		Ledger:    ledger,
		Nodes:     make(map[types.AccountID]string, len(nodes)),
		Mirror:    passthrough + "mirror.devnet:5600",
		listeners: make(map[string]*bufconn.Listener),
	}

	for _, node := range nodes {
		addr := "node-" + node.String() + ".devnet:50211"
		m.Nodes[node] = passthrough + addr
		m.start(addr, ledger.NodeServer(node))
	}
	m.start(strings.TrimPrefix(m.Mirror, passthrough), ledger.MirrorServer())
	return m
}

func (m *InMemory) start(addr string, srv *grpc.Server) {
	lis := bufconn.Listen(bufSize)
	m.listeners[addr] = lis
	m.servers = append(m.servers, srv)

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		_ = srv.Serve(lis)
	}()
}

// DialOptions route the devnet addresses to their listeners.
func (m *InMemory) DialOptions() []grpc.DialOption {
	return []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithContextDialer(func(ctx context.Context, addr string) (net.Conn, error) {
			lis, ok := m.listeners[addr]
			if !ok {
				return nil, fmt.Errorf("devnet: no listener for %q", addr)
			}
			return lis.DialContext(ctx)
		}),
	}
}

// Stop stops every server; a stopped node looks unreachable to clients.
func (m *InMemory) Stop() {
	for _, srv := range m.servers {
		srv.Stop()
	}
	m.wg.Wait()
}

// serveTCP listens on real addresses until ctx is done.
func serveTCP(ctx context.Context, l *Ledger, nodes map[types.AccountID]string, mirrorAddr string) error {
	type bound struct {
		srv *grpc.Server
		lis net.Listener
	}
	var all []bound

	closeAll := func() {
		for _, b := range all {
			b.srv.GracefulStop()
		}
	}

	for node, addr := range nodes {
		lis, err := net.Listen("tcp", addr)
		if err != nil {
			closeAll()
			return fmt.Errorf("listen node %s on %s: %w", node, addr, err)
		}
		all = append(all, bound{srv: l.NodeServer(node), lis: lis})
	}
	if mirrorAddr != "" {
		lis, err := net.Listen("tcp", mirrorAddr)
		if err != nil {
			closeAll()
			return fmt.Errorf("listen mirror on %s: %w", mirrorAddr, err)
		}
		all = append(all, bound{srv: l.MirrorServer(), lis: lis})
	}

	errCh := make(chan error, len(all))
	for _, b := range all {
		l.log.Info().Str("addr", b.lis.Addr().String()).Msg("devnet listening")
		go func(b bound) { errCh <- b.srv.Serve(b.lis) }(b)
	}

	select {
	case <-ctx.Done():
		closeAll()
		return nil
	case err := <-errCh:
		closeAll()
		if errors.Is(err, grpc.ErrServerStopped) {
			return nil
		}
		return err
	}
}

func splitHostPort(hostport string) (string, int32, error) {
	host, portStr, err := net.SplitHostPort(hostport)
	if err != nil {
		return "", 0, err
	}
	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		return "", 0, err
	}
	return host, int32(port), nil
}
