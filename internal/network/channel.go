package network

import (
	"context"
	"sync"

	"google.golang.org/grpc"
)

// grpcChannel invokes methods without generated stubs: requests and
// responses are raw protobuf bytes.
type grpcChannel struct {
	conn grpc.ClientConnInterface
}

// NewChannel wraps an existing connection, e.g. one built over bufconn.
func NewChannel(conn grpc.ClientConnInterface) Channel {
	return &grpcChannel{conn: conn}
}

func (c *grpcChannel) Invoke(ctx context.Context, method string, req []byte) ([]byte, error) {
	var resp []byte
	if err := c.conn.Invoke(ctx, method, &req, &resp, grpc.ForceCodec(rawCodec{})); err != nil {
		return nil, err
	}
	return resp, nil
}

// pooledChannel leases its connection from the pool per call, so a node
// removed by Network.Update still serves calls made through it.
type pooledChannel struct {
	pool *pool
	addr string
}

func (c *pooledChannel) Invoke(ctx context.Context, method string, req []byte) ([]byte, error) {
	l, err := c.pool.acquire(c.addr)
	if err != nil {
		return nil, err
	}
	defer c.pool.release(l)

	return (&grpcChannel{conn: l.conn}).Invoke(ctx, method, req)
}

func (c *pooledChannel) OpenStream(ctx context.Context, method string, req []byte) (Stream, error) {
	l, err := c.pool.acquire(c.addr)
	if err != nil {
		return nil, err
	}

	s, err := (&grpcChannel{conn: l.conn}).OpenStream(ctx, method, req)
	if err != nil {
		c.pool.release(l)
		return nil, err
	}
	return &leasedStream{Stream: s, release: sync.OnceFunc(func() { c.pool.release(l) })}, nil
}

// leasedStream returns its lease on Close.
type leasedStream struct {
	Stream
	release func()
}

func (s *leasedStream) Close() {
	s.Stream.Close()
	s.release()
}

var serverStream = &grpc.StreamDesc{ServerStreams: true}

func (c *grpcChannel) OpenStream(ctx context.Context, method string, req []byte) (Stream, error) {
	ctx, cancel := context.WithCancel(ctx)

	cs, err := c.conn.NewStream(ctx, serverStream, method, grpc.ForceCodec(rawCodec{}))
	if err != nil {
		cancel()
		return nil, err
	}
	if err := cs.SendMsg(&req); err != nil {
		cancel()
		return nil, err
	}
	if err := cs.CloseSend(); err != nil {
		cancel()
		return nil, err
	}

	return &grpcStream{cs: cs, cancel: cancel}, nil
}

type grpcStream struct {
	cs     grpc.ClientStream
	cancel context.CancelFunc
}

func (s *grpcStream) Recv() ([]byte, error) {
	var msg []byte
	if err := s.cs.RecvMsg(&msg); err != nil {
		return nil, err
	}
	return msg, nil
}

// Close cancels the stream context, which tears down the HTTP/2 stream.
func (s *grpcStream) Close() { s.cancel() }
