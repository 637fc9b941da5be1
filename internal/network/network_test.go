package network

import (
	"context"
	"errors"
	"io"
	"net"
	"testing"

	"github.com/hashgraph/hedera-sdk-core/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/test/bufconn"
)

// startEchoServer serves every method: unary calls echo the request with a
// prefix, server streams send the request back three times.
func startEchoServer(t *testing.T) Option {
	t.Helper()

	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer(
		grpc.ForceServerCodec(Codec()),
		grpc.UnknownServiceHandler(func(_ any, stream grpc.ServerStream) error {
			method, _ := grpc.MethodFromServerStream(stream)

			var req []byte
			if err := stream.RecvMsg(&req); err != nil {
				return err
			}

			if method == MethodMirrorSubscribe {
				for i := 0; i < 3; i++ {
					msg := append([]byte{byte(i)}, req...)
					if err := stream.SendMsg(&msg); err != nil {
						return err
					}
				}
				return nil
			}

			resp := append([]byte("echo:"), req...)
			return stream.SendMsg(&resp)
		}),
	)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	return WithDialOptions(
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
}

func TestNetwork_InvokeRaw(t *testing.T) {
	dial := startEchoServer(t)
	node := types.NewAccountID(3)

	n := NewNetwork(map[types.AccountID]string{node: "passthrough:///node3"}, dial)
	defer n.Close()

	ch, err := n.ChannelFor(node)
	require.NoError(t, err)

	resp, err := ch.Invoke(context.Background(), MethodCryptoTransfer, []byte{1, 2, 3})
	require.NoError(t, err)
	assert.Equal(t, append([]byte("echo:"), 1, 2, 3), resp)
}

func TestNetwork_Stream(t *testing.T) {
	dial := startEchoServer(t)

	m := NewMirrorNetwork([]string{"passthrough:///mirror"}, dial)
	defer m.Close()

	ch, err := m.Next()
	require.NoError(t, err)

	stream, err := ch.OpenStream(context.Background(), MethodMirrorSubscribe, []byte("q"))
	require.NoError(t, err)
	defer stream.Close()

	for i := 0; i < 3; i++ {
		msg, err := stream.Recv()
		require.NoError(t, err)
		assert.Equal(t, []byte{byte(i), 'q'}, msg)
	}

	_, err = stream.Recv()
	assert.ErrorIs(t, err, io.EOF, "clean end of stream is io.EOF")
}

func TestNetwork_UnknownNode(t *testing.T) {
	n := NewNetwork(map[types.AccountID]string{types.NewAccountID(3): "passthrough:///node3"})
	defer n.Close()

	_, err := n.ChannelFor(types.NewAccountID(99))
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrUnknownNode))
}

func TestNetwork_KnownNodeIDsSortedAndUpdate(t *testing.T) {
	n := NewNetwork(map[types.AccountID]string{
		types.NewAccountID(7): "passthrough:///n7",
		types.NewAccountID(3): "passthrough:///n3",
		types.NewAccountID(5): "passthrough:///n5",
	})
	defer n.Close()

	assert.Equal(t,
		[]types.AccountID{types.NewAccountID(3), types.NewAccountID(5), types.NewAccountID(7)},
		n.KnownNodeIDs())

	_, err := n.ChannelFor(types.NewAccountID(7))
	require.NoError(t, err)

	n.Update(map[types.AccountID]string{types.NewAccountID(4): "passthrough:///n4"})
	assert.Equal(t, []types.AccountID{types.NewAccountID(4)}, n.KnownNodeIDs())

	_, ok := n.Address(types.NewAccountID(7))
	assert.False(t, ok)
	assert.Empty(t, n.conns, "connection to the removed node is closed")
}

func TestNetwork_HeldChannelSurvivesUpdate(t *testing.T) {
	dial := startEchoServer(t)
	node3, node4 := types.NewAccountID(3), types.NewAccountID(4)

	n := NewNetwork(map[types.AccountID]string{node3: "passthrough:///node3"}, dial)
	defer n.Close()

	ch, err := n.ChannelFor(node3)
	require.NoError(t, err)

	stream, err := ch.OpenStream(context.Background(), MethodMirrorSubscribe, []byte("q"))
	require.NoError(t, err)

	n.Update(map[types.AccountID]string{node4: "passthrough:///node4"})
	assert.Empty(t, n.conns)

	resp, err := ch.Invoke(context.Background(), MethodCryptoTransfer, []byte{7})
	require.NoError(t, err, "a channel handed out before the update still reaches its node")
	assert.Equal(t, append([]byte("echo:"), 7), resp)

	for i := 0; i < 3; i++ {
		msg, err := stream.Recv()
		require.NoError(t, err, "an open stream outlives the update")
		assert.Equal(t, []byte{byte(i), 'q'}, msg)
	}
	stream.Close()
	assert.Empty(t, n.conns, "removed address is not cached again")
}

func TestNetwork_ChannelAfterClose(t *testing.T) {
	dial := startEchoServer(t)
	node := types.NewAccountID(3)

	n := NewNetwork(map[types.AccountID]string{node: "passthrough:///node3"}, dial)
	ch, err := n.ChannelFor(node)
	require.NoError(t, err)
	require.NoError(t, n.Close())

	_, err = ch.Invoke(context.Background(), MethodCryptoTransfer, nil)
	assert.ErrorIs(t, err, errPoolClosed)
}

func TestMirrorNetwork_RoundRobinAndEmpty(t *testing.T) {
	m := NewMirrorNetwork([]string{"passthrough:///a", "passthrough:///b"})
	defer m.Close()

	for i := 0; i < 4; i++ {
		_, err := m.Next()
		require.NoError(t, err)
	}
	assert.Len(t, m.conns, 2)

	_, err := NewMirrorNetwork(nil).Next()
	assert.Error(t, err)
}

func TestRawCodec(t *testing.T) {
	c := Codec()
	assert.Equal(t, "proto", c.Name())

	in := []byte{9, 8}
	out, err := c.Marshal(&in)
	require.NoError(t, err)
	assert.Equal(t, in, out)

	var back []byte
	require.NoError(t, c.Unmarshal(out, &back))
	assert.Equal(t, in, back)

	_, err = c.Marshal("nope")
	assert.Error(t, err)
	assert.Error(t, c.Unmarshal(in, new(string)))
}
