package server

import (
	"context"
	"net/netip"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/hashgraph/hedera-sdk-core/internal/network"
	"github.com/hashgraph/hedera-sdk-core/pkg/types"
)

var node3 = types.NewAccountID(3)

func TestNodeAddress_Endpoints(t *testing.T) {
	got, err := nodeAddress(types.NodeAddress{
		NodeID:    2,
		AccountID: node3,
		Endpoints: []string{"10.0.0.3:50211", "node3.example.com:50212"},
	})
	require.NoError(t, err)

	require.Len(t, got.Endpoints, 2)
	assert.Equal(t, netip.MustParseAddr("10.0.0.3"), got.Endpoints[0].IPv4)
	assert.Equal(t, int32(50211), got.Endpoints[0].Port)
	assert.Equal(t, "node3.example.com", got.Endpoints[1].DomainName)
	assert.Equal(t, int32(50212), got.Endpoints[1].Port)

	_, err = nodeAddress(types.NodeAddress{AccountID: node3, Endpoints: []string{"no-port"}})
	assert.Error(t, err)
}

func TestSplitHostPort(t *testing.T) {
	host, port, err := splitHostPort("[::1]:5600")
	require.NoError(t, err)
	assert.Equal(t, "::1", host)
	assert.Equal(t, int32(5600), port)

	_, _, err = splitHostPort("host:99999")
	assert.Error(t, err)
}

func TestLedger_SetupAndInspection(t *testing.T) {
	l := NewLedger()
	l.CreateAccount(node3, types.HbarFrom(2), nil)
	l.CreateFile(types.FileID{Num: 150}, []byte("abc"))

	assert.Equal(t, types.HbarFrom(2), l.Balance(node3))
	assert.Equal(t, []byte("abc"), l.File(types.FileID{Num: 150}))
	assert.Zero(t, l.Balance(types.NewAccountID(99)))
	assert.Empty(t, l.Requests(""))
}

func TestInMemory_ScriptedTransportError(t *testing.T) {
	l := NewLedger()
	l.Script(network.MethodCryptoGetBalance, Step{Code: codes.Unavailable, Message: "node draining"})

	mem := StartInMemory(l, node3)
	defer mem.Stop()

	dir := network.NewNetwork(mem.Nodes, network.WithDialOptions(mem.DialOptions()...))
	defer dir.Close()

	ch, err := dir.ChannelFor(node3)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err = ch.Invoke(ctx, network.MethodCryptoGetBalance, nil)
	require.Error(t, err)
	assert.Equal(t, codes.Unavailable, status.Code(err))

	reqs := l.Requests(network.MethodCryptoGetBalance)
	require.Len(t, reqs, 1)
	assert.Equal(t, node3, reqs[0].Node)
}

func TestInMemory_StopMakesNodesUnreachable(t *testing.T) {
	l := NewLedger()
	mem := StartInMemory(l, node3)

	dir := network.NewNetwork(mem.Nodes, network.WithDialOptions(mem.DialOptions()...))
	defer dir.Close()
	mem.Stop()

	ch, err := dir.ChannelFor(node3)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err = ch.Invoke(ctx, network.MethodCryptoGetBalance, nil)
	assert.Error(t, err)
}
