package sdk

import (
	"context"
	"errors"
	"io"
	"net"
	"strconv"
	"time"

	"github.com/hashgraph/hedera-sdk-core/internal/mirror"
	"github.com/hashgraph/hedera-sdk-core/internal/network"
	"github.com/hashgraph/hedera-sdk-core/internal/wire"
	"github.com/hashgraph/hedera-sdk-core/pkg/types"
	"google.golang.org/grpc/codes"
)

// AddressBookFileID is the file the network publishes its node list in.
var AddressBookFileID = types.FileID{Num: 102}

// NodeAddressBookQuery streams the current address book from a mirror
// node and collects it.
type NodeAddressBookQuery struct {
	// FileID defaults to AddressBookFileID.
	FileID *types.FileID
	Limit  int32
	// Timeout has the same meaning as TopicMessageQuery.Timeout.
	Timeout time.Duration
}

func (q *NodeAddressBookQuery) Name() string   { return "NodeAddressBookQuery" }
func (q *NodeAddressBookQuery) Method() string { return network.MethodMirrorAddressBook }

func (q *NodeAddressBookQuery) Request() []byte {
	file := AddressBookFileID
	if q.FileID != nil {
		file = *q.FileID
	}
	return (&wire.AddressBookQuery{FileID: file, Limit: q.Limit}).Marshal()
}

func (q *NodeAddressBookQuery) ShouldRetry(codes.Code) bool { return false }

// Execute reads the stream to its end.
func (q *NodeAddressBookQuery) Execute(ctx context.Context, client *Client) (types.AddressBook, error) {
	sub := mirror.Subscribe(ctx, client.mirror, q, client.mirrorOptions(q.Timeout))
	defer sub.Close()

	var book types.AddressBook
	for {
		raw, err := sub.Recv(ctx)
		if errors.Is(err, io.EOF) {
			return book, nil
		}
		if err != nil {
			return book, err
		}
		node, err := wire.UnmarshalNodeAddress(raw)
		if err != nil {
			return book, err
		}
		book.Nodes = append(book.Nodes, nodeAddress(node))
	}
}

func nodeAddress(n *wire.NodeAddress) types.NodeAddress {
	out := types.NodeAddress{
		NodeID:      n.NodeID,
		AccountID:   n.NodeAccountID,
		Description: n.Description,
		Stake:       n.Stake,
	}
	for _, ep := range n.Endpoints {
		host := ep.DomainName
		if ep.IPv4.IsValid() {
			host = ep.IPv4.String()
		}
		if host == "" {
			continue
		}
		out.Endpoints = append(out.Endpoints, net.JoinHostPort(host, strconv.Itoa(int(ep.Port))))
	}
	return out
}
