package wire

import (
	"net/netip"
	"time"

	"github.com/hashgraph/hedera-sdk-core/pkg/types"
)

// TopicQuery is ConsensusTopicQuery{topicID=1, consensusStartTime=2,
// consensusEndTime=3, limit=4}.
type TopicQuery struct {
	TopicID   types.TopicID
	StartTime time.Time
	EndTime   time.Time
	Limit     uint64
}

func (q *TopicQuery) Marshal() []byte {
	var b []byte
	b = appendMessage(b, 1, marshalTopicID(q.TopicID))
	if !q.StartTime.IsZero() {
		b = appendMessage(b, 2, marshalTimestamp(q.StartTime))
	}
	if !q.EndTime.IsZero() {
		b = appendMessage(b, 3, marshalTimestamp(q.EndTime))
	}
	b = appendVarint(b, 4, q.Limit)
	return b
}

func UnmarshalTopicQuery(b []byte) (*TopicQuery, error) {
	q := &TopicQuery{}
	err := parse(b, "ConsensusTopicQuery", func(f field) error {
		var err error
		switch f.num {
		case 1:
			q.TopicID, err = unmarshalTopicID(f.b)
		case 2:
			q.StartTime, err = unmarshalTimestamp(f.b)
		case 3:
			q.EndTime, err = unmarshalTimestamp(f.b)
		case 4:
			q.Limit = f.v
		}
		return err
	})
	return q, err
}

// TopicResponse is one ConsensusTopicResponse of the subscribeTopic stream.
type TopicResponse struct {
	ConsensusTimestamp time.Time
	Message            []byte
	RunningHash        []byte
	SequenceNumber     uint64
	RunningHashVersion uint64
	ChunkInfo          *MessageChunkInfo
}

func (r *TopicResponse) Marshal() []byte {
	var b []byte
	b = appendMessage(b, 1, marshalTimestamp(r.ConsensusTimestamp))
	b = appendBytes(b, 2, r.Message)
	b = appendBytes(b, 3, r.RunningHash)
	b = appendVarint(b, 4, r.SequenceNumber)
	b = appendVarint(b, 5, r.RunningHashVersion)
	if r.ChunkInfo != nil {
		b = appendMessage(b, 6, marshalChunkInfo(r.ChunkInfo))
	}
	return b
}

func UnmarshalTopicResponse(b []byte) (*TopicResponse, error) {
	r := &TopicResponse{}
	err := parse(b, "ConsensusTopicResponse", func(f field) error {
		var err error
		switch f.num {
		case 1:
			r.ConsensusTimestamp, err = unmarshalTimestamp(f.b)
		case 2:
			r.Message = f.b
		case 3:
			r.RunningHash = f.b
		case 4:
			r.SequenceNumber = f.v
		case 5:
			r.RunningHashVersion = f.v
		case 6:
			r.ChunkInfo, err = unmarshalChunkInfo(f.b)
		}
		return err
	})
	return r, err
}

// AddressBookQuery{file_id=1, limit=2}.
type AddressBookQuery struct {
	FileID types.FileID
	Limit  int32
}

func (q *AddressBookQuery) Marshal() []byte {
	var b []byte
	b = appendMessage(b, 1, marshalFileID(q.FileID))
	b = appendVarint(b, 2, uint64(int64(q.Limit)))
	return b
}

func UnmarshalAddressBookQuery(b []byte) (*AddressBookQuery, error) {
	q := &AddressBookQuery{}
	err := parse(b, "AddressBookQuery", func(f field) error {
		var err error
		switch f.num {
		case 1:
			q.FileID, err = unmarshalFileID(f.b)
		case 2:
			q.Limit = int32(f.v)
		}
		return err
	})
	return q, err
}

// ServiceEndpoint{ipAddressV4=1, port=2, domain_name=3}.
type ServiceEndpoint struct {
	IPv4       netip.Addr
	Port       int32
	DomainName string
}

// NodeAddress is one entry of the address book stream.
type NodeAddress struct {
	NodeID        int64
	NodeAccountID types.AccountID
	Endpoints     []ServiceEndpoint
	Description   string
	Stake         int64
}

func (n *NodeAddress) Marshal() []byte {
	var b []byte
	b = appendVarint(b, 5, uint64(n.NodeID))
	b = appendMessage(b, 6, marshalAccountID(n.NodeAccountID))
	for _, ep := range n.Endpoints {
		var m []byte
		if ep.IPv4.Is4() {
			ip := ep.IPv4.As4()
			m = appendBytes(m, 1, ip[:])
		}
		m = appendVarint(m, 2, uint64(int64(ep.Port)))
		m = appendString(m, 3, ep.DomainName)
		b = appendMessage(b, 8, m)
	}
	b = appendString(b, 9, n.Description)
	b = appendVarint(b, 10, uint64(n.Stake))
	return b
}

func UnmarshalNodeAddress(b []byte) (*NodeAddress, error) {
	n := &NodeAddress{}
	err := parse(b, "NodeAddress", func(f field) error {
		var err error
		switch f.num {
		case 5:
			n.NodeID = int64(f.v)
		case 6:
			n.NodeAccountID, err = unmarshalAccountID(f.b)
		case 8:
			var ep ServiceEndpoint
			err = parse(f.b, "ServiceEndpoint", func(f field) error {
				switch f.num {
				case 1:
					if addr, ok := netip.AddrFromSlice(f.b); ok {
						ep.IPv4 = addr
					}
				case 2:
					ep.Port = int32(f.v)
				case 3:
					ep.DomainName = string(f.b)
				}
				return nil
			})
			n.Endpoints = append(n.Endpoints, ep)
		case 9:
			n.Description = string(f.b)
		case 10:
			n.Stake = int64(f.v)
		}
		return err
	})
	return n, err
}
