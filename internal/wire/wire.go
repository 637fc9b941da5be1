// Package wire encodes and decodes the ledger's protobuf messages by hand
// with protowire. Only the envelope and the bodies of the request kinds this
// module executes are covered; field numbers follow the public service
// definitions so the bytes interoperate with real nodes.
package wire

import (
	"time"

	"github.com/hashgraph/hedera-sdk-core/pkg/types"
	"google.golang.org/protobuf/encoding/protowire"
)

// field is one decoded key/value pair of a message.
type field struct {
	num protowire.Number
	typ protowire.Type
	v   uint64
	b   []byte
}

// parse walks every field of b, skipping groups and unknown encodings.
// Errors returned by fn are passed through untouched.
func parse(b []byte, msg string, fn func(f field) error) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return &types.FromWireError{Message: msg, Cause: protowire.ParseError(n)}
		}
		b = b[n:]

		f := field{num: num, typ: typ}
		switch typ {
		case protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return &types.FromWireError{Message: msg, Cause: protowire.ParseError(n)}
			}
			f.v, b = v, b[n:]
		case protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return &types.FromWireError{Message: msg, Cause: protowire.ParseError(n)}
			}
			f.b, b = v, b[n:]
		case protowire.Fixed32Type:
			v, n := protowire.ConsumeFixed32(b)
			if n < 0 {
				return &types.FromWireError{Message: msg, Cause: protowire.ParseError(n)}
			}
			f.v, b = uint64(v), b[n:]
		case protowire.Fixed64Type:
			v, n := protowire.ConsumeFixed64(b)
			if n < 0 {
				return &types.FromWireError{Message: msg, Cause: protowire.ParseError(n)}
			}
			f.v, b = v, b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return &types.FromWireError{Message: msg, Cause: protowire.ParseError(n)}
			}
			b = b[n:]
			continue
		}

		if err := fn(f); err != nil {
			return err
		}
	}
	return nil
}

func appendVarint(b []byte, num protowire.Number, v uint64) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

func appendBool(b []byte, num protowire.Number, v bool) []byte {
	if !v {
		return b
	}
	return appendVarint(b, num, 1)
}

func appendBytes(b []byte, num protowire.Number, v []byte) []byte {
	if len(v) == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, v)
}

func appendString(b []byte, num protowire.Number, v string) []byte {
	if v == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, v)
}

// appendMessage always emits the field so that presence survives an empty
// sub-message (e.g. account 0.0.0).
func appendMessage(b []byte, num protowire.Number, m []byte) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, m)
}

// ============================================================================
// Basic types
// ============================================================================

func marshalEntity(shard, realm, num uint64) []byte {
	var b []byte
	b = appendVarint(b, 1, shard)
	b = appendVarint(b, 2, realm)
	b = appendVarint(b, 3, num)
	return b
}

func unmarshalEntity(b []byte, msg string) (shard, realm, num uint64, err error) {
	err = parse(b, msg, func(f field) error {
		switch f.num {
		case 1:
			shard = f.v
		case 2:
			realm = f.v
		case 3:
			num = f.v
		}
		return nil
	})
	return
}

func marshalAccountID(a types.AccountID) []byte {
	return marshalEntity(a.Shard, a.Realm, a.Num)
}

func unmarshalAccountID(b []byte) (types.AccountID, error) {
	s, r, n, err := unmarshalEntity(b, "AccountID")
	return types.AccountID{Shard: s, Realm: r, Num: n}, err
}

func marshalFileID(id types.FileID) []byte {
	return marshalEntity(id.Shard, id.Realm, id.Num)
}

func unmarshalFileID(b []byte) (types.FileID, error) {
	s, r, n, err := unmarshalEntity(b, "FileID")
	return types.FileID{Shard: s, Realm: r, Num: n}, err
}

func marshalTopicID(id types.TopicID) []byte {
	return marshalEntity(id.Shard, id.Realm, id.Num)
}

func unmarshalTopicID(b []byte) (types.TopicID, error) {
	s, r, n, err := unmarshalEntity(b, "TopicID")
	return types.TopicID{Shard: s, Realm: r, Num: n}, err
}

func marshalTimestamp(t time.Time) []byte {
	var b []byte
	b = appendVarint(b, 1, uint64(t.Unix()))
	b = appendVarint(b, 2, uint64(int64(t.Nanosecond())))
	return b
}

func unmarshalTimestamp(b []byte) (time.Time, error) {
	var secs, nanos int64
	err := parse(b, "Timestamp", func(f field) error {
		switch f.num {
		case 1:
			secs = int64(f.v)
		case 2:
			nanos = int64(int32(f.v))
		}
		return nil
	})
	return time.Unix(secs, nanos).UTC(), err
}

func marshalDuration(d time.Duration) []byte {
	return appendVarint(nil, 1, uint64(int64(d/time.Second)))
}

func unmarshalDuration(b []byte) (time.Duration, error) {
	var secs int64
	err := parse(b, "Duration", func(f field) error {
		if f.num == 1 {
			secs = int64(f.v)
		}
		return nil
	})
	return time.Duration(secs) * time.Second, err
}

// MarshalTransactionID encodes TransactionID{validStart=1, accountID=2,
// scheduled=3, nonce=4}.
func MarshalTransactionID(id types.TransactionID) []byte {
	var b []byte
	b = appendMessage(b, 1, marshalTimestamp(id.ValidStart))
	b = appendMessage(b, 2, marshalAccountID(id.AccountID))
	b = appendBool(b, 3, id.Scheduled)
	b = appendVarint(b, 4, uint64(int64(id.Nonce)))
	return b
}

// UnmarshalTransactionID decodes the output of MarshalTransactionID.
func UnmarshalTransactionID(b []byte) (types.TransactionID, error) {
	var id types.TransactionID
	err := parse(b, "TransactionID", func(f field) error {
		var err error
		switch f.num {
		case 1:
			id.ValidStart, err = unmarshalTimestamp(f.b)
		case 2:
			id.AccountID, err = unmarshalAccountID(f.b)
		case 3:
			id.Scheduled = f.v != 0
		case 4:
			id.Nonce = int32(f.v)
		}
		return err
	})
	return id, err
}
