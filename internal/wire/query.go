package wire

import (
	"fmt"

	"github.com/hashgraph/hedera-sdk-core/pkg/types"
	"google.golang.org/protobuf/encoding/protowire"
)

// QueryKind is the field number of the Query / Response oneof.
type QueryKind protowire.Number

const (
	QueryAccountBalance QueryKind = 7
	QueryFileContents   QueryKind = 12
	QueryReceipt        QueryKind = 14
)

func (k QueryKind) String() string {
	switch k {
	case QueryAccountBalance:
		return "cryptogetAccountBalance"
	case QueryFileContents:
		return "fileGetContents"
	case QueryReceipt:
		return "transactionGetReceipt"
	default:
		return fmt.Sprintf("QueryKind(%d)", int(k))
	}
}

// ResponseType selects between an answer and a cost estimate.
type ResponseType int32

const (
	AnswerOnly ResponseType = 0
	CostAnswer ResponseType = 2
)

// QueryHeader{payment=1, responseType=2}. Payment is an encoded Transaction.
type QueryHeader struct {
	Payment      []byte
	ResponseType ResponseType
}

func (h QueryHeader) marshal() []byte {
	var b []byte
	b = appendBytes(b, 1, h.Payment)
	b = appendVarint(b, 2, uint64(int64(h.ResponseType)))
	return b
}

func unmarshalQueryHeader(b []byte) (QueryHeader, error) {
	var h QueryHeader
	err := parse(b, "QueryHeader", func(f field) error {
		switch f.num {
		case 1:
			h.Payment = f.b
		case 2:
			h.ResponseType = ResponseType(int32(f.v))
		}
		return nil
	})
	return h, err
}

// Query is the union of the query kinds this package models. Only the
// fields relevant to Kind are encoded.
type Query struct {
	Kind   QueryKind
	Header QueryHeader

	AccountID            types.AccountID     // balance
	FileID               types.FileID        // file contents
	TransactionID        types.TransactionID // receipt
	IncludeDuplicates    bool
	IncludeChildReceipts bool
}

func (q *Query) Marshal() []byte {
	var inner []byte
	inner = appendMessage(inner, 1, q.Header.marshal())

	switch q.Kind {
	case QueryAccountBalance:
		inner = appendMessage(inner, 2, marshalAccountID(q.AccountID))
	case QueryFileContents:
		inner = appendMessage(inner, 2, marshalFileID(q.FileID))
	case QueryReceipt:
		inner = appendMessage(inner, 2, MarshalTransactionID(q.TransactionID))
		inner = appendBool(inner, 3, q.IncludeDuplicates)
		inner = appendBool(inner, 4, q.IncludeChildReceipts)
	}

	return appendMessage(nil, protowire.Number(q.Kind), inner)
}

func UnmarshalQuery(b []byte) (*Query, error) {
	q := &Query{}
	err := parse(b, "Query", func(f field) error {
		kind := QueryKind(f.num)
		switch kind {
		case QueryAccountBalance, QueryFileContents, QueryReceipt:
		default:
			return nil
		}
		q.Kind = kind

		return parse(f.b, kind.String(), func(f field) error {
			var err error
			switch {
			case f.num == 1:
				q.Header, err = unmarshalQueryHeader(f.b)
			case f.num == 2 && kind == QueryAccountBalance:
				q.AccountID, err = unmarshalAccountID(f.b)
			case f.num == 2 && kind == QueryFileContents:
				q.FileID, err = unmarshalFileID(f.b)
			case f.num == 2 && kind == QueryReceipt:
				q.TransactionID, err = UnmarshalTransactionID(f.b)
			case f.num == 3 && kind == QueryReceipt:
				q.IncludeDuplicates = f.v != 0
			case f.num == 4 && kind == QueryReceipt:
				q.IncludeChildReceipts = f.v != 0
			}
			return err
		})
	})
	if err == nil && q.Kind == 0 {
		err = &types.FromWireError{Message: "Query", Cause: fmt.Errorf("unsupported or missing query kind")}
	}
	return q, err
}

// ResponseHeader{nodeTransactionPrecheckCode=1, responseType=2, cost=3}.
type ResponseHeader struct {
	PreCheckCode types.Status
	ResponseType ResponseType
	Cost         uint64
}

func (h ResponseHeader) marshal() []byte {
	var b []byte
	b = appendVarint(b, 1, uint64(int64(h.PreCheckCode)))
	b = appendVarint(b, 2, uint64(int64(h.ResponseType)))
	b = appendVarint(b, 3, h.Cost)
	return b
}

func unmarshalResponseHeader(b []byte) (ResponseHeader, error) {
	var h ResponseHeader
	err := parse(b, "ResponseHeader", func(f field) error {
		switch f.num {
		case 1:
			h.PreCheckCode = types.Status(int32(f.v))
		case 2:
			h.ResponseType = ResponseType(int32(f.v))
		case 3:
			h.Cost = f.v
		}
		return nil
	})
	return h, err
}

// Receipt is the subset of TransactionReceipt the SDK surfaces.
type Receipt struct {
	Status              types.Status
	AccountID           *types.AccountID
	FileID              *types.FileID
	TopicID             *types.TopicID
	TopicSequenceNumber uint64
	TopicRunningHash    []byte
}

func (r *Receipt) marshal() []byte {
	var b []byte
	b = appendVarint(b, 1, uint64(int64(r.Status)))
	if r.AccountID != nil {
		b = appendMessage(b, 2, marshalAccountID(*r.AccountID))
	}
	if r.FileID != nil {
		b = appendMessage(b, 3, marshalFileID(*r.FileID))
	}
	if r.TopicID != nil {
		b = appendMessage(b, 6, marshalTopicID(*r.TopicID))
	}
	b = appendVarint(b, 7, r.TopicSequenceNumber)
	b = appendBytes(b, 8, r.TopicRunningHash)
	return b
}

func unmarshalReceipt(b []byte) (*Receipt, error) {
	r := &Receipt{}
	err := parse(b, "TransactionReceipt", func(f field) error {
		switch f.num {
		case 1:
			r.Status = types.Status(int32(f.v))
		case 2:
			id, err := unmarshalAccountID(f.b)
			r.AccountID = &id
			return err
		case 3:
			id, err := unmarshalFileID(f.b)
			r.FileID = &id
			return err
		case 6:
			id, err := unmarshalTopicID(f.b)
			r.TopicID = &id
			return err
		case 7:
			r.TopicSequenceNumber = f.v
		case 8:
			r.TopicRunningHash = f.b
		}
		return nil
	})
	return r, err
}

// Response is the union counterpart of Query.
type Response struct {
	Kind   QueryKind
	Header ResponseHeader

	AccountID    types.AccountID // balance
	Balance      uint64
	Receipt      *Receipt // receipt
	FileID       types.FileID
	FileContents []byte
}

func (r *Response) Marshal() []byte {
	var inner []byte
	inner = appendMessage(inner, 1, r.Header.marshal())

	switch r.Kind {
	case QueryAccountBalance:
		inner = appendMessage(inner, 2, marshalAccountID(r.AccountID))
		inner = appendVarint(inner, 3, r.Balance)
	case QueryReceipt:
		if r.Receipt != nil {
			inner = appendMessage(inner, 2, r.Receipt.marshal())
		}
	case QueryFileContents:
		var fc []byte
		fc = appendMessage(fc, 1, marshalFileID(r.FileID))
		fc = appendBytes(fc, 2, r.FileContents)
		inner = appendMessage(inner, 2, fc)
	}

	return appendMessage(nil, protowire.Number(r.Kind), inner)
}

func UnmarshalResponse(b []byte) (*Response, error) {
	r := &Response{}
	err := parse(b, "Response", func(f field) error {
		kind := QueryKind(f.num)
		switch kind {
		case QueryAccountBalance, QueryFileContents, QueryReceipt:
		default:
			return nil
		}
		r.Kind = kind

		return parse(f.b, kind.String(), func(f field) error {
			var err error
			switch {
			case f.num == 1:
				r.Header, err = unmarshalResponseHeader(f.b)
			case f.num == 2 && kind == QueryAccountBalance:
				r.AccountID, err = unmarshalAccountID(f.b)
			case f.num == 3 && kind == QueryAccountBalance:
				r.Balance = f.v
			case f.num == 2 && kind == QueryReceipt:
				r.Receipt, err = unmarshalReceipt(f.b)
			case f.num == 2 && kind == QueryFileContents:
				err = parse(f.b, "FileContents", func(f field) error {
					var err error
					switch f.num {
					case 1:
						r.FileID, err = unmarshalFileID(f.b)
					case 2:
						r.FileContents = f.b
					}
					return err
				})
			}
			return err
		})
	})
	if err == nil && r.Kind == 0 {
		err = &types.FromWireError{Message: "Response", Cause: fmt.Errorf("unsupported or missing response kind")}
	}
	return r, err
}
