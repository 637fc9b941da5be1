package wire

import (
	"fmt"
	"time"

	"github.com/hashgraph/hedera-sdk-core/pkg/types"
	"google.golang.org/protobuf/encoding/protowire"
)

// Data field numbers of the TransactionBody oneof.
const (
	DataCryptoTransfer         protowire.Number = 14
	DataFileAppend             protowire.Number = 16
	DataConsensusSubmitMessage protowire.Number = 27
)

// BodyData is the operation-specific part of a TransactionBody.
type BodyData interface {
	DataField() protowire.Number
	MarshalData() []byte
}

// TransactionBody is the canonical message every signer signs.
type TransactionBody struct {
	TransactionID  types.TransactionID
	NodeAccountID  types.AccountID
	TransactionFee uint64
	ValidDuration  time.Duration
	Memo           string
	Data           BodyData
}

// Marshal encodes the body. Field order is fixed so that equal bodies
// always produce equal bytes, which keeps signatures reproducible.
func (t *TransactionBody) Marshal() []byte {
	var b []byte
	b = appendMessage(b, 1, MarshalTransactionID(t.TransactionID))
	b = appendMessage(b, 2, marshalAccountID(t.NodeAccountID))
	b = appendVarint(b, 3, t.TransactionFee)
	b = appendMessage(b, 4, marshalDuration(t.ValidDuration))
	b = appendString(b, 6, t.Memo)
	if t.Data != nil {
		b = appendMessage(b, t.Data.DataField(), t.Data.MarshalData())
	}
	return b
}

// UnmarshalTransactionBody decodes a body, including the data kinds this
// package knows. Other kinds are kept as UnknownData.
func UnmarshalTransactionBody(b []byte) (*TransactionBody, error) {
	body := &TransactionBody{}
	err := parse(b, "TransactionBody", func(f field) error {
		var err error
		switch f.num {
		case 1:
			body.TransactionID, err = UnmarshalTransactionID(f.b)
		case 2:
			body.NodeAccountID, err = unmarshalAccountID(f.b)
		case 3:
			body.TransactionFee = f.v
		case 4:
			body.ValidDuration, err = unmarshalDuration(f.b)
		case 6:
			body.Memo = string(f.b)
		case DataCryptoTransfer:
			body.Data, err = unmarshalCryptoTransfer(f.b)
		case DataFileAppend:
			body.Data, err = unmarshalFileAppend(f.b)
		case DataConsensusSubmitMessage:
			body.Data, err = unmarshalSubmitMessage(f.b)
		default:
			if f.typ == protowire.BytesType && f.num > 6 {
				body.Data = &UnknownData{Field: f.num, Raw: f.b}
			}
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return body, nil
}

// DataKind returns the data field number of encoded body bytes without
// decoding the data itself.
func DataKind(bodyBytes []byte) (protowire.Number, error) {
	var kind protowire.Number
	err := parse(bodyBytes, "TransactionBody", func(f field) error {
		if f.typ == protowire.BytesType && f.num > 6 {
			kind = f.num
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	if kind == 0 {
		return 0, &types.FromWireError{Message: "TransactionBody", Cause: fmt.Errorf("no data field")}
	}
	return kind, nil
}

// UnknownData carries a data kind this package does not model.
type UnknownData struct {
	Field protowire.Number
	Raw   []byte
}

func (u *UnknownData) DataField() protowire.Number { return u.Field }
func (u *UnknownData) MarshalData() []byte        { return u.Raw }

// ============================================================================
// Data kinds
// ============================================================================

// AccountAmount is one leg of a transfer; Amount is signed tinybars.
type AccountAmount struct {
	AccountID types.AccountID
	Amount    int64
}

// CryptoTransfer moves hbar between accounts.
type CryptoTransfer struct {
	Transfers []AccountAmount
}

func (c *CryptoTransfer) DataField() protowire.Number { return DataCryptoTransfer }

func (c *CryptoTransfer) MarshalData() []byte {
	var list []byte
	for _, aa := range c.Transfers {
		var m []byte
		m = appendMessage(m, 1, marshalAccountID(aa.AccountID))
		m = appendVarint(m, 2, protowire.EncodeZigZag(aa.Amount))
		list = appendMessage(list, 1, m)
	}
	return appendMessage(nil, 1, list)
}

func unmarshalCryptoTransfer(b []byte) (*CryptoTransfer, error) {
	out := &CryptoTransfer{}
	err := parse(b, "CryptoTransferTransactionBody", func(f field) error {
		if f.num != 1 {
			return nil
		}
		return parse(f.b, "TransferList", func(f field) error {
			if f.num != 1 {
				return nil
			}
			var aa AccountAmount
			err := parse(f.b, "AccountAmount", func(f field) error {
				var err error
				switch f.num {
				case 1:
					aa.AccountID, err = unmarshalAccountID(f.b)
				case 2:
					aa.Amount = protowire.DecodeZigZag(f.v)
				}
				return err
			})
			out.Transfers = append(out.Transfers, aa)
			return err
		})
	})
	return out, err
}

// FileAppend appends contents to a file.
type FileAppend struct {
	FileID   types.FileID
	Contents []byte
}

func (f *FileAppend) DataField() protowire.Number { return DataFileAppend }

func (f *FileAppend) MarshalData() []byte {
	var b []byte
	b = appendMessage(b, 2, marshalFileID(f.FileID))
	b = appendBytes(b, 4, f.Contents)
	return b
}

func unmarshalFileAppend(b []byte) (*FileAppend, error) {
	out := &FileAppend{}
	err := parse(b, "FileAppendTransactionBody", func(f field) error {
		var err error
		switch f.num {
		case 2:
			out.FileID, err = unmarshalFileID(f.b)
		case 4:
			out.Contents = f.b
		}
		return err
	})
	return out, err
}

// MessageChunkInfo is the wire form of a chunk marker. Number is 1-based.
type MessageChunkInfo struct {
	InitialID types.TransactionID
	Total     int32
	Number    int32
}

// NewMessageChunkInfo converts a 0-based chunk marker to the wire form.
func NewMessageChunkInfo(c types.ChunkInfo) *MessageChunkInfo {
	return &MessageChunkInfo{
		InitialID: c.InitialID,
		Total:     int32(c.Total),
		Number:    int32(c.Current + 1),
	}
}

func marshalChunkInfo(c *MessageChunkInfo) []byte {
	var b []byte
	b = appendMessage(b, 1, MarshalTransactionID(c.InitialID))
	b = appendVarint(b, 2, uint64(int64(c.Total)))
	b = appendVarint(b, 3, uint64(int64(c.Number)))
	return b
}

func unmarshalChunkInfo(b []byte) (*MessageChunkInfo, error) {
	out := &MessageChunkInfo{}
	err := parse(b, "ConsensusMessageChunkInfo", func(f field) error {
		var err error
		switch f.num {
		case 1:
			out.InitialID, err = UnmarshalTransactionID(f.b)
		case 2:
			out.Total = int32(f.v)
		case 3:
			out.Number = int32(f.v)
		}
		return err
	})
	return out, err
}

// ConsensusSubmitMessage posts a message (or one chunk of it) to a topic.
type ConsensusSubmitMessage struct {
	TopicID   types.TopicID
	Message   []byte
	ChunkInfo *MessageChunkInfo
}

func (c *ConsensusSubmitMessage) DataField() protowire.Number { return DataConsensusSubmitMessage }

func (c *ConsensusSubmitMessage) MarshalData() []byte {
	var b []byte
	b = appendMessage(b, 1, marshalTopicID(c.TopicID))
	b = appendBytes(b, 2, c.Message)
	if c.ChunkInfo != nil {
		b = appendMessage(b, 3, marshalChunkInfo(c.ChunkInfo))
	}
	return b
}

func unmarshalSubmitMessage(b []byte) (*ConsensusSubmitMessage, error) {
	out := &ConsensusSubmitMessage{}
	err := parse(b, "ConsensusSubmitMessageTransactionBody", func(f field) error {
		var err error
		switch f.num {
		case 1:
			out.TopicID, err = unmarshalTopicID(f.b)
		case 2:
			out.Message = f.b
		case 3:
			out.ChunkInfo, err = unmarshalChunkInfo(f.b)
		}
		return err
	})
	return out, err
}

// ============================================================================
// Signed envelope
// ============================================================================

// SignaturePair holds one signature; exactly one of Ed25519 / ECDSA is set.
type SignaturePair struct {
	PubKeyPrefix   []byte
	Ed25519        []byte
	ECDSASecp256k1 []byte
}

// SignedTransaction{bodyBytes=1, sigMap=2}.
type SignedTransaction struct {
	BodyBytes []byte
	SigPairs  []SignaturePair
}

func (s *SignedTransaction) Marshal() []byte {
	var sigMap []byte
	for _, p := range s.SigPairs {
		var m []byte
		m = appendBytes(m, 1, p.PubKeyPrefix)
		m = appendBytes(m, 3, p.Ed25519)
		m = appendBytes(m, 6, p.ECDSASecp256k1)
		sigMap = appendMessage(sigMap, 1, m)
	}

	var b []byte
	b = appendBytes(b, 1, s.BodyBytes)
	b = appendMessage(b, 2, sigMap)
	return b
}

func UnmarshalSignedTransaction(b []byte) (*SignedTransaction, error) {
	out := &SignedTransaction{}
	err := parse(b, "SignedTransaction", func(f field) error {
		switch f.num {
		case 1:
			out.BodyBytes = f.b
		case 2:
			return parse(f.b, "SignatureMap", func(f field) error {
				if f.num != 1 {
					return nil
				}
				var p SignaturePair
				err := parse(f.b, "SignaturePair", func(f field) error {
					switch f.num {
					case 1:
						p.PubKeyPrefix = f.b
					case 3:
						p.Ed25519 = f.b
					case 6:
						p.ECDSASecp256k1 = f.b
					}
					return nil
				})
				out.SigPairs = append(out.SigPairs, p)
				return err
			})
		}
		return nil
	})
	return out, err
}

// MarshalTransaction wraps signed bytes into Transaction{signedTransactionBytes=5}.
func MarshalTransaction(signed []byte) []byte {
	return appendBytes(nil, 5, signed)
}

// UnmarshalTransaction returns the signed transaction bytes of an envelope.
func UnmarshalTransaction(b []byte) ([]byte, error) {
	var signed []byte
	err := parse(b, "Transaction", func(f field) error {
		if f.num == 5 {
			signed = f.b
		}
		return nil
	})
	if err == nil && signed == nil {
		err = &types.FromWireError{Message: "Transaction", Cause: fmt.Errorf("missing signedTransactionBytes")}
	}
	return signed, err
}

// TransactionResponse is the node's synchronous answer to a submit.
type TransactionResponse struct {
	PreCheckCode types.Status
	Cost         uint64
}

func (r *TransactionResponse) Marshal() []byte {
	var b []byte
	b = appendVarint(b, 1, uint64(int64(r.PreCheckCode)))
	b = appendVarint(b, 2, r.Cost)
	return b
}

func UnmarshalTransactionResponse(b []byte) (*TransactionResponse, error) {
	out := &TransactionResponse{}
	err := parse(b, "TransactionResponse", func(f field) error {
		switch f.num {
		case 1:
			out.PreCheckCode = types.Status(int32(f.v))
		case 2:
			out.Cost = f.v
		}
		return nil
	})
	return out, err
}
