package wire

import (
	"errors"
	"net/netip"
	"testing"
	"time"

	"github.com/hashgraph/hedera-sdk-core/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testTxID() types.TransactionID {
	return types.TransactionID{
		AccountID:  types.NewAccountID(1001),
		ValidStart: time.Unix(1700000000, 42).UTC(),
	}
}

func TestTransactionBody_SubmitMessageWithChunkInfo(t *testing.T) {
	body := &TransactionBody{
		TransactionID:  testTxID(),
		NodeAccountID:  types.NewAccountID(3),
		TransactionFee: 200_000_000,
		ValidDuration:  120 * time.Second,
		Memo:           "hello",
		Data: &ConsensusSubmitMessage{
			TopicID: types.TopicID{Num: 55},
			Message: []byte("chunk-bytes"),
			ChunkInfo: NewMessageChunkInfo(types.ChunkInfo{
				InitialID: testTxID(),
				Current:   0,
				Total:     6,
			}),
		},
	}

	raw := body.Marshal()
	assert.Equal(t, raw, body.Marshal(), "encoding must be deterministic")

	got, err := UnmarshalTransactionBody(raw)
	require.NoError(t, err)
	assert.Equal(t, body.TransactionID, got.TransactionID)
	assert.Equal(t, body.NodeAccountID, got.NodeAccountID)
	assert.Equal(t, body.TransactionFee, got.TransactionFee)
	assert.Equal(t, body.ValidDuration, got.ValidDuration)
	assert.Equal(t, "hello", got.Memo)

	msg, ok := got.Data.(*ConsensusSubmitMessage)
	require.True(t, ok)
	assert.Equal(t, []byte("chunk-bytes"), msg.Message)
	require.NotNil(t, msg.ChunkInfo)
	assert.Equal(t, int32(6), msg.ChunkInfo.Total)
	assert.Equal(t, int32(1), msg.ChunkInfo.Number, "the first chunk is number 1 on the wire")

	kind, err := DataKind(raw)
	require.NoError(t, err)
	assert.Equal(t, DataConsensusSubmitMessage, kind)
}

func TestCryptoTransfer_NegativeAmounts(t *testing.T) {
	body := &TransactionBody{
		TransactionID: testTxID(),
		NodeAccountID: types.NewAccountID(3),
		Data: &CryptoTransfer{Transfers: []AccountAmount{
			{AccountID: types.NewAccountID(1001), Amount: -500},
			{AccountID: types.NewAccountID(1002), Amount: 500},
		}},
	}

	got, err := UnmarshalTransactionBody(body.Marshal())
	require.NoError(t, err)

	transfer, ok := got.Data.(*CryptoTransfer)
	require.True(t, ok)
	require.Len(t, transfer.Transfers, 2)
	assert.Equal(t, int64(-500), transfer.Transfers[0].Amount)
	assert.Equal(t, types.NewAccountID(1002), transfer.Transfers[1].AccountID)
}

func TestSignedTransaction_PreservesSignatureOrder(t *testing.T) {
	signed := &SignedTransaction{
		BodyBytes: []byte{1, 2, 3},
		SigPairs: []SignaturePair{
			{PubKeyPrefix: []byte("a"), Ed25519: []byte("sig-a")},
			{PubKeyPrefix: []byte("b"), ECDSASecp256k1: []byte("sig-b")},
			{PubKeyPrefix: []byte("c"), Ed25519: []byte("sig-c")},
		},
	}

	envelope := MarshalTransaction(signed.Marshal())
	inner, err := UnmarshalTransaction(envelope)
	require.NoError(t, err)

	got, err := UnmarshalSignedTransaction(inner)
	require.NoError(t, err)
	require.Len(t, got.SigPairs, 3)
	assert.Equal(t, []byte("a"), got.SigPairs[0].PubKeyPrefix)
	assert.Equal(t, []byte("sig-b"), got.SigPairs[1].ECDSASecp256k1)
	assert.Equal(t, []byte("c"), got.SigPairs[2].PubKeyPrefix)
}

func TestQueryResponse_Receipt(t *testing.T) {
	q := &Query{
		Kind:          QueryReceipt,
		Header:        QueryHeader{ResponseType: AnswerOnly},
		TransactionID: testTxID(),
	}
	gotQ, err := UnmarshalQuery(q.Marshal())
	require.NoError(t, err)
	assert.Equal(t, QueryReceipt, gotQ.Kind)
	assert.Equal(t, testTxID(), gotQ.TransactionID)

	topic := types.TopicID{Num: 9}
	resp := &Response{
		Kind:    QueryReceipt,
		Header:  ResponseHeader{PreCheckCode: types.StatusOK},
		Receipt: &Receipt{Status: types.StatusSuccess, TopicID: &topic, TopicSequenceNumber: 4},
	}
	gotR, err := UnmarshalResponse(resp.Marshal())
	require.NoError(t, err)
	require.NotNil(t, gotR.Receipt)
	assert.Equal(t, types.StatusSuccess, gotR.Receipt.Status)
	assert.Equal(t, topic, *gotR.Receipt.TopicID)
	assert.Equal(t, uint64(4), gotR.Receipt.TopicSequenceNumber)
}

func TestResponse_CostAnswer(t *testing.T) {
	resp := &Response{
		Kind:   QueryFileContents,
		Header: ResponseHeader{PreCheckCode: types.StatusOK, ResponseType: CostAnswer, Cost: 12345},
	}
	got, err := UnmarshalResponse(resp.Marshal())
	require.NoError(t, err)
	assert.Equal(t, CostAnswer, got.Header.ResponseType)
	assert.Equal(t, uint64(12345), got.Header.Cost)
}

func TestNodeAddress(t *testing.T) {
	n := &NodeAddress{
		NodeID:        2,
		NodeAccountID: types.NewAccountID(5),
		Endpoints: []ServiceEndpoint{
			{IPv4: netip.MustParseAddr("10.0.0.7"), Port: 50211},
			{DomainName: "node.example.org", Port: 50212},
		},
		Description: "node two",
	}

	got, err := UnmarshalNodeAddress(n.Marshal())
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.NodeID)
	require.Len(t, got.Endpoints, 2)
	assert.Equal(t, "10.0.0.7", got.Endpoints[0].IPv4.String())
	assert.Equal(t, "node.example.org", got.Endpoints[1].DomainName)
}

func TestMalformedBytes(t *testing.T) {
	_, err := UnmarshalTransactionBody([]byte{0x0a, 0xff})
	require.Error(t, err)

	var fw *types.FromWireError
	assert.True(t, errors.As(err, &fw))

	_, err = UnmarshalTransaction([]byte{})
	assert.Error(t, err, "empty envelope has no signed bytes")

	_, err = DataKind((&TransactionBody{TransactionID: testTxID()}).Marshal())
	assert.Error(t, err)
}
