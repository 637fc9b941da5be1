package sdk

import (
	"context"
	"fmt"

	"github.com/hashgraph/hedera-sdk-core/internal/chunk"
	"github.com/hashgraph/hedera-sdk-core/internal/network"
	"github.com/hashgraph/hedera-sdk-core/internal/wire"
	"github.com/hashgraph/hedera-sdk-core/pkg/types"
)

// TopicMessageSubmitTransaction posts a message to a consensus topic.
// Messages larger than ChunkSize are split into up to MaxChunks parts
// submitted in order; the mirror reassembles them by initial id.
type TopicMessageSubmitTransaction struct {
	TransactionParams
	TopicID types.TopicID
	Message []byte

	// ChunkSize and MaxChunks default to the client settings, then to
	// chunk.DefaultChunkSize and chunk.DefaultMaxChunks.
	ChunkSize int
	MaxChunks int
}

func NewTopicMessageSubmitTransaction(topic types.TopicID, message []byte) *TopicMessageSubmitTransaction {
	return &TopicMessageSubmitTransaction{TopicID: topic, Message: message}
}

func (t *TopicMessageSubmitTransaction) Params() *TransactionParams { return &t.TransactionParams }

func (t *TopicMessageSubmitTransaction) plan(client *Client) (chunk.Plan, error) {
	size, limit := t.ChunkSize, t.MaxChunks
	if size <= 0 {
		size = client.chunkSize
	}
	if limit <= 0 {
		limit = client.maxChunks
	}
	return chunk.NewPlan(chunk.Data{Payload: t.Message, ChunkSize: size, MaxChunks: limit})
}

// partExecutable builds the executable for one part. A single-part
// message goes out as a plain submit without chunk info and keeps the
// caller's regeneration behaviour; parts of a larger message are pinned to
// their derived ids.
func (t *TopicMessageSubmitTransaction) partExecutable(part chunk.Part) *txExecutable {
	exec := &txExecutable{
		name:       "TopicMessageSubmitTransaction",
		method:     network.MethodSubmitMessage,
		params:     &t.TransactionParams,
		defaultFee: defaultTransactionFee,
		data: func(_ types.TransactionID, node types.AccountID) wire.BodyData {
			msg := &wire.ConsensusSubmitMessage{TopicID: t.TopicID, Message: part.Bytes}
			if info := part.Info(node); info.Transmitted() {
				msg.ChunkInfo = wire.NewMessageChunkInfo(info)
			}
			return msg
		},
	}
	if part.Transmitted() {
		id := part.TransactionID
		exec.pinned = &id
	}
	return exec
}

// ExecuteAll submits every chunk and returns one response per chunk. On
// failure the responses of the chunks already accepted are returned with
// the error; no later chunk has been sent.
func (t *TopicMessageSubmitTransaction) ExecuteAll(ctx context.Context, client *Client) ([]*TransactionResponse, error) {
	plan, err := t.plan(client)
	if err != nil {
		return nil, err
	}

	initial, err := initialTransactionID(&t.TransactionParams, client, plan.Total())
	if err != nil {
		return nil, err
	}

	return chunk.Run(ctx, plan, initial,
		func(ctx context.Context, part chunk.Part) (*TransactionResponse, error) {
			resp, err := t.partExecutable(part).run(ctx, client)
			if err == nil {
				client.observeChunk("TopicMessageSubmitTransaction")
			}
			return resp, err
		},
		nil,
	)
}

// Execute submits every chunk and returns the first chunk's response,
// whose transaction id names the whole message.
func (t *TopicMessageSubmitTransaction) Execute(ctx context.Context, client *Client) (*TransactionResponse, error) {
	resps, err := t.ExecuteAll(ctx, client)
	if err != nil {
		return nil, err
	}
	return resps[0], nil
}

// ToBytes renders the first chunk.
func (t *TopicMessageSubmitTransaction) ToBytes(ctx context.Context, client *Client, id types.TransactionID, node types.AccountID) ([]byte, error) {
	plan, err := t.plan(client)
	if err != nil {
		return nil, err
	}
	return t.partExecutable(plan.Part(0, id)).toBytes(ctx, client, id, node)
}

// initialTransactionID is the id chunk 0 is sent under. A single part
// needs no id up front: the engine generates one and may regenerate it.
func initialTransactionID(p *TransactionParams, client *Client, total int) (types.TransactionID, error) {
	if p.TransactionID != nil {
		return *p.TransactionID, nil
	}
	if total == 1 {
		return types.TransactionID{}, nil
	}
	payer := client.OperatorAccountID()
	if payer == nil {
		return types.TransactionID{}, &types.ConfigurationError{
			Reason: "chunked transaction requires a transaction id or an operator",
			Cause:  types.ErrNoPayerAccountOrTransactionID,
		}
	}
	return types.GenerateTransactionID(*payer), nil
}

func init() {
	register(wire.DataConsensusSubmitMessage, func(body *wire.TransactionBody) (Transaction, error) {
		data, ok := body.Data.(*wire.ConsensusSubmitMessage)
		if !ok {
			return nil, &types.FromWireError{Message: "ConsensusSubmitMessageTransactionBody", Cause: fmt.Errorf("unexpected data %T", body.Data)}
		}
		return &TopicMessageSubmitTransaction{
			TransactionParams: paramsFromBody(body),
			TopicID:           data.TopicID,
			Message:           data.Message,
		}, nil
	})
}
