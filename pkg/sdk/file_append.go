package sdk

import (
	"context"
	"fmt"

	"github.com/hashgraph/hedera-sdk-core/internal/chunk"
	"github.com/hashgraph/hedera-sdk-core/internal/network"
	"github.com/hashgraph/hedera-sdk-core/internal/wire"
	"github.com/hashgraph/hedera-sdk-core/pkg/types"
)

var defaultFileAppendFee = types.HbarFrom(5)

// FileAppendTransaction appends contents to a file. Large contents are
// chunked like topic messages, but every chunk must reach consensus
// before the next one is sent, because appends are applied in arrival
// order.
type FileAppendTransaction struct {
	TransactionParams
	FileID   types.FileID
	Contents []byte

	ChunkSize int
	MaxChunks int
}

func NewFileAppendTransaction(file types.FileID, contents []byte) *FileAppendTransaction {
	return &FileAppendTransaction{FileID: file, Contents: contents}
}

func (t *FileAppendTransaction) Params() *TransactionParams { return &t.TransactionParams }

func (t *FileAppendTransaction) plan(client *Client) (chunk.Plan, error) {
	size, limit := t.ChunkSize, t.MaxChunks
	if size <= 0 {
		size = client.chunkSize
	}
	if limit <= 0 {
		limit = client.maxChunks
	}
	return chunk.NewPlan(chunk.Data{Payload: t.Contents, ChunkSize: size, MaxChunks: limit})
}

func (t *FileAppendTransaction) partExecutable(part chunk.Part) *txExecutable {
	exec := &txExecutable{
		name:       "FileAppendTransaction",
		method:     network.MethodFileAppend,
		params:     &t.TransactionParams,
		defaultFee: defaultFileAppendFee,
		data: func(types.TransactionID, types.AccountID) wire.BodyData {
			return &wire.FileAppend{FileID: t.FileID, Contents: part.Bytes}
		},
	}
	if part.Transmitted() {
		id := part.TransactionID
		exec.pinned = &id
	}
	return exec
}

// ExecuteAll submits and confirms every chunk. The receipt of each chunk
// is fetched from the node that accepted it.
func (t *FileAppendTransaction) ExecuteAll(ctx context.Context, client *Client) ([]*TransactionResponse, error) {
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
				client.observeChunk("FileAppendTransaction")
			}
			return resp, err
		},
		func(ctx context.Context, _ chunk.Part, resp *TransactionResponse) error {
			_, err := resp.GetReceipt(ctx, client)
			return err
		},
	)
}

// Execute appends every chunk and returns the first chunk's response.
func (t *FileAppendTransaction) Execute(ctx context.Context, client *Client) (*TransactionResponse, error) {
	resps, err := t.ExecuteAll(ctx, client)
	if err != nil {
		return nil, err
	}
	return resps[0], nil
}

func (t *FileAppendTransaction) ToBytes(ctx context.Context, client *Client, id types.TransactionID, node types.AccountID) ([]byte, error) {
	plan, err := t.plan(client)
	if err != nil {
		return nil, err
	}
	return t.partExecutable(plan.Part(0, id)).toBytes(ctx, client, id, node)
}

func init() {
	register(wire.DataFileAppend, func(body *wire.TransactionBody) (Transaction, error) {
		data, ok := body.Data.(*wire.FileAppend)
		if !ok {
			return nil, &types.FromWireError{Message: "FileAppendTransactionBody", Cause: fmt.Errorf("unexpected data %T", body.Data)}
		}
		return &FileAppendTransaction{
			TransactionParams: paramsFromBody(body),
			FileID:            data.FileID,
			Contents:          data.Contents,
		}, nil
	})
}
