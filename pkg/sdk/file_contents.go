package sdk

import (
	"context"

	"github.com/hashgraph/hedera-sdk-core/internal/network"
	"github.com/hashgraph/hedera-sdk-core/internal/wire"
	"github.com/hashgraph/hedera-sdk-core/pkg/types"
)

// FileContentsQuery reads a file. It is a paid query: unless
// QueryPayment is set, the node is first asked for the cost, and the
// query fails with MaxQueryPaymentExceededError when the quote is above
// the cap.
type FileContentsQuery struct {
	PaidQueryParams
	FileID types.FileID
}

func (q *FileContentsQuery) executable() *queryExecutable {
	return &queryExecutable{
		name:   "FileContentsQuery",
		method: network.MethodFileGetContents,
		kind:   wire.QueryFileContents,
		fill: func(m *wire.Query) {
			m.FileID = q.FileID
		},
	}
}

// GetCost returns what the node would charge.
func (q *FileContentsQuery) GetCost(ctx context.Context, client *Client) (types.Hbar, error) {
	exec := q.executable()
	exec.paid = true
	exec.nodes = q.NodeAccountIDs
	exec.paymentID = q.PaymentTransactionID
	return cost(ctx, client, *exec)
}

func (q *FileContentsQuery) Execute(ctx context.Context, client *Client) ([]byte, error) {
	resp, err := runPaid(ctx, client, &q.PaidQueryParams, q.executable())
	if err != nil {
		return nil, err
	}
	return resp.FileContents, nil
}
