package sdk

import (
	"context"
	"fmt"

	"github.com/hashgraph/hedera-sdk-core/internal/network"
	"github.com/hashgraph/hedera-sdk-core/internal/wire"
	"github.com/hashgraph/hedera-sdk-core/pkg/types"
)

// TransactionReceipt is the consensus outcome of a transaction.
type TransactionReceipt struct {
	TransactionID       types.TransactionID
	Status              types.Status
	AccountID           *types.AccountID
	FileID              *types.FileID
	TopicID             *types.TopicID
	TopicSequenceNumber uint64
	TopicRunningHash    []byte
}

// TransactionReceiptQuery fetches a receipt, polling until it is final.
// Receipts are free.
type TransactionReceiptQuery struct {
	TransactionID        types.TransactionID
	NodeAccountIDs       []types.AccountID
	IncludeDuplicates    bool
	IncludeChildReceipts bool
	// ValidateStatus turns a final non-SUCCESS status into a
	// ReceiptStatusError.
	ValidateStatus bool
}

// receiptPending reports whether a receipt status means consensus has not
// been reached yet.
func receiptPending(s types.Status) bool {
	switch s {
	case types.StatusBusy, types.StatusUnknown, types.StatusOK,
		types.StatusReceiptNotFound, types.StatusRecordNotFound:
		return true
	}
	return false
}

func (q *TransactionReceiptQuery) executable() *queryExecutable {
	return &queryExecutable{
		name:   "TransactionReceiptQuery",
		method: network.MethodGetReceipt,
		kind:   wire.QueryReceipt,
		nodes:  q.NodeAccountIDs,
		fill: func(m *wire.Query) {
			m.TransactionID = q.TransactionID
			m.IncludeDuplicates = q.IncludeDuplicates
			m.IncludeChildReceipts = q.IncludeChildReceipts
		},
		retryPreCheck: func(code types.Status) bool {
			return code == types.StatusUnknown || code == types.StatusReceiptNotFound
		},
		shouldRetry: func(resp *wire.Response) (bool, error) {
			if resp.Receipt == nil {
				return true, fmt.Errorf("receipt for %s: empty response", q.TransactionID)
			}
			if receiptPending(resp.Receipt.Status) {
				return true, fmt.Errorf("receipt for %s: not final yet (%s)", q.TransactionID, resp.Receipt.Status)
			}
			return false, nil
		},
	}
}

func (q *TransactionReceiptQuery) Execute(ctx context.Context, client *Client) (*TransactionReceipt, error) {
	resp, err := q.executable().run(ctx, client)
	if err != nil {
		return nil, err
	}

	r := resp.Receipt
	if r == nil {
		return nil, &types.FromWireError{Message: "TransactionGetReceiptResponse", Cause: fmt.Errorf("missing receipt")}
	}
	receipt := &TransactionReceipt{
		TransactionID:       q.TransactionID,
		Status:              r.Status,
		AccountID:           r.AccountID,
		FileID:              r.FileID,
		TopicID:             r.TopicID,
		TopicSequenceNumber: r.TopicSequenceNumber,
		TopicRunningHash:    r.TopicRunningHash,
	}
	if q.ValidateStatus && r.Status != types.StatusSuccess {
		return receipt, &types.ReceiptStatusError{Status: r.Status, TransactionID: q.TransactionID}
	}
	return receipt, nil
}
