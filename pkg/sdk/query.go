package sdk

import (
	"context"

	"github.com/hashgraph/hedera-sdk-core/internal/execute"
	"github.com/hashgraph/hedera-sdk-core/internal/wire"
	"github.com/hashgraph/hedera-sdk-core/pkg/types"
)

// queryExecutable adapts one query to the engine. Paid queries carry a
// payment transaction in their header; that transaction is what the
// engine's identity refers to.
type queryExecutable struct {
	name   string
	method string
	kind   wire.QueryKind
	nodes  []types.AccountID

	paid         bool
	payment      types.Hbar
	responseType wire.ResponseType
	paymentID    *types.TransactionID

	fill          func(q *wire.Query)
	retryPreCheck func(code types.Status) bool
	shouldRetry   func(resp *wire.Response) (bool, error)
}

var _ execute.Executable = (*queryExecutable)(nil)

func (q *queryExecutable) Name() string                        { return q.name }
func (q *queryExecutable) IsQuery() bool                       { return true }
func (q *queryExecutable) RequiresTransactionID() bool         { return q.paid }
func (q *queryExecutable) TransactionID() *types.TransactionID { return q.paymentID }
func (q *queryExecutable) NodeAccountIDs() []types.AccountID   { return q.nodes }
func (q *queryExecutable) Method() string                      { return q.method }

func (q *queryExecutable) MakeRequest(ctx context.Context, b *execute.Builder, id *types.TransactionID, node types.AccountID) (execute.Request, error) {
	msg := &wire.Query{Kind: q.kind, Header: wire.QueryHeader{ResponseType: q.responseType}}
	if q.fill != nil {
		q.fill(msg)
	}

	if q.paid {
		payment, err := paymentTransaction(ctx, b, *id, node, q.payment)
		if err != nil {
			return execute.Request{}, err
		}
		msg.Header.Payment = payment
	}
	return execute.Request{Bytes: msg.Marshal()}, nil
}

// paymentTransaction moves amount from the payer to the node that will
// answer. Cost lookups still carry one, with a zero amount.
func paymentTransaction(ctx context.Context, b *execute.Builder, id types.TransactionID, node types.AccountID, amount types.Hbar) ([]byte, error) {
	body := &wire.TransactionBody{
		TransactionID:  id,
		NodeAccountID:  node,
		TransactionFee: uint64(b.MaxTransactionFee(nil, defaultTransferFee).Tinybars()),
		ValidDuration:  DefaultValidDuration,
		Data: &wire.CryptoTransfer{Transfers: []wire.AccountAmount{
			{AccountID: id.AccountID, Amount: -amount.Tinybars()},
			{AccountID: node, Amount: amount.Tinybars()},
		}},
	}
	signed, err := b.Sign(ctx, body.Marshal(), nil)
	if err != nil {
		return nil, err
	}
	return signed.Transaction, nil
}

func (q *queryExecutable) ResponseStatus(resp []byte) (types.Status, error) {
	r, err := wire.UnmarshalResponse(resp)
	if err != nil {
		return 0, err
	}
	return r.Header.PreCheckCode, nil
}

func (q *queryExecutable) ShouldRetryPreCheck(code types.Status) bool {
	return q.retryPreCheck != nil && q.retryPreCheck(code)
}

func (q *queryExecutable) ShouldRetry(resp []byte) (bool, error) {
	if q.shouldRetry == nil {
		return false, nil
	}
	r, err := wire.UnmarshalResponse(resp)
	if err != nil {
		return false, nil
	}
	return q.shouldRetry(r)
}

func (q *queryExecutable) run(ctx context.Context, client *Client) (*wire.Response, error) {
	res, err := execute.Execute(ctx, client.network, q, client.executeConfig())
	if err != nil {
		return nil, err
	}
	return wire.UnmarshalResponse(res.Response)
}

// ============================================================================
// Paid queries
// ============================================================================

// PaidQueryParams are the settings a paid query adds.
type PaidQueryParams struct {
	NodeAccountIDs []types.AccountID
	// QueryPayment skips the cost lookup and pays exactly this amount.
	QueryPayment *types.Hbar
	// MaxQueryPayment caps the looked-up cost; zero uses the client cap.
	MaxQueryPayment types.Hbar
	// PaymentTransactionID pins the payment's identity.
	PaymentTransactionID *types.TransactionID
}

// cost asks a node what exec would cost. The cost lookup itself pays
// nothing.
func cost(ctx context.Context, client *Client, exec queryExecutable) (types.Hbar, error) {
	exec.name += ".cost"
	exec.responseType = wire.CostAnswer
	exec.payment = 0
	exec.shouldRetry = nil

	resp, err := exec.run(ctx, client)
	if err != nil {
		return 0, err
	}
	return types.Hbar(int64(resp.Header.Cost)), nil
}

// runPaid resolves the payment amount and executes exec.
func runPaid(ctx context.Context, client *Client, p *PaidQueryParams, exec *queryExecutable) (*wire.Response, error) {
	exec.paid = true
	exec.nodes = p.NodeAccountIDs
	exec.paymentID = p.PaymentTransactionID

	if p.QueryPayment != nil {
		exec.payment = *p.QueryPayment
		return exec.run(ctx, client)
	}

	quoted, err := cost(ctx, client, *exec)
	if err != nil {
		return nil, err
	}
	limit := p.MaxQueryPayment
	if limit <= 0 {
		limit = client.MaxQueryPayment()
	}
	if quoted > limit {
		return nil, &types.MaxQueryPaymentExceededError{Cost: quoted, Max: limit}
	}

	exec.payment = quoted
	return exec.run(ctx, client)
}
