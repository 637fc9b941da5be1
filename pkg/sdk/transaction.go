package sdk

import (
	"context"
	"fmt"
	"time"

	"github.com/hashgraph/hedera-sdk-core/internal/execute"
	"github.com/hashgraph/hedera-sdk-core/internal/sign"
	"github.com/hashgraph/hedera-sdk-core/internal/wire"
	"github.com/hashgraph/hedera-sdk-core/pkg/types"
	"google.golang.org/protobuf/encoding/protowire"
)

// Signer, PublicKey and Algorithm are re-exported so callers can supply
// their own key material without importing internal packages.
type (
	Signer    = sign.Signer
	PublicKey = sign.PublicKey
	Algorithm = sign.Algorithm
)

const (
	Ed25519        = sign.Ed25519
	ECDSASecp256k1 = sign.ECDSASecp256k1
)

// ParsePrivateKey builds a Signer from a hex key.
func ParsePrivateKey(algorithm Algorithm, hexKey string) (Signer, error) {
	return sign.ParsePrivateKey(algorithm, hexKey)
}

const (
	DefaultValidDuration = 120 * time.Second

	defaultTransactionFee = 2 * types.TinybarsPerHbar
)

// ============================================================================
// Common parameters
// ============================================================================

// TransactionParams holds the settings every transaction kind shares.
// Kinds embed it, so the fields are set directly on the transaction.
type TransactionParams struct {
	// NodeAccountIDs restricts which nodes may receive the transaction.
	NodeAccountIDs []types.AccountID
	// TransactionID pins the identity. A pinned id is never regenerated,
	// so an expired or duplicate rejection is returned to the caller.
	TransactionID *types.TransactionID
	// MaxTransactionFee overrides the client ceiling and the kind default.
	MaxTransactionFee *types.Hbar
	// ValidDuration defaults to DefaultValidDuration.
	ValidDuration time.Duration
	Memo          string
	// Signers sign after the operator, in this order.
	Signers []Signer
}

// Sign appends a signer.
func (p *TransactionParams) Sign(s Signer) {
	p.Signers = append(p.Signers, s)
}

func (p *TransactionParams) validDuration() time.Duration {
	if p.ValidDuration <= 0 {
		return DefaultValidDuration
	}
	return p.ValidDuration
}

// Transaction is implemented by every transaction kind.
type Transaction interface {
	// Execute submits the transaction (every chunk, for chunked kinds) and
	// returns the response of the last submission.
	Execute(ctx context.Context, client *Client) (*TransactionResponse, error)
	// Params exposes the shared settings.
	Params() *TransactionParams
	// ToBytes renders the signed transaction for nodeID under id without
	// sending it.
	ToBytes(ctx context.Context, client *Client, id types.TransactionID, nodeID types.AccountID) ([]byte, error)
}

// TransactionResponse is what a node returned after accepting a
// transaction at pre-check. It says nothing about consensus; ask for the
// receipt for that.
type TransactionResponse struct {
	NodeID        types.AccountID
	TransactionID types.TransactionID
	Hash          types.TransactionHash
}

// GetReceipt polls the node that accepted the transaction until its
// receipt is final, and fails unless the status is SUCCESS.
func (r *TransactionResponse) GetReceipt(ctx context.Context, client *Client) (*TransactionReceipt, error) {
	q := &TransactionReceiptQuery{
		TransactionID:  r.TransactionID,
		NodeAccountIDs: []types.AccountID{r.NodeID},
		ValidateStatus: true,
	}
	return q.Execute(ctx, client)
}

// ============================================================================
// Executable adapter
// ============================================================================

// txExecutable adapts one transaction (or one chunk of one) to the engine.
type txExecutable struct {
	name       string
	method     string
	params     *TransactionParams
	defaultFee types.Hbar
	// pinned overrides params.TransactionID; chunks use it.
	pinned *types.TransactionID
	data   func(id types.TransactionID, node types.AccountID) wire.BodyData
}

var _ execute.Executable = (*txExecutable)(nil)

func (t *txExecutable) Name() string                { return t.name }
func (t *txExecutable) IsQuery() bool               { return false }
func (t *txExecutable) RequiresTransactionID() bool { return true }
func (t *txExecutable) Method() string              { return t.method }

func (t *txExecutable) TransactionID() *types.TransactionID {
	if t.pinned != nil {
		return t.pinned
	}
	return t.params.TransactionID
}

func (t *txExecutable) NodeAccountIDs() []types.AccountID { return t.params.NodeAccountIDs }

func (t *txExecutable) body(b *execute.Builder, id types.TransactionID, node types.AccountID) *wire.TransactionBody {
	fee := b.MaxTransactionFee(t.params.MaxTransactionFee, t.defaultFee)
	return &wire.TransactionBody{
		TransactionID:  id,
		NodeAccountID:  node,
		TransactionFee: uint64(fee.Tinybars()),
		ValidDuration:  t.params.validDuration(),
		Memo:           t.params.Memo,
		Data:           t.data(id, node),
	}
}

func (t *txExecutable) MakeRequest(ctx context.Context, b *execute.Builder, id *types.TransactionID, node types.AccountID) (execute.Request, error) {
	signed, err := b.Sign(ctx, t.body(b, *id, node).Marshal(), t.params.Signers)
	if err != nil {
		return execute.Request{}, err
	}
	return execute.Request{Bytes: signed.Transaction, Hash: signed.Hash}, nil
}

func (t *txExecutable) ResponseStatus(resp []byte) (types.Status, error) {
	r, err := wire.UnmarshalTransactionResponse(resp)
	if err != nil {
		return 0, err
	}
	return r.PreCheckCode, nil
}

func (t *txExecutable) ShouldRetryPreCheck(types.Status) bool { return false }

func (t *txExecutable) ShouldRetry([]byte) (bool, error) { return false, nil }

func (t *txExecutable) run(ctx context.Context, client *Client) (*TransactionResponse, error) {
	res, err := execute.Execute(ctx, client.network, t, client.executeConfig())
	if err != nil {
		return nil, err
	}
	return &TransactionResponse{
		NodeID:        res.NodeID,
		TransactionID: *res.TransactionID,
		Hash:          res.Hash,
	}, nil
}

// toBytes signs without sending.
func (t *txExecutable) toBytes(ctx context.Context, client *Client, id types.TransactionID, node types.AccountID) ([]byte, error) {
	b := execute.NewBuilder(client.executeConfig())
	req, err := t.MakeRequest(ctx, b, &id, node)
	if err != nil {
		return nil, err
	}
	return req.Bytes, nil
}

// ============================================================================
// Decode registry
// ============================================================================

// decoder rebuilds a kind from its body. Signatures are not carried
// over: executing the decoded transaction signs it again.
type decoder func(body *wire.TransactionBody) (Transaction, error)

var registry = map[protowire.Number]decoder{}

func register(field protowire.Number, d decoder) {
	if _, dup := registry[field]; dup {
		panic(fmt.Sprintf("sdk: duplicate transaction decoder for field %d", field))
	}
	registry[field] = d
}

// TransactionFromBytes decodes a signed transaction produced by ToBytes
// (or any compatible encoder) back into its concrete kind. The body's
// node and transaction id are restored into the params.
func TransactionFromBytes(b []byte) (Transaction, error) {
	signed, err := wire.UnmarshalTransaction(b)
	if err != nil {
		return nil, err
	}
	st, err := wire.UnmarshalSignedTransaction(signed)
	if err != nil {
		return nil, err
	}
	kind, err := wire.DataKind(st.BodyBytes)
	if err != nil {
		return nil, err
	}
	dec, ok := registry[kind]
	if !ok {
		return nil, &types.FromWireError{Message: "TransactionBody", Cause: fmt.Errorf("unsupported data field %d", kind)}
	}
	body, err := wire.UnmarshalTransactionBody(st.BodyBytes)
	if err != nil {
		return nil, err
	}
	return dec(body)
}

func paramsFromBody(body *wire.TransactionBody) TransactionParams {
	id := body.TransactionID
	fee := types.Hbar(int64(body.TransactionFee))
	return TransactionParams{
		NodeAccountIDs:    []types.AccountID{body.NodeAccountID},
		TransactionID:     &id,
		MaxTransactionFee: &fee,
		ValidDuration:     body.ValidDuration,
		Memo:              body.Memo,
	}
}
