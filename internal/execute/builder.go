package execute

import (
	"context"
	"sync/atomic"

	"github.com/hashgraph/hedera-sdk-core/internal/sign"
	"github.com/hashgraph/hedera-sdk-core/internal/wire"
	"github.com/hashgraph/hedera-sdk-core/pkg/types"
)

// Signed is a ready-to-send transaction envelope plus its hash.
type Signed struct {
	Transaction []byte
	Hash        types.TransactionHash
}

// Builder is handed to Executable.MakeRequest. It owns the pieces of
// client state a request may read while materialising its bytes.
type Builder struct {
	payer      *types.AccountID
	defaults   []sign.Signer
	feeCeiling *atomic.Int64
	pipeline   sign.Pipeline
}

// NewBuilder is exported so callers can render a request without
// executing it.
func NewBuilder(cfg Config) *Builder {
	return &Builder{
		payer:      cfg.Payer,
		defaults:   cfg.DefaultSigners,
		feeCeiling: cfg.FeeCeiling,
		pipeline:   cfg.Pipeline,
	}
}

// Payer is the operator account, or nil.
func (b *Builder) Payer() *types.AccountID { return b.payer }

// MaxTransactionFee applies the fee precedence: the request's own max,
// then the client-wide ceiling when it is above one tinybar, then the
// request kind's default.
func (b *Builder) MaxTransactionFee(explicit *types.Hbar, kindDefault types.Hbar) types.Hbar {
	if explicit != nil {
		return *explicit
	}
	if b.feeCeiling != nil {
		if v := b.feeCeiling.Load(); v > 1 {
			return types.Hbar(v)
		}
	}
	return kindDefault
}

// Sign signs body with the default signers followed by perRequest, wraps
// the result in a Transaction envelope and hashes the signed bytes.
func (b *Builder) Sign(ctx context.Context, body []byte, perRequest []sign.Signer) (Signed, error) {
	pairs, err := b.pipeline.Sign(ctx, body, b.defaults, perRequest)
	if err != nil {
		return Signed{}, err
	}

	st := wire.SignedTransaction{BodyBytes: body, SigPairs: make([]wire.SignaturePair, len(pairs))}
	for i, p := range pairs {
		st.SigPairs[i] = p.Wire()
	}

	signed := st.Marshal()
	return Signed{
		Transaction: wire.MarshalTransaction(signed),
		Hash:        types.HashSignedTransaction(signed),
	}, nil
}
