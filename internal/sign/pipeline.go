package sign

import (
	"context"

	"github.com/hashgraph/hedera-sdk-core/pkg/types"
	"golang.org/x/sync/errgroup"
)

// Pipeline fans a message out to every signer and collects the results in
// declaration order. The zero value runs all signers concurrently.
type Pipeline struct {
	// Concurrency caps in-flight signers; zero or negative means no cap.
	Concurrency int
}

// Sign signs message with defaults followed by perRequest. The returned
// pairs are ordered exactly like the signers, regardless of which signer
// finishes first. The first failure cancels the rest and is returned as a
// *types.SigningError; no partial list is ever returned.
func (p Pipeline) Sign(ctx context.Context, message []byte, defaults, perRequest []Signer) ([]SignaturePair, error) {
	signers := make([]Signer, 0, len(defaults)+len(perRequest))
	signers = append(signers, defaults...)
	signers = append(signers, perRequest...)

	pairs := make([]SignaturePair, len(signers))
	if len(signers) == 0 {
		return pairs, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	if p.Concurrency > 0 {
		g.SetLimit(p.Concurrency)
	}

	for i, s := range signers {
		g.Go(func() error {
			pub := s.PublicKey()
			sig, err := s.Sign(gctx, message)
			if err != nil {
				return &types.SigningError{Signer: pub.String(), Cause: err}
			}
			// each goroutine owns slot i
			pairs[i] = SignaturePair{PublicKey: pub, Signature: sig}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return pairs, nil
}
