package sdk

import (
	"context"

	"github.com/hashgraph/hedera-sdk-core/internal/network"
	"github.com/hashgraph/hedera-sdk-core/internal/wire"
	"github.com/hashgraph/hedera-sdk-core/pkg/types"
)

// AccountBalanceQuery asks for an account's hbar balance. It is free, so
// it needs no operator.
type AccountBalanceQuery struct {
	AccountID      types.AccountID
	NodeAccountIDs []types.AccountID
}

// AccountBalance is the answer.
type AccountBalance struct {
	AccountID types.AccountID
	Hbars     types.Hbar
}

func (q *AccountBalanceQuery) Execute(ctx context.Context, client *Client) (*AccountBalance, error) {
	exec := &queryExecutable{
		name:   "AccountBalanceQuery",
		method: network.MethodCryptoGetBalance,
		kind:   wire.QueryAccountBalance,
		nodes:  q.NodeAccountIDs,
		fill: func(m *wire.Query) {
			m.AccountID = q.AccountID
		},
	}

	resp, err := exec.run(ctx, client)
	if err != nil {
		return nil, err
	}
	return &AccountBalance{AccountID: resp.AccountID, Hbars: types.Hbar(int64(resp.Balance))}, nil
}
