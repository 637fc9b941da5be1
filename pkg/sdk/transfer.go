package sdk

import (
	"context"
	"fmt"

	"github.com/hashgraph/hedera-sdk-core/internal/network"
	"github.com/hashgraph/hedera-sdk-core/internal/wire"
	"github.com/hashgraph/hedera-sdk-core/pkg/types"
)

var defaultTransferFee = types.HbarFrom(1)

// Transfer is one leg of a TransferTransaction.
type Transfer struct {
	AccountID types.AccountID
	Amount    types.Hbar
}

// TransferTransaction moves hbar between accounts. The legs must sum to
// zero; the network rejects it otherwise.
type TransferTransaction struct {
	TransactionParams
	Transfers []Transfer
}

func NewTransferTransaction() *TransferTransaction {
	return &TransferTransaction{}
}

// AddHbarTransfer appends a leg. Negative amounts debit the account.
func (t *TransferTransaction) AddHbarTransfer(account types.AccountID, amount types.Hbar) *TransferTransaction {
	t.Transfers = append(t.Transfers, Transfer{AccountID: account, Amount: amount})
	return t
}

func (t *TransferTransaction) Params() *TransactionParams { return &t.TransactionParams }

func (t *TransferTransaction) executable() *txExecutable {
	legs := make([]wire.AccountAmount, len(t.Transfers))
	for i, tr := range t.Transfers {
		legs[i] = wire.AccountAmount{AccountID: tr.AccountID, Amount: tr.Amount.Tinybars()}
	}
	return &txExecutable{
		name:       "TransferTransaction",
		method:     network.MethodCryptoTransfer,
		params:     &t.TransactionParams,
		defaultFee: defaultTransferFee,
		data: func(types.TransactionID, types.AccountID) wire.BodyData {
			return &wire.CryptoTransfer{Transfers: legs}
		},
	}
}

func (t *TransferTransaction) validate() error {
	var sum int64
	for _, tr := range t.Transfers {
		sum += tr.Amount.Tinybars()
	}
	if sum != 0 {
		return &types.ConfigurationError{Reason: fmt.Sprintf("transfer legs sum to %d tinybars, want 0", sum)}
	}
	return nil
}

func (t *TransferTransaction) Execute(ctx context.Context, client *Client) (*TransactionResponse, error) {
	if err := t.validate(); err != nil {
		return nil, err
	}
	return t.executable().run(ctx, client)
}

func (t *TransferTransaction) ToBytes(ctx context.Context, client *Client, id types.TransactionID, node types.AccountID) ([]byte, error) {
	return t.executable().toBytes(ctx, client, id, node)
}

func init() {
	register(wire.DataCryptoTransfer, func(body *wire.TransactionBody) (Transaction, error) {
		data, ok := body.Data.(*wire.CryptoTransfer)
		if !ok {
			return nil, &types.FromWireError{Message: "CryptoTransferTransactionBody", Cause: fmt.Errorf("unexpected data %T", body.Data)}
		}
		tx := &TransferTransaction{TransactionParams: paramsFromBody(body)}
		for _, aa := range data.Transfers {
			tx.Transfers = append(tx.Transfers, Transfer{AccountID: aa.AccountID, Amount: types.Hbar(aa.Amount)})
		}
		return tx, nil
	})
}
