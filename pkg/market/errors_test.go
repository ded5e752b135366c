package market

import (
	"errors"
	"fmt"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		err  error
		kind error
	}{
		{keystore.ErrDecrypt, ErrUserRejected},
		{fmt.Errorf("unlock: %w", keystore.ErrLocked), ErrUserRejected},
		{rejected{}, ErrUserRejected},
		{errors.New("MetaMask Tx Signature: User denied transaction signature."), ErrUserRejected},
		{errors.New("gas required exceeds allowance (0)"), ErrGasOrFunds},
		{errors.New("insufficient funds for transfer"), ErrGasOrFunds},
		{errors.New("execution reverted"), ErrContractExecution},
		{errors.New("nonce too low"), ErrContractExecution},
	}

	for _, tt := range tests {
		e := classify("list", tt.err)
		assert.ErrorIs(t, e, tt.kind, tt.err.Error())
		assert.ErrorIs(t, e, tt.err)
		assert.Equal(t, tt.err.Error(), e.Raw)
		assert.Equal(t, "list", e.Op)
	}
}

func TestClassifyKeepsOpError(t *testing.T) {
	orig := newOpError("verify", ErrInterfaceMismatch, errors.New("bad selector"))
	wrapped := fmt.Errorf("outer: %w", orig)
	assert.Same(t, orig, classify("list", wrapped))
}

func TestOpErrorMessage(t *testing.T) {
	assert.Equal(t, "verify: no contract at address", newOpError("verify", ErrContractNotFound, nil).Error())
	assert.Equal(t, "purchase: contract execution failed: execution reverted",
		newOpError("purchase", ErrContractExecution, errors.New("execution reverted")).Error())
	assert.NotErrorIs(t, newOpError("verify", ErrContractNotFound, nil), ErrInterfaceMismatch)
}

func TestTxFailureMessage(t *testing.T) {
	assert.Equal(t, "Transaction rejected by user", txFailureMessage(opPurchase, classify(opPurchase, keystore.ErrDecrypt)))
	assert.Equal(t, "Error transferring item: boom", txFailureMessage(opTransfer, classify(opTransfer, errors.New("boom"))))
}
