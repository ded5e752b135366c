package market

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/rpc"
)

// Error kinds. Every failure surfaced by a Session matches exactly one of
// these with errors.Is.
var (
	ErrNoWallet          = errors.New("no wallet available")
	ErrUserRejected      = errors.New("user rejected the request")
	ErrInvalidInput      = errors.New("invalid input")
	ErrInvalidAddress    = errors.New("invalid address")
	ErrContractNotFound  = errors.New("no contract at address")
	ErrInterfaceMismatch = errors.New("contract interface mismatch")
	ErrGasOrFunds        = errors.New("gas estimation failed or insufficient funds")
	ErrContractExecution = errors.New("contract execution failed")

	// ErrNotConnected and ErrBusy are guard rejections; they never reach
	// the network.
	ErrNotConnected = errors.New("contract not connected")
	ErrBusy         = errors.New("another transaction is already in progress")
)

// userRejectedCode is the EIP-1193 code returned by external signers when
// the user declines a request.
const userRejectedCode = 4001

// OpError is a classified failure of a session operation.
type OpError struct {
	Op   string
	Kind error
	// Raw is the unmodified message of the underlying failure.
	Raw string
	Err error
}

func (e *OpError) Error() string {
	if e.Raw == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %v: %s", e.Op, e.Kind, e.Raw)
}

func (e *OpError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func newOpError(op string, kind error, err error) *OpError {
	e := &OpError{Op: op, Kind: kind, Err: err}
	if err != nil {
		e.Raw = err.Error()
	}
	return e
}

// classify maps a wallet or provider failure onto an error kind. The gas
// match is a text heuristic, so Raw is always kept for display.
func classify(op string, err error) *OpError {
	var opErr *OpError
	if errors.As(err, &opErr) {
		return opErr
	}
	kind := ErrContractExecution
	switch {
	case isUserRejection(err):
		kind = ErrUserRejected
	case isGasOrFunds(err.Error()):
		kind = ErrGasOrFunds
	}
	return newOpError(op, kind, err)
}

func isUserRejection(err error) bool {
	if errors.Is(err, ErrUserRejected) || errors.Is(err, keystore.ErrDecrypt) || errors.Is(err, keystore.ErrLocked) {
		return true
	}
	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) && rpcErr.ErrorCode() == userRejectedCode {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "user rejected") || strings.Contains(msg, "user denied")
}

func isGasOrFunds(msg string) bool {
	msg = strings.ToLower(msg)
	return strings.Contains(msg, "gas") || strings.Contains(msg, "insufficient funds")
}

// txFailureMessage is the notification text for a failed transaction.
func txFailureMessage(op string, e *OpError) string {
	switch {
	case errors.Is(e, ErrUserRejected):
		return "Transaction rejected by user"
	case errors.Is(e, ErrGasOrFunds):
		return "Transaction failed: Gas estimation error or insufficient funds"
	}
	return fmt.Sprintf("Error %s item: %s", progressive(op), e.Raw)
}

func progressive(op string) string {
	switch op {
	case opList:
		return "listing"
	case opPurchase:
		return "purchasing"
	case opTransfer:
		return "transferring"
	}
	return op
}
