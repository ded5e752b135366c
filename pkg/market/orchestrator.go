package market

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"evmarket/pkg/models"
	"evmarket/pkg/utils"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/log"
)

type txEvent int

const (
	txBegin txEvent = iota
	txValid
	txInvalid
	txSent
	txSendFailed
	txMined
	txReverted
	txReset
)

// nextPhase is the transaction lifecycle. It reports false for a transition
// the lifecycle does not allow.
func nextPhase(p models.Phase, ev txEvent) (models.Phase, bool) {
	switch {
	case p == models.PhaseIdle && ev == txBegin:
		return models.PhaseValidating, true
	case p == models.PhaseValidating && ev == txValid:
		return models.PhaseSubmitting, true
	case p == models.PhaseValidating && ev == txInvalid:
		return models.PhaseFailed, true
	case p == models.PhaseSubmitting && ev == txSent:
		return models.PhaseConfirming, true
	case p == models.PhaseSubmitting && ev == txSendFailed:
		return models.PhaseFailed, true
	case p == models.PhaseConfirming && ev == txMined:
		return models.PhaseSucceeded, true
	case p == models.PhaseConfirming && ev == txReverted:
		return models.PhaseFailed, true
	case (p == models.PhaseSucceeded || p == models.PhaseFailed) && ev == txReset:
		return models.PhaseIdle, true
	}
	return p, false
}

func (s *Session) advance(ev txEvent) {
	s.mu.Lock()
	next, ok := nextPhase(s.phase, ev)
	if !ok {
		log.Error("Invalid transaction transition", "phase", s.phase, "event", ev)
		s.mu.Unlock()
		return
	}
	s.phase = next
	op := s.operation
	s.mu.Unlock()
	s.notify(Event{Type: EventPhaseChanged, Data: map[string]interface{}{
		"operation": op,
		"phase":     next,
	}})
}

type sendFunc func(m Marketplace, opts *bind.TransactOpts) (*types.Transaction, error)

// txPlan describes one state-changing operation.
type txPlan struct {
	op          models.Operation
	notReady    string
	sentFormat  string
	doneMessage string
	// prepare validates the inputs and returns the call to dispatch.
	prepare func() (sendFunc, error)
}

// List puts a new item up for sale. price is a decimal ether amount.
func (s *Session) List(ctx context.Context, name, price string) (common.Hash, error) {
	return s.execute(ctx, txPlan{
		op:          models.OpList,
		notReady:    "Contract not properly connected. Please check network settings.",
		sentFormat:  "Transaction sent! Hash: %s",
		doneMessage: "Item listed successfully!",
		prepare: func() (sendFunc, error) {
			if strings.TrimSpace(name) == "" {
				return nil, invalid(opList, ErrInvalidInput, "Item name cannot be empty")
			}
			if strings.TrimSpace(price) == "" {
				return nil, invalid(opList, ErrInvalidInput, "Item price cannot be empty")
			}
			wei, err := utils.ParseEther(price)
			if err != nil {
				return nil, invalid(opList, ErrInvalidInput, "Invalid price format. Please enter a valid number.")
			}
			return func(m Marketplace, opts *bind.TransactOpts) (*types.Transaction, error) {
				return m.ListItem(opts, name, wei)
			}, nil
		},
	})
}

// Purchase buys item id. price is the decimal ether amount shown for the
// item and must equal its listed price; it is sent as the call value.
func (s *Session) Purchase(ctx context.Context, id uint64, price string) (common.Hash, error) {
	return s.execute(ctx, txPlan{
		op:          models.OpPurchase,
		notReady:    "Contract not properly connected",
		sentFormat:  "Purchase initiated! Transaction hash: %s",
		doneMessage: "Item purchased successfully!",
		prepare: func() (sendFunc, error) {
			item, err := s.catalogItem(opPurchase, id)
			if err != nil {
				return nil, err
			}
			wei, err := utils.ParseEther(price)
			if err != nil {
				return nil, invalid(opPurchase, ErrInvalidInput, "Invalid price format. Please enter a valid number.")
			}
			if item.PriceWei == nil || !wei.Eq(item.PriceWei) {
				return nil, invalid(opPurchase, ErrInvalidInput,
					fmt.Sprintf("Price does not match the listed price of %s ETH", utils.FormatEther(item.PriceWei)))
			}
			return func(m Marketplace, opts *bind.TransactOpts) (*types.Transaction, error) {
				return m.PurchaseItem(opts, id, wei)
			}, nil
		},
	})
}

// Transfer gives item id to the address to.
func (s *Session) Transfer(ctx context.Context, id uint64, to string) (common.Hash, error) {
	return s.execute(ctx, txPlan{
		op:          models.OpTransfer,
		notReady:    "Contract not properly connected",
		sentFormat:  "Transfer initiated! Transaction hash: %s",
		doneMessage: "Item transferred successfully!",
		prepare: func() (sendFunc, error) {
			if id == 0 {
				return nil, invalid(opTransfer, ErrInvalidInput, "Invalid item id")
			}
			to = strings.TrimSpace(to)
			if !utils.IsValidAddress(to) {
				return nil, invalid(opTransfer, ErrInvalidAddress, "Invalid recipient address")
			}
			recipient := common.HexToAddress(to)
			return func(m Marketplace, opts *bind.TransactOpts) (*types.Transaction, error) {
				return m.TransferItem(opts, id, recipient)
			}, nil
		},
	})
}

func invalid(op string, kind error, message string) *OpError {
	return &OpError{Op: op, Kind: kind, Raw: message}
}

func (s *Session) catalogItem(op string, id uint64) (models.Item, error) {
	if id == 0 {
		return models.Item{}, invalid(op, ErrInvalidInput, "Invalid item id")
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, item := range s.catalog {
		if item.ID == id {
			return item, nil
		}
	}
	return models.Item{}, invalid(op, ErrInvalidInput, fmt.Sprintf("Item %d not found", id))
}

// acquire applies the guards shared by all transactions. On success the
// caller owns the pending flag and must call release.
func (s *Session) acquire(plan txPlan) (Marketplace, *bind.TransactOpts, error) {
	op := string(plan.op)
	s.mu.RLock()
	status, contract, signer := s.status, s.contract, s.signer
	s.mu.RUnlock()

	if status != models.StatusConnected || contract == nil {
		s.sink.Error(plan.notReady)
		return nil, nil, newOpError(op, ErrNotConnected, nil)
	}
	if signer == nil {
		s.sink.Error("Wallet not connected")
		return nil, nil, newOpError(op, ErrWalletNotConnected, nil)
	}
	if !s.pending.CompareAndSwap(false, true) {
		s.sink.Error("Another transaction is already in progress")
		return nil, nil, newOpError(op, ErrBusy, nil)
	}

	s.mu.Lock()
	s.operation = plan.op
	s.mu.Unlock()
	return contract, signer, nil
}

func (s *Session) release() {
	s.advance(txReset)
	s.mu.Lock()
	s.operation = ""
	s.mu.Unlock()
	s.pending.Store(false)
	s.notify(Event{Type: EventPhaseChanged, Data: map[string]interface{}{
		"operation": models.Operation(""),
		"phase":     models.PhaseIdle,
	}})
}

// execute drives plan through validation, submission and confirmation.
// Confirmation has no timeout of its own; ctx bounds it. The returned hash
// is set once the transaction was sent, even when it later fails.
func (s *Session) execute(ctx context.Context, plan txPlan) (common.Hash, error) {
	op := string(plan.op)
	contract, signer, err := s.acquire(plan)
	if err != nil {
		return common.Hash{}, err
	}
	defer s.release()

	s.advance(txBegin)
	send, err := plan.prepare()
	if err != nil {
		s.advance(txInvalid)
		var opErr *OpError
		if errors.As(err, &opErr) {
			s.sink.Error(opErr.Raw)
		}
		return common.Hash{}, err
	}
	s.advance(txValid)

	opts := *signer
	opts.Context = ctx
	log.Info("Submitting transaction", "op", op, "from", opts.From)
	tx, err := send(contract, &opts)
	if err != nil {
		s.advance(txSendFailed)
		return common.Hash{}, s.txFailed(op, err)
	}
	hash := tx.Hash()

	s.mu.Lock()
	s.diag.LastTxHash = hash
	s.mu.Unlock()
	log.Info("Transaction sent", "op", op, "hash", hash)
	s.sink.Info(fmt.Sprintf(plan.sentFormat, utils.HashPreview(hash.Hex())))
	s.advance(txSent)

	if _, err := s.provider.WaitMined(ctx, tx); err != nil {
		s.advance(txReverted)
		return hash, s.txFailed(op, err)
	}
	log.Info("Transaction confirmed", "op", op, "hash", hash)
	s.advance(txMined)
	s.sink.Success(plan.doneMessage)

	if err := s.reload(ctx, s.epoch.Load()); err != nil {
		log.Warn("Refresh after transaction failed", "op", op, "err", err)
	}
	return hash, nil
}

func (s *Session) txFailed(op string, err error) error {
	e := classify(op, err)
	log.Error("Transaction failed", "op", op, "kind", e.Kind, "err", err)
	s.sink.Error(txFailureMessage(op, e))
	return e
}
