package market

import (
	"context"
	"math/big"

	"evmarket/pkg/models"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/event"
	"github.com/holiman/uint256"
)

// Provider is the read side of a chain connection.
type Provider interface {
	// Network returns the chain id and a human name for it.
	Network(ctx context.Context) (*big.Int, string, error)
	CodeAt(ctx context.Context, address common.Address) ([]byte, error)
	Contract(address common.Address) (Marketplace, error)
	// WaitMined blocks until tx is included and fails if it reverted.
	WaitMined(ctx context.Context, tx *types.Transaction) (*types.Receipt, error)
}

// Marketplace is the contract surface the session drives.
type Marketplace interface {
	Address() common.Address
	ItemCount(ctx context.Context) (uint64, error)
	Item(ctx context.Context, id uint64) (models.Item, error)
	ItemsByOwner(ctx context.Context, owner common.Address) ([]uint64, error)
	ListItem(opts *bind.TransactOpts, name string, priceWei *uint256.Int) (*types.Transaction, error)
	PurchaseItem(opts *bind.TransactOpts, id uint64, valueWei *uint256.Int) (*types.Transaction, error)
	TransferItem(opts *bind.TransactOpts, id uint64, to common.Address) (*types.Transaction, error)
}

// Wallet holds the user's accounts and signs for them.
type Wallet interface {
	// Available reports whether any account exists to connect to.
	Available() bool
	// RequestAccounts asks the user for access and returns the accounts,
	// active account first.
	RequestAccounts(ctx context.Context) ([]common.Address, error)
	Transactor(account common.Address, chainID *big.Int) (*bind.TransactOpts, error)
	// SubscribeAccounts delivers the account list, active first, whenever
	// it changes. An empty list means no account is selected.
	SubscribeAccounts(ch chan<- []common.Address) event.Subscription
}
