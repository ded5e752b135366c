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
	"github.com/stretchr/testify/mock"
)

type MockProvider struct {
	mock.Mock
}

func (m *MockProvider) Network(ctx context.Context) (*big.Int, string, error) {
	args := m.Called(ctx)
	id, _ := args.Get(0).(*big.Int)
	return id, args.String(1), args.Error(2)
}

func (m *MockProvider) CodeAt(ctx context.Context, address common.Address) ([]byte, error) {
	args := m.Called(ctx, address)
	code, _ := args.Get(0).([]byte)
	return code, args.Error(1)
}

func (m *MockProvider) Contract(address common.Address) (Marketplace, error) {
	args := m.Called(address)
	c, _ := args.Get(0).(Marketplace)
	return c, args.Error(1)
}

func (m *MockProvider) WaitMined(ctx context.Context, tx *types.Transaction) (*types.Receipt, error) {
	args := m.Called(ctx, tx)
	r, _ := args.Get(0).(*types.Receipt)
	return r, args.Error(1)
}

type MockMarketplace struct {
	mock.Mock
}

func (m *MockMarketplace) Address() common.Address {
	return contractAddr
}

func (m *MockMarketplace) ItemCount(ctx context.Context) (uint64, error) {
	args := m.Called(ctx)
	return args.Get(0).(uint64), args.Error(1)
}

func (m *MockMarketplace) Item(ctx context.Context, id uint64) (models.Item, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(models.Item), args.Error(1)
}

func (m *MockMarketplace) ItemsByOwner(ctx context.Context, owner common.Address) ([]uint64, error) {
	args := m.Called(ctx, owner)
	ids, _ := args.Get(0).([]uint64)
	return ids, args.Error(1)
}

func (m *MockMarketplace) ListItem(opts *bind.TransactOpts, name string, priceWei *uint256.Int) (*types.Transaction, error) {
	args := m.Called(opts, name, priceWei)
	tx, _ := args.Get(0).(*types.Transaction)
	return tx, args.Error(1)
}

func (m *MockMarketplace) PurchaseItem(opts *bind.TransactOpts, id uint64, valueWei *uint256.Int) (*types.Transaction, error) {
	args := m.Called(opts, id, valueWei)
	tx, _ := args.Get(0).(*types.Transaction)
	return tx, args.Error(1)
}

func (m *MockMarketplace) TransferItem(opts *bind.TransactOpts, id uint64, to common.Address) (*types.Transaction, error) {
	args := m.Called(opts, id, to)
	tx, _ := args.Get(0).(*types.Transaction)
	return tx, args.Error(1)
}

type MockWallet struct {
	mock.Mock
	feed event.Feed
}

func (m *MockWallet) Available() bool {
	return m.Called().Bool(0)
}

func (m *MockWallet) RequestAccounts(ctx context.Context) ([]common.Address, error) {
	args := m.Called(ctx)
	accounts, _ := args.Get(0).([]common.Address)
	return accounts, args.Error(1)
}

func (m *MockWallet) Transactor(account common.Address, chainID *big.Int) (*bind.TransactOpts, error) {
	args := m.Called(account, chainID)
	opts, _ := args.Get(0).(*bind.TransactOpts)
	return opts, args.Error(1)
}

func (m *MockWallet) SubscribeAccounts(ch chan<- []common.Address) event.Subscription {
	return m.feed.Subscribe(ch)
}
