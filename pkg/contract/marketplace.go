// Package contract binds the marketplace ABI to typed Go calls.
package contract

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"evmarket/pkg/models"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/holiman/uint256"
)

var parseOnce = sync.OnceValues(func() (abi.ABI, error) {
	return abi.JSON(strings.NewReader(MarketplaceABI))
})

// ParsedABI returns the parsed marketplace ABI.
func ParsedABI() (abi.ABI, error) {
	return parseOnce()
}

// Marketplace is a typed handle on a deployed marketplace contract.
type Marketplace struct {
	address common.Address
	bound   *bind.BoundContract
}

// NewMarketplace binds the marketplace ABI at address.
func NewMarketplace(address common.Address, backend bind.ContractBackend) (*Marketplace, error) {
	parsed, err := ParsedABI()
	if err != nil {
		return nil, fmt.Errorf("failed to parse marketplace ABI: %w", err)
	}
	return &Marketplace{
		address: address,
		bound:   bind.NewBoundContract(address, parsed, backend, backend, backend),
	}, nil
}

// Address returns the contract address.
func (m *Marketplace) Address() common.Address {
	return m.address
}

// ItemCount calls itemCount().
func (m *Marketplace) ItemCount(ctx context.Context) (uint64, error) {
	var out []interface{}
	if err := m.bound.Call(&bind.CallOpts{Context: ctx}, &out, "itemCount"); err != nil {
		return 0, err
	}
	count := *abi.ConvertType(out[0], new(*big.Int)).(**big.Int)
	if !count.IsUint64() {
		return 0, fmt.Errorf("item count %s out of range", count)
	}
	return count.Uint64(), nil
}

// Item calls items(id).
func (m *Marketplace) Item(ctx context.Context, id uint64) (models.Item, error) {
	var out []interface{}
	if err := m.bound.Call(&bind.CallOpts{Context: ctx}, &out, "items", new(big.Int).SetUint64(id)); err != nil {
		return models.Item{}, err
	}

	itemID := *abi.ConvertType(out[0], new(*big.Int)).(**big.Int)
	price := *abi.ConvertType(out[2], new(*big.Int)).(**big.Int)
	priceWei, _ := uint256.FromBig(price)

	return models.Item{
		ID:       itemID.Uint64(),
		Name:     *abi.ConvertType(out[1], new(string)).(*string),
		PriceWei: priceWei,
		Seller:   *abi.ConvertType(out[3], new(common.Address)).(*common.Address),
		Owner:    *abi.ConvertType(out[4], new(common.Address)).(*common.Address),
		IsSold:   *abi.ConvertType(out[5], new(bool)).(*bool),
	}, nil
}

// ItemsByOwner calls getItemByOwner(owner).
func (m *Marketplace) ItemsByOwner(ctx context.Context, owner common.Address) ([]uint64, error) {
	var out []interface{}
	if err := m.bound.Call(&bind.CallOpts{Context: ctx}, &out, "getItemByOwner", owner); err != nil {
		return nil, err
	}
	raw := *abi.ConvertType(out[0], new([]*big.Int)).(*[]*big.Int)
	ids := make([]uint64, 0, len(raw))
	for _, id := range raw {
		ids = append(ids, id.Uint64())
	}
	return ids, nil
}

// ListItem sends listItem(name, price).
func (m *Marketplace) ListItem(opts *bind.TransactOpts, name string, priceWei *uint256.Int) (*types.Transaction, error) {
	return m.bound.Transact(opts, "listItem", name, priceWei.ToBig())
}

// PurchaseItem sends purchaseItem(id) with value attached.
func (m *Marketplace) PurchaseItem(opts *bind.TransactOpts, id uint64, valueWei *uint256.Int) (*types.Transaction, error) {
	withValue := *opts
	withValue.Value = valueWei.ToBig()
	return m.bound.Transact(&withValue, "purchaseItem", new(big.Int).SetUint64(id))
}

// TransferItem sends transferItem(id, to).
func (m *Marketplace) TransferItem(opts *bind.TransactOpts, id uint64, to common.Address) (*types.Transaction, error) {
	return m.bound.Transact(opts, "transferItem", new(big.Int).SetUint64(id), to)
}
