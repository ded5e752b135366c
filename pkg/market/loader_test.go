package market

import (
	"context"
	"errors"
	"testing"

	"evmarket/pkg/models"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func scenarioContract() *MockMarketplace {
	m := new(MockMarketplace)
	m.On("ItemCount", mock.Anything).Return(uint64(2), nil)
	m.On("Item", mock.Anything, uint64(1)).Return(book, nil)
	m.On("Item", mock.Anything, uint64(2)).Return(pen, nil)
	m.On("ItemsByOwner", mock.Anything, alice).Return([]uint64{1}, nil)
	m.On("ItemsByOwner", mock.Anything, bob).Return([]uint64{2}, nil)
	return m
}

func TestLoadCatalogInOrder(t *testing.T) {
	m := scenarioContract()

	items, err := LoadCatalog(context.Background(), m)
	require.NoError(t, err)
	require.Len(t, items, 2)
	for i, item := range items {
		assert.Equal(t, uint64(i+1), item.ID)
	}
	assert.Equal(t, []models.Item{book, pen}, items)
}

func TestLoadCatalogEmpty(t *testing.T) {
	m := new(MockMarketplace)
	m.On("ItemCount", mock.Anything).Return(uint64(0), nil)

	items, err := LoadCatalog(context.Background(), m)
	require.NoError(t, err)
	assert.Empty(t, items)
	m.AssertNotCalled(t, "Item", mock.Anything, mock.Anything)
}

func TestLoadCatalogAbortsOnFailure(t *testing.T) {
	m := new(MockMarketplace)
	m.On("ItemCount", mock.Anything).Return(uint64(3), nil)
	m.On("Item", mock.Anything, uint64(1)).Return(book, nil)
	m.On("Item", mock.Anything, uint64(2)).Return(models.Item{}, errors.New("timeout"))

	items, err := LoadCatalog(context.Background(), m)
	assert.Error(t, err)
	assert.Nil(t, items)
	m.AssertNotCalled(t, "Item", mock.Anything, uint64(3))
}

func TestLoadCatalogHugeCount(t *testing.T) {
	m := new(MockMarketplace)
	m.On("ItemCount", mock.Anything).Return(uint64(1)<<62, nil)
	m.On("Item", mock.Anything, uint64(1)).Return(models.Item{}, errors.New("execution reverted"))

	var (
		items []models.Item
		err   error
	)
	require.NotPanics(t, func() {
		items, err = LoadCatalog(context.Background(), m)
	})
	assert.ErrorContains(t, err, "read item 1")
	assert.Nil(t, items)
}

func TestLoadOwnedMatchesCatalog(t *testing.T) {
	m := scenarioContract()
	catalog, err := LoadCatalog(context.Background(), m)
	require.NoError(t, err)

	for _, owner := range []common.Address{alice, bob} {
		owned, err := LoadOwned(context.Background(), m, owner)
		require.NoError(t, err)
		require.NotEmpty(t, owned)
		for _, item := range owned {
			assert.Equal(t, owner, item.Owner)
			assert.Contains(t, catalog, item)
		}
	}

	owned, err := LoadOwned(context.Background(), m, alice)
	require.NoError(t, err)
	assert.Equal(t, []models.Item{book}, owned)
}

func TestLoadOwnedRequiresOwner(t *testing.T) {
	m := new(MockMarketplace)

	owned, err := LoadOwned(context.Background(), m, common.Address{})
	assert.ErrorIs(t, err, ErrInvalidAddress)
	assert.Nil(t, owned)
	m.AssertNotCalled(t, "ItemsByOwner", mock.Anything, mock.Anything)
}

func TestLoadOwnedKeepsIndexOrder(t *testing.T) {
	m := new(MockMarketplace)
	m.On("ItemsByOwner", mock.Anything, alice).Return([]uint64{2, 1}, nil)
	m.On("Item", mock.Anything, uint64(1)).Return(book, nil)
	m.On("Item", mock.Anything, uint64(2)).Return(pen, nil)

	owned, err := LoadOwned(context.Background(), m, alice)
	require.NoError(t, err)
	assert.Equal(t, []models.Item{pen, book}, owned)
}
