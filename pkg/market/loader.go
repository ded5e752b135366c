package market

import (
	"context"
	"fmt"

	"evmarket/pkg/models"

	"github.com/ethereum/go-ethereum/common"
)

// maxPrealloc bounds the catalog slice reserved up front. itemCount comes
// from the node and is not trusted for allocation.
const maxPrealloc = 1024

// LoadCatalog reads items 1..itemCount in order. Any failed read aborts the
// whole load.
func LoadCatalog(ctx context.Context, m Marketplace) ([]models.Item, error) {
	count, err := m.ItemCount(ctx)
	if err != nil {
		return nil, fmt.Errorf("read item count: %w", err)
	}
	items := make([]models.Item, 0, min(count, maxPrealloc))
	for id := uint64(1); id <= count; id++ {
		item, err := m.Item(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("read item %d: %w", id, err)
		}
		items = append(items, item)
	}
	return items, nil
}

// LoadOwned reads the items owner holds, in the order the contract's
// owner index returns them.
func LoadOwned(ctx context.Context, m Marketplace, owner common.Address) ([]models.Item, error) {
	if owner == (common.Address{}) {
		return nil, fmt.Errorf("%w: no owner address", ErrInvalidAddress)
	}
	ids, err := m.ItemsByOwner(ctx, owner)
	if err != nil {
		return nil, fmt.Errorf("read items of %s: %w", owner, err)
	}
	items := make([]models.Item, 0, len(ids))
	for _, id := range ids {
		item, err := m.Item(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("read owned item %d: %w", id, err)
		}
		items = append(items, item)
	}
	return items, nil
}
