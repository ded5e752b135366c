package tui

import (
	"evmarket/pkg/utils"

	"github.com/atotto/clipboard"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

func (m model) displayPrice(wei *uint256.Int) string {
	return utils.FormatEtherDecimals(wei, m.decimals) + " ETH"
}

// displayOwner shortens an address and marks the current account.
func (m model) displayOwner(addr common.Address) string {
	if m.snap.Connection.HasAccount && addr == m.snap.Connection.Account {
		return "you"
	}
	return utils.ShortenAddress(addr.Hex())
}

// copyToClipboard is swapped out in tests.
var copyToClipboard = clipboard.WriteAll
