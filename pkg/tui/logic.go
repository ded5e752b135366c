package tui

import (
	"time"

	"evmarket/pkg/market"
	"evmarket/pkg/models"
	"evmarket/pkg/utils"
	"evmarket/pkg/watcher"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// canPurchase reports whether the buy action is offered for item: it must be
// unsold and owned by someone other than the current account.
func canPurchase(item models.Item, conn models.ConnectionState) bool {
	if item.IsSold {
		return false
	}
	return !conn.HasAccount || item.Owner != conn.Account
}

// selectedItem returns the item under the cursor of the active pane.
func (m model) selectedItem() (models.Item, bool) {
	var items []models.Item
	idx := 0
	switch m.pane {
	case paneCatalog:
		items, idx = m.snap.Catalog, m.catalogIdx
	case paneOwned:
		items, idx = m.snap.Owned, m.ownedIdx
	default:
		return models.Item{}, false
	}
	if idx < 0 || idx >= len(items) {
		return models.Item{}, false
	}
	return items[idx], true
}

// clampCursors keeps the cursors inside the lists after a reload.
func (m *model) clampCursors() {
	m.catalogIdx = clamp(m.catalogIdx, len(m.snap.Catalog))
	m.ownedIdx = clamp(m.ownedIdx, len(m.snap.Owned))
}

func clamp(idx, n int) int {
	if idx >= n {
		idx = n - 1
	}
	if idx < 0 {
		idx = 0
	}
	return idx
}

// priceSeries returns catalog prices in ether, in id order, for charting.
func priceSeries(items []models.Item) []float64 {
	series := make([]float64, 0, len(items))
	for _, it := range items {
		series = append(series, utils.WeiToFloat64(it.PriceWei))
	}
	return series
}

// phaseLabel describes the running transaction.
func phaseLabel(op models.Operation, phase models.Phase) string {
	if op == "" || phase == models.PhaseIdle || phase == "" {
		return ""
	}
	verb := map[models.Operation]string{
		models.OpList:     "Listing",
		models.OpPurchase: "Purchasing",
		models.OpTransfer: "Transferring",
	}[op]
	if verb == "" {
		verb = string(op)
	}
	switch phase {
	case models.PhaseValidating:
		return verb + " item: validating"
	case models.PhaseSubmitting:
		return verb + " item: waiting for signature"
	case models.PhaseConfirming:
		return verb + " item: waiting for confirmation"
	case models.PhaseSucceeded:
		return verb + " item: done"
	case models.PhaseFailed:
		return verb + " item: failed"
	}
	return ""
}

// codePreview shortens contract bytecode for display.
func codePreview(code []byte) string {
	if len(code) == 0 {
		return "none"
	}
	return utils.TruncateString(hexutil.Encode(code), 42)
}

// appendLatency bounds the sample history like the watcher does.
func appendLatency(history []time.Duration, d time.Duration, max int) []time.Duration {
	history = append(history, d)
	if len(history) > max {
		history = history[len(history)-max:]
	}
	return history
}

func listenForMarket(sub market.Subscriber) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-sub
		if !ok {
			return nil
		}
		return ev
	}
}

func listenForWatcher(sub watcher.Subscriber) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-sub
		if !ok {
			return nil
		}
		return ev
	}
}
