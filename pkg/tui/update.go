package tui

import (
	"context"
	"fmt"
	"time"

	"evmarket/pkg/market"
	"evmarket/pkg/models"
	"evmarket/pkg/utils"
	"evmarket/pkg/watcher"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
)

const latencyHistory = 30

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case market.Event:
		cmds = append(cmds, listenForMarket(m.marketSub))
		m.snap = m.market.Snapshot()
		m.clampCursors()

	case watcher.Event:
		cmds = append(cmds, listenForWatcher(m.watcherSub))
		switch msg.Type {
		case watcher.EventLatencyUpdated:
			if d, ok := msg.Data.(time.Duration); ok {
				m.latencies = appendLatency(m.latencies, d, latencyHistory)
			}
		case watcher.EventRefreshed:
			if res, ok := msg.Data.(watcher.RefreshResult); ok {
				m.lastRun = res.At
			}
		}

	case opDoneMsg:
		m.snap = m.market.Snapshot()
		m.clampCursors()
		if msg.err != nil {
			log.Debug("UI action failed", "op", msg.op, "err", msg.err)
			switch msg.op {
			case "reload":
				cmds = append(cmds, m.flash(fmt.Sprintf("Refresh failed: %v", msg.err)))
			case "select_account":
				cmds = append(cmds, m.flash(fmt.Sprintf("Could not switch account: %v", msg.err)))
			}
		} else if msg.op == "list" {
			// A failed listing keeps the form filled in for another try.
			for i := range m.listInputs {
				m.listInputs[i].Reset()
			}
		}

	case tea.KeyMsg:
		return m.handleKey(msg)

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)

	case uiTickMsg:
		cmds = append(cmds, tea.Tick(time.Second, func(t time.Time) tea.Msg { return uiTickMsg(t) }))

	case clearStatusMsg:
		m.statusMessage = ""
	}

	return m, tea.Batch(cmds...)
}

// flash shows a transient UI message. Session outcomes use the session's
// notification instead.
func (m *model) flash(text string) tea.Cmd {
	m.statusMessage = text
	return tea.Tick(time.Second*2, func(t time.Time) tea.Msg {
		return clearStatusMsg{}
	})
}

// run calls a session operation off the UI goroutine.
func (m model) run(op string, fn func(ctx context.Context) error) tea.Cmd {
	return func() tea.Msg {
		return opDoneMsg{op: op, err: fn(context.Background())}
	}
}

func (m model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	key := msg.String()
	if key == "ctrl+c" {
		return m, tea.Quit
	}

	switch {
	case m.listing:
		return m.updateListing(msg)
	case m.transferring:
		return m.updateTransfer(msg)
	case m.confirmBuy:
		return m.updateConfirmBuy(msg)
	case m.choosingAccount:
		return m.updateAccountChooser(msg)
	}

	if key == "?" {
		m.showHelp = !m.showHelp
		return m, nil
	}
	if m.showHelp {
		if key == "q" || key == "esc" {
			m.showHelp = false
		}
		return m, nil
	}

	switch key {
	case "q":
		return m, tea.Quit

	case "tab", "right", "l":
		m.pane = (m.pane + 1) % paneCount
	case "shift+tab", "left", "h":
		m.pane = (m.pane + paneCount - 1) % paneCount

	case "up", "k":
		switch m.pane {
		case paneCatalog:
			m.catalogIdx = clamp(m.catalogIdx-1, len(m.snap.Catalog))
		case paneOwned:
			m.ownedIdx = clamp(m.ownedIdx-1, len(m.snap.Owned))
		}
	case "down", "j":
		switch m.pane {
		case paneCatalog:
			m.catalogIdx = clamp(m.catalogIdx+1, len(m.snap.Catalog))
		case paneOwned:
			m.ownedIdx = clamp(m.ownedIdx+1, len(m.snap.Owned))
		}

	case "n":
		m.listing = true
		m.listFocus = 0
		for i := range m.listInputs {
			m.listInputs[i].Blur()
		}
		return m, m.listInputs[0].Focus()

	case "b":
		if m.pane != paneCatalog {
			cmd := m.flash("Select an item in the catalog to buy")
			return m, cmd
		}
		item, ok := m.selectedItem()
		if !ok {
			return m, nil
		}
		if !canPurchase(item, m.snap.Connection) {
			cmd := m.flash("This item cannot be purchased")
			return m, cmd
		}
		m.confirmBuy = true

	case "t":
		item, ok := m.selectedItem()
		if !ok || !m.snap.Connection.HasAccount || item.Owner != m.snap.Connection.Account {
			cmd := m.flash("Select an item you own to transfer")
			return m, cmd
		}
		m.transferring = true
		m.transferInput.Reset()
		cmd := m.transferInput.Focus()
		return m, cmd

	case "r":
		return m, m.run("reload", m.market.Reload)
	case "v":
		return m, m.run("verify", m.market.Verify)
	case "c":
		return m, m.run("check_contract", m.market.CheckContract)
	case "w":
		return m, m.run("check_network", func(ctx context.Context) error {
			_, err := m.market.CheckNetwork(ctx)
			return err
		})

	case "a":
		if m.accounts == nil {
			cmd := m.flash("Account switching unavailable")
			return m, cmd
		}
		m.accountList = m.accounts.Accounts()
		if len(m.accountList) == 0 {
			cmd := m.flash("No accounts in keystore")
			return m, cmd
		}
		m.accountIdx = 0
		m.choosingAccount = true

	case "y":
		text := m.copyTarget()
		if text == "" {
			return m, nil
		}
		if err := copyToClipboard(text); err != nil {
			cmd := m.flash("Failed to copy to clipboard")
			return m, cmd
		}
		cmd := m.flash(fmt.Sprintf("Copied %s to clipboard", utils.HashPreview(text)))
		return m, cmd
	}

	return m, nil
}

// copyTarget is the owner of the selected item, or on the diagnostics pane
// the last transaction hash, falling back to the contract address.
func (m model) copyTarget() string {
	if m.pane == paneDiagnostics {
		if h := m.snap.Diagnostics.LastTxHash; h != (common.Hash{}) {
			return h.Hex()
		}
		return m.market.ContractAddress().Hex()
	}
	if item, ok := m.selectedItem(); ok {
		return item.Owner.Hex()
	}
	return ""
}

func (m model) updateListing(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.listing = false
		return m, nil
	case "tab", "down":
		m.listInputs[m.listFocus].Blur()
		m.listFocus = (m.listFocus + 1) % len(m.listInputs)
		return m, m.listInputs[m.listFocus].Focus()
	case "shift+tab", "up":
		m.listInputs[m.listFocus].Blur()
		m.listFocus = (m.listFocus + len(m.listInputs) - 1) % len(m.listInputs)
		return m, m.listInputs[m.listFocus].Focus()
	case "enter":
		if m.listFocus < len(m.listInputs)-1 {
			m.listInputs[m.listFocus].Blur()
			m.listFocus++
			return m, m.listInputs[m.listFocus].Focus()
		}
		name := m.listInputs[0].Value()
		price := m.listInputs[1].Value()
		m.listing = false
		return m, m.run("list", func(ctx context.Context) error {
			_, err := m.market.List(ctx, name, price)
			return err
		})
	}

	var cmd tea.Cmd
	m.listInputs[m.listFocus], cmd = m.listInputs[m.listFocus].Update(msg)
	return m, cmd
}

func (m model) updateTransfer(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.transferring = false
		m.transferInput.Blur()
		return m, nil
	case "enter":
		item, ok := m.selectedItem()
		m.transferring = false
		m.transferInput.Blur()
		if !ok {
			return m, nil
		}
		to := m.transferInput.Value()
		return m, m.run("transfer", func(ctx context.Context) error {
			_, err := m.market.Transfer(ctx, item.ID, to)
			return err
		})
	}

	var cmd tea.Cmd
	m.transferInput, cmd = m.transferInput.Update(msg)
	return m, cmd
}

func (m model) updateConfirmBuy(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "y", "Y", "enter":
		m.confirmBuy = false
		item, ok := m.selectedItem()
		if !ok {
			return m, nil
		}
		// The exact listed price; the display is rounded.
		price := utils.FormatEther(item.PriceWei)
		return m, m.run("purchase", func(ctx context.Context) error {
			_, err := m.market.Purchase(ctx, item.ID, price)
			return err
		})
	case "n", "N", "q", "esc":
		m.confirmBuy = false
	}
	return m, nil
}

func (m model) updateAccountChooser(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "up", "k":
		m.accountIdx = clamp(m.accountIdx-1, len(m.accountList))
	case "down", "j":
		m.accountIdx = clamp(m.accountIdx+1, len(m.accountList))
	case "esc", "q":
		m.choosingAccount = false
	case "enter":
		m.choosingAccount = false
		acc := m.accountList[m.accountIdx]
		if m.snap.Connection.HasAccount && acc == m.snap.Connection.Account {
			return m, nil
		}
		accounts := m.accounts
		return m, m.run("select_account", func(context.Context) error {
			return accounts.Select(acc)
		})
	}
	return m, nil
}

// notificationView renders the session notification colored by kind.
func notificationView(n models.Notification) string {
	if n.Empty() {
		return ""
	}
	style, ok := notificationStyles[n.Kind]
	if !ok {
		style = notificationStyles[models.KindInfo]
	}
	return style.Render(n.Message)
}
