package tui

import (
	"fmt"
	"strings"
	"time"

	"evmarket/pkg/models"
	"evmarket/pkg/utils"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/ethereum/go-ethereum/common"
	"github.com/guptarohit/asciigraph"
)

var paneNames = [paneCount]string{"Catalog", "My Items", "Diagnostics"}

func (m model) View() string {
	if m.showHelp {
		return m.viewHelp()
	}
	if m.listing {
		return m.viewListForm()
	}
	if m.transferring {
		return m.viewTransferForm()
	}
	if m.confirmBuy {
		return m.viewConfirmBuy()
	}
	if m.choosingAccount {
		return m.viewAccountChooser()
	}

	targetWidth := m.width - 4
	if targetWidth < 0 {
		targetWidth = 0
	}

	var body string
	switch m.pane {
	case paneCatalog:
		body = m.viewItems(m.snap.Catalog, m.catalogIdx, m.emptyCatalogText())
	case paneOwned:
		body = m.viewItems(m.snap.Owned, m.ownedIdx, m.emptyOwnedText())
	case paneDiagnostics:
		body = m.viewDiagnostics(targetWidth)
	}

	header := titleStyle.Render("EVM Marketplace")
	content := boxStyle.Width(targetWidth).Render(lipgloss.JoinVertical(lipgloss.Left,
		lipgloss.JoinHorizontal(lipgloss.Top, header, "  ", m.viewTabs()),
		"",
		body,
	))

	var below []string
	if n := notificationView(m.snap.Notification); n != "" {
		below = append(below, n)
	}
	if label := phaseLabel(m.snap.Operation, m.snap.Phase); label != "" && m.snap.Pending {
		below = append(below, warnStyle.Render(m.spinner.View()+" "+label))
	}
	if m.statusMessage != "" {
		below = append(below, infoStyle.Render(m.statusMessage))
	}
	below = append(below, m.viewFooter())

	h := m.height - 1
	if h < 0 {
		h = 0
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		m.viewTopBar(),
		lipgloss.Place(
			m.width,
			h,
			lipgloss.Center,
			lipgloss.Center,
			lipgloss.JoinVertical(lipgloss.Center, content, "\n", lipgloss.JoinVertical(lipgloss.Center, below...)),
		),
	)
}

func (m model) viewTopBar() string {
	conn := m.snap.Connection

	network := "Network: N/A"
	if conn.ChainID != nil {
		network = fmt.Sprintf("Network: %s (%s)", conn.NetworkName, conn.ChainID)
	}
	account := "Account: not connected"
	switch {
	case !m.snap.WalletFound:
		account = "No wallet"
	case conn.HasAccount:
		account = "Account: " + utils.ShortenAddress(conn.Account.Hex())
	}
	status := statusStyle(m.snap.Status).Render(m.snap.Status.String())
	leftBlock := lipgloss.JoinHorizontal(lipgloss.Top,
		subtleStyle.Render(" "+network+" • "+account+" • "),
		status,
	)

	updated := "Not loaded"
	if last := m.snap.Diagnostics.LastLoad; !last.IsZero() {
		updated = "Updated " + humanize.Time(last)
	}
	spinnerView := ""
	if m.snap.Pending {
		spinnerView = m.spinner.View() + " "
	}
	rightBlock := subtleStyle.Render(spinnerView + updated + " ")

	gap := m.width - lipgloss.Width(leftBlock) - lipgloss.Width(rightBlock)
	if gap < 0 {
		gap = 0
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, leftBlock, strings.Repeat(" ", gap), rightBlock)
}

func (m model) viewTabs() string {
	var tabs []string
	for i, name := range paneNames {
		switch {
		case i == paneCatalog:
			name = fmt.Sprintf("%s (%d)", name, len(m.snap.Catalog))
		case i == paneOwned:
			name = fmt.Sprintf("%s (%d)", name, len(m.snap.Owned))
		}
		if i == m.pane {
			tabs = append(tabs, activeTabStyle.Render(name))
		} else {
			tabs = append(tabs, tabStyle.Render(name))
		}
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, tabs...)
}

func (m model) emptyCatalogText() string {
	switch m.snap.Status {
	case models.StatusNotDeployed:
		return errStyle.Render(fmt.Sprintf("No contract deployed at %s", m.market.ContractAddress().Hex()))
	case models.StatusInterfaceMismatch:
		return errStyle.Render("The contract does not match the marketplace interface. Press v to retry.")
	case models.StatusUnchecked:
		return subtleStyle.Render("Contract not verified yet. Press v to connect.")
	}
	return subtleStyle.Render("No items listed yet. Press n to list one.")
}

func (m model) emptyOwnedText() string {
	if !m.snap.Connection.HasAccount {
		return subtleStyle.Render("Connect a wallet to see your items.")
	}
	return subtleStyle.Render("You don't own any items yet.")
}

func (m model) viewItems(items []models.Item, cursor int, empty string) string {
	if len(items) == 0 {
		return empty
	}

	headers := tableHeaderStyle.Render(fmt.Sprintf("  %-5s %-22s %16s  %-13s %-13s %-8s", "ID", "NAME", "PRICE", "SELLER", "OWNER", "STATE"))
	var rows []string
	for i, it := range items {
		marker := "  "
		if i == cursor {
			marker = "> "
		}
		state := infoStyle.Render("for sale")
		switch {
		case it.IsSold:
			state = subtleStyle.Render("sold")
		case !canPurchase(it, m.snap.Connection):
			state = warnStyle.Render("yours")
		}
		row := fmt.Sprintf("%s%-5d %-22s %16s  %-13s %-13s ",
			marker,
			it.ID,
			utils.TruncateString(it.Name, 22),
			m.displayPrice(it.PriceWei),
			m.displayOwner(it.Seller),
			m.displayOwner(it.Owner),
		)
		if i == cursor {
			row = selectedStyle.Render(row)
		}
		rows = append(rows, row+state)
	}
	return lipgloss.JoinVertical(lipgloss.Left, headers, strings.Join(rows, "\n"))
}

func (m model) viewDiagnostics(width int) string {
	d := m.snap.Diagnostics
	conn := m.snap.Connection

	checked := "no"
	if d.ContractChecked {
		checked = "yes"
	}
	chainID := "N/A"
	if conn.ChainID != nil {
		chainID = conn.ChainID.String()
	}
	network := d.NetworkName
	if network == "" {
		network = conn.NetworkName
	}
	lastLoad := "never"
	if !d.LastLoad.IsZero() {
		lastLoad = fmt.Sprintf("%s (%s)", d.LastLoad.Format("15:04:05"), humanize.Time(d.LastLoad))
	}
	loadErr := infoStyle.Render("none")
	if d.LastLoadError != "" {
		loadErr = errStyle.Render(utils.TruncateString(d.LastLoadError, 60))
	}
	lastTx := "none"
	if d.LastTxHash != (common.Hash{}) {
		lastTx = d.LastTxHash.Hex()
	}
	refresh := "disabled"
	if m.watcher != nil {
		refresh = "waiting"
		if !m.lastRun.IsZero() {
			refresh = humanize.Time(m.lastRun)
		}
	}
	latency := "N/A"
	if n := len(m.latencies); n > 0 {
		latency = fmt.Sprintf("%s %s", m.latencies[n-1].Round(time.Millisecond), m.renderLatencySparkline(m.latencies))
	}

	lines := []string{
		fmt.Sprintf("Contract:        %s", m.market.ContractAddress().Hex()),
		fmt.Sprintf("Status:          %s", statusStyle(m.snap.Status).Render(m.snap.Status.String())),
		fmt.Sprintf("Bytecode:        %s", codePreview(d.ContractCode)),
		fmt.Sprintf("Code checked:    %s", checked),
		fmt.Sprintf("Network:         %s (chain %s)", network, chainID),
		fmt.Sprintf("Last load:       %s", lastLoad),
		fmt.Sprintf("Last load error: %s", loadErr),
		fmt.Sprintf("Last tx:         %s", lastTx),
		fmt.Sprintf("Auto refresh:    %s", refresh),
		fmt.Sprintf("RPC latency:     %s", latency),
	}

	var chart string
	series := priceSeries(m.snap.Catalog)
	if len(series) > 1 {
		graphWidth := width - 14
		if graphWidth < 10 {
			graphWidth = 10
		}
		chart = asciigraph.Plot(series,
			asciigraph.Height(6),
			asciigraph.Width(graphWidth),
			asciigraph.Caption("Listing price by item id (ETH)"),
		)
	} else {
		chart = subtleStyle.Render("Not enough items to draw price chart.")
	}

	return lipgloss.JoinVertical(lipgloss.Left, strings.Join(lines, "\n"), "", chart)
}

func (m model) renderLatencySparkline(history []time.Duration) string {
	if len(history) == 0 {
		return ""
	}
	min, max := history[0], history[0]
	for _, v := range history {
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}

	chars := []string{" ", "▂", "▃", "▄", "▅", "▆", "▇", "█"}
	var sb strings.Builder
	for _, v := range history {
		if max == min {
			sb.WriteString(subtleStyle.Render("▄"))
			continue
		}
		idx := int((v - min) * 7 / (max - min))
		sb.WriteString(subtleStyle.Render(chars[idx]))
	}
	return sb.String()
}

func (m model) viewFooter() string {
	line1 := "tab:pane • ↑/↓:select • n:list • b:buy • t:transfer • r:refresh • ?:hlp • q:quit"
	line2 := fmt.Sprintf("v:reconnect • c:check contract • w:check network • a:account • y:copy • v%s", Version)
	if m.width > 0 {
		l1 := subtleStyle.Width(m.width).Align(lipgloss.Center).Render(line1)
		l2 := subtleStyle.Width(m.width).Align(lipgloss.Center).Render(line2)
		return lipgloss.JoinVertical(lipgloss.Center, l1, l2)
	}
	return subtleStyle.Render(line1 + "\n" + line2)
}

func (m model) viewListForm() string {
	labels := []string{"Name", "Price (ETH)"}
	var inputs []string
	for i, label := range labels {
		inputs = append(inputs, fmt.Sprintf("%-12s %s", label, m.listInputs[i].View()))
	}
	return lipgloss.Place(
		m.width, m.height, lipgloss.Center, lipgloss.Center,
		boxStyle.Render(lipgloss.JoinVertical(lipgloss.Left,
			titleStyle.Render("List New Item"),
			"\n",
			strings.Join(inputs, "\n"),
			"\n",
			subtleStyle.Render("Enter to next/submit • Esc to cancel"),
		)),
	)
}

func (m model) viewTransferForm() string {
	item, _ := m.selectedItem()
	return lipgloss.Place(
		m.width, m.height, lipgloss.Center, lipgloss.Center,
		boxStyle.Render(lipgloss.JoinVertical(lipgloss.Left,
			titleStyle.Render("Transfer Item"),
			"\n",
			fmt.Sprintf("Item: #%d %s", item.ID, item.Name),
			"\n",
			"Recipient address:",
			m.transferInput.View(),
			"\n",
			subtleStyle.Render("Enter to send • Esc to cancel"),
		)),
	)
}

func (m model) viewConfirmBuy() string {
	item, _ := m.selectedItem()
	return lipgloss.Place(
		m.width, m.height, lipgloss.Center, lipgloss.Center,
		boxStyle.Render(lipgloss.JoinVertical(lipgloss.Center,
			titleStyle.Render("Confirm Purchase"),
			"\n",
			fmt.Sprintf("Buy #%d %q for %s ETH?", item.ID, item.Name, utils.FormatEther(item.PriceWei)),
			fmt.Sprintf("Seller: %s", item.Seller.Hex()),
			"\n",
			subtleStyle.Render("(y) Yes • (n) No"),
		)),
	)
}

func (m model) viewAccountChooser() string {
	rows := ""
	for i, acc := range m.accountList {
		cursor := "  "
		if i == m.accountIdx {
			cursor = "> "
		}
		active := ""
		if m.snap.Connection.HasAccount && acc == m.snap.Connection.Account {
			active = infoStyle.Render(" (active)")
		}
		rows += fmt.Sprintf("%s%s%s\n", cursor, acc.Hex(), active)
	}
	content := boxStyle.Render(lipgloss.JoinVertical(lipgloss.Center, titleStyle.Render("Select Account"), "\n", rows))
	footer := subtleStyle.Render("↑/↓: move • enter: select • esc: back")
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, lipgloss.JoinVertical(lipgloss.Center, content, "\n", footer))
}

func (m model) viewHelp() string {
	shortcuts := []string{
		"Tab/l/Right: Next Pane",
		"S-Tab/h/Left: Prev Pane",
		"↑/k ↓/j: Select Item",
		"n: List New Item",
		"b: Buy Selected Item",
		"t: Transfer Selected Item",
		"r: Refresh Items",
		"v: Reconnect Contract",
		"c: Check Contract Code",
		"w: Check Network",
		"a: Switch Account",
		"y: Copy Owner / Tx Hash",
		"q: Quit",
		"?: Toggle Help",
	}

	header := titleStyle.Render("Help")
	content := boxStyle.Render(lipgloss.JoinVertical(lipgloss.Left, header, "\n", strings.Join(shortcuts, "\n")))
	footer := subtleStyle.Render("Press '?' or 'esc' to close")

	return lipgloss.Place(
		m.width,
		m.height,
		lipgloss.Center,
		lipgloss.Center,
		lipgloss.JoinVertical(lipgloss.Center, content, "\n", footer),
	)
}
