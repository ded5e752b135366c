package tui

import (
	"context"
	"time"

	"evmarket/pkg/market"
	"evmarket/pkg/models"
	"evmarket/pkg/watcher"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/ethereum/go-ethereum/common"
)

// Version is set by Start()
var Version = "dev"

// Market is the session surface the UI drives.
type Market interface {
	ContractAddress() common.Address
	Snapshot() models.Snapshot
	Subscribe() market.Subscriber
	Unsubscribe(market.Subscriber)
	Notify(message string, kind models.NotificationKind)
	Reload(ctx context.Context) error
	Verify(ctx context.Context) error
	CheckContract(ctx context.Context) error
	CheckNetwork(ctx context.Context) (string, error)
	List(ctx context.Context, name, price string) (common.Hash, error)
	Purchase(ctx context.Context, id uint64, price string) (common.Hash, error)
	Transfer(ctx context.Context, id uint64, to string) (common.Hash, error)
}

// Accounts switches the signing account. Selecting an account is announced
// to the session through the wallet's account feed.
type Accounts interface {
	Accounts() []common.Address
	Select(account common.Address) error
}

const (
	paneCatalog = iota
	paneOwned
	paneDiagnostics
	paneCount
)

// --- Messages ---

type clearStatusMsg struct{}
type uiTickMsg time.Time

// opDoneMsg reports the end of a session call started from the UI. The
// session has already shown a notification for it.
type opDoneMsg struct {
	op  string
	err error
}

// --- Model ---

type model struct {
	market   Market
	accounts Accounts
	watcher  *watcher.Watcher
	decimals int

	marketSub  market.Subscriber
	watcherSub watcher.Subscriber

	snap      models.Snapshot
	latencies []time.Duration
	lastRun   time.Time

	width      int
	height     int
	pane       int
	catalogIdx int
	ownedIdx   int

	spinner       spinner.Model
	statusMessage string
	showHelp      bool

	listing    bool
	listInputs []textinput.Model
	listFocus  int

	transferring  bool
	transferInput textinput.Model

	confirmBuy bool

	choosingAccount bool
	accountList     []common.Address
	accountIdx      int
}

func initialModel(mk Market, accounts Accounts, w *watcher.Watcher, decimals int) model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	lis := make([]textinput.Model, 2)
	for i := range lis {
		lis[i] = textinput.New()
		lis[i].Width = 40
	}
	lis[0].Placeholder = "Item name"
	lis[1].Placeholder = "Price in ETH (e.g. 0.5)"

	ti := textinput.New()
	ti.Placeholder = "0x..."
	ti.Width = 44

	m := model{
		market:        mk,
		accounts:      accounts,
		watcher:       w,
		decimals:      decimals,
		spinner:       s,
		listInputs:    lis,
		transferInput: ti,
		snap:          mk.Snapshot(),
		marketSub:     mk.Subscribe(),
	}
	if w != nil {
		m.watcherSub = w.Subscribe()
		m.latencies = w.Latencies()
	}
	return m
}

func (m model) Init() tea.Cmd {
	var cmds []tea.Cmd

	cmds = append(cmds, listenForMarket(m.marketSub))
	if m.watcherSub != nil {
		cmds = append(cmds, listenForWatcher(m.watcherSub))
	}
	cmds = append(cmds, m.spinner.Tick)
	cmds = append(cmds, tea.Tick(time.Second, func(t time.Time) tea.Msg { return uiTickMsg(t) }))
	return tea.Batch(cmds...)
}

// close releases the event subscriptions.
func (m model) close() {
	m.market.Unsubscribe(m.marketSub)
	if m.watcher != nil && m.watcherSub != nil {
		m.watcher.Unsubscribe(m.watcherSub)
	}
}
