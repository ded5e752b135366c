// Package market drives the marketplace contract: it connects the wallet,
// verifies the contract, loads on-chain state and runs transactions.
package market

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"sync/atomic"
	"time"

	"evmarket/pkg/models"
	"evmarket/pkg/notify"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/event"
	"github.com/ethereum/go-ethereum/log"
)

const (
	opInitialize    = "initialize"
	opAccountChange = "account_change"
	opVerify        = "verify"
	opLoad          = "load"
	opCheckContract = "check_contract"
	opCheckNetwork  = "check_network"
	opList          = string(models.OpList)
	opPurchase      = string(models.OpPurchase)
	opTransfer      = string(models.OpTransfer)
)

// ErrWalletNotConnected is returned when an operation needs a signer and no
// account is selected.
var ErrWalletNotConnected = errors.New("wallet not connected")

// Options configures a Session.
type Options struct {
	ContractAddress common.Address
	// NotificationTimeout is zero outside tests, which means
	// notify.DefaultTimeout.
	NotificationTimeout time.Duration
}

// Session is the single application state value. Renderers observe it
// through Snapshot and Subscribe and change it only through its methods.
type Session struct {
	provider Provider
	wallet   Wallet
	address  common.Address
	sink     *notify.Sink

	ctx    context.Context
	cancel context.CancelFunc

	mu          sync.RWMutex
	conn        models.ConnectionState
	signer      *bind.TransactOpts
	contract    Marketplace
	status      models.ContractStatus
	catalog     []models.Item
	owned       []models.Item
	operation   models.Operation
	phase       models.Phase
	diag        models.Diagnostics
	walletFound bool
	initErr     error
	accountSub  event.Subscription

	// epoch increments on every account change. Loads started under an
	// older epoch are discarded.
	epoch   atomic.Uint64
	pending atomic.Bool

	subMu       sync.RWMutex
	subscribers []Subscriber
}

// NewSession creates a session for the contract at opts.ContractAddress.
func NewSession(provider Provider, wallet Wallet, opts Options) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		provider: provider,
		wallet:   wallet,
		address:  opts.ContractAddress,
		ctx:      ctx,
		cancel:   cancel,
		phase:    models.PhaseIdle,
	}
	s.diag.ContractAddress = opts.ContractAddress
	s.sink = notify.NewSink(opts.NotificationTimeout, func(n models.Notification) {
		s.notify(Event{Type: EventNotification, Data: n})
	})
	return s
}

// ContractAddress returns the configured marketplace address.
func (s *Session) ContractAddress() common.Address {
	return s.address
}

// Subscribe adds a new subscriber and returns a channel to receive events.
func (s *Session) Subscribe() Subscriber {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	ch := make(Subscriber, 100)
	s.subscribers = append(s.subscribers, ch)
	return ch
}

// Unsubscribe removes a subscriber.
func (s *Session) Unsubscribe(ch Subscriber) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	for i, sub := range s.subscribers {
		if sub == ch {
			s.subscribers = append(s.subscribers[:i], s.subscribers[i+1:]...)
			close(ch)
			break
		}
	}
}

func (s *Session) notify(ev Event) {
	s.subMu.RLock()
	defer s.subMu.RUnlock()
	for _, sub := range s.subscribers {
		select {
		case sub <- ev:
		default:
			// Slow subscribers miss events but can always re-read Snapshot.
		}
	}
}

// Snapshot returns a copy of the current state.
func (s *Session) Snapshot() models.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := models.Snapshot{
		Connection:   s.conn,
		Status:       s.status,
		Catalog:      append([]models.Item(nil), s.catalog...),
		Owned:        append([]models.Item(nil), s.owned...),
		Notification: s.sink.Current(),
		Pending:      s.pending.Load(),
		Operation:    s.operation,
		Phase:        s.phase,
		Diagnostics:  s.diag,
		WalletFound:  s.walletFound,
	}
	if s.conn.ChainID != nil {
		snap.Connection.ChainID = new(big.Int).Set(s.conn.ChainID)
	}
	snap.Diagnostics.ContractCode = append([]byte(nil), s.diag.ContractCode...)
	return snap
}

// Notify shows a message through the session's notification sink.
func (s *Session) Notify(message string, kind models.NotificationKind) {
	s.sink.Show(message, kind)
}

// Close stops the account subscription and the notification timer.
func (s *Session) Close() {
	s.cancel()
	s.mu.Lock()
	sub := s.accountSub
	s.accountSub = nil
	s.mu.Unlock()
	if sub != nil {
		sub.Unsubscribe()
	}
	s.sink.Close()
}

// Initialize connects the wallet, captures the network, subscribes to
// account changes and verifies the contract. A missing wallet is terminal:
// later calls return the same error without touching the wallet.
func (s *Session) Initialize(ctx context.Context) error {
	s.mu.RLock()
	initErr := s.initErr
	s.mu.RUnlock()
	if initErr != nil {
		return initErr
	}

	if s.wallet == nil || !s.wallet.Available() {
		err := newOpError(opInitialize, ErrNoWallet, nil)
		s.mu.Lock()
		s.initErr = err
		s.walletFound = false
		s.mu.Unlock()
		log.Error("Wallet not found")
		s.sink.Error("No wallet detected. Create or import an account to use this application.")
		return err
	}
	s.mu.Lock()
	s.walletFound = true
	s.mu.Unlock()

	chainID, name, err := s.provider.Network(ctx)
	if err != nil {
		return s.walletFailure(opInitialize, err)
	}
	s.mu.Lock()
	s.conn.ChainID = chainID
	s.conn.NetworkName = name
	s.diag.NetworkName = name
	s.mu.Unlock()
	log.Info("Network detected", "name", name, "chainid", chainID)

	accounts, err := s.wallet.RequestAccounts(ctx)
	if err != nil {
		return s.walletFailure(opInitialize, err)
	}
	if len(accounts) == 0 {
		return s.walletFailure(opInitialize, fmt.Errorf("%w: no account authorised", ErrUserRejected))
	}

	epoch, err := s.applyAccounts(accounts)
	if err != nil {
		return s.walletFailure(opInitialize, err)
	}
	s.watchAccounts()

	log.Info("Wallet connected", "account", accounts[0])
	s.sink.Success("Connected to wallet successfully")
	return s.verify(ctx, epoch)
}

func (s *Session) walletFailure(op string, err error) error {
	e := classify(op, err)
	log.Error("Wallet connection failed", "err", err)
	s.sink.Error("Failed to connect to wallet: " + e.Raw)
	return e
}

// watchAccounts forwards wallet account changes into the session. The
// account switch is applied in event order; the reload for each new
// account runs concurrently and is fenced by its epoch.
func (s *Session) watchAccounts() {
	s.mu.Lock()
	if s.accountSub != nil {
		s.mu.Unlock()
		return
	}
	ch := make(chan []common.Address, 16)
	sub := s.wallet.SubscribeAccounts(ch)
	s.accountSub = sub
	s.mu.Unlock()

	go func() {
		for {
			select {
			case accounts := <-ch:
				epoch, err := s.applyAccounts(accounts)
				if err != nil {
					_ = s.walletFailure(opAccountChange, err)
					continue
				}
				if len(accounts) > 0 {
					go func() { _ = s.verify(s.ctx, epoch) }()
				}
			case err := <-sub.Err():
				if err != nil {
					log.Warn("Account subscription failed", "err", err)
				}
				return
			case <-s.ctx.Done():
				return
			}
		}
	}()
}

// HandleAccountChange switches to the first of accounts and re-runs the
// verify and load cycle for it. An empty list clears the account.
func (s *Session) HandleAccountChange(ctx context.Context, accounts []common.Address) error {
	epoch, err := s.applyAccounts(accounts)
	if err != nil {
		return s.walletFailure(opAccountChange, err)
	}
	if len(accounts) == 0 {
		return nil
	}
	return s.verify(ctx, epoch)
}

// SelectAccount makes account the active one.
func (s *Session) SelectAccount(ctx context.Context, account common.Address) error {
	return s.HandleAccountChange(ctx, []common.Address{account})
}

// applyAccounts starts a new epoch and replaces the account and signer in
// one step.
func (s *Session) applyAccounts(accounts []common.Address) (uint64, error) {
	if len(accounts) == 0 {
		s.mu.Lock()
		epoch := s.epoch.Add(1)
		s.conn.Account = common.Address{}
		s.conn.HasAccount = false
		s.signer = nil
		s.owned = nil
		conn := s.conn
		s.mu.Unlock()

		log.Info("Wallet account cleared")
		s.notify(Event{Type: EventConnectionChanged, Data: conn})
		s.notify(Event{Type: EventOwnedUpdated})
		s.sink.Info("Wallet disconnected")
		return epoch, nil
	}

	account := accounts[0]
	s.mu.RLock()
	chainID := s.conn.ChainID
	s.mu.RUnlock()

	signer, err := s.wallet.Transactor(account, chainID)
	if err != nil {
		return 0, err
	}

	s.mu.Lock()
	epoch := s.epoch.Add(1)
	prev := s.conn.Account
	s.conn.Account = account
	s.conn.HasAccount = true
	s.signer = signer
	if prev != account {
		s.owned = nil
	}
	conn := s.conn
	s.mu.Unlock()

	log.Info("Wallet account changed", "account", account, "epoch", epoch)
	s.notify(Event{Type: EventConnectionChanged, Data: conn})
	return epoch, nil
}

// Reload refreshes the catalog and owned items from the contract.
func (s *Session) Reload(ctx context.Context) error {
	s.mu.RLock()
	status := s.status
	s.mu.RUnlock()
	if status != models.StatusConnected {
		return newOpError(opLoad, ErrNotConnected, nil)
	}
	return s.reload(ctx, s.epoch.Load())
}

// reload runs both loaders and commits each result that succeeded, unless
// the account changed while they ran.
func (s *Session) reload(ctx context.Context, epoch uint64) error {
	s.mu.RLock()
	contract := s.contract
	account := s.conn.Account
	hasAccount := s.conn.HasAccount
	s.mu.RUnlock()
	if contract == nil {
		return newOpError(opLoad, ErrNotConnected, nil)
	}

	catalog, catalogErr := LoadCatalog(ctx, contract)
	var owned []models.Item
	var ownedErr error
	if hasAccount {
		owned, ownedErr = LoadOwned(ctx, contract, account)
	}

	s.mu.Lock()
	if s.epoch.Load() != epoch {
		s.mu.Unlock()
		log.Debug("Discarding stale load", "epoch", epoch, "account", account)
		return nil
	}
	if catalogErr == nil {
		s.catalog = catalog
	}
	if hasAccount && ownedErr == nil {
		s.owned = owned
	}
	err := errors.Join(catalogErr, ownedErr)
	s.diag.LastLoad = time.Now()
	s.diag.LastLoadError = ""
	if err != nil {
		s.diag.LastLoadError = err.Error()
	}
	diag := s.diag
	s.mu.Unlock()

	if catalogErr == nil {
		s.notify(Event{Type: EventCatalogUpdated, Data: len(catalog)})
	} else {
		log.Warn("Loading items failed", "err", catalogErr)
	}
	if hasAccount && ownedErr == nil {
		s.notify(Event{Type: EventOwnedUpdated, Data: len(owned)})
	} else if ownedErr != nil {
		log.Warn("Loading owned items failed", "owner", account, "err", ownedErr)
	}
	s.notify(Event{Type: EventDiagnosticsUpdated, Data: diag})

	if err != nil {
		return fmt.Errorf("load: %w", err)
	}
	log.Debug("State loaded", "items", len(catalog), "owned", len(owned))
	return nil
}

func (s *Session) setStatus(status models.ContractStatus) {
	s.mu.Lock()
	changed := s.status != status
	s.status = status
	s.mu.Unlock()
	if changed {
		log.Info("Contract status changed", "status", status)
		s.notify(Event{Type: EventStatusChanged, Data: status})
	}
}
