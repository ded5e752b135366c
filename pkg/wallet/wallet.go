// Package wallet provides the signing accounts, backed by a go-ethereum
// keystore directory.
package wallet

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"path/filepath"
	"strings"
	"sync"

	"github.com/adrg/xdg"
	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/event"
	"github.com/ethereum/go-ethereum/log"
)

// ErrUnknownAccount is returned for an address the keystore does not hold.
var ErrUnknownAccount = errors.New("account not found in keystore")

// DefaultDir returns the keystore directory under the XDG data home.
func DefaultDir() string {
	return filepath.Join(xdg.DataHome, "evmarket", "keystore")
}

// Options configures a Wallet. Zero scrypt parameters select the standard
// ones.
type Options struct {
	Dir      string
	ScryptN  int
	ScryptP  int
	Password PasswordFunc
}

// Wallet tracks the active account of a keystore and publishes account
// list changes, active account first.
type Wallet struct {
	ks       *keystore.KeyStore
	password PasswordFunc

	mu       sync.Mutex
	active   common.Address
	unlocked map[common.Address]bool

	feed  event.Feed
	scope event.SubscriptionScope
	ksSub event.Subscription
	quit  chan struct{}
	wg    sync.WaitGroup
}

// Open opens the keystore at opts.Dir.
func Open(opts Options) *Wallet {
	if opts.Dir == "" {
		opts.Dir = DefaultDir()
	}
	if opts.ScryptN == 0 || opts.ScryptP == 0 {
		opts.ScryptN, opts.ScryptP = keystore.StandardScryptN, keystore.StandardScryptP
	}
	w := &Wallet{
		ks:       keystore.NewKeyStore(opts.Dir, opts.ScryptN, opts.ScryptP),
		password: opts.Password,
		unlocked: make(map[common.Address]bool),
		quit:     make(chan struct{}),
	}

	events := make(chan accounts.WalletEvent, 16)
	w.ksSub = w.ks.Subscribe(events)
	w.wg.Add(1)
	go w.loop(events)
	return w
}

// SetPassword replaces the password source.
func (w *Wallet) SetPassword(password PasswordFunc) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.password = password
}

func (w *Wallet) loop(events chan accounts.WalletEvent) {
	defer w.wg.Done()
	for {
		select {
		case ev := <-events:
			if ev.Kind != accounts.WalletDropped {
				continue
			}
			for _, acc := range ev.Wallet.Accounts() {
				w.dropped(acc.Address)
			}
		case <-w.ksSub.Err():
			return
		case <-w.quit:
			return
		}
	}
}

// dropped handles a key file disappearing from the keystore directory.
func (w *Wallet) dropped(addr common.Address) {
	w.mu.Lock()
	delete(w.unlocked, addr)
	wasActive := w.active == addr
	if wasActive {
		w.active = common.Address{}
	}
	w.mu.Unlock()

	if wasActive {
		log.Warn("Active account removed from keystore", "account", addr)
		w.feed.Send([]common.Address{})
	}
}

// Close stops event delivery.
func (w *Wallet) Close() {
	close(w.quit)
	w.ksSub.Unsubscribe()
	w.scope.Close()
	w.wg.Wait()
}

// Available reports whether the keystore holds any account.
func (w *Wallet) Available() bool {
	return len(w.ks.Accounts()) > 0
}

// Accounts lists the keystore accounts, active first.
func (w *Wallet) Accounts() []common.Address {
	w.mu.Lock()
	active := w.active
	w.mu.Unlock()

	var list []common.Address
	if active != (common.Address{}) {
		list = append(list, active)
	}
	for _, acc := range w.ks.Accounts() {
		if acc.Address != active {
			list = append(list, acc.Address)
		}
	}
	return list
}

// Active returns the selected account, or the zero address.
func (w *Wallet) Active() common.Address {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.active
}

// RequestAccounts unlocks the active account, defaulting to the first key
// in the keystore, and returns the account list.
func (w *Wallet) RequestAccounts(ctx context.Context) ([]common.Address, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	all := w.ks.Accounts()
	if len(all) == 0 {
		return nil, nil
	}

	w.mu.Lock()
	if w.active == (common.Address{}) || !w.ks.HasAddress(w.active) {
		w.active = all[0].Address
	}
	active := w.active
	w.mu.Unlock()

	if err := w.unlock(active); err != nil {
		return nil, err
	}
	return w.Accounts(), nil
}

// Select unlocks account, makes it active and announces the change.
func (w *Wallet) Select(account common.Address) error {
	if !w.ks.HasAddress(account) {
		return fmt.Errorf("%w: %s", ErrUnknownAccount, account.Hex())
	}
	if err := w.unlock(account); err != nil {
		return err
	}
	w.mu.Lock()
	w.active = account
	w.mu.Unlock()

	log.Info("Account selected", "account", account)
	w.feed.Send(w.Accounts())
	return nil
}

// unlock decrypts the key of addr once. A missing or empty password leaves
// the key locked.
func (w *Wallet) unlock(addr common.Address) error {
	w.mu.Lock()
	if w.unlocked[addr] {
		w.mu.Unlock()
		return nil
	}
	password := w.password
	w.mu.Unlock()

	if password == nil {
		return fmt.Errorf("%w: no password source", keystore.ErrLocked)
	}
	pass, err := password(addr)
	if err != nil {
		return fmt.Errorf("%w: %v", keystore.ErrLocked, err)
	}
	if pass == "" {
		return fmt.Errorf("%w: empty password", keystore.ErrLocked)
	}
	if err := w.ks.Unlock(accounts.Account{Address: addr}, pass); err != nil {
		return err
	}

	w.mu.Lock()
	w.unlocked[addr] = true
	w.mu.Unlock()
	log.Debug("Account unlocked", "account", addr)
	return nil
}

// Transactor returns signing options for account on chainID.
func (w *Wallet) Transactor(account common.Address, chainID *big.Int) (*bind.TransactOpts, error) {
	if chainID == nil {
		return nil, errors.New("chain id unknown")
	}
	acc, err := w.ks.Find(accounts.Account{Address: account})
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAccount, account.Hex())
	}
	return bind.NewKeyStoreTransactorWithChainID(w.ks, acc, chainID)
}

// SubscribeAccounts delivers account list changes to ch.
func (w *Wallet) SubscribeAccounts(ch chan<- []common.Address) event.Subscription {
	return w.scope.Track(w.feed.Subscribe(ch))
}

// NewAccount creates a key protected by password.
func (w *Wallet) NewAccount(password string) (common.Address, error) {
	acc, err := w.ks.NewAccount(password)
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to create new account: %w", err)
	}
	return acc.Address, nil
}

// ImportKey stores a hex encoded private key protected by password.
func (w *Wallet) ImportKey(hexKey, password string) (common.Address, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(hexKey), "0x"))
	if err != nil {
		return common.Address{}, fmt.Errorf("invalid private key: %w", err)
	}
	acc, err := w.ks.ImportECDSA(key, password)
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to import key: %w", err)
	}
	return acc.Address, nil
}
