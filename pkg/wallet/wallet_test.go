package wallet

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKey = "b71c71a67e1177ad4e901695e1b4b9ee17ae16c6668d313eac2f96dbcda3f291"

func openTestWallet(t *testing.T, password PasswordFunc) *Wallet {
	w := Open(Options{
		Dir:      t.TempDir(),
		ScryptN:  keystore.LightScryptN,
		ScryptP:  keystore.LightScryptP,
		Password: password,
	})
	t.Cleanup(w.Close)
	return w
}

func TestEmptyKeystoreIsUnavailable(t *testing.T) {
	w := openTestWallet(t, StaticPassword("secret"))
	assert.False(t, w.Available())

	accounts, err := w.RequestAccounts(context.Background())
	require.NoError(t, err)
	assert.Empty(t, accounts)
}

func TestRequestAccountsUnlocksFirstKey(t *testing.T) {
	w := openTestWallet(t, StaticPassword("secret"))
	addr, err := w.ImportKey("0x"+testKey, "secret")
	require.NoError(t, err)
	key, err := crypto.HexToECDSA(testKey)
	require.NoError(t, err)
	assert.Equal(t, crypto.PubkeyToAddress(key.PublicKey), addr)
	assert.True(t, w.Available())

	accounts, err := w.RequestAccounts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []common.Address{addr}, accounts)
	assert.Equal(t, addr, w.Active())

	opts, err := w.Transactor(addr, big.NewInt(1337))
	require.NoError(t, err)
	assert.Equal(t, addr, opts.From)

	tx := types.NewTx(&types.LegacyTx{Nonce: 0, GasPrice: big.NewInt(1), Gas: 21000})
	signed, err := opts.Signer(addr, tx)
	require.NoError(t, err)
	sender, err := types.Sender(types.LatestSignerForChainID(big.NewInt(1337)), signed)
	require.NoError(t, err)
	assert.Equal(t, addr, sender)
}

func TestWrongPasswordIsDecryptError(t *testing.T) {
	w := openTestWallet(t, StaticPassword("wrong"))
	_, err := w.ImportKey(testKey, "secret")
	require.NoError(t, err)

	_, err = w.RequestAccounts(context.Background())
	assert.ErrorIs(t, err, keystore.ErrDecrypt)
}

func TestMissingPasswordLeavesKeyLocked(t *testing.T) {
	w := openTestWallet(t, StaticPassword(""))
	_, err := w.NewAccount("secret")
	require.NoError(t, err)

	_, err = w.RequestAccounts(context.Background())
	assert.ErrorIs(t, err, keystore.ErrLocked)

	w.SetPassword(NoPrompt)
	_, err = w.RequestAccounts(context.Background())
	assert.ErrorIs(t, err, keystore.ErrLocked)
}

func TestSelectPublishesActiveFirst(t *testing.T) {
	w := openTestWallet(t, StaticPassword("secret"))
	first, err := w.NewAccount("secret")
	require.NoError(t, err)
	second, err := w.NewAccount("secret")
	require.NoError(t, err)

	ch := make(chan []common.Address, 1)
	sub := w.SubscribeAccounts(ch)
	defer sub.Unsubscribe()

	require.NoError(t, w.Select(second))
	select {
	case list := <-ch:
		assert.Equal(t, second, list[0])
		assert.ElementsMatch(t, []common.Address{first, second}, list)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for account change")
	}
	assert.Equal(t, second, w.Active())
}

func TestSelectUnknownAccount(t *testing.T) {
	w := openTestWallet(t, StaticPassword("secret"))
	err := w.Select(common.HexToAddress("0x1234567890123456789012345678901234567890"))
	assert.ErrorIs(t, err, ErrUnknownAccount)
}

func TestTransactorNeedsChainID(t *testing.T) {
	w := openTestWallet(t, StaticPassword("secret"))
	addr, err := w.NewAccount("secret")
	require.NoError(t, err)

	_, err = w.Transactor(addr, nil)
	assert.Error(t, err)

	_, err = w.Transactor(common.HexToAddress("0x1234567890123456789012345678901234567890"), big.NewInt(1))
	assert.ErrorIs(t, err, ErrUnknownAccount)
}

func TestImportRejectsBadKey(t *testing.T) {
	w := openTestWallet(t, StaticPassword("secret"))
	_, err := w.ImportKey("not-a-key", "secret")
	assert.Error(t, err)
}

func TestRememberedAsksOnce(t *testing.T) {
	calls := 0
	fn := Remembered(func(common.Address) (string, error) {
		calls++
		return "secret", nil
	})
	for i := 0; i < 3; i++ {
		p, err := fn(common.Address{})
		require.NoError(t, err)
		assert.Equal(t, "secret", p)
	}
	assert.Equal(t, 1, calls)

	failing := Remembered(NoPrompt)
	_, err := failing(common.Address{})
	assert.ErrorIs(t, err, ErrNoPrompt)
}
