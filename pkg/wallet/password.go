package wallet

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"syscall"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/term"
)

// PasswordEnv names the environment variable holding the wallet password.
const PasswordEnv = "WALLET_PASSWORD"

// ErrNoPrompt is returned by NoPrompt.
var ErrNoPrompt = errors.New("password prompt unavailable")

// PasswordFunc supplies the password that unlocks account.
type PasswordFunc func(account common.Address) (string, error)

// InteractivePassword reads the password from WALLET_PASSWORD, a terminal
// prompt or piped stdin, in that order.
func InteractivePassword(account common.Address) (string, error) {
	return readPassword(fmt.Sprintf("Enter password for %s: ", account.Hex()), false)
}

// NewPassword reads a password for a new key, asking twice on a terminal.
func NewPassword() (string, error) {
	return readPassword("Enter wallet password: ", true)
}

// StaticPassword always returns password.
func StaticPassword(password string) PasswordFunc {
	return func(common.Address) (string, error) {
		return password, nil
	}
}

// Remembered asks fn once and reuses the answer for every account, so a
// single prompt before the TUI starts unlocks later account switches.
func Remembered(fn PasswordFunc) PasswordFunc {
	var (
		mu       sync.Mutex
		password string
		known    bool
	)
	return func(account common.Address) (string, error) {
		mu.Lock()
		defer mu.Unlock()
		if known {
			return password, nil
		}
		p, err := fn(account)
		if err != nil {
			return "", err
		}
		password, known = p, true
		return p, nil
	}
}

// NoPrompt refuses to ask for a password. It is used once the terminal
// belongs to the TUI.
func NoPrompt(common.Address) (string, error) {
	return "", ErrNoPrompt
}

func readPassword(prompt string, confirm bool) (string, error) {
	password, ok := os.LookupEnv(PasswordEnv)
	if ok {
		return password, nil
	}

	if term.IsTerminal(int(syscall.Stdin)) {
		fmt.Fprint(os.Stderr, prompt)
		bytePassword, err := term.ReadPassword(int(syscall.Stdin))
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return "", err
		}
		password := strings.TrimSpace(string(bytePassword))
		if !confirm {
			return password, nil
		}

		fmt.Fprint(os.Stderr, "Confirm password: ")
		byteConfirm, err := term.ReadPassword(int(syscall.Stdin))
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return "", err
		}
		if password != strings.TrimSpace(string(byteConfirm)) {
			return "", fmt.Errorf("passwords did not match")
		}
		return password, nil
	}

	reader := bufio.NewReader(os.Stdin)
	password, err := reader.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	return strings.TrimSpace(password), nil
}
