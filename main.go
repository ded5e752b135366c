package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync/atomic"

	"evmarket/pkg/config"
	"evmarket/pkg/market"
	"evmarket/pkg/rpc"
	"evmarket/pkg/server"
	"evmarket/pkg/tui"
	"evmarket/pkg/wallet"
	"evmarket/pkg/watcher"

	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
	"github.com/urfave/cli/v2"
)

// Version should be set during build
var Version = "dev"

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:      "evmarket",
		Usage:     "Browse, list, buy and transfer items on an on-chain marketplace",
		Version:   Version,
		ArgsUsage: "[config file]",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "test", Aliases: []string{"t"}, Usage: "Test configuration and exit"},
			&cli.BoolFlag{Name: "json", Usage: "Output test results as JSON"},
			&cli.BoolFlag{Name: "dry-run", Usage: "Perform a trial run with no changes made"},
			&cli.StringFlag{Name: "config", Usage: "Path to configuration file"},
			&cli.BoolFlag{Name: "server", Usage: "Run in headless server mode"},
			&cli.IntFlag{Name: "port", Usage: "Port for API server (overrides config)"},
			&cli.StringFlag{Name: "rpc-url", Usage: "HTTP-RPC server endpoint (overrides config)"},
			&cli.StringFlag{Name: "contract", Usage: "Marketplace contract address (overrides config)"},
			&cli.StringFlag{Name: "keystore", Usage: "Keystore directory (overrides config)"},
			&cli.StringFlag{Name: "account", Usage: "Account to sign with (default: first keystore account)"},
			&cli.BoolFlag{Name: "lightkdf", Usage: "Reduce key-derivation RAM & CPU usage at some expense of KDF strength"},
		},
		Commands: []*cli.Command{
			itemsCommand(),
			ownedCommand(),
			listCommand(),
			buyCommand(),
			transferCommand(),
			accountCommand(),
			configCommand(),
		},
		Action: run,
	}
}

// settings is the loaded configuration. file is what is on disk, effective
// has the environment and flag overrides applied.
type settings struct {
	path      string
	file      config.Config
	effective config.Config
}

func loadSettings(c *cli.Context, positional string) (settings, error) {
	input := c.String("config")
	if input == "" {
		input = positional
	}
	path, err := config.GetConfigPath(input)
	if err != nil {
		return settings{}, fmt.Errorf("error determining config path: %w", err)
	}
	file, err := config.LoadConfigFromFile(path)
	if err != nil {
		return settings{}, fmt.Errorf("error loading config from %s: %w", path, err)
	}

	eff := file
	eff.ApplyEnv()
	if v := c.String("rpc-url"); v != "" {
		eff.RPCURL = v
	}
	if v := c.String("contract"); v != "" {
		eff.ContractAddress = v
	}
	if v := c.String("keystore"); v != "" {
		eff.KeystoreDir = v
	}
	if c.IsSet("port") {
		eff.ServerPort = c.Int("port")
	}
	return settings{path: path, file: file, effective: eff}, nil
}

func openWallet(c *cli.Context, cfg config.Config, password wallet.PasswordFunc) *wallet.Wallet {
	opts := wallet.Options{Dir: cfg.KeystoreDir, Password: password}
	if c.Bool("lightkdf") {
		opts.ScryptN, opts.ScryptP = keystore.LightScryptN, keystore.LightScryptP
	}
	return wallet.Open(opts)
}

// runtime holds the live connection shared by the session-backed modes.
type runtime struct {
	client  *rpc.Client
	wallet  *wallet.Wallet
	session *market.Session
}

func (r *runtime) Close() {
	if r.session != nil {
		r.session.Close()
	}
	if r.wallet != nil {
		r.wallet.Close()
	}
	if r.client != nil {
		r.client.Close()
	}
}

// connect dials the node, opens the keystore and initializes a session.
// Initialization failures are logged and notified but do not abort: the
// session stays usable for diagnostics.
func connect(ctx context.Context, c *cli.Context, cfg config.Config, password wallet.PasswordFunc) (*runtime, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	client, err := rpc.Dial(ctx, cfg.RPCURL)
	if err != nil {
		return nil, err
	}
	rt := &runtime{client: client, wallet: openWallet(c, cfg, password)}

	if v := c.String("account"); v != "" {
		if !common.IsHexAddress(v) {
			rt.Close()
			return nil, fmt.Errorf("invalid account address %q", v)
		}
		if err := rt.wallet.Select(common.HexToAddress(v)); err != nil {
			rt.Close()
			return nil, err
		}
	}

	rt.session = market.NewSession(client, rt.wallet, market.Options{
		ContractAddress: cfg.Contract(),
	})
	if err := rt.session.Initialize(ctx); err != nil {
		log.Warn("Session initialization incomplete", "err", err)
	}
	return rt, nil
}

func run(c *cli.Context) error {
	st, err := loadSettings(c, c.Args().First())
	if err != nil {
		return err
	}

	if c.Bool("test") {
		closer, err := setupLogging(st.effective, false)
		if err != nil {
			return err
		}
		defer closer.Close()
		return runConfigTest(c.Context, c.App.Writer, st, c.Bool("json"), c.Bool("dry-run"))
	}

	if c.Bool("server") {
		return runServer(c, st.effective)
	}
	return runTUI(c, st.effective)
}

func runServer(c *cli.Context, cfg config.Config) error {
	closer, err := setupLogging(cfg, false)
	if err != nil {
		return err
	}
	defer closer.Close()

	ctx, cancel := signal.NotifyContext(c.Context, os.Interrupt)
	defer cancel()

	rt, err := connect(ctx, c, cfg, wallet.Remembered(wallet.InteractivePassword))
	if err != nil {
		return err
	}
	defer rt.Close()

	w := watcher.NewWatcher(rt.session, rt.client, cfg.RefreshInterval())
	w.Start(ctx)
	defer w.Stop()

	srv := server.NewServer(rt.session, w, cfg.PriceDecimals)
	errc := make(chan error, 1)
	go func() { errc <- srv.Start(cfg.ServerPort) }()

	fmt.Fprintf(c.App.Writer, "Running in server mode on port %d...\n", cfg.ServerPort)
	select {
	case err := <-errc:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		log.Info("Shutting down")
		return nil
	}
}

func runTUI(c *cli.Context, cfg config.Config) error {
	closer, err := setupLogging(cfg, true)
	if err != nil {
		return err
	}
	defer closer.Close()

	// Prompts are only possible until the TUI owns the terminal. After that
	// an account switch reuses the password given at startup.
	var screenBusy atomic.Bool
	password := wallet.Remembered(func(account common.Address) (string, error) {
		if p, ok := os.LookupEnv(wallet.PasswordEnv); ok {
			return p, nil
		}
		if screenBusy.Load() {
			return wallet.NoPrompt(account)
		}
		return wallet.InteractivePassword(account)
	})

	ctx, cancel := context.WithCancel(c.Context)
	defer cancel()

	rt, err := connect(ctx, c, cfg, password)
	if err != nil {
		return err
	}
	defer rt.Close()

	w := watcher.NewWatcher(rt.session, rt.client, cfg.RefreshInterval())
	w.Start(ctx)
	defer w.Stop()

	screenBusy.Store(true)
	return tui.Start(rt.session, rt.wallet, w, cfg.PriceDecimals, Version)
}
