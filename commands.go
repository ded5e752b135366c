package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"

	"evmarket/pkg/config"
	"evmarket/pkg/market"
	"evmarket/pkg/models"
	"evmarket/pkg/rpc"
	"evmarket/pkg/utils"
	"evmarket/pkg/wallet"

	"github.com/ethereum/go-ethereum/common"
	"github.com/olekukonko/tablewriter"
	"github.com/urfave/cli/v2"
)

func itemsCommand() *cli.Command {
	return &cli.Command{
		Name:  "items",
		Usage: "Print the marketplace catalog",
		Action: func(c *cli.Context) error {
			return withContract(c, func(ctx context.Context, m market.Marketplace, _ config.Config) error {
				items, err := market.LoadCatalog(ctx, m)
				if err != nil {
					return fmt.Errorf("failed to load items: %w", err)
				}
				printItems(c.App.Writer, items, "No items listed yet")
				return nil
			})
		},
	}
}

func ownedCommand() *cli.Command {
	return &cli.Command{
		Name:      "owned",
		Usage:     "Print the items owned by an account",
		ArgsUsage: "[ADDRESS]",
		Action: func(c *cli.Context) error {
			return withContract(c, func(ctx context.Context, m market.Marketplace, cfg config.Config) error {
				owner, err := ownerFor(c, cfg)
				if err != nil {
					return err
				}
				items, err := market.LoadOwned(ctx, m, owner)
				if err != nil {
					return fmt.Errorf("failed to load owned items: %w", err)
				}
				fmt.Fprintf(c.App.Writer, "Items owned by %s\n", owner.Hex())
				printItems(c.App.Writer, items, "No items owned")
				return nil
			})
		},
	}
}

// ownerFor picks the address argument, the --account flag or the first
// keystore account.
func ownerFor(c *cli.Context, cfg config.Config) (common.Address, error) {
	v := c.Args().First()
	if v == "" {
		v = c.String("account")
	}
	if v != "" {
		if !utils.IsValidAddress(v) {
			return common.Address{}, fmt.Errorf("invalid address %q", v)
		}
		return common.HexToAddress(v), nil
	}
	w := openWallet(c, cfg, nil)
	defer w.Close()
	accounts := w.Accounts()
	if len(accounts) == 0 {
		return common.Address{}, fmt.Errorf("no address given and the keystore is empty")
	}
	return accounts[0], nil
}

// withContract runs fn against a read-only contract handle.
func withContract(c *cli.Context, fn func(ctx context.Context, m market.Marketplace, cfg config.Config) error) error {
	st, err := loadSettings(c, "")
	if err != nil {
		return err
	}
	cfg := st.effective
	if err := cfg.Validate(); err != nil {
		return err
	}
	closer, err := setupLogging(cfg, false)
	if err != nil {
		return err
	}
	defer closer.Close()

	ctx, cancel := signal.NotifyContext(c.Context, os.Interrupt)
	defer cancel()

	client, err := rpc.Dial(ctx, cfg.RPCURL)
	if err != nil {
		return err
	}
	defer client.Close()

	code, err := client.CodeAt(ctx, cfg.Contract())
	if err != nil {
		return fmt.Errorf("failed to read contract code: %w", err)
	}
	if len(code) == 0 {
		return fmt.Errorf("no contract deployed at %s", cfg.Contract().Hex())
	}
	m, err := client.Contract(cfg.Contract())
	if err != nil {
		return err
	}
	return fn(ctx, m, cfg)
}

func printItems(out io.Writer, items []models.Item, empty string) {
	if len(items) == 0 {
		fmt.Fprintln(out, empty)
		return
	}
	table := tablewriter.NewWriter(out)
	table.SetHeader([]string{"ID", "Name", "Price (ETH)", "Seller", "Owner", "Sold"})
	table.SetAutoWrapText(false)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	for _, it := range items {
		sold := "no"
		if it.IsSold {
			sold = "yes"
		}
		table.Append([]string{
			strconv.FormatUint(it.ID, 10),
			it.Name,
			utils.FormatEther(it.PriceWei),
			it.Seller.Hex(),
			it.Owner.Hex(),
			sold,
		})
	}
	table.Render()
}

func listCommand() *cli.Command {
	return &cli.Command{
		Name:      "list",
		Usage:     "List a new item for sale",
		ArgsUsage: "NAME PRICE",
		Action: func(c *cli.Context) error {
			if c.NArg() != 2 {
				return fmt.Errorf("usage: list NAME PRICE")
			}
			name, price := c.Args().Get(0), c.Args().Get(1)
			return withSession(c, func(ctx context.Context, s *market.Session) (common.Hash, error) {
				return s.List(ctx, name, price)
			})
		},
	}
}

func buyCommand() *cli.Command {
	return &cli.Command{
		Name:      "buy",
		Usage:     "Purchase an item, paying its listed price",
		ArgsUsage: "ID PRICE",
		Action: func(c *cli.Context) error {
			if c.NArg() != 2 {
				return fmt.Errorf("usage: buy ID PRICE")
			}
			id, err := parseItemID(c.Args().Get(0))
			if err != nil {
				return err
			}
			price := c.Args().Get(1)
			return withSession(c, func(ctx context.Context, s *market.Session) (common.Hash, error) {
				return s.Purchase(ctx, id, price)
			})
		},
	}
}

func transferCommand() *cli.Command {
	return &cli.Command{
		Name:      "transfer",
		Usage:     "Transfer an owned item to another address",
		ArgsUsage: "ID ADDRESS",
		Action: func(c *cli.Context) error {
			if c.NArg() != 2 {
				return fmt.Errorf("usage: transfer ID ADDRESS")
			}
			id, err := parseItemID(c.Args().Get(0))
			if err != nil {
				return err
			}
			to := c.Args().Get(1)
			return withSession(c, func(ctx context.Context, s *market.Session) (common.Hash, error) {
				return s.Transfer(ctx, id, to)
			})
		},
	}
}

// parseItemID accepts positive decimal ids. Zero and negatives are left to
// the session, which rejects them as invalid input.
func parseItemID(s string) (uint64, error) {
	id, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid item id %q", s)
	}
	return id, nil
}

// withSession connects a session and runs one transaction, printing the
// phases as they happen.
func withSession(c *cli.Context, fn func(ctx context.Context, s *market.Session) (common.Hash, error)) error {
	st, err := loadSettings(c, "")
	if err != nil {
		return err
	}
	cfg := st.effective
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

	if snap := rt.session.Snapshot(); snap.Status != models.StatusConnected {
		if !snap.Notification.Empty() {
			return fmt.Errorf("%s", snap.Notification.Message)
		}
		return fmt.Errorf("contract %s", snap.Status)
	}

	out := c.App.Writer
	sub := rt.session.Subscribe()
	done := make(chan struct{})
	go func() {
		defer close(done)
		for ev := range sub {
			if ev.Type != market.EventPhaseChanged {
				continue
			}
			data, _ := ev.Data.(map[string]interface{})
			if phase, ok := data["phase"].(models.Phase); ok && phase != models.PhaseIdle {
				fmt.Fprintf(out, "  %s\n", phase)
			}
		}
	}()

	hash, opErr := fn(ctx, rt.session)
	rt.session.Unsubscribe(sub)
	<-done

	snap := rt.session.Snapshot()
	if opErr != nil {
		if !snap.Notification.Empty() {
			return fmt.Errorf("%s", snap.Notification.Message)
		}
		return opErr
	}
	if !snap.Notification.Empty() {
		fmt.Fprintln(out, snap.Notification.Message)
	}
	if hash != (common.Hash{}) {
		fmt.Fprintf(out, "Transaction: %s\n", hash.Hex())
	}
	return nil
}

func accountCommand() *cli.Command {
	return &cli.Command{
		Name:  "account",
		Usage: "Manage keystore accounts",
		Subcommands: []*cli.Command{
			{
				Name:  "new",
				Usage: "Create a new account",
				Action: func(c *cli.Context) error {
					return withKeystore(c, func(w *wallet.Wallet) error {
						password, err := wallet.NewPassword()
						if err != nil {
							return fmt.Errorf("failed to read password: %w", err)
						}
						addr, err := w.NewAccount(password)
						if err != nil {
							return err
						}
						fmt.Fprintln(c.App.Writer, "Address:", addr.Hex())
						return nil
					})
				},
			},
			{
				Name:  "list",
				Usage: "List keystore accounts",
				Action: func(c *cli.Context) error {
					return withKeystore(c, func(w *wallet.Wallet) error {
						accounts := w.Accounts()
						if len(accounts) == 0 {
							fmt.Fprintln(c.App.Writer, "No accounts in keystore")
							return nil
						}
						for i, acc := range accounts {
							fmt.Fprintf(c.App.Writer, "#%d: %s\n", i, acc.Hex())
						}
						return nil
					})
				},
			},
			{
				Name:  "import",
				Usage: "Import an account using a hex private key",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "privatekey",
						Aliases:  []string{"key"},
						Usage:    "Private key in hex format",
						Required: true,
					},
				},
				Action: func(c *cli.Context) error {
					return withKeystore(c, func(w *wallet.Wallet) error {
						password, err := wallet.NewPassword()
						if err != nil {
							return fmt.Errorf("failed to read password: %w", err)
						}
						addr, err := w.ImportKey(c.String("privatekey"), password)
						if err != nil {
							return err
						}
						fmt.Fprintln(c.App.Writer, "Successfully imported account")
						fmt.Fprintln(c.App.Writer, "Address:", addr.Hex())
						return nil
					})
				},
			},
		},
	}
}

func configCommand() *cli.Command {
	return &cli.Command{
		Name:  "config",
		Usage: "Manage the configuration file",
		Subcommands: []*cli.Command{
			{
				Name:  "restore",
				Usage: "Restore the configuration from its newest backup",
				Action: func(c *cli.Context) error {
					path, err := config.GetConfigPath(c.String("config"))
					if err != nil {
						return fmt.Errorf("error determining config path: %w", err)
					}
					backup, err := config.RestoreLastBackup(path)
					if err != nil {
						return err
					}
					if _, err := config.LoadConfigFromFile(path); err != nil {
						return fmt.Errorf("restored %s but it does not load: %w", backup, err)
					}
					fmt.Fprintf(c.App.Writer, "Restored %s from %s\n", path, backup)
					return nil
				},
			},
		},
	}
}

func withKeystore(c *cli.Context, fn func(w *wallet.Wallet) error) error {
	st, err := loadSettings(c, "")
	if err != nil {
		return err
	}
	w := openWallet(c, st.effective, nil)
	defer w.Close()
	return fn(w)
}
