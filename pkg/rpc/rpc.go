package rpc

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"evmarket/pkg/contract"
	"evmarket/pkg/market"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/params"
)

var DialTimeout = 10 * time.Second

// Client is the chain provider backed by a JSON-RPC endpoint.
type Client struct {
	url string
	eth *ethclient.Client
}

var _ market.Provider = (*Client)(nil)

// Dial connects to rpcURL.
func Dial(ctx context.Context, rpcURL string) (*Client, error) {
	ctx, cancel := context.WithTimeout(ctx, DialTimeout)
	defer cancel()
	eth, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", rpcURL, err)
	}
	return &Client{url: rpcURL, eth: eth}, nil
}

// URL returns the endpoint the client is connected to.
func (c *Client) URL() string {
	return c.url
}

// Backend exposes the underlying client for contract bindings.
func (c *Client) Backend() *ethclient.Client {
	return c.eth
}

func (c *Client) Close() {
	c.eth.Close()
}

// Network returns the chain id and its well-known name.
func (c *Client) Network(ctx context.Context) (*big.Int, string, error) {
	id, err := c.eth.ChainID(ctx)
	if err != nil {
		return nil, "", err
	}
	return id, NetworkName(id), nil
}

func (c *Client) CodeAt(ctx context.Context, address common.Address) ([]byte, error) {
	return c.eth.CodeAt(ctx, address, nil)
}

func (c *Client) Contract(address common.Address) (market.Marketplace, error) {
	return contract.NewMarketplace(address, c.eth)
}

// WaitMined blocks until tx is mined. A mined transaction that reverted is
// returned together with an error.
func (c *Client) WaitMined(ctx context.Context, tx *types.Transaction) (*types.Receipt, error) {
	receipt, err := bind.WaitMined(ctx, c.eth, tx)
	if err != nil {
		return nil, err
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		log.Warn("Transaction reverted", "hash", tx.Hash(), "block", receipt.BlockNumber)
		return receipt, fmt.Errorf("transaction %s reverted in block %v", tx.Hash().Hex(), receipt.BlockNumber)
	}
	return receipt, nil
}

// Latency measures a round trip for the latest header.
func (c *Client) Latency(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if _, err := c.eth.HeaderByNumber(ctx, nil); err != nil {
		return 0, err
	}
	return time.Since(start), nil
}

// NetworkName maps a chain id to the name wallets show for it.
func NetworkName(chainID *big.Int) string {
	if chainID == nil {
		return "unknown"
	}
	switch {
	case chainID.Cmp(params.MainnetChainConfig.ChainID) == 0:
		return "mainnet"
	case chainID.Cmp(params.SepoliaChainConfig.ChainID) == 0:
		return "sepolia"
	case chainID.Cmp(params.HoleskyChainConfig.ChainID) == 0:
		return "holesky"
	}
	return "unknown"
}
