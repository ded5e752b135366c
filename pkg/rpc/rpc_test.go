package rpc

import (
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"evmarket/pkg/contract"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockNode(t *testing.T, handle func(method string, params []interface{}) interface{}) *Client {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ID     int           `json:"id"`
			Method string        `json:"method"`
			Params []interface{} `json:"params"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}

		resp := map[string]interface{}{
			"jsonrpc": "2.0",
			"id":      req.ID,
			"result":  handle(req.Method, req.Params),
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(server.Close)

	c, err := Dial(context.Background(), server.URL)
	require.NoError(t, err)
	t.Cleanup(c.Close)
	return c
}

func receipt(hash string, status string) map[string]interface{} {
	return map[string]interface{}{
		"type":              "0x0",
		"status":            status,
		"cumulativeGasUsed": "0x5208",
		"gasUsed":           "0x5208",
		"effectiveGasPrice": "0x1",
		"logsBloom":         "0x" + strings.Repeat("00", 256),
		"logs":              []interface{}{},
		"transactionHash":   hash,
		"transactionIndex":  "0x0",
		"contractAddress":   nil,
		"blockHash":         "0x0000000000000000000000000000000000000000000000000000000000000001",
		"blockNumber":       "0x1000",
	}
}

func TestNetwork(t *testing.T) {
	c := newMockNode(t, func(method string, _ []interface{}) interface{} {
		if method == "eth_chainId" {
			return "0xaa36a7"
		}
		return "0x0"
	})

	id, name, err := c.Network(context.Background())
	if err != nil {
		t.Fatalf("Network returned error: %v", err)
	}
	if id.Int64() != 11155111 {
		t.Errorf("Expected chain id 11155111, got %s", id)
	}
	if name != "sepolia" {
		t.Errorf("Expected network sepolia, got %s", name)
	}
}

func TestCodeAt(t *testing.T) {
	addr := common.HexToAddress(contract.DefaultAddress)
	c := newMockNode(t, func(method string, params []interface{}) interface{} {
		if method == "eth_getCode" && strings.EqualFold(params[0].(string), addr.Hex()) {
			return "0x6080604052"
		}
		return "0x"
	})

	code, err := c.CodeAt(context.Background(), addr)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x60, 0x80, 0x60, 0x40, 0x52}, code)

	empty, err := c.CodeAt(context.Background(), common.HexToAddress("0x1234567890123456789012345678901234567890"))
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestWaitMined(t *testing.T) {
	ok := types.NewTx(&types.LegacyTx{Nonce: 1, GasPrice: big.NewInt(1), Gas: 21000})
	reverted := types.NewTx(&types.LegacyTx{Nonce: 2, GasPrice: big.NewInt(1), Gas: 21000})

	c := newMockNode(t, func(method string, params []interface{}) interface{} {
		if method != "eth_getTransactionReceipt" {
			return "0x0"
		}
		hash := params[0].(string)
		if hash == reverted.Hash().Hex() {
			return receipt(hash, "0x0")
		}
		return receipt(hash, "0x1")
	})

	r, err := c.WaitMined(context.Background(), ok)
	require.NoError(t, err)
	assert.Equal(t, types.ReceiptStatusSuccessful, r.Status)
	assert.Equal(t, ok.Hash(), r.TxHash)

	r, err = c.WaitMined(context.Background(), reverted)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "reverted")
	require.NotNil(t, r)
	assert.Equal(t, types.ReceiptStatusFailed, r.Status)
}

func TestWaitMinedHonoursContext(t *testing.T) {
	c := newMockNode(t, func(string, []interface{}) interface{} { return nil })
	tx := types.NewTx(&types.LegacyTx{Nonce: 3})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.WaitMined(ctx, tx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestContractBinding(t *testing.T) {
	c := newMockNode(t, func(method string, _ []interface{}) interface{} {
		if method == "eth_call" {
			return "0x0000000000000000000000000000000000000000000000000000000000000007"
		}
		return "0x0"
	})

	m, err := c.Contract(common.HexToAddress(contract.DefaultAddress))
	require.NoError(t, err)
	count, err := m.ItemCount(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(7), count)
}

func TestLatency(t *testing.T) {
	c := newMockNode(t, func(method string, _ []interface{}) interface{} {
		return map[string]interface{}{
			"number":           "0x1000",
			"hash":             "0x0000000000000000000000000000000000000000000000000000000000000001",
			"parentHash":       "0x0000000000000000000000000000000000000000000000000000000000000002",
			"sha3Uncles":       "0x1dcc4de8dec75d7aab85b567b6ccd41ad312451b948a7413f0a142fd40d49347",
			"timestamp":        "0x5f5e1000",
			"miner":            "0x0000000000000000000000000000000000000000",
			"gasLimit":         "0x1",
			"gasUsed":          "0x0",
			"difficulty":       "0x0",
			"extraData":        "0x",
			"mixHash":          "0x0000000000000000000000000000000000000000000000000000000000000000",
			"nonce":            "0x0000000000000000",
			"stateRoot":        "0x0000000000000000000000000000000000000000000000000000000000000000",
			"receiptsRoot":     "0x0000000000000000000000000000000000000000000000000000000000000000",
			"transactionsRoot": "0x0000000000000000000000000000000000000000000000000000000000000001",
			"logsBloom":        "0x" + strings.Repeat("00", 256),
		}
	})

	d, err := c.Latency(context.Background())
	require.NoError(t, err)
	assert.Greater(t, int64(d), int64(0))
}

func TestNetworkName(t *testing.T) {
	tests := []struct {
		id   *big.Int
		name string
	}{
		{big.NewInt(1), "mainnet"},
		{big.NewInt(11155111), "sepolia"},
		{big.NewInt(17000), "holesky"},
		{big.NewInt(1337), "unknown"},
		{nil, "unknown"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.name, NetworkName(tt.id))
	}
}
