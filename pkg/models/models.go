package models

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// ContractStatus is the connectivity state of the marketplace contract.
type ContractStatus int

const (
	StatusUnchecked ContractStatus = iota
	StatusNotDeployed
	StatusInterfaceMismatch
	StatusConnected
)

func (s ContractStatus) String() string {
	switch s {
	case StatusNotDeployed:
		return "not_deployed"
	case StatusInterfaceMismatch:
		return "interface_mismatch"
	case StatusConnected:
		return "connected"
	default:
		return "unchecked"
	}
}

// NotificationKind selects how a notification is presented.
type NotificationKind string

const (
	KindSuccess NotificationKind = "success"
	KindError   NotificationKind = "error"
	KindInfo    NotificationKind = "info"
)

// Notification is the single transient user-facing message.
// The zero value means nothing is shown.
type Notification struct {
	Message string           `json:"message"`
	Kind    NotificationKind `json:"kind"`
}

// Empty reports whether no notification is visible.
func (n Notification) Empty() bool {
	return n.Message == ""
}

// Item is an immutable snapshot of one marketplace listing.
type Item struct {
	ID       uint64
	Name     string
	PriceWei *uint256.Int
	Seller   common.Address
	Owner    common.Address
	IsSold   bool
}

// ConnectionState holds the provider/network/account tuple.
type ConnectionState struct {
	ChainID     *big.Int
	NetworkName string
	Account     common.Address
	HasAccount  bool
}

// Operation names a state-changing marketplace call.
type Operation string

const (
	OpList     Operation = "list"
	OpPurchase Operation = "purchase"
	OpTransfer Operation = "transfer"
)

// Phase is the lifecycle position of the current transaction.
type Phase string

const (
	PhaseIdle       Phase = "idle"
	PhaseValidating Phase = "validating"
	PhaseSubmitting Phase = "submitting"
	PhaseConfirming Phase = "confirming"
	PhaseSucceeded  Phase = "succeeded"
	PhaseFailed     Phase = "failed"
)

// Diagnostics mirrors the last manual or automatic checks.
type Diagnostics struct {
	ContractAddress common.Address
	ContractCode    []byte
	ContractChecked bool
	NetworkName     string
	LastLoad        time.Time
	LastLoadError   string
	LastTxHash      common.Hash
}

// Snapshot is a read-only copy of the whole session state.
type Snapshot struct {
	Connection   ConnectionState
	Status       ContractStatus
	Catalog      []Item
	Owned        []Item
	Notification Notification
	Pending      bool
	Operation    Operation
	Phase        Phase
	Diagnostics  Diagnostics
	WalletFound  bool
}

// CheckResult holds the outcome of one step of the configuration test.
type CheckResult struct {
	Name   string `json:"name"`
	Status string `json:"status"` // "ok" or "error"
	Detail string `json:"detail,omitempty"`
}

// TestReport holds the results of the configuration test.
type TestReport struct {
	ConfigPath      string        `json:"config_path"`
	ValidStructure  bool          `json:"valid_structure"`
	StructureErrors []string      `json:"structure_errors,omitempty"`
	RPCURL          string        `json:"rpc_url"`
	ContractAddress string        `json:"contract_address"`
	ConfigChainID   int64         `json:"config_chain_id"`
	ObservedChainID int64         `json:"observed_chain_id,omitempty"`
	NetworkName     string        `json:"network_name,omitempty"`
	ItemCount       uint64        `json:"item_count"`
	Checks          []CheckResult `json:"checks"`
	ConfigUpdated   bool          `json:"config_updated"`
	SaveError       string        `json:"save_error,omitempty"`
	DryRun          bool          `json:"dry_run"`
}
