package market

import (
	"context"
	"fmt"

	"evmarket/pkg/models"

	"github.com/ethereum/go-ethereum/log"
)

// Verify checks that the contract is deployed and answers itemCount, then
// loads state on success. It may be re-run at any time; the last result wins.
func (s *Session) Verify(ctx context.Context) error {
	return s.verify(ctx, s.epoch.Load())
}

func (s *Session) verify(ctx context.Context, epoch uint64) error {
	s.mu.RLock()
	hasSigner := s.signer != nil
	s.mu.RUnlock()
	if !hasSigner {
		s.sink.Error("Wallet not connected")
		return newOpError(opVerify, ErrWalletNotConnected, nil)
	}

	code, err := s.provider.CodeAt(ctx, s.address)
	if err != nil {
		e := classify(opVerify, err)
		log.Error("Contract connection error", "address", s.address, "err", err)
		s.sink.Error("Failed to connect to contract: " + e.Raw)
		return e
	}
	s.recordCode(code)

	if len(code) == 0 {
		log.Error("No contract found at the specified address", "address", s.address)
		s.setStatus(models.StatusNotDeployed)
		s.sink.Error("No contract found at the specified address. Make sure you're on the correct network.")
		return newOpError(opVerify, ErrContractNotFound, nil)
	}

	contract, err := s.contractHandle()
	if err != nil {
		e := classify(opVerify, err)
		s.sink.Error("Failed to connect to contract: " + e.Raw)
		return e
	}

	if _, err := contract.ItemCount(ctx); err != nil {
		log.Error("Contract interface mismatch", "address", s.address, "err", err)
		s.setStatus(models.StatusInterfaceMismatch)
		s.sink.Error("Contract exists but doesn't match the expected interface. Check your ABI and network.")
		return newOpError(opVerify, ErrInterfaceMismatch, err)
	}

	log.Info("Contract interface verified", "address", s.address)
	s.setStatus(models.StatusConnected)
	if err := s.reload(ctx, epoch); err != nil {
		log.Warn("Initial load failed", "err", err)
	}
	s.sink.Success("Contract connected successfully")
	return nil
}

// contractHandle returns the bound contract, creating it on first use. The
// handle survives failed probes so that a re-check only repeats the probe.
func (s *Session) contractHandle() (Marketplace, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.contract != nil {
		return s.contract, nil
	}
	contract, err := s.provider.Contract(s.address)
	if err != nil {
		return nil, fmt.Errorf("bind contract: %w", err)
	}
	s.contract = contract
	return contract, nil
}

func (s *Session) recordCode(code []byte) {
	s.mu.Lock()
	s.diag.ContractCode = append([]byte(nil), code...)
	s.diag.ContractChecked = true
	diag := s.diag
	s.mu.Unlock()
	s.notify(Event{Type: EventDiagnosticsUpdated, Data: diag})
}

// CheckContract re-reads the bytecode for diagnostics. It never changes the
// contract status.
func (s *Session) CheckContract(ctx context.Context) error {
	code, err := s.provider.CodeAt(ctx, s.address)
	if err != nil {
		e := classify(opCheckContract, err)
		s.sink.Error("Failed to check contract: " + e.Raw)
		return e
	}
	s.recordCode(code)
	if len(code) == 0 {
		s.sink.Error("No contract found at the specified address on this network")
		return newOpError(opCheckContract, ErrContractNotFound, nil)
	}
	s.sink.Success("Contract exists at the specified address")
	return nil
}

// CheckNetwork re-reads the network identity for diagnostics.
func (s *Session) CheckNetwork(ctx context.Context) (string, error) {
	_, name, err := s.provider.Network(ctx)
	if err != nil {
		e := classify(opCheckNetwork, err)
		s.sink.Error("Failed to check network: " + e.Raw)
		return "", e
	}
	s.mu.Lock()
	s.diag.NetworkName = name
	diag := s.diag
	s.mu.Unlock()
	s.notify(Event{Type: EventDiagnosticsUpdated, Data: diag})
	s.sink.Info(fmt.Sprintf("Connected to %s network", name))
	return name, nil
}
