package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"evmarket/pkg/config"
	"evmarket/pkg/models"
	"evmarket/pkg/rpc"
	"evmarket/pkg/utils"
)

var errTestFailed = errors.New("configuration test failed")

// runConfigTest checks the configuration against the live node: the RPC
// endpoint answers, its chain id matches, code is deployed at the contract
// address and it answers itemCount(). A chain id missing from the file is
// filled in and saved unless dryRun is set.
func runConfigTest(ctx context.Context, out io.Writer, st settings, jsonOut, dryRun bool) error {
	cfg := st.effective
	report := models.TestReport{
		ConfigPath:      st.path,
		ValidStructure:  true,
		RPCURL:          cfg.RPCURL,
		ContractAddress: cfg.ContractAddress,
		ConfigChainID:   cfg.ChainID,
		DryRun:          dryRun,
	}

	say := func(format string, args ...interface{}) {
		if !jsonOut {
			fmt.Fprintf(out, format, args...)
		}
	}
	finish := func(err error) error {
		if jsonOut {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			_ = enc.Encode(report)
		}
		return err
	}
	check := func(name string, err error, detail string) bool {
		res := models.CheckResult{Name: name, Status: "ok", Detail: detail}
		if err != nil {
			res.Status = "error"
			res.Detail = err.Error()
			say("  %-10s Failed: %v\n", name, err)
		} else {
			say("  %-10s OK %s\n", name, detail)
		}
		report.Checks = append(report.Checks, res)
		return err == nil
	}

	say("Testing configuration at: %s\n", st.path)

	if problems := cfg.Problems(); len(problems) > 0 {
		report.ValidStructure = false
		report.StructureErrors = problems
		for _, p := range problems {
			say("Error: %s\n", p)
		}
		return finish(errTestFailed)
	}
	say("RPC: %s\nContract: %s\n", cfg.RPCURL, cfg.ContractAddress)

	client, err := rpc.Dial(ctx, cfg.RPCURL)
	if !check("rpc", err, "") {
		return finish(errTestFailed)
	}
	defer client.Close()

	failed := false
	chainID, name, err := client.Network(ctx)
	if !check("chain_id", err, fmt.Sprintf("(%s, %s)", chainID, name)) {
		return finish(errTestFailed)
	}
	report.ObservedChainID = chainID.Int64()
	report.NetworkName = name

	switch {
	case cfg.ChainID == 0:
		report.ConfigUpdated = true
		say("Chain id %s is not in the configuration", chainID)
		if dryRun {
			say(" (DRY RUN)\n")
		} else {
			say(", updating\n")
			updated := st.file
			updated.ChainID = chainID.Int64()
			if err := config.SaveConfig(updated, st.path); err != nil {
				report.SaveError = err.Error()
				say("Failed to save config: %v\n", err)
			} else {
				say("Configuration saved successfully.\n")
			}
		}
	case cfg.ChainID != chainID.Int64():
		failed = !check("network", fmt.Errorf("mismatch: configured %d, node reports %s", cfg.ChainID, chainID), "")
	}

	code, err := client.CodeAt(ctx, cfg.Contract())
	if err == nil && len(code) == 0 {
		err = fmt.Errorf("no contract deployed at %s", cfg.Contract().Hex())
	}
	if !check("bytecode", err, fmt.Sprintf("(%d bytes)", len(code))) {
		return finish(errTestFailed)
	}

	m, err := client.Contract(cfg.Contract())
	if err == nil {
		report.ItemCount, err = m.ItemCount(ctx)
	}
	if err != nil {
		err = fmt.Errorf("contract does not answer itemCount(): %w", err)
	}
	if !check("interface", err, fmt.Sprintf("(%s items)", utils.AddCommas(fmt.Sprint(report.ItemCount)))) {
		failed = true
	}

	if failed {
		return finish(errTestFailed)
	}
	return finish(nil)
}
