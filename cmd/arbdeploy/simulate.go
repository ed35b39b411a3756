package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/nimazeighami/flashloan-deployer/internal/app"
	"github.com/nimazeighami/flashloan-deployer/internal/configs"
	"github.com/nimazeighami/flashloan-deployer/internal/contract"
	"github.com/nimazeighami/flashloan-deployer/internal/validator"
)

var errStrictValidation = errors.New("post-deploy validation failed")

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Deploy to a local mainnet fork and probe the contract",
	Long: `Pin the local fork node (Hardhat or Anvil at FORK_NODE_URL) to FORK_BLOCK of
RPC_URL, deploy ArbitrageFlashLoan, then call executeArb with an empty
arbitrage path.

A revert with an expected reason (UNPROFITABLE, NO_PROFIT) means the flash
loan round trip works. Any other failure is reported but only fails the
command with --strict.

Examples:
  arbdeploy simulate
  arbdeploy simulate --loan-amount 5000000000 --strict
  FORK_BLOCK=19000000 arbdeploy simulate`,
	RunE: runSimulate,
}

func init() {
	flags := simulateCmd.Flags()
	flags.String("network", configs.NETWORK_HARDHAT, "local fork network to simulate on (hardhat or fork)")
	flags.String("variant", "auto", "constructor variant: auto, multi-router or legacy")
	flags.String("artifact", contract.DEFAULT_ARTIFACT_PATH, "compiled contract artifact (Hardhat or Foundry JSON)")
	flags.String("loan-token", configs.DEFAULT_LOAN_TOKEN, "token to borrow in the probe")
	flags.String("loan-amount", configs.DEFAULT_LOAN_AMOUNT, "amount to borrow, in the token's smallest unit")
	flags.Int32("loan-decimals", configs.DEFAULT_LOAN_DECIMALS, "loan token decimals, for display")
	flags.Uint64("fork-block", configs.DEFAULT_FORK_BLOCK, "block height to pin the fork at")
	flags.StringSlice("expect", validator.DefaultExpectedMarkers, "revert reasons that count as a healthy probe")
	flags.Bool("strict", false, "exit non-zero when the probe fails unexpectedly")

	// Flags override the environment only when given.
	_ = v.BindPFlag(configs.ENV_SIM_LOAN_TOKEN, flags.Lookup("loan-token"))
	_ = v.BindPFlag(configs.ENV_SIM_LOAN_AMOUNT, flags.Lookup("loan-amount"))
	_ = v.BindPFlag(configs.ENV_SIM_LOAN_DECIMALS, flags.Lookup("loan-decimals"))
	_ = v.BindPFlag(configs.ENV_FORK_BLOCK, flags.Lookup("fork-block"))

	rootCmd.AddCommand(simulateCmd)
}

func runSimulate(cmd *cobra.Command, args []string) error {
	network, _ := cmd.Flags().GetString("network")
	variantStr, _ := cmd.Flags().GetString("variant")
	artifactPath, _ := cmd.Flags().GetString("artifact")
	markers, _ := cmd.Flags().GetStringSlice("expect")
	strict, _ := cmd.Flags().GetBool("strict")

	variant, err := configs.ParseVariant(variantStr)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	report, err := app.Simulate(ctx, app.SimulateParams{
		Env:            environment(),
		Network:        network,
		Variant:        variant,
		ArtifactPath:   artifactPath,
		ConfirmTimeout: confirmTimeout(),
		Markers:        markers,
		Clients:        app.DefaultClients(),
	})
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	printDeployment(w, report.Deployment)
	fmt.Fprintf(w, "   Probe:    borrow %s of %s\n", report.LoanAmountHuman, report.LoanToken.Hex())

	switch report.Outcome.Kind {
	case validator.Success:
		fmt.Fprintln(w, "✅ Probe returned normally")
	case validator.ExpectedRevert:
		fmt.Fprintf(w, "✅ Probe reverted as expected: %s\n", report.Outcome.Reason)
	default:
		fmt.Fprintf(w, "⚠️  Probe failed: %v\n", report.Outcome.Err)
		if strict {
			return fmt.Errorf("%w: %v", errStrictValidation, report.Outcome.Err)
		}
	}
	return nil
}
