package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nimazeighami/flashloan-deployer/internal/app"
	"github.com/nimazeighami/flashloan-deployer/internal/configs"
	"github.com/nimazeighami/flashloan-deployer/internal/contract"
	"github.com/nimazeighami/flashloan-deployer/internal/deployer"
	"github.com/nimazeighami/flashloan-deployer/internal/ledger"
)

var deployCmd = &cobra.Command{
	Use:   "deploy",
	Short: "Deploy ArbitrageFlashLoan to a network",
	Long: `Deploy one new ArbitrageFlashLoan instance.

Every run creates a new contract. Live-network deploys are recorded under
--ledger-dir and a second deploy to the same network is refused unless
--force is given. You are asked to confirm before anything is submitted
unless --yes is given.

Examples:
  arbdeploy deploy --network hardhat
  arbdeploy deploy --network mainnet --variant legacy
  arbdeploy deploy --network sepolia --yes --force`,
	RunE: runDeploy,
}

func init() {
	flags := deployCmd.Flags()
	flags.String("network", "", "target network (see `arbdeploy networks`)")
	flags.String("variant", "auto", "constructor variant: auto, multi-router or legacy")
	flags.String("artifact", contract.DEFAULT_ARTIFACT_PATH, "compiled contract artifact (Hardhat or Foundry JSON)")
	flags.Bool("yes", false, "skip the confirmation prompt")
	flags.Bool("force", false, "deploy even if the ledger already has a deployment for this network")
	flags.String("ledger-dir", ledger.DEFAULT_DIR, "directory of per-network deployment records")
	_ = deployCmd.MarkFlagRequired("network")

	rootCmd.AddCommand(deployCmd)
}

func runDeploy(cmd *cobra.Command, args []string) error {
	network, _ := cmd.Flags().GetString("network")
	variantStr, _ := cmd.Flags().GetString("variant")
	artifactPath, _ := cmd.Flags().GetString("artifact")
	yes, _ := cmd.Flags().GetBool("yes")
	force, _ := cmd.Flags().GetBool("force")
	ledgerDir, _ := cmd.Flags().GetString("ledger-dir")

	variant, err := configs.ParseVariant(variantStr)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	params := app.DeployParams{
		Env:            environment(),
		Network:        network,
		Variant:        variant,
		ArtifactPath:   artifactPath,
		LedgerDir:      ledgerDir,
		Force:          force,
		ConfirmTimeout: confirmTimeout(),
		Clients:        app.DefaultClients(),
	}
	if !yes {
		params.Confirm = func(summary string) bool {
			return promptConfirm(cmd.InOrStdin(), cmd.ErrOrStderr(), summary)
		}
	}

	result, err := app.Deploy(ctx, params)
	if err != nil {
		return err
	}
	printDeployment(cmd.OutOrStdout(), result)
	return nil
}

// promptConfirm shows summary and reads a yes/no answer.
func promptConfirm(in io.Reader, out io.Writer, summary string) bool {
	fmt.Fprintln(out, "About to deploy:")
	fmt.Fprint(out, summary)
	fmt.Fprint(out, "Submitted deployments cannot be withdrawn. Continue? [y/N]: ")

	answer, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && answer == "" {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes":
		return true
	}
	return false
}

func printDeployment(w io.Writer, r *deployer.DeploymentResult) {
	fmt.Fprintf(w, "✅ ArbitrageFlashLoan deployed on %s\n", r.Network)
	fmt.Fprintf(w, "   Address:  %s\n", r.ContractAddress.Hex())
	fmt.Fprintf(w, "   Tx:       %s\n", r.TxHash.Hex())
	fmt.Fprintf(w, "   Block:    %d\n", r.BlockNumber)
	fmt.Fprintf(w, "   Gas used: %d\n", r.GasUsed)
	fmt.Fprintf(w, "   Deployer: %s\n", r.Deployer.Hex())
}
