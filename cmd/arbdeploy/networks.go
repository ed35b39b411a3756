package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/nimazeighami/flashloan-deployer/internal/configs"
)

var networksCmd = &cobra.Command{
	Use:   "networks",
	Short: "List known networks and whether they are configured",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		printNetworks(cmd.OutOrStdout(), configs.NewRegistry(environment()))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(networksCmd)
}

// printNetworks never prints endpoints: RPC URLs often embed API keys.
func printNetworks(out io.Writer, reg *configs.Registry) {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NETWORK\tCHAIN\tSTATUS")
	for _, name := range reg.Names() {
		profile, err := reg.Lookup(name)
		if err != nil {
			fmt.Fprintf(w, "%s\t-\t%v\n", name, err)
			continue
		}
		chain := fmt.Sprint(profile.ChainID)
		status := "ready"
		if profile.Fork {
			chain = "fork"
			status = fmt.Sprintf("ready (block %d)", profile.ForkBlockHeight)
		} else if profile.Credential.IsZero() {
			status = "no signer key"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", name, chain, status)
	}
	w.Flush()
}
