package main

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/joho/godotenv"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/nimazeighami/flashloan-deployer/internal/configs"
	"github.com/nimazeighami/flashloan-deployer/internal/deployer"
)

var v = viper.New()

var rootCmd = &cobra.Command{
	Use:   "arbdeploy",
	Short: "Deploy and smoke-test the ArbitrageFlashLoan contract",
	Long: `Deploy the ArbitrageFlashLoan contract to a live network, or to a local
mainnet fork pinned at a fixed block and probe it with an empty arbitrage.

Configuration comes from the environment. A .env file is loaded first
(values already in the process environment win), then an optional config
file, then flags.

Required:
  AAVE_PROVIDER                         Aave PoolAddressesProvider
  UNISWAP_V2_ROUTER, SUSHISWAP_ROUTER,  router set, in constructor order
  UNISWAP_V3_ROUTER                     (or ROUTER_ADDRESSES=a,b,c)
  PRIVATE_KEY                           signer for live networks
  RPC_URL                               mainnet endpoint / fork upstream

Examples:
  arbdeploy simulate
  arbdeploy deploy --network sepolia
  arbdeploy networks`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setup,
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.String("env-file", ".env", "dotenv file to load (missing file is ignored)")
	flags.String("config", "", "optional config file (yaml, json or toml) with the same keys as the environment")
	flags.String("log-level", "info", "log level: trace, debug, info, warn, error")
	flags.Duration("confirm-timeout", deployer.DEFAULT_CONFIRM_TIMEOUT, "how long to wait for the deployment receipt")

	_ = v.BindPFlag("confirm-timeout", flags.Lookup("confirm-timeout"))
	_ = v.BindPFlag("log-level", flags.Lookup("log-level"))
}

func setup(cmd *cobra.Command, args []string) error {
	envFile, _ := cmd.Flags().GetString("env-file")
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to load %s: %w", envFile, err)
	}

	if path, _ := cmd.Flags().GetString("config"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("failed to read config: %w", err)
		}
	}

	level, err := parseLevel(v.GetString("log-level"))
	if err != nil {
		return err
	}
	color := isatty.IsTerminal(os.Stderr.Fd())
	log.SetDefault(log.NewLogger(log.NewTerminalHandlerWithLevel(os.Stderr, level, color)))
	return nil
}

func parseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "trace":
		return log.LevelTrace, nil
	case "debug":
		return log.LevelDebug, nil
	case "", "info":
		return log.LevelInfo, nil
	case "warn", "warning":
		return log.LevelWarn, nil
	case "error":
		return log.LevelError, nil
	}
	return log.LevelInfo, fmt.Errorf("unknown log level %q", s)
}

func environment() configs.Environment {
	return configs.NewViperEnvironment(v)
}

func confirmTimeout() time.Duration {
	return v.GetDuration("confirm-timeout")
}
