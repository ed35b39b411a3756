package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/nimazeighami/flashloan-deployer/internal/configs"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "❌ %v\n", err)
		os.Exit(exitCode(err))
	}
}

// exitCode is 2 for configuration problems, 3 for a failed strict
// simulation and 1 otherwise.
func exitCode(err error) int {
	var cfgErr *configs.ConfigError
	switch {
	case errors.As(err, &cfgErr):
		return 2
	case errors.Is(err, errStrictValidation):
		return 3
	}
	return 1
}
