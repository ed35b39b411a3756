package configs

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/shopspring/decimal"
)

const (
	// -- Environment keys --
	ENV_PRIVATE_KEY       = "PRIVATE_KEY"
	ENV_AAVE_PROVIDER     = "AAVE_PROVIDER"
	ENV_UNISWAP_V2_ROUTER = "UNISWAP_V2_ROUTER"
	ENV_SUSHISWAP_ROUTER  = "SUSHISWAP_ROUTER"
	ENV_UNISWAP_V3_ROUTER = "UNISWAP_V3_ROUTER"
	ENV_ROUTER_ADDRESSES  = "ROUTER_ADDRESSES"
	ENV_SIM_LOAN_TOKEN    = "SIM_LOAN_TOKEN"
	ENV_SIM_LOAN_AMOUNT   = "SIM_LOAN_AMOUNT"
	ENV_SIM_LOAN_DECIMALS = "SIM_LOAN_DECIMALS"

	// -- Simulation defaults --
	DEFAULT_LOAN_TOKEN    = "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48" // USDC
	DEFAULT_LOAN_AMOUNT   = "100000000000"                               // 100k USDC
	DEFAULT_LOAN_DECIMALS = 6

	// Hardhat/anvil dev account #0. Only ever used against a local fork.
	DEV_ACCOUNT_KEY = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"
)

// RouterKeys is the ordered router set required by the multi-router
// contract variant.
var RouterKeys = []string{ENV_UNISWAP_V2_ROUTER, ENV_SUSHISWAP_ROUTER, ENV_UNISWAP_V3_ROUTER}

var errMalformedKey = errors.New("malformed private key")

// Secret holds a signing credential. Every printable form is redacted.
type Secret string

func (s Secret) String() string {
	if s == "" {
		return ""
	}
	return "[redacted]"
}

func (s Secret) GoString() string { return `configs.Secret("` + s.String() + `")` }

func (s Secret) MarshalJSON() ([]byte, error) { return []byte(strconv.Quote(s.String())), nil }

func (s Secret) IsZero() bool { return s == "" }

// PrivateKey parses the credential as a hex secp256k1 key. The error never
// contains any part of the key material.
func (s Secret) PrivateKey() (*ecdsa.PrivateKey, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(string(s)), "0x"))
	if err != nil {
		return nil, errMalformedKey
	}
	return key, nil
}

// Variant is the constructor shape of the deployed contract.
type Variant int

const (
	// VariantAuto picks the shape from the artifact's constructor.
	VariantAuto Variant = iota
	// VariantMultiRouter is constructor(address provider, address[] routers).
	VariantMultiRouter
	// VariantLegacy is constructor(address provider).
	VariantLegacy
)

func (v Variant) String() string {
	switch v {
	case VariantMultiRouter:
		return "multi-router"
	case VariantLegacy:
		return "legacy"
	default:
		return "auto"
	}
}

func ParseVariant(s string) (Variant, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "auto":
		return VariantAuto, nil
	case "multi-router", "multirouter", "current":
		return VariantMultiRouter, nil
	case "legacy", "single":
		return VariantLegacy, nil
	}
	return VariantAuto, fmt.Errorf("unknown contract variant %q", s)
}

// DeploymentConfig is built once per run and passed explicitly to every
// component.
type DeploymentConfig struct {
	SignerCredential  Secret
	UsingDevKey       bool
	ProviderAddress   common.Address
	RouterAddresses   []common.Address
	Variant           Variant
	LoanTokenAddress  common.Address
	LoanAmount        *big.Int
	LoanTokenDecimals int32
}

// LoanAmountHuman renders LoanAmount in whole token units.
func (c *DeploymentConfig) LoanAmountHuman() string {
	if c.LoanAmount == nil {
		return "0"
	}
	return decimal.NewFromBigInt(c.LoanAmount, -c.LoanTokenDecimals).String()
}

type ResolveOptions struct {
	// Variant decides whether the router set is required. Only
	// VariantLegacy skips it. VariantAuto is kept on the config so the
	// artifact can still decide the constructor shape.
	Variant Variant
	// Simulation enables the loan token/amount defaults and the dev key
	// fallback.
	Simulation bool
	// RequireCredential makes PRIVATE_KEY mandatory (real-network deploys).
	RequireCredential bool
}

// Resolve builds a DeploymentConfig from env. It performs no I/O besides
// reading env and fails fast: provider first, then the router set as a
// whole, then the credential.
func Resolve(env Environment, opts ResolveOptions) (*DeploymentConfig, error) {
	cfg := &DeploymentConfig{Variant: opts.Variant}

	providerStr, ok := env.Lookup(ENV_AAVE_PROVIDER)
	if !ok {
		return nil, missing(MissingProvider, ENV_AAVE_PROVIDER)
	}
	provider, err := parseAddress(ENV_AAVE_PROVIDER, providerStr)
	if err != nil {
		return nil, err
	}
	cfg.ProviderAddress = provider

	if cfg.Variant != VariantLegacy {
		routers, err := resolveRouters(env)
		if err != nil {
			return nil, err
		}
		cfg.RouterAddresses = routers
	}

	if key, ok := env.Lookup(ENV_PRIVATE_KEY); ok {
		cfg.SignerCredential = Secret(key)
		if _, err := cfg.SignerCredential.PrivateKey(); err != nil {
			return nil, invalid(ENV_PRIVATE_KEY, err)
		}
	} else if opts.RequireCredential {
		return nil, missing(MissingEnv, ENV_PRIVATE_KEY)
	} else if opts.Simulation {
		cfg.SignerCredential = Secret(DEV_ACCOUNT_KEY)
		cfg.UsingDevKey = true
	}

	if opts.Simulation {
		if err := resolveLoan(env, cfg); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

func resolveRouters(env Environment) ([]common.Address, error) {
	type entry struct{ name, value string }
	var (
		entries []entry
		absent  []string
	)

	if csv, ok := env.Lookup(ENV_ROUTER_ADDRESSES); ok {
		for i, part := range strings.Split(csv, ",") {
			name := fmt.Sprintf("%s[%d]", ENV_ROUTER_ADDRESSES, i)
			part = strings.TrimSpace(part)
			if part == "" {
				absent = append(absent, name)
				continue
			}
			entries = append(entries, entry{name, part})
		}
	} else {
		for _, key := range RouterKeys {
			value, ok := env.Lookup(key)
			if !ok {
				absent = append(absent, key)
				continue
			}
			entries = append(entries, entry{key, value})
		}
	}

	if len(absent) > 0 {
		return nil, missing(MissingRouters, absent...)
	}

	routers := make([]common.Address, 0, len(entries))
	for _, e := range entries {
		addr, err := parseAddress(e.name, e.value)
		if err != nil {
			return nil, err
		}
		routers = append(routers, addr)
	}
	return routers, nil
}

func resolveLoan(env Environment, cfg *DeploymentConfig) error {
	token, err := parseAddress(ENV_SIM_LOAN_TOKEN, getEnvOrDefault(env, ENV_SIM_LOAN_TOKEN, DEFAULT_LOAN_TOKEN))
	if err != nil {
		return err
	}
	cfg.LoanTokenAddress = token

	amount, ok := new(big.Int).SetString(getEnvOrDefault(env, ENV_SIM_LOAN_AMOUNT, DEFAULT_LOAN_AMOUNT), 10)
	if !ok || amount.Sign() <= 0 {
		return invalid(ENV_SIM_LOAN_AMOUNT, errors.New("expected a positive integer in smallest token units"))
	}
	cfg.LoanAmount = amount

	cfg.LoanTokenDecimals = DEFAULT_LOAN_DECIMALS
	if s, ok := env.Lookup(ENV_SIM_LOAN_DECIMALS); ok {
		d, err := strconv.ParseUint(s, 10, 8)
		if err != nil {
			return invalid(ENV_SIM_LOAN_DECIMALS, err)
		}
		cfg.LoanTokenDecimals = int32(d)
	}
	return nil
}

func parseAddress(name, value string) (common.Address, error) {
	if !common.IsHexAddress(value) {
		return common.Address{}, invalid(name, fmt.Errorf("%q is not a hex address", value))
	}
	return common.HexToAddress(value), nil
}
