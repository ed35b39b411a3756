package configs

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

const (
	// -- Endpoints --
	ENV_RPC_URL          = "RPC_URL"
	ENV_SEPOLIA_RPC_URL  = "SEPOLIA_RPC_URL"
	ENV_ARBITRUM_RPC_URL = "ARBITRUM_RPC_URL"
	ENV_FORK_NODE_URL    = "FORK_NODE_URL"
	ENV_FORK_BLOCK       = "FORK_BLOCK"

	DEFAULT_FORK_NODE_URL = "http://127.0.0.1:8545"
	DEFAULT_FORK_BLOCK    = 18000000

	// -- Chain IDs --
	CHAIN_ID_MAINNET  = 1
	CHAIN_ID_SEPOLIA  = 11155111
	CHAIN_ID_ARBITRUM = 42161

	NETWORK_HARDHAT = "hardhat"
)

// NetworkProfile holds everything needed to reach one network.
type NetworkProfile struct {
	Name        string
	RPCEndpoint string
	ChainID     uint64 // 0 = do not check
	Credential  Secret

	// Fork-only fields.
	Fork            bool
	ForkUpstream    string
	ForkBlockHeight uint64
}

func (p NetworkProfile) String() string {
	if p.Fork {
		return fmt.Sprintf("%s (fork of block %d via %s)", p.Name, p.ForkBlockHeight, p.RPCEndpoint)
	}
	return fmt.Sprintf("%s (chain %d)", p.Name, p.ChainID)
}

type profileBuilder func(env Environment) (NetworkProfile, error)

// Registry maps network names to profile builders. Builders run lazily in
// Lookup so a bad value for one network never blocks another.
type Registry struct {
	env      Environment
	builders map[string]profileBuilder
	aliases  map[string]string
}

// NewRegistry returns the registry of supported networks. Adding a network
// is adding one entry here.
func NewRegistry(env Environment) *Registry {
	return &Registry{
		env: env,
		builders: map[string]profileBuilder{
			NETWORK_HARDHAT: forkProfile,
			"mainnet":       realNetwork("mainnet", ENV_RPC_URL, CHAIN_ID_MAINNET),
			"sepolia":       realNetwork("sepolia", ENV_SEPOLIA_RPC_URL, CHAIN_ID_SEPOLIA),
			"arbitrum":      realNetwork("arbitrum", ENV_ARBITRUM_RPC_URL, CHAIN_ID_ARBITRUM),
		},
		aliases: map[string]string{
			"fork": NETWORK_HARDHAT,
		},
	}
}

// Lookup resolves the profile for name.
func (r *Registry) Lookup(name string) (NetworkProfile, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	if alias, ok := r.aliases[key]; ok {
		key = alias
	}
	build, ok := r.builders[key]
	if !ok {
		return NetworkProfile{}, &ConfigError{
			Kind:    UnknownNetwork,
			Missing: []string{name},
			Err:     fmt.Errorf("known networks: %s", strings.Join(r.Names(), ", ")),
		}
	}
	return build(r.env)
}

// Names lists the registered network names in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.builders))
	for name := range r.builders {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func forkProfile(env Environment) (NetworkProfile, error) {
	upstream, ok := env.Lookup(ENV_RPC_URL)
	if !ok {
		return NetworkProfile{}, missing(MissingEnv, ENV_RPC_URL)
	}

	height := uint64(DEFAULT_FORK_BLOCK)
	if s, ok := env.Lookup(ENV_FORK_BLOCK); ok {
		h, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			return NetworkProfile{}, invalid(ENV_FORK_BLOCK, fmt.Errorf("expected a non-negative block number: %w", err))
		}
		height = h
	}

	cred := Secret(getEnvOrDefault(env, ENV_PRIVATE_KEY, DEV_ACCOUNT_KEY))
	return NetworkProfile{
		Name:            NETWORK_HARDHAT,
		RPCEndpoint:     getEnvOrDefault(env, ENV_FORK_NODE_URL, DEFAULT_FORK_NODE_URL),
		ChainID:         0, // anvil keeps the upstream chain id, hardhat uses 31337
		Credential:      cred,
		Fork:            true,
		ForkUpstream:    upstream,
		ForkBlockHeight: height,
	}, nil
}

func realNetwork(name, rpcKey string, chainID uint64) profileBuilder {
	return func(env Environment) (NetworkProfile, error) {
		endpoint, ok := env.Lookup(rpcKey)
		if !ok {
			return NetworkProfile{}, missing(MissingEnv, rpcKey)
		}
		credKey := strings.ToUpper(name) + "_" + ENV_PRIVATE_KEY
		cred, ok := env.Lookup(credKey)
		if !ok {
			cred, _ = env.Lookup(ENV_PRIVATE_KEY)
		}
		return NetworkProfile{
			Name:        name,
			RPCEndpoint: endpoint,
			ChainID:     chainID,
			Credential:  Secret(cred),
		}, nil
	}
}
