// Package app wires configuration, the fork controller, the deployer, the
// validator and the ledger into the deploy and simulate flows.
package app

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/params"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/nimazeighami/flashloan-deployer/internal/configs"
	"github.com/nimazeighami/flashloan-deployer/internal/contract"
	"github.com/nimazeighami/flashloan-deployer/internal/deployer"
	"github.com/nimazeighami/flashloan-deployer/internal/fork"
	"github.com/nimazeighami/flashloan-deployer/internal/ledger"
	"github.com/nimazeighami/flashloan-deployer/internal/relay"
)

var ErrAborted = errors.New("deployment aborted by operator")

// FORK_FUND_ETH is the balance given to the signer on a fork before deploying.
const FORK_FUND_ETH = 100

// RPCClient is a raw JSON-RPC connection used for fork control.
type RPCClient interface {
	fork.RPCCaller
	Close()
}

// Clients opens network connections. Tests substitute fakes.
type Clients struct {
	Dial    deployer.Dialer
	DialRPC func(ctx context.Context, rawurl string) (RPCClient, error)
}

func DefaultClients() Clients {
	return Clients{
		Dial: deployer.DialEthClient,
		DialRPC: func(ctx context.Context, rawurl string) (RPCClient, error) {
			client, err := rpc.DialContext(ctx, rawurl)
			if err != nil {
				return nil, err
			}
			return client, nil
		},
	}
}

type DeployParams struct {
	Env      configs.Environment
	Network  string
	Variant  configs.Variant
	Artifact *contract.Artifact
	// ArtifactPath is read when Artifact is nil.
	ArtifactPath   string
	LedgerDir      string
	Force          bool
	ConfirmTimeout time.Duration
	// Confirm is asked before a real-network submission. Nil means yes.
	Confirm func(summary string) bool
	Clients Clients
	Logger  log.Logger
}

// Deploy resolves configuration and deploys one contract instance.
func Deploy(ctx context.Context, p DeployParams) (*deployer.DeploymentResult, error) {
	logger := loggerOrRoot(p.Logger)

	profile, err := configs.NewRegistry(p.Env).Lookup(p.Network)
	if err != nil {
		return nil, err
	}
	artifact, err := loadArtifact(p.Artifact, p.ArtifactPath)
	if err != nil {
		return nil, err
	}
	cfg, err := configs.Resolve(p.Env, configs.ResolveOptions{
		Variant:           detectVariant(artifact, p.Variant),
		Simulation:        profile.Fork,
		RequireCredential: !profile.Fork && profile.Credential.IsZero(),
	})
	if err != nil {
		return nil, err
	}
	relayCfg, err := configs.ResolveRelay(p.Env)
	if err != nil {
		return nil, err
	}

	var book *ledger.Ledger
	if !profile.Fork {
		if book, err = ledger.Open(p.LedgerDir); err != nil {
			return nil, err
		}
		prev, err := book.Latest(profile.Name)
		if err != nil {
			return nil, err
		}
		if prev != nil && !p.Force {
			return nil, fmt.Errorf("%w: %s at %s (tx %s), pass --force to deploy another instance",
				ledger.ErrAlreadyDeployed, profile.Name, prev.Contract.Hex(), prev.TxHash.Hex())
		}
		if p.Confirm != nil && !p.Confirm(summary(profile, cfg, artifact)) {
			return nil, ErrAborted
		}
	}

	if profile.Fork {
		if err := prepareFork(ctx, p.Clients, profile, cfg, logger); err != nil {
			return nil, err
		}
	}

	opts := []deployer.Option{deployer.WithLogger(logger), deployer.WithConfirmTimeout(p.ConfirmTimeout)}
	if relayCfg != nil && !profile.Fork {
		authKey, err := relayCfg.AuthKey()
		if err != nil {
			return nil, err
		}
		logger.Info("Preflighting deployment through relay", "relay", relayCfg.URL)
		opts = append(opts, deployer.WithPreflight(relay.NewClient(relayCfg.URL, authKey, logger)))
	}

	result, err := deployer.New(p.Clients.Dial, opts...).Deploy(ctx, cfg, profile, artifact)
	if err != nil {
		return result, err
	}

	if book != nil {
		variant, _ := artifact.ResolveVariant(cfg.Variant)
		rec, err := book.Append(ledger.Record{
			Network:     profile.Name,
			ChainID:     result.ChainID.Uint64(),
			Contract:    result.ContractAddress,
			TxHash:      result.TxHash,
			BlockNumber: result.BlockNumber,
			Deployer:    result.Deployer,
			Variant:     variant.String(),
			Provider:    cfg.ProviderAddress,
			Routers:     cfg.RouterAddresses,
		})
		if err != nil {
			// The contract exists on chain; report it even though bookkeeping failed.
			logger.Error("Failed to record deployment", "err", err, "address", result.ContractAddress)
			return result, err
		}
		logger.Info("Deployment recorded", "id", rec.ID, "network", rec.Network)
	}
	return result, nil
}

func loadArtifact(a *contract.Artifact, path string) (*contract.Artifact, error) {
	if a != nil {
		return a, nil
	}
	if path == "" {
		path = contract.DEFAULT_ARTIFACT_PATH
	}
	return contract.LoadArtifact(path)
}

// detectVariant lets the artifact's constructor decide an auto variant. A
// conflicting request is passed through unchanged and rejected by the
// deployer before anything is dialed.
func detectVariant(artifact *contract.Artifact, requested configs.Variant) configs.Variant {
	if v, err := artifact.ResolveVariant(requested); err == nil {
		return v
	}
	return requested
}

// prepareFork pins the fork to its configured height and funds the signer.
func prepareFork(ctx context.Context, clients Clients, profile configs.NetworkProfile, cfg *configs.DeploymentConfig, logger log.Logger) error {
	client, err := clients.DialRPC(ctx, profile.RPCEndpoint)
	if err != nil {
		return &deployer.DeployError{Kind: deployer.ConnectionFailed, Network: profile.Name, Err: err}
	}
	defer client.Close()

	node := fork.New(client, logger)
	if err := node.Pin(ctx, profile.ForkUpstream, profile.ForkBlockHeight); err != nil {
		return err
	}

	credential := profile.Credential
	if credential.IsZero() {
		credential = cfg.SignerCredential
	}
	key, err := credential.PrivateKey()
	if err != nil {
		return &configs.ConfigError{Kind: configs.InvalidValue, Missing: []string{configs.ENV_PRIVATE_KEY}, Err: err}
	}
	wei := new(big.Int).Mul(big.NewInt(FORK_FUND_ETH), big.NewInt(params.Ether))
	return node.Fund(ctx, crypto.PubkeyToAddress(key.PublicKey), wei)
}

func summary(profile configs.NetworkProfile, cfg *configs.DeploymentConfig, artifact *contract.Artifact) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Network:   %s (chain %d)\n", profile.Name, profile.ChainID)
	fmt.Fprintf(&b, "Contract:  %s\n", artifact.ContractName)
	if variant, err := artifact.ResolveVariant(cfg.Variant); err == nil {
		fmt.Fprintf(&b, "Variant:   %s\n", variant)
	}
	fmt.Fprintf(&b, "Provider:  %s\n", cfg.ProviderAddress.Hex())
	for i, r := range cfg.RouterAddresses {
		fmt.Fprintf(&b, "Router %d:  %s\n", i, r.Hex())
	}
	return b.String()
}

func loggerOrRoot(l log.Logger) log.Logger {
	if l == nil {
		return log.Root()
	}
	return l
}
