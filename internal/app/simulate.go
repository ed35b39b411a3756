package app

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"

	"github.com/nimazeighami/flashloan-deployer/internal/configs"
	"github.com/nimazeighami/flashloan-deployer/internal/contract"
	"github.com/nimazeighami/flashloan-deployer/internal/deployer"
	"github.com/nimazeighami/flashloan-deployer/internal/validator"
)

type SimulateParams struct {
	Env            configs.Environment
	Network        string
	Variant        configs.Variant
	Artifact       *contract.Artifact
	ArtifactPath   string
	ConfirmTimeout time.Duration
	Markers        []string
	Clients        Clients
	Logger         log.Logger
}

type SimulationReport struct {
	Network         string
	Deployment      *deployer.DeploymentResult
	LoanToken       common.Address
	LoanAmount      *big.Int
	LoanAmountHuman string
	Outcome         validator.Outcome
}

// Simulate deploys to a fork (hardhat by default) and probes the new
// contract once. Non-fork networks are rejected before any I/O. The probe's outcome is reported, never returned as an error.
func Simulate(ctx context.Context, p SimulateParams) (*SimulationReport, error) {
	logger := loggerOrRoot(p.Logger)

	network := p.Network
	if network == "" {
		network = configs.NETWORK_HARDHAT
	}
	profile, err := configs.NewRegistry(p.Env).Lookup(network)
	if err != nil {
		return nil, err
	}
	// Live networks go through Deploy with its credential, ledger and
	// confirmation guards.
	if !profile.Fork {
		return nil, &configs.ConfigError{
			Kind:    configs.InvalidValue,
			Missing: []string{"network"},
			Err:     fmt.Errorf("%s is not a local fork, use deploy for live networks", profile.Name),
		}
	}
	artifact, err := loadArtifact(p.Artifact, p.ArtifactPath)
	if err != nil {
		return nil, err
	}
	cfg, err := configs.Resolve(p.Env, configs.ResolveOptions{
		Variant:    detectVariant(artifact, p.Variant),
		Simulation: true,
	})
	if err != nil {
		return nil, err
	}
	if cfg.UsingDevKey {
		logger.Info("No PRIVATE_KEY set, using the local dev account")
	}

	if err := prepareFork(ctx, p.Clients, profile, cfg, logger); err != nil {
		return nil, err
	}

	d := deployer.New(p.Clients.Dial, deployer.WithLogger(logger), deployer.WithConfirmTimeout(p.ConfirmTimeout))
	result, err := d.Deploy(ctx, cfg, profile, artifact)
	if err != nil {
		return nil, err
	}

	backend, err := p.Clients.Dial(ctx, profile.RPCEndpoint)
	if err != nil {
		return nil, &deployer.DeployError{Kind: deployer.ConnectionFailed, Network: profile.Name, Err: err}
	}
	defer backend.Close()

	opts := []validator.Option{
		validator.WithLogger(logger),
		validator.WithFrom(result.Deployer),
		validator.WithArtifact(artifact),
	}
	if len(p.Markers) > 0 {
		opts = append(opts, validator.WithMarkers(p.Markers...))
	}
	logger.Info("Validating deployment", "loan", cfg.LoanAmountHuman(), "token", cfg.LoanTokenAddress)
	outcome := validator.New(backend, opts...).Validate(ctx, result.ContractAddress, cfg.LoanTokenAddress, cfg.LoanAmount)

	return &SimulationReport{
		Network:         profile.Name,
		Deployment:      result,
		LoanToken:       cfg.LoanTokenAddress,
		LoanAmount:      cfg.LoanAmount,
		LoanAmountHuman: cfg.LoanAmountHuman(),
		Outcome:         outcome,
	}, nil
}
