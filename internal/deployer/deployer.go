// Package deployer submits the ArbitrageFlashLoan creation transaction and
// waits for it to confirm.
package deployer

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/log"

	"github.com/nimazeighami/flashloan-deployer/internal/configs"
	"github.com/nimazeighami/flashloan-deployer/internal/contract"
)

const (
	DEFAULT_CONFIRM_TIMEOUT = 2 * time.Minute
	DEFAULT_POLL_INTERVAL   = 1 * time.Second
)

// DeploymentResult describes one confirmed (or reverted) creation tx.
type DeploymentResult struct {
	Network         string
	ContractAddress common.Address
	Confirmed       bool
	TxHash          common.Hash
	BlockNumber     uint64
	GasUsed         uint64
	Deployer        common.Address
	ChainID         *big.Int
	ConstructorArgs []interface{}
}

// Preflight dry-runs the signed creation tx before it is broadcast.
type Preflight interface {
	Check(ctx context.Context, tx *types.Transaction, targetBlock uint64) error
}

type Deployer struct {
	dial           Dialer
	logger         log.Logger
	gasPolicy      GasPolicy
	preflight      Preflight
	confirmTimeout time.Duration
	pollInterval   time.Duration
}

type Option func(*Deployer)

func WithLogger(l log.Logger) Option {
	return func(d *Deployer) { d.logger = l }
}

func WithGasPolicy(p GasPolicy) Option {
	return func(d *Deployer) { d.gasPolicy = p }
}

// WithPreflight rejects the deployment, before submission, when p fails.
func WithPreflight(p Preflight) Option {
	return func(d *Deployer) { d.preflight = p }
}

// WithConfirmTimeout bounds how long Deploy waits for a receipt.
func WithConfirmTimeout(t time.Duration) Option {
	return func(d *Deployer) {
		if t > 0 {
			d.confirmTimeout = t
		}
	}
}

func WithPollInterval(t time.Duration) Option {
	return func(d *Deployer) {
		if t > 0 {
			d.pollInterval = t
		}
	}
}

func New(dial Dialer, opts ...Option) *Deployer {
	d := &Deployer{
		dial:           dial,
		logger:         log.Root(),
		gasPolicy:      DefaultGasPolicy(),
		confirmTimeout: DEFAULT_CONFIRM_TIMEOUT,
		pollInterval:   DEFAULT_POLL_INTERVAL,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Deploy creates one new contract instance on profile's network. It is not
// idempotent: each successful call yields a fresh address.
func (d *Deployer) Deploy(ctx context.Context, cfg *configs.DeploymentConfig, profile configs.NetworkProfile, artifact *contract.Artifact) (*DeploymentResult, error) {
	credential := profile.Credential
	if credential.IsZero() {
		credential = cfg.SignerCredential
	}
	if credential.IsZero() {
		return nil, &configs.ConfigError{Kind: configs.MissingEnv, Missing: []string{configs.ENV_PRIVATE_KEY}}
	}
	key, err := credential.PrivateKey()
	if err != nil {
		return nil, &configs.ConfigError{Kind: configs.InvalidValue, Missing: []string{configs.ENV_PRIVATE_KEY}, Err: err}
	}
	from := crypto.PubkeyToAddress(key.PublicKey)

	// Malformed constructor arguments never reach the network.
	args, err := artifact.ConstructorArgs(cfg)
	if err != nil {
		return nil, d.fail(SubmissionRejected, profile, common.Hash{}, err)
	}
	data, err := artifact.CreationData(args...)
	if err != nil {
		return nil, d.fail(SubmissionRejected, profile, common.Hash{}, err)
	}

	backend, err := d.dial(ctx, profile.RPCEndpoint)
	if err != nil {
		return nil, d.fail(ConnectionFailed, profile, common.Hash{}, err)
	}
	defer backend.Close()

	chainID, err := backend.ChainID(ctx)
	if err != nil {
		return nil, d.fail(ConnectionFailed, profile, common.Hash{}, fmt.Errorf("failed to get chain ID: %w", err))
	}
	if profile.ChainID != 0 && chainID.Uint64() != profile.ChainID {
		return nil, d.fail(ChainMismatch, profile, common.Hash{},
			fmt.Errorf("node reports chain %s, expected %d", chainID, profile.ChainID))
	}

	nonce, err := backend.PendingNonceAt(ctx, from)
	if err != nil {
		return nil, d.fail(ConnectionFailed, profile, common.Hash{}, fmt.Errorf("failed to get nonce: %w", err))
	}

	gasParams, err := CalculateDynamicGasParams(ctx, backend, d.gasPolicy, d.logger)
	if err != nil {
		return nil, d.fail(ConnectionFailed, profile, common.Hash{}, err)
	}
	gasParams.GasLimit, err = deployGasLimit(ctx, backend, from, data, d.gasPolicy, d.logger)
	if err != nil {
		return nil, d.fail(SubmissionRejected, profile, common.Hash{}, err)
	}

	tx, err := createDeployTransaction(key, chainID, nonce, gasParams, gasParams.GasLimit, data)
	if err != nil {
		return nil, d.fail(SubmissionRejected, profile, common.Hash{}, fmt.Errorf("failed to sign deploy tx: %w", err))
	}

	d.logger.Info("Submitting deployment",
		"network", profile.Name,
		"chainID", chainID,
		"deployer", from,
		"nonce", nonce,
		"gasLimit", gasParams.GasLimit,
		"predicted", crypto.CreateAddress(from, nonce))

	if d.preflight != nil {
		if err := d.runPreflight(ctx, backend, tx); err != nil {
			return nil, d.fail(SubmissionRejected, profile, common.Hash{}, err)
		}
	}

	if err := backend.SendTransaction(ctx, tx); err != nil {
		return nil, d.fail(SubmissionRejected, profile, tx.Hash(), err)
	}
	d.logger.Info("Deployment submitted", "tx", tx.Hash())

	receipt, err := d.waitForConfirmation(ctx, backend, tx.Hash())
	if err != nil {
		return nil, d.fail(ConfirmationTimeout, profile, tx.Hash(), err)
	}

	result := &DeploymentResult{
		Network:         profile.Name,
		ContractAddress: receipt.ContractAddress,
		Confirmed:       receipt.Status == types.ReceiptStatusSuccessful,
		TxHash:          tx.Hash(),
		GasUsed:         receipt.GasUsed,
		Deployer:        from,
		ChainID:         chainID,
		ConstructorArgs: args,
	}
	if receipt.BlockNumber != nil {
		result.BlockNumber = receipt.BlockNumber.Uint64()
	}
	if result.ContractAddress == (common.Address{}) {
		result.ContractAddress = crypto.CreateAddress(from, nonce)
	}

	if !result.Confirmed {
		return result, d.fail(Reverted, profile, tx.Hash(), fmt.Errorf("receipt status %d in block %d", receipt.Status, result.BlockNumber))
	}

	d.logger.Info("Contract deployed",
		"address", result.ContractAddress,
		"block", result.BlockNumber,
		"gasUsed", result.GasUsed)
	return result, nil
}

func (d *Deployer) runPreflight(ctx context.Context, backend Backend, tx *types.Transaction) error {
	header, err := backend.HeaderByNumber(ctx, nil)
	if err != nil {
		return fmt.Errorf("preflight: failed to get latest block: %w", err)
	}
	target := uint64(1)
	if header.Number != nil {
		target = header.Number.Uint64() + 1
	}
	if err := d.preflight.Check(ctx, tx, target); err != nil {
		return fmt.Errorf("preflight: %w", err)
	}
	return nil
}

func (d *Deployer) fail(kind ErrorKind, profile configs.NetworkProfile, txHash common.Hash, err error) error {
	derr := &DeployError{Kind: kind, Network: profile.Name, TxHash: txHash, Err: err}
	d.logger.Debug("Deployment failed", "network", profile.Name, "kind", kind, "tx", txHash, "err", err)
	return derr
}

// waitForConfirmation polls for the receipt until it appears or the confirm
// timeout (or ctx) expires. Lookup errors other than NotFound are treated as
// transient.
func (d *Deployer) waitForConfirmation(ctx context.Context, backend Backend, txHash common.Hash) (*types.Receipt, error) {
	ctx, cancel := context.WithTimeout(ctx, d.confirmTimeout)
	defer cancel()

	d.logger.Info("Waiting for confirmation", "tx", txHash, "timeout", d.confirmTimeout)

	ticker := time.NewTicker(d.pollInterval)
	defer ticker.Stop()

	for {
		receipt, err := backend.TransactionReceipt(ctx, txHash)
		if err == nil && receipt != nil {
			return receipt, nil
		}
		if err != nil && !errors.Is(err, ethereum.NotFound) {
			d.logger.Debug("Receipt lookup failed", "tx", txHash, "err", err)
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("no receipt after %v: %w", d.confirmTimeout, ctx.Err())
		case <-ticker.C:
		}
	}
}
