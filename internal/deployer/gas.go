package deployer

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/params"
)

const (
	// -- Dynamic Gas Parameters --
	PRIORITY_FEE_MULTIPLIER  = 1.5  // 1.5x current priority fee
	BASE_FEE_MULTIPLIER      = 2.0  // 2x current base fee buffer
	LEGACY_GAS_PRICE_PERCENT = 125  // 25% bump on legacy gas price
	GAS_LIMIT_BUFFER_PERCENT = 20   // 20% buffer on gas estimates
	MIN_PRIORITY_FEE_GWEI    = 0.1  // floor for the tip
	MAX_PRIORITY_FEE_GWEI    = 10.0 // ceiling for the tip

	DEFAULT_DEPLOY_GAS_LIMIT = 5_000_000
	ESTIMATE_GAS_RETRIES     = 3
)

type GasParams struct {
	GasLimit       uint64
	MaxFeePerGas   *big.Int
	MaxPriorityFee *big.Int
	IsLegacy       bool
	LegacyGasPrice *big.Int
}

// GasPolicy holds the multipliers and bounds used by CalculateDynamicGasParams.
type GasPolicy struct {
	PriorityFeeMultiplier float64
	BaseFeeMultiplier     float64
	LegacyGasPricePercent int64
	GasLimitBufferPercent uint64
	MinPriorityFeeGwei    float64
	MaxPriorityFeeGwei    float64
	DefaultGasLimit       uint64
}

func DefaultGasPolicy() GasPolicy {
	return GasPolicy{
		PriorityFeeMultiplier: PRIORITY_FEE_MULTIPLIER,
		BaseFeeMultiplier:     BASE_FEE_MULTIPLIER,
		LegacyGasPricePercent: LEGACY_GAS_PRICE_PERCENT,
		GasLimitBufferPercent: GAS_LIMIT_BUFFER_PERCENT,
		MinPriorityFeeGwei:    MIN_PRIORITY_FEE_GWEI,
		MaxPriorityFeeGwei:    MAX_PRIORITY_FEE_GWEI,
		DefaultGasLimit:       DEFAULT_DEPLOY_GAS_LIMIT,
	}
}

func WeiToGwei(wei *big.Int) *big.Float {
	return new(big.Float).Quo(new(big.Float).SetInt(wei), big.NewFloat(params.GWei))
}

func GweiToWei(gwei float64) *big.Int {
	weiFloat := new(big.Float).Mul(big.NewFloat(gwei), big.NewFloat(params.GWei))
	wei, _ := weiFloat.Int(nil)
	return wei
}

func WeiToEth(wei *big.Int) string {
	if wei == nil {
		return "0"
	}
	ethFloat := new(big.Float).Quo(new(big.Float).SetInt(wei), big.NewFloat(params.Ether))
	return ethFloat.Text('f', 6)
}

func CalculateDynamicGasParams(ctx context.Context, backend Backend, policy GasPolicy, logger log.Logger) (*GasParams, error) {
	header, err := backend.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to get latest block header: %w", err)
	}

	// Pre-London chain
	if header.BaseFee == nil {
		gasPrice, err := backend.SuggestGasPrice(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to get legacy gas price: %w", err)
		}
		bumped := new(big.Int).Mul(gasPrice, big.NewInt(policy.LegacyGasPricePercent))
		bumped.Div(bumped, big.NewInt(100))

		logger.Info("Using legacy gas pricing", "gasPrice", WeiToGwei(bumped).Text('f', 2)+" gwei")
		return &GasParams{IsLegacy: true, LegacyGasPrice: bumped}, nil
	}

	baseFee := header.BaseFee

	priorityFee, err := backend.SuggestGasTipCap(ctx)
	if err != nil {
		priorityFee = GweiToWei(policy.MinPriorityFeeGwei)
	}

	priorityFee = new(big.Int).Mul(priorityFee, big.NewInt(int64(policy.PriorityFeeMultiplier*100)))
	priorityFee.Div(priorityFee, big.NewInt(100))

	minPriorityFee := GweiToWei(policy.MinPriorityFeeGwei)
	maxPriorityFee := GweiToWei(policy.MaxPriorityFeeGwei)
	if priorityFee.Cmp(minPriorityFee) < 0 {
		priorityFee = minPriorityFee
	}
	if priorityFee.Cmp(maxPriorityFee) > 0 {
		priorityFee = maxPriorityFee
	}

	// maxFeePerGas = baseFee * multiplier + priorityFee
	maxBaseFee := new(big.Float).Mul(new(big.Float).SetInt(baseFee), big.NewFloat(policy.BaseFeeMultiplier))
	maxBaseFeeInt, _ := maxBaseFee.Int(nil)
	maxFeePerGas := new(big.Int).Add(maxBaseFeeInt, priorityFee)

	logger.Info("Gas market",
		"baseFee", WeiToGwei(baseFee).Text('f', 2)+" gwei",
		"priorityFee", WeiToGwei(priorityFee).Text('f', 2)+" gwei",
		"maxFee", WeiToGwei(maxFeePerGas).Text('f', 2)+" gwei")

	return &GasParams{
		MaxFeePerGas:   maxFeePerGas,
		MaxPriorityFee: priorityFee,
	}, nil
}

// estimateGasWithRetry retries only the estimate, which is a read. The
// creation tx itself is never resubmitted.
func estimateGasWithRetry(ctx context.Context, backend Backend, msg ethereum.CallMsg, retries int, bufferPercent uint64) (uint64, error) {
	var lastErr error

	for i := 0; i < retries; i++ {
		gasLimit, err := backend.EstimateGas(ctx, msg)
		if err == nil {
			return gasLimit * (100 + bufferPercent) / 100, nil
		}

		lastErr = err
		if isExecutionRevert(err) {
			break
		}
		if i < retries-1 {
			select {
			case <-ctx.Done():
				return 0, ctx.Err()
			case <-time.After(time.Duration(i+1) * 200 * time.Millisecond):
			}
		}
	}

	return 0, fmt.Errorf("gas estimation failed: %w", lastErr)
}
