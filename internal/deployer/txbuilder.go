package deployer

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/rpc"
)

// deployGasLimit estimates the creation tx, falling back to the policy's
// default limit when the node cannot estimate it. A constructor the node
// reports as reverting is an error: the tx would only burn gas.
func deployGasLimit(ctx context.Context, backend Backend, from common.Address, data []byte, policy GasPolicy, logger log.Logger) (uint64, error) {
	gasLimit, err := estimateGasWithRetry(ctx, backend, ethereum.CallMsg{
		From: from,
		Data: data,
	}, ESTIMATE_GAS_RETRIES, policy.GasLimitBufferPercent)
	if err != nil {
		if isExecutionRevert(err) {
			return 0, fmt.Errorf("constructor reverts in gas estimation: %w", err)
		}
		logger.Warn("Using default gas limit for deployment", "err", err)
		gasLimit = policy.DefaultGasLimit * (100 + policy.GasLimitBufferPercent) / 100
	}
	return gasLimit, nil
}

// isExecutionRevert tells a revert reported by the node apart from a
// transport or node failure.
func isExecutionRevert(err error) bool {
	var dataErr rpc.DataError
	if errors.As(err, &dataErr) && dataErr.ErrorData() != nil {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "execution reverted")
}

// createDeployTransaction signs a contract creation (nil To) carrying the
// creation data.
func createDeployTransaction(key *ecdsa.PrivateKey, chainID *big.Int, nonce uint64, gasParams *GasParams, gasLimit uint64, data []byte) (*types.Transaction, error) {
	if gasParams.IsLegacy {
		tx := types.NewTx(&types.LegacyTx{
			Nonce:    nonce,
			GasPrice: gasParams.LegacyGasPrice,
			Gas:      gasLimit,
			Value:    big.NewInt(0),
			Data:     data,
		})
		return types.SignTx(tx, types.NewEIP155Signer(chainID), key)
	}

	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   chainID,
		Nonce:     nonce,
		GasTipCap: gasParams.MaxPriorityFee,
		GasFeeCap: gasParams.MaxFeePerGas,
		Gas:       gasLimit,
		Value:     big.NewInt(0),
		Data:      data,
	})
	return types.SignTx(tx, types.NewLondonSigner(chainID), key)
}
