// Package fork drives a local Hardhat or Anvil node: pinning its mainnet fork
// to a fixed block and funding accounts.
package fork

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/rpc"
)

const (
	HARDHAT_RESET       = "hardhat_reset"
	ANVIL_RESET         = "anvil_reset"
	HARDHAT_SET_BALANCE = "hardhat_setBalance"
	ANVIL_SET_BALANCE   = "anvil_setBalance"

	methodNotFoundCode = -32601
)

var ErrHeightMismatch = errors.New("fork node is not at the pinned height")

// RPCCaller is the raw JSON-RPC surface of *rpc.Client.
type RPCCaller interface {
	CallContext(ctx context.Context, result interface{}, method string, args ...interface{}) error
}

type forking struct {
	JSONRPCURL  string `json:"jsonRpcUrl"`
	BlockNumber uint64 `json:"blockNumber"`
}

type resetParams struct {
	Forking forking `json:"forking"`
}

// Controller issues fork-control calls against one node.
type Controller struct {
	caller RPCCaller
	logger log.Logger
}

func New(caller RPCCaller, logger log.Logger) *Controller {
	if logger == nil {
		logger = log.Root()
	}
	return &Controller{caller: caller, logger: logger}
}

// Pin resets the node to fork upstream at height and checks the node now
// reports that height.
func (c *Controller) Pin(ctx context.Context, upstream string, height uint64) error {
	params := resetParams{Forking: forking{JSONRPCURL: upstream, BlockNumber: height}}

	method, err := callWithFallback(ctx, c.caller, HARDHAT_RESET, ANVIL_RESET, params)
	if err != nil {
		return fmt.Errorf("failed to reset fork to block %d: %w", height, err)
	}

	var head hexutil.Uint64
	if err := c.caller.CallContext(ctx, &head, "eth_blockNumber"); err != nil {
		return fmt.Errorf("failed to read fork head: %w", err)
	}
	if uint64(head) != height {
		return fmt.Errorf("%w: want %d, node reports %d", ErrHeightMismatch, height, uint64(head))
	}

	c.logger.Info("Fork pinned", "method", method, "block", height)
	return nil
}

// Fund sets account's balance on the fork node.
func (c *Controller) Fund(ctx context.Context, account common.Address, wei *big.Int) error {
	method, err := callWithFallback(ctx, c.caller, HARDHAT_SET_BALANCE, ANVIL_SET_BALANCE, account, hexutil.EncodeBig(wei))
	if err != nil {
		return fmt.Errorf("failed to fund %s: %w", account.Hex(), err)
	}
	c.logger.Debug("Fork account funded", "method", method, "account", account, "wei", wei)
	return nil
}

// callWithFallback tries the Hardhat method, then the Anvil one if the node
// does not know it.
func callWithFallback(ctx context.Context, caller RPCCaller, primary, fallback string, args ...interface{}) (string, error) {
	err := caller.CallContext(ctx, nil, primary, args...)
	if err == nil {
		return primary, nil
	}
	if !isMethodNotFound(err) {
		return primary, err
	}
	if err := caller.CallContext(ctx, nil, fallback, args...); err != nil {
		return fallback, err
	}
	return fallback, nil
}

func isMethodNotFound(err error) bool {
	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) && rpcErr.ErrorCode() == methodNotFoundCode {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "method not found") ||
		strings.Contains(msg, "does not exist") ||
		strings.Contains(msg, "not supported")
}
