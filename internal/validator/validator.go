// Package validator probes a freshly deployed contract with an empty
// executeArb call and classifies the result.
package validator

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/nimazeighami/flashloan-deployer/internal/contract"
)

// Revert reasons the contract uses when a flash loan round trip earns
// nothing. Matching is case-insensitive.
var DefaultExpectedMarkers = []string{"UNPROFITABLE", "NO_PROFIT"}

const revertPrefix = "execution reverted"

// Caller issues a read-only eth_call. *ethclient.Client satisfies it.
type Caller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

type Kind int

const (
	Success Kind = iota
	ExpectedRevert
	UnexpectedFailure
)

func (k Kind) String() string {
	switch k {
	case Success:
		return "success"
	case ExpectedRevert:
		return "expected revert"
	default:
		return "unexpected failure"
	}
}

// Outcome is the terminal result of a probe. Reason is set for
// ExpectedRevert, Err for UnexpectedFailure.
type Outcome struct {
	Kind   Kind
	Reason string
	Err    error
}

func (o Outcome) String() string {
	switch o.Kind {
	case ExpectedRevert:
		return fmt.Sprintf("%s (%s)", o.Kind, o.Reason)
	case UnexpectedFailure:
		return fmt.Sprintf("%s: %v", o.Kind, o.Err)
	}
	return o.Kind.String()
}

type Validator struct {
	caller   Caller
	artifact *contract.Artifact
	from     common.Address
	markers  []string
	logger   log.Logger
}

type Option func(*Validator)

func WithLogger(l log.Logger) Option {
	return func(v *Validator) { v.logger = l }
}

// WithFrom sets the eth_call sender, normally the deployer account (the
// contract owner).
func WithFrom(from common.Address) Option {
	return func(v *Validator) { v.from = from }
}

func WithMarkers(markers ...string) Option {
	return func(v *Validator) { v.markers = markers }
}

func WithArtifact(a *contract.Artifact) Option {
	return func(v *Validator) { v.artifact = a }
}

func New(caller Caller, opts ...Option) *Validator {
	v := &Validator{
		caller:   caller,
		artifact: contract.DefaultArtifact(),
		markers:  DefaultExpectedMarkers,
		logger:   log.Root(),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Validate calls executeArb(loanToken, loanAmount, [], [], []) once. It never
// retries and never returns an error: every result is an Outcome.
func (v *Validator) Validate(ctx context.Context, target, loanToken common.Address, loanAmount *big.Int) Outcome {
	data, err := v.artifact.PackExecuteArb(loanToken, loanAmount, nil, nil, nil)
	if err != nil {
		return v.unexpected(err)
	}

	v.logger.Info("Probing deployed contract", "contract", target, "loanToken", loanToken, "loanAmount", loanAmount)

	_, err = v.caller.CallContract(ctx, ethereum.CallMsg{
		From: v.from,
		To:   &target,
		Data: data,
	}, nil)
	if err == nil {
		v.logger.Info("Probe returned normally", "contract", target)
		return Outcome{Kind: Success}
	}

	reason, reverted := RevertReason(err)
	if reverted && v.isExpected(reason) {
		v.logger.Info("Probe reverted as expected", "reason", reason)
		return Outcome{Kind: ExpectedRevert, Reason: reason}
	}
	return v.unexpected(err)
}

func (v *Validator) unexpected(err error) Outcome {
	v.logger.Warn("Probe failed unexpectedly", "err", err)
	return Outcome{Kind: UnexpectedFailure, Err: err}
}

func (v *Validator) isExpected(reason string) bool {
	upper := strings.ToUpper(reason)
	for _, marker := range v.markers {
		if marker != "" && strings.Contains(upper, strings.ToUpper(marker)) {
			return true
		}
	}
	return false
}

// RevertReason extracts the revert reason from an eth_call error. The second
// result reports whether err was a revert at all.
func RevertReason(err error) (string, bool) {
	if err == nil {
		return "", false
	}

	var dataErr rpc.DataError
	if errors.As(err, &dataErr) {
		if s, ok := dataErr.ErrorData().(string); ok {
			if raw, decErr := hexutil.Decode(s); decErr == nil && len(raw) >= 4 {
				if reason, unpackErr := abi.UnpackRevert(raw); unpackErr == nil {
					return reason, true
				}
				return fmt.Sprintf("custom error %s", hexutil.Encode(raw[:4])), true
			}
		}
	}

	msg := err.Error()
	idx := strings.Index(msg, revertPrefix)
	if idx < 0 {
		return "", false
	}
	reason := strings.TrimSpace(msg[idx+len(revertPrefix):])
	return strings.TrimSpace(strings.TrimPrefix(reason, ":")), true
}
