package deployer

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

type ErrorKind int

const (
	ConnectionFailed ErrorKind = iota
	ChainMismatch
	SubmissionRejected
	ConfirmationTimeout
	Reverted
)

func (k ErrorKind) String() string {
	switch k {
	case ChainMismatch:
		return "chain mismatch"
	case SubmissionRejected:
		return "submission rejected"
	case ConfirmationTimeout:
		return "confirmation timeout"
	case Reverted:
		return "deployment reverted"
	default:
		return "connection failed"
	}
}

var (
	ErrConnectionFailed    = errors.New("connection failed")
	ErrChainMismatch       = errors.New("chain mismatch")
	ErrSubmissionRejected  = errors.New("submission rejected")
	ErrConfirmationTimeout = errors.New("confirmation timeout")
	ErrReverted            = errors.New("deployment reverted")
)

// DeployError aborts a deploy run. None of these are retried: a rejected or
// unconfirmed creation tx must be inspected by an operator.
type DeployError struct {
	Kind    ErrorKind
	Network string
	TxHash  common.Hash
	Err     error
}

func (e *DeployError) Error() string {
	msg := fmt.Sprintf("deploy on %s: %s", e.Network, e.Kind)
	if e.TxHash != (common.Hash{}) {
		msg += fmt.Sprintf(" (tx %s)", e.TxHash.Hex())
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *DeployError) Unwrap() error { return e.Err }

func (e *DeployError) Is(target error) bool {
	switch target {
	case ErrConnectionFailed:
		return e.Kind == ConnectionFailed
	case ErrChainMismatch:
		return e.Kind == ChainMismatch
	case ErrSubmissionRejected:
		return e.Kind == SubmissionRejected
	case ErrConfirmationTimeout:
		return e.Kind == ConfirmationTimeout
	case ErrReverted:
		return e.Kind == Reverted
	}
	return false
}
