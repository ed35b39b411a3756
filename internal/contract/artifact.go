// Package contract loads the compiled ArbitrageFlashLoan artifact and packs
// its constructor and probe calldata.
package contract

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/nimazeighami/flashloan-deployer/internal/configs"
)

// DEFAULT_ARTIFACT_PATH is where `npx hardhat compile` writes the artifact.
const DEFAULT_ARTIFACT_PATH = "artifacts/contracts/ArbitrageFlashLoan.sol/ArbitrageFlashLoan.json"

var ErrNoBytecode = errors.New("artifact has no creation bytecode")

// Artifact is a compiled contract: ABI plus creation bytecode.
type Artifact struct {
	ContractName string
	ABI          abi.ABI
	Bytecode     []byte
}

type rawArtifact struct {
	ContractName string          `json:"contractName"`
	ABI          json.RawMessage `json:"abi"`
	Bytecode     bytecode        `json:"bytecode"`
}

// bytecode accepts both the Hardhat ("0x60...") and the Foundry
// ({"object": "0x60..."}) encodings.
type bytecode string

func (b *bytecode) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*b = bytecode(s)
		return nil
	}
	var obj struct {
		Object string `json:"object"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("bytecode is neither a string nor an object: %w", err)
	}
	*b = bytecode(obj.Object)
	return nil
}

// LoadArtifact reads a Hardhat or Foundry artifact from disk.
func LoadArtifact(path string) (*Artifact, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read artifact: %w", err)
	}
	artifact, err := ParseArtifact(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return artifact, nil
}

func ParseArtifact(data []byte) (*Artifact, error) {
	var raw rawArtifact
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to decode artifact: %w", err)
	}
	if len(raw.ABI) == 0 {
		return nil, errors.New("artifact has no abi")
	}
	parsed, err := abi.JSON(strings.NewReader(string(raw.ABI)))
	if err != nil {
		return nil, fmt.Errorf("failed to parse artifact abi: %v", err)
	}

	code := strings.TrimPrefix(strings.TrimSpace(string(raw.Bytecode)), "0x")
	if strings.Contains(code, "__") {
		return nil, errors.New("artifact bytecode has unlinked library placeholders")
	}
	bin, err := hex.DecodeString(code)
	if err != nil {
		return nil, fmt.Errorf("failed to decode artifact bytecode: %v", err)
	}
	if len(bin) == 0 {
		return nil, ErrNoBytecode
	}

	name := raw.ContractName
	if name == "" {
		name = CONTRACT_NAME
	}
	return &Artifact{ContractName: name, ABI: parsed, Bytecode: bin}, nil
}

// DefaultArtifact is an ABI-only artifact from the embedded ABI. It cannot
// be deployed, only called.
func DefaultArtifact() *Artifact {
	parsed, err := abi.JSON(strings.NewReader(ArbitrageFlashLoanABI))
	if err != nil {
		panic(fmt.Sprintf("embedded abi: %v", err))
	}
	return &Artifact{ContractName: CONTRACT_NAME, ABI: parsed}
}

// Variant reports the constructor shape declared by the ABI.
func (a *Artifact) Variant() (configs.Variant, error) {
	inputs := a.ABI.Constructor.Inputs
	switch {
	case len(inputs) == 1 && inputs[0].Type.T == abi.AddressTy:
		return configs.VariantLegacy, nil
	case len(inputs) == 2 && inputs[0].Type.T == abi.AddressTy &&
		inputs[1].Type.T == abi.SliceTy && inputs[1].Type.Elem.T == abi.AddressTy:
		return configs.VariantMultiRouter, nil
	}
	return configs.VariantAuto, fmt.Errorf("unsupported %s constructor: %s", a.ContractName, a.ABI.Constructor.Sig)
}

// ResolveVariant returns the artifact's variant, checking it against an
// explicitly requested one.
func (a *Artifact) ResolveVariant(requested configs.Variant) (configs.Variant, error) {
	detected, err := a.Variant()
	if err != nil {
		return configs.VariantAuto, err
	}
	if requested != configs.VariantAuto && requested != detected {
		return configs.VariantAuto, fmt.Errorf("artifact constructor is %s but %s was requested", detected, requested)
	}
	return detected, nil
}

// ConstructorArgs builds the ordered constructor argument list for cfg.
func (a *Artifact) ConstructorArgs(cfg *configs.DeploymentConfig) ([]interface{}, error) {
	variant, err := a.ResolveVariant(cfg.Variant)
	if err != nil {
		return nil, err
	}
	if variant == configs.VariantLegacy {
		return []interface{}{cfg.ProviderAddress}, nil
	}
	if len(cfg.RouterAddresses) == 0 {
		return nil, errors.New("multi-router constructor needs at least one router")
	}
	routers := make([]common.Address, len(cfg.RouterAddresses))
	copy(routers, cfg.RouterAddresses)
	return []interface{}{cfg.ProviderAddress, routers}, nil
}

// CreationData returns bytecode followed by the ABI-encoded constructor args.
func (a *Artifact) CreationData(args ...interface{}) ([]byte, error) {
	if len(a.Bytecode) == 0 {
		return nil, ErrNoBytecode
	}
	packed, err := a.ABI.Pack("", args...)
	if err != nil {
		return nil, fmt.Errorf("failed to pack constructor args: %w", err)
	}
	data := make([]byte, 0, len(a.Bytecode)+len(packed))
	data = append(data, a.Bytecode...)
	return append(data, packed...), nil
}

// UnpackConstructorArgs is the inverse of CreationData.
func (a *Artifact) UnpackConstructorArgs(data []byte) ([]interface{}, error) {
	if len(data) < len(a.Bytecode) {
		return nil, errors.New("creation data shorter than bytecode")
	}
	return a.ABI.Constructor.Inputs.Unpack(data[len(a.Bytecode):])
}

// PackExecuteArb encodes executeArb(loanToken, amount, targets, payloads, tokensToApprove).
func (a *Artifact) PackExecuteArb(loanToken common.Address, amount *big.Int, targets []common.Address, payloads [][]byte, approve []common.Address) ([]byte, error) {
	if targets == nil {
		targets = []common.Address{}
	}
	if payloads == nil {
		payloads = [][]byte{}
	}
	if approve == nil {
		approve = []common.Address{}
	}
	data, err := a.ABI.Pack("executeArb", loanToken, amount, targets, payloads, approve)
	if err != nil {
		return nil, fmt.Errorf("failed to pack executeArb: %w", err)
	}
	return data, nil
}
