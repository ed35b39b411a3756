package deployer

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/params"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/nimazeighami/flashloan-deployer/internal/configs"
	"github.com/nimazeighami/flashloan-deployer/internal/contract"
)

const fakeBytecode = "0x6080604052348015600f57600080fd5b50"

var (
	provider = common.HexToAddress("0x2f39d218133AFaB8F2B819B1066c7E434Ad94E9e")
	routers  = []common.Address{
		common.HexToAddress("0x7a250d5630B4cF539739dF2C5dAcb4c659F2488D"),
		common.HexToAddress("0xd9e1cE17f2641f24aE83637ab66a2cca9C378B9F"),
		common.HexToAddress("0xE592427A0AEce4591888eBE2A4A72E7bCE5F2a42"),
	}
	devAddr = common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266")
)

type mockBackend struct {
	mock.Mock
}

func (m *mockBackend) ChainID(ctx context.Context) (*big.Int, error) {
	args := m.Called(ctx)
	var id *big.Int
	if v := args.Get(0); v != nil {
		id = v.(*big.Int)
	}
	return id, args.Error(1)
}

func (m *mockBackend) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	args := m.Called(ctx, account)
	return args.Get(0).(uint64), args.Error(1)
}

func (m *mockBackend) HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error) {
	args := m.Called(ctx, number)
	var h *types.Header
	if v := args.Get(0); v != nil {
		h = v.(*types.Header)
	}
	return h, args.Error(1)
}

func (m *mockBackend) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	args := m.Called(ctx)
	var p *big.Int
	if v := args.Get(0); v != nil {
		p = v.(*big.Int)
	}
	return p, args.Error(1)
}

func (m *mockBackend) SuggestGasTipCap(ctx context.Context) (*big.Int, error) {
	args := m.Called(ctx)
	var p *big.Int
	if v := args.Get(0); v != nil {
		p = v.(*big.Int)
	}
	return p, args.Error(1)
}

func (m *mockBackend) EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	args := m.Called(ctx, msg)
	return args.Get(0).(uint64), args.Error(1)
}

func (m *mockBackend) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	return m.Called(ctx, tx).Error(0)
}

func (m *mockBackend) TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	args := m.Called(ctx, txHash)
	var r *types.Receipt
	if v := args.Get(0); v != nil {
		r = v.(*types.Receipt)
	}
	return r, args.Error(1)
}

func (m *mockBackend) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	args := m.Called(ctx, msg, blockNumber)
	var out []byte
	if v := args.Get(0); v != nil {
		out = v.([]byte)
	}
	return out, args.Error(1)
}

func (m *mockBackend) Close() { m.Called() }

func testArtifact(t *testing.T, abiJSON string) *contract.Artifact {
	t.Helper()
	raw, err := json.Marshal(map[string]interface{}{
		"contractName": contract.CONTRACT_NAME,
		"abi":          json.RawMessage(abiJSON),
		"bytecode":     fakeBytecode,
	})
	require.NoError(t, err)
	a, err := contract.ParseArtifact(raw)
	require.NoError(t, err)
	return a
}

func testConfig() *configs.DeploymentConfig {
	return &configs.DeploymentConfig{
		SignerCredential: configs.Secret(configs.DEV_ACCOUNT_KEY),
		ProviderAddress:  provider,
		RouterAddresses:  routers,
	}
}

func testProfile() configs.NetworkProfile {
	return configs.NetworkProfile{Name: "mainnet", RPCEndpoint: "http://node.invalid", ChainID: configs.CHAIN_ID_MAINNET}
}

// healthyBackend answers every pre-submission read for chain id 1.
func healthyBackend() *mockBackend {
	m := &mockBackend{}
	m.On("ChainID", mock.Anything).Return(big.NewInt(1), nil)
	m.On("HeaderByNumber", mock.Anything, mock.Anything).Return(&types.Header{BaseFee: big.NewInt(20 * params.GWei)}, nil)
	m.On("SuggestGasTipCap", mock.Anything).Return(big.NewInt(params.GWei), nil)
	m.On("EstimateGas", mock.Anything, mock.Anything).Return(uint64(1_000_000), nil)
	m.On("Close").Return()
	return m
}

func newTestDeployer(m *mockBackend, opts ...Option) *Deployer {
	dial := func(ctx context.Context, rawurl string) (Backend, error) { return m, nil }
	opts = append([]Option{
		WithLogger(log.NewLogger(log.DiscardHandler())),
		WithPollInterval(5 * time.Millisecond),
		WithConfirmTimeout(200 * time.Millisecond),
	}, opts...)
	return New(dial, opts...)
}

func TestDeployPassesProviderAndRoutersInOrder(t *testing.T) {
	m := healthyBackend()
	m.On("PendingNonceAt", mock.Anything, devAddr).Return(uint64(7), nil)

	var sent *types.Transaction
	m.On("SendTransaction", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		sent = args.Get(1).(*types.Transaction)
	}).Return(nil)

	expected := crypto.CreateAddress(devAddr, 7)
	m.On("TransactionReceipt", mock.Anything, mock.Anything).Return(&types.Receipt{
		Status:          types.ReceiptStatusSuccessful,
		ContractAddress: expected,
		BlockNumber:     big.NewInt(18_000_001),
		GasUsed:         900_000,
	}, nil)

	artifact := testArtifact(t, contract.ArbitrageFlashLoanABI)
	result, err := newTestDeployer(m).Deploy(context.Background(), testConfig(), testProfile(), artifact)
	require.NoError(t, err)

	assert.True(t, result.Confirmed)
	assert.Equal(t, expected, result.ContractAddress)
	assert.Equal(t, uint64(18_000_001), result.BlockNumber)
	assert.Equal(t, devAddr, result.Deployer)

	require.NotNil(t, sent)
	assert.Nil(t, sent.To())
	assert.Equal(t, uint8(types.DynamicFeeTxType), sent.Type())
	assert.Equal(t, uint64(1_200_000), sent.Gas())

	decoded, err := artifact.UnpackConstructorArgs(sent.Data())
	require.NoError(t, err)
	assert.Equal(t, provider, decoded[0])
	assert.Equal(t, routers, decoded[1])
	m.AssertExpectations(t)
}

func TestDeployTwiceYieldsTwoContracts(t *testing.T) {
	m := healthyBackend()
	m.On("PendingNonceAt", mock.Anything, devAddr).Return(uint64(0), nil).Once()
	m.On("PendingNonceAt", mock.Anything, devAddr).Return(uint64(1), nil).Once()
	m.On("SendTransaction", mock.Anything, mock.Anything).Return(nil)
	// No contractAddress in the receipt: the address is derived from the nonce.
	m.On("TransactionReceipt", mock.Anything, mock.Anything).Return(&types.Receipt{
		Status:      types.ReceiptStatusSuccessful,
		BlockNumber: big.NewInt(1),
	}, nil)

	d := newTestDeployer(m)
	artifact := testArtifact(t, contract.ArbitrageFlashLoanABI)

	first, err := d.Deploy(context.Background(), testConfig(), testProfile(), artifact)
	require.NoError(t, err)
	second, err := d.Deploy(context.Background(), testConfig(), testProfile(), artifact)
	require.NoError(t, err)

	assert.NotEqual(t, first.ContractAddress, second.ContractAddress)
	assert.NotEqual(t, first.TxHash, second.TxHash)
	m.AssertNumberOfCalls(t, "SendTransaction", 2)
}

func TestDeployLegacyConstructorAndGas(t *testing.T) {
	m := &mockBackend{}
	m.On("ChainID", mock.Anything).Return(big.NewInt(1), nil)
	m.On("PendingNonceAt", mock.Anything, devAddr).Return(uint64(0), nil)
	m.On("HeaderByNumber", mock.Anything, mock.Anything).Return(&types.Header{}, nil)
	m.On("SuggestGasPrice", mock.Anything).Return(big.NewInt(40*params.GWei), nil)
	m.On("EstimateGas", mock.Anything, mock.Anything).Return(uint64(0), errors.New("estimate unavailable"))
	m.On("Close").Return()

	var sent *types.Transaction
	m.On("SendTransaction", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		sent = args.Get(1).(*types.Transaction)
	}).Return(nil)
	m.On("TransactionReceipt", mock.Anything, mock.Anything).Return(&types.Receipt{Status: types.ReceiptStatusSuccessful, BlockNumber: big.NewInt(2)}, nil)

	artifact := testArtifact(t, contract.ArbitrageFlashLoanLegacyABI)
	_, err := newTestDeployer(m).Deploy(context.Background(), testConfig(), testProfile(), artifact)
	require.NoError(t, err)

	require.NotNil(t, sent)
	assert.Equal(t, uint8(types.LegacyTxType), sent.Type())
	assert.Equal(t, big.NewInt(50*params.GWei), sent.GasPrice())
	assert.Equal(t, uint64(DEFAULT_DEPLOY_GAS_LIMIT*(100+GAS_LIMIT_BUFFER_PERCENT)/100), sent.Gas())

	decoded, err := artifact.UnpackConstructorArgs(sent.Data())
	require.NoError(t, err)
	assert.Equal(t, []interface{}{provider}, decoded)
	m.AssertNumberOfCalls(t, "EstimateGas", ESTIMATE_GAS_RETRIES)
}

func TestDeployRevertingConstructorIsNotSent(t *testing.T) {
	m := &mockBackend{}
	m.On("ChainID", mock.Anything).Return(big.NewInt(1), nil)
	m.On("PendingNonceAt", mock.Anything, devAddr).Return(uint64(0), nil)
	m.On("HeaderByNumber", mock.Anything, mock.Anything).Return(&types.Header{BaseFee: big.NewInt(20 * params.GWei)}, nil)
	m.On("SuggestGasTipCap", mock.Anything).Return(big.NewInt(params.GWei), nil)
	m.On("EstimateGas", mock.Anything, mock.Anything).Return(uint64(0), errors.New("execution reverted: invalid provider"))
	m.On("Close").Return()

	_, err := newTestDeployer(m).Deploy(context.Background(), testConfig(), testProfile(), testArtifact(t, contract.ArbitrageFlashLoanABI))
	assert.ErrorIs(t, err, ErrSubmissionRejected)
	assert.ErrorContains(t, err, "invalid provider")

	m.AssertNumberOfCalls(t, "EstimateGas", 1)
	m.AssertNotCalled(t, "SendTransaction", mock.Anything, mock.Anything)
}

func TestDeploySubmissionRejectedIsNotRetried(t *testing.T) {
	m := healthyBackend()
	m.On("PendingNonceAt", mock.Anything, devAddr).Return(uint64(0), nil)
	m.On("SendTransaction", mock.Anything, mock.Anything).Return(errors.New("insufficient funds for gas * price + value"))

	_, err := newTestDeployer(m).Deploy(context.Background(), testConfig(), testProfile(), testArtifact(t, contract.ArbitrageFlashLoanABI))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSubmissionRejected)
	assert.ErrorContains(t, err, "insufficient funds")

	var derr *DeployError
	require.ErrorAs(t, err, &derr)
	assert.NotEqual(t, common.Hash{}, derr.TxHash)

	m.AssertNumberOfCalls(t, "SendTransaction", 1)
	m.AssertNotCalled(t, "TransactionReceipt", mock.Anything, mock.Anything)
}

func TestDeployConfirmationTimeout(t *testing.T) {
	m := healthyBackend()
	m.On("PendingNonceAt", mock.Anything, devAddr).Return(uint64(0), nil)
	m.On("SendTransaction", mock.Anything, mock.Anything).Return(nil)
	m.On("TransactionReceipt", mock.Anything, mock.Anything).Return(nil, ethereum.NotFound)

	d := newTestDeployer(m, WithConfirmTimeout(50*time.Millisecond))
	_, err := d.Deploy(context.Background(), testConfig(), testProfile(), testArtifact(t, contract.ArbitrageFlashLoanABI))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConfirmationTimeout)
	assert.False(t, errors.Is(err, ErrSubmissionRejected))
	m.AssertNumberOfCalls(t, "SendTransaction", 1)
}

func TestDeployRevertedReceipt(t *testing.T) {
	m := healthyBackend()
	m.On("PendingNonceAt", mock.Anything, devAddr).Return(uint64(3), nil)
	m.On("SendTransaction", mock.Anything, mock.Anything).Return(nil)
	m.On("TransactionReceipt", mock.Anything, mock.Anything).Return(&types.Receipt{
		Status:      types.ReceiptStatusFailed,
		BlockNumber: big.NewInt(9),
	}, nil)

	result, err := newTestDeployer(m).Deploy(context.Background(), testConfig(), testProfile(), testArtifact(t, contract.ArbitrageFlashLoanABI))
	assert.ErrorIs(t, err, ErrReverted)
	require.NotNil(t, result)
	assert.False(t, result.Confirmed)
}

func TestDeployChainMismatch(t *testing.T) {
	m := &mockBackend{}
	m.On("ChainID", mock.Anything).Return(big.NewInt(11155111), nil)
	m.On("Close").Return()

	_, err := newTestDeployer(m).Deploy(context.Background(), testConfig(), testProfile(), testArtifact(t, contract.ArbitrageFlashLoanABI))
	assert.ErrorIs(t, err, ErrChainMismatch)
	m.AssertNotCalled(t, "SendTransaction", mock.Anything, mock.Anything)
}

func TestDeployConnectionFailed(t *testing.T) {
	dial := func(ctx context.Context, rawurl string) (Backend, error) {
		return nil, errors.New("dial tcp: connection refused")
	}
	d := New(dial, WithLogger(log.NewLogger(log.DiscardHandler())))

	_, err := d.Deploy(context.Background(), testConfig(), testProfile(), testArtifact(t, contract.ArbitrageFlashLoanABI))
	assert.ErrorIs(t, err, ErrConnectionFailed)
	assert.ErrorContains(t, err, "connection refused")
}

func TestDeployFailureIsLeftToTheCaller(t *testing.T) {
	dial := func(ctx context.Context, rawurl string) (Backend, error) {
		return nil, errors.New("dial tcp: connection refused")
	}
	var buf bytes.Buffer
	d := New(dial, WithLogger(log.NewLogger(log.NewTerminalHandlerWithLevel(&buf, log.LevelInfo, false))))

	_, err := d.Deploy(context.Background(), testConfig(), testProfile(), testArtifact(t, contract.ArbitrageFlashLoanABI))
	require.Error(t, err)
	assert.NotContains(t, buf.String(), "Deployment failed")
	assert.NotContains(t, buf.String(), "connection refused")
}

func TestDeployWithoutCredentialNeverDials(t *testing.T) {
	dialed := false
	dial := func(ctx context.Context, rawurl string) (Backend, error) {
		dialed = true
		return nil, errors.New("unexpected dial")
	}
	cfg := testConfig()
	cfg.SignerCredential = ""

	_, err := New(dial, WithLogger(log.NewLogger(log.DiscardHandler()))).
		Deploy(context.Background(), cfg, testProfile(), testArtifact(t, contract.ArbitrageFlashLoanABI))
	assert.ErrorIs(t, err, configs.ErrMissingEnv)
	assert.False(t, dialed)
}

func TestDeployVariantMismatchNeverDials(t *testing.T) {
	dialed := false
	dial := func(ctx context.Context, rawurl string) (Backend, error) {
		dialed = true
		return nil, errors.New("unexpected dial")
	}
	cfg := testConfig()
	cfg.Variant = configs.VariantLegacy

	_, err := New(dial, WithLogger(log.NewLogger(log.DiscardHandler()))).
		Deploy(context.Background(), cfg, testProfile(), testArtifact(t, contract.ArbitrageFlashLoanABI))
	assert.ErrorIs(t, err, ErrSubmissionRejected)
	assert.False(t, dialed)
}

func TestProfileCredentialWins(t *testing.T) {
	const otherKey = "59c6995e998f97a5a0044966f0945389dc9e86dae88c7a8412f4603b6b78690d"
	other := crypto.PubkeyToAddress(mustKey(t, otherKey).PublicKey)

	m := healthyBackend()
	m.On("PendingNonceAt", mock.Anything, other).Return(uint64(0), nil)
	m.On("SendTransaction", mock.Anything, mock.Anything).Return(nil)
	m.On("TransactionReceipt", mock.Anything, mock.Anything).Return(&types.Receipt{Status: types.ReceiptStatusSuccessful, BlockNumber: big.NewInt(1)}, nil)

	profile := testProfile()
	profile.Credential = configs.Secret(otherKey)

	result, err := newTestDeployer(m).Deploy(context.Background(), testConfig(), profile, testArtifact(t, contract.ArbitrageFlashLoanABI))
	require.NoError(t, err)
	assert.Equal(t, other, result.Deployer)
}

func TestCalculateDynamicGasParamsClampsTip(t *testing.T) {
	m := &mockBackend{}
	m.On("HeaderByNumber", mock.Anything, mock.Anything).Return(&types.Header{BaseFee: big.NewInt(10 * params.GWei)}, nil)
	m.On("SuggestGasTipCap", mock.Anything).Return(big.NewInt(100*params.GWei), nil)

	gp, err := CalculateDynamicGasParams(context.Background(), m, DefaultGasPolicy(), log.NewLogger(log.DiscardHandler()))
	require.NoError(t, err)
	assert.False(t, gp.IsLegacy)
	assert.Equal(t, GweiToWei(MAX_PRIORITY_FEE_GWEI), gp.MaxPriorityFee)
	assert.Equal(t, new(big.Int).Add(big.NewInt(20*params.GWei), gp.MaxPriorityFee), gp.MaxFeePerGas)
}

func mustKey(t *testing.T, hexKey string) *ecdsa.PrivateKey {
	t.Helper()
	key, err := crypto.HexToECDSA(hexKey)
	require.NoError(t, err)
	return key
}

type preflightFunc func(ctx context.Context, tx *types.Transaction, targetBlock uint64) error

func (f preflightFunc) Check(ctx context.Context, tx *types.Transaction, targetBlock uint64) error {
	return f(ctx, tx, targetBlock)
}

func TestDeployPreflightRejectsBeforeSubmission(t *testing.T) {
	m := &mockBackend{}
	m.On("ChainID", mock.Anything).Return(big.NewInt(1), nil)
	m.On("PendingNonceAt", mock.Anything, devAddr).Return(uint64(0), nil)
	m.On("HeaderByNumber", mock.Anything, mock.Anything).Return(&types.Header{Number: big.NewInt(100), BaseFee: big.NewInt(params.GWei)}, nil)
	m.On("SuggestGasTipCap", mock.Anything).Return(big.NewInt(params.GWei), nil)
	m.On("EstimateGas", mock.Anything, mock.Anything).Return(uint64(1_000_000), nil)
	m.On("Close").Return()

	var target uint64
	check := preflightFunc(func(ctx context.Context, tx *types.Transaction, targetBlock uint64) error {
		target = targetBlock
		return errors.New("execution reverted")
	})

	_, err := newTestDeployer(m, WithPreflight(check)).
		Deploy(context.Background(), testConfig(), testProfile(), testArtifact(t, contract.ArbitrageFlashLoanABI))
	assert.ErrorIs(t, err, ErrSubmissionRejected)
	assert.ErrorContains(t, err, "preflight")
	assert.Equal(t, uint64(101), target)
	m.AssertNotCalled(t, "SendTransaction", mock.Anything, mock.Anything)
}

func TestDeployPreflightPasses(t *testing.T) {
	m := healthyBackend()
	m.On("PendingNonceAt", mock.Anything, devAddr).Return(uint64(0), nil)
	m.On("SendTransaction", mock.Anything, mock.Anything).Return(nil)
	m.On("TransactionReceipt", mock.Anything, mock.Anything).Return(&types.Receipt{Status: types.ReceiptStatusSuccessful, BlockNumber: big.NewInt(1)}, nil)

	var checked common.Hash
	check := preflightFunc(func(ctx context.Context, tx *types.Transaction, targetBlock uint64) error {
		checked = tx.Hash()
		return nil
	})

	result, err := newTestDeployer(m, WithPreflight(check)).
		Deploy(context.Background(), testConfig(), testProfile(), testArtifact(t, contract.ArbitrageFlashLoanABI))
	require.NoError(t, err)
	assert.Equal(t, result.TxHash, checked)
}
