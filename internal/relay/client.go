// Package relay dry-runs the signed creation tx against a Flashbots relay
// with eth_callBundle before it is broadcast.
package relay

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/log"
)

const REQUEST_TIMEOUT = 30 * time.Second

var ErrBundleFailed = errors.New("bundle simulation failed")

type Client struct {
	url     string
	authKey *ecdsa.PrivateKey
	http    *http.Client
	logger  log.Logger
}

func NewClient(url string, authKey *ecdsa.PrivateKey, logger log.Logger) *Client {
	if logger == nil {
		logger = log.Root()
	}
	return &Client{
		url:     url,
		authKey: authKey,
		http:    &http.Client{Timeout: REQUEST_TIMEOUT},
		logger:  logger,
	}
}

// CallBundle simulates txs on top of the latest state as if mined in targetBlock.
func (c *Client) CallBundle(ctx context.Context, txs []*types.Transaction, targetBlock uint64) (*CallBundleResult, error) {
	var txsHex []string
	for _, tx := range txs {
		rawTx, err := tx.MarshalBinary()
		if err != nil {
			return nil, fmt.Errorf("failed to encode transaction: %w", err)
		}
		txsHex = append(txsHex, hexutil.Encode(rawTx))
	}

	request := Request{
		Jsonrpc: "2.0",
		ID:      1,
		Method:  "eth_callBundle",
		Params: []interface{}{CallBundleParams{
			Txs:              txsHex,
			BlockNumber:      hexutil.EncodeUint64(targetBlock),
			StateBlockNumber: "latest",
		}},
	}

	resp, err := c.send(ctx, request)
	if err != nil {
		return nil, err
	}
	if resp.Error != nil {
		return nil, fmt.Errorf("%w: relay error %d: %s", ErrBundleFailed, resp.Error.Code, resp.Error.Message)
	}
	return &resp.Result, nil
}

// Check implements the deployer preflight hook: the creation tx must
// simulate without error or revert.
func (c *Client) Check(ctx context.Context, tx *types.Transaction, targetBlock uint64) error {
	result, err := c.CallBundle(ctx, []*types.Transaction{tx}, targetBlock)
	if err != nil {
		return err
	}
	for _, r := range result.Results {
		if r.Error != "" || r.Revert != "" {
			return fmt.Errorf("%w: tx %s: %s %s", ErrBundleFailed, r.TxHash, r.Error, r.Revert)
		}
	}
	c.logger.Info("Relay preflight passed", "bundle", result.BundleHash, "gasUsed", result.TotalGasUsed, "block", targetBlock)
	return nil
}

func (c *Client) send(ctx context.Context, request Request) (*CallBundleResponse, error) {
	reqBody, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewBuffer(reqBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}

	signature, err := SignPayload(reqBody, c.authKey)
	if err != nil {
		return nil, fmt.Errorf("failed to sign request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Flashbots-Signature", signature)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK && len(respBody) == 0 {
		return nil, fmt.Errorf("relay returned %s", resp.Status)
	}

	var result CallBundleResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response (%s): %w", resp.Status, err)
	}
	return &result, nil
}

// SignPayload builds the X-Flashbots-Signature header value:
// address:signature over the EIP-191 hash of the hex keccak of body.
func SignPayload(body []byte, key *ecdsa.PrivateKey) (string, error) {
	hexHash := []byte(hexutil.Encode(crypto.Keccak256(body)))
	sig, err := crypto.Sign(accounts.TextHash(hexHash), key)
	if err != nil {
		return "", fmt.Errorf("sign error: %w", err)
	}
	if sig[64] < 27 {
		sig[64] += 27
	}

	addr := crypto.PubkeyToAddress(key.PublicKey)
	return fmt.Sprintf("%s:%s", addr.Hex(), hexutil.Encode(sig)), nil
}
