package relay

type Request struct {
	Jsonrpc string        `json:"jsonrpc"`
	ID      int           `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

type CallBundleParams struct {
	Txs              []string `json:"txs"`
	BlockNumber      string   `json:"blockNumber"`
	StateBlockNumber string   `json:"stateBlockNumber"`
}

type TxResult struct {
	TxHash      string `json:"txHash"`
	FromAddress string `json:"fromAddress"`
	ToAddress   string `json:"toAddress"`
	GasUsed     uint64 `json:"gasUsed"`
	GasPrice    string `json:"gasPrice"`
	Error       string `json:"error,omitempty"`
	Revert      string `json:"revert,omitempty"`
}

type CallBundleResult struct {
	BundleHash       string     `json:"bundleHash"`
	CoinbaseDiff     string     `json:"coinbaseDiff"`
	StateBlockNumber int64      `json:"stateBlockNumber"`
	TotalGasUsed     int64      `json:"totalGasUsed"`
	Results          []TxResult `json:"results"`
}

type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type CallBundleResponse struct {
	Jsonrpc string           `json:"jsonrpc"`
	ID      int              `json:"id"`
	Result  CallBundleResult `json:"result"`
	Error   *RPCError        `json:"error,omitempty"`
}
