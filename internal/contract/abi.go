package contract

const CONTRACT_NAME = "ArbitrageFlashLoan"

// Contract ABIs
const (
	// ArbitrageFlashLoanABI is the current constructor(address, address[]) shape.
	ArbitrageFlashLoanABI = `[
		{
			"inputs": [
				{"internalType": "address", "name": "_addressProvider", "type": "address"},
				{"internalType": "address[]", "name": "_routers", "type": "address[]"}
			],
			"stateMutability": "nonpayable",
			"type": "constructor"
		},
		{
			"inputs": [
				{"internalType": "address", "name": "loanToken", "type": "address"},
				{"internalType": "uint256", "name": "loanAmount", "type": "uint256"},
				{"internalType": "address[]", "name": "targets", "type": "address[]"},
				{"internalType": "bytes[]", "name": "payloads", "type": "bytes[]"},
				{"internalType": "address[]", "name": "tokensToApprove", "type": "address[]"}
			],
			"name": "executeArb",
			"outputs": [],
			"stateMutability": "nonpayable",
			"type": "function"
		},
		{
			"inputs": [],
			"name": "owner",
			"outputs": [{"internalType": "address", "name": "", "type": "address"}],
			"stateMutability": "view",
			"type": "function"
		}
	]`

	// ArbitrageFlashLoanLegacyABI is the older constructor(address) shape.
	ArbitrageFlashLoanLegacyABI = `[
		{
			"inputs": [
				{"internalType": "address", "name": "_addressProvider", "type": "address"}
			],
			"stateMutability": "nonpayable",
			"type": "constructor"
		},
		{
			"inputs": [
				{"internalType": "address", "name": "loanToken", "type": "address"},
				{"internalType": "uint256", "name": "loanAmount", "type": "uint256"},
				{"internalType": "address[]", "name": "targets", "type": "address[]"},
				{"internalType": "bytes[]", "name": "payloads", "type": "bytes[]"},
				{"internalType": "address[]", "name": "tokensToApprove", "type": "address[]"}
			],
			"name": "executeArb",
			"outputs": [],
			"stateMutability": "nonpayable",
			"type": "function"
		}
	]`
)
