package contract

// DefaultAddress is the deployment the front-end was built against.
const DefaultAddress = "0xa42b1378D1A84b153eB3e3838aE62870A67a40EA"

// MarketplaceABI is the fixed interface of the marketplace contract.
const MarketplaceABI = `[
	{
		"inputs": [{"internalType": "address", "name": "_owner", "type": "address"}],
		"name": "getItemByOwner",
		"outputs": [{"internalType": "uint256[]", "name": "", "type": "uint256[]"}],
		"stateMutability": "view",
		"type": "function"
	},
	{
		"inputs": [],
		"name": "itemCount",
		"outputs": [{"internalType": "uint256", "name": "", "type": "uint256"}],
		"stateMutability": "view",
		"type": "function"
	},
	{
		"inputs": [{"internalType": "uint256", "name": "", "type": "uint256"}],
		"name": "items",
		"outputs": [
			{"internalType": "uint256", "name": "id", "type": "uint256"},
			{"internalType": "string", "name": "name", "type": "string"},
			{"internalType": "uint256", "name": "price", "type": "uint256"},
			{"internalType": "address payable", "name": "seller", "type": "address"},
			{"internalType": "address", "name": "owner", "type": "address"},
			{"internalType": "bool", "name": "isSold", "type": "bool"}
		],
		"stateMutability": "view",
		"type": "function"
	},
	{
		"inputs": [
			{"internalType": "string", "name": "_name", "type": "string"},
			{"internalType": "uint256", "name": "_price", "type": "uint256"}
		],
		"name": "listItem",
		"outputs": [],
		"stateMutability": "nonpayable",
		"type": "function"
	},
	{
		"inputs": [
			{"internalType": "address", "name": "", "type": "address"},
			{"internalType": "uint256", "name": "", "type": "uint256"}
		],
		"name": "ownedItems",
		"outputs": [{"internalType": "uint256", "name": "", "type": "uint256"}],
		"stateMutability": "view",
		"type": "function"
	},
	{
		"inputs": [{"internalType": "uint256", "name": "_id", "type": "uint256"}],
		"name": "purchaseItem",
		"outputs": [],
		"stateMutability": "payable",
		"type": "function"
	},
	{
		"inputs": [
			{"internalType": "uint256", "name": "_id", "type": "uint256"},
			{"internalType": "address", "name": "_to", "type": "address"}
		],
		"name": "transferItem",
		"outputs": [],
		"stateMutability": "nonpayable",
		"type": "function"
	}
]`
