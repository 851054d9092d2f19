package ethrpc

// ABI fragments for the view surface the engine reads. Only the methods
// listed here are ever called.

const erc20ABI = `[
	{"inputs":[],"name":"name","outputs":[{"type":"string"}],"stateMutability":"view","type":"function"},
	{"inputs":[],"name":"symbol","outputs":[{"type":"string"}],"stateMutability":"view","type":"function"},
	{"inputs":[],"name":"decimals","outputs":[{"type":"uint8"}],"stateMutability":"view","type":"function"}
]`

const v2PairABI = `[
	{"inputs":[],"name":"token0","outputs":[{"type":"address"}],"stateMutability":"view","type":"function"},
	{"inputs":[],"name":"token1","outputs":[{"type":"address"}],"stateMutability":"view","type":"function"},
	{"inputs":[],"name":"getReserves","outputs":[{"type":"uint112","name":"reserve0"},{"type":"uint112","name":"reserve1"},{"type":"uint32","name":"blockTimestampLast"}],"stateMutability":"view","type":"function"},
	{"inputs":[],"name":"factory","outputs":[{"type":"address"}],"stateMutability":"view","type":"function"}
]`

const v2FactoryABI = `[
	{"inputs":[{"type":"address"},{"type":"address"}],"name":"getPair","outputs":[{"type":"address"}],"stateMutability":"view","type":"function"}
]`

const v3PoolABI = `[
	{"inputs":[],"name":"token0","outputs":[{"type":"address"}],"stateMutability":"view","type":"function"},
	{"inputs":[],"name":"token1","outputs":[{"type":"address"}],"stateMutability":"view","type":"function"},
	{"inputs":[],"name":"fee","outputs":[{"type":"uint24"}],"stateMutability":"view","type":"function"},
	{"inputs":[],"name":"tickSpacing","outputs":[{"type":"int24"}],"stateMutability":"view","type":"function"},
	{"inputs":[],"name":"liquidity","outputs":[{"type":"uint128"}],"stateMutability":"view","type":"function"},
	{"inputs":[],"name":"slot0","outputs":[{"type":"uint160","name":"sqrtPriceX96"},{"type":"int24","name":"tick"},{"type":"uint16","name":"observationIndex"},{"type":"uint16","name":"observationCardinality"},{"type":"uint16","name":"observationCardinalityNext"},{"type":"uint8","name":"feeProtocol"},{"type":"bool","name":"unlocked"}],"stateMutability":"view","type":"function"},
	{"inputs":[{"type":"int24"}],"name":"ticks","outputs":[{"type":"uint128","name":"liquidityGross"},{"type":"int128","name":"liquidityNet"},{"type":"uint256","name":"feeGrowthOutside0X128"},{"type":"uint256","name":"feeGrowthOutside1X128"},{"type":"int56","name":"tickCumulativeOutside"},{"type":"uint160","name":"secondsPerLiquidityOutsideX128"},{"type":"uint32","name":"secondsOutside"},{"type":"bool","name":"initialized"}],"stateMutability":"view","type":"function"}
]`

const v3FactoryABI = `[
	{"inputs":[{"type":"address"},{"type":"address"},{"type":"uint24"}],"name":"getPool","outputs":[{"type":"address"}],"stateMutability":"view","type":"function"}
]`

// QuoterV2 quoteExactInputSingle, used for exact V3 quotes.
const quoterV2ABI = `[
	{
		"inputs": [
			{
				"components": [
					{"internalType": "address", "name": "tokenIn", "type": "address"},
					{"internalType": "address", "name": "tokenOut", "type": "address"},
					{"internalType": "uint256", "name": "amountIn", "type": "uint256"},
					{"internalType": "uint24", "name": "fee", "type": "uint24"},
					{"internalType": "uint160", "name": "sqrtPriceLimitX96", "type": "uint160"}
				],
				"internalType": "struct IQuoterV2.QuoteExactInputSingleParams",
				"name": "params",
				"type": "tuple"
			}
		],
		"name": "quoteExactInputSingle",
		"outputs": [
			{"internalType": "uint256", "name": "amountOut", "type": "uint256"},
			{"internalType": "uint160", "name": "sqrtPriceX96After", "type": "uint160"},
			{"internalType": "uint32", "name": "initializedTicksCrossed", "type": "uint32"},
			{"internalType": "uint256", "name": "gasEstimate", "type": "uint256"}
		],
		"stateMutability": "nonpayable",
		"type": "function"
	}
]`

// V4 state-view contract: slot0 and liquidity by pool id.
const v4StateViewABI = `[
	{"inputs":[{"type":"bytes32","name":"poolId"}],"name":"getSlot0","outputs":[{"type":"uint160","name":"sqrtPriceX96"},{"type":"int24","name":"tick"},{"type":"uint24","name":"protocolFee"},{"type":"uint24","name":"lpFee"}],"stateMutability":"view","type":"function"},
	{"inputs":[{"type":"bytes32","name":"poolId"}],"name":"getLiquidity","outputs":[{"type":"uint128","name":"liquidity"}],"stateMutability":"view","type":"function"}
]`

// Multicall3 tryAggregate.
const multicall3ABI = `[
	{
		"inputs": [
			{"internalType": "bool", "name": "requireSuccess", "type": "bool"},
			{
				"components": [
					{"internalType": "address", "name": "target", "type": "address"},
					{"internalType": "bytes", "name": "callData", "type": "bytes"}
				],
				"internalType": "struct Multicall3.Call[]",
				"name": "calls",
				"type": "tuple[]"
			}
		],
		"name": "tryAggregate",
		"outputs": [
			{
				"components": [
					{"internalType": "bool", "name": "success", "type": "bool"},
					{"internalType": "bytes", "name": "returnData", "type": "bytes"}
				],
				"internalType": "struct Multicall3.Result[]",
				"name": "returnData",
				"type": "tuple[]"
			}
		],
		"stateMutability": "payable",
		"type": "function"
	}
]`
