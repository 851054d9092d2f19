package ethereum

import (
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	dexdomain "github.com/fd1az/market-data-engine/business/dex/domain"
)

// Topic-0 hashes of the six event signatures the engine subscribes to.
var (
	TopicV2Sync            = crypto.Keccak256Hash([]byte("Sync(uint112,uint112)"))
	TopicV3Swap            = crypto.Keccak256Hash([]byte("Swap(address,address,int256,int256,uint160,uint128,int24)"))
	TopicV3Mint            = crypto.Keccak256Hash([]byte("Mint(address,address,int24,int24,uint128,uint256,uint256)"))
	TopicV3Burn            = crypto.Keccak256Hash([]byte("Burn(address,int24,int24,uint128,uint256,uint256)"))
	TopicV4Swap            = crypto.Keccak256Hash([]byte("Swap(bytes32,address,int128,int128,uint160,uint128,int24,uint24)"))
	TopicV4ModifyLiquidity = crypto.Keccak256Hash([]byte("ModifyLiquidity(bytes32,address,int24,int24,int256,int256)"))
)

// SubscribedTopics is the topic filter for the single log stream.
func SubscribedTopics() []common.Hash {
	return []common.Hash{
		TopicV2Sync,
		TopicV3Swap,
		TopicV3Mint,
		TopicV3Burn,
		TopicV4Swap,
		TopicV4ModifyLiquidity,
	}
}

// ParseLog decodes a raw log into a typed pool event. Unknown topics
// return an error; the caller drops and logs them.
func ParseLog(chainID uint64, lg types.Log, receivedAt time.Time) (dexdomain.PoolEvent, error) {
	if len(lg.Topics) == 0 {
		return nil, fmt.Errorf("log without topics")
	}

	base := dexdomain.EventBase{
		ChainID: chainID,
		Address: lg.Address,
		Meta: dexdomain.EventMetadata{
			BlockNumber:            lg.BlockNumber,
			TransactionIndex:       lg.TxIndex,
			LogIndex:               lg.Index,
			TransactionHash:        lg.TxHash,
			BlockReceivedTimestamp: receivedAt,
		},
	}

	switch lg.Topics[0] {
	case TopicV2Sync:
		return parseV2Sync(base, lg)
	case TopicV3Swap:
		return parseV3Swap(base, lg)
	case TopicV3Mint:
		return parseV3Mint(base, lg)
	case TopicV3Burn:
		return parseV3Burn(base, lg)
	case TopicV4Swap:
		return parseV4Swap(base, lg)
	case TopicV4ModifyLiquidity:
		return parseV4ModifyLiquidity(base, lg)
	}
	return nil, fmt.Errorf("unknown topic %s", lg.Topics[0].Hex())
}

// Sync(uint112 reserve0, uint112 reserve1) — both in data.
func parseV2Sync(base dexdomain.EventBase, lg types.Log) (dexdomain.PoolEvent, error) {
	if len(lg.Data) < 64 {
		return nil, fmt.Errorf("sync data too short: %d", len(lg.Data))
	}
	return &dexdomain.SyncEvent{
		EventBase: base,
		Reserve0:  word(lg.Data, 0),
		Reserve1:  word(lg.Data, 1),
	}, nil
}

// Swap(address indexed sender, address indexed recipient, int256 amount0,
// int256 amount1, uint160 sqrtPriceX96, uint128 liquidity, int24 tick).
func parseV3Swap(base dexdomain.EventBase, lg types.Log) (dexdomain.PoolEvent, error) {
	if len(lg.Data) < 5*32 {
		return nil, fmt.Errorf("v3 swap data too short: %d", len(lg.Data))
	}
	return &dexdomain.SwapV3Event{
		EventBase:    base,
		Amount0:      signedWord(lg.Data, 0),
		Amount1:      signedWord(lg.Data, 1),
		SqrtPriceX96: word(lg.Data, 2),
		Liquidity:    word(lg.Data, 3),
		Tick:         int32(signedWord(lg.Data, 4).Int64()),
	}, nil
}

// Mint(address sender, address indexed owner, int24 indexed tickLower,
// int24 indexed tickUpper, uint128 amount, uint256 amount0, uint256 amount1).
func parseV3Mint(base dexdomain.EventBase, lg types.Log) (dexdomain.PoolEvent, error) {
	if len(lg.Topics) < 4 || len(lg.Data) < 2*32 {
		return nil, fmt.Errorf("v3 mint log malformed")
	}
	return &dexdomain.MintV3Event{
		EventBase: base,
		TickLower: topicInt24(lg.Topics[2]),
		TickUpper: topicInt24(lg.Topics[3]),
		Amount:    word(lg.Data, 1),
	}, nil
}

// Burn(address indexed owner, int24 indexed tickLower, int24 indexed
// tickUpper, uint128 amount, uint256 amount0, uint256 amount1).
func parseV3Burn(base dexdomain.EventBase, lg types.Log) (dexdomain.PoolEvent, error) {
	if len(lg.Topics) < 4 || len(lg.Data) < 32 {
		return nil, fmt.Errorf("v3 burn log malformed")
	}
	return &dexdomain.BurnV3Event{
		EventBase: base,
		TickLower: topicInt24(lg.Topics[2]),
		TickUpper: topicInt24(lg.Topics[3]),
		Amount:    word(lg.Data, 0),
	}, nil
}

// Swap(bytes32 indexed id, address indexed sender, int128 amount0,
// int128 amount1, uint160 sqrtPriceX96, uint128 liquidity, int24 tick,
// uint24 fee).
func parseV4Swap(base dexdomain.EventBase, lg types.Log) (dexdomain.PoolEvent, error) {
	if len(lg.Topics) < 2 || len(lg.Data) < 6*32 {
		return nil, fmt.Errorf("v4 swap log malformed")
	}
	return &dexdomain.SwapV4Event{
		EventBase:    base,
		PoolKey:      lg.Topics[1],
		SqrtPriceX96: word(lg.Data, 2),
		Liquidity:    word(lg.Data, 3),
		Tick:         int32(signedWord(lg.Data, 4).Int64()),
		Fee:          uint32(word(lg.Data, 5).Uint64()),
	}, nil
}

// ModifyLiquidity(bytes32 indexed id, address indexed sender, int24
// tickLower, int24 tickUpper, int256 liquidityDelta, int256 salt).
func parseV4ModifyLiquidity(base dexdomain.EventBase, lg types.Log) (dexdomain.PoolEvent, error) {
	if len(lg.Topics) < 2 || len(lg.Data) < 3*32 {
		return nil, fmt.Errorf("v4 modify-liquidity log malformed")
	}
	return &dexdomain.ModifyLiquidityV4Event{
		EventBase:      base,
		PoolKey:        lg.Topics[1],
		TickLower:      int32(signedWord(lg.Data, 0).Int64()),
		TickUpper:      int32(signedWord(lg.Data, 1).Int64()),
		LiquidityDelta: signedWord(lg.Data, 2),
	}, nil
}

// word extracts the i-th unsigned 32-byte word from log data.
func word(data []byte, i int) *big.Int {
	return new(big.Int).SetBytes(data[i*32 : (i+1)*32])
}

// signedWord extracts the i-th word as a two's-complement signed integer.
func signedWord(data []byte, i int) *big.Int {
	v := word(data, i)
	if v.Bit(255) == 1 {
		mod := new(big.Int).Lsh(big.NewInt(1), 256)
		v.Sub(v, mod)
	}
	return v
}

// topicInt24 decodes an indexed int24 topic.
func topicInt24(topic common.Hash) int32 {
	v := new(big.Int).SetBytes(topic.Bytes())
	if v.Bit(255) == 1 {
		mod := new(big.Int).Lsh(big.NewInt(1), 256)
		v.Sub(v, mod)
	}
	return int32(v.Int64())
}
