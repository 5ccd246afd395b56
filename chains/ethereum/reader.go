package ethereum

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/defistate/defistate-oracle-go/engine"
	"github.com/defistate/defistate-oracle-go/protocols/uniswapv3/oracle"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/holiman/uint256"
	"golang.org/x/sync/errgroup"
)

const DefaultReadConcurrency = 16

// poolABI covers the oracle-related views of a Uniswap V3 pool.
const poolABI = `[
	{"inputs":[],"name":"slot0","outputs":[
		{"internalType":"uint160","name":"sqrtPriceX96","type":"uint160"},
		{"internalType":"int24","name":"tick","type":"int24"},
		{"internalType":"uint16","name":"observationIndex","type":"uint16"},
		{"internalType":"uint16","name":"observationCardinality","type":"uint16"},
		{"internalType":"uint16","name":"observationCardinalityNext","type":"uint16"},
		{"internalType":"uint8","name":"feeProtocol","type":"uint8"},
		{"internalType":"bool","name":"unlocked","type":"bool"}],
	 "stateMutability":"view","type":"function"},
	{"inputs":[],"name":"liquidity","outputs":[
		{"internalType":"uint128","name":"","type":"uint128"}],
	 "stateMutability":"view","type":"function"},
	{"inputs":[{"internalType":"uint256","name":"","type":"uint256"}],"name":"observations","outputs":[
		{"internalType":"uint32","name":"blockTimestamp","type":"uint32"},
		{"internalType":"int56","name":"tickCumulative","type":"int56"},
		{"internalType":"uint160","name":"secondsPerLiquidityCumulativeX128","type":"uint160"},
		{"internalType":"bool","name":"initialized","type":"bool"}],
	 "stateMutability":"view","type":"function"}
]`

var (
	ErrPoolNotInitialized = errors.New("reader: pool oracle is not initialized")
	ErrUnexpectedOutput   = errors.New("reader: unexpected contract output")
)

// Caller is the part of ethclient.Client the reader depends on.
type Caller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
}

type ReaderConfig struct {
	Caller Caller
	// Concurrency bounds the observations calls in flight per pool.
	Concurrency int
	// Capacity bounds the rings read; zero means oracle.MaxCardinality.
	Capacity uint16
}

func (c *ReaderConfig) validate() error {
	if c.Caller == nil {
		return errors.New("config: Caller cannot be nil")
	}
	if c.Concurrency < 0 {
		return errors.New("config: Concurrency cannot be negative")
	}
	return nil
}

// Reader loads the oracle of live pools at a pinned block.
type Reader struct {
	caller      Caller
	abi         abi.ABI
	concurrency int
	capacity    uint16
}

func NewReader(cfg ReaderConfig) (*Reader, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	parsed, err := abi.JSON(strings.NewReader(poolABI))
	if err != nil {
		return nil, fmt.Errorf("reader: failed to parse pool abi: %w", err)
	}
	if cfg.Concurrency == 0 {
		cfg.Concurrency = DefaultReadConcurrency
	}
	return &Reader{
		caller:      cfg.Caller,
		abi:         parsed,
		concurrency: cfg.Concurrency,
		capacity:    cfg.Capacity,
	}, nil
}

// Head returns the latest block, which pins every read of one sync.
func (r *Reader) Head(ctx context.Context) (engine.BlockSummary, error) {
	header, err := r.caller.HeaderByNumber(ctx, nil)
	if err != nil {
		return engine.BlockSummary{}, fmt.Errorf("reader: failed to fetch head: %w", err)
	}
	return engine.BlockSummary{
		Number:     header.Number,
		Hash:       header.Hash(),
		Timestamp:  header.Time,
		ReceivedAt: time.Now().UnixNano(),
	}, nil
}

type slot0 struct {
	tick            int32
	index           uint16
	cardinality     uint16
	cardinalityNext uint16
}

// ReadPool reads slot0, liquidity and every observation below the pool's
// cardinality at block. The pool's time is the block timestamp.
func (r *Reader) ReadPool(ctx context.Context, meta engine.PoolMeta, block engine.BlockSummary) (engine.PoolState, error) {
	head, err := r.slot0(ctx, meta.Address, block.Number)
	if err != nil {
		return engine.PoolState{}, err
	}
	if head.cardinality == 0 {
		return engine.PoolState{}, fmt.Errorf("%w: %s", ErrPoolNotInitialized, meta.Address)
	}
	liquidity, err := r.liquidity(ctx, meta.Address, block.Number)
	if err != nil {
		return engine.PoolState{}, err
	}

	observations := make([]oracle.Observation, head.cardinality)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)
	for i := range observations {
		g.Go(func() error {
			o, err := r.observation(gctx, meta.Address, uint16(i), block.Number)
			if err != nil {
				return err
			}
			observations[i] = o
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return engine.PoolState{}, err
	}

	snap := oracle.Snapshot{
		Index:           head.index,
		Cardinality:     head.cardinality,
		CardinalityNext: head.cardinalityNext,
	}
	for i, o := range observations {
		if o.Initialized {
			snap.Slots = append(snap.Slots, oracle.Slot{Index: uint16(i), Word: o.Word()})
		}
	}
	if err := snap.Validate(r.capacity); err != nil {
		return engine.PoolState{}, fmt.Errorf("reader: pool %s: %w", meta.Address, err)
	}

	var synced *uint64
	if block.Number != nil {
		n := block.Number.Uint64()
		synced = &n
	}
	return engine.PoolState{
		Meta:              meta,
		SyncedBlockNumber: synced,
		Time:              uint32(block.Timestamp),
		Tick:              head.tick,
		Liquidity:         liquidity,
		Oracle:            snap,
	}, nil
}

func (r *Reader) call(ctx context.Context, to common.Address, block *big.Int, method string, args ...any) ([]any, error) {
	data, err := r.abi.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("reader: failed to pack %s: %w", method, err)
	}
	out, err := r.caller.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, block)
	if err != nil {
		return nil, fmt.Errorf("reader: %s call on %s failed: %w", method, to, err)
	}
	values, err := r.abi.Unpack(method, out)
	if err != nil {
		return nil, fmt.Errorf("reader: failed to unpack %s: %w", method, err)
	}
	return values, nil
}

func (r *Reader) slot0(ctx context.Context, pool common.Address, block *big.Int) (slot0, error) {
	values, err := r.call(ctx, pool, block, "slot0")
	if err != nil {
		return slot0{}, err
	}
	tick, ok1 := values[1].(*big.Int)
	index, ok2 := values[2].(uint16)
	cardinality, ok3 := values[3].(uint16)
	cardinalityNext, ok4 := values[4].(uint16)
	if !ok1 || !ok2 || !ok3 || !ok4 || !tick.IsInt64() {
		return slot0{}, fmt.Errorf("%w: slot0", ErrUnexpectedOutput)
	}
	return slot0{
		tick:            int32(tick.Int64()),
		index:           index,
		cardinality:     cardinality,
		cardinalityNext: cardinalityNext,
	}, nil
}

func (r *Reader) liquidity(ctx context.Context, pool common.Address, block *big.Int) (*uint256.Int, error) {
	values, err := r.call(ctx, pool, block, "liquidity")
	if err != nil {
		return nil, err
	}
	raw, ok := values[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("%w: liquidity", ErrUnexpectedOutput)
	}
	liquidity, overflow := uint256.FromBig(raw)
	if overflow || liquidity.BitLen() > 128 {
		return nil, fmt.Errorf("%w: %s", oracle.ErrLiquidityOutOfRange, raw)
	}
	return liquidity, nil
}

func (r *Reader) observation(ctx context.Context, pool common.Address, index uint16, block *big.Int) (oracle.Observation, error) {
	values, err := r.call(ctx, pool, block, "observations", new(big.Int).SetUint64(uint64(index)))
	if err != nil {
		return oracle.Observation{}, err
	}
	timestamp, ok1 := values[0].(uint32)
	tickCumulative, ok2 := values[1].(*big.Int)
	secondsPerLiquidity, ok3 := values[2].(*big.Int)
	initialized, ok4 := values[3].(bool)
	if !ok1 || !ok2 || !ok3 || !ok4 || !tickCumulative.IsInt64() {
		return oracle.Observation{}, fmt.Errorf("%w: observations(%d)", ErrUnexpectedOutput, index)
	}
	spl, overflow := uint256.FromBig(secondsPerLiquidity)
	if overflow {
		return oracle.Observation{}, fmt.Errorf("%w: observations(%d)", ErrUnexpectedOutput, index)
	}
	return oracle.Observation{
		Timestamp:                         timestamp,
		TickCumulative:                    tickCumulative.Int64(),
		SecondsPerLiquidityCumulativeX128: *spl,
		Initialized:                       initialized,
	}, nil
}
