package engine

import (
	"math/big"

	"github.com/defistate/defistate-oracle-go/protocols/uniswapv3/oracle"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// PoolID identifies a pool within a State. Mirrored pools use their
// checksummed contract address.
type PoolID string

type PoolMeta struct {
	Name    string         `json:"name"`              // human label
	Address common.Address `json:"address,omitempty"` // zero for pools that are not mirrored from a chain
	Token0  common.Address `json:"token0,omitempty"`
	Token1  common.Address `json:"token1,omitempty"`
	Fee     uint32         `json:"fee,omitempty"`
	Tags    []string       `json:"tags,omitempty"`
}

// PoolState is the oracle of one pool together with the host values needed to
// answer queries against it.
type PoolState struct {
	Meta PoolMeta `json:"meta"`

	// what is the current block of the pool's data?
	SyncedBlockNumber *uint64 `json:"syncedBlockNumber,omitempty"`

	// Time is the host's current time, which may be ahead of the latest
	// observation.
	Time      uint32       `json:"time"`
	Tick      int32        `json:"tick"`
	Liquidity *uint256.Int `json:"liquidity"`

	Oracle oracle.Snapshot `json:"oracle"`

	// Error is populated if this pool is out-of-sync or failed for this block.
	Error string `json:"error,omitempty"`
}

// Observe answers an observe query from the captured state without a live host.
func (p *PoolState) Observe(secondsAgos []uint32) ([]int64, []uint256.Int, error) {
	s := &oracle.State{}
	if err := s.Restore(p.Oracle); err != nil {
		return nil, nil, err
	}
	liquidity := p.Liquidity
	if liquidity == nil {
		liquidity = new(uint256.Int)
	}
	return s.Observe(p.Time, secondsAgos, p.Tick, liquidity)
}

// BlockSummary contains only the essential block information for clients.
type BlockSummary struct {
	Number     *big.Int    `json:"number"`
	Hash       common.Hash `json:"hash"`
	Timestamp  uint64      `json:"timestamp"`
	ReceivedAt int64       `json:"receivedAt"` // The Unix nanosecond timestamp when the mirror started processing the block.
}

// State is the main data structure broadcast to subscribers.
type State struct {
	ChainID   uint64               `json:"chainId"`
	Timestamp uint64               `json:"timestamp"`
	Block     BlockSummary         `json:"block"`
	Pools     map[PoolID]PoolState `json:"pools"`
}

func (state *State) HasErrors() bool {
	for _, p := range state.Pools {
		if p.Error != "" {
			return true
		}
	}
	return false
}

// BlockNumber returns the block number as a uint64, or zero if unset.
func (state *State) BlockNumber() uint64 {
	if state.Block.Number == nil {
		return 0
	}
	return state.Block.Number.Uint64()
}
