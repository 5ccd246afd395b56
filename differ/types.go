package differ

import (
	"github.com/defistate/defistate-oracle-go/engine"
	"github.com/defistate/defistate-oracle-go/protocols/uniswapv3/oracle"
	"github.com/holiman/uint256"
)

// Logger defines a standard interface for structured, leveled logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// PoolDiff carries the new host values of a pool and the changes to its
// oracle ring.
type PoolDiff struct {
	Meta engine.PoolMeta `json:"meta"`

	// what is the current block of the pool's data?
	SyncedBlockNumber *uint64 `json:"syncedBlockNumber,omitempty"`

	Time      uint32       `json:"time"`
	Tick      int32        `json:"tick"`
	Liquidity *uint256.Int `json:"liquidity"`

	Oracle oracle.Diff `json:"oracle"`

	// Error is populated if this pool is out-of-sync or failed for this block.
	Error string `json:"error,omitempty"`
}

// StateDiff represents a summary of changes FromBlock to ToBlock. Pools that
// appear in the new state are diffed against an empty oracle; pools that
// disappeared are listed in Removed.
type StateDiff struct {
	Timestamp uint64                     `json:"timestamp"`
	FromBlock uint64                     `json:"fromBlock"`
	ToBlock   engine.BlockSummary        `json:"toBlock"`
	Pools     map[engine.PoolID]PoolDiff `json:"pools"`
	Removed   []engine.PoolID            `json:"removed,omitempty"`
}
