package chain

import (
	"context"
	"errors"
	"time"

	"github.com/CharlotteKetzenberg/blockchain-voting/core"
)

var minerLog = core.NewLogger("miner")

// SolveBlock brute-forces the nonce starting at 0, recomputing the hash
// after each attempt, until the hash meets the difficulty target or the
// context is cancelled. The context is checked once per nonce, so the
// worst-case latency to observe a stop signal is one hash computation.
// The search is unbounded: with a fixed difficulty there is no retargeting
// and no attempt cap.
func SolveBlock(ctx context.Context, b Block, difficulty int) (*Block, error) {
	b.Nonce = 0
	for {
		if ctx.Err() != nil {
			return nil, ErrMiningCancelled
		}
		b.Hash = ComputeHash(&b)
		if HashMeetsDifficulty(b.Hash, difficulty) {
			return &b, nil
		}
		b.Nonce++
	}
}

// MineResult is the outcome of one asynchronous mining search.
type MineResult struct {
	Block *Block
	Err   error
}

// Miner drives the proof-of-work search against one ledger. OnBlockMined is
// the outbound sink: it is invoked with every successfully mined block
// after the ledger append, fire-and-forget; delivery to peers is the
// gateway's concern, not the miner's.
type Miner struct {
	ledger      *Ledger
	maxPerBlock int

	OnBlockMined func(Block)
}

func NewMiner(ledger *Ledger, maxPerBlock int) *Miner {
	if maxPerBlock < 1 {
		maxPerBlock = 1
	}
	return &Miner{
		ledger:      ledger,
		maxPerBlock: maxPerBlock,
	}
}

// MineSingle mines one block synchronously. It blocks the caller until a
// block is mined and appended, or returns ErrEmptyPool, ErrStaleTip or
// ErrMiningCancelled.
func (m *Miner) MineSingle(ctx context.Context) (*Block, error) {
	b, err := m.ledger.MinePending(ctx, m.maxPerBlock)
	if err != nil {
		return nil, err
	}
	if m.OnBlockMined != nil {
		m.OnBlockMined(*b)
	}
	return b, nil
}

// Start runs one mining search as an independent goroutine and delivers
// the outcome on the returned channel. Never blocks the caller.
func (m *Miner) Start(ctx context.Context) <-chan MineResult {
	results := make(chan MineResult, 1)
	go func() {
		b, err := m.MineSingle(ctx)
		results <- MineResult{Block: b, Err: err}
	}()
	return results
}

// Run mines continuously until the context is cancelled: drain the pool,
// wait when it is empty, retry when a concurrent append steals the tip.
func (m *Miner) Run(ctx context.Context) {
	for {
		_, err := m.MineSingle(ctx)
		switch {
		case err == nil:
			// Keep draining the pool.
		case errors.Is(err, ErrStaleTip):
			minerLog.Printf("Tip moved during mining, retrying\n")
		case errors.Is(err, ErrMiningCancelled):
			return
		case errors.Is(err, ErrEmptyPool):
			select {
			case <-ctx.Done():
				return
			case <-time.After(500 * time.Millisecond):
			}
		default:
			minerLog.Printf("Mining failed: %s\n", err)
		}

		if ctx.Err() != nil {
			return
		}
	}
}
