package chain

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/CharlotteKetzenberg/blockchain-voting/core"
)

var ledgerLog = core.NewLogger("ledger")

// GenesisBlock deterministically constructs the fixed first block: index 0,
// timestamp 0, sentinel previous hash, no data, nonce 0. Reproducible, so
// independent nodes start from an identical chain.
func GenesisBlock() Block {
	b := Block{
		Index:        0,
		Timestamp:    0,
		Data:         []Transaction{},
		PreviousHash: GenesisPreviousHash,
		Nonce:        0,
	}
	b.Hash = ComputeHash(&b)
	return b
}

// Ledger is the ordered block sequence plus the pending-transaction pool.
// One mutex guards the chain's structural state: "read tip, validate,
// append or replace" always executes as a single critical section, so a
// local mining completion and an incoming candidate chain can never
// interleave into an inconsistent tip.
type Ledger struct {
	mu         sync.Mutex
	blocks     []Block
	difficulty int
	pool       *Mempool
}

// NewLedger creates a ledger holding only the genesis block and an empty
// pending pool. difficulty is the required count of leading '0' characters
// in a valid block hash.
func NewLedger(difficulty int) *Ledger {
	if difficulty < 0 {
		difficulty = 0
	}
	return &Ledger{
		blocks:     []Block{GenesisBlock()},
		difficulty: difficulty,
		pool:       NewMempool(),
	}
}

func (l *Ledger) Difficulty() int { return l.difficulty }

// AddTransaction queues a transaction for inclusion in a future block.
func (l *Ledger) AddTransaction(tx Transaction) {
	l.pool.Add(tx)
}

// PendingCount returns the number of queued transactions.
func (l *Ledger) PendingCount() int {
	return l.pool.Len()
}

// Tip returns a copy of the most recent block.
func (l *Ledger) Tip() Block {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.blocks[len(l.blocks)-1].Clone()
}

// Len returns the chain length including genesis.
func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.blocks)
}

// Snapshot returns a deep copy of the chain. Mutating the snapshot never
// reaches back into the ledger.
func (l *Ledger) Snapshot() []Block {
	l.mu.Lock()
	defer l.mu.Unlock()
	return CloneChain(l.blocks)
}

// HashMeetsDifficulty reports whether the hash carries the required number
// of leading '0' characters.
func HashMeetsDifficulty(hash string, difficulty int) bool {
	return strings.HasPrefix(hash, strings.Repeat("0", difficulty))
}

// IsValidBlock checks b against its predecessor: sequential index, hash
// linkage, self-consistent hash and the difficulty target. Returns a
// ValidationError carrying the offending index, or nil.
func (l *Ledger) IsValidBlock(b, prev *Block) error {
	if b.Index != prev.Index+1 {
		return &ValidationError{Index: b.Index, Reason: fmt.Sprintf("index %d does not follow %d", b.Index, prev.Index)}
	}
	if b.PreviousHash != prev.Hash {
		return &ValidationError{Index: b.Index, Reason: "previous hash does not match predecessor"}
	}
	if ComputeHash(b) != b.Hash {
		return &ValidationError{Index: b.Index, Reason: "hash does not match block contents"}
	}
	if !HashMeetsDifficulty(b.Hash, l.difficulty) {
		return &ValidationError{Index: b.Index, Reason: fmt.Sprintf("hash does not meet difficulty %d", l.difficulty)}
	}
	return nil
}

// isWellFormedGenesis checks the shape of a chain's first block. The
// difficulty target does not apply to genesis: it is fixed by construction,
// not mined.
func isWellFormedGenesis(b *Block) bool {
	return b.Index == 0 &&
		b.PreviousHash == GenesisPreviousHash &&
		len(b.Data) == 0 &&
		ComputeHash(b) == b.Hash
}

// ValidateChain validates a whole candidate chain: a well-formed genesis
// first, then every adjacent pair, short-circuiting on the first violation.
// The returned ValidationError carries the failing index for diagnostics.
func (l *Ledger) ValidateChain(blocks []Block) error {
	if len(blocks) == 0 {
		return &ValidationError{Index: 0, Reason: "chain is empty"}
	}
	if !isWellFormedGenesis(&blocks[0]) {
		return &ValidationError{Index: 0, Reason: "malformed genesis block"}
	}
	for i := 1; i < len(blocks); i++ {
		if err := l.IsValidBlock(&blocks[i], &blocks[i-1]); err != nil {
			return err
		}
	}
	return nil
}

// Verify re-validates the ledger's own chain.
func (l *Ledger) Verify() error {
	return l.ValidateChain(l.Snapshot())
}

// AppendBlock validates a block against the current tip and appends it
// atomically.
func (l *Ledger) AppendBlock(b Block) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	tip := &l.blocks[len(l.blocks)-1]
	if err := l.IsValidBlock(&b, tip); err != nil {
		return err
	}
	l.blocks = append(l.blocks, b)
	ledgerLog.Printf("Appended block index=%d hash=%s txs=%d\n", b.Index, b.Hash, len(b.Data))
	return nil
}

// ReplaceChain swaps in a candidate chain iff it is fully valid and
// strictly longer than the current chain. The swap is atomic: readers see
// either the old chain or the new one, never a mix. Equal-length candidates
// are always rejected, which keeps replacement deterministic and avoids
// oscillation between equally long competitors.
func (l *Ledger) ReplaceChain(candidate []Block) (bool, error) {
	if err := l.ValidateChain(candidate); err != nil {
		return false, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if len(candidate) <= len(l.blocks) {
		return false, ErrNotLonger
	}

	oldLen := len(l.blocks)
	l.blocks = CloneChain(candidate)
	ledgerLog.Printf("Chain replaced: %d blocks -> %d blocks, tip=%s\n", oldLen, len(l.blocks), l.blocks[len(l.blocks)-1].Hash)
	return true, nil
}

// Adopt installs a persisted chain after full re-validation. Used when
// loading from storage: a chain that fails validation is rejected as a
// whole, with no partial adoption.
func (l *Ledger) Adopt(blocks []Block) error {
	if err := l.ValidateChain(blocks); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.blocks = CloneChain(blocks)
	return nil
}

// MinePending dequeues up to maxPerBlock pending transactions, mines a
// block on top of the current tip and appends it. If the tip moves while
// the search runs (a concurrent append or replacement won the race), the
// transactions go back to the front of the pool and ErrStaleTip is
// returned so the caller can retry; nothing is half-applied. Cancellation
// likewise requeues the bundle and returns ErrMiningCancelled.
func (l *Ledger) MinePending(ctx context.Context, maxPerBlock int) (*Block, error) {
	txs := l.pool.Bundle(maxPerBlock)
	if len(txs) == 0 {
		return nil, ErrEmptyPool
	}

	tip := l.Tip()
	candidate := Block{
		Index:        tip.Index + 1,
		Timestamp:    time.Now().UnixMilli(),
		Data:         txs,
		PreviousHash: tip.Hash,
	}

	mined, err := SolveBlock(ctx, candidate, l.difficulty)
	if err != nil {
		l.pool.Requeue(txs)
		return nil, err
	}

	l.mu.Lock()
	current := &l.blocks[len(l.blocks)-1]
	if current.Hash != tip.Hash {
		l.mu.Unlock()
		l.pool.Requeue(txs)
		return nil, ErrStaleTip
	}
	if err := l.IsValidBlock(mined, current); err != nil {
		l.mu.Unlock()
		l.pool.Requeue(txs)
		return nil, err
	}
	l.blocks = append(l.blocks, *mined)
	l.mu.Unlock()

	ledgerLog.Printf("Mined block index=%d hash=%s txs=%d\n", mined.Index, mined.Hash, len(mined.Data))
	return mined, nil
}
