package chain

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mustMine queues one transaction and mines it onto the ledger.
func mustMine(t *testing.T, l *Ledger, tx Transaction) *Block {
	t.Helper()
	l.AddTransaction(tx)
	b, err := l.MinePending(context.Background(), 1)
	require.NoError(t, err)
	return b
}

func TestGenesisIsDeterministic(t *testing.T) {
	a := NewLedger(2)
	b := NewLedger(2)

	assert.Equal(t, a.Snapshot(), b.Snapshot(), "two ledgers must start from the identical genesis")
	assert.Equal(t, uint64(0), a.Tip().Index)
	assert.Equal(t, GenesisPreviousHash, a.Tip().PreviousHash)
}

func TestGenesisOnlyChainIsValid(t *testing.T) {
	// difficulty=0: the genesis block alone forms a valid chain.
	l := NewLedger(0)
	require.NoError(t, l.Verify())

	// Genesis is exempt from the difficulty prefix, so this holds at any
	// difficulty.
	require.NoError(t, NewLedger(3).Verify())
}

func TestMinePendingMeetsDifficulty(t *testing.T) {
	l := NewLedger(2)
	b := mustMine(t, l, testVoteTx("v1", "e1", "A"))

	assert.True(t, strings.HasPrefix(b.Hash, "00"), "hash %s must start with 00", b.Hash)
	assert.Equal(t, uint64(1), b.Index)
	assert.Equal(t, 2, l.Len())
	assert.Equal(t, 0, l.PendingCount())
	require.NoError(t, l.Verify())
}

func TestMinePendingEmptyPool(t *testing.T) {
	l := NewLedger(1)
	_, err := l.MinePending(context.Background(), 1)
	require.ErrorIs(t, err, ErrEmptyPool)
	assert.Equal(t, 1, l.Len())
}

func TestMinePendingBatches(t *testing.T) {
	l := NewLedger(1)
	for i := 0; i < 5; i++ {
		l.AddTransaction(testVoteTx(fmt.Sprintf("v%d", i), "e1", "A"))
	}

	b, err := l.MinePending(context.Background(), 3)
	require.NoError(t, err)
	assert.Len(t, b.Data, 3)
	assert.Equal(t, 2, l.PendingCount())

	// Insertion order is preserved across the batch boundary.
	assert.Equal(t, "v0", b.Data[0].Vote.VoterID)
	assert.Equal(t, "v2", b.Data[2].Vote.VoterID)
}

func TestTamperedBlockDetectedAtIndex(t *testing.T) {
	l := NewLedger(1)
	mustMine(t, l, testVoteTx("v1", "e1", "A"))
	mustMine(t, l, testVoteTx("v2", "e1", "B"))
	mustMine(t, l, testVoteTx("v3", "e1", "A"))
	require.Equal(t, 4, l.Len())
	require.NoError(t, l.Verify())

	// Flip the vote inside block 2 without recomputing its hash.
	l.blocks[2].Data[0].Vote.Candidate = "mallory"

	err := l.Verify()
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, uint64(2), verr.Index)

	// Block 3 is still internally hash-consistent; the chain is broken at
	// index 2, not at 3.
	b3 := l.blocks[3]
	assert.Equal(t, b3.Hash, ComputeHash(&b3))
}

func TestIsValidBlockRejectsBadLinkage(t *testing.T) {
	l := NewLedger(0)
	tip := l.Tip()

	good := Block{Index: 1, Timestamp: 1, Data: []Transaction{testVoteTx("v1", "e1", "A")}, PreviousHash: tip.Hash}
	good.Hash = ComputeHash(&good)
	require.NoError(t, l.IsValidBlock(&good, &tip))

	badIndex := good
	badIndex.Index = 5
	badIndex.Hash = ComputeHash(&badIndex)
	require.Error(t, l.IsValidBlock(&badIndex, &tip))

	badPrev := good
	badPrev.PreviousHash = GenesisPreviousHash
	badPrev.Hash = ComputeHash(&badPrev)
	require.Error(t, l.IsValidBlock(&badPrev, &tip))

	badHash := good
	badHash.Hash = strings.Repeat("f", 64)
	require.Error(t, l.IsValidBlock(&badHash, &tip))
}

func TestReplaceChainLaw(t *testing.T) {
	local := NewLedger(1)
	mustMine(t, local, testVoteTx("v1", "e1", "A"))

	// Build a competitor from the same genesis.
	other := NewLedger(1)
	mustMine(t, other, testVoteTx("v2", "e1", "B"))

	// Equal length: always rejected.
	ok, err := local.ReplaceChain(other.Snapshot())
	assert.False(t, ok)
	require.ErrorIs(t, err, ErrNotLonger)

	// Strictly longer and valid: accepted, atomically.
	mustMine(t, other, testVoteTx("v3", "e1", "B"))
	ok, err = local.ReplaceChain(other.Snapshot())
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 3, local.Len())
	assert.Equal(t, other.Tip().Hash, local.Tip().Hash)

	// Longer but invalid: rejected without touching local state.
	tampered := other.Snapshot()
	extra := Block{Index: 3, Timestamp: 1, Data: []Transaction{testVoteTx("v4", "e1", "A")}, PreviousHash: tampered[len(tampered)-1].Hash}
	extra.Hash = strings.Repeat("0", 64) // difficulty met, content mismatch
	tampered = append(tampered, extra)

	ok, err = local.ReplaceChain(tampered)
	assert.False(t, ok)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, uint64(3), verr.Index)
	assert.Equal(t, 3, local.Len())
}

func TestValidateChainRejectsEmptyAndBadGenesis(t *testing.T) {
	l := NewLedger(0)

	var verr *ValidationError
	err := l.ValidateChain(nil)
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, uint64(0), verr.Index)

	forged := GenesisBlock()
	forged.PreviousHash = strings.Repeat("1", 64)
	forged.Hash = ComputeHash(&forged)
	err = l.ValidateChain([]Block{forged})
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, uint64(0), verr.Index)
}

func TestAdoptRejectsInvalidChainAsAWhole(t *testing.T) {
	src := NewLedger(1)
	mustMine(t, src, testVoteTx("v1", "e1", "A"))
	mustMine(t, src, testVoteTx("v2", "e1", "B"))

	stored := src.Snapshot()
	stored[1].Data[0].Vote.Candidate = "mallory"

	dst := NewLedger(1)
	err := dst.Adopt(stored)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, uint64(1), verr.Index)
	assert.Equal(t, 1, dst.Len(), "no partial adoption")

	require.NoError(t, dst.Adopt(src.Snapshot()))
	assert.Equal(t, 3, dst.Len())
}

func TestConcurrentMiningConsumesEachTransactionOnce(t *testing.T) {
	const txCount = 24
	l := NewLedger(0)
	for i := 0; i < txCount; i++ {
		l.AddTransaction(testVoteTx(fmt.Sprintf("v%d", i), "e1", "A"))
	}

	done := make(chan struct{})
	worker := func() {
		defer func() { done <- struct{}{} }()
		for {
			_, err := l.MinePending(context.Background(), 1)
			if errors.Is(err, ErrEmptyPool) {
				return
			}
			if errors.Is(err, ErrStaleTip) {
				continue
			}
			assert.NoError(t, err)
		}
	}
	go worker()
	go worker()
	<-done
	<-done

	require.NoError(t, l.Verify())

	seen := map[string]int{}
	for _, b := range l.Snapshot() {
		for _, tx := range b.Data {
			seen[tx.Vote.VoterID]++
		}
	}
	assert.Len(t, seen, txCount)
	for voter, n := range seen {
		assert.Equal(t, 1, n, "voter %s mined %d times", voter, n)
	}
}
