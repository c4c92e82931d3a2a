package chain

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// forkedLedgers builds two ledgers sharing their first two blocks and
// diverging at index 2, with voter "shared" voting on both branches.
func forkedLedgers(t *testing.T, candidateA, candidateB string) (*Ledger, *Ledger) {
	t.Helper()

	a := NewLedger(1)
	mustMine(t, a, testVoteTx("v-common", "e1", "A"))

	b := NewLedger(1)
	require.NoError(t, b.Adopt(a.Snapshot()))

	mustMine(t, a, testVoteTx("shared", "e1", candidateA))
	mustMine(t, b, testVoteTx("shared", "e1", candidateB))
	return a, b
}

// foreignChain mines a short chain on top of a genesis block from another
// network (same shape, different timestamp, different hash).
func foreignChain(t *testing.T, length int) []Block {
	t.Helper()

	genesis := Block{
		Index:        0,
		Timestamp:    1,
		Data:         []Transaction{},
		PreviousHash: GenesisPreviousHash,
	}
	genesis.Hash = ComputeHash(&genesis)

	blocks := []Block{genesis}
	for i := 1; i < length; i++ {
		candidate := Block{
			Index:        uint64(i),
			Timestamp:    int64(i),
			Data:         []Transaction{testVoteTx("vx", "e9", "Z")},
			PreviousHash: blocks[i-1].Hash,
		}
		mined, err := SolveBlock(context.Background(), candidate, 1)
		require.NoError(t, err)
		blocks = append(blocks, *mined)
	}
	return blocks
}

func TestClassify(t *testing.T) {
	l := NewLedger(1)
	mustMine(t, l, testVoteTx("v1", "e1", "A"))
	f := NewForkResolver(l)

	tip := l.Tip()

	extension := Block{Index: 2, Timestamp: 1, Data: []Transaction{testVoteTx("v2", "e1", "B")}, PreviousHash: tip.Hash}
	extension.Hash = ComputeHash(&extension)
	assert.Equal(t, Extension, f.Classify(&extension))

	genesis := l.Snapshot()[0]
	forked := Block{Index: 1, Timestamp: 1, Data: []Transaction{testVoteTx("v2", "e1", "B")}, PreviousHash: genesis.Hash}
	forked.Hash = ComputeHash(&forked)
	assert.Equal(t, Fork, f.Classify(&forked))

	foreign := foreignChain(t, 2)
	assert.Equal(t, Disjoint, f.Classify(&foreign[1]))
}

func TestFindCommonAncestor(t *testing.T) {
	// Chains share the first 2 blocks and diverge at index 2: the common
	// ancestor is index 1.
	a, b := forkedLedgers(t, "A", "B")
	idx, err := FindCommonAncestor(a.Snapshot(), b.Snapshot())
	require.NoError(t, err)
	assert.Equal(t, 1, idx)

	// A chain compared against its own extension: ancestor is the shorter
	// tip.
	extended := NewLedger(1)
	require.NoError(t, extended.Adopt(a.Snapshot()))
	mustMine(t, extended, testVoteTx("v9", "e1", "A"))
	idx, err = FindCommonAncestor(a.Snapshot(), extended.Snapshot())
	require.NoError(t, err)
	assert.Equal(t, a.Len()-1, idx)

	// Different genesis blocks: different networks, no ancestor.
	_, err = FindCommonAncestor(a.Snapshot(), foreignChain(t, 3))
	require.ErrorIs(t, err, ErrNoCommonAncestor)
}

func TestForkTieThenLongerWins(t *testing.T) {
	// Two 3-block chains diverging at index 2: a tie, neither replaces the
	// other.
	a, b := forkedLedgers(t, "A", "B")
	fa := NewForkResolver(a)

	assert.False(t, fa.SubmitChain(b.Snapshot()))
	assert.Equal(t, 3, a.Len())

	// Extend b to length 4: it now replaces a's chain.
	mustMine(t, b, testVoteTx("v9", "e1", "B"))
	assert.True(t, fa.SubmitChain(b.Snapshot()))
	assert.Equal(t, 4, a.Len())
	assert.Equal(t, b.Tip().Hash, a.Tip().Hash)
}

func TestSubmitChainDiscardsDisjoint(t *testing.T) {
	l := NewLedger(1)
	f := NewForkResolver(l)
	before := l.Snapshot()

	// Even a longer foreign chain is rejected: different genesis, never
	// merged.
	assert.False(t, f.SubmitChain(foreignChain(t, 3)))
	assert.Equal(t, before, l.Snapshot())
}

func TestResolveProcessesCandidatesIndependently(t *testing.T) {
	a, b := forkedLedgers(t, "A", "B")
	mustMine(t, b, testVoteTx("v9", "e1", "B"))

	// First candidate is corrupt, second is the valid longer chain: the
	// bad one must not poison the evaluation of the good one.
	corrupt := b.Snapshot()
	corrupt[2].Data[0].Vote.Candidate = "mallory"

	f := NewForkResolver(a)
	replaced := f.Resolve([][]Block{corrupt, b.Snapshot()})
	assert.True(t, replaced)
	assert.Equal(t, b.Tip().Hash, a.Tip().Hash)
}

func TestResolveFiresReplacementHook(t *testing.T) {
	a, b := forkedLedgers(t, "A", "B")
	mustMine(t, b, testVoteTx("v9", "e1", "B"))

	f := NewForkResolver(a)
	var persisted []Block
	f.OnChainReplaced = func(blocks []Block) { persisted = blocks }

	require.True(t, f.Resolve([][]Block{b.Snapshot()}))
	assert.Len(t, persisted, 4)
}

func TestDetectConflicts(t *testing.T) {
	// Same voter, same candidate on both branches: no conflict.
	a, b := forkedLedgers(t, "A", "A")
	conflicts, err := DetectConflicts(a.Snapshot(), b.Snapshot())
	require.NoError(t, err)
	assert.Empty(t, conflicts)

	// Same voter, different candidates: flagged.
	a, b = forkedLedgers(t, "A", "B")
	conflicts, err = DetectConflicts(a.Snapshot(), b.Snapshot())
	require.NoError(t, err)
	require.Len(t, conflicts, 1)
	assert.Equal(t, "shared", conflicts[0].VoterID)
	assert.Equal(t, "e1", conflicts[0].ElectionID)
	assert.Equal(t, "A", conflicts[0].CandidateA)
	assert.Equal(t, "B", conflicts[0].CandidateB)

	// The shared prefix vote (v-common) sits below the ancestor and is
	// never a conflict.
	for _, c := range conflicts {
		assert.NotEqual(t, "v-common", c.VoterID)
	}
}

func TestConflictsNeverBlockReplacement(t *testing.T) {
	// Documented gap: the longer branch wins even though it carries a
	// conflicting vote relative to the discarded one.
	a, b := forkedLedgers(t, "A", "B")
	mustMine(t, b, testVoteTx("v9", "e1", "B"))

	conflicts, err := DetectConflicts(a.Snapshot(), b.Snapshot())
	require.NoError(t, err)
	require.NotEmpty(t, conflicts)

	fa := NewForkResolver(a)
	assert.True(t, fa.SubmitChain(b.Snapshot()))
}

func TestSubmitBlockExtension(t *testing.T) {
	a := NewLedger(1)
	mustMine(t, a, testVoteTx("v1", "e1", "A"))

	// A second node mines the next block and delivers it to us.
	b := NewLedger(1)
	require.NoError(t, b.Adopt(a.Snapshot()))
	mined := mustMine(t, b, testVoteTx("v2", "e1", "B"))

	f := NewForkResolver(a)
	class, err := f.SubmitBlock(*mined)
	require.NoError(t, err)
	assert.Equal(t, Extension, class)
	assert.Equal(t, 3, a.Len())

	// Duplicate delivery is tolerated: the replay no longer links to the
	// tip and is dropped without corrupting state.
	class, err = f.SubmitBlock(*mined)
	assert.Equal(t, Fork, class)
	require.NoError(t, err)
	assert.Equal(t, 3, a.Len())
	require.NoError(t, a.Verify())
}

func TestSubmitBlockRejectsTampered(t *testing.T) {
	a := NewLedger(1)
	mustMine(t, a, testVoteTx("v1", "e1", "A"))

	b := NewLedger(1)
	require.NoError(t, b.Adopt(a.Snapshot()))
	mined := mustMine(t, b, testVoteTx("v2", "e1", "B"))

	tampered := *mined
	tampered.Data[0].Vote.Candidate = "mallory"

	f := NewForkResolver(a)
	_, err := f.SubmitBlock(tampered)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, 2, a.Len())
}
