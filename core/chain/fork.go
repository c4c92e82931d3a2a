package chain

import (
	"sort"

	"github.com/CharlotteKetzenberg/blockchain-voting/core"
)

var forkLog = core.NewLogger("fork")

// Classification of an incoming block relative to the local chain.
type Classification int

const (
	// Extension: the block's previous hash references the current tip.
	Extension Classification = iota
	// Fork: the previous hash references an earlier block in local history.
	Fork
	// Disjoint: the previous hash matches nothing we know. The block cannot
	// be integrated.
	Disjoint
)

func (c Classification) String() string {
	switch c {
	case Extension:
		return "extension"
	case Fork:
		return "fork"
	default:
		return "disjoint"
	}
}

// ForkResolver integrates externally delivered blocks and chains into one
// ledger. All outcomes are result values: an invalid inbound chain is
// discarded without affecting local state, never thrown back at the
// gateway.
type ForkResolver struct {
	ledger *Ledger

	// OnChainReplaced is invoked with the new chain after a successful
	// replacement, outside the ledger lock. Used by the node to persist.
	OnChainReplaced func([]Block)
}

func NewForkResolver(ledger *Ledger) *ForkResolver {
	return &ForkResolver{ledger: ledger}
}

// Classify places an incoming block relative to local history.
func (f *ForkResolver) Classify(b *Block) Classification {
	local := f.ledger.Snapshot()
	if b.PreviousHash == local[len(local)-1].Hash {
		return Extension
	}
	for i := len(local) - 2; i >= 0; i-- {
		if local[i].Hash == b.PreviousHash {
			return Fork
		}
	}
	return Disjoint
}

// FindCommonAncestor walks both chains from the tail backward, comparing
// (index, hash) pairs, and returns the index of the last block they share.
// Chains whose genesis blocks differ belong to different networks: they
// have no common ancestor and must never be merged.
func FindCommonAncestor(a, b []Block) (int, error) {
	i := min(len(a), len(b)) - 1
	for ; i >= 0; i-- {
		if a[i].Index == b[i].Index && a[i].Hash == b[i].Hash {
			return i, nil
		}
	}
	return -1, ErrNoCommonAncestor
}

// Resolve evaluates candidate chains in arrival order. Each candidate is
// validated independently; one that fails validation is discarded without
// affecting the evaluation of the rest. Only a strictly longer, fully
// valid candidate ever wins; ties always preserve the existing chain.
// Returns whether any replacement occurred.
func (f *ForkResolver) Resolve(candidates [][]Block) bool {
	replaced := false
	for _, candidate := range candidates {
		ok, err := f.ledger.ReplaceChain(candidate)
		if err != nil {
			forkLog.Printf("Discarding candidate chain: %s\n", err)
			continue
		}
		if ok {
			replaced = true
			if f.OnChainReplaced != nil {
				f.OnChainReplaced(f.ledger.Snapshot())
			}
		}
	}
	return replaced
}

// VoteConflict is a detected double vote: the same (voter, election) pair
// voting for different candidates on the two sides of a fork.
type VoteConflict struct {
	VoterID    string
	ElectionID string
	CandidateA string
	CandidateB string
}

type voteKey struct {
	voterID    string
	electionID string
}

// collectVotes maps (voter, election) to the first candidate that pair
// voted for within the branch.
func collectVotes(blocks []Block) map[voteKey]string {
	votes := make(map[voteKey]string)
	for i := range blocks {
		for _, tx := range blocks[i].Data {
			if tx.Type != TxTypeVote {
				continue
			}
			k := voteKey{voterID: tx.Vote.VoterID, electionID: tx.Vote.ElectionID}
			if _, seen := votes[k]; !seen {
				votes[k] = tx.Vote.Candidate
			}
		}
	}
	return votes
}

// DetectConflicts compares the two branches above their common ancestor and
// reports every (voter, election) pair that voted for different candidates
// on each side. Reporting only: conflicts never block chain replacement.
// Under the longest-chain rule a longer forked chain wins even when it
// contains a detected double vote; this is a documented gap of the
// consensus layer, not a double-vote prevention guarantee.
func DetectConflicts(a, b []Block) ([]VoteConflict, error) {
	ancestor, err := FindCommonAncestor(a, b)
	if err != nil {
		return nil, err
	}
	return detectConflictsFrom(ancestor, a, b), nil
}

func detectConflictsFrom(ancestor int, a, b []Block) []VoteConflict {
	votesA := collectVotes(a[ancestor+1:])
	votesB := collectVotes(b[ancestor+1:])

	var conflicts []VoteConflict
	for k, candidateA := range votesA {
		candidateB, ok := votesB[k]
		if ok && candidateA != candidateB {
			conflicts = append(conflicts, VoteConflict{
				VoterID:    k.voterID,
				ElectionID: k.electionID,
				CandidateA: candidateA,
				CandidateB: candidateB,
			})
		}
	}

	// Stable report order for logs and tests.
	sort.Slice(conflicts, func(i, j int) bool {
		if conflicts[i].VoterID != conflicts[j].VoterID {
			return conflicts[i].VoterID < conflicts[j].VoterID
		}
		return conflicts[i].ElectionID < conflicts[j].ElectionID
	})
	return conflicts
}

// SubmitBlock routes one externally delivered block into the ledger.
// Extensions are validated and appended; a fork means the sender should be
// asked for its full chain; disjoint blocks are discarded. Duplicate and
// out-of-order delivery is tolerated: a replayed block simply fails the
// linkage check and is dropped.
func (f *ForkResolver) SubmitBlock(b Block) (Classification, error) {
	class := f.Classify(&b)
	switch class {
	case Extension:
		if err := f.ledger.AppendBlock(b); err != nil {
			forkLog.Printf("Rejecting extension block index=%d: %s\n", b.Index, err)
			return class, err
		}
	case Fork:
		forkLog.Printf("Fork detected: block index=%d builds on earlier history, full chain comparison required\n", b.Index)
	case Disjoint:
		forkLog.Printf("Discarding disjoint block index=%d hash=%s\n", b.Index, b.Hash)
	}
	return class, nil
}

// SubmitChain routes one externally delivered candidate chain through the
// longest-chain rule. Chains from a different network (no common ancestor)
// are discarded outright. Detected double votes are logged before
// resolution and do not influence it.
func (f *ForkResolver) SubmitChain(candidate []Block) bool {
	local := f.ledger.Snapshot()

	ancestor, err := FindCommonAncestor(local, candidate)
	if err != nil {
		forkLog.Printf("Discarding chain from a different network: %s\n", err)
		return false
	}

	for _, c := range detectConflictsFrom(ancestor, local, candidate) {
		forkLog.Printf("Double vote across fork: voter=%s election=%s local=%q candidate=%q\n",
			c.VoterID, c.ElectionID, c.CandidateA, c.CandidateB)
	}

	return f.Resolve([][]Block{candidate})
}
