// Package voting is the application layer on top of the vote ledger. It
// keeps election bookkeeping: registrations, ballots, tallies. Consensus
// knows nothing of these rules; everything here only produces and consumes
// transactions.
package voting

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/CharlotteKetzenberg/blockchain-voting/core"
	"github.com/CharlotteKetzenberg/blockchain-voting/core/chain"
	"github.com/google/uuid"
)

var votingLog = core.NewLogger("voting")

var (
	ErrUnknownElection  = errors.New("voting: unknown election")
	ErrElectionClosed   = errors.New("voting: election is not active")
	ErrUnknownCandidate = errors.New("voting: unknown candidate")
	ErrAlreadyVoted     = errors.New("voting: voter has already cast a vote")
)

// Voter is a participant. The public key is a hash-derived stand-in, and
// votes are "signed" by hashing their canonical content: the consensus
// layer treats both as opaque strings and never verifies them
// cryptographically.
type Voter struct {
	VoterID   string
	PublicKey string
}

func NewVoter() Voter {
	id := uuid.NewString()
	sum := core.Hash([]byte(id))
	return Voter{
		VoterID:   id,
		PublicKey: hex.EncodeToString(sum[:]),
	}
}

// CastVote builds a vote transaction for the given election.
func (v Voter) CastVote(electionID, candidate string) chain.Transaction {
	vote := chain.Vote{
		VoterID:    v.VoterID,
		ElectionID: electionID,
		Candidate:  candidate,
		PublicKey:  v.PublicKey,
		Timestamp:  time.Now().UnixMilli(),
	}
	sum := core.Hash([]byte(fmt.Sprintf("%s|%s|%s|%s|%d",
		vote.VoterID, vote.ElectionID, vote.Candidate, vote.PublicKey, vote.Timestamp)))
	vote.Signature = hex.EncodeToString(sum[:])
	return chain.NewVoteTx(vote)
}

// Election is the bookkeeping view of one election.
type Election struct {
	ElectionID string
	Title      string
	Candidates []string
	StartTime  int64
	EndTime    int64
	Active     bool
}

func (e *Election) hasCandidate(candidate string) bool {
	for _, c := range e.Candidates {
		if c == candidate {
			return true
		}
	}
	return false
}

// System manages elections recorded on a shared ledger. It is an explicit
// context object: the ledger and miner are passed in, never reached through
// process-wide state.
type System struct {
	mu        sync.Mutex
	ledger    *chain.Ledger
	miner     *chain.Miner
	elections map[string]*Election
}

// NewSystem builds a voting system over an existing ledger, rebuilding the
// election registry from the chain's registration and end transactions.
func NewSystem(ledger *chain.Ledger, miner *chain.Miner) *System {
	s := &System{
		ledger:    ledger,
		miner:     miner,
		elections: make(map[string]*Election),
	}
	s.rebuildFromChain()
	return s
}

func (s *System) rebuildFromChain() {
	for _, b := range s.ledger.Snapshot() {
		for _, tx := range b.Data {
			s.applyTx(tx)
		}
	}
}

func (s *System) applyTx(tx chain.Transaction) {
	switch tx.Type {
	case chain.TxTypeElectionRegistration:
		r := tx.Registration
		s.elections[r.ElectionID] = &Election{
			ElectionID: r.ElectionID,
			Title:      r.Title,
			Candidates: append([]string(nil), r.Candidates...),
			StartTime:  r.StartTime,
			Active:     true,
		}
	case chain.TxTypeElectionEnd:
		if e, ok := s.elections[tx.End.ElectionID]; ok {
			e.Active = false
			e.EndTime = tx.End.EndTime
		}
	}
}

// mine drives the miner until the queued transaction lands in a block,
// retrying when a concurrent append steals the tip.
func (s *System) mine(ctx context.Context) error {
	for {
		_, err := s.miner.MineSingle(ctx)
		if errors.Is(err, chain.ErrStaleTip) {
			continue
		}
		return err
	}
}

// CreateElection registers a new election on the ledger and mines the
// registration block.
func (s *System) CreateElection(ctx context.Context, title string, candidates []string) (*Election, error) {
	reg := chain.ElectionRegistration{
		ElectionID: uuid.NewString(),
		Title:      title,
		Candidates: append([]string(nil), candidates...),
		StartTime:  time.Now().UnixMilli(),
	}

	s.ledger.AddTransaction(chain.NewElectionRegistrationTx(reg))
	if err := s.mine(ctx); err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.applyTx(chain.NewElectionRegistrationTx(reg))
	e := s.elections[reg.ElectionID]
	s.mu.Unlock()

	votingLog.Printf("Election %q registered: id=%s candidates=%v\n", title, reg.ElectionID, candidates)
	return e, nil
}

// Election returns the bookkeeping view for an election id.
func (s *System) Election(electionID string) (*Election, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.elections[electionID]
	return e, ok
}

// ListElections returns all known elections.
func (s *System) ListElections() []*Election {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Election, 0, len(s.elections))
	for _, e := range s.elections {
		out = append(out, e)
	}
	return out
}

// CastVote checks the ballot against the application rules (active
// election, known candidate, no prior on-chain vote), then records and
// mines it. These checks are advisory: a forked chain can still carry a
// conflicting vote past them, which consensus only reports.
func (s *System) CastVote(ctx context.Context, voter Voter, electionID, candidate string) error {
	s.mu.Lock()
	e, ok := s.elections[electionID]
	if !ok {
		s.mu.Unlock()
		return ErrUnknownElection
	}
	if !e.Active {
		s.mu.Unlock()
		return ErrElectionClosed
	}
	if !e.hasCandidate(candidate) {
		s.mu.Unlock()
		return fmt.Errorf("%w: %q", ErrUnknownCandidate, candidate)
	}
	s.mu.Unlock()

	if s.HasVoted(electionID, voter.VoterID) {
		return ErrAlreadyVoted
	}

	s.ledger.AddTransaction(voter.CastVote(electionID, candidate))
	if err := s.mine(ctx); err != nil {
		return err
	}

	votingLog.Printf("Vote for %q by voter %.8s recorded\n", candidate, voter.VoterID)
	return nil
}

// HasVoted scans the chain for a vote by voterID in electionID.
func (s *System) HasVoted(electionID, voterID string) bool {
	for _, b := range s.ledger.Snapshot() {
		for _, tx := range b.Data {
			if tx.Type == chain.TxTypeVote &&
				tx.Vote.ElectionID == electionID &&
				tx.Vote.VoterID == voterID {
				return true
			}
		}
	}
	return false
}

// EndElection closes an election on the ledger and returns the final tally.
func (s *System) EndElection(ctx context.Context, electionID string) (map[string]int, error) {
	s.mu.Lock()
	e, ok := s.elections[electionID]
	if !ok {
		s.mu.Unlock()
		return nil, ErrUnknownElection
	}
	if !e.Active {
		s.mu.Unlock()
		return nil, ErrElectionClosed
	}
	s.mu.Unlock()

	end := chain.ElectionEnd{
		ElectionID: electionID,
		EndTime:    time.Now().UnixMilli(),
	}
	s.ledger.AddTransaction(chain.NewElectionEndTx(end))
	if err := s.mine(ctx); err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.applyTx(chain.NewElectionEndTx(end))
	s.mu.Unlock()

	results, err := s.Results(electionID)
	if err != nil {
		return nil, err
	}
	votingLog.Printf("Election %s ended with results: %v\n", electionID, results)
	return results, nil
}

// Results tallies the chain for an election. The first on-chain vote per
// voter counts; later votes by the same voter are logged and skipped.
func (s *System) Results(electionID string) (map[string]int, error) {
	s.mu.Lock()
	e, ok := s.elections[electionID]
	if !ok {
		s.mu.Unlock()
		return nil, ErrUnknownElection
	}
	candidates := append([]string(nil), e.Candidates...)
	s.mu.Unlock()

	results := make(map[string]int, len(candidates))
	for _, c := range candidates {
		results[c] = 0
	}

	seen := make(map[string]bool)
	for _, b := range s.ledger.Snapshot() {
		for _, tx := range b.Data {
			if tx.Type != chain.TxTypeVote || tx.Vote.ElectionID != electionID {
				continue
			}
			if seen[tx.Vote.VoterID] {
				votingLog.Printf("Double vote on chain for voter %.8s, skipping\n", tx.Vote.VoterID)
				continue
			}
			if _, ok := results[tx.Vote.Candidate]; !ok {
				continue
			}
			seen[tx.Vote.VoterID] = true
			results[tx.Vote.Candidate]++
		}
	}
	return results, nil
}
