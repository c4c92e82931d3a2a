package cmd

import (
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	"github.com/CharlotteKetzenberg/blockchain-voting/core"
	"github.com/CharlotteKetzenberg/blockchain-voting/core/chain"
	"github.com/CharlotteKetzenberg/blockchain-voting/core/voting"
	"github.com/urfave/cli/v2"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// openVoting builds a voting system over the stored chain, with a local
// miner for the blocks the election commands produce.
func openVoting(cmdCtx *cli.Context) (*voting.System, *chain.Archive, *chain.Ledger, func(), error) {
	ledger, archive, db, err := openLedger(cmdCtx.String("db"), cmdCtx.Int("difficulty"))
	if err != nil {
		return nil, nil, nil, nil, err
	}

	miner := chain.NewMiner(ledger, cmdCtx.Int("batch"))
	system := voting.NewSystem(ledger, miner)
	return system, archive, ledger, func() { db.Close() }, nil
}

func persist(archive *chain.Archive, ledger *chain.Ledger) error {
	return archive.SaveChain(ledger.Snapshot())
}

func RunElectionCreate(cmdCtx *cli.Context) error {
	system, archive, ledger, closeDB, err := openVoting(cmdCtx)
	if err != nil {
		return err
	}
	defer closeDB()

	candidates := []string{}
	for _, c := range strings.Split(cmdCtx.String("candidates"), ",") {
		if c = strings.TrimSpace(c); c != "" {
			candidates = append(candidates, c)
		}
	}
	if len(candidates) < 2 {
		return fmt.Errorf("an election needs at least two candidates")
	}

	e, err := system.CreateElection(cmdCtx.Context, cmdCtx.String("title"), candidates)
	if err != nil {
		return err
	}
	if err := persist(archive, ledger); err != nil {
		return err
	}

	fmt.Printf("Election created: id=%s title=%q candidates=%v\n", e.ElectionID, e.Title, e.Candidates)
	return nil
}

func RunElectionVote(cmdCtx *cli.Context) error {
	system, archive, ledger, closeDB, err := openVoting(cmdCtx)
	if err != nil {
		return err
	}
	defer closeDB()

	voterID := cmdCtx.String("voter")
	if voterID == "" {
		v := voting.NewVoter()
		fmt.Printf("Registered new voter: %s\n", v.VoterID)
		voterID = v.VoterID
	}
	sum := core.Hash([]byte(voterID))
	voter := voting.Voter{VoterID: voterID, PublicKey: hex.EncodeToString(sum[:])}

	err = system.CastVote(cmdCtx.Context, voter, cmdCtx.String("election"), cmdCtx.String("candidate"))
	if err != nil {
		return err
	}
	if err := persist(archive, ledger); err != nil {
		return err
	}

	fmt.Printf("Vote recorded in block #%d\n", ledger.Tip().Index)
	return nil
}

func RunElectionEnd(cmdCtx *cli.Context) error {
	system, archive, ledger, closeDB, err := openVoting(cmdCtx)
	if err != nil {
		return err
	}
	defer closeDB()

	results, err := system.EndElection(cmdCtx.Context, cmdCtx.String("election"))
	if err != nil {
		return err
	}
	if err := persist(archive, ledger); err != nil {
		return err
	}

	printResults(results)
	return nil
}

func RunElectionResults(cmdCtx *cli.Context) error {
	system, _, _, closeDB, err := openVoting(cmdCtx)
	if err != nil {
		return err
	}
	defer closeDB()

	results, err := system.Results(cmdCtx.String("election"))
	if err != nil {
		return err
	}
	printResults(results)
	return nil
}

func RunElectionList(cmdCtx *cli.Context) error {
	system, _, _, closeDB, err := openVoting(cmdCtx)
	if err != nil {
		return err
	}
	defer closeDB()

	for _, e := range system.ListElections() {
		state := "active"
		if !e.Active {
			state = "ended"
		}
		fmt.Printf("%s  %-24q %s  candidates=%v\n", e.ElectionID, e.Title, state, e.Candidates)
	}
	return nil
}

func printResults(results map[string]int) {
	candidates := make([]string, 0, len(results))
	for c := range results {
		candidates = append(candidates, c)
	}
	sort.Strings(candidates)

	p := message.NewPrinter(language.English)
	for _, c := range candidates {
		p.Printf("%-24s %d votes\n", c, results[c])
	}
}
