package main

import (
	"log"
	"os"

	"github.com/CharlotteKetzenberg/blockchain-voting/cli/cmd"
	"github.com/urfave/cli/v2"
)

func main() {
	dbFlag := &cli.StringFlag{
		Name:  "db",
		Usage: "The path to the votechain database",
		Value: "votechain.db",
	}
	difficultyFlag := &cli.IntFlag{
		Name:  "difficulty",
		Usage: "Required number of leading zeros in a block hash",
		Value: 4,
	}
	batchFlag := &cli.IntFlag{
		Name:  "batch",
		Usage: "Maximum transactions per mined block",
		Value: 1,
	}
	electionFlag := &cli.StringFlag{
		Name:     "election",
		Usage:    "The election id",
		Required: true,
	}

	app := &cli.App{
		Name:                 "votechaind",
		Usage:                "a blockchain-backed voting ledger",
		EnableBashCompletion: true,
		Commands: []*cli.Command{
			{
				Name:   "node",
				Usage:  "runs the votechain node",
				Action: cmd.RunNode,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "port",
						Usage: "The port to run the peer gateway on",
						Value: "8080",
					},
					&cli.StringFlag{
						Name:  "peers",
						Usage: "Comma-separated bootstrap peer URLs",
					},
					&cli.BoolFlag{
						Name:  "miner",
						Usage: "Mine pending transactions",
						Value: true,
					},
					dbFlag, difficultyFlag, batchFlag,
				},
			},
			{
				Name:   "verify",
				Usage:  "re-validates the stored chain",
				Action: cmd.RunVerify,
				Flags:  []cli.Flag{dbFlag, difficultyFlag},
			},
			{
				Name:   "export",
				Usage:  "writes the chain as a JSON document",
				Action: cmd.RunExport,
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "file", Usage: "Output path", Value: "chain.json"},
					dbFlag, difficultyFlag,
				},
			},
			{
				Name:   "import",
				Usage:  "loads and validates a JSON chain document",
				Action: cmd.RunImport,
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "file", Usage: "Input path", Value: "chain.json"},
					dbFlag, difficultyFlag,
				},
			},
			{
				Name:  "election",
				Usage: "election bookkeeping on the local chain",
				Subcommands: []*cli.Command{
					{
						Name:   "create",
						Usage:  "registers a new election",
						Action: cmd.RunElectionCreate,
						Flags: []cli.Flag{
							&cli.StringFlag{Name: "title", Usage: "Election title", Required: true},
							&cli.StringFlag{Name: "candidates", Usage: "Comma-separated candidate names", Required: true},
							dbFlag, difficultyFlag, batchFlag,
						},
					},
					{
						Name:   "vote",
						Usage:  "casts a vote",
						Action: cmd.RunElectionVote,
						Flags: []cli.Flag{
							electionFlag,
							&cli.StringFlag{Name: "candidate", Usage: "Candidate to vote for", Required: true},
							&cli.StringFlag{Name: "voter", Usage: "Voter id (a new one is registered when omitted)"},
							dbFlag, difficultyFlag, batchFlag,
						},
					},
					{
						Name:   "end",
						Usage:  "ends an election and prints the tally",
						Action: cmd.RunElectionEnd,
						Flags:  []cli.Flag{electionFlag, dbFlag, difficultyFlag, batchFlag},
					},
					{
						Name:   "results",
						Usage:  "prints the current tally",
						Action: cmd.RunElectionResults,
						Flags:  []cli.Flag{electionFlag, dbFlag, difficultyFlag, batchFlag},
					},
					{
						Name:   "list",
						Usage:  "lists known elections",
						Action: cmd.RunElectionList,
						Flags:  []cli.Flag{dbFlag, difficultyFlag, batchFlag},
					},
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
