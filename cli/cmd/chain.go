package cmd

import (
	"errors"
	"fmt"

	"github.com/CharlotteKetzenberg/blockchain-voting/core/chain"
	"github.com/urfave/cli/v2"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// RunVerify re-validates the stored chain and reports the failing index,
// if any.
func RunVerify(cmdCtx *cli.Context) error {
	ledger, _, db, err := openLedger(cmdCtx.String("db"), cmdCtx.Int("difficulty"))
	if err != nil {
		return err
	}
	defer db.Close()

	p := message.NewPrinter(language.English)
	if err := ledger.Verify(); err != nil {
		var verr *chain.ValidationError
		if errors.As(err, &verr) {
			p.Printf("Chain INVALID at block index %d: %s\n", verr.Index, verr.Reason)
			return cli.Exit("", 1)
		}
		return err
	}

	tip := ledger.Tip()
	p.Printf("Chain OK: %d blocks, tip index=%d hash=%s\n", ledger.Len(), tip.Index, tip.Hash)
	return nil
}

// RunExport writes the chain as one JSON array document.
func RunExport(cmdCtx *cli.Context) error {
	ledger, _, db, err := openLedger(cmdCtx.String("db"), cmdCtx.Int("difficulty"))
	if err != nil {
		return err
	}
	defer db.Close()

	path := cmdCtx.String("file")
	if err := chain.SaveChainDocument(path, ledger.Snapshot()); err != nil {
		return err
	}
	fmt.Printf("Exported %d blocks to %s\n", ledger.Len(), path)
	return nil
}

// RunImport loads a chain document, re-validates it as a whole and installs
// it into the node database.
func RunImport(cmdCtx *cli.Context) error {
	ledger, archive, db, err := openLedger(cmdCtx.String("db"), cmdCtx.Int("difficulty"))
	if err != nil {
		return err
	}
	defer db.Close()

	path := cmdCtx.String("file")
	blocks, err := chain.LoadChainDocument(path)
	if err != nil {
		return err
	}
	if err := ledger.Adopt(blocks); err != nil {
		return fmt.Errorf("imported chain rejected: %w", err)
	}
	if err := archive.SaveChain(blocks); err != nil {
		return err
	}
	fmt.Printf("Imported %d blocks from %s\n", len(blocks), path)
	return nil
}
