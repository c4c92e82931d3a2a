package cmd

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/CharlotteKetzenberg/blockchain-voting/core"
	"github.com/CharlotteKetzenberg/blockchain-voting/core/chain"
	"github.com/CharlotteKetzenberg/blockchain-voting/core/peer"
	"github.com/urfave/cli/v2"
)

var nodeLog = core.NewLogger("node")

// openLedger opens the node database and restores the persisted chain, if
// any. A stored chain that fails validation is rejected as a whole.
func openLedger(dbPath string, difficulty int) (*chain.Ledger, *chain.Archive, *sql.DB, error) {
	db, err := chain.OpenDB(dbPath)
	if err != nil {
		return nil, nil, nil, err
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL;"); err != nil {
		return nil, nil, nil, err
	}

	archive := chain.NewArchive(db)
	ledger := chain.NewLedger(difficulty)

	stored, err := archive.LoadChain()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("loading stored chain: %w", err)
	}
	if len(stored) > 0 {
		if err := ledger.Adopt(stored); err != nil {
			return nil, nil, nil, fmt.Errorf("stored chain failed validation: %w", err)
		}
		nodeLog.Printf("Restored chain of %d blocks from %s\n", len(stored), dbPath)
	}

	return ledger, archive, db, nil
}

func RunNode(cmdCtx *cli.Context) error {
	port := cmdCtx.String("port")
	dbPath := cmdCtx.String("db")
	bootstrapPeers := cmdCtx.String("peers")
	runMiner := cmdCtx.Bool("miner")
	difficulty := cmdCtx.Int("difficulty")
	batch := cmdCtx.Int("batch")

	ledger, archive, db, err := openLedger(dbPath, difficulty)
	if err != nil {
		return err
	}
	defer db.Close()

	resolver := chain.NewForkResolver(ledger)
	resolver.OnChainReplaced = func(blocks []chain.Block) {
		if err := archive.SaveChain(blocks); err != nil {
			nodeLog.Printf("Failed to persist replaced chain: %s\n", err)
		}
	}

	// Peer set: bootstrap flag plus whatever we remembered from last run.
	peers := []string{}
	for _, addr := range strings.Split(bootstrapPeers, ",") {
		if addr = strings.TrimSpace(addr); addr != "" {
			peers = append(peers, addr)
		}
	}
	cache, err := chain.LoadDataStore[chain.PeerStore](db, "peers")
	if err != nil {
		return err
	}

	pcore := peer.NewPeerCore(peer.Config{
		Listen:       "0.0.0.0:" + port,
		ExternalAddr: "http://127.0.0.1:" + port,
		Peers:        peers,
	}, ledger, resolver)
	for _, addr := range cache.Peers {
		pcore.AddPeer(addr)
	}

	miner := chain.NewMiner(ledger, batch)
	miner.OnBlockMined = func(b chain.Block) {
		pcore.GossipBlock(b)
		if err := archive.SaveChain(ledger.Snapshot()); err != nil {
			nodeLog.Printf("Failed to persist chain: %s\n", err)
		}
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if runMiner {
		go miner.Run(ctx)
	}

	server := peer.NewServer(pcore)
	go func() {
		if err := server.Start(); err != nil {
			nodeLog.Printf("Peer server stopped: %s\n", err)
			cancel()
		}
	}()

	<-ctx.Done()
	nodeLog.Printf("Shutting down\n")

	if err := archive.SaveChain(ledger.Snapshot()); err != nil {
		nodeLog.Printf("Failed to persist chain on shutdown: %s\n", err)
	}
	if err := chain.SaveDataStore(db, "peers", chain.PeerStore{Peers: pcore.Peers()}); err != nil {
		nodeLog.Printf("Failed to persist peer cache: %s\n", err)
	}
	return nil
}
