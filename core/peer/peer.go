// Package peer is the gateway between the consensus core and the network.
// It delivers candidate blocks and chains into the fork resolver and ships
// newly mined blocks outward. The core never blocks on it: gossip is fire
// and forget, and delivery or retry is this layer's concern alone.
package peer

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/CharlotteKetzenberg/blockchain-voting/core"
	"github.com/CharlotteKetzenberg/blockchain-voting/core/chain"
)

var peerLog = core.NewLogger("peer")

type Config struct {
	// Listen is the host:port the gateway serves on.
	Listen string
	// ExternalAddr is the base URL other peers can reach us at, attached to
	// gossiped blocks so receivers know where to fetch our chain from.
	ExternalAddr string
	// Peers are bootstrap peer base URLs.
	Peers []string
}

// PeerCore ties the HTTP gateway to one ledger and fork resolver.
type PeerCore struct {
	config   Config
	ledger   *chain.Ledger
	resolver *chain.ForkResolver
	client   *http.Client

	mu    sync.Mutex
	peers []string
}

func NewPeerCore(config Config, ledger *chain.Ledger, resolver *chain.ForkResolver) *PeerCore {
	return &PeerCore{
		config:   config,
		ledger:   ledger,
		resolver: resolver,
		client:   &http.Client{Timeout: 15 * time.Second},
		peers:    slices.Clone(config.Peers),
	}
}

func (p *PeerCore) Peers() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.peers)
}

func (p *PeerCore) AddPeer(addr string) {
	if addr == "" || addr == p.config.ExternalAddr {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if !slices.Contains(p.peers, addr) {
		p.peers = append(p.peers, addr)
	}
}

// blockMessage is the gossip payload: the block plus the sender's address,
// so a fork can be followed up with a full chain fetch.
type blockMessage struct {
	Block json.RawMessage `json:"block"`
	From  string          `json:"from"`
}

// GossipBlock ships a newly mined block to every known peer, fire and
// forget. Failures are logged and dropped; the longest-chain rule will
// reconcile whatever a peer missed.
func (p *PeerCore) GossipBlock(b chain.Block) {
	raw, err := json.Marshal(b)
	if err != nil {
		peerLog.Printf("Failed to encode block for gossip: %s\n", err)
		return
	}
	msg, err := json.Marshal(blockMessage{Block: raw, From: p.config.ExternalAddr})
	if err != nil {
		peerLog.Printf("Failed to encode gossip message: %s\n", err)
		return
	}

	for _, addr := range p.Peers() {
		go func(addr string) {
			resp, err := p.client.Post(addr+"/peerapi/blocks", "application/json", bytes.NewReader(msg))
			if err != nil {
				peerLog.Printf("Failed to gossip block to %s: %s\n", addr, err)
				return
			}
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
		}(addr)
	}
}

// FetchChain pulls a peer's full chain for fork comparison.
func (p *PeerCore) FetchChain(addr string) ([]chain.Block, error) {
	resp, err := p.client.Get(addr + "/peerapi/chain")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("peer %s returned status %d", addr, resp.StatusCode)
	}

	buf, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	return chain.DecodeChain(buf)
}

// resolveFork fetches the sender's full chain and runs it through the
// longest-chain rule. Called when an inbound block classified as a fork or
// failed to extend the local tip.
func (p *PeerCore) resolveFork(from string) {
	if from == "" {
		return
	}
	remote, err := p.FetchChain(from)
	if err != nil {
		peerLog.Printf("Failed to fetch chain from %s: %s\n", from, err)
		return
	}
	if p.resolver.SubmitChain(remote) {
		peerLog.Printf("Adopted longer chain from %s, new height=%d\n", from, p.ledger.Len())
	}
}
