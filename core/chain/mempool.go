package chain

import (
	"slices"
	"sync"
)

// The mempool holds transactions that have not yet been mined into a block.
// Votes carry no fees, so there is no blockspace auction: transactions are
// dequeued strictly in insertion order.
//
// The pool is synchronized independently of the ledger's chain state. A
// bundle taken for mining is either fully consumed (the block was appended)
// or fully requeued at the front (the search was cancelled or the tip
// moved), so every transaction is dequeued exactly once even under
// concurrent mining calls.
type Mempool struct {
	mu  sync.Mutex
	txs []Transaction
}

func NewMempool() *Mempool {
	return &Mempool{txs: []Transaction{}}
}

// Add appends a transaction to the back of the pool. No semantic validation
// happens here; double-voting and election checks are the application
// layer's responsibility.
func (m *Mempool) Add(tx Transaction) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.txs = append(m.txs, tx)
}

func (m *Mempool) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.txs)
}

// Bundle dequeues up to max transactions from the front of the pool.
// Returns nil when the pool is empty.
func (m *Mempool) Bundle(max int) []Transaction {
	if max < 1 {
		max = 1
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.txs) == 0 {
		return nil
	}
	if max > len(m.txs) {
		max = len(m.txs)
	}

	bundle := slices.Clone(m.txs[:max])
	m.txs = slices.Delete(m.txs, 0, max)
	return bundle
}

// Requeue returns a bundle to the front of the pool, preserving its
// original order.
func (m *Mempool) Requeue(txs []Transaction) {
	if len(txs) == 0 {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.txs = append(slices.Clone(txs), m.txs...)
}
