package chain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMempoolBundleOrder(t *testing.T) {
	m := NewMempool()
	m.Add(testVoteTx("v1", "e1", "A"))
	m.Add(testVoteTx("v2", "e1", "B"))
	m.Add(testVoteTx("v3", "e1", "C"))

	bundle := m.Bundle(2)
	require.Len(t, bundle, 2)
	assert.Equal(t, "v1", bundle[0].Vote.VoterID)
	assert.Equal(t, "v2", bundle[1].Vote.VoterID)
	assert.Equal(t, 1, m.Len())
}

func TestMempoolBundleClampsAndDrains(t *testing.T) {
	m := NewMempool()
	m.Add(testVoteTx("v1", "e1", "A"))

	// max below 1 still dequeues one transaction.
	bundle := m.Bundle(0)
	require.Len(t, bundle, 1)

	// Empty pool yields nil, not a panic or an empty slice loop.
	assert.Nil(t, m.Bundle(5))
}

func TestMempoolRequeuePreservesOrder(t *testing.T) {
	m := NewMempool()
	m.Add(testVoteTx("v1", "e1", "A"))
	m.Add(testVoteTx("v2", "e1", "B"))
	m.Add(testVoteTx("v3", "e1", "C"))

	bundle := m.Bundle(2)
	m.Requeue(bundle)

	// Requeued transactions go back to the front in their original order,
	// ahead of anything still waiting.
	drained := m.Bundle(3)
	require.Len(t, drained, 3)
	assert.Equal(t, "v1", drained[0].Vote.VoterID)
	assert.Equal(t, "v2", drained[1].Vote.VoterID)
	assert.Equal(t, "v3", drained[2].Vote.VoterID)
}
