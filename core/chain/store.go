package chain

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// The chain document store persists the ledger as a single human-inspectable
// JSON array of block records: index, timestamp, data, previousHash, nonce,
// hash. Loading re-validates the whole chain before it is accepted.

// SaveChainDocument writes the chain to path, atomically via a temp file in
// the same directory.
func SaveChainDocument(path string, blocks []Block) error {
	buf, err := json.MarshalIndent(blocks, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding chain document: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".chain-*.json")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(buf); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// LoadChainDocument reads and strictly decodes a chain document. Structural
// problems surface as a SerializationError; validation against the ledger's
// rules is the caller's job (Ledger.Adopt).
func LoadChainDocument(path string) ([]Block, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return DecodeChain(buf)
}
