package chain

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/CharlotteKetzenberg/blockchain-voting/core"
)

// GenesisPreviousHash is the sentinel previous-hash of the genesis block.
const GenesisPreviousHash = "0000000000000000000000000000000000000000000000000000000000000000"

// Block is a single record of the ledger. Once appended, a block is never
// mutated; any edit invalidates Hash and is detectable.
type Block struct {
	Index        uint64        `json:"index"`
	Timestamp    int64         `json:"timestamp"`
	Data         []Transaction `json:"data"`
	PreviousHash string        `json:"previousHash"`
	Nonce        uint64        `json:"nonce"`
	Hash         string        `json:"hash"`
}

// Envelope builds the canonical encoding of the hashed block fields: a JSON
// object with keys in fixed alphabetical order. Hash itself is excluded.
func (b *Block) Envelope() []byte {
	buf := new(bytes.Buffer)
	buf.WriteString(`{"data":[`)
	for i := range b.Data {
		if i > 0 {
			buf.WriteByte(',')
		}
		b.Data[i].appendEnvelope(buf)
	}
	fmt.Fprintf(buf, `],"index":%d,"nonce":%d,"previousHash":%s,"timestamp":%d}`,
		b.Index, b.Nonce, jsonString(b.PreviousHash), b.Timestamp)
	return buf.Bytes()
}

// ComputeHash returns the SHA-256 digest of the block envelope as a hex
// string. Pure: identical inputs always yield the identical digest.
func ComputeHash(b *Block) string {
	sum := core.Hash(b.Envelope())
	return hex.EncodeToString(sum[:])
}

// LinksTo reports whether b is a well-formed successor of prev: sequential
// index, previous-hash linkage, and a hash that matches the block contents.
func (b *Block) LinksTo(prev *Block) bool {
	return b.Index == prev.Index+1 &&
		b.PreviousHash == prev.Hash &&
		ComputeHash(b) == b.Hash
}

// Clone returns a deep copy of the block, transaction payloads included.
func (b Block) Clone() Block {
	data := make([]Transaction, len(b.Data))
	for i := range b.Data {
		data[i] = b.Data[i].Clone()
	}
	b.Data = data
	return b
}

// CloneChain deep-copies a block sequence.
func CloneChain(blocks []Block) []Block {
	out := make([]Block, len(blocks))
	for i := range blocks {
		out[i] = blocks[i].Clone()
	}
	return out
}

func (b *Block) String() string {
	return fmt.Sprintf("Block #%d [hash=%.8s… prev=%.8s… txs=%d nonce=%d]",
		b.Index, b.Hash, b.PreviousHash, len(b.Data), b.Nonce)
}

var blockRequiredFields = []string{"index", "timestamp", "data", "previousHash", "nonce", "hash"}

// DecodeBlock decodes a block record, requiring every field to be present.
// A structurally incomplete record fails with a SerializationError rather
// than silently substituting defaults.
func DecodeBlock(data []byte) (Block, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return Block{}, &SerializationError{What: "block", Err: err}
	}
	for _, name := range blockRequiredFields {
		if _, ok := fields[name]; !ok {
			return Block{}, &SerializationError{What: fmt.Sprintf("block: missing field %q", name)}
		}
	}

	var b Block
	if err := json.Unmarshal(data, &b); err != nil {
		return Block{}, &SerializationError{What: "block", Err: err}
	}
	return b, nil
}

// DecodeChain decodes a JSON array of block records, all-or-nothing.
func DecodeChain(data []byte) ([]Block, error) {
	var records []json.RawMessage
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, &SerializationError{What: "chain", Err: err}
	}

	blocks := make([]Block, 0, len(records))
	for i, record := range records {
		b, err := DecodeBlock(record)
		if err != nil {
			return nil, &SerializationError{What: fmt.Sprintf("chain record %d", i), Err: err}
		}
		blocks = append(blocks, b)
	}
	return blocks, nil
}
