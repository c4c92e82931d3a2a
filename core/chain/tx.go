package chain

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Transaction type tags as they appear on the wire.
const (
	TxTypeVote                 = "vote"
	TxTypeElectionRegistration = "election_registration"
	TxTypeElectionEnd          = "election_end"
)

// Vote is a single ballot. The public key and signature are opaque to the
// consensus layer: they are carried and hashed, never verified.
type Vote struct {
	VoterID    string `json:"voter_id"`
	ElectionID string `json:"election_id"`
	Candidate  string `json:"candidate"`
	PublicKey  string `json:"public_key"`
	Signature  string `json:"signature"`
	Timestamp  int64  `json:"timestamp"`
}

// ElectionRegistration opens an election on the ledger.
type ElectionRegistration struct {
	ElectionID string   `json:"election_id"`
	Title      string   `json:"title"`
	Candidates []string `json:"candidates"`
	StartTime  int64    `json:"start_time"`
}

// ElectionEnd closes an election on the ledger.
type ElectionEnd struct {
	ElectionID string `json:"election_id"`
	EndTime    int64  `json:"end_time"`
}

// Transaction is a closed tagged variant: exactly one payload pointer is
// set, matching Type. Decoding an unrecognized or incomplete variant fails
// with a SerializationError instead of silently skipping it.
type Transaction struct {
	Type         string
	Vote         *Vote
	Registration *ElectionRegistration
	End          *ElectionEnd
}

// NewVoteTx wraps a vote payload in its transaction envelope.
func NewVoteTx(v Vote) Transaction {
	return Transaction{Type: TxTypeVote, Vote: &v}
}

// NewElectionRegistrationTx wraps an election registration payload.
func NewElectionRegistrationTx(r ElectionRegistration) Transaction {
	return Transaction{Type: TxTypeElectionRegistration, Registration: &r}
}

// NewElectionEndTx wraps an election end payload.
func NewElectionEndTx(e ElectionEnd) Transaction {
	return Transaction{Type: TxTypeElectionEnd, End: &e}
}

// Clone returns a deep copy of the transaction, so mutating the clone
// never reaches back into a block already on a chain.
func (tx Transaction) Clone() Transaction {
	switch tx.Type {
	case TxTypeVote:
		if tx.Vote != nil {
			v := *tx.Vote
			tx.Vote = &v
		}
	case TxTypeElectionRegistration:
		if tx.Registration != nil {
			r := *tx.Registration
			r.Candidates = append([]string(nil), r.Candidates...)
			tx.Registration = &r
		}
	case TxTypeElectionEnd:
		if tx.End != nil {
			e := *tx.End
			tx.End = &e
		}
	}
	return tx
}

func (tx Transaction) MarshalJSON() ([]byte, error) {
	switch tx.Type {
	case TxTypeVote:
		return json.Marshal(struct {
			Type string `json:"type"`
			*Vote
		}{tx.Type, tx.Vote})
	case TxTypeElectionRegistration:
		return json.Marshal(struct {
			Type string `json:"type"`
			*ElectionRegistration
		}{tx.Type, tx.Registration})
	case TxTypeElectionEnd:
		return json.Marshal(struct {
			Type string `json:"type"`
			*ElectionEnd
		}{tx.Type, tx.End})
	}
	return nil, &SerializationError{What: fmt.Sprintf("transaction of type %q", tx.Type)}
}

// Required wire fields per variant, including the tag itself.
var txRequiredFields = map[string][]string{
	TxTypeVote:                 {"voter_id", "election_id", "candidate", "public_key", "signature", "timestamp"},
	TxTypeElectionRegistration: {"election_id", "title", "candidates", "start_time"},
	TxTypeElectionEnd:          {"election_id", "end_time"},
}

func (tx *Transaction) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return &SerializationError{What: "transaction", Err: err}
	}

	rawType, ok := fields["type"]
	if !ok {
		return &SerializationError{What: "transaction: missing type tag"}
	}
	var typ string
	if err := json.Unmarshal(rawType, &typ); err != nil {
		return &SerializationError{What: "transaction type tag", Err: err}
	}

	required, ok := txRequiredFields[typ]
	if !ok {
		return &SerializationError{What: fmt.Sprintf("transaction of unknown type %q", typ)}
	}
	for _, name := range required {
		if _, ok := fields[name]; !ok {
			return &SerializationError{What: fmt.Sprintf("%s transaction: missing field %q", typ, name)}
		}
	}

	decoded := Transaction{Type: typ}
	var err error
	switch typ {
	case TxTypeVote:
		v := &Vote{}
		err = json.Unmarshal(data, v)
		decoded.Vote = v
	case TxTypeElectionRegistration:
		r := &ElectionRegistration{}
		err = json.Unmarshal(data, r)
		decoded.Registration = r
	case TxTypeElectionEnd:
		e := &ElectionEnd{}
		err = json.Unmarshal(data, e)
		decoded.End = e
	}
	if err != nil {
		return &SerializationError{What: fmt.Sprintf("%s transaction", typ), Err: err}
	}

	*tx = decoded
	return nil
}

// appendEnvelope writes the canonical encoding of the transaction: a JSON
// object with keys in fixed alphabetical order, so two implementations hash
// identical logical content to identical bytes.
func (tx *Transaction) appendEnvelope(buf *bytes.Buffer) {
	switch tx.Type {
	case TxTypeVote:
		v := tx.Vote
		fmt.Fprintf(buf, `{"candidate":%s,"election_id":%s,"public_key":%s,"signature":%s,"timestamp":%d,"type":"vote","voter_id":%s}`,
			jsonString(v.Candidate), jsonString(v.ElectionID), jsonString(v.PublicKey), jsonString(v.Signature), v.Timestamp, jsonString(v.VoterID))
	case TxTypeElectionRegistration:
		r := tx.Registration
		fmt.Fprintf(buf, `{"candidates":%s,"election_id":%s,"start_time":%d,"title":%s,"type":"election_registration"}`,
			jsonStrings(r.Candidates), jsonString(r.ElectionID), r.StartTime, jsonString(r.Title))
	case TxTypeElectionEnd:
		e := tx.End
		fmt.Fprintf(buf, `{"election_id":%s,"end_time":%d,"type":"election_end"}`,
			jsonString(e.ElectionID), e.EndTime)
	}
}

func jsonString(s string) []byte {
	buf, err := json.Marshal(s)
	if err != nil {
		panic(err)
	}
	return buf
}

func jsonStrings(s []string) []byte {
	if s == nil {
		s = []string{}
	}
	buf, err := json.Marshal(s)
	if err != nil {
		panic(err)
	}
	return buf
}
