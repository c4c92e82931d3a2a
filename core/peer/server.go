package peer

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/CharlotteKetzenberg/blockchain-voting/core"
	"github.com/CharlotteKetzenberg/blockchain-voting/core/chain"
	"github.com/gorilla/mux"
)

var peerServerLog = core.NewLogger("peer-server")

// Server exposes the peer gateway HTTP API:
//
//	POST /peerapi/blocks  submit one block
//	POST /peerapi/chain   submit a candidate chain
//	GET  /peerapi/chain   serve our chain snapshot
//	GET  /peerapi/tip     serve our tip
type Server struct {
	core *PeerCore
}

func NewServer(core *PeerCore) *Server {
	return &Server{core: core}
}

type statusResponse struct {
	Status string `json:"status"`
}

func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/peerapi/blocks", s.handleSubmitBlock).Methods(http.MethodPost)
	r.HandleFunc("/peerapi/chain", s.handleSubmitChain).Methods(http.MethodPost)
	r.HandleFunc("/peerapi/chain", s.handleGetChain).Methods(http.MethodGet)
	r.HandleFunc("/peerapi/tip", s.handleGetTip).Methods(http.MethodGet)
	return r
}

// Start blocks serving the gateway API.
func (s *Server) Start() error {
	server := &http.Server{
		Addr:         s.core.config.Listen,
		Handler:      s.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	peerServerLog.Printf("Peer gateway listening on http://%s\n", s.core.config.Listen)
	return server.ListenAndServe()
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (s *Server) handleSubmitBlock(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "Failed to read request body", http.StatusBadRequest)
		return
	}

	var msg blockMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		http.Error(w, "Invalid JSON payload", http.StatusBadRequest)
		return
	}

	b, err := chain.DecodeBlock(msg.Block)
	if err != nil {
		// Malformed block: reject the submission, keep the node running.
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	s.core.AddPeer(msg.From)

	class, err := s.core.resolver.SubmitBlock(b)
	switch class {
	case chain.Extension:
		if err != nil {
			// Linkage raced or failed; the sender's chain may still be
			// longer than ours.
			go s.core.resolveFork(msg.From)
			writeJSON(w, http.StatusOK, statusResponse{Status: "rejected"})
			return
		}
		writeJSON(w, http.StatusOK, statusResponse{Status: "accepted"})
	case chain.Fork:
		go s.core.resolveFork(msg.From)
		writeJSON(w, http.StatusOK, statusResponse{Status: "fork"})
	default:
		writeJSON(w, http.StatusOK, statusResponse{Status: "disjoint"})
	}
}

func (s *Server) handleSubmitChain(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "Failed to read request body", http.StatusBadRequest)
		return
	}

	candidate, err := chain.DecodeChain(body)
	if err != nil {
		var serr *chain.SerializationError
		if errors.As(err, &serr) {
			http.Error(w, serr.Error(), http.StatusBadRequest)
			return
		}
		http.Error(w, "Invalid chain payload", http.StatusBadRequest)
		return
	}

	if s.core.resolver.SubmitChain(candidate) {
		writeJSON(w, http.StatusOK, statusResponse{Status: "replaced"})
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{Status: "ignored"})
}

func (s *Server) handleGetChain(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.core.ledger.Snapshot())
}

func (s *Server) handleGetTip(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.core.ledger.Tip())
}
