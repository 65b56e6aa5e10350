// Package horizontest provides an in-process Horizon double for tests.
package horizontest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mtlprog/kosh/internal/domain"
	"github.com/mtlprog/kosh/internal/horizon"
)

// Server serves /accounts, /paths/strict-send and /transactions from
// in-memory fixtures and counts the calls it receives.
type Server struct {
	*httptest.Server

	mu           sync.Mutex
	accounts     map[string]horizon.HorizonAccount
	paths        []horizon.HorizonPathRecord
	transactions map[string]horizon.HorizonTransaction
	// AccountStatus, PathStatus and SubmitStatus force an error status when non-zero.
	AccountStatus int
	PathStatus    int
	SubmitStatus  int
	SubmitBody    string
	Submitted     []string

	AccountCalls atomic.Int32
	PathCalls    atomic.Int32
	SubmitCalls  atomic.Int32
	LookupCalls  atomic.Int32
}

// NewServer starts an empty Horizon double. Close it with t.Cleanup.
func NewServer() *Server {
	s := &Server{
		accounts:     make(map[string]horizon.HorizonAccount),
		transactions: make(map[string]horizon.HorizonTransaction),
	}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /accounts/{id}", s.handleAccount)
	mux.HandleFunc("GET /paths/strict-send", s.handlePaths)
	mux.HandleFunc("POST /transactions", s.handleSubmit)
	mux.HandleFunc("GET /transactions/{hash}", s.handleTransaction)
	s.Server = httptest.NewServer(mux)
	return s
}

// Router returns a router whose testnet and mainnet clients both point at s.
func (s *Server) Router() *horizon.Router {
	c := horizon.NewClient(s.URL, 0, time.Millisecond, 5*time.Second)
	return horizon.NewRouter(map[domain.Network]*horizon.Client{
		domain.NetworkTestnet: c,
		domain.NetworkMainnet: c,
	})
}

// SetAccount registers an account fixture.
func (s *Server) SetAccount(acc horizon.HorizonAccount) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[acc.ID] = acc
}

// SetPaths sets the strict-send records returned for any query.
func (s *Server) SetPaths(records []horizon.HorizonPathRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paths = records
}

// SetTransaction registers a transaction returned by GET /transactions/{hash}.
func (s *Server) SetTransaction(tx horizon.HorizonTransaction) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transactions[tx.Hash] = tx
}

// SetSubmitResponse forces POST /transactions to answer status with body.
func (s *Server) SetSubmitResponse(status int, body string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.SubmitStatus, s.SubmitBody = status, body
}

// SubmittedEnvelopes returns a copy of every envelope posted so far.
func (s *Server) SubmittedEnvelopes() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.Submitted...)
}

// Account builds an account fixture with a native balance and optional credit lines.
func Account(id string, sequence string, xlm string, credits ...horizon.HorizonBalance) horizon.HorizonAccount {
	balances := append([]horizon.HorizonBalance{}, credits...)
	balances = append(balances, horizon.HorizonBalance{AssetType: "native", Balance: xlm})
	return horizon.HorizonAccount{ID: id, AccountID: id, Sequence: sequence, Balances: balances}
}

// Credit builds an authorized trustline balance.
func Credit(code, issuer, amount string) horizon.HorizonBalance {
	authorized := true
	t := "credit_alphanum4"
	if len(code) > 4 {
		t = "credit_alphanum12"
	}
	return horizon.HorizonBalance{
		AssetType:    t,
		AssetCode:    code,
		AssetIssuer:  issuer,
		Balance:      amount,
		Limit:        domain.MaxTrustLimit,
		IsAuthorized: &authorized,
	}
}

func (s *Server) handleAccount(w http.ResponseWriter, r *http.Request) {
	s.AccountCalls.Add(1)
	s.mu.Lock()
	status := s.AccountStatus
	acc, ok := s.accounts[r.PathValue("id")]
	s.mu.Unlock()

	if status != 0 {
		w.WriteHeader(status)
		return
	}
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"type":"https://stellar.org/horizon-errors/not_found","title":"Resource Missing","status":404}`))
		return
	}
	writeJSON(w, acc)
}

func (s *Server) handlePaths(w http.ResponseWriter, r *http.Request) {
	s.PathCalls.Add(1)
	s.mu.Lock()
	status := s.PathStatus
	records := s.paths
	s.mu.Unlock()

	if status != 0 {
		w.WriteHeader(status)
		return
	}
	var resp horizon.HorizonPathResponse
	resp.Embedded.Records = records
	if resp.Embedded.Records == nil {
		resp.Embedded.Records = []horizon.HorizonPathRecord{}
	}
	writeJSON(w, resp)
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	s.SubmitCalls.Add(1)
	if err := r.ParseForm(); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	s.mu.Lock()
	s.Submitted = append(s.Submitted, r.PostForm.Get("tx"))
	status, body := s.SubmitStatus, s.SubmitBody
	s.mu.Unlock()

	if status != 0 {
		w.WriteHeader(status)
		w.Write([]byte(body))
		return
	}
	writeJSON(w, horizon.HorizonTransaction{
		Hash:       strings.Repeat("ab", 32),
		Ledger:     4242,
		Successful: true,
	})
}

func (s *Server) handleTransaction(w http.ResponseWriter, r *http.Request) {
	s.LookupCalls.Add(1)
	s.mu.Lock()
	tx, ok := s.transactions[r.PathValue("hash")]
	s.mu.Unlock()

	if !ok {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"title":"Resource Missing","status":404}`))
		return
	}
	writeJSON(w, tx)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
