package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/mtlprog/kosh/internal/bridge"
	"github.com/mtlprog/kosh/internal/domain"
	"github.com/mtlprog/kosh/internal/export"
	"github.com/mtlprog/kosh/internal/journal"
	"github.com/mtlprog/kosh/internal/ledger"
	"github.com/mtlprog/kosh/internal/pipeline"
	"github.com/mtlprog/kosh/internal/trustline"
)

// Accounts reads account state from the ledger.
type Accounts interface {
	GetAccountSnapshot(ctx context.Context, address string, network domain.Network) (domain.AccountSnapshot, error)
	GetAccountAssets(ctx context.Context, address string, network domain.Network) (ledger.AccountAssets, error)
}

// Quotes finds strict-send quotes.
type Quotes interface {
	FindStrictSendQuote(ctx context.Context, sourceAmount string, destAsset domain.Asset, network domain.Network) (*domain.Quote, error)
}

// Trustlines answers trustline existence questions.
type Trustlines interface {
	CheckTrustline(ctx context.Context, address string, asset domain.Asset, network domain.Network) (trustline.TrustlineCheck, error)
	Check(ctx context.Context, address string, asset domain.Asset, network domain.Network) (trustline.Status, error)
}

// Runner executes pipeline runs.
type Runner interface {
	Pay(ctx context.Context, req pipeline.PayRequest, progress pipeline.ProgressFunc) domain.RunResult
	Swap(ctx context.Context, req pipeline.SwapRequest, progress pipeline.ProgressFunc) domain.RunResult
	ChangeTrust(ctx context.Context, req pipeline.ChangeTrustRequest, progress pipeline.ProgressFunc) domain.RunResult
	Bridge(ctx context.Context, req pipeline.BridgeRequest, progress pipeline.ProgressFunc) domain.RunResult
	InFlight(network domain.Network, account string) bool
}

// History serves journaled runs.
type History interface {
	Get(ctx context.Context, id string) (domain.RunResult, error)
	History(ctx context.Context, network domain.Network, account string, limit int) ([]domain.RunResult, error)
	Since(ctx context.Context, since time.Time, limit int) ([]domain.RunResult, error)
}

// Deps are the services the handler serves.
type Deps struct {
	Network    domain.Network
	Accounts   Accounts
	Quotes     Quotes
	Trustlines Trustlines
	Registry   *bridge.Registry
	Runner     Runner
	History    History
	Hub        *Hub
}

// Handler provides HTTP endpoints for the transaction pipeline.
type Handler struct {
	network    domain.Network
	accounts   Accounts
	quotes     Quotes
	trustlines Trustlines
	registry   *bridge.Registry
	runner     Runner
	history    History
	hub        *Hub
}

// NewHandler creates a new API handler. A nil Hub disables progress streaming.
func NewHandler(d Deps) *Handler {
	return &Handler{
		network:    d.Network,
		accounts:   d.Accounts,
		quotes:     d.Quotes,
		trustlines: d.Trustlines,
		registry:   d.Registry,
		runner:     d.Runner,
		history:    d.History,
		hub:        d.Hub,
	}
}

// GetAccount handles GET /api/v1/accounts/{address}.
func (h *Handler) GetAccount(w http.ResponseWriter, r *http.Request) {
	network, ok := h.networkParam(w, r)
	if !ok {
		return
	}
	snap, err := h.accounts.GetAccountSnapshot(r.Context(), r.PathValue("address"), network)
	if err != nil {
		writeLookupError(w, "get account", err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// GetAssets handles GET /api/v1/accounts/{address}/assets.
func (h *Handler) GetAssets(w http.ResponseWriter, r *http.Request) {
	network, ok := h.networkParam(w, r)
	if !ok {
		return
	}
	assets, err := h.accounts.GetAccountAssets(r.Context(), r.PathValue("address"), network)
	if err != nil {
		writeLookupError(w, "get assets", err)
		return
	}
	writeJSON(w, http.StatusOK, assets)
}

// GetTrustline handles GET /api/v1/accounts/{address}/trustlines/{asset}.
func (h *Handler) GetTrustline(w http.ResponseWriter, r *http.Request) {
	network, ok := h.networkParam(w, r)
	if !ok {
		return
	}
	asset, err := domain.ParseAsset(r.PathValue("asset"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	check, err := h.trustlines.CheckTrustline(r.Context(), r.PathValue("address"), asset, network)
	if err != nil {
		writeLookupError(w, "check trustline", err)
		return
	}
	writeJSON(w, http.StatusOK, check)
}

// GetTrustlineStatus handles GET /api/v1/accounts/{address}/trustlines/{asset}/status.
func (h *Handler) GetTrustlineStatus(w http.ResponseWriter, r *http.Request) {
	network, ok := h.networkParam(w, r)
	if !ok {
		return
	}
	asset, err := domain.ParseAsset(r.PathValue("asset"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	st, err := h.trustlines.Check(r.Context(), r.PathValue("address"), asset, network)
	if err != nil {
		writeLookupError(w, "trustline status", err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

type quoteResponse struct {
	Found bool          `json:"found"`
	Quote *domain.Quote `json:"quote,omitempty"`
}

// GetQuote handles GET /api/v1/quote?amount=&asset=.
func (h *Handler) GetQuote(w http.ResponseWriter, r *http.Request) {
	network, ok := h.networkParam(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	asset, err := domain.ParseAsset(q.Get("asset"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	quote, err := h.quotes.FindStrictSendQuote(r.Context(), q.Get("amount"), asset, network)
	if err != nil {
		writeLookupError(w, "find quote", err)
		return
	}
	writeJSON(w, http.StatusOK, quoteResponse{Found: quote != nil, Quote: quote})
}

// ListChains handles GET /api/v1/bridge/chains.
func (h *Handler) ListChains(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.registry.Chains())
}

// ListTokens handles GET /api/v1/bridge/tokens?chain=.
func (h *Handler) ListTokens(w http.ResponseWriter, r *http.Request) {
	if chain := r.URL.Query().Get("chain"); chain != "" {
		writeJSON(w, http.StatusOK, h.registry.TokensFor(chain))
		return
	}
	writeJSON(w, http.StatusOK, h.registry.Tokens())
}

// EstimateFees handles GET /api/v1/bridge/fees?amount=.
func (h *Handler) EstimateFees(w http.ResponseWriter, r *http.Request) {
	fees, err := h.registry.EstimateFees(r.URL.Query().Get("amount"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, fees)
}

// GetRun handles GET /api/v1/runs/{id}.
func (h *Handler) GetRun(w http.ResponseWriter, r *http.Request) {
	run, err := h.history.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, journal.ErrNotFound) {
			writeError(w, http.StatusNotFound, "run not found")
			return
		}
		slog.Error("failed to get run", "id", r.PathValue("id"), "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, run)
}

// ListAccountRuns handles GET /api/v1/accounts/{address}/runs.
func (h *Handler) ListAccountRuns(w http.ResponseWriter, r *http.Request) {
	network, ok := h.networkParam(w, r)
	if !ok {
		return
	}
	runs, err := h.history.History(r.Context(), network, r.PathValue("address"), limitParam(r, 30, 365))
	if err != nil {
		slog.Error("failed to list runs", "address", r.PathValue("address"), "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, runs)
}

// ExportRuns handles GET /api/v1/runs/export.xlsx?since=YYYY-MM-DD.
func (h *Handler) ExportRuns(w http.ResponseWriter, r *http.Request) {
	now := time.Now().UTC()
	since := now.AddDate(0, 0, -30)
	if s := r.URL.Query().Get("since"); s != "" {
		d, err := time.Parse("2006-01-02", s)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid date format, expected YYYY-MM-DD")
			return
		}
		since = d
	}

	runs, err := h.history.Since(r.Context(), since, limitParam(r, 1000, 5000))
	if err != nil {
		slog.Error("failed to list runs for export", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="runs-`+now.Format("20060102")+`.xlsx"`)
	if err := export.WriteXLSX(w, runs, now); err != nil {
		slog.Error("failed to write runs workbook", "error", err)
	}
}

// networkParam reads ?network=, falling back to the configured network.
func (h *Handler) networkParam(w http.ResponseWriter, r *http.Request) (domain.Network, bool) {
	s := r.URL.Query().Get("network")
	if s == "" {
		return h.network, true
	}
	n, err := domain.ParseNetwork(s)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return "", false
	}
	return n, true
}

func limitParam(r *http.Request, def, maxLimit int) int {
	if l := r.URL.Query().Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 {
			return min(n, maxLimit)
		}
	}
	return def
}

// writeLookupError maps a read-path error to its HTTP status.
func writeLookupError(w http.ResponseWriter, op string, err error) {
	kind := domain.ClassifyError(err)
	switch kind {
	case domain.KindInvalidIntent, domain.KindAccountNotFound:
		writeError(w, statusForKind(kind), err.Error())
	case domain.KindLedgerUnavailable:
		slog.Warn("ledger unavailable", "op", op, "error", err)
		writeError(w, http.StatusServiceUnavailable, "ledger unavailable")
	default:
		slog.Error("request failed", "op", op, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		slog.Error("failed to marshal JSON response", "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(data); err != nil {
		slog.Warn("failed to write HTTP response body", "error", err)
		return
	}
	_, _ = w.Write([]byte("\n"))
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
