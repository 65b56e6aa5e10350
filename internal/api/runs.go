package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/mtlprog/kosh/internal/domain"
	"github.com/mtlprog/kosh/internal/pipeline"
)

// maxRequestBody bounds run request bodies.
const maxRequestBody = 64 << 10

var statusByKind = map[domain.ErrorKind]int{
	domain.KindInvalidIntent:      http.StatusBadRequest,
	domain.KindAccountNotFound:    http.StatusNotFound,
	domain.KindLedgerUnavailable:  http.StatusServiceUnavailable,
	domain.KindNoPathAvailable:    http.StatusUnprocessableEntity,
	domain.KindTrustlineMissing:   http.StatusUnprocessableEntity,
	domain.KindStaleSnapshot:      http.StatusConflict,
	domain.KindSigningRejected:    http.StatusForbidden,
	domain.KindSigningUnavailable: http.StatusServiceUnavailable,
	domain.KindSubmissionFailed:   http.StatusUnprocessableEntity,
	domain.KindConcurrentRun:      http.StatusConflict,
}

func statusForKind(kind domain.ErrorKind) int {
	if s, ok := statusByKind[kind]; ok {
		return s
	}
	return http.StatusInternalServerError
}

// Pay handles POST /api/v1/pay.
func (h *Handler) Pay(w http.ResponseWriter, r *http.Request) {
	var req pipeline.PayRequest
	if !decodeRun(w, r, &req) {
		return
	}
	req.Network = h.defaultNetwork(req.Network)
	h.execute(w, r, req.Network, req.Account, func(ctx context.Context, p pipeline.ProgressFunc) domain.RunResult {
		return h.runner.Pay(ctx, req, p)
	})
}

// Swap handles POST /api/v1/swap.
func (h *Handler) Swap(w http.ResponseWriter, r *http.Request) {
	var req pipeline.SwapRequest
	if !decodeRun(w, r, &req) {
		return
	}
	req.Network = h.defaultNetwork(req.Network)
	h.execute(w, r, req.Network, req.Account, func(ctx context.Context, p pipeline.ProgressFunc) domain.RunResult {
		return h.runner.Swap(ctx, req, p)
	})
}

// ChangeTrust handles POST /api/v1/trustlines.
func (h *Handler) ChangeTrust(w http.ResponseWriter, r *http.Request) {
	var req pipeline.ChangeTrustRequest
	if !decodeRun(w, r, &req) {
		return
	}
	req.Network = h.defaultNetwork(req.Network)
	h.execute(w, r, req.Network, req.Account, func(ctx context.Context, p pipeline.ProgressFunc) domain.RunResult {
		return h.runner.ChangeTrust(ctx, req, p)
	})
}

// Bridge handles POST /api/v1/bridge.
func (h *Handler) Bridge(w http.ResponseWriter, r *http.Request) {
	var req pipeline.BridgeRequest
	if !decodeRun(w, r, &req) {
		return
	}
	req.Network = h.defaultNetwork(req.Network)
	h.execute(w, r, req.Network, req.Account, func(ctx context.Context, p pipeline.ProgressFunc) domain.RunResult {
		return h.runner.Bridge(ctx, req, p)
	})
}

// execute runs one pipeline flow, streams its progress to the hub and writes
// the terminal result. A second run for a busy account is refused with 409.
func (h *Handler) execute(w http.ResponseWriter, r *http.Request, network domain.Network, account string,
	fn func(context.Context, pipeline.ProgressFunc) domain.RunResult,
) {
	if h.runner.InFlight(network, account) {
		writeError(w, http.StatusConflict, domain.ErrConcurrentRun.Error())
		return
	}

	progress := func(p domain.Progress) {
		h.hub.Publish(Event{Type: EventProgress, Progress: &p})
	}
	result := fn(r.Context(), progress)
	h.hub.Publish(Event{Type: EventResult, Result: &result})

	status := http.StatusOK
	if !result.Success && result.Error != nil {
		status = statusForKind(result.Error.Kind)
	}
	writeJSON(w, status, result)
}

func (h *Handler) defaultNetwork(n domain.Network) domain.Network {
	if n == "" {
		return h.network
	}
	return n
}

func decodeRun(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	return true
}
