package api

import (
	"crypto/subtle"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/middleware/stdlib"
	"github.com/ulule/limiter/v3/drivers/store/memory"
)

// ServerConfig configures NewServer.
type ServerConfig struct {
	Port        string
	AdminAPIKey string
	// RateLimit is a limiter rate such as "30-M". Empty disables limiting.
	RateLimit string
	Gatherer  prometheus.Gatherer
}

// NewServer creates an HTTP server with all routes configured.
func NewServer(cfg ServerConfig, handler *Handler, hub *Hub) (*http.Server, error) {
	mutating, err := mutatingChain(cfg.AdminAPIKey, cfg.RateLimit)
	if err != nil {
		return nil, err
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	mux.HandleFunc("GET /api/v1/accounts/{address}", handler.GetAccount)
	mux.HandleFunc("GET /api/v1/accounts/{address}/assets", handler.GetAssets)
	mux.HandleFunc("GET /api/v1/accounts/{address}/runs", handler.ListAccountRuns)
	mux.HandleFunc("GET /api/v1/accounts/{address}/trustlines/{asset}", handler.GetTrustline)
	mux.HandleFunc("GET /api/v1/accounts/{address}/trustlines/{asset}/status", handler.GetTrustlineStatus)
	mux.HandleFunc("GET /api/v1/quote", handler.GetQuote)
	mux.HandleFunc("GET /api/v1/bridge/chains", handler.ListChains)
	mux.HandleFunc("GET /api/v1/bridge/tokens", handler.ListTokens)
	mux.HandleFunc("GET /api/v1/bridge/fees", handler.EstimateFees)
	mux.HandleFunc("GET /api/v1/runs/export.xlsx", handler.ExportRuns)
	mux.HandleFunc("GET /api/v1/runs/{id}", handler.GetRun)

	mux.Handle("POST /api/v1/pay", mutating(handler.Pay))
	mux.Handle("POST /api/v1/swap", mutating(handler.Swap))
	mux.Handle("POST /api/v1/trustlines", mutating(handler.ChangeTrust))
	mux.Handle("POST /api/v1/bridge", mutating(handler.Bridge))

	if hub != nil {
		mux.HandleFunc("GET /api/v1/ws/runs", hub.ServeWS)
	}
	if cfg.Gatherer != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))
	}

	return &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}, nil
}

// mutatingChain wraps run endpoints with the rate limiter and, when a key is
// configured, bearer authentication.
func mutatingChain(apiKey, rate string) (func(http.HandlerFunc) http.Handler, error) {
	var limit *stdlib.Middleware
	if rate != "" {
		r, err := limiter.NewRateFromFormatted(rate)
		if err != nil {
			return nil, fmt.Errorf("parsing rate limit %q: %w", rate, err)
		}
		limit = stdlib.NewMiddleware(limiter.New(memory.NewStore(), r),
			stdlib.WithLimitReachedHandler(func(w http.ResponseWriter, r *http.Request) {
				writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			}))
	}

	return func(h http.HandlerFunc) http.Handler {
		var next http.Handler = h
		if apiKey != "" {
			next = requireAuth(apiKey, next)
		}
		if limit != nil {
			next = limit.Handler(next)
		}
		return next
	}, nil
}

func requireAuth(apiKey string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth := r.Header.Get("Authorization")
		token := strings.TrimPrefix(auth, "Bearer ")
		if !strings.HasPrefix(auth, "Bearer ") || subtle.ConstantTimeCompare([]byte(token), []byte(apiKey)) != 1 {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}
