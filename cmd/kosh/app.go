package main

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/urfave/cli/v2"

	"github.com/mtlprog/kosh/internal/bridge"
	"github.com/mtlprog/kosh/internal/config"
	"github.com/mtlprog/kosh/internal/database"
	"github.com/mtlprog/kosh/internal/domain"
	"github.com/mtlprog/kosh/internal/horizon"
	"github.com/mtlprog/kosh/internal/journal"
	"github.com/mtlprog/kosh/internal/ledger"
	"github.com/mtlprog/kosh/internal/metrics"
	"github.com/mtlprog/kosh/internal/pipeline"
	"github.com/mtlprog/kosh/internal/quote"
	"github.com/mtlprog/kosh/internal/session"
	"github.com/mtlprog/kosh/internal/signer"
	"github.com/mtlprog/kosh/internal/store"
	"github.com/mtlprog/kosh/internal/submit"
	"github.com/mtlprog/kosh/internal/trustline"
	"github.com/mtlprog/kosh/internal/txbuild"
)

// app holds the services every command shares.
type app struct {
	cfg      config.Config
	network  domain.Network
	identity string

	router     *horizon.Router
	reader     *ledger.Reader
	quotes     *quote.Service
	store      *store.BoltStore
	trustlines *trustline.Service
	registry   *bridge.Registry
	sessions   *session.Manager
	journal    *journal.Service
	promReg    *prometheus.Registry
	metrics    *metrics.Service
	pool       *pgxpool.Pool
}

func newApp(ctx context.Context, c *cli.Context, cfg *config.Config) (*app, error) {
	network, err := networkFlag(c)
	if err != nil {
		return nil, err
	}

	clients := map[domain.Network]*horizon.Client{
		domain.NetworkTestnet: horizon.NewClient(cfg.HorizonURL(domain.NetworkTestnet), cfg.HorizonRetryMax, cfg.HorizonRetryBaseDelay, cfg.HorizonTimeout),
		domain.NetworkMainnet: horizon.NewClient(cfg.HorizonURL(domain.NetworkMainnet), cfg.HorizonRetryMax, cfg.HorizonRetryBaseDelay, cfg.HorizonTimeout),
	}
	router := horizon.NewRouter(clients)

	registry, err := bridge.NewRegistry(cfg.BridgeContractID)
	if err != nil {
		return nil, err
	}

	st, err := store.Open(cfg.StateDir)
	if err != nil {
		return nil, fmt.Errorf("opening state store: %w", err)
	}

	a := &app{
		cfg:      *cfg,
		network:  network,
		identity: c.String("identity"),
		router:   router,
		reader:   ledger.NewReader(router),
		quotes:   quote.NewService(router, cfg.QuoteTTL),
		store:    st,
		registry: registry,
	}
	a.trustlines = trustline.NewService(a.reader, st)

	base := signer.NewClient(cfg.SignerURL, cfg.SignerSignTimeout, cfg.SignerKeyTimeout)
	a.sessions = session.NewManager(network, base, st, a.trustlines)

	a.promReg = prometheus.NewRegistry()
	a.metrics = metrics.NewService(a.promReg)

	if err := a.openJournal(ctx); err != nil {
		a.close()
		return nil, err
	}
	return a, nil
}

// openJournal uses Postgres when DATABASE_URL is set and memory otherwise.
func (a *app) openJournal(ctx context.Context) error {
	if a.cfg.DatabaseURL == "" {
		slog.Warn("DATABASE_URL not set, run history is kept in memory")
		a.journal = journal.NewService(journal.NewMemoryRepository())
		return nil
	}

	pool, err := database.Connect(ctx, a.cfg.DatabaseURL, int32(a.cfg.DatabaseMaxConns))
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	a.pool = pool

	migrationsSub, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("creating migrations sub-fs: %w", err)
	}
	if _, err := database.RunMigrations(ctx, pool, migrationsSub); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	a.journal = journal.NewService(journal.NewPgRepository(pool))
	return nil
}

func (a *app) close() {
	if a.pool != nil {
		a.pool.Close()
	}
	if err := a.store.Close(); err != nil {
		slog.Warn("closing state store", "error", err)
	}
}

// session returns the session of the --identity flag.
func (a *app) session() *session.Session {
	return a.sessions.Get(a.identity)
}

// orchestrator wires a pipeline that signs as the current session.
func (a *app) orchestrator() *pipeline.Orchestrator {
	return pipeline.New(pipeline.Config{
		Reader:      a.reader,
		Quoter:      a.quotes,
		Trustlines:  a.trustlines,
		Builder:     txbuild.NewBuilder(a.registry, nil),
		Registry:    a.registry,
		Signer:      a.session().Signer(),
		Submitter:   submit.NewSubmitter(a.router, 3, 2*time.Second),
		Journal:     a.journal,
		Metrics:     a.metrics,
		SlippageBps: a.cfg.SwapSlippageBps,
	})
}

// account returns the --account flag or the session's wallet address.
func (a *app) account(ctx context.Context, c *cli.Context) (string, error) {
	if acct := c.String("account"); acct != "" {
		return acct, nil
	}
	return a.session().Address(ctx)
}
