package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/urfave/cli/v2"

	"github.com/mtlprog/kosh/internal/api"
	"github.com/mtlprog/kosh/internal/config"
	"github.com/mtlprog/kosh/internal/export"
	"github.com/mtlprog/kosh/internal/worker"
)

func serveCommand(cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "run the HTTP API and background workers",
		Action: func(c *cli.Context) error {
			ctx := c.Context
			a, err := newApp(ctx, c, cfg)
			if err != nil {
				return err
			}
			defer a.close()
			return serve(ctx, a)
		},
	}
}

func serve(ctx context.Context, a *app) error {
	ctx, stop := context.WithCancel(ctx)
	defer stop()

	a.promReg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	// Start workers
	reconcileWorker := worker.NewReconcileWorker(a.trustlines, a.metrics, a.cfg.ReconcileInterval)
	go reconcileWorker.Run(ctx)

	if a.cfg.SheetsEnabled() {
		writer, err := export.NewSheetsWriter(ctx, a.cfg.GoogleSheetsID, a.cfg.GoogleCredentialsJSON)
		if err != nil {
			return fmt.Errorf("creating sheets writer: %w", err)
		}
		exportWorker := worker.NewExportWorker(export.NewService(a.journal, writer, a.cfg.ExportWindow), a.cfg.ExportInterval)
		go exportWorker.Run(ctx)
	} else {
		slog.Info("GOOGLE_SHEETS_ID or GOOGLE_CREDENTIALS_JSON not set, sheets export disabled")
	}

	if a.cfg.AdminAPIKey == "" {
		slog.Warn("ADMIN_API_KEY not set, run endpoints are unprotected")
	}

	hub := api.NewHub()
	handler := api.NewHandler(api.Deps{
		Network:    a.network,
		Accounts:   a.reader,
		Quotes:     a.quotes,
		Trustlines: a.trustlines,
		Registry:   a.registry,
		Runner:     a.orchestrator(),
		History:    a.journal,
		Hub:        hub,
	})

	// Start HTTP server
	srv, err := api.NewServer(api.ServerConfig{
		Port:        a.cfg.HTTPPort,
		AdminAPIKey: a.cfg.AdminAPIKey,
		RateLimit:   a.cfg.RateLimit,
		Gatherer:    a.promReg,
	}, handler, hub)
	if err != nil {
		return err
	}

	go func() {
		log.Printf("HTTP server listening on :%s", a.cfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("HTTP server error: %v", err)
			stop()
		}
	}()

	// Wait for shutdown signal
	<-ctx.Done()
	log.Println("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}

	log.Println("Shutdown complete")
	return nil
}
