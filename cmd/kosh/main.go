package main

import (
	"context"
	"embed"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/mtlprog/kosh/internal/config"
	"github.com/mtlprog/kosh/internal/domain"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := config.Load()

	app := &cli.App{
		Name:  "kosh",
		Usage: "build, sign and submit Stellar payments, swaps, trustlines and bridge locks",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "network", Value: string(cfg.Network), Usage: "testnet or mainnet"},
			&cli.StringFlag{Name: "identity", Value: cfg.SignerIdentity, Usage: "signer identity to act as"},
		},
		Commands: []*cli.Command{
			serveCommand(&cfg),
			accountCommand(&cfg),
			assetsCommand(&cfg),
			quoteCommand(&cfg),
			trustlineCommand(&cfg),
			payCommand(&cfg),
			swapCommand(&cfg),
			bridgeCommand(&cfg),
			chainsCommand(&cfg),
			runsCommand(&cfg),
			logoutCommand(&cfg),
		},
	}

	if err := app.RunContext(ctx, os.Args); err != nil {
		log.Fatal(err)
	}
}

// networkFlag resolves the global --network flag.
func networkFlag(c *cli.Context) (domain.Network, error) {
	return domain.ParseNetwork(c.String("network"))
}
