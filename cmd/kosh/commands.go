package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/mtlprog/kosh/internal/bridge"
	"github.com/mtlprog/kosh/internal/config"
	"github.com/mtlprog/kosh/internal/domain"
	"github.com/mtlprog/kosh/internal/export"
	"github.com/mtlprog/kosh/internal/pipeline"
)

var accountFlag = &cli.StringFlag{Name: "account", Usage: "account address (default: the identity's wallet)"}

// withApp runs fn with a fully wired app and closes it afterwards.
func withApp(cfg *config.Config, fn func(c *cli.Context, a *app) error) cli.ActionFunc {
	return func(c *cli.Context) error {
		a, err := newApp(c.Context, c, cfg)
		if err != nil {
			return err
		}
		defer a.close()
		return fn(c, a)
	}
}

func accountCommand(cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:  "account",
		Usage: "show an account's sequence number and balances",
		Flags: []cli.Flag{accountFlag},
		Action: withApp(cfg, func(c *cli.Context, a *app) error {
			acct, err := a.account(c.Context, c)
			if err != nil {
				return err
			}
			snap, err := a.reader.GetAccountSnapshot(c.Context, acct, a.network)
			if err != nil {
				return err
			}
			return printJSON(snap)
		}),
	}
}

func assetsCommand(cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:  "assets",
		Usage: "list an account's assets",
		Flags: []cli.Flag{accountFlag},
		Action: withApp(cfg, func(c *cli.Context, a *app) error {
			acct, err := a.account(c.Context, c)
			if err != nil {
				return err
			}
			assets, err := a.reader.GetAccountAssets(c.Context, acct, a.network)
			if err != nil {
				return err
			}
			return printJSON(assets)
		}),
	}
}

func quoteCommand(cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:  "quote",
		Usage: "quote a strict-send swap from XLM",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "amount", Required: true, Usage: "XLM to send"},
			&cli.StringFlag{Name: "asset", Required: true, Usage: "destination asset CODE:ISSUER"},
		},
		Action: withApp(cfg, func(c *cli.Context, a *app) error {
			asset, err := domain.ParseAsset(c.String("asset"))
			if err != nil {
				return err
			}
			q, err := a.quotes.FindStrictSendQuote(c.Context, c.String("amount"), asset, a.network)
			if err != nil {
				return err
			}
			if q == nil {
				return cli.Exit(domain.ErrNoPathAvailable.Error(), 1)
			}
			return printJSON(q)
		}),
	}
}

func trustlineCommand(cfg *config.Config) *cli.Command {
	assetFlag := &cli.StringFlag{Name: "asset", Required: true, Usage: "asset CODE:ISSUER"}
	return &cli.Command{
		Name:  "trustline",
		Usage: "check, add or remove trustlines",
		Subcommands: []*cli.Command{
			{
				Name:  "check",
				Usage: "check whether an account trusts an asset",
				Flags: []cli.Flag{accountFlag, assetFlag},
				Action: withApp(cfg, func(c *cli.Context, a *app) error {
					acct, err := a.account(c.Context, c)
					if err != nil {
						return err
					}
					asset, err := domain.ParseAsset(c.String("asset"))
					if err != nil {
						return err
					}
					check, err := a.trustlines.CheckTrustline(c.Context, acct, asset, a.network)
					if err != nil {
						return err
					}
					return printJSON(check)
				}),
			},
			{
				Name:  "add",
				Usage: "create or update a trustline",
				Flags: []cli.Flag{accountFlag, assetFlag, &cli.StringFlag{Name: "limit", Usage: "trust limit (default: maximum)"}},
				Action: withApp(cfg, func(c *cli.Context, a *app) error {
					return changeTrust(c, a, c.String("limit"))
				}),
			},
			{
				Name:  "remove",
				Usage: "remove a trustline with a zero balance",
				Flags: []cli.Flag{accountFlag, assetFlag},
				Action: withApp(cfg, func(c *cli.Context, a *app) error {
					return changeTrust(c, a, "0")
				}),
			},
		},
	}
}

func changeTrust(c *cli.Context, a *app, limit string) error {
	acct, err := a.account(c.Context, c)
	if err != nil {
		return err
	}
	asset, err := domain.ParseAsset(c.String("asset"))
	if err != nil {
		return err
	}
	return printRun(a.orchestrator().ChangeTrust(c.Context, pipeline.ChangeTrustRequest{
		Network: a.network,
		Account: acct,
		Asset:   asset,
		Limit:   limit,
	}, printProgress))
}

func payCommand(cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:  "pay",
		Usage: "send XLM",
		Flags: []cli.Flag{
			accountFlag,
			&cli.StringFlag{Name: "to", Required: true, Usage: "destination address"},
			&cli.StringFlag{Name: "amount", Required: true, Usage: "XLM to send"},
			&cli.StringFlag{Name: "memo", Usage: "text memo"},
		},
		Action: withApp(cfg, func(c *cli.Context, a *app) error {
			acct, err := a.account(c.Context, c)
			if err != nil {
				return err
			}
			return printRun(a.orchestrator().Pay(c.Context, pipeline.PayRequest{
				Network:     a.network,
				Account:     acct,
				Destination: c.String("to"),
				Amount:      c.String("amount"),
				Memo:        c.String("memo"),
			}, printProgress))
		}),
	}
}

func swapCommand(cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:  "swap",
		Usage: "swap XLM into another asset",
		Flags: []cli.Flag{
			accountFlag,
			&cli.StringFlag{Name: "amount", Required: true, Usage: "XLM to send"},
			&cli.StringFlag{Name: "asset", Required: true, Usage: "destination asset CODE:ISSUER"},
			&cli.StringFlag{Name: "to", Usage: "destination address (default: the account itself)"},
			&cli.StringFlag{Name: "dest-min", Usage: "minimum to receive (default: quote minus slippage)"},
			&cli.IntFlag{Name: "slippage-bps", Value: -1, Usage: "slippage tolerance in basis points"},
		},
		Action: withApp(cfg, func(c *cli.Context, a *app) error {
			acct, err := a.account(c.Context, c)
			if err != nil {
				return err
			}
			asset, err := domain.ParseAsset(c.String("asset"))
			if err != nil {
				return err
			}
			req := pipeline.SwapRequest{
				Network:     a.network,
				Account:     acct,
				Destination: c.String("to"),
				SendAmount:  c.String("amount"),
				DestAsset:   asset,
				DestMin:     c.String("dest-min"),
			}
			if bps := c.Int("slippage-bps"); bps >= 0 {
				req.SlippageBps = &bps
			}
			return printRun(a.orchestrator().Swap(c.Context, req, printProgress))
		}),
	}
}

func bridgeCommand(cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:  "bridge",
		Usage: "lock XLM in the bridge contract for release on another chain",
		Flags: []cli.Flag{
			accountFlag,
			&cli.StringFlag{Name: "amount", Required: true, Usage: "XLM to lock"},
			&cli.StringFlag{Name: "token", Required: true, Usage: "destination token symbol"},
			&cli.StringFlag{Name: "chain", Required: true, Usage: "destination chain id"},
			&cli.StringFlag{Name: "recipient", Required: true, Usage: "recipient address on the destination chain"},
		},
		Action: withApp(cfg, func(c *cli.Context, a *app) error {
			acct, err := a.account(c.Context, c)
			if err != nil {
				return err
			}
			return printRun(a.orchestrator().Bridge(c.Context, pipeline.BridgeRequest{
				Network:          a.network,
				Account:          acct,
				DestToken:        c.String("token"),
				Amount:           c.String("amount"),
				DestChain:        c.String("chain"),
				RecipientAddress: c.String("recipient"),
			}, printProgress))
		}),
	}
}

func chainsCommand(cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:  "chains",
		Usage: "list bridge destination chains and tokens",
		Action: func(c *cli.Context) error {
			reg, err := bridge.NewRegistry(cfg.BridgeContractID)
			if err != nil {
				return err
			}
			return printJSON(map[string]any{
				"contractId": reg.ContractID(),
				"chains":     reg.Chains(),
				"tokens":     reg.Tokens(),
			})
		},
	}
}

func runsCommand(cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:  "runs",
		Usage: "list journaled runs of an account, or export recent runs to XLSX",
		Flags: []cli.Flag{
			accountFlag,
			&cli.IntFlag{Name: "limit", Value: 20},
			&cli.StringFlag{Name: "xlsx", Usage: "write runs of the last --days to this file"},
			&cli.IntFlag{Name: "days", Value: 30},
		},
		Action: withApp(cfg, func(c *cli.Context, a *app) error {
			if path := c.String("xlsx"); path != "" {
				now := time.Now().UTC()
				runs, err := a.journal.Since(c.Context, now.AddDate(0, 0, -c.Int("days")), 5000)
				if err != nil {
					return err
				}
				f, err := os.Create(path)
				if err != nil {
					return fmt.Errorf("creating %s: %w", path, err)
				}
				if err := export.WriteXLSX(f, runs, now); err != nil {
					f.Close()
					return err
				}
				return f.Close()
			}

			acct, err := a.account(c.Context, c)
			if err != nil {
				return err
			}
			runs, err := a.journal.History(c.Context, a.network, acct, c.Int("limit"))
			if err != nil {
				return err
			}
			return printJSON(runs)
		}),
	}
}

func logoutCommand(cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:  "logout",
		Usage: "forget the identity's cached wallet address and trustline statuses",
		Action: withApp(cfg, func(c *cli.Context, a *app) error {
			return a.sessions.Logout(a.identity)
		}),
	}
}

func printProgress(p domain.Progress) {
	fmt.Fprintf(os.Stderr, "[%3d%%] %s\n", p.Percent, p.Stage)
}

// printRun prints the result and turns a failed run into a non-zero exit.
func printRun(r domain.RunResult) error {
	if err := printJSON(r); err != nil {
		return err
	}
	if !r.Success {
		return cli.Exit(r.Message, 1)
	}
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
