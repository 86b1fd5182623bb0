package main

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v3"

	"quotewatch/internal/domain/model"
)

var errUsage = errors.New("missing arguments")

func chatFlag() cli.Flag {
	return &cli.StringFlag{
		Name:  "chat",
		Usage: "chat id that owns the alert or watchlist",
		Value: "0",
	}
}

func chatID(cmd *cli.Command) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(cmd.String("chat")), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid --chat: %w", err)
	}
	return id, nil
}

func runCommand() *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "connect to the venue and stream quotes until interrupted",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			sc, err := bootstrap(ctx, cmd)
			if err != nil {
				return err
			}
			defer sc.Close()

			log.Info().Str("app", sc.Config.App.Name).Msg("quotewatch started")
			return sc.Run(ctx)
		},
	}
}

func quoteCommand() *cli.Command {
	return &cli.Command{
		Name:      "quote",
		Usage:     "fetch live prices for symbols",
		ArgsUsage: "SYMBOL...",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "all", Usage: "wait until every symbol has a price"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			args := cmd.Args().Slice()
			if len(args) == 0 {
				return errUsage
			}
			sc, err := bootstrap(ctx, cmd)
			if err != nil {
				return err
			}
			defer sc.Close()

			if err := sc.Connect(ctx); err != nil {
				return err
			}
			symbols := make([]string, 0, len(args))
			for _, a := range args {
				if s := model.NormalizeSymbol(a); s != "" {
					symbols = append(symbols, s)
				}
			}

			qs := sc.App().QuoteService()
			opts := qs.Defaults()
			if cmd.Bool("all") {
				opts.RequireAll = true
			}
			prices := qs.Fetch(ctx, symbols, opts)
			for _, sym := range symbols {
				if p, ok := prices[sym]; ok {
					fmt.Printf("%-24s %s\n", sym, model.FormatPrice(p))
				} else {
					fmt.Printf("%-24s n/a\n", sym)
				}
			}
			return nil
		},
	}
}

func alertCommand() *cli.Command {
	return &cli.Command{
		Name:  "alert",
		Usage: "manage price alerts",
		Commands: []*cli.Command{
			{
				Name:      "add",
				Usage:     "create an alert, e.g. alert add AAPL '>150'",
				ArgsUsage: "SYMBOL CONDITION",
				Flags:     []cli.Flag{chatFlag()},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					if cmd.Args().Len() < 2 {
						return errUsage
					}
					chat, err := chatID(cmd)
					if err != nil {
						return err
					}
					sc, err := bootstrap(ctx, cmd)
					if err != nil {
						return err
					}
					defer sc.Close()

					a, err := sc.App().AlertService().Create(ctx, chat, cmd.Args().Get(0), strings.Join(cmd.Args().Tail(), ""))
					if err != nil {
						return err
					}
					fmt.Printf("alert %d: %s %s %s  remove: %s\n",
						a.ID, a.Symbol, a.Direction.Sign(), model.FormatPrice(a.Threshold), model.RemoveHandle(a.ID))
					return nil
				},
			},
			{
				Name:      "rm",
				Usage:     "remove an alert by id or /n_<id> handle",
				ArgsUsage: "ID",
				Flags:     []cli.Flag{chatFlag()},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					if cmd.Args().Len() < 1 {
						return errUsage
					}
					chat, err := chatID(cmd)
					if err != nil {
						return err
					}
					id, err := parseAlertID(cmd.Args().First())
					if err != nil {
						return err
					}
					sc, err := bootstrap(ctx, cmd)
					if err != nil {
						return err
					}
					defer sc.Close()

					a, err := sc.App().AlertService().Remove(ctx, chat, id)
					if err != nil {
						return err
					}
					fmt.Printf("removed alert %d on %s\n", a.ID, a.Symbol)
					return nil
				},
			},
			{
				Name:  "ls",
				Usage: "list alerts with last known prices",
				Flags: []cli.Flag{chatFlag()},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					chat, err := chatID(cmd)
					if err != nil {
						return err
					}
					sc, err := bootstrap(ctx, cmd)
					if err != nil {
						return err
					}
					defer sc.Close()

					views, err := sc.App().AlertService().List(ctx, chat)
					if err != nil {
						return err
					}
					if len(views) == 0 {
						fmt.Println("no alerts")
						return nil
					}
					for _, v := range views {
						price := "n/a"
						if v.HasPrice {
							price = model.FormatPrice(v.Price)
						}
						fmt.Printf("%-8s %-24s %s %-12s last %s\n",
							model.RemoveHandle(v.Alert.ID), v.Alert.Symbol, v.Alert.Direction.Sign(),
							model.FormatPrice(v.Alert.Threshold), price)
					}
					return nil
				},
			},
		},
	}
}

// parseAlertID accepts both "12" and "/n_12".
func parseAlertID(s string) (int64, error) {
	if strings.HasPrefix(s, "/") {
		return model.ParseRemoveHandle(s)
	}
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid alert id %q: %w", s, err)
	}
	return id, nil
}

func watchCommand() *cli.Command {
	return &cli.Command{
		Name:  "watch",
		Usage: "manage the watchlist",
		Commands: []*cli.Command{
			{
				Name:      "add",
				ArgsUsage: "SYMBOL",
				Flags:     []cli.Flag{chatFlag()},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return withWatchSymbol(ctx, cmd, true)
				},
			},
			{
				Name:      "rm",
				ArgsUsage: "SYMBOL",
				Flags:     []cli.Flag{chatFlag()},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return withWatchSymbol(ctx, cmd, false)
				},
			},
			{
				Name:  "ls",
				Flags: []cli.Flag{chatFlag()},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					chat, err := chatID(cmd)
					if err != nil {
						return err
					}
					sc, err := bootstrap(ctx, cmd)
					if err != nil {
						return err
					}
					defer sc.Close()

					views, err := sc.App().WatchlistService().List(ctx, chat)
					if err != nil {
						return err
					}
					sort.Slice(views, func(i, j int) bool { return views[i].Symbol < views[j].Symbol })
					for _, v := range views {
						if !v.HasQuote {
							fmt.Printf("%-24s n/a\n", v.Symbol)
							continue
						}
						fmt.Printf("%-24s %s\n", v.Symbol, model.FormatPrice(v.Quote.Price))
					}
					return nil
				},
			},
		},
	}
}

func withWatchSymbol(ctx context.Context, cmd *cli.Command, add bool) error {
	if cmd.Args().Len() < 1 {
		return errUsage
	}
	chat, err := chatID(cmd)
	if err != nil {
		return err
	}
	sc, err := bootstrap(ctx, cmd)
	if err != nil {
		return err
	}
	defer sc.Close()

	ws := sc.App().WatchlistService()
	sym := cmd.Args().First()
	if add {
		err = ws.Add(ctx, chat, sym)
	} else {
		err = ws.Remove(ctx, chat, sym)
	}
	if err != nil {
		return err
	}
	fmt.Println("ok")
	return nil
}

func accountCommand() *cli.Command {
	return &cli.Command{
		Name:  "account",
		Usage: "manage broker accounts used for position polling",
		Commands: []*cli.Command{
			{
				Name:      "add",
				ArgsUsage: "USER_ID API_KEY SECRET_KEY",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					if cmd.Args().Len() < 3 {
						return errUsage
					}
					uid, err := strconv.ParseInt(cmd.Args().Get(0), 10, 64)
					if err != nil {
						return fmt.Errorf("invalid user id: %w", err)
					}
					sc, err := bootstrap(ctx, cmd)
					if err != nil {
						return err
					}
					defer sc.Close()

					err = sc.App().Store().SaveAccount(ctx, model.BrokerAccount{
						UserID:    uid,
						APIKey:    cmd.Args().Get(1),
						SecretKey: cmd.Args().Get(2),
					})
					if err != nil {
						return err
					}

					// 用一次持仓查询校验凭证
					positions, err := sc.App().PortfolioService().Positions(ctx, uid)
					if err != nil {
						log.Warn().Err(err).Int64("user_id", uid).Msg("account saved but positions fetch failed")
						return nil
					}
					fmt.Printf("account %d saved, %d positions\n", uid, len(positions))
					return nil
				},
			},
			{
				Name:      "positions",
				Usage:     "show broker positions and subscribe any new symbols",
				ArgsUsage: "USER_ID",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					if cmd.Args().Len() < 1 {
						return errUsage
					}
					uid, err := strconv.ParseInt(cmd.Args().First(), 10, 64)
					if err != nil {
						return fmt.Errorf("invalid user id: %w", err)
					}
					sc, err := bootstrap(ctx, cmd)
					if err != nil {
						return err
					}
					defer sc.Close()

					if err := sc.Connect(ctx); err != nil {
						log.Warn().Err(err).Msg("venue not connected, positions are not subscribed")
					}
					positions, err := sc.App().PortfolioService().Positions(ctx, uid)
					if err != nil {
						return err
					}
					for _, p := range positions {
						fmt.Printf("%-28s %s\n", p.Symbol, p.UnderlyingSymbol)
					}
					return nil
				},
			},
		},
	}
}
