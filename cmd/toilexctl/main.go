package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	cl "toilex/internal/cli"
	"toilex/internal/config"
	"toilex/internal/market"
	"toilex/internal/syncq"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func main() {
	cfg := config.LoadCLIFromEnv()
	applyProfile(&cfg)

	root := &cobra.Command{
		Use:          "toilexctl",
		Short:        "Toilex market client",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&cfg.APIBaseURL, "api", cfg.APIBaseURL, "API base URL")
	root.PersistentFlags().StringVar(&cfg.Tenant, "tenant", cfg.Tenant, "tenant id")

	root.AddCommand(
		newLoginCmd(&cfg),
		newLogoutCmd(),
		newSyncCmd(&cfg),
		newRegisterCmd(&cfg),
		newDeleteAccountCmd(&cfg),
		newStocksCmd(&cfg),
		newHistoryCmd(&cfg),
		newBuyCmd(&cfg),
		newSellCmd(&cfg),
		newGiftCmd(&cfg),
		newPortfolioCmd(&cfg),
		newLeaderboardCmd(&cfg),
		newSettingsCmd(&cfg),
		newAdminCmd(&cfg),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newClient(cfg *config.CLIConfig) *cl.Client {
	return cl.NewClient(strings.TrimRight(strings.TrimSpace(cfg.APIBaseURL), "/"), cfg.AdminToken, cfg.Tenant)
}

// applyProfile fills settings from the saved profile, but only where no env
// var was set. Flags override both.
func applyProfile(cfg *config.CLIConfig) {
	p, err := cl.LoadProfile()
	if err != nil {
		return
	}
	if os.Getenv("TOILEXCTL_API_BASE_URL") == "" && p.APIBaseURL != "" {
		cfg.APIBaseURL = strings.TrimRight(p.APIBaseURL, "/")
	}
	if os.Getenv("TOILEXCTL_ADMIN_TOKEN") == "" && p.AdminToken != "" {
		cfg.AdminToken = p.AdminToken
	}
	if os.Getenv("TOILEXCTL_TENANT") == "" && p.Tenant != "" {
		cfg.Tenant = p.Tenant
	}
}

func newLoginCmd(cfg *config.CLIConfig) *cobra.Command {
	var token string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Save the API endpoint, tenant, and admin token to the local profile",
		RunE: func(cmd *cobra.Command, args []string) error {
			if token != "" {
				cfg.AdminToken = token
			}
			if err := cl.SaveProfile(cl.Profile{
				APIBaseURL: cfg.APIBaseURL,
				AdminToken: cfg.AdminToken,
				Tenant:     cfg.Tenant,
			}); err != nil {
				return err
			}
			printSuccess(fmt.Sprintf("Profile saved: %s (tenant %s).", cfg.APIBaseURL, cfg.Tenant))
			return nil
		},
	}
	cmd.Flags().StringVar(&token, "token", "", "admin token to store")
	return cmd
}

func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Clear the local profile",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cl.ClearProfile(); err != nil {
				return err
			}
			printSuccess("Profile cleared.")
			return nil
		},
	}
}

func newSyncCmd(cfg *config.CLIConfig) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Replay writes queued while the API was unreachable",
		RunE: func(cmd *cobra.Command, args []string) error {
			queue, err := syncq.Load(cfg.Tenant)
			if err != nil {
				return err
			}
			if len(queue) == 0 {
				printInfo("Sync queue is empty.")
				return nil
			}
			client := newClient(cfg)
			ctx, cancel := context.WithTimeout(cmd.Context(), 60*time.Second)
			defer cancel()

			remaining := make([]syncq.Command, 0, len(queue))
			replayed := 0
			for _, q := range queue {
				if _, err := client.Do(ctx, q.Method, q.Path, q.Admin, q.Body, q.IdempotencyKey); err != nil {
					if isAPIStructuredError(err) {
						// The server saw it and said no; a retry
						// will say no again, so drop it.
						printWarn(fmt.Sprintf("Dropped %s %s: %v", q.Method, q.Path, err))
						continue
					}
					remaining = append(remaining, q)
					printWarn(fmt.Sprintf("Still unreachable for %s %s: %v", q.Method, q.Path, err))
					continue
				}
				replayed++
			}
			if err := syncq.Save(cfg.Tenant, remaining); err != nil {
				return err
			}
			printSuccess(fmt.Sprintf("Sync complete: replayed=%d remaining=%d", replayed, len(remaining)))
			return nil
		},
	}
}

// queueOnNetworkError parks a failed write in the tenant's offline queue
// unless the server actually answered; a structured API error means retrying
// is useless.
func queueOnNetworkError(tenant string, err error, q syncq.Command) error {
	if err == nil {
		return nil
	}
	if isAPIStructuredError(err) {
		return err
	}
	if pushErr := syncq.Push(tenant, q); pushErr != nil {
		return fmt.Errorf("request failed and could not be queued: %v (original: %w)", pushErr, err)
	}
	printWarn(fmt.Sprintf("API unreachable; queued %s %s for `toilexctl sync`.", q.Method, q.Path))
	return nil
}

func isAPIStructuredError(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "api status")
}

func requestContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return context.WithTimeout(cmd.Context(), 30*time.Second)
}

func newRegisterCmd(cfg *config.CLIConfig) *cobra.Command {
	return &cobra.Command{
		Use:   "register <user>",
		Short: "Register a player account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := requestContext(cmd)
			defer cancel()
			out, err := newClient(cfg).Register(ctx, strings.TrimSpace(args[0]))
			if err != nil {
				return err
			}
			return renderAccount(out)
		},
	}
}

func newDeleteAccountCmd(cfg *config.CLIConfig) *cobra.Command {
	return &cobra.Command{
		Use:   "delete-account <user>",
		Short: "Delete a player account, its holdings and trade history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := requestContext(cmd)
			defer cancel()
			if _, err := newClient(cfg).DeleteAccount(ctx, strings.TrimSpace(args[0])); err != nil {
				return err
			}
			printWarn(fmt.Sprintf("Account %s deleted. Holdings are gone, not refunded.", args[0]))
			return nil
		},
	}
}

func newStocksCmd(cfg *config.CLIConfig) *cobra.Command {
	return &cobra.Command{
		Use:   "stocks [TICKER]",
		Short: "List stocks or inspect one stock",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := requestContext(cmd)
			defer cancel()
			client := newClient(cfg)
			if len(args) == 0 {
				out, err := client.ListStocks(ctx)
				if err != nil {
					return err
				}
				return renderStocksList(out)
			}
			out, err := client.StockDetail(ctx, tickerArg(args[0]))
			if err != nil {
				return err
			}
			return renderStockDetail(out)
		},
	}
}

func newHistoryCmd(cfg *config.CLIConfig) *cobra.Command {
	var lookback time.Duration
	cmd := &cobra.Command{
		Use:   "history <TICKER>",
		Short: "Show recent price history for a stock",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := requestContext(cmd)
			defer cancel()
			out, err := newClient(cfg).StockHistory(ctx, tickerArg(args[0]), lookback)
			if err != nil {
				return err
			}
			return renderHistory(out, tickerArg(args[0]))
		},
	}
	cmd.Flags().DurationVar(&lookback, "lookback", 24*time.Hour, "history window")
	return cmd
}

func newBuyCmd(cfg *config.CLIConfig) *cobra.Command {
	return newOrderCmd(cfg, "buy", "Buy shares")
}

func newSellCmd(cfg *config.CLIConfig) *cobra.Command {
	return newOrderCmd(cfg, "sell", "Sell shares")
}

func newOrderCmd(cfg *config.CLIConfig, side, short string) *cobra.Command {
	return &cobra.Command{
		Use:   side + " <user> <TICKER> <quantity>",
		Short: short,
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			qty, err := quantityArg(args[2])
			if err != nil {
				return err
			}
			ctx, cancel := requestContext(cmd)
			defer cancel()
			client := newClient(cfg)
			idem := uuid.NewString()
			out, err := client.PlaceOrder(ctx, args[0], tickerArg(args[1]), side, qty, idem)
			if err != nil {
				return queueOnNetworkError(cfg.Tenant, err, syncq.Command{
					Method: "POST",
					Path:   client.TenantPath("/orders"),
					Body: map[string]any{
						"user":     args[0],
						"ticker":   tickerArg(args[1]),
						"side":     side,
						"quantity": qty,
					},
					IdempotencyKey: idem,
				})
			}
			return renderOrderResult(out, side)
		},
	}
}

func newGiftCmd(cfg *config.CLIConfig) *cobra.Command {
	var ticker string
	var qty int64
	var coins float64
	cmd := &cobra.Command{
		Use:   "gift <from> <to>",
		Short: "Gift coins or shares to another player",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := requestContext(cmd)
			defer cancel()
			client := newClient(cfg)
			idem := uuid.NewString()
			switch {
			case ticker != "" && coins == 0:
				if qty <= 0 {
					return fmt.Errorf("--qty must be positive when gifting shares")
				}
				out, err := client.GiftShares(ctx, args[0], args[1], tickerArg(ticker), qty, idem)
				if err != nil {
					return queueOnNetworkError(cfg.Tenant, err, syncq.Command{
						Method: "POST",
						Path:   client.TenantPath("/gifts"),
						Body: map[string]any{
							"from":     args[0],
							"to":       args[1],
							"ticker":   tickerArg(ticker),
							"quantity": qty,
						},
						IdempotencyKey: idem,
					})
				}
				return renderGiftResult(out)
			case ticker == "" && coins > 0:
				out, err := client.GiftCash(ctx, args[0], args[1], market.CoinsToMicros(coins), idem)
				if err != nil {
					return queueOnNetworkError(cfg.Tenant, err, syncq.Command{
						Method: "POST",
						Path:   client.TenantPath("/gifts"),
						Body: map[string]any{
							"from":        args[0],
							"to":          args[1],
							"cash_micros": market.CoinsToMicros(coins),
						},
						IdempotencyKey: idem,
					})
				}
				return renderGiftResult(out)
			default:
				return fmt.Errorf("pass either --coins or --ticker with --qty")
			}
		},
	}
	cmd.Flags().StringVar(&ticker, "ticker", "", "stock to gift")
	cmd.Flags().Int64Var(&qty, "qty", 0, "shares to gift")
	cmd.Flags().Float64Var(&coins, "coins", 0, "coins to gift")
	return cmd
}

func newPortfolioCmd(cfg *config.CLIConfig) *cobra.Command {
	return &cobra.Command{
		Use:   "portfolio <user>",
		Short: "Show a player's cash and holdings",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := requestContext(cmd)
			defer cancel()
			out, err := newClient(cfg).Portfolio(ctx, args[0])
			if err != nil {
				return err
			}
			return renderPortfolio(out)
		},
	}
}

func newLeaderboardCmd(cfg *config.CLIConfig) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "leaderboard",
		Short: "Rank players by net worth",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := requestContext(cmd)
			defer cancel()
			out, err := newClient(cfg).Leaderboard(ctx, limit)
			if err != nil {
				return err
			}
			return renderLeaderboard(out)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 10, "rows to show")
	return cmd
}

func newSettingsCmd(cfg *config.CLIConfig) *cobra.Command {
	settings := &cobra.Command{
		Use:   "settings",
		Short: "Tenant settings",
	}
	settings.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "Show effective settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := requestContext(cmd)
			defer cancel()
			out, err := newClient(cfg).ListSettings(ctx)
			if err != nil {
				return err
			}
			return renderSettings(out)
		},
	})
	settings.AddCommand(&cobra.Command{
		Use:   "set <key> <value>",
		Short: "Set one setting (admin)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := requestContext(cmd)
			defer cancel()
			if _, err := newClient(cfg).SetSetting(ctx, args[0], args[1]); err != nil {
				return err
			}
			printSuccess(fmt.Sprintf("Setting %s updated.", args[0]))
			return nil
		},
	})
	return settings
}

func newAdminCmd(cfg *config.CLIConfig) *cobra.Command {
	admin := &cobra.Command{
		Use:   "admin",
		Short: "Market administration",
	}

	addStock := &cobra.Command{
		Use:   "add-stock <TICKER> <name> <price> <risk>",
		Short: "List a new stock",
		Args:  cobra.ExactArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			price, err := strconv.ParseFloat(args[2], 64)
			if err != nil || price <= 0 {
				return fmt.Errorf("invalid price %q", args[2])
			}
			ctx, cancel := requestContext(cmd)
			defer cancel()
			out, err := newClient(cfg).AddStock(ctx, tickerArg(args[0]), args[1], market.CoinsToMicros(price), strings.ToLower(args[3]))
			if err != nil {
				return err
			}
			return renderStockDetail(out)
		},
	}

	removeStock := &cobra.Command{
		Use:   "remove-stock <TICKER>",
		Short: "Delist a stock and settle all holders at current price",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := requestContext(cmd)
			defer cancel()
			out, err := newClient(cfg).RemoveStock(ctx, tickerArg(args[0]))
			if err != nil {
				return err
			}
			return renderSettlement(out)
		},
	}

	setPrice := &cobra.Command{
		Use:   "set-price <TICKER> <price>",
		Short: "Force a stock price",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			price, err := strconv.ParseFloat(args[1], 64)
			if err != nil || price <= 0 {
				return fmt.Errorf("invalid price %q", args[1])
			}
			ctx, cancel := requestContext(cmd)
			defer cancel()
			out, err := newClient(cfg).SetPrice(ctx, tickerArg(args[0]), market.CoinsToMicros(price))
			if err != nil {
				return err
			}
			return renderStockDetail(out)
		},
	}

	setRisk := &cobra.Command{
		Use:   "set-risk <TICKER> <low|moderate|high>",
		Short: "Change a stock's risk tier",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := requestContext(cmd)
			defer cancel()
			out, err := newClient(cfg).SetRisk(ctx, tickerArg(args[0]), strings.ToLower(args[1]))
			if err != nil {
				return err
			}
			return renderStockDetail(out)
		},
	}

	crash := &cobra.Command{
		Use:   "crash",
		Short: "Trigger a market crash (once per calendar year)",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := requestContext(cmd)
			defer cancel()
			out, err := newClient(cfg).MarketCrash(ctx)
			if err != nil {
				return err
			}
			return renderCrash(out)
		},
	}

	reset := &cobra.Command{
		Use:   "reset",
		Short: "Wipe holdings and restore the default stock catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := requestContext(cmd)
			defer cancel()
			if _, err := newClient(cfg).ResetStocks(ctx); err != nil {
				return err
			}
			printWarn("Market reset: holdings wiped, default catalog restored.")
			return nil
		},
	}

	admin.AddCommand(addStock, removeStock, setPrice, setRisk, crash, reset)
	return admin
}

func tickerArg(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

func quantityArg(s string) (int64, error) {
	v, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil || v <= 0 {
		return 0, fmt.Errorf("invalid quantity %q", s)
	}
	return v, nil
}
