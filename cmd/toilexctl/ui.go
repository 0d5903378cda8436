package main

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"toilex/internal/market"

	"github.com/fatih/color"
)

var (
	accent  = color.New(color.FgCyan, color.Bold)
	success = color.New(color.FgGreen, color.Bold)
	warn    = color.New(color.FgYellow, color.Bold)
	danger  = color.New(color.FgRed, color.Bold)
	neutral = color.New(color.FgHiWhite)
)

type stocksPayload struct {
	Stocks []market.StockView `json:"stocks"`
}

type historyPayload struct {
	Points []market.PricePoint `json:"points"`
}

type leaderboardPayload struct {
	Rows []market.LeaderboardRow `json:"rows"`
}

type settingsPayload struct {
	Settings map[string]string `json:"settings"`
}

type accountPayload struct {
	User       string `json:"user"`
	CashMicros int64  `json:"cash_micros"`
}

func printSuccess(msg string) {
	success.Println(msg)
}

func printWarn(msg string) {
	warn.Println(msg)
}

func printInfo(msg string) {
	neutral.Println(msg)
}

func renderAccount(raw map[string]any) error {
	out, err := decodeInto[accountPayload](raw)
	if err != nil {
		return err
	}
	printSuccess(fmt.Sprintf("Registered %s with %s coins.", out.User, formatMicros(out.CashMicros)))
	return nil
}

func renderStocksList(raw map[string]any) error {
	payload, err := decodeInto[stocksPayload](raw)
	if err != nil {
		return err
	}
	accent.Println("\n== MARKET ==")
	if len(payload.Stocks) == 0 {
		printInfo("No stocks listed.")
		return nil
	}
	fmt.Printf("%-8s %-28s %12s %-10s\n", "TICKER", "NAME", "PRICE", "RISK")
	for _, s := range payload.Stocks {
		fmt.Printf("%-8s %-28s %12s %-10s\n",
			s.Ticker,
			truncate(s.Name, 28),
			formatMicros(s.PriceMicros),
			s.Risk,
		)
	}
	fmt.Println()
	return nil
}

func renderStockDetail(raw map[string]any) error {
	s, err := decodeInto[market.StockView](raw)
	if err != nil {
		return err
	}
	accent.Printf("\n== %s (%s) ==\n", s.Ticker, s.Name)
	fmt.Printf("Price: %s coins\n", formatMicros(s.PriceMicros))
	fmt.Printf("Risk:  %s\n", s.Risk)
	fmt.Println()
	return nil
}

func renderHistory(raw map[string]any, ticker string) error {
	payload, err := decodeInto[historyPayload](raw)
	if err != nil {
		return err
	}
	accent.Printf("\n== %s HISTORY ==\n", ticker)
	if len(payload.Points) == 0 {
		printInfo("No price points in window.")
		return nil
	}
	fmt.Printf("%-20s %12s\n", "TIME", "PRICE")
	for _, p := range payload.Points {
		fmt.Printf("%-20s %12s\n", p.At.Local().Format("2006-01-02 15:04"), formatMicros(p.PriceMicros))
	}
	if len(payload.Points) > 1 {
		delta := payload.Points[len(payload.Points)-1].PriceMicros - payload.Points[0].PriceMicros
		fmt.Printf("Window move: %s coins\n", colorizeMicros(delta))
	}
	fmt.Println()
	return nil
}

func renderOrderResult(raw map[string]any, side string) error {
	out, err := decodeInto[market.TradeResult](raw)
	if err != nil {
		return err
	}
	accent.Printf("\n== %s FILLED ==\n", strings.ToUpper(side))
	fmt.Printf("Ticker:   %s\n", out.Ticker)
	fmt.Printf("Shares:   %d\n", out.Quantity)
	fmt.Printf("Price:    %s coins\n", formatMicros(out.PriceMicros))
	fmt.Printf("Notional: %s coins\n", formatMicros(out.NotionalMicros))
	fmt.Printf("Cash:     %s coins\n", formatMicros(out.CashMicros))
	fmt.Println()
	return nil
}

func renderGiftResult(raw map[string]any) error {
	out, err := decodeInto[market.GiftResult](raw)
	if err != nil {
		return err
	}
	printSuccess(fmt.Sprintf("Gift sent. Your cash: %s coins.", formatMicros(out.SenderCashMicros)))
	return nil
}

func renderPortfolio(raw map[string]any) error {
	p, err := decodeInto[market.Portfolio](raw)
	if err != nil {
		return err
	}
	accent.Printf("\n== PORTFOLIO %s ==\n", p.User)
	fmt.Printf("Cash:      %s coins\n", formatMicros(p.CashMicros))
	fmt.Printf("Net worth: %s coins\n", formatMicros(p.TotalMicros))
	if len(p.Holdings) == 0 {
		printInfo("No open positions.")
		fmt.Println()
		return nil
	}
	fmt.Println()
	fmt.Printf("%-8s %-24s %8s %12s %12s %14s %14s\n", "TICKER", "NAME", "QTY", "AVG", "NOW", "VALUE", "P/L")
	for _, h := range p.Holdings {
		fmt.Printf("%-8s %-24s %8d %12s %12s %14s %14s\n",
			h.Ticker,
			truncate(h.Name, 24),
			h.Quantity,
			formatMicros(h.AvgPriceMicros),
			formatMicros(h.PriceMicros),
			formatMicros(h.ValueMicros),
			colorizeMicros(h.UnrealizedMicros),
		)
	}
	fmt.Println()
	return nil
}

func renderLeaderboard(raw map[string]any) error {
	out, err := decodeInto[leaderboardPayload](raw)
	if err != nil {
		return err
	}
	accent.Println("\n== LEADERBOARD ==")
	if len(out.Rows) == 0 {
		printInfo("No players yet.")
		return nil
	}
	fmt.Printf("%-6s %-20s %14s\n", "RANK", "PLAYER", "NET WORTH")
	for _, row := range out.Rows {
		fmt.Printf("%-6d %-20s %14s\n", row.Rank, truncate(row.User, 20), formatMicros(row.NetWorthMicros))
	}
	fmt.Println()
	return nil
}

func renderSettings(raw map[string]any) error {
	out, err := decodeInto[settingsPayload](raw)
	if err != nil {
		return err
	}
	accent.Println("\n== SETTINGS ==")
	keys := make([]string, 0, len(out.Settings))
	for k := range out.Settings {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Printf("%-24s %s\n", k, out.Settings[k])
	}
	fmt.Println()
	return nil
}

func renderSettlement(raw map[string]any) error {
	out, err := decodeInto[market.SettlementResult](raw)
	if err != nil {
		return err
	}
	accent.Printf("\n== %s DELISTED ==\n", out.Ticker)
	fmt.Printf("Settled at:    %s coins\n", formatMicros(out.PriceMicros))
	fmt.Printf("Holders paid:  %d\n", out.HoldersSettled)
	fmt.Printf("Shares bought: %d\n", out.SharesSettled)
	fmt.Printf("Total paid:    %s coins\n", formatMicros(out.TotalCreditedMicros))
	fmt.Println()
	return nil
}

func renderCrash(raw map[string]any) error {
	out, err := decodeInto[market.CrashResult](raw)
	if err != nil {
		return err
	}
	danger.Printf("\n== MARKET CRASH (x%.2f) ==\n", out.Factor)
	fmt.Printf("%-8s %12s\n", "TICKER", "PRICE")
	for _, s := range out.Stocks {
		fmt.Printf("%-8s %12s\n", s.Ticker, formatMicros(s.PriceMicros))
	}
	fmt.Println()
	return nil
}

func decodeInto[T any](in any) (T, error) {
	var out T
	raw, err := json.Marshal(in)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, err
	}
	return out, nil
}

func colorizeMicros(v int64) string {
	text := formatMicros(v)
	if v > 0 {
		text = "+" + text
	}
	switch {
	case v > 0:
		return success.Sprint(text)
	case v < 0:
		return danger.Sprint(text)
	default:
		return neutral.Sprint(text)
	}
}

func formatMicros(v int64) string {
	sign := ""
	if v < 0 {
		sign = "-"
		v = -v
	}
	whole := v / market.MicrosPerCoin
	frac := (v % market.MicrosPerCoin) / 10_000
	return fmt.Sprintf("%s%s.%02d", sign, comma(whole), frac)
}

func comma(v int64) string {
	s := strconv.FormatInt(v, 10)
	if len(s) <= 3 {
		return s
	}
	var b strings.Builder
	pre := len(s) % 3
	if pre > 0 {
		b.WriteString(s[:pre])
		b.WriteByte(',')
	}
	for i := pre; i < len(s); i += 3 {
		b.WriteString(s[i : i+3])
		if i+3 < len(s) {
			b.WriteByte(',')
		}
	}
	return b.String()
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if n <= 0 || len(s) <= n {
		return s
	}
	if n <= 3 {
		return s[:n]
	}
	return s[:n-3] + "..."
}
