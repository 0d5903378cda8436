// Package cli holds the thin HTTP client used by toilexctl.
package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

type Client struct {
	BaseURL    string
	AdminToken string
	Tenant     string
	HTTP       *http.Client
}

func NewClient(baseURL, adminToken, tenant string) *Client {
	return &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		AdminToken: adminToken,
		Tenant:     tenant,
		HTTP: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

func (c *Client) tenantPath(suffix string) string {
	return "/v1/" + url.PathEscape(c.Tenant) + suffix
}

// TenantPath builds the request path for the client's tenant. The offline
// queue stores paths verbatim so a replay hits the tenant the command was
// issued against, not whatever tenant the profile points at later.
func (c *Client) TenantPath(suffix string) string {
	return c.tenantPath(suffix)
}

// Do issues an arbitrary request. `toilexctl sync` uses it to replay queued
// commands exactly as they were first attempted.
func (c *Client) Do(ctx context.Context, method, path string, admin bool, body map[string]any, idem string) (map[string]any, error) {
	var out map[string]any
	err := c.jsonRequest(ctx, method, path, admin, body, &out, idem)
	return out, err
}

func (c *Client) Register(ctx context.Context, user string) (map[string]any, error) {
	var out map[string]any
	err := c.jsonRequest(ctx, http.MethodPost, c.tenantPath("/register"), false, map[string]any{
		"user": user,
	}, &out, "")
	return out, err
}

func (c *Client) DeleteAccount(ctx context.Context, user string) (map[string]any, error) {
	var out map[string]any
	err := c.jsonRequest(ctx, http.MethodDelete, c.tenantPath("/accounts/"+url.PathEscape(user)), false, nil, &out, "")
	return out, err
}

func (c *Client) ListStocks(ctx context.Context) (map[string]any, error) {
	var out map[string]any
	err := c.jsonRequest(ctx, http.MethodGet, c.tenantPath("/stocks"), false, nil, &out, "")
	return out, err
}

func (c *Client) StockDetail(ctx context.Context, ticker string) (map[string]any, error) {
	var out map[string]any
	err := c.jsonRequest(ctx, http.MethodGet, c.tenantPath("/stocks/"+url.PathEscape(ticker)), false, nil, &out, "")
	return out, err
}

func (c *Client) StockHistory(ctx context.Context, ticker string, lookback time.Duration) (map[string]any, error) {
	path := c.tenantPath("/stocks/" + url.PathEscape(ticker) + "/history")
	if lookback > 0 {
		path += "?lookback=" + url.QueryEscape(lookback.String())
	}
	var out map[string]any
	err := c.jsonRequest(ctx, http.MethodGet, path, false, nil, &out, "")
	return out, err
}

func (c *Client) PlaceOrder(ctx context.Context, user, ticker, side string, qty int64, idem string) (map[string]any, error) {
	var out map[string]any
	err := c.jsonRequest(ctx, http.MethodPost, c.tenantPath("/orders"), false, map[string]any{
		"user":     user,
		"ticker":   ticker,
		"side":     side,
		"quantity": qty,
	}, &out, idem)
	return out, err
}

func (c *Client) GiftCash(ctx context.Context, from, to string, cashMicros int64, idem string) (map[string]any, error) {
	var out map[string]any
	err := c.jsonRequest(ctx, http.MethodPost, c.tenantPath("/gifts"), false, map[string]any{
		"from":        from,
		"to":          to,
		"cash_micros": cashMicros,
	}, &out, idem)
	return out, err
}

func (c *Client) GiftShares(ctx context.Context, from, to, ticker string, qty int64, idem string) (map[string]any, error) {
	var out map[string]any
	err := c.jsonRequest(ctx, http.MethodPost, c.tenantPath("/gifts"), false, map[string]any{
		"from":     from,
		"to":       to,
		"ticker":   ticker,
		"quantity": qty,
	}, &out, idem)
	return out, err
}

func (c *Client) Portfolio(ctx context.Context, user string) (map[string]any, error) {
	var out map[string]any
	err := c.jsonRequest(ctx, http.MethodGet, c.tenantPath("/portfolio/"+url.PathEscape(user)), false, nil, &out, "")
	return out, err
}

func (c *Client) Leaderboard(ctx context.Context, limit int) (map[string]any, error) {
	path := c.tenantPath("/leaderboard")
	if limit > 0 {
		path += fmt.Sprintf("?limit=%d", limit)
	}
	var out map[string]any
	err := c.jsonRequest(ctx, http.MethodGet, path, false, nil, &out, "")
	return out, err
}

func (c *Client) ListSettings(ctx context.Context) (map[string]any, error) {
	var out map[string]any
	err := c.jsonRequest(ctx, http.MethodGet, c.tenantPath("/settings"), false, nil, &out, "")
	return out, err
}

func (c *Client) SetSetting(ctx context.Context, key, value string) (map[string]any, error) {
	var out map[string]any
	err := c.jsonRequest(ctx, http.MethodPut, c.tenantPath("/settings/"+url.PathEscape(key)), true, map[string]any{
		"value": value,
	}, &out, "")
	return out, err
}

func (c *Client) AddStock(ctx context.Context, ticker, name string, priceMicros int64, risk string) (map[string]any, error) {
	var out map[string]any
	err := c.jsonRequest(ctx, http.MethodPost, c.tenantPath("/admin/stocks"), true, map[string]any{
		"ticker":       ticker,
		"name":         name,
		"price_micros": priceMicros,
		"risk":         risk,
	}, &out, "")
	return out, err
}

func (c *Client) RemoveStock(ctx context.Context, ticker string) (map[string]any, error) {
	var out map[string]any
	err := c.jsonRequest(ctx, http.MethodDelete, c.tenantPath("/admin/stocks/"+url.PathEscape(ticker)), true, nil, &out, "")
	return out, err
}

func (c *Client) SetPrice(ctx context.Context, ticker string, priceMicros int64) (map[string]any, error) {
	var out map[string]any
	err := c.jsonRequest(ctx, http.MethodPost, c.tenantPath("/admin/stocks/"+url.PathEscape(ticker)+"/price"), true, map[string]any{
		"price_micros": priceMicros,
	}, &out, "")
	return out, err
}

func (c *Client) SetRisk(ctx context.Context, ticker, risk string) (map[string]any, error) {
	var out map[string]any
	err := c.jsonRequest(ctx, http.MethodPost, c.tenantPath("/admin/stocks/"+url.PathEscape(ticker)+"/risk"), true, map[string]any{
		"risk": risk,
	}, &out, "")
	return out, err
}

func (c *Client) MarketCrash(ctx context.Context) (map[string]any, error) {
	var out map[string]any
	err := c.jsonRequest(ctx, http.MethodPost, c.tenantPath("/admin/crash"), true, nil, &out, "")
	return out, err
}

func (c *Client) ResetStocks(ctx context.Context) (map[string]any, error) {
	var out map[string]any
	err := c.jsonRequest(ctx, http.MethodPost, c.tenantPath("/admin/reset"), true, nil, &out, "")
	return out, err
}

func (c *Client) jsonRequest(ctx context.Context, method, path string, admin bool, in any, out any, idem string) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if admin {
		if c.AdminToken == "" {
			return fmt.Errorf("admin token is required for %s %s", method, path)
		}
		req.Header.Set("Authorization", "Bearer "+c.AdminToken)
	}
	if idem != "" {
		req.Header.Set("Idempotency-Key", idem)
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("api status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
