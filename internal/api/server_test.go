package api

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"toilex/internal/config"
	"toilex/internal/market"
	"toilex/internal/store/mem"
)

const testAdminToken = "test-admin-token"

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := market.NewService(mem.New(), logger, nil)
	srv := New(config.APIConfig{AdminToken: testAdminToken}, logger, svc)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func doJSON(t *testing.T, method, url string, body any, headers map[string]string) (*http.Response, map[string]any) {
	t.Helper()
	var buf io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		buf = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, url, buf)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()
	var out map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil && err != io.EOF {
		t.Fatalf("decode response: %v", err)
	}
	return resp, out
}

func adminHeaders() map[string]string {
	return map[string]string{"Authorization": "Bearer " + testAdminToken}
}

func TestHealthz(t *testing.T) {
	ts := newTestServer(t)
	resp, body := doJSON(t, http.MethodGet, ts.URL+"/healthz", nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status: %d", resp.StatusCode)
	}
	if body["ok"] != true {
		t.Fatalf("body: %v", body)
	}
}

func TestRegisterTradePortfolioFlow(t *testing.T) {
	ts := newTestServer(t)
	base := ts.URL + "/v1/guild"

	resp, body := doJSON(t, http.MethodPost, base+"/register",
		map[string]any{"user": "alice"}, nil)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("register status: %d body=%v", resp.StatusCode, body)
	}
	if body["cash_micros"] != float64(1000*market.MicrosPerCoin) {
		t.Fatalf("starter cash: %v", body["cash_micros"])
	}

	resp, body = doJSON(t, http.MethodPost, base+"/orders", map[string]any{
		"user": "alice", "ticker": "JFP", "side": "buy", "quantity": 10,
	}, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("buy status: %d body=%v", resp.StatusCode, body)
	}
	if body["quantity"] != float64(10) {
		t.Fatalf("buy result: %v", body)
	}

	resp, body = doJSON(t, http.MethodGet, base+"/portfolio/alice", nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("portfolio status: %d", resp.StatusCode)
	}
	holdings, ok := body["holdings"].([]any)
	if !ok || len(holdings) != 1 {
		t.Fatalf("holdings: %v", body["holdings"])
	}
	h := holdings[0].(map[string]any)
	if h["ticker"] != "JFP" || h["quantity"] != float64(10) {
		t.Fatalf("holding: %v", h)
	}
}

func TestDeleteAccountEndpoint(t *testing.T) {
	ts := newTestServer(t)
	base := ts.URL + "/v1/guild"
	doJSON(t, http.MethodPost, base+"/register", map[string]any{"user": "alice"}, nil)
	doJSON(t, http.MethodPost, base+"/orders", map[string]any{
		"user": "alice", "ticker": "JFP", "side": "buy", "quantity": 3,
	}, nil)

	resp, body := doJSON(t, http.MethodDelete, base+"/accounts/alice", nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("delete status: %d body=%v", resp.StatusCode, body)
	}
	resp, _ = doJSON(t, http.MethodGet, base+"/portfolio/alice", nil, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("portfolio after delete: %d", resp.StatusCode)
	}
	resp, _ = doJSON(t, http.MethodDelete, base+"/accounts/alice", nil, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("second delete: %d", resp.StatusCode)
	}
}

func TestOrderRejectsUnknownSide(t *testing.T) {
	ts := newTestServer(t)
	base := ts.URL + "/v1/guild"
	doJSON(t, http.MethodPost, base+"/register", map[string]any{"user": "alice"}, nil)

	resp, _ := doJSON(t, http.MethodPost, base+"/orders", map[string]any{
		"user": "alice", "ticker": "JFP", "side": "short", "quantity": 1,
	}, nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status: %d", resp.StatusCode)
	}
}

func TestIdempotencyHeaderRejectsReplay(t *testing.T) {
	ts := newTestServer(t)
	base := ts.URL + "/v1/guild"
	doJSON(t, http.MethodPost, base+"/register", map[string]any{"user": "alice"}, nil)

	order := map[string]any{"user": "alice", "ticker": "JFP", "side": "buy", "quantity": 1}
	headers := map[string]string{"Idempotency-Key": "order-1"}
	resp, _ := doJSON(t, http.MethodPost, base+"/orders", order, headers)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("first order status: %d", resp.StatusCode)
	}
	resp, _ = doJSON(t, http.MethodPost, base+"/orders", order, headers)
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("replay status: %d", resp.StatusCode)
	}
}

func TestAdminRoutesRequireToken(t *testing.T) {
	ts := newTestServer(t)
	base := ts.URL + "/v1/guild"

	resp, _ := doJSON(t, http.MethodPost, base+"/admin/crash", nil, nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("no token: %d", resp.StatusCode)
	}
	resp, _ = doJSON(t, http.MethodPost, base+"/admin/crash", nil,
		map[string]string{"Authorization": "Bearer wrong"})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("wrong token: %d", resp.StatusCode)
	}
}

func TestAdminStockLifecycle(t *testing.T) {
	ts := newTestServer(t)
	base := ts.URL + "/v1/guild"
	doJSON(t, http.MethodPost, base+"/register", map[string]any{"user": "alice"}, nil)

	resp, body := doJSON(t, http.MethodPost, base+"/admin/stocks", map[string]any{
		"ticker": "NEW", "name": "Newco", "price_micros": market.CoinsToMicros(12), "risk": "high",
	}, adminHeaders())
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("add stock: %d body=%v", resp.StatusCode, body)
	}

	resp, _ = doJSON(t, http.MethodPost, base+"/admin/stocks/NEW/price", map[string]any{
		"price_micros": market.CoinsToMicros(30),
	}, adminHeaders())
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("set price: %d", resp.StatusCode)
	}

	resp, body = doJSON(t, http.MethodGet, base+"/stocks/NEW", nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("stock detail: %d", resp.StatusCode)
	}
	if body["price_micros"] != float64(market.CoinsToMicros(30)) {
		t.Fatalf("price after set: %v", body["price_micros"])
	}

	resp, _ = doJSON(t, http.MethodDelete, base+"/admin/stocks/NEW", nil, adminHeaders())
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("remove stock: %d", resp.StatusCode)
	}
	resp, _ = doJSON(t, http.MethodGet, base+"/stocks/NEW", nil, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("delisted stock: %d", resp.StatusCode)
	}
}

func TestDomainErrorStatusMapping(t *testing.T) {
	ts := newTestServer(t)
	base := ts.URL + "/v1/guild"
	doJSON(t, http.MethodPost, base+"/register", map[string]any{"user": "alice"}, nil)

	cases := []struct {
		name   string
		method string
		path   string
		body   any
		admin  bool
		want   int
	}{
		{"missing stock", http.MethodGet, "/stocks/NOPE", nil, false, http.StatusNotFound},
		{"oversell", http.MethodPost, "/orders",
			map[string]any{"user": "alice", "ticker": "JFP", "side": "sell", "quantity": 1},
			false, http.StatusBadRequest},
		{"overdraft", http.MethodPost, "/orders",
			map[string]any{"user": "alice", "ticker": "BPT", "side": "buy", "quantity": 100},
			false, http.StatusBadRequest},
		{"duplicate register", http.MethodPost, "/register",
			map[string]any{"user": "alice"}, false, http.StatusConflict},
		{"unknown setting", http.MethodPut, "/settings/volume_knob",
			map[string]any{"value": "11"}, true, http.StatusBadRequest},
		{"bad setting value", http.MethodPut, "/settings/market_update_rate",
			map[string]any{"value": "sometimes"}, true, http.StatusBadRequest},
		{"bad risk", http.MethodPost, "/admin/stocks",
			map[string]any{"ticker": "ZZZ", "name": "Z", "price_micros": 1_000_000, "risk": "extreme"},
			true, http.StatusBadRequest},
		{"zero price listing", http.MethodPost, "/admin/stocks",
			map[string]any{"ticker": "ZZZ", "name": "Z", "price_micros": 0, "risk": "low"},
			true, http.StatusBadRequest},
		{"zero set-price", http.MethodPost, "/admin/stocks/JFP/price",
			map[string]any{"price_micros": 0}, true, http.StatusBadRequest},
		{"delete unknown account", http.MethodDelete, "/accounts/nobody", nil,
			false, http.StatusNotFound},
	}
	for _, tc := range cases {
		var headers map[string]string
		if tc.admin {
			headers = adminHeaders()
		}
		resp, body := doJSON(t, tc.method, base+tc.path, tc.body, headers)
		if resp.StatusCode != tc.want {
			t.Errorf("%s: status %d, want %d (body=%v)", tc.name, resp.StatusCode, tc.want, body)
		}
	}
}

func TestCrashCooldownReturns429(t *testing.T) {
	ts := newTestServer(t)
	base := ts.URL + "/v1/guild"
	doJSON(t, http.MethodPost, base+"/register", map[string]any{"user": "alice"}, nil)

	resp, _ := doJSON(t, http.MethodPost, base+"/admin/crash", nil, adminHeaders())
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("first crash: %d", resp.StatusCode)
	}
	resp, _ = doJSON(t, http.MethodPost, base+"/admin/crash", nil, adminHeaders())
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("second crash: %d", resp.StatusCode)
	}
}

func TestLeaderboardLimitValidation(t *testing.T) {
	ts := newTestServer(t)
	base := ts.URL + "/v1/guild"
	doJSON(t, http.MethodPost, base+"/register", map[string]any{"user": "alice"}, nil)

	resp, _ := doJSON(t, http.MethodGet, base+"/leaderboard?limit=0", nil, nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("limit=0: %d", resp.StatusCode)
	}
	resp, body := doJSON(t, http.MethodGet, base+"/leaderboard?limit=5", nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("leaderboard: %d", resp.StatusCode)
	}
	rows, ok := body["rows"].([]any)
	if !ok || len(rows) != 1 {
		t.Fatalf("rows: %v", body["rows"])
	}
}

func TestUnknownBodyFieldRejected(t *testing.T) {
	ts := newTestServer(t)
	resp, _ := doJSON(t, http.MethodPost, ts.URL+"/v1/guild/register",
		map[string]any{"user": "alice", "shoe_size": 9}, nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status: %d", resp.StatusCode)
	}
}
