// Package mem is an in-memory Store used for development mode and tests.
// Each tenant has its own lock, so tenants never serialize each other;
// Update runs against a staged copy and swaps it in on success, which gives
// the same all-or-nothing semantics as a database transaction.
package mem

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"toilex/internal/market"
)

var errReadOnly = errors.New("mem: write inside read-only transaction")

type data struct {
	stocks   map[string]market.Stock
	history  []market.PricePoint
	accounts map[string]market.Account
	holdings map[string]market.Holding
	trades   []market.Trade
	settings map[string]string
	events   []market.MarketEvent
	idem     map[string]string
}

func newData() *data {
	return &data{
		stocks:   make(map[string]market.Stock),
		accounts: make(map[string]market.Account),
		holdings: make(map[string]market.Holding),
		settings: make(map[string]string),
		idem:     make(map[string]string),
	}
}

func (d *data) clone() *data {
	c := &data{
		stocks:   make(map[string]market.Stock, len(d.stocks)),
		history:  append([]market.PricePoint(nil), d.history...),
		accounts: make(map[string]market.Account, len(d.accounts)),
		holdings: make(map[string]market.Holding, len(d.holdings)),
		trades:   append([]market.Trade(nil), d.trades...),
		settings: make(map[string]string, len(d.settings)),
		events:   append([]market.MarketEvent(nil), d.events...),
		idem:     make(map[string]string, len(d.idem)),
	}
	for k, v := range d.stocks {
		c.stocks[k] = v
	}
	for k, v := range d.accounts {
		c.accounts[k] = v
	}
	for k, v := range d.holdings {
		c.holdings[k] = v
	}
	for k, v := range d.settings {
		c.settings[k] = v
	}
	for k, v := range d.idem {
		c.idem[k] = v
	}
	return c
}

type tenantState struct {
	mu sync.RWMutex
	d  *data
}

type Store struct {
	mu      sync.Mutex
	tenants map[string]*tenantState
}

func New() *Store {
	return &Store{tenants: make(map[string]*tenantState)}
}

func (s *Store) tenant(name string) *tenantState {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tenants[name]
	if !ok {
		t = &tenantState{d: newData()}
		s.tenants[name] = t
	}
	return t
}

func (s *Store) Update(ctx context.Context, tenant string, fn func(market.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t := s.tenant(tenant)
	t.mu.Lock()
	defer t.mu.Unlock()
	staged := t.d.clone()
	if err := fn(&memTx{tenant: tenant, d: staged, writable: true}); err != nil {
		return err
	}
	t.d = staged
	return nil
}

func (s *Store) View(ctx context.Context, tenant string, fn func(market.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t := s.tenant(tenant)
	t.mu.RLock()
	defer t.mu.RUnlock()
	return fn(&memTx{tenant: tenant, d: t.d})
}

func (s *Store) Tenants(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.tenants))
	for name := range s.tenants {
		out = append(out, name)
	}
	sort.Strings(out)
	return out, nil
}

type memTx struct {
	tenant   string
	d        *data
	writable bool
}

func holdKey(user, ticker string) string { return user + "\x00" + ticker }

func (t *memTx) Stock(ticker string) (market.Stock, error) {
	s, ok := t.d.stocks[ticker]
	if !ok {
		return market.Stock{}, market.ErrNotFound
	}
	return s, nil
}

func (t *memTx) Stocks(activeOnly bool) ([]market.Stock, error) {
	out := make([]market.Stock, 0, len(t.d.stocks))
	for _, s := range t.d.stocks {
		if activeOnly && !s.Active {
			continue
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Ticker < out[j].Ticker })
	return out, nil
}

func (t *memTx) InsertStock(s market.Stock) error {
	if !t.writable {
		return errReadOnly
	}
	if _, ok := t.d.stocks[s.Ticker]; ok {
		return market.ErrAlreadyExists
	}
	t.d.stocks[s.Ticker] = s
	return nil
}

func (t *memTx) UpdateStock(s market.Stock) error {
	if !t.writable {
		return errReadOnly
	}
	if _, ok := t.d.stocks[s.Ticker]; !ok {
		return market.ErrNotFound
	}
	t.d.stocks[s.Ticker] = s
	return nil
}

func (t *memTx) DeleteStocks() error {
	if !t.writable {
		return errReadOnly
	}
	t.d.stocks = make(map[string]market.Stock)
	return nil
}

func (t *memTx) AppendPricePoint(p market.PricePoint) error {
	if !t.writable {
		return errReadOnly
	}
	t.d.history = append(t.d.history, p)
	return nil
}

func (t *memTx) PriceHistory(ticker string, since time.Time) ([]market.PricePoint, error) {
	var out []market.PricePoint
	for _, p := range t.d.history {
		if p.Ticker != ticker {
			continue
		}
		if !since.IsZero() && p.At.Before(since) {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

func (t *memTx) DeletePriceHistory() error {
	if !t.writable {
		return errReadOnly
	}
	t.d.history = nil
	return nil
}

func (t *memTx) Account(user string) (market.Account, error) {
	a, ok := t.d.accounts[user]
	if !ok {
		return market.Account{}, market.ErrNotFound
	}
	return a, nil
}

func (t *memTx) Accounts() ([]market.Account, error) {
	out := make([]market.Account, 0, len(t.d.accounts))
	for _, a := range t.d.accounts {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].User < out[j].User })
	return out, nil
}

func (t *memTx) InsertAccount(a market.Account) error {
	if !t.writable {
		return errReadOnly
	}
	if _, ok := t.d.accounts[a.User]; ok {
		return market.ErrAlreadyExists
	}
	t.d.accounts[a.User] = a
	return nil
}

func (t *memTx) UpdateAccountCash(user string, cashMicros int64) error {
	if !t.writable {
		return errReadOnly
	}
	a, ok := t.d.accounts[user]
	if !ok {
		return market.ErrNotFound
	}
	a.CashMicros = cashMicros
	t.d.accounts[user] = a
	return nil
}

func (t *memTx) DeleteAccount(user string) error {
	if !t.writable {
		return errReadOnly
	}
	if _, ok := t.d.accounts[user]; !ok {
		return market.ErrNotFound
	}
	delete(t.d.accounts, user)
	return nil
}

func (t *memTx) Holding(user, ticker string) (market.Holding, error) {
	h, ok := t.d.holdings[holdKey(user, ticker)]
	if !ok {
		return market.Holding{}, market.ErrNotFound
	}
	return h, nil
}

func (t *memTx) Holdings(user string) ([]market.Holding, error) {
	var out []market.Holding
	for _, h := range t.d.holdings {
		if h.User == user {
			out = append(out, h)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Ticker < out[j].Ticker })
	return out, nil
}

func (t *memTx) Holders(ticker string) ([]market.Holding, error) {
	var out []market.Holding
	for _, h := range t.d.holdings {
		if h.Ticker == ticker {
			out = append(out, h)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].User < out[j].User })
	return out, nil
}

func (t *memTx) UpsertHolding(h market.Holding) error {
	if !t.writable {
		return errReadOnly
	}
	t.d.holdings[holdKey(h.User, h.Ticker)] = h
	return nil
}

func (t *memTx) DeleteHolding(user, ticker string) error {
	if !t.writable {
		return errReadOnly
	}
	delete(t.d.holdings, holdKey(user, ticker))
	return nil
}

func (t *memTx) DeleteHoldings() error {
	if !t.writable {
		return errReadOnly
	}
	t.d.holdings = make(map[string]market.Holding)
	return nil
}

func (t *memTx) InsertTrade(tr market.Trade) error {
	if !t.writable {
		return errReadOnly
	}
	t.d.trades = append(t.d.trades, tr)
	return nil
}

func (t *memTx) DeleteTrades(user string) error {
	if !t.writable {
		return errReadOnly
	}
	kept := t.d.trades[:0]
	for _, tr := range t.d.trades {
		if tr.User != user {
			kept = append(kept, tr)
		}
	}
	t.d.trades = kept
	return nil
}

func (t *memTx) Setting(key string) (string, bool, error) {
	v, ok := t.d.settings[key]
	return v, ok, nil
}

func (t *memTx) PutSetting(key, value string) error {
	if !t.writable {
		return errReadOnly
	}
	t.d.settings[key] = value
	return nil
}

func (t *memTx) Settings() (map[string]string, error) {
	out := make(map[string]string, len(t.d.settings))
	for k, v := range t.d.settings {
		out[k] = v
	}
	return out, nil
}

func (t *memTx) CrashCount(year int) (int, error) {
	n := 0
	for _, e := range t.d.events {
		if e.Type == "crash" && e.Year == year {
			n++
		}
	}
	return n, nil
}

func (t *memTx) InsertMarketEvent(e market.MarketEvent) error {
	if !t.writable {
		return errReadOnly
	}
	t.d.events = append(t.d.events, e)
	return nil
}

func (t *memTx) ClaimIdempotency(user, key, action string) error {
	if !t.writable {
		return errReadOnly
	}
	k := user + "\x00" + key
	if _, ok := t.d.idem[k]; ok {
		return market.ErrDuplicateIdempotency
	}
	t.d.idem[k] = action
	return nil
}
