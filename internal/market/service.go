package market

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Service implements the engine operations on top of a Store. All mutations
// run inside one Store.Update transaction so they commit fully or not at all.
type Service struct {
	store Store
	log   *slog.Logger
	steps StepSource
}

func NewService(store Store, logger *slog.Logger, steps StepSource) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if steps == nil {
		steps = NewStepSource(0)
	}
	return &Service{store: store, log: logger, steps: steps}
}

// Register creates an account funded with the tenant's starting money. The
// first registration in a tenant also seeds the default stock catalog.
func (s *Service) Register(ctx context.Context, tenant, user string) (Account, error) {
	var out Account
	err := s.store.Update(ctx, tenant, func(tx Tx) error {
		if err := ensureCatalog(tx, tenant); err != nil {
			return err
		}
		if _, err := tx.Account(user); err == nil {
			return ErrAlreadyExists
		} else if !errors.Is(err, ErrNotFound) {
			return err
		}
		set, err := loadSettings(tx)
		if err != nil {
			return err
		}
		out = Account{
			Tenant:     tenant,
			User:       user,
			CashMicros: set.StartingMoneyMicros(),
			CreatedAt:  time.Now().UTC(),
		}
		return tx.InsertAccount(out)
	})
	if err != nil {
		return Account{}, err
	}
	s.log.Info("account registered", "tenant", tenant, "user", user, "cash_micros", out.CashMicros)
	return out, nil
}

// DeleteAccount removes a user from the tenant: the account row, every
// holding, and their trade history, all in one transaction. Shares simply
// cease to exist; nothing is settled or refunded.
func (s *Service) DeleteAccount(ctx context.Context, tenant, user string) error {
	err := s.store.Update(ctx, tenant, func(tx Tx) error {
		if _, err := tx.Account(user); err != nil {
			return err
		}
		holdings, err := tx.Holdings(user)
		if err != nil {
			return err
		}
		for _, h := range holdings {
			if err := tx.DeleteHolding(h.User, h.Ticker); err != nil {
				return err
			}
		}
		if err := tx.DeleteTrades(user); err != nil {
			return err
		}
		return tx.DeleteAccount(user)
	})
	if err != nil {
		return err
	}
	s.log.Info("account deleted", "tenant", tenant, "user", user)
	return nil
}

func (s *Service) Buy(ctx context.Context, tenant, user, ticker string, qty int64, idem string) (TradeResult, error) {
	ticker = strings.ToUpper(strings.TrimSpace(ticker))
	if qty <= 0 {
		return TradeResult{}, ErrInvalidQuantity
	}
	if idem == "" {
		idem = uuid.NewString()
	}
	var out TradeResult
	err := s.store.Update(ctx, tenant, func(tx Tx) error {
		if err := tx.ClaimIdempotency(user, idem, "buy"); err != nil {
			return err
		}
		stock, err := tx.Stock(ticker)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return ErrStockNotFound
			}
			return err
		}
		if !stock.Active {
			return ErrStockNotFound
		}
		acct, err := tx.Account(user)
		if err != nil {
			return err
		}
		notional, err := notionalMicros(stock.PriceMicros, qty)
		if err != nil {
			return err
		}
		if notional > acct.CashMicros {
			return fmt.Errorf("%w: need %.2f, have %.2f", ErrInsufficientFunds,
				MicrosToCoins(notional), MicrosToCoins(acct.CashMicros))
		}
		if err := tx.UpdateAccountCash(user, acct.CashMicros-notional); err != nil {
			return err
		}
		if err := applyBuyHolding(tx, tenant, user, ticker, qty, stock.PriceMicros); err != nil {
			return err
		}
		out = TradeResult{
			TradeID:        uuid.NewString(),
			Ticker:         ticker,
			Quantity:       qty,
			PriceMicros:    stock.PriceMicros,
			NotionalMicros: notional,
			CashMicros:     acct.CashMicros - notional,
		}
		return tx.InsertTrade(Trade{
			ID: out.TradeID, Group: out.TradeID, Tenant: tenant, User: user,
			Ticker: ticker, Quantity: qty, Side: SideBuy,
			PriceMicros: stock.PriceMicros, At: time.Now().UTC(),
		})
	})
	return out, err
}

func (s *Service) Sell(ctx context.Context, tenant, user, ticker string, qty int64, idem string) (TradeResult, error) {
	ticker = strings.ToUpper(strings.TrimSpace(ticker))
	if qty <= 0 {
		return TradeResult{}, ErrInvalidQuantity
	}
	if idem == "" {
		idem = uuid.NewString()
	}
	var out TradeResult
	err := s.store.Update(ctx, tenant, func(tx Tx) error {
		if err := tx.ClaimIdempotency(user, idem, "sell"); err != nil {
			return err
		}
		stock, err := tx.Stock(ticker)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return ErrStockNotFound
			}
			return err
		}
		acct, err := tx.Account(user)
		if err != nil {
			return err
		}
		if err := applySellHolding(tx, user, ticker, qty); err != nil {
			return err
		}
		notional, err := notionalMicros(stock.PriceMicros, qty)
		if err != nil {
			return err
		}
		credited, err := addMicros(acct.CashMicros, notional)
		if err != nil {
			return err
		}
		if err := tx.UpdateAccountCash(user, credited); err != nil {
			return err
		}
		out = TradeResult{
			TradeID:        uuid.NewString(),
			Ticker:         ticker,
			Quantity:       qty,
			PriceMicros:    stock.PriceMicros,
			NotionalMicros: notional,
			CashMicros:     credited,
		}
		return tx.InsertTrade(Trade{
			ID: out.TradeID, Group: out.TradeID, Tenant: tenant, User: user,
			Ticker: ticker, Quantity: qty, Side: SideSell,
			PriceMicros: stock.PriceMicros, At: time.Now().UTC(),
		})
	})
	return out, err
}

// Gift moves cash or shares from one account to another in a single
// transaction. Shares move at face quantity and keep the sender's average
// cost basis; no money is minted or destroyed.
func (s *Service) Gift(ctx context.Context, tenant, from, to string, payload GiftPayload, idem string) (GiftResult, error) {
	if from == to {
		return GiftResult{}, ErrSelfGift
	}
	cashGift := payload.CashMicros > 0
	shareGift := payload.Ticker != "" || payload.Quantity > 0
	if cashGift == shareGift {
		return GiftResult{}, ErrInvalidQuantity
	}
	if shareGift && payload.Quantity <= 0 {
		return GiftResult{}, ErrInvalidQuantity
	}
	if idem == "" {
		idem = uuid.NewString()
	}
	ticker := strings.ToUpper(strings.TrimSpace(payload.Ticker))

	var out GiftResult
	err := s.store.Update(ctx, tenant, func(tx Tx) error {
		if err := tx.ClaimIdempotency(from, idem, "gift"); err != nil {
			return err
		}
		sender, err := tx.Account(from)
		if err != nil {
			return err
		}
		recipient, err := tx.Account(to)
		if err != nil {
			return err
		}

		group := uuid.NewString()
		now := time.Now().UTC()
		out = GiftResult{Group: group, SenderCashMicros: sender.CashMicros}

		if cashGift {
			if payload.CashMicros > sender.CashMicros {
				return ErrInsufficientFunds
			}
			credited, err := addMicros(recipient.CashMicros, payload.CashMicros)
			if err != nil {
				return err
			}
			if err := tx.UpdateAccountCash(from, sender.CashMicros-payload.CashMicros); err != nil {
				return err
			}
			if err := tx.UpdateAccountCash(to, credited); err != nil {
				return err
			}
			out.SenderCashMicros = sender.CashMicros - payload.CashMicros
			if err := tx.InsertTrade(Trade{
				ID: uuid.NewString(), Group: group, Tenant: tenant, User: from,
				Side: SideGiftOut, PriceMicros: payload.CashMicros, At: now,
			}); err != nil {
				return err
			}
			return tx.InsertTrade(Trade{
				ID: uuid.NewString(), Group: group, Tenant: tenant, User: to,
				Side: SideGiftIn, PriceMicros: payload.CashMicros, At: now,
			})
		}

		h, err := tx.Holding(from, ticker)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return ErrInsufficientShares
			}
			return err
		}
		if h.Quantity < payload.Quantity {
			return ErrInsufficientShares
		}
		if err := applySellHolding(tx, from, ticker, payload.Quantity); err != nil {
			return err
		}
		if err := applyBuyHolding(tx, tenant, to, ticker, payload.Quantity, h.AvgPriceMicros); err != nil {
			return err
		}
		if err := tx.InsertTrade(Trade{
			ID: uuid.NewString(), Group: group, Tenant: tenant, User: from,
			Ticker: ticker, Quantity: payload.Quantity, Side: SideGiftOut,
			PriceMicros: h.AvgPriceMicros, At: now,
		}); err != nil {
			return err
		}
		return tx.InsertTrade(Trade{
			ID: uuid.NewString(), Group: group, Tenant: tenant, User: to,
			Ticker: ticker, Quantity: payload.Quantity, Side: SideGiftIn,
			PriceMicros: h.AvgPriceMicros, At: now,
		})
	})
	return out, err
}

// Portfolio values an account against one consistent price snapshot.
func (s *Service) Portfolio(ctx context.Context, tenant, user string) (Portfolio, error) {
	var out Portfolio
	err := s.store.View(ctx, tenant, func(tx Tx) error {
		acct, err := tx.Account(user)
		if err != nil {
			return err
		}
		holdings, err := tx.Holdings(user)
		if err != nil {
			return err
		}
		out = Portfolio{User: user, CashMicros: acct.CashMicros, TotalMicros: acct.CashMicros}
		for _, h := range holdings {
			stock, err := tx.Stock(h.Ticker)
			if err != nil {
				if errors.Is(err, ErrNotFound) {
					continue
				}
				return err
			}
			value, err := notionalMicros(stock.PriceMicros, h.Quantity)
			if err != nil {
				return err
			}
			cost, err := notionalMicros(h.AvgPriceMicros, h.Quantity)
			if err != nil {
				return err
			}
			out.Holdings = append(out.Holdings, HoldingView{
				Ticker:           h.Ticker,
				Name:             stock.Name,
				Quantity:         h.Quantity,
				PriceMicros:      stock.PriceMicros,
				ValueMicros:      value,
				AvgPriceMicros:   h.AvgPriceMicros,
				UnrealizedMicros: value - cost,
			})
			out.TotalMicros += value
		}
		sort.Slice(out.Holdings, func(i, j int) bool { return out.Holdings[i].Ticker < out.Holdings[j].Ticker })
		return nil
	})
	return out, err
}

func (s *Service) GetStock(ctx context.Context, tenant, ticker string) (StockView, error) {
	ticker = strings.ToUpper(strings.TrimSpace(ticker))
	var out StockView
	err := s.store.View(ctx, tenant, func(tx Tx) error {
		stock, err := tx.Stock(ticker)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return ErrStockNotFound
			}
			return err
		}
		if !stock.Active {
			return ErrStockNotFound
		}
		out = stockView(stock)
		return nil
	})
	return out, err
}

func (s *Service) ListStocks(ctx context.Context, tenant string) ([]StockView, error) {
	var out []StockView
	err := s.store.View(ctx, tenant, func(tx Tx) error {
		stocks, err := tx.Stocks(true)
		if err != nil {
			return err
		}
		out = make([]StockView, 0, len(stocks))
		for _, st := range stocks {
			out = append(out, stockView(st))
		}
		sort.Slice(out, func(i, j int) bool { return out[i].Ticker < out[j].Ticker })
		return nil
	})
	return out, err
}

func (s *Service) PriceHistory(ctx context.Context, tenant, ticker string, lookback time.Duration) ([]PricePoint, error) {
	ticker = strings.ToUpper(strings.TrimSpace(ticker))
	var out []PricePoint
	err := s.store.View(ctx, tenant, func(tx Tx) error {
		if _, err := tx.Stock(ticker); err != nil {
			if errors.Is(err, ErrNotFound) {
				return ErrStockNotFound
			}
			return err
		}
		since := time.Time{}
		if lookback > 0 {
			since = time.Now().UTC().Add(-lookback)
		}
		var err error
		out, err = tx.PriceHistory(ticker, since)
		return err
	})
	return out, err
}

// Leaderboard ranks every account by cash plus holdings at current prices.
func (s *Service) Leaderboard(ctx context.Context, tenant string, limit int) ([]LeaderboardRow, error) {
	if limit <= 0 {
		limit = 10
	}
	var out []LeaderboardRow
	err := s.store.View(ctx, tenant, func(tx Tx) error {
		accounts, err := tx.Accounts()
		if err != nil {
			return err
		}
		out = out[:0]
		for _, acct := range accounts {
			worth := acct.CashMicros
			holdings, err := tx.Holdings(acct.User)
			if err != nil {
				return err
			}
			for _, h := range holdings {
				stock, err := tx.Stock(h.Ticker)
				if err != nil {
					if errors.Is(err, ErrNotFound) {
						continue
					}
					return err
				}
				value, err := notionalMicros(stock.PriceMicros, h.Quantity)
				if err != nil {
					return err
				}
				worth += value
			}
			out = append(out, LeaderboardRow{User: acct.User, NetWorthMicros: worth})
		}
		sort.SliceStable(out, func(i, j int) bool { return out[i].NetWorthMicros > out[j].NetWorthMicros })
		if len(out) > limit {
			out = out[:limit]
		}
		for i := range out {
			out[i].Rank = int64(i + 1)
		}
		return nil
	})
	return out, err
}

func (s *Service) AddStock(ctx context.Context, tenant string, in AddStockInput) (StockView, error) {
	in.Ticker = strings.ToUpper(strings.TrimSpace(in.Ticker))
	if err := ValidateTicker(in.Ticker); err != nil {
		return StockView{}, err
	}
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" {
		in.Name = in.Ticker
	}
	risk, err := ParseRisk(string(in.Risk))
	if err != nil {
		return StockView{}, err
	}
	if in.PriceMicros <= 0 {
		return StockView{}, ErrInvalidPrice
	}
	stock := Stock{
		Tenant:      tenant,
		Ticker:      in.Ticker,
		Name:        in.Name,
		PriceMicros: ClampPrice(in.PriceMicros),
		Risk:        risk,
		Active:      true,
	}
	err = s.store.Update(ctx, tenant, func(tx Tx) error {
		if _, err := tx.Stock(in.Ticker); err == nil {
			return ErrAlreadyExists
		} else if !errors.Is(err, ErrNotFound) {
			return err
		}
		if err := tx.InsertStock(stock); err != nil {
			return err
		}
		return tx.AppendPricePoint(PricePoint{Ticker: stock.Ticker, At: time.Now().UTC(), PriceMicros: stock.PriceMicros})
	})
	if err != nil {
		return StockView{}, err
	}
	s.log.Info("stock added", "tenant", tenant, "ticker", stock.Ticker, "price_micros", stock.PriceMicros, "risk", risk)
	return stockView(stock), nil
}

// RemoveStock force-settles every outstanding holding at the current price,
// credits the owners, and deactivates the stock. All of it commits as one
// transaction; a partial settlement is impossible.
func (s *Service) RemoveStock(ctx context.Context, tenant, ticker string) (SettlementResult, error) {
	ticker = strings.ToUpper(strings.TrimSpace(ticker))
	var out SettlementResult
	err := s.store.Update(ctx, tenant, func(tx Tx) error {
		stock, err := tx.Stock(ticker)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return ErrStockNotFound
			}
			return err
		}
		if !stock.Active {
			return ErrStockNotFound
		}
		out = SettlementResult{Ticker: ticker, PriceMicros: stock.PriceMicros}

		holders, err := tx.Holders(ticker)
		if err != nil {
			return err
		}
		now := time.Now().UTC()
		group := uuid.NewString()
		for _, h := range holders {
			if h.Quantity <= 0 {
				continue
			}
			acct, err := tx.Account(h.User)
			if err != nil {
				return err
			}
			credit, err := notionalMicros(stock.PriceMicros, h.Quantity)
			if err != nil {
				return err
			}
			credited, err := addMicros(acct.CashMicros, credit)
			if err != nil {
				return err
			}
			if err := tx.UpdateAccountCash(h.User, credited); err != nil {
				return err
			}
			if err := tx.DeleteHolding(h.User, ticker); err != nil {
				return err
			}
			if err := tx.InsertTrade(Trade{
				ID: uuid.NewString(), Group: group, Tenant: tenant, User: h.User,
				Ticker: ticker, Quantity: h.Quantity, Side: SideSettlement,
				PriceMicros: stock.PriceMicros, At: now,
			}); err != nil {
				return err
			}
			out.HoldersSettled++
			out.SharesSettled += h.Quantity
			out.TotalCreditedMicros += credit
		}

		stock.Active = false
		return tx.UpdateStock(stock)
	})
	if err != nil {
		return SettlementResult{}, err
	}
	s.log.Info("stock removed", "tenant", tenant, "ticker", ticker,
		"holders_settled", out.HoldersSettled, "credited_micros", out.TotalCreditedMicros)
	return out, nil
}

func (s *Service) SetPrice(ctx context.Context, tenant, ticker string, priceMicros int64) (StockView, error) {
	ticker = strings.ToUpper(strings.TrimSpace(ticker))
	if priceMicros <= 0 {
		return StockView{}, ErrInvalidPrice
	}
	var out StockView
	err := s.store.Update(ctx, tenant, func(tx Tx) error {
		stock, err := tx.Stock(ticker)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return ErrStockNotFound
			}
			return err
		}
		stock.PriceMicros = ClampPrice(priceMicros)
		if err := tx.UpdateStock(stock); err != nil {
			return err
		}
		if err := tx.AppendPricePoint(PricePoint{Ticker: ticker, At: time.Now().UTC(), PriceMicros: stock.PriceMicros}); err != nil {
			return err
		}
		out = stockView(stock)
		return nil
	})
	return out, err
}

func (s *Service) SetRisk(ctx context.Context, tenant, ticker string, risk Risk) (StockView, error) {
	ticker = strings.ToUpper(strings.TrimSpace(ticker))
	parsed, err := ParseRisk(string(risk))
	if err != nil {
		return StockView{}, err
	}
	var out StockView
	err = s.store.Update(ctx, tenant, func(tx Tx) error {
		stock, err := tx.Stock(ticker)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return ErrStockNotFound
			}
			return err
		}
		stock.Risk = parsed
		if err := tx.UpdateStock(stock); err != nil {
			return err
		}
		out = stockView(stock)
		return nil
	})
	return out, err
}

// MarketCrash multiplies every active stock's price by one harsh factor in a
// single atomic pass. Holdings and cash are untouched; losses are realized
// only through the lower prices. At most one crash per tenant per year.
func (s *Service) MarketCrash(ctx context.Context, tenant string) (CrashResult, error) {
	var out CrashResult
	err := s.store.Update(ctx, tenant, func(tx Tx) error {
		set, err := loadSettings(tx)
		if err != nil {
			return err
		}
		now := time.Now().UTC()
		count, err := tx.CrashCount(now.Year())
		if err != nil {
			return err
		}
		if count > 0 {
			return ErrCrashCooldown
		}
		stocks, err := tx.Stocks(true)
		if err != nil {
			return err
		}
		if len(stocks) == 0 {
			return ErrStockNotFound
		}
		lo, hi := set.CrashRange()
		factor := CrashFactor(lo, hi, s.steps)
		out = CrashResult{Factor: factor}
		for _, stock := range stocks {
			stock.PriceMicros = ApplyCrash(stock.PriceMicros, factor)
			if err := tx.UpdateStock(stock); err != nil {
				return err
			}
			if err := tx.AppendPricePoint(PricePoint{Ticker: stock.Ticker, At: now, PriceMicros: stock.PriceMicros}); err != nil {
				return err
			}
			out.Stocks = append(out.Stocks, stockView(stock))
		}
		return tx.InsertMarketEvent(MarketEvent{Tenant: tenant, Type: "crash", Year: now.Year(), At: now})
	})
	if err != nil {
		return CrashResult{}, err
	}
	s.log.Info("market crash", "tenant", tenant, "factor", out.Factor, "stocks", len(out.Stocks))
	return out, nil
}

// ResetStocks wipes the tenant's stocks, price history and holdings and
// reseeds the default catalog. Account cash is left alone.
func (s *Service) ResetStocks(ctx context.Context, tenant string) error {
	err := s.store.Update(ctx, tenant, func(tx Tx) error {
		if err := tx.DeleteHoldings(); err != nil {
			return err
		}
		if err := tx.DeletePriceHistory(); err != nil {
			return err
		}
		if err := tx.DeleteStocks(); err != nil {
			return err
		}
		return seedCatalog(tx, tenant)
	})
	if err != nil {
		return err
	}
	s.log.Info("market reset", "tenant", tenant)
	return nil
}

func (s *Service) SetSetting(ctx context.Context, tenant, key, value string) error {
	key = strings.TrimSpace(key)
	value = strings.TrimSpace(value)
	if err := ValidateSetting(key, value); err != nil {
		return err
	}
	return s.store.Update(ctx, tenant, func(tx Tx) error {
		return tx.PutSetting(key, value)
	})
}

// ListSettings returns the tenant's effective settings, defaults included.
func (s *Service) ListSettings(ctx context.Context, tenant string) (Settings, error) {
	var out Settings
	err := s.store.View(ctx, tenant, func(tx Tx) error {
		var err error
		out, err = loadSettings(tx)
		return err
	})
	return out, err
}

// TickInterval reads the tenant's configured scheduler interval.
func (s *Service) TickInterval(ctx context.Context, tenant string) (time.Duration, error) {
	var every time.Duration
	err := s.store.View(ctx, tenant, func(tx Tx) error {
		set, err := loadSettings(tx)
		if err != nil {
			return err
		}
		every = set.UpdateEvery()
		return nil
	})
	return every, err
}

// TickTenant advances every active stock of one tenant by one stochastic
// step. Each stock commits in its own transaction: a failing stock is logged
// and skipped, never blocking the rest of the pass.
func (s *Service) TickTenant(ctx context.Context, tenant string) error {
	var set Settings
	var stocks []Stock
	if err := s.store.View(ctx, tenant, func(tx Tx) error {
		var err error
		if set, err = loadSettings(tx); err != nil {
			return err
		}
		stocks, err = tx.Stocks(true)
		return err
	}); err != nil {
		return fmt.Errorf("tick %s: %w", tenant, err)
	}

	now := time.Now().UTC()
	updated := 0
	for _, st := range stocks {
		err := s.store.Update(ctx, tenant, func(tx Tx) error {
			cur, err := tx.Stock(st.Ticker)
			if err != nil {
				return err
			}
			if !cur.Active {
				return nil
			}
			cur.PriceMicros = NextPrice(cur.PriceMicros, TickParamsFor(set, cur.Risk), s.steps)
			if err := tx.UpdateStock(cur); err != nil {
				return err
			}
			return tx.AppendPricePoint(PricePoint{Ticker: cur.Ticker, At: now, PriceMicros: cur.PriceMicros})
		})
		if err != nil {
			s.log.Warn("stock tick skipped", "tenant", tenant, "ticker", st.Ticker, "err", err)
			continue
		}
		updated++
	}
	s.log.Info("market tick", "tenant", tenant, "stocks", updated)
	return nil
}

func (s *Service) Tenants(ctx context.Context) ([]string, error) {
	return s.store.Tenants(ctx)
}

func stockView(s Stock) StockView {
	return StockView{Ticker: s.Ticker, Name: s.Name, PriceMicros: s.PriceMicros, Risk: s.Risk}
}

func ensureCatalog(tx Tx, tenant string) error {
	stocks, err := tx.Stocks(false)
	if err != nil {
		return err
	}
	if len(stocks) > 0 {
		return nil
	}
	return seedCatalog(tx, tenant)
}

func seedCatalog(tx Tx, tenant string) error {
	now := time.Now().UTC()
	for _, stock := range DefaultCatalog(tenant) {
		if err := tx.InsertStock(stock); err != nil {
			return err
		}
		if err := tx.AppendPricePoint(PricePoint{Ticker: stock.Ticker, At: now, PriceMicros: stock.PriceMicros}); err != nil {
			return err
		}
	}
	return nil
}

func applyBuyHolding(tx Tx, tenant, user, ticker string, qty, priceMicros int64) error {
	h, err := tx.Holding(user, ticker)
	if errors.Is(err, ErrNotFound) {
		return tx.UpsertHolding(Holding{
			Tenant: tenant, User: user, Ticker: ticker,
			Quantity: qty, AvgPriceMicros: priceMicros,
		})
	}
	if err != nil {
		return err
	}
	avg, err := averageCostMicros(h.AvgPriceMicros, h.Quantity, priceMicros, qty)
	if err != nil {
		return err
	}
	h.Quantity += qty
	h.AvgPriceMicros = avg
	return tx.UpsertHolding(h)
}

func applySellHolding(tx Tx, user, ticker string, qty int64) error {
	h, err := tx.Holding(user, ticker)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrInsufficientShares
		}
		return err
	}
	if h.Quantity < qty {
		return ErrInsufficientShares
	}
	if h.Quantity == qty {
		return tx.DeleteHolding(user, ticker)
	}
	h.Quantity -= qty
	return tx.UpsertHolding(h)
}
