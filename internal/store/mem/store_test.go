package mem

import (
	"context"
	"errors"
	"testing"
	"time"

	"toilex/internal/market"
)

func seedStock(t *testing.T, st *Store, tenant string) {
	t.Helper()
	err := st.Update(context.Background(), tenant, func(tx market.Tx) error {
		return tx.InsertStock(market.Stock{
			Tenant: tenant, Ticker: "AAA", Name: "Triple A",
			PriceMicros: market.CoinsToMicros(10), Risk: market.RiskLow,
			Active: true,
		})
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
}

func TestUpdateRollsBackOnError(t *testing.T) {
	st := New()
	ctx := context.Background()
	seedStock(t, st, "guild")

	boom := errors.New("boom")
	err := st.Update(ctx, "guild", func(tx market.Tx) error {
		if err := tx.UpdateStock(market.Stock{
			Tenant: "guild", Ticker: "AAA", Name: "Triple A",
			PriceMicros: market.CoinsToMicros(999), Risk: market.RiskLow,
			Active: true,
		}); err != nil {
			return err
		}
		if err := tx.InsertAccount(market.Account{
			Tenant: "guild", User: "alice", CashMicros: 1, CreatedAt: time.Now().UTC(),
		}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected fn error back, got %v", err)
	}

	// Neither staged write survived.
	err = st.View(ctx, "guild", func(tx market.Tx) error {
		stock, err := tx.Stock("AAA")
		if err != nil {
			return err
		}
		if stock.PriceMicros != market.CoinsToMicros(10) {
			t.Fatalf("price mutated despite rollback: %d", stock.PriceMicros)
		}
		if _, err := tx.Account("alice"); !errors.Is(err, market.ErrNotFound) {
			t.Fatalf("account survived rollback: %v", err)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("view: %v", err)
	}
}

func TestViewRejectsWrites(t *testing.T) {
	st := New()
	ctx := context.Background()
	seedStock(t, st, "guild")

	err := st.View(ctx, "guild", func(tx market.Tx) error {
		return tx.PutSetting("market_bias", "0")
	})
	if err == nil {
		t.Fatal("expected write inside View to fail")
	}
}

func TestTenantsListsKnownTenants(t *testing.T) {
	st := New()
	seedStock(t, st, "alpha")
	seedStock(t, st, "beta")

	got, err := st.Tenants(context.Background())
	if err != nil {
		t.Fatalf("tenants: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("tenant count: %v", got)
	}
	seen := map[string]bool{}
	for _, tn := range got {
		seen[tn] = true
	}
	if !seen["alpha"] || !seen["beta"] {
		t.Fatalf("tenants missing: %v", got)
	}
}

func TestClaimIdempotencyScopedPerUser(t *testing.T) {
	st := New()
	ctx := context.Background()

	claim := func(user, key string) error {
		return st.Update(ctx, "guild", func(tx market.Tx) error {
			return tx.ClaimIdempotency(user, key, "buy")
		})
	}

	if err := claim("alice", "k1"); err != nil {
		t.Fatalf("first claim: %v", err)
	}
	if err := claim("alice", "k1"); !errors.Is(err, market.ErrDuplicateIdempotency) {
		t.Fatalf("replay: got %v", err)
	}
	// Same key under another user is a different claim.
	if err := claim("bob", "k1"); err != nil {
		t.Fatalf("other user: %v", err)
	}
	// A failed transaction releases the claim.
	boom := errors.New("boom")
	err := st.Update(ctx, "guild", func(tx market.Tx) error {
		if err := tx.ClaimIdempotency("alice", "k2", "buy"); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected fn error, got %v", err)
	}
	if err := claim("alice", "k2"); err != nil {
		t.Fatalf("claim after rollback: %v", err)
	}
}
