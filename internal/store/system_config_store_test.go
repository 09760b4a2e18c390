package store

import (
	"context"
	"database/sql"
	"strings"
	"testing"

	"cacaowallet/internal/models"

	"github.com/shopspring/decimal"
)

func TestSystemConfigStoreGetUsesGivenGetter(t *testing.T) {
	store := NewSystemConfigStore(stubDB{
		getFn: func(_ context.Context, _ any, query string, _ ...any) error {
			t.Fatalf("pool should not be used: %s", query)
			return nil
		},
	})
	getter := stubGetter{
		getFn: func(_ context.Context, dest any, query string, _ ...any) error {
			if !strings.Contains(query, "FROM system_config") {
				t.Fatalf("unexpected query: %s", query)
			}
			*dest.(*models.SystemConfig) = models.SystemConfig{BuyPrice: decimal.RequireFromString("0.012")}
			return nil
		},
	}
	cfg, err := store.Get(context.Background(), getter)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.BuyPrice.String() != "0.012" {
		t.Fatalf("unexpected config: %#v", cfg)
	}
}

func TestSystemConfigStoreGetFallsBackToPool(t *testing.T) {
	called := false
	store := NewSystemConfigStore(stubDB{
		getFn: func(_ context.Context, _ any, _ string, _ ...any) error {
			called = true
			return nil
		},
	})
	if _, err := store.Get(context.Background(), nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !called {
		t.Fatalf("expected pool lookup")
	}
}

func TestSystemConfigStoreUpdate(t *testing.T) {
	operator := "admin-1"
	execer := stubExecer{
		execFn: func(_ context.Context, query string, args ...any) (sql.Result, error) {
			if !strings.Contains(query, "UPDATE system_config") {
				t.Fatalf("unexpected query: %s", query)
			}
			if len(args) != 7 || args[6].(*string) != &operator {
				t.Fatalf("unexpected args: %#v", args)
			}
			return stubResult{rows: 1}, nil
		},
	}
	err := NewSystemConfigStore(stubDB{}).Update(context.Background(), execer, models.SystemConfig{UpdatedBy: &operator})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestSystemConfigStoreEnsureSeeded(t *testing.T) {
	store := NewSystemConfigStore(stubDB{
		execFn: func(_ context.Context, query string, args ...any) (sql.Result, error) {
			if !strings.Contains(query, "ON CONFLICT (id) DO NOTHING") {
				t.Fatalf("unexpected query: %s", query)
			}
			if len(args) != 6 {
				t.Fatalf("unexpected args: %#v", args)
			}
			return stubResult{rows: 0}, nil
		},
	})
	seeded, err := store.EnsureSeeded(context.Background(), models.SystemConfig{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if seeded {
		t.Fatalf("expected existing row to be kept")
	}
}
