package store

import (
	"context"
	"database/sql"
	"strings"
	"testing"

	"cacaowallet/internal/models"

	"github.com/shopspring/decimal"
)

func TestTransactionStoreCreate(t *testing.T) {
	ctx := context.Background()
	execer := stubExecer{
		execFn: func(_ context.Context, query string, args ...any) (sql.Result, error) {
			if !strings.Contains(query, "INSERT INTO transactions") {
				t.Fatalf("unexpected query: %s", query)
			}
			if len(args) != 13 || args[0] != "tx-1" || args[2] != "SELL" || args[3] != "PENDING" {
				t.Fatalf("unexpected args: %#v", args)
			}
			if held := args[5].(decimal.Decimal); held.String() != "10" {
				t.Fatalf("unexpected cacao amount: %s", held)
			}
			return stubResult{rows: 1}, nil
		},
	}
	store := NewTransactionStore(stubDB{})
	err := store.Create(ctx, execer, TransactionInput{
		ID:          "tx-1",
		UserID:      "user-1",
		Type:        models.TypeSell,
		Status:      models.StatusPending,
		CacaoAmount: decimal.NewFromInt(10),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestTransactionStoreGetForUpdate(t *testing.T) {
	getter := stubGetter{
		getFn: func(_ context.Context, dest any, query string, args ...any) error {
			if !strings.Contains(query, "FOR UPDATE") {
				t.Fatalf("expected row lock: %s", query)
			}
			if args[0] != "tx-1" {
				t.Fatalf("unexpected args: %#v", args)
			}
			*dest.(*models.Transaction) = models.Transaction{ID: "tx-1", Status: models.StatusPending}
			return nil
		},
	}
	row, err := NewTransactionStore(stubDB{}).GetForUpdate(context.Background(), getter, "tx-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if row.Status != models.StatusPending {
		t.Fatalf("unexpected row: %#v", row)
	}
}

func TestTransactionStoreResolveIsConditional(t *testing.T) {
	execer := stubExecer{
		execFn: func(_ context.Context, query string, args ...any) (sql.Result, error) {
			if !strings.Contains(query, "status = 'PENDING'") {
				t.Fatalf("expected pending guard: %s", query)
			}
			if len(args) != 6 || args[0] != "tx-1" || args[1] != "COMPLETED" || args[3] != "operator-1" {
				t.Fatalf("unexpected args: %#v", args)
			}
			return stubResult{rows: 0}, nil
		},
	}
	rows, err := NewTransactionStore(stubDB{}).Resolve(context.Background(), execer, ResolveInput{
		ID:         "tx-1",
		Status:     models.StatusCompleted,
		ResolvedBy: "operator-1",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rows != 0 {
		t.Fatalf("expected 0 rows, got %d", rows)
	}
}

func TestTransactionStoreListPending(t *testing.T) {
	store := NewTransactionStore(stubDB{
		selectFn: func(_ context.Context, dest any, query string, args ...any) error {
			for _, fragment := range []string{"WHERE t.status = 'PENDING'", "LEFT JOIN payment_methods", "LEFT JOIN physical_deposits"} {
				if !strings.Contains(query, fragment) {
					t.Fatalf("expected %q in query: %s", fragment, query)
				}
			}
			*dest.(*[]models.PendingTransaction) = []models.PendingTransaction{{Transaction: models.Transaction{ID: "tx-1"}, Username: "ana"}}
			return nil
		},
	})
	rows, err := store.ListPending(context.Background(), 50, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rows) != 1 || rows[0].Username != "ana" {
		t.Fatalf("unexpected rows: %#v", rows)
	}
}

func TestTransactionStoreListByUserWithType(t *testing.T) {
	store := NewTransactionStore(stubDB{
		selectFn: func(_ context.Context, dest any, query string, args ...any) error {
			if !strings.Contains(query, "AND t.type = $2") || !strings.Contains(query, "LIMIT $3 OFFSET $4") {
				t.Fatalf("unexpected query: %s", query)
			}
			if len(args) != 4 || args[1] != "BUY" {
				t.Fatalf("unexpected args: %#v", args)
			}
			*dest.(*[]models.Transaction) = []models.Transaction{{ID: "tx-1"}}
			return nil
		},
	})
	rows, err := store.ListByUser(context.Background(), "user-1", models.TypeBuy, 10, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("unexpected rows: %#v", rows)
	}
}

func TestTransactionStoreListAll(t *testing.T) {
	store := NewTransactionStore(stubDB{
		selectFn: func(_ context.Context, _ any, query string, args ...any) error {
			if strings.Contains(query, "WHERE") {
				t.Fatalf("unexpected filter: %s", query)
			}
			if !strings.Contains(query, "LIMIT $1 OFFSET $2") {
				t.Fatalf("unexpected paging placeholders: %s", query)
			}
			if len(args) != 2 {
				t.Fatalf("unexpected args: %#v", args)
			}
			return nil
		},
	})
	if _, err := store.ListAll(context.Background(), "", 10, 0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestTransactionStoreListAllWithStatus(t *testing.T) {
	store := NewTransactionStore(stubDB{
		selectFn: func(_ context.Context, _ any, query string, args ...any) error {
			if !strings.Contains(query, "WHERE t.status = $1") || !strings.Contains(query, "LIMIT $2 OFFSET $3") {
				t.Fatalf("unexpected query: %s", query)
			}
			if len(args) != 3 || args[0] != "PENDING" || args[1] != 25 || args[2] != 50 {
				t.Fatalf("unexpected args: %#v", args)
			}
			return nil
		},
	})
	if _, err := store.ListAll(context.Background(), models.StatusPending, 25, 50); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
