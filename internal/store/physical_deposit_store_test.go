package store

import (
	"context"
	"database/sql"
	"strings"
	"testing"

	"cacaowallet/internal/models"

	"github.com/shopspring/decimal"
)

func TestPhysicalDepositStoreCreate(t *testing.T) {
	execer := stubExecer{
		execFn: func(_ context.Context, query string, args ...any) (sql.Result, error) {
			if !strings.Contains(query, "INSERT INTO physical_deposits") {
				t.Fatalf("unexpected query: %s", query)
			}
			if len(args) != 9 || args[1] != "tx-1" || args[5] != "GRADO_1" {
				t.Fatalf("unexpected args: %#v", args)
			}
			return stubResult{rows: 1}, nil
		},
	}
	err := NewPhysicalDepositStore(stubDB{}).Create(context.Background(), execer, models.PhysicalDeposit{
		ID:            "pd-1",
		TransactionID: "tx-1",
		UserID:        "user-1",
		GrossWeight:   decimal.NewFromInt(50000),
		QualityGrade:  models.GradeGrado1,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestPhysicalDepositStoreRecordConversionOnce(t *testing.T) {
	execer := stubExecer{
		execFn: func(_ context.Context, query string, args ...any) (sql.Result, error) {
			if !strings.Contains(query, "final_tokens_issued IS NULL") {
				t.Fatalf("expected write-once guard: %s", query)
			}
			if len(args) != 4 || args[0] != "pd-1" || args[3] != "inspector-1" {
				t.Fatalf("unexpected args: %#v", args)
			}
			return stubResult{rows: 0}, nil
		},
	}
	rows, err := NewPhysicalDepositStore(stubDB{}).RecordConversion(context.Background(), execer, "pd-1", "inspector-1",
		decimal.RequireFromString("0.90"), decimal.RequireFromString("45000.0000"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rows != 0 {
		t.Fatalf("expected no rows, got %d", rows)
	}
}

func TestPhysicalDepositStoreGetByTransactionForUpdate(t *testing.T) {
	getter := stubGetter{
		getFn: func(_ context.Context, dest any, query string, args ...any) error {
			if !strings.Contains(query, "WHERE transaction_id = $1") || !strings.Contains(query, "FOR UPDATE") {
				t.Fatalf("unexpected query: %s", query)
			}
			*dest.(*models.PhysicalDeposit) = models.PhysicalDeposit{ID: "pd-1", TransactionID: args[0].(string)}
			return nil
		},
	}
	d, err := NewPhysicalDepositStore(stubDB{}).GetByTransactionForUpdate(context.Background(), getter, "tx-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.TransactionID != "tx-1" {
		t.Fatalf("unexpected deposit: %#v", d)
	}
}

func TestPhysicalDepositStoreUpdateMeasurements(t *testing.T) {
	execer := stubExecer{
		execFn: func(_ context.Context, query string, args ...any) (sql.Result, error) {
			if !strings.Contains(query, "UPDATE physical_deposits") || !strings.Contains(query, "final_tokens_issued IS NULL") {
				t.Fatalf("unexpected query: %s", query)
			}
			if len(args) != 6 || args[2] != "PREMIUM" {
				t.Fatalf("unexpected args: %#v", args)
			}
			return stubResult{rows: 1}, nil
		},
	}
	rows, err := NewPhysicalDepositStore(stubDB{}).UpdateMeasurements(context.Background(), execer, models.PhysicalDeposit{ID: "pd-1", QualityGrade: models.GradePremium})
	if err != nil || rows != 1 {
		t.Fatalf("unexpected result: %d %v", rows, err)
	}
}
