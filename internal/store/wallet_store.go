package store

import (
	"context"

	"cacaowallet/internal/models"

	"github.com/shopspring/decimal"
)

type WalletStore struct {
	db DB
}

// WalletReconciliation compares stored balances with the ledger entry sums.
type WalletReconciliation struct {
	WalletID        string          `db:"wallet_id"`
	UserID          string          `db:"user_id"`
	Username        *string         `db:"username"`
	FiatBalance     decimal.Decimal `db:"fiat_balance"`
	FiatLedgerSum   decimal.Decimal `db:"fiat_ledger_sum"`
	CacaoBalance    decimal.Decimal `db:"cacao_balance"`
	CacaoLedgerSum  decimal.Decimal `db:"cacao_ledger_sum"`
	FiatDifference  decimal.Decimal `db:"fiat_difference"`
	CacaoDifference decimal.Decimal `db:"cacao_difference"`
}

type WalletWithUser struct {
	models.Wallet
	Username string `db:"username"`
	Email    string `db:"email"`
}

const walletColumns = `id, user_id, fiat_balance, fiat_held, cacao_balance, cacao_held, is_active, created_at, updated_at`

func NewWalletStore(db DB) *WalletStore {
	return &WalletStore{db: db}
}

func (s *WalletStore) Create(ctx context.Context, tx Execer, id, userID string) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO wallets (id, user_id, fiat_balance, fiat_held, cacao_balance, cacao_held, is_active)
		VALUES ($1, $2, 0, 0, 0, 0, TRUE)
	`, id, userID)
	return err
}

func (s *WalletStore) GetByUser(ctx context.Context, userID string) (models.Wallet, error) {
	var row models.Wallet
	err := s.db.GetContext(ctx, &row, `SELECT `+walletColumns+` FROM wallets WHERE user_id = $1`, userID)
	if err != nil {
		return models.Wallet{}, err
	}
	return row, nil
}

func (s *WalletStore) GetForUpdate(ctx context.Context, tx Getter, userID string) (models.Wallet, error) {
	var row models.Wallet
	err := tx.GetContext(ctx, &row, `
		SELECT `+walletColumns+`
		FROM wallets
		WHERE user_id = $1
		FOR UPDATE
	`, userID)
	if err != nil {
		return models.Wallet{}, err
	}
	return row, nil
}

func (s *WalletStore) UpdateBalances(ctx context.Context, tx Execer, wallet models.Wallet) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE wallets
		SET fiat_balance = $1, fiat_held = $2, cacao_balance = $3, cacao_held = $4, updated_at = NOW()
		WHERE id = $5
	`, wallet.FiatBalance, wallet.FiatHeld, wallet.CacaoBalance, wallet.CacaoHeld, wallet.ID)
	return err
}

func (s *WalletStore) SetActive(ctx context.Context, tx Execer, userID string, active bool) (int64, error) {
	res, err := tx.ExecContext(ctx, `
		UPDATE wallets
		SET is_active = $1, updated_at = NOW()
		WHERE user_id = $2
	`, active, userID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// SumCacao totals every customer cacao balance. Issued tokens must equal it.
func (s *WalletStore) SumCacao(ctx context.Context) (decimal.Decimal, error) {
	var sum decimal.Decimal
	err := s.db.GetContext(ctx, &sum, `SELECT COALESCE(SUM(cacao_balance), 0) FROM wallets`)
	return sum, err
}

func (s *WalletStore) ListAllWithUsers(ctx context.Context, limit, offset int) ([]WalletWithUser, error) {
	var rows []WalletWithUser
	err := s.db.SelectContext(ctx, &rows, `
		SELECT w.id, w.user_id, w.fiat_balance, w.fiat_held, w.cacao_balance, w.cacao_held,
		       w.is_active, w.created_at, w.updated_at, u.username, u.email
		FROM wallets w
		JOIN users u ON u.id = w.user_id
		ORDER BY w.created_at DESC
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (s *WalletStore) Reconcile(ctx context.Context, userID string) ([]WalletReconciliation, error) {
	query := `
		SELECT w.id AS wallet_id,
		       w.user_id,
		       u.username,
		       w.fiat_balance,
		       COALESCE(SUM(l.amount) FILTER (WHERE l.asset = 'USD'), 0) AS fiat_ledger_sum,
		       w.cacao_balance,
		       COALESCE(SUM(l.amount) FILTER (WHERE l.asset = 'CACAO'), 0) AS cacao_ledger_sum,
		       (w.fiat_balance - COALESCE(SUM(l.amount) FILTER (WHERE l.asset = 'USD'), 0)) AS fiat_difference,
		       (w.cacao_balance - COALESCE(SUM(l.amount) FILTER (WHERE l.asset = 'CACAO'), 0)) AS cacao_difference
		FROM wallets w
		LEFT JOIN users u ON u.id = w.user_id
		LEFT JOIN ledger_entries l ON l.account_id = w.id
	`
	args := []any{}
	if userID != "" {
		query += " WHERE w.user_id = $1"
		args = append(args, userID)
	}
	query += `
		GROUP BY w.id, w.user_id, u.username, w.fiat_balance, w.cacao_balance
		ORDER BY w.id
	`
	var rows []WalletReconciliation
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, err
	}
	return rows, nil
}
