package store

import (
	"context"
	"strconv"

	"cacaowallet/internal/models"

	"github.com/shopspring/decimal"
)

type TransactionStore struct {
	db DB
}

const transactionColumns = `t.id, t.user_id, t.type, t.status, t.fiat_amount, t.cacao_amount, t.fee_amount,
	t.price_at_execution, t.reference, t.payment_method_id, t.quote_id, t.notes, t.resolved_by,
	t.resolved_at, t.created_at, t.updated_at`

func NewTransactionStore(db DB) *TransactionStore {
	return &TransactionStore{db: db}
}

// Create inserts a transaction. Rows created in a terminal status are
// stamped as resolved at insert time.
func (s *TransactionStore) Create(ctx context.Context, tx Execer, input TransactionInput) error {
	query := `
		INSERT INTO transactions (id, user_id, type, status, fiat_amount, cacao_amount, fee_amount,
		                          price_at_execution, reference, payment_method_id, quote_id, notes,
		                          resolved_by, resolved_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13,
		        CASE WHEN $4::text = 'PENDING' THEN NULL ELSE NOW() END)
	`
	_, err := tx.ExecContext(ctx, query,
		input.ID, input.UserID, string(input.Type), string(input.Status),
		input.FiatAmount, input.CacaoAmount, input.FeeAmount, input.PriceAtExecution,
		input.Reference, input.PaymentMethodID, input.QuoteID, input.Notes, input.ResolvedBy,
	)
	return err
}

func (s *TransactionStore) GetByID(ctx context.Context, id string) (models.Transaction, error) {
	var row models.Transaction
	err := s.db.GetContext(ctx, &row, `SELECT `+transactionColumns+` FROM transactions t WHERE t.id = $1`, id)
	if err != nil {
		return models.Transaction{}, err
	}
	return row, nil
}

func (s *TransactionStore) GetForUpdate(ctx context.Context, tx Getter, id string) (models.Transaction, error) {
	var row models.Transaction
	err := tx.GetContext(ctx, &row, `
		SELECT `+transactionColumns+`
		FROM transactions t
		WHERE t.id = $1
		FOR UPDATE
	`, id)
	if err != nil {
		return models.Transaction{}, err
	}
	return row, nil
}

// Resolve moves a PENDING transaction to its terminal status. It returns the
// number of rows changed, which is zero when the row was already resolved.
func (s *TransactionStore) Resolve(ctx context.Context, tx Execer, input ResolveInput) (int64, error) {
	res, err := tx.ExecContext(ctx, `
		UPDATE transactions
		SET status = $2,
		    notes = COALESCE($3, notes),
		    resolved_by = $4,
		    resolved_at = NOW(),
		    updated_at = NOW(),
		    cacao_amount = COALESCE($5, cacao_amount),
		    price_at_execution = COALESCE($6, price_at_execution)
		WHERE id = $1 AND status = 'PENDING'
	`, input.ID, string(input.Status), input.Notes, input.ResolvedBy, input.CacaoAmount, input.PriceAtExecution)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *TransactionStore) ListPending(ctx context.Context, limit, offset int) ([]models.PendingTransaction, error) {
	var rows []models.PendingTransaction
	err := s.db.SelectContext(ctx, &rows, `
		SELECT `+transactionColumns+`,
		       u.username, u.email,
		       pm.type AS payment_method_type,
		       pm.details::text AS payment_method_details,
		       pd.id AS physical_deposit_id
		FROM transactions t
		JOIN users u ON u.id = t.user_id
		LEFT JOIN payment_methods pm ON pm.id = t.payment_method_id
		LEFT JOIN physical_deposits pd ON pd.transaction_id = t.id
		WHERE t.status = 'PENDING'
		ORDER BY t.created_at ASC
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (s *TransactionStore) ListByUser(ctx context.Context, userID string, txType models.TransactionType, limit, offset int) ([]models.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions t WHERE t.user_id = $1`
	args := []any{userID}
	param := 2
	if txType != "" {
		query += " AND t.type = $2"
		args = append(args, string(txType))
		param = 3
	}
	query += " ORDER BY t.created_at DESC LIMIT $" + strconv.Itoa(param) + " OFFSET $" + strconv.Itoa(param+1)
	args = append(args, limit, offset)
	var rows []models.Transaction
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, err
	}
	return rows, nil
}

func (s *TransactionStore) ListAll(ctx context.Context, status models.TransactionStatus, limit, offset int) ([]models.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions t`
	args := []any{}
	param := 1
	if status != "" {
		query += " WHERE t.status = $1"
		args = append(args, string(status))
		param = 2
	}
	query += " ORDER BY t.created_at DESC LIMIT $" + strconv.Itoa(param) + " OFFSET $" + strconv.Itoa(param+1)
	args = append(args, limit, offset)
	var rows []models.Transaction
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, err
	}
	return rows, nil
}

type TransactionInput struct {
	ID               string
	UserID           string
	Type             models.TransactionType
	Status           models.TransactionStatus
	FiatAmount       decimal.Decimal
	CacaoAmount      decimal.Decimal
	FeeAmount        decimal.Decimal
	PriceAtExecution decimal.NullDecimal
	Reference        *string
	PaymentMethodID  *string
	QuoteID          *string
	Notes            *string
	ResolvedBy       *string
}

// ResolveInput carries the terminal status and the values only known at
// resolution time. Null fields keep the stored value.
type ResolveInput struct {
	ID               string
	Status           models.TransactionStatus
	Notes            *string
	ResolvedBy       string
	CacaoAmount      decimal.NullDecimal
	PriceAtExecution decimal.NullDecimal
}
