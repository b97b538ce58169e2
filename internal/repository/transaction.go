package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dogevents/platform/internal/domain"
	"github.com/jackc/pgx/v5"
)

type transactionRepo struct{}

// NewTransactionRepository returns a pgx-backed TransactionRepository.
func NewTransactionRepository() TransactionRepository {
	return &transactionRepo{}
}

func (r *transactionRepo) Create(ctx context.Context, db DBTX, t *domain.Transaction) error {
	items, err := marshalItems(t.Items)
	if err != nil {
		return err
	}
	refundItems, err := marshalItems(t.RefundItems)
	if err != nil {
		return err
	}

	_, err = db.Exec(ctx, `
		INSERT INTO transactions
		  (transaction_id, type, status, status_at, amount, reference,
		   bank_reference, provider, items, refund_items, stamp, created_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		t.TransactionID, string(t.Type), string(t.Status), t.StatusAt,
		t.Amount, t.Reference, t.BankReference, t.Provider,
		items, refundItems, t.Stamp, t.User, t.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert transaction: %w", err)
	}
	return nil
}

func (r *transactionRepo) Get(ctx context.Context, db DBTX, transactionID string) (*domain.Transaction, error) {
	row := db.QueryRow(ctx, `
		SELECT transaction_id, type, status, status_at, amount, reference,
		       bank_reference, provider, items, refund_items, stamp, created_by, created_at
		FROM transactions WHERE transaction_id = $1`, transactionID)
	return scanTransaction(row)
}

// TransitionStatus is the store's conditional-write primitive: the
// UPDATE applies only while the current status is in from, which
// closes the race between near-simultaneous duplicate callbacks.
func (r *transactionRepo) TransitionStatus(ctx context.Context, db DBTX, transactionID string, from []domain.TransactionStatus, to domain.TransactionStatus, provider *string) (bool, error) {
	fromStrs := make([]string, len(from))
	for i, s := range from {
		fromStrs[i] = string(s)
	}

	tag, err := db.Exec(ctx, `
		UPDATE transactions
		SET status = $2, status_at = now(), provider = COALESCE($3, provider)
		WHERE transaction_id = $1 AND status = ANY($4)`,
		transactionID, string(to), provider, fromStrs)
	if err != nil {
		return false, fmt.Errorf("transition transaction status: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *transactionRepo) ListByReference(ctx context.Context, db DBTX, reference string) ([]domain.Transaction, error) {
	rows, err := db.Query(ctx, `
		SELECT transaction_id, type, status, status_at, amount, reference,
		       bank_reference, provider, items, refund_items, stamp, created_by, created_at
		FROM transactions
		WHERE reference = $1
		ORDER BY created_at ASC`, reference)
	if err != nil {
		return nil, fmt.Errorf("query transactions: %w", err)
	}
	defer rows.Close()

	var txs []domain.Transaction
	for rows.Next() {
		t, err := scanTransactionRow(rows)
		if err != nil {
			return nil, err
		}
		txs = append(txs, *t)
	}
	return txs, rows.Err()
}

func (r *transactionRepo) RefundedAmount(ctx context.Context, db DBTX, reference string) (int64, error) {
	var sum int64
	err := db.QueryRow(ctx, `
		SELECT COALESCE(SUM(amount), 0)
		FROM transactions
		WHERE reference = $1 AND type = 'refund' AND status <> 'fail'`, reference).Scan(&sum)
	if err != nil {
		return 0, fmt.Errorf("sum refunds: %w", err)
	}
	return sum, nil
}

func marshalItems(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode items: %w", err)
	}
	return data, nil
}

func scanTransaction(row pgx.Row) (*domain.Transaction, error) {
	var t domain.Transaction
	var items, refundItems []byte
	err := row.Scan(
		&t.TransactionID, &t.Type, &t.Status, &t.StatusAt, &t.Amount, &t.Reference,
		&t.BankReference, &t.Provider, &items, &refundItems, &t.Stamp, &t.User, &t.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan transaction: %w", err)
	}
	if err := unmarshalItems(items, &t.Items); err != nil {
		return nil, err
	}
	if err := unmarshalItems(refundItems, &t.RefundItems); err != nil {
		return nil, err
	}
	return &t, nil
}

func scanTransactionRow(rows pgx.Rows) (*domain.Transaction, error) {
	var t domain.Transaction
	var items, refundItems []byte
	err := rows.Scan(
		&t.TransactionID, &t.Type, &t.Status, &t.StatusAt, &t.Amount, &t.Reference,
		&t.BankReference, &t.Provider, &items, &refundItems, &t.Stamp, &t.User, &t.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("scan transaction row: %w", err)
	}
	if err := unmarshalItems(items, &t.Items); err != nil {
		return nil, err
	}
	if err := unmarshalItems(refundItems, &t.RefundItems); err != nil {
		return nil, err
	}
	return &t, nil
}

func unmarshalItems(data []byte, v any) error {
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode items: %w", err)
	}
	return nil
}
