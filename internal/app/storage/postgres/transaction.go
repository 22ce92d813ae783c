package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	pg "github.com/lib/pq"

	"settlement/internal/app/apperr"
	"settlement/internal/app/logger"
	"settlement/internal/app/model"
	"settlement/internal/app/storage"
)

// storage.TransactionRepository interface implementation
var _ storage.TransactionRepository = (*TransactionRepository)(nil)

type TransactionRepository struct {
	db *sql.DB
}

func (r *TransactionRepository) LoggerComponent() string {
	return "TransactionRepository"
}

func NewTransactionRepository(db *sql.DB) (*TransactionRepository, error) {
	s := &TransactionRepository{
		db: db,
	}
	return s, nil
}

const selectColumns = `id, external_id, provider, direction, user_id, amount, asset, status, confirmations, coalesce(reason, ''), meta, created_at, updated_at`

// Create implementation of interface storage.TransactionRepository.
// Duplicate (provider, direction, external_id) inserts hit the uniqueness
// constraint and are reconciled into the existing record instead of erroring.
func (r *TransactionRepository) Create(ctx context.Context, m *model.Transaction) (*model.Transaction, bool, error) {
	if m.ExternalID == "" || m.Provider == "" || m.UserID == "" {
		return nil, false, apperr.ErrInvalidInput
	}
	if m.Amount.IsNegative() {
		return nil, false, apperr.ErrInvalidInput
	}

	metaJSON, err := json.Marshal(m.Meta)
	if err != nil {
		return nil, false, fmt.Errorf("meta encode: %w", err)
	}

	const SQL = `
		INSERT INTO transactions (external_id, provider, direction, user_id, amount, asset, confirmations, meta)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, status, created_at, updated_at
`

	err = r.db.QueryRowContext(ctx, SQL,
		m.ExternalID, m.Provider, m.Direction, m.UserID, m.Amount, m.Asset, m.Confirmations, metaJSON,
	).Scan(&m.InternalID, &m.Status, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		if pgErr, ok := err.(*pg.Error); ok {
			if pgerrcode.IsIntegrityConstraintViolation(string(pgErr.Code)) {
				em, err := r.merge(ctx, m)
				if err != nil {
					return nil, false, err
				}
				return em, true, nil
			}
		}

		return nil, false, fmt.Errorf("insert: %w", err)
	}

	return m, false, nil
}

// merge reconciles a duplicate insert with the stored record: the confirmation
// count may only grow, amount and meta follow the later delivery when supplied,
// and terminal records are returned untouched.
func (r *TransactionRepository) merge(ctx context.Context, m *model.Transaction) (*model.Transaction, error) {
	em, err := r.FindByExternalID(ctx, m.Provider, m.Direction, m.ExternalID)
	if err != nil {
		return nil, err
	}
	if em.Status.Terminal() {
		return em, nil
	}

	amount := em.Amount
	if m.Amount.IsPositive() {
		amount = m.Amount
	}

	var metaJSON interface{}
	if len(m.Meta) > 0 {
		b, err := json.Marshal(m.Meta)
		if err != nil {
			return nil, fmt.Errorf("meta encode: %w", err)
		}
		metaJSON = b
	}

	if m.Confirmations <= em.Confirmations && amount.Equal(em.Amount) && metaJSON == nil {
		return em, nil
	}

	const SQL = `
		UPDATE transactions
		SET confirmations=greatest(confirmations, $1), amount=$2, meta=coalesce($3, meta), updated_at=now()
		WHERE id=$4 AND status NOT IN ('completed', 'declined', 'failed', 'cancelled')
`
	if _, err := r.db.ExecContext(ctx, SQL, m.Confirmations, amount, metaJSON, em.InternalID); err != nil {
		return nil, fmt.Errorf("merge: %w", err)
	}

	return r.Read(ctx, em.InternalID)
}

// UpdateStatus implementation of interface storage.TransactionRepository.
// The row is locked for the duration of the transition check so concurrent
// writers cannot race the same transition.
func (r *TransactionRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status model.Status, reason string) (*model.Transaction, error) {
	l := logger.Get(ctx, r)

	if !status.Valid() {
		return nil, apperr.ErrInvalidInput
	}

	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{
		Isolation: sql.LevelDefault,
	})
	if err != nil {
		return nil, fmt.Errorf("tx begin: %w", err)
	}

	var current model.Status
	const sqlLock = `SELECT status FROM transactions WHERE id=$1 FOR UPDATE`
	if err := tx.QueryRowContext(ctx, sqlLock, id).Scan(&current); err != nil {
		_ = tx.Rollback()
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.ErrNotFound
		}
		return nil, fmt.Errorf("lock: %w", err)
	}

	if !model.CanTransition(current, status) {
		_ = tx.Rollback()
		l.Error().
			Str("transaction_id", id.String()).
			Str("from", string(current)).
			Str("to", string(status)).
			Msg("Illegal status transition attempted")
		return nil, apperr.ErrInvalidTransition
	}

	const sqlUpdate = `UPDATE transactions SET status=$1, reason=nullif($2, ''), updated_at=now() WHERE id=$3`
	if _, err := tx.ExecContext(ctx, sqlUpdate, status, reason, id); err != nil {
		_ = tx.Rollback()
		return nil, fmt.Errorf("update: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("tx commit: %w", err)
	}

	return r.Read(ctx, id)
}

// UpdateConfirmations implementation of interface storage.TransactionRepository.
// Late updates for a terminal transaction are logged and dropped; the stored
// count never decreases.
func (r *TransactionRepository) UpdateConfirmations(ctx context.Context, id uuid.UUID, confirmations int) (*model.Transaction, error) {
	l := logger.Get(ctx, r)

	const SQL = `
		UPDATE transactions
		SET confirmations=greatest(confirmations, $1), updated_at=now()
		WHERE id=$2 AND status NOT IN ('completed', 'declined', 'failed', 'cancelled')
`
	res, err := r.db.ExecContext(ctx, SQL, confirmations, id)
	if err != nil {
		return nil, fmt.Errorf("update: %w", err)
	}

	if n, err := res.RowsAffected(); err == nil && n == 0 {
		l.Debug().
			Str("transaction_id", id.String()).
			Int("confirmations", confirmations).
			Msg("Confirmation update skipped for terminal transaction")
	}

	return r.Read(ctx, id)
}

// Read implementation of interface storage.TransactionRepository
func (r *TransactionRepository) Read(ctx context.Context, id uuid.UUID) (*model.Transaction, error) {
	const SQL = `
		SELECT ` + selectColumns + `
		FROM transactions
		WHERE id=$1
`
	return r.scanRow(r.db.QueryRowContext(ctx, SQL, id))
}

// FindByExternalID implementation of interface storage.TransactionRepository
func (r *TransactionRepository) FindByExternalID(ctx context.Context, provider string, direction model.Direction, externalID string) (*model.Transaction, error) {
	const SQL = `
		SELECT ` + selectColumns + `
		FROM transactions
		WHERE provider=$1 AND direction=$2 AND external_id=$3
`
	return r.scanRow(r.db.QueryRowContext(ctx, SQL, provider, direction, externalID))
}

func (r *TransactionRepository) scanRow(row *sql.Row) (*model.Transaction, error) {
	m := &model.Transaction{}
	var metaJSON []byte

	err := row.Scan(
		&m.InternalID, &m.ExternalID, &m.Provider, &m.Direction, &m.UserID,
		&m.Amount, &m.Asset, &m.Status, &m.Confirmations, &m.Reason,
		&metaJSON, &m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.ErrNotFound
		}
		return nil, fmt.Errorf("select: %w", err)
	}

	if len(metaJSON) > 0 {
		if err := json.Unmarshal(metaJSON, &m.Meta); err != nil {
			return nil, fmt.Errorf("meta decode: %w", err)
		}
	}

	return m, nil
}
