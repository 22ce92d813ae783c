//go:generate mockgen -source=./interface.go -destination=./mock/storage.go -package=storagemock
package storage

import (
	"context"

	"github.com/google/uuid"

	"settlement/internal/app/model"
)

type TransactionRepository interface {
	// Create a new model.Transaction. A record with the same
	// (provider, direction, externalID) is not an error: the existing record
	// is merged with the mutable fields of m and returned with
	// alreadyExisted=true.
	Create(ctx context.Context, m *model.Transaction) (tx *model.Transaction, alreadyExisted bool, err error)
	// UpdateStatus moves the transaction to status, recording reason.
	// Returns apperr.ErrInvalidTransition if status is not reachable from the
	// current one.
	UpdateStatus(ctx context.Context, id uuid.UUID, status model.Status, reason string) (*model.Transaction, error)
	// UpdateConfirmations persists a new confirmation count. The count never
	// decreases, and a transaction in a terminal status is left untouched
	// (no error).
	UpdateConfirmations(ctx context.Context, id uuid.UUID, confirmations int) (*model.Transaction, error)
	// Read instance of model.Transaction
	Read(ctx context.Context, id uuid.UUID) (*model.Transaction, error)
	// FindByExternalID instance of model.Transaction
	FindByExternalID(ctx context.Context, provider string, direction model.Direction, externalID string) (*model.Transaction, error)
}
