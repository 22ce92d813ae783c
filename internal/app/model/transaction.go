package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusInitiated Status = "initiated"
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusDeclined  Status = "declined"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

type Direction string

const (
	DirectionDeposit    Direction = "deposit"
	DirectionWithdrawal Direction = "withdrawal"
)

// transitions lists every legal forward move; terminal statuses have no entry.
var transitions = map[Status][]Status{
	StatusInitiated: {StatusPending, StatusDeclined, StatusFailed, StatusCancelled},
	StatusPending:   {StatusCompleted, StatusDeclined, StatusFailed, StatusCancelled},
}

// CanTransition reports whether to is reachable from from in one step.
func CanTransition(from, to Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Terminal reports whether no further transition is permitted from s.
func (s Status) Terminal() bool {
	return len(transitions[s]) == 0
}

func (s Status) Valid() bool {
	switch s {
	case StatusInitiated, StatusPending, StatusCompleted, StatusDeclined, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// Transaction is one funding event, deposit or withdrawal. ExternalID is the
// provider- or chain-assigned identifier, unique per (provider, direction);
// InternalID is assigned by the store.
type Transaction struct {
	InternalID    uuid.UUID         `json:"internalId"`
	ExternalID    string            `json:"externalId"`
	UserID        string            `json:"userId"`
	Direction     Direction         `json:"direction"`
	Provider      string            `json:"provider"`
	Amount        decimal.Decimal   `json:"amount"`
	Asset         string            `json:"asset"`
	Status        Status            `json:"status"`
	Confirmations int               `json:"confirmations"`
	Reason        string            `json:"reason,omitempty"`
	Meta          map[string]string `json:"meta,omitempty"`
	CreatedAt     time.Time         `json:"createdAt"`
	UpdatedAt     time.Time         `json:"updatedAt"`
}
