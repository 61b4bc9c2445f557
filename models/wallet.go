package models

import "time"

// Wallet holds a user's prize balance in whole rupees. The balance is
// derived from the transactions ledger and must never go negative.
type Wallet struct {
	UserID    int       `json:"user_id" db:"user_id"`
	Balance   int       `json:"balance" db:"balance"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// WalletTransactionKind distinguishes ledger entries.
type WalletTransactionKind string

const (
	TxnPrizeCredit     WalletTransactionKind = "prize_credit"
	TxnRedemptionDebit WalletTransactionKind = "redemption_debit"
)

// WalletTransaction is one append-only ledger entry. Amount is positive for
// credits and negative for debits; Reference is a server-generated UUID used
// to reconcile against payouts.
type WalletTransaction struct {
	ID           int                   `json:"id" db:"id"`
	UserID       int                   `json:"user_id" db:"user_id"`
	Amount       int                   `json:"amount" db:"amount"`
	Kind         WalletTransactionKind `json:"kind" db:"kind"`
	Reference    string                `json:"reference" db:"reference"`
	TournamentID *int                  `json:"tournament_id,omitempty" db:"tournament_id"`
	Note         *string               `json:"note,omitempty" db:"note"`
	CreatedAt    time.Time             `json:"created_at" db:"created_at"`
}

type RedemptionStatus string

const (
	RedemptionRequested RedemptionStatus = "requested"
	RedemptionPaid      RedemptionStatus = "paid"
	RedemptionRejected  RedemptionStatus = "rejected"
)

// Redemption is a player's request to move wallet balance out via UPI.
// The debit happens when the request is created; a rejected request is
// refunded with a compensating credit.
type Redemption struct {
	ID        int              `json:"id" db:"id"`
	UserID    int              `json:"user_id" db:"user_id"`
	Amount    int              `json:"amount" db:"amount"`
	UPIHandle string           `json:"upi_handle" db:"upi_handle"`
	Status    RedemptionStatus `json:"status" db:"status"`
	CreatedAt time.Time        `json:"created_at" db:"created_at"`
	SettledAt *time.Time       `json:"settled_at,omitempty" db:"settled_at"`
}
