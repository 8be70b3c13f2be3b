// Package bankroll reads the bankroll ledger. The ledger is the source of
// truth for balance and spend; the staking engine only ever reads it.
package bankroll

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// EntryKind classifies a ledger entry.
type EntryKind string

const (
	KindDeposit    EntryKind = "deposit"
	KindWithdrawal EntryKind = "withdrawal"
	KindStake      EntryKind = "stake"
	KindPayout     EntryKind = "payout"
)

// Entry is one signed ledger movement. Stakes and withdrawals carry
// negative amounts, deposits and payouts positive ones.
type Entry struct {
	ID         int64     `json:"id"`
	Amount     float64   `json:"amount"`
	Kind       EntryKind `json:"kind"`
	Note       string    `json:"note,omitempty"`
	RecordedAt time.Time `json:"recorded_at"`
}

// Repository persists the ledger on the ledger-profile database.
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates the repository and ensures its schema.
func NewRepository(db *sql.DB, log zerolog.Logger) (*Repository, error) {
	r := &Repository{
		db:  db,
		log: log.With().Str("repository", "bankroll").Logger(),
	}
	if err := r.ensureSchema(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Repository) ensureSchema() error {
	_, err := r.db.Exec(`
		CREATE TABLE IF NOT EXISTS bankroll_entries (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			amount      REAL NOT NULL,
			kind        TEXT NOT NULL,
			note        TEXT NOT NULL DEFAULT '',
			recorded_at INTEGER NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_bankroll_kind_time
			ON bankroll_entries (kind, recorded_at);
	`)
	if err != nil {
		return fmt.Errorf("failed to ensure bankroll schema: %w", err)
	}
	return nil
}

// Record appends a ledger entry.
func (r *Repository) Record(e Entry) error {
	if e.RecordedAt.IsZero() {
		return fmt.Errorf("bankroll entry needs a recorded_at time")
	}
	_, err := r.db.Exec(`
		INSERT INTO bankroll_entries (amount, kind, note, recorded_at)
		VALUES (?, ?, ?, ?)
	`, e.Amount, string(e.Kind), e.Note, e.RecordedAt.Unix())
	if err != nil {
		return fmt.Errorf("failed to record bankroll entry: %w", err)
	}
	return nil
}

// Balance returns the sum of all entries.
func (r *Repository) Balance() (float64, error) {
	var balance sql.NullFloat64
	err := r.db.QueryRow(`SELECT SUM(amount) FROM bankroll_entries`).Scan(&balance)
	if err != nil {
		return 0, fmt.Errorf("failed to read bankroll balance: %w", err)
	}
	return balance.Float64, nil
}

// StartingBalance returns the sum of deposits, the baseline for ROI.
func (r *Repository) StartingBalance() (float64, error) {
	var total sql.NullFloat64
	err := r.db.QueryRow(`
		SELECT SUM(amount) FROM bankroll_entries WHERE kind = ?
	`, string(KindDeposit)).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("failed to read deposits: %w", err)
	}
	return total.Float64, nil
}

// SpentSince returns the total staked at or after the cutoff, as a positive
// figure. The staking engine derives remaining budgets from it.
func (r *Repository) SpentSince(cutoff time.Time) (float64, error) {
	var spent sql.NullFloat64
	err := r.db.QueryRow(`
		SELECT SUM(-amount) FROM bankroll_entries
		WHERE kind = ? AND recorded_at >= ?
	`, string(KindStake), cutoff.Unix()).Scan(&spent)
	if err != nil {
		return 0, fmt.Errorf("failed to read spend: %w", err)
	}
	return spent.Float64, nil
}
