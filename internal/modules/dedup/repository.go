// Package dedup records issued recommendations and rejects reissues within
// the lookback window.
package dedup

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/oddstack/wagerline/internal/domain"
)

// RecommendationKind distinguishes what an issuance row describes.
type RecommendationKind string

const (
	KindSingle RecommendationKind = "single"
	KindParlay RecommendationKind = "parlay"
)

// IssuedRecommendation is one dispatched recommendation. IdentityKey is the
// dedup key: a leg's identity string for singles, the sorted leg signature
// for parlays.
type IssuedRecommendation struct {
	ID          string             `json:"id"`
	IdentityKey string             `json:"identity_key"`
	Sport       domain.Sport       `json:"sport"`
	Kind        RecommendationKind `json:"kind"`
	Payload     json.RawMessage    `json:"payload"`
	IssuedAt    time.Time          `json:"issued_at"`
}

// Repository persists issuances on the ledger-profile database.
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates the repository and ensures its schema.
func NewRepository(db *sql.DB, log zerolog.Logger) (*Repository, error) {
	r := &Repository{
		db:  db,
		log: log.With().Str("repository", "recommendations").Logger(),
	}
	if err := r.ensureSchema(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Repository) ensureSchema() error {
	_, err := r.db.Exec(`
		CREATE TABLE IF NOT EXISTS issued_recommendations (
			id           TEXT PRIMARY KEY,
			identity_key TEXT NOT NULL,
			sport        TEXT NOT NULL,
			kind         TEXT NOT NULL,
			payload      TEXT NOT NULL,
			issued_at    INTEGER NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_issued_identity_time
			ON issued_recommendations (identity_key, issued_at);
	`)
	if err != nil {
		return fmt.Errorf("failed to ensure recommendation schema: %w", err)
	}
	return nil
}

// InsertIfAbsent records an issuance unless a row with the same identity
// key was issued at or after the cutoff. The check and the insert run in one
// statement, so two writers racing on the same key cannot both succeed; the
// loser gets ErrConcurrencyConflict.
func (r *Repository) InsertIfAbsent(rec IssuedRecommendation, cutoff time.Time) error {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	res, err := r.db.Exec(`
		INSERT INTO issued_recommendations (id, identity_key, sport, kind, payload, issued_at)
		SELECT ?, ?, ?, ?, ?, ?
		WHERE NOT EXISTS (
			SELECT 1 FROM issued_recommendations
			WHERE identity_key = ? AND issued_at >= ?
		)
	`, rec.ID, rec.IdentityKey, string(rec.Sport), string(rec.Kind),
		string(rec.Payload), rec.IssuedAt.Unix(), rec.IdentityKey, cutoff.Unix())
	if err != nil {
		return fmt.Errorf("failed to record issuance: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read issuance result: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: identity %s", domain.ErrConcurrencyConflict, rec.IdentityKey)
	}
	return nil
}

// IssuedWithin reports whether the identity key was issued in [cutoff, now].
func (r *Repository) IssuedWithin(identityKey string, cutoff time.Time) (bool, error) {
	var n int
	err := r.db.QueryRow(`
		SELECT COUNT(*) FROM issued_recommendations
		WHERE identity_key = ? AND issued_at >= ?
	`, identityKey, cutoff.Unix()).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to check issuance window: %w", err)
	}
	return n > 0, nil
}

// Recent returns the newest issuances, newest first.
func (r *Repository) Recent(limit int) ([]IssuedRecommendation, error) {
	rows, err := r.db.Query(`
		SELECT id, identity_key, sport, kind, payload, issued_at
		FROM issued_recommendations
		ORDER BY issued_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list recent issuances: %w", err)
	}
	defer rows.Close()

	var out []IssuedRecommendation
	for rows.Next() {
		var (
			rec      IssuedRecommendation
			sport    string
			kind     string
			payload  string
			issuedAt int64
		)
		if err := rows.Scan(&rec.ID, &rec.IdentityKey, &sport, &kind, &payload, &issuedAt); err != nil {
			return nil, fmt.Errorf("failed to scan issuance row: %w", err)
		}
		rec.Sport = domain.Sport(sport)
		rec.Kind = RecommendationKind(kind)
		rec.Payload = json.RawMessage(payload)
		rec.IssuedAt = time.Unix(issuedAt, 0).UTC()
		out = append(out, rec)
	}
	return out, rows.Err()
}

// DeleteOlderThan removes issuances issued before the cutoff. Housekeeping
// only: dedup correctness comes from the window check, never from deletion.
func (r *Repository) DeleteOlderThan(cutoff time.Time) (int64, error) {
	res, err := r.db.Exec(`
		DELETE FROM issued_recommendations WHERE issued_at < ?
	`, cutoff.Unix())
	if err != nil {
		return 0, fmt.Errorf("failed to prune issuances: %w", err)
	}
	return res.RowsAffected()
}
