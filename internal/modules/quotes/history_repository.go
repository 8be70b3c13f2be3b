package quotes

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/oddstack/wagerline/internal/domain"
)

// HistoryRepository persists quotes for backtesting and restarts.
//
// Two tables: quotes_latest mirrors the in-memory store (upsert by key),
// quote_history is append-only and serves chronological range queries.
type HistoryRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewHistoryRepository creates the repository and ensures its schema.
func NewHistoryRepository(db *sql.DB, log zerolog.Logger) (*HistoryRepository, error) {
	r := &HistoryRepository{
		db:  db,
		log: log.With().Str("repository", "quote_history").Logger(),
	}
	if err := r.ensureSchema(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *HistoryRepository) ensureSchema() error {
	_, err := r.db.Exec(`
		CREATE TABLE IF NOT EXISTS quotes_latest (
			event_id       TEXT NOT NULL,
			sport          TEXT NOT NULL,
			market         TEXT NOT NULL,
			selection      TEXT NOT NULL,
			line           REAL,
			price          REAL NOT NULL,
			book_id        TEXT NOT NULL,
			team           TEXT NOT NULL DEFAULT '',
			event_start_at INTEGER NOT NULL,
			observed_at    INTEGER NOT NULL,
			PRIMARY KEY (event_id, market, selection, book_id)
		);

		CREATE TABLE IF NOT EXISTS quote_history (
			id             INTEGER PRIMARY KEY AUTOINCREMENT,
			event_id       TEXT NOT NULL,
			sport          TEXT NOT NULL,
			market         TEXT NOT NULL,
			selection      TEXT NOT NULL,
			line           REAL,
			price          REAL NOT NULL,
			book_id        TEXT NOT NULL,
			team           TEXT NOT NULL DEFAULT '',
			event_start_at INTEGER NOT NULL,
			observed_at    INTEGER NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_quote_history_observed
			ON quote_history (observed_at);
	`)
	if err != nil {
		return fmt.Errorf("failed to ensure quote schema: %w", err)
	}
	return nil
}

// Upsert stores a quote: quotes_latest is replaced only by a strictly newer
// observation for the same key, quote_history always receives a row.
func (r *HistoryRepository) Upsert(q domain.MarketQuote) error {
	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin quote upsert: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.Exec(`
		INSERT INTO quotes_latest
			(event_id, sport, market, selection, line, price, book_id, team, event_start_at, observed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (event_id, market, selection, book_id) DO UPDATE SET
			sport          = excluded.sport,
			line           = excluded.line,
			price          = excluded.price,
			team           = excluded.team,
			event_start_at = excluded.event_start_at,
			observed_at    = excluded.observed_at
		WHERE excluded.observed_at > quotes_latest.observed_at
	`,
		q.EventID, string(q.Sport), string(q.Market), q.Selection, q.Line,
		q.Price, q.BookID, q.Team, q.EventStartAt.Unix(), q.ObservedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert latest quote: %w", err)
	}

	_, err = tx.Exec(`
		INSERT INTO quote_history
			(event_id, sport, market, selection, line, price, book_id, team, event_start_at, observed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		q.EventID, string(q.Sport), string(q.Market), q.Selection, q.Line,
		q.Price, q.BookID, q.Team, q.EventStartAt.Unix(), q.ObservedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to append quote history: %w", err)
	}

	return tx.Commit()
}

// Latest returns the stored latest quote for a key.
func (r *HistoryRepository) Latest(key domain.QuoteKey) (*domain.MarketQuote, error) {
	row := r.db.QueryRow(`
		SELECT event_id, sport, market, selection, line, price, book_id, team, event_start_at, observed_at
		FROM quotes_latest
		WHERE event_id = ? AND market = ? AND selection = ? AND book_id = ?
	`, key.EventID, string(key.Market), key.Selection, key.BookID)

	q, err := scanQuote(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load latest quote: %w", err)
	}
	return q, nil
}

// LoadLatest returns every stored latest quote, for warming the in-memory
// store on startup.
func (r *HistoryRepository) LoadLatest() ([]domain.MarketQuote, error) {
	rows, err := r.db.Query(`
		SELECT event_id, sport, market, selection, line, price, book_id, team, event_start_at, observed_at
		FROM quotes_latest
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to load latest quotes: %w", err)
	}
	defer rows.Close()
	return collectQuotes(rows)
}

// Range returns history rows with observed_at in [from, to], in
// chronological order. The backtester replays these.
func (r *HistoryRepository) Range(from, to time.Time) ([]domain.MarketQuote, error) {
	rows, err := r.db.Query(`
		SELECT event_id, sport, market, selection, line, price, book_id, team, event_start_at, observed_at
		FROM quote_history
		WHERE observed_at >= ? AND observed_at <= ?
		ORDER BY observed_at ASC, id ASC
	`, from.Unix(), to.Unix())
	if err != nil {
		return nil, fmt.Errorf("failed to query quote history: %w", err)
	}
	defer rows.Close()
	return collectQuotes(rows)
}

// HistoryCount returns the number of history rows, for status reporting.
func (r *HistoryRepository) HistoryCount() (int, error) {
	var n int
	if err := r.db.QueryRow(`SELECT COUNT(*) FROM quote_history`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count quote history: %w", err)
	}
	return n, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanQuote(row rowScanner) (*domain.MarketQuote, error) {
	var (
		q          domain.MarketQuote
		sport      string
		market     string
		line       sql.NullFloat64
		eventStart int64
		observedAt int64
	)
	err := row.Scan(&q.EventID, &sport, &market, &q.Selection, &line,
		&q.Price, &q.BookID, &q.Team, &eventStart, &observedAt)
	if err != nil {
		return nil, err
	}
	q.Sport = domain.Sport(sport)
	q.Market = domain.MarketType(market)
	if line.Valid {
		q.Line = &line.Float64
	}
	q.EventStartAt = time.Unix(eventStart, 0).UTC()
	q.ObservedAt = time.Unix(observedAt, 0).UTC()
	return &q, nil
}

func collectQuotes(rows *sql.Rows) ([]domain.MarketQuote, error) {
	var out []domain.MarketQuote
	for rows.Next() {
		q, err := scanQuote(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan quote row: %w", err)
		}
		out = append(out, *q)
	}
	return out, rows.Err()
}
