package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

type SQLiteStore struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS experiments (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    page TEXT,
    variants TEXT NOT NULL,
    traffic_split TEXT NOT NULL,
    min_sample_size INTEGER NOT NULL,
    confidence_level REAL NOT NULL,
    primary_metric TEXT NOT NULL,
    secondary_metrics TEXT,
    status TEXT NOT NULL DEFAULT 'active',
    stop_reason TEXT,
    start_date INTEGER,
    end_date INTEGER,
    created_at INTEGER NOT NULL DEFAULT (unixepoch()),
    updated_at INTEGER NOT NULL DEFAULT (unixepoch())
);

CREATE INDEX IF NOT EXISTS idx_experiments_status ON experiments(status);
CREATE INDEX IF NOT EXISTS idx_experiments_page ON experiments(page);

CREATE TABLE IF NOT EXISTS ledger (
    experiment_id TEXT NOT NULL,
    variant_id TEXT NOT NULL,
    impressions INTEGER NOT NULL DEFAULT 0,
    conversions INTEGER NOT NULL DEFAULT 0,
    time_on_page REAL NOT NULL DEFAULT 0,
    scroll_depth REAL NOT NULL DEFAULT 0,
    cta_clicks INTEGER NOT NULL DEFAULT 0,
    events TEXT NOT NULL DEFAULT '[]',
    updated_at INTEGER NOT NULL DEFAULT (unixepoch()),
    PRIMARY KEY (experiment_id, variant_id),
    FOREIGN KEY (experiment_id) REFERENCES experiments(id)
);
`

// busyTimeoutMillis is how long a connection waits on a locked database
// before failing with SQLITE_BUSY.
const busyTimeoutMillis = 5000

func Open(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn(dbPath))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Enable WAL mode
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	// Apply schema
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// dsn applies the busy timeout to every pooled connection and makes
// transactions take the write lock up front, so concurrent writers queue
// instead of failing on lock upgrade.
func dsn(dbPath string) string {
	sep := "?"
	if strings.Contains(dbPath, "?") {
		sep = "&"
	}
	return fmt.Sprintf("%s%s_pragma=busy_timeout(%d)&_txlock=immediate", dbPath, sep, busyTimeoutMillis)
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) InsertExperiment(ctx context.Context, exp *Experiment) error {
	row, err := encodeExperiment(exp)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO experiments (id, name, page, variants, traffic_split, min_sample_size, confidence_level,
		  primary_metric, secondary_metrics, status, stop_reason, start_date, end_date, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		exp.ID, exp.Name, exp.Page, row.variants, row.split, exp.MinSampleSize, exp.ConfidenceLevel,
		exp.PrimaryMetric, row.secondary, string(exp.Status), exp.StopReason,
		nullableTime(exp.StartDate), nullableTime(exp.EndDate),
		exp.CreatedAt.Unix(), exp.UpdatedAt.Unix(),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return fmt.Errorf("experiment %q: %w", exp.ID, ErrExists)
		}
		return storageErr("insert experiment", err)
	}

	return nil
}

func (s *SQLiteStore) GetExperiment(ctx context.Context, id string) (*Experiment, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, page, variants, traffic_split, min_sample_size, confidence_level, primary_metric,
		  secondary_metrics, status, stop_reason, start_date, end_date, created_at, updated_at
		 FROM experiments WHERE id = ?`, id,
	)

	exp, err := scanExperiment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return exp, nil
}

func (s *SQLiteStore) ListExperiments(ctx context.Context) ([]*Experiment, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, page, variants, traffic_split, min_sample_size, confidence_level, primary_metric,
		  secondary_metrics, status, stop_reason, start_date, end_date, created_at, updated_at
		 FROM experiments ORDER BY created_at DESC, id`,
	)
	if err != nil {
		return nil, storageErr("list experiments", err)
	}
	defer rows.Close()

	var experiments []*Experiment
	for rows.Next() {
		exp, err := scanExperiment(rows)
		if err != nil {
			return nil, err
		}
		experiments = append(experiments, exp)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("list experiments", err)
	}

	return experiments, nil
}

func (s *SQLiteStore) UpdateExperiment(ctx context.Context, exp *Experiment) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE experiments SET status = ?, stop_reason = ?, end_date = ?, updated_at = ? WHERE id = ?`,
		string(exp.Status), exp.StopReason, nullableTime(exp.EndDate), exp.UpdatedAt.Unix(), exp.ID,
	)
	if err != nil {
		return storageErr("update experiment", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return storageErr("update experiment", err)
	}

	if rowsAffected == 0 {
		return ErrNotFound
	}

	return nil
}

func (s *SQLiteStore) LoadLedger(ctx context.Context, experimentID, variantID string) (*LedgerEntry, error) {
	return loadLedger(ctx, s.db, experimentID, variantID)
}

func (s *SQLiteStore) SaveLedger(ctx context.Context, entry *LedgerEntry) error {
	return saveLedger(ctx, s.db, entry)
}

// UpdateLedger runs the read-modify-write for one pair inside an immediate
// transaction, so writers in other goroutines or processes cannot interleave.
func (s *SQLiteStore) UpdateLedger(ctx context.Context, experimentID, variantID string, fn func(*LedgerEntry)) (*LedgerEntry, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, storageErr("begin ledger update", err)
	}
	defer tx.Rollback()

	entry, err := loadLedger(ctx, tx, experimentID, variantID)
	if errors.Is(err, ErrNotFound) {
		entry = &LedgerEntry{ExperimentID: experimentID, VariantID: variantID}
	} else if err != nil {
		return nil, err
	}

	fn(entry)

	if err := saveLedger(ctx, tx, entry); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, storageErr("commit ledger update", err)
	}
	return entry, nil
}

// dbtx is satisfied by both *sql.DB and *sql.Tx.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func loadLedger(ctx context.Context, q dbtx, experimentID, variantID string) (*LedgerEntry, error) {
	row := q.QueryRowContext(ctx,
		`SELECT experiment_id, variant_id, impressions, conversions, time_on_page, scroll_depth, cta_clicks, events, updated_at
		 FROM ledger WHERE experiment_id = ? AND variant_id = ?`,
		experimentID, variantID,
	)

	entry, err := scanLedger(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return entry, nil
}

func saveLedger(ctx context.Context, q dbtx, entry *LedgerEntry) error {
	eventsJSON, err := json.Marshal(entry.Events)
	if err != nil {
		return fmt.Errorf("failed to marshal events: %w", err)
	}

	_, err = q.ExecContext(ctx,
		`INSERT INTO ledger (experiment_id, variant_id, impressions, conversions, time_on_page, scroll_depth, cta_clicks, events, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(experiment_id, variant_id) DO UPDATE SET
		   impressions = excluded.impressions,
		   conversions = excluded.conversions,
		   time_on_page = excluded.time_on_page,
		   scroll_depth = excluded.scroll_depth,
		   cta_clicks = excluded.cta_clicks,
		   events = excluded.events,
		   updated_at = excluded.updated_at`,
		entry.ExperimentID, entry.VariantID, entry.Impressions, entry.Conversions,
		entry.TimeOnPage, entry.ScrollDepth, entry.CTAClicks, string(eventsJSON), entry.UpdatedAt.Unix(),
	)
	if err != nil {
		return storageErr("save ledger", err)
	}

	return nil
}

func (s *SQLiteStore) ListLedger(ctx context.Context, experimentID string) ([]*LedgerEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT experiment_id, variant_id, impressions, conversions, time_on_page, scroll_depth, cta_clicks, events, updated_at
		 FROM ledger WHERE experiment_id = ? ORDER BY variant_id`,
		experimentID,
	)
	if err != nil {
		return nil, storageErr("list ledger", err)
	}
	defer rows.Close()

	var entries []*LedgerEntry
	for rows.Next() {
		entry, err := scanLedger(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("list ledger", err)
	}

	return entries, nil
}

// DB returns the underlying database connection for health checks
func (s *SQLiteStore) DB() *sql.DB {
	return s.db
}

type scanner interface {
	Scan(dest ...any) error
}

type experimentRow struct {
	variants  string
	split     string
	secondary sql.NullString
}

func encodeExperiment(exp *Experiment) (experimentRow, error) {
	variantsJSON, err := json.Marshal(exp.Variants)
	if err != nil {
		return experimentRow{}, fmt.Errorf("failed to marshal variants: %w", err)
	}
	splitJSON, err := json.Marshal(exp.TrafficSplit)
	if err != nil {
		return experimentRow{}, fmt.Errorf("failed to marshal traffic split: %w", err)
	}

	row := experimentRow{variants: string(variantsJSON), split: string(splitJSON)}
	if len(exp.SecondaryMetrics) > 0 {
		secondaryJSON, err := json.Marshal(exp.SecondaryMetrics)
		if err != nil {
			return experimentRow{}, fmt.Errorf("failed to marshal secondary metrics: %w", err)
		}
		row.secondary = sql.NullString{String: string(secondaryJSON), Valid: true}
	}
	return row, nil
}

func scanExperiment(sc scanner) (*Experiment, error) {
	var exp Experiment
	var row experimentRow
	var page, stopReason sql.NullString
	var startDate, endDate sql.NullInt64
	var createdAt, updatedAt int64

	err := sc.Scan(&exp.ID, &exp.Name, &page, &row.variants, &row.split, &exp.MinSampleSize,
		&exp.ConfidenceLevel, &exp.PrimaryMetric, &row.secondary, &exp.Status, &stopReason,
		&startDate, &endDate, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, storageErr("scan experiment", err)
	}

	if err := json.Unmarshal([]byte(row.variants), &exp.Variants); err != nil {
		return nil, fmt.Errorf("failed to unmarshal variants: %w", err)
	}
	if err := json.Unmarshal([]byte(row.split), &exp.TrafficSplit); err != nil {
		return nil, fmt.Errorf("failed to unmarshal traffic split: %w", err)
	}
	if row.secondary.Valid && row.secondary.String != "" {
		if err := json.Unmarshal([]byte(row.secondary.String), &exp.SecondaryMetrics); err != nil {
			return nil, fmt.Errorf("failed to unmarshal secondary metrics: %w", err)
		}
	}

	exp.Page = page.String
	exp.StopReason = stopReason.String
	exp.StartDate = timeFromNull(startDate)
	exp.EndDate = timeFromNull(endDate)
	exp.CreatedAt = time.Unix(createdAt, 0)
	exp.UpdatedAt = time.Unix(updatedAt, 0)

	return &exp, nil
}

func scanLedger(sc scanner) (*LedgerEntry, error) {
	var entry LedgerEntry
	var eventsJSON string
	var updatedAt int64

	err := sc.Scan(&entry.ExperimentID, &entry.VariantID, &entry.Impressions, &entry.Conversions,
		&entry.TimeOnPage, &entry.ScrollDepth, &entry.CTAClicks, &eventsJSON, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, storageErr("scan ledger", err)
	}

	if err := json.Unmarshal([]byte(eventsJSON), &entry.Events); err != nil {
		return nil, fmt.Errorf("failed to unmarshal events: %w", err)
	}
	entry.UpdatedAt = time.Unix(updatedAt, 0)

	return &entry, nil
}

func nullableTime(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.Unix(), Valid: true}
}

func timeFromNull(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.Unix(v.Int64, 0)
	return &t
}
