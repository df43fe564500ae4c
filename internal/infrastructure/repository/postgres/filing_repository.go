package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/MichaelWeed/financial-compliance-auditor/internal/core/domain"
)

// FilingRepository is the filing catalog. One row per (ticker, filename).
type FilingRepository struct {
	db *sql.DB
}

func NewFilingRepository(db *sql.DB) *FilingRepository {
	return &FilingRepository{db: db}
}

func (r *FilingRepository) EnsureSchema(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across api/worker startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026101701)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS filings (
	id TEXT PRIMARY KEY,
	ticker TEXT NOT NULL,
	filename TEXT NOT NULL,
	industry TEXT NOT NULL DEFAULT '',
	year INTEGER NOT NULL DEFAULT 0,
	filing_type TEXT NOT NULL DEFAULT '',
	fiscal_period TEXT NOT NULL DEFAULT '',
	jurisdiction TEXT NOT NULL DEFAULT '',
	risk_flag BOOLEAN NOT NULL DEFAULT FALSE,
	cik TEXT NOT NULL DEFAULT '',
	elements_path TEXT NOT NULL,
	source_path TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL,
	chunk_count INTEGER NOT NULL DEFAULT 0,
	error_message TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL,
	UNIQUE (ticker, filename)
);

CREATE INDEX IF NOT EXISTS idx_filings_status ON filings(status);
CREATE INDEX IF NOT EXISTS idx_filings_ticker_year ON filings(ticker, year DESC);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

func (r *FilingRepository) Upsert(ctx context.Context, f *domain.Filing) error {
	row := r.db.QueryRowContext(ctx, `
INSERT INTO filings (
	id, ticker, filename, industry, year, filing_type, fiscal_period, jurisdiction, risk_flag, cik,
	elements_path, source_path, status, chunk_count, error_message, created_at, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)
ON CONFLICT (ticker, filename) DO UPDATE SET
	industry = EXCLUDED.industry,
	year = EXCLUDED.year,
	filing_type = EXCLUDED.filing_type,
	fiscal_period = EXCLUDED.fiscal_period,
	jurisdiction = EXCLUDED.jurisdiction,
	risk_flag = EXCLUDED.risk_flag,
	cik = EXCLUDED.cik,
	elements_path = EXCLUDED.elements_path,
	source_path = EXCLUDED.source_path,
	status = EXCLUDED.status,
	chunk_count = EXCLUDED.chunk_count,
	error_message = EXCLUDED.error_message,
	updated_at = EXCLUDED.updated_at
RETURNING id, created_at
`,
		f.ID, f.Ticker, f.Filename, f.Industry, f.Year, f.FilingType, f.FiscalPeriod, f.Jurisdiction, f.RiskFlag, f.CIK,
		f.ElementsPath, f.SourcePath, string(f.Status), f.ChunkCount, f.Error, f.CreatedAt, f.UpdatedAt,
	)
	if err := row.Scan(&f.ID, &f.CreatedAt); err != nil {
		return fmt.Errorf("upsert filing: %w", err)
	}
	return nil
}

const filingColumns = `id, ticker, filename, industry, year, filing_type, fiscal_period, jurisdiction, risk_flag, cik,
	elements_path, source_path, status, chunk_count, error_message, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanFiling(row rowScanner) (*domain.Filing, error) {
	var f domain.Filing
	var status string
	err := row.Scan(
		&f.ID, &f.Ticker, &f.Filename, &f.Industry, &f.Year, &f.FilingType, &f.FiscalPeriod, &f.Jurisdiction,
		&f.RiskFlag, &f.CIK, &f.ElementsPath, &f.SourcePath, &status, &f.ChunkCount, &f.Error, &f.CreatedAt, &f.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	f.Status = domain.FilingStatus(status)
	return &f, nil
}

func (r *FilingRepository) GetByID(ctx context.Context, id string) (*domain.Filing, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+filingColumns+` FROM filings WHERE id = $1`, id)
	f, err := scanFiling(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrFilingNotFound, "get filing", fmt.Errorf("id=%s", id))
		}
		return nil, fmt.Errorf("scan filing: %w", err)
	}
	return f, nil
}

func (r *FilingRepository) List(ctx context.Context) ([]domain.Filing, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+filingColumns+` FROM filings ORDER BY ticker ASC, year DESC, filename ASC`)
	if err != nil {
		return nil, fmt.Errorf("list filings: %w", err)
	}
	defer rows.Close()

	out := make([]domain.Filing, 0)
	for rows.Next() {
		f, err := scanFiling(rows)
		if err != nil {
			return nil, fmt.Errorf("scan filing: %w", err)
		}
		out = append(out, *f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate filings: %w", err)
	}
	return out, nil
}

func (r *FilingRepository) UpdateStatus(ctx context.Context, id string, status domain.FilingStatus, chunkCount int, errMessage string) error {
	res, err := r.db.ExecContext(ctx, `
UPDATE filings
SET status = $2, chunk_count = $3, error_message = $4, updated_at = $5
WHERE id = $1
`, id, string(status), chunkCount, errMessage, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update filing status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update filing status rows: %w", err)
	}
	if affected == 0 {
		return domain.WrapError(domain.ErrFilingNotFound, "update filing status", fmt.Errorf("id=%s", id))
	}
	return nil
}

func (r *FilingRepository) DeleteAll(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM filings`); err != nil {
		return fmt.Errorf("delete filings: %w", err)
	}
	return nil
}
