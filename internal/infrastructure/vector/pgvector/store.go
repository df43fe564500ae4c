package pgvector

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	pgv "github.com/pgvector/pgvector-go"

	"github.com/MichaelWeed/financial-compliance-auditor/internal/core/domain"
	"github.com/MichaelWeed/financial-compliance-auditor/internal/infrastructure/resilience"
)

const undefinedTableCode = "42P01"

var tableNamePattern = regexp.MustCompile(`^[a-z_][a-z0-9_]{0,62}$`)

// Store keeps evidence chunks in a single Postgres table with a pgvector
// column. The table is created on the first Upsert.
type Store struct {
	db       *sql.DB
	table    string
	executor *resilience.Executor

	ensureMu   sync.Mutex
	ensuredDim int
}

// New validates the table name. A nil executor falls back to the default
// retry and breaker settings.
func New(db *sql.DB, table string, executor *resilience.Executor) (*Store, error) {
	if !tableNamePattern.MatchString(table) {
		return nil, domain.WrapError(domain.ErrInvalidInput, "pgvector store", fmt.Errorf("table name %q", table))
	}
	if executor == nil {
		executor = resilience.NewExecutor(resilience.DefaultConfig())
	}
	return &Store{db: db, table: table, executor: executor}, nil
}

func (s *Store) guarded(ctx context.Context, op string, fn func(context.Context) error) error {
	return s.executor.Execute(ctx, "pgvector."+op, fn, resilience.TemporaryClassifier)
}

func (s *Store) ident() string {
	return pgx.Identifier{s.table}.Sanitize()
}

func col(name string) string {
	return pgx.Identifier{name}.Sanitize()
}

func (s *Store) Exists(ctx context.Context) (bool, error) {
	var exists bool
	err := s.guarded(ctx, "exists", func(ctx context.Context) error {
		if err := s.db.QueryRowContext(ctx, `SELECT to_regclass($1) IS NOT NULL`, s.table).Scan(&exists); err != nil {
			return s.mapError("check evidence table", err)
		}
		return nil
	})
	return exists, err
}

func (s *Store) Schema(ctx context.Context) (domain.Schema, error) {
	var schema domain.Schema
	err := s.guarded(ctx, "schema", func(ctx context.Context) error {
		var err error
		schema, err = s.schema(ctx)
		return err
	})
	return schema, err
}

func (s *Store) schema(ctx context.Context) (domain.Schema, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT column_name
FROM information_schema.columns
WHERE table_schema = current_schema() AND table_name = $1
`, s.table)
	if err != nil {
		return nil, s.mapError("read evidence schema", err)
	}
	defer rows.Close()

	columns := make([]string, 0, len(domain.FullSchema))
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, s.mapError("scan evidence column", err)
		}
		columns = append(columns, name)
	}
	if err := rows.Err(); err != nil {
		return nil, s.mapError("iterate evidence columns", err)
	}
	if len(columns) == 0 {
		return nil, domain.WrapError(domain.ErrStoreNotInitialized, "read evidence schema", fmt.Errorf("table %s", s.table))
	}
	return domain.NewSchema(columns...), nil
}

// defaults substitute for scope columns a legacy table does not carry.
var columnDefaults = map[string]string{
	domain.ColumnSection:            `''`,
	domain.ColumnPageNumber:         `0`,
	domain.ColumnElementType:        `''`,
	domain.ColumnTablePayload:       `''`,
	domain.ColumnBBox:               `NULL::text`,
	domain.ColumnIndustry:           `''`,
	domain.ColumnYear:               `0`,
	domain.ColumnFilingType:         `''`,
	domain.ColumnFiscalPeriod:       `''`,
	domain.ColumnJurisdiction:       `''`,
	domain.ColumnRiskFlag:           `FALSE`,
	domain.ColumnCIK:                `''`,
	domain.ColumnSourceDocumentName: `''`,
}

// selectColumns is the scan order used by scanChunk.
var selectColumns = []string{
	domain.ColumnID, domain.ColumnText, domain.ColumnSection, domain.ColumnPageNumber, domain.ColumnElementType,
	domain.ColumnTablePayload, domain.ColumnBBox, domain.ColumnTicker, domain.ColumnIndustry, domain.ColumnYear,
	domain.ColumnFilingType, domain.ColumnFiscalPeriod, domain.ColumnJurisdiction, domain.ColumnRiskFlag,
	domain.ColumnCIK, domain.ColumnSourceDocumentName,
}

func selectList(schema domain.Schema) string {
	parts := make([]string, 0, len(selectColumns))
	for _, name := range selectColumns {
		if schema.Has(name) {
			parts = append(parts, col(name))
			continue
		}
		def, ok := columnDefaults[name]
		if !ok {
			def = `''`
		}
		parts = append(parts, def+" AS "+col(name))
	}
	return strings.Join(parts, ", ")
}

func (s *Store) Search(ctx context.Context, vector []float32, limit int, predicate domain.Predicate) ([]domain.ScoredEvidence, error) {
	var out []domain.ScoredEvidence
	err := s.guarded(ctx, "search", func(ctx context.Context) error {
		var err error
		out, err = s.search(ctx, vector, limit, predicate)
		return err
	})
	return out, err
}

func (s *Store) search(ctx context.Context, vector []float32, limit int, predicate domain.Predicate) ([]domain.ScoredEvidence, error) {
	schema, err := s.schema(ctx)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 8
	}

	args := []any{pgv.NewVector(vector)}
	where := make([]string, 0, len(predicate.Clauses))
	for _, clause := range predicate.Clauses {
		if !schema.Has(clause.Column) {
			return nil, domain.WrapError(domain.ErrInvalidInput, "search evidence", fmt.Errorf("unknown column %s", clause.Column))
		}
		args = append(args, clause.Value())
		where = append(where, col(clause.Column)+" = $"+strconv.Itoa(len(args)))
	}
	args = append(args, limit)

	var b strings.Builder
	b.WriteString("SELECT ")
	b.WriteString(selectList(schema))
	b.WriteString(", ")
	b.WriteString(col(domain.ColumnVector))
	b.WriteString(" <-> $1 AS distance FROM ")
	b.WriteString(s.ident())
	if len(where) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(where, " AND "))
	}
	b.WriteString(" ORDER BY distance ASC LIMIT $")
	b.WriteString(strconv.Itoa(len(args)))

	rows, err := s.db.QueryContext(ctx, b.String(), args...)
	if err != nil {
		return nil, s.mapError("search evidence", err)
	}
	defer rows.Close()

	out := make([]domain.ScoredEvidence, 0, limit)
	for rows.Next() {
		var distance float64
		chunk, err := scanChunk(rows, &distance)
		if err != nil {
			return nil, s.mapError("scan evidence", err)
		}
		out = append(out, domain.ScoredEvidence{Chunk: *chunk, Distance: distance})
	}
	if err := rows.Err(); err != nil {
		return nil, s.mapError("iterate evidence", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanChunk(row rowScanner, extra ...any) (*domain.EvidenceChunk, error) {
	var c domain.EvidenceChunk
	var bbox sql.NullString
	dest := []any{
		&c.ID, &c.Text, &c.Section, &c.PageNumber, &c.ElementType, &c.TablePayload, &bbox,
		&c.Ticker, &c.Industry, &c.Year, &c.FilingType, &c.FiscalPeriod, &c.Jurisdiction, &c.RiskFlag,
		&c.CIK, &c.SourceDocumentName,
	}
	dest = append(dest, extra...)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	if bbox.Valid {
		box, err := domain.ParseBoundingBox([]byte(bbox.String))
		if err != nil {
			return nil, fmt.Errorf("chunk %s bbox: %w", c.ID, err)
		}
		c.BBox = box
	}
	return &c, nil
}

func (s *Store) Get(ctx context.Context, id string) (*domain.EvidenceChunk, error) {
	schema, err := s.Schema(ctx)
	if err != nil {
		return nil, err
	}
	query := "SELECT " + selectList(schema) + " FROM " + s.ident() + " WHERE " + col(domain.ColumnID) + " = $1"
	chunk, err := scanChunk(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrEvidenceNotFound, "get evidence", fmt.Errorf("id=%s", id))
		}
		return nil, s.mapError("get evidence", err)
	}
	return chunk, nil
}

func (s *Store) Upsert(ctx context.Context, chunks []domain.EvidenceChunk) error {
	if len(chunks) == 0 {
		return nil
	}
	dim := len(chunks[0].Vector)
	if dim == 0 {
		return domain.WrapError(domain.ErrInvalidInput, "upsert evidence", errors.New("chunk without vector"))
	}
	if err := s.ensureTable(ctx, dim); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin upsert tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	columns := append([]string{domain.ColumnVector}, selectColumns...)
	quoted := make([]string, len(columns))
	placeholders := make([]string, len(columns))
	updates := make([]string, 0, len(columns)-1)
	for i, name := range columns {
		quoted[i] = col(name)
		placeholders[i] = "$" + strconv.Itoa(i+1)
		if name != domain.ColumnID {
			updates = append(updates, col(name)+" = EXCLUDED."+col(name))
		}
	}
	stmt, err := tx.PrepareContext(ctx, "INSERT INTO "+s.ident()+" ("+strings.Join(quoted, ", ")+") VALUES ("+
		strings.Join(placeholders, ", ")+") ON CONFLICT ("+col(domain.ColumnID)+") DO UPDATE SET "+strings.Join(updates, ", "))
	if err != nil {
		return fmt.Errorf("prepare evidence upsert: %w", err)
	}
	defer stmt.Close()

	for _, c := range chunks {
		if len(c.Vector) != dim {
			return domain.WrapError(domain.ErrInvalidInput, "upsert evidence", fmt.Errorf("chunk %s has %d dims, want %d", c.ID, len(c.Vector), dim))
		}
		var bbox any
		if c.BBox != nil {
			raw, err := json.Marshal(c.BBox)
			if err != nil {
				return fmt.Errorf("marshal bbox: %w", err)
			}
			bbox = string(raw)
		}
		if _, err := stmt.ExecContext(ctx,
			pgv.NewVector(c.Vector), c.ID, c.Text, c.Section, c.PageNumber, c.ElementType, c.TablePayload, bbox,
			c.Ticker, c.Industry, c.Year, c.FilingType, c.FiscalPeriod, c.Jurisdiction, c.RiskFlag,
			c.CIK, c.SourceDocumentName,
		); err != nil {
			return s.mapError("upsert evidence", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit evidence upsert: %w", err)
	}
	return nil
}

func (s *Store) ensureTable(ctx context.Context, dim int) error {
	s.ensureMu.Lock()
	defer s.ensureMu.Unlock()
	if s.ensuredDim == dim {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin evidence ddl tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026101702)); err != nil {
		return fmt.Errorf("acquire evidence ddl lock: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `CREATE EXTENSION IF NOT EXISTS vector`); err != nil {
		return fmt.Errorf("create vector extension: %w", err)
	}
	create := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	id TEXT PRIMARY KEY,
	vector vector(%d) NOT NULL,
	text TEXT NOT NULL DEFAULT '',
	ticker TEXT NOT NULL DEFAULT ''
)`, s.ident(), dim)
	if _, err := tx.ExecContext(ctx, create); err != nil {
		return fmt.Errorf("create evidence table: %w", err)
	}

	// Older tables predate some scope columns.
	alters := []string{
		col(domain.ColumnSection) + " TEXT NOT NULL DEFAULT ''",
		col(domain.ColumnPageNumber) + " INTEGER NOT NULL DEFAULT 0",
		col(domain.ColumnElementType) + " TEXT NOT NULL DEFAULT ''",
		col(domain.ColumnTablePayload) + " TEXT NOT NULL DEFAULT ''",
		col(domain.ColumnBBox) + " TEXT",
		col(domain.ColumnIndustry) + " TEXT NOT NULL DEFAULT ''",
		col(domain.ColumnYear) + " INTEGER NOT NULL DEFAULT 0",
		col(domain.ColumnFilingType) + " TEXT NOT NULL DEFAULT ''",
		col(domain.ColumnFiscalPeriod) + " TEXT NOT NULL DEFAULT ''",
		col(domain.ColumnJurisdiction) + " TEXT NOT NULL DEFAULT ''",
		col(domain.ColumnRiskFlag) + " BOOLEAN NOT NULL DEFAULT FALSE",
		col(domain.ColumnCIK) + " TEXT NOT NULL DEFAULT ''",
		col(domain.ColumnSourceDocumentName) + " TEXT NOT NULL DEFAULT ''",
	}
	for _, def := range alters {
		if _, err := tx.ExecContext(ctx, "ALTER TABLE "+s.ident()+" ADD COLUMN IF NOT EXISTS "+def); err != nil {
			return fmt.Errorf("evolve evidence table: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit evidence ddl: %w", err)
	}
	s.ensuredDim = dim
	return nil
}

func (s *Store) Drop(ctx context.Context) error {
	s.ensureMu.Lock()
	defer s.ensureMu.Unlock()
	if _, err := s.db.ExecContext(ctx, "DROP TABLE IF EXISTS "+s.ident()); err != nil {
		return fmt.Errorf("drop evidence table: %w", err)
	}
	s.ensuredDim = 0
	return nil
}

func (s *Store) mapError(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == undefinedTableCode {
		s.ensureMu.Lock()
		s.ensuredDim = 0
		s.ensureMu.Unlock()
		return domain.WrapError(domain.ErrStoreNotInitialized, op, err)
	}
	if isConnectionError(err) {
		return domain.WrapError(domain.ErrTemporary, op, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// isConnectionError reports failures where the statement may succeed on a
// fresh connection: dropped sockets, SQLSTATE class 08, server shutdown and
// connection exhaustion.
func isConnectionError(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, driver.ErrBadConn) || pgconn.SafeToRetry(err) {
		return true
	}
	var connectErr *pgconn.ConnectError
	if errors.As(err, &connectErr) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return strings.HasPrefix(pgErr.Code, "08") ||
			pgErr.Code == "57P01" || pgErr.Code == "57P03" || pgErr.Code == "53300"
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
