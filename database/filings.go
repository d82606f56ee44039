package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/siherrmann/filingqa/helper"
	"github.com/siherrmann/filingqa/model"
	loadSql "github.com/siherrmann/filingqa/sql"
)

// ErrFilingNotFound is returned when no filing matches a lookup.
var ErrFilingNotFound = errors.New("filing not found")

// FilingsDBHandlerFunctions defines the interface for Filings database operations.
type FilingsDBHandlerFunctions interface {
	InsertFiling(ctx context.Context, filing *model.Filing) error
	SelectFiling(ctx context.Context, rid uuid.UUID) (*model.Filing, error)
	SelectLatestFiling(ctx context.Context, ticker string, filingType string, year int) (*model.Filing, error)
	SelectFilings(ctx context.Context, ticker string) ([]*model.Filing, error)
	UpdateFilingStatus(ctx context.Context, filing *model.Filing) error
	DeleteFiling(ctx context.Context, ticker string, filingType string, reportDate time.Time) (int, error)
	SaveFilingWithChunks(ctx context.Context, filing *model.Filing, chunks []*model.Chunk) error
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type rowScanner interface {
	Scan(dest ...any) error
}

// FilingsDBHandler handles filing-related database operations
type FilingsDBHandler struct {
	db *helper.Database
}

// NewFilingsDBHandler creates a new filings database handler.
// It loads the filing-related SQL functions and creates the table.
// If force is true, it will reload the SQL functions even if they already exist.
func NewFilingsDBHandler(db *helper.Database, force bool) (*FilingsDBHandler, error) {
	if db == nil {
		return nil, helper.NewError("database connection validation", fmt.Errorf("database connection is nil"))
	}

	filingsDbHandler := &FilingsDBHandler{
		db: db,
	}

	err := loadSql.LoadFilingsSql(filingsDbHandler.db.Instance, force)
	if err != nil {
		return nil, helper.NewError("load filings sql", err)
	}

	err = filingsDbHandler.CreateTable()
	if err != nil {
		return nil, helper.NewError("create table", err)
	}

	db.Logger.Info("Initialized FilingsDBHandler")

	return filingsDbHandler, nil
}

// CreateTable creates the 'filings' table if it does not exist yet.
func (h *FilingsDBHandler) CreateTable() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := h.db.Instance.ExecContext(ctx, `SELECT init_filings();`)
	if err != nil {
		log.Panicf("error initializing filings table: %#v", err)
	}

	h.db.Logger.Info("Checked/created table filings")

	return nil
}

// InsertFiling inserts a new filing and sets its generated fields.
func (h *FilingsDBHandler) InsertFiling(ctx context.Context, filing *model.Filing) error {
	return insertFiling(ctx, h.db.Instance, filing)
}

func insertFiling(ctx context.Context, q querier, filing *model.Filing) error {
	row := q.QueryRowContext(
		ctx,
		`SELECT * FROM insert_filing($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		filing.Ticker,
		filing.CompanyName,
		filing.CIK,
		filing.FilingType,
		filing.ReportDate,
		filing.FilingDate,
		filing.AccessionNumber,
		filing.DocumentURL,
		filing.ContentRef,
		filing.Processed,
		filing.EmbeddingsGenerated,
		filing.NumChunks,
		filing.Metadata,
	)

	err := row.Scan(
		&filing.ID,
		&filing.RID,
		&filing.CreatedAt,
		&filing.UpdatedAt,
	)
	if err != nil {
		return helper.NewError("scan", err)
	}

	return nil
}

// SelectFiling retrieves a filing by its RID
func (h *FilingsDBHandler) SelectFiling(ctx context.Context, rid uuid.UUID) (*model.Filing, error) {
	row := h.db.Instance.QueryRowContext(ctx, `SELECT * FROM select_filing($1)`, rid)
	return scanFilingRow(row)
}

// SelectLatestFiling returns the most recent filing of a company and type.
// A year of zero matches any fiscal year.
func (h *FilingsDBHandler) SelectLatestFiling(ctx context.Context, ticker string, filingType string, year int) (*model.Filing, error) {
	row := h.db.Instance.QueryRowContext(
		ctx,
		`SELECT * FROM select_latest_filing($1, $2, $3)`,
		model.NormalizeTicker(ticker),
		filingType,
		year,
	)
	return scanFilingRow(row)
}

// SelectFilings lists the filings of one company, or of all companies for an empty ticker.
func (h *FilingsDBHandler) SelectFilings(ctx context.Context, ticker string) ([]*model.Filing, error) {
	rows, err := h.db.Instance.QueryContext(ctx, `SELECT * FROM select_filings($1)`, model.NormalizeTicker(ticker))
	if err != nil {
		return nil, helper.NewError("query", err)
	}
	defer rows.Close()

	var filings []*model.Filing
	for rows.Next() {
		filing, err := scanFiling(rows)
		if err != nil {
			return nil, helper.NewError("scan", err)
		}
		filings = append(filings, filing)
	}

	err = rows.Err()
	if err != nil {
		return nil, helper.NewError("rows error", err)
	}

	return filings, nil
}

// UpdateFilingStatus persists the processing flags and chunk count.
func (h *FilingsDBHandler) UpdateFilingStatus(ctx context.Context, filing *model.Filing) error {
	row := h.db.Instance.QueryRowContext(
		ctx,
		`SELECT * FROM update_filing_status($1, $2, $3, $4)`,
		filing.RID,
		filing.Processed,
		filing.EmbeddingsGenerated,
		filing.NumChunks,
	)

	updated, err := scanFilingRow(row)
	if err != nil {
		return err
	}
	*filing = *updated

	return nil
}

// DeleteFiling removes a filing and, by cascade, its chunks.
func (h *FilingsDBHandler) DeleteFiling(ctx context.Context, ticker string, filingType string, reportDate time.Time) (int, error) {
	return deleteFiling(ctx, h.db.Instance, ticker, filingType, reportDate)
}

func deleteFiling(ctx context.Context, q querier, ticker string, filingType string, reportDate time.Time) (int, error) {
	var deleted int
	err := q.QueryRowContext(
		ctx,
		`SELECT delete_filing($1, $2, $3)`,
		model.NormalizeTicker(ticker),
		filingType,
		reportDate,
	).Scan(&deleted)
	if err != nil {
		return 0, helper.NewError("exec", err)
	}
	return deleted, nil
}

// SaveFilingWithChunks replaces any stored filing with the same ticker,
// type and report date and inserts the new filing together with its
// chunks. Everything happens in one transaction.
func (h *FilingsDBHandler) SaveFilingWithChunks(ctx context.Context, filing *model.Filing, chunks []*model.Chunk) error {
	return h.db.WithTx(ctx, func(tx *sql.Tx) error {
		deleted, err := deleteFiling(ctx, tx, filing.Ticker, filing.FilingType, filing.ReportDate)
		if err != nil {
			return helper.NewError("delete existing filing", err)
		}
		if deleted > 0 {
			h.db.Logger.Info("Replaced existing filing", "ticker", filing.Ticker, "filing_type", filing.FilingType)
		}

		filing.NumChunks = len(chunks)
		err = insertFiling(ctx, tx, filing)
		if err != nil {
			return helper.NewError("insert filing", err)
		}

		for _, chunk := range chunks {
			chunk.FilingRID = filing.RID
			err = upsertChunk(ctx, tx, chunk)
			if err != nil {
				return helper.NewError("insert chunk", err)
			}
		}

		return nil
	})
}

func scanFilingRow(row *sql.Row) (*model.Filing, error) {
	filing, err := scanFiling(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrFilingNotFound
	}
	if err != nil {
		return nil, helper.NewError("scan", err)
	}
	return filing, nil
}

func scanFiling(row rowScanner) (*model.Filing, error) {
	filing := &model.Filing{}
	err := row.Scan(
		&filing.ID,
		&filing.RID,
		&filing.Ticker,
		&filing.CompanyName,
		&filing.CIK,
		&filing.FilingType,
		&filing.ReportDate,
		&filing.FilingDate,
		&filing.AccessionNumber,
		&filing.DocumentURL,
		&filing.ContentRef,
		&filing.Processed,
		&filing.EmbeddingsGenerated,
		&filing.NumChunks,
		&filing.Metadata,
		&filing.CreatedAt,
		&filing.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return filing, nil
}
