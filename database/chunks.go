package database

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"
	"github.com/siherrmann/filingqa/helper"
	"github.com/siherrmann/filingqa/model"
	loadSql "github.com/siherrmann/filingqa/sql"
)

// ChunksDBHandlerFunctions defines the interface for Chunks database operations.
type ChunksDBHandlerFunctions interface {
	PutChunks(ctx context.Context, chunks []*model.Chunk) error
	SelectChunks(ctx context.Context, ids []uuid.UUID) ([]*model.Chunk, error)
	SelectChunksByFiling(ctx context.Context, filingRID uuid.UUID, section string) ([]*model.Chunk, error)
	ExistingIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]bool, error)
	UpsertEmbeddings(ctx context.Context, chunks []*model.Chunk) error
	ClearEmbeddings(ctx context.Context) (int, error)
	Search(ctx context.Context, embedding []float32, filter model.SearchFilter, topK int, threshold float64) ([]*model.Chunk, error)
	Info(ctx context.Context) (model.IndexInfo, error)
}

// ChunksDBHandler handles chunk-related database operations. The chunk
// row and its vector live in the same table, so both share one id.
type ChunksDBHandler struct {
	db           *helper.Database
	embeddingDim int
}

// NewChunksDBHandler creates a new chunks database handler.
// It loads the chunk-related SQL functions and creates the table with a
// vector column of embeddingDim dimensions. The filings table must exist.
// If force is true, it will reload the SQL functions even if they already exist.
func NewChunksDBHandler(db *helper.Database, embeddingDim int, force bool) (*ChunksDBHandler, error) {
	if db == nil {
		return nil, helper.NewError("database connection validation", fmt.Errorf("database connection is nil"))
	}
	if embeddingDim <= 0 {
		return nil, helper.NewError("embedding dimension validation", fmt.Errorf("embedding dimension must be positive, got %d", embeddingDim))
	}

	chunksDbHandler := &ChunksDBHandler{
		db:           db,
		embeddingDim: embeddingDim,
	}

	err := loadSql.LoadChunksSql(chunksDbHandler.db.Instance, force)
	if err != nil {
		return nil, helper.NewError("load chunks sql", err)
	}

	err = chunksDbHandler.CreateTable(embeddingDim)
	if err != nil {
		return nil, helper.NewError("create table", err)
	}

	db.Logger.Info("Initialized ChunksDBHandler")

	return chunksDbHandler, nil
}

// CreateTable creates the 'chunks' table with its filter and vector indexes.
// If the table already exists, it does not create it again.
func (h *ChunksDBHandler) CreateTable(embeddingDim int) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := h.db.Instance.ExecContext(ctx, `SELECT init_chunks($1);`, embeddingDim)
	if err != nil {
		log.Panicf("error initializing chunks table: %#v", err)
	}

	h.db.Logger.Info("Checked/created table chunks")

	return nil
}

// PutChunks inserts or replaces chunk rows in one transaction.
// Every chunk must reference an existing filing.
func (h *ChunksDBHandler) PutChunks(ctx context.Context, chunks []*model.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	return h.db.WithTx(ctx, func(tx *sql.Tx) error {
		for _, chunk := range chunks {
			if err := upsertChunk(ctx, tx, chunk); err != nil {
				return err
			}
		}
		return nil
	})
}

func upsertChunk(ctx context.Context, q querier, chunk *model.Chunk) error {
	if chunk.ID == uuid.Nil {
		chunk.ID = uuid.New()
	}

	row := q.QueryRowContext(
		ctx,
		`SELECT * FROM upsert_chunk($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
		chunk.ID,
		chunk.FilingRID,
		chunk.Ticker,
		chunk.FilingType,
		nullTime(chunk.ReportDate),
		chunk.Text,
		chunk.Section,
		chunk.SectionNormalized,
		chunk.ChunkIndex,
		chunk.TotalChunksInSection,
		string(chunk.ChunkType),
		chunk.CharCount,
		chunk.TokenEstimate,
		chunk.TableRows,
		chunk.TableCols,
		chunk.Metadata,
	)

	err := row.Scan(&chunk.ID, &chunk.CreatedAt)
	if err != nil {
		return helper.NewError("scan", err)
	}

	return nil
}

// SelectChunks returns the chunks with the given ids. Unknown ids are skipped.
func (h *ChunksDBHandler) SelectChunks(ctx context.Context, ids []uuid.UUID) ([]*model.Chunk, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	rows, err := h.db.Instance.QueryContext(ctx, `SELECT * FROM select_chunks($1)`, pq.Array(uuidStrings(ids)))
	if err != nil {
		return nil, helper.NewError("query", err)
	}
	defer rows.Close()

	return scanChunks(rows)
}

// SelectChunksByFiling returns the chunks of a filing ordered by section and
// position. An empty section returns all chunks.
func (h *ChunksDBHandler) SelectChunksByFiling(ctx context.Context, filingRID uuid.UUID, section string) ([]*model.Chunk, error) {
	rows, err := h.db.Instance.QueryContext(ctx, `SELECT * FROM select_chunks_by_filing($1, $2)`, filingRID, nullString(section))
	if err != nil {
		return nil, helper.NewError("query", err)
	}
	defer rows.Close()

	return scanChunks(rows)
}

// ExistingIDs reports which of the given ids already have an embedding.
func (h *ChunksDBHandler) ExistingIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]bool, error) {
	existing := map[uuid.UUID]bool{}
	if len(ids) == 0 {
		return existing, nil
	}

	rows, err := h.db.Instance.QueryContext(ctx, `SELECT * FROM select_embedded_chunk_ids($1)`, pq.Array(uuidStrings(ids)))
	if err != nil {
		return nil, helper.NewError("query", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, helper.NewError("scan", err)
		}
		existing[id] = true
	}

	err = rows.Err()
	if err != nil {
		return nil, helper.NewError("rows error", err)
	}

	return existing, nil
}

// UpsertEmbeddings stores the embedding of every chunk in one transaction.
func (h *ChunksDBHandler) UpsertEmbeddings(ctx context.Context, chunks []*model.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	return h.db.WithTx(ctx, func(tx *sql.Tx) error {
		for _, chunk := range chunks {
			if len(chunk.Embedding) != h.embeddingDim {
				return helper.NewError("embedding dimension", fmt.Errorf("chunk %s has %d dimensions, expected %d", chunk.ID, len(chunk.Embedding), h.embeddingDim))
			}

			var updated int
			err := tx.QueryRowContext(
				ctx,
				`SELECT update_chunk_embedding($1, $2)`,
				chunk.ID,
				pgvector.NewVector(chunk.Embedding),
			).Scan(&updated)
			if err != nil {
				return helper.NewError("update embedding", err)
			}
			if updated == 0 {
				return helper.NewError("update embedding", fmt.Errorf("chunk %s not found", chunk.ID))
			}
		}
		return nil
	})
}

// ClearEmbeddings removes every stored embedding and returns how many were cleared.
func (h *ChunksDBHandler) ClearEmbeddings(ctx context.Context) (int, error) {
	var cleared int
	err := h.db.Instance.QueryRowContext(ctx, `SELECT clear_chunk_embeddings()`).Scan(&cleared)
	if err != nil {
		return 0, helper.NewError("exec", err)
	}
	return cleared, nil
}

// Search returns up to topK chunks that satisfy the filter, ranked by cosine
// similarity to embedding. Chunks below threshold are dropped. The filter is
// applied before ranking and is never relaxed.
func (h *ChunksDBHandler) Search(ctx context.Context, embedding []float32, filter model.SearchFilter, topK int, threshold float64) ([]*model.Chunk, error) {
	if len(embedding) != h.embeddingDim {
		return nil, helper.NewError("embedding dimension", fmt.Errorf("query has %d dimensions, expected %d", len(embedding), h.embeddingDim))
	}
	if topK <= 0 {
		return nil, nil
	}

	rows, err := h.db.Instance.QueryContext(
		ctx,
		`SELECT * FROM select_chunks_by_similarity($1, $2, $3, $4, $5, $6)`,
		pgvector.NewVector(embedding),
		topK,
		threshold,
		nullString(filter.Ticker),
		nullString(filter.FilingType),
		nullString(filter.Section),
	)
	if err != nil {
		return nil, helper.NewError("query", err)
	}
	defer rows.Close()

	var chunks []*model.Chunk
	for rows.Next() {
		chunk := &model.Chunk{}
		var reportDate sql.NullTime
		var chunkType string
		err := rows.Scan(
			&chunk.ID,
			&chunk.FilingRID,
			&chunk.Ticker,
			&chunk.FilingType,
			&reportDate,
			&chunk.Text,
			&chunk.Section,
			&chunk.SectionNormalized,
			&chunk.ChunkIndex,
			&chunk.TotalChunksInSection,
			&chunkType,
			&chunk.CharCount,
			&chunk.TokenEstimate,
			&chunk.TableRows,
			&chunk.TableCols,
			&chunk.Metadata,
			&chunk.CreatedAt,
			&chunk.DocumentURL,
			&chunk.Similarity,
		)
		if err != nil {
			return nil, helper.NewError("scan", err)
		}
		chunk.ReportDate = reportDate.Time
		chunk.ChunkType = model.ChunkType(chunkType)

		chunks = append(chunks, chunk)
	}

	err = rows.Err()
	if err != nil {
		return nil, helper.NewError("rows error", err)
	}

	return chunks, nil
}

// Info returns the chunk and embedding counts of the index.
func (h *ChunksDBHandler) Info(ctx context.Context) (model.IndexInfo, error) {
	info := model.IndexInfo{
		Name:      "chunks",
		Dimension: h.embeddingDim,
	}

	var total, embedded int64
	err := h.db.Instance.QueryRowContext(ctx, `SELECT * FROM count_chunks()`).Scan(&total, &embedded)
	if err != nil {
		return info, helper.NewError("scan", err)
	}
	info.Count = int(total)
	info.Embeddings = int(embedded)

	err = h.db.Instance.QueryRowContext(
		ctx,
		`SELECT COALESCE((SELECT am.amname FROM pg_class c JOIN pg_am am ON am.oid = c.relam WHERE c.relname = 'idx_chunks_embedding'), '')`,
	).Scan(&info.IndexType)
	if err != nil {
		return info, helper.NewError("scan index type", err)
	}

	return info, nil
}

func scanChunks(rows *sql.Rows) ([]*model.Chunk, error) {
	var chunks []*model.Chunk
	for rows.Next() {
		chunk := &model.Chunk{}
		var reportDate sql.NullTime
		var chunkType string
		err := rows.Scan(
			&chunk.ID,
			&chunk.FilingRID,
			&chunk.Ticker,
			&chunk.FilingType,
			&reportDate,
			&chunk.Text,
			&chunk.Section,
			&chunk.SectionNormalized,
			&chunk.ChunkIndex,
			&chunk.TotalChunksInSection,
			&chunkType,
			&chunk.CharCount,
			&chunk.TokenEstimate,
			&chunk.TableRows,
			&chunk.TableCols,
			pq.Array(&chunk.Embedding),
			&chunk.Metadata,
			&chunk.CreatedAt,
			&chunk.DocumentURL,
		)
		if err != nil {
			return nil, helper.NewError("scan", err)
		}
		chunk.ReportDate = reportDate.Time
		chunk.ChunkType = model.ChunkType(chunkType)

		chunks = append(chunks, chunk)
	}

	err := rows.Err()
	if err != nil {
		return nil, helper.NewError("rows error", err)
	}

	return chunks, nil
}

func uuidStrings(ids []uuid.UUID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}

func nullString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func nullTime(t time.Time) interface{} {
	if t.IsZero() {
		return nil
	}
	return t
}
