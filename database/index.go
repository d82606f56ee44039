package database

import (
	"context"
	"fmt"
	"time"

	"github.com/siherrmann/filingqa/helper"
)

const (
	IndexTypeHNSW    = "hnsw"
	IndexTypeIVFFlat = "ivfflat"
)

// IndexOptions tune the approximate nearest neighbour index on chunk embeddings.
// Zero values fall back to the pgvector defaults.
type IndexOptions struct {
	// HNSW
	M              int `yaml:"m"`
	EfConstruction int `yaml:"ef_construction"`
	// IVFFlat
	Lists int `yaml:"lists"`
}

// ChangeIndexType rebuilds the embedding index as HNSW or IVFFlat.
// Filters on ticker, filing type and section keep using their btree index.
func (h *ChunksDBHandler) ChangeIndexType(ctx context.Context, indexType string, opts IndexOptions) error {
	ctx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()

	var createIndexSQL string
	switch indexType {
	case IndexTypeHNSW:
		m, efConstruction := 16, 64
		if opts.M > 0 {
			m = opts.M
		}
		if opts.EfConstruction > 0 {
			efConstruction = opts.EfConstruction
		}
		createIndexSQL = fmt.Sprintf(
			`CREATE INDEX idx_chunks_embedding ON chunks USING hnsw (embedding vector_cosine_ops) WITH (m = %d, ef_construction = %d);`,
			m, efConstruction,
		)
	case IndexTypeIVFFlat:
		lists := 100
		if opts.Lists > 0 {
			lists = opts.Lists
		}
		createIndexSQL = fmt.Sprintf(
			`CREATE INDEX idx_chunks_embedding ON chunks USING ivfflat (embedding vector_cosine_ops) WITH (lists = %d);`,
			lists,
		)
	default:
		return helper.NewError("change index type", fmt.Errorf("unsupported index type: %s (use 'hnsw' or 'ivfflat')", indexType))
	}

	_, err := h.db.Instance.ExecContext(ctx, `DROP INDEX IF EXISTS idx_chunks_embedding;`)
	if err != nil {
		return helper.NewError("drop index", err)
	}

	_, err = h.db.Instance.ExecContext(ctx, createIndexSQL)
	if err != nil {
		return helper.NewError("create index", err)
	}

	h.db.Logger.Info("Rebuilt vector index", "type", indexType, "m", opts.M, "ef_construction", opts.EfConstruction, "lists", opts.Lists)

	return nil
}
