package retrieval

import (
	"context"

	"github.com/google/uuid"
	"github.com/siherrmann/filingqa/database"
	"github.com/siherrmann/filingqa/model"
)

// VectorIndex stores chunk embeddings and answers filtered similarity
// queries. Implementations must apply the filter before ranking.
type VectorIndex interface {
	ExistingIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]bool, error)
	UpsertEmbeddings(ctx context.Context, chunks []*model.Chunk) error
	Search(ctx context.Context, embedding []float32, filter model.SearchFilter, topK int, threshold float64) ([]*model.Chunk, error)
	Info(ctx context.Context) (model.IndexInfo, error)
}

var (
	_ VectorIndex = (*database.ChunksDBHandler)(nil)
	_ VectorIndex = (*MemoryIndex)(nil)
)
