package retrieval

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/siherrmann/filingqa/helper"
	"github.com/siherrmann/filingqa/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStoreChunk(ticker string, section string, text string) *model.Chunk {
	return &model.Chunk{
		ID:                   uuid.New(),
		Ticker:               ticker,
		FilingType:           model.FilingType10K,
		ReportDate:           time.Date(2024, 9, 28, 0, 0, 0, 0, time.UTC),
		Text:                 text,
		Section:              section,
		SectionNormalized:    section,
		TotalChunksInSection: 1,
		ChunkType:            model.ChunkTypeSection,
		CharCount:            len(text),
		TokenEstimate:        len(text) / 4,
		Metadata:             model.Metadata{},
	}
}

func countingEmbed(calls *int64) func(ctx context.Context, text string) ([]float32, error) {
	return func(ctx context.Context, text string) ([]float32, error) {
		atomic.AddInt64(calls, 1)
		return keywordEmbed(ctx, text)
	}
}

// failingExistence wraps an index whose existence check always fails.
type failingExistence struct {
	*MemoryIndex
}

func (f failingExistence) ExistingIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]bool, error) {
	return nil, errors.New("backend unavailable")
}

func TestStoreIndex(t *testing.T) {
	ctx := context.Background()
	logger := helper.NewLogger(io.Discard, slog.LevelError)

	t.Run("Index embeds every new chunk", func(t *testing.T) {
		var calls int64
		store := NewStore(NewMemoryIndex(testEmbeddingDim), countingEmbed(&calls), logger, nil)
		chunks := []*model.Chunk{
			newStoreChunk("AAPL", "Item 7", "Revenue grew on iPhone sales."),
			newStoreChunk("AAPL", "Item 1A", "Competition is a key risk."),
		}

		added, err := store.Index(ctx, chunks)
		require.NoError(t, err)
		assert.Equal(t, 2, added)
		assert.Equal(t, int64(2), atomic.LoadInt64(&calls))
		assert.Len(t, chunks[0].Embedding, testEmbeddingDim)
	})

	t.Run("Index of the same chunks twice adds nothing", func(t *testing.T) {
		var calls int64
		index := NewMemoryIndex(testEmbeddingDim)
		store := NewStore(index, countingEmbed(&calls), logger, nil)
		chunks := []*model.Chunk{
			newStoreChunk("AAPL", "Item 7", "Revenue grew on iPhone sales."),
		}

		_, err := store.Index(ctx, chunks)
		require.NoError(t, err)
		added, err := store.Index(ctx, chunks)
		require.NoError(t, err)
		assert.Equal(t, 0, added)
		assert.Equal(t, int64(1), atomic.LoadInt64(&calls))

		info, err := store.Info(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, info.Count)
	})

	t.Run("Index deduplicates ids within one call", func(t *testing.T) {
		var calls int64
		store := NewStore(NewMemoryIndex(testEmbeddingDim), countingEmbed(&calls), logger, nil)
		c := newStoreChunk("AAPL", "Item 7", "Revenue grew.")

		added, err := store.Index(ctx, []*model.Chunk{c, c})
		require.NoError(t, err)
		assert.Equal(t, 1, added)
	})

	t.Run("Index works across batches", func(t *testing.T) {
		var calls int64
		store := NewStore(NewMemoryIndex(testEmbeddingDim), countingEmbed(&calls), logger, nil)
		store.BatchSize = 2

		var chunks []*model.Chunk
		for i := 0; i < 5; i++ {
			chunks = append(chunks, newStoreChunk("AAPL", "Item 7", "Revenue line."))
		}

		added, err := store.Index(ctx, chunks)
		require.NoError(t, err)
		assert.Equal(t, 5, added)
		assert.Equal(t, int64(5), atomic.LoadInt64(&calls))
	})

	t.Run("Index fails open when existence check fails", func(t *testing.T) {
		var calls int64
		memory := NewMemoryIndex(testEmbeddingDim)
		store := NewStore(failingExistence{memory}, countingEmbed(&calls), logger, nil)
		chunks := []*model.Chunk{newStoreChunk("AAPL", "Item 7", "Revenue grew.")}

		added, err := store.Index(ctx, chunks)
		require.NoError(t, err)
		assert.Equal(t, 1, added)

		info, err := memory.Info(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, info.Count)
	})

	t.Run("Index returns embedding errors", func(t *testing.T) {
		failing := func(ctx context.Context, text string) ([]float32, error) {
			return nil, errors.New("embedding service down")
		}
		store := NewStore(NewMemoryIndex(testEmbeddingDim), failing, logger, nil)

		added, err := store.Index(ctx, []*model.Chunk{newStoreChunk("AAPL", "Item 7", "Revenue grew.")})
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "embedding service down")
		assert.Equal(t, 0, added)
	})
}

func TestStoreSearch(t *testing.T) {
	ctx := context.Background()
	logger := helper.NewLogger(io.Discard, slog.LevelError)

	revenue := newStoreChunk("AAPL", "Item 7", "Revenue and sales increased, net income rose.")
	risk := newStoreChunk("AAPL", "Item 1A", "Competition and regulation are a risk.")
	cloud := newStoreChunk("MSFT", "Item 7", "Azure cloud revenue grew in every datacenter region.")

	store := NewStore(NewMemoryIndex(testEmbeddingDim), keywordEmbed, logger, nil)
	_, err := store.Index(ctx, []*model.Chunk{revenue, risk, cloud})
	require.NoError(t, err)

	t.Run("Search returns own text as top result", func(t *testing.T) {
		results, err := store.Search(ctx, risk.Text, model.SearchFilter{}, 3)
		require.NoError(t, err)
		require.NotEmpty(t, results)
		assert.Equal(t, risk.ID, results[0].ID)
		assert.InDelta(t, 1.0, results[0].Similarity, 1e-6)
	})

	t.Run("Search with ticker filter only returns that ticker", func(t *testing.T) {
		results, err := store.Search(ctx, "cloud revenue", model.SearchFilter{Ticker: "AAPL"}, 5)
		require.NoError(t, err)
		for _, r := range results {
			assert.Equal(t, "AAPL", r.Ticker)
		}
	})

	t.Run("Search expands a bare section number", func(t *testing.T) {
		results, err := store.Search(ctx, "revenue", model.SearchFilter{Ticker: "AAPL", Section: "7"}, 5)
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, revenue.ID, results[0].ID)
	})

	t.Run("Search returns empty when nothing passes the threshold", func(t *testing.T) {
		results, err := store.Search(ctx, "risk", model.SearchFilter{Ticker: "MSFT"}, 5)
		require.NoError(t, err)
		assert.Empty(t, results)
	})

	t.Run("Search uses default top k", func(t *testing.T) {
		results, err := store.Search(ctx, "revenue", model.SearchFilter{}, 0)
		require.NoError(t, err)
		assert.LessOrEqual(t, len(results), store.Config.TopK)
	})
}

func TestStorePostgres(t *testing.T) {
	filings, chunks := initHandlers(t)
	ctx := context.Background()
	logger := helper.NewLogger(io.Discard, slog.LevelError)

	filing := &model.Filing{
		Ticker:      "PGS",
		CompanyName: "PGS Corp",
		FilingType:  model.FilingType10K,
		ReportDate:  time.Date(2024, 6, 30, 0, 0, 0, 0, time.UTC),
		Metadata:    model.Metadata{},
	}
	revenue := newStoreChunk("PGS", "Item 7", "Revenue and sales increased.")
	risk := newStoreChunk("PGS", "Item 1A", "Competition is a risk.")
	require.NoError(t, filings.SaveFilingWithChunks(ctx, filing, []*model.Chunk{revenue, risk}))

	var calls int64
	store := NewStore(chunks, countingEmbed(&calls), logger, nil)

	t.Run("Index writes embeddings once", func(t *testing.T) {
		added, err := store.Index(ctx, []*model.Chunk{revenue, risk})
		require.NoError(t, err)
		assert.Equal(t, 2, added)

		added, err = store.Index(ctx, []*model.Chunk{revenue, risk})
		require.NoError(t, err)
		assert.Equal(t, 0, added)
		assert.Equal(t, int64(2), atomic.LoadInt64(&calls))
	})

	t.Run("Search finds the chunk by its own text", func(t *testing.T) {
		results, err := store.Search(ctx, risk.Text, model.SearchFilter{Ticker: "PGS"}, 2)
		require.NoError(t, err)
		require.NotEmpty(t, results)
		assert.Equal(t, risk.ID, results[0].ID)
		assert.Equal(t, "PGS", results[0].Ticker)
	})
}

func TestStoreIndexPrecomputed(t *testing.T) {
	var calls int64
	store := NewStore(NewMemoryIndex(testEmbeddingDim), countingEmbed(&calls), helper.NewLogger(io.Discard, slog.LevelError), nil)
	c := newStoreChunk("AAPL", "Item 7", "Revenue grew.")
	c.Embedding = []float32{1, 0, 0}

	added, err := store.Index(context.Background(), []*model.Chunk{c})
	require.NoError(t, err)
	assert.Equal(t, 1, added)
	assert.Equal(t, int64(0), atomic.LoadInt64(&calls))
	assert.Equal(t, []float32{1, 0, 0}, c.Embedding)
}
