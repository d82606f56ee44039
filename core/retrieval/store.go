package retrieval

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"github.com/siherrmann/filingqa/core/pipeline"
	"github.com/siherrmann/filingqa/core/structure"
	"github.com/siherrmann/filingqa/helper"
	"github.com/siherrmann/filingqa/model"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultBatchSize   = 100
	DefaultConcurrency = 4
)

// Store embeds chunks into a VectorIndex and searches it by query text.
type Store struct {
	index   VectorIndex
	embed   pipeline.EmbedFunc
	logger  *slog.Logger
	metrics *helper.Metrics

	BatchSize   int
	Concurrency int
	Config      model.SearchConfig
}

func NewStore(index VectorIndex, embed pipeline.EmbedFunc, logger *slog.Logger, metrics *helper.Metrics) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		index:       index,
		embed:       embed,
		logger:      logger,
		metrics:     metrics,
		BatchSize:   DefaultBatchSize,
		Concurrency: DefaultConcurrency,
		Config:      model.DefaultSearchConfig(),
	}
}

// Index embeds and stores the chunks that are not in the index yet and
// returns how many were added. Chunks that already carry an embedding
// are stored as they are. Submitting the same chunks again adds
// nothing. If the existence check fails, all chunks of the batch are
// treated as missing.
func (s *Store) Index(ctx context.Context, chunks []*model.Chunk) (int, error) {
	batchSize := s.BatchSize
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	added := 0
	for start := 0; start < len(chunks); start += batchSize {
		end := min(start+batchSize, len(chunks))
		batch := chunks[start:end]

		ids := make([]uuid.UUID, len(batch))
		for i, c := range batch {
			ids[i] = c.ID
		}

		existing, err := s.index.ExistingIDs(ctx, ids)
		if err != nil {
			s.logger.Warn("Existence check failed, indexing whole batch", slog.Any("error", err), slog.Int("batch_size", len(batch)))
			existing = map[uuid.UUID]bool{}
		}

		var missing []*model.Chunk
		seen := map[uuid.UUID]bool{}
		for _, c := range batch {
			if existing[c.ID] || seen[c.ID] {
				continue
			}
			seen[c.ID] = true
			missing = append(missing, c)
		}
		if len(missing) == 0 {
			continue
		}

		err = s.embedAll(ctx, missing)
		if err != nil {
			return added, helper.NewError("embed chunks", err)
		}

		err = s.index.UpsertEmbeddings(ctx, missing)
		if err != nil {
			return added, helper.NewError("upsert embeddings", err)
		}

		added += len(missing)
		s.metrics.AddChunksIndexed(len(missing))
	}

	s.logger.Info("Indexed chunks", slog.Int("submitted", len(chunks)), slog.Int("added", added))

	return added, nil
}

func (s *Store) embedAll(ctx context.Context, chunks []*model.Chunk) error {
	stop := s.metrics.MeasureStage("embed")
	defer stop()

	concurrency := s.Concurrency
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for _, c := range chunks {
		if len(c.Embedding) > 0 {
			continue
		}
		g.Go(func() error {
			embedding, err := s.embed(gctx, c.Text)
			if err != nil {
				return err
			}
			c.Embedding = embedding
			return nil
		})
	}
	return g.Wait()
}

// Search embeds query and returns at most topK chunks matching filter,
// best first. Results below the score threshold are dropped and the
// filter is never relaxed, so the result may be empty. A non-positive
// topK uses the configured default.
func (s *Store) Search(ctx context.Context, query string, filter model.SearchFilter, topK int) ([]*model.Chunk, error) {
	if topK <= 0 {
		topK = s.Config.TopK
	}
	filter.Section = structure.SectionKey(filter.Section)

	embedding, err := s.embed(ctx, query)
	if err != nil {
		return nil, helper.NewError("embed query", err)
	}

	results, err := s.index.Search(ctx, embedding, filter, topK, s.Config.ScoreThreshold)
	if err != nil {
		return nil, helper.NewError("search index", err)
	}

	kept := make([]*model.Chunk, 0, len(results))
	for _, r := range results {
		if r.Similarity >= s.Config.ScoreThreshold {
			kept = append(kept, r)
		}
	}

	if len(kept) == 0 {
		s.logger.Warn(
			"No chunks above score threshold",
			slog.String("ticker", filter.Ticker),
			slog.String("filing_type", filter.FilingType),
			slog.String("section", filter.Section),
			slog.Float64("threshold", s.Config.ScoreThreshold),
		)
	}

	return kept, nil
}

// Info describes the underlying index.
func (s *Store) Info(ctx context.Context) (model.IndexInfo, error) {
	return s.index.Info(ctx)
}
