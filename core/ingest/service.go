package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/siherrmann/filingqa/core/pipeline"
	"github.com/siherrmann/filingqa/core/structure"
	"github.com/siherrmann/filingqa/database"
	"github.com/siherrmann/filingqa/helper"
	"github.com/siherrmann/filingqa/model"
)

// FullTextSectionName labels chunks of filings without item headers.
const FullTextSectionName = "Full Text"

// ErrNoChunkReader is returned when stored chunks are needed but the
// service was built without a chunk reader.
var ErrNoChunkReader = errors.New("filing service has no chunk reader")

// FilingRepository is the relational side of the filing store.
type FilingRepository interface {
	SelectLatestFiling(ctx context.Context, ticker string, filingType string, year int) (*model.Filing, error)
	SaveFilingWithChunks(ctx context.Context, filing *model.Filing, chunks []*model.Chunk) error
	UpdateFilingStatus(ctx context.Context, filing *model.Filing) error
}

// ChunkReader loads stored chunks so pending embeddings can be resumed.
type ChunkReader interface {
	SelectChunksByFiling(ctx context.Context, filingRID uuid.UUID, section string) ([]*model.Chunk, error)
}

// Source fetches filings from the regulator.
type Source interface {
	LatestFiling(ctx context.Context, ticker string, filingType string) (*model.Filing, error)
	Download(ctx context.Context, filing *model.Filing) (string, error)
}

// Indexer embeds chunks into the vector index.
type Indexer interface {
	Index(ctx context.Context, chunks []*model.Chunk) (int, error)
}

var (
	_ FilingRepository = (*database.FilingsDBHandler)(nil)
	_ ChunkReader      = (*database.ChunksDBHandler)(nil)
)

type Status string

const (
	StatusExists        Status = "exists"
	StatusSuccess       Status = "success"
	StatusAlreadyExists Status = "already_exists"
	StatusError         Status = "error"
)

// Result reports the outcome of an ingestion call. Failures are reported
// through Status and Err, never by panicking.
type Result struct {
	Status              Status        `json:"status"`
	Message             string        `json:"message"`
	Filing              *model.Filing `json:"filing,omitempty"`
	ChunksCreated       int           `json:"chunks_created,omitempty"`
	EmbeddingsGenerated int           `json:"embeddings_generated,omitempty"`
	Err                 error         `json:"-"`
}

// Ready reports whether the filing can be searched.
func (r *Result) Ready() bool {
	return r != nil && r.Filing != nil && r.Filing.Status() == model.FilingStatusReady &&
		(r.Status == StatusExists || r.Status == StatusSuccess || r.Status == StatusAlreadyExists)
}

// FilingService fetches, structures, chunks, stores and indexes filings.
type FilingService struct {
	filings    FilingRepository
	chunks     ChunkReader
	source     Source
	index      Indexer
	structurer *structure.Structurer
	chunker    *pipeline.FilingChunker
	fallback   *pipeline.Pipeline
	logger     *slog.Logger
	metrics    *helper.Metrics
}

type FilingServiceOptions struct {
	Chunks     ChunkReader
	Structurer *structure.Structurer
	Chunker    *pipeline.FilingChunker
	// Fallback chunks and embeds the full text of filings without
	// recognizable sections or tables. Nil disables it.
	Fallback *pipeline.Pipeline
	Logger   *slog.Logger
	Metrics  *helper.Metrics
}

func NewFilingService(filings FilingRepository, source Source, index Indexer, opts FilingServiceOptions) *FilingService {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Chunker == nil {
		opts.Chunker = pipeline.NewFilingChunker(0, 0, 0)
	}
	if opts.Structurer == nil {
		opts.Structurer = structure.NewStructurer(opts.Chunker.ChunkSize, opts.Logger)
	}
	return &FilingService{
		filings:    filings,
		chunks:     opts.Chunks,
		source:     source,
		index:      index,
		structurer: opts.Structurer,
		chunker:    opts.Chunker,
		fallback:   opts.Fallback,
		logger:     opts.Logger,
		metrics:    opts.Metrics,
	}
}

// CheckFilingExists returns the most recent stored filing of the company
// and type, optionally within a fiscal year (0 for any). It returns nil
// without error when nothing is stored.
func (s *FilingService) CheckFilingExists(ctx context.Context, ticker string, filingType string, year int) (*model.Filing, error) {
	filing, err := s.filings.SelectLatestFiling(ctx, model.NormalizeTicker(ticker), filingType, year)
	if errors.Is(err, database.ErrFilingNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, helper.NewError("check filing exists", err)
	}
	return filing, nil
}

// GetOrProcessFiling returns a ready filing from the store, resumes a
// filing whose embeddings are pending, or fetches and processes it.
func (s *FilingService) GetOrProcessFiling(ctx context.Context, ticker string, filingType string) *Result {
	ticker = model.NormalizeTicker(ticker)

	existing, err := s.CheckFilingExists(ctx, ticker, filingType, 0)
	if err != nil {
		return errorResult(err, "Error checking filing")
	}

	if existing != nil {
		switch existing.Status() {
		case model.FilingStatusReady:
			s.logger.Info("Filing found locally", slog.String("ticker", ticker), slog.String("filing_type", filingType))
			return &Result{Status: StatusExists, Message: "Filing already available", Filing: existing}
		case model.FilingStatusEmbeddingsPending:
			if s.chunks != nil {
				return s.resumeEmbeddings(ctx, existing)
			}
		}
	}

	s.logger.Info("Filing not found locally, fetching", slog.String("ticker", ticker), slog.String("filing_type", filingType))
	return s.ProcessFiling(ctx, ticker, filingType, false)
}

// ProcessFiling runs the full pipeline for the latest filing of the
// company and type. Without force, a ready filing is left untouched.
func (s *FilingService) ProcessFiling(ctx context.Context, ticker string, filingType string, force bool) *Result {
	stop := s.metrics.MeasureStage("ingest")
	defer stop()

	ticker = model.NormalizeTicker(ticker)
	s.logger.Info("Processing filing", slog.String("ticker", ticker), slog.String("filing_type", filingType), slog.Bool("force", force))

	if !force {
		existing, err := s.CheckFilingExists(ctx, ticker, filingType, 0)
		if err != nil {
			return errorResult(err, "Error checking filing")
		}
		if existing != nil && existing.Status() == model.FilingStatusReady {
			return &Result{
				Status:  StatusAlreadyExists,
				Message: fmt.Sprintf("Filing for %s %s already processed", ticker, filingType),
				Filing:  existing,
			}
		}
	}

	filing, err := s.source.LatestFiling(ctx, ticker, filingType)
	if err != nil {
		return errorResult(err, fmt.Sprintf("No %s filings found for %s", filingType, ticker))
	}

	path, err := s.source.Download(ctx, filing)
	if err != nil {
		return errorResult(err, "Error downloading filing")
	}

	chunks, err := s.structureAndChunk(ctx, path, filing)
	if err != nil {
		return errorResult(err, "Error processing filing")
	}

	filing.Processed = true
	filing.EmbeddingsGenerated = false
	err = s.filings.SaveFilingWithChunks(ctx, filing, chunks)
	if err != nil {
		return errorResult(err, "Error storing filing")
	}

	result := s.embed(ctx, filing, chunks)
	if result.Status == StatusSuccess {
		result.Message = fmt.Sprintf("Successfully processed %s %s", ticker, filingType)
	}
	return result
}

func (s *FilingService) structureAndChunk(ctx context.Context, path string, filing *model.Filing) ([]*model.Chunk, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, helper.NewError("open filing", err)
	}
	defer f.Close()

	structured, err := s.structurer.StructureHTML(f)
	if err != nil {
		return nil, err
	}

	meta := model.FilingMetadata{
		Ticker:     filing.Ticker,
		FilingType: filing.FilingType,
		ReportDate: filing.ReportDate,
	}

	if len(structured.Sections) == 0 && len(structured.Tables) == 0 && s.fallback != nil {
		s.logger.Warn("Filing has no sections or tables, chunking full text", slog.String("ticker", filing.Ticker))
		return s.fallback.Process(ctx, structured.FullText, FullTextSectionName, meta)
	}

	chunks, err := s.chunker.Chunk(structured.Sections, structured.Tables, meta)
	if err != nil {
		return nil, helper.NewError("chunk filing", err)
	}

	stats := pipeline.Stats(chunks)
	s.logger.Info(
		"Chunked filing",
		slog.String("ticker", filing.Ticker),
		slog.Int("section_chunks", stats.SectionChunks),
		slog.Int("table_chunks", stats.TableChunks),
		slog.Float64("avg_chunk_size", stats.AvgChunkSize),
	)

	return chunks, nil
}

// EmbedFiling generates the embeddings of a stored filing from its
// stored chunks, whether or not it is the latest of its type.
func (s *FilingService) EmbedFiling(ctx context.Context, filing *model.Filing) *Result {
	if s.chunks == nil {
		return errorResult(ErrNoChunkReader, "Error loading stored chunks")
	}
	return s.resumeEmbeddings(ctx, filing)
}

func (s *FilingService) resumeEmbeddings(ctx context.Context, filing *model.Filing) *Result {
	s.logger.Info("Resuming pending embeddings", slog.String("ticker", filing.Ticker), slog.String("filing_type", filing.FilingType))

	chunks, err := s.chunks.SelectChunksByFiling(ctx, filing.RID, "")
	if err != nil {
		return errorResult(err, "Error loading stored chunks")
	}

	result := s.embed(ctx, filing, chunks)
	if result.Status == StatusSuccess {
		result.Message = fmt.Sprintf("Generated pending embeddings for %s %s", filing.Ticker, filing.FilingType)
	}
	return result
}

// embed indexes the stored chunks and marks the filing as embedded. On
// failure the filing stays embeddings_pending.
func (s *FilingService) embed(ctx context.Context, filing *model.Filing, chunks []*model.Chunk) *Result {
	start := time.Now()
	added, err := s.index.Index(ctx, chunks)
	if err != nil {
		s.logger.Error("Embedding failed, filing stays pending", slog.String("ticker", filing.Ticker), slog.Any("error", err))
		result := errorResult(err, "Error generating embeddings")
		result.Filing = filing
		result.ChunksCreated = len(chunks)
		return result
	}

	filing.EmbeddingsGenerated = true
	filing.NumChunks = len(chunks)
	err = s.filings.UpdateFilingStatus(ctx, filing)
	if err != nil {
		return errorResult(err, "Error updating filing status")
	}

	s.logger.Info(
		"Indexed filing",
		slog.String("ticker", filing.Ticker),
		slog.String("filing_type", filing.FilingType),
		slog.Int("chunks", len(chunks)),
		slog.Int("embedded", added),
		slog.Duration("duration", time.Since(start)),
	)

	return &Result{
		Status:              StatusSuccess,
		Filing:              filing,
		ChunksCreated:       len(chunks),
		EmbeddingsGenerated: added,
	}
}

func errorResult(err error, message string) *Result {
	return &Result{
		Status:  StatusError,
		Message: fmt.Sprintf("%s: %v", message, err),
		Err:     err,
	}
}
