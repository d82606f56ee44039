package filingqa

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/siherrmann/filingqa/core/agent"
	"github.com/siherrmann/filingqa/core/ingest"
	"github.com/siherrmann/filingqa/core/llm"
	"github.com/siherrmann/filingqa/core/pipeline"
	"github.com/siherrmann/filingqa/core/retrieval"
	"github.com/siherrmann/filingqa/core/sec"
	"github.com/siherrmann/filingqa/core/structure"
	"github.com/siherrmann/filingqa/database"
	"github.com/siherrmann/filingqa/helper"
	"github.com/siherrmann/filingqa/model"
	loadSql "github.com/siherrmann/filingqa/sql"
)

const (
	// PlanFailedText answers a query the planner could not decompose.
	PlanFailedText = "I was unable to create a plan to answer your question. Please try rephrasing it."
	// UnsupportedCompanyText answers a query about a company outside the supported list.
	UnsupportedCompanyText = "This company is not in the list of supported companies. Please ask about a supported company."

	planFailedReason         = "The question could not be broken down into filing lookups"
	unsupportedCompanyReason = "The question names a company outside the supported list"

	StagePreprocess = "preprocess"
	StagePlan       = "plan"
	StageExecute    = "execute"
	StageSynthesize = "synthesize"
	StageFormat     = "format"
)

// FilingLinker looks up the stored filing behind an answer.
type FilingLinker interface {
	SelectLatestFiling(ctx context.Context, ticker string, filingType string, year int) (*model.Filing, error)
}

// Components are the stages of the answer pipeline. Preprocessor and
// Links are optional.
type Components struct {
	Preprocessor *agent.TickerPreprocessor
	Planner      *agent.Planner
	Executor     *agent.Executor
	Synthesizer  *agent.Synthesizer
	Formatter    *agent.Formatter
	Links        FilingLinker
}

// FilingQA answers questions about SEC filings. It is built once and
// then serves any number of queries.
type FilingQA struct {
	DB      *helper.Database
	Filings *database.FilingsDBHandler
	Chunks  *database.ChunksDBHandler
	Store   *retrieval.Store
	SEC     *sec.Client
	Ingest  *ingest.FilingService
	Metrics *helper.Metrics

	components Components
	closers    []func() error
	// Logging
	log *slog.Logger
}

// New connects to the database, loads the SQL functions and wires every
// component from config.
func New(config *helper.Configuration, dbConfig *helper.DatabaseConfiguration) (*FilingQA, error) {
	if err := config.Validate(); err != nil {
		return nil, helper.NewError("validate configuration", err)
	}

	logger := helper.NewLogger(os.Stdout, helper.ParseLogLevel(config.LogLevel))

	var metrics *helper.Metrics
	if config.Metrics.Enabled {
		m, err := helper.NewMetrics(config.Metrics.Namespace, prometheus.DefaultRegisterer)
		if err != nil {
			return nil, helper.NewError("create metrics", err)
		}
		metrics = m
	}

	db := helper.NewDatabase("filingqa", dbConfig, logger)
	err := loadSql.Init(db.Instance)
	if err != nil {
		return nil, helper.NewError("initialize database extensions", err)
	}

	// Filings first, chunks reference them.
	filings, err := database.NewFilingsDBHandler(db, false)
	if err != nil {
		return nil, helper.NewError("create filings handler", err)
	}
	chunks, err := database.NewChunksDBHandler(db, config.Embedding.Dimension, false)
	if err != nil {
		return nil, helper.NewError("create chunks handler", err)
	}

	embed, err := newEmbedder(config)
	if err != nil {
		return nil, helper.NewError("create embedder", err)
	}

	store := retrieval.NewStore(chunks, embed, logger, metrics)
	store.BatchSize = config.Retrieval.BatchSize
	store.Concurrency = config.Embedding.Concurrency
	store.Config = model.SearchConfig{TopK: config.Retrieval.TopK, ScoreThreshold: config.Retrieval.ScoreThreshold}

	q := &FilingQA{
		DB:      db,
		Filings: filings,
		Chunks:  chunks,
		Store:   store,
		Metrics: metrics,
		log:     logger,
	}
	q.closers = append(q.closers, db.Close)

	secClient, err := sec.NewClient(config.SEC, q.tickerCache(config.Redis), logger)
	if err != nil {
		return nil, helper.NewError("create sec client", err)
	}
	q.SEC = secClient

	chunker := pipeline.NewFilingChunker(config.Chunking.ChunkSize, config.Chunking.ChunkOverlap, config.Chunking.MinChunkSize)
	q.Ingest = ingest.NewFilingService(filings, secClient, store, ingest.FilingServiceOptions{
		Chunks:     chunks,
		Structurer: structure.NewStructurer(chunker.ChunkSize, logger),
		Chunker:    chunker,
		Fallback:   pipeline.NewPipeline(pipeline.RecursiveSplitter(chunker.ChunkSize, chunker.Overlap), embed),
		Logger:     logger,
		Metrics:    metrics,
	})

	plannerClient, err := llm.NewClient(config.LLM, config.LLM.PlannerModel)
	if err != nil {
		return nil, helper.NewError("create planner client", err)
	}
	synthesizerClient, err := llm.NewClient(config.LLM, config.LLM.SynthesizerModel)
	if err != nil {
		return nil, helper.NewError("create synthesizer client", err)
	}

	executor := agent.NewExecutor(q.Ingest, store, logger)
	executor.TopK = config.Retrieval.TopK
	executor.PerCompanyCap = config.Retrieval.PerCompanyCap

	synthesizer := agent.NewSynthesizer(synthesizerClient, logger, metrics)
	synthesizer.MaxTokens = config.LLM.MaxTokens

	q.components = Components{
		Planner:     agent.NewPlanner(plannerClient, logger, metrics),
		Executor:    executor,
		Synthesizer: synthesizer,
		Formatter:   agent.NewFormatter(logger),
		Links:       filings,
	}

	if config.SupportedCompaniesFile != "" {
		companies, err := agent.LoadSupportedCompanies(config.SupportedCompaniesFile)
		if err != nil {
			return nil, helper.NewError("load supported companies", err)
		}
		q.components.Preprocessor = agent.NewTickerPreprocessor(companies, logger)
		logger.Info("Loaded supported companies", slog.Int("count", len(companies)))
	}

	return q, nil
}

// NewFromComponents builds a FilingQA around existing pipeline stages.
// Ingestion and storage fields stay nil.
func NewFromComponents(components Components, logger *slog.Logger, metrics *helper.Metrics) (*FilingQA, error) {
	if components.Planner == nil || components.Executor == nil || components.Synthesizer == nil {
		return nil, helper.NewError("assemble pipeline", fmt.Errorf("planner, executor and synthesizer are required"))
	}
	if logger == nil {
		logger = slog.Default()
	}
	if components.Formatter == nil {
		components.Formatter = agent.NewFormatter(logger)
	}
	return &FilingQA{components: components, Metrics: metrics, log: logger}, nil
}

func newEmbedder(config *helper.Configuration) (pipeline.EmbedFunc, error) {
	switch config.Embedding.Provider {
	case "", "hugot":
		return pipeline.HugotEmbedder(config.Embedding.Model)
	case "ollama":
		return pipeline.OllamaEmbedder(config.Embedding.BaseURL, config.Embedding.Model, config.LLM.Timeout), nil
	default:
		return nil, fmt.Errorf("unsupported embedding provider %q", config.Embedding.Provider)
	}
}

// tickerCache returns a redis cache when enabled and reachable and an
// in-memory cache otherwise.
func (q *FilingQA) tickerCache(config helper.RedisConfiguration) sec.TickerCache {
	if !config.Enabled {
		return sec.NewMemoryTickerCache(config.TTL)
	}

	cache := sec.NewRedisTickerCache(config)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := cache.Ping(ctx); err != nil {
		q.log.Warn("Redis unavailable, caching tickers in memory", slog.String("addr", config.Addr), slog.String("error", err.Error()))
		_ = cache.Close()
		return sec.NewMemoryTickerCache(config.TTL)
	}

	q.closers = append(q.closers, cache.Close)
	return cache
}

// Close releases the database connection and caches.
func (q *FilingQA) Close() error {
	var errs []error
	for i := len(q.closers) - 1; i >= 0; i-- {
		if err := q.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	q.closers = nil
	return errors.Join(errs...)
}

// LoadKnownCompanies teaches the preprocessor every company name listed
// by SEC, so unsupported companies are recognized by name.
func (q *FilingQA) LoadKnownCompanies(ctx context.Context) error {
	if q.components.Preprocessor == nil || q.SEC == nil {
		return nil
	}

	tickers, err := q.SEC.Tickers(ctx)
	if err != nil {
		return helper.NewError("load known companies", err)
	}

	names := make([]string, 0, len(tickers))
	for _, t := range tickers {
		names = append(names, t.Title)
	}
	q.components.Preprocessor.SetKnownCompanies(names)

	return nil
}

// Answer runs preprocessing, planning, retrieval, synthesis and
// formatting for one question. A non-empty companyHint is taken as a
// verified ticker. Planning failures and unsupported companies are
// answered with a message, not an error; only a cancelled context
// returns an error.
func (q *FilingQA) Answer(ctx context.Context, query string, companyHint string) (*model.QueryResult, error) {
	metrics := &model.QueryMetrics{}
	ctx = agent.WithQueryMetrics(ctx, metrics)
	start := time.Now()
	defer func() {
		metrics.Total = time.Since(start)
	}()

	stop := q.Metrics.MeasureStage(StagePreprocess)
	annotated, err := q.preprocess(query, companyHint)
	metrics.AddStage(StagePreprocess, stop())
	if errors.Is(err, agent.ErrUnsupportedCompany) {
		q.log.Info("Unsupported company in query", slog.String("query", query))
		return q.messageResult(UnsupportedCompanyText, unsupportedCompanyReason, metrics), nil
	} else if err != nil {
		annotated = query
	}

	stop = q.Metrics.MeasureStage(StagePlan)
	plan, err := q.components.Planner.Plan(ctx, annotated)
	metrics.AddStage(StagePlan, stop())
	if err != nil {
		q.log.Warn("Planning failed", slog.String("error", err.Error()))
		return q.messageResult(PlanFailedText, planFailedReason, metrics), nil
	}

	stop = q.Metrics.MeasureStage(StageExecute)
	evidence, err := q.components.Executor.Execute(ctx, plan)
	metrics.AddStage(StageExecute, stop())
	if err != nil {
		return nil, helper.NewError("execute plan", err)
	}

	stop = q.Metrics.MeasureStage(StageSynthesize)
	synthesized := q.components.Synthesizer.Synthesize(ctx, annotated, evidence)
	metrics.AddStage(StageSynthesize, stop())

	stop = q.Metrics.MeasureStage(StageFormat)
	formatted := q.components.Formatter.Format(synthesized, evidence, q.filingURLs(ctx, evidence))
	sources := agent.Sources(evidence)
	metrics.AddStage(StageFormat, stop())

	in, out := metrics.Tokens()
	q.log.Info(
		"Answered query",
		slog.String("intent", string(plan.Intent)),
		slog.Int("sources", len(sources)),
		slog.String("confidence", string(formatted.Metadata.Confidence)),
		slog.Int("input_tokens", in),
		slog.Int("output_tokens", out),
		slog.Duration("elapsed", time.Since(start)),
	)

	return &model.QueryResult{
		Answer:  formatted,
		Sources: sources,
		Plan:    plan,
		Metrics: metrics,
	}, nil
}

func (q *FilingQA) preprocess(query string, companyHint string) (string, error) {
	if ticker := model.NormalizeTicker(companyHint); ticker != "" {
		return fmt.Sprintf("%s\n(Verified Ticker: %s)", query, ticker), nil
	}
	if q.components.Preprocessor == nil {
		return query, nil
	}
	return q.components.Preprocessor.Preprocess(query)
}

// messageResult answers without evidence. The reason is reported as
// missing data.
func (q *FilingQA) messageResult(text string, reason string, metrics *model.QueryMetrics) *model.QueryResult {
	answer := agent.TextAnswer(text, model.ConfidenceLow)
	answer.MissingData = model.StringList{reason}
	return &model.QueryResult{
		Answer:  q.components.Formatter.Format(answer, nil, nil),
		Sources: []model.Source{},
		Metrics: metrics,
	}
}

// filingURLs links every answered company to the filing its evidence
// came from.
func (q *FilingQA) filingURLs(ctx context.Context, evidence *model.EvidenceSet) map[string]model.FilingLink {
	if q.components.Links == nil || evidence.IsEmpty() {
		return nil
	}

	links := map[string]model.FilingLink{}
	for _, ticker := range evidence.Tickers() {
		filingType := evidence.Chunks(ticker)[0].FilingType
		filing, err := q.components.Links.SelectLatestFiling(ctx, ticker, filingType, 0)
		if err != nil {
			q.log.Debug("No filing link", slog.String("ticker", ticker), slog.String("error", err.Error()))
			continue
		}
		links[ticker] = filing.Link()
	}
	return links
}

// IndexFiling fetches and indexes the latest filing of a company.
func (q *FilingQA) IndexFiling(ctx context.Context, ticker string, filingType string, force bool) *ingest.Result {
	return q.Ingest.ProcessFiling(ctx, ticker, filingType, force)
}

// Status lists the stored filings of a company, or of all companies for
// an empty ticker.
func (q *FilingQA) Status(ctx context.Context, ticker string) ([]*model.Filing, error) {
	return q.Filings.SelectFilings(ctx, ticker)
}

// ReindexVectors rebuilds the vector index as indexType. With reembed,
// every stored embedding is dropped first and every stored filing is
// embedded again.
func (q *FilingQA) ReindexVectors(ctx context.Context, indexType string, reembed bool) error {
	if reembed {
		cleared, err := q.Chunks.ClearEmbeddings(ctx)
		if err != nil {
			return helper.NewError("clear embeddings", err)
		}
		q.log.Info("Cleared embeddings", slog.Int("count", cleared))

		filings, err := q.Filings.SelectFilings(ctx, "")
		if err != nil {
			return helper.NewError("select filings", err)
		}

		for _, f := range filings {
			f.EmbeddingsGenerated = false
			err = q.Filings.UpdateFilingStatus(ctx, f)
			if err != nil {
				return helper.NewError("mark filing pending", err)
			}
		}

		for _, f := range filings {
			result := q.Ingest.EmbedFiling(ctx, f)
			if result.Err != nil {
				return helper.NewError("embed "+f.Ticker+" "+f.FilingType, result.Err)
			}
		}
	}

	return q.Chunks.ChangeIndexType(ctx, indexType, database.IndexOptions{})
}
