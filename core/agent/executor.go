package agent

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/siherrmann/filingqa/core/ingest"
	"github.com/siherrmann/filingqa/helper"
	"github.com/siherrmann/filingqa/model"
)

// FilingSource makes sure a filing is ingested and searchable.
type FilingSource interface {
	GetOrProcessFiling(ctx context.Context, ticker string, filingType string) *ingest.Result
}

// Searcher runs a filtered similarity search.
type Searcher interface {
	Search(ctx context.Context, query string, filter model.SearchFilter, topK int) ([]*model.Chunk, error)
}

// Executor runs plan tasks in order and collects the evidence per company.
type Executor struct {
	filings  FilingSource
	searcher Searcher
	logger   *slog.Logger

	TopK          int
	PerCompanyCap int
}

func NewExecutor(filings FilingSource, searcher Searcher, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{
		filings:       filings,
		searcher:      searcher,
		logger:        logger,
		PerCompanyCap: model.DefaultPerCompanyCap,
	}
}

// Execute runs every task of plan. A task that cannot be served is
// logged, noted in the missing data and skipped. Only a cancelled
// context returns an error.
func (e *Executor) Execute(ctx context.Context, plan *model.Plan) (*model.EvidenceSet, error) {
	evidence := model.NewEvidenceSet(e.PerCompanyCap)
	if plan == nil {
		return evidence, nil
	}

	for i, task := range plan.Tasks {
		if err := ctx.Err(); err != nil {
			return nil, helper.NewError("execute plan", err)
		}

		if task.Ticker == "" {
			e.logger.Warn("Skipping task without ticker", slog.Int("task", i), slog.String("search_query", task.SearchQuery))
			continue
		}

		result := e.filings.GetOrProcessFiling(ctx, task.Ticker, task.FilingType)
		if !result.Ready() {
			message := "no result"
			if result != nil {
				message = result.Message
			}
			e.logger.Warn(
				"Filing not available",
				slog.String("ticker", task.Ticker),
				slog.String("filing_type", task.FilingType),
				slog.String("message", message),
			)
			evidence.AddMissing(fmt.Sprintf("%s %s filing is not available: %s", task.Ticker, task.FilingType, message))
			continue
		}

		query := task.SearchQuery
		if query == "" {
			query = task.Ticker
		}
		chunks, err := e.searcher.Search(ctx, query, model.SearchFilter{Ticker: task.Ticker, FilingType: task.FilingType}, e.TopK)
		if err != nil {
			e.logger.Error("Search failed", slog.String("ticker", task.Ticker), slog.String("error", err.Error()))
			evidence.AddMissing(fmt.Sprintf("Search for %q in the %s %s filing failed", query, task.Ticker, task.FilingType))
			continue
		}

		for _, c := range chunks {
			if c.DocumentURL == "" && result.Filing != nil {
				c.DocumentURL = result.Filing.DocumentURL
			}
		}

		added := evidence.Add(task.Ticker, chunks)
		if len(chunks) == 0 {
			evidence.AddMissing(fmt.Sprintf("No relevant passages for %q in the %s %s filing", query, task.Ticker, task.FilingType))
		}
		e.logger.Debug(
			"Executed task",
			slog.String("ticker", task.Ticker),
			slog.String("search_query", query),
			slog.Int("found", len(chunks)),
			slog.Int("kept", added),
		)
	}

	return evidence, nil
}
