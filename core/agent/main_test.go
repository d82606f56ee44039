package agent

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/siherrmann/filingqa/core/ingest"
	"github.com/siherrmann/filingqa/core/llm"
	"github.com/siherrmann/filingqa/helper"
	"github.com/siherrmann/filingqa/model"
)

var testLogger = helper.NewLogger(io.Discard, slog.LevelError)

var testReportDate = time.Date(2024, 9, 28, 0, 0, 0, 0, time.UTC)

// stubClient answers every request with a fixed response.
type stubClient struct {
	mu       sync.Mutex
	content  string
	err      error
	requests []llm.Request
}

func (c *stubClient) Complete(ctx context.Context, req llm.Request) (*llm.Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.requests = append(c.requests, req)
	if c.err != nil {
		return nil, c.err
	}
	return &llm.Response{
		Content:      c.content,
		Model:        "stub",
		InputTokens:  120,
		OutputTokens: 30,
		Latency:      5 * time.Millisecond,
	}, nil
}

func (c *stubClient) Model() string {
	return "stub"
}

func (c *stubClient) calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.requests)
}

// fakeFilings reports the configured filings as ready and everything else
// as unavailable.
type fakeFilings struct {
	mu    sync.Mutex
	ready map[string]*model.Filing
	calls []string
}

func newFakeFilings(tickers ...string) *fakeFilings {
	f := &fakeFilings{ready: map[string]*model.Filing{}}
	for _, t := range tickers {
		f.ready[t] = &model.Filing{
			Ticker:              t,
			FilingType:          model.FilingType10K,
			ReportDate:          testReportDate,
			DocumentURL:         "https://www.sec.gov/Archives/edgar/data/" + strings.ToLower(t) + ".htm",
			Processed:           true,
			EmbeddingsGenerated: true,
		}
	}
	return f
}

func (f *fakeFilings) GetOrProcessFiling(ctx context.Context, ticker string, filingType string) *ingest.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, ticker+":"+filingType)

	filing, ok := f.ready[ticker]
	if !ok {
		return &ingest.Result{
			Status:  ingest.StatusError,
			Message: fmt.Sprintf("No %s filings found for %s", filingType, ticker),
		}
	}
	return &ingest.Result{Status: ingest.StatusExists, Message: "Filing already available", Filing: filing}
}

// keywordEmbed places text on three topic axes.
func keywordEmbed(ctx context.Context, text string) ([]float32, error) {
	lower := strings.ToLower(text)
	vector := []float32{0.01, 0.01, 0.01}
	for i, words := range [][]string{
		{"revenue", "sales", "income"},
		{"risk", "competition", "regulation"},
		{"cloud", "azure", "datacenter"},
	} {
		for _, w := range words {
			vector[i] += float32(strings.Count(lower, w))
		}
	}
	return vector, nil
}

func newTestChunk(ticker string, section string, text string) *model.Chunk {
	return &model.Chunk{
		ID:                uuid.New(),
		Ticker:            ticker,
		FilingType:        model.FilingType10K,
		ReportDate:        testReportDate,
		Text:              text,
		Section:           section,
		SectionNormalized: strings.SplitN(section, ".", 2)[0],
		ChunkType:         model.ChunkTypeSection,
		CharCount:         len(text),
		Metadata:          model.Metadata{},
	}
}
