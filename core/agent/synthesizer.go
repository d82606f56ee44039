package agent

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"strings"

	"github.com/siherrmann/filingqa/core/llm"
	"github.com/siherrmann/filingqa/helper"
	"github.com/siherrmann/filingqa/model"
)

//go:embed prompts/synthesizer.txt
var synthesizerPrompt string

const (
	StageSynthesizer = "synthesizer"

	// NoInformationText answers a query without any evidence.
	NoInformationText = "I could not find any relevant information to answer your question."

	synthesisTemperature = 0.1
)

var (
	companyDelimiter  = strings.Repeat("=", 80)
	documentDelimiter = strings.Repeat("-", 10)
)

// Synthesizer writes the structured answer from the evidence.
type Synthesizer struct {
	client  llm.Client
	chain   *ParserChain
	prompt  string
	logger  *slog.Logger
	metrics *helper.Metrics

	MaxTokens int
}

func NewSynthesizer(client llm.Client, logger *slog.Logger, metrics *helper.Metrics) *Synthesizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Synthesizer{
		client:  client,
		chain:   DefaultParserChain(),
		prompt:  synthesizerPrompt,
		logger:  logger,
		metrics: metrics,
	}
}

// Synthesize never fails. Empty evidence gives the no-information answer,
// a failed model call or unreadable output gives a low confidence answer.
func (s *Synthesizer) Synthesize(ctx context.Context, query string, evidence *model.EvidenceSet) *model.SynthesizedAnswer {
	if evidence.IsEmpty() {
		s.logger.Warn("No evidence for query", slog.String("query", query))
		return noInformationAnswer(evidence)
	}

	resp, err := s.client.Complete(ctx, llm.Request{
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: s.prompt},
			{Role: llm.RoleUser, Content: fmt.Sprintf("%s\n\nQuestion: %s", BuildContext(evidence), query)},
		},
		Temperature: synthesisTemperature,
		MaxTokens:   s.MaxTokens,
		JSON:        true,
	})
	recordCall(ctx, s.metrics, StageSynthesizer, s.client.Model(), resp, err)
	if err != nil {
		s.logger.Error("Synthesis call failed", slog.String("error", err.Error()))
		answer, _ := parseApology("")
		answer.MissingData = mergeMissing(evidence.MissingData, []string{"The answer could not be generated"})
		return answer
	}

	answer, tier := s.chain.Parse(resp.Content)
	if tier > 1 {
		s.logger.Warn(
			"Synthesis output needed recovery",
			slog.Int("tier", tier),
			slog.String("confidence", string(answer.Confidence)),
			slog.String("output", truncate(resp.Content, 500)),
		)
	}

	FilterHallucinations(answer, evidence.Tickers())
	answer.MissingData = mergeMissing(answer.MissingData, evidence.MissingData)

	return answer
}

// BuildContext renders the evidence grouped by company. Documents are
// numbered globally in the order of evidence.Flatten, so the number is
// the citation index.
func BuildContext(evidence *model.EvidenceSet) string {
	var b strings.Builder
	i := 0
	for _, ticker := range evidence.Tickers() {
		fmt.Fprintf(&b, "\n%s\nContext for %s:\n%s\n", companyDelimiter, ticker, companyDelimiter)
		b.WriteString("Context from SEC Filings: \n")
		for _, c := range evidence.Chunks(ticker) {
			fmt.Fprintf(&b, "\n[Document %d]\n", i)
			fmt.Fprintf(&b, "Company: %s\n", c.Ticker)
			fmt.Fprintf(&b, "Filing: %s (%s)\n", c.FilingType, c.ReportDateString())
			fmt.Fprintf(&b, "Section: %s\n", c.Section)
			fmt.Fprintf(&b, "Relevance Score: %.2f\n", c.Similarity)
			fmt.Fprintf(&b, "\n%s\n%s\n", c.Text, documentDelimiter)
			i++
		}
	}
	return b.String()
}

// FilterHallucinations drops company entries the evidence does not cover.
// With at most one company left the comparison is cleared.
func FilterHallucinations(answer *model.SynthesizedAnswer, tickers []string) {
	allowed := map[string]bool{}
	for _, t := range tickers {
		allowed[model.NormalizeTicker(t)] = true
	}

	companies := make(map[string]*model.CompanyData, len(answer.Companies))
	for key, data := range answer.Companies {
		ticker := model.NormalizeTicker(key)
		if !allowed[ticker] {
			continue
		}
		companies[ticker] = data
	}
	answer.Companies = companies

	if len(companies) <= 1 {
		answer.Comparison = nil
	}
}

func noInformationAnswer(evidence *model.EvidenceSet) *model.SynthesizedAnswer {
	answer := TextAnswer(NoInformationText, model.ConfidenceLow)
	var missing []string
	if evidence != nil {
		missing = evidence.MissingData
	}
	if len(missing) == 0 {
		missing = []string{"No relevant filing data was found for this question"}
	}
	answer.MissingData = mergeMissing(nil, missing)
	return answer
}

func mergeMissing(a []string, b []string) model.StringList {
	seen := map[string]bool{}
	var out model.StringList
	for _, list := range [][]string{a, b} {
		for _, m := range list {
			m = strings.TrimSpace(m)
			if m == "" || seen[m] {
				continue
			}
			seen[m] = true
			out = append(out, m)
		}
	}
	return out
}
