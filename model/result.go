package model

import (
	"time"
)

// Citation resolves a section's citation index against the sources.
type Citation struct {
	ID          int    `json:"id"`
	Text        string `json:"text"`
	URL         string `json:"url"`
	DocumentURL string `json:"document_url,omitempty"`
	Ticker      string `json:"ticker"`
	FilingType  string `json:"filing_type"`
	Section     string `json:"section"`
	ReportDate  string `json:"report_date"`
}

// Source is one evidence chunk as returned to the caller. ID equals the
// index used by citations.
type Source struct {
	ID          int     `json:"id"`
	Section     string  `json:"section"`
	SectionFull string  `json:"section_full,omitempty"`
	Text        string  `json:"text"`
	Score       float64 `json:"score"`
	Ticker      string  `json:"ticker"`
	FilingType  string  `json:"filing_type"`
	ReportDate  string  `json:"report_date"`
	DocumentURL string  `json:"document_url,omitempty"`
}

// PresentedSection is a render-ready answer section.
type PresentedSection struct {
	Component string       `json:"component"`
	Props     SectionProps `json:"props"`
}

type SectionProps struct {
	Text      string     `json:"text,omitempty"`
	Title     string     `json:"title,omitempty"`
	Headers   []string   `json:"headers,omitempty"`
	Rows      [][]string `json:"rows,omitempty"`
	Items     []string   `json:"items,omitempty"`
	Winner    string     `json:"winner,omitempty"`
	Metric    string     `json:"metric,omitempty"`
	Citations []Citation `json:"citations"`
}

type AnswerMetadata struct {
	Companies   map[string]*CompanyData `json:"companies"`
	Comparison  *Comparison             `json:"comparison,omitempty"`
	Confidence  Confidence              `json:"confidence"`
	MissingData []string                `json:"missing_data"`
	FilingURLs  map[string]FilingLink   `json:"filing_urls,omitempty"`
}

type Visualization struct {
	Type string `json:"type"`
}

// FormattedAnswer is the stable answer envelope.
type FormattedAnswer struct {
	Sections      []PresentedSection `json:"sections"`
	Metadata      AnswerMetadata     `json:"metadata"`
	Visualization Visualization      `json:"visualization"`
}

// QueryResult is returned by a single answer call.
type QueryResult struct {
	Answer  FormattedAnswer `json:"answer"`
	Sources []Source        `json:"sources"`
	Plan    *Plan           `json:"plan,omitempty"`
	Metrics *QueryMetrics   `json:"metrics,omitempty"`
}

// StageTiming is the wall time of one pipeline stage.
type StageTiming struct {
	Stage    string        `json:"stage"`
	Duration time.Duration `json:"duration"`
}

// LLMCall records the token volume and latency of one model call.
type LLMCall struct {
	Stage        string        `json:"stage"`
	Model        string        `json:"model"`
	InputTokens  int           `json:"input_tokens"`
	OutputTokens int           `json:"output_tokens"`
	Latency      time.Duration `json:"latency"`
}

// QueryMetrics collects per-query timings and token counts.
type QueryMetrics struct {
	Stages   []StageTiming `json:"stages"`
	LLMCalls []LLMCall     `json:"llm_calls"`
	Total    time.Duration `json:"total"`
}

func (m *QueryMetrics) AddStage(stage string, d time.Duration) {
	if m == nil {
		return
	}
	m.Stages = append(m.Stages, StageTiming{Stage: stage, Duration: d})
}

func (m *QueryMetrics) AddLLMCall(call LLMCall) {
	if m == nil {
		return
	}
	m.LLMCalls = append(m.LLMCalls, call)
}

// Tokens returns the summed input and output tokens over all calls.
func (m *QueryMetrics) Tokens() (input int, output int) {
	if m == nil {
		return 0, 0
	}
	for _, c := range m.LLMCalls {
		input += c.InputTokens
		output += c.OutputTokens
	}
	return input, output
}
