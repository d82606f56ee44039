package model

import "strings"

type Intent string

const (
	IntentFindData    Intent = "find_data"
	IntentCompareData Intent = "compare_data"
)

type Timeframe string

const (
	TimeframeLatestAnnual  Timeframe = "latest_annual"
	TimeframeLatestQuarter Timeframe = "latest_quarter"
)

// Task is one retrieval instruction of a plan.
type Task struct {
	Ticker      string    `json:"ticker"`
	FilingType  string    `json:"filing_type,omitempty"`
	SearchQuery string    `json:"search_query"`
	Timeframe   Timeframe `json:"timeframe,omitempty"`
}

// Plan is the planner's decomposition of a query. It is never persisted.
type Plan struct {
	Intent Intent `json:"intent"`
	Tasks  []Task `json:"tasks"`
}

// Normalize applies the task defaults: upper-case tickers, 10-K filings
// and the latest annual timeframe. A missing intent is derived from the
// number of distinct companies.
func (p *Plan) Normalize() {
	for i := range p.Tasks {
		task := &p.Tasks[i]
		task.Ticker = NormalizeTicker(task.Ticker)
		task.SearchQuery = strings.TrimSpace(task.SearchQuery)
		task.FilingType = strings.ToUpper(strings.TrimSpace(task.FilingType))
		if task.Timeframe == "" {
			task.Timeframe = TimeframeLatestAnnual
		}
		if task.FilingType == "" {
			if task.Timeframe == TimeframeLatestQuarter {
				task.FilingType = FilingType10Q
			} else {
				task.FilingType = FilingType10K
			}
		}
	}

	if p.Intent != IntentFindData && p.Intent != IntentCompareData {
		if len(p.Tickers()) > 1 {
			p.Intent = IntentCompareData
		} else {
			p.Intent = IntentFindData
		}
	}
}

// Tickers returns the distinct non-empty tickers in task order.
func (p *Plan) Tickers() []string {
	seen := map[string]bool{}
	var tickers []string
	for _, t := range p.Tasks {
		if t.Ticker == "" || seen[t.Ticker] {
			continue
		}
		seen[t.Ticker] = true
		tickers = append(tickers, t.Ticker)
	}
	return tickers
}
