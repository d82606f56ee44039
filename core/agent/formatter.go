package agent

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/siherrmann/filingqa/model"
)

// SectionKind is the closed set of answer section kinds.
type SectionKind int

const (
	KindParagraph SectionKind = iota
	KindTable
	KindKeyFindings
	KindComparisonSummary
)

const defaultTableTitle = "Comparison"

var sectionKinds = map[string]SectionKind{
	"paragraph":          KindParagraph,
	"table":              KindTable,
	"key_findings":       KindKeyFindings,
	"comparison_summary": KindComparisonSummary,
}

// ParseSectionKind maps a section type to its kind. Unknown types report
// false and map to KindParagraph.
func ParseSectionKind(s string) (SectionKind, bool) {
	kind, ok := sectionKinds[strings.ToLower(strings.TrimSpace(s))]
	return kind, ok
}

// Component is the render component name of the kind.
func (k SectionKind) Component() string {
	switch k {
	case KindTable:
		return "Table"
	case KindKeyFindings:
		return "KeyFindings"
	case KindComparisonSummary:
		return "ComparisonSummary"
	default:
		return "Paragraph"
	}
}

// Formatter turns a synthesized answer into render-ready sections and
// resolves citations against the evidence.
type Formatter struct {
	logger *slog.Logger
}

func NewFormatter(logger *slog.Logger) *Formatter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Formatter{logger: logger}
}

// Format builds the answer envelope. Citation indices refer to
// evidence.Flatten(); filingURLs may be nil.
func (f *Formatter) Format(answer *model.SynthesizedAnswer, evidence *model.EvidenceSet, filingURLs map[string]model.FilingLink) model.FormattedAnswer {
	sources := Sources(evidence)

	sections := make([]model.PresentedSection, 0, len(answer.Answer.Sections)+1)
	hasComparison := false
	for _, section := range answer.Answer.Sections {
		kind, ok := ParseSectionKind(section.Type)
		if !ok {
			f.logger.Warn("Unknown section type, rendering as paragraph", slog.String("type", section.Type))
		}

		citations := f.citations(section.Citations, sources)
		switch kind {
		case KindTable:
			sections = append(sections, formatTable(section, citations))
		case KindKeyFindings:
			sections = append(sections, formatKeyFindings(section, citations))
		case KindComparisonSummary:
			hasComparison = true
			sections = append(sections, presented(kind, model.SectionProps{Text: contentText(section.Content), Citations: citations}))
		default:
			sections = append(sections, presented(KindParagraph, model.SectionProps{Text: contentText(section.Content), Citations: citations}))
		}
	}

	if c := answer.Comparison; c != nil && c.Summary != "" && !hasComparison {
		sections = append(sections, presented(KindComparisonSummary, model.SectionProps{
			Text:      c.Summary,
			Winner:    c.Winner,
			Metric:    c.Metric,
			Citations: []model.Citation{},
		}))
	}

	companies := answer.Companies
	if companies == nil {
		companies = map[string]*model.CompanyData{}
	}
	var comparison *model.Comparison
	if !answer.Comparison.IsEmpty() {
		comparison = answer.Comparison
	}
	confidence := answer.Confidence
	if confidence == "" {
		confidence = model.ConfidenceMedium
	}
	missing := []string(answer.MissingData)
	if missing == nil {
		missing = []string{}
	}
	visualization := strings.TrimSpace(answer.VisualizationHint)
	if visualization == "" {
		visualization = "none"
	}

	return model.FormattedAnswer{
		Sections: sections,
		Metadata: model.AnswerMetadata{
			Companies:   companies,
			Comparison:  comparison,
			Confidence:  confidence,
			MissingData: missing,
			FilingURLs:  filingURLs,
		},
		Visualization: model.Visualization{Type: visualization},
	}
}

// Sources lists the evidence chunks. The position of a source is its id.
func Sources(evidence *model.EvidenceSet) []model.Source {
	if evidence == nil {
		return []model.Source{}
	}

	chunks := evidence.Flatten()
	sources := make([]model.Source, 0, len(chunks))
	for i, c := range chunks {
		sources = append(sources, model.Source{
			ID:          i,
			Section:     c.SectionNormalized,
			SectionFull: c.Section,
			Text:        c.Text,
			Score:       c.Similarity,
			Ticker:      c.Ticker,
			FilingType:  c.FilingType,
			ReportDate:  c.ReportDateString(),
			DocumentURL: c.DocumentURL,
		})
	}
	return sources
}

func (f *Formatter) citations(indices model.Citations, sources []model.Source) []model.Citation {
	citations := []model.Citation{}
	for _, i := range indices {
		if i < 0 || i >= len(sources) {
			f.logger.Warn("Citation index out of range", slog.Int("index", i), slog.Int("sources", len(sources)))
			continue
		}
		s := sources[i]
		section := s.SectionFull
		if section == "" {
			section = s.Section
		}
		citations = append(citations, model.Citation{
			ID:          i,
			Text:        strings.TrimSpace(s.FilingType + " " + section),
			URL:         fmt.Sprintf("#source-%d", i),
			DocumentURL: s.DocumentURL,
			Ticker:      s.Ticker,
			FilingType:  s.FilingType,
			Section:     section,
			ReportDate:  s.ReportDate,
		})
	}
	return citations
}

func presented(kind SectionKind, props model.SectionProps) model.PresentedSection {
	return model.PresentedSection{Component: kind.Component(), Props: props}
}

func formatTable(section model.AnswerSection, citations []model.Citation) model.PresentedSection {
	data := section.Data
	title := defaultTableTitle

	switch content := section.Content.(type) {
	case map[string]interface{}:
		if data.IsEmpty() {
			data = tableFromMap(content)
		}
	case nil:
	default:
		if text := strings.TrimSpace(model.Stringify(content)); text != "" {
			title = text
		}
	}

	props := model.SectionProps{Title: title, Headers: []string{}, Rows: [][]string{}, Citations: citations}
	if data != nil {
		if data.Headers != nil {
			props.Headers = data.Headers
		}
		for _, row := range data.Rows {
			props.Rows = append(props.Rows, flattenRow(row, props.Headers))
		}
	}

	return presented(KindTable, props)
}

func formatKeyFindings(section model.AnswerSection, citations []model.Citation) model.PresentedSection {
	var items []string
	switch content := section.Content.(type) {
	case []interface{}:
		for _, item := range content {
			items = append(items, model.Stringify(item))
		}
	case nil:
	default:
		items = []string{model.Stringify(content)}
	}
	if items == nil {
		items = []string{}
	}
	return presented(KindKeyFindings, model.SectionProps{Items: items, Citations: citations})
}

func contentText(content interface{}) string {
	return model.Stringify(content)
}

func tableFromMap(m map[string]interface{}) *model.TableData {
	data := &model.TableData{}
	if headers, ok := m["headers"].([]interface{}); ok {
		for _, h := range headers {
			data.Headers = append(data.Headers, model.Stringify(h))
		}
	}
	if rows, ok := m["rows"].([]interface{}); ok {
		data.Rows = rows
	}
	return data
}

// flattenRow turns one table row into cells. Object cells expand into
// their values, ordered by the table headers first and by key after
// that. A row that is not a list becomes a single cell.
func flattenRow(row interface{}, headers []string) []string {
	cells, ok := row.([]interface{})
	if !ok {
		return []string{model.Stringify(row)}
	}

	out := make([]string, 0, len(cells))
	for _, cell := range cells {
		if m, isMap := cell.(map[string]interface{}); isMap {
			out = append(out, mapValues(m, headers)...)
			continue
		}
		out = append(out, model.Stringify(cell))
	}
	return out
}

func mapValues(m map[string]interface{}, headers []string) []string {
	used := map[string]bool{}
	var values []string
	for _, h := range headers {
		for k, v := range m {
			if !used[k] && strings.EqualFold(k, h) {
				used[k] = true
				values = append(values, model.Stringify(v))
				break
			}
		}
	}

	var rest []string
	for k := range m {
		if !used[k] {
			rest = append(rest, k)
		}
	}
	sort.Strings(rest)
	for _, k := range rest {
		values = append(values, model.Stringify(m[k]))
	}
	return values
}
