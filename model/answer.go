package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

var confidenceLevels = []Confidence{ConfidenceHigh, ConfidenceMedium, ConfidenceLow}

// ParseConfidence maps free text to a confidence level, defaulting to medium.
func ParseConfidence(s string) Confidence {
	switch Confidence(strings.ToLower(strings.TrimSpace(s))) {
	case ConfidenceHigh:
		return ConfidenceHigh
	case ConfidenceLow:
		return ConfidenceLow
	default:
		return ConfidenceMedium
	}
}

// Lower moves the confidence down by steps levels, stopping at low.
func (c Confidence) Lower(steps int) Confidence {
	idx := 1
	for i, l := range confidenceLevels {
		if l == c {
			idx = i
		}
	}
	idx += steps
	if idx >= len(confidenceLevels) {
		idx = len(confidenceLevels) - 1
	}
	if idx < 0 {
		idx = 0
	}
	return confidenceLevels[idx]
}

// SynthesizedAnswer is the structured answer emitted by the synthesis model.
type SynthesizedAnswer struct {
	Answer            AnswerBody              `json:"answer"`
	Companies         map[string]*CompanyData `json:"companies,omitempty"`
	Comparison        *Comparison             `json:"comparison,omitempty"`
	VisualizationHint string                  `json:"visualization_hint,omitempty"`
	Confidence        Confidence              `json:"confidence,omitempty"`
	MissingData       StringList              `json:"missing_data,omitempty"`
}

// AnswerBody holds the typed answer sections. A plain string answer is
// decoded as a single paragraph.
type AnswerBody struct {
	Sections []AnswerSection `json:"sections"`
}

func (b *AnswerBody) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var text string
		if err := json.Unmarshal(data, &text); err != nil {
			return err
		}
		b.Sections = []AnswerSection{{Type: "paragraph", Content: text}}
		return nil
	}

	type plain AnswerBody
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*b = AnswerBody(p)
	return nil
}

// AnswerSection is one section as produced by the model. Content is a
// string for most kinds but may also be a list or an object.
type AnswerSection struct {
	Type      string      `json:"type"`
	Content   interface{} `json:"content"`
	Data      *TableData  `json:"data,omitempty"`
	Citations Citations   `json:"citations"`
}

// ContentString returns Content if it is a string.
func (s AnswerSection) ContentString() (string, bool) {
	text, ok := s.Content.(string)
	return text, ok
}

type TableData struct {
	Headers StringList    `json:"headers"`
	Rows    []interface{} `json:"rows"`
}

func (d *TableData) IsEmpty() bool {
	return d == nil || (len(d.Headers) == 0 && len(d.Rows) == 0)
}

type CompanyData struct {
	KeyFindings     StringList             `json:"key_findings,omitempty"`
	Metrics         map[string]interface{} `json:"metrics,omitempty"`
	ContextSource   string                 `json:"context_source,omitempty"`
	BusinessContext *BusinessContext       `json:"business_context,omitempty"`
}

type BusinessContext struct {
	GrowthDrivers StringList `json:"growth_drivers,omitempty"`
	Headwinds     StringList `json:"headwinds,omitempty"`
	Explanation   string     `json:"explanation,omitempty"`
	Citations     Citations  `json:"citations,omitempty"`
}

type Comparison struct {
	Summary     string       `json:"summary,omitempty"`
	Winner      string       `json:"winner,omitempty"`
	Metric      string       `json:"metric,omitempty"`
	Differences []Difference `json:"differences,omitempty"`
}

type Difference struct {
	Aspect      string `json:"aspect"`
	Description string `json:"description"`
}

func (c *Comparison) IsEmpty() bool {
	return c == nil || (c.Summary == "" && c.Winner == "" && c.Metric == "" && len(c.Differences) == 0)
}

// Citations is a list of source indices. Models sometimes emit indices as
// strings ("2", "[2]") or floats, which are accepted; anything else is dropped.
type Citations []int

func (c *Citations) UnmarshalJSON(data []byte) error {
	var raw []interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		var single interface{}
		if err := json.Unmarshal(data, &single); err != nil {
			return err
		}
		raw = []interface{}{single}
	}

	out := make(Citations, 0, len(raw))
	for _, v := range raw {
		switch x := v.(type) {
		case float64:
			out = append(out, int(x))
		case string:
			n, err := strconv.Atoi(strings.Trim(strings.TrimSpace(x), "[]"))
			if err == nil {
				out = append(out, n)
			}
		}
	}
	*c = out
	return nil
}

// StringList decodes a JSON list whose items may be strings, numbers or
// objects. Non-string items are rendered as text.
type StringList []string

func (l *StringList) UnmarshalJSON(data []byte) error {
	var raw interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	switch v := raw.(type) {
	case nil:
		*l = nil
	case []interface{}:
		out := make(StringList, 0, len(v))
		for _, item := range v {
			out = append(out, Stringify(item))
		}
		*l = out
	default:
		*l = StringList{Stringify(v)}
	}
	return nil
}

// Stringify renders a decoded JSON value as display text.
func Stringify(v interface{}) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	default:
		b, err := json.Marshal(x)
		if err != nil {
			return fmt.Sprint(x)
		}
		return string(b)
	}
}
