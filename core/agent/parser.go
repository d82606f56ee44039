package agent

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/siherrmann/filingqa/model"
)

// ApologyText is returned when nothing readable can be recovered from the
// synthesis output.
const ApologyText = "I apologize, but I encountered an error processing the response. The LLM generated malformed JSON. Please try rephrasing your question or try again."

const maxRecoveredFragments = 3

var (
	fencedJSONPattern   = regexp.MustCompile("(?s)```(?:json)?\\s*(\\{.*?\\})\\s*```")
	contentFieldPattern = regexp.MustCompile(`(?s)"content"\s*:\s*"([^"\\]*(?:\\.[^"\\]*)*)"`)
	errNoAnswer         = errors.New("no answer in output")
)

// ParserFunc tries to read a synthesized answer from raw model output.
// It returns false to hand over to the next parser.
type ParserFunc func(raw string) (*model.SynthesizedAnswer, bool)

// ParserChain tries parsers in order. The parser at position n (1-based)
// lowers the answer confidence by n-1 levels.
type ParserChain struct {
	parsers []ParserFunc
}

func NewParserChain(parsers ...ParserFunc) *ParserChain {
	return &ParserChain{parsers: parsers}
}

// DefaultParserChain returns the six tier chain: direct JSON, extracted
// JSON, nested answer recovery, brace balancing, content fragments and
// finally the apology.
func DefaultParserChain() *ParserChain {
	return NewParserChain(
		parseDirect,
		parseExtracted,
		parseNested,
		parseBalanced,
		parseContentFragments,
		parseApology,
	)
}

// Parse returns the first successful result and its tier. When every
// parser declines, the apology is returned with tier len(parsers)+1.
func (c *ParserChain) Parse(raw string) (*model.SynthesizedAnswer, int) {
	for i, parse := range c.parsers {
		answer, ok := parse(raw)
		if !ok {
			continue
		}
		tier := i + 1
		answer.Confidence = model.ParseConfidence(string(answer.Confidence)).Lower(tier - 1)
		return answer, tier
	}

	answer, _ := parseApology(raw)
	return answer, len(c.parsers) + 1
}

func parseDirect(raw string) (*model.SynthesizedAnswer, bool) {
	trimmed := strings.TrimSpace(raw)
	if !strings.HasPrefix(trimmed, "{") {
		return nil, false
	}
	answer, err := decodeAnswer(trimmed)
	if err != nil || isNestedEcho(answer) {
		return nil, false
	}
	return answer, true
}

func parseExtracted(raw string) (*model.SynthesizedAnswer, bool) {
	for _, candidate := range jsonCandidates(raw) {
		answer, err := decodeAnswer(candidate)
		if err == nil && !isNestedEcho(answer) {
			return answer, true
		}
	}
	return nil, false
}

// parseNested handles output whose first section repeats the whole answer
// schema as a string, which is then often truncated.
func parseNested(raw string) (*model.SynthesizedAnswer, bool) {
	var outer *model.SynthesizedAnswer
	for _, candidate := range append([]string{strings.TrimSpace(raw)}, jsonCandidates(raw)...) {
		answer, err := decodeAnswer(candidate)
		if err == nil && isNestedEcho(answer) {
			outer = answer
			break
		}
	}
	if outer == nil {
		return nil, false
	}
	return unwrapNested(outer)
}

func unwrapNested(outer *model.SynthesizedAnswer) (*model.SynthesizedAnswer, bool) {
	inner, _ := outer.Answer.Sections[0].ContentString()
	inner = strings.TrimSpace(inner)

	if answer, err := decodeAnswer(inner); err == nil {
		return answer, true
	}
	if answer, err := decodeAnswer(balanceJSON(inner)); err == nil {
		return answer, true
	}
	if answer, ok := longestValidPrefix(inner); ok {
		return answer, true
	}
	return nil, false
}

func parseBalanced(raw string) (*model.SynthesizedAnswer, bool) {
	start := strings.Index(raw, "{")
	if start < 0 {
		return nil, false
	}
	answer, err := decodeAnswer(balanceJSON(strings.TrimSpace(raw[start:])))
	if err != nil {
		return nil, false
	}
	if isNestedEcho(answer) {
		return unwrapNested(answer)
	}
	return answer, true
}

func parseContentFragments(raw string) (*model.SynthesizedAnswer, bool) {
	fragments := contentFragments(raw, 0)
	if len(fragments) == 0 {
		return nil, false
	}
	if len(fragments) > maxRecoveredFragments {
		fragments = fragments[:maxRecoveredFragments]
	}
	return TextAnswer(strings.Join(fragments, "\n\n"), model.ConfidenceLow), true
}

// contentFragments collects the content strings of raw. A content string
// that echoes the answer schema is searched once more instead of being
// returned as text.
func contentFragments(raw string, depth int) []string {
	var fragments []string
	for _, m := range contentFieldPattern.FindAllStringSubmatch(raw, -1) {
		text := unescapeJSONString(m[1])
		trimmed := strings.TrimSpace(text)
		if strings.HasPrefix(trimmed, "{") && strings.Contains(trimmed, `"answer"`) {
			if depth == 0 {
				fragments = append(fragments, contentFragments(trimmed, depth+1)...)
			}
			continue
		}
		if trimmed == "" {
			continue
		}
		fragments = append(fragments, text)
	}
	return fragments
}

func parseApology(raw string) (*model.SynthesizedAnswer, bool) {
	return TextAnswer(ApologyText, model.ConfidenceLow), true
}

// TextAnswer is an answer consisting of one paragraph.
func TextAnswer(text string, confidence model.Confidence) *model.SynthesizedAnswer {
	return &model.SynthesizedAnswer{
		Answer: model.AnswerBody{
			Sections: []model.AnswerSection{{Type: "paragraph", Content: text, Citations: model.Citations{}}},
		},
		Companies:  map[string]*model.CompanyData{},
		Confidence: confidence,
	}
}

// decodeAnswer decodes one JSON object. Values of the wrong type are
// skipped rather than failing the whole answer. An object without
// answer sections is rejected.
func decodeAnswer(data string) (*model.SynthesizedAnswer, error) {
	var top map[string]json.RawMessage
	err := json.Unmarshal([]byte(data), &top)
	if err != nil {
		return nil, err
	}

	answer := &model.SynthesizedAnswer{}
	_, hasAnswer := top["answer"]
	_, hasSections := top["sections"]
	switch {
	case hasAnswer:
		err = json.Unmarshal([]byte(data), answer)
	case hasSections:
		// The model skipped the answer wrapper.
		err = json.Unmarshal([]byte(data), &answer.Answer)
	default:
		return nil, errNoAnswer
	}

	var typeErr *json.UnmarshalTypeError
	if err != nil && !errors.As(err, &typeErr) {
		return nil, err
	}
	if len(answer.Answer.Sections) == 0 {
		return nil, fmt.Errorf("%w: no sections", errNoAnswer)
	}
	if answer.Companies == nil {
		answer.Companies = map[string]*model.CompanyData{}
	}

	return answer, nil
}

func isNestedEcho(answer *model.SynthesizedAnswer) bool {
	if answer == nil || len(answer.Answer.Sections) == 0 {
		return false
	}
	content, ok := answer.Answer.Sections[0].ContentString()
	if !ok {
		return false
	}
	content = strings.TrimSpace(content)
	return strings.HasPrefix(content, "{") && strings.Contains(content, `"answer"`)
}

// jsonCandidates returns a fenced JSON block, if any, followed by the
// span from the first to the last brace.
func jsonCandidates(raw string) []string {
	var candidates []string
	if m := fencedJSONPattern.FindStringSubmatch(raw); m != nil {
		candidates = append(candidates, m[1])
	}
	if span, ok := braceSpan(raw); ok {
		candidates = append(candidates, span)
	}
	return candidates
}

func longestValidPrefix(s string) (*model.SynthesizedAnswer, bool) {
	for i := len(s); i > 0; i-- {
		if s[i-1] != '}' {
			continue
		}
		if !json.Valid([]byte(s[:i])) {
			continue
		}
		if answer, err := decodeAnswer(s[:i]); err == nil {
			return answer, true
		}
	}
	return nil, false
}

// balanceJSON closes an unterminated string and every open object and
// array of a truncated JSON document. A dangling key is dropped together
// with its comma, a dangling comma is dropped and a key without value
// gets null.
func balanceJSON(s string) string {
	var open []byte
	inString, escaped := false, false
	expectKey := false
	keyStart := -1

	for i := 0; i < len(s); i++ {
		ch := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}

		switch ch {
		case '"':
			inString = true
			if expectKey {
				keyStart = i
				expectKey = false
			}
		case ':':
			keyStart = -1
		case ',':
			expectKey = len(open) > 0 && open[len(open)-1] == '}'
		case '{':
			open = append(open, '}')
			expectKey = true
		case '[':
			open = append(open, ']')
			expectKey = false
		case '}', ']':
			if len(open) > 0 && open[len(open)-1] == ch {
				open = open[:len(open)-1]
			}
			expectKey = false
			keyStart = -1
		}
	}

	out := s
	if keyStart >= 0 {
		out = s[:keyStart]
	} else if inString {
		if escaped {
			out += `\`
		}
		out += `"`
	}

	out = strings.TrimRight(out, " \t\r\n")
	out = strings.TrimSuffix(out, ",")
	if strings.HasSuffix(out, ":") {
		out += " null"
	}

	var b strings.Builder
	b.WriteString(out)
	for i := len(open) - 1; i >= 0; i-- {
		b.WriteByte(open[i])
	}
	return b.String()
}

func unescapeJSONString(s string) string {
	var out string
	if err := json.Unmarshal([]byte(`"`+s+`"`), &out); err != nil {
		return s
	}
	return out
}
