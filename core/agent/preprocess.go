package agent

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"sort"
	"strings"

	"github.com/siherrmann/filingqa/helper"
	"github.com/siherrmann/filingqa/model"
)

// ErrUnsupportedCompany is returned when a query names a company that is
// not in the supported list.
var ErrUnsupportedCompany = errors.New("company is not supported")

var companySuffixPattern = regexp.MustCompile(`(?i)\b(inc|corp|ltd|llc|co|group|holdings|sa|plc|ag)\b`)

// SupportedCompany is one entry of the supported companies file.
type SupportedCompany struct {
	Name   string `json:"name"`
	Ticker string `json:"ticker"`
}

// LoadSupportedCompanies reads a JSON list of {"name", "ticker"} objects.
func LoadSupportedCompanies(path string) ([]SupportedCompany, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, helper.NewError("read supported companies", err)
	}

	var companies []SupportedCompany
	err = json.Unmarshal(data, &companies)
	if err != nil {
		return nil, helper.NewError("decode supported companies", err)
	}

	return companies, nil
}

// TickerPreprocessor annotates queries with the tickers of the supported
// companies they mention.
type TickerPreprocessor struct {
	names   map[string]string
	tickers map[string]bool
	pattern *regexp.Regexp
	// known holds lower-cased names of every listed company, supported or not.
	known  []string
	logger *slog.Logger
}

func NewTickerPreprocessor(companies []SupportedCompany, logger *slog.Logger) *TickerPreprocessor {
	if logger == nil {
		logger = slog.Default()
	}

	p := &TickerPreprocessor{
		names:   map[string]string{},
		tickers: map[string]bool{},
		logger:  logger,
	}

	var names []string
	for _, c := range companies {
		name := strings.ToLower(strings.TrimSpace(c.Name))
		ticker := model.NormalizeTicker(c.Ticker)
		if name == "" || ticker == "" {
			continue
		}
		if _, ok := p.names[name]; !ok {
			names = append(names, name)
		}
		p.names[name] = ticker
		p.tickers[ticker] = true
	}

	// Longest names first so "meta platforms" wins over "meta".
	sort.SliceStable(names, func(i, j int) bool { return len(names[i]) > len(names[j]) })
	if len(names) > 0 {
		quoted := make([]string, len(names))
		for i, n := range names {
			quoted[i] = regexp.QuoteMeta(n)
		}
		p.pattern = regexp.MustCompile(`(?i)\b(` + strings.Join(quoted, "|") + `)\b`)
	}

	return p
}

// SetKnownCompanies installs the names of all listed companies. With known
// names set, unsupported companies are detected by name instead of by
// legal suffix.
func (p *TickerPreprocessor) SetKnownCompanies(names []string) {
	known := make([]string, 0, len(names))
	for _, n := range names {
		n = strings.ToLower(strings.TrimSpace(n))
		if len(n) < 3 {
			continue
		}
		if _, ok := p.names[n]; ok {
			continue
		}
		known = append(known, n)
	}
	p.known = known
}

// Supported reports whether ticker is in the supported list.
func (p *TickerPreprocessor) Supported(ticker string) bool {
	return p.tickers[model.NormalizeTicker(ticker)]
}

// Preprocess returns query with a verified ticker annotation when a
// supported company is mentioned by name or ticker. A query naming only
// an unsupported company returns ErrUnsupportedCompany. Queries without
// any company are returned unchanged.
func (p *TickerPreprocessor) Preprocess(query string) (string, error) {
	if p.pattern != nil {
		var tickers []string
		seen := map[string]bool{}
		for _, match := range p.pattern.FindAllString(query, -1) {
			ticker := p.names[strings.ToLower(match)]
			if ticker == "" || seen[ticker] {
				continue
			}
			seen[ticker] = true
			tickers = append(tickers, ticker)
		}
		if len(tickers) > 0 {
			p.logger.Debug("Verified tickers by name", slog.Any("tickers", tickers))
			return fmt.Sprintf("%s\n(Verified Tickers: %s)", query, strings.Join(tickers, ", ")), nil
		}
	}

	for _, word := range strings.Fields(query) {
		word = strings.ToUpper(strings.Trim(word, ".,;:!?()\"'"))
		if p.tickers[word] {
			p.logger.Debug("Verified ticker", slog.String("ticker", word))
			return fmt.Sprintf("%s\n(Verified Ticker: %s)", query, word), nil
		}
	}

	if p.mentionsUnsupported(query) {
		return "", ErrUnsupportedCompany
	}

	return query, nil
}

func (p *TickerPreprocessor) mentionsUnsupported(query string) bool {
	if len(p.known) == 0 {
		return companySuffixPattern.MatchString(query)
	}

	lower := strings.ToLower(query)
	for _, name := range p.known {
		if containsWord(lower, name) {
			p.logger.Info("Query mentions an unsupported company", slog.String("company", name))
			return true
		}
	}
	return false
}

// containsWord reports whether needle occurs in s bounded by non-word
// characters or the ends of s.
func containsWord(s string, needle string) bool {
	for offset := 0; offset < len(s); {
		i := strings.Index(s[offset:], needle)
		if i < 0 {
			return false
		}
		start := offset + i
		end := start + len(needle)
		if (start == 0 || !isWordByte(s[start-1])) && (end == len(s) || !isWordByte(s[end])) {
			return true
		}
		offset = start + 1
	}
	return false
}

func isWordByte(b byte) bool {
	return b == '_' || (b >= '0' && b <= '9') || (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}
