package agent

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testCompanies = []SupportedCompany{
	{Name: "Apple", Ticker: "aapl"},
	{Name: "Microsoft", Ticker: "MSFT"},
	{Name: "Meta", Ticker: "META"},
	{Name: "Meta Platforms", Ticker: "META"},
	{Name: "NVIDIA", Ticker: "NVDA"},
}

func TestTickerPreprocessor(t *testing.T) {
	p := NewTickerPreprocessor(testCompanies, testLogger)

	t.Run("Preprocess annotates a company named in the query", func(t *testing.T) {
		query := "How did Apple's revenue change last year?"
		out, err := p.Preprocess(query)
		require.NoError(t, err)
		assert.Equal(t, query+"\n(Verified Tickers: AAPL)", out)
	})

	t.Run("Preprocess keeps the order of appearance for several companies", func(t *testing.T) {
		query := "Compare microsoft and NVIDIA and Apple"
		out, err := p.Preprocess(query)
		require.NoError(t, err)
		assert.Equal(t, query+"\n(Verified Tickers: MSFT, NVDA, AAPL)", out)
	})

	t.Run("Preprocess prefers the longest name and lists a ticker once", func(t *testing.T) {
		query := "What does Meta Platforms say about Meta's capex?"
		out, err := p.Preprocess(query)
		require.NoError(t, err)
		assert.Equal(t, query+"\n(Verified Tickers: META)", out)
	})

	t.Run("Preprocess verifies a ticker mentioned directly", func(t *testing.T) {
		query := "What are the risk factors for nvda?"
		out, err := p.Preprocess(query)
		require.NoError(t, err)
		assert.Equal(t, query+"\n(Verified Ticker: NVDA)", out)
	})

	t.Run("Preprocess rejects an unsupported company by legal suffix", func(t *testing.T) {
		_, err := p.Preprocess("How is Acme Corp doing?")
		assert.ErrorIs(t, err, ErrUnsupportedCompany)
	})

	t.Run("Preprocess returns a query without companies unchanged", func(t *testing.T) {
		query := "What is a 10-K?"
		out, err := p.Preprocess(query)
		require.NoError(t, err)
		assert.Equal(t, query, out)
	})

	t.Run("Supported checks tickers case insensitively", func(t *testing.T) {
		assert.True(t, p.Supported("aapl"))
		assert.False(t, p.Supported("TSLA"))
	})
}

func TestTickerPreprocessorKnownCompanies(t *testing.T) {
	p := NewTickerPreprocessor(testCompanies, testLogger)
	p.SetKnownCompanies([]string{"Tesla", "Apple", "GE"})

	t.Run("Preprocess rejects a known but unsupported company", func(t *testing.T) {
		_, err := p.Preprocess("What did Tesla report about deliveries?")
		assert.ErrorIs(t, err, ErrUnsupportedCompany)
	})

	t.Run("Preprocess no longer uses the suffix check", func(t *testing.T) {
		query := "How is Acme Corp doing?"
		out, err := p.Preprocess(query)
		require.NoError(t, err)
		assert.Equal(t, query, out)
	})

	t.Run("Preprocess still verifies supported companies", func(t *testing.T) {
		query := "Apple revenue"
		out, err := p.Preprocess(query)
		require.NoError(t, err)
		assert.Equal(t, query+"\n(Verified Tickers: AAPL)", out)
	})

	t.Run("Preprocess matches known names on word boundaries only", func(t *testing.T) {
		query := "Teslas are cars"
		out, err := p.Preprocess(query)
		require.NoError(t, err)
		assert.Equal(t, query, out)
	})
}

func TestContainsWord(t *testing.T) {
	assert.True(t, containsWord("what did tesla say", "tesla"))
	assert.True(t, containsWord("tesla", "tesla"))
	assert.True(t, containsWord("about tesla's margin", "tesla"))
	assert.False(t, containsWord("teslamotors", "tesla"))
	assert.False(t, containsWord("the teslas", "tesla"))
	assert.True(t, containsWord("teslas and tesla", "tesla"))
}

func TestLoadSupportedCompanies(t *testing.T) {
	t.Run("LoadSupportedCompanies reads the company list", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "companies.json")
		require.NoError(t, os.WriteFile(path, []byte(`[{"name":"Apple","ticker":"AAPL"},{"name":"Microsoft","ticker":"MSFT"}]`), 0o600))

		companies, err := LoadSupportedCompanies(path)
		require.NoError(t, err)
		assert.Equal(t, []SupportedCompany{{Name: "Apple", Ticker: "AAPL"}, {Name: "Microsoft", Ticker: "MSFT"}}, companies)
	})

	t.Run("LoadSupportedCompanies fails for a missing file", func(t *testing.T) {
		_, err := LoadSupportedCompanies(filepath.Join(t.TempDir(), "missing.json"))
		assert.Error(t, err)
	})
}
