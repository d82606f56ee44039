package structure

import (
	"bytes"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/siherrmann/filingqa/helper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var body = strings.Repeat("The company designs and sells consumer electronics worldwide. ", 3)

const filingHTML = `<html>
<head><title>10-K</title><style>.x{color:red}</style></head>
<body>
<p>ITEM 1. Business</p>
<p>%s</p>
<p>ITEM 1A: Risk Factors</p>
<p>Short.</p>
<p>Item 7 - Management's Discussion and Analysis</p>
<p>%s</p>
<script>var ignored = "ITEM 9. Script";</script>
<table>
  <tr><th>Metric</th><th>2024</th><th>2023</th></tr>
  <tr><td></td><td></td><td></td></tr>
  <tr><td>Revenue</td><td>391,035</td><td>383,285</td></tr>
</table>
<table><tr><td>Layout only</td></tr></table>
<table>
  <tr><td>Header</td></tr>
  <tr><td> </td></tr>
</table>
</body>
</html>`

func testFilingHTML() string {
	return strings.ReplaceAll(strings.Replace(filingHTML, "%s", body, 1), "%s", body+" Revenue rose.")
}

func TestParseHTML(t *testing.T) {
	t.Run("Extracts trimmed text lines without scripts and styles", func(t *testing.T) {
		doc, err := ParseHTML(strings.NewReader(testFilingHTML()))
		require.NoError(t, err)

		assert.Contains(t, doc.Text, "ITEM 1. Business\n")
		assert.NotContains(t, doc.Text, "ignored")
		assert.NotContains(t, doc.Text, "color:red")
		for _, line := range strings.Split(doc.Text, "\n") {
			assert.Equal(t, strings.TrimSpace(line), line)
			assert.NotEmpty(t, line)
		}
	})
}

func TestExtractSections(t *testing.T) {
	doc, err := ParseHTML(strings.NewReader(testFilingHTML()))
	require.NoError(t, err)

	sections := ExtractSections(doc.Text)

	t.Run("Keeps long sections and drops short ones", func(t *testing.T) {
		require.Len(t, sections, 2)
		assert.Equal(t, "Item 1: Business", sections[0].Name)
		assert.Equal(t, "Item 1", sections[0].Key)
		assert.Equal(t, "Item 7: Management's Discussion and Analysis", sections[1].Name)
		assert.Equal(t, "Item 7", sections[1].Key)
		assert.Contains(t, sections[1].Text, "Revenue rose.")
	})

	t.Run("Section spans do not overlap", func(t *testing.T) {
		for i := 1; i < len(sections); i++ {
			assert.LessOrEqual(t, sections[i-1].End, sections[i].Start)
		}
		for _, s := range sections {
			assert.Less(t, s.Start, s.End)
		}
	})

	t.Run("Text without headers yields no sections", func(t *testing.T) {
		assert.Empty(t, ExtractSections(strings.Repeat("no headers here ", 50)))
	})

	t.Run("A body must be longer than the minimum length", func(t *testing.T) {
		exact := strings.Repeat("x", MinSectionLength)
		assert.Empty(t, ExtractSections("Item 2. Properties\n"+exact))

		longer := strings.Repeat("€", MinSectionLength+1)
		sections := ExtractSections("Item 2. Properties\n" + longer)
		require.Len(t, sections, 1)
		assert.Equal(t, longer, sections[0].Text)

		assert.Empty(t, ExtractSections("Item 2. Properties\n"+strings.Repeat("€", MinSectionLength)))
	})

	t.Run("Headers match case insensitively at line start", func(t *testing.T) {
		text := "item 7a. Market Risk\n" + body + "\nsee Item 8 elsewhere"
		sections := ExtractSections(text)
		require.Len(t, sections, 1)
		assert.Equal(t, "Item 7a: Market Risk", sections[0].Name)
		assert.Equal(t, "Item 7A", sections[0].Key)
	})
}

func TestNormalizeSectionName(t *testing.T) {
	cases := map[string]string{
		"Item 1A : Risk Factors":  "Item 1A: Risk Factors",
		"Item  7  -  MD&A":        "Item 7: MD&A",
		"ITEM 1A. Risk Factors":   "Item 1A: Risk Factors",
		"Item 1: Business":        "Item 1: Business",
		"ITEM 1A:Risk Factors":    "Item 1A:Risk Factors",
		"  item 8 . Financials  ": "Item 8: Financials",
	}

	for input, expected := range cases {
		t.Run("Normalizes "+input, func(t *testing.T) {
			assert.Equal(t, expected, NormalizeSectionName(input))
		})
	}

	t.Run("Normalization is idempotent", func(t *testing.T) {
		inputs := []string{"Item 7 : MD&A - Results. Overview", "a : : b", "ITEM 2 -- Properties", "Item 9 .- x"}
		for input := range cases {
			inputs = append(inputs, input)
		}
		for _, input := range inputs {
			once := NormalizeSectionName(input)
			assert.Equal(t, once, NormalizeSectionName(once), "input %q", input)
		}
	})
}

func TestSectionKey(t *testing.T) {
	cases := map[string]string{
		"7":                            "Item 7",
		"1a":                           "Item 1A",
		"item 1a":                      "Item 1A",
		"Item 7: Management Discussion": "Item 7",
		"ITEM 10 - Directors":          "Item 10",
		"Financial Table":              "Financial Table",
		"Risk Factors: Summary":        "Risk Factors",
		"Outlook - 2025":               "Outlook",
		"":                             "",
	}

	for input, expected := range cases {
		t.Run("Key of "+input, func(t *testing.T) {
			assert.Equal(t, expected, SectionKey(input))
		})
	}
}

func TestExtractTables(t *testing.T) {
	doc, err := ParseHTML(strings.NewReader(testFilingHTML()))
	require.NoError(t, err)

	tables := ExtractTables(doc)

	t.Run("Keeps only tables with more than one content row", func(t *testing.T) {
		require.Len(t, tables, 1)
		table := tables[0]
		assert.Equal(t, 0, table.Index)
		assert.Equal(t, 2, table.NumRows)
		assert.Equal(t, 3, table.NumCols)
		assert.Equal(t, "Metric | 2024 | 2023\nRevenue | 391,035 | 383,285", table.Text)
	})
}

func TestStructurer(t *testing.T) {
	t.Run("Warns about oversized tables but keeps them", func(t *testing.T) {
		var buf bytes.Buffer
		s := NewStructurer(5, helper.NewLogger(&buf, slog.LevelDebug))

		filing, err := s.StructureHTML(strings.NewReader(testFilingHTML()))
		require.NoError(t, err)
		require.Len(t, filing.Tables, 1)
		assert.True(t, filing.Tables[0].Oversized(5))
		assert.Contains(t, buf.String(), "Table exceeds chunk size")
	})

	t.Run("Document without headers is not an error", func(t *testing.T) {
		s := NewStructurer(1000, helper.NewLogger(io.Discard, slog.LevelError))
		filing := s.Structure(ParseText("just some text"))
		assert.Empty(t, filing.Sections)
		assert.Equal(t, "just some text", filing.FullText)
	})
}
