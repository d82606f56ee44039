package structure

import (
	"strings"

	"github.com/siherrmann/filingqa/model"
	"golang.org/x/net/html"
)

// ExtractTables converts the document tables into row/column data.
// Tables with fewer than two rows, or fewer than two non-empty rows,
// are layout tables and are skipped. Index is the position of the table
// among all tables of the document.
func ExtractTables(doc *Document) []model.Table {
	var tables []model.Table
	for idx, node := range doc.tables {
		rows := findRows(node)
		if len(rows) < 2 {
			continue
		}

		var data [][]string
		for _, tr := range rows {
			cells := rowCells(tr)
			if !anyNonEmpty(cells) {
				continue
			}
			data = append(data, cells)
		}
		if len(data) <= 1 {
			continue
		}

		tables = append(tables, model.Table{
			Index:   idx,
			NumRows: len(data),
			NumCols: len(data[0]),
			Rows:    data,
			Text:    TableText(data),
		})
	}
	return tables
}

// TableText renders rows as "a | b" lines.
func TableText(rows [][]string) string {
	lines := make([]string, 0, len(rows))
	for _, row := range rows {
		lines = append(lines, strings.Join(row, " | "))
	}
	return strings.Join(lines, "\n")
}

// findRows returns the tr elements of a table, without descending into
// nested tables.
func findRows(table *html.Node) []*html.Node {
	var rows []*html.Node
	var find func(*html.Node)
	find = func(n *html.Node) {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if c.Type != html.ElementNode {
				continue
			}
			switch c.Data {
			case "tr":
				rows = append(rows, c)
			case "table":
			default:
				find(c)
			}
		}
	}
	find(table)
	return rows
}

func rowCells(tr *html.Node) []string {
	var cells []string
	for c := tr.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && (c.Data == "td" || c.Data == "th") {
			cells = append(cells, textContent(c))
		}
	}
	return cells
}

func anyNonEmpty(cells []string) bool {
	for _, c := range cells {
		if c != "" {
			return true
		}
	}
	return false
}
