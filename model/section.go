package model

// Section is a named region of filing text. It only exists while a
// filing is being structured.
type Section struct {
	Name       string `json:"name"`
	Normalized string `json:"normalized"`
	Key        string `json:"key"`
	Text       string `json:"text"`
	Start      int    `json:"start"`
	End        int    `json:"end"`
}

// Table is a row/column fragment of a filing. It is never split.
type Table struct {
	Index   int        `json:"table_index"`
	NumRows int        `json:"num_rows"`
	NumCols int        `json:"num_cols"`
	Rows    [][]string `json:"data"`
	Text    string     `json:"text"`
}

// Oversized reports whether the table text exceeds three times chunkSize.
func (t *Table) Oversized(chunkSize int) bool {
	return len(t.Text) > chunkSize*3
}

// StructuredFiling is the output of structuring one filing document.
type StructuredFiling struct {
	Sections []Section `json:"sections"`
	Tables   []Table   `json:"tables"`
	FullText string    `json:"-"`
}
