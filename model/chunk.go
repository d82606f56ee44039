package model

import (
	"time"

	"github.com/google/uuid"
)

type ChunkType string

const (
	ChunkTypeSection ChunkType = "section"
	ChunkTypeTable   ChunkType = "table"
)

// TableSectionName is the synthetic section label of table chunks.
const TableSectionName = "Financial Table"

// Chunk is the unit of retrieval. ID is shared between the relational
// row and the vector index entry.
type Chunk struct {
	ID                   uuid.UUID `json:"id"`
	FilingRID            uuid.UUID `json:"filing_rid"`
	Ticker               string    `json:"ticker"`
	FilingType           string    `json:"filing_type"`
	ReportDate           time.Time `json:"report_date"`
	Text                 string    `json:"text"`
	Section              string    `json:"section"`
	SectionNormalized    string    `json:"section_normalized"`
	ChunkIndex           int       `json:"chunk_index"`
	TotalChunksInSection int       `json:"total_chunks_in_section"`
	ChunkType            ChunkType `json:"chunk_type"`
	CharCount            int       `json:"char_count"`
	TokenEstimate        int       `json:"token_count_estimate"`
	TableRows            *int      `json:"table_rows,omitempty"`
	TableCols            *int      `json:"table_cols,omitempty"`
	Embedding            []float32 `json:"embedding,omitempty"`
	Metadata             Metadata  `json:"metadata,omitempty"`
	CreatedAt            time.Time `json:"created_at"`
	// Results
	Similarity  float64 `json:"score,omitempty"`
	DocumentURL string  `json:"document_url,omitempty"`
}

// ReportDateString formats the report date as YYYY-MM-DD, or "Unknown".
func (c *Chunk) ReportDateString() string {
	if c.ReportDate.IsZero() {
		return "Unknown"
	}
	return c.ReportDate.Format(time.DateOnly)
}

// FilingMetadata is the filing level information copied onto every chunk.
type FilingMetadata struct {
	FilingRID  uuid.UUID
	Ticker     string
	FilingType string
	ReportDate time.Time
}

// SearchFilter holds the exact-match constraints applied before ranking.
// Empty fields do not constrain.
type SearchFilter struct {
	Ticker     string `json:"ticker,omitempty"`
	FilingType string `json:"filing_type,omitempty"`
	Section    string `json:"section,omitempty"`
}

// Matches reports whether c satisfies every set field of f. Section is
// compared against the normalized section key.
func (f SearchFilter) Matches(c *Chunk) bool {
	if f.Ticker != "" && c.Ticker != f.Ticker {
		return false
	}
	if f.FilingType != "" && c.FilingType != f.FilingType {
		return false
	}
	if f.Section != "" && c.SectionNormalized != f.Section {
		return false
	}
	return true
}

// IndexInfo describes the state of a vector index.
type IndexInfo struct {
	Name       string `json:"name"`
	Dimension  int    `json:"dimension"`
	Count      int    `json:"count"`
	IndexType  string `json:"index_type,omitempty"`
	Embeddings int    `json:"embeddings"`
}
