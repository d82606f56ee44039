package pipeline

import (
	"strings"

	"github.com/google/uuid"
	"github.com/siherrmann/filingqa/core/structure"
	"github.com/siherrmann/filingqa/model"
)

const (
	DefaultChunkSize    = 1000
	DefaultMinChunkSize = 50
)

// FilingChunker splits each section of a filing independently and turns
// every table into exactly one chunk.
type FilingChunker struct {
	ChunkSize    int
	Overlap      int
	MinChunkSize int
	split        ChunkFunc
}

// NewFilingChunker creates a chunker. Non-positive values fall back to the
// defaults of 1000 characters, 15% overlap and a 50 character minimum.
func NewFilingChunker(chunkSize int, overlap int, minChunkSize int) *FilingChunker {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if overlap <= 0 || overlap >= chunkSize {
		overlap = DefaultOverlap(chunkSize)
	}
	if minChunkSize <= 0 {
		minChunkSize = DefaultMinChunkSize
	}
	return &FilingChunker{
		ChunkSize:    chunkSize,
		Overlap:      overlap,
		MinChunkSize: minChunkSize,
		split:        RecursiveSplitter(chunkSize, overlap),
	}
}

// Chunk returns the section chunks in section order followed by one chunk
// per table. Fragments shorter than MinChunkSize are skipped.
func (c *FilingChunker) Chunk(sections []model.Section, tables []model.Table, meta model.FilingMetadata) ([]*model.Chunk, error) {
	var chunks []*model.Chunk

	for _, section := range sections {
		if length(strings.TrimSpace(section.Text)) < c.MinChunkSize {
			continue
		}

		texts, err := c.split(section.Text)
		if err != nil {
			return nil, err
		}

		kept := texts[:0]
		for _, text := range texts {
			text = strings.TrimSpace(text)
			if length(text) >= c.MinChunkSize {
				kept = append(kept, text)
			}
		}

		for i, text := range kept {
			chunk := newSectionChunk(text, section.Name, i, len(kept), meta)
			if section.Key != "" {
				chunk.SectionNormalized = section.Key
			}
			chunks = append(chunks, chunk)
		}
	}

	for _, table := range tables {
		chunks = append(chunks, newTableChunk(table, meta))
	}

	return chunks, nil
}

func newSectionChunk(text string, section string, index int, total int, meta model.FilingMetadata) *model.Chunk {
	return &model.Chunk{
		ID:                   uuid.New(),
		FilingRID:            meta.FilingRID,
		Ticker:               meta.Ticker,
		FilingType:           meta.FilingType,
		ReportDate:           meta.ReportDate,
		Text:                 text,
		Section:              section,
		SectionNormalized:    structure.SectionKey(section),
		ChunkIndex:           index,
		TotalChunksInSection: total,
		ChunkType:            model.ChunkTypeSection,
		CharCount:            length(text),
		TokenEstimate:        length(text) / 4,
		Metadata:             model.Metadata{},
	}
}

func newTableChunk(table model.Table, meta model.FilingMetadata) *model.Chunk {
	text := strings.TrimSpace(table.Text)
	rows, cols := table.NumRows, table.NumCols
	return &model.Chunk{
		ID:                   uuid.New(),
		FilingRID:            meta.FilingRID,
		Ticker:               meta.Ticker,
		FilingType:           meta.FilingType,
		ReportDate:           meta.ReportDate,
		Text:                 text,
		Section:              model.TableSectionName,
		SectionNormalized:    model.TableSectionName,
		ChunkIndex:           table.Index,
		TotalChunksInSection: 1,
		ChunkType:            model.ChunkTypeTable,
		CharCount:            length(text),
		TokenEstimate:        length(text) / 4,
		TableRows:            &rows,
		TableCols:            &cols,
		Metadata:             model.Metadata{},
	}
}

// ChunkStats summarizes a set of chunks.
type ChunkStats struct {
	TotalChunks   int     `json:"total_chunks"`
	SectionChunks int     `json:"section_chunks"`
	TableChunks   int     `json:"table_chunks"`
	Sections      int     `json:"unique_sections"`
	AvgChunkSize  float64 `json:"avg_chunk_size"`
	MinChunkSize  int     `json:"min_chunk_size"`
	MaxChunkSize  int     `json:"max_chunk_size"`
	TotalTokens   int     `json:"total_tokens_estimate"`
}

func Stats(chunks []*model.Chunk) ChunkStats {
	stats := ChunkStats{TotalChunks: len(chunks)}
	if len(chunks) == 0 {
		return stats
	}

	sections := map[string]bool{}
	total := 0
	stats.MinChunkSize = chunks[0].CharCount
	for _, c := range chunks {
		switch c.ChunkType {
		case model.ChunkTypeTable:
			stats.TableChunks++
		default:
			stats.SectionChunks++
			sections[c.Section] = true
		}
		total += c.CharCount
		stats.TotalTokens += c.TokenEstimate
		if c.CharCount < stats.MinChunkSize {
			stats.MinChunkSize = c.CharCount
		}
		if c.CharCount > stats.MaxChunkSize {
			stats.MaxChunkSize = c.CharCount
		}
	}
	stats.Sections = len(sections)
	stats.AvgChunkSize = float64(total) / float64(len(chunks))

	return stats
}
