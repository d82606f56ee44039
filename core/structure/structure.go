package structure

import (
	"io"
	"log/slog"

	"github.com/siherrmann/filingqa/helper"
	"github.com/siherrmann/filingqa/model"
)

// Structurer turns filing documents into sections and tables.
type Structurer struct {
	ChunkSize int
	logger    *slog.Logger
}

func NewStructurer(chunkSize int, logger *slog.Logger) *Structurer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Structurer{ChunkSize: chunkSize, logger: logger}
}

// StructureHTML parses r and structures the result.
func (s *Structurer) StructureHTML(r io.Reader) (*model.StructuredFiling, error) {
	doc, err := ParseHTML(r)
	if err != nil {
		return nil, helper.NewError("structure filing", err)
	}
	return s.Structure(doc), nil
}

// Structure extracts sections and tables. A document without recognizable
// section headers is not an error; it yields no sections.
func (s *Structurer) Structure(doc *Document) *model.StructuredFiling {
	filing := &model.StructuredFiling{
		Sections: ExtractSections(doc.Text),
		Tables:   ExtractTables(doc),
		FullText: doc.Text,
	}

	if len(filing.Sections) == 0 {
		s.logger.Warn("No sections found in filing", slog.Int("text_length", len(doc.Text)))
	}

	for _, t := range filing.Tables {
		if s.ChunkSize > 0 && t.Oversized(s.ChunkSize) {
			s.logger.Warn(
				"Table exceeds chunk size and is kept whole",
				slog.Int("table_index", t.Index),
				slog.Int("length", len(t.Text)),
				slog.Int("chunk_size", s.ChunkSize),
			)
		}
	}

	s.logger.Debug("Structured filing", slog.Int("sections", len(filing.Sections)), slog.Int("tables", len(filing.Tables)))

	return filing
}
