package pipeline

import (
	"context"

	"github.com/siherrmann/filingqa/model"
)

// ChunkFunc splits text into chunk texts.
type ChunkFunc func(text string) ([]string, error)

// EmbedFunc is a function that generates embeddings for text
type EmbedFunc func(ctx context.Context, text string) ([]float32, error)

// Pipeline combines chunking and embedding functions
type Pipeline struct {
	Chunker  ChunkFunc
	Embedder EmbedFunc
}

// NewPipeline creates a new processing pipeline
func NewPipeline(chunker ChunkFunc, embedder EmbedFunc) *Pipeline {
	return &Pipeline{
		Chunker:  chunker,
		Embedder: embedder,
	}
}

// Process chunks a free text section of a filing and embeds every chunk.
// It is used for documents that are not structured into items.
func (p *Pipeline) Process(ctx context.Context, text string, section string, meta model.FilingMetadata) ([]*model.Chunk, error) {
	texts, err := p.Chunker(text)
	if err != nil {
		return nil, err
	}

	chunks := make([]*model.Chunk, 0, len(texts))
	for i, t := range texts {
		embedding, err := p.Embedder(ctx, t)
		if err != nil {
			return nil, err
		}

		chunk := newSectionChunk(t, section, i, len(texts), meta)
		chunk.Embedding = embedding
		chunks = append(chunks, chunk)
	}

	return chunks, nil
}
