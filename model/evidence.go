package model

import "github.com/google/uuid"

// DefaultPerCompanyCap is the default number of chunks kept per company.
const DefaultPerCompanyCap = 5

// EvidenceSet groups retrieved chunks by company. Companies keep the order
// in which they were first added, chunks are unique per company and each
// company holds at most Cap chunks.
type EvidenceSet struct {
	Cap         int
	MissingData []string

	order  []string
	chunks map[string][]*Chunk
	seen   map[string]map[uuid.UUID]bool
}

func NewEvidenceSet(perCompanyCap int) *EvidenceSet {
	if perCompanyCap <= 0 {
		perCompanyCap = DefaultPerCompanyCap
	}
	return &EvidenceSet{
		Cap:    perCompanyCap,
		chunks: map[string][]*Chunk{},
		seen:   map[string]map[uuid.UUID]bool{},
	}
}

// Add appends chunks for ticker, skipping ids already present and
// anything beyond the cap. It returns the number of chunks kept.
func (e *EvidenceSet) Add(ticker string, chunks []*Chunk) int {
	if _, ok := e.chunks[ticker]; !ok {
		e.order = append(e.order, ticker)
		e.chunks[ticker] = nil
		e.seen[ticker] = map[uuid.UUID]bool{}
	}

	added := 0
	for _, c := range chunks {
		if len(e.chunks[ticker]) >= e.Cap {
			break
		}
		if e.seen[ticker][c.ID] {
			continue
		}
		e.seen[ticker][c.ID] = true
		e.chunks[ticker] = append(e.chunks[ticker], c)
		added++
	}
	return added
}

// AddMissing records a data point that could not be retrieved.
func (e *EvidenceSet) AddMissing(note string) {
	e.MissingData = append(e.MissingData, note)
}

// Tickers returns the companies with at least one chunk, in insertion order.
func (e *EvidenceSet) Tickers() []string {
	var tickers []string
	for _, t := range e.order {
		if len(e.chunks[t]) > 0 {
			tickers = append(tickers, t)
		}
	}
	return tickers
}

func (e *EvidenceSet) Chunks(ticker string) []*Chunk {
	return e.chunks[ticker]
}

func (e *EvidenceSet) Has(ticker string) bool {
	return len(e.chunks[ticker]) > 0
}

// Flatten returns all chunks company by company. The position of a chunk
// in this slice is its source index used by citations.
func (e *EvidenceSet) Flatten() []*Chunk {
	var all []*Chunk
	for _, t := range e.order {
		all = append(all, e.chunks[t]...)
	}
	return all
}

func (e *EvidenceSet) Len() int {
	n := 0
	for _, c := range e.chunks {
		n += len(c)
	}
	return n
}

func (e *EvidenceSet) IsEmpty() bool {
	return e == nil || e.Len() == 0
}
