package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	FilingType10K = "10-K"
	FilingType10Q = "10-Q"
)

// FilingStatus describes how far a filing got through ingestion.
type FilingStatus string

const (
	FilingStatusReady             FilingStatus = "ready"
	FilingStatusEmbeddingsPending FilingStatus = "embeddings_pending"
	FilingStatusProcessing        FilingStatus = "processing"
)

// Filing is one regulatory document for one company, filing type and report period.
type Filing struct {
	ID                  int        `json:"id"`
	RID                 uuid.UUID  `json:"rid"`
	Ticker              string     `json:"ticker"`
	CompanyName         string     `json:"company_name"`
	CIK                 string     `json:"cik,omitempty"`
	FilingType          string     `json:"filing_type"`
	ReportDate          time.Time  `json:"report_date"`
	FilingDate          *time.Time `json:"filing_date,omitempty"`
	AccessionNumber     string     `json:"accession_number,omitempty"`
	DocumentURL         string     `json:"document_url,omitempty"`
	ContentRef          string     `json:"content_ref,omitempty"`
	Processed           bool       `json:"processed"`
	EmbeddingsGenerated bool       `json:"embeddings_generated"`
	NumChunks           int        `json:"num_chunks"`
	Metadata            Metadata   `json:"metadata,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

func (f *Filing) Status() FilingStatus {
	switch {
	case f.Processed && f.EmbeddingsGenerated:
		return FilingStatusReady
	case f.Processed:
		return FilingStatusEmbeddingsPending
	default:
		return FilingStatusProcessing
	}
}

// DisplayName renders e.g. "Apple Inc. 10-K (FY 2024)".
func (f *Filing) DisplayName() string {
	name := f.CompanyName
	if name == "" {
		name = f.Ticker
	}
	year := "N/A"
	if !f.ReportDate.IsZero() {
		year = f.ReportDate.Format("2006")
	}
	return name + " " + f.FilingType + " (FY " + year + ")"
}

// NormalizeTicker upper-cases and trims a ticker symbol.
func NormalizeTicker(ticker string) string {
	return strings.ToUpper(strings.TrimSpace(ticker))
}

// FilingLink is the per-ticker filing reference attached to answers.
type FilingLink struct {
	Ticker      string `json:"ticker"`
	FilingType  string `json:"filing_type"`
	ReportDate  string `json:"report_date,omitempty"`
	DocumentURL string `json:"document_url,omitempty"`
	DisplayName string `json:"display_name"`
}

func (f *Filing) Link() FilingLink {
	link := FilingLink{
		Ticker:      f.Ticker,
		FilingType:  f.FilingType,
		DocumentURL: f.DocumentURL,
		DisplayName: f.DisplayName(),
	}
	if !f.ReportDate.IsZero() {
		link.ReportDate = f.ReportDate.Format(time.DateOnly)
	}
	return link
}
