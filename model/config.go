package model

// SearchConfig controls a similarity search.
type SearchConfig struct {
	TopK           int     `json:"top_k"`
	ScoreThreshold float64 `json:"score_threshold"`
}

// DefaultSearchConfig returns five results with a 0.5 cosine similarity floor.
func DefaultSearchConfig() SearchConfig {
	return SearchConfig{
		TopK:           5,
		ScoreThreshold: 0.5,
	}
}
