package vectorstore

// Document is a knowledge base passage.
type Document struct {
	ID      string
	Content string
	// Metadata is matched exactly by search filters, e.g. {"hmo": "maccabi"}.
	Metadata map[string]string
}

// SearchResult is one retrieved passage.
type SearchResult struct {
	ID      string
	Content string
	// Score is the similarity score (higher = more similar).
	Score    float32
	Metadata map[string]string
}

// Stats describes the loaded index.
type Stats struct {
	Loaded         bool   `json:"loaded"`
	TotalDocuments int    `json:"total_documents"`
	Dimension      int    `json:"dimension"`
	IndexType      string `json:"index_type"`
}
