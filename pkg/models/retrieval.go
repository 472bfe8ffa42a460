package models

// RetrievalContext carries the caller-supplied hints the ranking engine
// scores candidates against. Every field except ProjectID is optional.
type RetrievalContext struct {
	ProjectID    string   `json:"projectId"`
	FeatureScope string   `json:"featureScope,omitempty"`
	TaskType     TaskType `json:"taskType,omitempty"`
	Priority     Priority `json:"priority,omitempty"`
	Labels       []string `json:"labels,omitempty"`
	SearchQuery  string   `json:"searchQuery,omitempty"`
	Limit        int      `json:"limit,omitempty"`
}

// ScoredEntry is a memory entry with the score and per-signal reasons the
// ranking engine attached to it.
type ScoredEntry struct {
	MemoryEntry
	Score   int      `json:"score"`
	Reasons []string `json:"reasons"`
}

// RetrievalMeta reports how a retrieval result was produced so callers can
// audit ranking decisions.
type RetrievalMeta struct {
	FallbackUsed    bool `json:"fallbackUsed"`
	TotalCandidates int  `json:"totalCandidates"`
	ContextSignals  int  `json:"contextSignals"`
}

// RetrievalResult is the ordered, capped output of the ranking engine.
type RetrievalResult struct {
	Entries []ScoredEntry `json:"entries"`
	Meta    RetrievalMeta `json:"meta"`
}

// MemoryTrace records which memories influenced a generated artifact.
type MemoryTrace struct {
	SourceMemoryIDs []string `json:"sourceMemoryIds"`
	FallbackUsed    bool     `json:"fallbackUsed"`
	ContextSignals  int      `json:"contextSignals"`
}
