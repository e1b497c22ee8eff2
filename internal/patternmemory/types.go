// Package patternmemory persists successful diagnostic resolution patterns
// durably, anonymizing secrets and encrypting the solution payload at rest,
// and exposes a ranked, similarity-aware retrieval surface for the
// conversational manager and the probe orchestrator's enrichment pass.
package patternmemory

import "time"

// Pattern is one stored resolution: a problem signature paired with the
// solution that resolved it, plus the running statistics used to rank it.
type Pattern struct {
	ID            string
	ProblemType   string
	Signature     string
	Solution      string
	SuccessCount  int
	FailureCount  int
	MeanResolveMs int64
	LastUsed      time.Time
	Confidence    float64
	Feedback      []FeedbackEntry
	DecryptFailed bool
}

// FeedbackEntry is one outcome report against a pattern: whether applying
// the solution worked, an optional 1-5 rating, and when it happened.
type FeedbackEntry struct {
	Succeeded bool
	Rating    int
	Comment   string
	At        time.Time
}

// CommonIssue is an aggregated view over patterns sharing a problem type,
// used to surface recurring classes of failure independent of any single
// signature match.
type CommonIssue struct {
	ProblemType string
	Occurrences int
	LastSeen    time.Time
	TopPattern  string
}

// SortBy selects the ranking key for Retrieve.
type SortBy string

const (
	SortByConfidence  SortBy = "confidence"
	SortBySuccessRate SortBy = "successRate"
	SortByRecentUse   SortBy = "recentUse"
	SortByTotalUses   SortBy = "totalUses"
)

// RetrieveOptions bounds and orders a similarity query.
type RetrieveOptions struct {
	MinConfidence   float64
	MinSuccessCount int
	MaxAge          time.Duration
	SortBy          SortBy
	Limit           int
	// SimilarityThreshold drops candidates whose Jaccard overlap with the
	// query signature falls below this value. Zero disables the floor.
	SimilarityThreshold float64
}

// RankedPattern pairs a stored pattern with its similarity score against
// the query signature that produced it.
type RankedPattern struct {
	Pattern    Pattern
	Similarity float64
}
