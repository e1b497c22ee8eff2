package patternmemory

import (
	"sort"
	"strings"
	"time"
)

// KShortlist bounds how many recency-ordered candidates the token-prefix
// index hands to the Jaccard ranking pass.
const KShortlist = 200

// tokenize splits an anonymized signature into a lowercase bag of tokens
// for Jaccard comparison. Anonymization should already have run on s.
func tokenize(s string) map[string]struct{} {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
	})
	set := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		if f == "" {
			continue
		}
		set[f] = struct{}{}
	}
	return set
}

// jaccard computes the Jaccard overlap between two token sets: the size of
// their intersection divided by the size of their union. Two empty sets
// are considered identical (overlap 1.0).
func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1.0
	}
	if len(a) == 0 || len(b) == 0 {
		return 0.0
	}
	small, large := a, b
	if len(large) < len(small) {
		small, large = large, small
	}
	intersection := 0
	for tok := range small {
		if _, ok := large[tok]; ok {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	if union == 0 {
		return 0.0
	}
	return float64(intersection) / float64(union)
}

// rankBySimilarity scores candidates against the query signature by
// Jaccard overlap, drops any below threshold, and returns them sorted by
// descending similarity with ties broken by descending LastUsed.
func rankBySimilarity(query string, candidates []Pattern, threshold float64) []RankedPattern {
	queryTokens := tokenize(query)
	ranked := make([]RankedPattern, 0, len(candidates))
	for _, p := range candidates {
		score := jaccard(queryTokens, tokenize(p.Signature))
		if score < threshold {
			continue
		}
		ranked = append(ranked, RankedPattern{Pattern: p, Similarity: score})
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Similarity != ranked[j].Similarity {
			return ranked[i].Similarity > ranked[j].Similarity
		}
		return ranked[i].Pattern.LastUsed.After(ranked[j].Pattern.LastUsed)
	})
	return ranked
}

// sortKeyFor returns the comparable value used to rank a pattern under the
// given SortBy. Descending order on this value is the contract Retrieve
// honors, with ties broken on LastUsed descending.
func sortKeyFor(p Pattern, by SortBy) float64 {
	switch by {
	case SortBySuccessRate:
		total := p.SuccessCount + p.FailureCount
		if total == 0 {
			return 0
		}
		return float64(p.SuccessCount) / float64(total)
	case SortByRecentUse:
		return float64(p.LastUsed.UnixMilli())
	case SortByTotalUses:
		return float64(p.SuccessCount + p.FailureCount)
	case SortByConfidence:
		fallthrough
	default:
		return p.Confidence
	}
}

// sortRankedPatternsBy sorts ranked in place by by, keeping each
// RankedPattern's Similarity paired with its own Pattern.
func sortRankedPatternsBy(ranked []RankedPattern, by SortBy) {
	sort.SliceStable(ranked, func(i, j int) bool {
		ki, kj := sortKeyFor(ranked[i].Pattern, by), sortKeyFor(ranked[j].Pattern, by)
		if ki != kj {
			return ki > kj
		}
		return ranked[i].Pattern.LastUsed.After(ranked[j].Pattern.LastUsed)
	})
}

// UpdateConfidence recomputes a pattern's confidence from its success and
// failure counts and recent feedback, per the blended rule: the base rate
// successCount/(successCount+failureCount+1), blended 70/30 with the mean
// of feedback ratings from the last 30 days once at least three such
// entries exist.
func UpdateConfidence(p *Pattern, now time.Time) {
	base := float64(p.SuccessCount) / float64(p.SuccessCount+p.FailureCount+1)

	cutoff := now.Add(-30 * 24 * time.Hour)
	var sum float64
	var n int
	for _, fb := range p.Feedback {
		if fb.At.Before(cutoff) || fb.Rating <= 0 {
			continue
		}
		sum += float64(fb.Rating)
		n++
	}

	if n < 3 {
		p.Confidence = base
		return
	}
	avgRating := sum / float64(n)
	p.Confidence = 0.7*base + 0.3*(avgRating/5.0)
}
