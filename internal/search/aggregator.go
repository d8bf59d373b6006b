package search

import (
	"sort"

	"golang.org/x/text/unicode/norm"

	"github.com/BigBang142/Tor-Search-MCP/internal/model"
)

// Aggregate merges result sets from multiple backends into one ordered
// slice: deduplicated by normalized URL keeping the highest-score
// instance, sorted by descending score with backend priority breaking
// ties, truncated to max.
//
// The priority slice lists backend kinds in preference order; backends
// not listed rank after all listed ones. Aggregate is a pure function:
// it never mutates its inputs and is deterministic for identical input.
func Aggregate(max int, priority []model.BackendKind, sets ...[]model.Result) []model.Result {
	rank := priorityRank(priority)

	// Dedup keeps the best instance per normalized URL. Equal scores
	// fall back to backend priority so the outcome does not depend on
	// which backend's set happened to arrive first.
	best := make(map[string]model.Result)
	order := make([]string, 0)

	for _, set := range sets {
		for _, r := range set {
			key := model.NormalizeURL(r.URL)
			if key == "" {
				continue
			}

			current, seen := best[key]
			if !seen {
				best[key] = normalizeResult(r)
				order = append(order, key)
				continue
			}
			if r.Score > current.Score ||
				(r.Score == current.Score && rank[r.Source] < rank[current.Source]) {
				best[key] = normalizeResult(r)
			}
		}
	}

	merged := make([]model.Result, 0, len(best))
	for _, key := range order {
		merged = append(merged, best[key])
	}

	sort.SliceStable(merged, func(i, j int) bool {
		if merged[i].Score != merged[j].Score {
			return merged[i].Score > merged[j].Score
		}
		return rank[merged[i].Source] < rank[merged[j].Source]
	})

	if max > 0 && len(merged) > max {
		merged = merged[:max]
	}
	return merged
}

// priorityRank maps each kind to its position in the priority order.
// Unlisted kinds map to the zero value via the lookup default below.
func priorityRank(priority []model.BackendKind) map[model.BackendKind]int {
	rank := make(map[model.BackendKind]int, len(priority))
	for i, k := range priority {
		if _, ok := rank[k]; !ok {
			rank[k] = i - len(priority) // negative so listed kinds sort before unlisted (rank 0)
		}
	}
	return rank
}

// normalizeResult applies Unicode NFC normalization to the displayed
// text fields. Backends disagree on composed vs decomposed forms for
// accented titles, which would otherwise defeat downstream string
// comparison and make identical titles render differently.
func normalizeResult(r model.Result) model.Result {
	r.Title = norm.NFC.String(r.Title)
	r.Snippet = norm.NFC.String(r.Snippet)
	return r
}
