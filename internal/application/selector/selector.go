// Package selector ranks reference modules by relevance to a stage's
// working query and returns a bounded top-K slice. This is what keeps
// per-stage context size independent of corpus size.
package selector

import (
	"sort"
	"strings"

	"github.com/khoi1009/Vibecode-with-Multi-Agent-LongCoT-sub001/internal/application/classifier"
	"github.com/khoi1009/Vibecode-with-Multi-Agent-LongCoT-sub001/internal/domain/model/reference"
	"github.com/khoi1009/Vibecode-with-Multi-Agent-LongCoT-sub001/internal/domain/model/stage"
)

// Signal weights. Each signal is normalized to [0, weight]; the sum is
// capped at 1.0.
const (
	weightNameMatch    = 0.5
	weightTokenOverlap = 0.3
	weightKeywordHits  = 0.15
	weightAffinity     = 0.2

	// keywordCap bounds how many keyword hits count toward the score
	keywordCap = 3

	// ScoreFloor is the minimum relevance for a module to be selected
	ScoreFloor = 0.1
)

// RankedModule is a reference module paired with its relevance score
type RankedModule struct {
	Module reference.Module
	Score  float64
}

// Selector ranks corpus modules against stage queries. Pure; it never
// mutates the corpus.
type Selector struct{}

// New creates a Selector
func New() *Selector {
	return &Selector{}
}

// Select scores every corpus module against the query and returns at most
// k modules, highest score first. Modules below ScoreFloor are excluded;
// ties keep corpus declaration order.
func (s *Selector) Select(query string, stageID stage.ID, corpus reference.Corpus, k int) []RankedModule {
	if k <= 0 || len(corpus) == 0 {
		return nil
	}

	queryLower := strings.ToLower(query)
	queryTokens := classifier.Tokenize(query)

	var affinity []string
	if profile, err := stage.GetProfile(stageID); err == nil {
		affinity = profile.PreferredModules
	}

	ranked := make([]RankedModule, 0, len(corpus))
	for i, m := range corpus {
		score := scoreModule(m, queryLower, queryTokens, affinity)
		if score < ScoreFloor {
			continue
		}
		ranked = append(ranked, RankedModule{Module: corpus[i], Score: score})
	}

	// Stable sort keeps declaration order for equal scores
	sort.SliceStable(ranked, func(a, b int) bool {
		return ranked[a].Score > ranked[b].Score
	})

	if len(ranked) > k {
		ranked = ranked[:k]
	}
	return ranked
}

// scoreModule computes the weighted sum of the four relevance signals
func scoreModule(m reference.Module, queryLower string, queryTokens []string, affinity []string) float64 {
	score := 0.0

	// (a) exact name-substring match against the query
	if strings.Contains(queryLower, strings.ToLower(m.Name)) {
		score += weightNameMatch
	}

	// (b) token-overlap ratio between query and description tokens
	descTokens := classifier.Tokenize(m.Description)
	if len(queryTokens) > 0 && len(descTokens) > 0 {
		descSet := make(map[string]bool, len(descTokens))
		for _, t := range descTokens {
			descSet[t] = true
		}
		overlap := 0
		for _, t := range queryTokens {
			if descSet[t] {
				overlap++
			}
		}
		score += weightTokenOverlap * float64(overlap) / float64(len(queryTokens))
	}

	// (c) module keywords literally present in the query, capped
	hits := 0
	for _, kw := range m.Keywords {
		if strings.Contains(queryLower, strings.ToLower(kw)) {
			hits++
		}
	}
	if hits > keywordCap {
		hits = keywordCap
	}
	score += weightKeywordHits * float64(hits) / float64(keywordCap)

	// (d) static stage affinity bonus
	for _, name := range affinity {
		if name == m.Name {
			score += weightAffinity
			break
		}
	}

	if score > 1.0 {
		score = 1.0
	}
	return score
}
