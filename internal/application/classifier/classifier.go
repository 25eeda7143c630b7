// Package classifier routes a free-text request to a task category and
// its canonical stage pipeline.
package classifier

import (
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/khoi1009/Vibecode-with-Multi-Agent-LongCoT-sub001/internal/domain/model/stage"
	"github.com/khoi1009/Vibecode-with-Multi-Agent-LongCoT-sub001/internal/domain/model/task"
)

// commandTriggers maps literal command tokens to categories. A command
// token anywhere in the request wins over every keyword heuristic.
var commandTriggers = map[string]task.Category{
	"/build":    task.CategoryBuild,
	"/fix":      task.CategoryFix,
	"/refactor": task.CategoryRefactor,
	"/review":   task.CategoryReview,
	"/deploy":   task.CategoryDeploy,
}

// keywordTriggers maps heuristic keywords to categories. Keywords match
// as token prefixes, so "crash" also hits "crashes" and "crashing".
var keywordTriggers = map[task.Category][]string{
	task.CategoryFix:      {"fix", "bug", "error", "crash", "broken", "panic", "regression", "repair"},
	task.CategoryDeploy:   {"deploy", "release", "ship", "publish", "rollout"},
	task.CategoryRefactor: {"refactor", "restructure", "cleanup", "simplify", "extract", "rename"},
	task.CategoryReview:   {"review", "audit", "inspect", "critique"},
	task.CategoryBuild:    {"build", "create", "implement", "add", "write", "make", "new", "feature"},
}

// categoryOrder breaks ties when two categories hit the same token
// position. Fix comes first: a request that is equally a repair and a
// build is a repair.
var categoryOrder = []task.Category{
	task.CategoryFix,
	task.CategoryDeploy,
	task.CategoryRefactor,
	task.CategoryReview,
	task.CategoryBuild,
}

// Classifier matches request text against the static trigger tables.
// It is a pure function of its inputs; it never fails and never returns
// an empty pipeline.
type Classifier struct{}

// New creates a Classifier
func New() *Classifier {
	return &Classifier{}
}

// Classify maps a request to a category and its stage pipeline. Literal
// command tokens take precedence over keyword heuristics; anything that
// matches neither falls back to the clarify category. If the request
// targets an existing project, a discovery stage is prepended unless the
// template already begins with one.
func (c *Classifier) Classify(text string, isExistingProject bool) (task.Category, []stage.ID) {
	category := c.categorize(text)
	pipeline := stage.Template(category)

	if isExistingProject && pipeline[0] != stage.StageDiscovery {
		pipeline = append([]stage.ID{stage.StageDiscovery}, pipeline...)
	}
	return category, pipeline
}

func (c *Classifier) categorize(text string) task.Category {
	tokens := Tokenize(text)
	if len(tokens) == 0 {
		return task.CategoryClarify
	}

	// Literal command tokens first; the first one in the text wins
	for _, t := range tokens {
		if cat, ok := commandTriggers[t]; ok {
			return cat
		}
	}

	// Keyword heuristics: the earliest keyword hit in the text decides
	// the category. "review the error handling" is a review because
	// "review" comes before "error", not because of any category rank.
	best := task.CategoryClarify
	bestPos := len(tokens)
	for _, cat := range categoryOrder {
		for _, kw := range keywordTriggers[cat] {
			for i, tok := range tokens {
				if i >= bestPos {
					break
				}
				if strings.HasPrefix(tok, kw) {
					best = cat
					bestPos = i
					break
				}
			}
		}
	}
	return best
}

// Tokenize lowercases, NFC-normalizes, and splits request text into
// tokens, trimming punctuation that would defeat literal matching.
func Tokenize(text string) []string {
	normalized := norm.NFC.String(strings.ToLower(text))
	fields := strings.Fields(normalized)
	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		t := strings.TrimFunc(f, func(r rune) bool {
			return !isTokenRune(r)
		})
		if t != "" {
			tokens = append(tokens, t)
		}
	}
	return tokens
}

func isTokenRune(r rune) bool {
	if r >= 'a' && r <= 'z' || r >= '0' && r <= '9' {
		return true
	}
	// Leading slash marks a command token
	return r == '/' || r == '-' || r == '_'
}
