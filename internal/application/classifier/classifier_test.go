package classifier

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/khoi1009/Vibecode-with-Multi-Agent-LongCoT-sub001/internal/domain/model/stage"
	"github.com/khoi1009/Vibecode-with-Multi-Agent-LongCoT-sub001/internal/domain/model/task"
)

func TestClassify_KeywordHeuristics(t *testing.T) {
	c := New()

	tests := []struct {
		name string
		text string
		want task.Category
	}{
		{"build request", "create a json parsing helper", task.CategoryBuild},
		{"fix request", "the server crashes on empty input", task.CategoryFix},
		{"refactor request", "simplify the retry logic", task.CategoryRefactor},
		{"review request", "review the error handling", task.CategoryReview},
		{"deploy request", "ship version two to production", task.CategoryDeploy},
		{"ambiguous request", "something about the thing", task.CategoryClarify},
		{"empty request", "", task.CategoryClarify},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, pipeline := c.Classify(tt.text, false)
			assert.Equal(t, tt.want, got)
			assert.NotEmpty(t, pipeline, "pipeline must never be empty")
		})
	}
}

func TestClassify_CommandTokenWins(t *testing.T) {
	c := New()

	// "error" would route to fix, but the command token takes precedence
	got, _ := c.Classify("/review the error handling in main", false)
	assert.Equal(t, task.CategoryReview, got)
}

func TestClassify_FixBeatsBuildOnMixedKeywords(t *testing.T) {
	c := New()

	got, _ := c.Classify("fix the build error", false)
	assert.Equal(t, task.CategoryFix, got)
}

func TestClassify_KeywordsMatchAsTokenPrefixes(t *testing.T) {
	c := New()

	tests := []struct {
		text string
		want task.Category
	}{
		{"the importer is crashing under load", task.CategoryFix},
		{"reviewing the migration scripts", task.CategoryReview},
		{"shipping the hotfix tonight", task.CategoryDeploy},
	}
	for _, tt := range tests {
		got, _ := c.Classify(tt.text, false)
		assert.Equal(t, tt.want, got, tt.text)
	}
}

func TestClassify_EarliestKeywordInTextDecides(t *testing.T) {
	c := New()

	got, _ := c.Classify("review the error handling", false)
	assert.Equal(t, task.CategoryReview, got, "review appears before error")

	got, _ = c.Classify("the error in the review flow", false)
	assert.Equal(t, task.CategoryFix, got, "error appears before review")
}

func TestClassify_ExistingProjectPrependsDiscovery(t *testing.T) {
	c := New()

	cat, pipeline := c.Classify("fix the null pointer error", true)
	assert.Equal(t, task.CategoryFix, cat)
	assert.Equal(t, []stage.ID{stage.StageDiscovery, stage.StageRecovery, stage.StageVerification}, pipeline)
}

func TestClassify_NoDoubleDiscovery(t *testing.T) {
	c := New()

	_, pipeline := c.Classify("review the code", true)
	require.NotEmpty(t, pipeline)
	count := 0
	for _, s := range pipeline {
		if s == stage.StageDiscovery {
			count++
		}
	}
	assert.Equal(t, 1, count)
}

func TestClassify_NeverReturnsEmptyPipeline(t *testing.T) {
	c := New()

	inputs := []string{"", "   ", "?!", "/unknown", "xyzzy plugh", "fix", "deploy everything now"}
	for _, in := range inputs {
		for _, existing := range []bool{false, true} {
			_, pipeline := c.Classify(in, existing)
			assert.NotEmpty(t, pipeline, "input %q existing=%v", in, existing)
		}
	}
}

func TestTokenize(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{"lowercases", "Fix The Bug", []string{"fix", "the", "bug"}},
		{"strips punctuation", "fix, the bug!", []string{"fix", "the", "bug"}},
		{"keeps command slash", "/fix the parser", []string{"/fix", "the", "parser"}},
		{"keeps hyphen and underscore", "rename user_id to user-id", []string{"rename", "user_id", "to", "user-id"}},
		{"empty", "   ", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Tokenize(tt.text)
			if tt.want == nil {
				assert.Empty(t, got)
				return
			}
			assert.Equal(t, tt.want, got)
		})
	}
}
