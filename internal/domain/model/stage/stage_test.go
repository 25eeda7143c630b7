package stage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/khoi1009/Vibecode-with-Multi-Agent-LongCoT-sub001/internal/domain/model/task"
)

func TestTemplate_EveryCategoryGetsANonEmptyPipeline(t *testing.T) {
	for _, c := range []task.Category{
		task.CategoryBuild, task.CategoryFix, task.CategoryRefactor,
		task.CategoryReview, task.CategoryDeploy, task.CategoryClarify,
	} {
		p := Template(c)
		require.NotEmpty(t, p, "category %s", c)
		for _, id := range p {
			assert.True(t, id.IsValid(), "category %s stage %s", c, id)
		}
	}
}

func TestTemplate_UnknownCategoryFallsBackToClarify(t *testing.T) {
	assert.Equal(t, []ID{StageClarify}, Template(task.Category("sing")))
}

func TestTemplate_ReturnsACopy(t *testing.T) {
	p := Template(task.CategoryBuild)
	p[0] = StageClarify
	assert.Equal(t, StagePlanning, Template(task.CategoryBuild)[0])
}

func TestProfiles_DestructiveFlags(t *testing.T) {
	destructive := map[ID]bool{
		StageImplementation: true,
		StageRecovery:       true,
		StageRelease:        true,
	}
	for _, id := range []ID{
		StageDiscovery, StagePlanning, StageImplementation, StageRecovery,
		StageVerification, StageReview, StageRelease, StageClarify,
	} {
		p, err := GetProfile(id)
		require.NoError(t, err)
		assert.Equal(t, destructive[id], p.Destructive, "stage %s", id)
		assert.NotEmpty(t, p.Role, "stage %s", id)
	}
}

func TestProfiles_RecoveryHasAChangeSizeLimit(t *testing.T) {
	p := MustProfile(StageRecovery)
	assert.Equal(t, 8*1024, p.ChangeSizeLimit)

	assert.Zero(t, MustProfile(StageImplementation).ChangeSizeLimit)
}

func TestGetProfile_UnknownStage(t *testing.T) {
	_, err := GetProfile(ID("refactoring"))
	assert.Error(t, err)
	assert.False(t, ID("refactoring").IsValid())
}

func TestSetPreferredModules_OverridesAffinityOnly(t *testing.T) {
	orig := MustProfile(StageReview)
	t.Cleanup(func() {
		require.NoError(t, SetPreferredModules(StageReview, orig.PreferredModules))
	})

	require.NoError(t, SetPreferredModules(StageReview, []string{"architecture"}))

	p := MustProfile(StageReview)
	assert.Equal(t, []string{"architecture"}, p.PreferredModules)
	assert.Equal(t, orig.Role, p.Role)
	assert.Equal(t, orig.Destructive, p.Destructive)

	assert.Error(t, SetPreferredModules(ID("nope"), nil))
}
