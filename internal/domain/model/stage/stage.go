package stage

import (
	"fmt"

	"github.com/khoi1009/Vibecode-with-Multi-Agent-LongCoT-sub001/internal/domain/model/task"
)

// ID identifies one role in a pipeline.
type ID string

const (
	StageDiscovery      ID = "discovery"      // Understand an existing project before acting
	StagePlanning       ID = "planning"       // Produce a change strategy
	StageImplementation ID = "implementation" // Generate the change itself
	StageRecovery       ID = "recovery"       // Repair a defect with a bounded change
	StageVerification   ID = "verification"   // Run checks against the change
	StageReview         ID = "review"         // Inspect the result and report findings
	StageRelease        ID = "release"        // Publish or deploy the result
	StageClarify        ID = "clarify"        // Ask the operator what they actually want
)

// String returns the string representation of the stage id
func (id ID) String() string {
	return string(id)
}

// IsValid returns true if the id names a known stage
func (id ID) IsValid() bool {
	_, ok := profiles[id]
	return ok
}

// Profile is the versioned, read-only configuration record for one stage:
// its role instructions, reference-module affinity, and whether its action
// may have irreversible effects. Loaded once at startup, never mutated.
type Profile struct {
	ID               ID
	Role             string   // Instruction text handed to the generation service
	PreferredModules []string // Reference modules this stage has a static affinity for
	Destructive      bool     // Requires an autonomy-gate verdict before executing
	ChangeSizeLimit  int      // Max bytes of proposed change; 0 means unlimited
}

// profiles is the static stage configuration table. Affinity lists may be
// overridden from setting.yaml; the rest is fixed.
var profiles = map[ID]Profile{
	StageDiscovery: {
		ID:   StageDiscovery,
		Role: "Survey the project layout, entry points, and conventions. Produce a concise map of what exists; change nothing.",
		PreferredModules: []string{"project-layout", "conventions"},
	},
	StagePlanning: {
		ID:   StagePlanning,
		Role: "Produce an ordered change plan with the smallest viable scope. Name the files to touch and the checks that prove success.",
		PreferredModules: []string{"planning", "architecture"},
	},
	StageImplementation: {
		ID:          StageImplementation,
		Role:        "Implement the planned change. Follow existing conventions; keep the diff minimal and self-contained.",
		Destructive: true,
		PreferredModules: []string{"codegen", "conventions"},
	},
	StageRecovery: {
		ID:              StageRecovery,
		Role:            "Diagnose and repair the reported defect with the narrowest change that fixes it. Do not restructure surrounding code.",
		Destructive:     true,
		ChangeSizeLimit: 8 * 1024,
		PreferredModules: []string{"debugging", "testing"},
	},
	StageVerification: {
		ID:   StageVerification,
		Role: "Run the project's build and tests against the change. Report every failure verbatim; do not fix anything here.",
		PreferredModules: []string{"testing"},
	},
	StageReview: {
		ID:   StageReview,
		Role: "Review the change for correctness, convention fit, and missed edge cases. Report findings; change nothing.",
		PreferredModules: []string{"review", "conventions"},
	},
	StageRelease: {
		ID:          StageRelease,
		Role:        "Prepare and execute the release steps. Every action here is hard to reverse; stop on any ambiguity.",
		Destructive: true,
		PreferredModules: []string{"release"},
	},
	StageClarify: {
		ID:   StageClarify,
		Role: "The request could not be routed. Ask the operator targeted questions that would make it routable.",
		PreferredModules: nil,
	},
}

// GetProfile returns the configuration record for a stage id
func GetProfile(id ID) (Profile, error) {
	p, ok := profiles[id]
	if !ok {
		return Profile{}, fmt.Errorf("unknown stage: %s", id)
	}
	return p, nil
}

// MustProfile returns the profile for a known stage id; it panics on an
// unknown id and is intended for the static template table below.
func MustProfile(id ID) Profile {
	p, err := GetProfile(id)
	if err != nil {
		panic(err)
	}
	return p
}

// SetPreferredModules overrides the affinity list for a stage. Only the
// affinity list is overridable; role text and the destructive flag are not.
func SetPreferredModules(id ID, modules []string) error {
	p, ok := profiles[id]
	if !ok {
		return fmt.Errorf("unknown stage: %s", id)
	}
	p.PreferredModules = modules
	profiles[id] = p
	return nil
}

// templates maps each task category to its canonical ordered stage sequence.
var templates = map[task.Category][]ID{
	task.CategoryBuild:    {StagePlanning, StageImplementation, StageVerification, StageReview},
	task.CategoryFix:      {StageRecovery, StageVerification},
	task.CategoryRefactor: {StagePlanning, StageImplementation, StageReview},
	task.CategoryReview:   {StageReview},
	task.CategoryDeploy:   {StageVerification, StageRelease},
	task.CategoryClarify:  {StageClarify},
}

// Template returns a copy of the canonical pipeline for a category.
// Unknown categories get the clarify pipeline; the result is never empty.
func Template(c task.Category) []ID {
	t, ok := templates[c]
	if !ok {
		t = templates[task.CategoryClarify]
	}
	out := make([]ID, len(t))
	copy(out, t)
	return out
}
