package task

import "strings"

// Category represents the classified kind of work a request asks for.
type Category string

const (
	CategoryBuild    Category = "build"    // Create or extend functionality
	CategoryFix      Category = "fix"      // Repair a defect
	CategoryRefactor Category = "refactor" // Restructure without behavior change
	CategoryReview   Category = "review"   // Inspect and report, no mutation
	CategoryDeploy   Category = "deploy"   // Release or publish
	CategoryClarify  Category = "clarify"  // Request too ambiguous to route
)

// String returns the string representation of the category
func (c Category) String() string {
	return string(c)
}

// IsValid returns true if the category is one of the known values
func (c Category) IsValid() bool {
	switch c {
	case CategoryBuild, CategoryFix, CategoryRefactor, CategoryReview, CategoryDeploy, CategoryClarify:
		return true
	default:
		return false
	}
}

// ParseCategory parses a string into a Category.
// Unknown values fall back to CategoryClarify so a persisted run with a
// corrupted category still loads into a routable state.
func ParseCategory(s string) Category {
	c := Category(strings.ToLower(strings.TrimSpace(s)))
	if c.IsValid() {
		return c
	}
	return CategoryClarify
}
