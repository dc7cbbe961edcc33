// Package catalog is the static registry of review specs. Ids are stable
// across catalog revisions and never reused; renamed reviews keep their old
// display names resolvable through the alias table.
package catalog

import (
	"fmt"
	"sort"
	"strings"
)

// Category classifies what a review inspects.
type Category string

const (
	CategoryCodeQuality      Category = "CODE_QUALITY"
	CategoryResponseQuality  Category = "RESPONSE_QUALITY"
	CategoryProblemStructure Category = "PROBLEM_STRUCTURE"
	CategoryReasoning        Category = "REASONING"
	CategoryTaxonomy         Category = "TAXONOMY"
	CategoryRepository       Category = "REPOSITORY_INTEGRATION"
)

func (c Category) Valid() bool {
	switch c {
	case CategoryCodeQuality, CategoryResponseQuality, CategoryProblemStructure,
		CategoryReasoning, CategoryTaxonomy, CategoryRepository:
		return true
	}
	return false
}

// Categories returns all categories in report order.
func Categories() []Category {
	return []Category{
		CategoryCodeQuality,
		CategoryResponseQuality,
		CategoryProblemStructure,
		CategoryReasoning,
		CategoryTaxonomy,
		CategoryRepository,
	}
}

// Spec describes one review. RequiresRepository routes it to the repository
// validator instead of the reasoning service. Deprecated specs keep their
// id, are skipped in bulk modes, and stay runnable by name.
type Spec struct {
	ID                 int
	Name               string
	Category           Category
	RequiresRepository bool
	Deprecated         bool
}

// Ids of the repository-routed specs, used to map validator sub-check
// results back onto the catalog.
const (
	IDRepositorySetup      = 26
	IDRunArtifacts         = 27
	IDSummaryFormat        = 28
	IDSolutionConsistency  = 29
	IDStatementConsistency = 30
	IDMemoryHeadroom       = 31
)

var specs = []Spec{
	{ID: 0, Name: "Style Guide Compliance", Category: CategoryCodeQuality},
	{ID: 1, Name: "Naming Conventions", Category: CategoryCodeQuality},
	{ID: 2, Name: "Documentation Standards", Category: CategoryCodeQuality},
	{ID: 3, Name: "Response Relevance to Problem", Category: CategoryResponseQuality},
	{ID: 4, Name: "Mathematical Equations Correctness", Category: CategoryResponseQuality},
	{ID: 5, Name: "Problem Constraints Consistency", Category: CategoryResponseQuality},
	{ID: 6, Name: "Missing Approaches in Steps", Category: CategoryResponseQuality},
	{ID: 7, Name: "Code Elements Existence", Category: CategoryResponseQuality},
	{ID: 8, Name: "Example Walkthrough with Optimal Algorithm", Category: CategoryResponseQuality},
	{ID: 9, Name: "Time and Space Complexity Correctness", Category: CategoryResponseQuality},
	{ID: 10, Name: "Conclusion Quality", Category: CategoryResponseQuality},
	{ID: 11, Name: "Problem Statement Consistency", Category: CategoryProblemStructure},
	{ID: 12, Name: "Solution Passability According to Limits", Category: CategoryProblemStructure},
	{ID: 13, Name: "Metadata Correctness", Category: CategoryProblemStructure},
	{ID: 14, Name: "Test Case Validation", Category: CategoryProblemStructure},
	{ID: 15, Name: "Sample Test Case Dry Run Validation", Category: CategoryProblemStructure},
	{ID: 16, Name: "Note Section Explanation Approach", Category: CategoryProblemStructure},
	{ID: 17, Name: "Inefficient Approaches Limitations", Category: CategoryReasoning},
	{ID: 18, Name: "Final Approach Discussion", Category: CategoryReasoning},
	{ID: 19, Name: "No Code in Reasoning Chains", Category: CategoryReasoning},
	// Superseded by the split subtopic reviews (22, 23).
	{ID: 20, Name: "Subtopic Taxonomy Validation", Category: CategoryTaxonomy, Deprecated: true},
	{ID: 21, Name: "Typo and Spelling Check", Category: CategoryResponseQuality},
	{ID: 22, Name: "Subtopic Relevance", Category: CategoryTaxonomy},
	{ID: 23, Name: "Missing Relevant Subtopics", Category: CategoryTaxonomy},
	{ID: 24, Name: "Natural Thinking Flow in Thoughts", Category: CategoryReasoning},
	{ID: 25, Name: "Comprehensive Reasoning Review", Category: CategoryReasoning},
	{ID: IDRepositorySetup, Name: "Repository Setup", Category: CategoryRepository, RequiresRepository: true},
	{ID: IDRunArtifacts, Name: "Run Artifacts Check", Category: CategoryRepository, RequiresRepository: true},
	{ID: IDSummaryFormat, Name: "Summary Report Format", Category: CategoryRepository, RequiresRepository: true},
	{ID: IDSolutionConsistency, Name: "Solution Consistency", Category: CategoryRepository, RequiresRepository: true},
	{ID: IDStatementConsistency, Name: "Statement Consistency", Category: CategoryRepository, RequiresRepository: true},
	{ID: IDMemoryHeadroom, Name: "Memory Headroom", Category: CategoryRepository, RequiresRepository: true},
}

// aliases maps historical display names from earlier catalog revisions to
// stable ids.
var aliases = map[string]int{
	"Doxygen Documentation":                    2,
	"No Predictive Headings in Thoughts":       24,
	"Comprehensive Reasoning Thoughts Review":  25,
	"GitHub Repository Setup":                  IDRepositorySetup,
	"Hunyuan CPP Files Check":                  IDRunArtifacts,
	"Overall.md Format Validation":             IDSummaryFormat,
	"Solution.md Content Consistency":          IDSolutionConsistency,
	"Problem Statement.md Content Consistency": IDStatementConsistency,
	"Memory Limit vs Maximum Usage Check":      IDMemoryHeadroom,
}

var byID = func() map[int]Spec {
	m := make(map[int]Spec, len(specs))
	for _, s := range specs {
		m[s.ID] = s
	}
	return m
}()

// All returns every spec in catalog order (ascending id), deprecated
// entries included.
func All() []Spec {
	out := make([]Spec, len(specs))
	copy(out, specs)
	return out
}

// ByID looks up a spec by stable id.
func ByID(id int) (Spec, bool) {
	s, ok := byID[id]
	return s, ok
}

// MaxID returns the highest id in the catalog.
func MaxID() int {
	return specs[len(specs)-1].ID
}

// NextID is one past the highest id: the resume target meaning "run
// nothing, already complete".
func NextID() int {
	return MaxID() + 1
}

// Resolve maps a display name, current or historical, to its spec.
func Resolve(name string) (Spec, error) {
	trimmed := strings.TrimSpace(name)
	for _, s := range specs {
		if s.Name == trimmed {
			return s, nil
		}
	}
	if id, ok := aliases[trimmed]; ok {
		return byID[id], nil
	}
	return Spec{}, fmt.Errorf("catalog.Resolve: unknown review %q (see Names for the current list)", name)
}

// Names returns the current display names in catalog order.
func Names() []string {
	out := make([]string, 0, len(specs))
	for _, s := range specs {
		out = append(out, s.Name)
	}
	return out
}

func init() {
	if !sort.SliceIsSorted(specs, func(i, j int) bool { return specs[i].ID < specs[j].ID }) {
		panic("catalog: specs out of id order")
	}
	for name, id := range aliases {
		if _, ok := byID[id]; !ok {
			panic("catalog: alias " + name + " targets unknown id")
		}
	}
}
