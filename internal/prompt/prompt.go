// Package prompt builds reasoning requests from the slice of a parsed
// transcript relevant to each review.
package prompt

import (
	"fmt"
	"strings"

	"github.com/dshills/cotcritic/internal/catalog"
	"github.com/dshills/cotcritic/internal/document"
)

// instructions holds the per-review task statement. Reviews without an
// entry fall back to a generic instruction for their category.
var instructions = map[int]string{
	0:  "Check that all code in the solution follows a consistent, widely accepted style guide for its language.",
	1:  "Check that identifiers in the solution code use clear, consistent, conventional naming.",
	2:  "Check that the solution code carries adequate documentation comments for non-obvious functions and data structures.",
	3:  "Check that the response actually solves the stated problem rather than a similar or simplified one.",
	4:  "Check every mathematical equation and derivation in the response for correctness.",
	5:  "Check that constraints cited in the response match the constraints in the problem statement.",
	6:  "Check that no intermediate approach discussed in the reasoning is missing from the response's step-by-step presentation.",
	7:  "Check that every function, variable, and structure referenced in the response's prose exists in the presented code.",
	8:  "Check that the worked example walks through the optimal algorithm, not an earlier discarded approach.",
	9:  "Check the stated time and space complexity of each approach for correctness.",
	10: "Check that the conclusion summarizes the chosen approach and its trade-offs adequately.",
	11: "Check that the problem statement is internally consistent: input format, output format, constraints, and examples must agree.",
	12: "Check that the final solution plausibly fits the stated time and memory limits for the given constraint sizes.",
	13: "Check that the metadata header is correct and consistent with the document body, including the declared chain count.",
	14: "Check that the sample test cases satisfy the stated constraints and formats.",
	15: "Dry-run each sample test case against the described algorithm and check the expected outputs.",
	16: "Check that the note section explains how the examples map to the chosen approach.",
	17: "Check that the reasoning explains why each inefficient approach is inadequate before moving past it.",
	18: "Check that the final approach is properly discussed and justified in the reasoning before it appears in the response.",
	19: "Check that the reasoning chains contain no code blocks; reasoning must be prose, code belongs in the response.",
	20: "Check that the subtopic labels conform to the taxonomy.",
	21: "Check the response for typos, misspellings, and grammatical errors worth fixing.",
	22: "Check that every listed subtopic is actually relevant to the problem and its solution.",
	23: "Check whether any clearly relevant subtopic is missing from the subtopic list.",
	24: "Check that thoughts read as natural forward reasoning and do not begin with headings that predict their own conclusions.",
	25: "Review the reasoning chains as a whole for logical gaps, circularity, and unjustified leaps.",
}

var categoryFallback = map[catalog.Category]string{
	catalog.CategoryCodeQuality:      "Review the quality of the solution code.",
	catalog.CategoryResponseQuality:  "Review the quality of the response.",
	catalog.CategoryProblemStructure: "Review the structure of the problem presentation.",
	catalog.CategoryReasoning:        "Review the reasoning chains.",
	catalog.CategoryTaxonomy:         "Review the taxonomy labels.",
}

const verdictContract = `## Output

Respond with ONLY a JSON object, no prose outside it:

{"verdict": "pass" | "fail", "issues": [{"message": "...", "chain": N, "thought": M}]}

Report "fail" with one issue per finding. Include "chain" and "thought"
(1-based) only when a finding points at a specific thought. Report "pass"
with no issues when the document satisfies the check.
`

// Build assembles the reasoning request for one review against one document.
func Build(spec catalog.Spec, m *document.Model) string {
	var b strings.Builder

	// 1. Task statement
	fmt.Fprintf(&b, "You are a transcript reviewer for competitive-programming problems.\n\nReview: %s\n\n", spec.Name)
	inst, ok := instructions[spec.ID]
	if !ok {
		inst = categoryFallback[spec.Category]
	}
	b.WriteString(inst)
	b.WriteString("\n\n")

	// 2. Document slice for the review's category
	switch spec.Category {
	case catalog.CategoryProblemStructure:
		writeMetadata(&b, m)
		writePrompt(&b, m)
		writeStructuralIssues(&b, m)
		if spec.ID == 15 || spec.ID == 14 {
			writeResponse(&b, m)
		}
	case catalog.CategoryTaxonomy:
		writeMetadata(&b, m)
		writePrompt(&b, m)
	case catalog.CategoryReasoning:
		writePrompt(&b, m)
		writeChains(&b, m)
	default: // CodeQuality, ResponseQuality
		writePrompt(&b, m)
		writeResponse(&b, m)
	}

	// 3. Verdict contract
	b.WriteString(verdictContract)

	return b.String()
}

func writeMetadata(b *strings.Builder, m *document.Model) {
	b.WriteString("<metadata>\n")
	for _, key := range []string{
		document.KeyCategory, document.KeyTopic, document.KeySubtopic,
		document.KeyDifficulty, document.KeyLanguages, document.KeyApproaches,
		document.KeyChains, document.KeyGitHubURL, document.KeyTimeLimit,
		document.KeyMemoryLimit,
	} {
		if m.Metadata.Has(key) {
			fmt.Fprintf(b, "%s: %s\n", key, m.Metadata.Get(key))
		}
	}
	if len(m.Metadata.Subtopics) > 0 {
		fmt.Fprintf(b, "Parsed subtopics: %s\n", strings.Join(m.Metadata.Subtopics, ", "))
	}
	fmt.Fprintf(b, "Parsed chain count: %d\n", len(m.Chains))
	b.WriteString("</metadata>\n\n")
}

func writePrompt(b *strings.Builder, m *document.Model) {
	fmt.Fprintf(b, "<problem_statement>\n%s\n</problem_statement>\n\n", m.Prompt)
}

func writeChains(b *strings.Builder, m *document.Model) {
	b.WriteString("<reasoning>\n")
	for _, c := range m.Chains {
		fmt.Fprintf(b, "## Chain %d\n", c.Index)
		if c.Intro != "" {
			b.WriteString(c.Intro)
			b.WriteString("\n")
		}
		for _, th := range c.Thoughts {
			fmt.Fprintf(b, "### Thought %d.%d\n%s\n", th.ChainIndex, th.ThoughtIndex, th.Text)
		}
	}
	b.WriteString("</reasoning>\n\n")
}

func writeResponse(b *strings.Builder, m *document.Model) {
	fmt.Fprintf(b, "<response>\n%s\n</response>\n\n", m.Response)
}

func writeStructuralIssues(b *strings.Builder, m *document.Model) {
	if len(m.Issues) == 0 {
		return
	}
	b.WriteString("<parser_findings>\n")
	for _, iss := range m.Issues {
		b.WriteString(iss.Message)
		b.WriteString("\n")
	}
	b.WriteString("</parser_findings>\n\n")
}
