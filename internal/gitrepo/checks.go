package gitrepo

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/dshills/cotcritic/internal/document"
)

const memoryHeadroomFactor = 1.5

var (
	horizontalRulePattern = regexp.MustCompile(`^\s*(-{3,}|\*{3,}|_{3,})\s*$`)
	tableRowPattern       = regexp.MustCompile(`^\s*\|.*\|\s*$`)
	memoryCellPattern     = regexp.MustCompile(`([0-9]+(?:\.[0-9]+)?)\s*M(?:i)?B`)
)

// checkSetup verifies the fixed top-level layout of the repository.
func (v *Validator) checkSetup(dir string) Result {
	var issues []string
	for _, name := range []string{"problem_statement.md", "solution.md"} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			issues = append(issues, fmt.Sprintf("missing %s at repository root", name))
		}
	}
	if info, err := os.Stat(filepath.Join(dir, "runs")); err != nil || !info.IsDir() {
		issues = append(issues, "missing runs/ directory")
	}
	if findSummaryFile(dir) == "" {
		issues = append(issues, "missing summary file overall.md")
	}
	return Result{Key: KeySetup, Passed: len(issues) == 0, Issues: issues}
}

// checkRunArtifacts verifies that run output directories hold solution
// sources (.cpp or .py).
func (v *Validator) checkRunArtifacts(dir string) Result {
	runsDir := filepath.Join(dir, "runs")
	entries, err := os.ReadDir(runsDir)
	if err != nil {
		return Result{Key: KeyArtifacts, Issues: []string{"runs/ directory unreadable"}}
	}

	var issues []string
	if v.referenceModel != "" {
		modelDir := filepath.Join(runsDir, v.referenceModel)
		if !dirHasSource(modelDir) {
			issues = append(issues, fmt.Sprintf("runs/%s/ has no .cpp or .py artifacts", v.referenceModel))
		}
	} else {
		found := false
		for _, e := range entries {
			if e.IsDir() && dirHasSource(filepath.Join(runsDir, e.Name())) {
				found = true
				break
			}
		}
		if !found {
			issues = append(issues, "no runs/<model>/ directory contains .cpp or .py artifacts")
		}
	}
	return Result{Key: KeyArtifacts, Passed: len(issues) == 0, Issues: issues}
}

// checkSummaryFormat verifies overall.md exists and carries a results table
// with time and memory columns.
func (v *Validator) checkSummaryFormat(dir string) Result {
	path := findSummaryFile(dir)
	if path == "" {
		return Result{Key: KeySummary, Issues: []string{"overall.md not found"}}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Result{Key: KeySummary, Issues: []string{fmt.Sprintf("overall.md unreadable: %v", err)}}
	}
	content := string(data)

	var issues []string
	header, rows := summaryTable(content)
	if header == "" {
		issues = append(issues, "overall.md has no results table")
	} else {
		lower := strings.ToLower(header)
		if !strings.Contains(lower, "time") {
			issues = append(issues, "results table has no time column")
		}
		if !strings.Contains(lower, "memory") {
			issues = append(issues, "results table has no memory column")
		}
		if rows == 0 {
			issues = append(issues, "results table has no data rows")
		}
	}
	if v.referenceModel != "" && !strings.Contains(content, v.referenceModel) {
		issues = append(issues, fmt.Sprintf("overall.md does not mention model %q", v.referenceModel))
	}
	return Result{Key: KeySummary, Passed: len(issues) == 0, Issues: issues}
}

// checkSolutionConsistency compares solution.md against the document body
// starting at the first chain marker, ignoring blank lines, horizontal
// rules, and COT markers. It also rejects horizontal rules in solution.md.
func (v *Validator) checkSolutionConsistency(dir string, doc *document.Model) Result {
	data, err := os.ReadFile(filepath.Join(dir, "solution.md"))
	if err != nil {
		return Result{Key: KeySolution, Issues: []string{"solution.md unreadable"}}
	}
	solution := string(data)

	var issues []string
	for i, line := range strings.Split(solution, "\n") {
		if horizontalRulePattern.MatchString(line) {
			issues = append(issues, fmt.Sprintf("solution.md contains a horizontal rule at line %d", i+1))
		}
	}

	idx := strings.Index(doc.Raw, "**[CHAIN_01]**")
	if idx < 0 {
		issues = append(issues, "document has no **[CHAIN_01]** marker to compare against")
	} else if diff := firstDivergence(normalizeLines(solution), normalizeLines(doc.Raw[idx:])); diff != "" {
		issues = append(issues, "solution.md diverges from document: "+diff)
	}
	return Result{Key: KeySolution, Passed: len(issues) == 0, Issues: issues}
}

// checkStatementConsistency compares problem_statement.md against the
// document's prompt section.
func (v *Validator) checkStatementConsistency(dir string, doc *document.Model) Result {
	data, err := os.ReadFile(filepath.Join(dir, "problem_statement.md"))
	if err != nil {
		return Result{Key: KeyStatement, Issues: []string{"problem_statement.md unreadable"}}
	}
	if diff := firstDivergence(normalizeLines(string(data)), normalizeLines(doc.Prompt)); diff != "" {
		return Result{Key: KeyStatement, Issues: []string{"problem_statement.md diverges from document prompt: " + diff}}
	}
	return Result{Key: KeyStatement, Passed: true}
}

// checkMemoryHeadroom requires the declared memory limit to exceed the
// maximum observed usage in the summary table by a safety factor.
func (v *Validator) checkMemoryHeadroom(dir string, doc *document.Model) Result {
	limit, ok := doc.Metadata.MemoryLimitMB()
	if !ok {
		limit, ok = memoryLimitFromPrompt(doc.Prompt)
	}
	if !ok {
		return Result{Key: KeyMemory, Issues: []string{"no memory limit found in metadata or prompt"}}
	}

	path := findSummaryFile(dir)
	if path == "" {
		return Result{Key: KeyMemory, Issues: []string{"overall.md not found"}}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Result{Key: KeyMemory, Issues: []string{"overall.md unreadable"}}
	}

	maxUsage, found := maxMemoryUsage(string(data))
	if !found {
		return Result{Key: KeyMemory, Issues: []string{"overall.md reports no memory usage figures"}}
	}
	if limit < memoryHeadroomFactor*maxUsage {
		return Result{Key: KeyMemory, Issues: []string{fmt.Sprintf(
			"memory limit %.0f MB is below %.1fx the maximum observed usage %.1f MB",
			limit, memoryHeadroomFactor, maxUsage)}}
	}
	return Result{Key: KeyMemory, Passed: true}
}

// findSummaryFile walks the tree for overall.md (case-insensitive) and
// returns the lexicographically last match.
func findSummaryFile(dir string) string {
	var matches []string
	filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if d.Name() == ".git" {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.EqualFold(d.Name(), "overall.md") {
			matches = append(matches, path)
		}
		return nil
	})
	if len(matches) == 0 {
		return ""
	}
	sort.Strings(matches)
	return matches[len(matches)-1]
}

func dirHasSource(dir string) bool {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return false
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch filepath.Ext(e.Name()) {
		case ".cpp", ".py":
			return true
		}
	}
	return false
}

// summaryTable returns the first table's header line and its data row count.
func summaryTable(content string) (header string, rows int) {
	lines := strings.Split(content, "\n")
	for i, line := range lines {
		if !tableRowPattern.MatchString(line) {
			continue
		}
		header = line
		for j := i + 1; j < len(lines) && tableRowPattern.MatchString(lines[j]); j++ {
			if strings.Contains(lines[j], "---") {
				continue // separator row
			}
			rows++
		}
		return header, rows
	}
	return "", 0
}

// maxMemoryUsage scans table rows for "N MB" cells and returns the maximum.
func maxMemoryUsage(content string) (float64, bool) {
	var max float64
	found := false
	for _, line := range strings.Split(content, "\n") {
		if !tableRowPattern.MatchString(line) {
			continue
		}
		for _, m := range memoryCellPattern.FindAllStringSubmatch(line, -1) {
			n, err := strconv.ParseFloat(m[1], 64)
			if err != nil {
				continue
			}
			found = true
			if n > max {
				max = n
			}
		}
	}
	return max, found
}

var promptMemoryPattern = regexp.MustCompile(`(?i)memory\s*limit:?\s*\**\s*([0-9]+(?:\.[0-9]+)?)\s*([MG]i?B)`)

func memoryLimitFromPrompt(prompt string) (float64, bool) {
	m := promptMemoryPattern.FindStringSubmatch(prompt)
	if m == nil {
		return 0, false
	}
	n, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, false
	}
	if strings.EqualFold(m[2][:1], "G") {
		n *= 1024
	}
	return n, true
}

// normalizeLines drops blank lines, horizontal rules, and COT markers, and
// trims trailing whitespace, leaving only lines that must match exactly.
func normalizeLines(s string) []string {
	var out []string
	for _, line := range strings.Split(s, "\n") {
		trimmed := strings.TrimRight(line, " \t")
		switch {
		case strings.TrimSpace(trimmed) == "":
		case horizontalRulePattern.MatchString(trimmed):
		case strings.TrimSpace(trimmed) == "**[COT]**":
		default:
			out = append(out, trimmed)
		}
	}
	return out
}

// firstDivergence returns a description of the first mismatch between two
// normalized line sequences, or "" when they are identical.
func firstDivergence(got, want []string) string {
	n := len(got)
	if len(want) < n {
		n = len(want)
	}
	for i := 0; i < n; i++ {
		if got[i] != want[i] {
			return fmt.Sprintf("line %d: %q vs %q", i+1, truncateLine(got[i]), truncateLine(want[i]))
		}
	}
	if len(got) != len(want) {
		return fmt.Sprintf("length mismatch: %d lines vs %d lines", len(got), len(want))
	}
	return ""
}

func truncateLine(s string) string {
	runes := []rune(s)
	if len(runes) > 80 {
		return string(runes[:77]) + "..."
	}
	return s
}
