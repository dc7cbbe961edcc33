// Package report aggregates run results into per-category counts and
// renders the text report.
package report

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/dshills/cotcritic/internal/catalog"
	"github.com/dshills/cotcritic/internal/engine"
)

// Counts tallies results by status.
type Counts struct {
	Pass    int
	Fail    int
	Skipped int
	Errored int
}

func (c Counts) Total() int { return c.Pass + c.Fail + c.Skipped + c.Errored }

func (c *Counts) add(s engine.Status) {
	switch s {
	case engine.StatusPass:
		c.Pass++
	case engine.StatusFail:
		c.Fail++
	case engine.StatusSkipped:
		c.Skipped++
	case engine.StatusErrored:
		c.Errored++
	}
}

// Entry pairs a catalog spec with its recorded result.
type Entry struct {
	Spec   catalog.Spec
	Result engine.Result
}

// Report is the aggregated view of one run. Entries are in catalog-id
// order; issues keep their reported order.
type Report struct {
	DocumentID string
	RunID      string
	Overall    Counts
	ByCategory map[catalog.Category]Counts
	Entries    []Entry
}

// Aggregate builds a report from the run state. It is pure: aggregating
// the same state twice yields identical reports.
func Aggregate(rs *engine.RunState) *Report {
	r := &Report{
		DocumentID: rs.DocumentID,
		RunID:      rs.RunID,
		ByCategory: make(map[catalog.Category]Counts),
	}
	for _, spec := range catalog.All() {
		res, ok := rs.Result(spec.ID)
		if !ok {
			continue
		}
		r.Overall.add(res.Status)
		c := r.ByCategory[spec.Category]
		c.add(res.Status)
		r.ByCategory[spec.Category] = c
		r.Entries = append(r.Entries, Entry{Spec: spec, Result: res})
	}
	return r
}

// Render produces the text report. Output is byte-stable for a given
// report.
func Render(r *Report) string {
	var b strings.Builder

	b.WriteString("Chain-of-Thought Review Report\n")
	b.WriteString("==============================\n\n")
	fmt.Fprintf(&b, "Document: %s\n", r.DocumentID)
	fmt.Fprintf(&b, "Run:      %s\n\n", r.RunID)

	fmt.Fprintf(&b, "Overall: %s (%d reviews)\n\n", countsLine(r.Overall), r.Overall.Total())

	b.WriteString("By category:\n")
	for _, cat := range catalog.Categories() {
		c, ok := r.ByCategory[cat]
		if !ok {
			continue
		}
		fmt.Fprintf(&b, "  %-24s %s\n", cat, countsLine(c))
	}
	b.WriteString("\n")

	b.WriteString("Details\n")
	b.WriteString("-------\n\n")
	for _, e := range r.Entries {
		fmt.Fprintf(&b, "[%2d] %-8s %s\n", e.Spec.ID, e.Result.Status, e.Spec.Name)
		for _, iss := range e.Result.Issues {
			b.WriteString("       - " + iss.Message)
			if iss.Chain > 0 {
				if iss.Thought > 0 {
					fmt.Fprintf(&b, " (chain %d, thought %d)", iss.Chain, iss.Thought)
				} else {
					fmt.Fprintf(&b, " (chain %d)", iss.Chain)
				}
			}
			b.WriteString("\n")
		}
	}

	return b.String()
}

func countsLine(c Counts) string {
	return fmt.Sprintf("%d pass, %d fail, %d skipped, %d errored",
		c.Pass, c.Fail, c.Skipped, c.Errored)
}

// Filename is the default report path for a document within dir.
func Filename(dir, documentID string) string {
	return filepath.Join(dir, documentID+"_report.txt")
}
