package prompt

import (
	"strings"
	"testing"

	"github.com/dshills/cotcritic/internal/catalog"
	"github.com/dshills/cotcritic/internal/document"
)

func testModel(t *testing.T) *document.Model {
	t.Helper()
	m, err := document.Parse(`**Category:** Coding
**Subtopic:** ["Graphs"]
**Number of Chains:** 1

**[Prompt]**
Find the shortest path.

**[Assistant]**
**[CHAIN_01]**
**[THOUGHT_01_01]** Consider Dijkstra first.

**[Response]**
Final answer with code.
`)
	if err != nil {
		t.Fatal(err)
	}
	return m
}

func mustSpec(t *testing.T, id int) catalog.Spec {
	t.Helper()
	s, ok := catalog.ByID(id)
	if !ok {
		t.Fatalf("no spec %d", id)
	}
	return s
}

func TestBuildIncludesReviewName(t *testing.T) {
	m := testModel(t)
	for _, s := range catalog.All() {
		if s.RequiresRepository {
			continue
		}
		p := Build(s, m)
		if !strings.Contains(p, "Review: "+s.Name) {
			t.Errorf("spec %d prompt missing its name", s.ID)
		}
		if !strings.Contains(p, `"verdict"`) {
			t.Errorf("spec %d prompt missing verdict contract", s.ID)
		}
	}
}

func TestBuildReasoningSliceHasChains(t *testing.T) {
	p := Build(mustSpec(t, 19), testModel(t))
	if !strings.Contains(p, "Consider Dijkstra first.") {
		t.Error("reasoning prompt missing thought text")
	}
	if !strings.Contains(p, "Thought 1.1") {
		t.Error("reasoning prompt missing thought addressing")
	}
	if strings.Contains(p, "Final answer with code.") {
		t.Error("reasoning prompt should not carry the response block")
	}
}

func TestBuildResponseSliceHasResponse(t *testing.T) {
	p := Build(mustSpec(t, 10), testModel(t))
	if !strings.Contains(p, "Final answer with code.") {
		t.Error("response prompt missing response block")
	}
	if strings.Contains(p, "Consider Dijkstra first.") {
		t.Error("response prompt should not carry reasoning chains")
	}
}

func TestBuildStructureSliceHasMetadataAndFindings(t *testing.T) {
	m, err := document.Parse("**Category:** Coding\n**Number of Chains:** 5\n\n**[Assistant]**\n**[CHAIN_01]**\n**[THOUGHT_01_01]** a\n")
	if err != nil {
		t.Fatal(err)
	}
	p := Build(mustSpec(t, 13), m)
	if !strings.Contains(p, "Number of Chains: 5") {
		t.Error("metadata missing from prompt")
	}
	if !strings.Contains(p, "Parsed chain count: 1") {
		t.Error("parsed chain count missing from prompt")
	}
	if !strings.Contains(p, "declares 5 chains") {
		t.Error("parser findings missing from prompt")
	}
}

func TestBuildTaxonomySliceHasSubtopics(t *testing.T) {
	p := Build(mustSpec(t, 22), testModel(t))
	if !strings.Contains(p, "Parsed subtopics: Graphs") {
		t.Error("taxonomy prompt missing subtopics")
	}
}
