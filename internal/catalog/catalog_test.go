package catalog

import "testing"

func TestIDsStableAndUnique(t *testing.T) {
	seen := map[int]bool{}
	names := map[string]bool{}
	prev := -1
	for _, s := range All() {
		if seen[s.ID] {
			t.Errorf("duplicate id %d", s.ID)
		}
		seen[s.ID] = true
		if s.ID <= prev {
			t.Errorf("id %d not ascending after %d", s.ID, prev)
		}
		prev = s.ID
		if names[s.Name] {
			t.Errorf("duplicate name %q", s.Name)
		}
		names[s.Name] = true
		if !s.Category.Valid() {
			t.Errorf("spec %d has invalid category %q", s.ID, s.Category)
		}
	}
}

func TestRepositorySpecsRouted(t *testing.T) {
	for _, s := range All() {
		wantRepo := s.Category == CategoryRepository
		if s.RequiresRepository != wantRepo {
			t.Errorf("spec %d %q: RequiresRepository = %v", s.ID, s.Name, s.RequiresRepository)
		}
	}
}

func TestResolveCurrentName(t *testing.T) {
	s, err := Resolve("Metadata Correctness")
	if err != nil {
		t.Fatal(err)
	}
	if s.ID != 13 {
		t.Errorf("id = %d, want 13", s.ID)
	}
}

func TestResolveAliases(t *testing.T) {
	tests := []struct {
		alias string
		id    int
	}{
		{"Doxygen Documentation", 2},
		{"No Predictive Headings in Thoughts", 24},
		{"Overall.md Format Validation", IDSummaryFormat},
		{"Memory Limit vs Maximum Usage Check", IDMemoryHeadroom},
	}
	for _, tt := range tests {
		t.Run(tt.alias, func(t *testing.T) {
			s, err := Resolve(tt.alias)
			if err != nil {
				t.Fatal(err)
			}
			if s.ID != tt.id {
				t.Errorf("id = %d, want %d", s.ID, tt.id)
			}
		})
	}
}

func TestResolveUnknown(t *testing.T) {
	if _, err := Resolve("Does Not Exist"); err == nil {
		t.Error("expected error for unknown name")
	}
}

func TestResolveTrimsWhitespace(t *testing.T) {
	s, err := Resolve("  Conclusion Quality  ")
	if err != nil {
		t.Fatal(err)
	}
	if s.ID != 10 {
		t.Errorf("id = %d, want 10", s.ID)
	}
}

func TestDeprecatedKeepsIDAndResolves(t *testing.T) {
	s, err := Resolve("Subtopic Taxonomy Validation")
	if err != nil {
		t.Fatal(err)
	}
	if !s.Deprecated || s.ID != 20 {
		t.Errorf("deprecated spec = %+v", s)
	}
}

func TestNextID(t *testing.T) {
	if NextID() != MaxID()+1 {
		t.Error("NextID must be one past MaxID")
	}
	if _, ok := ByID(NextID()); ok {
		t.Error("NextID must not be an allocated id")
	}
}
