package engine

import (
	"fmt"
	"path/filepath"
	"time"
)

// Status is the terminal outcome of one review.
type Status string

const (
	StatusPass    Status = "PASS"
	StatusFail    Status = "FAIL"
	StatusSkipped Status = "SKIPPED"
	StatusErrored Status = "ERRORED"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPass, StatusFail, StatusSkipped, StatusErrored:
		return true
	}
	return false
}

// Issue is one finding attached to a result. Chain/Thought are zero when
// the finding has no location.
type Issue struct {
	Message string `json:"message"`
	Chain   int    `json:"chain,omitempty"`
	Thought int    `json:"thought,omitempty"`
}

// Result records the outcome of one review spec.
type Result struct {
	SpecID    int       `json:"spec_id"`
	Status    Status    `json:"status"`
	Issues    []Issue   `json:"issues,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// RunState is the durable record of a run over one document. Results keep
// catalog order; NextPendingID is the lowest id not yet committed.
type RunState struct {
	RunID         string    `json:"run_id"`
	DocumentID    string    `json:"document_id"`
	Results       []Result  `json:"results"`
	NextPendingID int       `json:"next_pending_id"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Result returns the recorded result for a spec id.
func (rs *RunState) Result(specID int) (Result, bool) {
	for _, r := range rs.Results {
		if r.SpecID == specID {
			return r, true
		}
	}
	return Result{}, false
}

// SetResult replaces an existing result for the same spec id or appends a
// new one, preserving the existing order.
func (rs *RunState) SetResult(r Result) {
	for i := range rs.Results {
		if rs.Results[i].SpecID == r.SpecID {
			rs.Results[i] = r
			return
		}
	}
	rs.Results = append(rs.Results, r)
}

// Counts tallies results by status.
func (rs *RunState) Counts() map[Status]int {
	out := map[Status]int{}
	for _, r := range rs.Results {
		out[r.Status]++
	}
	return out
}

// Store persists RunStates as one JSON file per document under dir. Writes
// are atomic so a reader never observes a half-written state.
type Store struct {
	dir string
}

func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

func (s *Store) path(documentID string) string {
	return filepath.Join(s.dir, documentID+".json")
}

// Save durably writes the state, stamping UpdatedAt.
func (s *Store) Save(rs *RunState) error {
	rs.UpdatedAt = time.Now().UTC()
	if err := writeJSON(s.path(rs.DocumentID), rs); err != nil {
		return fmt.Errorf("engine.Store.Save: %w", err)
	}
	return nil
}

// Load reads the persisted state for a document. A missing file surfaces
// as the underlying fs.ErrNotExist.
func (s *Store) Load(documentID string) (*RunState, error) {
	var rs RunState
	if err := readJSON(s.path(documentID), &rs); err != nil {
		return nil, err
	}
	return &rs, nil
}
