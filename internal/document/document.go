// Package document parses chain-of-thought transcripts into an addressable
// structural model: metadata header, problem prompt, numbered reasoning
// chains with numbered thoughts, and a trailing response block.
package document

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
)

var (
	// Metadata header: **Key:** value
	metadataPattern = regexp.MustCompile(`^\*\*([A-Za-z][A-Za-z ]*?):\*\*\s*(.*)$`)
	// Role markers
	promptPattern    = regexp.MustCompile(`^\*\*\[Prompt\]\*\*`)
	assistantPattern = regexp.MustCompile(`^\*\*\[Assistant\]\*\*`)
	responsePattern  = regexp.MustCompile(`^\*\*\[Response\]\*\*`)
	// Chain and thought markers: **[CHAIN_01]**, **[THOUGHT_01_02]** text
	chainPattern   = regexp.MustCompile(`^\*\*\[CHAIN_(\d+)\]\*\*\s*$`)
	thoughtPattern = regexp.MustCompile(`^\*\*\[THOUGHT_(\d+)_(\d+)\]\*\*\s*(.*)$`)
)

// Recognized metadata keys. Absence of any individual key is not a parse
// failure; specific reviews decide whether a missing key matters.
const (
	KeyCategory    = "Category"
	KeyTopic       = "Topic"
	KeySubtopic    = "Subtopic"
	KeyDifficulty  = "Difficulty"
	KeyLanguages   = "Languages"
	KeyApproaches  = "Number of Approaches"
	KeyChains      = "Number of Chains"
	KeyGitHubURL   = "GitHub URL"
	KeyTimeLimit   = "Time Limit"
	KeyMemoryLimit = "Memory Limit"
)

// Model is the parsed form of one transcript. It is built once by Parse and
// never mutated afterwards.
type Model struct {
	FilePath   string
	DocumentID string
	Raw        string
	Metadata   Metadata
	Prompt     string
	Chains     []Chain
	Response   string
	Issues     []Issue
}

// Metadata holds the header fields plus the decoded subtopic list.
type Metadata struct {
	Fields    map[string]string
	Subtopics []string
}

// Get returns the raw value for a metadata key, or "" when absent.
func (m Metadata) Get(key string) string { return m.Fields[key] }

// Has reports whether the key appeared in the header.
func (m Metadata) Has(key string) bool {
	_, ok := m.Fields[key]
	return ok
}

// RepositoryURL returns the linked repository URL, or "" when absent.
func (m Metadata) RepositoryURL() string { return m.Fields[KeyGitHubURL] }

// DeclaredChains returns the chain count announced in the header.
func (m Metadata) DeclaredChains() (int, bool) {
	v, ok := m.Fields[KeyChains]
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

// MemoryLimitMB returns the declared memory limit in megabytes.
func (m Metadata) MemoryLimitMB() (float64, bool) {
	v, ok := m.Fields[KeyMemoryLimit]
	if !ok {
		return 0, false
	}
	return parseMemoryValue(v)
}

func parseMemoryValue(v string) (float64, bool) {
	fields := strings.Fields(strings.TrimSpace(v))
	if len(fields) == 0 {
		return 0, false
	}
	n, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return 0, false
	}
	if len(fields) > 1 {
		switch strings.ToUpper(strings.TrimSuffix(fields[1], ".")) {
		case "GB", "GIB":
			n *= 1024
		case "KB", "KIB":
			n /= 1024
		}
	}
	return n, true
}

// Chain is a numbered top-level reasoning segment.
type Chain struct {
	Index    int
	Intro    string
	Thoughts []Thought
}

// Thought is the finest addressable unit within a chain.
type Thought struct {
	ChainIndex   int
	ThoughtIndex int
	Text         string
}

// Issue records a non-fatal structural anomaly found during parsing.
// Chain/Thought are zero when the anomaly has no location.
type Issue struct {
	Message string
	Chain   int
	Thought int
}

// ParseError indicates the document has no recoverable structure at all.
type ParseError struct {
	Reason string
}

func (e *ParseError) Error() string { return "document: " + e.Reason }

// Load reads a transcript file, computes its identity hash, and parses it.
func Load(path string) (*Model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("document.Load: %w", err)
	}
	m, err := Parse(string(data))
	if err != nil {
		return nil, err
	}
	m.FilePath = path
	return m, nil
}

// Parse builds a Model from raw transcript text. It fails only when no
// metadata header or no assistant marker can be located; every other
// anomaly degrades to an Issue on the model.
func Parse(raw string) (*Model, error) {
	h := sha256.Sum256([]byte(raw))
	m := &Model{
		DocumentID: fmt.Sprintf("%x", h),
		Raw:        raw,
		Metadata:   Metadata{Fields: map[string]string{}},
	}

	lines := strings.Split(raw, "\n")

	assistantIdx := -1
	promptIdx := -1
	metaEnd := 0
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if assistantPattern.MatchString(trimmed) {
			assistantIdx = i
			break
		}
		if promptPattern.MatchString(trimmed) {
			if promptIdx < 0 {
				promptIdx = i
			}
			continue
		}
		if promptIdx >= 0 {
			continue
		}
		if match := metadataPattern.FindStringSubmatch(trimmed); match != nil {
			key := strings.TrimSpace(match[1])
			value := strings.TrimSpace(match[2])
			if key == KeySubtopic {
				m.Metadata.Subtopics = parseSubtopics(value, m)
			}
			m.Metadata.Fields[key] = value
			metaEnd = i + 1
		}
	}

	if len(m.Metadata.Fields) == 0 {
		return nil, &ParseError{Reason: "no metadata header found"}
	}
	if assistantIdx < 0 {
		return nil, &ParseError{Reason: "no assistant section marker found"}
	}

	promptStart := metaEnd
	if promptIdx >= 0 {
		promptStart = promptIdx + 1
	}
	m.Prompt = strings.TrimSpace(strings.Join(lines[promptStart:assistantIdx], "\n"))

	parseAssistant(m, lines[assistantIdx+1:])

	if declared, ok := m.Metadata.DeclaredChains(); ok && declared != len(m.Chains) {
		m.Issues = append(m.Issues, Issue{
			Message: fmt.Sprintf("metadata declares %d chains, document has %d", declared, len(m.Chains)),
		})
	}

	return m, nil
}

func parseSubtopics(value string, m *Model) []string {
	if strings.HasPrefix(value, "[") {
		var list []string
		if err := json.Unmarshal([]byte(value), &list); err != nil {
			m.Issues = append(m.Issues, Issue{
				Message: fmt.Sprintf("malformed subtopic array %q: %v", value, err),
			})
			return splitSubtopics(strings.Trim(value, "[]"))
		}
		for i := range list {
			list[i] = strings.TrimSpace(list[i])
		}
		return list
	}
	return splitSubtopics(value)
}

func splitSubtopics(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		part = strings.Trim(strings.TrimSpace(part), `"'`)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

// parseAssistant walks the assistant region, building chains and thoughts
// and routing unmarked text to the enclosing structure.
func parseAssistant(m *Model, lines []string) {
	var (
		chain      *Chain
		thought    *Thought
		preamble   []string
		response   []string
		inResponse bool
	)

	flushChain := func() {
		if chain != nil {
			chain.Intro = strings.TrimSpace(chain.Intro)
			m.Chains = append(m.Chains, *chain)
		}
	}

	for _, line := range lines {
		trimmed := strings.TrimSpace(line)

		if match := chainPattern.FindStringSubmatch(trimmed); match != nil {
			n, _ := strconv.Atoi(match[1])
			if inResponse {
				m.Issues = append(m.Issues, Issue{
					Message: fmt.Sprintf("chain %d opened after the response marker", n),
					Chain:   n,
				})
				inResponse = false
			}
			expected := len(m.Chains) + 1
			if chain != nil {
				expected = chain.Index + 1
			}
			if n != expected {
				m.Issues = append(m.Issues, Issue{
					Message: fmt.Sprintf("chain %d out of sequence, expected %d", n, expected),
					Chain:   n,
				})
			}
			flushChain()
			chain = &Chain{Index: n}
			thought = nil
			continue
		}

		if match := thoughtPattern.FindStringSubmatch(trimmed); match != nil {
			cn, _ := strconv.Atoi(match[1])
			tn, _ := strconv.Atoi(match[2])
			rest := strings.TrimSpace(match[3])
			if chain == nil {
				m.Issues = append(m.Issues, Issue{
					Message: fmt.Sprintf("thought %d.%d appears before any chain", cn, tn),
					Chain:   cn,
					Thought: tn,
				})
				if rest != "" {
					preamble = append(preamble, rest)
				}
				continue
			}
			if cn != chain.Index {
				m.Issues = append(m.Issues, Issue{
					Message: fmt.Sprintf("thought %d.%d attached to chain %d", cn, tn, chain.Index),
					Chain:   cn,
					Thought: tn,
				})
			}
			if expected := len(chain.Thoughts) + 1; tn != expected {
				m.Issues = append(m.Issues, Issue{
					Message: fmt.Sprintf("thought numbering gap in chain %d: got %d, expected %d", chain.Index, tn, expected),
					Chain:   chain.Index,
					Thought: tn,
				})
			}
			chain.Thoughts = append(chain.Thoughts, Thought{
				ChainIndex:   chain.Index,
				ThoughtIndex: tn,
				Text:         rest,
			})
			thought = &chain.Thoughts[len(chain.Thoughts)-1]
			continue
		}

		if responsePattern.MatchString(trimmed) {
			flushChain()
			chain = nil
			thought = nil
			inResponse = true
			continue
		}

		switch {
		case inResponse:
			response = append(response, line)
		case thought != nil:
			if thought.Text == "" {
				thought.Text = line
			} else {
				thought.Text += "\n" + line
			}
		case chain != nil:
			if chain.Intro == "" {
				chain.Intro = line
			} else {
				chain.Intro += "\n" + line
			}
		default:
			preamble = append(preamble, line)
		}
	}
	flushChain()

	for i := range m.Chains {
		for j := range m.Chains[i].Thoughts {
			m.Chains[i].Thoughts[j].Text = strings.TrimSpace(m.Chains[i].Thoughts[j].Text)
		}
	}

	m.Response = strings.TrimSpace(strings.Join(response, "\n"))
	if m.Response == "" && len(m.Chains) == 0 {
		// No chain structure at all: the whole assistant region is the response.
		m.Response = strings.TrimSpace(strings.Join(preamble, "\n"))
	}
}
