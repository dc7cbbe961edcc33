// Package redact strips credential-looking strings from a transcript
// before it is sent to the reasoning service.
package redact

import (
	"regexp"

	"github.com/dshills/cotcritic/internal/document"
)

const placeholder = "[REDACTED]"

var patterns []*regexp.Regexp

func init() {
	raw := []string{
		// GitHub tokens (classic and fine-grained)
		`gh[pousr]_[A-Za-z0-9]{36,}`,
		`github_pat_[A-Za-z0-9_]{22,}`,
		// Anthropic and OpenAI API keys
		`sk-ant-[A-Za-z0-9\-_]{20,}`,
		`sk-[A-Za-z0-9]{20,}`,
		// AWS access key IDs
		`AKIA[0-9A-Z]{16}`,
		// Private key blocks
		`-----BEGIN [A-Z ]+PRIVATE KEY-----[\s\S]*?-----END [A-Z ]+PRIVATE KEY-----`,
		// Bearer tokens
		`Bearer\s+[A-Za-z0-9\-._~+/]+=*`,
		// Generic key/secret/token/password assignments
		`(?i)(api[_-]?key|api[_-]?secret|secret[_-]?key|token|password|passwd|credentials)\s*[:=]\s*\S+`,
	}
	for _, r := range raw {
		patterns = append(patterns, regexp.MustCompile(r))
	}
}

// Redact replaces secret patterns in text with [REDACTED].
func Redact(text string) string {
	for _, p := range patterns {
		text = p.ReplaceAllString(text, placeholder)
	}
	return text
}

// Document scrubs every field that can reach a prompt. Raw is left alone
// so repository consistency checks still compare the original text.
func Document(m *document.Model) {
	m.Prompt = Redact(m.Prompt)
	m.Response = Redact(m.Response)
	for i := range m.Chains {
		m.Chains[i].Intro = Redact(m.Chains[i].Intro)
		for j := range m.Chains[i].Thoughts {
			m.Chains[i].Thoughts[j].Text = Redact(m.Chains[i].Thoughts[j].Text)
		}
	}
}
