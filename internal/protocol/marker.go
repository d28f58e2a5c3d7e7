package protocol

import (
	"regexp"
	"strings"
)

const (
	// CommandMarker introduces a remote-store command in model output.
	CommandMarker = "DATABASE_OPERATION:"
	// DelegationPrefix introduces a hand-off marker such as DELEGATE_TO_SALES_AGENT:.
	DelegationPrefix = "DELEGATE_TO_"
)

// Extraction is the lexical split of a model reply around its first marker.
// Found is false when no marker is present; Prefix then holds the whole text.
type Extraction struct {
	Prefix  string
	Payload string
	Suffix  string
	Found   bool
}

// DelegationExtraction adds the role token named by the marker, e.g. SALES_AGENT.
type DelegationExtraction struct {
	Extraction
	Target string
}

// Extract isolates the first DATABASE_OPERATION: command. The payload runs
// to the first line break after the marker; the remainder lands in Suffix
// and is not executed.
func Extract(text string) Extraction {
	idx := strings.Index(text, CommandMarker)
	if idx < 0 {
		return Extraction{Prefix: text}
	}
	payload, suffix := splitLine(text[idx+len(CommandMarker):])
	return Extraction{
		Prefix:  text[:idx],
		Payload: payload,
		Suffix:  suffix,
		Found:   true,
	}
}

// DelegationMatcher recognises DELEGATE_TO_<TOKEN>: markers for a fixed set
// of role tokens. Markers naming any other token are left as plain text.
type DelegationMatcher struct {
	pattern *regexp.Regexp
}

// NewDelegationMatcher builds a matcher for tokens such as SALES_AGENT.
// With no tokens nothing matches.
func NewDelegationMatcher(tokens ...string) *DelegationMatcher {
	if len(tokens) == 0 {
		return &DelegationMatcher{}
	}
	quoted := make([]string, len(tokens))
	for i, t := range tokens {
		quoted[i] = regexp.QuoteMeta(t)
	}
	return &DelegationMatcher{
		pattern: regexp.MustCompile(regexp.QuoteMeta(DelegationPrefix) + `(` + strings.Join(quoted, "|") + `):`),
	}
}

// Extract isolates the first known delegation marker with the same
// splitting rules as Extract.
func (m *DelegationMatcher) Extract(text string) DelegationExtraction {
	if m.pattern == nil {
		return DelegationExtraction{Extraction: Extraction{Prefix: text}}
	}
	loc := m.pattern.FindStringSubmatchIndex(text)
	if loc == nil {
		return DelegationExtraction{Extraction: Extraction{Prefix: text}}
	}
	payload, suffix := splitLine(text[loc[1]:])
	return DelegationExtraction{
		Extraction: Extraction{
			Prefix:  text[:loc[0]],
			Payload: payload,
			Suffix:  suffix,
			Found:   true,
		},
		Target: text[loc[2]:loc[3]],
	}
}

func splitLine(rest string) (string, string) {
	line, suffix, _ := strings.Cut(rest, "\n")
	return strings.TrimSpace(strings.TrimSuffix(line, "\r")), suffix
}
