// Package sizegroup assigns variant titles to canonical garment-size buckets
// by word-boundary matching against a sorted size vocabulary.
package sizegroup

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/storefrontlab/catalog-crawler/internal/catalog"
)

// Matcher matches variant titles against the size vocabulary. Labels are
// tried longest first so "XX-Large" wins before "Large" can match inside it.
// Build once per job run; safe for concurrent use.
type Matcher struct {
	groups    []group
	unknownID int64
}

type group struct {
	id      int64
	label   string
	pattern *regexp.Regexp
}

// New builds a matcher from the vocabulary. unknownLabel names the fallback
// group, which must be present in groups.
func New(groups []catalog.SizeGroup, unknownLabel string) (*Matcher, error) {
	m := &Matcher{unknownID: -1}
	for _, g := range groups {
		label := strings.ToLower(strings.TrimSpace(g.Label))
		if label == "" {
			continue
		}
		if strings.EqualFold(g.Label, unknownLabel) {
			m.unknownID = g.ID
			continue
		}
		pattern, err := regexp.Compile(`(?i)\b` + regexp.QuoteMeta(label) + `\b`)
		if err != nil {
			// Quoted labels should always compile; fall back to substring
			// matching for this label if one somehow does not.
			pattern = nil
		}
		m.groups = append(m.groups, group{id: g.ID, label: label, pattern: pattern})
	}
	if m.unknownID < 0 {
		return nil, fmt.Errorf("size-group vocabulary has no %q fallback group", unknownLabel)
	}

	sort.SliceStable(m.groups, func(i, j int) bool {
		return len(m.groups[i].label) > len(m.groups[j].label)
	})
	return m, nil
}

// UnknownID returns the fallback group id.
func (m *Matcher) UnknownID() int64 {
	return m.unknownID
}

// Match resolves a variant title to a size-group id. The first label that
// matches on a word boundary wins; an empty or unmatched title resolves to
// the fallback group. The second return reports whether a real label matched.
func (m *Matcher) Match(title string) (int64, bool) {
	title = strings.TrimSpace(title)
	if title == "" {
		return m.unknownID, false
	}
	lowered := strings.ToLower(title)
	for _, g := range m.groups {
		if g.pattern != nil {
			if g.pattern.MatchString(title) {
				return g.id, true
			}
			continue
		}
		if strings.Contains(lowered, g.label) {
			return g.id, true
		}
	}
	return m.unknownID, false
}
