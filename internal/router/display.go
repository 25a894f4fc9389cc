package router

import (
	"strings"

	"github.com/ToughForge/EspoMCP/internal/espo"
)

// DisplayNamePolicy picks the label used in success messages. Each
// group is a list of fields joined with spaces; the first group with
// any non-empty value wins, then the record id.
type DisplayNamePolicy [][]string

// DefaultDisplayNames is name, first+last name, title, subject.
func DefaultDisplayNames() DisplayNamePolicy {
	return DisplayNamePolicy{
		{"name"},
		{"firstName", "lastName"},
		{"title"},
		{"subject"},
	}
}

// ParseDisplayNames reads groups written as "firstName+lastName".
// Blank entries are skipped; an empty result means the default.
func ParseDisplayNames(specs []string) DisplayNamePolicy {
	var policy DisplayNamePolicy
	for _, spec := range specs {
		var group []string
		for _, field := range strings.Split(spec, "+") {
			if field = strings.TrimSpace(field); field != "" {
				group = append(group, field)
			}
		}
		if len(group) > 0 {
			policy = append(policy, group)
		}
	}
	if len(policy) == 0 {
		return DefaultDisplayNames()
	}
	return policy
}

// Display returns the best label for rec.
func (p DisplayNamePolicy) Display(rec espo.Record) string {
	for _, group := range p {
		var parts []string
		for _, field := range group {
			if s, ok := rec[field].(string); ok && strings.TrimSpace(s) != "" {
				parts = append(parts, strings.TrimSpace(s))
			}
		}
		if len(parts) > 0 {
			return strings.Join(parts, " ")
		}
	}
	return rec.ID()
}
