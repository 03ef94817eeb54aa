package types

import "strings"

// ParseSkills splits a comma-separated skill list and normalizes it.
func ParseSkills(s string) []string {
	return NormalizeSkills(strings.Split(s, ","))
}

// NormalizeSkills trims every entry, drops blanks and removes case-insensitive
// duplicates while keeping the first spelling and the original order.
func NormalizeSkills(skills []string) []string {
	out := make([]string, 0, len(skills))
	seen := make(map[string]struct{}, len(skills))
	for _, skill := range skills {
		skill = trimSpace(skill)
		if skill == "" {
			continue
		}
		key := strings.ToLower(skill)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, skill)
	}
	return out
}

// trimSpace trims and collapses internal whitespace runs to single spaces.
func trimSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
