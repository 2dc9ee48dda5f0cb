package service

import "strings"

// Allowlist is a set of external user ids.
type Allowlist map[string]struct{}

// NewAllowlist builds an Allowlist, ignoring blank entries.
func NewAllowlist(ids []string) Allowlist {
	a := make(Allowlist, len(ids))
	for _, id := range ids {
		if id = strings.TrimSpace(id); id != "" {
			a[id] = struct{}{}
		}
	}
	return a
}

// Contains reports whether id is listed.
func (a Allowlist) Contains(id string) bool {
	_, ok := a[id]
	return ok
}
