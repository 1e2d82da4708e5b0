package authroles

import (
	"strings"

	domainauth "github.com/dhanmatrix/dhanmatrix/internal/domain/auth"
)

// StaticSuperAdmins is the configured allow-list of principals that are always admins.
// Entries match a principal's email case-insensitively, or its id exactly when prefixed
// with "id:".
type StaticSuperAdmins struct {
	emails map[string]struct{}
	ids    map[string]struct{}
}

// NewStaticSuperAdmins builds the allow-list, ignoring blank entries.
func NewStaticSuperAdmins(entries []string) StaticSuperAdmins {
	s := StaticSuperAdmins{emails: map[string]struct{}{}, ids: map[string]struct{}{}}
	for _, e := range entries {
		e = strings.TrimSpace(e)
		if e == "" {
			continue
		}
		if id, ok := strings.CutPrefix(e, "id:"); ok {
			if id = strings.TrimSpace(id); id != "" {
				s.ids[id] = struct{}{}
			}
			continue
		}
		s.emails[strings.ToLower(e)] = struct{}{}
	}
	return s
}

// IsSuperAdmin reports whether p is on the allow-list.
func (s StaticSuperAdmins) IsSuperAdmin(p domainauth.Principal) bool {
	if _, ok := s.ids[p.ID]; ok && p.ID != "" {
		return true
	}
	email := p.NormalizedEmail()
	if email == "" {
		return false
	}
	_, ok := s.emails[email]
	return ok
}

// Len returns the number of entries.
func (s StaticSuperAdmins) Len() int { return len(s.emails) + len(s.ids) }
