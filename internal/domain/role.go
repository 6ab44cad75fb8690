package domain

import (
	"fmt"
	"regexp"
	"sort"
)

var agentIDPattern = regexp.MustCompile(`^[a-z][a-z0-9-]*$`)

// ValidAgentID reports whether id can be used as an agent identifier. The
// underscore is reserved as the separator in artifact names and pair keys.
func ValidAgentID(id string) bool {
	return agentIDPattern.MatchString(id)
}

// Role is the data-driven configuration of one analyst perspective.
type Role struct {
	Name           string  `yaml:"name" json:"name"`
	Description    string  `yaml:"description" json:"description"`
	EvidencePrompt string  `yaml:"evidence_prompt" json:"-"`
	ClaimsPrompt   string  `yaml:"claims_prompt" json:"-"`
	DefaultStance  Stance  `yaml:"default_stance" json:"default_stance"`
	Weight         float64 `yaml:"weight" json:"weight"`
	Enabled        bool    `yaml:"enabled" json:"enabled"`
}

func (r Role) Validate() error {
	if !ValidAgentID(r.Name) {
		return fmt.Errorf("%w: %q", ErrInvalidAgentID, r.Name)
	}
	if !r.DefaultStance.IsValid() {
		return fmt.Errorf("role %s: invalid default stance %q", r.Name, r.DefaultStance)
	}
	if r.Weight < 0 {
		return fmt.Errorf("role %s: weight must not be negative", r.Name)
	}
	return nil
}

// Roster is an immutable, ordered set of roles taking part in an analysis.
type Roster struct {
	roles []Role
	index map[string]int
}

// NewRoster validates roles and freezes them. Duplicate names are rejected.
func NewRoster(roles []Role) (Roster, error) {
	r := Roster{roles: make([]Role, 0, len(roles)), index: make(map[string]int, len(roles))}
	for _, role := range roles {
		if err := role.Validate(); err != nil {
			return Roster{}, err
		}
		if _, dup := r.index[role.Name]; dup {
			return Roster{}, fmt.Errorf("duplicate role %q", role.Name)
		}
		if role.Weight == 0 {
			role.Weight = 1
		}
		r.index[role.Name] = len(r.roles)
		r.roles = append(r.roles, role)
	}
	return r, nil
}

// Roles returns a copy of the roles in configuration order.
func (r Roster) Roles() []Role {
	return append([]Role(nil), r.roles...)
}

func (r Roster) Get(name string) (Role, bool) {
	i, ok := r.index[name]
	if !ok {
		return Role{}, false
	}
	return r.roles[i], true
}

func (r Roster) Len() int {
	return len(r.roles)
}

// Names returns the role names sorted ascending.
func (r Roster) Names() []string {
	names := make([]string, 0, len(r.roles))
	for _, role := range r.roles {
		names = append(names, role.Name)
	}
	sort.Strings(names)
	return names
}
