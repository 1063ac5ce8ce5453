package gallerykit

import "strings"

// Role is a privilege level. Roles are totally ordered by rank.
type Role string

const (
	RoleUser   Role = "user"
	RoleArtist Role = "artist"
	RoleAdmin  Role = "admin"
)

// legacyRoleNames maps role names written by older clients to current roles.
var legacyRoleNames = map[string]Role{
	"superuser": RoleAdmin,
}

var roleRanks = map[Role]int{
	RoleUser:   0,
	RoleArtist: 1,
	RoleAdmin:  2,
}

// Roles returns all known roles, lowest rank first.
func Roles() []Role {
	return []Role{RoleUser, RoleArtist, RoleAdmin}
}

// ParseRole converts a stored role name into a Role.
// The second return value is false for names outside the known set.
func ParseRole(name string) (Role, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	if r, ok := legacyRoleNames[name]; ok {
		return r, true
	}
	r := Role(name)
	if _, ok := roleRanks[r]; !ok {
		return "", false
	}
	return r, true
}

// Rank returns the role's position in the hierarchy, or -1 for unknown roles.
func (r Role) Rank() int {
	if rank, ok := roleRanks[r]; ok {
		return rank
	}
	return -1
}

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r.Rank() >= 0
}

// String returns the role name.
func (r Role) String() string {
	return string(r)
}

// ResolveEffectiveRole returns the highest-ranked role among the assignments.
// An empty set, or a set with only unknown role names, resolves to RoleUser.
//
// Example:
//
//	ResolveEffectiveRole([]RoleAssignment{{Role: "artist"}, {Role: "user"}}) // RoleArtist
//	ResolveEffectiveRole(nil)                                               // RoleUser
func ResolveEffectiveRole(assignments []RoleAssignment) Role {
	effective := RoleUser
	for _, a := range assignments {
		r, ok := ParseRole(a.Role)
		if !ok {
			continue
		}
		if r.Rank() > effective.Rank() {
			effective = r
		}
	}
	return effective
}

// HasCapability reports whether a subject holding effective satisfies required.
// Holding admin satisfies every requirement; an unknown required role is never satisfied.
func HasCapability(effective, required Role) bool {
	if !required.Valid() {
		return false
	}
	rank := effective.Rank()
	if rank < 0 {
		rank = RoleUser.Rank()
	}
	return rank >= required.Rank()
}
