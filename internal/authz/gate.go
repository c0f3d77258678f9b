// Package authz implements the authorization gate guarding lifecycle
// commands: a pure membership test against a fixed operator allow-list.
package authz

// Gate answers whether a requesting chat identity may invoke account
// commands. The admin set is copied at construction and never mutated
// afterwards; an identity that is not in the set is denied — absence never
// fails open.
type Gate struct {
	admins map[int64]struct{}
}

// NewGate builds a Gate from the configured admin identities.
func NewGate(adminIDs []int64) *Gate {
	admins := make(map[int64]struct{}, len(adminIDs))
	for _, id := range adminIDs {
		admins[id] = struct{}{}
	}
	return &Gate{admins: admins}
}

// IsAdmin reports whether the identity is in the allow-list.
func (g *Gate) IsAdmin(id int64) bool {
	_, ok := g.admins[id]
	return ok
}
