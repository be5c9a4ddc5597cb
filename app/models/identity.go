// Package models defines identity, quota, payment and search task types.
package models

// IdentityKind distinguishes authenticated accounts from anonymous visitors.
type IdentityKind string

const (
	IdentityAnonymous     IdentityKind = "anonymous"
	IdentityAuthenticated IdentityKind = "authenticated"
)

// Identity is the resolved actor a request is attributed to. Exactly one
// identity applies per request; authenticated always wins over any anonymous
// token that happens to be present.
type Identity struct {
	Kind IdentityKind `json:"kind"`
	Key  string       `json:"key"`
}

func (i Identity) IsAuthenticated() bool {
	return i.Kind == IdentityAuthenticated
}

func Authenticated(userID string) Identity {
	return Identity{Kind: IdentityAuthenticated, Key: userID}
}

func Anonymous(token string) Identity {
	return Identity{Kind: IdentityAnonymous, Key: token}
}
