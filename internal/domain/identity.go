package domain

// Credential is an opaque bearer token attached to every backend request.
type Credential string

const RoleAdmin = "admin"

// Identity is the authenticated principal a session acts for.
type Identity struct {
	UserID   int64
	Username string
	Token    Credential
	Role     string
}

func (i Identity) IsAdmin() bool {
	return i.Role == RoleAdmin
}
