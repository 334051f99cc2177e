package models

// Account is the attribution identity supplied by the authentication
// collaborator. It is never stored by this service, only stamped onto
// outgoing events.
type Account struct {
	UserID   string `json:"user_id"`
	UserName string `json:"user_name"`
	PhotoURL string `json:"photo_url,omitempty"`
	Role     string `json:"role,omitempty"`
}

const (
	RoleMember = "member"
	RoleAdmin  = "admin"
	RoleOwner  = "owner"
)

func (a Account) CanModerate() bool {
	return a.Role == RoleAdmin || a.Role == RoleOwner
}
