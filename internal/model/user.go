package model

// User is the authenticated account as returned by the login endpoint
// and persisted between launches.
type User struct {
	ID       int64  `json:"id"`
	Phone    string `json:"phone,omitempty"`
	Nickname string `json:"nickname"`
	Avatar   string `json:"avatar,omitempty"`
}

// UserPublic is the profile shape exposed for counterparts
// (friends, group members, match candidates).
type UserPublic struct {
	ID       int64  `json:"id"`
	Nickname string `json:"nickname"`
	Avatar   string `json:"avatar,omitempty"`
	Online   bool   `json:"online,omitempty"`
}
