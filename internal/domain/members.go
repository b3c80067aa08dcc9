package domain

import "time"

type Role string

const (
	RoleNone   Role = ""
	RoleMember Role = "member"
	RoleAdmin  Role = "admin"
)

func (r Role) IsAdmin() bool {
	return r == RoleAdmin
}

func (r Role) String() string {
	if r == RoleNone {
		return "none"
	}

	return string(r)
}

type Membership struct {
	ChannelID   string    `json:"channel_id"`
	Identity    string    `json:"identity"`
	DisplayName string    `json:"display_name"`
	Role        Role      `json:"role"`
	JoinedAt    time.Time `json:"joined_at"`
}
