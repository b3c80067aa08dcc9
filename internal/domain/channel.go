package domain

import "time"

const (
	DefaultCapacity   = 20
	DefaultChannelTTL = 24 * time.Hour
)

type Channel struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	CreatorID   string    `json:"creator_id"`
	MemberCount int       `json:"member_count"`
	AdminCount  int       `json:"admin_count"`
	Capacity    int       `json:"capacity"`
	CreatedAt   time.Time `json:"created_at"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// IsExpired reports whether the channel is logically dead at now. Reads keep
// working; writes are rejected.
func (c Channel) IsExpired(now time.Time) bool {
	return !c.ExpiresAt.IsZero() && !now.Before(c.ExpiresAt)
}

func (c Channel) IsFull() bool {
	return c.MemberCount >= c.Capacity
}
