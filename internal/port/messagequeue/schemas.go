package messagequeue

import "time"

// Subjects published by the gateway.
const (
	SubjectPoolCreated = "pool.instance.created"
	SubjectPoolEvicted = "pool.instance.evicted"
	SubjectPoolExpired = "pool.instance.expired"

	SubjectMemberInvited  = "members.invited"
	SubjectMemberAccepted = "members.accepted"
)

// PoolEvent describes an instance lifecycle transition.
type PoolEvent struct {
	TenantID  string    `json:"tenant_id"`
	ProjectID string    `json:"project_id"`
	Active    int       `json:"active"`
	Capacity  int       `json:"capacity"`
	At        time.Time `json:"at"`
}

// MemberEvent describes an invitation or membership change.
type MemberEvent struct {
	TenantID  string    `json:"tenant_id"`
	ProjectID string    `json:"project_id"`
	Email     string    `json:"email,omitempty"`
	UserID    string    `json:"user_id,omitempty"`
	Role      string    `json:"role"`
	At        time.Time `json:"at"`
}
