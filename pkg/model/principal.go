package model

import "time"

const (
	RoleAdmin     = "admin"
	RoleCollector = "collector"
)

// Principal is the authenticated caller carried by a session token. Subject
// is the collector id for collectors and "admin" for the administrator.
type Principal struct {
	Role      string    `json:"role"`
	Subject   string    `json:"sub"`
	ExpiresAt time.Time `json:"exp"`
}

func (p Principal) Expired(now time.Time) bool {
	return !now.Before(p.ExpiresAt)
}
