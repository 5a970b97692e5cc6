package entity

import "time"

// User is an operator of the tracking system. The robot authenticates as
// one of these and its ID is recorded when it confirms a cost on the portal.
type User struct {
	ID             int64     `json:"id"`
	Username       string    `json:"username"`
	HashedPassword string    `json:"-"`
	IsAdmin        bool      `json:"is_admin"`
	CreatedAt      time.Time `json:"created_at"`
}
