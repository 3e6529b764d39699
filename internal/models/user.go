package models

import "time"

// User is a registered account. Online and LastSeen are maintained by the gateway.
type User struct {
	ID         int        `db:"id" json:"id"`
	Username   string     `db:"username" json:"username"`
	Email      string     `db:"email" json:"email"`
	Online     bool       `db:"online" json:"online"`
	LastSeen   *time.Time `db:"last_seen" json:"last_seen,omitempty"`
	Theme      string     `db:"theme" json:"theme"`
	Background string     `db:"background" json:"background"`
	CreatedAt  time.Time  `db:"created_at" json:"created_at"`
}
