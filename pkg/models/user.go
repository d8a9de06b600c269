package models

import (
	"time"

	"github.com/google/uuid"
)

// User is a registered account. Analyses reference users with
// ON DELETE SET NULL, so deleting a user never deletes their history.
type User struct {
	ID           uuid.UUID  `db:"id"            json:"id"`
	FullName     string     `db:"full_name"     json:"full_name"`
	Email        string     `db:"email"         json:"email"`
	PasswordHash string     `db:"password_hash" json:"-"`
	IsActive     bool       `db:"is_active"     json:"is_active"`
	LastLoginAt  *time.Time `db:"last_login_at" json:"last_login_at,omitempty"`
	CreatedAt    time.Time  `db:"created_at"    json:"created_at"`
}
