package models

import (
	"time"
)

type User struct {
	ID                string
	Email             string // stored lowercase
	PasswordHash      string
	FullName          string
	IsActive          bool
	Role              string // e.g., "user", "admin"
	PasswordChangedAt *time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}
