package domain

import "time"

type User struct {
	ID            string // ULID
	Email         string // unique
	Name          string
	Image         string
	EmailVerified bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}
