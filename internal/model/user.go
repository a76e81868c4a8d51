package model

import (
	"time"
)

type UserRole string

const (
	Candidate UserRole = "candidate"
	Admin     UserRole = "admin"
)

// swagger:model User
type User struct {
	UUIDBase
	Name     string    `gorm:"size:100" json:"name"`
	Email    string    `gorm:"size:191;uniqueIndex;not null" json:"email"`
	Password string    `gorm:"size:100" json:"-"`
	Provider string    `gorm:"size:32;default:'credentials'" json:"provider"`
	Role     UserRole  `gorm:"size:16;default:'candidate'" json:"role"`
	LastSeen time.Time `json:"lastSeen"`
}

func (User) TableName() string {
	return "users"
}
