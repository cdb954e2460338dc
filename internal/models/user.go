package models

import "time"

const (
	StatusDisabled = 0
	StatusEnabled  = 1
)

type User struct {
	ID           uint64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Username     string     `gorm:"type:varchar(64);uniqueIndex;not null" json:"username"`
	PasswordHash string     `gorm:"type:varchar(128);not null" json:"-"`
	IsAdmin      int        `gorm:"type:tinyint;not null;default:0" json:"is_admin"`
	Status       int        `gorm:"type:tinyint;not null;default:1" json:"status"`
	Avatar       string     `gorm:"type:text" json:"avatar"`
	CreatedAt    time.Time  `json:"created_at"`
	LastLogin    *time.Time `json:"last_login"`
}

func (User) TableName() string { return "users" }
