package model

import "gorm.io/gorm"

const (
	RoleViewer   = "viewer"
	RoleOperator = "operator"
)

type User struct {
	gorm.Model
	Username     string `gorm:"type:varchar(255);not null;unique"`
	PasswordHash string `gorm:"type:varchar(255);not null"`
	Role         string `gorm:"type:varchar(16);not null;default:'viewer'"`
}
