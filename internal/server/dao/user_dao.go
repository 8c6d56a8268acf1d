package dao

import (
	"context"

	"gantry/internal/server/model"

	"gorm.io/gorm"
)

type UserDao interface {
	Create(ctx context.Context, user *model.User) error
	GetByUsername(ctx context.Context, username string) (*model.User, error)
}

type userDAO struct {
	db *gorm.DB
}

func NewUserDao() UserDao {
	return &userDAO{db: db}
}

func (u *userDAO) Create(ctx context.Context, user *model.User) error {
	return u.db.WithContext(ctx).Create(user).Error
}

func (u *userDAO) GetByUsername(ctx context.Context, username string) (*model.User, error) {
	var user model.User
	if err := u.db.WithContext(ctx).Where("username = ?", username).Take(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}
