package dao

import (
	"context"
	"fmt"

	"gantry/internal/common"
	"gantry/internal/server/model"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
)

var db *gorm.DB

func Init(cfg common.Config) error {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		cfg.DBUser, cfg.DBPassword, cfg.DBHost, cfg.DBPort, cfg.DBName)
	database, err := gorm.Open(mysql.Open(dsn))
	if err != nil {
		return err
	}
	return InitWithDB(database)
}

// InitWithDB installs an already-open database. Tests use this with an
// in-memory sqlite.
func InitWithDB(database *gorm.DB) error {
	db = database
	return db.AutoMigrate(
		&model.User{},
		&model.Pipeline{},
		&model.Step{},
		&model.Task{},
		&model.Event{},
	)
}

// Transaction runs fn inside one database transaction. Daos
// constructed with the New*DaoTx variants against tx join it.
func Transaction(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return db.WithContext(ctx).Transaction(fn)
}
