package config

import (
	"fmt"
	"log"
	"os"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/bitrollup/da-syncer/db"
)

func InitDBWithConfig(cfg *DBConfig, shouldAutoMigrate bool) *gorm.DB {
	newLogger := logger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		logger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  logger.Silent,
			IgnoreRecordNotFoundError: true,
			Colorful:                  true,
		},
	)

	var dialector gorm.Dialector
	if cfg.Dialect == DBDialectMysql {
		dbPath := fmt.Sprintf("%s:%s@%s", cfg.Username, cfg.Password, cfg.Url)
		dialector = mysql.Open(dbPath)
	} else if cfg.Dialect == DBDialectSqlite3 {
		dialector = sqlite.Open(cfg.Url)
	} else {
		panic(fmt.Sprintf("unexpected DB dialect %s", cfg.Dialect))
	}
	database, err := gorm.Open(dialector, &gorm.Config{
		Logger: newLogger,
	})
	if err != nil {
		panic(fmt.Sprintf("open db error, err=%s", err.Error()))
	}
	sqlConfig, err := database.DB()
	if err != nil {
		panic(err)
	}
	sqlConfig.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlConfig.SetMaxOpenConns(cfg.MaxOpenConns)

	if shouldAutoMigrate {
		db.AutoMigrateDB(database)
	}
	return database
}
