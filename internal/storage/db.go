package storage

import (
	"os"
	"path/filepath"
	"storyboard-ai/internal/appdirs"
	"storyboard-ai/internal/types"
	"storyboard-ai/log"

	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var DB *gorm.DB
var appDirsResolver = appdirs.Resolve

// InitDB opens the run history database in the cache dir.
func InitDB() error {
	dbPath, err := resolveDBPath()
	if err != nil {
		return err
	}
	return OpenDB(dbPath)
}

// OpenDB opens (or creates) the sqlite database at dbPath and migrates the
// run history schema.
func OpenDB(dbPath string) error {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		log.GetLogger().Error("failed to create database directory", zap.String("dir", dir), zap.Error(err))
		return err
	}

	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		log.GetLogger().Error("failed to connect database", zap.Error(err))
		return err
	}

	if err = db.AutoMigrate(&types.RunRecord{}, &types.ShotFailure{}); err != nil {
		log.GetLogger().Error("failed to migrate database", zap.Error(err))
		return err
	}

	DB = db
	log.GetLogger().Info("Database initialized successfully", zap.String("path", dbPath))
	return nil
}

func resolveDBPath() (string, error) {
	dirs, err := appDirsResolver()
	if err != nil {
		return "", err
	}
	return appdirs.DBPathFor(dirs), nil
}
