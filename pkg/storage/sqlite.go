package storage

import (
	"fmt"
	"path/filepath"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/chicogong/ytagents/pkg/logger"
)

const sqliteFilename = "videos.db"

// NewSQLiteBackend stores files in dir and metadata in dir/videos.db.
// The database is embedded, so all access goes through one connection.
func NewSQLiteBackend(dir string, log *logger.Logger) (*Backend, error) {
	objects, err := newDiskObjects(dir)
	if err != nil {
		return nil, err
	}

	db, err := gorm.Open(sqlite.Open(filepath.Join(dir, sqliteFilename)), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)

	meta, err := newSQLMetadata(db)
	if err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("migrate sqlite: %w", err)
	}
	return newBackend("sqlite", objects, meta, log), nil
}
