package db

import (
	"fmt"
	"os"
	"path/filepath"

	mysqldrv "github.com/go-sql-driver/mysql"
	"github.com/zulandar/coinchat/internal/config"
	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// MemoryPath opens a private in-memory sqlite database.
const MemoryPath = ":memory:"

// DSN builds a MySQL DSN. An empty database selects no schema, which is what
// CREATE DATABASE needs.
func DSN(user, host string, port int, database string) string {
	c := mysqldrv.NewConfig()
	c.User = user
	c.Net = "tcp"
	c.Addr = fmt.Sprintf("%s:%d", host, port)
	c.DBName = database
	c.ParseTime = true
	return c.FormatDSN()
}

// Connect opens a GORM connection to a MySQL database.
func Connect(user, host string, port int, database string) (*gorm.DB, error) {
	db, err := gorm.Open(mysql.Open(DSN(user, host, port, database)), gormConfig())
	if err != nil {
		return nil, fmt.Errorf("db: connect to %s:%d/%s: %w", host, port, database, err)
	}
	return db, nil
}

// ConnectAdmin opens a GORM connection to the MySQL server without selecting
// a specific database, used for CREATE DATABASE operations.
func ConnectAdmin(user, host string, port int) (*gorm.DB, error) {
	db, err := gorm.Open(mysql.Open(DSN(user, host, port, "")), gormConfig())
	if err != nil {
		return nil, fmt.Errorf("db: admin connect to %s:%d: %w", host, port, err)
	}
	return db, nil
}

// CreateDatabase creates the named database if it doesn't already exist.
func CreateDatabase(adminDB *gorm.DB, name string) error {
	sql := fmt.Sprintf("CREATE DATABASE IF NOT EXISTS `%s`", name)
	if err := adminDB.Exec(sql).Error; err != nil {
		return fmt.Errorf("db: create database %s: %w", name, err)
	}
	return nil
}

// OpenSQLite opens (creating if needed) a sqlite database file. The parent
// directory is created for file paths.
func OpenSQLite(path string) (*gorm.DB, error) {
	if path != MemoryPath {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("db: create directory for %s: %w", path, err)
		}
	}
	db, err := gorm.Open(sqlite.Open(path), gormConfig())
	if err != nil {
		return nil, fmt.Errorf("db: open sqlite %s: %w", path, err)
	}
	if path == MemoryPath {
		// each pooled connection would otherwise get its own empty database
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("db: open sqlite %s: %w", path, err)
		}
		sqlDB.SetMaxOpenConns(1)
	}
	return db, nil
}

// Open connects to the database selected by the storage config.
func Open(cfg config.StorageConfig) (*gorm.DB, error) {
	switch cfg.Driver {
	case "sqlite", "":
		return OpenSQLite(cfg.Path)
	case "mysql":
		return Connect(cfg.User, cfg.Host, cfg.Port, cfg.Database)
	default:
		return nil, fmt.Errorf("db: unsupported driver %q", cfg.Driver)
	}
}

// Close releases the underlying connection pool.
func Close(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("db: close: %w", err)
	}
	return sqlDB.Close()
}

func gormConfig() *gorm.Config {
	return &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	}
}
