package repository

import (
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	"github.com/onyxos/onyxsync/internal/models"
	"github.com/onyxos/onyxsync/pkg/logger"
)

// PostgresDB implements models.Repository on top of gorm. Despite the name it
// only relies on SQL that Postgres and SQLite both understand, so tests run it
// against an in-memory SQLite database.
type PostgresDB struct {
	logger *logger.Logger

	Conn *gorm.DB
}

var _ models.Repository = (*PostgresDB)(nil)

// Models lists every table owned by this service.
func Models() []interface{} {
	return []interface{}{
		&models.Creator{},
		&models.Transaction{},
		&models.TrackingLink{},
		&models.QueueItem{},
		&models.Campaign{},
		&models.WebhookEvent{},
		&models.Shift{},
		&models.ScheduledPost{},
		&models.AppLock{},
	}
}

func NewPostgresDB(user, password, dbname, host string, port int, logger *logger.Logger) (*PostgresDB, error) {
	dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%d sslmode=disable",
		host, user, password, dbname, port)

	// Configure GORM logger to suppress "record not found" messages
	gormLogger := gormLogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormLogger.Config{
			SlowThreshold:             200 * time.Millisecond,
			LogLevel:                  gormLogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger:  gormLogger,
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}

	if err := db.AutoMigrate(Models()...); err != nil {
		return nil, fmt.Errorf("failed to auto-migrate models: %w", err)
	}
	logger.Info("Successfully connected to PostgreSQL", "host", host, "db", dbname)
	return NewRepository(db, logger), nil
}

// NewRepository wraps an already opened and migrated connection.
func NewRepository(db *gorm.DB, logger *logger.Logger) *PostgresDB {
	return &PostgresDB{Conn: db, logger: logger}
}

func (db *PostgresDB) Close() error {
	sqlDB, err := db.Conn.DB()
	if err != nil {
		return fmt.Errorf("failed to get database connection: %w", err)
	}
	return sqlDB.Close()
}

// notFound maps gorm's sentinel to the domain one.
func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.ErrNotFound
	}
	return err
}
