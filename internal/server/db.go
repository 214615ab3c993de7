package server

import (
	"fmt"
	"time"

	"github.com/couuas/serv00-ghost/internal/models"
	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Journal is the coordinator's event feed, kept in SQLite through GORM.
// The default DSN is in-memory, so the feed does not outlive the process.
type Journal struct {
	db        *gorm.DB
	retention int
	now       func() time.Time
	logger    *zap.Logger
}

// OpenJournal opens the database at dsn and runs AutoMigrate. retention is
// the number of newest events kept; 0 keeps everything.
func OpenJournal(dsn string, retention int, log *zap.Logger) (*Journal, error) {
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("opening journal: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("journal handle: %w", err)
	}
	// every connection to an in-memory database is a separate database
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&models.Event{}); err != nil {
		return nil, fmt.Errorf("auto-migrate: %w", err)
	}

	log.Debug("journal opened", zap.String("dsn", dsn), zap.Int("retention", retention))
	return &Journal{db: db, retention: retention, now: time.Now, logger: log}, nil
}

// Record appends an event. Failures are logged and otherwise ignored so the
// protocol paths never fail because of the journal.
func (j *Journal) Record(kind models.EventKind, nodeID, detail string) {
	ev := models.Event{Kind: kind, NodeID: nodeID, Detail: detail, CreatedAt: j.now()}
	if err := j.db.Create(&ev).Error; err != nil {
		j.logger.Warn("journal write failed", zap.String("kind", string(kind)), zap.Error(err))
		return
	}
	if j.retention > 0 && ev.ID > uint(j.retention) {
		cutoff := ev.ID - uint(j.retention)
		if err := j.db.Where("id <= ?", cutoff).Delete(&models.Event{}).Error; err != nil {
			j.logger.Warn("journal prune failed", zap.Error(err))
		}
	}
}

// Recent returns up to limit events, newest first.
func (j *Journal) Recent(limit int) ([]models.Event, error) {
	var events []models.Event
	err := j.db.Order("id desc").Limit(limit).Find(&events).Error
	return events, err
}

// Close releases the database.
func (j *Journal) Close() error {
	sqlDB, err := j.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
