package sites

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Site is the GORM model for the tables_sites table.
type Site struct {
	ID        int64  `gorm:"primaryKey;column:id"`
	Name      string `gorm:"column:name;size:255;not null"`
	SiteCheck bool   `gorm:"column:site_check;not null;default:true"`
}

func (Site) TableName() string {
	return "tables_sites"
}

// Repository is the query surface the DB source needs.
type Repository interface {
	EnabledNames(ctx context.Context) ([]string, error)
	IsEnabled(ctx context.Context, name string) (bool, error)
}

// GormRepository reads sites through GORM.
type GormRepository struct {
	db *gorm.DB
}

func NewGormRepository(db *gorm.DB) *GormRepository {
	return &GormRepository{db: db}
}

func (r *GormRepository) EnabledNames(ctx context.Context) ([]string, error) {
	var names []string
	err := r.db.WithContext(ctx).
		Model(&Site{}).
		Where("site_check = ?", true).
		Order("id").
		Pluck("name", &names).Error
	if err != nil {
		return nil, fmt.Errorf("query enabled sites: %w", err)
	}
	return names, nil
}

// IsEnabled reports whether name exists with site_check set. Unknown names
// are reported as disabled.
func (r *GormRepository) IsEnabled(ctx context.Context, name string) (bool, error) {
	var rows []Site
	err := r.db.WithContext(ctx).
		Where("name = ?", name).
		Limit(1).
		Find(&rows).Error
	if err != nil {
		return false, fmt.Errorf("query site %s: %w", name, err)
	}
	return len(rows) == 1 && rows[0].SiteCheck, nil
}

// OpenMySQL connects to dsn, retrying attempts times with delay between.
func OpenMySQL(ctx context.Context, dsn string, attempts int, delay time.Duration, log *slog.Logger) (*gorm.DB, error) {
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
			Logger:                 logger.Discard,
			SkipDefaultTransaction: true,
		})
		if err == nil {
			sqlDB, err := db.DB()
			if err != nil {
				return nil, fmt.Errorf("failed to get sql.DB: %w", err)
			}
			sqlDB.SetMaxIdleConns(2)
			sqlDB.SetMaxOpenConns(5)
			sqlDB.SetConnMaxLifetime(time.Hour)
			return db, nil
		}

		lastErr = err
		log.Warn("failed to connect to MySQL", "attempt", attempt, "attempts", attempts, "error", err)
		if attempt == attempts {
			break
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, errors.Join(lastErr, ctx.Err())
		case <-timer.C:
		}
	}
	return nil, fmt.Errorf("failed to connect to MySQL: %w", lastErr)
}
