package claimstatedb

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

var ErrNotFound = errors.New("record not found")

// Store persists claim balances, activity buckets and claim attempts.
type Store struct {
	DB *gorm.DB
}

// Open connects to the database. For sqlite, dsn is a file path.
func Open(driver, dsn string) (*Store, error) {
	config := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Error),
	}

	var dialector gorm.Dialector
	switch driver {
	case DriverPostgres:
		dialector = postgres.Open(dsn)
	case DriverSQLite, "":
		dir := filepath.Dir(dsn)
		if dir != "." && dir != "" {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("failed to create directory: %w", err)
			}
		}
		dialector = sqlite.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	db, err := gorm.Open(dialector, config)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.AutoMigrate(&ClaimBalance{}, &DailyActivity{}, &ClaimAttempt{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	log.Printf("%s database initialized successfully", dialector.Name())
	return &Store{DB: db}, nil
}

func (s *Store) Close() error {
	sqlDB, err := s.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// LoadBalance returns the stored balance for session, or ErrNotFound.
func (s *Store) LoadBalance(session string) (*ClaimBalance, error) {
	var balance ClaimBalance
	if err := s.DB.Where("session = ?", session).First(&balance).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &balance, nil
}

// SaveBalance creates or updates the balance row of a session.
func (s *Store) SaveBalance(session, owner string, claimable, claimed int64) error {
	var balance ClaimBalance
	result := s.DB.Where("session = ?", session).First(&balance)
	if result.Error != nil && !errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return result.Error
	}

	if result.Error == nil {
		return s.DB.Model(&balance).Updates(map[string]interface{}{
			"owner":           owner,
			"claimable_units": claimable,
			"claimed_units":   claimed,
		}).Error
	}

	balance = ClaimBalance{
		Session:        session,
		Owner:          owner,
		ClaimableUnits: claimable,
		ClaimedUnits:   claimed,
	}
	return s.DB.Create(&balance).Error
}

// ListSessions returns every session with a stored balance.
func (s *Store) ListSessions() ([]ClaimBalance, error) {
	var balances []ClaimBalance
	if err := s.DB.Order("session").Find(&balances).Error; err != nil {
		return nil, err
	}
	return balances, nil
}

// ReplaceActivity swaps the stored histogram of a session for days.
func (s *Store) ReplaceActivity(session string, days []DailyActivity) error {
	return s.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Unscoped().Where("session = ?", session).Delete(&DailyActivity{}).Error; err != nil {
			return fmt.Errorf("failed to clear activity: %w", err)
		}
		if len(days) == 0 {
			return nil
		}
		rows := make([]DailyActivity, len(days))
		for i, d := range days {
			rows[i] = DailyActivity{Session: session, Date: d.Date, Count: d.Count}
		}
		if err := tx.Create(&rows).Error; err != nil {
			return fmt.Errorf("failed to save activity: %w", err)
		}
		return nil
	})
}

// LoadActivity returns the stored histogram of a session ordered by date.
func (s *Store) LoadActivity(session string) ([]DailyActivity, error) {
	var days []DailyActivity
	if err := s.DB.Where("session = ?", session).Order("date").Find(&days).Error; err != nil {
		return nil, err
	}
	return days, nil
}

func (s *Store) CreateAttempt(attempt *ClaimAttempt) error {
	return s.DB.Create(attempt).Error
}

func (s *Store) UpdateAttempt(attempt *ClaimAttempt) error {
	return s.DB.Save(attempt).Error
}

// GetAttempt returns a claim attempt by ID, or ErrNotFound.
func (s *Store) GetAttempt(id string) (*ClaimAttempt, error) {
	var attempt ClaimAttempt
	if err := s.DB.Where("id = ?", id).First(&attempt).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &attempt, nil
}

// MarkCredited flips the credited flag of a confirmed attempt. It reports false when the
// attempt had already been credited, so balances are credited once per attempt.
func (s *Store) MarkCredited(id string) (bool, error) {
	result := s.DB.Model(&ClaimAttempt{}).
		Where("id = ? AND credited = ?", id, false).
		Updates(map[string]interface{}{
			"credited": true,
			"state":    "CONFIRMED",
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}
