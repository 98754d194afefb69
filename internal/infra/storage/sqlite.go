package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"market_engine/internal/domain"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// Storage persists the instrument cache and app settings in SQLite.
type Storage struct {
	db *gorm.DB
}

var (
	_ domain.InstrumentCache = (*Storage)(nil)
	_ domain.SettingsStore   = (*Storage)(nil)
)

// NewStorage opens (or creates) the database at dbPath.
func NewStorage(dbPath string) (*Storage, error) {
	dbDir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dbDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create DB directory: %w", err)
	}

	// Connect to SQLite (Pure Go)
	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := db.AutoMigrate(&domain.InstrumentRecord{}, &domain.AppConfig{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return &Storage{db: db}, nil
}

// DefaultDBPath resolves the database file under baseDir.
func DefaultDBPath(baseDir string) string {
	return filepath.Join(baseDir, "data", "market_engine.db")
}

// Close releases the underlying connection.
func (s *Storage) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// ======================================================================================
// Instrument Cache
// ======================================================================================

// SaveInstruments replaces the cached table with instruments, keeping the
// given order as rank. Icon paths already recorded are preserved.
func (s *Storage) SaveInstruments(instruments []domain.Instrument) error {
	if len(instruments) == 0 {
		return nil
	}
	return s.db.Transaction(func(tx *gorm.DB) error {
		ids := make([]string, 0, len(instruments))
		records := make([]domain.InstrumentRecord, 0, len(instruments))
		for i, in := range instruments {
			ids = append(ids, in.ID)
			records = append(records, domain.NewInstrumentRecord(in, i+1))
		}

		if err := tx.Where("id NOT IN ?", ids).Delete(&domain.InstrumentRecord{}).Error; err != nil {
			return err
		}

		return tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"symbol", "name", "price", "change_24h_pct", "market_cap",
				"volume_24h", "image_url", "position", "last_updated", "updated_at",
			}),
		}).Create(&records).Error
	})
}

// LoadInstruments returns the cached table ordered by rank.
func (s *Storage) LoadInstruments() ([]domain.Instrument, error) {
	var records []domain.InstrumentRecord
	if err := s.db.Order("position asc").Find(&records).Error; err != nil {
		return nil, err
	}
	out := make([]domain.Instrument, 0, len(records))
	for _, r := range records {
		out = append(out, r.ToInstrument())
	}
	return out, nil
}

// GetInstrument retrieves a cached row by ID
func (s *Storage) GetInstrument(id string) (*domain.InstrumentRecord, error) {
	var rec domain.InstrumentRecord
	err := s.db.First(&rec, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil // Not found is not an error
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// SetIconPaths records downloaded icon locations by instrument ID.
func (s *Storage) SetIconPaths(paths map[string]string) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		for id, p := range paths {
			if err := tx.Model(&domain.InstrumentRecord{}).Where("id = ?", id).Update("icon_path", p).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// SaveGlobals stores the last good globals as a JSON setting.
func (s *Storage) SaveGlobals(g domain.MarketGlobals) error {
	b, err := json.Marshal(g)
	if err != nil {
		return err
	}
	return s.SaveConfig(domain.SettingGlobals, string(b))
}

// LoadGlobals returns the stored globals, if any.
func (s *Storage) LoadGlobals() (domain.MarketGlobals, bool, error) {
	v, ok, err := s.LoadConfig(domain.SettingGlobals)
	if err != nil || !ok {
		return domain.MarketGlobals{}, false, err
	}
	var g domain.MarketGlobals
	if err := json.Unmarshal([]byte(v), &g); err != nil {
		return domain.MarketGlobals{}, false, err
	}
	return g, true, nil
}

// ======================================================================================
// Config Operations
// ======================================================================================

// SaveConfig saves a user configuration
func (s *Storage) SaveConfig(key, value string) error {
	config := domain.AppConfig{
		Key:   key,
		Value: value,
	}
	return s.db.Save(&config).Error
}

// LoadConfig loads one user configuration value.
func (s *Storage) LoadConfig(key string) (string, bool, error) {
	var cfg domain.AppConfig
	err := s.db.Where(&domain.AppConfig{Key: key}).First(&cfg).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return cfg.Value, true, nil
}

// LoadConfigMap loads all user configurations as a map
func (s *Storage) LoadConfigMap() (map[string]string, error) {
	var configs []domain.AppConfig
	if err := s.db.Find(&configs).Error; err != nil {
		return nil, err
	}

	result := make(map[string]string)
	for _, cfg := range configs {
		result[cfg.Key] = cfg.Value
	}
	return result, nil
}
