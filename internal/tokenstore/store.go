package tokenstore

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

const (
	keyAccess  = "access_token"
	keyRefresh = "refresh_token"
)

type credential struct {
	Key   string `gorm:"primaryKey"`
	Value string `gorm:"not null"`
}

// Pair is the persisted token pair. An absent token is an empty string.
type Pair struct {
	Access  string
	Refresh string
}

// Store keeps the token pair in a local sqlite database so a session
// survives across runs.
type Store struct {
	db *gorm.DB
}

func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("create state dir: %w", err)
		}
	}
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Discard,
	})
	if err != nil {
		return nil, fmt.Errorf("open state db: %w", err)
	}
	return New(db)
}

func New(db *gorm.DB) (*Store, error) {
	if err := db.AutoMigrate(&credential{}); err != nil {
		return nil, fmt.Errorf("migrate state db: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Save(p Pair) error {
	if err := s.put(keyAccess, p.Access); err != nil {
		return err
	}
	return s.put(keyRefresh, p.Refresh)
}

// SaveAccess replaces only the access token, keeping the refresh token.
// Used after a refresh exchange.
func (s *Store) SaveAccess(token string) error {
	return s.put(keyAccess, token)
}

func (s *Store) Load() (Pair, error) {
	access, err := s.get(keyAccess)
	if err != nil {
		return Pair{}, err
	}
	refresh, err := s.get(keyRefresh)
	if err != nil {
		return Pair{}, err
	}
	return Pair{Access: access, Refresh: refresh}, nil
}

// Clear removes both tokens unconditionally. Clearing an empty store is
// not an error.
func (s *Store) Clear() error {
	if err := s.db.Where("1 = 1").Delete(&credential{}).Error; err != nil {
		return fmt.Errorf("clear state db: %w", err)
	}
	return nil
}

func (s *Store) put(key, value string) error {
	row := credential{Key: key, Value: value}
	err := s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value"}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("save %s: %w", key, err)
	}
	return nil
}

func (s *Store) get(key string) (string, error) {
	var row credential
	err := s.db.First(&row, "key = ?", key).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("load %s: %w", key, err)
	}
	return row.Value, nil
}
