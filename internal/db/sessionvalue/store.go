package sessionvalue

import (
	"context"
	"errors"
	"time"

	"github.com/m0rjc/gomoku-pvp-client/internal/db"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Put creates or replaces the value stored under key (upsert)
func Put(conns *db.Connections, key, value string) error {
	record := &db.SessionValue{Key: key, Value: value, UpdatedAt: time.Now()}
	return conns.DB.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "session_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(record).Error
}

// Get retrieves the value stored under key
// Returns nil if not found
func Get(conns *db.Connections, key string) (*db.SessionValue, error) {
	var record db.SessionValue
	err := conns.DB.Where("session_key = ?", key).First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &record, nil
}

// Delete removes the value stored under key
func Delete(conns *db.Connections, key string) error {
	return conns.DB.Where("session_key = ?", key).Delete(&db.SessionValue{}).Error
}

// Storage adapts the session_values table to a key/value store.
type Storage struct {
	conns *db.Connections
}

func NewStorage(conns *db.Connections) *Storage {
	return &Storage{conns: conns}
}

func (s *Storage) Get(ctx context.Context, key string) (string, bool, error) {
	record, err := Get(s.withContext(ctx), key)
	if err != nil || record == nil {
		return "", false, err
	}
	return record.Value, true, nil
}

func (s *Storage) Set(ctx context.Context, key, value string) error {
	return Put(s.withContext(ctx), key, value)
}

func (s *Storage) Delete(ctx context.Context, key string) error {
	return Delete(s.withContext(ctx), key)
}

func (s *Storage) withContext(ctx context.Context) *db.Connections {
	return db.NewConnections(s.conns.DB.WithContext(ctx), s.conns.Redis)
}
