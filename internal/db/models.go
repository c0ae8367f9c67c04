package db

import (
	"time"

	"gorm.io/gorm"
)

// SessionValue is one persisted key of the local session: the snapshot
// blob, the cached player identity or an auth token.
type SessionValue struct {
	Key       string    `gorm:"primaryKey;column:session_key;type:varchar(255)"`
	Value     string    `gorm:"column:value;type:text;not null"`
	UpdatedAt time.Time `gorm:"column:updated_at"`
}

func (SessionValue) TableName() string {
	return "session_values"
}

// AutoMigrate creates or updates the tables used by the client.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&SessionValue{})
}
