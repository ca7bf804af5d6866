package model

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// UUIDSet stores a set of user ids as a JSONB array.
type UUIDSet []uuid.UUID

func (s UUIDSet) Value() (driver.Value, error) {
	if s == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(s)
}

func (s *UUIDSet) Scan(value interface{}) error {
	if value == nil {
		*s = nil
		return nil
	}
	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return errors.New("UUIDSet.Scan: unsupported source type")
	}
	return json.Unmarshal(bytes, s)
}

func (s UUIDSet) Contains(id uuid.UUID) bool {
	for _, v := range s {
		if v == id {
			return true
		}
	}
	return false
}

// DeviceFingerprint is one hashed client fingerprint and the accounts seen on it.
type DeviceFingerprint struct {
	FingerprintHash string     `gorm:"type:varchar(128);primaryKey" json:"fingerprint_hash"`
	UserIDs         UUIDSet    `gorm:"type:jsonb;not null" json:"-"`
	AccountCount    int        `gorm:"not null;default:0" json:"account_count"`
	RiskScore       int        `gorm:"not null;default:0;index" json:"-"`
	IsBlocked       bool       `gorm:"not null;default:false" json:"is_blocked"`
	BlockReason     *string    `gorm:"type:varchar(512)" json:"-"`
	BlockedAt       *time.Time `json:"-"`
	UserAgent       *string    `gorm:"type:varchar(512)" json:"user_agent,omitempty"`
	LastSeenAt      time.Time  `gorm:"index" json:"last_seen_at"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

func (DeviceFingerprint) TableName() string { return "device_fingerprints" }

func (d *DeviceFingerprint) OwnedBy(userID uuid.UUID) bool {
	return d.UserIDs.Contains(userID)
}
