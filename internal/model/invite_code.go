package model

import (
	"time"

	"github.com/google/uuid"
)

type InviteCode struct {
	Code       string     `gorm:"type:varchar(64);primaryKey" json:"code"`
	CreatedBy  uuid.UUID  `gorm:"type:uuid;not null;index" json:"created_by"`
	UsedBy     *uuid.UUID `gorm:"type:uuid" json:"used_by,omitempty"`
	UsedAt     *time.Time `json:"used_at,omitempty"`
	ExpiresAt  time.Time  `gorm:"not null" json:"expires_at"`
	InviteType string     `gorm:"type:varchar(32);not null;default:'standard'" json:"invite_type"`
	UseCount   int        `gorm:"not null;default:0" json:"use_count"`
	MaxUses    int        `gorm:"not null;default:1" json:"max_uses"`
	IsValid    bool       `gorm:"not null;default:true" json:"is_valid"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

func (InviteCode) TableName() string { return "invite_codes" }

func (c *InviteCode) OwnedBy(userID uuid.UUID) bool {
	return c.CreatedBy == userID
}

func (c *InviteCode) Exhausted() bool {
	return c.UseCount >= c.MaxUses
}

func (c *InviteCode) Expired(now time.Time) bool {
	return c.ExpiresAt.Before(now)
}

// InviteRelationship is an append-only edge recorded on each redemption.
type InviteRelationship struct {
	ID         uint64    `gorm:"primaryKey;autoIncrement" json:"-"`
	InviterID  uuid.UUID `gorm:"type:uuid;not null;index" json:"inviter_id"`
	InviteeID  uuid.UUID `gorm:"type:uuid;not null;index" json:"invitee_id"`
	InviteCode string    `gorm:"type:varchar(64);not null" json:"invite_code"`
	InvitedAt  time.Time `gorm:"not null" json:"invited_at"`
}

func (InviteRelationship) TableName() string { return "invite_relationships" }
