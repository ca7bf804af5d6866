package model

import (
	"time"

	"github.com/google/uuid"

	"trustguard/engine/internal/trust"
)

// ActivityCounter names a per-user activity column that only ever grows.
type ActivityCounter string

const (
	CounterPosts         ActivityCounter = "posts_count"
	CounterComments      ActivityCounter = "comments_count"
	CounterLikesReceived ActivityCounter = "likes_received_count"
	CounterFollowers     ActivityCounter = "followers_count"
)

// CounterFor maps an activity to the column it bumps, if any.
func CounterFor(a trust.Activity) (ActivityCounter, bool) {
	switch a {
	case trust.ActivityPostCreated:
		return CounterPosts, true
	case trust.ActivityCommentCreated:
		return CounterComments, true
	case trust.ActivityLikeReceived:
		return CounterLikesReceived, true
	case trust.ActivityFollowerGained:
		return CounterFollowers, true
	}
	return "", false
}

// TrustScore is the durable per-user trust record. TrustLevel is a cached
// projection of the other fields through trust.ComputeLevel.
type TrustScore struct {
	UserID             uuid.UUID   `gorm:"type:uuid;primaryKey" json:"user_id"`
	TrustLevel         trust.Level `gorm:"type:smallint;not null;default:0;index" json:"trust_level"`
	VerifiedOverride   bool        `gorm:"not null;default:false" json:"verified_override"`
	TrustPoints        int         `gorm:"not null;default:0" json:"trust_points"`
	PostsCount         int         `gorm:"not null;default:0" json:"posts_count"`
	CommentsCount      int         `gorm:"not null;default:0" json:"comments_count"`
	LikesReceivedCount int         `gorm:"not null;default:0" json:"likes_received_count"`
	FollowersCount     int         `gorm:"not null;default:0" json:"followers_count"`
	FlagsReceived      int         `gorm:"not null;default:0" json:"flags_received"`
	Strikes            int         `gorm:"not null;default:0" json:"strikes"`
	BannedUntil        *time.Time  `json:"-"`
	InvitesSent        int         `gorm:"not null;default:0" json:"invites_sent"`
	SuccessfulInvites  int         `gorm:"not null;default:0" json:"successful_invites"`
	LastActivityAt     *time.Time  `json:"last_activity_at,omitempty"`
	CreatedAt          time.Time   `json:"created_at"`
	UpdatedAt          time.Time   `json:"updated_at"`
}

func (TrustScore) TableName() string { return "user_trust_scores" }

// Metrics projects the record onto the inputs of the level rule.
func (s *TrustScore) Metrics(now time.Time) trust.Metrics {
	return trust.Metrics{
		AccountAge:       now.Sub(s.CreatedAt),
		Posts:            s.PostsCount,
		Points:           s.TrustPoints,
		Flags:            s.FlagsReceived,
		Strikes:          s.Strikes,
		VerifiedOverride: s.VerifiedOverride,
	}
}

// IsBanned is a plain timestamp comparison; expired bans are never cleared.
func (s *TrustScore) IsBanned(now time.Time) bool {
	return s.BannedUntil != nil && s.BannedUntil.After(now)
}

// AddPoints applies delta and floors the result at zero.
func (s *TrustScore) AddPoints(delta int) {
	s.TrustPoints = trust.ClampPoints(s.TrustPoints + delta)
}
