package model

import "gorm.io/gorm"

// AutoMigrate runs GORM auto-migration for all models and creates custom indexes.
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&TrustScore{},
		&DeviceFingerprint{},
		&InviteCode{},
		&InviteRelationship{},
	); err != nil {
		return err
	}

	// An invitee joins the forest exactly once.
	if err := db.Exec(
		"CREATE UNIQUE INDEX IF NOT EXISTS idx_invite_relationships_invitee " +
			"ON invite_relationships (invitee_id)",
	).Error; err != nil {
		return err
	}

	// Containment lookups for "devices used by this user".
	return db.Exec(
		"CREATE INDEX IF NOT EXISTS idx_device_fingerprints_user_ids " +
			"ON device_fingerprints USING GIN (user_ids jsonb_path_ops)",
	).Error
}
