package service

import "github.com/google/uuid"

// Owned is implemented by entities a user can control.
type Owned interface {
	OwnedBy(userID uuid.UUID) bool
}

// authorizeOwner is the one ownership check used by every flow that acts on
// someone's entity.
func authorizeOwner(actorID uuid.UUID, entity Owned) error {
	if entity == nil || actorID == uuid.Nil || !entity.OwnedBy(actorID) {
		return ErrNotOwner
	}
	return nil
}

// ownerPredicate adapts a plain user id so it can go through authorizeOwner.
type ownerPredicate uuid.UUID

func (o ownerPredicate) OwnedBy(userID uuid.UUID) bool { return uuid.UUID(o) == userID }
