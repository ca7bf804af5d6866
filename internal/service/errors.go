package service

import (
	"errors"
	"fmt"
	"time"

	"trustguard/engine/internal/trust"
)

// Not found.
var (
	ErrTrustRecordNotFound = errors.New("trust record not found")
	ErrInviteNotFound      = errors.New("invite code not found")
	ErrDeviceNotFound      = errors.New("device not found")
)

// Policy violations: expected outcomes the caller reports to the end user.
var (
	ErrRateLimited         = errors.New("rate limit exceeded")
	ErrInviteLimitReached  = errors.New("maximum invite limit reached")
	ErrInviteRevoked       = errors.New("invite code has been revoked")
	ErrInviteExpired       = errors.New("invite code has expired")
	ErrInviteExhausted     = errors.New("invite code has been fully used")
	ErrInviteSelfRedeem    = errors.New("invite code cannot be redeemed by its creator")
	ErrAlreadyInvited      = errors.New("user has already redeemed an invite")
	ErrDeviceBlocked       = errors.New("this device is not allowed")
	ErrAccountSuspended    = errors.New("your account has been temporarily suspended")
	ErrNotOwner            = errors.New("resource does not belong to this user")
	ErrCodeSpaceExhausted  = errors.New("failed to generate unique invite code")
	ErrInvalidTrustLevel   = errors.New("invalid trust level")
	ErrUnknownActivityKind = errors.New("unknown activity")
)

var policyErrors = []error{
	ErrRateLimited,
	ErrInviteLimitReached,
	ErrInviteRevoked,
	ErrInviteExpired,
	ErrInviteExhausted,
	ErrInviteSelfRedeem,
	ErrAlreadyInvited,
	ErrDeviceBlocked,
	ErrAccountSuspended,
	ErrNotOwner,
}

// IsPolicyViolation separates expected denials from infrastructure failures.
func IsPolicyViolation(err error) bool {
	for _, target := range policyErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// RateLimitError is the denial for one exhausted window.
type RateLimitError struct {
	Action     trust.Action
	Limit      int
	Window     time.Duration
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded for action %s: %d per %s, retry in %ds",
		e.Action, e.Limit, e.Window, int(e.RetryAfter.Seconds()))
}

func (e *RateLimitError) Is(target error) bool { return target == ErrRateLimited }

// InviteLimitError carries the lifetime quota of the inviter's level.
type InviteLimitError struct {
	Level trust.Level
	Quota int
}

func (e *InviteLimitError) Error() string {
	return fmt.Sprintf("maximum invite limit reached for your trust level (%d)", e.Quota)
}

func (e *InviteLimitError) Is(target error) bool { return target == ErrInviteLimitReached }
