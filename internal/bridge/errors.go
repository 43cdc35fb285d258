package bridge

import "errors"

// Verification failures.
var (
	ErrCodeNotFound     = errors.New("verification code not found")
	ErrCodeExpired      = errors.New("verification code expired")
	ErrCodeAlreadyUsed  = errors.New("verification code already used")
	ErrIdentityMismatch = errors.New("code was issued to a different account")
	ErrKindMismatch     = errors.New("code was issued for a different chat kind")
)

// Link registry failures.
var (
	ErrAlreadyLinked = errors.New("chat is already linked")
	ErrLinkNotFound  = errors.New("link not found")
	ErrUserNotFound  = errors.New("user not found")
	ErrNotOwner      = errors.New("not the owner")
)

// Pairing failures.
var (
	ErrPairNotFound      = errors.New("pair not found")
	ErrCrossOwnership    = errors.New("links belong to different owners")
	ErrSamePlatform      = errors.New("links are on the same platform")
	ErrLinkAlreadyPaired = errors.New("link already participates in an enabled pair")
	ErrDMNotOptedIn      = errors.New("dm bridging requires explicit opt-in")
	ErrNoRoute           = errors.New("no route for chat")
)

// IsConflict reports whether err is a uniqueness or ownership violation
// that should be reported to the user without being treated as a fault.
func IsConflict(err error) bool {
	return errors.Is(err, ErrAlreadyLinked) ||
		errors.Is(err, ErrNotOwner) ||
		errors.Is(err, ErrCrossOwnership) ||
		errors.Is(err, ErrSamePlatform) ||
		errors.Is(err, ErrLinkAlreadyPaired)
}

// IsCodeRejection reports whether err is one of the specific redemption
// failures that must be surfaced to the user as an actionable message.
func IsCodeRejection(err error) bool {
	return errors.Is(err, ErrCodeNotFound) ||
		errors.Is(err, ErrCodeExpired) ||
		errors.Is(err, ErrCodeAlreadyUsed) ||
		errors.Is(err, ErrIdentityMismatch) ||
		errors.Is(err, ErrKindMismatch)
}
