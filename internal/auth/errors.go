package auth

import (
	"errors"
	"fmt"
)

// ErrAuthentication is wrapped by every login failure reason, so callers can
// answer with one generic message while logging the specific cause.
var ErrAuthentication = errors.New("auth: authentication failed")

var (
	ErrUserNotFound  = fmt.Errorf("%w: user not found", ErrAuthentication)
	ErrUserInactive  = fmt.Errorf("%w: account inactive", ErrAuthentication)
	ErrLockedOut     = fmt.Errorf("%w: account locked out", ErrAuthentication)
	ErrBadCredential = fmt.Errorf("%w: bad credential", ErrAuthentication)
)

var (
	// ErrInvalidToken covers malformed, mis-signed and foreign access tokens.
	ErrInvalidToken = errors.New("auth: invalid access token")
	// ErrTokenExpired also matches ErrInvalidToken.
	ErrTokenExpired = fmt.Errorf("%w: expired", ErrInvalidToken)

	ErrInvalidRefreshToken = errors.New("auth: invalid refresh token")
	ErrExpiredRefreshToken = errors.New("auth: refresh token expired")
)
