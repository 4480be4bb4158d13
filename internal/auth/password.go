package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"reporting-gateway/internal/models"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// ErrUnsupportedHash is returned for stored hashes that are not bcrypt.
var ErrUnsupportedHash = errors.New("auth: unsupported password hash format")

// decoyHash is compared on failures that have no usable stored hash, so
// every failed login costs one bcrypt comparison.
var decoyHash = sync.OnceValue(func() []byte {
	hash, err := bcrypt.GenerateFromPassword([]byte("reporting-gateway-decoy"), bcrypt.DefaultCost)
	if err != nil {
		panic(fmt.Sprintf("auth: generate decoy hash: %v", err))
	}
	return hash
})

// UserStore is the slice of the user directory the verifier needs.
type UserStore interface {
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
	GetUserByID(ctx context.Context, userID int64) (*models.User, error)
	LoadGrants(ctx context.Context, userID int64) (*models.Grants, error)
	RecordFailedLogin(ctx context.Context, userID int64, threshold int, lockoutUntil time.Time) (int, error)
	RecordSuccessfulLogin(ctx context.Context, userID int64, at time.Time) error
}

// HashPassword hashes plaintext password using bcrypt.
func HashPassword(password string) (string, error) {
	if len(password) == 0 {
		return "", errors.New("password is empty")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// VerifyPassword compares plaintext password with stored hash. Hashes in any
// format other than bcrypt are rejected rather than compared.
func VerifyPassword(hash, password string) error {
	if !isBcryptHash(hash) {
		return ErrUnsupportedHash
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
}

func isBcryptHash(hash string) bool {
	for _, prefix := range []string{"$2a$", "$2b$", "$2y$"} {
		if strings.HasPrefix(hash, prefix) {
			return true
		}
	}
	return false
}

// Verifier checks username/password pairs against the directory and
// maintains the failed-attempt lockout.
type Verifier struct {
	users     UserStore
	threshold int
	lockout   time.Duration
	now       func() time.Time
	compare   func(hash, password []byte) error
	logger    *zap.Logger
}

// VerifierOption configures a Verifier.
type VerifierOption func(*Verifier)

// WithVerifierClock overrides the verifier's time source.
func WithVerifierClock(now func() time.Time) VerifierOption {
	return func(v *Verifier) {
		v.now = now
	}
}

// NewVerifier creates a verifier locking accounts for lockout after
// threshold consecutive bad passwords.
func NewVerifier(users UserStore, threshold int, lockout time.Duration, logger *zap.Logger, opts ...VerifierOption) *Verifier {
	v := &Verifier{
		users:     users,
		threshold: threshold,
		lockout:   lockout,
		now:       time.Now,
		compare:   bcrypt.CompareHashAndPassword,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Verify authenticates username/password and returns the hydrated principal.
// Authentication failures wrap ErrAuthentication; other errors are directory
// failures.
func (v *Verifier) Verify(ctx context.Context, username, password string) (*models.Principal, error) {
	user, err := v.users.GetUserByUsername(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("lookup user: %w", err)
	}
	now := v.now()
	switch {
	case user == nil:
		v.compareDecoy(password)
		return nil, ErrUserNotFound
	case !user.Active:
		v.compareDecoy(password)
		return nil, ErrUserInactive
	case user.IsLockedOut(now):
		v.compareDecoy(password)
		return nil, ErrLockedOut
	}

	if err := v.checkPassword(user, password); err != nil {
		if errors.Is(err, ErrUnsupportedHash) {
			v.logger.Warn("Stored password hash is not bcrypt", zap.Int64("user_id", user.ID))
		}
		attempts, recErr := v.users.RecordFailedLogin(ctx, user.ID, v.threshold, now.Add(v.lockout))
		if recErr != nil {
			v.logger.Error("Failed to record failed login", zap.Int64("user_id", user.ID), zap.Error(recErr))
		} else if attempts >= v.threshold {
			v.logger.Warn("Account locked out",
				zap.Int64("user_id", user.ID),
				zap.Int("failed_attempts", attempts),
				zap.Duration("lockout", v.lockout))
		}
		return nil, ErrBadCredential
	}

	if err := v.users.RecordSuccessfulLogin(ctx, user.ID, now); err != nil {
		return nil, fmt.Errorf("record login: %w", err)
	}
	user.FailedLoginAttempts = 0
	user.LockoutEnd = nil
	user.LastLoginAt = &now

	return v.hydrate(ctx, user)
}

// checkPassword compares against the stored bcrypt hash. Non-bcrypt hashes
// are rejected after a decoy comparison.
func (v *Verifier) checkPassword(user *models.User, password string) error {
	if !isBcryptHash(user.PasswordHash) {
		v.compareDecoy(password)
		return ErrUnsupportedHash
	}
	return v.compare([]byte(user.PasswordHash), []byte(password))
}

func (v *Verifier) compareDecoy(password string) {
	_ = v.compare(decoyHash(), []byte(password))
}

// LoadPrincipal re-reads a principal by id, applying the same account state
// checks as a login.
func (v *Verifier) LoadPrincipal(ctx context.Context, userID int64) (*models.Principal, error) {
	user, err := v.users.GetUserByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("lookup user: %w", err)
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	if !user.Active {
		return nil, ErrUserInactive
	}
	if user.IsLockedOut(v.now()) {
		return nil, ErrLockedOut
	}
	return v.hydrate(ctx, user)
}

func (v *Verifier) hydrate(ctx context.Context, user *models.User) (*models.Principal, error) {
	grants, err := v.users.LoadGrants(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("load grants: %w", err)
	}
	return models.NewPrincipal(user, grants), nil
}
