package database

import (
	"context"
	"errors"
	"time"

	"reporting-gateway/internal/models"
)

// Directory is the user directory: account lookup, login bookkeeping, and
// the role and resource grants that drive authorization.
type Directory interface {
	Close() error
	Migrate(ctx context.Context) error

	// Lookups return nil, nil when the user does not exist.
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
	GetUserByID(ctx context.Context, userID int64) (*models.User, error)
	LoadGrants(ctx context.Context, userID int64) (*models.Grants, error)

	// RecordFailedLogin increments the failed-attempt counter and opens a
	// lockout until lockoutUntil once the counter reaches threshold. It
	// returns the new counter value.
	RecordFailedLogin(ctx context.Context, userID int64, threshold int, lockoutUntil time.Time) (int, error)
	// RecordSuccessfulLogin clears the counter and lockout and stamps the login time.
	RecordSuccessfulLogin(ctx context.Context, userID int64, at time.Time) error

	// ListWhiteLabelIDs returns every known white label id in ascending order.
	ListWhiteLabelIDs(ctx context.Context) ([]int, error)
	UpsertWhiteLabel(ctx context.Context, id int, name string) error

	CreateUser(ctx context.Context, user *models.User) (int64, error)
	SetActive(ctx context.Context, userID int64, active bool) error
	SetRoles(ctx context.Context, userID int64, roles []string) error
	SetWhiteLabelGrants(ctx context.Context, userID int64, whiteLabelIDs []int) error
	SetAffiliateGrants(ctx context.Context, userID int64, whiteLabelID int, affiliateIDs []string) error
}

var (
	// ErrUserExists is returned by CreateUser for a duplicate username.
	ErrUserExists = errors.New("database: username already exists")
	// ErrNoSuchUser is returned by write operations addressed to a missing user.
	ErrNoSuchUser = errors.New("database: user not found")
)
