package database

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"reporting-gateway/internal/models"

	"github.com/lib/pq"
	"go.uber.org/zap"
	"gocloud.dev/postgres"
	_ "gocloud.dev/postgres/awspostgres"
	_ "gocloud.dev/postgres/gcppostgres"
)

//go:embed schema.sql
var schema string

const uniqueViolation = "23505"

var _ Directory = (*PostgresDirectory)(nil)

// PostgresDirectory is the Directory backed by PostgreSQL
type PostgresDirectory struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewPostgresDirectory opens databaseURL (any gocloud postgres scheme) and
// waits for it to accept connections.
func NewPostgresDirectory(ctx context.Context, databaseURL string, logger *zap.Logger) (*PostgresDirectory, error) {
	// Retry connection with linear backoff
	var db *sql.DB
	var err error
	maxRetries := 5
	for i := 0; i < maxRetries; i++ {
		db, err = postgres.Open(ctx, databaseURL)
		if err == nil {
			// Test the connection
			if err = db.PingContext(ctx); err == nil {
				break
			}
			db.Close()
		}
		if i < maxRetries-1 {
			waitTime := time.Duration(i+1) * time.Second
			logger.Warn("Failed to connect to database, retrying...", zap.Int("attempt", i+1), zap.Duration("wait", waitTime), zap.Error(err))
			time.Sleep(waitTime)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database after %d attempts: %w", maxRetries, err)
	}

	return NewPostgresDirectoryFromDB(db, logger), nil
}

// NewPostgresDirectoryFromDB wraps an open database handle
func NewPostgresDirectoryFromDB(db *sql.DB, logger *zap.Logger) *PostgresDirectory {
	return &PostgresDirectory{
		db:     db,
		logger: logger,
	}
}

// Close closes the database connection
func (d *PostgresDirectory) Close() error {
	return d.db.Close()
}

// Migrate creates the directory tables if they do not exist
func (d *PostgresDirectory) Migrate(ctx context.Context) error {
	if _, err := d.db.ExecContext(ctx, schema); err != nil {
		d.logger.Error("Failed to apply schema", zap.Error(err))
		return err
	}
	return nil
}

const userColumns = `id, username, display_name, email, password_hash, active,
		failed_login_attempts, lockout_end, last_login_at, created_at, updated_at`

// GetUserByUsername retrieves a user by username, ignoring case
func (d *PostgresDirectory) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE lower(username) = lower($1)`
	user, err := scanUser(d.db.QueryRowContext(ctx, query, username))
	if err != nil {
		d.logger.Error("Failed to get user by username", zap.String("username", username), zap.Error(err))
		return nil, err
	}
	return user, nil
}

// GetUserByID retrieves a user by ID
func (d *PostgresDirectory) GetUserByID(ctx context.Context, userID int64) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	user, err := scanUser(d.db.QueryRowContext(ctx, query, userID))
	if err != nil {
		d.logger.Error("Failed to get user by ID", zap.Int64("user_id", userID), zap.Error(err))
		return nil, err
	}
	return user, nil
}

func scanUser(row *sql.Row) (*models.User, error) {
	var (
		user        models.User
		email       sql.NullString
		lockoutEnd  sql.NullTime
		lastLoginAt sql.NullTime
	)
	err := row.Scan(
		&user.ID,
		&user.Username,
		&user.DisplayName,
		&email,
		&user.PasswordHash,
		&user.Active,
		&user.FailedLoginAttempts,
		&lockoutEnd,
		&lastLoginAt,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	user.Email = email.String
	if lockoutEnd.Valid {
		user.LockoutEnd = &lockoutEnd.Time
	}
	if lastLoginAt.Valid {
		user.LastLoginAt = &lastLoginAt.Time
	}
	return &user, nil
}

// LoadGrants reads a user's roles, white labels and affiliates
func (d *PostgresDirectory) LoadGrants(ctx context.Context, userID int64) (*models.Grants, error) {
	grants := &models.Grants{Affiliates: map[int][]string{}}

	roleRows, err := d.db.QueryContext(ctx, `SELECT role FROM user_roles WHERE user_id = $1 ORDER BY role`, userID)
	if err != nil {
		d.logger.Error("Failed to get user roles", zap.Int64("user_id", userID), zap.Error(err))
		return nil, err
	}
	defer roleRows.Close()
	for roleRows.Next() {
		var role string
		if err := roleRows.Scan(&role); err != nil {
			return nil, err
		}
		grants.Roles = append(grants.Roles, role)
	}
	if err := roleRows.Err(); err != nil {
		return nil, err
	}

	wlRows, err := d.db.QueryContext(ctx,
		`SELECT white_label_id FROM user_white_labels WHERE user_id = $1 ORDER BY white_label_id`, userID)
	if err != nil {
		d.logger.Error("Failed to get white label grants", zap.Int64("user_id", userID), zap.Error(err))
		return nil, err
	}
	defer wlRows.Close()
	for wlRows.Next() {
		var id int
		if err := wlRows.Scan(&id); err != nil {
			return nil, err
		}
		grants.WhiteLabels = append(grants.WhiteLabels, id)
	}
	if err := wlRows.Err(); err != nil {
		return nil, err
	}

	affRows, err := d.db.QueryContext(ctx,
		`SELECT white_label_id, affiliate_id FROM user_affiliates WHERE user_id = $1 ORDER BY white_label_id, affiliate_id`, userID)
	if err != nil {
		d.logger.Error("Failed to get affiliate grants", zap.Int64("user_id", userID), zap.Error(err))
		return nil, err
	}
	defer affRows.Close()
	for affRows.Next() {
		var (
			wl  int
			aff string
		)
		if err := affRows.Scan(&wl, &aff); err != nil {
			return nil, err
		}
		grants.Affiliates[wl] = append(grants.Affiliates[wl], aff)
	}
	if err := affRows.Err(); err != nil {
		return nil, err
	}

	return grants, nil
}

// RecordFailedLogin increments the counter in a single statement so
// concurrent failures cannot lose an increment.
func (d *PostgresDirectory) RecordFailedLogin(ctx context.Context, userID int64, threshold int, lockoutUntil time.Time) (int, error) {
	query := `
		UPDATE users
		SET failed_login_attempts = failed_login_attempts + 1,
		    lockout_end = CASE WHEN failed_login_attempts + 1 >= $2 THEN $3 ELSE lockout_end END,
		    updated_at = now()
		WHERE id = $1
		RETURNING failed_login_attempts
	`

	var attempts int
	err := d.db.QueryRowContext(ctx, query, userID, threshold, lockoutUntil).Scan(&attempts)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrNoSuchUser
	}
	if err != nil {
		d.logger.Error("Failed to record failed login", zap.Int64("user_id", userID), zap.Error(err))
		return 0, err
	}
	return attempts, nil
}

// RecordSuccessfulLogin clears lockout state and stamps last_login_at
func (d *PostgresDirectory) RecordSuccessfulLogin(ctx context.Context, userID int64, at time.Time) error {
	query := `
		UPDATE users
		SET failed_login_attempts = 0, lockout_end = NULL, last_login_at = $2, updated_at = now()
		WHERE id = $1
	`
	return d.execOne(ctx, "record successful login", query, userID, at)
}

// ListWhiteLabelIDs returns the white label catalog
func (d *PostgresDirectory) ListWhiteLabelIDs(ctx context.Context) ([]int, error) {
	rows, err := d.db.QueryContext(ctx, `SELECT id FROM white_labels ORDER BY id`)
	if err != nil {
		d.logger.Error("Failed to list white labels", zap.Error(err))
		return nil, err
	}
	defer rows.Close()

	var ids []int
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return ids, nil
}

// UpsertWhiteLabel adds a white label to the catalog or renames it
func (d *PostgresDirectory) UpsertWhiteLabel(ctx context.Context, id int, name string) error {
	query := `
		INSERT INTO white_labels (id, name) VALUES ($1, $2)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name
	`
	if _, err := d.db.ExecContext(ctx, query, id, name); err != nil {
		d.logger.Error("Failed to upsert white label", zap.Int("white_label_id", id), zap.Error(err))
		return err
	}
	return nil
}

// CreateUser inserts a new user and returns its id
func (d *PostgresDirectory) CreateUser(ctx context.Context, user *models.User) (int64, error) {
	query := `
		INSERT INTO users (username, display_name, email, password_hash, active)
		VALUES ($1, $2, NULLIF($3, ''), $4, $5)
		RETURNING id
	`

	var id int64
	err := d.db.QueryRowContext(ctx, query, user.Username, user.DisplayName, user.Email, user.PasswordHash, user.Active).Scan(&id)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return 0, ErrUserExists
		}
		d.logger.Error("Failed to create user", zap.String("username", user.Username), zap.Error(err))
		return 0, err
	}
	return id, nil
}

// SetActive enables or disables an account
func (d *PostgresDirectory) SetActive(ctx context.Context, userID int64, active bool) error {
	return d.execOne(ctx, "set active", `UPDATE users SET active = $2, updated_at = now() WHERE id = $1`, userID, active)
}

// SetRoles replaces all role assignments for a user
func (d *PostgresDirectory) SetRoles(ctx context.Context, userID int64, roles []string) error {
	return d.replaceGrants(ctx, userID,
		`DELETE FROM user_roles WHERE user_id = $1`,
		`INSERT INTO user_roles (user_id, role) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
		toArgs(roles))
}

// SetWhiteLabelGrants replaces all white label grants for a user
func (d *PostgresDirectory) SetWhiteLabelGrants(ctx context.Context, userID int64, whiteLabelIDs []int) error {
	return d.replaceGrants(ctx, userID,
		`DELETE FROM user_white_labels WHERE user_id = $1`,
		`INSERT INTO user_white_labels (user_id, white_label_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
		toArgs(whiteLabelIDs))
}

// SetAffiliateGrants replaces the affiliate grants a user holds within one white label
func (d *PostgresDirectory) SetAffiliateGrants(ctx context.Context, userID int64, whiteLabelID int, affiliateIDs []string) error {
	args := make([][]any, len(affiliateIDs))
	for i, aff := range affiliateIDs {
		args[i] = []any{whiteLabelID, aff}
	}
	return d.replaceGrantRows(ctx, userID,
		`DELETE FROM user_affiliates WHERE user_id = $1 AND white_label_id = $2`, []any{whiteLabelID},
		`INSERT INTO user_affiliates (user_id, white_label_id, affiliate_id) VALUES ($1, $2, $3) ON CONFLICT DO NOTHING`,
		args)
}

func toArgs[T any](values []T) [][]any {
	out := make([][]any, len(values))
	for i, v := range values {
		out[i] = []any{v}
	}
	return out
}

func (d *PostgresDirectory) replaceGrants(ctx context.Context, userID int64, deleteQuery, insertQuery string, rows [][]any) error {
	return d.replaceGrantRows(ctx, userID, deleteQuery, nil, insertQuery, rows)
}

// replaceGrantRows deletes and re-inserts grant rows for userID in one
// transaction. Every statement receives userID as $1.
func (d *PostgresDirectory) replaceGrantRows(ctx context.Context, userID int64, deleteQuery string, deleteArgs []any, insertQuery string, rows [][]any) (err error) {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				d.logger.Error("Failed to rollback transaction", zap.Error(rbErr))
			}
		}
	}()

	var exists int
	if err = tx.QueryRowContext(ctx, `SELECT 1 FROM users WHERE id = $1 FOR UPDATE`, userID).Scan(&exists); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			err = ErrNoSuchUser
		}
		return err
	}

	if _, err = tx.ExecContext(ctx, deleteQuery, append([]any{userID}, deleteArgs...)...); err != nil {
		d.logger.Error("Failed to delete grants", zap.Int64("user_id", userID), zap.Error(err))
		return err
	}

	for _, row := range rows {
		if _, err = tx.ExecContext(ctx, insertQuery, append([]any{userID}, row...)...); err != nil {
			d.logger.Error("Failed to insert grant", zap.Int64("user_id", userID), zap.Error(err))
			return err
		}
	}

	if err = tx.Commit(); err != nil {
		d.logger.Error("Failed to commit grant transaction", zap.Int64("user_id", userID), zap.Error(err))
		return err
	}
	return nil
}

func (d *PostgresDirectory) execOne(ctx context.Context, op, query string, args ...any) error {
	res, err := d.db.ExecContext(ctx, query, args...)
	if err != nil {
		d.logger.Error("Failed to "+op, zap.Error(err))
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNoSuchUser
	}
	return nil
}
