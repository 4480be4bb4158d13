package database_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"reporting-gateway/internal/database"
	"reporting-gateway/internal/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var userCols = []string{
	"id", "username", "display_name", "email", "password_hash", "active",
	"failed_login_attempts", "lockout_end", "last_login_at", "created_at", "updated_at",
}

func newMockDirectory(t *testing.T) (*database.PostgresDirectory, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		db.Close()
	})
	return database.NewPostgresDirectoryFromDB(db, zap.NewNop()), mock
}

func TestPostgresDirectory_GetUserByUsername(t *testing.T) {
	dir, mock := newMockDirectory(t)
	created := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	lockout := created.Add(time.Hour)

	mock.ExpectQuery(`FROM users WHERE lower\(username\) = lower\(\$1\)`).
		WithArgs("Alice").
		WillReturnRows(sqlmock.NewRows(userCols).
			AddRow(int64(7), "alice", "Alice A", nil, "$2a$10$hash", true, 2, lockout, nil, created, created))

	user, err := dir.GetUserByUsername(context.Background(), "Alice")
	require.NoError(t, err)
	require.NotNil(t, user)
	assert.Equal(t, int64(7), user.ID)
	assert.Equal(t, "alice", user.Username)
	assert.Empty(t, user.Email)
	assert.Equal(t, 2, user.FailedLoginAttempts)
	require.NotNil(t, user.LockoutEnd)
	assert.True(t, lockout.Equal(*user.LockoutEnd))
	assert.Nil(t, user.LastLoginAt)
}

func TestPostgresDirectory_GetUserByID_NotFound(t *testing.T) {
	dir, mock := newMockDirectory(t)

	mock.ExpectQuery(`FROM users WHERE id = \$1`).
		WithArgs(int64(99)).
		WillReturnRows(sqlmock.NewRows(userCols))

	user, err := dir.GetUserByID(context.Background(), 99)
	require.NoError(t, err)
	assert.Nil(t, user)
}

func TestPostgresDirectory_LoadGrants(t *testing.T) {
	dir, mock := newMockDirectory(t)

	mock.ExpectQuery(`SELECT role FROM user_roles`).WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"role"}).AddRow("Manager").AddRow("User"))
	mock.ExpectQuery(`SELECT white_label_id FROM user_white_labels`).WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"white_label_id"}).AddRow(1).AddRow(2))
	mock.ExpectQuery(`SELECT white_label_id, affiliate_id FROM user_affiliates`).WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"white_label_id", "affiliate_id"}).
			AddRow(1, "AFF1").AddRow(1, "AFF3").AddRow(2, "all"))

	grants, err := dir.LoadGrants(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, []string{"Manager", "User"}, grants.Roles)
	assert.Equal(t, []int{1, 2}, grants.WhiteLabels)
	assert.Equal(t, map[int][]string{1: {"AFF1", "AFF3"}, 2: {"all"}}, grants.Affiliates)
}

func TestPostgresDirectory_RecordFailedLogin(t *testing.T) {
	dir, mock := newMockDirectory(t)
	until := time.Now().Add(15 * time.Minute)

	mock.ExpectQuery(`UPDATE users\s+SET failed_login_attempts = failed_login_attempts \+ 1`).
		WithArgs(int64(7), 5, until).
		WillReturnRows(sqlmock.NewRows([]string{"failed_login_attempts"}).AddRow(5))

	attempts, err := dir.RecordFailedLogin(context.Background(), 7, 5, until)
	require.NoError(t, err)
	assert.Equal(t, 5, attempts)
}

func TestPostgresDirectory_RecordSuccessfulLogin_MissingUser(t *testing.T) {
	dir, mock := newMockDirectory(t)
	at := time.Now()

	mock.ExpectExec(`SET failed_login_attempts = 0, lockout_end = NULL`).
		WithArgs(int64(7), at).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := dir.RecordSuccessfulLogin(context.Background(), 7, at)
	assert.ErrorIs(t, err, database.ErrNoSuchUser)
}

func TestPostgresDirectory_ListWhiteLabelIDs(t *testing.T) {
	dir, mock := newMockDirectory(t)

	mock.ExpectQuery(`SELECT id FROM white_labels ORDER BY id`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1).AddRow(2).AddRow(276))

	ids, err := dir.ListWhiteLabelIDs(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 276}, ids)
}

func TestPostgresDirectory_CreateUser(t *testing.T) {
	user := &models.User{Username: "bob", DisplayName: "Bob", PasswordHash: "$2a$10$x", Active: true}

	t.Run("created", func(t *testing.T) {
		dir, mock := newMockDirectory(t)
		mock.ExpectQuery(`INSERT INTO users`).
			WithArgs("bob", "Bob", "", "$2a$10$x", true).
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(12)))

		id, err := dir.CreateUser(context.Background(), user)
		require.NoError(t, err)
		assert.Equal(t, int64(12), id)
	})

	t.Run("duplicate", func(t *testing.T) {
		dir, mock := newMockDirectory(t)
		mock.ExpectQuery(`INSERT INTO users`).
			WillReturnError(&pq.Error{Code: "23505"})

		_, err := dir.CreateUser(context.Background(), user)
		assert.ErrorIs(t, err, database.ErrUserExists)
	})
}

func TestPostgresDirectory_SetRoles(t *testing.T) {
	dir, mock := newMockDirectory(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT 1 FROM users WHERE id = \$1 FOR UPDATE`).WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))
	mock.ExpectExec(`DELETE FROM user_roles WHERE user_id = \$1`).WithArgs(int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO user_roles`).WithArgs(int64(7), "Admin").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO user_roles`).WithArgs(int64(7), "User").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, dir.SetRoles(context.Background(), 7, []string{"Admin", "User"}))
}

func TestPostgresDirectory_SetAffiliateGrants_RollsBack(t *testing.T) {
	dir, mock := newMockDirectory(t)
	boom := errors.New("boom")

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT 1 FROM users`).WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))
	mock.ExpectExec(`DELETE FROM user_affiliates WHERE user_id = \$1 AND white_label_id = \$2`).
		WithArgs(int64(7), 1).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`INSERT INTO user_affiliates`).WithArgs(int64(7), 1, "AFF1").
		WillReturnError(boom)
	mock.ExpectRollback()

	err := dir.SetAffiliateGrants(context.Background(), 7, 1, []string{"AFF1"})
	assert.ErrorIs(t, err, boom)
}

func TestPostgresDirectory_SetWhiteLabelGrants_MissingUser(t *testing.T) {
	dir, mock := newMockDirectory(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT 1 FROM users`).WithArgs(int64(42)).
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}))
	mock.ExpectRollback()

	err := dir.SetWhiteLabelGrants(context.Background(), 42, []int{1})
	assert.ErrorIs(t, err, database.ErrNoSuchUser)
}

func TestPostgresDirectory_Migrate(t *testing.T) {
	dir, mock := newMockDirectory(t)

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS users`).WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, dir.Migrate(context.Background()))
}
