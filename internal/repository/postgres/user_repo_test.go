package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/require"

	"accountd/internal/errs"
	"accountd/internal/model"
)

func newDB(t *testing.T) (*DB, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	return &DB{Pool: mock}, mock
}

func userRows(u *model.User) *pgxmock.Rows {
	return pgxmock.NewRows([]string{
		"id", "email", "user_name", "first_name", "middle_name", "last_name", "company",
		"password_hash", "role", "is_email_verified", "mfa_enabled", "mfa_type", "mfa_secret",
		"created_at", "updated_at",
	}).AddRow(u.ID, u.Email, &u.Username, u.FirstName, u.MiddleName, u.LastName, u.Company,
		u.PasswordHash, u.Role, u.IsEmailVerified, u.MFAEnabled, u.MFAType, u.MFASecret,
		time.Now(), time.Now())
}

func TestUserRepo_Create_OK_and_UniqueViolation(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewUserRepo(db)
	ctx := context.Background()
	u := &model.User{
		ID:           uuid.New(),
		Email:        "User@Example.com",
		Username:     "user1",
		FirstName:    "First",
		PasswordHash: "h",
		Role:         "user",
	}

	// OK; email is lowercased before insert
	mock.ExpectExec(`INSERT INTO users`).
		WithArgs(u.ID, "user@example.com", u.Username, u.FirstName, u.MiddleName, u.LastName, u.Company,
			u.PasswordHash, u.Role, u.IsEmailVerified, u.MFAEnabled, u.MFAType, u.MFASecret).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	require.NoError(t, r.Create(ctx, u))

	// Unique violation
	mock.ExpectExec(`INSERT INTO users`).
		WithArgs(u.ID, "user@example.com", u.Username, u.FirstName, u.MiddleName, u.LastName, u.Company,
			u.PasswordHash, u.Role, u.IsEmailVerified, u.MFAEnabled, u.MFAType, u.MFASecret).
		WillReturnError(&pgconn.PgError{Code: "23505"})
	require.ErrorIs(t, r.Create(ctx, u), errs.ErrEmailTaken)
}

func TestUserRepo_GetByEmail(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewUserRepo(db)
	ctx := context.Background()
	u := &model.User{ID: uuid.New(), Email: "a@b.c", Username: "u", PasswordHash: "h", Role: "user"}

	mock.ExpectQuery(`SELECT .+ FROM users WHERE email=\$1`).
		WithArgs("a@b.c").
		WillReturnRows(userRows(u))
	got, err := r.GetByEmail(ctx, "A@B.C")
	require.NoError(t, err)
	require.Equal(t, u.ID, got.ID)
	require.Equal(t, "u", got.Username)

	mock.ExpectQuery(`SELECT .+ FROM users WHERE email=\$1`).
		WithArgs("a@b.c").
		WillReturnError(pgx.ErrNoRows)
	_, err = r.GetByEmail(ctx, "a@b.c")
	require.ErrorIs(t, err, errs.ErrUserNotFound)
}

func TestUserRepo_GetByEmailOrUsername(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewUserRepo(db)
	ctx := context.Background()
	u := &model.User{ID: uuid.New(), Email: "a@b.c", Username: "handle", PasswordHash: "h", Role: "user"}

	mock.ExpectQuery(`SELECT .+ FROM users WHERE email=\$1 OR user_name=\$2`).
		WithArgs("handle", "handle").
		WillReturnRows(userRows(u))
	got, err := r.GetByEmailOrUsername(ctx, "handle")
	require.NoError(t, err)
	require.Equal(t, "handle", got.Username)
}

func TestUserRepo_EmailTaken(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewUserRepo(db)
	ctx := context.Background()

	mock.ExpectQuery(`SELECT EXISTS`).
		WithArgs("a@b.c").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))
	taken, err := r.EmailTaken(ctx, "A@b.c")
	require.NoError(t, err)
	require.True(t, taken)
}

func TestUserRepo_Updates(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewUserRepo(db)
	ctx := context.Background()
	id := uuid.New()

	mock.ExpectExec(`UPDATE users SET password_hash=\$2`).
		WithArgs(id, "newhash").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	require.NoError(t, r.UpdatePasswordHash(ctx, id, "newhash"))

	mock.ExpectExec(`UPDATE users SET is_email_verified=TRUE`).
		WithArgs(id).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	require.NoError(t, r.SetEmailVerified(ctx, id))

	mock.ExpectExec(`UPDATE users SET mfa_type=\$2, mfa_secret=\$3`).
		WithArgs(id, model.MFATypeTOTP, "ciphertext").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	require.NoError(t, r.SetMFASecret(ctx, id, model.MFATypeTOTP, "ciphertext"))

	mock.ExpectExec(`UPDATE users SET mfa_enabled=\$2`).
		WithArgs(id, true).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	require.NoError(t, r.SetMFAEnabled(ctx, id, true))

	mock.ExpectExec(`UPDATE users SET mfa_enabled=FALSE, mfa_type='', mfa_secret=''`).
		WithArgs(id).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	require.NoError(t, r.ClearMFA(ctx, id))

	// Unknown user
	mock.ExpectExec(`UPDATE users SET password_hash=\$2`).
		WithArgs(id, "newhash").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	require.ErrorIs(t, r.UpdatePasswordHash(ctx, id, "newhash"), errs.ErrUserNotFound)
}
