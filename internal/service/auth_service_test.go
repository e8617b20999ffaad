package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campusops/invigil-api/internal/models"
	apperrors "github.com/campusops/invigil-api/pkg/errors"
)

type authAccountRepositoryStub struct {
	account    *models.Account
	lastLogin  time.Time
	loginCalls int
}

func (s *authAccountRepositoryStub) FindByEmail(_ context.Context, email string) (*models.Account, error) {
	if s.account == nil || s.account.Email != email {
		return nil, sql.ErrNoRows
	}
	clone := *s.account
	return &clone, nil
}

func (s *authAccountRepositoryStub) FindByID(_ context.Context, id string) (*models.Account, error) {
	if s.account == nil || s.account.ID != id {
		return nil, sql.ErrNoRows
	}
	clone := *s.account
	return &clone, nil
}

func (s *authAccountRepositoryStub) UpdateLastLogin(_ context.Context, _ string, at time.Time) error {
	s.loginCalls++
	s.lastLogin = at
	return nil
}

func facultyAccount(t *testing.T) *models.Account {
	t.Helper()
	hash, err := HashPassword("s3cret-pass")
	require.NoError(t, err)
	facultyID := "fac-1"
	return &models.Account{
		ID:           "acct-1",
		Email:        "meera.nair@example.edu",
		PasswordHash: hash,
		FullName:     "Dr. Meera Nair",
		Role:         models.RoleFaculty,
		FacultyID:    &facultyID,
		Active:       true,
	}
}

func TestAuthServiceLoginIssuesToken(t *testing.T) {
	repo := &authAccountRepositoryStub{account: facultyAccount(t)}
	svc := NewAuthService(repo, nil, nil, AuthConfig{Secret: "test-secret", Expiry: time.Hour, Issuer: "invigil-api"})

	resp, err := svc.Login(context.Background(), models.LoginRequest{
		Email:    "meera.nair@example.edu",
		Password: "s3cret-pass",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.AccessToken)
	assert.Equal(t, int64(3600), resp.ExpiresIn)
	assert.Equal(t, "acct-1", resp.Account.ID)
	assert.Equal(t, models.RoleFaculty, resp.Account.Role)
	assert.Equal(t, 1, repo.loginCalls)

	claims, err := svc.ValidateToken(resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "acct-1", claims.AccountID)
	assert.Equal(t, models.RoleFaculty, claims.Role)
	require.NotNil(t, claims.FacultyID)
	assert.Equal(t, "fac-1", *claims.FacultyID)
}

func TestAuthServiceLoginWrongPassword(t *testing.T) {
	repo := &authAccountRepositoryStub{account: facultyAccount(t)}
	svc := NewAuthService(repo, nil, nil, AuthConfig{Secret: "test-secret"})

	_, err := svc.Login(context.Background(), models.LoginRequest{
		Email:    "meera.nair@example.edu",
		Password: "wrong",
	})
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrInvalidCredentials.Code, apperrors.FromError(err).Code)
}

func TestAuthServiceLoginUnknownEmail(t *testing.T) {
	repo := &authAccountRepositoryStub{}
	svc := NewAuthService(repo, nil, nil, AuthConfig{Secret: "test-secret"})

	_, err := svc.Login(context.Background(), models.LoginRequest{
		Email:    "nobody@example.edu",
		Password: "s3cret-pass",
	})
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrInvalidCredentials.Code, apperrors.FromError(err).Code, "unknown email and bad password are indistinguishable")
}

func TestAuthServiceLoginInactiveAccount(t *testing.T) {
	account := facultyAccount(t)
	account.Active = false
	svc := NewAuthService(&authAccountRepositoryStub{account: account}, nil, nil, AuthConfig{Secret: "test-secret"})

	_, err := svc.Login(context.Background(), models.LoginRequest{
		Email:    "meera.nair@example.edu",
		Password: "s3cret-pass",
	})
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrInactiveAccount.Code, apperrors.FromError(err).Code)
}

func TestAuthServiceLoginValidatesPayload(t *testing.T) {
	svc := NewAuthService(&authAccountRepositoryStub{}, nil, nil, AuthConfig{Secret: "test-secret"})

	_, err := svc.Login(context.Background(), models.LoginRequest{Email: "not-an-email", Password: ""})
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrValidation.Code, apperrors.FromError(err).Code)
}

func TestAuthServiceValidateTokenRejectsTampering(t *testing.T) {
	repo := &authAccountRepositoryStub{account: facultyAccount(t)}
	svc := NewAuthService(repo, nil, nil, AuthConfig{Secret: "test-secret", Expiry: time.Hour})

	resp, err := svc.Login(context.Background(), models.LoginRequest{
		Email:    "meera.nair@example.edu",
		Password: "s3cret-pass",
	})
	require.NoError(t, err)

	other := NewAuthService(repo, nil, nil, AuthConfig{Secret: "different-secret"})
	_, err = other.ValidateToken(resp.AccessToken)
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrUnauthorized.Code, apperrors.FromError(err).Code)

	_, err = svc.ValidateToken(resp.AccessToken + "x")
	assert.Error(t, err)
}

func TestAuthServiceValidateTokenExpired(t *testing.T) {
	repo := &authAccountRepositoryStub{account: facultyAccount(t)}
	svc := NewAuthService(repo, nil, nil, AuthConfig{Secret: "test-secret", Expiry: time.Nanosecond})

	resp, err := svc.Login(context.Background(), models.LoginRequest{
		Email:    "meera.nair@example.edu",
		Password: "s3cret-pass",
	})
	require.NoError(t, err)

	time.Sleep(5 * time.Millisecond)
	_, err = svc.ValidateToken(resp.AccessToken)
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrUnauthorized.Code, apperrors.FromError(err).Code)
}

func TestAuthServiceMe(t *testing.T) {
	repo := &authAccountRepositoryStub{account: facultyAccount(t)}
	svc := NewAuthService(repo, nil, nil, AuthConfig{Secret: "test-secret"})

	info, err := svc.Me(context.Background(), "acct-1")
	require.NoError(t, err)
	assert.Equal(t, "Dr. Meera Nair", info.FullName)

	_, err = svc.Me(context.Background(), "missing")
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrNotFound.Code, apperrors.FromError(err).Code)
}
