package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/campusops/invigil-api/internal/models"
)

const accountColumns = `id, email, password_hash, full_name, role, faculty_id, active, last_login, created_at, updated_at`

// AccountRepository manages the role-tagged accounts table shared by admins,
// coordinators and faculty.
type AccountRepository struct {
	db *sqlx.DB
}

// NewAccountRepository constructs an AccountRepository.
func NewAccountRepository(db *sqlx.DB) *AccountRepository {
	return &AccountRepository{db: db}
}

// FindByEmail fetches an account by email.
func (r *AccountRepository) FindByEmail(ctx context.Context, email string) (*models.Account, error) {
	query := fmt.Sprintf("SELECT %s FROM accounts WHERE LOWER(email) = LOWER($1)", accountColumns)
	var account models.Account
	if err := r.db.GetContext(ctx, &account, query, email); err != nil {
		return nil, err
	}
	return &account, nil
}

// FindByID fetches an account by ID.
func (r *AccountRepository) FindByID(ctx context.Context, id string) (*models.Account, error) {
	query := fmt.Sprintf("SELECT %s FROM accounts WHERE id = $1", accountColumns)
	var account models.Account
	if err := r.db.GetContext(ctx, &account, query, id); err != nil {
		return nil, err
	}
	return &account, nil
}

// ListByRole returns active accounts for one role.
func (r *AccountRepository) ListByRole(ctx context.Context, role models.AccountRole) ([]models.Account, error) {
	query := fmt.Sprintf("SELECT %s FROM accounts WHERE role = $1 AND active = TRUE ORDER BY full_name ASC", accountColumns)
	var accounts []models.Account
	if err := r.db.SelectContext(ctx, &accounts, query, role); err != nil {
		return nil, fmt.Errorf("list accounts by role: %w", err)
	}
	return accounts, nil
}

// Create inserts an account.
func (r *AccountRepository) Create(ctx context.Context, account *models.Account) error {
	if account.ID == "" {
		account.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	account.CreatedAt = now
	account.UpdatedAt = now
	const query = `
INSERT INTO accounts (id, email, password_hash, full_name, role, faculty_id, active, last_login, created_at, updated_at)
VALUES (:id, :email, :password_hash, :full_name, :role, :faculty_id, :active, :last_login, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, account); err != nil {
		return fmt.Errorf("insert account: %w", err)
	}
	return nil
}

// UpdateLastLogin stamps a successful login.
func (r *AccountRepository) UpdateLastLogin(ctx context.Context, id string, at time.Time) error {
	const query = `UPDATE accounts SET last_login = $1, updated_at = NOW() WHERE id = $2`
	if _, err := r.db.ExecContext(ctx, query, at, id); err != nil {
		return fmt.Errorf("update last login: %w", err)
	}
	return nil
}
