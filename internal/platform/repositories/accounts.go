package repositories

import (
	"context"
	"time"

	"clubdesk/internal/platform/models"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

type AccountRepository struct {
	tx sqlx.ExtContext
}

func NewAccountRepository(tx sqlx.ExtContext) *AccountRepository {
	return &AccountRepository{tx: tx}
}

func (r *AccountRepository) Create(ctx context.Context, a *models.Account) error {
	_, err := r.tx.ExecContext(ctx, `
		INSERT INTO accounts (id, school_id, email, password_hash, full_name, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, a.ID, a.SchoolID, a.Email, a.PasswordHash, a.FullName, a.CreatedAt, a.UpdatedAt)
	return mapErr("accounts.create", err)
}

func (r *AccountRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Account, error) {
	a := &models.Account{}
	err := get(ctx, r.tx, "accounts.get", a, `
		SELECT id, school_id, email, password_hash, full_name, created_at, updated_at
		FROM accounts WHERE id = $1
	`, id)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// GetByEmail only finds accounts visible to the session: same school, or a bypass session.
func (r *AccountRepository) GetByEmail(ctx context.Context, email string) (*models.Account, error) {
	a := &models.Account{}
	err := get(ctx, r.tx, "accounts.get_by_email", a, `
		SELECT id, school_id, email, password_hash, full_name, created_at, updated_at
		FROM accounts WHERE lower(email) = lower($1)
	`, email)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// Lookup resolves credentials by email through auth_lookup, which works without a tenant context.
func (r *AccountRepository) Lookup(ctx context.Context, email string) (*models.Credentials, error) {
	c := &models.Credentials{}
	err := get(ctx, r.tx, "accounts.lookup", c, `SELECT account_id, school_id, password_hash FROM auth_lookup($1)`, email)
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (r *AccountRepository) UpdatePassword(ctx context.Context, id uuid.UUID, hash string, at time.Time) error {
	res, err := r.tx.ExecContext(ctx, `UPDATE accounts SET password_hash = $1, updated_at = $2 WHERE id = $3`, hash, at, id)
	return expectOne("accounts.update_password", res, err)
}

type CoordinatorRepository struct {
	tx sqlx.ExtContext
}

func NewCoordinatorRepository(tx sqlx.ExtContext) *CoordinatorRepository {
	return &CoordinatorRepository{tx: tx}
}

func (r *CoordinatorRepository) Create(ctx context.Context, c *models.Coordinator) error {
	_, err := r.tx.ExecContext(ctx, `
		INSERT INTO coordinators (account_id, school_id, active, created_at) VALUES ($1, $2, $3, $4)
	`, c.AccountID, c.SchoolID, c.Active, c.CreatedAt)
	return mapErr("coordinators.create", err)
}

// Get returns nil, nil when the account is not a coordinator.
func (r *CoordinatorRepository) Get(ctx context.Context, accountID uuid.UUID) (*models.Coordinator, error) {
	c := &models.Coordinator{}
	err := sqlx.GetContext(ctx, r.tx, c, `
		SELECT account_id, school_id, active, created_at FROM coordinators WHERE account_id = $1
	`, accountID)
	if err != nil {
		if err = mapErr("coordinators.get", err); isNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return c, nil
}

type PasswordResetRepository struct {
	tx sqlx.ExtContext
}

func NewPasswordResetRepository(tx sqlx.ExtContext) *PasswordResetRepository {
	return &PasswordResetRepository{tx: tx}
}

func (r *PasswordResetRepository) Create(ctx context.Context, p *models.PasswordReset) error {
	_, err := r.tx.ExecContext(ctx, `
		INSERT INTO password_resets (id, account_id, school_id, token_hash, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, p.ID, p.AccountID, p.SchoolID, p.TokenHash, p.ExpiresAt, p.CreatedAt)
	return mapErr("password_resets.create", err)
}

// Consume marks an unused, unexpired reset as used and returns it.
func (r *PasswordResetRepository) Consume(ctx context.Context, tokenHash string, now time.Time) (*models.PasswordReset, error) {
	p := &models.PasswordReset{}
	err := get(ctx, r.tx, "password_resets.consume", p, `
		UPDATE password_resets SET used_at = $2
		WHERE token_hash = $1 AND used_at IS NULL AND expires_at > $2
		RETURNING id, account_id, school_id, token_hash, expires_at, used_at, created_at
	`, tokenHash, now)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// PurgeBefore deletes resets that were used or expired before cutoff.
func (r *PasswordResetRepository) PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.tx.ExecContext(ctx, `
		DELETE FROM password_resets WHERE expires_at < $1 OR used_at < $1
	`, cutoff)
	if err != nil {
		return 0, mapErr("password_resets.purge", err)
	}
	return res.RowsAffected()
}
