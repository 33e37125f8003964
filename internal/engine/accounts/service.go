// Package accounts implements the credential flows that run before a tenant
// is known: login, password reset and school registration.
package accounts

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"clubdesk/internal/platform/audit"
	"clubdesk/internal/platform/auth"
	"clubdesk/internal/platform/database"
	"clubdesk/internal/platform/models"
	"clubdesk/internal/platform/repositories"
	apperrors "clubdesk/internal/pkg/errors"
	"clubdesk/internal/pkg/validator"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const resetTokenTTL = time.Hour

var errBadCredentials = errors.New("invalid email or password")

// Store is the subset of *database.Manager the credential flows use.
type Store interface {
	InTenant(ctx context.Context, tenantID, actingUserID uuid.UUID, op database.TxFunc) error
	InBypass(ctx context.Context, purpose database.BypassPurpose, op database.TxFunc) error
}

// CredentialLookup resolves an email to its account without a tenant context.
type CredentialLookup interface {
	Lookup(ctx context.Context, email string) (*models.Credentials, error)
}

// Notifier delivers a password reset token to the account holder.
type Notifier interface {
	SendPasswordReset(ctx context.Context, email, token string) error
}

type Auditor interface {
	Log(ctx context.Context, e audit.Entry)
}

type Session struct {
	Token     string         `json:"token"`
	Principal auth.Principal `json:"-"`
}

type RegisterInput struct {
	SchoolName string `json:"school_name"`
	FullName   string `json:"full_name"`
	Email      string `json:"email"`
	Password   string `json:"password"`
}

type Registration struct {
	School  *models.School  `json:"school"`
	Account *models.Account `json:"account"`
}

type Service struct {
	store    Store
	lookup   CredentialLookup
	tokens   *auth.TokenService
	notifier Notifier
	auditor  Auditor
	log      zerolog.Logger
	now      func() time.Time
}

func NewService(store Store, lookup CredentialLookup, tokens *auth.TokenService, notifier Notifier, auditor Auditor) *Service {
	return &Service{
		store:    store,
		lookup:   lookup,
		tokens:   tokens,
		notifier: notifier,
		auditor:  auditor,
		log:      log.With().Str("component", "accounts").Logger(),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Login verifies the password and derives the coordinator status once, inside
// the account's own tenant scope. The status travels in the returned token.
func (s *Service) Login(ctx context.Context, email, password string) (*Session, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	creds, err := s.lookup.Lookup(ctx, email)
	if err != nil && !errors.Is(err, apperrors.ErrNotFound) {
		return nil, err
	}
	if creds == nil {
		auth.BurnPasswordCheck(password)
		return nil, apperrors.New(apperrors.ErrAuthentication, "login", errBadCredentials)
	}
	if !auth.CheckPassword(creds.PasswordHash, password) {
		return nil, apperrors.New(apperrors.ErrAuthentication, "login", errBadCredentials)
	}

	var status auth.CoordinatorStatus
	err = s.store.InTenant(ctx, creds.SchoolID, creds.AccountID, func(ctx context.Context, tx *sqlx.Tx) error {
		c, err := repositories.NewCoordinatorRepository(tx).Get(ctx, creds.AccountID)
		if err != nil {
			return err
		}
		status = auth.StatusFor(c != nil, c != nil && c.Active)
		return nil
	})
	if err != nil {
		return nil, err
	}

	token, err := s.tokens.GenerateAccessToken(creds.AccountID, creds.SchoolID, email, status)
	if err != nil {
		return nil, fmt.Errorf("issue token: %w", err)
	}

	s.log.Info().Str("user_id", creds.AccountID.String()).Str("status", status.String()).Msg("login")
	return &Session{
		Token:     token,
		Principal: auth.Principal{UserID: creds.AccountID, TenantID: creds.SchoolID, Email: email, Status: status},
	}, nil
}

// RequestPasswordReset issues a single-use token for email. Unknown addresses
// succeed silently so the endpoint does not reveal which accounts exist.
func (s *Service) RequestPasswordReset(ctx context.Context, email string) error {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return apperrors.InvalidInput("request password reset", errors.New("email is required"))
	}

	token, err := newResetToken()
	if err != nil {
		return err
	}

	var account *models.Account
	err = s.store.InBypass(ctx, database.PurposePasswordReset, func(ctx context.Context, tx *sqlx.Tx) error {
		a, err := repositories.NewAccountRepository(tx).GetByEmail(ctx, email)
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		account = a

		now := s.now()
		return repositories.NewPasswordResetRepository(tx).Create(ctx, &models.PasswordReset{
			ID:        uuid.New(),
			AccountID: a.ID,
			SchoolID:  a.SchoolID,
			TokenHash: hashToken(token),
			ExpiresAt: now.Add(resetTokenTTL),
			CreatedAt: now,
		})
	})
	if err != nil {
		return err
	}
	if account == nil {
		s.log.Info().Msg("password reset requested for unknown email")
		return nil
	}

	s.audit(ctx, account, "requested")
	if err := s.notifier.SendPasswordReset(ctx, account.Email, token); err != nil {
		return fmt.Errorf("deliver password reset: %w", err)
	}
	return nil
}

// ResetPassword consumes token and sets a new password in one unit of work.
func (s *Service) ResetPassword(ctx context.Context, token, newPassword string) error {
	hash, err := auth.HashPassword(newPassword)
	if err != nil {
		return apperrors.InvalidInput("reset password", err)
	}

	var account *models.Account
	err = s.store.InBypass(ctx, database.PurposePasswordReset, func(ctx context.Context, tx *sqlx.Tx) error {
		now := s.now()
		reset, err := repositories.NewPasswordResetRepository(tx).Consume(ctx, hashToken(token), now)
		if errors.Is(err, apperrors.ErrNotFound) {
			return apperrors.New(apperrors.ErrAuthentication, "reset password", errors.New("invalid or expired token"))
		}
		if err != nil {
			return err
		}

		accounts := repositories.NewAccountRepository(tx)
		if err := accounts.UpdatePassword(ctx, reset.AccountID, hash, now); err != nil {
			return err
		}
		account, err = accounts.GetByID(ctx, reset.AccountID)
		return err
	})
	if err != nil {
		return err
	}

	s.audit(ctx, account, "completed")
	return nil
}

// Register creates a school and its first coordinator. The coordinator starts
// inactive; activation is an administrative action outside this service.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*Registration, error) {
	const op = "register"

	email, err := validator.NormalizeEmail(in.Email)
	if err != nil {
		return nil, apperrors.InvalidInput(op, err)
	}
	schoolName := strings.TrimSpace(in.SchoolName)
	if schoolName == "" {
		return nil, apperrors.InvalidInput(op, errors.New("school_name is required"))
	}
	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		return nil, apperrors.InvalidInput(op, err)
	}

	now := s.now()
	school := &models.School{ID: uuid.New(), Name: schoolName, CreatedAt: now}
	account := &models.Account{
		ID:           uuid.New(),
		SchoolID:     school.ID,
		Email:        email,
		PasswordHash: hash,
		FullName:     strings.TrimSpace(in.FullName),
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	err = s.store.InBypass(ctx, database.PurposeRegistration, func(ctx context.Context, tx *sqlx.Tx) error {
		if err := repositories.NewSchoolRepository(tx).Create(ctx, school); err != nil {
			return err
		}
		if err := repositories.NewAccountRepository(tx).Create(ctx, account); err != nil {
			return err
		}
		return repositories.NewCoordinatorRepository(tx).Create(ctx, &models.Coordinator{
			AccountID: account.ID,
			SchoolID:  school.ID,
			Active:    false,
			CreatedAt: now,
		})
	})
	if err != nil {
		return nil, err
	}

	if s.auditor != nil {
		s.auditor.Log(ctx, audit.Entry{
			TenantID:     school.ID.String(),
			UserID:       account.ID.String(),
			Action:       audit.ActionRegistered,
			ResourceType: "school",
			ResourceID:   school.ID.String(),
		})
	}
	s.log.Info().Str("school_id", school.ID.String()).Msg("school registered")
	return &Registration{School: school, Account: account}, nil
}

func (s *Service) audit(ctx context.Context, a *models.Account, stage string) {
	if s.auditor == nil || a == nil {
		return
	}
	s.auditor.Log(ctx, audit.Entry{
		TenantID:     a.SchoolID.String(),
		UserID:       a.ID.String(),
		Action:       audit.ActionPasswordReset,
		ResourceType: "account",
		ResourceID:   a.ID.String(),
		Metadata:     map[string]interface{}{"stage": stage},
	})
}

func newResetToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate reset token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// Only the hash is stored; the token itself goes to the account holder.
func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
