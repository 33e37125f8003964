// Package clubs holds the mutating school operations. Each one asks the
// permission gate first and only then opens a tenant-scoped unit of work.
package clubs

import (
	"context"
	"time"

	"clubdesk/internal/platform/auth"
	"clubdesk/internal/platform/database"
	"clubdesk/internal/platform/models"
	"clubdesk/internal/platform/repositories"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Store runs one unit of work scoped to a tenant. *database.Manager satisfies it.
type Store interface {
	InTenant(ctx context.Context, tenantID, actingUserID uuid.UUID, op database.TxFunc) error
}

type ClubInput struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

type ScheduleInput struct {
	Weekday  int    `json:"weekday"`
	StartsAt string `json:"starts_at"`
	EndsAt   string `json:"ends_at"`
	Location string `json:"location"`
}

type ClassInput struct {
	Name string `json:"name"`
}

type GradeInput struct {
	Name  string `json:"name"`
	Level int    `json:"level"`
}

type Service struct {
	store Store
	gate  auth.Gate
	log   zerolog.Logger
	now   func() time.Time
}

func NewService(store Store) *Service {
	return &Service{
		store: store,
		log:   log.With().Str("component", "clubs").Logger(),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

func (s *Service) ListClubs(ctx context.Context, p auth.Principal) ([]models.Club, error) {
	var clubs []models.Club
	err := s.store.InTenant(ctx, p.TenantID, p.UserID, func(ctx context.Context, tx *sqlx.Tx) error {
		var err error
		clubs, err = repositories.NewClubRepository(tx).List(ctx)
		if err != nil {
			return err
		}
		schedules := repositories.NewScheduleRepository(tx)
		for i := range clubs {
			if clubs[i].Schedules, err = schedules.ListByClub(ctx, clubs[i].ID); err != nil {
				return err
			}
		}
		return nil
	})
	return clubs, err
}

func (s *Service) CreateClub(ctx context.Context, p auth.Principal, in ClubInput) (*models.Club, error) {
	const op = "create club"
	if err := s.gate.Check(op, p.Status); err != nil {
		return nil, err
	}
	name, err := validateName(op, in.Name)
	if err != nil {
		return nil, err
	}

	club := &models.Club{
		ID:          uuid.New(),
		Name:        name,
		Description: in.Description,
		CreatedBy:   p.UserID,
		CreatedAt:   s.now(),
	}
	err = s.store.InTenant(ctx, p.TenantID, p.UserID, func(ctx context.Context, tx *sqlx.Tx) error {
		return repositories.NewClubRepository(tx).Create(ctx, club)
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().Str("club_id", club.ID.String()).Str("tenant_id", p.TenantID.String()).Msg("club created")
	return club, nil
}

func (s *Service) UpdateClub(ctx context.Context, p auth.Principal, id uuid.UUID, in ClubInput) (*models.Club, error) {
	const op = "update club"
	if err := s.gate.Check(op, p.Status); err != nil {
		return nil, err
	}
	name, err := validateName(op, in.Name)
	if err != nil {
		return nil, err
	}

	var club *models.Club
	err = s.store.InTenant(ctx, p.TenantID, p.UserID, func(ctx context.Context, tx *sqlx.Tx) error {
		repo := repositories.NewClubRepository(tx)
		update := &models.Club{ID: id, Name: name, Description: in.Description, UpdatedAt: s.now()}
		if err := repo.Update(ctx, update); err != nil {
			return err
		}
		var err error
		club, err = repo.GetByID(ctx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return club, nil
}

func (s *Service) DeleteClub(ctx context.Context, p auth.Principal, id uuid.UUID) error {
	if err := s.gate.Check("delete club", p.Status); err != nil {
		return err
	}
	return s.store.InTenant(ctx, p.TenantID, p.UserID, func(ctx context.Context, tx *sqlx.Tx) error {
		return repositories.NewClubRepository(tx).Delete(ctx, id)
	})
}

func (s *Service) AddSchedule(ctx context.Context, p auth.Principal, clubID uuid.UUID, in ScheduleInput) (*models.Schedule, error) {
	if err := s.gate.Check("add schedule", p.Status); err != nil {
		return nil, err
	}
	if err := validateSchedule(in); err != nil {
		return nil, err
	}

	sched := &models.Schedule{
		ID:        uuid.New(),
		ClubID:    clubID,
		Weekday:   in.Weekday,
		StartsAt:  in.StartsAt,
		EndsAt:    in.EndsAt,
		Location:  in.Location,
		CreatedAt: s.now(),
	}
	err := s.store.InTenant(ctx, p.TenantID, p.UserID, func(ctx context.Context, tx *sqlx.Tx) error {
		return repositories.NewScheduleRepository(tx).Create(ctx, sched)
	})
	if err != nil {
		return nil, err
	}
	return sched, nil
}

func (s *Service) DeleteSchedule(ctx context.Context, p auth.Principal, id uuid.UUID) error {
	if err := s.gate.Check("delete schedule", p.Status); err != nil {
		return err
	}
	return s.store.InTenant(ctx, p.TenantID, p.UserID, func(ctx context.Context, tx *sqlx.Tx) error {
		return repositories.NewScheduleRepository(tx).Delete(ctx, id)
	})
}

func (s *Service) ListClasses(ctx context.Context, p auth.Principal) ([]models.Class, error) {
	var classes []models.Class
	err := s.store.InTenant(ctx, p.TenantID, p.UserID, func(ctx context.Context, tx *sqlx.Tx) error {
		var err error
		classes, err = repositories.NewClassRepository(tx).List(ctx)
		return err
	})
	return classes, err
}

func (s *Service) CreateClass(ctx context.Context, p auth.Principal, in ClassInput) (*models.Class, error) {
	const op = "create class"
	if err := s.gate.Check(op, p.Status); err != nil {
		return nil, err
	}
	name, err := validateName(op, in.Name)
	if err != nil {
		return nil, err
	}

	class := &models.Class{ID: uuid.New(), Name: name, CreatedAt: s.now()}
	err = s.store.InTenant(ctx, p.TenantID, p.UserID, func(ctx context.Context, tx *sqlx.Tx) error {
		return repositories.NewClassRepository(tx).Create(ctx, class)
	})
	if err != nil {
		return nil, err
	}
	return class, nil
}

func (s *Service) DeleteClass(ctx context.Context, p auth.Principal, id uuid.UUID) error {
	if err := s.gate.Check("delete class", p.Status); err != nil {
		return err
	}
	return s.store.InTenant(ctx, p.TenantID, p.UserID, func(ctx context.Context, tx *sqlx.Tx) error {
		return repositories.NewClassRepository(tx).Delete(ctx, id)
	})
}

func (s *Service) ListGrades(ctx context.Context, p auth.Principal) ([]models.Grade, error) {
	var grades []models.Grade
	err := s.store.InTenant(ctx, p.TenantID, p.UserID, func(ctx context.Context, tx *sqlx.Tx) error {
		var err error
		grades, err = repositories.NewGradeRepository(tx).List(ctx)
		return err
	})
	return grades, err
}

func (s *Service) CreateGrade(ctx context.Context, p auth.Principal, in GradeInput) (*models.Grade, error) {
	if err := s.gate.Check("create grade", p.Status); err != nil {
		return nil, err
	}
	name, err := validateGrade(in)
	if err != nil {
		return nil, err
	}

	grade := &models.Grade{ID: uuid.New(), Name: name, Level: in.Level, CreatedAt: s.now()}
	err = s.store.InTenant(ctx, p.TenantID, p.UserID, func(ctx context.Context, tx *sqlx.Tx) error {
		return repositories.NewGradeRepository(tx).Create(ctx, grade)
	})
	if err != nil {
		return nil, err
	}
	return grade, nil
}

func (s *Service) DeleteGrade(ctx context.Context, p auth.Principal, id uuid.UUID) error {
	if err := s.gate.Check("delete grade", p.Status); err != nil {
		return err
	}
	return s.store.InTenant(ctx, p.TenantID, p.UserID, func(ctx context.Context, tx *sqlx.Tx) error {
		return repositories.NewGradeRepository(tx).Delete(ctx, id)
	})
}
