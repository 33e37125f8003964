package repositories

import (
	"context"

	"clubdesk/internal/platform/models"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

type ClubRepository struct {
	tx sqlx.ExtContext
}

func NewClubRepository(tx sqlx.ExtContext) *ClubRepository {
	return &ClubRepository{tx: tx}
}

func (r *ClubRepository) List(ctx context.Context) ([]models.Club, error) {
	clubs := []models.Club{}
	err := sqlx.SelectContext(ctx, r.tx, &clubs, `
		SELECT id, school_id, name, description, created_by, created_at, updated_at
		FROM clubs ORDER BY name
	`)
	if err != nil {
		return nil, mapErr("clubs.list", err)
	}
	return clubs, nil
}

// Create inserts into the session's school; school_id comes from the RLS context.
func (r *ClubRepository) Create(ctx context.Context, c *models.Club) error {
	err := get(ctx, r.tx, "clubs.create", &c.SchoolID, `
		INSERT INTO clubs (id, school_id, name, description, created_by, created_at, updated_at)
		VALUES ($1, app_tenant(), $2, $3, $4, $5, $5)
		RETURNING school_id
	`, c.ID, c.Name, c.Description, c.CreatedBy, c.CreatedAt)
	c.UpdatedAt = c.CreatedAt
	return err
}

func (r *ClubRepository) Update(ctx context.Context, c *models.Club) error {
	res, err := r.tx.ExecContext(ctx, `
		UPDATE clubs SET name = $1, description = $2, updated_at = $3 WHERE id = $4
	`, c.Name, c.Description, c.UpdatedAt, c.ID)
	return expectOne("clubs.update", res, err)
}

func (r *ClubRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Club, error) {
	c := &models.Club{}
	err := get(ctx, r.tx, "clubs.get", c, `
		SELECT id, school_id, name, description, created_by, created_at, updated_at
		FROM clubs WHERE id = $1
	`, id)
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (r *ClubRepository) Delete(ctx context.Context, id uuid.UUID) error {
	res, err := r.tx.ExecContext(ctx, `DELETE FROM clubs WHERE id = $1`, id)
	return expectOne("clubs.delete", res, err)
}

type ScheduleRepository struct {
	tx sqlx.ExtContext
}

func NewScheduleRepository(tx sqlx.ExtContext) *ScheduleRepository {
	return &ScheduleRepository{tx: tx}
}

// Create only succeeds for a club visible in the session; foreign ids affect no rows.
func (r *ScheduleRepository) Create(ctx context.Context, s *models.Schedule) error {
	return get(ctx, r.tx, "schedules.create", &s.SchoolID, `
		INSERT INTO schedules (id, school_id, club_id, weekday, starts_at, ends_at, location, created_at)
		SELECT $1::uuid, c.school_id, c.id, $3::smallint, $4::time, $5::time, $6::text, $7::timestamptz
		FROM clubs c WHERE c.id = $2
		RETURNING school_id
	`, s.ID, s.ClubID, s.Weekday, s.StartsAt, s.EndsAt, s.Location, s.CreatedAt)
}

func (r *ScheduleRepository) ListByClub(ctx context.Context, clubID uuid.UUID) ([]models.Schedule, error) {
	schedules := []models.Schedule{}
	err := sqlx.SelectContext(ctx, r.tx, &schedules, `
		SELECT id, school_id, club_id, weekday, to_char(starts_at, 'HH24:MI') AS starts_at,
		       to_char(ends_at, 'HH24:MI') AS ends_at, location, created_at
		FROM schedules WHERE club_id = $1 ORDER BY weekday, starts_at
	`, clubID)
	if err != nil {
		return nil, mapErr("schedules.list", err)
	}
	return schedules, nil
}

func (r *ScheduleRepository) Delete(ctx context.Context, id uuid.UUID) error {
	res, err := r.tx.ExecContext(ctx, `DELETE FROM schedules WHERE id = $1`, id)
	return expectOne("schedules.delete", res, err)
}

type ClassRepository struct {
	tx sqlx.ExtContext
}

func NewClassRepository(tx sqlx.ExtContext) *ClassRepository {
	return &ClassRepository{tx: tx}
}

func (r *ClassRepository) List(ctx context.Context) ([]models.Class, error) {
	classes := []models.Class{}
	if err := sqlx.SelectContext(ctx, r.tx, &classes, `SELECT id, school_id, name, created_at FROM classes ORDER BY name`); err != nil {
		return nil, mapErr("classes.list", err)
	}
	return classes, nil
}

func (r *ClassRepository) Create(ctx context.Context, c *models.Class) error {
	return get(ctx, r.tx, "classes.create", &c.SchoolID, `
		INSERT INTO classes (id, school_id, name, created_at) VALUES ($1, app_tenant(), $2, $3)
		RETURNING school_id
	`, c.ID, c.Name, c.CreatedAt)
}

func (r *ClassRepository) Delete(ctx context.Context, id uuid.UUID) error {
	res, err := r.tx.ExecContext(ctx, `DELETE FROM classes WHERE id = $1`, id)
	return expectOne("classes.delete", res, err)
}

type GradeRepository struct {
	tx sqlx.ExtContext
}

func NewGradeRepository(tx sqlx.ExtContext) *GradeRepository {
	return &GradeRepository{tx: tx}
}

func (r *GradeRepository) List(ctx context.Context) ([]models.Grade, error) {
	grades := []models.Grade{}
	if err := sqlx.SelectContext(ctx, r.tx, &grades, `SELECT id, school_id, name, level, created_at FROM grades ORDER BY level, name`); err != nil {
		return nil, mapErr("grades.list", err)
	}
	return grades, nil
}

func (r *GradeRepository) Create(ctx context.Context, g *models.Grade) error {
	return get(ctx, r.tx, "grades.create", &g.SchoolID, `
		INSERT INTO grades (id, school_id, name, level, created_at) VALUES ($1, app_tenant(), $2, $3, $4)
		RETURNING school_id
	`, g.ID, g.Name, g.Level, g.CreatedAt)
}

func (r *GradeRepository) Delete(ctx context.Context, id uuid.UUID) error {
	res, err := r.tx.ExecContext(ctx, `DELETE FROM grades WHERE id = $1`, id)
	return expectOne("grades.delete", res, err)
}
