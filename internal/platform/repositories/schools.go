package repositories

import (
	"context"

	"clubdesk/internal/platform/models"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

type SchoolRepository struct {
	tx sqlx.ExtContext
}

func NewSchoolRepository(tx sqlx.ExtContext) *SchoolRepository {
	return &SchoolRepository{tx: tx}
}

func (r *SchoolRepository) Create(ctx context.Context, s *models.School) error {
	_, err := r.tx.ExecContext(ctx, `INSERT INTO schools (id, name, created_at) VALUES ($1, $2, $3)`, s.ID, s.Name, s.CreatedAt)
	return mapErr("schools.create", err)
}

func (r *SchoolRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.School, error) {
	s := &models.School{}
	if err := get(ctx, r.tx, "schools.get", s, `SELECT id, name, created_at FROM schools WHERE id = $1`, id); err != nil {
		return nil, err
	}
	return s, nil
}
