package handlers

import (
	"context"
	"net/http"

	"clubdesk/internal/engine/clubs"
	"clubdesk/internal/platform/auth"
	"clubdesk/internal/platform/models"

	"github.com/google/uuid"
)

// ClubService is implemented by *clubs.Service.
type ClubService interface {
	ListClubs(ctx context.Context, p auth.Principal) ([]models.Club, error)
	CreateClub(ctx context.Context, p auth.Principal, in clubs.ClubInput) (*models.Club, error)
	UpdateClub(ctx context.Context, p auth.Principal, id uuid.UUID, in clubs.ClubInput) (*models.Club, error)
	DeleteClub(ctx context.Context, p auth.Principal, id uuid.UUID) error
	AddSchedule(ctx context.Context, p auth.Principal, clubID uuid.UUID, in clubs.ScheduleInput) (*models.Schedule, error)
	DeleteSchedule(ctx context.Context, p auth.Principal, id uuid.UUID) error
	ListClasses(ctx context.Context, p auth.Principal) ([]models.Class, error)
	CreateClass(ctx context.Context, p auth.Principal, in clubs.ClassInput) (*models.Class, error)
	DeleteClass(ctx context.Context, p auth.Principal, id uuid.UUID) error
	ListGrades(ctx context.Context, p auth.Principal) ([]models.Grade, error)
	CreateGrade(ctx context.Context, p auth.Principal, in clubs.GradeInput) (*models.Grade, error)
	DeleteGrade(ctx context.Context, p auth.Principal, id uuid.UUID) error
}

type ClubHandler struct {
	svc ClubService
}

func NewClubHandler(svc ClubService) *ClubHandler {
	return &ClubHandler{svc: svc}
}

func (h *ClubHandler) List(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	list, err := h.svc.ListClubs(r.Context(), p)
	if err != nil {
		fail(w, r, err)
		return
	}
	if list == nil {
		list = []models.Club{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *ClubHandler) Create(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	var in clubs.ClubInput
	if !decode(w, r, &in) {
		return
	}
	club, err := h.svc.CreateClub(r.Context(), p, in)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, club)
}

func (h *ClubHandler) Update(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "club_id")
	if !ok {
		return
	}
	var in clubs.ClubInput
	if !decode(w, r, &in) {
		return
	}
	club, err := h.svc.UpdateClub(r.Context(), p, id, in)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, club)
}

func (h *ClubHandler) Delete(w http.ResponseWriter, r *http.Request) {
	h.remove(w, r, "club_id", h.svc.DeleteClub)
}

func (h *ClubHandler) AddSchedule(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	clubID, ok := pathID(w, r, "club_id")
	if !ok {
		return
	}
	var in clubs.ScheduleInput
	if !decode(w, r, &in) {
		return
	}
	sched, err := h.svc.AddSchedule(r.Context(), p, clubID, in)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, sched)
}

func (h *ClubHandler) DeleteSchedule(w http.ResponseWriter, r *http.Request) {
	h.remove(w, r, "schedule_id", h.svc.DeleteSchedule)
}

func (h *ClubHandler) ListClasses(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	list, err := h.svc.ListClasses(r.Context(), p)
	if err != nil {
		fail(w, r, err)
		return
	}
	if list == nil {
		list = []models.Class{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *ClubHandler) CreateClass(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	var in clubs.ClassInput
	if !decode(w, r, &in) {
		return
	}
	class, err := h.svc.CreateClass(r.Context(), p, in)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, class)
}

func (h *ClubHandler) DeleteClass(w http.ResponseWriter, r *http.Request) {
	h.remove(w, r, "class_id", h.svc.DeleteClass)
}

func (h *ClubHandler) ListGrades(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	list, err := h.svc.ListGrades(r.Context(), p)
	if err != nil {
		fail(w, r, err)
		return
	}
	if list == nil {
		list = []models.Grade{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *ClubHandler) CreateGrade(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	var in clubs.GradeInput
	if !decode(w, r, &in) {
		return
	}
	grade, err := h.svc.CreateGrade(r.Context(), p, in)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, grade)
}

func (h *ClubHandler) DeleteGrade(w http.ResponseWriter, r *http.Request) {
	h.remove(w, r, "grade_id", h.svc.DeleteGrade)
}

func (h *ClubHandler) remove(w http.ResponseWriter, r *http.Request, param string, del func(context.Context, auth.Principal, uuid.UUID) error) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, param)
	if !ok {
		return
	}
	if err := del(r.Context(), p, id); err != nil {
		fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
