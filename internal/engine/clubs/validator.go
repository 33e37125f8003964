package clubs

import (
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	apperrors "clubdesk/internal/pkg/errors"
)

const maxNameLength = 100

func validateName(op, name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", apperrors.InvalidInput(op, errors.New("name is required"))
	}
	if utf8.RuneCountInString(name) > maxNameLength {
		return "", apperrors.InvalidInput(op, errors.New("name must be at most 100 characters"))
	}
	return name, nil
}

func validateSchedule(in ScheduleInput) error {
	const op = "validate schedule"
	if in.Weekday < 0 || in.Weekday > 6 {
		return apperrors.InvalidInput(op, errors.New("weekday must be between 0 (Sunday) and 6 (Saturday)"))
	}
	start, err := time.Parse("15:04", in.StartsAt)
	if err != nil {
		return apperrors.InvalidInput(op, errors.New("starts_at must be HH:MM"))
	}
	end, err := time.Parse("15:04", in.EndsAt)
	if err != nil {
		return apperrors.InvalidInput(op, errors.New("ends_at must be HH:MM"))
	}
	if !end.After(start) {
		return apperrors.InvalidInput(op, errors.New("ends_at must be after starts_at"))
	}
	return nil
}

func validateGrade(in GradeInput) (string, error) {
	name, err := validateName("validate grade", in.Name)
	if err != nil {
		return "", err
	}
	if in.Level < 0 || in.Level > 20 {
		return "", apperrors.InvalidInput("validate grade", errors.New("level must be between 0 and 20"))
	}
	return name, nil
}
