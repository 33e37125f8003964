package auth

import (
	"encoding/json"
	"fmt"

	apperrors "clubdesk/internal/pkg/errors"

	"github.com/google/uuid"
)

// CoordinatorStatus is the caller's standing in a school. Only an administrative
// action outside this service moves a coordinator between inactive and active.
type CoordinatorStatus int

const (
	NoAccess CoordinatorStatus = iota
	InactiveCoordinator
	ActiveCoordinator
)

func (s CoordinatorStatus) String() string {
	switch s {
	case ActiveCoordinator:
		return "active_coordinator"
	case InactiveCoordinator:
		return "inactive_coordinator"
	default:
		return "no_access"
	}
}

func (s CoordinatorStatus) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *CoordinatorStatus) UnmarshalJSON(b []byte) error {
	var name string
	if err := json.Unmarshal(b, &name); err != nil {
		return err
	}
	switch name {
	case "active_coordinator":
		*s = ActiveCoordinator
	case "inactive_coordinator":
		*s = InactiveCoordinator
	case "no_access":
		*s = NoAccess
	default:
		return fmt.Errorf("unknown coordinator status %q", name)
	}
	return nil
}

// StatusFor derives the status from durable account state.
// hasCoordinator is false when the account has no coordinator row in its school.
func StatusFor(hasCoordinator, active bool) CoordinatorStatus {
	switch {
	case !hasCoordinator:
		return NoAccess
	case active:
		return ActiveCoordinator
	default:
		return InactiveCoordinator
	}
}

// CanMutate is true only for an active coordinator.
func CanMutate(s CoordinatorStatus) bool {
	return s == ActiveCoordinator
}

// Gate is consulted by every mutating operation before it touches the store.
type Gate struct{}

// Check returns ErrPermissionDenied when status may not mutate. Denial is an
// ordinary outcome; callers report it to the user, not as a fault.
func (Gate) Check(op string, s CoordinatorStatus) error {
	if CanMutate(s) {
		return nil
	}
	return apperrors.New(apperrors.ErrPermissionDenied, op, fmt.Errorf("status %s", s))
}

// Principal is the authenticated caller, built once from the session token.
type Principal struct {
	UserID   uuid.UUID
	TenantID uuid.UUID
	Email    string
	Status   CoordinatorStatus
}

func PrincipalFromClaims(c *Claims) (Principal, error) {
	tenant, err := c.Tenant()
	if err != nil {
		return Principal{}, fmt.Errorf("tenant claim: %w", err)
	}
	user, err := c.User()
	if err != nil {
		return Principal{}, fmt.Errorf("user claim: %w", err)
	}
	return Principal{UserID: user, TenantID: tenant, Email: c.Email, Status: c.Status}, nil
}
