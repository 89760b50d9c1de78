// Package verifier resolves the user responsible for a verification stage.
package verifier

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"veritrack/internal/domain"
	"veritrack/internal/repo"
)

// RoleNotFoundError signals a verifier role that no user in the tenant
// currently holds. Verification cannot proceed until the role is staffed.
type RoleNotFoundError struct {
	RoleID string
	Level  int
}

func (e *RoleNotFoundError) Error() string {
	return fmt.Sprintf("no user holds verifier role %s (level %d)", e.RoleID, e.Level)
}

type Service struct {
	Repo repo.Repo
}

// Resolve returns the user assigned to verify the indicator at the given
// level, or nil when the indicator has no verifier configured for that level.
// Resolution is deterministic: the earliest-registered role holder wins.
func (s Service) Resolve(ctx context.Context, tx *sql.Tx, tenantID string, ind domain.Indicator, level int) (*domain.User, error) {
	roleID := ind.VerifierRoleID(level)
	if roleID == nil || *roleID == "" {
		return nil, nil
	}
	u, err := s.Repo.FirstUserWithRoleTx(ctx, tx, tenantID, *roleID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, &RoleNotFoundError{RoleID: *roleID, Level: level}
		}
		return nil, err
	}
	return &u, nil
}
