package auth

import (
	"context"
	"database/sql"
	"fmt"
)

// ForbiddenError indicates the actor may not perform an operation.
type ForbiddenError struct {
	Reason string
}

func (e ForbiddenError) Error() string {
	return fmt.Sprintf("forbidden: %s", e.Reason)
}

// Service provides role and review-assignment checks backed by SQL.
type Service struct {
	DB *sql.DB
}

func (s Service) UserHasRole(ctx context.Context, tenantID, userID, roleID string) (bool, error) {
	row := s.DB.QueryRowContext(ctx, `SELECT 1 FROM user_roles WHERE tenant_id=? AND user_id=? AND role_id=? LIMIT 1`,
		tenantID, userID, roleID)
	var n int
	err := row.Scan(&n)
	if err == sql.ErrNoRows {
		return false, nil
	}
	return err == nil, err
}

func (s Service) UserRoles(ctx context.Context, tenantID, userID string) ([]string, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT role_id FROM user_roles WHERE tenant_id=? AND user_id=?`, tenantID, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var roles []string
	for rows.Next() {
		var r string
		if err := rows.Scan(&r); err != nil {
			return nil, err
		}
		roles = append(roles, r)
	}
	return roles, rows.Err()
}

// CanReview reports whether the user is the assigned verifier of an open
// review task.
func (s Service) CanReview(ctx context.Context, reviewTaskID, userID string) (bool, error) {
	row := s.DB.QueryRowContext(ctx, `SELECT 1 FROM indicator_review_tasks WHERE id=? AND verifier_user_id=? LIMIT 1`,
		reviewTaskID, userID)
	var n int
	err := row.Scan(&n)
	if err == sql.ErrNoRows {
		return false, nil
	}
	return err == nil, err
}

// RequireReviewer returns a ForbiddenError unless the user is assigned to
// the review task.
func (s Service) RequireReviewer(ctx context.Context, reviewTaskID, userID string) error {
	ok, err := s.CanReview(ctx, reviewTaskID, userID)
	if err != nil {
		return err
	}
	if !ok {
		return ForbiddenError{Reason: fmt.Sprintf("user %s is not the assigned verifier of review task %s", userID, reviewTaskID)}
	}
	return nil
}
