package repo

import (
	"context"
	"database/sql"

	"veritrack/internal/domain"
)

func (r Repo) InsertRole(ctx context.Context, tx *sql.Tx, id, desc string) error {
	_, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO roles(id, description) VALUES (?,?)`, id, desc)
	return err
}

func (r Repo) GetRole(ctx context.Context, id string) (domain.Role, error) {
	var role domain.Role
	var desc sql.NullString
	err := r.DB.QueryRowContext(ctx, `SELECT id, description FROM roles WHERE id=?`, id).Scan(&role.ID, &desc)
	if err == sql.ErrNoRows {
		return role, ErrNotFound
	}
	if desc.Valid {
		role.Description = desc.String
	}
	return role, err
}

func (r Repo) RoleExistsTx(ctx context.Context, tx *sql.Tx, id string) (bool, error) {
	var n int
	if err := tx.QueryRowContext(ctx, `SELECT count(*) FROM roles WHERE id=?`, id).Scan(&n); err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r Repo) ListRoles(ctx context.Context) ([]domain.Role, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id, description FROM roles ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Role
	for rows.Next() {
		var role domain.Role
		var desc sql.NullString
		if err := rows.Scan(&role.ID, &desc); err != nil {
			return nil, err
		}
		if desc.Valid {
			role.Description = desc.String
		}
		res = append(res, role)
	}
	return res, rows.Err()
}

func (r Repo) AssignRole(ctx context.Context, tx *sql.Tx, tenantID, userID, roleID string) error {
	_, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO user_roles(tenant_id, user_id, role_id) VALUES (?,?,?)`, tenantID, userID, roleID)
	return err
}

func (r Repo) RevokeRole(ctx context.Context, tx *sql.Tx, tenantID, userID, roleID string) error {
	_, err := tx.ExecContext(ctx, `DELETE FROM user_roles WHERE tenant_id=? AND user_id=? AND role_id=?`, tenantID, userID, roleID)
	return err
}

func (r Repo) UserRoles(ctx context.Context, tenantID, userID string) ([]string, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT role_id FROM user_roles WHERE tenant_id=? AND user_id=?`, tenantID, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var roles []string
	for rows.Next() {
		var role string
		if err := rows.Scan(&role); err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	return roles, rows.Err()
}

// FirstUserWithRoleTx returns the earliest-registered holder of a role within
// a tenant. Assignment is deterministic: ordered by user creation time, then
// by user ID.
func (r Repo) FirstUserWithRoleTx(ctx context.Context, tx *sql.Tx, tenantID, roleID string) (domain.User, error) {
	var u domain.User
	var email sql.NullString
	err := tx.QueryRowContext(ctx, `SELECT u.id, u.tenant_id, u.name, u.email, u.created_at
FROM user_roles ur JOIN users u ON u.id = ur.user_id
WHERE ur.tenant_id=? AND ur.role_id=?
ORDER BY u.created_at ASC, u.id ASC LIMIT 1`, tenantID, roleID).
		Scan(&u.ID, &u.TenantID, &u.Name, &email, &u.CreatedAt)
	if err == sql.ErrNoRows {
		return u, ErrNotFound
	}
	if email.Valid {
		u.Email = email.String
	}
	return u, err
}
