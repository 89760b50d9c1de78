package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"veritrack/internal/config"
	"veritrack/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

func (r Repo) InsertTenant(ctx context.Context, tx *sql.Tx, t domain.Tenant) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO tenants(id,name,status,created_at) VALUES (?,?,?,?)`,
		t.ID, t.Name, t.Status, t.CreatedAt)
	return err
}

func (r Repo) GetTenant(ctx context.Context, id string) (domain.Tenant, error) {
	var t domain.Tenant
	err := r.DB.QueryRowContext(ctx, `SELECT id,name,status,created_at FROM tenants WHERE id=?`, id).
		Scan(&t.ID, &t.Name, &t.Status, &t.CreatedAt)
	if err == sql.ErrNoRows {
		return t, ErrNotFound
	}
	return t, err
}

// SingleTenant returns the only tenant in the workspace, erroring when the
// choice is ambiguous.
func (r Repo) SingleTenant(ctx context.Context) (domain.Tenant, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,name,status,created_at FROM tenants`)
	if err != nil {
		return domain.Tenant{}, err
	}
	defer rows.Close()
	var tenants []domain.Tenant
	for rows.Next() {
		var t domain.Tenant
		if err := rows.Scan(&t.ID, &t.Name, &t.Status, &t.CreatedAt); err != nil {
			return domain.Tenant{}, err
		}
		tenants = append(tenants, t)
	}
	if err := rows.Err(); err != nil {
		return domain.Tenant{}, err
	}
	if len(tenants) == 0 {
		return domain.Tenant{}, ErrNotFound
	}
	if len(tenants) > 1 {
		return domain.Tenant{}, fmt.Errorf("multiple tenants exist; specify --tenant")
	}
	return tenants[0], nil
}

func (r Repo) ListTenants(ctx context.Context) ([]domain.Tenant, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,name,status,created_at FROM tenants ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Tenant
	for rows.Next() {
		var t domain.Tenant
		if err := rows.Scan(&t.ID, &t.Name, &t.Status, &t.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	return res, rows.Err()
}

func (r Repo) EnsurePortfolio(ctx context.Context, tx *sql.Tx, p domain.Portfolio) error {
	_, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO portfolios(id,tenant_id,name,created_at) VALUES (?,?,?,?)`,
		p.ID, p.TenantID, p.Name, p.CreatedAt)
	return err
}

func (r Repo) EnsureCluster(ctx context.Context, tx *sql.Tx, c domain.Cluster) error {
	_, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO clusters(id,tenant_id,name,created_at) VALUES (?,?,?,?)`,
		c.ID, c.TenantID, c.Name, c.CreatedAt)
	return err
}

func (r Repo) GetPortfolio(ctx context.Context, id string) (domain.Portfolio, error) {
	var p domain.Portfolio
	err := r.DB.QueryRowContext(ctx, `SELECT id,tenant_id,name,created_at FROM portfolios WHERE id=?`, id).
		Scan(&p.ID, &p.TenantID, &p.Name, &p.CreatedAt)
	if err == sql.ErrNoRows {
		return p, ErrNotFound
	}
	return p, err
}

func (r Repo) GetCluster(ctx context.Context, id string) (domain.Cluster, error) {
	var c domain.Cluster
	err := r.DB.QueryRowContext(ctx, `SELECT id,tenant_id,name,created_at FROM clusters WHERE id=?`, id).
		Scan(&c.ID, &c.TenantID, &c.Name, &c.CreatedAt)
	if err == sql.ErrNoRows {
		return c, ErrNotFound
	}
	return c, err
}

func (r Repo) InsertProgramme(ctx context.Context, tx *sql.Tx, p domain.Programme) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO programmes(id,tenant_id,name,duration_months,created_at) VALUES (?,?,?,?,?)`,
		p.ID, p.TenantID, p.Name, p.DurationMonths, p.CreatedAt)
	return err
}

func (r Repo) GetProgramme(ctx context.Context, id string) (domain.Programme, error) {
	var p domain.Programme
	err := r.DB.QueryRowContext(ctx, `SELECT id,tenant_id,name,duration_months,created_at FROM programmes WHERE id=?`, id).
		Scan(&p.ID, &p.TenantID, &p.Name, &p.DurationMonths, &p.CreatedAt)
	if err == sql.ErrNoRows {
		return p, ErrNotFound
	}
	return p, err
}

func (r Repo) GetProgrammeTx(ctx context.Context, tx *sql.Tx, id string) (domain.Programme, error) {
	var p domain.Programme
	err := tx.QueryRowContext(ctx, `SELECT id,tenant_id,name,duration_months,created_at FROM programmes WHERE id=?`, id).
		Scan(&p.ID, &p.TenantID, &p.Name, &p.DurationMonths, &p.CreatedAt)
	if err == sql.ErrNoRows {
		return p, ErrNotFound
	}
	return p, err
}

func (r Repo) ListProgrammes(ctx context.Context, tenantID string) ([]domain.Programme, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,tenant_id,name,duration_months,created_at FROM programmes WHERE tenant_id=? ORDER BY created_at DESC`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Programme
	for rows.Next() {
		var p domain.Programme
		if err := rows.Scan(&p.ID, &p.TenantID, &p.Name, &p.DurationMonths, &p.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	return res, rows.Err()
}

func (r Repo) EnsureUser(ctx context.Context, tx *sql.Tx, u domain.User) error {
	_, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO users(id,tenant_id,name,email,created_at) VALUES (?,?,?,?,?)`,
		u.ID, u.TenantID, u.Name, nullable(u.Email), u.CreatedAt)
	return err
}

func (r Repo) GetUser(ctx context.Context, id string) (domain.User, error) {
	var u domain.User
	var email sql.NullString
	err := r.DB.QueryRowContext(ctx, `SELECT id,tenant_id,name,email,created_at FROM users WHERE id=?`, id).
		Scan(&u.ID, &u.TenantID, &u.Name, &email, &u.CreatedAt)
	if err == sql.ErrNoRows {
		return u, ErrNotFound
	}
	if email.Valid {
		u.Email = email.String
	}
	return u, err
}

// --- indicators ---

const indicatorColumns = `id,tenant_id,kind,name,description,portfolio_id,cluster_id,response_format,target_value,acceptance_value,verifier_1_role_id,verifier_2_role_id,requires_evidence,created_at,deleted_at`

func (r Repo) InsertIndicator(ctx context.Context, tx *sql.Tx, ind domain.Indicator) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO indicators(id,tenant_id,kind,name,description,portfolio_id,cluster_id,response_format,target_value,acceptance_value,verifier_1_role_id,verifier_2_role_id,requires_evidence,created_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		ind.ID, ind.TenantID, ind.Kind, ind.Name, nullable(ind.Description),
		nullableStringPtr(ind.PortfolioID), nullableStringPtr(ind.ClusterID), ind.ResponseFormat,
		nullableStringPtr(ind.TargetValue), nullableStringPtr(ind.AcceptanceValue),
		nullableStringPtr(ind.Verifier1RoleID), nullableStringPtr(ind.Verifier2RoleID),
		boolToInt(ind.RequiresEvidence), ind.CreatedAt)
	return err
}

func scanIndicator(scan func(dest ...any) error) (domain.Indicator, error) {
	var ind domain.Indicator
	var description, portfolioID, clusterID, targetValue, acceptanceValue, v1, v2, deletedAt sql.NullString
	var requiresEvidence int
	err := scan(&ind.ID, &ind.TenantID, &ind.Kind, &ind.Name, &description, &portfolioID, &clusterID,
		&ind.ResponseFormat, &targetValue, &acceptanceValue, &v1, &v2, &requiresEvidence, &ind.CreatedAt, &deletedAt)
	if err == sql.ErrNoRows {
		return ind, ErrNotFound
	}
	if err != nil {
		return ind, err
	}
	if description.Valid {
		ind.Description = description.String
	}
	if portfolioID.Valid {
		ind.PortfolioID = &portfolioID.String
	}
	if clusterID.Valid {
		ind.ClusterID = &clusterID.String
	}
	if targetValue.Valid {
		ind.TargetValue = &targetValue.String
	}
	if acceptanceValue.Valid {
		ind.AcceptanceValue = &acceptanceValue.String
	}
	if v1.Valid {
		ind.Verifier1RoleID = &v1.String
	}
	if v2.Valid {
		ind.Verifier2RoleID = &v2.String
	}
	if deletedAt.Valid {
		ind.DeletedAt = &deletedAt.String
	}
	ind.RequiresEvidence = requiresEvidence != 0
	return ind, nil
}

func (r Repo) GetIndicator(ctx context.Context, id string) (domain.Indicator, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+indicatorColumns+` FROM indicators WHERE id=?`, id)
	return scanIndicator(row.Scan)
}

func (r Repo) GetIndicatorTx(ctx context.Context, tx *sql.Tx, id string) (domain.Indicator, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+indicatorColumns+` FROM indicators WHERE id=?`, id)
	return scanIndicator(row.Scan)
}

type IndicatorFilters struct {
	TenantID       string
	Kind           string
	PortfolioID    string
	ClusterID      string
	IncludeDeleted bool
}

func (r Repo) ListIndicators(ctx context.Context, f IndicatorFilters) ([]domain.Indicator, error) {
	var clauses []string
	var args []any
	if f.TenantID != "" {
		clauses = append(clauses, "tenant_id=?")
		args = append(args, f.TenantID)
	}
	if f.Kind != "" {
		clauses = append(clauses, "kind=?")
		args = append(args, f.Kind)
	}
	if f.PortfolioID != "" {
		clauses = append(clauses, "portfolio_id=?")
		args = append(args, f.PortfolioID)
	}
	if f.ClusterID != "" {
		clauses = append(clauses, "cluster_id=?")
		args = append(args, f.ClusterID)
	}
	if !f.IncludeDeleted {
		clauses = append(clauses, "deleted_at IS NULL")
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	rows, err := r.DB.QueryContext(ctx, `SELECT `+indicatorColumns+` FROM indicators `+where+` ORDER BY created_at DESC, id DESC`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Indicator
	for rows.Next() {
		ind, err := scanIndicator(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, ind)
	}
	return res, rows.Err()
}

func (r Repo) SoftDeleteIndicator(ctx context.Context, tx *sql.Tx, id, deletedAt string) error {
	res, err := tx.ExecContext(ctx, `UPDATE indicators SET deleted_at=? WHERE id=? AND deleted_at IS NULL`, deletedAt, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) AttachProgrammeMonth(ctx context.Context, tx *sql.Tx, indicatorID, programmeID string, month int) error {
	_, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO indicator_programme_months(indicator_id,programme_id,programme_month) VALUES (?,?,?)`,
		indicatorID, programmeID, month)
	return err
}

func (r Repo) ListProgrammeMonths(ctx context.Context, indicatorID, programmeID string) ([]int, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT programme_month FROM indicator_programme_months WHERE indicator_id=? AND programme_id=? ORDER BY programme_month`,
		indicatorID, programmeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var months []int
	for rows.Next() {
		var m int
		if err := rows.Scan(&m); err != nil {
			return nil, err
		}
		months = append(months, m)
	}
	return months, rows.Err()
}

// --- indicator tasks ---

const taskColumns = `id,tenant_id,indicator_id,programme_id,entrepreneur_id,period,status,is_achieved,due_date,created_at,updated_at,completed_at,deleted_at`

func scanTask(scan func(dest ...any) error) (domain.IndicatorTask, error) {
	var t domain.IndicatorTask
	var isAchieved sql.NullInt64
	var dueDate, completedAt, deletedAt sql.NullString
	err := scan(&t.ID, &t.TenantID, &t.IndicatorID, &t.ProgrammeID, &t.EntrepreneurID, &t.Period,
		&t.Status, &isAchieved, &dueDate, &t.CreatedAt, &t.UpdatedAt, &completedAt, &deletedAt)
	if err == sql.ErrNoRows {
		return t, ErrNotFound
	}
	if err != nil {
		return t, err
	}
	if isAchieved.Valid {
		v := isAchieved.Int64 != 0
		t.IsAchieved = &v
	}
	if dueDate.Valid {
		t.DueDate = dueDate.String
	}
	if completedAt.Valid {
		t.CompletedAt = &completedAt.String
	}
	if deletedAt.Valid {
		t.DeletedAt = &deletedAt.String
	}
	return t, nil
}

func (r Repo) InsertTask(ctx context.Context, tx *sql.Tx, t domain.IndicatorTask) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO indicator_tasks(id,tenant_id,indicator_id,programme_id,entrepreneur_id,period,status,is_achieved,due_date,created_at,updated_at,completed_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`,
		t.ID, t.TenantID, t.IndicatorID, t.ProgrammeID, t.EntrepreneurID, t.Period, t.Status,
		nullableBoolPtr(t.IsAchieved), nullable(t.DueDate), t.CreatedAt, t.UpdatedAt, nullableStringPtr(t.CompletedAt))
	return err
}

func (r Repo) UpdateTaskTx(ctx context.Context, tx *sql.Tx, t domain.IndicatorTask) error {
	_, err := tx.ExecContext(ctx, `UPDATE indicator_tasks SET status=?, is_achieved=?, due_date=?, updated_at=?, completed_at=? WHERE id=?`,
		t.Status, nullableBoolPtr(t.IsAchieved), nullable(t.DueDate), t.UpdatedAt, nullableStringPtr(t.CompletedAt), t.ID)
	return err
}

func (r Repo) GetTask(ctx context.Context, id string) (domain.IndicatorTask, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM indicator_tasks WHERE id=?`, id)
	return scanTask(row.Scan)
}

func (r Repo) GetTaskTx(ctx context.Context, tx *sql.Tx, id string) (domain.IndicatorTask, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM indicator_tasks WHERE id=?`, id)
	return scanTask(row.Scan)
}

type TaskFilters struct {
	TenantID       string
	IndicatorID    string
	ProgrammeID    string
	EntrepreneurID string
	Status         string
	IncludeDeleted bool
	Limit          int
}

func (r Repo) ListTasks(ctx context.Context, f TaskFilters) ([]domain.IndicatorTask, error) {
	var clauses []string
	var args []any
	if f.TenantID != "" {
		clauses = append(clauses, "tenant_id=?")
		args = append(args, f.TenantID)
	}
	if f.IndicatorID != "" {
		clauses = append(clauses, "indicator_id=?")
		args = append(args, f.IndicatorID)
	}
	if f.ProgrammeID != "" {
		clauses = append(clauses, "programme_id=?")
		args = append(args, f.ProgrammeID)
	}
	if f.EntrepreneurID != "" {
		clauses = append(clauses, "entrepreneur_id=?")
		args = append(args, f.EntrepreneurID)
	}
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, f.Status)
	}
	if !f.IncludeDeleted {
		clauses = append(clauses, "deleted_at IS NULL")
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	query := `SELECT ` + taskColumns + ` FROM indicator_tasks ` + where + ` ORDER BY created_at DESC, id DESC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.IndicatorTask
	for rows.Next() {
		t, err := scanTask(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	return res, rows.Err()
}

// ListTasksByIndicatorTx returns every task of an indicator, deleted ones
// included, for the delete cascade.
func (r Repo) ListTasksByIndicatorTx(ctx context.Context, tx *sql.Tx, indicatorID string) ([]domain.IndicatorTask, error) {
	rows, err := tx.QueryContext(ctx, `SELECT `+taskColumns+` FROM indicator_tasks WHERE indicator_id=?`, indicatorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.IndicatorTask
	for rows.Next() {
		t, err := scanTask(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	return res, rows.Err()
}

func (r Repo) HardDeleteTaskTx(ctx context.Context, tx *sql.Tx, id string) error {
	_, err := tx.ExecContext(ctx, `DELETE FROM indicator_tasks WHERE id=?`, id)
	return err
}

func (r Repo) SoftDeleteTaskTx(ctx context.Context, tx *sql.Tx, id, deletedAt string) error {
	_, err := tx.ExecContext(ctx, `UPDATE indicator_tasks SET deleted_at=?, updated_at=? WHERE id=? AND deleted_at IS NULL`, deletedAt, deletedAt, id)
	return err
}

func (r Repo) CountTasksByStatus(ctx context.Context, tenantID string) (map[string]int, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT status, count(*) FROM indicator_tasks WHERE tenant_id=? AND deleted_at IS NULL GROUP BY status`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := map[string]int{}
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		res[status] = count
	}
	return res, rows.Err()
}

// --- tenant configs ---

func (r Repo) UpsertTenantConfig(ctx context.Context, tenantID string, cfg *config.Config) error {
	return upsertTenantConfig(ctx, r.DB.ExecContext, tenantID, cfg)
}

func (r Repo) UpsertTenantConfigTx(ctx context.Context, tx *sql.Tx, tenantID string, cfg *config.Config) error {
	return upsertTenantConfig(ctx, tx.ExecContext, tenantID, cfg)
}

type execFunc func(ctx context.Context, query string, args ...any) (sql.Result, error)

func upsertTenantConfig(ctx context.Context, exec execFunc, tenantID string, cfg *config.Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}
	cfg.Tenant.ID = tenantID
	if err := cfg.Validate(); err != nil {
		return err
	}
	payload, err := json.Marshal(cfg)
	if err != nil {
		return err
	}
	now := time.Now().UTC().Format(time.RFC3339)
	_, err = exec(ctx, `INSERT INTO tenant_configs(tenant_id,config_json,created_at,updated_at) VALUES (?,?,?,?)
ON CONFLICT(tenant_id) DO UPDATE SET config_json=excluded.config_json, updated_at=excluded.updated_at`,
		tenantID, string(payload), now, now)
	return err
}

func (r Repo) GetTenantConfig(ctx context.Context, tenantID string) (*config.Config, error) {
	var payload string
	err := r.DB.QueryRowContext(ctx, `SELECT config_json FROM tenant_configs WHERE tenant_id=?`, tenantID).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var cfg config.Config
	if err := json.Unmarshal([]byte(payload), &cfg); err != nil {
		return nil, err
	}
	if cfg.Tenant.ID == "" {
		cfg.Tenant.ID = tenantID
	}
	return &cfg, cfg.Validate()
}

// --- events ---

func (r Repo) LatestEvents(ctx context.Context, limit int, tenantID, evtType, entityKind, entityID string) ([]domain.Event, error) {
	clauses := []string{"1=1"}
	var args []any
	if tenantID != "" {
		clauses = append(clauses, "tenant_id=?")
		args = append(args, tenantID)
	}
	if evtType != "" {
		clauses = append(clauses, "type=?")
		args = append(args, evtType)
	}
	if entityKind != "" {
		clauses = append(clauses, "entity_kind=?")
		args = append(args, entityKind)
	}
	if entityID != "" {
		clauses = append(clauses, "entity_id=?")
		args = append(args, entityID)
	}
	where := "WHERE " + strings.Join(clauses, " AND ")
	query := fmt.Sprintf(`SELECT id,ts,type,tenant_id,entity_kind,entity_id,actor_id,payload_json FROM events %s ORDER BY id DESC LIMIT ?`, where)
	args = append(args, limit)
	return r.queryEvents(ctx, query, args...)
}

// EventsAfter returns events with IDs greater than the cursor, oldest first.
func (r Repo) EventsAfter(ctx context.Context, limit int, cursor int64, tenantID string) ([]domain.Event, error) {
	if limit <= 0 {
		limit = 100
	}
	clauses := []string{"id>?"}
	args := []any{cursor}
	if tenantID != "" {
		clauses = append(clauses, "tenant_id=?")
		args = append(args, tenantID)
	}
	where := "WHERE " + strings.Join(clauses, " AND ")
	query := fmt.Sprintf(`SELECT id,ts,type,tenant_id,entity_kind,entity_id,actor_id,payload_json FROM events %s ORDER BY id ASC LIMIT ?`, where)
	args = append(args, limit)
	return r.queryEvents(ctx, query, args...)
}

func (r Repo) LatestEventID(ctx context.Context) (int64, error) {
	var id int64
	err := r.DB.QueryRowContext(ctx, `SELECT COALESCE(MAX(id),0) FROM events`).Scan(&id)
	return id, err
}

func (r Repo) queryEvents(ctx context.Context, query string, args ...any) ([]domain.Event, error) {
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Event
	for rows.Next() {
		var e domain.Event
		var tenantID, entityID, actorID, payload sql.NullString
		if err := rows.Scan(&e.ID, &e.TS, &e.Type, &tenantID, &e.EntityKind, &entityID, &actorID, &payload); err != nil {
			return nil, err
		}
		if tenantID.Valid {
			e.TenantID = tenantID.String
		}
		if entityID.Valid {
			e.EntityID = entityID.String
		}
		if actorID.Valid {
			e.ActorID = actorID.String
		}
		if payload.Valid {
			e.Payload = payload.String
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

// --- helpers ---

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullableStringPtr(v *string) any {
	if v == nil || *v == "" {
		return nil
	}
	return *v
}

func nullableBoolPtr(v *bool) any {
	if v == nil {
		return nil
	}
	return boolToInt(*v)
}

func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}
