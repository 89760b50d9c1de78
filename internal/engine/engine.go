package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"veritrack/internal/config"
	"veritrack/internal/domain"
	"veritrack/internal/engine/auth"
	"veritrack/internal/engine/verifier"
	"veritrack/internal/events"
	"veritrack/internal/repo"
)

type Engine struct {
	DB       *sql.DB
	Repo     repo.Repo
	Events   events.Writer
	Verifier verifier.Service
	Config   *config.Config
	Now      func() time.Time
}

func New(db *sql.DB, cfg *config.Config) Engine {
	r := repo.Repo{DB: db}
	return Engine{
		DB:       db,
		Repo:     r,
		Events:   events.Writer{DB: db},
		Verifier: verifier.Service{Repo: r},
		Config:   cfg,
		Now:      time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) nowString() string {
	return e.now().UTC().Format(time.RFC3339)
}

// InitTenant initializes a tenant with migrations already run, seeding the
// role catalog from config.
func (e Engine) InitTenant(ctx context.Context, tenantID, name, actorID string) (domain.Tenant, error) {
	if name == "" {
		name = tenantID
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Tenant{}, err
	}
	defer tx.Rollback()

	t := domain.Tenant{
		ID:        tenantID,
		Name:      name,
		Status:    "active",
		CreatedAt: e.nowString(),
	}
	if err := e.Repo.InsertTenant(ctx, tx, t); err != nil {
		return domain.Tenant{}, fmt.Errorf("insert tenant: %w", err)
	}
	cfg := e.Config
	if cfg == nil {
		cfg = config.Default(tenantID)
	}
	for roleID, rc := range cfg.Roles.Catalog {
		if err := e.Repo.InsertRole(ctx, tx, roleID, rc.Description); err != nil {
			return domain.Tenant{}, fmt.Errorf("seed role %s: %w", roleID, err)
		}
	}
	if err := e.Repo.UpsertTenantConfigTx(ctx, tx, tenantID, cfg); err != nil {
		return domain.Tenant{}, fmt.Errorf("insert tenant config: %w", err)
	}
	if err := e.Events.Append(ctx, tx, "tenant.init", t.ID, "tenant", t.ID, actorID, events.EventPayload{"status": t.Status}); err != nil {
		return domain.Tenant{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Tenant{}, err
	}
	return t, nil
}

func (e Engine) CreateProgramme(ctx context.Context, tenantID, name string, durationMonths int, actorID string) (domain.Programme, error) {
	if name == "" {
		return domain.Programme{}, errors.New("name is required")
	}
	if durationMonths < 1 || durationMonths > 60 {
		return domain.Programme{}, invalidInput("invalid_duration", "programme duration must be between 1 and 60 months, got %d", durationMonths)
	}
	if _, err := e.Repo.GetTenant(ctx, tenantID); err != nil {
		return domain.Programme{}, err
	}
	now := e.nowString()
	p := domain.Programme{
		ID:             uuid.New().String(),
		TenantID:       tenantID,
		Name:           name,
		DurationMonths: durationMonths,
		CreatedAt:      now,
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return p, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertProgramme(ctx, tx, p); err != nil {
		return p, err
	}
	if err := e.Events.Append(ctx, tx, "programme.created", tenantID, "programme", p.ID, actorID, events.EventPayload{"name": p.Name, "duration_months": p.DurationMonths}); err != nil {
		return p, err
	}
	if err := tx.Commit(); err != nil {
		return p, err
	}
	return p, nil
}

// CreateUser registers a user and optionally assigns roles from the catalog.
func (e Engine) CreateUser(ctx context.Context, tenantID, userID, name, email string, roles []string, actorID string) (domain.User, error) {
	if userID == "" {
		return domain.User{}, errors.New("user id is required")
	}
	if name == "" {
		name = userID
	}
	if _, err := e.Repo.GetTenant(ctx, tenantID); err != nil {
		return domain.User{}, err
	}
	u := domain.User{
		ID:        userID,
		TenantID:  tenantID,
		Name:      name,
		Email:     email,
		CreatedAt: e.nowString(),
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return u, err
	}
	defer tx.Rollback()
	if err := e.Repo.EnsureUser(ctx, tx, u); err != nil {
		return u, err
	}
	for _, roleID := range roles {
		ok, err := e.Repo.RoleExistsTx(ctx, tx, roleID)
		if err != nil {
			return u, err
		}
		if !ok {
			return u, invalidInput("unknown_role", "role %s is not in the catalog", roleID)
		}
		if err := e.Repo.AssignRole(ctx, tx, tenantID, userID, roleID); err != nil {
			return u, err
		}
	}
	if err := e.Events.Append(ctx, tx, "user.created", tenantID, "user", u.ID, actorID, events.EventPayload{"roles": roles}); err != nil {
		return u, err
	}
	if err := tx.Commit(); err != nil {
		return u, err
	}
	return u, nil
}

// RevokeRole removes a catalog role from a user. Revoking a role the user
// does not hold is a conflict, so callers can tell a revoke from a no-op.
func (e Engine) RevokeRole(ctx context.Context, tenantID, userID, roleID, actorID string) error {
	if _, err := e.Repo.GetRole(ctx, roleID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return invalidInput("unknown_role", "role %s is not in the catalog", roleID)
		}
		return err
	}
	held, err := auth.Service{DB: e.DB}.UserHasRole(ctx, tenantID, userID, roleID)
	if err != nil {
		return err
	}
	if !held {
		return conflict("role_not_held", "user %s does not hold role %s", userID, roleID)
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.RevokeRole(ctx, tx, tenantID, userID, roleID); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, "user.role_revoked", tenantID, "user", userID, actorID, events.EventPayload{"role": roleID}); err != nil {
		return err
	}
	return tx.Commit()
}

// IndicatorCreateOptions are parameters for defining an indicator.
type IndicatorCreateOptions struct {
	ID               string
	TenantID         string
	Kind             string
	Name             string
	Description      string
	PortfolioID      string
	PortfolioName    string
	ClusterID        string
	ClusterName      string
	ResponseFormat   string
	TargetValue      string
	AcceptanceValue  string
	Verifier1RoleID  string
	Verifier2RoleID  string
	RequiresEvidence bool
	ActorID          string
}

func (e Engine) CreateIndicator(ctx context.Context, opts IndicatorCreateOptions) (domain.Indicator, error) {
	if opts.Name == "" {
		return domain.Indicator{}, errors.New("name is required")
	}
	if _, err := e.Repo.GetTenant(ctx, opts.TenantID); err != nil {
		return domain.Indicator{}, err
	}
	now := e.nowString()
	id := opts.ID
	if id == "" {
		id = uuid.New().String()
	}
	ind := domain.Indicator{
		ID:               id,
		TenantID:         opts.TenantID,
		Kind:             opts.Kind,
		Name:             opts.Name,
		Description:      opts.Description,
		PortfolioID:      optionalString(opts.PortfolioID),
		ClusterID:        optionalString(opts.ClusterID),
		ResponseFormat:   opts.ResponseFormat,
		TargetValue:      optionalString(opts.TargetValue),
		AcceptanceValue:  optionalString(opts.AcceptanceValue),
		Verifier1RoleID:  optionalString(opts.Verifier1RoleID),
		Verifier2RoleID:  optionalString(opts.Verifier2RoleID),
		RequiresEvidence: opts.RequiresEvidence,
		CreatedAt:        now,
	}
	if err := ind.Validate(); err != nil {
		return ind, invalidInput("invalid_indicator", "%s", err)
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return ind, err
	}
	defer tx.Rollback()

	if ind.PortfolioID != nil {
		if err := e.Repo.EnsurePortfolio(ctx, tx, domain.Portfolio{
			ID: *ind.PortfolioID, TenantID: opts.TenantID, Name: defaultName(opts.PortfolioName, *ind.PortfolioID), CreatedAt: now,
		}); err != nil {
			return ind, err
		}
	}
	if ind.ClusterID != nil {
		if err := e.Repo.EnsureCluster(ctx, tx, domain.Cluster{
			ID: *ind.ClusterID, TenantID: opts.TenantID, Name: defaultName(opts.ClusterName, *ind.ClusterID), CreatedAt: now,
		}); err != nil {
			return ind, err
		}
	}
	for _, level := range []int{1, 2} {
		roleID := ind.VerifierRoleID(level)
		if roleID == nil {
			continue
		}
		ok, err := e.Repo.RoleExistsTx(ctx, tx, *roleID)
		if err != nil {
			return ind, err
		}
		if !ok {
			return ind, invalidInput("unknown_role", "verifier role %s is not in the catalog", *roleID)
		}
	}
	if err := e.Repo.InsertIndicator(ctx, tx, ind); err != nil {
		return ind, err
	}
	if err := e.Events.Append(ctx, tx, "indicator.created", ind.TenantID, "indicator", ind.ID, opts.ActorID, events.EventPayload{
		"kind":            ind.Kind,
		"name":            ind.Name,
		"response_format": ind.ResponseFormat,
	}); err != nil {
		return ind, err
	}
	if err := tx.Commit(); err != nil {
		return ind, err
	}
	return ind, nil
}

// AttachProgrammeMonth schedules an indicator for a relative month of a
// programme. The month must fall inside the programme's duration.
func (e Engine) AttachProgrammeMonth(ctx context.Context, tenantID, indicatorID, programmeID string, month int, actorID string) error {
	ind, err := e.Repo.GetIndicator(ctx, indicatorID)
	if err != nil {
		return err
	}
	if ind.DeletedAt != nil {
		return conflict("indicator_deleted", "indicator %s is deleted", indicatorID)
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	p, err := e.Repo.GetProgrammeTx(ctx, tx, programmeID)
	if err != nil {
		return err
	}
	if month < 1 || month > p.DurationMonths {
		return invalidInput("invalid_programme_month",
			"month %d outside programme %s duration of %d months", month, programmeID, p.DurationMonths)
	}
	if err := e.Repo.AttachProgrammeMonth(ctx, tx, indicatorID, programmeID, month); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, "indicator.scheduled", tenantID, "indicator", indicatorID, actorID, events.EventPayload{
		"programme_id": programmeID,
		"month":        month,
	}); err != nil {
		return err
	}
	return tx.Commit()
}

// TaskCreateOptions are parameters for instantiating an indicator task for
// one entrepreneur and period.
type TaskCreateOptions struct {
	ID             string
	TenantID       string
	IndicatorID    string
	ProgrammeID    string
	EntrepreneurID string
	Period         string
	DueDate        string
	ActorID        string
}

func (e Engine) CreateTask(ctx context.Context, opts TaskCreateOptions) (domain.IndicatorTask, error) {
	if opts.Period == "" {
		return domain.IndicatorTask{}, errors.New("period is required")
	}
	ind, err := e.Repo.GetIndicator(ctx, opts.IndicatorID)
	if err != nil {
		return domain.IndicatorTask{}, err
	}
	if ind.DeletedAt != nil {
		return domain.IndicatorTask{}, conflict("indicator_deleted", "indicator %s is deleted", opts.IndicatorID)
	}
	if opts.ProgrammeID != "" {
		if _, err := e.Repo.GetProgramme(ctx, opts.ProgrammeID); err != nil {
			return domain.IndicatorTask{}, err
		}
	}
	if _, err := e.Repo.GetUser(ctx, opts.EntrepreneurID); err != nil {
		return domain.IndicatorTask{}, err
	}
	id := opts.ID
	now := e.nowString()
	if id == "" {
		id = uuid.NewSHA1(uuid.NameSpaceOID, []byte(opts.IndicatorID+"|"+opts.EntrepreneurID+"|"+opts.Period)).String()
	}
	t := domain.IndicatorTask{
		ID:             id,
		TenantID:       opts.TenantID,
		IndicatorID:    opts.IndicatorID,
		ProgrammeID:    opts.ProgrammeID,
		EntrepreneurID: opts.EntrepreneurID,
		Period:         opts.Period,
		Status:         "pending",
		DueDate:        opts.DueDate,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return t, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertTask(ctx, tx, t); err != nil {
		return t, err
	}
	if err := e.Events.Append(ctx, tx, "task.created", t.TenantID, "task", t.ID, opts.ActorID, events.EventPayload{
		"indicator_id":    t.IndicatorID,
		"entrepreneur_id": t.EntrepreneurID,
		"period":          t.Period,
	}); err != nil {
		return t, err
	}
	if err := tx.Commit(); err != nil {
		return t, err
	}
	return t, nil
}

// DeleteIndicator soft-deletes an indicator. Tasks that never received a
// submission are removed outright; tasks with submission history are
// soft-deleted so the audit trail stays intact.
func (e Engine) DeleteIndicator(ctx context.Context, tenantID, indicatorID, actorID string) error {
	ind, err := e.Repo.GetIndicator(ctx, indicatorID)
	if err != nil {
		return err
	}
	if ind.DeletedAt != nil {
		return conflict("indicator_deleted", "indicator %s is already deleted", indicatorID)
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	now := e.nowString()
	tasks, err := e.Repo.ListTasksByIndicatorTx(ctx, tx, indicatorID)
	if err != nil {
		return err
	}
	hard, soft := 0, 0
	for _, t := range tasks {
		n, err := e.Repo.CountSubmissionsByTaskTx(ctx, tx, t.ID)
		if err != nil {
			return err
		}
		if n == 0 {
			if err := e.Repo.HardDeleteTaskTx(ctx, tx, t.ID); err != nil {
				return err
			}
			hard++
			continue
		}
		if t.DeletedAt == nil {
			if err := e.Repo.SoftDeleteTaskTx(ctx, tx, t.ID, now); err != nil {
				return err
			}
			soft++
		}
	}
	if err := e.Repo.SoftDeleteIndicator(ctx, tx, indicatorID, now); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, "indicator.deleted", tenantID, "indicator", indicatorID, actorID, events.EventPayload{
		"tasks_removed":      hard,
		"tasks_soft_deleted": soft,
	}); err != nil {
		return err
	}
	return tx.Commit()
}

// --- helpers ---

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func defaultName(name, fallback string) string {
	if name == "" {
		return fallback
	}
	return name
}
