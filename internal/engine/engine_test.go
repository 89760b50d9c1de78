package engine_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"veritrack/internal/config"
	"veritrack/internal/db"
	"veritrack/internal/engine"
	"veritrack/internal/migrate"
	"veritrack/internal/repo"
)

type testEnv struct {
	Engine engine.Engine
	Ctx    context.Context
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	cfg := config.Default("acme")
	eng := engine.New(conn, cfg)
	eng.Now = func() time.Time { return time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC) }
	ctx := context.Background()
	if _, err := eng.InitTenant(ctx, "acme", "Acme Accelerator", "tester"); err != nil {
		t.Fatalf("init tenant: %v", err)
	}
	if _, err := eng.CreateUser(ctx, "acme", "founder-1", "Founder One", "", nil, "tester"); err != nil {
		t.Fatalf("seed founder: %v", err)
	}
	return testEnv{Engine: eng, Ctx: ctx}
}

func createIndicator(t *testing.T, env testEnv, opts engine.IndicatorCreateOptions) string {
	t.Helper()
	opts.TenantID = "acme"
	opts.ActorID = "tester"
	ind, err := env.Engine.CreateIndicator(env.Ctx, opts)
	if err != nil {
		t.Fatalf("create indicator: %v", err)
	}
	return ind.ID
}

func TestIndicatorScopeValidation(t *testing.T) {
	env := newTestEnv(t)

	// neither portfolio nor cluster
	_, err := env.Engine.CreateIndicator(env.Ctx, engine.IndicatorCreateOptions{
		TenantID: "acme", Kind: "success", Name: "scopeless", ResponseFormat: "numeric", ActorID: "tester",
	})
	if err == nil {
		t.Fatal("expected scope error")
	}

	// both at once
	_, err = env.Engine.CreateIndicator(env.Ctx, engine.IndicatorCreateOptions{
		TenantID: "acme", Kind: "success", Name: "double", ResponseFormat: "numeric",
		PortfolioID: "fintech", ClusterID: "cohort-1", ActorID: "tester",
	})
	if err == nil {
		t.Fatal("expected exclusivity error")
	}

	// unknown response format
	_, err = env.Engine.CreateIndicator(env.Ctx, engine.IndicatorCreateOptions{
		TenantID: "acme", Kind: "success", Name: "badfmt", ResponseFormat: "emoji",
		PortfolioID: "fintech", ActorID: "tester",
	})
	if err == nil {
		t.Fatal("expected response format error")
	}

	// verifier role must come from the catalog
	_, err = env.Engine.CreateIndicator(env.Ctx, engine.IndicatorCreateOptions{
		TenantID: "acme", Kind: "success", Name: "badrole", ResponseFormat: "numeric",
		PortfolioID: "fintech", Verifier1RoleID: "astronaut", ActorID: "tester",
	})
	if err == nil {
		t.Fatal("expected unknown role error")
	}

	id := createIndicator(t, env, engine.IndicatorCreateOptions{
		Kind: "success", Name: "Revenue", ResponseFormat: "monetary",
		PortfolioID: "fintech", TargetValue: "1000",
	})
	if id == "" {
		t.Fatal("expected indicator id")
	}
}

func TestProgrammeDurationBounds(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.Engine.CreateProgramme(env.Ctx, "acme", "too short", 0, "tester"); err == nil {
		t.Fatal("expected duration error for 0 months")
	}
	if _, err := env.Engine.CreateProgramme(env.Ctx, "acme", "too long", 61, "tester"); err == nil {
		t.Fatal("expected duration error for 61 months")
	}
	p, err := env.Engine.CreateProgramme(env.Ctx, "acme", "spring cohort", 6, "tester")
	if err != nil {
		t.Fatalf("create programme: %v", err)
	}
	if p.DurationMonths != 6 {
		t.Fatalf("unexpected duration %d", p.DurationMonths)
	}
}

func TestProgrammeMonthScheduling(t *testing.T) {
	env := newTestEnv(t)
	p, err := env.Engine.CreateProgramme(env.Ctx, "acme", "spring cohort", 6, "tester")
	if err != nil {
		t.Fatal(err)
	}
	ind := createIndicator(t, env, engine.IndicatorCreateOptions{
		Kind: "success", Name: "Revenue", ResponseFormat: "monetary", PortfolioID: "fintech",
	})

	if err := env.Engine.AttachProgrammeMonth(env.Ctx, "acme", ind, p.ID, 7, "tester"); err == nil {
		t.Fatal("expected month out of range")
	}
	if err := env.Engine.AttachProgrammeMonth(env.Ctx, "acme", ind, p.ID, 0, "tester"); err == nil {
		t.Fatal("expected month out of range")
	}
	if err := env.Engine.AttachProgrammeMonth(env.Ctx, "acme", ind, p.ID, 3, "tester"); err != nil {
		t.Fatalf("attach month: %v", err)
	}
	months, err := env.Engine.Repo.ListProgrammeMonths(env.Ctx, ind, p.ID)
	if err != nil {
		t.Fatalf("list months: %v", err)
	}
	if len(months) != 1 || months[0] != 3 {
		t.Fatalf("unexpected months %v", months)
	}

	if err := env.Engine.DeleteIndicator(env.Ctx, "acme", ind, "tester"); err != nil {
		t.Fatalf("delete indicator: %v", err)
	}
	if err := env.Engine.AttachProgrammeMonth(env.Ctx, "acme", ind, p.ID, 2, "tester"); err == nil {
		t.Fatal("expected conflict on deleted indicator")
	}
}

func TestDeterministicTaskID(t *testing.T) {
	env := newTestEnv(t)
	ind := createIndicator(t, env, engine.IndicatorCreateOptions{
		Kind: "success", Name: "Revenue", ResponseFormat: "monetary", PortfolioID: "fintech",
	})
	task, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{
		TenantID: "acme", IndicatorID: ind, EntrepreneurID: "founder-1", Period: "2026-08", ActorID: "tester",
	})
	if err != nil {
		t.Fatalf("create task: %v", err)
	}
	want := uuid.NewSHA1(uuid.NameSpaceOID, []byte(ind+"|founder-1|2026-08")).String()
	if task.ID != want {
		t.Fatalf("expected deterministic id %s, got %s", want, task.ID)
	}
}

func TestDeleteIndicatorRemovesOpenTasks(t *testing.T) {
	env := newTestEnv(t)
	ind := createIndicator(t, env, engine.IndicatorCreateOptions{
		Kind: "success", Name: "Revenue", ResponseFormat: "monetary", PortfolioID: "fintech",
	})
	open, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{
		TenantID: "acme", IndicatorID: ind, EntrepreneurID: "founder-1", Period: "2026-08", ActorID: "tester",
	})
	if err != nil {
		t.Fatal(err)
	}
	submitted, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{
		TenantID: "acme", IndicatorID: ind, EntrepreneurID: "founder-1", Period: "2026-09", ActorID: "tester",
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.CreateSubmission(env.Ctx, engine.SubmissionCreateOptions{
		TaskID: submitted.ID, Value: "42", ActorID: "founder-1",
	}); err != nil {
		t.Fatalf("submit: %v", err)
	}

	if err := env.Engine.DeleteIndicator(env.Ctx, "acme", ind, "tester"); err != nil {
		t.Fatalf("delete indicator: %v", err)
	}

	// task without submissions is gone entirely
	if _, err := env.Engine.Repo.GetTask(env.Ctx, open.ID); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected untouched task removed, got %v", err)
	}
	// task with history survives as soft-deleted
	kept, err := env.Engine.Repo.GetTask(env.Ctx, submitted.ID)
	if err != nil {
		t.Fatalf("get soft-deleted task: %v", err)
	}
	if kept.DeletedAt == nil {
		t.Fatal("expected soft-delete marker")
	}

	// new tasks on a deleted indicator are refused
	if _, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{
		TenantID: "acme", IndicatorID: ind, EntrepreneurID: "founder-1", Period: "2026-10", ActorID: "tester",
	}); err == nil {
		t.Fatal("expected conflict on deleted indicator")
	}
}

func TestUnstaffedVerifierRoleBlocksSubmission(t *testing.T) {
	env := newTestEnv(t)
	// portfolio_lead is in the catalog but nobody holds it
	ind := createIndicator(t, env, engine.IndicatorCreateOptions{
		Kind: "success", Name: "Revenue", ResponseFormat: "monetary",
		PortfolioID: "fintech", Verifier1RoleID: "portfolio_lead",
	})
	task, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{
		TenantID: "acme", IndicatorID: ind, EntrepreneurID: "founder-1", Period: "2026-08", ActorID: "tester",
	})
	if err != nil {
		t.Fatal(err)
	}
	_, err = env.Engine.CreateSubmission(env.Ctx, engine.SubmissionCreateOptions{
		TaskID: task.ID, Value: "42", ActorID: "founder-1",
	})
	if err == nil {
		t.Fatal("expected unstaffed role error")
	}

	// the whole submission rolls back: task untouched, nothing recorded
	after, err := env.Engine.Repo.GetTask(env.Ctx, task.ID)
	if err != nil {
		t.Fatalf("get task: %v", err)
	}
	if after.Status != "pending" {
		t.Fatalf("expected pending after rollback, got %s", after.Status)
	}
	subs, err := env.Engine.Repo.ListSubmissionsByTask(env.Ctx, task.ID)
	if err != nil {
		t.Fatalf("list submissions: %v", err)
	}
	if len(subs) != 0 {
		t.Fatalf("expected no submissions, got %d", len(subs))
	}
}

func TestRevokeRole(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.Engine.CreateUser(env.Ctx, "acme", "vera", "Vera", "", []string{"programme_manager"}, "tester"); err != nil {
		t.Fatalf("create user: %v", err)
	}

	if err := env.Engine.RevokeRole(env.Ctx, "acme", "vera", "astronaut", "tester"); err == nil {
		t.Fatal("expected unknown role error")
	}
	// portfolio_lead is in the catalog but vera never held it
	if err := env.Engine.RevokeRole(env.Ctx, "acme", "vera", "portfolio_lead", "tester"); err == nil {
		t.Fatal("expected role_not_held conflict")
	}

	if err := env.Engine.RevokeRole(env.Ctx, "acme", "vera", "programme_manager", "tester"); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	roles, err := env.Engine.Repo.UserRoles(env.Ctx, "acme", "vera")
	if err != nil {
		t.Fatalf("user roles: %v", err)
	}
	if len(roles) != 0 {
		t.Fatalf("expected no roles, got %v", roles)
	}
	if err := env.Engine.RevokeRole(env.Ctx, "acme", "vera", "programme_manager", "tester"); err == nil {
		t.Fatal("expected conflict on second revoke")
	}
}

func TestEventAppendOnStateChanges(t *testing.T) {
	env := newTestEnv(t)
	ind := createIndicator(t, env, engine.IndicatorCreateOptions{
		Kind: "success", Name: "Revenue", ResponseFormat: "monetary", PortfolioID: "fintech", TargetValue: "100",
	})
	task, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{
		TenantID: "acme", IndicatorID: ind, EntrepreneurID: "founder-1", Period: "2026-08", ActorID: "tester",
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.CreateSubmission(env.Ctx, engine.SubmissionCreateOptions{
		TaskID: task.ID, Value: "120", ActorID: "founder-1",
	}); err != nil {
		t.Fatalf("submit: %v", err)
	}
	rows, err := env.Engine.DB.QueryContext(env.Ctx, `SELECT type FROM events WHERE tenant_id='acme'`)
	if err != nil {
		t.Fatalf("query events: %v", err)
	}
	defer rows.Close()
	seen := map[string]bool{}
	for rows.Next() {
		var typ string
		if err := rows.Scan(&typ); err != nil {
			t.Fatalf("scan: %v", err)
		}
		seen[typ] = true
	}
	for _, want := range []string{"indicator.created", "task.created", "submission.submitted", "submission.auto_approved", "task.completed"} {
		if !seen[want] {
			t.Fatalf("expected %s event, have %v", want, seen)
		}
	}
}
