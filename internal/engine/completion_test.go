package engine

import (
	"context"
	"testing"
	"time"

	"veritrack/internal/config"
	"veritrack/internal/db"
	"veritrack/internal/migrate"
)

func newCompletionEnv(t *testing.T) (Engine, context.Context) {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	eng := New(conn, config.Default("acme"))
	eng.Now = func() time.Time { return time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC) }
	ctx := context.Background()
	if _, err := eng.InitTenant(ctx, "acme", "Acme Accelerator", "tester"); err != nil {
		t.Fatalf("init tenant: %v", err)
	}
	if _, err := eng.CreateUser(ctx, "acme", "founder-1", "Founder One", "", nil, "tester"); err != nil {
		t.Fatalf("seed founder: %v", err)
	}
	return eng, ctx
}

func TestCompleteTaskTxFiresOnce(t *testing.T) {
	eng, ctx := newCompletionEnv(t)
	ind, err := eng.CreateIndicator(ctx, IndicatorCreateOptions{
		TenantID: "acme", Kind: "success", Name: "Revenue", ResponseFormat: "monetary",
		PortfolioID: "fintech", TargetValue: "100", ActorID: "tester",
	})
	if err != nil {
		t.Fatalf("create indicator: %v", err)
	}
	task, err := eng.CreateTask(ctx, TaskCreateOptions{
		TenantID: "acme", IndicatorID: ind.ID, EntrepreneurID: "founder-1", Period: "2026-08", ActorID: "tester",
	})
	if err != nil {
		t.Fatalf("create task: %v", err)
	}
	sub, err := eng.CreateSubmission(ctx, SubmissionCreateOptions{
		TaskID: task.ID, Value: "250", ActorID: "founder-1",
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	// no verifiers: the submission auto-approved and completed the task
	tx, err := eng.DB.BeginTx(ctx, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer tx.Rollback()
	completed, err := eng.Repo.GetTaskTx(ctx, tx, task.ID)
	if err != nil {
		t.Fatalf("get task: %v", err)
	}
	if completed.Status != "completed" {
		t.Fatalf("expected completed, got %s", completed.Status)
	}
	firstCompletedAt := *completed.CompletedAt

	did, err := eng.completeTaskTx(ctx, tx, completed, sub, "tester")
	if err != nil {
		t.Fatalf("repeat completion: %v", err)
	}
	if did {
		t.Fatal("repeat completion must report false")
	}
	if err := tx.Commit(); err != nil {
		t.Fatal(err)
	}

	// nothing moved and no second completion event was recorded
	after, err := eng.Repo.GetTask(ctx, task.ID)
	if err != nil {
		t.Fatalf("get task: %v", err)
	}
	if *after.CompletedAt != firstCompletedAt {
		t.Fatalf("completed_at changed: %s -> %s", firstCompletedAt, *after.CompletedAt)
	}
	var n int
	if err := eng.DB.QueryRowContext(ctx, `SELECT count(*) FROM events WHERE type='task.completed' AND entity_id=?`, task.ID).Scan(&n); err != nil {
		t.Fatalf("count events: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected exactly one task.completed event, got %d", n)
	}
}
