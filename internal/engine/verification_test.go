package engine_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"veritrack/internal/engine"
	"veritrack/internal/engine/verifier"
	"veritrack/internal/repo"
)

// seedVerifiedIndicator wires an indicator with one or two verifier levels
// plus the staff holding those roles, and returns a fresh task for it.
func seedVerifiedIndicator(t *testing.T, env testEnv, v1, v2 string) string {
	t.Helper()
	if v1 != "" {
		_, err := env.Engine.CreateUser(env.Ctx, "acme", "vera", "Vera", "vera@acme.test", []string{"programme_manager"}, "tester")
		require.NoError(t, err)
	}
	if v2 != "" {
		_, err := env.Engine.CreateUser(env.Ctx, "acme", "paula", "Paula", "paula@acme.test", []string{"portfolio_lead"}, "tester")
		require.NoError(t, err)
	}
	ind := createIndicator(t, env, engine.IndicatorCreateOptions{
		Kind: "success", Name: "Monthly Revenue", ResponseFormat: "monetary",
		PortfolioID: "fintech", TargetValue: "100",
		Verifier1RoleID: v1, Verifier2RoleID: v2,
	})
	task, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{
		TenantID: "acme", IndicatorID: ind, EntrepreneurID: "founder-1", Period: "2026-08", ActorID: "tester",
	})
	require.NoError(t, err)
	return task.ID
}

func openReviewFor(t *testing.T, env testEnv, verifierID string) string {
	t.Helper()
	queue, err := env.Engine.Repo.ListReviewTasks(env.Ctx, repo.ReviewTaskFilters{
		VerifierUserID: verifierID, OpenOnly: true,
	})
	require.NoError(t, err)
	require.Len(t, queue, 1)
	return queue[0].ID
}

func TestTwoLevelApprovalFlow(t *testing.T) {
	env := newTestEnv(t)
	taskID := seedVerifiedIndicator(t, env, "programme_manager", "portfolio_lead")

	sub, err := env.Engine.CreateSubmission(env.Ctx, engine.SubmissionCreateOptions{
		TaskID: taskID, Value: "250", Comment: "august numbers", ActorID: "founder-1",
	})
	require.NoError(t, err)
	assert.Equal(t, "pending_verification_1", sub.Status)
	assert.True(t, sub.IsAchieved)

	// level 1 approval escalates because a level-2 role is configured
	l1 := openReviewFor(t, env, "vera")
	sub, err = env.Engine.ApproveReview(env.Ctx, engine.ReviewOptions{ReviewTaskID: l1, ReviewerID: "vera"})
	require.NoError(t, err)
	assert.Equal(t, "pending_verification_2", sub.Status)

	// the level-2 review carries the configured window
	l2Queue, err := env.Engine.Repo.ListReviewTasks(env.Ctx, repo.ReviewTaskFilters{VerifierUserID: "paula", OpenOnly: true})
	require.NoError(t, err)
	require.Len(t, l2Queue, 1)
	assert.Equal(t, 2, l2Queue[0].Level)
	assert.Equal(t, "2026-08-08T00:00:00Z", l2Queue[0].DueDate)

	sub, err = env.Engine.ApproveReview(env.Ctx, engine.ReviewOptions{ReviewTaskID: l2Queue[0].ID, ReviewerID: "paula"})
	require.NoError(t, err)
	assert.Equal(t, "approved", sub.Status)

	task, err := env.Engine.Repo.GetTask(env.Ctx, taskID)
	require.NoError(t, err)
	assert.Equal(t, "completed", task.Status)
	require.NotNil(t, task.IsAchieved)
	assert.True(t, *task.IsAchieved)
	require.NotNil(t, task.CompletedAt)
}

func TestSingleLevelApprovalFinalizes(t *testing.T) {
	env := newTestEnv(t)
	taskID := seedVerifiedIndicator(t, env, "programme_manager", "")

	sub, err := env.Engine.CreateSubmission(env.Ctx, engine.SubmissionCreateOptions{
		TaskID: taskID, Value: "40", ActorID: "founder-1",
	})
	require.NoError(t, err)
	assert.False(t, sub.IsAchieved)

	l1 := openReviewFor(t, env, "vera")
	sub, err = env.Engine.ApproveReview(env.Ctx, engine.ReviewOptions{ReviewTaskID: l1, ReviewerID: "vera"})
	require.NoError(t, err)
	assert.Equal(t, "approved", sub.Status)

	// an approved miss still completes the task, just marked unachieved
	task, err := env.Engine.Repo.GetTask(env.Ctx, taskID)
	require.NoError(t, err)
	assert.Equal(t, "completed", task.Status)
	require.NotNil(t, task.IsAchieved)
	assert.False(t, *task.IsAchieved)
}

func TestRejectionReturnsTaskForRevision(t *testing.T) {
	env := newTestEnv(t)
	taskID := seedVerifiedIndicator(t, env, "programme_manager", "")

	_, err := env.Engine.CreateSubmission(env.Ctx, engine.SubmissionCreateOptions{
		TaskID: taskID, Value: "250", ActorID: "founder-1",
	})
	require.NoError(t, err)

	l1 := openReviewFor(t, env, "vera")
	sub, err := env.Engine.RejectReview(env.Ctx, engine.ReviewOptions{
		ReviewTaskID: l1, ReviewerID: "vera", Comment: "numbers do not match the bank export",
	})
	require.NoError(t, err)
	assert.Equal(t, "rejected", sub.Status)

	task, err := env.Engine.Repo.GetTask(env.Ctx, taskID)
	require.NoError(t, err)
	assert.Equal(t, "needs_revision", task.Status)

	// the entrepreneur can go again once the rejection lands
	resub, err := env.Engine.CreateSubmission(env.Ctx, engine.SubmissionCreateOptions{
		TaskID: taskID, Value: "180", Comment: "corrected", ActorID: "founder-1",
	})
	require.NoError(t, err)
	assert.Equal(t, "pending_verification_1", resub.Status)
	assert.NotEqual(t, sub.ID, resub.ID)
}

func TestDuplicateReviewConflicts(t *testing.T) {
	env := newTestEnv(t)
	taskID := seedVerifiedIndicator(t, env, "programme_manager", "")

	_, err := env.Engine.CreateSubmission(env.Ctx, engine.SubmissionCreateOptions{
		TaskID: taskID, Value: "250", ActorID: "founder-1",
	})
	require.NoError(t, err)

	l1 := openReviewFor(t, env, "vera")
	_, err = env.Engine.ApproveReview(env.Ctx, engine.ReviewOptions{ReviewTaskID: l1, ReviewerID: "vera"})
	require.NoError(t, err)

	_, err = env.Engine.ApproveReview(env.Ctx, engine.ReviewOptions{ReviewTaskID: l1, ReviewerID: "vera"})
	var svcErr *engine.ServiceError
	require.ErrorAs(t, err, &svcErr)
	assert.Equal(t, "review_completed", svcErr.Code)
	assert.Equal(t, 409, svcErr.Status)
}

func TestSingleOpenSubmissionPerTask(t *testing.T) {
	env := newTestEnv(t)
	taskID := seedVerifiedIndicator(t, env, "programme_manager", "")

	_, err := env.Engine.CreateSubmission(env.Ctx, engine.SubmissionCreateOptions{
		TaskID: taskID, Value: "250", ActorID: "founder-1",
	})
	require.NoError(t, err)

	_, err = env.Engine.CreateSubmission(env.Ctx, engine.SubmissionCreateOptions{
		TaskID: taskID, Value: "260", ActorID: "founder-1",
	})
	var svcErr *engine.ServiceError
	require.ErrorAs(t, err, &svcErr)
	assert.Equal(t, "task_not_submittable", svcErr.Code)
}

func TestEvidenceRequirementEnforced(t *testing.T) {
	env := newTestEnv(t)
	ind := createIndicator(t, env, engine.IndicatorCreateOptions{
		Kind: "compliance", Name: "Pitch Deck Delivered", ResponseFormat: "boolean",
		ClusterID: "cohort-1", AcceptanceValue: "true", RequiresEvidence: true,
	})
	task, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{
		TenantID: "acme", IndicatorID: ind, EntrepreneurID: "founder-1", Period: "2026-08", ActorID: "tester",
	})
	require.NoError(t, err)

	_, err = env.Engine.CreateSubmission(env.Ctx, engine.SubmissionCreateOptions{
		TaskID: task.ID, Value: "true", ActorID: "founder-1",
	})
	var svcErr *engine.ServiceError
	require.ErrorAs(t, err, &svcErr)
	assert.Equal(t, "evidence_required", svcErr.Code)

	sub, err := env.Engine.CreateSubmission(env.Ctx, engine.SubmissionCreateOptions{
		TaskID: task.ID, Value: "true", ActorID: "founder-1",
		Attachments: []engine.AttachmentInput{{FileName: "deck.pdf", URL: "https://files.acme.test/deck.pdf"}},
	})
	require.NoError(t, err)
	atts, err := env.Engine.Repo.ListAttachments(env.Ctx, sub.ID)
	require.NoError(t, err)
	require.Len(t, atts, 1)
	assert.Equal(t, "deck.pdf", atts[0].FileName)
}

func TestReviewWindowAnchoredToSubmission(t *testing.T) {
	env := newTestEnv(t)
	taskID := seedVerifiedIndicator(t, env, "programme_manager", "portfolio_lead")

	_, err := env.Engine.CreateSubmission(env.Ctx, engine.SubmissionCreateOptions{
		TaskID: taskID, Value: "250", ActorID: "founder-1",
	})
	require.NoError(t, err)

	// four days pass before the level-1 verifier gets to it
	env.Engine.Now = func() time.Time { return time.Date(2026, 8, 5, 0, 0, 0, 0, time.UTC) }

	l1 := openReviewFor(t, env, "vera")
	_, err = env.Engine.ApproveReview(env.Ctx, engine.ReviewOptions{ReviewTaskID: l1, ReviewerID: "vera"})
	require.NoError(t, err)

	// the level-2 deadline counts from submission, not from the approval
	l2Queue, err := env.Engine.Repo.ListReviewTasks(env.Ctx, repo.ReviewTaskFilters{VerifierUserID: "paula", OpenOnly: true})
	require.NoError(t, err)
	require.Len(t, l2Queue, 1)
	assert.Equal(t, "2026-08-08T00:00:00Z", l2Queue[0].DueDate)
	assert.Equal(t, "2026-08-05T00:00:00Z", l2Queue[0].CreatedAt)
}

func TestLevelTwoRejectionReturnsTask(t *testing.T) {
	env := newTestEnv(t)
	taskID := seedVerifiedIndicator(t, env, "programme_manager", "portfolio_lead")

	_, err := env.Engine.CreateSubmission(env.Ctx, engine.SubmissionCreateOptions{
		TaskID: taskID, Value: "250", ActorID: "founder-1",
	})
	require.NoError(t, err)

	l1 := openReviewFor(t, env, "vera")
	_, err = env.Engine.ApproveReview(env.Ctx, engine.ReviewOptions{ReviewTaskID: l1, ReviewerID: "vera"})
	require.NoError(t, err)

	l2 := openReviewFor(t, env, "paula")
	sub, err := env.Engine.RejectReview(env.Ctx, engine.ReviewOptions{
		ReviewTaskID: l2, ReviewerID: "paula", Comment: "portfolio numbers disagree",
	})
	require.NoError(t, err)
	assert.Equal(t, "rejected", sub.Status)

	task, err := env.Engine.Repo.GetTask(env.Ctx, taskID)
	require.NoError(t, err)
	assert.Equal(t, "needs_revision", task.Status)
	assert.Nil(t, task.CompletedAt)

	// nothing further is queued for either verifier
	open, err := env.Engine.Repo.ListReviewTasks(env.Ctx, repo.ReviewTaskFilters{OpenOnly: true})
	require.NoError(t, err)
	assert.Empty(t, open)
}

func TestDeletedTaskReviewConflicts(t *testing.T) {
	env := newTestEnv(t)
	taskID := seedVerifiedIndicator(t, env, "programme_manager", "")

	_, err := env.Engine.CreateSubmission(env.Ctx, engine.SubmissionCreateOptions{
		TaskID: taskID, Value: "250", ActorID: "founder-1",
	})
	require.NoError(t, err)
	l1 := openReviewFor(t, env, "vera")

	task, err := env.Engine.Repo.GetTask(env.Ctx, taskID)
	require.NoError(t, err)
	require.NoError(t, env.Engine.DeleteIndicator(env.Ctx, "acme", task.IndicatorID, "tester"))

	_, err = env.Engine.ApproveReview(env.Ctx, engine.ReviewOptions{ReviewTaskID: l1, ReviewerID: "vera"})
	var svcErr *engine.ServiceError
	require.ErrorAs(t, err, &svcErr)
	assert.Equal(t, "task_deleted", svcErr.Code)
	assert.Equal(t, 409, svcErr.Status)

	// the soft-deleted task did not move
	after, err := env.Engine.Repo.GetTask(env.Ctx, taskID)
	require.NoError(t, err)
	assert.Equal(t, "submitted", after.Status)
}

func TestDanglingIndicatorReference(t *testing.T) {
	env := newTestEnv(t)
	ind := createIndicator(t, env, engine.IndicatorCreateOptions{
		Kind: "success", Name: "Revenue", ResponseFormat: "monetary", PortfolioID: "fintech",
	})
	task, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{
		TenantID: "acme", IndicatorID: ind, EntrepreneurID: "founder-1", Period: "2026-08", ActorID: "tester",
	})
	require.NoError(t, err)

	// simulate store corruption: drop the indicator row out from under the task
	env.Engine.DB.SetMaxOpenConns(1)
	_, err = env.Engine.DB.ExecContext(env.Ctx, `PRAGMA foreign_keys=OFF`)
	require.NoError(t, err)
	_, err = env.Engine.DB.ExecContext(env.Ctx, `DELETE FROM indicators WHERE id=?`, ind)
	require.NoError(t, err)
	_, err = env.Engine.DB.ExecContext(env.Ctx, `PRAGMA foreign_keys=ON`)
	require.NoError(t, err)

	_, err = env.Engine.CreateSubmission(env.Ctx, engine.SubmissionCreateOptions{
		TaskID: task.ID, Value: "42", ActorID: "founder-1",
	})
	var mae *engine.MissingAssociationError
	require.ErrorAs(t, err, &mae)
	assert.Equal(t, task.ID, mae.TaskID)
	assert.Equal(t, ind, mae.IndicatorID)
}

func TestUnstaffedVerifierRoleSurfacesTyped(t *testing.T) {
	env := newTestEnv(t)
	ind := createIndicator(t, env, engine.IndicatorCreateOptions{
		Kind: "success", Name: "Revenue", ResponseFormat: "monetary",
		PortfolioID: "fintech", Verifier1RoleID: "portfolio_lead",
	})
	task, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{
		TenantID: "acme", IndicatorID: ind, EntrepreneurID: "founder-1", Period: "2026-08", ActorID: "tester",
	})
	require.NoError(t, err)

	_, err = env.Engine.CreateSubmission(env.Ctx, engine.SubmissionCreateOptions{
		TaskID: task.ID, Value: "42", ActorID: "founder-1",
	})
	var roleErr *verifier.RoleNotFoundError
	require.ErrorAs(t, err, &roleErr)
	assert.Equal(t, "portfolio_lead", roleErr.RoleID)
	assert.Equal(t, 1, roleErr.Level)
}
