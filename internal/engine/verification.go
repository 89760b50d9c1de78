package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"veritrack/internal/domain"
	"veritrack/internal/events"
	"veritrack/internal/repo"
)

// AttachmentInput is evidence supplied alongside a submission.
type AttachmentInput struct {
	FileName string
	URL      string
}

// SubmissionCreateOptions are parameters for reporting a value against a
// task.
type SubmissionCreateOptions struct {
	ID          string
	TaskID      string
	Value       string
	Comment     string
	Attachments []AttachmentInput
	ActorID     string
}

// CreateSubmission records a reported value and starts verification in the
// same transaction. The task moves to "submitted"; depending on the
// indicator's verifier configuration the submission either enters level-1
// review or is approved outright.
func (e Engine) CreateSubmission(ctx context.Context, opts SubmissionCreateOptions) (domain.Submission, error) {
	if opts.Value == "" {
		return domain.Submission{}, errors.New("value is required")
	}
	t, err := e.Repo.GetTask(ctx, opts.TaskID)
	if err != nil {
		return domain.Submission{}, err
	}
	if t.DeletedAt != nil {
		return domain.Submission{}, conflict("task_deleted", "task %s is deleted", t.ID)
	}
	if !t.Submittable() {
		return domain.Submission{}, conflict("task_not_submittable",
			"task %s has status %s; submissions require pending or needs_revision", t.ID, t.Status)
	}
	ind, err := e.Repo.GetIndicator(ctx, t.IndicatorID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return domain.Submission{}, &MissingAssociationError{TaskID: t.ID, IndicatorID: t.IndicatorID}
		}
		return domain.Submission{}, err
	}
	if ind.RequiresEvidence && len(opts.Attachments) == 0 {
		return domain.Submission{}, invalidInput("evidence_required", "indicator %s requires at least one attachment", ind.ID)
	}

	now := e.nowString()
	id := opts.ID
	if id == "" {
		id = uuid.New().String()
	}
	s := domain.Submission{
		ID:          id,
		TaskID:      t.ID,
		Value:       opts.Value,
		Comment:     opts.Comment,
		IsAchieved:  ind.EvaluateAchievement(opts.Value),
		Status:      "pending_verification_1",
		SubmittedAt: now,
		CreatedAt:   now,
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return s, err
	}
	defer tx.Rollback()

	if open, err := e.Repo.OpenSubmissionForTaskTx(ctx, tx, t.ID); err == nil {
		return s, conflict("submission_in_flight", "submission %s for task %s is still under verification", open.ID, t.ID)
	} else if !errors.Is(err, repo.ErrNotFound) {
		return s, err
	}
	if err := e.Repo.InsertSubmissionTx(ctx, tx, s); err != nil {
		return s, err
	}
	for _, a := range opts.Attachments {
		att := domain.Attachment{
			ID:           uuid.New().String(),
			SubmissionID: s.ID,
			FileName:     a.FileName,
			URL:          a.URL,
			CreatedAt:    now,
		}
		if err := e.Repo.InsertAttachmentTx(ctx, tx, att); err != nil {
			return s, err
		}
	}
	t.Status = "submitted"
	t.UpdatedAt = now
	if err := e.Repo.UpdateTaskTx(ctx, tx, t); err != nil {
		return s, err
	}
	if err := e.Events.Append(ctx, tx, "submission.submitted", t.TenantID, "submission", s.ID, opts.ActorID, events.EventPayload{
		"task_id":     t.ID,
		"value":       s.Value,
		"is_achieved": s.IsAchieved,
	}); err != nil {
		return s, err
	}
	s.Status, err = e.startVerificationTx(ctx, tx, t, ind, s, opts.ActorID)
	if err != nil {
		return s, err
	}
	if err := tx.Commit(); err != nil {
		return s, err
	}
	return s, nil
}

// startVerificationTx opens the level-1 review or, when the indicator has no
// verifiers, approves the submission immediately. Returns the submission's
// resulting status.
func (e Engine) startVerificationTx(ctx context.Context, tx *sql.Tx, t domain.IndicatorTask, ind domain.Indicator, s domain.Submission, actorID string) (string, error) {
	if !ind.RequiresVerification() {
		if e.Config != nil && e.Config.Verification.WarnUnverified {
			log.Printf("submission %s approved without verification: indicator %s has no verifier roles", s.ID, ind.ID)
		}
		if err := e.Repo.UpdateSubmissionStatusTx(ctx, tx, s.ID, "approved"); err != nil {
			return s.Status, err
		}
		if err := e.Events.Append(ctx, tx, "submission.auto_approved", t.TenantID, "submission", s.ID, actorID, events.EventPayload{
			"task_id": t.ID,
			"reason":  "no verifiers configured",
		}); err != nil {
			return s.Status, err
		}
		if _, err := e.completeTaskTx(ctx, tx, t, s, actorID); err != nil {
			return s.Status, err
		}
		return "approved", nil
	}
	if err := e.openReviewTx(ctx, tx, t, ind, s, 1, actorID); err != nil {
		return s.Status, err
	}
	return "pending_verification_1", nil
}

// openReviewTx resolves the verifier for a level and inserts the review
// task. There is at most one per (submission, level). The review deadline is
// anchored to the submission time, not the moment the level opens, so a slow
// level-1 approval does not stretch the level-2 window.
func (e Engine) openReviewTx(ctx context.Context, tx *sql.Tx, t domain.IndicatorTask, ind domain.Indicator, s domain.Submission, level int, actorID string) error {
	if _, err := e.Repo.ReviewTaskForLevelTx(ctx, tx, s.ID, level); err == nil {
		return &ReviewTaskCreationError{SubmissionID: s.ID, Level: level,
			Err: fmt.Errorf("level-%d review task already exists", level)}
	} else if !errors.Is(err, repo.ErrNotFound) {
		return err
	}
	u, err := e.Verifier.Resolve(ctx, tx, t.TenantID, ind, level)
	if err != nil {
		return err
	}
	if u == nil {
		return &ReviewTaskCreationError{SubmissionID: s.ID, Level: level,
			Err: fmt.Errorf("indicator %s has no level-%d verifier role", ind.ID, level)}
	}
	submittedAt, err := time.Parse(time.RFC3339, s.SubmittedAt)
	if err != nil {
		return &ReviewTaskCreationError{SubmissionID: s.ID, Level: level,
			Err: fmt.Errorf("parse submitted_at: %w", err)}
	}
	rt := domain.ReviewTask{
		ID:             uuid.New().String(),
		SubmissionID:   s.ID,
		TaskID:         t.ID,
		VerifierUserID: u.ID,
		Level:          level,
		DueDate:        submittedAt.UTC().AddDate(0, 0, e.Config.ReviewWindowDays()).Format(time.RFC3339),
		CreatedAt:      e.now().UTC().Format(time.RFC3339),
	}
	if err := e.Repo.InsertReviewTaskTx(ctx, tx, rt); err != nil {
		return &ReviewTaskCreationError{SubmissionID: s.ID, Level: level, Err: err}
	}
	return e.Events.Append(ctx, tx, "review.awaiting", t.TenantID, "review_task", rt.ID, actorID, events.EventPayload{
		"submission_id": s.ID,
		"level":         level,
		"verifier_id":   u.ID,
		"due_date":      rt.DueDate,
	})
}

func ensureSubmissionTransition(oldStatus, newStatus string) error {
	switch oldStatus {
	case "pending_verification_1":
		if newStatus == "pending_verification_2" || newStatus == "approved" || newStatus == "rejected" {
			return nil
		}
	case "pending_verification_2":
		if newStatus == "approved" || newStatus == "rejected" {
			return nil
		}
	}
	return fmt.Errorf("invalid submission status transition %s -> %s", oldStatus, newStatus)
}

// ReviewOptions identify a verdict on an open review task.
type ReviewOptions struct {
	ReviewTaskID string
	ReviewerID   string
	Comment      string
}

// ApproveReview records an approval. Level 1 either escalates to level 2 or
// finalizes, depending on the indicator; level 2 always finalizes.
func (e Engine) ApproveReview(ctx context.Context, opts ReviewOptions) (domain.Submission, error) {
	return e.review(ctx, opts, true)
}

// RejectReview records a rejection at any level: the submission is closed
// and the task returns to the entrepreneur for revision.
func (e Engine) RejectReview(ctx context.Context, opts ReviewOptions) (domain.Submission, error) {
	return e.review(ctx, opts, false)
}

func (e Engine) review(ctx context.Context, opts ReviewOptions, approved bool) (domain.Submission, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Submission{}, err
	}
	defer tx.Rollback()

	rt, err := e.Repo.GetReviewTaskTx(ctx, tx, opts.ReviewTaskID)
	if err != nil {
		return domain.Submission{}, err
	}
	if rt.CompletedAt != nil {
		return domain.Submission{}, conflict("review_completed", "review task %s is already completed", rt.ID)
	}
	s, err := e.Repo.GetSubmissionTx(ctx, tx, rt.SubmissionID)
	if err != nil {
		return s, err
	}
	expected := fmt.Sprintf("pending_verification_%d", rt.Level)
	if s.Status != expected {
		return s, conflict("submission_not_pending", "submission %s has status %s, not %s", s.ID, s.Status, expected)
	}
	t, err := e.Repo.GetTaskTx(ctx, tx, rt.TaskID)
	if err != nil {
		return s, err
	}
	if t.DeletedAt != nil {
		return s, conflict("task_deleted", "task %s is deleted", t.ID)
	}
	now := e.nowString()
	rv := domain.SubmissionReview{
		ID:           uuid.New().String(),
		SubmissionID: s.ID,
		ReviewTaskID: rt.ID,
		ReviewerID:   opts.ReviewerID,
		Level:        rt.Level,
		Approved:     approved,
		Comment:      opts.Comment,
		ReviewedAt:   now,
	}
	if err := e.Repo.InsertReviewTx(ctx, tx, rv); err != nil {
		return s, err
	}
	if err := e.Repo.CompleteReviewTaskTx(ctx, tx, rt.ID, now); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return s, conflict("review_completed", "review task %s is already completed", rt.ID)
		}
		return s, err
	}
	if err := e.Events.Append(ctx, tx, "review.completed", t.TenantID, "review_task", rt.ID, opts.ReviewerID, events.EventPayload{
		"submission_id": s.ID,
		"level":         rt.Level,
		"approved":      approved,
	}); err != nil {
		return s, err
	}

	if !approved {
		if err := ensureSubmissionTransition(s.Status, "rejected"); err != nil {
			return s, err
		}
		if err := e.Repo.UpdateSubmissionStatusTx(ctx, tx, s.ID, "rejected"); err != nil {
			return s, err
		}
		if err := e.Events.Append(ctx, tx, "submission.rejected", t.TenantID, "submission", s.ID, opts.ReviewerID, events.EventPayload{
			"task_id": t.ID,
			"level":   rt.Level,
			"comment": opts.Comment,
		}); err != nil {
			return s, err
		}
		t.Status = "needs_revision"
		t.UpdatedAt = now
		if err := e.Repo.UpdateTaskTx(ctx, tx, t); err != nil {
			return s, err
		}
		if err := e.Events.Append(ctx, tx, "task.needs_revision", t.TenantID, "task", t.ID, opts.ReviewerID, events.EventPayload{
			"submission_id": s.ID,
		}); err != nil {
			return s, err
		}
		s.Status = "rejected"
		return s, tx.Commit()
	}

	if rt.Level == 1 {
		ind, err := e.Repo.GetIndicatorTx(ctx, tx, t.IndicatorID)
		if err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return s, &MissingAssociationError{TaskID: t.ID, IndicatorID: t.IndicatorID}
			}
			return s, err
		}
		if ind.VerifierRoleID(2) != nil {
			if err := ensureSubmissionTransition(s.Status, "pending_verification_2"); err != nil {
				return s, err
			}
			if err := e.Repo.UpdateSubmissionStatusTx(ctx, tx, s.ID, "pending_verification_2"); err != nil {
				return s, err
			}
			if err := e.openReviewTx(ctx, tx, t, ind, s, 2, opts.ReviewerID); err != nil {
				return s, err
			}
			s.Status = "pending_verification_2"
			return s, tx.Commit()
		}
	}

	if err := ensureSubmissionTransition(s.Status, "approved"); err != nil {
		return s, err
	}
	if err := e.Repo.UpdateSubmissionStatusTx(ctx, tx, s.ID, "approved"); err != nil {
		return s, err
	}
	if err := e.Events.Append(ctx, tx, "submission.approved", t.TenantID, "submission", s.ID, opts.ReviewerID, events.EventPayload{
		"task_id": t.ID,
		"level":   rt.Level,
	}); err != nil {
		return s, err
	}
	if _, err := e.completeTaskTx(ctx, tx, t, s, opts.ReviewerID); err != nil {
		return s, err
	}
	s.Status = "approved"
	return s, tx.Commit()
}

// completeTaskTx is the single place that moves a task to "completed" and
// copies the achievement outcome from the approved submission. It reports
// whether this call performed the transition, so callers can gate fire-once
// effects; a task already completed is left untouched.
func (e Engine) completeTaskTx(ctx context.Context, tx *sql.Tx, t domain.IndicatorTask, s domain.Submission, actorID string) (bool, error) {
	if t.Status == "completed" {
		return false, nil
	}
	now := e.nowString()
	achieved := s.IsAchieved
	t.Status = "completed"
	t.IsAchieved = &achieved
	t.UpdatedAt = now
	t.CompletedAt = &now
	if err := e.Repo.UpdateTaskTx(ctx, tx, t); err != nil {
		return false, err
	}
	if err := e.Events.Append(ctx, tx, "task.completed", t.TenantID, "task", t.ID, actorID, events.EventPayload{
		"submission_id": s.ID,
		"is_achieved":   achieved,
	}); err != nil {
		return false, err
	}
	return true, nil
}
