package repo

import (
	"context"
	"database/sql"

	"veritrack/internal/domain"
)

const reviewTaskColumns = `id,submission_id,task_id,verifier_user_id,level,due_date,completed_at,created_at`

func scanReviewTask(scan func(dest ...any) error) (domain.ReviewTask, error) {
	var rt domain.ReviewTask
	var completedAt sql.NullString
	err := scan(&rt.ID, &rt.SubmissionID, &rt.TaskID, &rt.VerifierUserID, &rt.Level, &rt.DueDate, &completedAt, &rt.CreatedAt)
	if err == sql.ErrNoRows {
		return rt, ErrNotFound
	}
	if err != nil {
		return rt, err
	}
	if completedAt.Valid {
		rt.CompletedAt = &completedAt.String
	}
	return rt, nil
}

func (r Repo) InsertReviewTaskTx(ctx context.Context, tx *sql.Tx, rt domain.ReviewTask) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO indicator_review_tasks(id,submission_id,task_id,verifier_user_id,level,due_date,created_at)
VALUES (?,?,?,?,?,?,?)`,
		rt.ID, rt.SubmissionID, rt.TaskID, rt.VerifierUserID, rt.Level, rt.DueDate, rt.CreatedAt)
	return err
}

func (r Repo) GetReviewTask(ctx context.Context, id string) (domain.ReviewTask, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+reviewTaskColumns+` FROM indicator_review_tasks WHERE id=?`, id)
	return scanReviewTask(row.Scan)
}

func (r Repo) GetReviewTaskTx(ctx context.Context, tx *sql.Tx, id string) (domain.ReviewTask, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+reviewTaskColumns+` FROM indicator_review_tasks WHERE id=?`, id)
	return scanReviewTask(row.Scan)
}

// ReviewTaskForLevelTx returns the unique review task for a
// (submission, level) pair.
func (r Repo) ReviewTaskForLevelTx(ctx context.Context, tx *sql.Tx, submissionID string, level int) (domain.ReviewTask, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+reviewTaskColumns+` FROM indicator_review_tasks WHERE submission_id=? AND level=?`, submissionID, level)
	return scanReviewTask(row.Scan)
}

func (r Repo) CompleteReviewTaskTx(ctx context.Context, tx *sql.Tx, id, completedAt string) error {
	res, err := tx.ExecContext(ctx, `UPDATE indicator_review_tasks SET completed_at=? WHERE id=? AND completed_at IS NULL`, completedAt, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

type ReviewTaskFilters struct {
	VerifierUserID string
	SubmissionID   string
	OpenOnly       bool
	Limit          int
}

func (r Repo) ListReviewTasks(ctx context.Context, f ReviewTaskFilters) ([]domain.ReviewTask, error) {
	clauses := []string{"1=1"}
	var args []any
	if f.VerifierUserID != "" {
		clauses = append(clauses, "verifier_user_id=?")
		args = append(args, f.VerifierUserID)
	}
	if f.SubmissionID != "" {
		clauses = append(clauses, "submission_id=?")
		args = append(args, f.SubmissionID)
	}
	if f.OpenOnly {
		clauses = append(clauses, "completed_at IS NULL")
	}
	query := `SELECT ` + reviewTaskColumns + ` FROM indicator_review_tasks WHERE `
	for i, c := range clauses {
		if i > 0 {
			query += " AND "
		}
		query += c
	}
	query += ` ORDER BY due_date ASC, created_at ASC, id ASC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.ReviewTask
	for rows.Next() {
		rt, err := scanReviewTask(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, rt)
	}
	return res, rows.Err()
}

func (r Repo) InsertReviewTx(ctx context.Context, tx *sql.Tx, rv domain.SubmissionReview) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO submission_reviews(id,submission_id,review_task_id,reviewer_id,level,approved,comment,reviewed_at)
VALUES (?,?,?,?,?,?,?,?)`,
		rv.ID, rv.SubmissionID, rv.ReviewTaskID, rv.ReviewerID, rv.Level, boolToInt(rv.Approved), nullable(rv.Comment), rv.ReviewedAt)
	return err
}

func (r Repo) ListReviewsBySubmission(ctx context.Context, submissionID string) ([]domain.SubmissionReview, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,submission_id,review_task_id,reviewer_id,level,approved,comment,reviewed_at
FROM submission_reviews WHERE submission_id=? ORDER BY level, reviewed_at`, submissionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.SubmissionReview
	for rows.Next() {
		var rv domain.SubmissionReview
		var comment sql.NullString
		var approved int
		if err := rows.Scan(&rv.ID, &rv.SubmissionID, &rv.ReviewTaskID, &rv.ReviewerID, &rv.Level, &approved, &comment, &rv.ReviewedAt); err != nil {
			return nil, err
		}
		rv.Approved = approved != 0
		if comment.Valid {
			rv.Comment = comment.String
		}
		res = append(res, rv)
	}
	return res, rows.Err()
}
