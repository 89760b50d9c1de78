package repo

import (
	"context"
	"database/sql"

	"veritrack/internal/domain"
)

const submissionColumns = `id,task_id,value,comment,is_achieved,status,submitted_at,created_at`

func scanSubmission(scan func(dest ...any) error) (domain.Submission, error) {
	var s domain.Submission
	var comment sql.NullString
	var isAchieved int
	err := scan(&s.ID, &s.TaskID, &s.Value, &comment, &isAchieved, &s.Status, &s.SubmittedAt, &s.CreatedAt)
	if err == sql.ErrNoRows {
		return s, ErrNotFound
	}
	if err != nil {
		return s, err
	}
	if comment.Valid {
		s.Comment = comment.String
	}
	s.IsAchieved = isAchieved != 0
	return s, nil
}

func (r Repo) InsertSubmissionTx(ctx context.Context, tx *sql.Tx, s domain.Submission) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO indicator_submissions(id,task_id,value,comment,is_achieved,status,submitted_at,created_at)
VALUES (?,?,?,?,?,?,?,?)`,
		s.ID, s.TaskID, s.Value, nullable(s.Comment), boolToInt(s.IsAchieved), s.Status, s.SubmittedAt, s.CreatedAt)
	return err
}

func (r Repo) GetSubmission(ctx context.Context, id string) (domain.Submission, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+submissionColumns+` FROM indicator_submissions WHERE id=?`, id)
	return scanSubmission(row.Scan)
}

func (r Repo) GetSubmissionTx(ctx context.Context, tx *sql.Tx, id string) (domain.Submission, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+submissionColumns+` FROM indicator_submissions WHERE id=?`, id)
	return scanSubmission(row.Scan)
}

func (r Repo) UpdateSubmissionStatusTx(ctx context.Context, tx *sql.Tx, id, status string) error {
	res, err := tx.ExecContext(ctx, `UPDATE indicator_submissions SET status=? WHERE id=?`, status, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// OpenSubmissionForTaskTx returns the task's non-terminal submission, if any.
// There is at most one; a new submission cannot be created while it exists.
func (r Repo) OpenSubmissionForTaskTx(ctx context.Context, tx *sql.Tx, taskID string) (domain.Submission, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+submissionColumns+` FROM indicator_submissions
WHERE task_id=? AND status NOT IN ('approved','rejected') ORDER BY created_at DESC, id DESC LIMIT 1`, taskID)
	return scanSubmission(row.Scan)
}

func (r Repo) ListSubmissionsByTask(ctx context.Context, taskID string) ([]domain.Submission, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+submissionColumns+` FROM indicator_submissions WHERE task_id=? ORDER BY created_at DESC, id DESC`, taskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Submission
	for rows.Next() {
		s, err := scanSubmission(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, s)
	}
	return res, rows.Err()
}

func (r Repo) CountSubmissionsByTaskTx(ctx context.Context, tx *sql.Tx, taskID string) (int, error) {
	var n int
	err := tx.QueryRowContext(ctx, `SELECT count(*) FROM indicator_submissions WHERE task_id=?`, taskID).Scan(&n)
	return n, err
}

func (r Repo) InsertAttachmentTx(ctx context.Context, tx *sql.Tx, a domain.Attachment) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO submission_attachments(id,submission_id,file_name,url,created_at) VALUES (?,?,?,?,?)`,
		a.ID, a.SubmissionID, a.FileName, a.URL, a.CreatedAt)
	return err
}

func (r Repo) ListAttachments(ctx context.Context, submissionID string) ([]domain.Attachment, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,submission_id,file_name,url,created_at FROM submission_attachments WHERE submission_id=? ORDER BY created_at, id`, submissionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Attachment
	for rows.Next() {
		var a domain.Attachment
		if err := rows.Scan(&a.ID, &a.SubmissionID, &a.FileName, &a.URL, &a.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, a)
	}
	return res, rows.Err()
}
