package domain

import (
	"errors"
	"strconv"
	"strings"
	"time"
)

type Tenant struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Status    string `json:"status"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type Portfolio struct {
	ID        string `json:"id"`
	TenantID  string `json:"tenant_id"`
	Name      string `json:"name"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type Cluster struct {
	ID        string `json:"id"`
	TenantID  string `json:"tenant_id"`
	Name      string `json:"name"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type Programme struct {
	ID             string `json:"id"`
	TenantID       string `json:"tenant_id"`
	Name           string `json:"name"`
	DurationMonths int    `json:"duration_months"`
	CreatedAt      string `json:"created_at" format:"date-time"`
}

type User struct {
	ID        string `json:"id"`
	TenantID  string `json:"tenant_id"`
	Name      string `json:"name"`
	Email     string `json:"email,omitempty"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type Role struct {
	ID          string `json:"id"`
	Description string `json:"description,omitempty"`
}

// Indicator is the definition carrying verification configuration. Kind is
// either "success" (measurable target) or "compliance" (periodic check).
// Exactly one of PortfolioID/ClusterID must be set.
type Indicator struct {
	ID               string  `json:"id"`
	TenantID         string  `json:"tenant_id"`
	Kind             string  `json:"kind" enum:"success,compliance"`
	Name             string  `json:"name"`
	Description      string  `json:"description,omitempty"`
	PortfolioID      *string `json:"portfolio_id,omitempty"`
	ClusterID        *string `json:"cluster_id,omitempty"`
	ResponseFormat   string  `json:"response_format" enum:"numeric,percentage,monetary,boolean"`
	TargetValue      *string `json:"target_value,omitempty"`
	AcceptanceValue  *string `json:"acceptance_value,omitempty"`
	Verifier1RoleID  *string `json:"verifier_1_role_id,omitempty"`
	Verifier2RoleID  *string `json:"verifier_2_role_id,omitempty"`
	RequiresEvidence bool    `json:"requires_evidence"`
	CreatedAt        string  `json:"created_at" format:"date-time"`
	DeletedAt        *string `json:"deleted_at,omitempty" format:"date-time"`
}

// Validate checks the structural invariants of an indicator definition.
func (i Indicator) Validate() error {
	if i.Kind != "success" && i.Kind != "compliance" {
		return errors.New("kind must be success or compliance")
	}
	hasPortfolio := i.PortfolioID != nil && *i.PortfolioID != ""
	hasCluster := i.ClusterID != nil && *i.ClusterID != ""
	if hasPortfolio == hasCluster {
		return errors.New("indicator must belong to exactly one of portfolio or cluster")
	}
	switch i.ResponseFormat {
	case "numeric", "percentage", "monetary", "boolean":
	default:
		return errors.New("response_format must be numeric, percentage, monetary or boolean")
	}
	if i.Verifier1RoleID == nil && i.Verifier2RoleID != nil {
		return errors.New("verifier_2_role_id requires verifier_1_role_id")
	}
	return nil
}

// VerifierRoleID returns the configured role for a verification level, or
// nil when that level is skipped.
func (i Indicator) VerifierRoleID(level int) *string {
	switch level {
	case 1:
		return i.Verifier1RoleID
	case 2:
		return i.Verifier2RoleID
	}
	return nil
}

// RequiresVerification reports whether any review level is configured.
func (i Indicator) RequiresVerification() bool {
	return i.Verifier1RoleID != nil && *i.Verifier1RoleID != ""
}

// ComparisonValue is the target for success indicators and the acceptance
// value for compliance indicators.
func (i Indicator) ComparisonValue() *string {
	if i.Kind == "success" {
		return i.TargetValue
	}
	return i.AcceptanceValue
}

// EvaluateAchievement interprets a submitted value against the indicator's
// target/acceptance criteria according to its response format. Unparseable
// values are never achieved.
func (i Indicator) EvaluateAchievement(value string) bool {
	target := i.ComparisonValue()
	if target == nil || *target == "" {
		// no criteria configured: any non-empty value counts
		return strings.TrimSpace(value) != ""
	}
	switch i.ResponseFormat {
	case "boolean":
		got, err1 := parseBool(value)
		want, err2 := parseBool(*target)
		if err1 != nil || err2 != nil {
			return false
		}
		return got == want
	default:
		got, err1 := parseAmount(value)
		want, err2 := parseAmount(*target)
		if err1 != nil || err2 != nil {
			return false
		}
		return got >= want
	}
}

func parseBool(v string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "true", "yes", "1":
		return true, nil
	case "false", "no", "0":
		return false, nil
	}
	return false, errors.New("not a boolean")
}

func parseAmount(v string) (float64, error) {
	s := strings.TrimSpace(v)
	s = strings.TrimSuffix(s, "%")
	s = strings.ReplaceAll(s, ",", "")
	return strconv.ParseFloat(strings.TrimSpace(s), 64)
}

// IndicatorTask is one entrepreneur's obligation to report against an
// indicator for one collection period. "overdue" is computed, never stored.
type IndicatorTask struct {
	ID             string  `json:"id"`
	TenantID       string  `json:"tenant_id"`
	IndicatorID    string  `json:"indicator_id"`
	ProgrammeID    string  `json:"programme_id"`
	EntrepreneurID string  `json:"entrepreneur_id"`
	Period         string  `json:"period"`
	Status         string  `json:"status" enum:"pending,submitted,completed,needs_revision"`
	IsAchieved     *bool   `json:"is_achieved,omitempty"`
	DueDate        string  `json:"due_date,omitempty" format:"date-time"`
	CreatedAt      string  `json:"created_at" format:"date-time"`
	UpdatedAt      string  `json:"updated_at" format:"date-time"`
	CompletedAt    *string `json:"completed_at,omitempty" format:"date-time"`
	DeletedAt      *string `json:"deleted_at,omitempty" format:"date-time"`
}

// EffectiveStatus returns the stored status, or "overdue" when the task is
// still awaiting a submission past its due date.
func (t IndicatorTask) EffectiveStatus(now time.Time) string {
	if t.DueDate == "" {
		return t.Status
	}
	if t.Status != "pending" && t.Status != "needs_revision" {
		return t.Status
	}
	due, err := time.Parse(time.RFC3339, t.DueDate)
	if err != nil {
		return t.Status
	}
	if now.After(due) {
		return "overdue"
	}
	return t.Status
}

// Submittable reports whether a new submission may be created for the task.
func (t IndicatorTask) Submittable() bool {
	return t.Status == "pending" || t.Status == "needs_revision"
}

// Submission is one entrepreneur-provided answer instance for a task.
// Immutable once created except for Status.
type Submission struct {
	ID          string `json:"id"`
	TaskID      string `json:"task_id"`
	Value       string `json:"value"`
	Comment     string `json:"comment,omitempty"`
	IsAchieved  bool   `json:"is_achieved"`
	Status      string `json:"status" enum:"pending_verification_1,pending_verification_2,approved,rejected"`
	SubmittedAt string `json:"submitted_at" format:"date-time"`
	CreatedAt   string `json:"created_at" format:"date-time"`
}

// Terminal reports whether the submission reached a final state.
func (s Submission) Terminal() bool {
	return s.Status == "approved" || s.Status == "rejected"
}

// Attachment is supporting documentation uploaded with a submission.
type Attachment struct {
	ID           string `json:"id"`
	SubmissionID string `json:"submission_id"`
	FileName     string `json:"file_name"`
	URL          string `json:"url"`
	CreatedAt    string `json:"created_at" format:"date-time"`
}

// ReviewTask is a work item assigned to a verifier for one
// (submission, level) pair. At most one exists per pair.
type ReviewTask struct {
	ID             string  `json:"id"`
	SubmissionID   string  `json:"submission_id"`
	TaskID         string  `json:"task_id"`
	VerifierUserID string  `json:"verifier_user_id"`
	Level          int     `json:"level" minimum:"1" maximum:"2"`
	DueDate        string  `json:"due_date" format:"date-time"`
	CompletedAt    *string `json:"completed_at,omitempty" format:"date-time"`
	CreatedAt      string  `json:"created_at" format:"date-time"`
}

// SubmissionReview is the immutable verdict closing one review task.
type SubmissionReview struct {
	ID           string `json:"id"`
	SubmissionID string `json:"submission_id"`
	ReviewTaskID string `json:"review_task_id"`
	ReviewerID   string `json:"reviewer_id"`
	Level        int    `json:"level" minimum:"1" maximum:"2"`
	Approved     bool   `json:"approved"`
	Comment      string `json:"comment,omitempty"`
	ReviewedAt   string `json:"reviewed_at" format:"date-time"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	TenantID   string `json:"tenant_id,omitempty"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

type APIKey struct {
	ID        string `json:"id"`
	ActorID   string `json:"actor_id"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"key_hash"`
	CreatedAt string `json:"created_at" format:"date-time"`
}
