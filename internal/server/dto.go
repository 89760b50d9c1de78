package server

import (
	"encoding/json"
	"time"

	"veritrack/internal/config"
	"veritrack/internal/domain"
)

// Request payloads

type CreateTenantRequest struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

type CreateProgrammeRequest struct {
	Name           string `json:"name"`
	DurationMonths int    `json:"duration_months" minimum:"1" maximum:"60"`
}

type CreateUserRequest struct {
	ID    string   `json:"id"`
	Name  string   `json:"name,omitempty"`
	Email string   `json:"email,omitempty"`
	Roles []string `json:"roles,omitempty"`
}

type CreateIndicatorRequest struct {
	ID               *string `json:"id,omitempty"`
	Kind             string  `json:"kind" enum:"success,compliance"`
	Name             string  `json:"name"`
	Description      *string `json:"description,omitempty"`
	PortfolioID      *string `json:"portfolio_id,omitempty"`
	ClusterID        *string `json:"cluster_id,omitempty"`
	ResponseFormat   string  `json:"response_format" enum:"numeric,percentage,monetary,boolean"`
	TargetValue      *string `json:"target_value,omitempty"`
	AcceptanceValue  *string `json:"acceptance_value,omitempty"`
	Verifier1RoleID  *string `json:"verifier_1_role_id,omitempty"`
	Verifier2RoleID  *string `json:"verifier_2_role_id,omitempty"`
	RequiresEvidence bool    `json:"requires_evidence,omitempty"`
}

type AttachProgrammeMonthRequest struct {
	ProgrammeID string `json:"programme_id"`
	Month       int    `json:"month" minimum:"1"`
}

type CreateIndicatorTaskRequest struct {
	ID             *string `json:"id,omitempty"`
	IndicatorID    string  `json:"indicator_id"`
	ProgrammeID    string  `json:"programme_id"`
	EntrepreneurID string  `json:"entrepreneur_id"`
	Period         string  `json:"period"`
	DueDate        *string `json:"due_date,omitempty" format:"date-time"`
}

type AttachmentRequest struct {
	FileName string `json:"file_name"`
	URL      string `json:"url"`
}

type CreateSubmissionRequest struct {
	Value       string              `json:"value"`
	Comment     *string             `json:"comment,omitempty"`
	Attachments []AttachmentRequest `json:"attachments,omitempty"`
}

type ReviewVerdictRequest struct {
	Comment *string `json:"comment,omitempty"`
}

// Response payloads

type TenantResponse struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Status    string `json:"status"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type ProgrammeResponse struct {
	ID             string `json:"id"`
	TenantID       string `json:"tenant_id"`
	Name           string `json:"name"`
	DurationMonths int    `json:"duration_months"`
	CreatedAt      string `json:"created_at" format:"date-time"`
}

type UserResponse struct {
	ID        string   `json:"id"`
	TenantID  string   `json:"tenant_id"`
	Name      string   `json:"name"`
	Email     string   `json:"email,omitempty"`
	Roles     []string `json:"roles"`
	CreatedAt string   `json:"created_at" format:"date-time"`
}

type IndicatorResponse struct {
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

type TaskResponse struct {
	ID              string  `json:"id"`
	TenantID        string  `json:"tenant_id"`
	IndicatorID     string  `json:"indicator_id"`
	ProgrammeID     string  `json:"programme_id"`
	EntrepreneurID  string  `json:"entrepreneur_id"`
	Period          string  `json:"period"`
	Status          string  `json:"status" enum:"pending,submitted,completed,needs_revision"`
	EffectiveStatus string  `json:"effective_status" enum:"pending,submitted,completed,needs_revision,overdue"`
	IsAchieved      *bool   `json:"is_achieved,omitempty"`
	DueDate         string  `json:"due_date,omitempty" format:"date-time"`
	CreatedAt       string  `json:"created_at" format:"date-time"`
	UpdatedAt       string  `json:"updated_at" format:"date-time"`
	CompletedAt     *string `json:"completed_at,omitempty" format:"date-time"`
	DeletedAt       *string `json:"deleted_at,omitempty" format:"date-time"`
}

type SubmissionResponse struct {
	ID          string               `json:"id"`
	TaskID      string               `json:"task_id"`
	Value       string               `json:"value"`
	Comment     string               `json:"comment,omitempty"`
	IsAchieved  bool                 `json:"is_achieved"`
	Status      string               `json:"status" enum:"pending_verification_1,pending_verification_2,approved,rejected"`
	SubmittedAt string               `json:"submitted_at" format:"date-time"`
	CreatedAt   string               `json:"created_at" format:"date-time"`
	Attachments []AttachmentResponse `json:"attachments,omitempty"`
}

type AttachmentResponse struct {
	ID        string `json:"id"`
	FileName  string `json:"file_name"`
	URL       string `json:"url"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type ReviewTaskResponse struct {
	ID             string  `json:"id"`
	SubmissionID   string  `json:"submission_id"`
	TaskID         string  `json:"task_id"`
	VerifierUserID string  `json:"verifier_user_id"`
	Level          int     `json:"level" minimum:"1" maximum:"2"`
	DueDate        string  `json:"due_date" format:"date-time"`
	CompletedAt    *string `json:"completed_at,omitempty" format:"date-time"`
	CreatedAt      string  `json:"created_at" format:"date-time"`
}

type ReviewResponse struct {
	ID           string `json:"id"`
	SubmissionID string `json:"submission_id"`
	ReviewTaskID string `json:"review_task_id"`
	ReviewerID   string `json:"reviewer_id"`
	Level        int    `json:"level"`
	Approved     bool   `json:"approved"`
	Comment      string `json:"comment,omitempty"`
	ReviewedAt   string `json:"reviewed_at" format:"date-time"`
}

type EventResponse struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts" format:"date-time"`
	Type       string         `json:"type"`
	TenantID   string         `json:"tenant_id,omitempty"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id,omitempty"`
	ActorID    string         `json:"actor_id"`
	Payload    map[string]any `json:"payload"`
}

type TenantConfigResponse struct {
	Tenant struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"tenant"`
	Verification struct {
		ReviewWindowDays int  `json:"review_window_days"`
		WarnUnverified   bool `json:"warn_unverified"`
	} `json:"verification"`
	Roles struct {
		Catalog map[string]struct {
			Description string `json:"description"`
		} `json:"catalog"`
	} `json:"roles"`
}

// Conversion helpers

func tenantResponse(t domain.Tenant) TenantResponse {
	return TenantResponse(t)
}

func programmeResponse(p domain.Programme) ProgrammeResponse {
	return ProgrammeResponse(p)
}

func indicatorResponse(ind domain.Indicator) IndicatorResponse {
	return IndicatorResponse{
		ID:               ind.ID,
		TenantID:         ind.TenantID,
		Kind:             ind.Kind,
		Name:             ind.Name,
		Description:      ind.Description,
		PortfolioID:      ind.PortfolioID,
		ClusterID:        ind.ClusterID,
		ResponseFormat:   ind.ResponseFormat,
		TargetValue:      ind.TargetValue,
		AcceptanceValue:  ind.AcceptanceValue,
		Verifier1RoleID:  ind.Verifier1RoleID,
		Verifier2RoleID:  ind.Verifier2RoleID,
		RequiresEvidence: ind.RequiresEvidence,
		CreatedAt:        ind.CreatedAt,
		DeletedAt:        ind.DeletedAt,
	}
}

func taskResponse(t domain.IndicatorTask, now time.Time) TaskResponse {
	return TaskResponse{
		ID:              t.ID,
		TenantID:        t.TenantID,
		IndicatorID:     t.IndicatorID,
		ProgrammeID:     t.ProgrammeID,
		EntrepreneurID:  t.EntrepreneurID,
		Period:          t.Period,
		Status:          t.Status,
		EffectiveStatus: t.EffectiveStatus(now),
		IsAchieved:      t.IsAchieved,
		DueDate:         t.DueDate,
		CreatedAt:       t.CreatedAt,
		UpdatedAt:       t.UpdatedAt,
		CompletedAt:     t.CompletedAt,
		DeletedAt:       t.DeletedAt,
	}
}

func submissionResponse(s domain.Submission, atts []domain.Attachment) SubmissionResponse {
	res := SubmissionResponse{
		ID:          s.ID,
		TaskID:      s.TaskID,
		Value:       s.Value,
		Comment:     s.Comment,
		IsAchieved:  s.IsAchieved,
		Status:      s.Status,
		SubmittedAt: s.SubmittedAt,
		CreatedAt:   s.CreatedAt,
	}
	for _, a := range atts {
		res.Attachments = append(res.Attachments, AttachmentResponse{
			ID:        a.ID,
			FileName:  a.FileName,
			URL:       a.URL,
			CreatedAt: a.CreatedAt,
		})
	}
	return res
}

func reviewTaskResponse(rt domain.ReviewTask) ReviewTaskResponse {
	return ReviewTaskResponse(rt)
}

func reviewResponse(rv domain.SubmissionReview) ReviewResponse {
	return ReviewResponse(rv)
}

func eventResponse(e domain.Event) EventResponse {
	return EventResponse{
		ID:         e.ID,
		TS:         e.TS,
		Type:       e.Type,
		TenantID:   e.TenantID,
		EntityKind: e.EntityKind,
		EntityID:   e.EntityID,
		ActorID:    e.ActorID,
		Payload:    decodeJSONMap(e.Payload),
	}
}

func configResponse(cfg *config.Config) TenantConfigResponse {
	var res TenantConfigResponse
	res.Tenant.ID = cfg.Tenant.ID
	res.Tenant.Name = cfg.Tenant.Name
	res.Verification.ReviewWindowDays = cfg.ReviewWindowDays()
	res.Verification.WarnUnverified = cfg.Verification.WarnUnverified
	res.Roles.Catalog = map[string]struct {
		Description string `json:"description"`
	}{}
	for k, v := range cfg.Roles.Catalog {
		res.Roles.Catalog[k] = struct {
			Description string `json:"description"`
		}{Description: v.Description}
	}
	return res
}

// JSON helpers

func decodeJSONMap(raw string) map[string]any {
	if raw == "" {
		return nil
	}
	var tmp any
	if err := json.Unmarshal([]byte(raw), &tmp); err != nil {
		return nil
	}
	if obj, ok := tmp.(map[string]any); ok {
		return obj
	}
	return nil
}

func stringOrEmpty(in *string) string {
	if in == nil {
		return ""
	}
	return *in
}
