package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"

	"veritrack/internal/engine"
	"veritrack/internal/engine/auth"
	"veritrack/internal/engine/verifier"
	"veritrack/internal/repo"
)

// Config for the HTTP API handler.
type Config struct {
	Engine   engine.Engine
	BasePath string
	Auth     AuthConfig
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"submission_in_flight"`
	Message string         `json:"message" example:"a submission is still under verification"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true" example:"{\"task_id\":\"t1\"}"`
}

type requestKey struct{}
type bodyBytesKey struct{}

// apiError models the required error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the Veritrack API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v1"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	huma.DefaultArrayNullable = false
	// Override Huma errors to use the required envelope.
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(msg), "validation") {
			// request-shape problems are the caller's fault, not a semantic rejection
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			buf, _ := io.ReadAll(r.Body)
			r.Body = io.NopCloser(bytes.NewBuffer(buf))
			ctx := context.WithValue(r.Context(), requestKey{}, r)
			ctx = context.WithValue(ctx, bodyBytesKey{}, buf)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	})
	router.Use(newAuthMiddleware(basePath, cfg.Auth, cfg.Engine.Repo))
	hcfg := huma.DefaultConfig("Veritrack API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = "" // custom Swagger UI below
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerDocs(router, basePath)
	registerHealth(group)
	registerStatus(group, cfg.Engine)
	registerTenants(group, cfg.Engine)
	registerProgrammes(group, cfg.Engine)
	registerUsers(group, cfg.Engine)
	registerIndicators(group, cfg.Engine)
	registerTasks(group, cfg.Engine)
	registerSubmissions(group, cfg.Engine)
	registerReviews(group, cfg.Engine)
	registerEvents(group, cfg.Engine)
	registerMe(group, cfg.Engine)
	registerDevAuth(group, cfg.Auth)
	registerOpenAPI(router, api, basePath)

	startNotifier(cfg.Engine)

	return router, nil
}

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{
		status: status,
		Body: apiErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	var se *engine.ServiceError
	if errors.As(err, &se) {
		status := se.Status
		if status == 0 {
			status = http.StatusUnprocessableEntity
		}
		return newAPIError(status, se.Code, se.Message, se.Context)
	}
	var rnf *verifier.RoleNotFoundError
	if errors.As(err, &rnf) {
		return newAPIError(http.StatusUnprocessableEntity, "verifier_role_unstaffed", err.Error(),
			map[string]any{"role_id": rnf.RoleID, "level": rnf.Level})
	}
	var rce *engine.ReviewTaskCreationError
	if errors.As(err, &rce) {
		return newAPIError(http.StatusUnprocessableEntity, "review_task_failed", err.Error(),
			map[string]any{"submission_id": rce.SubmissionID, "level": rce.Level})
	}
	var fe auth.ForbiddenError
	if errors.As(err, &fe) {
		return newAPIError(http.StatusForbidden, "forbidden", err.Error(), nil)
	}
	var mae *engine.MissingAssociationError
	if errors.As(err, &mae) {
		return newAPIError(http.StatusUnprocessableEntity, "missing_association", err.Error(),
			map[string]any{"task_id": mae.TaskID, "indicator_id": mae.IndicatorID})
	}
	if errors.Is(err, repo.ErrNotFound) {
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	}
	msg := err.Error()
	lowered := strings.ToLower(msg)
	switch {
	case strings.Contains(lowered, "transition"):
		return newAPIError(http.StatusConflict, "invalid_transition", msg, nil)
	case strings.Contains(lowered, "invalid") || strings.Contains(lowered, "missing") || strings.Contains(lowered, "required"):
		return newAPIError(http.StatusBadRequest, "bad_request", msg, nil)
	default:
		return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": msg})
	}
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusUnprocessableEntity:
		return "validation_failed"
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

func registerDocs(r chi.Router, basePath string) {
	r.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, swaggerHTML(basePath))
	})
}

func registerOpenAPI(r chi.Router, api huma.API, basePath string) {
	var spec []byte
	specPath := path.Join(basePath, "openapi.json")
	r.Get(specPath, func(w http.ResponseWriter, r *http.Request) {
		if spec == nil {
			oas := api.OpenAPI()
			ensureDefaultErrorResponses(oas)
			applyAuthSecurity(oas, basePath)
			spec, _ = json.Marshal(oas)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(spec)
	})
}

func ensureDefaultErrorResponses(oas *huma.OpenAPI) {
	if oas == nil || oas.Paths == nil {
		return
	}
	for _, item := range oas.Paths {
		for _, op := range []*huma.Operation{
			item.Get, item.Put, item.Post, item.Delete, item.Options, item.Head, item.Patch, item.Trace,
		} {
			if op == nil {
				continue
			}
			if op.Responses == nil {
				op.Responses = map[string]*huma.Response{}
			}
			op.Responses["default"] = &huma.Response{
				Description: "Error",
				Content: map[string]*huma.MediaType{
					"application/json": {
						Schema: &huma.Schema{Ref: "#/components/schemas/ApiError"},
					},
				},
			}
		}
	}
}

func applyAuthSecurity(oas *huma.OpenAPI, basePath string) {
	if oas == nil {
		return
	}
	if oas.Components == nil {
		oas.Components = &huma.Components{}
	}
	if oas.Components.SecuritySchemes == nil {
		oas.Components.SecuritySchemes = map[string]*huma.SecurityScheme{}
	}
	oas.Components.SecuritySchemes["bearerAuth"] = &huma.SecurityScheme{
		Type:         "http",
		Scheme:       "bearer",
		BearerFormat: "JWT",
	}
	oas.Components.SecuritySchemes["apiKeyAuth"] = &huma.SecurityScheme{
		Type: "apiKey",
		In:   "header",
		Name: "X-Api-Key",
	}
	security := []map[string][]string{
		{"bearerAuth": {}},
		{"apiKeyAuth": {}},
	}
	oas.Security = security
	healthPath := path.Join("/", basePath, "health")
	devLoginPath := path.Join("/", basePath, "auth/dev/login")
	for route, item := range oas.Paths {
		for _, op := range []*huma.Operation{
			item.Get, item.Put, item.Post, item.Delete, item.Options, item.Head, item.Patch, item.Trace,
		} {
			if op == nil {
				continue
			}
			if route == healthPath || route == devLoginPath {
				op.Security = []map[string][]string{}
				continue
			}
			op.Security = security
		}
	}
}

func swaggerHTML(basePath string) string {
	specURL := path.Join("/", basePath, "openapi.json")
	return fmt.Sprintf(`<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8"/>
    <meta name="viewport" content="width=device-width, initial-scale=1"/>
    <title>Veritrack API Docs</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js" crossorigin></script>
    <script>
      window.onload = () => {
        SwaggerUIBundle({
          url: '%s',
          dom_id: '#swagger-ui'
        });
      };
    </script>
    <p style="padding: 1rem; font-family: sans-serif; color: #444;">
      Authenticate with Authorization: Bearer &lt;token&gt; or X-Api-Key.
    </p>
  </body>
</html>`, specURL)
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "ok"}}, nil
	})
}

func registerStatus(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "tenant-status",
		Method:      http.MethodGet,
		Path:        "/tenants/{tenant_id}/status",
		Summary:     "Tenant status",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		TenantID string `path:"tenant_id"`
	}) (*struct {
		Body map[string]any `json:"body"`
	}, error) {
		t, err := e.Repo.GetTenant(ctx, input.TenantID)
		if err != nil {
			return nil, handleError(err)
		}
		counts, err := e.Repo.CountTasksByStatus(ctx, t.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body map[string]any `json:"body"`
		}{Body: map[string]any{
			"tenant_id":   t.ID,
			"name":        t.Name,
			"task_counts": counts,
		}}, nil
	})
}

func registerTenants(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-tenant",
		Method:        http.MethodPost,
		Path:          "/tenants",
		Summary:       "Create tenant",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusConflict,
			http.StatusUnprocessableEntity,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		Body CreateTenantRequest `json:"body"`
	}) (*struct {
		Body TenantResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		if input.Body.ID == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "id is required", nil)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		t, err := e.InitTenant(ctx, input.Body.ID, input.Body.Name, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body TenantResponse `json:"body"`
		}{Body: tenantResponse(t)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-tenants",
		Method:      http.MethodGet,
		Path:        "/tenants",
		Summary:     "List tenants",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []TenantResponse `json:"body"`
	}, error) {
		items, err := e.Repo.ListTenants(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		res := make([]TenantResponse, 0, len(items))
		for _, t := range items {
			res = append(res, tenantResponse(t))
		}
		return &struct {
			Body []TenantResponse `json:"body"`
		}{Body: res}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-tenant",
		Method:      http.MethodGet,
		Path:        "/tenants/{tenant_id}",
		Summary:     "Get tenant",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		TenantID string `path:"tenant_id"`
	}) (*struct {
		Body TenantResponse `json:"body"`
	}, error) {
		t, err := e.Repo.GetTenant(ctx, input.TenantID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body TenantResponse `json:"body"`
		}{Body: tenantResponse(t)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-tenant-config",
		Method:      http.MethodGet,
		Path:        "/tenants/{tenant_id}/config",
		Summary:     "Get tenant config",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		TenantID string `path:"tenant_id"`
	}) (*struct {
		Body TenantConfigResponse `json:"body"`
	}, error) {
		cfg, err := e.Repo.GetTenantConfig(ctx, input.TenantID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body TenantConfigResponse `json:"body"`
		}{Body: configResponse(cfg)}, nil
	})
}

func registerProgrammes(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-programme",
		Method:        http.MethodPost,
		Path:          "/tenants/{tenant_id}/programmes",
		Summary:       "Create programme",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusNotFound,
			http.StatusUnprocessableEntity,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		TenantID string                 `path:"tenant_id"`
		Body     CreateProgrammeRequest `json:"body"`
	}) (*struct {
		Body ProgrammeResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		p, err := e.CreateProgramme(ctx, input.TenantID, input.Body.Name, input.Body.DurationMonths, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ProgrammeResponse `json:"body"`
		}{Body: programmeResponse(p)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-programmes",
		Method:      http.MethodGet,
		Path:        "/tenants/{tenant_id}/programmes",
		Summary:     "List programmes",
	}, func(ctx context.Context, input *struct {
		TenantID string `path:"tenant_id"`
	}) (*struct {
		Body []ProgrammeResponse `json:"body"`
	}, error) {
		items, err := e.Repo.ListProgrammes(ctx, input.TenantID)
		if err != nil {
			return nil, handleError(err)
		}
		res := make([]ProgrammeResponse, 0, len(items))
		for _, p := range items {
			res = append(res, programmeResponse(p))
		}
		return &struct {
			Body []ProgrammeResponse `json:"body"`
		}{Body: res}, nil
	})
}

func registerUsers(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-user",
		Method:        http.MethodPost,
		Path:          "/tenants/{tenant_id}/users",
		Summary:       "Create user",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusNotFound,
			http.StatusUnprocessableEntity,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		TenantID string            `path:"tenant_id"`
		Body     CreateUserRequest `json:"body"`
	}) (*struct {
		Body UserResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		if input.Body.ID == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "id is required", nil)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		u, err := e.CreateUser(ctx, input.TenantID, input.Body.ID, input.Body.Name, input.Body.Email, input.Body.Roles, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		roles, err := e.Repo.UserRoles(ctx, input.TenantID, u.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body UserResponse `json:"body"`
		}{Body: UserResponse{
			ID:        u.ID,
			TenantID:  u.TenantID,
			Name:      u.Name,
			Email:     u.Email,
			Roles:     nonNilSlice(roles),
			CreatedAt: u.CreatedAt,
		}}, nil
	})
}

func registerIndicators(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-indicator",
		Method:        http.MethodPost,
		Path:          "/tenants/{tenant_id}/indicators",
		Summary:       "Create indicator",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusNotFound,
			http.StatusUnprocessableEntity,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		TenantID string                 `path:"tenant_id"`
		Body     CreateIndicatorRequest `json:"body"`
	}) (*struct {
		Body IndicatorResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		if input.Body.Name == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "name is required", nil)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		opts := engine.IndicatorCreateOptions{
			TenantID:         input.TenantID,
			Kind:             input.Body.Kind,
			Name:             input.Body.Name,
			Description:      stringOrEmpty(input.Body.Description),
			PortfolioID:      stringOrEmpty(input.Body.PortfolioID),
			ClusterID:        stringOrEmpty(input.Body.ClusterID),
			ResponseFormat:   input.Body.ResponseFormat,
			TargetValue:      stringOrEmpty(input.Body.TargetValue),
			AcceptanceValue:  stringOrEmpty(input.Body.AcceptanceValue),
			Verifier1RoleID:  stringOrEmpty(input.Body.Verifier1RoleID),
			Verifier2RoleID:  stringOrEmpty(input.Body.Verifier2RoleID),
			RequiresEvidence: input.Body.RequiresEvidence,
			ActorID:          actorID,
		}
		if input.Body.ID != nil {
			opts.ID = *input.Body.ID
		}
		ind, err := e.CreateIndicator(ctx, opts)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body IndicatorResponse `json:"body"`
		}{Body: indicatorResponse(ind)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-indicators",
		Method:      http.MethodGet,
		Path:        "/tenants/{tenant_id}/indicators",
		Summary:     "List indicators",
	}, func(ctx context.Context, input *struct {
		TenantID    string `path:"tenant_id"`
		Kind        string `query:"kind" enum:"success,compliance,"`
		PortfolioID string `query:"portfolio_id"`
		ClusterID   string `query:"cluster_id"`
		Deleted     bool   `query:"deleted"`
	}) (*struct {
		Body []IndicatorResponse `json:"body"`
	}, error) {
		items, err := e.Repo.ListIndicators(ctx, repo.IndicatorFilters{
			TenantID:       input.TenantID,
			Kind:           input.Kind,
			PortfolioID:    input.PortfolioID,
			ClusterID:      input.ClusterID,
			IncludeDeleted: input.Deleted,
		})
		if err != nil {
			return nil, handleError(err)
		}
		res := make([]IndicatorResponse, 0, len(items))
		for _, ind := range items {
			res = append(res, indicatorResponse(ind))
		}
		return &struct {
			Body []IndicatorResponse `json:"body"`
		}{Body: res}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-indicator",
		Method:      http.MethodGet,
		Path:        "/tenants/{tenant_id}/indicators/{id}",
		Summary:     "Get indicator",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		TenantID string `path:"tenant_id"`
		ID       string `path:"id"`
	}) (*struct {
		Body IndicatorResponse `json:"body"`
	}, error) {
		ind, err := e.Repo.GetIndicator(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		if ind.TenantID != input.TenantID {
			return nil, newAPIError(http.StatusNotFound, "not_found", "indicator not found in tenant", nil)
		}
		return &struct {
			Body IndicatorResponse `json:"body"`
		}{Body: indicatorResponse(ind)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-indicator",
		Method:      http.MethodDelete,
		Path:        "/tenants/{tenant_id}/indicators/{id}",
		Summary:     "Delete indicator",
		Errors: []int{
			http.StatusNotFound,
			http.StatusConflict,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		TenantID string `path:"tenant_id"`
		ID       string `path:"id"`
	}) (*struct{}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.DeleteIndicator(ctx, input.TenantID, input.ID, actorID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "attach-programme-month",
		Method:        http.MethodPost,
		Path:          "/tenants/{tenant_id}/indicators/{id}/programme-months",
		Summary:       "Schedule indicator in a programme month",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusNotFound,
			http.StatusConflict,
			http.StatusUnprocessableEntity,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		TenantID string                      `path:"tenant_id"`
		ID       string                      `path:"id"`
		Body     AttachProgrammeMonthRequest `json:"body"`
	}) (*struct{}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		if input.Body.ProgrammeID == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "programme_id is required", nil)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.AttachProgrammeMonth(ctx, input.TenantID, input.ID, input.Body.ProgrammeID, input.Body.Month, actorID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

func registerTasks(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-task",
		Method:        http.MethodPost,
		Path:          "/tenants/{tenant_id}/tasks",
		Summary:       "Create indicator task",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusNotFound,
			http.StatusConflict,
			http.StatusUnprocessableEntity,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		TenantID string                     `path:"tenant_id"`
		Body     CreateIndicatorTaskRequest `json:"body"`
	}) (*struct {
		Body TaskResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		if input.Body.IndicatorID == "" || input.Body.EntrepreneurID == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "indicator_id and entrepreneur_id are required", nil)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		opts := engine.TaskCreateOptions{
			TenantID:       input.TenantID,
			IndicatorID:    input.Body.IndicatorID,
			ProgrammeID:    input.Body.ProgrammeID,
			EntrepreneurID: input.Body.EntrepreneurID,
			Period:         input.Body.Period,
			DueDate:        stringOrEmpty(input.Body.DueDate),
			ActorID:        actorID,
		}
		if input.Body.ID != nil {
			opts.ID = *input.Body.ID
		}
		t, err := e.CreateTask(ctx, opts)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body TaskResponse `json:"body"`
		}{Body: taskResponse(t, time.Now())}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-tasks",
		Method:      http.MethodGet,
		Path:        "/tenants/{tenant_id}/tasks",
		Summary:     "List indicator tasks",
	}, func(ctx context.Context, input *struct {
		TenantID       string `path:"tenant_id"`
		IndicatorID    string `query:"indicator_id"`
		ProgrammeID    string `query:"programme_id"`
		EntrepreneurID string `query:"entrepreneur_id"`
		Status         string `query:"status"`
		Limit          int    `query:"limit" default:"50"`
	}) (*struct {
		Body []TaskResponse `json:"body"`
	}, error) {
		items, err := e.Repo.ListTasks(ctx, repo.TaskFilters{
			TenantID:       input.TenantID,
			IndicatorID:    input.IndicatorID,
			ProgrammeID:    input.ProgrammeID,
			EntrepreneurID: input.EntrepreneurID,
			Status:         input.Status,
			Limit:          normalizeLimit(input.Limit),
		})
		if err != nil {
			return nil, handleError(err)
		}
		now := time.Now()
		res := make([]TaskResponse, 0, len(items))
		for _, t := range items {
			res = append(res, taskResponse(t, now))
		}
		return &struct {
			Body []TaskResponse `json:"body"`
		}{Body: res}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-task",
		Method:      http.MethodGet,
		Path:        "/tenants/{tenant_id}/tasks/{id}",
		Summary:     "Get indicator task",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		TenantID string `path:"tenant_id"`
		ID       string `path:"id"`
	}) (*struct {
		Body TaskResponse `json:"body"`
	}, error) {
		t, err := e.Repo.GetTask(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		if t.TenantID != input.TenantID {
			return nil, newAPIError(http.StatusNotFound, "not_found", "task not found in tenant", nil)
		}
		return &struct {
			Body TaskResponse `json:"body"`
		}{Body: taskResponse(t, time.Now())}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-task-submissions",
		Method:      http.MethodGet,
		Path:        "/tenants/{tenant_id}/tasks/{id}/submissions",
		Summary:     "List task submissions",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		TenantID string `path:"tenant_id"`
		ID       string `path:"id"`
	}) (*struct {
		Body []SubmissionResponse `json:"body"`
	}, error) {
		t, err := e.Repo.GetTask(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		if t.TenantID != input.TenantID {
			return nil, newAPIError(http.StatusNotFound, "not_found", "task not found in tenant", nil)
		}
		items, err := e.Repo.ListSubmissionsByTask(ctx, t.ID)
		if err != nil {
			return nil, handleError(err)
		}
		res := make([]SubmissionResponse, 0, len(items))
		for _, s := range items {
			atts, err := e.Repo.ListAttachments(ctx, s.ID)
			if err != nil {
				return nil, handleError(err)
			}
			res = append(res, submissionResponse(s, atts))
		}
		return &struct {
			Body []SubmissionResponse `json:"body"`
		}{Body: res}, nil
	})
}

func registerSubmissions(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-submission",
		Method:        http.MethodPost,
		Path:          "/tenants/{tenant_id}/tasks/{id}/submissions",
		Summary:       "Submit a value for a task",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusNotFound,
			http.StatusConflict,
			http.StatusUnprocessableEntity,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		TenantID string                  `path:"tenant_id"`
		ID       string                  `path:"id"`
		Body     CreateSubmissionRequest `json:"body"`
	}) (*struct {
		Body SubmissionResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		if input.Body.Value == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "value is required", nil)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		t, err := e.Repo.GetTask(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		if t.TenantID != input.TenantID {
			return nil, newAPIError(http.StatusNotFound, "not_found", "task not found in tenant", nil)
		}
		opts := engine.SubmissionCreateOptions{
			TaskID:  t.ID,
			Value:   input.Body.Value,
			Comment: stringOrEmpty(input.Body.Comment),
			ActorID: actorID,
		}
		for _, a := range input.Body.Attachments {
			opts.Attachments = append(opts.Attachments, engine.AttachmentInput{FileName: a.FileName, URL: a.URL})
		}
		s, err := e.CreateSubmission(ctx, opts)
		if err != nil {
			return nil, handleError(err)
		}
		atts, err := e.Repo.ListAttachments(ctx, s.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body SubmissionResponse `json:"body"`
		}{Body: submissionResponse(s, atts)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-submission",
		Method:      http.MethodGet,
		Path:        "/submissions/{id}",
		Summary:     "Get submission",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body SubmissionResponse `json:"body"`
	}, error) {
		s, err := e.Repo.GetSubmission(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		atts, err := e.Repo.ListAttachments(ctx, s.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body SubmissionResponse `json:"body"`
		}{Body: submissionResponse(s, atts)}, nil
	})
}

func registerReviews(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-reviews",
		Method:      http.MethodGet,
		Path:        "/reviews",
		Summary:     "List review tasks",
	}, func(ctx context.Context, input *struct {
		VerifierID   string `query:"verifier_id"`
		SubmissionID string `query:"submission_id"`
		Open         bool   `query:"open"`
		Limit        int    `query:"limit" default:"50"`
	}) (*struct {
		Body []ReviewTaskResponse `json:"body"`
	}, error) {
		verifierID := input.VerifierID
		if verifierID == "" {
			if p, ok := principalFromContext(ctx); ok {
				verifierID = p.UserID
			}
		}
		items, err := e.Repo.ListReviewTasks(ctx, repo.ReviewTaskFilters{
			VerifierUserID: verifierID,
			SubmissionID:   input.SubmissionID,
			OpenOnly:       input.Open,
			Limit:          normalizeLimit(input.Limit),
		})
		if err != nil {
			return nil, handleError(err)
		}
		res := make([]ReviewTaskResponse, 0, len(items))
		for _, rt := range items {
			res = append(res, reviewTaskResponse(rt))
		}
		return &struct {
			Body []ReviewTaskResponse `json:"body"`
		}{Body: res}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-review",
		Method:      http.MethodGet,
		Path:        "/reviews/{id}",
		Summary:     "Get review task",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body ReviewTaskResponse `json:"body"`
	}, error) {
		rt, err := e.Repo.GetReviewTask(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ReviewTaskResponse `json:"body"`
		}{Body: reviewTaskResponse(rt)}, nil
	})

	verdict := func(approve bool) func(ctx context.Context, input *struct {
		ID   string               `path:"id"`
		Body ReviewVerdictRequest `json:"body"`
	}) (*struct {
		Body SubmissionResponse `json:"body"`
	}, error) {
		return func(ctx context.Context, input *struct {
			ID   string               `path:"id"`
			Body ReviewVerdictRequest `json:"body"`
		}) (*struct {
			Body SubmissionResponse `json:"body"`
		}, error) {
			reviewerID, authErr := actorIDFromContext(ctx)
			if authErr != nil {
				return nil, authErr
			}
			authz := auth.Service{DB: e.DB}
			if err := authz.RequireReviewer(ctx, input.ID, reviewerID); err != nil {
				return nil, handleError(err)
			}
			opts := engine.ReviewOptions{
				ReviewTaskID: input.ID,
				ReviewerID:   reviewerID,
				Comment:      stringOrEmpty(input.Body.Comment),
			}
			review := e.RejectReview
			if approve {
				review = e.ApproveReview
			}
			s, err := review(ctx, opts)
			if err != nil {
				return nil, handleError(err)
			}
			atts, err := e.Repo.ListAttachments(ctx, s.ID)
			if err != nil {
				return nil, handleError(err)
			}
			return &struct {
				Body SubmissionResponse `json:"body"`
			}{Body: submissionResponse(s, atts)}, nil
		}
	}

	huma.Register(api, huma.Operation{
		OperationID: "approve-review",
		Method:      http.MethodPost,
		Path:        "/reviews/{id}/approve",
		Summary:     "Approve a review task",
		Errors: []int{
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusConflict,
			http.StatusUnprocessableEntity,
			http.StatusInternalServerError,
		},
	}, verdict(true))

	huma.Register(api, huma.Operation{
		OperationID: "reject-review",
		Method:      http.MethodPost,
		Path:        "/reviews/{id}/reject",
		Summary:     "Reject a review task",
		Errors: []int{
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusConflict,
			http.StatusUnprocessableEntity,
			http.StatusInternalServerError,
		},
	}, verdict(false))
}

func registerEvents(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/tenants/{tenant_id}/events",
		Summary:     "List events",
	}, func(ctx context.Context, input *struct {
		TenantID   string `path:"tenant_id"`
		Type       string `query:"type"`
		EntityKind string `query:"entity_kind"`
		EntityID   string `query:"entity_id"`
		Limit      int    `query:"limit" default:"50"`
	}) (*struct {
		Body []EventResponse `json:"body"`
	}, error) {
		items, err := e.Repo.LatestEvents(ctx, normalizeLimit(input.Limit), input.TenantID, input.Type, input.EntityKind, input.EntityID)
		if err != nil {
			return nil, handleError(err)
		}
		res := make([]EventResponse, 0, len(items))
		for _, evt := range items {
			res = append(res, eventResponse(evt))
		}
		return &struct {
			Body []EventResponse `json:"body"`
		}{Body: res}, nil
	})
}

type WhoAmIResponse struct {
	UserID string   `json:"user_id"`
	Roles  []string `json:"roles"`
	Source string   `json:"source"`
}

func registerMe(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "me",
		Method:      http.MethodGet,
		Path:        "/me",
		Summary:     "Current principal",
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body WhoAmIResponse `json:"body"`
	}, error) {
		p, ok := principalFromContext(ctx)
		if !ok || p.UserID == "" {
			return nil, newAPIError(http.StatusUnauthorized, "unauthorized", "authentication required", nil)
		}
		roles := p.Roles
		if len(roles) == 0 && e.Config != nil {
			if dbRoles, err := e.Repo.UserRoles(ctx, e.Config.Tenant.ID, p.UserID); err == nil {
				roles = dbRoles
			}
		}
		return &struct {
			Body WhoAmIResponse `json:"body"`
		}{Body: WhoAmIResponse{
			UserID: p.UserID,
			Roles:  nonNilSlice(roles),
			Source: p.Source,
		}}, nil
	})
}

type DevLoginRequest struct {
	UserID string   `json:"user_id"`
	Roles  []string `json:"roles,omitempty"`
}

type DevLoginResponse struct {
	Token string `json:"token"`
}

func registerDevAuth(api huma.API, authCfg AuthConfig) {
	huma.Register(api, huma.Operation{
		OperationID: "dev-login",
		Method:      http.MethodPost,
		Path:        "/auth/dev/login",
		Summary:     "DEV ONLY: mint a JWT for local testing",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		Body DevLoginRequest `json:"body"`
	}) (*struct {
		Body DevLoginResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		userID := strings.TrimSpace(input.Body.UserID)
		if userID == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "user_id is required", nil)
		}
		token, err := signDevToken(authCfg.JWTSecret, userID, input.Body.Roles)
		if err != nil {
			return nil, newAPIError(http.StatusInternalServerError, "internal_error", err.Error(), nil)
		}
		return &struct {
			Body DevLoginResponse `json:"body"`
		}{Body: DevLoginResponse{Token: token}}, nil
	})
}

func signDevToken(secret, userID string, roles []string) (string, error) {
	if strings.TrimSpace(secret) == "" {
		return "", errors.New("jwt secret not configured")
	}
	now := time.Now()
	claims := jwtClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(12 * time.Hour)),
		},
		Roles: roles,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

func bodyBytes(ctx context.Context) []byte {
	if buf, ok := ctx.Value(bodyBytesKey{}).([]byte); ok {
		return buf
	}
	req, ok := ctx.Value(requestKey{}).(*http.Request)
	if !ok || req == nil {
		return nil
	}
	data, _ := io.ReadAll(req.Body)
	return data
}

func normalizeLimit(in int) int {
	if in <= 0 {
		return 50
	}
	if in > 200 {
		return 200
	}
	return in
}

func nonNilSlice[T any](in []T) []T {
	if in == nil {
		return []T{}
	}
	return in
}
