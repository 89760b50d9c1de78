package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"testing"

	"veritrack/internal/config"
	"veritrack/internal/db"
	"veritrack/internal/engine"
	"veritrack/internal/migrate"
)

type testServer struct {
	URL    string
	client *http.Client
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

func newTestServer(t *testing.T) (*testServer, func()) {
	t.Helper()
	workspace := t.TempDir()
	if _, err := db.EnsureWorkspace(workspace); err != nil {
		t.Fatalf("ensure workspace: %v", err)
	}
	cfg := config.Default("acme")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	e := engine.New(conn, cfg)
	if _, err := e.InitTenant(context.Background(), "acme", "Acme Accelerator", "tester"); err != nil {
		t.Fatalf("init tenant: %v", err)
	}
	handler, err := New(Config{
		Engine:   e,
		BasePath: "/v1",
		Auth:     AuthConfig{JWTSecret: "test-secret", AllowLegacyActorHeader: true},
	})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	testSrv := &testServer{
		URL:    "http://" + ln.Addr().String(),
		client: &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			conn.Close()
		},
	}
	return testSrv, func() { testSrv.Close() }
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if _, ok := headers["X-Actor-Id"]; !ok {
		req.Header.Set("X-Actor-Id", "tester")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

func asActor(id string) map[string]string {
	return map[string]string{"X-Actor-Id": id}
}

func seedIndicator(t *testing.T, srv *testServer, body map[string]any) IndicatorResponse {
	t.Helper()
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/tenants/acme/indicators", body, nil)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create indicator: %d %s", res.StatusCode, string(data))
	}
	var ind IndicatorResponse
	if err := json.Unmarshal(data, &ind); err != nil {
		t.Fatalf("unmarshal indicator: %v", err)
	}
	return ind
}

func seedTask(t *testing.T, srv *testServer, indicatorID string) TaskResponse {
	t.Helper()
	seedUser(t, srv, "founder-1", nil)
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/tenants/acme/tasks", map[string]any{
		"indicator_id":    indicatorID,
		"entrepreneur_id": "founder-1",
		"period":          "2026-08",
	}, nil)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create task: %d %s", res.StatusCode, string(data))
	}
	var task TaskResponse
	if err := json.Unmarshal(data, &task); err != nil {
		t.Fatalf("unmarshal task: %v", err)
	}
	return task
}

func seedUser(t *testing.T, srv *testServer, id string, roles []string) {
	t.Helper()
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/tenants/acme/users", map[string]any{
		"id":    id,
		"name":  id,
		"roles": roles,
	}, nil)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create user %s: %d %s", id, res.StatusCode, string(data))
	}
}

func TestSubmissionAutoApproveCompletesTask(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	ind := seedIndicator(t, srv, map[string]any{
		"kind":            "success",
		"name":            "Monthly revenue",
		"portfolio_id":    "fintech",
		"response_format": "monetary",
		"target_value":    "1000",
	})
	task := seedTask(t, srv, ind.ID)

	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/tenants/acme/tasks/"+task.ID+"/submissions", map[string]any{
		"value": "1500",
	}, nil)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("submit: %d %s", res.StatusCode, string(data))
	}
	var sub SubmissionResponse
	if err := json.Unmarshal(data, &sub); err != nil {
		t.Fatalf("unmarshal submission: %v", err)
	}
	if sub.Status != "approved" {
		t.Fatalf("expected auto-approved submission, got %s", sub.Status)
	}
	if !sub.IsAchieved {
		t.Fatal("expected achievement true")
	}

	taskRes, taskBody := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v1/tenants/acme/tasks/"+task.ID, nil, nil)
	if taskRes.StatusCode != http.StatusOK {
		t.Fatalf("get task: %d %s", taskRes.StatusCode, string(taskBody))
	}
	var fetched TaskResponse
	if err := json.Unmarshal(taskBody, &fetched); err != nil {
		t.Fatalf("unmarshal task: %v", err)
	}
	if fetched.Status != "completed" {
		t.Fatalf("expected completed task, got %s", fetched.Status)
	}
}

func TestTwoLevelVerificationFlow(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	seedUser(t, srv, "vera", []string{"programme_manager"})
	seedUser(t, srv, "paula", []string{"portfolio_lead"})

	ind := seedIndicator(t, srv, map[string]any{
		"kind":              "compliance",
		"name":              "Quarterly report filed",
		"cluster_id":        "cohort-1",
		"response_format":   "boolean",
		"acceptance_value":  "true",
		"verifier_1_role_id": "programme_manager",
		"verifier_2_role_id": "portfolio_lead",
	})
	task := seedTask(t, srv, ind.ID)

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v1/tenants/acme/tasks/"+task.ID+"/submissions", map[string]any{
		"value": "true",
	}, nil)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("submit: %d %s", res.StatusCode, string(data))
	}
	var sub SubmissionResponse
	if err := json.Unmarshal(data, &sub); err != nil {
		t.Fatalf("unmarshal submission: %v", err)
	}
	if sub.Status != "pending_verification_1" {
		t.Fatalf("expected pending_verification_1, got %s", sub.Status)
	}

	queueRes, queueBody := doJSON(t, client, http.MethodGet, srv.URL+"/v1/reviews?open=true", nil, asActor("vera"))
	if queueRes.StatusCode != http.StatusOK {
		t.Fatalf("list reviews: %d %s", queueRes.StatusCode, string(queueBody))
	}
	var queue []ReviewTaskResponse
	if err := json.Unmarshal(queueBody, &queue); err != nil {
		t.Fatalf("unmarshal queue: %v", err)
	}
	if len(queue) != 1 {
		t.Fatalf("expected one review task for vera, got %d", len(queue))
	}
	if queue[0].Level != 1 {
		t.Fatalf("expected level 1 review, got %d", queue[0].Level)
	}
	l1 := queue[0].ID

	appRes, appBody := doJSON(t, client, http.MethodPost, srv.URL+"/v1/reviews/"+l1+"/approve", map[string]any{
		"comment": "verified against bank statement",
	}, asActor("vera"))
	if appRes.StatusCode != http.StatusOK {
		t.Fatalf("approve L1: %d %s", appRes.StatusCode, string(appBody))
	}
	if err := json.Unmarshal(appBody, &sub); err != nil {
		t.Fatalf("unmarshal submission: %v", err)
	}
	if sub.Status != "pending_verification_2" {
		t.Fatalf("expected pending_verification_2, got %s", sub.Status)
	}

	// The completed L1 review cannot be decided twice.
	dupRes, dupBody := doJSON(t, client, http.MethodPost, srv.URL+"/v1/reviews/"+l1+"/approve", map[string]any{}, asActor("vera"))
	if dupRes.StatusCode != http.StatusConflict {
		t.Fatalf("expected conflict on duplicate review, got %d %s", dupRes.StatusCode, string(dupBody))
	}

	queue2Res, queue2Body := doJSON(t, client, http.MethodGet, srv.URL+"/v1/reviews?open=true", nil, asActor("paula"))
	if queue2Res.StatusCode != http.StatusOK {
		t.Fatalf("list reviews L2: %d %s", queue2Res.StatusCode, string(queue2Body))
	}
	var queue2 []ReviewTaskResponse
	if err := json.Unmarshal(queue2Body, &queue2); err != nil {
		t.Fatalf("unmarshal queue: %v", err)
	}
	if len(queue2) != 1 || queue2[0].Level != 2 {
		t.Fatalf("expected one level 2 review for paula, got %+v", queue2)
	}

	finRes, finBody := doJSON(t, client, http.MethodPost, srv.URL+"/v1/reviews/"+queue2[0].ID+"/approve", map[string]any{}, asActor("paula"))
	if finRes.StatusCode != http.StatusOK {
		t.Fatalf("approve L2: %d %s", finRes.StatusCode, string(finBody))
	}
	if err := json.Unmarshal(finBody, &sub); err != nil {
		t.Fatalf("unmarshal submission: %v", err)
	}
	if sub.Status != "approved" {
		t.Fatalf("expected approved, got %s", sub.Status)
	}

	taskRes, taskBody := doJSON(t, client, http.MethodGet, srv.URL+"/v1/tenants/acme/tasks/"+task.ID, nil, nil)
	if taskRes.StatusCode != http.StatusOK {
		t.Fatalf("get task: %d %s", taskRes.StatusCode, string(taskBody))
	}
	var done TaskResponse
	_ = json.Unmarshal(taskBody, &done)
	if done.Status != "completed" {
		t.Fatalf("expected completed task, got %s", done.Status)
	}
}

func TestRejectionSendsTaskBackForRevision(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	seedUser(t, srv, "vera", []string{"programme_manager"})
	ind := seedIndicator(t, srv, map[string]any{
		"kind":              "success",
		"name":              "New customers",
		"portfolio_id":      "fintech",
		"response_format":   "numeric",
		"target_value":      "10",
		"verifier_1_role_id": "programme_manager",
	})
	task := seedTask(t, srv, ind.ID)

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v1/tenants/acme/tasks/"+task.ID+"/submissions", map[string]any{
		"value": "12",
	}, nil)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("submit: %d %s", res.StatusCode, string(data))
	}

	queueRes, queueBody := doJSON(t, client, http.MethodGet, srv.URL+"/v1/reviews?open=true", nil, asActor("vera"))
	if queueRes.StatusCode != http.StatusOK {
		t.Fatalf("list reviews: %d %s", queueRes.StatusCode, string(queueBody))
	}
	var queue []ReviewTaskResponse
	_ = json.Unmarshal(queueBody, &queue)
	if len(queue) != 1 {
		t.Fatalf("expected one review task, got %d", len(queue))
	}

	rejRes, rejBody := doJSON(t, client, http.MethodPost, srv.URL+"/v1/reviews/"+queue[0].ID+"/reject", map[string]any{
		"comment": "numbers do not match the CRM export",
	}, asActor("vera"))
	if rejRes.StatusCode != http.StatusOK {
		t.Fatalf("reject: %d %s", rejRes.StatusCode, string(rejBody))
	}
	var sub SubmissionResponse
	if err := json.Unmarshal(rejBody, &sub); err != nil {
		t.Fatalf("unmarshal submission: %v", err)
	}
	if sub.Status != "rejected" {
		t.Fatalf("expected rejected, got %s", sub.Status)
	}

	taskRes, taskBody := doJSON(t, client, http.MethodGet, srv.URL+"/v1/tenants/acme/tasks/"+task.ID, nil, nil)
	if taskRes.StatusCode != http.StatusOK {
		t.Fatalf("get task: %d %s", taskRes.StatusCode, string(taskBody))
	}
	var fetched TaskResponse
	_ = json.Unmarshal(taskBody, &fetched)
	if fetched.Status != "needs_revision" {
		t.Fatalf("expected needs_revision, got %s", fetched.Status)
	}

	// A corrected submission is allowed after rejection.
	res2, data2 := doJSON(t, client, http.MethodPost, srv.URL+"/v1/tenants/acme/tasks/"+task.ID+"/submissions", map[string]any{
		"value": "9",
	}, nil)
	if res2.StatusCode != http.StatusCreated {
		t.Fatalf("resubmit: %d %s", res2.StatusCode, string(data2))
	}
}

func TestSubmissionConflictWhileUnderReview(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	seedUser(t, srv, "vera", []string{"programme_manager"})
	ind := seedIndicator(t, srv, map[string]any{
		"kind":              "success",
		"name":              "Pitch deck updated",
		"portfolio_id":      "fintech",
		"response_format":   "boolean",
		"verifier_1_role_id": "programme_manager",
	})
	task := seedTask(t, srv, ind.ID)

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v1/tenants/acme/tasks/"+task.ID+"/submissions", map[string]any{
		"value": "true",
	}, nil)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("submit: %d %s", res.StatusCode, string(data))
	}

	res2, data2 := doJSON(t, client, http.MethodPost, srv.URL+"/v1/tenants/acme/tasks/"+task.ID+"/submissions", map[string]any{
		"value": "true",
	}, nil)
	if res2.StatusCode != http.StatusConflict {
		t.Fatalf("expected conflict on second submission, got %d %s", res2.StatusCode, string(data2))
	}
}

func TestReviewRequiresAssignedVerifier(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	seedUser(t, srv, "vera", []string{"programme_manager"})
	seedUser(t, srv, "mallory", nil)
	ind := seedIndicator(t, srv, map[string]any{
		"kind":              "compliance",
		"name":              "Insurance certificate",
		"cluster_id":        "cohort-1",
		"response_format":   "boolean",
		"verifier_1_role_id": "programme_manager",
	})
	task := seedTask(t, srv, ind.ID)

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v1/tenants/acme/tasks/"+task.ID+"/submissions", map[string]any{
		"value": "true",
	}, nil)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("submit: %d %s", res.StatusCode, string(data))
	}

	queueRes, queueBody := doJSON(t, client, http.MethodGet, srv.URL+"/v1/reviews?open=true", nil, asActor("vera"))
	if queueRes.StatusCode != http.StatusOK {
		t.Fatalf("list reviews: %d %s", queueRes.StatusCode, string(queueBody))
	}
	var queue []ReviewTaskResponse
	_ = json.Unmarshal(queueBody, &queue)
	if len(queue) != 1 {
		t.Fatalf("expected one review task, got %d", len(queue))
	}

	forbRes, forbBody := doJSON(t, client, http.MethodPost, srv.URL+"/v1/reviews/"+queue[0].ID+"/approve", map[string]any{}, asActor("mallory"))
	if forbRes.StatusCode != http.StatusForbidden {
		t.Fatalf("expected forbidden, got %d %s", forbRes.StatusCode, string(forbBody))
	}
}

func TestUnauthenticatedRequestRejected(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/v1/tenants", nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	res, err := srv.Client().Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", res.StatusCode)
	}

	healthRes, err := srv.Client().Get(srv.URL + "/v1/health")
	if err != nil {
		t.Fatalf("health: %v", err)
	}
	defer healthRes.Body.Close()
	if healthRes.StatusCode != http.StatusOK {
		t.Fatalf("health should be public, got %d", healthRes.StatusCode)
	}
}

func TestDevLoginMintsUsableToken(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v1/auth/dev/login", map[string]any{
		"user_id": "vera",
		"roles":   []string{"programme_manager"},
	}, map[string]string{"X-Actor-Id": ""})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("dev login: %d %s", res.StatusCode, string(data))
	}
	var login DevLoginResponse
	if err := json.Unmarshal(data, &login); err != nil {
		t.Fatalf("unmarshal token: %v", err)
	}
	if login.Token == "" {
		t.Fatal("expected a token")
	}

	meRes, meBody := doJSON(t, client, http.MethodGet, srv.URL+"/v1/me", nil, map[string]string{
		"X-Actor-Id":    "",
		"Authorization": "Bearer " + login.Token,
	})
	if meRes.StatusCode != http.StatusOK {
		t.Fatalf("me: %d %s", meRes.StatusCode, string(meBody))
	}
	var who WhoAmIResponse
	if err := json.Unmarshal(meBody, &who); err != nil {
		t.Fatalf("unmarshal me: %v", err)
	}
	if who.UserID != "vera" || who.Source != "jwt" {
		t.Fatalf("unexpected principal: %+v", who)
	}
}
