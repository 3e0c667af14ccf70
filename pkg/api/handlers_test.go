package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/chicogong/ytagents/pkg/auth"
	"github.com/chicogong/ytagents/pkg/logger"
	"github.com/chicogong/ytagents/pkg/pipeline"
	"github.com/chicogong/ytagents/pkg/schemas"
	"github.com/chicogong/ytagents/pkg/storage"
	"github.com/chicogong/ytagents/pkg/store"
	"github.com/chicogong/ytagents/pkg/workflow"
)

var errTest = errors.New("disk full")

// fakeRunner completes steps with canned research data
type fakeRunner struct {
	machine *workflow.Machine
	err     error
	calls   []schemas.StepName
}

func (f *fakeRunner) RunStep(ctx context.Context, id string, step schemas.StepName) (*pipeline.Report, error) {
	f.calls = append(f.calls, step)
	if f.err != nil {
		return nil, f.err
	}
	if err := f.machine.CompleteStep(ctx, id, step, &schemas.ResearchData{Topic: "owls", KeyPoints: []string{"silent flight"}}); err != nil {
		return nil, err
	}
	return &pipeline.Report{WorkflowID: id}, nil
}

type testEnv struct {
	server  *Server
	handler http.Handler
	machine *workflow.Machine
	runner  *fakeRunner
	videos  *storage.Backend
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	log := logger.Nop()

	machine := workflow.NewMachine(store.NewMemoryStore(), log)
	videos, err := storage.NewFilesystemBackend(t.TempDir(), log)
	if err != nil {
		t.Fatalf("filesystem backend: %v", err)
	}
	t.Cleanup(func() { videos.Close() })

	runner := &fakeRunner{machine: machine}
	server := NewServer(machine, runner, videos, log)
	return &testEnv{server: server, handler: server.Router(nil), machine: machine, runner: runner, videos: videos}
}

func (e *testEnv) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	w := httptest.NewRecorder()
	e.handler.ServeHTTP(w, req)
	return w
}

func (e *testEnv) create(t *testing.T, topic string) string {
	t.Helper()
	w := e.do(t, http.MethodPost, "/api/workflows", CreateWorkflowRequest{Topic: topic})
	if w.Code != http.StatusCreated {
		t.Fatalf("create: expected 201, got %d: %s", w.Code, w.Body.String())
	}
	var resp CreateWorkflowResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode create: %v", err)
	}
	return resp.WorkflowID
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	return resp
}

func TestHandleHealth(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/health", nil)
	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}

	var resp map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}
	if resp["status"] != "healthy" {
		t.Errorf("Expected status 'healthy', got %v", resp["status"])
	}
	if resp["storage"] != storage.KindFilesystem {
		t.Errorf("Expected storage %q, got %v", storage.KindFilesystem, resp["storage"])
	}
}

func TestCreateWorkflow(t *testing.T) {
	env := newTestEnv(t)

	id := env.create(t, "owls")
	if id == "" {
		t.Fatal("Expected workflow id")
	}

	w := env.do(t, http.MethodGet, "/api/workflows/"+id, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	var wf schemas.Workflow
	if err := json.Unmarshal(w.Body.Bytes(), &wf); err != nil {
		t.Fatalf("Failed to parse workflow: %v", err)
	}
	if wf.Topic != "owls" || len(wf.Steps) != len(schemas.StepOrder) {
		t.Errorf("Unexpected workflow: topic=%q steps=%d", wf.Topic, len(wf.Steps))
	}
	for _, st := range wf.Steps {
		if st.Status != schemas.StepPending {
			t.Errorf("Step %s: expected pending, got %s", st.Name, st.Status)
		}
	}
}

func TestCreateWorkflow_BadRequests(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name string
		body interface{}
	}{
		{name: "empty topic", body: CreateWorkflowRequest{Topic: "   "}},
		{name: "not an object", body: []int{1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, http.MethodPost, "/api/workflows", tt.body)
			if w.Code != http.StatusBadRequest {
				t.Errorf("Expected status 400, got %d", w.Code)
			}
			if resp := decodeError(t, w); resp.Code != http.StatusBadRequest {
				t.Errorf("Expected code 400 in body, got %d", resp.Code)
			}
		})
	}
}

func TestListWorkflows(t *testing.T) {
	env := newTestEnv(t)
	env.create(t, "owls")
	env.create(t, "cats")
	env.create(t, "owls")

	w := env.do(t, http.MethodGet, "/api/workflows?topic=owls&limit=1", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	var list []*schemas.Workflow
	if err := json.Unmarshal(w.Body.Bytes(), &list); err != nil {
		t.Fatalf("Failed to parse list: %v", err)
	}
	if len(list) != 1 || list[0].Topic != "owls" {
		t.Errorf("Expected one owls workflow, got %d", len(list))
	}

	w = env.do(t, http.MethodGet, "/api/workflows?limit=abc", nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400 for bad limit, got %d", w.Code)
	}
}

func TestGetWorkflow_NotFound(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/api/workflows/missing", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", w.Code)
	}
	if resp := decodeError(t, w); resp.Error != "not_found" {
		t.Errorf("Expected not_found, got %q", resp.Error)
	}
}

func TestStepLifecycle(t *testing.T) {
	env := newTestEnv(t)
	id := env.create(t, "owls")
	base := "/api/workflows/" + id + "/steps/"

	// approving before generation is a conflict
	w := env.do(t, http.MethodPost, base+"research/approve", nil)
	if w.Code != http.StatusConflict {
		t.Fatalf("Expected status 409, got %d", w.Code)
	}

	w = env.do(t, http.MethodPost, base+"research", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Generate: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var gen StepResponse
	if err := json.Unmarshal(w.Body.Bytes(), &gen); err != nil {
		t.Fatalf("Failed to parse step response: %v", err)
	}
	if gen.Step.Status != schemas.StepCompleted {
		t.Errorf("Expected completed, got %s", gen.Step.Status)
	}
	if len(env.runner.calls) != 1 || env.runner.calls[0] != schemas.StepResearch {
		t.Errorf("Unexpected runner calls: %v", env.runner.calls)
	}

	w = env.do(t, http.MethodPost, base+"research/reject", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Reject: expected 200, got %d", w.Code)
	}
	var rejected schemas.StepState
	if err := json.Unmarshal(w.Body.Bytes(), &rejected); err != nil {
		t.Fatalf("Failed to parse step: %v", err)
	}
	if rejected.Status != schemas.StepRejected {
		t.Errorf("Expected rejected, got %s", rejected.Status)
	}

	env.do(t, http.MethodPost, base+"research", nil)
	w = env.do(t, http.MethodPost, base+"research/approve", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Approve: expected 200, got %d", w.Code)
	}
	var approved ApproveResponse
	if err := json.Unmarshal(w.Body.Bytes(), &approved); err != nil {
		t.Fatalf("Failed to parse approve response: %v", err)
	}
	if approved.NextStep != schemas.StepScript {
		t.Errorf("Expected next step script, got %q", approved.NextStep)
	}

	w = env.do(t, http.MethodGet, base+"research", nil)
	var st schemas.StepState
	if err := json.Unmarshal(w.Body.Bytes(), &st); err != nil {
		t.Fatalf("Failed to parse step: %v", err)
	}
	if st.Status != schemas.StepApproved {
		t.Errorf("Expected approved, got %s", st.Status)
	}
}

func TestStep_UnknownName(t *testing.T) {
	env := newTestEnv(t)
	id := env.create(t, "owls")

	w := env.do(t, http.MethodPost, "/api/workflows/"+id+"/steps/voiceover", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", w.Code)
	}
	if len(env.runner.calls) != 0 {
		t.Errorf("Runner should not be called for unknown steps")
	}
}

func TestSendErr_StatusMapping(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"not found", &workflow.NotFoundError{Kind: "workflow", ID: "x"}, http.StatusNotFound},
		{"video not found", storage.ErrVideoNotFound, http.StatusNotFound},
		{"closed", workflow.ErrWorkflowClosed, http.StatusConflict},
		{"precondition", &workflow.PreconditionError{Step: schemas.StepResearch, Status: schemas.StepPending}, http.StatusPreconditionFailed},
		{"invalid payload", workflow.ErrInvalidPayload, http.StatusBadRequest},
		{"stage failed", &pipeline.StageError{Stage: schemas.StageVisuals, Reason: "no clips"}, http.StatusBadGateway},
		{"timeout", context.DeadlineExceeded, http.StatusGatewayTimeout},
		{"other", errTest, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			env.server.sendErr(w, tt.err)
			if w.Code != tt.status {
				t.Errorf("Expected status %d, got %d", tt.status, w.Code)
			}
		})
	}
}

func TestUpload_RunnerErrorMapped(t *testing.T) {
	env := newTestEnv(t)
	id := env.create(t, "owls")
	env.runner.err = &workflow.PreconditionError{Step: schemas.StepVideo, Status: schemas.StepCompleted}

	w := env.do(t, http.MethodPost, "/api/workflows/"+id+"/upload", nil)
	if w.Code != http.StatusPreconditionFailed {
		t.Errorf("Expected status 412, got %d", w.Code)
	}
	if len(env.runner.calls) != 1 || env.runner.calls[0] != schemas.StepUpload {
		t.Errorf("Expected one upload call, got %v", env.runner.calls)
	}
}

func TestVideos(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	rec, err := env.videos.SaveVideo(ctx, env.videos.CreateBlankVideo("owls", 3), "owls", 3)
	if err != nil {
		t.Fatalf("SaveVideo: %v", err)
	}

	w := env.do(t, http.MethodGet, "/api/videos", nil)
	var list []*schemas.VideoRecord
	if err := json.Unmarshal(w.Body.Bytes(), &list); err != nil {
		t.Fatalf("Failed to parse videos: %v", err)
	}
	if len(list) != 1 || list[0].ID != rec.ID {
		t.Fatalf("Expected the saved video, got %d records", len(list))
	}

	w = env.do(t, http.MethodGet, "/api/videos/"+rec.ID+"/info", nil)
	if w.Code != http.StatusOK {
		t.Errorf("Info: expected 200, got %d", w.Code)
	}

	w = env.do(t, http.MethodGet, "/api/videos/"+rec.ID, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Stream: expected 200, got %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "video/mp4" {
		t.Errorf("Expected video/mp4, got %q", ct)
	}
	if w.Body.Len() == 0 {
		t.Error("Expected video bytes")
	}

	w = env.do(t, http.MethodDelete, "/api/videos/"+rec.ID, nil)
	if w.Code != http.StatusNoContent {
		t.Errorf("Delete: expected 204, got %d", w.Code)
	}
	w = env.do(t, http.MethodDelete, "/api/videos/"+rec.ID, nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("Second delete: expected 404, got %d", w.Code)
	}
	w = env.do(t, http.MethodGet, "/api/videos/"+rec.ID+"/info", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("Info after delete: expected 404, got %d", w.Code)
	}
}

func TestRouter_AuthGuardsAPI(t *testing.T) {
	env := newTestEnv(t)
	jm := auth.NewJWTManager("secret", time.Hour)
	mw := auth.NewMiddleware(jm, nil, false)
	handler := env.server.Router(mw.Handler)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("Health should stay open, got %d", w.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/workflows", nil)
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("Expected status 401, got %d", w.Code)
	}

	token, err := jm.Generate("u1", "u1@example.com", "admin")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	req = httptest.NewRequest(http.MethodGet, "/api/workflows", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200 with token, got %d", w.Code)
	}
}

func TestMiddleware_RecoveryAndCORS(t *testing.T) {
	log := logger.Nop()
	handler := RecoveryMiddleware(log)(CORSMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	})))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	if w.Code != http.StatusInternalServerError {
		t.Errorf("Expected status 500, got %d", w.Code)
	}
	if w.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Error("Expected CORS header")
	}

	req = httptest.NewRequest(http.MethodOptions, "/", nil)
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	if w.Code != http.StatusNoContent {
		t.Errorf("Preflight: expected 204, got %d", w.Code)
	}
}
