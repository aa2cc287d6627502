package analysis

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"lexcase-backend/internal/llm"
)

func newHandlerRouter(t *testing.T) (*gin.Engine, *serviceFixture) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	f := newServiceFixture(t)
	r := gin.New()
	api := r.Group("/api/v1")
	NewHandler(f.svc).RegisterRoutes(api)
	return r, f
}

func doJSON(t *testing.T, r *gin.Engine, method, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var payload map[string]any
	if w.Body.Len() > 0 {
		if err := json.Unmarshal(w.Body.Bytes(), &payload); err != nil {
			t.Fatalf("decode response %q: %v", w.Body.String(), err)
		}
	}
	return w, payload
}

func TestRequestAnalysisEndpointAccepted(t *testing.T) {
	r, _ := newHandlerRouter(t)

	w, payload := doJSON(t, r, http.MethodPost, "/api/v1/cases/case-1/analyses",
		`{"documentIds": ["doc-1", "doc-2"], "tier": "fast"}`)
	if w.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", w.Code, w.Body.String())
	}
	if payload["versionId"] == "" || payload["jobId"] == "" {
		t.Fatalf("expected version and job IDs, got %v", payload)
	}
	if payload["status"] != JobStatusQueued {
		t.Fatalf("expected queued status, got %v", payload["status"])
	}
	if payload["cacheHit"] != false {
		t.Fatalf("expected cacheHit false, got %v", payload["cacheHit"])
	}
}

func TestRequestAnalysisEndpointCacheHit(t *testing.T) {
	r, f := newHandlerRouter(t)
	first := f.runToCompletion(t)

	w, payload := doJSON(t, r, http.MethodPost, "/api/v1/cases/case-1/analyses",
		`{"documentIds": ["doc-1", "doc-2"], "tier": "fast"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 on cache hit, got %d: %s", w.Code, w.Body.String())
	}
	if payload["cacheHit"] != true {
		t.Fatalf("expected cacheHit true, got %v", payload)
	}
	if payload["versionId"] != first.VersionID {
		t.Fatalf("expected cached version %q, got %v", first.VersionID, payload["versionId"])
	}
}

func TestRequestAnalysisEndpointValidation(t *testing.T) {
	r, _ := newHandlerRouter(t)

	w, payload := doJSON(t, r, http.MethodPost, "/api/v1/cases/case-1/analyses", `{"documentIds": []}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	errObj, _ := payload["error"].(map[string]any)
	if errObj["code"] != "validation_error" {
		t.Fatalf("unexpected error payload %v", payload)
	}
}

func TestRequestAnalysisEndpointCaseNotFound(t *testing.T) {
	r, _ := newHandlerRouter(t)

	w, payload := doJSON(t, r, http.MethodPost, "/api/v1/cases/case-missing/analyses",
		`{"documentIds": ["doc-1"]}`)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d: %s", w.Code, w.Body.String())
	}
	errObj, _ := payload["error"].(map[string]any)
	if errObj["code"] != "not_found" {
		t.Fatalf("unexpected error payload %v", payload)
	}
}

func TestRequestAnalysisEndpointDocumentNotFound(t *testing.T) {
	r, _ := newHandlerRouter(t)

	w, payload := doJSON(t, r, http.MethodPost, "/api/v1/cases/case-1/analyses",
		`{"documentIds": ["doc-missing"]}`)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d: %s", w.Code, w.Body.String())
	}
	errObj, _ := payload["error"].(map[string]any)
	if errObj["message"] != "document not found" {
		t.Fatalf("unexpected error payload %v", payload)
	}
}

func TestRequestAnalysisEndpointConflict(t *testing.T) {
	r, f := newHandlerRouter(t)

	// Hold the lock without a job record, the way a competing instance that
	// has not yet persisted its job would.
	ctx := context.Background()
	key, err := (&KeyGenerator{Cases: f.cases}).KeyForCase(ctx, f.caseID,
		documentHashes(t, f), f.svc.Model, llm.PromptSignature(TierFast))
	if err != nil {
		t.Fatalf("KeyForCase: %v", err)
	}
	if lock, err := f.locks.Acquire(ctx, key, time.Minute); err != nil || !lock.Acquired {
		t.Fatalf("pre-acquire: acquired=%v err=%v", lock.Acquired, err)
	}

	w, payload := doJSON(t, r, http.MethodPost, "/api/v1/cases/case-1/analyses",
		`{"documentIds": ["doc-1", "doc-2"], "tier": "fast"}`)
	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d: %s", w.Code, w.Body.String())
	}
	errObj, _ := payload["error"].(map[string]any)
	if errObj["code"] != "analysis_in_progress" {
		t.Fatalf("unexpected error payload %v", payload)
	}
}

func TestRequestAnalysisEndpointPaymentRequired(t *testing.T) {
	r, f := newHandlerRouter(t)
	f.credits.Unlimited = false

	w, payload := doJSON(t, r, http.MethodPost, "/api/v1/cases/case-1/analyses",
		`{"documentIds": ["doc-1"]}`)
	if w.Code != http.StatusPaymentRequired {
		t.Fatalf("expected 402, got %d: %s", w.Code, w.Body.String())
	}
	errObj, _ := payload["error"].(map[string]any)
	if errObj["code"] != "credits_exhausted" {
		t.Fatalf("unexpected error payload %v", payload)
	}
}

func TestGetVersionEndpoint(t *testing.T) {
	r, f := newHandlerRouter(t)
	res := f.runToCompletion(t)

	w, payload := doJSON(t, r, http.MethodGet, "/api/v1/analyses/"+res.VersionID, "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if payload["status"] != VersionStatusCompleted {
		t.Fatalf("expected completed, got %v", payload["status"])
	}
	result, _ := payload["result"].(map[string]any)
	if result["summary"] == "" {
		t.Fatalf("expected result in completed response, got %v", payload)
	}
	if payload["confidence"] == nil {
		t.Fatal("expected confidence in completed response")
	}
}

func TestGetVersionEndpointNotFound(t *testing.T) {
	r, _ := newHandlerRouter(t)

	w, _ := doJSON(t, r, http.MethodGet, "/api/v1/analyses/ver-missing", "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestGetVersionEndpointFailedShape(t *testing.T) {
	r, f := newHandlerRouter(t)
	f.llm.payload = `{"broken": true}`

	res, err := f.svc.RequestAnalysis(context.Background(), f.caseID, f.docIDs, TierFast)
	if err != nil {
		t.Fatalf("RequestAnalysis: %v", err)
	}
	if err := f.svc.ProcessJob(context.Background(), res.JobID); err != nil {
		t.Fatalf("ProcessJob: %v", err)
	}

	w, payload := doJSON(t, r, http.MethodGet, "/api/v1/analyses/"+res.VersionID, "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if payload["status"] != VersionStatusFailed {
		t.Fatalf("expected failed, got %v", payload["status"])
	}
	if payload["errorCode"] != ErrorCodeLLMSchemaMismatch {
		t.Fatalf("expected %s, got %v", ErrorCodeLLMSchemaMismatch, payload["errorCode"])
	}
	if _, present := payload["result"]; present {
		t.Fatal("failed versions must not expose a result field")
	}
}

func TestLatestAnalysisEndpoint(t *testing.T) {
	r, f := newHandlerRouter(t)
	res := f.runToCompletion(t)

	w, payload := doJSON(t, r, http.MethodGet, "/api/v1/cases/case-1/analyses/latest?tier=fast", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if payload["id"] != res.VersionID {
		t.Fatalf("expected latest %q, got %v", res.VersionID, payload["id"])
	}
}

func TestLatestAnalysisEndpointEmptyCase(t *testing.T) {
	r, _ := newHandlerRouter(t)

	w, _ := doJSON(t, r, http.MethodGet, "/api/v1/cases/case-1/analyses/latest", "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestGetJobEndpoint(t *testing.T) {
	r, f := newHandlerRouter(t)
	res := f.runToCompletion(t)

	w, payload := doJSON(t, r, http.MethodGet, "/api/v1/jobs/"+res.JobID, "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if payload["status"] != JobStatusCompleted {
		t.Fatalf("expected completed job, got %v", payload["status"])
	}
	if payload["progress"] != float64(100) {
		t.Fatalf("expected progress 100, got %v", payload["progress"])
	}
	if payload["versionId"] != res.VersionID {
		t.Fatalf("expected version %q, got %v", res.VersionID, payload["versionId"])
	}
}

func TestGetJobEndpointNotFound(t *testing.T) {
	r, _ := newHandlerRouter(t)

	w, _ := doJSON(t, r, http.MethodGet, "/api/v1/jobs/job-missing", "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}
