package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/qaraa/printd/internal/db"
	"github.com/qaraa/printd/internal/store"
)

type fakeWaker struct {
	woken int
}

func (w *fakeWaker) Wake() { w.woken++ }

func newTestRouter(t *testing.T) (*gin.Engine, *store.Store, *fakeWaker) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	database, err := db.Open(db.Config{Path: filepath.Join(t.TempDir(), "test.db")})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	st := store.New(database, store.Config{})
	waker := &fakeWaker{}

	r := gin.New()
	NewJobHandler(st, waker, nil).RegisterRoutes(r.Group("/api/v1"))
	return r, st, waker
}

func doRequest(t *testing.T, r *gin.Engine, method, path string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestCreateJob(t *testing.T) {
	r, st, waker := newTestRouter(t)

	body := []byte(`{
		"type": "label",
		"payload": {"productName": "Худи", "barcode": "123", "size": "L", "price": 9990},
		"createdBy": "kassa-1",
		"priority": 1
	}`)

	w := doRequest(t, r, http.MethodPost, "/api/v1/jobs", body)
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: %s", w.Code, w.Body.String())
	}

	var resp struct {
		JobID  string `json:"jobId"`
		Status string `json:"status"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.JobID == "" || resp.Status != "pending" {
		t.Errorf("unexpected response: %+v", resp)
	}

	job, err := st.GetJob(context.Background(), resp.JobID)
	if err != nil {
		t.Fatalf("job not persisted: %v", err)
	}
	if job.Priority != 1 || job.CreatedBy != "kassa-1" {
		t.Errorf("unexpected job: %+v", job)
	}

	if waker.woken != 1 {
		t.Errorf("dispatcher woken %d times, want 1", waker.woken)
	}
}

func TestCreateJobRejectsInvalid(t *testing.T) {
	r, st, waker := newTestRouter(t)

	tests := []struct {
		name string
		body string
	}{
		{"unknown type", `{"type": "invoice", "payload": {}}`},
		{"missing payload", `{"type": "receipt"}`},
		{"incomplete payload", `{"type": "label", "payload": {"productName": "Худи"}}`},
		{"malformed body", `{`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doRequest(t, r, http.MethodPost, "/api/v1/jobs", []byte(tt.body))
			if w.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400: %s", w.Code, w.Body.String())
			}
		})
	}

	jobs, err := st.ListJobs(context.Background(), "", 0)
	if err != nil {
		t.Fatalf("ListJobs failed: %v", err)
	}
	if len(jobs) != 0 {
		t.Errorf("rejected requests left %d jobs in the queue", len(jobs))
	}
	if waker.woken != 0 {
		t.Errorf("dispatcher woken on rejected enqueue")
	}
}

func TestGetJob(t *testing.T) {
	r, st, _ := newTestRouter(t)

	payload := []byte(`{"productName": "Худи", "barcode": "123", "size": "L", "price": 9990}`)
	job, err := st.Enqueue(context.Background(), "label", payload, "", 0)
	if err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	w := doRequest(t, r, http.MethodGet, "/api/v1/jobs/"+job.ID, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", w.Code, w.Body.String())
	}

	var resp JobResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.ID != job.ID || resp.Status != "pending" || resp.Attempts != 0 {
		t.Errorf("unexpected response: %+v", resp)
	}
	if resp.LastError != nil {
		t.Errorf("fresh job must report null lastError, got %q", *resp.LastError)
	}

	w = doRequest(t, r, http.MethodGet, "/api/v1/jobs/no-such-id", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestListJobs(t *testing.T) {
	r, st, _ := newTestRouter(t)

	payload := []byte(`{"productName": "Худи", "barcode": "123", "size": "L", "price": 9990}`)
	for i := 0; i < 3; i++ {
		if _, err := st.Enqueue(context.Background(), "label", payload, "", i); err != nil {
			t.Fatalf("Enqueue failed: %v", err)
		}
	}

	w := doRequest(t, r, http.MethodGet, "/api/v1/jobs?status=pending", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", w.Code, w.Body.String())
	}

	var resp struct {
		Jobs  []JobResponse `json:"jobs"`
		Count int           `json:"count"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Count != 3 {
		t.Errorf("count = %d, want 3", resp.Count)
	}

	w = doRequest(t, r, http.MethodGet, "/api/v1/jobs?status=bogus", nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400 for invalid filter", w.Code)
	}

	w = doRequest(t, r, http.MethodGet, "/api/v1/jobs?limit=2", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Count != 2 {
		t.Errorf("count = %d, want limit of 2 applied", resp.Count)
	}
}

func TestGetQueue(t *testing.T) {
	r, st, _ := newTestRouter(t)

	payload := []byte(`{"productName": "Худи", "barcode": "123", "size": "L", "price": 9990}`)
	if _, err := st.Enqueue(context.Background(), "label", payload, "", 0); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	if _, err := st.Enqueue(context.Background(), "label", payload, "", 0); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	claimed, err := st.ClaimNext(context.Background())
	if err != nil || claimed == nil {
		t.Fatalf("ClaimNext failed: %v", err)
	}
	if err := st.MarkCompleted(context.Background(), claimed.ID); err != nil {
		t.Fatalf("MarkCompleted failed: %v", err)
	}

	w := doRequest(t, r, http.MethodGet, "/api/v1/jobs/queue", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", w.Code, w.Body.String())
	}

	var resp QueueResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Pending != 1 || resp.Completed != 1 || resp.Total != 2 {
		t.Errorf("unexpected queue counts: %+v", resp)
	}
}
