package translate

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestWorkflowTranslate(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer secret" {
			t.Errorf("auth header = %q", got)
		}
		var req workflowRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.ResponseMode != "blocking" || req.Inputs.Title != "hello" {
			t.Errorf("request = %+v", req)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": map[string]any{
				"outputs": map[string]string{"title": "你好", "description": "世界"},
			},
		})
	}))
	defer srv.Close()

	tr, err := NewWorkflow(srv.URL, "secret")
	if err != nil {
		t.Fatalf("NewWorkflow: %v", err)
	}
	res, err := tr.Translate(context.Background(), "hello", "world")
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}
	if res == nil || res.Title != "你好" || res.Description != "世界" {
		t.Fatalf("result = %+v", res)
	}
}

func TestWorkflowTranslateNon200(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	defer srv.Close()

	tr, err := NewWorkflow(srv.URL, "")
	if err != nil {
		t.Fatalf("NewWorkflow: %v", err)
	}
	if _, err := tr.Translate(context.Background(), "a", "b"); err == nil {
		t.Fatal("expected error on non-200 status")
	}
}

func TestWorkflowTranslateMalformedReplyIsMiss(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("not json"))
	}))
	defer srv.Close()

	tr, err := NewWorkflow(srv.URL, "")
	if err != nil {
		t.Fatalf("NewWorkflow: %v", err)
	}
	res, err := tr.Translate(context.Background(), "a", "b")
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}
	if res != nil {
		t.Fatalf("result = %+v, want miss", res)
	}
}

func TestWorkflowTranslateEmptyOutputsIsMiss(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":{"outputs":{"title":"","description":""}}}`))
	}))
	defer srv.Close()

	tr, err := NewWorkflow(srv.URL, "")
	if err != nil {
		t.Fatalf("NewWorkflow: %v", err)
	}
	res, err := tr.Translate(context.Background(), "a", "b")
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}
	if res != nil {
		t.Fatalf("result = %+v, want miss", res)
	}
}

func TestNewWorkflowRequiresEndpoint(t *testing.T) {
	t.Parallel()

	if _, err := NewWorkflow("  ", "key"); err == nil {
		t.Fatal("NewWorkflow with blank endpoint succeeded")
	}
}
