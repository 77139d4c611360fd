package agent

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	xerrors "NexusAI-Core/internal/errors"
)

func TestDeploy(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/agents" || r.Method != http.MethodPost {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		var req deployRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.Type != "shade-basic" {
			t.Errorf("unexpected agent type %q", req.Type)
		}
		_ = json.NewEncoder(w).Encode(deployResponse{ID: "agent-42"})
	}))
	defer server.Close()

	client, err := NewClient(Config{BaseURL: server.URL})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	id, err := client.Deploy(context.Background(), "trader", "shade-basic")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id != "agent-42" {
		t.Fatalf("unexpected agent id: %q", id)
	}

	if _, err := client.Deploy(context.Background(), "", "shade-basic"); err == nil {
		t.Fatalf("expected error for empty agent name")
	}
}

func TestRun(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/agents/trader/actions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode(runResponse{Output: "rebalanced"})
	}))
	defer server.Close()

	client, err := NewClient(Config{BaseURL: server.URL})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	output, err := client.Run(context.Background(), "trader", "rebalance holdings")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if output != "rebalanced" {
		t.Fatalf("unexpected output: %q", output)
	}
}

func TestServiceError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(deployResponse{Error: "quota exceeded"})
	}))
	defer server.Close()

	client, err := NewClient(Config{BaseURL: server.URL})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_, err = client.Deploy(context.Background(), "trader", "shade-basic")
	if xerrors.CodeOf(err) != CodeService {
		t.Fatalf("expected agent service code, got %v", err)
	}
}
