package nexusai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestSendMessageAndExecute(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer sdk-key" {
			t.Errorf("unexpected authorization header %q", got)
		}
		switch r.URL.Path {
		case "/api/v1/messages":
			_ = json.NewEncoder(w).Encode(Message{
				SessionID: "session-1",
				Plan:      &Plan{ID: "plan-1", Kind: "TRANSFER", Status: "ready"},
			})
		case "/api/v1/plans/execute":
			var req map[string]string
			_ = json.NewDecoder(r.Body).Decode(&req)
			if req["plan_id"] != "plan-1" {
				t.Errorf("unexpected plan id %q", req["plan_id"])
			}
			_ = json.NewEncoder(w).Encode(Execution{
				Plan:   &Plan{ID: "plan-1", Status: "completed", ResultHash: "8fG3x"},
				Result: "8fG3x",
			})
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	defer server.Close()

	client, err := NewClient(server.URL, "sdk-key", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	msg, err := client.SendMessage(context.Background(), "", "Send 5 NEAR to bob.near")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msg.SessionID != "session-1" || msg.Plan.Status != "ready" {
		t.Fatalf("unexpected message: %+v", msg)
	}

	execution, err := client.ExecutePlan(context.Background(), msg.Plan.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if execution.Result != "8fG3x" || execution.Plan.Status != "completed" {
		t.Fatalf("unexpected execution: %+v", execution)
	}
}

func TestAPIErrorDecoding(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		_ = json.NewEncoder(w).Encode(map[string]string{
			"code":    "PLAN_CONFLICT",
			"message": "计划已在执行中",
		})
	}))
	defer server.Close()

	client, err := NewClient(server.URL, "", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_, err = client.ExecutePlan(context.Background(), "plan-1")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.StatusCode != http.StatusConflict || apiErr.Code != "PLAN_CONFLICT" {
		t.Fatalf("unexpected api error: %+v", apiErr)
	}
}

func TestHistoryQuery(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/history" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.URL.Query().Get("limit") != "5" {
			t.Errorf("unexpected limit %q", r.URL.Query().Get("limit"))
		}
		_ = json.NewEncoder(w).Encode([]HistoryEntry{{PlanID: "plan-1", Status: "completed"}})
	}))
	defer server.Close()

	client, err := NewClient(server.URL, "", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	entries, err := client.History(context.Background(), 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(entries) != 1 || entries[0].PlanID != "plan-1" {
		t.Fatalf("unexpected entries: %+v", entries)
	}
}
