package vault

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	xerrors "NexusAI-Core/internal/errors"
)

func TestListAndDescribe(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/objects" || r.Method != http.MethodGet {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer secret" {
			t.Errorf("unexpected authorization header %q", got)
		}
		_ = json.NewEncoder(w).Encode([]Object{
			{ID: "1", Name: "keys.json", Size: 128},
			{ID: "2", Name: "notes.txt", Size: 64},
		})
	}))
	defer server.Close()

	client, err := NewClient(Config{BaseURL: server.URL, APIKey: "secret"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	objects, err := client.List(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(objects) != 2 || objects[0].Name != "keys.json" {
		t.Fatalf("unexpected objects: %+v", objects)
	}

	summary, err := client.Describe(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(summary, "2") || !strings.Contains(summary, "keys.json") {
		t.Fatalf("unexpected summary: %q", summary)
	}
}

func TestUpload(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("unexpected method %s", r.Method)
		}
		var req uploadRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		_ = json.NewEncoder(w).Encode(Object{ID: "3", Name: req.Name, Size: int64(len(req.Data))})
	}))
	defer server.Close()

	client, err := NewClient(Config{BaseURL: server.URL})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	object, err := client.Upload(context.Background(), "report.pdf", []byte("data"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if object.Name != "report.pdf" || object.Size != 4 {
		t.Fatalf("unexpected object: %+v", object)
	}

	if _, err := client.Upload(context.Background(), " ", nil); err == nil {
		t.Fatalf("expected error for empty object name")
	}
}

func TestListServiceDown(t *testing.T) {
	client, err := NewClient(Config{BaseURL: "http://127.0.0.1:1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_, err = client.List(context.Background())
	if xerrors.CodeOf(err) != CodeAccess {
		t.Fatalf("expected vault access code, got %v", err)
	}
}

func TestNewClientRequiresBaseURL(t *testing.T) {
	if _, err := NewClient(Config{}); err == nil {
		t.Fatalf("expected error for missing base url")
	}
}
