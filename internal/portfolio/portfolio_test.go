package portfolio

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	xerrors "NexusAI-Core/internal/errors"
)

func newNEARServer(t *testing.T, yoctoAmount string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req nearQueryRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.Method != "query" {
			t.Errorf("unexpected method %q", req.Method)
		}
		if req.Params["request_type"] != "view_account" {
			t.Errorf("unexpected request type %v", req.Params["request_type"])
		}
		var resp nearQueryResponse
		resp.Result.Amount = yoctoAmount
		_ = json.NewEncoder(w).Encode(resp)
	}))
}

func TestBalancesNEAR(t *testing.T) {
	// 5.25 NEAR，以 yoctoNEAR 表示。
	server := newNEARServer(t, "5250000000000000000000000")
	defer server.Close()

	svc, err := NewService(context.Background(), Config{
		NEARRPCURL:  server.URL,
		NEARAccount: "alice.testnet",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer svc.Close()

	balances, err := svc.Balances(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(balances) != 1 {
		t.Fatalf("expected 1 balance, got %d", len(balances))
	}
	b := balances[0]
	if b.Token != "NEAR" || b.Account != "alice.testnet" {
		t.Fatalf("unexpected balance: %+v", b)
	}
	if b.Amount != "5.25" {
		t.Fatalf("unexpected amount: %q", b.Amount)
	}
}

func TestSummaryFormatsBalances(t *testing.T) {
	server := newNEARServer(t, "1000000000000000000000000")
	defer server.Close()

	svc, err := NewService(context.Background(), Config{
		NEARRPCURL:  server.URL,
		NEARAccount: "alice.testnet",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer svc.Close()

	summary, err := svc.Summary(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(summary, "1 NEAR") || !strings.Contains(summary, "alice.testnet") {
		t.Fatalf("unexpected summary: %q", summary)
	}
}

func TestBalancesNodeError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var resp nearQueryResponse
		resp.Error = &struct {
			Message string `json:"message"`
		}{Message: "account does not exist"}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	svc, err := NewService(context.Background(), Config{
		NEARRPCURL:  server.URL,
		NEARAccount: "ghost.testnet",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer svc.Close()

	_, err = svc.Balances(context.Background())
	if xerrors.CodeOf(err) != CodeQuery {
		t.Fatalf("expected query failure code, got %v", err)
	}
	if !xerrors.RetryableError(err) {
		t.Fatalf("query failures should be retryable")
	}
}

func TestNewServiceValidatesEthAccount(t *testing.T) {
	_, err := NewService(context.Background(), Config{
		EthRPCURL:  "http://127.0.0.1:1",
		EthAccount: "not-an-address",
	})
	if err == nil {
		t.Fatalf("expected error for malformed eth account")
	}
}

func TestBalancesNothingConfigured(t *testing.T) {
	svc, err := NewService(context.Background(), Config{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	balances, err := svc.Balances(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(balances) != 0 {
		t.Fatalf("expected no balances, got %+v", balances)
	}
}
