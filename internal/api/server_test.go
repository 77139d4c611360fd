package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"NexusAI-Core/internal/exec"
	"NexusAI-Core/internal/history"
	"NexusAI-Core/internal/intent"
	"NexusAI-Core/internal/plan"
	"NexusAI-Core/internal/signer"
)

type stubAdapter struct{ hash string }

func (a stubAdapter) Chain() intent.Chain { return intent.ChainNEAR }

func (a stubAdapter) SignAndSubmit(context.Context, string, string) (signer.Receipt, error) {
	return signer.Receipt{Hash: a.hash}, nil
}

type stubRegistry struct{ adapter signer.Adapter }

func (r stubRegistry) Adapter(chain intent.Chain) (signer.Adapter, bool) {
	if chain != r.adapter.Chain() {
		return nil, false
	}
	return r.adapter, true
}

func newTestServer(t *testing.T) (*httptest.Server, history.Store) {
	t.Helper()
	store := history.NewMemoryStore()
	coordinator := exec.NewCoordinator(
		stubRegistry{adapter: stubAdapter{hash: "8fG3x"}},
		exec.WithHistory(store),
	)
	server := NewServer(":0", Deps{
		Parser:      intent.NewParser(nil),
		Resolver:    plan.NewResolver(plan.ResolverConfig{}),
		Coordinator: coordinator,
		Sessions:    exec.NewSessions(),
		History:     store,
	})
	ts := httptest.NewServer(server.Handler())
	t.Cleanup(ts.Close)
	return ts, store
}

func postJSON(t *testing.T, url string, body any, out any) int {
	t.Helper()
	payload, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("post %s: %v", url, err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode response: %v", err)
		}
	}
	return resp.StatusCode
}

func TestMessageToExecutionFlow(t *testing.T) {
	ts, _ := newTestServer(t)

	var created messageResponse
	status := postJSON(t, ts.URL+"/api/v1/messages", messageRequest{Text: "Send 5 NEAR to bob.near"}, &created)
	if status != http.StatusOK {
		t.Fatalf("unexpected status %d", status)
	}
	if created.SessionID == "" {
		t.Fatalf("server must assign a session id")
	}
	if created.Plan == nil || created.Plan.Status != plan.StatusReady {
		t.Fatalf("unexpected plan: %+v", created.Plan)
	}

	var executed executeResponse
	status = postJSON(t, ts.URL+"/api/v1/plans/execute", planRequest{PlanID: created.Plan.ID}, &executed)
	if status != http.StatusOK {
		t.Fatalf("unexpected status %d", status)
	}
	if executed.Result != "8fG3x" || executed.Plan.Status != plan.StatusCompleted {
		t.Fatalf("unexpected execution response: %+v", executed)
	}

	// 已完成的计划再次执行是状态冲突。
	status = postJSON(t, ts.URL+"/api/v1/plans/execute", planRequest{PlanID: created.Plan.ID}, nil)
	if status != http.StatusConflict {
		t.Fatalf("expected 409 for duplicate execute, got %d", status)
	}

	resp, err := http.Get(ts.URL + "/api/v1/history")
	if err != nil {
		t.Fatalf("get history: %v", err)
	}
	defer resp.Body.Close()
	var entries []history.Entry
	if err := json.NewDecoder(resp.Body).Decode(&entries); err != nil {
		t.Fatalf("decode history: %v", err)
	}
	if len(entries) != 1 || entries[0].Hash != "8fG3x" {
		t.Fatalf("unexpected history: %+v", entries)
	}
}

func TestRecipientPromotion(t *testing.T) {
	ts, _ := newTestServer(t)

	var created messageResponse
	postJSON(t, ts.URL+"/api/v1/messages", messageRequest{Text: "Send 5 NEAR to [address]"}, &created)
	if created.Plan.Status != plan.StatusNeedsInput || created.Plan.MissingField != "recipient" {
		t.Fatalf("unexpected plan: %+v", created.Plan)
	}

	// 收款人还没补上，执行请求是校验错误而不是冲突。
	var failed errorResponse
	status := postJSON(t, ts.URL+"/api/v1/plans/execute", planRequest{PlanID: created.Plan.ID}, &failed)
	if status != http.StatusBadRequest || failed.Code != string(plan.CodeValidation) {
		t.Fatalf("expected 400 VALIDATION_FAILED before recipient, got %d %+v", status, failed)
	}

	var updated executeResponse
	status = postJSON(t, ts.URL+"/api/v1/plans/recipient",
		planRequest{PlanID: created.Plan.ID, Recipient: "bob.near"}, &updated)
	if status != http.StatusOK {
		t.Fatalf("unexpected status %d", status)
	}
	if updated.Plan.Status != plan.StatusReady || updated.Plan.Recipient != "bob.near" {
		t.Fatalf("unexpected plan after recipient: %+v", updated.Plan)
	}
}

func TestCancelPlan(t *testing.T) {
	ts, _ := newTestServer(t)

	var created messageResponse
	postJSON(t, ts.URL+"/api/v1/messages", messageRequest{Text: "Send 5 NEAR to bob.near"}, &created)

	var cancelled executeResponse
	status := postJSON(t, ts.URL+"/api/v1/plans/cancel", planRequest{PlanID: created.Plan.ID}, &cancelled)
	if status != http.StatusOK {
		t.Fatalf("unexpected status %d", status)
	}
	if cancelled.Plan.Status != plan.StatusFailed {
		t.Fatalf("cancelled plan must be failed, got %s", cancelled.Plan.Status)
	}
}

func TestMessageValidation(t *testing.T) {
	ts, _ := newTestServer(t)
	if status := postJSON(t, ts.URL+"/api/v1/messages", messageRequest{Text: "  "}, nil); status != http.StatusBadRequest {
		t.Fatalf("expected 400 for empty text, got %d", status)
	}
}

func TestExecuteUnknownPlan(t *testing.T) {
	ts, _ := newTestServer(t)
	if status := postJSON(t, ts.URL+"/api/v1/plans/execute", planRequest{PlanID: "missing"}, nil); status != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown plan, got %d", status)
	}
}

func TestAPIKeyGuard(t *testing.T) {
	server := NewServer(":0", Deps{
		Parser:      intent.NewParser(nil),
		Resolver:    plan.NewResolver(plan.ResolverConfig{}),
		Coordinator: exec.NewCoordinator(stubRegistry{adapter: stubAdapter{}}),
		Sessions:    exec.NewSessions(),
		APIKey:      "secret",
	})
	ts := httptest.NewServer(server.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/v1/history")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 without key, got %d", resp.StatusCode)
	}

	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/api/v1/history", nil)
	req.Header.Set("Authorization", "Bearer secret")
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("get with key: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode == http.StatusUnauthorized {
		t.Fatalf("valid key must pass authentication")
	}
}

func TestPortfolioUnconfigured(t *testing.T) {
	ts, _ := newTestServer(t)
	resp, err := http.Get(ts.URL + "/api/v1/portfolio")
	if err != nil {
		t.Fatalf("get portfolio: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 without portfolio service, got %d", resp.StatusCode)
	}
}
