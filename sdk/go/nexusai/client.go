package nexusai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"time"
)

// DefaultHTTPTimeout defines the timeout used by clients created without a
// custom http.Client. It is intentionally short to avoid hanging network calls.
const DefaultHTTPTimeout = 15 * time.Second

// Client wraps the HTTP interactions with the NexusAI REST API.
type Client struct {
	baseURL    *url.URL
	apiKey     string
	httpClient *http.Client
}

// Step mirrors a plan progress entry returned by the API.
type Step struct {
	Label  string `json:"label"`
	Status string `json:"status"`
}

// Plan is the API view of an action plan.
type Plan struct {
	ID            string `json:"id"`
	Kind          string `json:"kind"`
	Chain         string `json:"chain"`
	Token         string `json:"token,omitempty"`
	Amount        string `json:"amount,omitempty"`
	Recipient     string `json:"recipient,omitempty"`
	AgentName     string `json:"agent_name,omitempty"`
	AgentType     string `json:"agent_type,omitempty"`
	GasEstimate   string `json:"gas_estimate"`
	Status        string `json:"status"`
	MissingField  string `json:"missing_field,omitempty"`
	Steps         []Step `json:"steps"`
	ResultHash    string `json:"result_hash,omitempty"`
	FailureReason string `json:"failure_reason,omitempty"`
	CreatedAt     int64  `json:"created_at"`
}

// Message is the response to a submitted utterance.
type Message struct {
	SessionID string `json:"session_id"`
	Plan      *Plan  `json:"plan"`
}

// Execution is the response to plan operations.
type Execution struct {
	Plan   *Plan  `json:"plan"`
	Result string `json:"result,omitempty"`
}

// HistoryEntry is one settled plan in the execution history.
type HistoryEntry struct {
	ID        string `json:"id"`
	PlanID    string `json:"plan_id"`
	Kind      string `json:"kind"`
	Chain     string `json:"chain"`
	Token     string `json:"token,omitempty"`
	Amount    string `json:"amount,omitempty"`
	Recipient string `json:"recipient,omitempty"`
	Status    string `json:"status"`
	Hash      string `json:"hash,omitempty"`
	Reason    string `json:"reason,omitempty"`
	CreatedAt int64  `json:"created_at"`
}

// Balance is a native token balance on one chain.
type Balance struct {
	Chain   string `json:"chain"`
	Token   string `json:"token"`
	Account string `json:"account"`
	Amount  string `json:"amount"`
}

// APIError represents server side validation or conflict errors.
type APIError struct {
	StatusCode int
	Code       string `json:"code"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	if e == nil {
		return ""
	}
	if e.Code != "" {
		return fmt.Sprintf("nexusai api error (%d): %s - %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("nexusai api error (%d): %s", e.StatusCode, e.Message)
}

// NewClient instantiates a client for the NexusAI API. The apiKey may be empty
// when the server runs without authentication. When httpClient is nil, a
// default client with a sensible timeout is used.
func NewClient(rawURL, apiKey string, httpClient *http.Client) (*Client, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultHTTPTimeout}
	}
	return &Client{baseURL: parsed, apiKey: apiKey, httpClient: httpClient}, nil
}

// SendMessage submits a natural language utterance and returns the resolved plan.
// An empty sessionID starts a new session.
func (c *Client) SendMessage(ctx context.Context, sessionID, text string) (Message, error) {
	var msg Message
	payload := map[string]string{"session_id": sessionID, "text": text}
	if err := c.post(ctx, "/api/v1/messages", payload, &msg); err != nil {
		return Message{}, err
	}
	return msg, nil
}

// ExecutePlan executes a ready plan and returns its settled state.
func (c *Client) ExecutePlan(ctx context.Context, planID string) (Execution, error) {
	var execution Execution
	payload := map[string]string{"plan_id": planID}
	if err := c.post(ctx, "/api/v1/plans/execute", payload, &execution); err != nil {
		return Execution{}, err
	}
	return execution, nil
}

// SetRecipient fills in the recipient of a plan waiting for input.
func (c *Client) SetRecipient(ctx context.Context, planID, recipient string) (Execution, error) {
	var execution Execution
	payload := map[string]string{"plan_id": planID, "recipient": recipient}
	if err := c.post(ctx, "/api/v1/plans/recipient", payload, &execution); err != nil {
		return Execution{}, err
	}
	return execution, nil
}

// CancelPlan abandons a plan that has not started executing.
func (c *Client) CancelPlan(ctx context.Context, planID string) (Execution, error) {
	var execution Execution
	payload := map[string]string{"plan_id": planID}
	if err := c.post(ctx, "/api/v1/plans/cancel", payload, &execution); err != nil {
		return Execution{}, err
	}
	return execution, nil
}

// History returns the most recent settled plans.
func (c *Client) History(ctx context.Context, limit int) ([]HistoryEntry, error) {
	endpoint := "/api/v1/history"
	if limit > 0 {
		endpoint = fmt.Sprintf("%s?limit=%d", endpoint, limit)
	}
	var entries []HistoryEntry
	if err := c.get(ctx, endpoint, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// Portfolio returns the live balances of the configured accounts.
func (c *Client) Portfolio(ctx context.Context) ([]Balance, error) {
	var balances []Balance
	if err := c.get(ctx, "/api/v1/portfolio", &balances); err != nil {
		return nil, err
	}
	return balances, nil
}

func (c *Client) post(ctx context.Context, endpoint string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	req, err := c.newRequest(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) get(ctx context.Context, endpoint string, out any) error {
	req, err := c.newRequest(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) newRequest(ctx context.Context, method, endpoint string, body io.Reader) (*http.Request, error) {
	parsed, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid endpoint: %w", err)
	}
	parsed.Path = path.Join(c.baseURL.Path, parsed.Path)
	u := c.baseURL.ResolveReference(parsed)
	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	return req, nil
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("perform request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		apiErr := APIError{StatusCode: resp.StatusCode}
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read error response: %w", err)
		}
		if len(data) > 0 {
			_ = json.Unmarshal(data, &apiErr)
		}
		if apiErr.Message == "" {
			apiErr.Message = string(bytes.TrimSpace(data))
		}
		return &apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
