package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	xerrors "NexusAI-Core/internal/errors"
	"NexusAI-Core/internal/exec"
	"NexusAI-Core/internal/history"
	"NexusAI-Core/internal/intent"
	"NexusAI-Core/internal/plan"
	"NexusAI-Core/internal/portfolio"
	"NexusAI-Core/internal/signer"
)

// PortfolioAPI 暴露给接口层的投资组合查询能力。
type PortfolioAPI interface {
	Balances(ctx context.Context) ([]portfolio.Balance, error)
}

// Server 负责暴露 REST 接口，把自然语言输入转为计划并驱动执行。
type Server struct {
	addr        string
	parser      *intent.Parser
	resolver    *plan.Resolver
	coordinator *exec.Coordinator
	sessions    *exec.Sessions
	history     history.Store
	portfolio   PortfolioAPI
	apiKey      string
}

// Deps 汇总接口层依赖的各个服务。history 与 portfolio 可以为空，
// 对应端点会返回 503；APIKey 为空时不启用认证。
type Deps struct {
	Parser      *intent.Parser
	Resolver    *plan.Resolver
	Coordinator *exec.Coordinator
	Sessions    *exec.Sessions
	History     history.Store
	Portfolio   PortfolioAPI
	APIKey      string
}

// NewServer 构造 API 服务实例。
func NewServer(addr string, deps Deps) *Server {
	return &Server{
		addr:        addr,
		parser:      deps.Parser,
		resolver:    deps.Resolver,
		coordinator: deps.Coordinator,
		sessions:    deps.Sessions,
		history:     deps.History,
		portfolio:   deps.Portfolio,
		apiKey:      deps.APIKey,
	}
}

// Handler 返回挂载全部路由的处理器。
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/messages", s.handleMessages)
	mux.HandleFunc("/api/v1/plans/execute", s.handleExecute)
	mux.HandleFunc("/api/v1/plans/recipient", s.handleRecipient)
	mux.HandleFunc("/api/v1/plans/cancel", s.handleCancel)
	mux.HandleFunc("/api/v1/history", s.handleHistory)
	mux.HandleFunc("/api/v1/portfolio", s.handlePortfolio)
	return s.middleware(mux)
}

// Start 启动 HTTP 服务，直到上下文取消或出现错误。
func (s *Server) Start(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.addr,
		Handler:           withContext(ctx, s.Handler()),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

type messageRequest struct {
	SessionID string `json:"session_id"`
	Text      string `json:"text"`
}

type messageResponse struct {
	SessionID string     `json:"session_id"`
	Plan      *plan.Plan `json:"plan"`
}

// handleMessages 解析一条自然语言输入并生成新的行动计划。
func (s *Server) handleMessages(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "仅支持 POST", http.StatusMethodNotAllowed)
		return
	}

	var req messageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "请求体解析失败")
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		writeError(w, http.StatusBadRequest, "text 不能为空")
		return
	}
	sessionID := strings.TrimSpace(req.SessionID)
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	action := s.parser.Parse(r.Context(), req.Text)
	p := s.resolver.Resolve(action)
	if err := s.sessions.Attach(sessionID, p); err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{SessionID: sessionID, Plan: p})
}

type planRequest struct {
	PlanID    string `json:"plan_id"`
	Recipient string `json:"recipient,omitempty"`
}

type executeResponse struct {
	Plan   *plan.Plan `json:"plan"`
	Result string     `json:"result,omitempty"`
}

// handleExecute 同步执行一个 ready 状态的计划。
// 执行失败的计划以 200 返回，失败原因写在计划本身；
// 缺少输入的计划返回 400，状态冲突（重复执行、终态计划）返回 409。
func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "仅支持 POST", http.StatusMethodNotAllowed)
		return
	}

	p, ok := s.lookupPlan(w, r)
	if !ok {
		return
	}
	result, err := s.coordinator.Execute(r.Context(), p)
	if err != nil {
		switch xerrors.CodeOf(err) {
		case plan.CodeConflict, plan.CodeValidation:
			writeFailure(w, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, executeResponse{Plan: p, Result: result})
}

// handleRecipient 为等待输入的计划补填收款人。
func (s *Server) handleRecipient(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "仅支持 POST", http.StatusMethodNotAllowed)
		return
	}

	var req planRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "请求体解析失败")
		return
	}
	p, _, found := s.sessions.Plan(req.PlanID)
	if !found {
		writeError(w, http.StatusNotFound, "计划不存在")
		return
	}
	if err := s.coordinator.SetRecipient(p, req.Recipient); err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, executeResponse{Plan: p})
}

// handleCancel 放弃一个尚未执行的计划。
func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "仅支持 POST", http.StatusMethodNotAllowed)
		return
	}

	p, ok := s.lookupPlan(w, r)
	if !ok {
		return
	}
	if err := s.coordinator.Cancel(p); err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, executeResponse{Plan: p})
}

// handleHistory 返回最近的执行历史。
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "仅支持 GET", http.StatusMethodNotAllowed)
		return
	}
	if s.history == nil {
		writeError(w, http.StatusServiceUnavailable, "历史存储未配置")
		return
	}

	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	entries, err := s.history.List(r.Context(), limit)
	if err != nil {
		writeFailure(w, err)
		return
	}
	if entries == nil {
		entries = []history.Entry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

// handlePortfolio 返回已配置账户的实时余额。
func (s *Server) handlePortfolio(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "仅支持 GET", http.StatusMethodNotAllowed)
		return
	}
	if s.portfolio == nil {
		writeError(w, http.StatusServiceUnavailable, "投资组合服务未配置")
		return
	}

	balances, err := s.portfolio.Balances(r.Context())
	if err != nil {
		writeFailure(w, err)
		return
	}
	if balances == nil {
		balances = []portfolio.Balance{}
	}
	writeJSON(w, http.StatusOK, balances)
}

func (s *Server) lookupPlan(w http.ResponseWriter, r *http.Request) (*plan.Plan, bool) {
	var req planRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "请求体解析失败")
		return nil, false
	}
	p, _, found := s.sessions.Plan(req.PlanID)
	if !found {
		writeError(w, http.StatusNotFound, "计划不存在")
		return nil, false
	}
	return p, true
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// writeFailure 按错误码映射 HTTP 状态。
func writeFailure(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	code := string(xerrors.CodeOf(err))
	switch xerrors.CodeOf(err) {
	case plan.CodeConflict:
		status = http.StatusConflict
	case plan.CodeValidation, xerrors.CodeInvalidArgument:
		status = http.StatusBadRequest
	case signer.CodeUserRejected:
		status = http.StatusConflict
	}
	writeJSON(w, status, errorResponse{Code: code, Message: err.Error()})
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Code: string(xerrors.CodeUnknown), Message: message})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// withContext 确保请求处理能够感知根上下文取消。
func withContext(ctx context.Context, handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-ctx.Done():
			http.Error(w, "服务已关闭", http.StatusServiceUnavailable)
			return
		default:
		}
		handler.ServeHTTP(w, r)
	})
}
