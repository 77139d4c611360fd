package exec

import (
	"strings"
	"sync"

	xerrors "NexusAI-Core/internal/errors"
	"NexusAI-Core/internal/plan"
)

// Sessions 维护每个会话的当前活跃计划。一个会话同一时刻只有一个活跃计划：
// 新输入会隐式放弃尚未执行的旧计划，但绝不打断执行中的计划。
type Sessions struct {
	mu     sync.Mutex
	active map[string]*plan.Plan
	index  map[string]string
}

// NewSessions 创建会话注册表。
func NewSessions() *Sessions {
	return &Sessions{
		active: make(map[string]*plan.Plan),
		index:  make(map[string]string),
	}
}

// Attach 把新解析出的计划挂到会话上。
// 旧计划若处于 executing 状态则拒绝新计划，其余未落定的旧计划被隐式放弃。
func (s *Sessions) Attach(sessionID string, p *plan.Plan) error {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return xerrors.New(xerrors.CodeInvalidArgument, "会话 ID 不能为空")
	}
	if p == nil {
		return xerrors.New(xerrors.CodeInvalidArgument, "计划不能为空")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if current := s.active[sessionID]; current != nil {
		// 取代决策交给计划自身的锁裁决，避免与执行方竞争状态。
		if err := current.Supersede("已被新输入取代"); err != nil {
			return err
		}
		delete(s.index, current.ID)
	}
	s.active[sessionID] = p
	s.index[p.ID] = sessionID
	return nil
}

// Active 返回会话的当前活跃计划。
func (s *Sessions) Active(sessionID string) (*plan.Plan, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.active[sessionID]
	return p, ok
}

// Plan 按计划 ID 查找计划及其归属会话。
func (s *Sessions) Plan(planID string) (*plan.Plan, string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sessionID, ok := s.index[planID]
	if !ok {
		return nil, "", false
	}
	return s.active[sessionID], sessionID, true
}
