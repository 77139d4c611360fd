package plan

import (
	"encoding/json"
	"sync"

	xerrors "NexusAI-Core/internal/errors"
	"NexusAI-Core/internal/intent"
)

// Status 表示行动计划在生命周期中的状态，只允许向前流转。
type Status string

const (
	StatusNeedsInput Status = "needs_input"
	StatusReady      Status = "ready"
	StatusExecuting  Status = "executing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

var statusRank = map[Status]int{
	StatusNeedsInput: 0,
	StatusReady:      1,
	StatusExecuting:  2,
	StatusCompleted:  3,
	StatusFailed:     3,
}

// CanTransition 检查状态流转是否合法。终态之间与任何回退都不允许。
func CanTransition(from, to Status) bool {
	fromRank, ok := statusRank[from]
	if !ok {
		return false
	}
	toRank, ok := statusRank[to]
	if !ok {
		return false
	}
	if from == StatusCompleted || from == StatusFailed {
		return false
	}
	return toRank > fromRank || (from == StatusNeedsInput && to == StatusReady)
}

// StepStatus 表示单个执行步骤的展示状态。
type StepStatus string

const (
	StepPending    StepStatus = "pending"
	StepProcessing StepStatus = "processing"
	StepCompleted  StepStatus = "completed"
	StepFailed     StepStatus = "failed"
)

// Step 是面向用户的进度条目。步骤列表只用于展示，绝不参与状态机控制。
type Step struct {
	Label  string     `json:"label"`
	Status StepStatus `json:"status"`
}

// AgentTypeBasic 是部署代理时使用的固定类型标签。
const AgentTypeBasic = "shade-basic"

// Plan 是管线其余部分操作的基本单元：一次解析意图的已验证表示。
// 由解析器创建，只被执行协调器修改；用户发起新输入或取消后即被丢弃，
// 不做持久化——计划是短生命周期的确认产物，不是账本记录。
//
// 计划发布后可能被多个 goroutine 同时触碰（会话替换、执行、序列化），
// 所有状态变更必须走下面的方法，由计划自身的锁保证串行。
// 落定终态后字段不再变化。
type Plan struct {
	mu sync.Mutex

	ID            string       `json:"id"`
	Kind          intent.Kind  `json:"kind"`
	Chain         intent.Chain `json:"chain"`
	Token         string       `json:"token,omitempty"`
	Amount        string       `json:"amount,omitempty"`
	Recipient     string       `json:"recipient,omitempty"`
	AgentName     string       `json:"agent_name,omitempty"`
	AgentType     string       `json:"agent_type,omitempty"`
	Instruction   string       `json:"instruction,omitempty"`
	GasEstimate   string       `json:"gas_estimate"`
	Status        Status       `json:"status"`
	MissingField  string       `json:"missing_field,omitempty"`
	Steps         []Step       `json:"steps"`
	ResultHash    string       `json:"result_hash,omitempty"`
	FailureReason string       `json:"failure_reason,omitempty"`
	CreatedAt     int64        `json:"created_at"`
}

// Executable 判断该计划是否需要走签名执行路径。
// 只读类型（查询、金库、代理动作）由协调器直接完成，UNKNOWN 永远不可执行。
func (p *Plan) Executable() bool {
	if p == nil {
		return false
	}
	switch p.Kind {
	case intent.KindTransfer, intent.KindSwap, intent.KindDeployAgent:
		return true
	default:
		return false
	}
}

// ReadOnly 判断该计划是否为不构造链上交易的读类计划。
func (p *Plan) ReadOnly() bool {
	if p == nil {
		return false
	}
	switch p.Kind {
	case intent.KindAgentAction, intent.KindQueryPortfolio, intent.KindVaultAccess:
		return true
	default:
		return false
	}
}

// stepValidateRecipient 是补填收款人后需要补齐的展示步骤。
const stepValidateRecipient = "Validate recipient"

// CurrentStatus 返回计划当前状态。
func (p *Plan) CurrentStatus() Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.Status
}

// transitionLocked 在持有计划锁的前提下校验并推进状态。
func (p *Plan) transitionLocked(to Status) error {
	if !CanTransition(p.Status, to) {
		return xerrors.New(CodeConflict, "非法的状态流转: "+string(p.Status)+" -> "+string(to))
	}
	p.Status = to
	return nil
}

// Start 把 ready 的计划推进到 executing。
// 缺少输入的计划返回校验错误，其余状态一律返回冲突。
func (p *Plan) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	switch p.Status {
	case StatusReady:
		return p.transitionLocked(StatusExecuting)
	case StatusNeedsInput:
		return xerrors.New(CodeValidation, "计划缺少必填字段: "+p.MissingField)
	default:
		return xerrors.New(CodeConflict, "计划当前状态不允许执行: "+string(p.Status))
	}
}

// Complete 把执行中的计划落定为 completed 并标记所有步骤完成。
// 哈希只写入签名类计划，只读计划的查询结果不留在计划上。
func (p *Plan) Complete(hash string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.transitionLocked(StatusCompleted); err != nil {
		return err
	}
	if p.Executable() {
		p.ResultHash = hash
	}
	for i := range p.Steps {
		p.Steps[i].Status = StepCompleted
	}
	return nil
}

// Fail 把计划落定为 failed 并记录原因。步骤保持原样，便于用户看到卡点。
func (p *Plan) Fail(reason string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.transitionLocked(StatusFailed); err != nil {
		return err
	}
	p.FailureReason = reason
	return nil
}

// Abandon 放弃一个尚未开始执行的计划。执行中与已落定的计划拒绝取消。
func (p *Plan) Abandon(reason string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	switch p.Status {
	case StatusNeedsInput, StatusReady:
		if err := p.transitionLocked(StatusFailed); err != nil {
			return err
		}
		p.FailureReason = reason
		return nil
	case StatusExecuting:
		return xerrors.New(CodeConflict, "执行中的计划无法取消")
	default:
		return xerrors.New(CodeConflict, "计划已落定终态")
	}
}

// Supersede 为新输入让路：未执行的计划转为 failed，
// 已落定的计划原样保留，执行中的计划拒绝被取代。
func (p *Plan) Supersede(reason string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	switch p.Status {
	case StatusNeedsInput, StatusReady:
		if err := p.transitionLocked(StatusFailed); err != nil {
			return err
		}
		p.FailureReason = reason
		return nil
	case StatusExecuting:
		return xerrors.New(CodeConflict, "执行中的计划无法被取代，请等待其完成")
	default:
		return nil
	}
}

// FillRecipient 填入或覆盖收款人，链按收款人形态重新推断。
// needs_input 的计划补齐缺失字段后推进到 ready。
func (p *Plan) FillRecipient(recipient string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Status != StatusNeedsInput && p.Status != StatusReady {
		return xerrors.New(CodeConflict, "计划当前状态不允许修改收款人: "+string(p.Status))
	}
	p.Recipient = recipient
	p.Chain = intent.InferChain(p.Chain, recipient)
	if p.Status == StatusNeedsInput && p.MissingField == "recipient" {
		if err := p.transitionLocked(StatusReady); err != nil {
			return err
		}
		p.MissingField = ""
		for i := range p.Steps {
			if p.Steps[i].Label == stepValidateRecipient {
				p.Steps[i].Status = StepCompleted
			}
		}
	}
	return nil
}

// MarkStepsProcessing 把待处理的展示步骤标记为进行中。
func (p *Plan) MarkStepsProcessing() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := range p.Steps {
		if p.Steps[i].Status == StepPending {
			p.Steps[i].Status = StepProcessing
		}
	}
}

// planView 是 Plan 的序列化形态，字段与 Plan 一一对应。
type planView struct {
	ID            string       `json:"id"`
	Kind          intent.Kind  `json:"kind"`
	Chain         intent.Chain `json:"chain"`
	Token         string       `json:"token,omitempty"`
	Amount        string       `json:"amount,omitempty"`
	Recipient     string       `json:"recipient,omitempty"`
	AgentName     string       `json:"agent_name,omitempty"`
	AgentType     string       `json:"agent_type,omitempty"`
	Instruction   string       `json:"instruction,omitempty"`
	GasEstimate   string       `json:"gas_estimate"`
	Status        Status       `json:"status"`
	MissingField  string       `json:"missing_field,omitempty"`
	Steps         []Step       `json:"steps"`
	ResultHash    string       `json:"result_hash,omitempty"`
	FailureReason string       `json:"failure_reason,omitempty"`
	CreatedAt     int64        `json:"created_at"`
}

// MarshalJSON 在计划锁内序列化，避免响应编码与状态写入交错。
func (p *Plan) MarshalJSON() ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return json.Marshal(planView{
		ID:            p.ID,
		Kind:          p.Kind,
		Chain:         p.Chain,
		Token:         p.Token,
		Amount:        p.Amount,
		Recipient:     p.Recipient,
		AgentName:     p.AgentName,
		AgentType:     p.AgentType,
		Instruction:   p.Instruction,
		GasEstimate:   p.GasEstimate,
		Status:        p.Status,
		MissingField:  p.MissingField,
		Steps:         p.Steps,
		ResultHash:    p.ResultHash,
		FailureReason: p.FailureReason,
		CreatedAt:     p.CreatedAt,
	})
}

const (
	CodeValidation xerrors.Code = "VALIDATION_FAILED"
	CodeConflict   xerrors.Code = "PLAN_CONFLICT"
)

var (
	// ErrValidation 表示计划缺少执行所需的字段。
	ErrValidation = xerrors.New(CodeValidation, "plan validation failed")
	// ErrConflict 表示计划在当前状态下无法进行所请求的操作。
	ErrConflict = xerrors.New(CodeConflict, "plan conflict")
)

func init() {
	xerrors.Register(CodeValidation, xerrors.Attributes{
		Message:  "plan validation failed",
		Severity: xerrors.SeverityInfo,
	})
	xerrors.Register(CodeConflict, xerrors.Attributes{
		Message:  "plan conflict",
		Severity: xerrors.SeverityWarning,
	})
}
