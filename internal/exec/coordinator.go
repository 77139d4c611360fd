package exec

import (
	"context"
	"log/slog"
	"strings"

	xerrors "NexusAI-Core/internal/errors"
	"NexusAI-Core/internal/events"
	"NexusAI-Core/internal/history"
	"NexusAI-Core/internal/intent"
	"NexusAI-Core/internal/plan"
	"NexusAI-Core/internal/signer"
	"NexusAI-Core/pkg/logger"
)

// SignerRegistry 按链查找签名适配器。
type SignerRegistry interface {
	Adapter(chain intent.Chain) (signer.Adapter, bool)
}

// PortfolioReader 查询投资组合并返回可读摘要。
type PortfolioReader interface {
	Summary(ctx context.Context) (string, error)
}

// VaultReader 描述金库内容。
type VaultReader interface {
	Describe(ctx context.Context) (string, error)
}

// AgentRunner 部署代理并向其转发指令。
type AgentRunner interface {
	Deploy(ctx context.Context, name, agentType string) (string, error)
	Run(ctx context.Context, name, instruction string) (string, error)
}

// Coordinator 驱动计划的执行：ready 的计划推进到 executing，
// 终态写回计划本身并留痕。状态变更全部委托给计划自身的锁，
// 同一计划同一时刻最多一次在途执行由 ready->executing 的原子流转保证。
type Coordinator struct {
	signers   SignerRegistry
	history   history.Store
	events    events.Publisher
	portfolio PortfolioReader
	vault     VaultReader
	agents    AgentRunner
	logger    *slog.Logger
}

// Option 定义可选的协调器配置。
type Option func(*Coordinator)

// WithHistory 指定历史存储，终态计划自动留痕。
func WithHistory(store history.Store) Option {
	return func(c *Coordinator) { c.history = store }
}

// WithEvents 指定事件发布器。
func WithEvents(publisher events.Publisher) Option {
	return func(c *Coordinator) { c.events = publisher }
}

// WithPortfolio 指定投资组合查询服务。
func WithPortfolio(reader PortfolioReader) Option {
	return func(c *Coordinator) { c.portfolio = reader }
}

// WithVault 指定金库服务。
func WithVault(reader VaultReader) Option {
	return func(c *Coordinator) { c.vault = reader }
}

// WithAgents 指定代理托管服务。
func WithAgents(runner AgentRunner) Option {
	return func(c *Coordinator) { c.agents = runner }
}

// WithLogger 指定日志输出。
func WithLogger(l *slog.Logger) Option {
	return func(c *Coordinator) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewCoordinator 创建执行协调器。
func NewCoordinator(signers SignerRegistry, opts ...Option) *Coordinator {
	c := &Coordinator{
		signers: signers,
		logger:  logger.Named("exec"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// Execute 执行一个 ready 状态的计划，返回执行结果文本：
// 签名类计划是交易哈希，只读类计划是查询结果。
// 缺少输入的计划返回 VALIDATION_FAILED，重复执行与终态计划返回 PLAN_CONFLICT。
func (c *Coordinator) Execute(ctx context.Context, p *plan.Plan) (string, error) {
	if p == nil {
		return "", xerrors.New(xerrors.CodeInvalidArgument, "计划不能为空")
	}
	if err := p.Start(); err != nil {
		return "", err
	}

	c.publish(ctx, events.Event{
		Type:   events.TypePlanExecuting,
		PlanID: p.ID,
		Kind:   p.Kind,
		Chain:  p.Chain,
	})

	result, err := c.run(ctx, p)

	if err != nil {
		_ = p.Fail(failureReason(err))
	} else {
		_ = p.Complete(result)
	}

	c.finalize(ctx, p)
	return result, err
}

// run 分发到具体的执行路径，不触碰计划状态。
func (c *Coordinator) run(ctx context.Context, p *plan.Plan) (string, error) {
	switch p.Kind {
	case intent.KindTransfer, intent.KindSwap:
		return c.submit(ctx, p)
	case intent.KindDeployAgent:
		if c.agents == nil {
			return "", xerrors.New(xerrors.CodeInvalidArgument, "未配置代理托管服务")
		}
		return c.agents.Deploy(ctx, p.AgentName, p.AgentType)
	case intent.KindAgentAction:
		if c.agents == nil {
			return "", xerrors.New(xerrors.CodeInvalidArgument, "未配置代理托管服务")
		}
		return c.agents.Run(ctx, p.AgentName, p.Instruction)
	case intent.KindQueryPortfolio:
		if c.portfolio == nil {
			return "", xerrors.New(xerrors.CodeInvalidArgument, "未配置投资组合服务")
		}
		return c.portfolio.Summary(ctx)
	case intent.KindVaultAccess:
		if c.vault == nil {
			return "", xerrors.New(xerrors.CodeInvalidArgument, "未配置金库服务")
		}
		return c.vault.Describe(ctx)
	default:
		return "", xerrors.New(plan.CodeValidation, "该计划类型不可执行: "+string(p.Kind))
	}
}

// submit 走签名路径：金额换算为最小单位后交给链适配器。
func (c *Coordinator) submit(ctx context.Context, p *plan.Plan) (string, error) {
	adapter, ok := c.signers.Adapter(p.Chain)
	if !ok {
		return "", xerrors.New(signer.CodeNetwork, "链 "+string(p.Chain)+" 未配置签名适配器")
	}
	raw, err := plan.ToSmallestUnit(p.Amount, plan.DecimalsFor(p.Chain))
	if err != nil {
		return "", err
	}

	p.MarkStepsProcessing()
	receipt, err := adapter.SignAndSubmit(ctx, p.Recipient, raw)
	if err != nil {
		return "", err
	}
	return receipt.Hash, nil
}

// finalize 在计划落定终态后留痕、广播并写审计日志。
// 留痕失败只记日志，不改变计划的执行结果。
func (c *Coordinator) finalize(ctx context.Context, p *plan.Plan) {
	if p.CurrentStatus() == plan.StatusCompleted {
		c.publish(ctx, events.Event{
			Type:   events.TypePlanCompleted,
			PlanID: p.ID,
			Kind:   p.Kind,
			Chain:  p.Chain,
			Hash:   p.ResultHash,
		})
		logger.Audit().Info("计划执行完成",
			slog.String("plan_id", p.ID),
			slog.String("kind", string(p.Kind)),
			slog.String("chain", string(p.Chain)),
			slog.String("hash", p.ResultHash),
		)
	} else {
		c.publish(ctx, events.Event{
			Type:   events.TypePlanFailed,
			PlanID: p.ID,
			Kind:   p.Kind,
			Chain:  p.Chain,
			Reason: p.FailureReason,
		})
		logger.Audit().Warn("计划执行失败",
			slog.String("plan_id", p.ID),
			slog.String("kind", string(p.Kind)),
			slog.String("chain", string(p.Chain)),
			slog.String("reason", p.FailureReason),
		)
	}

	if c.history != nil {
		if err := c.history.Append(ctx, history.FromPlan(p)); err != nil {
			c.logger.Warn("写入历史记录失败",
				slog.String("plan_id", p.ID),
				slog.Any("error", err),
			)
		}
	}
}

func (c *Coordinator) publish(ctx context.Context, event events.Event) {
	if c.events == nil {
		return
	}
	if err := c.events.Publish(ctx, event); err != nil {
		c.logger.Warn("发布事件失败",
			slog.String("plan_id", event.PlanID),
			slog.String("type", string(event.Type)),
			slog.Any("error", err),
		)
	}
}

// SetRecipient 填入或覆盖收款人。只允许在 needs_input 与 ready 状态下修改，
// 补齐缺失字段后计划自动推进到 ready。
func (c *Coordinator) SetRecipient(p *plan.Plan, recipient string) error {
	if p == nil {
		return xerrors.New(xerrors.CodeInvalidArgument, "计划不能为空")
	}
	recipient = strings.TrimSpace(recipient)
	if recipient == "" || plan.IsPlaceholder(recipient) {
		return xerrors.New(plan.CodeValidation, "收款人不能为空或占位值")
	}
	return p.FillRecipient(recipient)
}

// Cancel 放弃一个尚未执行的计划。executing 状态不可取消。
func (c *Coordinator) Cancel(p *plan.Plan) error {
	if p == nil {
		return xerrors.New(xerrors.CodeInvalidArgument, "计划不能为空")
	}
	return p.Abandon("已被用户取消")
}

func failureReason(err error) string {
	if e, ok := xerrors.From(err); ok {
		return e.Message()
	}
	return err.Error()
}
