package history

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	xerrors "NexusAI-Core/internal/errors"
	"NexusAI-Core/internal/intent"
	"NexusAI-Core/internal/plan"
)

// Entry 是一条已落定计划的留痕记录。计划本身不持久化，
// 只有到达终态的执行结果才会进入历史。
type Entry struct {
	ID        string       `json:"id"`
	PlanID    string       `json:"plan_id"`
	Kind      intent.Kind  `json:"kind"`
	Chain     intent.Chain `json:"chain"`
	Token     string       `json:"token,omitempty"`
	Amount    string       `json:"amount,omitempty"`
	Recipient string       `json:"recipient,omitempty"`
	Status    plan.Status  `json:"status"`
	Hash      string       `json:"hash,omitempty"`
	Reason    string       `json:"reason,omitempty"`
	CreatedAt int64        `json:"created_at"`
}

// Store 负责历史记录的读写。
type Store interface {
	Append(ctx context.Context, entry *Entry) error
	List(ctx context.Context, limit int) ([]Entry, error)
	Close() error
}

// FromPlan 由终态计划构造历史记录。
func FromPlan(p *plan.Plan) *Entry {
	if p == nil {
		return nil
	}
	return &Entry{
		ID:        uuid.NewString(),
		PlanID:    p.ID,
		Kind:      p.Kind,
		Chain:     p.Chain,
		Token:     p.Token,
		Amount:    p.Amount,
		Recipient: p.Recipient,
		Status:    p.Status,
		Hash:      p.ResultHash,
		Reason:    p.FailureReason,
		CreatedAt: time.Now().Unix(),
	}
}

func validate(entry *Entry) error {
	if entry == nil {
		return xerrors.New(xerrors.CodeInvalidArgument, "历史记录不能为空")
	}
	if strings.TrimSpace(entry.PlanID) == "" {
		return xerrors.New(xerrors.CodeInvalidArgument, "历史记录缺少计划 ID")
	}
	if entry.Status != plan.StatusCompleted && entry.Status != plan.StatusFailed {
		return xerrors.New(xerrors.CodeInvalidArgument, "历史只记录终态计划: "+string(entry.Status))
	}
	return nil
}

// MemoryStore 把历史保存在内存里，用于测试与单机部署。
type MemoryStore struct {
	mu      sync.RWMutex
	entries []Entry
}

// NewMemoryStore 创建内存历史存储。
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Append 追加一条历史记录。
func (s *MemoryStore) Append(_ context.Context, entry *Entry) error {
	if err := validate(entry); err != nil {
		return err
	}
	stored := *entry
	if stored.ID == "" {
		stored.ID = uuid.NewString()
	}
	if stored.CreatedAt == 0 {
		stored.CreatedAt = time.Now().Unix()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, stored)
	return nil
}

// List 按时间倒序返回最近的历史记录。
func (s *MemoryStore) List(_ context.Context, limit int) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Entry, len(s.entries))
	copy(out, s.entries)
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt > out[j].CreatedAt })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Close 清空内存存储。
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = nil
	return nil
}
