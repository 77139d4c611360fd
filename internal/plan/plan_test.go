package plan

import (
	"encoding/json"
	"sync"
	"testing"

	xerrors "NexusAI-Core/internal/errors"
	"NexusAI-Core/internal/intent"
)

func readyFixture() *Plan {
	resolver := NewResolver(ResolverConfig{})
	return resolver.Resolve(intent.DecodedAction{
		Kind:      intent.KindTransfer,
		Chain:     intent.ChainNEAR,
		Amount:    "5",
		Token:     "NEAR",
		Recipient: "bob.near",
	})
}

func TestPlanLifecycle(t *testing.T) {
	p := readyFixture()
	if err := p.Start(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.CurrentStatus() != StatusExecuting {
		t.Fatalf("expected executing, got %s", p.CurrentStatus())
	}
	if err := p.Start(); xerrors.CodeOf(err) != CodeConflict {
		t.Fatalf("double start must conflict, got %v", err)
	}

	if err := p.Complete("8fG3x"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.CurrentStatus() != StatusCompleted || p.ResultHash != "8fG3x" {
		t.Fatalf("unexpected settled state: %s/%q", p.CurrentStatus(), p.ResultHash)
	}
	for _, step := range p.Steps {
		if step.Status != StepCompleted {
			t.Fatalf("step %q not completed after success", step.Label)
		}
	}

	// 终态吸收一切后续流转。
	if err := p.Fail("late"); xerrors.CodeOf(err) != CodeConflict {
		t.Fatalf("completed plan must refuse fail, got %v", err)
	}
	if err := p.FillRecipient("eve.near"); xerrors.CodeOf(err) != CodeConflict {
		t.Fatalf("completed plan must refuse recipient change, got %v", err)
	}
}

func TestPlanStartNeedsInputIsValidation(t *testing.T) {
	resolver := NewResolver(ResolverConfig{})
	p := resolver.Resolve(intent.DecodedAction{
		Kind:   intent.KindTransfer,
		Chain:  intent.ChainNEAR,
		Amount: "5",
		Token:  "NEAR",
	})
	err := p.Start()
	if xerrors.CodeOf(err) != CodeValidation {
		t.Fatalf("needs_input start must be a validation failure, got %v", err)
	}
	if p.CurrentStatus() != StatusNeedsInput {
		t.Fatalf("refused start must not change status, got %s", p.CurrentStatus())
	}
}

func TestPlanCompleteSkipsHashForReadOnly(t *testing.T) {
	resolver := NewResolver(ResolverConfig{})
	p := resolver.Resolve(intent.DecodedAction{Kind: intent.KindQueryPortfolio, Chain: intent.ChainNEAR})
	if err := p.Start(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := p.Complete("5.25 NEAR"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.ResultHash != "" {
		t.Fatalf("read-only plans must not carry a result hash, got %q", p.ResultHash)
	}
}

func TestPlanSupersede(t *testing.T) {
	pending := readyFixture()
	if err := pending.Supersede("新输入"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if pending.CurrentStatus() != StatusFailed || pending.FailureReason != "新输入" {
		t.Fatalf("superseded plan must fail with reason, got %s/%q", pending.CurrentStatus(), pending.FailureReason)
	}

	executing := readyFixture()
	if err := executing.Start(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := executing.Supersede("新输入"); xerrors.CodeOf(err) != CodeConflict {
		t.Fatalf("executing plan must refuse supersede, got %v", err)
	}

	// 终态计划被取代是无操作，不报错也不改字段。
	settled := readyFixture()
	settled.Status = StatusCompleted
	if err := settled.Supersede("新输入"); err != nil {
		t.Fatalf("settled plan supersede must be a no-op, got %v", err)
	}
	if settled.CurrentStatus() != StatusCompleted || settled.FailureReason != "" {
		t.Fatalf("settled plan must stay untouched, got %s/%q", settled.CurrentStatus(), settled.FailureReason)
	}
}

func TestPlanAbandon(t *testing.T) {
	p := readyFixture()
	if err := p.Abandon("取消"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := p.Abandon("再取消"); xerrors.CodeOf(err) != CodeConflict {
		t.Fatalf("terminal plan must refuse abandon, got %v", err)
	}

	executing := readyFixture()
	if err := executing.Start(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := executing.Abandon("取消"); xerrors.CodeOf(err) != CodeConflict {
		t.Fatalf("executing plan must refuse abandon, got %v", err)
	}
}

// 序列化与状态写入可以交错发生，编码结果必须始终是完整一致的快照。
func TestPlanMarshalDuringTransitions(t *testing.T) {
	p := readyFixture()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_ = p.Start()
		_ = p.Complete("h")
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 100; i++ {
			data, err := json.Marshal(p)
			if err != nil {
				t.Errorf("marshal failed: %v", err)
				return
			}
			var view map[string]any
			if err := json.Unmarshal(data, &view); err != nil {
				t.Errorf("snapshot not valid JSON: %v", err)
				return
			}
		}
	}()
	wg.Wait()

	if p.CurrentStatus() != StatusCompleted {
		t.Fatalf("expected completed, got %s", p.CurrentStatus())
	}
}
