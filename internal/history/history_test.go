package history

import (
	"context"
	"testing"
	"time"

	"NexusAI-Core/internal/intent"
	"NexusAI-Core/internal/plan"
)

func TestMemoryStoreAppendAndList(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	for i, hash := range []string{"hash-a", "hash-b", "hash-c"} {
		entry := &Entry{
			PlanID:    "plan-" + hash,
			Kind:      intent.KindTransfer,
			Chain:     intent.ChainNEAR,
			Status:    plan.StatusCompleted,
			Hash:      hash,
			CreatedAt: time.Now().Unix() + int64(i),
		}
		if err := store.Append(ctx, entry); err != nil {
			t.Fatalf("append %s: %v", hash, err)
		}
	}

	entries, err := store.List(ctx, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Hash != "hash-c" {
		t.Fatalf("expected newest first, got %q", entries[0].Hash)
	}
	if entries[0].ID == "" {
		t.Fatalf("store must assign entry IDs")
	}
}

func TestMemoryStoreRejectsNonTerminal(t *testing.T) {
	store := NewMemoryStore()
	entry := &Entry{PlanID: "plan-1", Status: plan.StatusReady}
	if err := store.Append(context.Background(), entry); err == nil {
		t.Fatalf("expected error for non-terminal status")
	}
	if err := store.Append(context.Background(), nil); err == nil {
		t.Fatalf("expected error for nil entry")
	}
}

func TestFromPlan(t *testing.T) {
	p := &plan.Plan{
		ID:         "plan-9",
		Kind:       intent.KindSwap,
		Chain:      intent.ChainEthereum,
		Token:      "USDC",
		Amount:     "10",
		Recipient:  "0x7a250d5630B4cF539739dF2C5dAcb4c659F2488D",
		Status:     plan.StatusCompleted,
		ResultHash: "0xdeadbeef",
	}
	entry := FromPlan(p)
	if entry == nil {
		t.Fatalf("expected an entry")
	}
	if entry.PlanID != "plan-9" || entry.Hash != "0xdeadbeef" || entry.Status != plan.StatusCompleted {
		t.Fatalf("unexpected entry: %+v", entry)
	}
	if entry.ID == "" || entry.CreatedAt == 0 {
		t.Fatalf("entry must carry ID and timestamp")
	}
	if FromPlan(nil) != nil {
		t.Fatalf("nil plan must map to nil entry")
	}
}

func TestNewMySQLStoreRequiresDSN(t *testing.T) {
	if _, err := NewMySQLStore(""); err == nil {
		t.Fatalf("expected error for empty DSN")
	}
}
