package journal

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/mtlprog/kosh/internal/domain"
)

const (
	accountA = "GAQ5ERJVI6IW5UVNPEVXUUVMXH3GCDHJ4BJAXMAAKPR5VBWWAUOMABIZ"
	accountB = "GCNVDZIHGX473FEI7IXCUAEXUJ4BGCKEMHF36VYP5EMS7PX2QBLAMTLA"
)

type mockRepo struct {
	saved   []json.RawMessage
	saveErr error
}

func (m *mockRepo) Save(_ context.Context, _ domain.RunResult, data json.RawMessage) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.saved = append(m.saved, data)
	return nil
}

func (m *mockRepo) Get(context.Context, string) (*Record, error) { return nil, ErrNotFound }

func (m *mockRepo) ListByAccount(context.Context, domain.Network, string, int) ([]Record, error) {
	return nil, nil
}

func (m *mockRepo) ListSince(context.Context, time.Time, int) ([]Record, error) { return nil, nil }

func run(id, account string, started time.Time, success bool) domain.RunResult {
	r := domain.RunResult{
		ID:         id,
		Flow:       domain.FlowPay,
		Network:    domain.NetworkTestnet,
		Account:    account,
		Success:    success,
		Stage:      domain.StageSucceeded,
		StartedAt:  started,
		FinishedAt: started.Add(time.Second),
	}
	if !success {
		r.Stage = domain.StageFailed
		r.Error = &domain.RunError{
			Kind:        domain.KindSubmissionFailed,
			Message:     "insufficient liquidity to meet minimum",
			ResultCodes: domain.ResultCodes{Transaction: "tx_failed", Operations: []string{"op_under_dest_min"}},
		}
	}
	return r
}

func TestRecordMarshalsFullResult(t *testing.T) {
	repo := &mockRepo{}
	svc := NewService(repo)
	started := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	if err := svc.Record(context.Background(), run("r1", accountA, started, false)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(repo.saved) != 1 {
		t.Fatalf("saved %d, want 1", len(repo.saved))
	}
	var back domain.RunResult
	if err := json.Unmarshal(repo.saved[0], &back); err != nil {
		t.Fatalf("stored data is not a run result: %v", err)
	}
	if back.Error == nil || back.Error.ResultCodes.Operations[0] != "op_under_dest_min" {
		t.Errorf("raw result codes must survive the journal: %+v", back.Error)
	}
}

func TestRecordRejectsMissingID(t *testing.T) {
	if err := NewService(&mockRepo{}).Record(context.Background(), domain.RunResult{}); err == nil {
		t.Error("expected error for run without id")
	}
}

func TestRecordRepoError(t *testing.T) {
	svc := NewService(&mockRepo{saveErr: errors.New("db down")})
	if err := svc.Record(context.Background(), run("r1", accountA, time.Now(), true)); err == nil {
		t.Error("expected error")
	}
}

func TestMemoryRepositoryHistory(t *testing.T) {
	svc := NewService(NewMemoryRepository())
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	svc.Record(ctx, run("r1", accountA, base, true))
	svc.Record(ctx, run("r2", accountA, base.Add(time.Minute), false))
	svc.Record(ctx, run("r3", accountB, base.Add(2*time.Minute), true))
	svc.Record(ctx, run("r1", accountA, base.Add(time.Hour), false))

	history, err := svc.History(ctx, domain.NetworkTestnet, accountA, 10)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(history) != 2 || history[0].ID != "r2" || history[1].ID != "r1" {
		t.Errorf("history = %+v, want r2 then r1", history)
	}
	if !history[1].Success {
		t.Error("a duplicate id must not overwrite the first record")
	}

	limited, _ := svc.History(ctx, domain.NetworkTestnet, accountA, 1)
	if len(limited) != 1 {
		t.Errorf("limit not applied: %d", len(limited))
	}

	since, err := svc.Since(ctx, base.Add(30*time.Second), 0)
	if err != nil {
		t.Fatalf("Since: %v", err)
	}
	if len(since) != 2 || since[0].ID != "r2" || since[1].ID != "r3" {
		t.Errorf("since = %+v", since)
	}

	got, err := svc.Get(ctx, "r3")
	if err != nil || got.Account != accountB {
		t.Errorf("Get = %+v, %v", got, err)
	}
	if _, err := svc.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
}
