package journal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mtlprog/kosh/internal/domain"
)

// Service records finished runs and serves run history.
type Service struct {
	repo Repository
}

// NewService creates a journal over repo.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Record stores a finished run. Runs without an id are rejected.
func (s *Service) Record(ctx context.Context, result domain.RunResult) error {
	if result.ID == "" {
		return errors.New("run result has no id")
	}
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshaling run %s: %w", result.ID, err)
	}
	if err := s.repo.Save(ctx, result, data); err != nil {
		return fmt.Errorf("saving run: %w", err)
	}
	slog.Debug("journal: run recorded", "run", result.ID, "flow", result.Flow, "success", result.Success)
	return nil
}

// Get returns one run by id.
func (s *Service) Get(ctx context.Context, id string) (domain.RunResult, error) {
	rec, err := s.repo.Get(ctx, id)
	if err != nil {
		return domain.RunResult{}, err
	}
	return rec.Result, nil
}

// History lists an account's runs, newest first.
func (s *Service) History(ctx context.Context, network domain.Network, account string, limit int) ([]domain.RunResult, error) {
	recs, err := s.repo.ListByAccount(ctx, network, account, limit)
	if err != nil {
		return nil, err
	}
	return results(recs), nil
}

// Since lists runs started at or after since, oldest first.
func (s *Service) Since(ctx context.Context, since time.Time, limit int) ([]domain.RunResult, error) {
	recs, err := s.repo.ListSince(ctx, since, limit)
	if err != nil {
		return nil, err
	}
	return results(recs), nil
}

func results(recs []Record) []domain.RunResult {
	out := make([]domain.RunResult, len(recs))
	for i, r := range recs {
		out[i] = r.Result
	}
	return out
}
