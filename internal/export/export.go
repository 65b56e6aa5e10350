package export

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/mtlprog/kosh/internal/domain"
)

// maxExportRows bounds one export; Sheets rejects very large value ranges.
const maxExportRows = 5000

// HistorySource lists journaled runs oldest first.
type HistorySource interface {
	Since(ctx context.Context, since time.Time, limit int) ([]domain.RunResult, error)
}

// SheetWriter writes run history to a spreadsheet destination.
type SheetWriter interface {
	Write(ctx context.Context, runs []domain.RunResult, at time.Time) error
}

// Service exports the recent run history through a SheetWriter.
type Service struct {
	history HistorySource
	writer  SheetWriter
	window  time.Duration
	now     func() time.Time
}

// NewService creates an export Service covering runs started within window.
func NewService(history HistorySource, writer SheetWriter, window time.Duration) *Service {
	return &Service{
		history: history,
		writer:  writer,
		window:  window,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Recent returns the runs inside the export window.
func (s *Service) Recent(ctx context.Context) ([]domain.RunResult, error) {
	runs, err := s.history.Since(ctx, s.now().Add(-s.window), maxExportRows)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	return runs, nil
}

// Export writes the runs inside the window. Implements worker.Exporter.
func (s *Service) Export(ctx context.Context) error {
	runs, err := s.Recent(ctx)
	if err != nil {
		return err
	}
	if err := s.writer.Write(ctx, runs, s.now()); err != nil {
		return fmt.Errorf("writing runs: %w", err)
	}
	slog.Info("export: runs written", "count", len(runs))
	return nil
}

// runColumn describes one column of the RUNS sheet.
type runColumn struct {
	header string
	value  func(r domain.RunResult) any
}

var runColumns = []runColumn{
	{"Started", func(r domain.RunResult) any { return r.StartedAt.UTC().Format(time.DateTime) }},
	{"Run", func(r domain.RunResult) any { return r.ID }},
	{"Flow", func(r domain.RunResult) any { return string(r.Flow) }},
	{"Network", func(r domain.RunResult) any { return string(r.Network) }},
	{"Account", func(r domain.RunResult) any { return r.Account }},
	{"Outcome", func(r domain.RunResult) any { return outcome(r) }},
	{"Stage", func(r domain.RunResult) any { return string(lastStage(r)) }},
	{"Hash", func(r domain.RunResult) any { return r.Hash }},
	{"Message", func(r domain.RunResult) any { return r.Message }},
	{"Result codes", func(r domain.RunResult) any {
		if r.Error == nil {
			return ""
		}
		return r.Error.ResultCodes.String()
	}},
	{"Seconds", func(r domain.RunResult) any {
		if r.FinishedAt.IsZero() {
			return nil
		}
		return r.FinishedAt.Sub(r.StartedAt).Seconds()
	}},
}

// buildRunRows builds the header row followed by one row per run.
func buildRunRows(runs []domain.RunResult) [][]any {
	data := make([][]any, 0, len(runs)+1)

	header := make([]any, len(runColumns))
	for i, col := range runColumns {
		header[i] = col.header
	}
	data = append(data, header)

	for _, r := range runs {
		row := make([]any, len(runColumns))
		for i, col := range runColumns {
			row[i] = col.value(r)
		}
		data = append(data, row)
	}
	return data
}

func outcome(r domain.RunResult) string {
	switch {
	case r.AlreadyTrusted:
		return "already trusted"
	case r.Success:
		return "succeeded"
	case r.Error != nil:
		return string(r.Error.Kind)
	default:
		return "failed"
	}
}

// lastStage is the stage a failed run stopped at, or the terminal stage otherwise.
func lastStage(r domain.RunResult) domain.Stage {
	if r.FailedAt != "" {
		return r.FailedAt
	}
	return r.Stage
}
