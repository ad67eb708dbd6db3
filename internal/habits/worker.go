package habits

import (
	"context"
	"log/slog"

	"github.com/riverqueue/river"
)

// LapseCheckArgs is the periodic job that detects missed days. Scheduled
// daily (and on start) from main.
type LapseCheckArgs struct{}

func (LapseCheckArgs) Kind() string { return "habit_lapse_check" }

type LapseWorker struct {
	river.WorkerDefaults[LapseCheckArgs]
	svc Service
	log *slog.Logger
}

func NewLapseWorker(svc Service, log *slog.Logger) *LapseWorker {
	if log == nil {
		log = slog.Default()
	}
	return &LapseWorker{svc: svc, log: log}
}

func (w *LapseWorker) Work(ctx context.Context, _ *river.Job[LapseCheckArgs]) error {
	reset, err := w.svc.ResetLapsed(ctx)
	if reset > 0 {
		w.log.Info("lapsed habits reset", "count", reset)
	}
	return err
}
