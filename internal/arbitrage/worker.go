package arbitrage

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"arbtest/internal/model"
	"arbtest/internal/stream"
)

// Worker runs one (exchangeA, exchangeB, symbol) backtest end to end. It is
// a pure function of its inputs: streams are opened fresh per run and no
// state is shared with other workers.
type Worker struct {
	logger    *slog.Logger
	source    stream.Source
	calc      *Calculator
	staleness time.Duration
}

// NewWorker creates a worker reading trade data from source.
func NewWorker(logger *slog.Logger, source stream.Source, calc *Calculator, staleness time.Duration) *Worker {
	return &Worker{logger: logger, source: source, calc: calc, staleness: staleness}
}

// Run executes one task and always returns a result: succeeded with the
// feasible opportunities in timeline order, failed with the error recorded,
// or cancelled with partial output discarded. Stream and aligner errors stop
// at this boundary; they never propagate to sibling tasks.
func (w *Worker) Run(ctx context.Context, task model.Task, schedA, schedB model.FeeSchedule) model.BacktestResult {
	res := model.BacktestResult{Task: task, Status: model.StatusSucceeded}

	streamA, err := w.source.Open(ctx, task.ExchangeA, task.Symbol)
	if err != nil {
		return w.terminal(ctx, task, err)
	}
	streamB, err := w.source.Open(ctx, task.ExchangeB, task.Symbol)
	if err != nil {
		return w.terminal(ctx, task, err)
	}

	aligner := NewAligner(task.ExchangeA, task.ExchangeB, task.Symbol, streamA, streamB, w.staleness)

	events := 0
	for {
		ev, err := aligner.Next(ctx)
		if errors.Is(err, stream.ErrEndOfStream) {
			break
		}
		if err != nil {
			return w.terminal(ctx, task, err)
		}
		events++
		if ev.Stale {
			continue
		}
		for _, op := range w.calc.Evaluate(ev, schedA, schedB) {
			if !op.Feasible {
				continue
			}
			res.Opportunities = append(res.Opportunities, op)
			res.Stats.FeasibleCount++
			res.Stats.TotalNetProfit = res.Stats.TotalNetProfit.Add(op.NetProfit)
			if op.NetProfit.GreaterThan(res.Stats.MaxSingleProfit) {
				res.Stats.MaxSingleProfit = op.NetProfit
			}
		}
	}

	if events == 0 {
		res.Warnings = append(res.Warnings, "streams never overlapped; no events evaluated")
	}

	w.logger.Info("task finished",
		"task", task.String(),
		"events", events,
		"feasible", res.Stats.FeasibleCount,
		"totalNetProfit", res.Stats.TotalNetProfit,
	)
	return res
}

// terminal converts an error into the task's final result. Cancellation is
// reported as cancelled, not failed, and partial output is discarded either
// way.
func (w *Worker) terminal(ctx context.Context, task model.Task, err error) model.BacktestResult {
	if ctx.Err() != nil {
		w.logger.Info("task cancelled", "task", task.String())
		return model.BacktestResult{Task: task, Status: model.StatusCancelled, Err: ctx.Err()}
	}
	w.logger.Error("task failed", "task", task.String(), "error", err)
	return model.BacktestResult{
		Task:     task,
		Status:   model.StatusFailed,
		Err:      err,
		Warnings: []string{err.Error()},
	}
}
