package arbitrage

import (
	"context"
	"log/slog"
	"runtime"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"arbtest/internal/model"
)

// ScheduleSource resolves the immutable fee schedule for one
// (exchange, asset). A missing schedule is a configuration error that fails
// only the tasks depending on it. Implementations that fetch remotely must
// honor the context.
type ScheduleSource interface {
	ScheduleFor(ctx context.Context, exchange, asset string) (model.FeeSchedule, error)
}

// Scheduler fans backtest tasks out across a bounded worker pool and
// aggregates their results deterministically.
type Scheduler struct {
	logger    *slog.Logger
	worker    *Worker
	schedules ScheduleSource
	poolSize  int
}

// NewScheduler creates a scheduler running at most poolSize tasks in
// parallel.
func NewScheduler(logger *slog.Logger, worker *Worker, schedules ScheduleSource, poolSize int) *Scheduler {
	return &Scheduler{logger: logger, worker: worker, schedules: schedules, poolSize: poolSize}
}

// Run executes every task and returns one result per requested task, sorted
// by symbol then exchange pair regardless of completion order. One task's
// failure never prevents the others from completing; cancellation via ctx
// stops in-flight tasks at their next checkpoint and reports them cancelled.
func (s *Scheduler) Run(ctx context.Context, tasks []model.Task) []model.BacktestResult {
	limit := s.poolSize
	if len(tasks) < limit {
		limit = len(tasks)
	}
	if procs := runtime.GOMAXPROCS(0); procs < limit {
		limit = procs
	}
	if limit < 1 {
		limit = 1
	}
	s.logger.Info("starting backtest", "tasks", len(tasks), "pool", limit)

	// Each task owns one result slot, so no merge lock is needed; the slice
	// is only read after Wait returns.
	results := make([]model.BacktestResult, len(tasks))
	g := new(errgroup.Group)
	g.SetLimit(limit)

	for i, task := range tasks {
		i, task := i, task
		g.Go(func() error {
			results[i] = s.runOne(ctx, task)
			return nil
		})
	}
	g.Wait()

	SortResults(results)
	succeeded, failed, cancelled := Summarize(results)
	s.logger.Info("backtest complete", "succeeded", succeeded, "failed", failed, "cancelled", cancelled)
	return results
}

func (s *Scheduler) runOne(ctx context.Context, task model.Task) model.BacktestResult {
	if ctx.Err() != nil {
		return model.BacktestResult{Task: task, Status: model.StatusCancelled, Err: ctx.Err()}
	}

	asset, err := baseAsset(task.Symbol)
	if err != nil {
		return s.configFailure(task, err)
	}
	schedA, err := s.schedules.ScheduleFor(ctx, task.ExchangeA, asset)
	if err != nil {
		return s.configFailure(task, err)
	}
	schedB, err := s.schedules.ScheduleFor(ctx, task.ExchangeB, asset)
	if err != nil {
		return s.configFailure(task, err)
	}

	return s.worker.Run(ctx, task, schedA, schedB)
}

func (s *Scheduler) configFailure(task model.Task, err error) model.BacktestResult {
	s.logger.Error("task misconfigured", "task", task.String(), "error", err)
	return model.BacktestResult{
		Task:     task,
		Status:   model.StatusFailed,
		Err:      err,
		Warnings: []string{err.Error()},
	}
}

// baseAsset extracts the base asset from a BASE/QUOTE symbol; the base is
// what gets withdrawn from the buy exchange.
func baseAsset(symbol string) (string, error) {
	base, _, ok := strings.Cut(symbol, "/")
	if !ok || base == "" {
		return "", &model.ConfigurationError{Detail: "symbol must be BASE/QUOTE: " + symbol}
	}
	return base, nil
}

// SortResults orders results by symbol, then exchange pair. The order is the
// stable sort key of the final report.
func SortResults(results []model.BacktestResult) {
	sort.Slice(results, func(i, j int) bool {
		if results[i].Task.Symbol != results[j].Task.Symbol {
			return results[i].Task.Symbol < results[j].Task.Symbol
		}
		return results[i].Task.Pair() < results[j].Task.Pair()
	})
}

// Summarize counts results by terminal status.
func Summarize(results []model.BacktestResult) (succeeded, failed, cancelled int) {
	for _, r := range results {
		switch r.Status {
		case model.StatusSucceeded:
			succeeded++
		case model.StatusFailed:
			failed++
		case model.StatusCancelled:
			cancelled++
		}
	}
	return
}
