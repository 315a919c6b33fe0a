package report

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gocarina/gocsv"
	"github.com/olekukonko/tablewriter"

	"arbtest/internal/model"
)

// WriteSummary renders one row per requested task. Every task appears with
// an explicit status; nothing is silently omitted.
func WriteSummary(w io.Writer, results []model.BacktestResult) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Symbol", "Exchanges", "Status", "Feasible", "Total Net Profit", "Max Profit", "Notes"})
	for _, r := range results {
		table.Append([]string{
			r.Task.Symbol,
			r.Task.Pair(),
			string(r.Status),
			strconv.Itoa(r.Stats.FeasibleCount),
			r.Stats.TotalNetProfit.String(),
			r.Stats.MaxSingleProfit.String(),
			strings.Join(r.Warnings, "; "),
		})
	}
	table.Render()
}

// OpportunitiesFilename is the per-task export file name.
func OpportunitiesFilename(task model.Task) string {
	return fmt.Sprintf("%s_%s_opportunities.csv",
		strings.ReplaceAll(task.Symbol, "/", "_"), task.Pair())
}

// ExportOpportunities writes one CSV file per succeeded task under dir,
// preserving every opportunity field. Failed and cancelled tasks have no
// opportunities and are skipped here; they still appear in the summary.
func ExportOpportunities(dir string, results []model.BacktestResult) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create report dir: %w", err)
	}
	for _, r := range results {
		if r.Status != model.StatusSucceeded {
			continue
		}
		path := filepath.Join(dir, OpportunitiesFilename(r.Task))
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("create report file %s: %w", path, err)
		}
		if err := gocsv.MarshalFile(&r.Opportunities, f); err != nil {
			f.Close()
			return fmt.Errorf("write report file %s: %w", path, err)
		}
		if err := f.Close(); err != nil {
			return err
		}
	}
	return nil
}
