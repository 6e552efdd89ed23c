package master

import (
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/HdrHistogram/hdrhistogram-go"
	"github.com/bytedance/sonic"

	"yqhp/kambo-hive/pkg/types"
)

// processing times above one hour are clamped into the last bucket
const maxTrackedProcessingMs = int64(3600 * 1000)

// ProgressView is the read-only queue view needed to build a report.
type ProgressView interface {
	Progress() types.Progress
}

// BuildReport combines the aggregate with the queue counters.
func (a *ResultAggregator) BuildReport(view ProgressView) *types.Report {
	snap := a.Snapshot()
	progress := view.Progress()

	summary := make(map[string]*types.GraphSummary, len(snap.ResultsByGraph))
	for graphID, results := range snap.ResultsByGraph {
		summary[graphID] = summarize(results)
	}

	return &types.Report{
		GeneratedAt:           snap.TakenAt,
		TotalTasks:            progress.TotalTasks,
		CompletedTasks:        progress.CompletedTasks,
		FailedTasks:           progress.FailedTasks,
		TotalResultsCollected: snap.TotalResultsCollected,
		Summary:               summary,
		ResultsByGraph:        snap.ResultsByGraph,
	}
}

// GenerateReport builds the final report and writes it to destination.
// The report is returned even when writing fails.
func (a *ResultAggregator) GenerateReport(view ProgressView, destination string) (*types.Report, error) {
	report := a.BuildReport(view)
	if err := writeJSONFile(destination, report); err != nil {
		return report, fmt.Errorf("write report %s: %w", destination, err)
	}
	return report, nil
}

func summarize(results []*types.TaskResult) *types.GraphSummary {
	s := &types.GraphSummary{Runs: len(results)}
	if len(results) == 0 {
		return s
	}

	hist := hdrhistogram.New(0, maxTrackedProcessingMs, 3)
	lo, hi, sum := math.Inf(1), math.Inf(-1), 0.0
	for _, r := range results {
		lo = math.Min(lo, r.Fitness)
		hi = math.Max(hi, r.Fitness)
		sum += r.Fitness

		ms := int64(r.ProcessingTimeMs)
		if ms > maxTrackedProcessingMs || ms < 0 {
			ms = maxTrackedProcessingMs
		}
		_ = hist.RecordValue(ms)
	}

	s.MinFitness = lo
	s.MaxFitness = hi
	s.MeanFitness = sum / float64(len(results))
	s.ProcessingP50Ms = hist.ValueAtQuantile(50)
	s.ProcessingP95Ms = hist.ValueAtQuantile(95)
	s.ProcessingMaxMs = hist.Max()
	return s
}

// writeJSONFile writes v as indented JSON through a temp file and rename, so
// readers never observe a partial document.
func writeJSONFile(path string, v any) error {
	data, err := sonic.ConfigStd.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
