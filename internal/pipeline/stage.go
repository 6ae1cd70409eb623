package pipeline

import (
	"context"

	"github.com/Kamar-Folarin/repo-ingest/internal/config"
	"github.com/Kamar-Folarin/repo-ingest/internal/models"
)

// Mode selects where a run enters the pipeline.
type Mode string

const (
	// ModeImport runs every stage, starting with the clone.
	ModeImport Mode = "import"
	// ModeResync re-runs the pipeline from the namespace scan.
	ModeResync Mode = "resync"
)

// EntryStage returns the first stage a run in this mode executes.
func (m Mode) EntryStage() models.ScanStatus {
	if m == ModeResync {
		return models.StatusScanningNamespaces
	}
	return models.StatusCloning
}

// Target is what a stage executor works on.
type Target struct {
	RunID         string
	RepositoryID  string
	NamespaceIDs  []string
	GitURL        string
	DefaultBranch string
	// SourceDir is the local checkout or staged upload.
	SourceDir string
	// ObjectPrefix is where the source lives in object storage.
	ObjectPrefix string
}

// Report is a progress increment from an executor. Percent is relative to
// the stage, 0-100. A Heartbeat report only proves the stage is alive: it
// resets the inactivity timeout and carries no progress.
type Report struct {
	Percent   int
	Message   string
	Detail    models.Details
	Heartbeat bool
}

// ProgressFunc receives reports from an executor. It never blocks once the
// stage context is done.
type ProgressFunc func(Report)

// StageExecutor performs one pipeline stage.
type StageExecutor interface {
	Execute(ctx context.Context, target Target, report ProgressFunc) error
}

// ExecutorFunc adapts a function to StageExecutor.
type ExecutorFunc func(ctx context.Context, target Target, report ProgressFunc) error

func (f ExecutorFunc) Execute(ctx context.Context, target Target, report ProgressFunc) error {
	return f(ctx, target, report)
}

// Executors maps each stage to its executor.
type Executors map[models.ScanStatus]StageExecutor

type progressRange struct {
	lo, hi int
}

// scale maps a stage-relative percentage into the stage's overall range.
func (r progressRange) scale(percent int) int {
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	return r.lo + (r.hi-r.lo)*percent/100
}

// stageRanges splits [0,100] into contiguous ranges weighted by stage.
func stageRanges(stages []models.ScanStatus, cfg *config.PipelineConfig) map[models.ScanStatus]progressRange {
	total := 0
	for _, st := range stages {
		total += cfg.WeightFor(string(st))
	}

	ranges := make(map[models.ScanStatus]progressRange, len(stages))
	cum := 0
	for _, st := range stages {
		lo := cum * 100 / total
		cum += cfg.WeightFor(string(st))
		ranges[st] = progressRange{lo: lo, hi: cum * 100 / total}
	}
	return ranges
}
