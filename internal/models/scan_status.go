package models

import (
	"fmt"
)

// ScanStatus is the lifecycle state of a repository. The string values are
// consumed literally by polling clients.
type ScanStatus string

const (
	StatusPending            ScanStatus = "PENDING"
	StatusCloning            ScanStatus = "CLONING"
	StatusUploadingToFTP     ScanStatus = "UPLOADING_TO_FTP"
	StatusScanningNamespaces ScanStatus = "SCANNING_NAMESPACES"
	StatusParsingFiles       ScanStatus = "PARSING_FILES"
	StatusGeneratingGraph    ScanStatus = "GENERATING_GRAPH"
	StatusIndexing           ScanStatus = "INDEXING"
	StatusScanning           ScanStatus = "SCANNING"
	StatusCompleted          ScanStatus = "COMPLETED"
	StatusFailed             ScanStatus = "FAILED"
)

// PipelineOrder is the fixed order a run moves through.
var PipelineOrder = []ScanStatus{
	StatusCloning,
	StatusUploadingToFTP,
	StatusScanningNamespaces,
	StatusParsingFiles,
	StatusGeneratingGraph,
	StatusIndexing,
	StatusCompleted,
}

var stepLabels = map[ScanStatus]string{
	StatusPending:            "Waiting to start",
	StatusCloning:            "Cloning repository",
	StatusUploadingToFTP:     "Uploading to storage",
	StatusScanningNamespaces: "Scanning namespaces",
	StatusParsingFiles:       "Parsing files",
	StatusGeneratingGraph:    "Generating graph",
	StatusIndexing:           "Indexing",
	StatusScanning:           "Scanning",
	StatusCompleted:          "Completed",
	StatusFailed:             "Failed",
}

// ParseScanStatus validates a raw status string.
func ParseScanStatus(s string) (ScanStatus, error) {
	status := ScanStatus(s)
	if _, ok := stepLabels[status]; !ok {
		return "", fmt.Errorf("unknown scan status %q", s)
	}
	return status, nil
}

// Label returns the human readable step name for the status.
func (s ScanStatus) Label() string {
	if l, ok := stepLabels[s]; ok {
		return l
	}
	return string(s)
}

// IsTerminal reports whether no run is expected to move the status further.
func (s ScanStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// IsActive reports whether the status belongs to an in-flight run.
func (s ScanStatus) IsActive() bool {
	switch s {
	case StatusPending, StatusCompleted, StatusFailed:
		return false
	}
	return true
}

// IsStage reports whether the status is an executable pipeline stage.
func (s ScanStatus) IsStage() bool {
	return s.position() >= 0 && s != StatusCompleted
}

func (s ScanStatus) position() int {
	for i, st := range PipelineOrder {
		if st == s {
			return i
		}
	}
	return -1
}

// StagesFrom returns the executable stages of a run that enters at entry.
func StagesFrom(entry ScanStatus) ([]ScanStatus, error) {
	if !entry.IsStage() {
		return nil, fmt.Errorf("%s is not a pipeline stage", entry)
	}
	pos := entry.position()
	stages := make([]ScanStatus, 0, len(PipelineOrder)-pos-1)
	for _, st := range PipelineOrder[pos:] {
		if st == StatusCompleted {
			break
		}
		stages = append(stages, st)
	}
	return stages, nil
}

// Transition is the single authority on which status edges are legal.
//
// A new run may start from any resting state (PENDING, COMPLETED, FAILED).
// Inside a run the status only moves forward along PipelineOrder, and any
// non-terminal status may fail. FAILED may be reset to PENDING.
func Transition(from, to ScanStatus) error {
	switch {
	case to == StatusFailed:
		if from == StatusFailed {
			return fmt.Errorf("invalid transition %s -> %s", from, to)
		}
		if from == StatusCompleted {
			return fmt.Errorf("invalid transition %s -> %s: run already completed", from, to)
		}
		return nil
	case to == StatusPending:
		if from != StatusFailed {
			return fmt.Errorf("invalid transition %s -> %s", from, to)
		}
		return nil
	case !from.IsActive():
		if !to.IsStage() {
			return fmt.Errorf("invalid transition %s -> %s: runs must enter at a stage", from, to)
		}
		return nil
	}

	fromPos, toPos := from.position(), to.position()
	if fromPos < 0 || toPos < 0 || toPos <= fromPos {
		return fmt.Errorf("invalid transition %s -> %s", from, to)
	}
	return nil
}
