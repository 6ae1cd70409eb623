package executor

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/Kamar-Folarin/repo-ingest/internal/models"
	"github.com/Kamar-Folarin/repo-ingest/internal/pipeline"
)

var gitProgressPattern = regexp.MustCompile(`^(?:remote: )?(Counting objects|Compressing objects|Receiving objects|Resolving deltas|Updating files):\s+(\d+)%`)

// Phase weights of a clone, as start and end of the stage-relative range.
var clonePhases = map[string][2]int{
	"Counting objects":    {0, 5},
	"Compressing objects": {5, 10},
	"Receiving objects":   {10, 80},
	"Resolving deltas":    {80, 95},
	"Updating files":      {95, 100},
}

// CloneExecutor checks repositories out with the git CLI. Local uploads are
// verified in place instead.
type CloneExecutor struct {
	gitBinary string
	logger    *logrus.Logger
}

// NewCloneExecutor creates a clone stage executor
func NewCloneExecutor(logger *logrus.Logger) *CloneExecutor {
	return &CloneExecutor{gitBinary: "git", logger: logger}
}

func (e *CloneExecutor) Execute(ctx context.Context, target pipeline.Target, report pipeline.ProgressFunc) error {
	if strings.HasPrefix(target.GitURL, models.LocalUploadScheme) {
		return e.verifyUpload(target, report)
	}

	if err := os.RemoveAll(target.SourceDir); err != nil {
		return fmt.Errorf("failed to clear work directory: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(target.SourceDir), 0o755); err != nil {
		return fmt.Errorf("failed to create work directory: %w", err)
	}

	args := []string{"clone", "--progress", "--depth", "1"}
	if target.DefaultBranch != "" {
		args = append(args, "--branch", target.DefaultBranch)
	}
	args = append(args, target.GitURL, target.SourceDir)

	logger := e.logger.WithFields(logrus.Fields{
		"repository_id": target.RepositoryID,
		"run_id":        target.RunID,
	})
	logger.WithField("branch", target.DefaultBranch).Info("Cloning repository")

	cmd := exec.CommandContext(ctx, e.gitBinary, args...)
	cmd.Env = append(os.Environ(), "GIT_TERMINAL_PROMPT=0")
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("git clone: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("git clone %s: %w", target.GitURL, err)
	}

	last := e.streamProgress(stderr, report)
	if err := cmd.Wait(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("git clone %s: %w: %s", target.GitURL, err, last)
	}

	files, err := countFiles(target.SourceDir)
	if err != nil {
		return err
	}
	report(pipeline.Report{
		Percent: 100,
		Message: "clone finished",
		Detail:  models.Details{"files": files, "branch": target.DefaultBranch},
	})
	logger.WithField("files", files).Info("Clone finished")
	return nil
}

// streamProgress forwards git's progress lines and returns the last line seen.
func (e *CloneExecutor) streamProgress(r io.Reader, report pipeline.ProgressFunc) string {
	scanner := bufio.NewScanner(r)
	scanner.Split(scanProgressLines)
	last := ""
	lastPercent := -1
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		last = line
		phase, percent, ok := parseGitProgress(line)
		if !ok || percent == lastPercent {
			continue
		}
		lastPercent = percent
		report(pipeline.Report{Percent: percent, Message: phase})
	}
	return last
}

// parseGitProgress maps a git progress line to a clone-relative percentage.
func parseGitProgress(line string) (string, int, bool) {
	m := gitProgressPattern.FindStringSubmatch(line)
	if m == nil {
		return "", 0, false
	}
	pct, err := strconv.Atoi(m[2])
	if err != nil {
		return "", 0, false
	}
	span := clonePhases[m[1]]
	return m[1], span[0] + (span[1]-span[0])*pct/100, true
}

// scanProgressLines splits on both \n and \r, since git redraws progress in place.
func scanProgressLines(data []byte, atEOF bool) (int, []byte, error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		return i + 1, data[:i], nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}

func (e *CloneExecutor) verifyUpload(target pipeline.Target, report pipeline.ProgressFunc) error {
	info, err := os.Stat(target.SourceDir)
	if err != nil {
		return fmt.Errorf("upload %s not found: %w", strings.TrimPrefix(target.GitURL, models.LocalUploadScheme), err)
	}
	if !info.IsDir() {
		return fmt.Errorf("upload %s is not a directory", target.SourceDir)
	}

	files, err := countFiles(target.SourceDir)
	if err != nil {
		return err
	}
	if files == 0 {
		return fmt.Errorf("upload %s is empty", target.SourceDir)
	}
	report(pipeline.Report{
		Percent: 100,
		Message: "upload verified",
		Detail:  models.Details{"files": files, "source": "upload"},
	})
	return nil
}

// sourceFiles lists regular files under root, skipping .git.
func sourceFiles(root string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() && d.Name() == ".git" {
			return filepath.SkipDir
		}
		if d.Type().IsRegular() {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk %s: %w", root, err)
	}
	return files, nil
}

func countFiles(root string) (int, error) {
	files, err := sourceFiles(root)
	return len(files), err
}
