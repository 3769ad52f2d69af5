// Package analyze runs an external analysis command on committed uploads.
package analyze

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"sync"
	"time"

	"filecore/pkg/config"
	"filecore/pkg/log"
	"filecore/pkg/metrics"
)

// PathPlaceholder is replaced by the analysed file path in every argument.
const PathPlaceholder = "{path}"

const (
	// maxLoggedOutput bounds the command output copied into the log.
	maxLoggedOutput = 4096
	// waitDelay bounds how long output pipes are drained after the command
	// was killed on timeout.
	waitDelay = time.Second
)

// ErrDisabled is returned by Run when no command is configured.
var ErrDisabled = errors.New("analysis command not configured")

// Runner starts the configured command for files handed to it.
type Runner struct {
	command []string
	timeout time.Duration

	wg sync.WaitGroup
}

// New creates a Runner for cfg. A Runner with an empty command is valid and
// ignores every file.
func New(cfg config.AnalyzeConfig) *Runner {
	return &Runner{
		command: append([]string(nil), cfg.Command...),
		timeout: cfg.Timeout,
	}
}

// Enabled reports whether a command is configured.
func (r *Runner) Enabled() bool {
	return r != nil && len(r.command) > 0
}

// Args returns the argv used to analyse path.
func (r *Runner) Args(path string) []string {
	args := make([]string, len(r.command))
	for i, arg := range r.command {
		args[i] = strings.ReplaceAll(arg, PathPlaceholder, path)
	}
	return args
}

// Run analyses path and waits for the command to finish or time out.
func (r *Runner) Run(ctx context.Context, path string) error {
	if !r.Enabled() {
		return ErrDisabled
	}

	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	args := r.Args(path)
	//nolint:gosec // the command comes from trusted configuration
	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	cmd.WaitDelay = waitDelay

	start := time.Now()
	output, err := cmd.CombinedOutput()
	elapsed := time.Since(start)

	if err != nil {
		metrics.RecordAnalyze(metrics.ResultError)
		log.Error().
			Err(err).
			Str("path", path).
			Strs("command", args).
			Dur("elapsed", elapsed).
			Str("output", truncate(output)).
			Msg("Analysis failed")
		return fmt.Errorf("analyze %s: %w", path, err)
	}

	metrics.RecordAnalyze(metrics.ResultOK)
	log.Info().
		Str("path", path).
		Dur("elapsed", elapsed).
		Str("output", truncate(output)).
		Msg("Analysis finished")
	return nil
}

// Start analyses path in the background. Failures are only logged.
func (r *Runner) Start(path string) {
	if !r.Enabled() {
		log.Debug().Str("path", path).Msg("Analysis disabled, skipping")
		return
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		_ = r.Run(context.Background(), path)
	}()
}

// Wait blocks until every analysis started with Start has finished.
func (r *Runner) Wait() {
	if r == nil {
		return
	}
	r.wg.Wait()
}

func truncate(output []byte) string {
	s := strings.TrimSpace(string(output))
	if len(s) > maxLoggedOutput {
		return s[:maxLoggedOutput] + "..."
	}
	return s
}
