package pricing

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// scorerResult mirrors the envelope the scorer prints on stdout.
type scorerResult struct {
	Success   bool            `json:"success"`
	Data      json.RawMessage `json:"data"`
	Error     string          `json:"error"`
	ErrorType string          `json:"error_type"`
}

// Runner invokes the external scoring process that regenerates the
// prediction and metrics files. The process is slow and occasionally
// wedges, so every run gets its own deadline and goes through the
// breaker; checkout traffic shares nothing with it.
type Runner struct {
	command []string
	timeout time.Duration
	breaker *Breaker
	advisor *FileAdvisor
	logger  *logrus.Logger
}

func NewRunner(command string, timeout time.Duration, advisor *FileAdvisor, logger *logrus.Logger) *Runner {
	return &Runner{
		command: strings.Fields(command),
		timeout: timeout,
		breaker: NewBreaker(3, 5*time.Minute, logger),
		advisor: advisor,
		logger:  logger,
	}
}

// Refresh runs the scorer to completion and reloads the advisor's data
// on success.
func (r *Runner) Refresh(ctx context.Context) error {
	if len(r.command) == 0 {
		return fmt.Errorf("no scorer command configured")
	}

	err := r.breaker.Execute(func() error {
		return r.run(ctx)
	})
	if err != nil {
		return err
	}

	r.advisor.Reload()
	return nil
}

func (r *Runner) run(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, r.command[0], r.command[1:]...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	runErr := cmd.Run()
	elapsed := time.Since(start)

	if ctx.Err() == context.DeadlineExceeded {
		r.logger.WithField("timeout", r.timeout).Error("Pricing scorer timed out")
		return fmt.Errorf("scorer timed out after %s", r.timeout)
	}
	if runErr != nil {
		// The scorer reports structured errors on stderr before a
		// non-zero exit.
		var result scorerResult
		if jsonErr := json.Unmarshal(stderr.Bytes(), &result); jsonErr == nil && result.Error != "" {
			return fmt.Errorf("scorer failed (%s): %s", result.ErrorType, result.Error)
		}
		return fmt.Errorf("scorer failed: %w", runErr)
	}

	var result scorerResult
	if err := json.Unmarshal(stdout.Bytes(), &result); err != nil {
		return fmt.Errorf("scorer returned malformed output: %w", err)
	}
	if !result.Success {
		return fmt.Errorf("scorer reported failure: %s", result.Error)
	}

	r.logger.WithFields(logrus.Fields{
		"elapsed": elapsed.String(),
	}).Info("Pricing scorer run completed")
	return nil
}
