// Package smi invokes the nvidia-smi binary and splits its CSV output
// into raw field rows for the collector.
package smi

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"
)

// DefaultCommand is used when no command is configured.
const DefaultCommand = "nvidia-smi"

// ErrNoFields is returned when a query is attempted with an empty field
// list, which would make nvidia-smi print its human readable summary
// instead of CSV.
var ErrNoFields = errors.New("query field list is empty")

// Runner executes one query invocation of the diagnostic tool. The
// command may carry leading wrapper words ("sudo nvidia-smi"); the
// query flags are appended to it.
type Runner struct {
	command string
	timeout time.Duration
	logger  *slog.Logger
}

func NewRunner(command string, timeout time.Duration, logger *slog.Logger) *Runner {
	if command == "" {
		command = DefaultCommand
	}
	return &Runner{
		command: command,
		timeout: timeout,
		logger:  logger,
	}
}

// Query runs the tool with --query-gpu for the given fields and returns
// the parsed rows, one per output line. The header line nvidia-smi
// prints first is passed through untouched; discarding it is the
// collector's call.
func (r *Runner) Query(ctx context.Context, fields []string) ([][]string, error) {
	if len(fields) == 0 {
		return nil, ErrNoFields
	}
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	parts := strings.Fields(r.command)
	if len(parts) == 0 {
		return nil, errors.New("no command configured")
	}
	binary, err := exec.LookPath(parts[0])
	if err != nil {
		return nil, fmt.Errorf("locating %s: %w", parts[0], err)
	}
	args := append(parts[1:], "--query-gpu="+strings.Join(fields, ","), "--format=csv")

	cmd := exec.CommandContext(ctx, binary, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	runErr := cmd.Run()
	elapsed := time.Since(start)
	if runErr != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%s timed out after %s: %w", parts[0], elapsed.Round(time.Millisecond), ctx.Err())
		}
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%s interrupted: %w", parts[0], ctx.Err())
		}
		return nil, fmt.Errorf("running %s: %w%s", parts[0], runErr, diagnostic(stderr.Bytes(), stdout.Bytes()))
	}
	r.logger.Debug("query finished",
		slog.String("command", parts[0]),
		slog.Duration("duration", elapsed),
		slog.Int("output_bytes", stdout.Len()))

	return ParseOutput(stdout.Bytes())
}

// ParseOutput splits raw CSV output into rows of fields. Field counts
// are not validated here; the collector checks alignment against its
// registry and owns the error.
func ParseOutput(data []byte) ([][]string, error) {
	reader := csv.NewReader(bytes.NewReader(data))
	reader.FieldsPerRecord = -1
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parsing CSV output: %w", err)
	}
	return rows, nil
}

// diagnostic extracts the first meaningful line the tool printed, so a
// failure log tells the operator what nvidia-smi complained about.
// Driver errors land on stdout, loader problems on stderr.
func diagnostic(stderr, stdout []byte) string {
	for _, out := range [][]byte{stderr, stdout} {
		for _, line := range strings.Split(string(out), "\n") {
			if line = strings.TrimSpace(line); line != "" {
				return ": " + line
			}
		}
	}
	return ""
}
