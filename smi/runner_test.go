package smi

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// writeFakeSMI drops an executable shell script standing in for the
// real binary.
func writeFakeSMI(t *testing.T, script string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake nvidia-smi scripts need a shell")
	}
	path := filepath.Join(t.TempDir(), "fake-nvidia-smi")
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))
	return path
}

func TestRunnerQuery(t *testing.T) {
	command := writeFakeSMI(t, `#!/bin/sh
if [ "$1" != "--query-gpu=driver_version,gpu_name" ] || [ "$2" != "--format=csv" ]; then
  echo "unexpected arguments: $*" >&2
  exit 2
fi
echo "driver_version, name"
echo "440.100, Tesla M10"
`)

	r := NewRunner(command, time.Second, testLogger())
	rows, err := r.Query(context.Background(), []string{"driver_version", "gpu_name"})
	require.NoError(t, err)

	want := [][]string{
		{"driver_version", " name"},
		{"440.100", " Tesla M10"},
	}
	if diff := cmp.Diff(want, rows); diff != "" {
		t.Errorf("rows mismatch (-want +got):\n%s", diff)
	}
}

func TestRunnerQueryToolFailure(t *testing.T) {
	command := writeFakeSMI(t, `#!/bin/sh
echo "NVIDIA-SMI has failed because it couldn't communicate with the NVIDIA driver." >&2
exit 6
`)

	r := NewRunner(command, time.Second, testLogger())
	_, err := r.Query(context.Background(), []string{"driver_version"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exit status 6")
	assert.Contains(t, err.Error(), "couldn't communicate with the NVIDIA driver")
}

func TestRunnerQueryTimeout(t *testing.T) {
	command := writeFakeSMI(t, `#!/bin/sh
sleep 5
`)

	r := NewRunner(command, 50*time.Millisecond, testLogger())
	_, err := r.Query(context.Background(), []string{"driver_version"})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Contains(t, err.Error(), "timed out")
}

func TestRunnerQueryMissingBinary(t *testing.T) {
	r := NewRunner("definitely-not-installed-anywhere", time.Second, testLogger())
	_, err := r.Query(context.Background(), []string{"driver_version"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "locating definitely-not-installed-anywhere")
}

func TestRunnerQueryNoFields(t *testing.T) {
	r := NewRunner("", time.Second, testLogger())
	_, err := r.Query(context.Background(), nil)
	assert.ErrorIs(t, err, ErrNoFields)
}

func TestRunnerQueryNoCommand(t *testing.T) {
	r := NewRunner("   ", time.Second, testLogger())
	_, err := r.Query(context.Background(), []string{"driver_version"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no command configured")
}

func TestParseOutput(t *testing.T) {
	rows, err := ParseOutput([]byte("driver_version, name\n\n440.100, Tesla M10\nshort row\n"))
	require.NoError(t, err)

	want := [][]string{
		{"driver_version", " name"},
		{"440.100", " Tesla M10"},
		{"short row"},
	}
	if diff := cmp.Diff(want, rows); diff != "" {
		t.Errorf("rows mismatch (-want +got):\n%s", diff)
	}
}

func TestParseOutputBadQuoting(t *testing.T) {
	_, err := ParseOutput([]byte("\"unterminated\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parsing CSV output")
}
