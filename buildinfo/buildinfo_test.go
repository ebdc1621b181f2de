package buildinfo

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVersionString(t *testing.T) {
	ov, oc, od := Version, Commit, Date
	t.Cleanup(func() { Version, Commit, Date = ov, oc, od })

	Version, Commit, Date = "", "", ""
	assert.Equal(t, "nvsmi-prometheus-textfile N/A (commit N/A, built N/A)", VersionString())

	Version, Commit, Date = "v1.2.0", "deadbeef", "2026-08-24T10:00:00Z"
	assert.Equal(t, "nvsmi-prometheus-textfile v1.2.0 (commit deadbeef, built 2026-08-24T10:00:00Z)", VersionString())
}

func TestInfo(t *testing.T) {
	ov, oc, od := Version, Commit, Date
	t.Cleanup(func() { Version, Commit, Date = ov, oc, od })

	Version, Commit, Date = "v1.2.0", "", ""
	version, commit, date := Info()
	assert.Equal(t, "v1.2.0", version)
	assert.Equal(t, "N/A", commit)
	assert.Equal(t, "N/A", date)
}
