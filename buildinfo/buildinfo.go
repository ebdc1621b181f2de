// Package buildinfo carries version metadata injected at link time.
//
//	go build -ldflags "\
//	  -X github.com/imcf/nvsmi-prometheus-textfile/buildinfo.Version=$(git describe --tags) \
//	  -X github.com/imcf/nvsmi-prometheus-textfile/buildinfo.Commit=$(git rev-parse --short HEAD) \
//	  -X github.com/imcf/nvsmi-prometheus-textfile/buildinfo.Date=$(date -u +%Y-%m-%dT%H:%M:%SZ)"
package buildinfo

import "fmt"

var (
	Version string
	Commit  string
	Date    string
)

// Info returns the build metadata with N/A standing in for anything
// the build did not set, so callers never emit empty label values.
func Info() (version, commit, date string) {
	return orNA(Version), orNA(Commit), orNA(Date)
}

// VersionString is the single line printed for the -version flag.
func VersionString() string {
	version, commit, date := Info()
	return fmt.Sprintf("nvsmi-prometheus-textfile %s (commit %s, built %s)", version, commit, date)
}

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}
