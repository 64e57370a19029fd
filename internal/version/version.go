// Package version carries build metadata stamped in at link time:
//
//	go build -ldflags "-X mirrorstore/internal/version.Version=v0.3.0 -X mirrorstore/internal/version.Commit=abcd123 -X mirrorstore/internal/version.BuildDate=2026-10-01" ./cmd/...
package version

import (
	"runtime"
	"strings"
)

var (
	Version   = "v0.3.0"
	Commit    = ""
	BuildDate = ""
)

type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit,omitempty"`
	BuildDate string `json:"build_date,omitempty"`
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`
}

func Get() Info {
	return Info{
		Version:   Version,
		Commit:    Commit,
		BuildDate: BuildDate,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
}

// Short is the bare version, "dev" when unset.
func (i Info) Short() string {
	if i.Version == "" {
		return "dev"
	}
	return i.Version
}

// String is the line printed by -version, e.g.
// "v0.3.0 (abcd123) built 2026-10-01 [go1.22.5 linux/amd64]".
func (i Info) String() string {
	var b strings.Builder
	b.WriteString(i.Short())
	if i.Commit != "" {
		b.WriteString(" (" + i.Commit + ")")
	}
	if i.BuildDate != "" {
		b.WriteString(" built " + i.BuildDate)
	}
	b.WriteString(" [" + i.GoVersion + " " + i.Platform + "]")
	return b.String()
}
