package cmd

import (
	"fmt"
	goruntime "runtime"
	"runtime/debug"

	"github.com/dotcommander/threadline/internal/storage"
)

// BuildInfo is injected by the build pipeline.
type BuildInfo struct {
	Version   string
	CommitSHA string
}

func (b BuildInfo) shortCommit() string {
	if len(b.CommitSHA) < storage.ShortLen {
		return ""
	}
	return b.CommitSHA[:storage.ShortLen]
}

// versionTemplate is the cobra version template: name, version, short
// commit when known, Go version and platform.
func versionTemplate(b BuildInfo) string {
	v := "{{.Name}} {{.Version}}"
	if c := b.shortCommit(); c != "" {
		v += " (" + c + ")"
	}
	return v + fmt.Sprintf(" %s %s/%s\n", goruntime.Version(), goruntime.GOOS, goruntime.GOARCH)
}

// normalizeBuildInfo fills missing fields from the module and VCS metadata
// the Go toolchain embeds in the binary.
func normalizeBuildInfo(b BuildInfo) BuildInfo {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		if b.Version == "" {
			b.Version = "unknown"
		}
		return b
	}
	return fillBuildInfo(b, info)
}

func fillBuildInfo(b BuildInfo, info *debug.BuildInfo) BuildInfo {
	vcs := map[string]string{}
	for _, s := range info.Settings {
		vcs[s.Key] = s.Value
	}

	if b.Version == "" && info.Main.Version != "" && info.Main.Version != "(devel)" {
		b.Version = info.Main.Version
	}
	if b.CommitSHA == "" {
		b.CommitSHA = vcs["vcs.revision"]
	}
	if b.Version != "" {
		return b
	}

	b.Version = "dev"
	if c := b.shortCommit(); c != "" {
		b.Version += "-" + c
	}
	if vcs["vcs.modified"] == "true" {
		b.Version += "-dirty"
	}
	return b
}
