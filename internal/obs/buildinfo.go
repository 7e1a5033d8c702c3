package obs

import (
	"runtime/debug"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	buildInfoOnce sync.Once

	buildInfo = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "permaudit_build_info",
			Help: "Permission auditor build information.",
		},
		[]string{"version", "commit", "goversion"},
	)
)

// Build identifies the running binary.
type Build struct {
	Version   string
	Commit    string
	GoVersion string
	Modified  bool
}

// ResolveBuild fills in what ldflags left at their defaults from the
// module and VCS metadata the toolchain stamps into the binary.
func ResolveBuild(version, commit string) Build {
	bi, _ := debug.ReadBuildInfo()
	return resolveBuild(version, commit, bi)
}

func resolveBuild(version, commit string, bi *debug.BuildInfo) Build {
	b := Build{Version: version, Commit: commit}
	if bi == nil {
		return b
	}
	b.GoVersion = bi.GoVersion
	if b.Version == "" && bi.Main.Version != "" && bi.Main.Version != "(devel)" {
		b.Version = bi.Main.Version
	}
	if b.Commit == "" || b.Commit == "dev" {
		for _, s := range bi.Settings {
			switch s.Key {
			case "vcs.revision":
				b.Commit = s.Value
				if len(b.Commit) > 12 {
					b.Commit = b.Commit[:12]
				}
			case "vcs.modified":
				b.Modified = s.Value == "true"
			}
		}
		if b.Modified && b.Commit != "" && b.Commit != "dev" {
			b.Commit += "-dirty"
		}
	}
	return b
}

// InitBuildInfo registers build_info once and sets
// build_info{version,commit,goversion} 1. It returns the resolved build.
func InitBuildInfo(version, commit string) Build {
	b := ResolveBuild(version, commit)
	buildInfoOnce.Do(func() {
		prometheus.MustRegister(buildInfo)
	})
	buildInfo.WithLabelValues(b.Version, b.Commit, b.GoVersion).Set(1)
	return b
}
