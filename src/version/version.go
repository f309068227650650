package version

// Flag contains extra info about the version. It is helpful for tracking
// versions while developing. It should always be empty on release builds.
const Flag = ""

var (
	// Version is the full version string, also written to the state
	// document as system_version.
	Version = "0.3.0"

	// GitCommit is set with --ldflags "-X github.com/intercoop/icnnode/src/version.GitCommit=$(git rev-parse HEAD)"
	GitCommit string
)

func init() {
	if Flag != "" {
		Version += "-" + Flag
	}

	if len(GitCommit) >= 8 {
		Version += "-" + GitCommit[:8]
	}
}
