package govcore

import (
	"fmt"
	"runtime"
)

var (
	// CurrentVersion is set by the build script via ldflags.
	CurrentVersion = "dev"

	CurrentBranch = ""

	CurrentCommit = ""

	BuildDate = ""

	Platform = fmt.Sprintf("%s %s", runtime.GOOS, runtime.GOARCH)

	GoVersion = runtime.Version()
)
