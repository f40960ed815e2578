package build

import "github.com/uplo-tech/log"

// Version is the version number of this build of obnam.
const Version = "2.0.0"

// IssuesURL is where bug reports for this build should be filed.
const IssuesURL = "https://github.com/obnam-mirror/obnam2/issues"

// Release identifies the release channel this binary was built for. It is
// set at link time via -ldflags; "standard" is the default for local
// builds.
var Release = "standard"

// DEBUG toggles verbose, non-production log output. Set at link time.
var DEBUG = false

// ReleaseType converts Release into the type the logger understands.
func ReleaseType() log.ReleaseType {
	switch Release {
	case "dev":
		return log.Dev
	case "testing":
		return log.Testing
	default:
		return log.Release
	}
}
