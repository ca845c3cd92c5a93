package version

import "fmt"

// Set at link time with -ldflags "-X ...".
var (
	Version = "0.4.2"
	Commit  = "unknown"
	Build   = "unknown"
)

// StrategyAPI is the version of the mangling strategy contract. A strategy
// declaring a different major, or a newer minor, is refused at load time.
const StrategyAPI = "1.2"

func String() string {
	return fmt.Sprintf("sniffjoke %s %s (%s) strategy-api %s", Version, Commit, Build, StrategyAPI)
}
