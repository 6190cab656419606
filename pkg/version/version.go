package version

const (
	CLIName     = "shaker"
	Version     = "0.1.0"
	FullVersion = CLIName + " v" + Version
)
