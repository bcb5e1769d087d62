package build

var (
	Name    = "format-code"
	Version = "v0.0.1+dev"
)
