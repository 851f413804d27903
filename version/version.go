package version

// Overridden at build time via -ldflags "-X github.com/bernd/novpn/version.buildVersion=...".
var (
	buildVersion = "dev"
	builtAt      = "unknown"
)

// Info describes the running build.
type Info struct {
	Version string `json:"version"`
	BuiltAt string `json:"built-at"`
}

func Get() Info {
	return Info{Version: buildVersion, BuiltAt: builtAt}
}

func String() string {
	return buildVersion
}

// UserAgent identifies novpn to feed hosts.
func UserAgent() string {
	return "novpn/" + buildVersion + " (+https://github.com/bernd/novpn)"
}
