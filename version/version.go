// Package version carries build information injected with
//
//	-ldflags "-X oledanim/version.Version=... -X oledanim/version.GitSHA=..."
package version

// Build information (injected via ldflags - must NOT have default values)
var (
	Version   string
	GitSHA    string
	BuildDate string
)

// String returns "version (sha, date)", with "dev" for missing parts.
func String() string {
	v, sha, date := or(Version, "dev"), or(GitSHA, "unknown"), or(BuildDate, "unknown")
	if len(sha) > 7 {
		sha = sha[:7]
	}
	return v + " (" + sha + ", " + date + ")"
}

func or(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
