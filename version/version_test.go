package version

import "testing"

func TestString(t *testing.T) {
	defer func(v, s, d string) { Version, GitSHA, BuildDate = v, s, d }(Version, GitSHA, BuildDate)

	tests := []struct {
		version, sha, date string
		want               string
	}{
		{"", "", "", "dev (unknown, unknown)"},
		{"v1.2.0", "0123456789abcdef", "2026-10-19", "v1.2.0 (0123456, 2026-10-19)"},
		{"v1.2.0", "abc", "", "v1.2.0 (abc, unknown)"},
	}
	for _, tc := range tests {
		Version, GitSHA, BuildDate = tc.version, tc.sha, tc.date
		if got := String(); got != tc.want {
			t.Errorf("String() = %q, want %q", got, tc.want)
		}
	}
}
