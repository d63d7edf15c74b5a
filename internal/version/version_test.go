package version

import (
	"runtime/debug"
	"testing"
)

func TestWithBuildSettingsFillsBlanksOnly(t *testing.T) {
	t.Parallel()

	settings := []debug.BuildSetting{
		{Key: "vcs.revision", Value: "deadbeef"},
		{Key: "vcs.time", Value: "2024-01-01T00:00:00Z"},
		{Key: "GOOS", Value: "linux"},
	}

	got := withBuildSettings(Info{Version: "v1.2.3"}, settings)
	if got.Commit != "deadbeef" || got.BuildTime != "2024-01-01T00:00:00Z" {
		t.Fatalf("expected vcs fallback, got %+v", got)
	}

	pinned := withBuildSettings(Info{Commit: "abc", BuildTime: "now"}, settings)
	if pinned.Commit != "abc" || pinned.BuildTime != "now" {
		t.Fatalf("explicit values must win, got %+v", pinned)
	}
}

func TestInfoString(t *testing.T) {
	t.Parallel()

	cases := []struct {
		info Info
		want string
	}{
		{Info{Version: "dev"}, "dev"},
		{Info{Version: "v1", Commit: "abc"}, "v1 (abc)"},
		{Info{Version: "v1", Commit: "abc", BuildTime: "today"}, "v1 (abc) built today"},
	}
	for _, tc := range cases {
		if got := tc.info.String(); got != tc.want {
			t.Fatalf("String() = %q, want %q", got, tc.want)
		}
	}
}
