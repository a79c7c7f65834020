package version

import (
	"runtime/debug"
	"testing"
)

func withBuildInfo(t *testing.T, bi *debug.BuildInfo, ok bool) {
	t.Helper()
	prev := readBuildInfo
	readBuildInfo = func() (*debug.BuildInfo, bool) { return bi, ok }
	t.Cleanup(func() { readBuildInfo = prev })
}

func withLdflags(t *testing.T, v, c, b string) {
	t.Helper()
	pv, pc, pb := Version, Commit, BuildTime
	Version, Commit, BuildTime = v, c, b
	t.Cleanup(func() { Version, Commit, BuildTime = pv, pc, pb })
}

func TestResolveFallsBackToBuildInfo(t *testing.T) {
	withLdflags(t, "", "", "")
	withBuildInfo(t, &debug.BuildInfo{
		GoVersion: "go1.26.0",
		Main:      debug.Module{Version: "v0.3.1"},
		Settings: []debug.BuildSetting{
			{Key: "vcs.revision", Value: "0123456789abcdef0123"},
			{Key: "vcs.time", Value: "2026-10-01T10:00:00Z"},
			{Key: "vcs.modified", Value: "true"},
			{Key: "-tags", Value: "llama"},
		},
	}, true)

	info := Resolve()
	if info.Version != "v0.3.1" || info.GoVersion != "go1.26.0" || info.Tags != "llama" {
		t.Fatalf("unexpected info: %+v", info)
	}
	if info.Commit != "0123456789abcdef0123-dirty" || info.BuildTime != "2026-10-01T10:00:00Z" {
		t.Fatalf("unexpected vcs info: %+v", info)
	}
	if got, want := String(), "v0.3.1 (0123456789ab-dirty)"; got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}

func TestLdflagsWin(t *testing.T) {
	withLdflags(t, "1.0.0", "abc", "today")
	withBuildInfo(t, &debug.BuildInfo{
		Main:     debug.Module{Version: "v9.9.9"},
		Settings: []debug.BuildSetting{{Key: "vcs.revision", Value: "fff"}, {Key: "vcs.modified", Value: "true"}},
	}, true)

	info := Resolve()
	if info.Version != "1.0.0" || info.Commit != "abc" || info.BuildTime != "today" {
		t.Fatalf("unexpected info: %+v", info)
	}
}

func TestDevelWithoutBuildInfo(t *testing.T) {
	withLdflags(t, "", "", "")
	withBuildInfo(t, nil, false)

	if got := String(); got != "devel" {
		t.Fatalf("got %q want %q", got, "devel")
	}
	withBuildInfo(t, &debug.BuildInfo{Main: debug.Module{Version: "(devel)"}}, true)
	if got := Resolve().Version; got != "devel" {
		t.Fatalf("got %q want %q", got, "devel")
	}
}
