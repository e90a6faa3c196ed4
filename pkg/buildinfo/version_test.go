package buildinfo

import (
	"runtime/debug"
	"strings"
	"testing"
)

func TestApplyBuildInfo(t *testing.T) {
	defer func(v, c, d string) { Version, Commit, Date = v, c, d }(Version, Commit, Date)

	tests := []struct {
		name                string
		version, commit     string
		mainVersion         string
		wantVersion, wantID string
	}{
		{"unset values are filled", "dev", "none", "v0.3.1", "v0.3.1", "abc123"},
		{"devel keeps dev", "dev", "none", "(devel)", "dev", "abc123"},
		{"ldflags win", "v1.0.0", "feedbeef", "v0.3.1", "v1.0.0", "feedbeef"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			Version, Commit, Date = tt.version, tt.commit, "unknown"
			applyBuildInfo(&debug.BuildInfo{
				Main: debug.Module{Version: tt.mainVersion},
				Settings: []debug.BuildSetting{
					{Key: "vcs.revision", Value: "abc123"},
					{Key: "vcs.time", Value: "2024-05-01T12:00:00Z"},
				},
			})
			if Version != tt.wantVersion || Commit != tt.wantID {
				t.Errorf("got %s/%s, want %s/%s", Version, Commit, tt.wantVersion, tt.wantID)
			}
			if Date != "2024-05-01T12:00:00Z" {
				t.Errorf("Date = %q", Date)
			}
		})
	}
}

func TestTemplate(t *testing.T) {
	tmpl := Template()
	if !strings.HasPrefix(tmpl, "{{.Name}} version: ") || !strings.HasSuffix(tmpl, "\n") {
		t.Errorf("Template() = %q", tmpl)
	}
}
