package version

import "testing"

func TestGet_Defaults(t *testing.T) {
	vi := Get()
	if vi.AppName != "patient-portal" {
		t.Errorf("AppName = %q", vi.AppName)
	}
	if vi.Version == "" {
		t.Error("Version should never be empty")
	}
	if vi.Commit == "" {
		t.Error("Commit should never be empty")
	}
}

func TestGet_GoVersionFilled(t *testing.T) {
	// under go test a build info record is always available
	vi := Get()
	if vi.GoVersion == "" {
		t.Error("GoVersion should be filled from build info")
	}
}
